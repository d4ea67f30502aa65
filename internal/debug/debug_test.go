package debug

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDebuggerAttached(t *testing.T) {
	t.Setenv("VSCODE_DEBUG_MODE", "")
	t.Setenv("DELVE_DEBUGGER", "")
	args := os.Args
	defer func() { os.Args = args }()

	os.Args = []string{"/usr/local/bin/switchbot-mqtt"}
	assert.False(t, IsDebuggerAttached())

	os.Args = []string{"/tmp/__debug_bin3141"}
	assert.True(t, IsDebuggerAttached())

	os.Args = []string{"switchbot-mqtt"}
	t.Setenv("DELVE_DEBUGGER", "1")
	assert.True(t, IsDebuggerAttached())
}
