package hlog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	t.Setenv("DELVE_DEBUGGER", "")
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel(false, false, zerolog.WarnLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel(true, false, zerolog.WarnLevel))
	assert.Equal(t, zerolog.TraceLevel, parseLogLevel(true, true, zerolog.WarnLevel))
}

func TestIsContextCancellation(t *testing.T) {
	assert.False(t, IsContextCancellation(nil))
	assert.False(t, IsContextCancellation(errors.New("boom")))
	assert.True(t, IsContextCancellation(context.Canceled))
	assert.True(t, IsContextCancellation(fmt.Errorf("publish: %w", context.DeadlineExceeded)))
}
