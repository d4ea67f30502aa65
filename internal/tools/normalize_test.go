package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMac(t *testing.T) {
	for in, expected := range map[string]string{
		"E8E07EA60C6F":      "e8:e0:7e:a6:0c:6f",
		"e8-e0-7e-a6-0c-6f": "e8:e0:7e:a6:0c:6f",
		"E8:E0:7E:A6:0C:6F": "e8:e0:7e:a6:0c:6f",
		" e8e0.7ea6.0c6f ":  "e8:e0:7e:a6:0c:6f",
		"":                  "",
		"not-a-mac":         "not-a-mac",
		"e8e07ea60c":        "e8e07ea60c",
	} {
		assert.Equal(t, expected, NormalizeMac(in), "input %q", in)
	}
}
