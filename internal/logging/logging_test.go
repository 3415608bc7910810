package logging

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input       string
		expected    int
		expectError bool
	}{
		{input: "none", expected: None},
		{input: "error", expected: Error},
		{input: "warn", expected: Warning},
		{input: "warning", expected: Warning},
		{input: "info", expected: Info},
		{input: "DEBUG", expected: Debug},
		{input: "verbose", expected: Info, expectError: true},
	}

	for _, tc := range tests {
		level, err := ParseLevel(tc.input)
		if tc.expectError {
			assert.Error(t, err, tc.input)
		} else {
			require.NoError(t, err, tc.input)
		}
		assert.Equal(t, tc.expected, level, tc.input)
	}
}

func TestSetupLogging(t *testing.T) {
	defer SetLevel(Info)

	assert.Equal(t, Debug, SetupLogging("debug"))
	assert.Equal(t, Debug, GetLevel())

	// Unknown strings fall back to Info rather than failing.
	assert.Equal(t, Info, SetupLogging("bogus"))
	assert.Equal(t, Info, GetLevel())
}

func TestLogfRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	defer SetLevel(Info)

	SetLevel(Warning)
	Logf(Debug, "hidden message")
	assert.Empty(t, buf.String())

	Logf(Error, "visible message")
	assert.Contains(t, buf.String(), "[ERROR] visible message")
}
