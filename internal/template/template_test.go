package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	bindings := map[string]string{
		"repo_name": "golang/go",
		"api_key":   "secret-key",
		"api_key_1": "first-key",
		"empty":     "",
	}

	tests := []struct {
		name        string
		tmplStr     string
		bindings    map[string]string
		expected    string
		expectError bool
	}{
		{
			name:     "Simple Substitution",
			tmplStr:  "https://api.example.com/repos/{repo_name}",
			bindings: bindings,
			expected: "https://api.example.com/repos/golang/go",
		},
		{
			name:     "Multiple Substitutions",
			tmplStr:  "https://x.test/{repo_name}?key={api_key_1}&k2={api_key}",
			bindings: bindings,
			expected: "https://x.test/golang/go?key=first-key&k2=secret-key",
		},
		{
			name:     "Repeated Placeholder Substituted Everywhere",
			tmplStr:  "{repo_name}/{repo_name}",
			bindings: bindings,
			expected: "golang/go/golang/go",
		},
		{
			name:     "Empty Template",
			tmplStr:  "",
			bindings: bindings,
			expected: "",
		},
		{
			name:     "No Placeholders",
			tmplStr:  "https://api.example.com/rate_limit",
			bindings: bindings,
			expected: "https://api.example.com/rate_limit",
		},
		{
			name:     "Empty Value Is A Binding",
			tmplStr:  "value:'{empty}'",
			bindings: bindings,
			expected: "value:''",
		},
		{
			name:        "Missing Binding",
			tmplStr:     "https://x.test/{missing_name}",
			bindings:    bindings,
			expectError: true,
		},
		{
			name:        "Nil Bindings",
			tmplStr:     "{repo_name}",
			bindings:    nil,
			expectError: true,
		},
		{
			name:        "Partially Resolvable Fails Entirely",
			tmplStr:     "{repo_name}/{missing_name}",
			bindings:    bindings,
			expectError: true,
		},
		{
			name:     "Literal Braces Left Alone",
			tmplStr:  `https://x.test/q?json={"a":1}`,
			bindings: bindings,
			expected: `https://x.test/q?json={"a":1}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Resolve("test", tc.tmplStr, tc.bindings)
			if tc.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnresolvedPlaceholder)
				assert.Empty(t, result, "no partially-substituted string on error")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, result)
			}
		})
	}
}

func TestResolveMap(t *testing.T) {
	bindings := map[string]string{"token": "abc"}

	headers, err := ResolveMap("headers", map[string]string{
		"Authorization": "token {token}",
		"Accept":        "application/json",
	}, bindings)
	require.NoError(t, err)
	assert.Equal(t, "token abc", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])

	_, err = ResolveMap("headers", map[string]string{"X-Key": "{nope}"}, bindings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedPlaceholder))

	empty, err := ResolveMap("headers", nil, bindings)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestVariables(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Variables("{a}/{b}/{a}"))
	assert.Empty(t, Variables("no placeholders here"))
}
