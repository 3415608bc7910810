package util

import (
	"os"
	"regexp"
	"strings"
)

var winEnvRegex = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// ExpandEnvUniversal expands both Unix-style ($VAR, ${VAR}) and
// Windows-style (%VAR%) environment variables. Unset Windows-style
// variables expand to the empty string.
func ExpandEnvUniversal(s string) string {
	unixExpanded := os.ExpandEnv(s)
	return winEnvRegex.ReplaceAllStringFunc(unixExpanded, func(match string) string {
		varName := match[1 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return ""
	})
}

// Snippet returns a short prefix of a string, useful for logging.
func Snippet(s string) string {
	const maxLen = 200
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}

// RowKey joins the values of the given fields, in order, into a single
// comparison key. Used for duplicate detection across input rows.
func RowKey(fields []string, values map[string]string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = values[f]
	}
	return strings.Join(parts, "\x1f")
}
