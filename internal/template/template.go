package template

import (
	"errors"
	"fmt"
	"regexp"

	"api-retriever/internal/logging"
)

// ErrUnresolvedPlaceholder is returned when a template references a name
// that has no binding. Resolution is total or fails: a partially
// substituted string is never produced.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// placeholderRegex matches {name} placeholders. Names are restricted to
// word characters so literal braces in URIs (e.g. JSON in a query string)
// are left untouched.
var placeholderRegex = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Variables returns the placeholder names referenced by a template string,
// in order of first appearance.
func Variables(tmplStr string) []string {
	matches := placeholderRegex.FindAllStringSubmatch(tmplStr, -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Resolve substitutes every {name} placeholder in tmplStr with its value
// from bindings. templateName is used for error context only.
func Resolve(templateName, tmplStr string, bindings map[string]string) (string, error) {
	if tmplStr == "" {
		return "", nil
	}

	var missing []string
	resolved := placeholderRegex.ReplaceAllStringFunc(tmplStr, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := bindings[name]; ok {
			return value
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		logging.Logf(logging.Debug, "Template '%s': no binding for %v (have %d bindings)", templateName, missing, len(bindings))
		return "", fmt.Errorf("template '%s': %w: %v", templateName, ErrUnresolvedPlaceholder, missing)
	}
	return resolved, nil
}

// ResolveMap resolves every value of a template map (e.g. header values)
// against the same bindings. Keys are passed through untouched.
func ResolveMap(templateName string, tmplMap map[string]string, bindings map[string]string) (map[string]string, error) {
	if len(tmplMap) == 0 {
		return nil, nil
	}
	resolved := make(map[string]string, len(tmplMap))
	for key, valTmpl := range tmplMap {
		val, err := Resolve(templateName+"."+key, valTmpl, bindings)
		if err != nil {
			return nil, err
		}
		resolved[key] = val
	}
	return resolved, nil
}
