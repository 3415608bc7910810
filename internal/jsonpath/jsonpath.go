// Package jsonpath locates values inside parsed JSON documents by an
// ordered list of key/index segments. Absence is a value, not an error:
// a missing segment or a type mismatch yields an absent result so output
// rows stay aligned.
package jsonpath

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Value is the result of an extraction. Absent values carry Exists=false
// and render as the empty string.
type Value struct {
	Result gjson.Result
	Exists bool
}

// Absent is the sentinel for a path that located nothing.
var Absent = Value{}

// String renders the value for tabular output. Scalars render natively,
// arrays and objects render as their raw JSON, absent renders empty.
func (v Value) String() string {
	if !v.Exists {
		return ""
	}
	switch v.Result.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Result.Str
	default:
		if v.Result.IsArray() || v.Result.IsObject() {
			return v.Result.Raw
		}
		return v.Result.String()
	}
}

// IsList reports whether the located value is a JSON array.
func (v Value) IsList() bool {
	return v.Exists && v.Result.IsArray()
}

// Elements returns the array elements of a list value.
func (v Value) Elements() []Value {
	if !v.IsList() {
		return nil
	}
	arr := v.Result.Array()
	out := make([]Value, len(arr))
	for i, el := range arr {
		out[i] = Value{Result: el, Exists: true}
	}
	return out
}

// Get walks doc segment by segment and returns the located value, or
// Absent if any segment does not exist or type-mismatches.
func Get(doc gjson.Result, segments []string) Value {
	current := doc
	for _, seg := range segments {
		if !current.Exists() {
			return Absent
		}
		if idx, err := strconv.Atoi(seg); err == nil && current.IsArray() {
			arr := current.Array()
			if idx < 0 || idx >= len(arr) {
				return Absent
			}
			current = arr[idx]
			continue
		}
		if !current.IsObject() {
			return Absent
		}
		current = current.Get(escapeSegment(seg))
	}
	if !current.Exists() {
		return Absent
	}
	return Value{Result: current, Exists: true}
}

// GetBytes parses raw JSON and walks it. Invalid JSON yields Absent; body
// validity is the executor's concern.
func GetBytes(raw []byte, segments []string) Value {
	if !gjson.ValidBytes(raw) {
		return Absent
	}
	return Get(gjson.ParseBytes(raw), segments)
}

// escapeSegment escapes gjson path metacharacters so a segment is always
// treated as a literal object key.
func escapeSegment(seg string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(seg)
}
