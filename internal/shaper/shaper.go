// Package shaper turns a response document into zero or more output
// records by applying the output parameter mapping and optional
// flattening. The filter gate over candidate records is driven by the
// chain runner via post-request callbacks.
package shaper

import (
	"github.com/tidwall/gjson"

	"api-retriever/internal/config"
	"api-retriever/internal/jsonpath"
)

// Record is one output row candidate. Input carries the original row's
// fields so every emitted row is self-describing; Output carries the
// extracted fields, with absent values as empty strings.
type Record struct {
	Input  map[string]string
	Output map[string]string
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	in := make(map[string]string, len(r.Input))
	for k, v := range r.Input {
		in[k] = v
	}
	out := make(map[string]string, len(r.Output))
	for k, v := range r.Output {
		out[k] = v
	}
	return Record{Input: in, Output: out}
}

// Row merges input and output fields into one column map. Output fields
// win on collision.
func (r Record) Row() map[string]string {
	row := make(map[string]string, len(r.Input)+len(r.Output))
	for k, v := range r.Input {
		row[k] = v
	}
	for k, v := range r.Output {
		row[k] = v
	}
	return row
}

// Extract locates every mapped field in the document. Absent paths yield
// absent values, never errors.
func Extract(doc gjson.Result, mapping config.OutputMapping) map[string]jsonpath.Value {
	values := make(map[string]jsonpath.Value, len(mapping))
	for _, fm := range mapping {
		values[fm.Name] = jsonpath.Get(doc, fm.Path)
	}
	return values
}

// Shape produces the candidate output field sets for one response. Without
// flattening this is a single set. With flattening enabled, the first
// list-valued field in mapping declaration order is expanded into one set
// per element, with all other fields repeated unchanged.
func Shape(doc gjson.Result, mapping config.OutputMapping, flatten bool) []map[string]string {
	values := Extract(doc, mapping)

	base := make(map[string]string, len(mapping))
	for _, fm := range mapping {
		base[fm.Name] = values[fm.Name].String()
	}

	if flatten {
		for _, fm := range mapping {
			if !values[fm.Name].IsList() {
				continue
			}
			elements := values[fm.Name].Elements()
			if len(elements) == 0 {
				// An empty list flattens to zero records.
				return nil
			}
			expanded := make([]map[string]string, 0, len(elements))
			for _, el := range elements {
				rec := make(map[string]string, len(base))
				for k, v := range base {
					rec[k] = v
				}
				rec[fm.Name] = el.String()
				expanded = append(expanded, rec)
			}
			return expanded
		}
	}

	return []map[string]string{base}
}
