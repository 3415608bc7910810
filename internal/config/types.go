package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PipelineConfig describes one retrieval pipeline: which input fields
// identify a row, how to build the request, how to shape the response,
// and an optional chained request executed with the enriched bindings.
// Nested configs share the root's secrets, retry and client settings.
type PipelineConfig struct {
	Name                   string            `yaml:"name"`
	InputParameters        []string          `yaml:"input_parameters"`
	IgnoreInputDuplicates  bool              `yaml:"ignore_input_duplicates"`
	URITemplate            string            `yaml:"uri_template"`
	Headers                map[string]string `yaml:"headers,omitempty"`
	APIKeys                []string          `yaml:"api_keys,omitempty"`
	Delay                  DelayWindow       `yaml:"delay"`
	Retry                  RetryConfig       `yaml:"retry,omitempty"`
	MaxChainDepth          int               `yaml:"max_chain_depth,omitempty"`
	PreRequestCallbacks    []string          `yaml:"pre_request_callbacks,omitempty"`
	PostRequestCallbacks   []string          `yaml:"post_request_callbacks,omitempty"`
	OutputParameterMapping OutputMapping     `yaml:"output_parameter_mapping"`
	ApplyOutputFilter      bool              `yaml:"apply_output_filter"`
	FlattenOutput          bool              `yaml:"flatten_output"`
	ChainedRequest         *PipelineConfig   `yaml:"chained_request,omitempty"`
	ChainedRequestRef      string            `yaml:"chained_request_ref,omitempty"`
	Auth                   *AuthConfig       `yaml:"auth,omitempty"`
	TlsSkipVerify          bool              `yaml:"tls_skip_verify,omitempty"`
	TimeoutSeconds         int               `yaml:"timeout_seconds,omitempty"`
}

// RetryConfig holds the retry/backoff policy for one pipeline.
// Rate-limited responses back off exponentially, transient network
// failures linearly; both are bounded.
type RetryConfig struct {
	MaxRateLimitAttempts int `yaml:"max_rate_limit_attempts"`
	MaxTransientAttempts int `yaml:"max_transient_attempts"`
	BackoffMillis        int `yaml:"backoff_ms"`
}

// AuthConfig holds optional client authentication settings.
type AuthConfig struct {
	Type        string            `yaml:"type"`
	Credentials map[string]string `yaml:"credentials,omitempty"`
}

// DelayWindow is the inclusive [min,max] range, in milliseconds, from
// which each request's pre-dispatch pause is drawn uniformly at random.
type DelayWindow struct {
	MinMillis int
	MaxMillis int
}

// UnmarshalYAML decodes a two-element sequence like `delay: [100, 400]`.
func (d *DelayWindow) UnmarshalYAML(node *yaml.Node) error {
	var bounds []int
	if err := node.Decode(&bounds); err != nil {
		return fmt.Errorf("delay must be a [min, max] list of integers: %w", err)
	}
	if len(bounds) != 2 {
		return fmt.Errorf("delay must have exactly two elements, got %d", len(bounds))
	}
	d.MinMillis = bounds[0]
	d.MaxMillis = bounds[1]
	return nil
}

// Path is an ordered list of JSON path segments. Each segment is either a
// field name or a numeric index; both are carried as strings.
type Path []string

// UnmarshalYAML accepts a sequence whose elements may be strings or
// integers, e.g. `[items, 0, name]`.
func (p *Path) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("path must be a list of segments")
	}
	segments := make([]string, 0, len(node.Content))
	for _, seg := range node.Content {
		if seg.Kind != yaml.ScalarNode {
			return fmt.Errorf("path segment must be a scalar, got %s", seg.Tag)
		}
		segments = append(segments, seg.Value)
	}
	*p = segments
	return nil
}

// FieldMapping maps one output field name to the path locating its value
// in a response document.
type FieldMapping struct {
	Name string
	Path Path
}

// OutputMapping is the ordered set of output field mappings. Declaration
// order is preserved because it determines output column order and which
// list-valued field flattening expands.
type OutputMapping []FieldMapping

// UnmarshalYAML decodes a YAML mapping while preserving key order.
func (m *OutputMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("output_parameter_mapping must be a mapping of field name to path")
	}
	mappings := make([]FieldMapping, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		var path Path
		if err := path.UnmarshalYAML(valNode); err != nil {
			return fmt.Errorf("mapping for field '%s': %w", keyNode.Value, err)
		}
		mappings = append(mappings, FieldMapping{Name: keyNode.Value, Path: path})
	}
	*m = mappings
	return nil
}

// Names returns the mapped output field names in declaration order.
func (m OutputMapping) Names() []string {
	names := make([]string, len(m))
	for i, fm := range m {
		names[i] = fm.Name
	}
	return names
}

// ChainSteps returns the linked configs of the chain in execution order,
// capped at maxSteps. The cap guards against cyclic chain definitions,
// which are legal (a self-referencing chained config is how pagination is
// expressed) but must not unroll forever.
func (c *PipelineConfig) ChainSteps(maxSteps int) []*PipelineConfig {
	var steps []*PipelineConfig
	for cfg := c; cfg != nil && len(steps) < maxSteps; cfg = cfg.ChainedRequest {
		steps = append(steps, cfg)
	}
	return steps
}

// OutputColumns returns the input fields followed by the union of output
// field names across all chain steps, in declaration order.
func (c *PipelineConfig) OutputColumns() []string {
	columns := append([]string{}, c.InputParameters...)
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		seen[col] = true
	}
	for _, step := range c.ChainSteps(c.MaxChainDepth) {
		for _, name := range step.OutputParameterMapping.Names() {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	return columns
}
