package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"api-retriever/internal/util"
)

// Default values applied before validation.
const (
	DefaultMaxRateLimitAttempts = 5
	DefaultMaxTransientAttempts = 3
	DefaultBackoffMillis        = 1000
	DefaultMaxChainDepth        = 32
	DefaultTimeoutSeconds       = 30
)

// LoadOptions configures configuration loading.
type LoadOptions struct {
	// ConfigDir is the directory searched for chained_request_ref
	// documents (<name>.yaml). Empty means refs are rejected.
	ConfigDir string
	// KnownPreCallback / KnownPostCallback report whether a callback name
	// is registered. Nil disables the check (used by tests).
	KnownPreCallback  func(name string) bool
	KnownPostCallback func(name string) bool
}

// LoadConfig reads, parses, links and validates a pipeline configuration.
// Chained request references are resolved against opts.ConfigDir; a ref
// cycle links back to the already-loaded document, which is how a
// paginating chain points at itself.
func LoadConfig(filename string, opts LoadOptions) (*PipelineConfig, error) {
	loaded := make(map[string]*PipelineConfig)
	cfg, err := loadConfigFile(filename, opts.ConfigDir, loaded)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	expandSecrets(cfg)

	if err := ValidatePipelineConfig(cfg, opts.KnownPreCallback, opts.KnownPostCallback); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(filename, configDir string, loaded map[string]*PipelineConfig) (*PipelineConfig, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path '%s': %w", filename, err)
	}
	if cfg, ok := loaded[absPath]; ok {
		return cfg, nil
	}

	fileBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filename, err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(fileBytes, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in '%s': %w", filename, err)
	}
	// Register before resolving refs so a self-reference links back here.
	loaded[absPath] = &cfg

	if err := resolveRefs(&cfg, configDir, loaded); err != nil {
		return nil, fmt.Errorf("in config '%s': %w", filename, err)
	}
	return &cfg, nil
}

// resolveRefs replaces every chained_request_ref in the linked structure
// with the loaded document it names.
func resolveRefs(cfg *PipelineConfig, configDir string, loaded map[string]*PipelineConfig) error {
	seen := make(map[*PipelineConfig]bool)
	for current := cfg; current != nil && !seen[current]; current = current.ChainedRequest {
		seen[current] = true
		if current.ChainedRequestRef == "" {
			continue
		}
		if current.ChainedRequest != nil {
			return fmt.Errorf("chained_request and chained_request_ref are mutually exclusive")
		}
		if configDir == "" {
			return fmt.Errorf("chained_request_ref '%s' requires a config directory (-config-dir)", current.ChainedRequestRef)
		}
		refPath := filepath.Join(configDir, current.ChainedRequestRef+".yaml")
		chained, err := loadConfigFile(refPath, configDir, loaded)
		if err != nil {
			return fmt.Errorf("resolving chained_request_ref '%s': %w", current.ChainedRequestRef, err)
		}
		current.ChainedRequest = chained
	}
	return nil
}

// applyDefaults fills zero values across the chain. Executor settings are
// only honored on the root config, so only the root needs them.
func applyDefaults(cfg *PipelineConfig) {
	if cfg.Retry.MaxRateLimitAttempts <= 0 {
		cfg.Retry.MaxRateLimitAttempts = DefaultMaxRateLimitAttempts
	}
	if cfg.Retry.MaxTransientAttempts <= 0 {
		cfg.Retry.MaxTransientAttempts = DefaultMaxTransientAttempts
	}
	if cfg.Retry.BackoffMillis <= 0 {
		cfg.Retry.BackoffMillis = DefaultBackoffMillis
	}
	if cfg.MaxChainDepth <= 0 {
		cfg.MaxChainDepth = DefaultMaxChainDepth
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Name == "" {
		cfg.Name = "output"
	}
}

// expandSecrets env-expands secret values and header templates so keys can
// live outside the config document (api_keys: ["$GITHUB_TOKEN"]).
func expandSecrets(cfg *PipelineConfig) {
	for i, key := range cfg.APIKeys {
		cfg.APIKeys[i] = util.ExpandEnvUniversal(key)
	}
	if cfg.Auth != nil {
		for k, v := range cfg.Auth.Credentials {
			cfg.Auth.Credentials[k] = util.ExpandEnvUniversal(v)
		}
	}
	seen := make(map[*PipelineConfig]bool)
	for current := cfg; current != nil && !seen[current]; current = current.ChainedRequest {
		seen[current] = true
		for name, val := range current.Headers {
			current.Headers[name] = util.ExpandEnvUniversal(val)
		}
	}
}
