package config

import (
	"fmt"
	"net/url"
	"strings"

	"api-retriever/internal/template"
)

var knownAuthTypes = []string{"", "none", "basic", "bearer", "api_key", "ntlm", "oauth2"}

func isValidEnumValue(value string, allowedValues []string) bool {
	checkValue := strings.ToLower(value)
	for _, allowed := range allowedValues {
		if checkValue == allowed {
			return true
		}
	}
	return false
}

// ValidatePipelineConfig performs comprehensive validation of the loaded
// configuration, including every chained config. Unknown callback names
// fail here rather than at call time.
func ValidatePipelineConfig(cfg *PipelineConfig, knownPre, knownPost func(string) bool) error {
	var allErrors []string
	allErrors = append(allErrors, validateRootConfig("Config", cfg)...)

	seen := make(map[*PipelineConfig]bool)
	prefix := "Config"
	for current := cfg; current != nil && !seen[current]; current = current.ChainedRequest {
		seen[current] = true
		allErrors = append(allErrors, validateStepConfig(prefix, current, current == cfg, knownPre, knownPost)...)
		prefix += ".ChainedRequest"
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(allErrors, "\n"))
	}
	return nil
}

// validateRootConfig checks fields only honored on the root document.
func validateRootConfig(prefix string, cfg *PipelineConfig) []string {
	var errs []string
	if len(cfg.InputParameters) == 0 {
		errs = append(errs, fmt.Sprintf("- %s.InputParameters: at least one input parameter is required", prefix))
	}
	seen := make(map[string]bool, len(cfg.InputParameters))
	for _, param := range cfg.InputParameters {
		if param == "" {
			errs = append(errs, fmt.Sprintf("- %s.InputParameters: empty parameter name", prefix))
			continue
		}
		if seen[param] {
			errs = append(errs, fmt.Sprintf("- %s.InputParameters: duplicate parameter '%s'", prefix, param))
		}
		seen[param] = true
	}
	if cfg.Delay.MinMillis < 0 || cfg.Delay.MaxMillis < 0 {
		errs = append(errs, fmt.Sprintf("- %s.Delay: bounds must be non-negative", prefix))
	}
	if cfg.Delay.MinMillis > cfg.Delay.MaxMillis {
		errs = append(errs, fmt.Sprintf("- %s.Delay: min (%d) exceeds max (%d)", prefix, cfg.Delay.MinMillis, cfg.Delay.MaxMillis))
	}
	if cfg.Retry.MaxRateLimitAttempts < 1 {
		errs = append(errs, fmt.Sprintf("- %s.Retry.MaxRateLimitAttempts: must be at least 1", prefix))
	}
	if cfg.Retry.MaxTransientAttempts < 1 {
		errs = append(errs, fmt.Sprintf("- %s.Retry.MaxTransientAttempts: must be at least 1", prefix))
	}
	if cfg.Retry.BackoffMillis < 1 {
		errs = append(errs, fmt.Sprintf("- %s.Retry.BackoffMillis: must be at least 1", prefix))
	}
	if cfg.MaxChainDepth < 1 {
		errs = append(errs, fmt.Sprintf("- %s.MaxChainDepth: must be at least 1", prefix))
	}
	for i, key := range cfg.APIKeys {
		if key == "" {
			errs = append(errs, fmt.Sprintf("- %s.APIKeys[%d]: empty secret value (unset environment variable?)", prefix, i))
		}
	}
	if cfg.Auth != nil {
		errs = append(errs, validateAuthConfig(prefix+".Auth", cfg.Auth)...)
	}
	return errs
}

// validateStepConfig checks the fields every chain step carries.
func validateStepConfig(prefix string, cfg *PipelineConfig, isRoot bool, knownPre, knownPost func(string) bool) []string {
	var errs []string
	if cfg.URITemplate == "" {
		errs = append(errs, fmt.Sprintf("- %s.URITemplate: is required", prefix))
	} else if isRoot {
		// Chained templates may come wholly from an extracted field (e.g.
		// "{repos_url}"), so only the root template has a checkable shape.
		if parsedURL, err := url.Parse(strippedTemplate(cfg.URITemplate)); err != nil {
			errs = append(errs, fmt.Sprintf("- %s.URITemplate: invalid URI format: %v", prefix, err))
		} else if scheme := strings.ToLower(parsedURL.Scheme); scheme != "http" && scheme != "https" {
			errs = append(errs, fmt.Sprintf("- %s.URITemplate: invalid scheme '%s', must be http or https", prefix, parsedURL.Scheme))
		}
	}
	if len(cfg.OutputParameterMapping) == 0 {
		errs = append(errs, fmt.Sprintf("- %s.OutputParameterMapping: at least one output field is required", prefix))
	}
	seen := make(map[string]bool)
	for _, fm := range cfg.OutputParameterMapping {
		if fm.Name == "" {
			errs = append(errs, fmt.Sprintf("- %s.OutputParameterMapping: empty field name", prefix))
		}
		if seen[fm.Name] {
			errs = append(errs, fmt.Sprintf("- %s.OutputParameterMapping: duplicate field '%s'", prefix, fm.Name))
		}
		seen[fm.Name] = true
		if len(fm.Path) == 0 {
			errs = append(errs, fmt.Sprintf("- %s.OutputParameterMapping[%s]: path must have at least one segment", prefix, fm.Name))
		}
		for _, seg := range fm.Path {
			if seg == "" {
				errs = append(errs, fmt.Sprintf("- %s.OutputParameterMapping[%s]: empty path segment", prefix, fm.Name))
			}
		}
	}
	if knownPre != nil {
		for _, name := range cfg.PreRequestCallbacks {
			if !knownPre(name) {
				errs = append(errs, fmt.Sprintf("- %s.PreRequestCallbacks: unknown callback '%s'", prefix, name))
			}
		}
	}
	if knownPost != nil {
		for _, name := range cfg.PostRequestCallbacks {
			if !knownPost(name) {
				errs = append(errs, fmt.Sprintf("- %s.PostRequestCallbacks: unknown callback '%s'", prefix, name))
			}
		}
	}
	if cfg.ChainedRequest != nil && cfg.ChainedRequestRef != "" {
		errs = append(errs, fmt.Sprintf("- %s: only one of chained_request and chained_request_ref can be specified", prefix))
	}
	return errs
}

func validateAuthConfig(prefix string, cfg *AuthConfig) []string {
	var errs []string
	authType := strings.ToLower(cfg.Type)
	if !isValidEnumValue(authType, knownAuthTypes) {
		errs = append(errs, fmt.Sprintf("- %s.Type: invalid auth type '%s'", prefix, cfg.Type))
		return errs
	}
	required := map[string][]string{
		"basic":   {"username", "password"},
		"ntlm":    {"username", "password"},
		"bearer":  {"token"},
		"api_key": {"api_key"},
		"oauth2":  {"client_id", "client_secret", "token_url"},
	}
	if fields, needed := required[authType]; needed {
		if cfg.Credentials == nil {
			errs = append(errs, fmt.Sprintf("- %s.Credentials: map is required for auth type '%s'", prefix, authType))
			return errs
		}
		for _, field := range fields {
			if v, ok := cfg.Credentials[field]; !ok || v == "" {
				errs = append(errs, fmt.Sprintf("- %s.Credentials: missing or empty required key '%s' for auth type '%s'", prefix, field, authType))
			}
		}
	}
	return errs
}

// strippedTemplate replaces placeholders with a neutral token so the URI
// shape can be parsed before any bindings exist.
func strippedTemplate(uriTemplate string) string {
	stripped := uriTemplate
	for _, name := range template.Variables(uriTemplate) {
		stripped = strings.ReplaceAll(stripped, "{"+name+"}", "x")
	}
	return stripped
}
