// Package callback holds the named registry of pre-request and
// post-request hooks referenced by configuration documents. Unknown names
// fail configuration validation, never a live request.
package callback

import (
	"errors"
	"fmt"
	"strings"

	"api-retriever/internal/executor"
	"api-retriever/internal/shaper"
)

// ErrCallback marks a hook failure. It aborts the current row only.
var ErrCallback = errors.New("callback failed")

// PreRequest hooks run before dispatch. They may inspect or mutate the
// in-flight plan, or derive new bindings for later chain steps.
type PreRequest interface {
	Name() string
	BeforeRequest(plan *executor.RequestPlan, bindings map[string]string) error
}

// PostRequest hooks run after extraction. They may mutate the candidate
// record or veto it; veto signals are honored only when the pipeline has
// output filtering enabled.
type PostRequest interface {
	Name() string
	AfterResponse(rec *shaper.Record) (keep bool, err error)
}

// Registry maps callback names to handlers. Built-ins are registered by
// NewRegistry; embedders add their own before loading configuration.
type Registry struct {
	pre  map[string]PreRequest
	post map[string]PostRequest
}

// NewRegistry creates a registry populated with the built-in callbacks.
func NewRegistry() *Registry {
	r := &Registry{
		pre:  make(map[string]PreRequest),
		post: make(map[string]PostRequest),
	}
	r.RegisterPre(stripInputWhitespace{})
	r.RegisterPre(requireHTTPS{})
	r.RegisterPost(dropEmptyRecords{})
	return r
}

// RegisterPre adds a pre-request hook. Last registration wins on name
// collision, letting embedders override built-ins.
func (r *Registry) RegisterPre(cb PreRequest) {
	r.pre[cb.Name()] = cb
}

// RegisterPost adds a post-request hook.
func (r *Registry) RegisterPost(cb PostRequest) {
	r.post[cb.Name()] = cb
}

// KnowsPre reports whether a pre-request callback name is registered.
func (r *Registry) KnowsPre(name string) bool {
	_, ok := r.pre[name]
	return ok
}

// KnowsPost reports whether a post-request callback name is registered.
func (r *Registry) KnowsPost(name string) bool {
	_, ok := r.post[name]
	return ok
}

// Pre resolves an ordered list of pre-request callback names.
func (r *Registry) Pre(names []string) ([]PreRequest, error) {
	hooks := make([]PreRequest, 0, len(names))
	for _, name := range names {
		cb, ok := r.pre[name]
		if !ok {
			return nil, fmt.Errorf("pre-request callback '%s' not found", name)
		}
		hooks = append(hooks, cb)
	}
	return hooks, nil
}

// Post resolves an ordered list of post-request callback names.
func (r *Registry) Post(names []string) ([]PostRequest, error) {
	hooks := make([]PostRequest, 0, len(names))
	for _, name := range names {
		cb, ok := r.post[name]
		if !ok {
			return nil, fmt.Errorf("post-request callback '%s' not found", name)
		}
		hooks = append(hooks, cb)
	}
	return hooks, nil
}

// --- Built-in callbacks ---

// stripInputWhitespace trims surrounding whitespace from the in-flight
// plan's URI and header values, and from every binding so later chain
// steps resolve their templates against clean values. The current step's
// URI is already resolved when hooks run, so interior whitespace from a
// sloppy input value can only be cured for subsequent steps.
type stripInputWhitespace struct{}

func (stripInputWhitespace) Name() string { return "strip_input_whitespace" }

func (stripInputWhitespace) BeforeRequest(plan *executor.RequestPlan, bindings map[string]string) error {
	plan.URI = strings.TrimSpace(plan.URI)
	for k, v := range plan.Headers {
		plan.Headers[k] = strings.TrimSpace(v)
	}
	for k, v := range bindings {
		bindings[k] = strings.TrimSpace(v)
	}
	return nil
}

// requireHTTPS rejects plans whose resolved URI is not https. Useful when
// secrets travel in the URI.
type requireHTTPS struct{}

func (requireHTTPS) Name() string { return "require_https" }

func (requireHTTPS) BeforeRequest(plan *executor.RequestPlan, bindings map[string]string) error {
	if !strings.HasPrefix(strings.ToLower(plan.URI), "https://") {
		return fmt.Errorf("plan URI is not https: %s", plan.URI)
	}
	return nil
}

// dropEmptyRecords vetoes candidate records whose extracted fields are all
// absent.
type dropEmptyRecords struct{}

func (dropEmptyRecords) Name() string { return "drop_empty_records" }

func (dropEmptyRecords) AfterResponse(rec *shaper.Record) (bool, error) {
	for _, v := range rec.Output {
		if v != "" {
			return true, nil
		}
	}
	return false, nil
}
