package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"api-retriever/internal/callback"
	"api-retriever/internal/config"
	"api-retriever/internal/executor"
	"api-retriever/internal/logging"
	"api-retriever/internal/shaper"
	"api-retriever/internal/template"
	"api-retriever/internal/util"
)

// Fetcher executes one resolved request plan and returns the parsed
// response document. Satisfied by *executor.Executor.
type Fetcher interface {
	Fetch(ctx context.Context, plan executor.RequestPlan) (gjson.Result, error)
}

// step is one link of the chain with its callbacks resolved up front.
type step struct {
	cfg  *config.PipelineConfig
	pre  []callback.PreRequest
	post []callback.PostRequest
}

// Runner drives the per-row request chain: resolve a plan from the active
// config and accumulated bindings, run pre hooks, execute, shape, run post
// hooks, merge extracted fields into the bindings, and continue into the
// chained config until none remains or the depth cap is reached.
type Runner struct {
	root   *config.PipelineConfig
	fetch  Fetcher
	secret string
	steps  []step
}

// NewRunner resolves the chain's callbacks against the registry and binds
// the runner to one fetcher and one secret. Workers each get their own
// runner so pacing state stays per-worker.
func NewRunner(cfg *config.PipelineConfig, fetch Fetcher, registry *callback.Registry, secret string) (*Runner, error) {
	chainCfgs := cfg.ChainSteps(cfg.MaxChainDepth)
	steps := make([]step, 0, len(chainCfgs))
	for _, stepCfg := range chainCfgs {
		pre, err := registry.Pre(stepCfg.PreRequestCallbacks)
		if err != nil {
			return nil, err
		}
		post, err := registry.Post(stepCfg.PostRequestCallbacks)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{cfg: stepCfg, pre: pre, post: post})
	}
	return &Runner{root: cfg, fetch: fetch, secret: secret, steps: steps}, nil
}

// ProcessRow runs the full chain for one input row and returns every
// output record produced across all chain steps. Any failure aborts the
// whole row: no records are emitted for a failed row.
func (r *Runner) ProcessRow(ctx context.Context, row map[string]string) ([]shaper.Record, error) {
	bindings := NewBindings()
	bindings.Merge(row)
	for i, key := range r.root.APIKeys {
		bindings.Set("api_key_"+strconv.Itoa(i+1), key)
	}
	if r.secret != "" {
		bindings.Set("api_key", r.secret)
	}

	var records []shaper.Record

	for depth, st := range r.steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("row cancelled at chain depth %d: %w", depth, err)
		}

		plan, err := r.resolvePlan(st.cfg, bindings, depth)
		if err != nil {
			if depth > 0 && errors.Is(err, template.ErrUnresolvedPlaceholder) {
				// The parent response did not produce the referenced
				// field (e.g. no next page). Chain ends here.
				logging.Logf(logging.Debug, "Chain stopped at depth %d: %v", depth, err)
				break
			}
			return nil, err
		}

		for _, hook := range st.pre {
			if hookErr := hook.BeforeRequest(&plan, bindings.Map()); hookErr != nil {
				return nil, fmt.Errorf("%w: pre-request callback '%s' at depth %d: %v",
					callback.ErrCallback, hook.Name(), depth, hookErr)
			}
		}

		logging.Logf(logging.Debug, "Chain depth %d: GET %s", depth, util.Snippet(plan.URI))
		doc, err := r.fetch.Fetch(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("chain depth %d: %w", depth, err)
		}

		// Merge extracted fields into the bindings before filtering, so a
		// chained step can reference them even when this step's records
		// are dropped. A mapped field absent from the latest response is
		// unbound, not left stale: an unresolved chained template is the
		// chain's termination signal, and a cyclic chain would otherwise
		// replay the previous continuation forever.
		for name, val := range shaper.Extract(doc, st.cfg.OutputParameterMapping) {
			if val.Exists {
				bindings.Set(name, val.String())
			} else {
				bindings.Delete(name)
			}
		}

		for _, fields := range shaper.Shape(doc, st.cfg.OutputParameterMapping, st.cfg.FlattenOutput) {
			rec := shaper.Record{Input: copyMap(row), Output: fields}
			keep := true
			for _, hook := range st.post {
				hookKeep, hookErr := hook.AfterResponse(&rec)
				if hookErr != nil {
					return nil, fmt.Errorf("%w: post-request callback '%s' at depth %d: %v",
						callback.ErrCallback, hook.Name(), depth, hookErr)
				}
				keep = keep && hookKeep
			}
			if st.cfg.ApplyOutputFilter && !keep {
				logging.Logf(logging.Debug, "Chain depth %d: record filtered out", depth)
				continue
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

// resolvePlan builds a fresh request plan from the active config and the
// accumulated bindings. Plans are never re-resolved once built.
func (r *Runner) resolvePlan(cfg *config.PipelineConfig, bindings *Bindings, depth int) (executor.RequestPlan, error) {
	name := fmt.Sprintf("uri@%d", depth)
	uri, err := template.Resolve(name, cfg.URITemplate, bindings.Map())
	if err != nil {
		return executor.RequestPlan{}, err
	}
	headers, err := template.ResolveMap(fmt.Sprintf("headers@%d", depth), cfg.Headers, bindings.Map())
	if err != nil {
		return executor.RequestPlan{}, err
	}
	return executor.RequestPlan{URI: uri, Headers: headers}, nil
}

// RowIdentity renders a row's input fields for failure logging.
func RowIdentity(inputParams []string, row map[string]string) string {
	identity := "{"
	for i, param := range inputParams {
		if i > 0 {
			identity += ", "
		}
		identity += param + "=" + row[param]
	}
	return identity + "}"
}

func copyMap(m map[string]string) map[string]string {
	copied := make(map[string]string, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}
