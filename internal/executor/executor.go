package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"api-retriever/internal/config"
	"api-retriever/internal/logging"
	"api-retriever/internal/util"
)

// Failure classification for one request plan. All of these are fatal to
// the current row only; the batch continues.
var (
	// ErrRateLimitExceeded: retries after throttled responses exhausted.
	ErrRateLimitExceeded = errors.New("rate limit retries exceeded")
	// ErrTransientFetch: retries after network failures exhausted.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrRequestFailed: non-retryable client/server error status.
	ErrRequestFailed = errors.New("request failed")
	// ErrMalformedResponse: 2xx status but unparseable JSON body.
	ErrMalformedResponse = errors.New("malformed response body")
)

// RequestPlan is a fully resolved URI and header set for exactly one
// request. Plans are never re-resolved; each chain step builds a fresh one.
type RequestPlan struct {
	URI     string
	Headers map[string]string
}

// sleepFunc allows mocking time.Sleep during tests.
type sleepFunc func(time.Duration)

// DefaultSleep is the sleep function used by new executors. Exported so
// tests can substitute it.
var DefaultSleep sleepFunc = time.Sleep

// Executor issues HTTP GETs for request plans, pacing each dispatch with a
// randomized delay and retrying classified transient failures. Each worker
// owns its own Executor so pacing state is never contended.
type Executor struct {
	client *http.Client
	retry  config.RetryConfig
	delay  config.DelayWindow
	rng    *rand.Rand
	sleep  sleepFunc
}

// New creates an executor with its own pacing source.
func New(client *http.Client, retry config.RetryConfig, delay config.DelayWindow) *Executor {
	return &Executor{
		client: client,
		retry:  retry,
		delay:  delay,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  DefaultSleep,
	}
}

// Fetch dispatches one GET for the plan and returns the parsed response
// document. The outcome is classified per the retry policy: throttled
// responses back off exponentially, network failures linearly, any other
// error status fails immediately.
func (e *Executor) Fetch(ctx context.Context, plan RequestPlan) (gjson.Result, error) {
	rateLimitAttempts := 0
	transientAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return gjson.Result{}, fmt.Errorf("%w: cancelled before dispatch: %w", ErrTransientFetch, err)
		}
		e.pace()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, plan.URI, nil)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("%w: building request for '%s': %v", ErrRequestFailed, plan.URI, err)
		}
		for name, val := range plan.Headers {
			req.Header.Set(name, val)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return gjson.Result{}, fmt.Errorf("%w: %w", ErrTransientFetch, ctx.Err())
			}
			transientAttempts++
			if transientAttempts >= e.retry.MaxTransientAttempts {
				return gjson.Result{}, fmt.Errorf("%w after %d attempts: %v", ErrTransientFetch, transientAttempts, err)
			}
			wait := time.Duration(e.retry.BackoffMillis*transientAttempts) * time.Millisecond
			logging.Logf(logging.Info, "Transient failure for %s (attempt %d/%d), retrying in %v: %v",
				plan.URI, transientAttempts, e.retry.MaxTransientAttempts, wait, err)
			e.sleep(wait)
			continue
		}

		bodyBytes, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			transientAttempts++
			if transientAttempts >= e.retry.MaxTransientAttempts {
				return gjson.Result{}, fmt.Errorf("%w after %d attempts: reading body: %v", ErrTransientFetch, transientAttempts, readErr)
			}
			wait := time.Duration(e.retry.BackoffMillis*transientAttempts) * time.Millisecond
			logging.Logf(logging.Info, "Body read failure for %s (attempt %d/%d), retrying in %v: %v",
				plan.URI, transientAttempts, e.retry.MaxTransientAttempts, wait, readErr)
			e.sleep(wait)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if !gjson.ValidBytes(bodyBytes) {
				return gjson.Result{}, fmt.Errorf("%w: status %d, body snippet: %s",
					ErrMalformedResponse, resp.StatusCode, util.Snippet(string(bodyBytes)))
			}
			return gjson.ParseBytes(bodyBytes), nil

		case isRateLimited(resp, bodyBytes):
			rateLimitAttempts++
			if rateLimitAttempts >= e.retry.MaxRateLimitAttempts {
				return gjson.Result{}, fmt.Errorf("%w: status %d after %d attempts", ErrRateLimitExceeded, resp.StatusCode, rateLimitAttempts)
			}
			wait := time.Duration(e.retry.BackoffMillis) * time.Millisecond << (rateLimitAttempts - 1)
			logging.Logf(logging.Info, "Rate limited by %s (status %d, attempt %d/%d), backing off %v",
				plan.URI, resp.StatusCode, rateLimitAttempts, e.retry.MaxRateLimitAttempts, wait)
			e.sleep(wait)

		default:
			return gjson.Result{}, fmt.Errorf("%w: status %d, body snippet: %s",
				ErrRequestFailed, resp.StatusCode, util.Snippet(string(bodyBytes)))
		}
	}
}

// pace suspends for a duration drawn uniformly at random from the
// configured delay window.
func (e *Executor) pace() {
	if e.delay.MaxMillis <= 0 {
		return
	}
	span := e.delay.MaxMillis - e.delay.MinMillis
	wait := e.delay.MinMillis
	if span > 0 {
		wait += e.rng.Intn(span + 1)
	}
	if wait > 0 {
		e.sleep(time.Duration(wait) * time.Millisecond)
	}
}

// isRateLimited reports whether a response indicates throttling: a 429, or
// a 403 carrying a rate-limit marker (GitHub-style header or body text).
func isRateLimited(resp *http.Response, body []byte) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("Retry-After") != "" {
		return true
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining == "0" {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}
