// Package resilience implements the classified exponential-backoff retry
// used by the parser, discovery and downloader clients. The LLM and
// embedding adapters do not call it, so their requests are not retried
// here. It is never used for transactional database operations —
// those retry on serialization failure with their own policy inside the
// graph store.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// HTTPStatusError carries a numeric HTTP status code so classification does
// not need to regex-match the final wrapped error string.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %v", e.StatusCode, e.Err)
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }

var nonRetryableMessage = regexp.MustCompile(`(?i)payment required|402|unauthorized|401`)

// Options configures withRetry. Zero values take the spec's defaults.
type Options struct {
	Retries      int
	Factor       float64
	MinTimeoutMs int
	MaxTimeoutMs int
}

func (o Options) withDefaults() Options {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Factor <= 0 {
		o.Factor = 2
	}
	if o.MinTimeoutMs <= 0 {
		o.MinTimeoutMs = 1000
	}
	if o.MaxTimeoutMs <= 0 {
		o.MaxTimeoutMs = 10000
	}
	return o
}

// Operation is the function withRetry calls; name is used only in error
// messages and logging.
type Operation func(ctx context.Context) error

// WithRetry runs op, retrying on retryable failures with jittered
// exponential backoff: sleep = min(minTimeout*factor^(attempt-1), maxTimeout),
// with full jitter (a uniform draw from [0, sleep]).
func WithRetry(ctx context.Context, name string, op Operation, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Retries+1; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return fmt.Errorf("%s: non-retryable: %w", name, err)
		}
		if attempt > opts.Retries {
			break
		}

		sleep := backoffDuration(attempt, opts)
		if err := sleepCtx(ctx, sleep); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: exhausted %d retries: %w", name, opts.Retries, lastErr)
}

func backoffDuration(attempt int, opts Options) time.Duration {
	upper := float64(opts.MinTimeoutMs) * pow(opts.Factor, attempt-1)
	if upper > float64(opts.MaxTimeoutMs) {
		upper = float64(opts.MaxTimeoutMs)
	}
	if upper <= 0 {
		return 0
	}
	jittered := rand.Float64() * upper
	return time.Duration(jittered) * time.Millisecond
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isRetryable classifies an error per §4.10/§7: not-retryable on a 402/401
// status (quota/auth) or a 404 (not found); retryable otherwise.
func isRetryable(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 402, 401, 404:
			return false
		default:
			return true
		}
	}
	if nonRetryableMessage.MatchString(err.Error()) {
		return false
	}
	return true
}
