// Package retryx wraps exponential backoff retry for the SDKs' network
// calls. HTTP status errors are retried only when the status is transient;
// everything else fails on the first attempt.
package retryx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Defaults for SDK network calls.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMultiplier   = 2.0
	DefaultMaxDelay     = 10 * time.Second
)

// retryableStatuses are the transient HTTP statuses worth another attempt.
var retryableStatuses = map[int]struct{}{
	408: {}, 429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// RetryableStatus reports whether an HTTP status code is worth retrying.
func RetryableStatus(code int) bool {
	_, ok := retryableStatuses[code]
	return ok
}

// HTTPStatusError carries a non-2xx response through the retry machinery so
// it can be classified as transient or permanent.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("retryx: http status %d", e.StatusCode)
}

// Options tune a retry loop. The zero value means the package defaults.
type Options struct {
	// MaxRetries is the number of retries after the initial attempt, so
	// total calls = MaxRetries+1. Zero means DefaultMaxRetries; pass a
	// negative value for a single attempt with no retries.
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	} else if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.Multiplier <= 0 {
		o.Multiplier = DefaultMultiplier
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	return o
}

// Do runs op with exponential backoff. An *HTTPStatusError with a
// non-retryable status stops the loop immediately; other errors are treated
// as transient network failures.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = opts.InitialDelay
	expBackoff.Multiplier = opts.Multiplier
	expBackoff.MaxInterval = opts.MaxDelay
	expBackoff.Reset()

	operation := func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && !RetryableStatus(statusErr.StatusCode) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(opts.MaxRetries+1)), // includes the initial attempt
	)
}
