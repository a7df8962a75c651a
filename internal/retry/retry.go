// Package retry provides the retrying-operation utility shared by the query
// executor and the state store. Callers compose it rather than inherit it:
// each wraps its operations with Do and supplies its own notion of which
// errors are transient.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts uint64
	// Base is the wait before the first retry; it doubles on every retry.
	Base time.Duration
	// Max caps a single wait.
	Max time.Duration
}

// DefaultPolicy is three attempts with exponential backoff of 2s, 4s (capped at 8s).
var DefaultPolicy = Policy{Attempts: 3, Base: 2 * time.Second, Max: 8 * time.Second}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

func (p Policy) backoff() goretry.Backoff {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	b := goretry.NewExponential(base)
	if p.Max > 0 {
		b = goretry.WithCappedDuration(p.Max, b)
	}
	return goretry.WithMaxRetries(attempts-1, b)
}

// Do runs op until it succeeds, returns an error the classifier rejects, the
// attempts are exhausted, or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, transient Classifier, op func(ctx context.Context) error) error {
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && transient != nil && transient(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, transient Classifier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, transient, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
