// Package retry retries operations that failed with transient store errors.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/errs"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Notify, if set, is called before each retry.
	Notify func(err error, wait time.Duration)
}

// FromConfig builds a Policy from engine.retry settings.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialInterval) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxInterval) * time.Millisecond,
	}
}

// NoRetry runs the operation once.
var NoRetry = Policy{MaxAttempts: 1}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0 // bounded by attempts

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, fails with a non-transient error, or the policy
// is exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil || errs.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = backoff.Notify(p.Notify)
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
