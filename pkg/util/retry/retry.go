// Package retry wraps cenkalti/backoff with the option style used across
// this repository.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/pkg/log"
)

// Do executes fn with exponential backoff until it succeeds, the attempt
// budget is exhausted, or ctx is done. Errors wrapped with Unrecoverable
// stop the retry loop immediately.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.sleep
	b.MaxInterval = c.maxSleepTime
	// Retry forever until MaxRetries below kicks in; Do bounds attempts itself.
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if c.attempts > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.attempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	lg := log.Ctx(ctx)
	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		lg.RatedWarn(1, "retry func failed",
			zap.Int("retried", attempt),
			zap.Duration("nextInterval", next),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRecoverable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, notify)
}

// unrecoverableError marks an error that must not be retried.
type unrecoverableError struct {
	error
}

func (u unrecoverableError) Unwrap() error {
	return u.error
}

// Unrecoverable wraps err so the retry loop returns it without further
// attempts.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return unrecoverableError{err}
}

// IsRecoverable reports whether err may be retried.
func IsRecoverable(err error) bool {
	var u unrecoverableError
	return !errors.As(err, &u)
}
