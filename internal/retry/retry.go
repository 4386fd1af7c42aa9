// Package retry provides a bounded retry policy for operations that can hit
// transient contention, such as deleting files another process still holds.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a fixed number of attempts with a constant pause between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy is three attempts one second apart.
var DefaultPolicy = Policy{Attempts: 3, Delay: time.Second}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. onRetry, if non-nil, is called before each pause.
// The returned error is the last one op produced.
func Do(ctx context.Context, p Policy, op func() error, onRetry func(attempt int, err error)) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(p.Attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	err := backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, b, notify)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
