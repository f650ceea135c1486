// Package retry is the resilience decorator callers apply around storage
// operations that may fail transiently. The gateway itself never retries;
// the choice (and the wait) always belongs to the caller.
//
// Every failure is treated as transient: there is no classification of
// retriable vs non-retriable errors. That is a documented simplification;
// a validation error will simply fail the same way three times.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"
)

const (
	// DefaultMaxAttempts bounds the number of invocations, first try
	// included.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the wait before the second attempt; each
	// further wait doubles.
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps the doubling.
	DefaultMaxDelay = 10 * time.Second
)

// Options tune one Do call. The zero value means the defaults above.
// Options hold no state; the package is a pure higher-order function.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Clock defaults to the wall clock. Tests inject a testclock to
	// observe the exact waits.
	Clock clock.Clock

	// Notify, when set, observes each failed attempt.
	Notify func(err error, attempt int)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}

// Do invokes op, retrying on failure with exponential backoff: the wait
// before attempt n+1 is min(BaseDelay * 2^(n-1), MaxDelay), no jitter.
// After exhausting MaxAttempts the returned error wraps the last
// underlying error and states the attempt count. Context cancellation
// aborts the wait between attempts.
func Do(ctx context.Context, op func() error, opts Options) error {
	o := opts.withDefaults()

	err := jujuretry.Call(jujuretry.CallArgs{
		Func:        op,
		Attempts:    o.MaxAttempts,
		Delay:       o.BaseDelay,
		MaxDelay:    o.MaxDelay,
		BackoffFunc: jujuretry.DoubleDelay,
		Clock:       o.Clock,
		Stop:        ctx.Done(),
		NotifyFunc:  o.Notify,
	})
	if err == nil {
		return nil
	}
	if jujuretry.IsAttemptsExceeded(err) {
		return fmt.Errorf("failed after %d attempts: %w", o.MaxAttempts, jujuretry.LastError(err))
	}
	if jujuretry.IsRetryStopped(err) {
		return fmt.Errorf("retry stopped: %w", ctx.Err())
	}
	return err
}
