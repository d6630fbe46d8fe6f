// Package retry implements the bounded polling loops used while waiting on
// remote instances: a fixed number of attempts at a fixed interval, with a
// configurable outcome once the budget runs out.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
)

// Exhaustion selects what Do returns once every attempt has failed.
type Exhaustion int

const (
	// WarnAndContinue logs a warning and lets the caller proceed.
	WarnAndContinue Exhaustion = iota
	// Fail returns an error wrapping ErrExhausted.
	Fail
)

// ErrExhausted is wrapped by the error returned from a Fail policy.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy is a bounded retry budget.
type Policy struct {
	Attempts     int
	Interval     time.Duration
	OnExhaustion Exhaustion
}

// Condition is polled by Do. It returns true once the awaited state is
// reached. A returned error counts as a failed attempt unless it is a
// terminal reconcile error, which stops the loop immediately.
type Condition func(ctx context.Context) (bool, error)

// Do polls cond until it succeeds or the policy runs out of attempts.
// A policy with fewer than one attempt still polls once.
func (p Policy) Do(ctx context.Context, operation string, cond Condition) error {
	logger := log.FromContext(ctx).WithValues("operation", operation)

	attempts := max(p.Attempts, 1)
	var lastErr error
	tries := 0
	backoff := wait.Backoff{Duration: p.Interval, Factor: 1, Steps: attempts}

	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		tries++
		done, err := cond(ctx)
		if err != nil {
			if errors.Is(err, reconcile.TerminalError(nil)) {
				return false, err
			}
			lastErr = err
			logger.V(1).Info("Attempt failed", "attempt", tries, "error", err.Error())
			return false, nil
		}
		return done, nil
	})
	if err == nil {
		return nil
	}
	if !wait.Interrupted(err) || ctx.Err() != nil {
		return err
	}

	if p.OnExhaustion == WarnAndContinue {
		logger.Info("Retry budget exhausted, continuing", "attempts", tries)
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrExhausted, tries, lastErr)
	}
	return fmt.Errorf("%s: %w after %d attempts", operation, ErrExhausted, tries)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
