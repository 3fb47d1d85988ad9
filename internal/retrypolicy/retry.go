// Package retrypolicy provides a single exponential-backoff helper
// shared by the broker's independent backoff loops (spawn health
// waiting, process-kill verification, and credential sync retries).
// It takes a github.com/juju/clock.Clock so callers can drive it
// deterministically in tests with github.com/juju/clock/testclock.
package retrypolicy

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// ErrStop is a sentinel an Attempt can wrap (with fmt.Errorf("%w: ...",
// ErrStop) or errors.Join) to abort retrying immediately instead of
// burning through the remaining backoff schedule. Run unwraps the
// returned error with errors.Is and, on a match, returns it verbatim
// rather than substituting its own timeout error. Use this when an
// attempt can determine a failure is permanent (e.g. classified
// non-retryable) and further attempts would be pointless.
var ErrStop = errors.New("retrypolicy: stop retrying")

// Policy describes one exponential-backoff schedule.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Deadline     time.Duration
	Clock        clock.Clock
}

// Attempt is called once per try. It should return nil on success, or
// an error to trigger another backoff step. An error wrapping ErrStop
// aborts retrying immediately; Run returns that error to the caller
// rather than its usual timeout error.
type Attempt func(ctx context.Context) error

// Run executes fn repeatedly with exponential backoff between attempts
// until it returns nil, the deadline elapses, or ctx is cancelled.
// Run returns nil on success, ctx.Err() on cancellation, or a
// FamilyValidation/"Timeout"-tagged error when the deadline elapses
// first — callers that need a family-specific Timeout error (Spawn)
// wrap Run's error in their own family at the call site.
func (p Policy) Run(ctx context.Context, fn Attempt) error {
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	deadline := p.Clock.Now().Add(p.Deadline)
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrStop) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Clock.Now().After(deadline) {
			return errs.New(errs.FamilyValidation, "Timeout", "retry budget exhausted")
		}

		remaining := deadline.Sub(p.Clock.Now())
		if delay > remaining {
			delay = remaining
		}
		if delay < 0 {
			delay = 0
		}

		select {
		case <-p.Clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay && p.MaxDelay > 0 {
			delay = p.MaxDelay
		}
	}
}
