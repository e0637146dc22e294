package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/logging"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the timer-based Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Suspender reports whether automatic recovery is currently suspended.
type Suspender interface {
	Suspended() bool
}

// Event describes a scheduled automatic retry.
type Event struct {
	Attempt int
	Delay   time.Duration
	State   failure.RecoveryState
	Err     error
}

type Engine struct {
	sleep     Sleeper
	suspender Suspender
	onRetry   func(context.Context, Event)
	logger    logging.Logger
}

type Option func(*Engine)

func WithSleeper(s Sleeper) Option { return func(e *Engine) { e.sleep = s } }

// WithSuspender lets an activity governor veto automatic retries.
func WithSuspender(s Suspender) Option { return func(e *Engine) { e.suspender = s } }

// WithRetryHook is called before every automatic retry wait.
func WithRetryHook(fn func(context.Context, Event)) Option {
	return func(e *Engine) { e.onRetry = fn }
}

func NewEngine(logger logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Engine{sleep: Sleep, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Do runs op until it succeeds, fails terminally or exhausts the tracker.
// The attempt number passed to op counts from 1 and includes the initial
// attempt. A terminal tracker returns its last error without calling op.
func (e *Engine) Do(ctx context.Context, tr *Tracker, op func(ctx context.Context, attempt int) error) error {
	for {
		attempt, ok := tr.begin()
		if !ok {
			return terminalError(tr, attempt)
		}

		err := op(ctx, attempt)
		if err == nil {
			tr.succeed()
			return nil
		}

		st, delay, again := tr.fail(err)
		if !again {
			e.logger.Warn(ctx, "giving up", "attempt", attempt, "category", st.Category, "error", err)
			if tr.Exhausted() {
				return fmt.Errorf("%w after %d attempts: %w", common.ErrRetriesExhausted, attempt, err)
			}
			return err
		}

		if e.suspender != nil && e.suspender.Suspended() {
			e.logger.Warn(ctx, "automatic retry suspended", "attempt", attempt, "category", st.Category)
			return fmt.Errorf("%w: %w", common.ErrGovernorTripped, err)
		}

		if e.onRetry != nil {
			e.onRetry(ctx, Event{Attempt: attempt, Delay: delay, State: st, Err: err})
		}
		e.logger.Info(ctx, "retrying", "attempt", attempt, "delay", delay, "category", st.Category)

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func terminalError(tr *Tracker, attempts int) error {
	last := tr.LastError()
	switch {
	case last == nil:
		return fmt.Errorf("%w after %d attempts", common.ErrRetriesExhausted, attempts)
	case tr.Exhausted():
		return fmt.Errorf("%w after %d attempts: %w", common.ErrRetriesExhausted, attempts, last)
	default:
		return last
	}
}
