// Package convergence propagates an uploaded artifact reference into
// external form state and checks that the value actually took effect.
package convergence

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/retry"
	"github.com/dmitrijs2005/gophupload/internal/logging"
)

// FormState is the external holder of the current image reference.
type FormState interface {
	SetImageRef(ctx context.Context, ref string) error
	ImageRef(ctx context.Context) (string, error)
}

const (
	DefaultSettle     = 50 * time.Millisecond
	DefaultStep       = 100 * time.Millisecond
	DefaultMaxRetries = 3
)

type Result struct {
	Converged bool
	// Attempts counts verified set calls, including the first.
	Attempts int
	// Warning is set when the reference was written without confirmation.
	Warning string
}

type Patcher struct {
	settle     time.Duration
	step       time.Duration
	maxRetries int
	sleep      retry.Sleeper
	logger     logging.Logger
}

type Option func(*Patcher)

func WithSleeper(s retry.Sleeper) Option { return func(p *Patcher) { p.sleep = s } }

func WithTimings(settle, step time.Duration, maxRetries int) Option {
	return func(p *Patcher) {
		p.settle, p.step, p.maxRetries = settle, step, maxRetries
	}
}

func NewPatcher(logger logging.Logger, opts ...Option) *Patcher {
	if logger == nil {
		logger = logging.Nop()
	}
	p := &Patcher{
		settle:     DefaultSettle,
		step:       DefaultStep,
		maxRetries: DefaultMaxRetries,
		sleep:      retry.Sleep,
		logger:     logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Patch writes ref and reads it back after a short settle delay. Mismatches
// are retried with a growing delay; when retries run out the value is
// written once more without verification and a warning is returned.
func (p *Patcher) Patch(ctx context.Context, fs FormState, ref string) (Result, error) {
	var res Result
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.step*time.Duration(attempt)); err != nil {
				return res, err
			}
		}
		res.Attempts++

		ok, err := p.setAndCheck(ctx, fs, ref)
		if err != nil && ctx.Err() != nil {
			return res, ctx.Err()
		}
		if ok {
			res.Converged = true
			return res, nil
		}
		p.logger.Warn(ctx, "form value did not converge", "attempt", res.Attempts, "ref", ref, "error", err)
	}

	if err := fs.SetImageRef(ctx, ref); err != nil {
		return res, fmt.Errorf("set image reference: %w", err)
	}
	res.Warning = fmt.Sprintf("the image was uploaded but the form could not confirm the new value after %d attempts", res.Attempts)
	return res, nil
}

func (p *Patcher) setAndCheck(ctx context.Context, fs FormState, ref string) (bool, error) {
	if err := fs.SetImageRef(ctx, ref); err != nil {
		return false, err
	}
	if err := p.sleep(ctx, p.settle); err != nil {
		return false, err
	}
	got, err := fs.ImageRef(ctx)
	if err != nil {
		return false, err
	}
	return got == ref, nil
}
