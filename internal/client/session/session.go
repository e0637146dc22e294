package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/health"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/notify"
	"github.com/dmitrijs2005/gophupload/internal/client/retry"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/google/uuid"
)

// item is one file of a session.
type item struct {
	task *models.Task
	src  chunker.Source

	encoded string
	chunks  *chunker.ChunkSet

	ref string
	err *failure.Error
	// done: transport finished and verification ran, verified or not.
	done     bool
	verified bool
	// final: failed with a category that is not retried automatically.
	final bool
}

// Session drives one selection of files with one strategy.
type Session struct {
	id       string
	strategy strategy.Strategy
	mode     mode
	items    []*item
	tracker  *retry.Tracker
	o        *Orchestrator
	logger   logging.Logger

	mu    sync.Mutex // guards item state and gen
	runMu sync.Mutex
	stop  chan struct{}
	// gen counts clears; attempt numbers restart after each one.
	gen int
}

func (o *Orchestrator) newSession(st strategy.Strategy) *Session {
	id := uuid.NewString()
	logger := o.logger.With("session_id", id, "strategy", st.String())
	if st == strategy.Emergency {
		logger = logger.With("mode", "emergency")
	}
	return &Session{
		id:       id,
		strategy: st,
		mode:     modeFor(st),
		tracker:  retry.NewTracker(o.maxRetries()),
		o:        o,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// key identifies the session for health bookkeeping. Single-file sessions
// use the task id.
func (s *Session) key() string {
	if len(s.items) == 1 {
		return s.items[0].task.ID
	}
	return s.id
}

func (s *Session) run(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	defer s.runMu.Unlock()

	engine := retry.NewEngine(s.logger,
		retry.WithSleeper(s.sleep),
		retry.WithSuspender(s.o.governor),
		retry.WithRetryHook(s.onRetry),
	)
	err := engine.Do(ctx, s.tracker, s.attempt)
	s.finish(ctx, err)
	return err
}

// sleep waits like the orchestrator's sleeper but also returns early when
// the session is cleared.
func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.o.sleep(ctx, d); err != nil {
		select {
		case <-stop:
			return ErrCleared
		default:
			return err
		}
	}
	return nil
}

func (s *Session) attempt(ctx context.Context, n int) error {
	pending := s.pending()
	s.o.recordUpdate(ctx)
	for _, it := range pending {
		s.mu.Lock()
		it.task.BeginAttempt(n, s.o.now())
		it.err, it.ref, it.encoded, it.chunks = nil, "", "", nil
		s.mu.Unlock()
		s.publish(ctx, it)
	}

	token, err := s.o.creds.Token(ctx)
	if err != nil {
		for _, it := range pending {
			s.fail(ctx, it, err)
		}
		return s.settle(ctx, n, pending)
	}
	for _, it := range pending {
		s.advance(ctx, it, models.PhaseValidating, models.PhaseProgress[models.PhaseValidating])
	}

	s.mode.prepare(ctx, s, pending)
	if live := s.live(pending); len(live) > 0 {
		s.mode.send(ctx, s, token, live)
	}
	for _, it := range s.live(pending) {
		s.verify(ctx, it)
	}
	return s.settle(ctx, n, pending)
}

// prepare reads and, when configured, optimizes one file.
func (s *Session) prepare(ctx context.Context, it *item) {
	s.advance(ctx, it, models.PhaseReading, models.PhaseProgress[models.PhaseReading])
	if err := s.mode.encode(ctx, s, it, it.src); err != nil {
		s.fail(ctx, it, err)
		return
	}
	s.advance(ctx, it, models.PhaseReading, 20)

	if s.strategy != strategy.Emergency {
		s.optimize(ctx, it)
	}
}

func (s *Session) optimize(ctx context.Context, it *item) {
	cfg := s.o.cfg
	if !cfg.OptimizeEnabled || s.o.optimizer == nil || it.src.Size() <= cfg.OptimizeAboveBytes {
		return
	}
	s.advance(ctx, it, models.PhaseOptimizing, models.PhaseProgress[models.PhaseOptimizing])

	out, err := s.o.optimizer.Optimize(ctx, it.src)
	if err != nil {
		s.warn(ctx, it, fmt.Sprintf("image optimization skipped: %v", err))
		return
	}
	if out == nil || out == it.src {
		return
	}
	if err := s.mode.encode(ctx, s, it, out); err != nil {
		s.warn(ctx, it, fmt.Sprintf("optimized image could not be read, sending the original: %v", err))
		_ = s.mode.encode(ctx, s, it, it.src)
	}
}

// accept records a server reference; empty references are a processing
// failure.
func (s *Session) accept(ctx context.Context, it *item, ref string) {
	s.advance(ctx, it, models.PhaseServerProcessing, models.PhaseProgress[models.PhaseServerProcessing])
	if isBlank(ref) {
		s.fail(ctx, it, failure.New(failure.CategoryProcessing, common.ErrEmptyReference))
		return
	}
	s.mu.Lock()
	it.ref = ref
	it.task.Reference = ref
	s.mu.Unlock()
}

func (s *Session) verify(ctx context.Context, it *item) {
	if it.ref == "" {
		return
	}
	s.advance(ctx, it, models.PhaseVerifying, models.PhaseProgress[models.PhaseVerifying])

	res := s.o.prober.Verify(ctx, it.ref)
	s.mu.Lock()
	it.done = true
	it.verified = res.Verified
	if res.Verified {
		it.task.Verification = models.VerificationVerified
	} else {
		it.task.Verification = models.VerificationUnverified
	}
	s.mu.Unlock()

	if res.Verified {
		s.advance(ctx, it, models.PhaseComplete, models.PhaseProgress[models.PhaseComplete])
		return
	}
	s.logger.Warn(ctx, "upload not verified", "task_id", it.task.ID, "ref", it.ref, "attempts", res.Attempts, "error", res.Err)
	s.publish(ctx, it)
}

// settle turns the outcome of attempt n into the error seen by the retry
// engine.
func (s *Session) settle(ctx context.Context, n int, pending []*item) error {
	s.o.recordUpdate(ctx)

	var failed []*item
	succeeded := 0
	for _, it := range pending {
		switch {
		case it.err != nil:
			failed = append(failed, it)
		case it.done:
			succeeded++
		}
	}

	if succeeded > 0 {
		s.o.health.RecordSuccess(ctx, s.strategy)
	}
	if len(failed) == 0 {
		return nil
	}

	var retryable, terminal *failure.Error
	for _, it := range failed {
		if failure.Retryable(it.err.Category) {
			if retryable == nil {
				retryable = it.err
			}
			continue
		}
		s.mu.Lock()
		it.final = true
		s.mu.Unlock()
		if terminal == nil {
			terminal = it.err
		}
	}

	// only transport-side failures count against the strategy
	if succeeded == 0 && retryable != nil {
		s.mu.Lock()
		key := health.FailureKey{TaskID: s.key(), Generation: s.gen, Attempt: n}
		s.mu.Unlock()
		s.o.health.RecordFailure(ctx, key, s.strategy, retryable)
	}

	err := retryable
	if err == nil {
		err = terminal
	}
	if s.strategy == strategy.Batch && succeeded == 0 {
		return fmt.Errorf("%w: %w", common.ErrNoBatchResults, err)
	}
	return err
}

func (s *Session) onRetry(ctx context.Context, ev retry.Event) {
	s.o.recordUpdate(ctx)
	for _, it := range s.failedItems() {
		if it.final {
			continue
		}
		n := notify.FromFailure(it.task.ID, string(it.task.LastError.Phase), ev.State)
		n.Title = "Retrying upload"
		n.Message = fmt.Sprintf("%s: attempt %d failed (%s), retrying in %s", it.task.FileName, ev.Attempt, ev.State.Message, ev.Delay)
		s.o.notifier.Notify(ctx, n)
	}
}

// finish reports the final state of every item after the engine returns.
func (s *Session) finish(ctx context.Context, runErr error) {
	for _, it := range s.items {
		if it.done && !it.verified && it.task.Phase != models.PhaseFailed {
			s.unverified(ctx, it)
		}
	}
	if runErr == nil && len(s.verifiedItems()) == len(s.items) {
		s.tracker.Clear()
	}
	if runErr == nil || errors.Is(runErr, ErrCleared) {
		return
	}

	suspended := errors.Is(runErr, common.ErrGovernorTripped)
	for _, it := range s.failedItems() {
		s.mu.Lock()
		it.task.RetryCount = s.tracker.RetryCount()
		s.mu.Unlock()
		s.publish(ctx, it)

		st := failure.Classify(it.err)
		st.CanRetry = st.CanRetry && !it.final && s.tracker.CanRetry()
		n := notify.FromFailure(it.task.ID, string(it.err.Phase), st)
		if suspended {
			n.Title = "Automatic retry paused"
		}
		s.o.notifier.Notify(ctx, n)
	}

	if offer, ok := s.o.health.Offer(s.strategy); ok {
		s.o.notifier.Notify(ctx, notify.Notification{
			Severity: notify.SeverityInfo,
			Title:    "Try a simpler upload mode",
			Message:  fmt.Sprintf("%s; the %s uploader may work better", offer.Reason, offer.To),
		})
		s.o.scheduleFallback(ctx, s, offer)
	}
}

// unverified reports "uploaded but unverified": the reference is kept and
// the task fails without being retried.
func (s *Session) unverified(ctx context.Context, it *item) {
	msg := fmt.Sprintf("%s was uploaded but could not be verified", it.task.FileName)
	st := failure.RecoveryState{
		Category:      failure.CategoryProcessing,
		RetryStrategy: failure.RetryNone,
		Suggestions:   failure.Suggestions(failure.CategoryProcessing),
		Message:       msg,
	}
	s.mu.Lock()
	it.task.Fail(st, s.o.now())
	s.mu.Unlock()
	s.publish(ctx, it)

	s.o.notifier.Notify(ctx, notify.Notification{
		Severity:    notify.SeverityWarning,
		TaskID:      it.task.ID,
		Title:       "Uploaded but unverified",
		Message:     msg,
		Category:    failure.CategoryProcessing,
		Phase:       string(models.PhaseVerifying),
		Suggestions: st.Suggestions,
	})
}

func (s *Session) advance(ctx context.Context, it *item, p models.Phase, pct int) {
	s.mu.Lock()
	err := it.task.Advance(p, pct, s.o.now())
	s.mu.Unlock()
	if err != nil {
		s.logger.Debug(ctx, "phase not advanced", "task_id", it.task.ID, "error", err)
		return
	}
	if s.strategy == strategy.Emergency {
		s.logger.Debug(ctx, "phase", "task_id", it.task.ID, "phase", p, "percentage", pct)
	}
	s.publish(ctx, it)
}

func (s *Session) fail(ctx context.Context, it *item, err error) {
	s.mu.Lock()
	fe := failure.AsError(err).InPhase(string(it.task.Phase))
	it.err = fe
	it.task.Fail(failure.Classify(fe), s.o.now())
	s.mu.Unlock()

	s.logger.Warn(ctx, "upload step failed", "task_id", it.task.ID, "phase", fe.Phase, "category", fe.Category, "error", err)
	s.publish(ctx, it)
}

func (s *Session) warn(ctx context.Context, it *item, msg string) {
	s.mu.Lock()
	it.task.AddWarning(msg)
	s.mu.Unlock()
	s.publish(ctx, it)
	s.o.notifier.Notify(ctx, notify.Notification{
		Severity: notify.SeverityWarning,
		TaskID:   it.task.ID,
		Title:    "Upload warning",
		Message:  msg,
	})
}

func (s *Session) publish(ctx context.Context, it *item) {
	s.mu.Lock()
	snap := it.task.Clone()
	s.mu.Unlock()

	s.o.ledger.Put(snap)
	if s.o.cfg.OnProgress != nil {
		s.o.cfg.OnProgress(snap)
	}
}

// clear resets counters and interrupts a pending retry wait.
func (s *Session) clear(ctx context.Context) {
	s.mu.Lock()
	close(s.stop)
	s.stop = make(chan struct{})
	s.gen++
	s.mu.Unlock()

	s.tracker.Clear()
	for _, it := range s.items {
		s.mu.Lock()
		it.task.RetryCount = 0
		s.mu.Unlock()
		s.publish(ctx, it)
	}
	s.logger.Info(ctx, "session cleared")
}

// reopen makes terminally failed items eligible for a manual retry.
func (s *Session) reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if !it.done {
			it.final = false
		}
	}
}

func (s *Session) pending() []*item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*item
	for _, it := range s.items {
		if !it.done && !it.final {
			out = append(out, it)
		}
	}
	return out
}

func (s *Session) live(items []*item) []*item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*item
	for _, it := range items {
		if it.err == nil {
			out = append(out, it)
		}
	}
	return out
}

func (s *Session) failedItems() []*item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*item
	for _, it := range s.items {
		if it.err != nil && !it.done {
			out = append(out, it)
		}
	}
	return out
}

func (s *Session) verifiedItems() []*item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*item
	for _, it := range s.items {
		if it.done && it.verified {
			out = append(out, it)
		}
	}
	return out
}

func (s *Session) item(taskID string) *item {
	for _, it := range s.items {
		if it.task.ID == taskID {
			return it
		}
	}
	return nil
}

// finished reports whether every item reached verification.
func (s *Session) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if !it.done {
			return false
		}
	}
	return true
}

func (s *Session) snapshot() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, len(s.items))
	for i, it := range s.items {
		out[i] = it.task.Clone()
	}
	return out
}
