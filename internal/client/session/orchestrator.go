package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/convergence"
	"github.com/dmitrijs2005/gophupload/internal/client/credential"
	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/governor"
	"github.com/dmitrijs2005/gophupload/internal/client/health"
	"github.com/dmitrijs2005/gophupload/internal/client/ledger"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/notify"
	"github.com/dmitrijs2005/gophupload/internal/client/retry"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/client/validation"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/samber/lo"
)

var (
	ErrNoFallback = errors.New("no simpler strategy to fall back to")
	ErrBusy       = errors.New("upload is already running")
	ErrCleared    = errors.New("upload was cleared")
)

// headBytes are sniffed by the validator.
const headBytes = 3072

// Deps are the collaborators of an Orchestrator. Transport, Prober and
// Credentials are required; the rest get defaults.
type Deps struct {
	Transport   Transport
	Prober      Prober
	Credentials credential.Source
	Ledger      *ledger.Ledger
	Health      *health.Controller
	Governor    *governor.Governor
	Notifier    notify.Notifier
	Form        convergence.FormState
	Patcher     *convergence.Patcher
	Optimizer   Optimizer
	Logger      logging.Logger
	Sleeper     retry.Sleeper
}

type Orchestrator struct {
	cfg       Config
	selector  *strategy.Selector
	encoder   *chunker.Encoder
	transport Transport
	prober    Prober
	creds     credential.Source
	ledger    *ledger.Ledger
	health    *health.Controller
	governor  *governor.Governor
	notifier  notify.Notifier
	form      convergence.FormState
	patcher   *convergence.Patcher
	optimizer Optimizer
	logger    logging.Logger
	sleep     retry.Sleeper
	now       func() time.Time

	mu          sync.Mutex
	sessions    map[string]*Session
	warnedTrips int
}

func New(cfg Config, d Deps) (*Orchestrator, error) {
	switch {
	case d.Transport == nil:
		return nil, errors.New("session: transport is required")
	case d.Prober == nil:
		return nil, errors.New("session: prober is required")
	case d.Credentials == nil:
		return nil, errors.New("session: credential source is required")
	}

	cfg = cfg.withDefaults()
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Ledger == nil {
		d.Ledger = ledger.New(0, 0)
	}
	if d.Governor == nil {
		d.Governor = governor.New(0, 0)
	}
	if d.Health == nil {
		d.Health = health.NewController(health.Config{}, d.Governor, d.Logger)
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}
	if d.Patcher == nil {
		d.Patcher = convergence.NewPatcher(d.Logger)
	}
	if d.Sleeper == nil {
		d.Sleeper = retry.Sleep
	}

	return &Orchestrator{
		cfg:       cfg,
		selector:  strategy.NewSelector(cfg.ProgressiveThreshold),
		encoder:   chunker.NewEncoder(cfg.ReadTimeout, d.Logger),
		transport: d.Transport,
		prober:    d.Prober,
		creds:     d.Credentials,
		ledger:    d.Ledger,
		health:    d.Health,
		governor:  d.Governor,
		notifier:  d.Notifier,
		form:      d.Form,
		patcher:   d.Patcher,
		optimizer: d.Optimizer,
		logger:    d.Logger,
		sleep:     d.Sleeper,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}, nil
}

// Upload validates sources, selects a strategy by size and count and runs
// the upload to completion. The returned tasks cover every source,
// including ones rejected by validation.
func (o *Orchestrator) Upload(ctx context.Context, sources ...chunker.Source) ([]models.Task, error) {
	sizes := lo.Map(sources, func(s chunker.Source, _ int) int64 { return s.Size() })
	st, err := o.selector.Select(sizes)
	if err != nil {
		return nil, err
	}
	return o.UploadWith(ctx, o.bias(ctx, st), sources...)
}

// bias replaces an unhealthy selection with the last strategy that worked
// when that one is further down the fallback chain.
func (o *Orchestrator) bias(ctx context.Context, st strategy.Strategy) strategy.Strategy {
	if o.health.Health(st).Level() != health.Unhealthy {
		return st
	}
	last := o.health.LastSuccessful()
	if !strategy.Simpler(last, st) {
		return st
	}
	o.logger.Info(ctx, "starting with last successful strategy", "selected", st, "strategy", last,
		"errors", o.health.Health(st).ErrorCount)
	return last
}

// UploadWith runs the upload with a fixed strategy. Non-batch strategies
// upload several sources one after another.
func (o *Orchestrator) UploadWith(ctx context.Context, st strategy.Strategy, sources ...chunker.Source) ([]models.Task, error) {
	if len(sources) == 0 {
		return nil, strategy.ErrEmptySelection
	}
	if st != strategy.Batch && len(sources) > 1 {
		var tasks []models.Task
		var errs []error
		for _, src := range sources {
			t, err := o.UploadWith(ctx, st, src)
			tasks = append(tasks, t...)
			errs = append(errs, err)
		}
		return tasks, errors.Join(errs...)
	}

	o.recordUpdate(ctx)
	s := o.newSession(st)
	rejected, verr := o.admit(ctx, s, sources)

	var runErr error
	if len(s.items) > 0 {
		o.register(s)
		runErr = s.run(ctx)
		o.patchForm(ctx, s)
	}
	return append(s.snapshot(), rejected...), errors.Join(verr, runErr)
}

// admit validates sources into s and returns tasks for rejected ones.
func (o *Orchestrator) admit(ctx context.Context, s *Session, sources []chunker.Source) ([]models.Task, error) {
	profile := o.cfg.Profile
	if s.strategy == strategy.Emergency {
		profile = validation.Emergency
	}

	var rejected []models.Task
	var errs []error
	for _, src := range sources {
		head, err := chunker.Head(src, headBytes)
		if err != nil {
			s.logger.Warn(ctx, "could not read file head", "file", src.Name(), "error", err)
		}
		res := validation.Validate(validation.File{Name: src.Name(), Size: src.Size(), Head: head}, profile)

		task := models.NewTask(src.Name(), src.Size(), res.MimeType, s.strategy, o.maxRetries(), o.now())
		for _, w := range res.Warnings {
			task.AddWarning(w)
		}

		if res.Valid {
			s.items = append(s.items, &item{task: task, src: src})
			continue
		}

		fe := failure.New(res.Category, errors.New(res.Error)).InPhase(string(models.PhaseValidating))
		st := failure.Classify(fe)
		task.Fail(st, o.now())
		o.ledger.Put(*task)
		o.notifier.Notify(ctx, notify.FromFailure(task.ID, string(models.PhaseValidating), st))
		rejected = append(rejected, task.Clone())
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), fe))
	}
	return rejected, errors.Join(errs...)
}

func (o *Orchestrator) maxRetries() int {
	if o.cfg.MaxRetries > 0 {
		return o.cfg.MaxRetries
	}
	return retry.DefaultMaxRetries
}

func (o *Orchestrator) register(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, it := range s.items {
		o.sessions[it.task.ID] = s
	}
}

func (o *Orchestrator) session(taskID string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, common.ErrorNotFound)
	}
	return s, nil
}

// Retry manually re-runs the failed files of the task's session. Exhausted
// sessions are left untouched and return ErrRetriesExhausted until Clear.
func (o *Orchestrator) Retry(ctx context.Context, taskID string) ([]models.Task, error) {
	s, err := o.session(taskID)
	if err != nil {
		return nil, err
	}
	if s.finished() {
		return s.snapshot(), nil
	}
	if !s.tracker.ManualRetry() {
		return s.snapshot(), common.ErrRetriesExhausted
	}
	o.health.CancelFallback(taskID)
	s.reopen()

	err = s.run(ctx)
	o.patchForm(ctx, s)
	return s.snapshot(), err
}

// Clear resets the retry counters of the task's session and stops any
// pending automatic retry or fallback. An in-flight request is not
// interrupted.
func (o *Orchestrator) Clear(ctx context.Context, taskID string) error {
	s, err := o.session(taskID)
	if err != nil {
		return err
	}
	s.clear(ctx)
	for _, it := range s.items {
		o.health.CancelFallback(it.task.ID)
	}
	return nil
}

// Escalate re-runs the task's file with the next simpler strategy.
func (o *Orchestrator) Escalate(ctx context.Context, taskID string) ([]models.Task, error) {
	s, err := o.session(taskID)
	if err != nil {
		return nil, err
	}
	it := s.item(taskID)
	if it == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, common.ErrorNotFound)
	}

	to := strategy.Fallback(s.strategy)
	if offer, ok := o.health.Offer(s.strategy); ok {
		to = offer.To
	}
	if to == strategy.None {
		return nil, ErrNoFallback
	}
	o.health.CancelFallback(taskID)

	o.logger.Info(ctx, "escalating upload", "task_id", taskID, "from", s.strategy, "to", to)
	return o.UploadWith(ctx, to, it.src)
}

// CancelFallback stops a pending automatic fallback of a task.
func (o *Orchestrator) CancelFallback(taskID string) bool {
	return o.health.CancelFallback(taskID)
}

func (o *Orchestrator) Task(id string) (models.Task, error) {
	return o.ledger.Get(id)
}

func (o *Orchestrator) History() []models.Task {
	return o.ledger.History()
}

func (o *Orchestrator) Health() map[strategy.Strategy]health.ComponentHealth {
	return o.health.Snapshot()
}

// ResetGovernor lifts a tripped activity governor.
func (o *Orchestrator) ResetGovernor() {
	o.governor.Reset()
}

// Prune forgets finished tasks past the ledger retention window.
func (o *Orchestrator) Prune() int {
	n := o.ledger.Prune()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, s := range o.sessions {
		if _, err := o.ledger.Get(id); err != nil {
			delete(o.sessions, id)
			o.health.Forget(s.key())
		}
	}
	return n
}

// recordUpdate counts one orchestration state update and surfaces a warning
// the first time the governor trips.
func (o *Orchestrator) recordUpdate(ctx context.Context) {
	if o.governor.Record() {
		return
	}

	o.mu.Lock()
	trips := o.governor.Trips()
	warn := trips > o.warnedTrips
	o.warnedTrips = trips
	o.mu.Unlock()

	if warn {
		o.logger.Warn(ctx, "activity governor tripped")
		o.notifier.Notify(ctx, notify.Notification{
			Severity: notify.SeverityWarning,
			Title:    "Automatic recovery paused",
			Message:  "too many upload state changes in a short time; automatic retries and fallbacks are paused",
			Suggestions: []string{
				"Wait a moment and retry the upload manually",
			},
		})
	}
}

// patchForm writes the reference into form state when the session produced
// exactly one verified reference.
func (o *Orchestrator) patchForm(ctx context.Context, s *Session) {
	if o.form == nil {
		return
	}
	verified := s.verifiedItems()
	if len(verified) != 1 {
		return
	}
	it := verified[0]

	res, err := o.patcher.Patch(ctx, o.form, it.ref)
	switch {
	case err != nil:
		s.warn(ctx, it, fmt.Sprintf("the form could not be updated with the uploaded image: %v", err))
	case res.Warning != "":
		s.warn(ctx, it, res.Warning)
	}
}

func (o *Orchestrator) scheduleFallback(ctx context.Context, s *Session, offer health.Offer) {
	bg := context.WithoutCancel(ctx)
	for _, it := range s.failedItems() {
		id := it.task.ID
		scheduled := o.health.ScheduleFallback(ctx, id, offer, func() {
			if _, err := o.Escalate(bg, id); err != nil {
				o.logger.Warn(bg, "automatic fallback failed", "task_id", id, "error", err)
			}
		})
		if !scheduled {
			continue
		}
		o.recordUpdate(ctx)
		o.notifier.Notify(ctx, notify.Notification{
			Severity: notify.SeverityInfo,
			TaskID:   id,
			Title:    "Switching upload mode",
			Message:  fmt.Sprintf("retrying %s with the %s uploader shortly; cancel to keep the current mode", it.task.FileName, offer.To),
		})
	}
}
