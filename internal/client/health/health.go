// Package health tracks per-strategy error counts and offers escalation to a
// simpler transport when a strategy becomes unhealthy.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/logging"
)

type Level string

const (
	Healthy   Level = "healthy"
	Degraded  Level = "degraded"
	Unhealthy Level = "unhealthy"
)

const UnhealthyThreshold = 3

type ComponentHealth struct {
	Strategy    strategy.Strategy
	ErrorCount  int
	LastError   string
	LastFailure time.Time
	LastSuccess time.Time
}

func (h ComponentHealth) Level() Level {
	switch {
	case h.ErrorCount >= UnhealthyThreshold:
		return Unhealthy
	case h.ErrorCount > 0:
		return Degraded
	default:
		return Healthy
	}
}

// Offer proposes running the next attempt with a simpler strategy.
type Offer struct {
	From   strategy.Strategy
	To     strategy.Strategy
	Reason string
}

// FailureKey identifies one failed attempt. Recording the same key twice
// counts once. Generation changes whenever the owner's attempt numbering
// restarts.
type FailureKey struct {
	TaskID     string
	Generation int
	Attempt    int
}

func (k FailureKey) String() string {
	return fmt.Sprintf("%s#%d.%d", k.TaskID, k.Generation, k.Attempt)
}

type Suspender interface {
	Suspended() bool
}

type Config struct {
	AutoFallback      bool
	AutoFallbackDelay time.Duration
}

// Controller is the only writer of component health.
type Controller struct {
	mu sync.Mutex

	health         map[strategy.Strategy]*ComponentHealth
	applied        map[FailureKey]struct{}
	lastSuccessful strategy.Strategy
	pending        map[string]*time.Timer

	cfg       Config
	suspender Suspender
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	logger    logging.Logger
}

func NewController(cfg Config, suspender Suspender, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{
		health:    make(map[strategy.Strategy]*ComponentHealth),
		applied:   make(map[FailureKey]struct{}),
		pending:   make(map[string]*time.Timer),
		cfg:       cfg,
		suspender: suspender,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		logger:    logger,
	}
}

func (c *Controller) suspended() bool {
	return c.suspender != nil && c.suspender.Suspended()
}

func (c *Controller) entry(s strategy.Strategy) *ComponentHealth {
	h, ok := c.health[s]
	if !ok {
		h = &ComponentHealth{Strategy: s}
		c.health[s] = h
	}
	return h
}

// RecordFailure counts a failed attempt of strategy s and returns an offer
// when s is unhealthy and has a fallback. Updates are skipped while the
// suspender is active.
func (c *Controller) RecordFailure(ctx context.Context, key FailureKey, s strategy.Strategy, cause error) (Offer, bool) {
	if c.suspended() {
		c.logger.Warn(ctx, "health update suppressed", "strategy", s, "key", key.String())
		return Offer{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.applied[key]; !dup {
		c.applied[key] = struct{}{}
		h := c.entry(s)
		h.ErrorCount++
		h.LastFailure = c.now()
		if cause != nil {
			h.LastError = cause.Error()
		}
		c.logger.Info(ctx, "strategy failure recorded", "strategy", s, "errors", h.ErrorCount, "level", h.Level())
	}
	return c.offerLocked(s)
}

// RecordSuccess resets the error count of s only.
func (c *Controller) RecordSuccess(ctx context.Context, s strategy.Strategy) {
	if c.suspended() {
		c.logger.Warn(ctx, "health update suppressed", "strategy", s)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.entry(s)
	h.ErrorCount = 0
	h.LastSuccess = c.now()
	c.lastSuccessful = s
}

// Offer returns the current escalation offer for s, if any.
func (c *Controller) Offer(s strategy.Strategy) (Offer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offerLocked(s)
}

func (c *Controller) offerLocked(s strategy.Strategy) (Offer, bool) {
	h, ok := c.health[s]
	if !ok || h.Level() != Unhealthy {
		return Offer{}, false
	}
	to := strategy.Fallback(s)
	if to == strategy.None {
		return Offer{}, false
	}
	return Offer{
		From:   s,
		To:     to,
		Reason: fmt.Sprintf("%s uploads failed %d times in a row", s, h.ErrorCount),
	}, true
}

func (c *Controller) Health(s strategy.Strategy) ComponentHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.health[s]; ok {
		return *h
	}
	return ComponentHealth{Strategy: s}
}

// Snapshot returns a copy of all tracked strategies.
func (c *Controller) Snapshot() map[strategy.Strategy]ComponentHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[strategy.Strategy]ComponentHealth, len(c.health))
	for s, h := range c.health {
		out[s] = *h
	}
	return out
}

func (c *Controller) LastSuccessful() strategy.Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccessful
}

// Forget drops the failure keys recorded for taskID. Error counts are kept.
func (c *Controller) Forget(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.applied {
		if k.TaskID == taskID {
			delete(c.applied, k)
		}
	}
}

// Reset forgets the error count of s.
func (c *Controller) Reset(s strategy.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.health, s)
}

// ScheduleFallback arms an automatic fallback under key. run is called after
// the configured delay unless CancelFallback(key) is called first. It returns
// false when auto-fallback is disabled, suspended or already pending.
func (c *Controller) ScheduleFallback(ctx context.Context, key string, offer Offer, run func()) bool {
	if !c.cfg.AutoFallback || offer.To == strategy.None {
		return false
	}
	if c.suspended() {
		c.logger.Warn(ctx, "automatic fallback suppressed", "key", key, "to", offer.To)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[key]; ok {
		return false
	}

	c.pending[key] = c.afterFunc(c.cfg.AutoFallbackDelay, func() {
		c.mu.Lock()
		_, still := c.pending[key]
		delete(c.pending, key)
		c.mu.Unlock()

		if !still || c.suspended() {
			return
		}
		run()
	})
	c.logger.Info(ctx, "automatic fallback scheduled", "key", key, "from", offer.From, "to", offer.To,
		"delay", c.cfg.AutoFallbackDelay)
	return true
}

// CancelFallback stops a pending automatic fallback.
func (c *Controller) CancelFallback(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.pending[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(c.pending, key)
	return true
}

func (c *Controller) FallbackPending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}
