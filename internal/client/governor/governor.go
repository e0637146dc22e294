// Package governor bounds runaway feedback loops by counting orchestration
// state updates per time window and suspending automatic recovery when the
// rate gets too high.
package governor

import (
	"sync"
	"time"
)

const (
	DefaultThreshold = 12
	DefaultWindow    = time.Second
)

// Governor is a fixed-window rate breaker. It trips when a window sees more
// than threshold updates and untrips when a later window completes at or
// below threshold, or on Reset.
type Governor struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	now       func() time.Time

	windowStart time.Time
	count       int
	tripped     bool
	trips       int

	onTrip    func(count int)
	onRecover func()
}

type Option func(*Governor)

func WithClock(now func() time.Time) Option { return func(g *Governor) { g.now = now } }

// WithTripHook is called, outside the lock, each time the governor trips.
func WithTripHook(fn func(count int)) Option { return func(g *Governor) { g.onTrip = fn } }

func WithRecoverHook(fn func()) Option { return func(g *Governor) { g.onRecover = fn } }

func New(threshold int, window time.Duration, opts ...Option) *Governor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	g := &Governor{threshold: threshold, window: window, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Record counts one state update and reports whether automatic mutations are
// still allowed.
func (g *Governor) Record() bool {
	g.mu.Lock()
	recovered := g.roll()
	g.count++
	tripped := false
	if !g.tripped && g.count > g.threshold {
		g.tripped = true
		g.trips++
		tripped = true
	}
	count, allowed := g.count, !g.tripped
	g.mu.Unlock()

	g.fire(recovered, tripped, count)
	return allowed
}

// Suspended reports whether automatic recovery is currently suppressed.
func (g *Governor) Suspended() bool {
	g.mu.Lock()
	recovered := g.roll()
	s := g.tripped
	g.mu.Unlock()

	g.fire(recovered, false, 0)
	return s
}

// Reset untrips the governor and starts a fresh window.
func (g *Governor) Reset() {
	g.mu.Lock()
	wasTripped := g.tripped
	g.tripped = false
	g.count = 0
	g.windowStart = g.now()
	g.mu.Unlock()

	g.fire(wasTripped, false, 0)
}

// Trips returns how many times the governor has tripped.
func (g *Governor) Trips() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trips
}

// roll closes the current window if it has elapsed. Callers hold mu.
func (g *Governor) roll() (recovered bool) {
	now := g.now()
	if g.windowStart.IsZero() {
		g.windowStart = now
		return false
	}
	elapsed := now.Sub(g.windowStart)
	if elapsed < g.window {
		return false
	}

	// an idle window in between always counts as a quiet one
	quiet := g.count <= g.threshold || elapsed >= 2*g.window
	if g.tripped && quiet {
		g.tripped = false
		recovered = true
	}
	g.count = 0
	g.windowStart = g.windowStart.Add(elapsed.Truncate(g.window))
	return recovered
}

func (g *Governor) fire(recovered, tripped bool, count int) {
	if recovered && g.onRecover != nil {
		g.onRecover()
	}
	if tripped && g.onTrip != nil {
		g.onTrip(count)
	}
}
