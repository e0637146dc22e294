package retry

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	goretry "github.com/sethvargo/go-retry"
)

const DefaultMaxRetries = 3

// Tracker holds the retry state of one task. RetryCount includes the
// initial attempt.
type Tracker struct {
	mu sync.Mutex

	maxRetries int
	retryCount int
	hasError   bool
	terminal   bool
	lastErr    *failure.Error
	state      failure.RecoveryState

	category failure.Category
	backoff  goretry.Backoff
}

func NewTracker(maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Tracker{maxRetries: maxRetries}
}

func (t *Tracker) MaxRetries() int {
	return t.maxRetries
}

func (t *Tracker) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount
}

func (t *Tracker) HasError() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasError
}

// Exhausted reports whether the attempt ceiling was reached.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount >= t.maxRetries
}

// Terminal reports whether further calls short-circuit.
func (t *Tracker) Terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}

// CanRetry is false once the tracker is terminal or exhausted.
func (t *Tracker) CanRetry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.terminal && t.retryCount < t.maxRetries
}

func (t *Tracker) LastError() *failure.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// State returns the classification of the last failure with CanRetry
// reflecting the attempt ceiling.
func (t *Tracker) State() failure.RecoveryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	st.CanRetry = st.CanRetry && !t.terminal && t.retryCount < t.maxRetries
	return st
}

// ManualRetry clears the error flag so the next call runs the operation
// again. It does not reset the counter and is a no-op once exhausted.
func (t *Tracker) ManualRetry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retryCount >= t.maxRetries {
		return false
	}
	t.hasError = false
	t.terminal = false
	return true
}

// Clear resets the tracker to its initial state.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryCount = 0
	t.hasError = false
	t.terminal = false
	t.lastErr = nil
	t.state = failure.RecoveryState{}
	t.category = ""
	t.backoff = nil
}

func (t *Tracker) begin() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal || t.retryCount >= t.maxRetries {
		t.terminal = true
		return t.retryCount, false
	}
	t.retryCount++
	return t.retryCount, true
}

func (t *Tracker) succeed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasError = false
	t.terminal = false
	t.lastErr = nil
	t.state = failure.RecoveryState{}
	t.category = ""
	t.backoff = nil
}

// fail records err and returns the delay before the next attempt, or false
// when the tracker became terminal.
func (t *Tracker) fail(err error) (failure.RecoveryState, time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fe := failure.AsError(err)
	st := failure.Classify(fe)
	t.hasError = true
	t.lastErr = fe
	t.state = st

	if !st.CanRetry || t.retryCount >= t.maxRetries {
		t.terminal = true
		st.CanRetry = false
		return st, 0, false
	}

	if t.backoff == nil || t.category != st.Category {
		t.category = st.Category
		t.backoff = PolicyFor(st.Category).Backoff()
	}
	if t.backoff == nil {
		t.terminal = true
		return st, 0, false
	}
	d, stop := t.backoff.Next()
	if stop {
		t.terminal = true
		return st, 0, false
	}
	return st, d, true
}
