// Package retry wraps fallible operations with category-specific backoff and
// attempt counting.
package retry

import (
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	goretry "github.com/sethvargo/go-retry"
)

// Policy is the delay schedule for one failure category.
type Policy struct {
	Strategy failure.RetryStrategy
	Base     time.Duration
	Cap      time.Duration
}

const (
	networkBase = 3 * time.Second
	defaultBase = 2 * time.Second
	readerDelay = time.Second
	maxDelay    = 30 * time.Second
)

// PolicyFor returns the delay schedule of a category.
func PolicyFor(c failure.Category) Policy {
	switch failure.StrategyFor(c) {
	case failure.RetryNone:
		return Policy{Strategy: failure.RetryNone}
	case failure.RetryDelayed:
		return Policy{Strategy: failure.RetryDelayed, Base: readerDelay, Cap: readerDelay}
	}
	if c == failure.CategoryNetwork {
		return Policy{Strategy: failure.RetryExponential, Base: networkBase, Cap: maxDelay}
	}
	return Policy{Strategy: failure.RetryExponential, Base: defaultBase, Cap: maxDelay}
}

// Backoff builds a fresh delay sequence for the policy. It returns nil for
// RetryNone.
func (p Policy) Backoff() goretry.Backoff {
	switch p.Strategy {
	case failure.RetryExponential:
		return goretry.WithCappedDuration(p.Cap, goretry.NewExponential(p.Base))
	case failure.RetryDelayed:
		return goretry.NewConstant(p.Base)
	case failure.RetryImmediate:
		return goretry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return nil
}

// Delays returns the first n delays the policy of category c would produce.
func Delays(c failure.Category, n int) []time.Duration {
	b := PolicyFor(c).Backoff()
	if b == nil {
		return nil
	}
	out := make([]time.Duration, 0, n)
	for range n {
		d, stop := b.Next()
		if stop {
			break
		}
		out = append(out, d)
	}
	return out
}
