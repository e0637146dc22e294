// Package strategy picks the transport mode for a selection of files and
// defines the fallback chain between modes.
package strategy

import (
	"errors"

	"github.com/dmitrijs2005/gophupload/internal/common"
)

// Strategy is a transport mode.
type Strategy string

const (
	Single      Strategy = "single"
	Progressive Strategy = "progressive"
	Batch       Strategy = "batch"
	Emergency   Strategy = "emergency"
	// None marks the end of the fallback chain.
	None Strategy = ""
)

// DefaultProgressiveThreshold is the size above which a single file is sent
// in chunks.
const DefaultProgressiveThreshold = 25 * common.MB

var ErrEmptySelection = errors.New("no files selected")

type Selector struct {
	ProgressiveThreshold int64
}

func NewSelector(threshold int64) *Selector {
	if threshold <= 0 {
		threshold = DefaultProgressiveThreshold
	}
	return &Selector{ProgressiveThreshold: threshold}
}

// Select applies the decision table to the sizes of the selected files.
func (s *Selector) Select(sizes []int64) (Strategy, error) {
	switch {
	case len(sizes) == 0:
		return None, ErrEmptySelection
	case len(sizes) == 1 && sizes[0] > s.ProgressiveThreshold:
		return Progressive, nil
	case len(sizes) > 1:
		return Batch, nil
	default:
		return Single, nil
	}
}

// Fallback returns the next, simpler strategy. Emergency is the floor and
// returns None.
func Fallback(s Strategy) Strategy {
	switch s {
	case Progressive, Batch:
		return Single
	case Single:
		return Emergency
	default:
		return None
	}
}

// Simpler reports whether s is reached from than by following Fallback.
func Simpler(s, than Strategy) bool {
	if s == None {
		return false
	}
	for next := Fallback(than); next != None; next = Fallback(next) {
		if next == s {
			return true
		}
	}
	return false
}

func (s Strategy) String() string {
	if s == None {
		return "none"
	}
	return string(s)
}

// Parse accepts a strategy name; unknown names return None and false.
func Parse(name string) (Strategy, bool) {
	switch Strategy(name) {
	case Single, Progressive, Batch, Emergency:
		return Strategy(name), true
	}
	return None, false
}
