// Package models defines the upload task and its lifecycle phases.
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/google/uuid"
)

// Phase is a step of the upload lifecycle.
type Phase string

const (
	PhaseValidating       Phase = "validating"
	PhaseReading          Phase = "reading"
	PhaseOptimizing       Phase = "optimizing"
	PhaseTransmitting     Phase = "transmitting"
	PhaseServerProcessing Phase = "serverProcessing"
	PhaseVerifying        Phase = "verifying"
	PhaseComplete         Phase = "complete"
	PhaseFailed           Phase = "failed"
)

var order = []Phase{
	PhaseValidating,
	PhaseReading,
	PhaseOptimizing,
	PhaseTransmitting,
	PhaseServerProcessing,
	PhaseVerifying,
	PhaseComplete,
}

// Progress values reported when a phase is entered.
var PhaseProgress = map[Phase]int{
	PhaseValidating:       5,
	PhaseReading:          10,
	PhaseOptimizing:       25,
	PhaseTransmitting:     30,
	PhaseServerProcessing: 90,
	PhaseVerifying:        95,
	PhaseComplete:         100,
}

// Terminal reports whether no further transition happens without a new
// attempt.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Verification is the outcome of loading the stored artifact back.
type Verification string

const (
	VerificationPending    Verification = "pending"
	VerificationVerified   Verification = "verified"
	VerificationUnverified Verification = "unverified"
)

var ErrInvalidTransition = errors.New("invalid phase transition")

type TaskError struct {
	Message     string           `json:"message"`
	Category    failure.Category `json:"category"`
	Phase       Phase            `json:"phase"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// Task is the unit of work tracked from selection to completion.
type Task struct {
	ID            string            `json:"id"`
	FileName      string            `json:"fileName"`
	FileSizeBytes int64             `json:"fileSizeBytes"`
	MimeType      string            `json:"mimeType"`
	Strategy      strategy.Strategy `json:"strategy"`
	Phase         Phase             `json:"phase"`
	Percentage    int               `json:"percentage"`
	RetryCount    int               `json:"retryCount"`
	MaxRetries    int               `json:"maxRetries"`
	Attempt       int               `json:"attempt"`
	LastError     *TaskError        `json:"lastError,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	Verification  Verification      `json:"verification"`
	Warnings      []string          `json:"warnings,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func NewTask(fileName string, size int64, mimeType string, s strategy.Strategy, maxRetries int, now time.Time) *Task {
	return &Task{
		ID:            uuid.NewString(),
		FileName:      fileName,
		FileSizeBytes: size,
		MimeType:      mimeType,
		Strategy:      s,
		Phase:         PhaseValidating,
		MaxRetries:    maxRetries,
		Verification:  VerificationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy safe to hand to observers.
func (t *Task) Clone() Task {
	c := *t
	c.Warnings = slices.Clone(t.Warnings)
	if t.LastError != nil {
		e := *t.LastError
		e.Suggestions = slices.Clone(t.LastError.Suggestions)
		c.LastError = &e
	}
	return c
}

// BeginAttempt starts attempt n: progress resets to zero and the error of
// the previous attempt is cleared.
func (t *Task) BeginAttempt(n int, now time.Time) {
	t.Attempt = n
	t.RetryCount = n
	t.Phase = PhaseValidating
	t.Percentage = 0
	t.LastError = nil
	t.Reference = ""
	t.Verification = VerificationPending
	t.UpdatedAt = now
}

// Advance moves the task forward to phase p with the given percentage.
// Percentage never decreases within an attempt.
func (t *Task) Advance(p Phase, pct int, now time.Time) error {
	if t.Phase.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Phase, p)
	}
	if p == PhaseFailed {
		return fmt.Errorf("%w: use Fail to enter %s", ErrInvalidTransition, p)
	}
	from, to := slices.Index(order, t.Phase), slices.Index(order, p)
	if to < 0 || to < from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Phase, p)
	}
	t.Phase = p
	t.Percentage = max(t.Percentage, min(pct, 100))
	t.UpdatedAt = now
	return nil
}

// Fail moves the task to PhaseFailed, recording the phase it failed in.
func (t *Task) Fail(st failure.RecoveryState, now time.Time) {
	phase := t.Phase
	if phase.Terminal() {
		phase = PhaseVerifying
	}
	t.LastError = &TaskError{
		Message:     st.Message,
		Category:    st.Category,
		Phase:       phase,
		Suggestions: slices.Clone(st.Suggestions),
	}
	t.Phase = PhaseFailed
	t.UpdatedAt = now
}

func (t *Task) AddWarning(w string) {
	if !slices.Contains(t.Warnings, w) {
		t.Warnings = append(t.Warnings, w)
	}
}

// Unverified reports the "uploaded but unverified" outcome: the server
// returned a reference that could not be loaded back.
func (t *Task) Unverified() bool {
	return t.Reference != "" && t.Verification == VerificationUnverified
}

// Succeeded is true only for complete and verified tasks.
func (t *Task) Succeeded() bool {
	return t.Phase == PhaseComplete && t.Verification == VerificationVerified
}
