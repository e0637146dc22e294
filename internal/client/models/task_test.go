package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewTask(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	require.NotEmpty(t, task.ID)
	require.Equal(t, PhaseValidating, task.Phase)
	require.Equal(t, VerificationPending, task.Verification)
	require.Equal(t, 0, task.Percentage)

	other := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	require.NotEqual(t, task.ID, other.ID)
}

func TestTask_ProgressMonotonicWithinAttempt(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	task.BeginAttempt(1, now)

	require.NoError(t, task.Advance(PhaseValidating, 5, now))
	require.NoError(t, task.Advance(PhaseReading, 20, now))
	require.NoError(t, task.Advance(PhaseTransmitting, 10, now))
	require.Equal(t, 20, task.Percentage)
	require.NoError(t, task.Advance(PhaseTransmitting, 60, now))
	require.NoError(t, task.Advance(PhaseComplete, 100, now))
	require.Equal(t, 100, task.Percentage)

	task.BeginAttempt(2, now)
	require.Equal(t, 0, task.Percentage)
	require.Equal(t, 2, task.RetryCount)
}

func TestTask_InvalidTransitions(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	require.NoError(t, task.Advance(PhaseTransmitting, 30, now))
	require.ErrorIs(t, task.Advance(PhaseReading, 40, now), ErrInvalidTransition)
	require.ErrorIs(t, task.Advance(PhaseFailed, 40, now), ErrInvalidTransition)

	task.Fail(failure.Classify(failure.Newf(failure.CategoryNetwork, "dial")), now)
	require.ErrorIs(t, task.Advance(PhaseVerifying, 95, now), ErrInvalidTransition)
}

func TestTask_FailRecordsPhaseAndSuggestions(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	require.NoError(t, task.Advance(PhaseTransmitting, 30, now))

	task.Fail(failure.Classify(failure.Newf(failure.CategoryNetwork, "dial tcp: refused")), now)
	require.Equal(t, PhaseFailed, task.Phase)
	require.NotNil(t, task.LastError)
	require.Equal(t, PhaseTransmitting, task.LastError.Phase)
	require.Equal(t, failure.CategoryNetwork, task.LastError.Category)
	require.NotEmpty(t, task.LastError.Suggestions)
	require.False(t, task.Succeeded())
}

func TestTask_CloneIsDeep(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	task.AddWarning("w1")
	task.AddWarning("w1")
	task.Fail(failure.Classify(failure.Newf(failure.CategorySize, "too large")), now)

	c := task.Clone()
	c.Warnings[0] = "changed"
	c.LastError.Suggestions[0] = "changed"

	require.Equal(t, []string{"w1"}, task.Warnings)
	require.NotEqual(t, "changed", task.LastError.Suggestions[0])
}

func TestTask_Succeeded(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	require.NoError(t, task.Advance(PhaseComplete, 100, now))
	require.False(t, task.Succeeded())
	task.Verification = VerificationVerified
	require.True(t, task.Succeeded())
}

func TestTask_Unverified(t *testing.T) {
	task := NewTask("a.png", 1000, "image/png", strategy.Single, 3, now)
	task.Reference = "2026/a.png"
	task.Verification = VerificationUnverified
	require.True(t, task.Unverified())
	require.False(t, task.Succeeded())
}
