package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTask(name string) *models.Task {
	return models.NewTask(name, 1000, "image/png", strategy.Single, 3, t0)
}

func TestLedger_PutGet(t *testing.T) {
	l := New(0, 0)
	task := newTask("a.png")
	l.Put(*task)

	got, err := l.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.FileName)

	_, err = l.Get("missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLedger_FailedTwiceCountsOnce(t *testing.T) {
	l := New(0, 0)
	task := newTask("a.png")
	task.BeginAttempt(1, t0)
	task.Fail(failure.Classify(failure.Newf(failure.CategoryNetwork, "dial")), t0)

	assert.True(t, l.Put(*task))
	assert.False(t, l.Put(*task))
	assert.Len(t, l.History(), 1)

	task.BeginAttempt(2, t0)
	task.Fail(failure.Classify(failure.Newf(failure.CategoryNetwork, "dial")), t0)
	assert.True(t, l.Put(*task))
	assert.Len(t, l.History(), 2)
}

func TestLedger_HistoryRingIsBounded(t *testing.T) {
	l := New(0, 3)
	for i := range 5 {
		task := newTask(fmt.Sprintf("f%d.png", i))
		require.NoError(t, task.Advance(models.PhaseComplete, 100, t0))
		l.Put(*task)
	}
	h := l.History()
	require.Len(t, h, 3)
	assert.Equal(t, "f2.png", h[0].FileName)
	assert.Equal(t, "f4.png", h[2].FileName)
}

func TestLedger_Observers(t *testing.T) {
	l := New(0, 0)
	task := newTask("a.png")

	var byTask, byRef []models.Task
	unsub := l.Subscribe(task.ID, func(t models.Task) { byTask = append(byTask, t) })
	l.SubscribeReference("2026/a.png", func(t models.Task) { byRef = append(byRef, t) })

	l.Put(*task)
	task.Reference = "2026/a.png"
	l.Put(*task)

	assert.Len(t, byTask, 2)
	require.Len(t, byRef, 1)
	assert.Equal(t, task.ID, byRef[0].ID)

	found, err := l.ByReference("2026/a.png")
	require.NoError(t, err)
	assert.Equal(t, task.ID, found.ID)

	unsub()
	l.Put(*task)
	assert.Len(t, byTask, 2)
	assert.Len(t, byRef, 2)
}

func TestLedger_PruneKeepsHistory(t *testing.T) {
	l := New(time.Minute, 0)
	now := t0
	l.now = func() time.Time { return now }

	done := newTask("done.png")
	require.NoError(t, done.Advance(models.PhaseComplete, 100, t0))
	running := newTask("running.png")
	l.Put(*done)
	l.Put(*running)

	now = t0.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Prune())

	active := l.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "running.png", active[0].FileName)
	assert.Len(t, l.History(), 1)
	assert.NotContains(t, l.finished, done.ID)

	l.Remove(running.ID)
	assert.Empty(t, l.Active())
}
