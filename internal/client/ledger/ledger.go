// Package ledger keeps the process-wide view of upload tasks: active tasks
// for a bounded retention window, a short history ring of finished ones and
// observers keyed by task id or artifact reference.
package ledger

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/common"
)

const (
	DefaultRetention   = 5 * time.Minute
	DefaultHistorySize = 20
)

// Observer receives a copy of a task after every change.
type Observer func(models.Task)

type subscription struct {
	id int
	fn Observer
}

type Ledger struct {
	mu sync.Mutex

	active   map[string]models.Task
	history []models.Task
	// finished holds the attempt#phase keys already in history, per task.
	finished map[string]map[string]struct{}

	byTask map[string][]subscription
	byRef  map[string][]subscription
	nextID int

	retention   time.Duration
	historySize int
	now         func() time.Time
}

func New(retention time.Duration, historySize int) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Ledger{
		active:      make(map[string]models.Task),
		finished:    make(map[string]map[string]struct{}),
		byTask:      make(map[string][]subscription),
		byRef:       make(map[string][]subscription),
		retention:   retention,
		historySize: historySize,
		now:         time.Now,
	}
}

// Put stores a snapshot of t and notifies its observers. Terminal snapshots
// enter the history once per attempt and phase; Put reports whether this
// call added one.
func (l *Ledger) Put(t models.Task) bool {
	snap := t.Clone()

	l.mu.Lock()
	l.active[snap.ID] = snap
	added := false
	if snap.Phase.Terminal() {
		key := fmt.Sprintf("%d#%s", snap.Attempt, snap.Phase)
		seen := l.finished[snap.ID]
		if seen == nil {
			seen = make(map[string]struct{})
			l.finished[snap.ID] = seen
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			l.history = append(l.history, snap)
			if over := len(l.history) - l.historySize; over > 0 {
				l.history = slices.Delete(l.history, 0, over)
			}
			added = true
		}
	}
	observers := l.observersLocked(snap)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(snap.Clone())
	}
	return added
}

func (l *Ledger) observersLocked(t models.Task) []Observer {
	var out []Observer
	for _, s := range l.byTask[t.ID] {
		out = append(out, s.fn)
	}
	if t.Reference != "" {
		for _, s := range l.byRef[t.Reference] {
			out = append(out, s.fn)
		}
	}
	return out
}

func (l *Ledger) Get(id string) (models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.active[id]
	if !ok {
		return models.Task{}, common.ErrorNotFound
	}
	return t.Clone(), nil
}

// ByReference finds the active task holding an artifact reference.
func (l *Ledger) ByReference(ref string) (models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.active {
		if t.Reference == ref {
			return t.Clone(), nil
		}
	}
	return models.Task{}, common.ErrorNotFound
}

// Active returns active tasks ordered by creation time.
func (l *Ledger) Active() []models.Task {
	l.mu.Lock()
	out := make([]models.Task, 0, len(l.active))
	for _, t := range l.active {
		out = append(out, t.Clone())
	}
	l.mu.Unlock()

	slices.SortFunc(out, func(a, b models.Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// History returns finished snapshots, oldest first.
func (l *Ledger) History() []models.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Task, len(l.history))
	for i, t := range l.history {
		out[i] = t.Clone()
	}
	return out
}

// Remove drops a task from active tracking. History is kept.
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, id)
	delete(l.byTask, id)
	delete(l.finished, id)
}

// Prune drops terminal tasks not updated within the retention window and
// returns how many were removed.
func (l *Ledger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.retention)
	n := 0
	for id, t := range l.active {
		if t.Phase.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(l.active, id)
			delete(l.byTask, id)
			delete(l.finished, id)
			n++
		}
	}
	return n
}

// Subscribe registers fn for changes of one task.
func (l *Ledger) Subscribe(taskID string, fn Observer) (unsubscribe func()) {
	return l.subscribe(l.byTask, taskID, fn)
}

// SubscribeReference registers fn for changes of whichever task holds ref.
func (l *Ledger) SubscribeReference(ref string, fn Observer) (unsubscribe func()) {
	return l.subscribe(l.byRef, ref, fn)
}

func (l *Ledger) subscribe(m map[string][]subscription, key string, fn Observer) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	m[key] = append(m[key], subscription{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		m[key] = slices.DeleteFunc(m[key], func(s subscription) bool { return s.id == id })
		if len(m[key]) == 0 {
			delete(m, key)
		}
	}
}
