// Package notify carries user-facing messages out of the upload core.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/logging"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	Severity    Severity
	TaskID      string
	Title       string
	Message     string
	Category    failure.Category
	Phase       string
	Suggestions []string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// FromFailure builds the notification for a failed step. Retryable failures
// are warnings; terminal ones are errors.
func FromFailure(taskID, phase string, st failure.RecoveryState) Notification {
	sev := SeverityError
	title := "Upload failed"
	if st.CanRetry {
		sev = SeverityWarning
		title = "Upload interrupted"
	}
	return Notification{
		Severity:    sev,
		TaskID:      taskID,
		Title:       title,
		Message:     st.Message,
		Category:    st.Category,
		Phase:       phase,
		Suggestions: st.Suggestions,
	}
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	args := []any{"task_id", n.TaskID, "title", n.Title}
	if n.Category != "" {
		args = append(args, "category", n.Category)
	}
	if n.Phase != "" {
		args = append(args, "phase", n.Phase)
	}
	switch n.Severity {
	case SeverityError:
		l.logger.Error(ctx, n.Message, args...)
	case SeverityWarning:
		l.logger.Warn(ctx, n.Message, args...)
	default:
		l.logger.Info(ctx, n.Message, args...)
	}
}

// WriterNotifier prints notifications for a terminal user. The first
// suggestion is highlighted.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (p *WriterNotifier) Notify(_ context.Context, n Notification) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(n.Severity)), n.Title)
	if n.Message != "" {
		fmt.Fprintf(&b, ": %s", n.Message)
	}
	if n.Phase != "" || n.Category != "" {
		fmt.Fprintf(&b, " (phase: %s, category: %s)", n.Phase, n.Category)
	}
	b.WriteByte('\n')
	for i, s := range n.Suggestions {
		if i == 0 {
			fmt.Fprintf(&b, "  > %s\n", s)
			continue
		}
		fmt.Fprintf(&b, "    %s\n", s)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, b.String())
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Find returns notifications whose title contains s.
func (r *Recorder) Find(s string) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if strings.Contains(n.Title, s) {
			out = append(out, n)
		}
	}
	return out
}
