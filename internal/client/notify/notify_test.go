package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFailure(t *testing.T) {
	n := FromFailure("t1", "transmitting", failure.Classify(failure.Newf(failure.CategoryNetwork, "dial")))
	assert.Equal(t, SeverityWarning, n.Severity)
	assert.Equal(t, failure.CategoryNetwork, n.Category)
	assert.NotEmpty(t, n.Suggestions)

	n = FromFailure("t1", "validating", failure.Classify(failure.Newf(failure.CategoryAuth, "no token")))
	assert.Equal(t, SeverityError, n.Severity)
	assert.Equal(t, "validating", n.Phase)
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterNotifier(&buf)
	w.Notify(context.Background(), Notification{
		Severity:    SeverityError,
		Title:       "Upload failed",
		Message:     "file too large",
		Phase:       "validating",
		Category:    failure.CategorySize,
		Suggestions: []string{"first", "second"},
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[ERROR] Upload failed: file too large (phase: validating, category: size)"))
	assert.Contains(t, out, "  > first\n")
	assert.Contains(t, out, "    second\n")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	NewLogNotifier(l).Notify(context.Background(), Notification{Severity: SeverityWarning, Title: "x", Message: "careful", Category: failure.CategoryReader})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "category=reader")
}

func TestMultiAndRecorder(t *testing.T) {
	r1, r2 := &Recorder{}, &Recorder{}
	var called bool
	m := Multi{r1, nil, r2, Func(func(context.Context, Notification) { called = true })}
	m.Notify(context.Background(), Notification{Title: "Verification pending"})

	require.Len(t, r1.All(), 1)
	require.Len(t, r2.Find("Verification"), 1)
	assert.Empty(t, r2.Find("nothing"))
	assert.True(t, called)
}
