package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophupload/internal/client/models"
)

// progressPrinter prints one line per phase change of a task, plus every
// percentage step while transmitting.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last map[string]string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]string)}
}

func (p *progressPrinter) update(t models.Task) {
	key := fmt.Sprintf("%d/%s", t.Attempt, t.Phase)
	if t.Phase == models.PhaseTransmitting {
		key = fmt.Sprintf("%s/%d", key, t.Percentage)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last[t.ID] == key {
		return
	}
	p.last[t.ID] = key
	fmt.Fprintf(p.w, "%s [%s] %3d%% %s\n", t.FileName, t.Strategy, t.Percentage, t.Phase)
}
