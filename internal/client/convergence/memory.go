package convergence

import (
	"context"
	"sync"
)

// MemoryForm is an in-process FormState.
type MemoryForm struct {
	mu  sync.Mutex
	ref string
}

func (m *MemoryForm) SetImageRef(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ref = ref
	return nil
}

func (m *MemoryForm) ImageRef(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ref, nil
}
