package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/common"
)

type memorySession struct {
	Session
	chunks map[int]struct{}
}

type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*memorySession), now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	now := r.now()
	cp := *s
	cp.Received, cp.CreatedAt, cp.UpdatedAt = 0, now, now
	r.sessions[s.ID] = &memorySession{Session: cp, chunks: make(map[int]struct{})}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, common.ErrorNotFound)
	}
	cp := ms.Session
	return &cp, nil
}

func (r *MemoryRepository) AddChunk(_ context.Context, id string, index int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[id]
	if !ok {
		return 0, fmt.Errorf("session %s: %w", id, common.ErrorNotFound)
	}
	ms.chunks[index] = struct{}{}
	ms.Received = len(ms.chunks)
	ms.UpdatedAt = r.now()
	return ms.Received, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *MemoryRepository) Expired(_ context.Context, before time.Time) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, ms := range r.sessions {
		if ms.UpdatedAt.Before(before) {
			cp := ms.Session
			out = append(out, &cp)
		}
	}
	return out, nil
}
