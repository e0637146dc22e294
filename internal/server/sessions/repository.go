// Package sessions tracks chunked uploads in progress.
package sessions

import (
	"context"
	"time"
)

// Session is one chunked upload. Received counts distinct chunk indexes.
type Session struct {
	ID          string
	Subject     string
	FileName    string
	FileType    string
	TotalChunks int
	Received    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository stores sessions. Get and AddChunk return common.ErrorNotFound
// for unknown ids. AddChunk is idempotent per index and returns the number
// of distinct chunks received so far.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	AddChunk(ctx context.Context, id string, index int) (int, error)
	Delete(ctx context.Context, id string) error
	// Expired lists sessions not updated since before.
	Expired(ctx context.Context, before time.Time) ([]*Session, error)
}
