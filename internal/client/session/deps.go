package session

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/validation"
	"github.com/dmitrijs2005/gophupload/internal/client/verify"
	"github.com/dmitrijs2005/gophupload/internal/common"
)

// Transport sends encoded files to the upload endpoints.
type Transport interface {
	UploadSingle(ctx context.Context, token string, req api.SingleRequest, emergency bool) (api.SingleResponse, error)
	UploadChunk(ctx context.Context, token string, req api.ChunkRequest) (api.ChunkResponse, error)
	UploadBatch(ctx context.Context, token string, req api.BatchRequest) (api.BatchResponse, error)
}

// Prober loads a stored reference back.
type Prober interface {
	Verify(ctx context.Context, ref string) verify.Result
}

// Optimizer may return a smaller rendition of src. Returning src itself
// means no change.
type Optimizer interface {
	Optimize(ctx context.Context, src chunker.Source) (chunker.Source, error)
}

type Config struct {
	// Profile validates files for every strategy except emergency, which
	// always uses validation.Emergency.
	Profile              validation.Profile
	MaxRetries           int
	ProgressiveThreshold int64
	ChunkSize            int
	ReadTimeout          time.Duration
	OptimizeEnabled      bool
	OptimizeAboveBytes   int64
	BatchConcurrency     int
	// OnProgress receives a copy of a task after every change. It may be
	// called from several goroutines during batch encoding.
	OnProgress func(task models.Task)
}

func (c Config) withDefaults() Config {
	if c.Profile.MaxBytes == 0 {
		c.Profile = validation.Bulletproof
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultChunkSize
	}
	if c.OptimizeAboveBytes <= 0 {
		c.OptimizeAboveBytes = 2 * common.MB
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
	return c
}
