package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// mode is the strategy-specific part of an attempt.
type mode interface {
	// encode reads src into the item's payload.
	encode(ctx context.Context, s *Session, it *item, src chunker.Source) error
	// prepare reads every item.
	prepare(ctx context.Context, s *Session, items []*item)
	// send transmits items and records a reference or an error on each.
	send(ctx context.Context, s *Session, token string, items []*item)
}

func modeFor(st strategy.Strategy) mode {
	switch st {
	case strategy.Progressive:
		return progressiveMode{}
	case strategy.Batch:
		return batchMode{}
	case strategy.Emergency:
		return singleMode{emergency: true}
	default:
		return singleMode{}
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// singleMode sends the whole file in one request. The emergency variant
// marks the request and logs every step.
type singleMode struct {
	emergency bool
}

func (m singleMode) encode(ctx context.Context, s *Session, it *item, src chunker.Source) error {
	enc, err := s.o.encoder.EncodeFile(ctx, src)
	if err != nil {
		return err
	}
	s.mu.Lock()
	it.encoded = enc
	s.mu.Unlock()
	return nil
}

func (m singleMode) prepare(ctx context.Context, s *Session, items []*item) {
	for _, it := range items {
		s.prepare(ctx, it)
	}
}

func (m singleMode) send(ctx context.Context, s *Session, token string, items []*item) {
	for _, it := range items {
		s.advance(ctx, it, models.PhaseTransmitting, models.PhaseProgress[models.PhaseTransmitting])
		req := api.SingleRequest{
			FileName:    it.task.FileName,
			FileContent: it.encoded,
			FileType:    it.task.MimeType,
		}
		if m.emergency {
			s.logger.Debug(ctx, "sending emergency upload", "task_id", it.task.ID, "file", req.FileName,
				"type", req.FileType, "encoded_bytes", len(req.FileContent))
		}

		resp, err := s.o.transport.UploadSingle(ctx, token, req, m.emergency)
		if m.emergency {
			s.logger.Debug(ctx, "emergency upload response", "task_id", it.task.ID, "file_path", resp.FilePath, "error", err)
		}
		if err != nil {
			s.fail(ctx, it, err)
			continue
		}
		s.advance(ctx, it, models.PhaseTransmitting, 85)
		s.accept(ctx, it, resp.FilePath)
	}
}

// progressiveMode sends the file as ordered chunks. The session id learned
// from the first chunk is reused for the rest.
type progressiveMode struct{}

func (progressiveMode) encode(ctx context.Context, s *Session, it *item, src chunker.Source) error {
	set, err := s.o.encoder.EncodeChunks(ctx, src, s.o.cfg.ChunkSize)
	if err != nil {
		return err
	}
	s.mu.Lock()
	it.chunks = set
	s.mu.Unlock()
	return nil
}

func (progressiveMode) prepare(ctx context.Context, s *Session, items []*item) {
	for _, it := range items {
		s.prepare(ctx, it)
	}
}

func (progressiveMode) send(ctx context.Context, s *Session, token string, items []*item) {
	for _, it := range items {
		ref, err := sendChunks(ctx, s, token, it)
		if err != nil {
			s.fail(ctx, it, err)
			continue
		}
		s.accept(ctx, it, ref)
	}
}

func rejected(format string, args ...any) error {
	return failure.New(failure.CategoryProcessing, fmt.Errorf("%w: %s", common.ErrChunkRejected, fmt.Sprintf(format, args...)))
}

func sendChunks(ctx context.Context, s *Session, token string, it *item) (string, error) {
	set := it.chunks
	start := models.PhaseProgress[models.PhaseTransmitting]
	s.advance(ctx, it, models.PhaseTransmitting, start)

	sessionID := ""
	for _, c := range set.Chunks {
		req := api.ChunkRequest{
			ChunkIndex:  c.Index,
			TotalChunks: set.TotalChunks,
			Data:        c.Data,
			FileName:    it.task.FileName,
			FileType:    it.task.MimeType,
			SessionID:   sessionID,
		}
		last := c.Index == set.TotalChunks-1
		if last {
			req.Checksum = set.Fingerprint
		}

		resp, err := s.o.transport.UploadChunk(ctx, token, req)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", c.Index+1, set.TotalChunks, err)
		}

		switch {
		case sessionID == "" && isBlank(resp.SessionID):
			return "", rejected("no session id for chunk %d", c.Index)
		case sessionID != "" && resp.SessionID != sessionID:
			return "", rejected("session changed from %s to %s", sessionID, resp.SessionID)
		case resp.ReceivedChunks != c.Index+1:
			return "", rejected("server acknowledged %d chunks after chunk %d", resp.ReceivedChunks, c.Index)
		}
		sessionID = resp.SessionID

		pct := start + (85-start)*(c.Index+1)/set.TotalChunks
		s.advance(ctx, it, models.PhaseTransmitting, pct)

		if last {
			if !resp.Complete || resp.ReceivedChunks != set.TotalChunks {
				return "", rejected("upload not complete after %d of %d chunks", resp.ReceivedChunks, set.TotalChunks)
			}
			return resp.FilePath, nil
		}
		if resp.Complete {
			return "", rejected("server completed the upload early at chunk %d", c.Index)
		}
	}
	return "", rejected("no chunks to send")
}

// batchMode encodes every file in parallel and sends them in one call.
type batchMode struct{}

func (batchMode) encode(ctx context.Context, s *Session, it *item, src chunker.Source) error {
	return singleMode{}.encode(ctx, s, it, src)
}

func (batchMode) prepare(ctx context.Context, s *Session, items []*item) {
	var g errgroup.Group
	g.SetLimit(s.o.cfg.BatchConcurrency)
	for _, it := range items {
		g.Go(func() error {
			s.prepare(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
}

func (batchMode) send(ctx context.Context, s *Session, token string, items []*item) {
	req := api.BatchRequest{
		Images: lo.Map(items, func(it *item, _ int) api.BatchImage {
			return api.BatchImage{FileName: it.task.FileName, FileContent: it.encoded, FileType: it.task.MimeType}
		}),
	}
	for _, it := range items {
		s.advance(ctx, it, models.PhaseTransmitting, models.PhaseProgress[models.PhaseTransmitting])
	}

	resp, err := s.o.transport.UploadBatch(ctx, token, req)
	if err != nil {
		for _, it := range items {
			s.fail(ctx, it, err)
		}
		return
	}

	s.logger.Info(ctx, "batch uploaded", "total", resp.Summary.Total, "succeeded", resp.Summary.Succeeded,
		"failed", resp.Summary.Failed)
	for i, it := range items {
		s.advance(ctx, it, models.PhaseTransmitting, 85)
		if i >= len(resp.Results) {
			s.fail(ctx, it, failure.Newf(failure.CategoryProcessing, "batch response has no result for %s", it.task.FileName))
			continue
		}
		r := resp.Results[i]
		if !r.Success {
			msg := r.Error
			if isBlank(msg) {
				msg = "batch item failed"
			}
			s.fail(ctx, it, failure.New(failure.ClassifyMessage(msg).Category, errors.New(msg)))
			continue
		}
		s.accept(ctx, it, r.FilePath)
	}
}
