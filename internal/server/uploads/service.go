// Package uploads implements the reference server's upload operations over an
// artifact store and a chunk session repository.
package uploads

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/cryptox"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/dmitrijs2005/gophupload/internal/server/sessions"
	"github.com/dmitrijs2005/gophupload/internal/server/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const batchConcurrency = 4

type Service struct {
	store      storage.Store
	sessions   sessions.Repository
	maxBytes   int64
	sessionTTL time.Duration
	logger     logging.Logger
	now        func() time.Time
	newID      func() string
}

func NewService(store storage.Store, repo sessions.Repository, maxBytes int64, sessionTTL time.Duration, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		store:      store,
		sessions:   repo,
		maxBytes:   maxBytes,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// storageKey returns images/YYYY/MM/DD/<uuid><ext>.
func (s *Service) storageKey(ext string) string {
	d := s.now().UTC()
	return fmt.Sprintf("images/%04d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), s.newID(), ext)
}

func partKey(sessionID string, index int) string {
	return fmt.Sprintf("tmp/%s/%d", sessionID, index)
}

func decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return data, nil
}

// save checks data is an image within the size limit and writes it under a
// fresh key.
func (s *Service) save(ctx context.Context, fileName string, data []byte) (string, error) {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), s.maxBytes)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}

	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(path.Ext(fileName))
	}
	key := s.storageKey(ext)
	if err := s.store.Put(ctx, key, data, mt.String()); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return key, nil
}

// Single stores one base64 encoded image and returns its reference.
func (s *Service) Single(ctx context.Context, subject string, req api.SingleRequest) (string, error) {
	data, err := decode(req.FileContent)
	if err != nil {
		return "", err
	}
	key, err := s.save(ctx, req.FileName, data)
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "image stored", "subject", subject, "file", req.FileName, "key", key, "bytes", len(data))
	return key, nil
}

// Chunk accepts one part of a chunked upload. The first chunk of an upload
// comes without a session id and opens a session. When every index has been
// received the parts are assembled, checked against the checksum if one was
// sent and stored as a single artifact.
func (s *Service) Chunk(ctx context.Context, subject string, req api.ChunkRequest) (*api.ChunkResponse, error) {
	if req.TotalChunks < 1 || req.ChunkIndex < 0 || req.ChunkIndex >= req.TotalChunks {
		return nil, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, req.ChunkIndex, req.TotalChunks)
	}
	data, err := decode(req.Data)
	if err != nil {
		return nil, err
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: chunk of %d bytes", ErrTooLarge, len(data))
	}

	sess, err := s.session(ctx, subject, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, partKey(sess.ID, req.ChunkIndex), data, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("store chunk: %w", err)
	}
	received, err := s.sessions.AddChunk(ctx, sess.ID, req.ChunkIndex)
	if err != nil {
		return nil, err
	}

	resp := &api.ChunkResponse{
		SessionID:      sess.ID,
		ReceivedChunks: received,
		TotalChunks:    sess.TotalChunks,
	}
	if received < sess.TotalChunks {
		return resp, nil
	}

	key, err := s.assemble(ctx, sess, req.Checksum)
	if err != nil {
		return nil, err
	}
	resp.Complete = true
	resp.FilePath = key
	s.logger.Info(ctx, "chunked upload assembled", "subject", subject, "session", sess.ID, "key", key)
	return resp, nil
}

func (s *Service) session(ctx context.Context, subject string, req api.ChunkRequest) (*sessions.Session, error) {
	if req.SessionID == "" {
		sess := &sessions.Session{
			ID:          s.newID(),
			Subject:     subject,
			FileName:    req.FileName,
			FileType:    req.FileType,
			TotalChunks: req.TotalChunks,
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		return sess, nil
	}

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Subject != subject || sess.TotalChunks != req.TotalChunks || sess.FileName != req.FileName {
		return nil, ErrSessionMismatch
	}
	return sess, nil
}

func (s *Service) assemble(ctx context.Context, sess *sessions.Session, checksum string) (string, error) {
	defer s.discard(ctx, sess)

	var buf bytes.Buffer
	for i := 0; i < sess.TotalChunks; i++ {
		part, _, err := s.store.Get(ctx, partKey(sess.ID, i))
		if err != nil {
			return "", fmt.Errorf("read chunk %d: %w", i, err)
		}
		buf.Write(part)
	}

	data := buf.Bytes()
	if checksum != "" && !strings.EqualFold(checksum, cryptox.Fingerprint(data)) {
		return "", ErrChecksumMismatch
	}
	return s.save(ctx, sess.FileName, data)
}

// discard removes the stored parts and the session record.
func (s *Service) discard(ctx context.Context, sess *sessions.Session) {
	for i := 0; i < sess.TotalChunks; i++ {
		if err := s.store.Delete(ctx, partKey(sess.ID, i)); err != nil {
			s.logger.Warn(ctx, "chunk cleanup failed", "session", sess.ID, "index", i, "error", err)
		}
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		s.logger.Warn(ctx, "session cleanup failed", "session", sess.ID, "error", err)
	}
}

// Batch stores every image independently. Item failures are reported in
// the results and never fail the whole call.
func (s *Service) Batch(ctx context.Context, subject string, req api.BatchRequest) api.BatchResponse {
	results := make([]api.BatchResult, len(req.Images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, img := range req.Images {
		g.Go(func() error {
			key, err := s.Single(gctx, subject, api.SingleRequest(img))
			if err != nil {
				results[i] = api.BatchResult{FileName: img.FileName, Error: err.Error()}
				return nil
			}
			results[i] = api.BatchResult{FileName: img.FileName, Success: true, FilePath: key}
			return nil
		})
	}
	_ = g.Wait()

	succeeded := lo.CountBy(results, func(r api.BatchResult) bool { return r.Success })
	return api.BatchResponse{
		Results: results,
		Summary: api.BatchSummary{
			Total:     len(results),
			Succeeded: succeeded,
			Failed:    len(results) - succeeded,
		},
	}
}

// Artifact returns a stored image. Temporary chunk parts are not served.
func (s *Service) Artifact(ctx context.Context, key string) ([]byte, string, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return nil, "", err
	}
	if strings.HasPrefix(clean, "tmp/") {
		return nil, "", common.ErrorNotFound
	}
	return s.store.Get(ctx, clean)
}

// PurgeExpired drops sessions idle for longer than the session TTL along with
// their parts and returns how many were removed.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	expired, err := s.sessions.Expired(ctx, s.now().Add(-s.sessionTTL))
	if err != nil {
		return 0, err
	}
	for _, sess := range expired {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.discard(ctx, sess)
	}
	return len(expired), nil
}
