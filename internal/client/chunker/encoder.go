// Package chunker reads selected files and encodes them for transmission,
// either whole or as an ordered set of independently encoded chunks.
package chunker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/cryptox"
	"github.com/dmitrijs2005/gophupload/internal/logging"
)

const (
	DefaultChunkSize   = 5 * common.MB
	DefaultReadTimeout = 30 * time.Second
)

var ErrReadTimeout = errors.New("reading file timed out")

// Chunk is one encoded slice of the original content.
type Chunk struct {
	Index  int
	Offset int64
	Size   int
	Data   string
}

type ChunkSet struct {
	TotalChunks int
	ChunkSize   int
	Chunks      []Chunk
	// Fingerprint is the hex BLAKE2b-256 digest of the whole content.
	Fingerprint string
}

type Encoder struct {
	timeout time.Duration
	logger  logging.Logger
}

func NewEncoder(timeout time.Duration, logger logging.Logger) *Encoder {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Encoder{timeout: timeout, logger: logger}
}

// EncodeFile returns the base64 encoding of the whole source. The streaming
// path is tried first; ReadAll is used only when streaming fails.
func (e *Encoder) EncodeFile(ctx context.Context, src Source) (string, error) {
	return withTimeout(ctx, e.timeout, func() (string, error) {
		s, err := streamEncode(src)
		if err == nil {
			return s, nil
		}
		e.logger.Warn(ctx, "streaming read failed, falling back to full read", "file", src.Name(), "error", err)

		data, err2 := src.ReadAll()
		if err2 != nil {
			return "", failure.New(failure.CategoryReader,
				fmt.Errorf("read file %s: %w", src.Name(), errors.Join(err, err2)))
		}
		return base64.StdEncoding.EncodeToString(data), nil
	})
}

// EncodeChunks splits the source into chunkSize pieces, each base64-encoded
// on its own.
func (e *Encoder) EncodeChunks(ctx context.Context, src Source, chunkSize int) (*ChunkSet, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return withTimeout(ctx, e.timeout, func() (*ChunkSet, error) {
		set, err := streamChunks(src, chunkSize)
		if err == nil {
			return set, nil
		}
		e.logger.Warn(ctx, "streaming chunk read failed, falling back to full read", "file", src.Name(), "error", err)

		data, err2 := src.ReadAll()
		if err2 != nil {
			return nil, failure.New(failure.CategoryReader,
				fmt.Errorf("read file %s: %w", src.Name(), errors.Join(err, err2)))
		}
		return SplitBytes(data, chunkSize), nil
	})
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, failure.New(failure.CategoryReader, ErrReadTimeout)
		}
		return zero, ctx.Err()
	}
}

func streamEncode(src Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(int(src.Size())))
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	if _, err := io.Copy(enc, rc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func streamChunks(src Source, chunkSize int) (*ChunkSet, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	h := cryptox.NewHash()
	set := &ChunkSet{ChunkSize: chunkSize}
	buf := make([]byte, chunkSize)
	var offset int64
	for {
		n, err := io.ReadFull(rc, buf)
		if n > 0 {
			h.Write(buf[:n])
			set.Chunks = append(set.Chunks, Chunk{
				Index:  len(set.Chunks),
				Offset: offset,
				Size:   n,
				Data:   base64.StdEncoding.EncodeToString(buf[:n]),
			})
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	set.TotalChunks = len(set.Chunks)
	set.Fingerprint = cryptox.HexSum(h)
	return set, nil
}

// SplitBytes chunks in-memory content.
func SplitBytes(data []byte, chunkSize int) *ChunkSet {
	set := &ChunkSet{ChunkSize: chunkSize, Fingerprint: Fingerprint(data)}
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		set.Chunks = append(set.Chunks, Chunk{
			Index:  len(set.Chunks),
			Offset: int64(off),
			Size:   end - off,
			Data:   base64.StdEncoding.EncodeToString(data[off:end]),
		})
	}
	set.TotalChunks = len(set.Chunks)
	return set
}

// Fingerprint returns the hex BLAKE2b-256 digest of data.
func Fingerprint(data []byte) string {
	return cryptox.Fingerprint(data)
}

// ExpectedChunks is ceil(size/chunkSize).
func ExpectedChunks(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}
