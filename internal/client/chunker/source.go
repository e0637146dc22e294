package chunker

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Source is a readable file selected for upload.
type Source interface {
	Name() string
	Size() int64
	// Open returns a stream over the content.
	Open() (io.ReadCloser, error)
	// ReadAll returns the whole content at once.
	ReadAll() ([]byte, error)
}

// FileSource reads a file from disk.
type FileSource struct {
	Path string
	size int64
}

// NewFileSource stats path and returns a source for it.
func NewFileSource(path string) (*FileSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{Path: path, size: fi.Size()}, nil
}

func (s *FileSource) Name() string                 { return filepath.Base(s.Path) }
func (s *FileSource) Size() int64                  { return s.size }
func (s *FileSource) Open() (io.ReadCloser, error) { return os.Open(s.Path) }
func (s *FileSource) ReadAll() ([]byte, error)     { return os.ReadFile(s.Path) }

// BytesSource serves content already held in memory.
type BytesSource struct {
	FileName string
	Data     []byte
}

func (s *BytesSource) Name() string { return s.FileName }
func (s *BytesSource) Size() int64  { return int64(len(s.Data)) }
func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}
func (s *BytesSource) ReadAll() ([]byte, error) {
	out := make([]byte, len(s.Data))
	copy(out, s.Data)
	return out, nil
}

// Head returns up to n leading bytes of src.
func Head(src Source, n int) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
