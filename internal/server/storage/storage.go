// Package storage keeps uploaded artifacts and temporary chunk parts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrInvalidKey = errors.New("invalid storage key")

// Store is a flat key/value object store. Get returns common.ErrorNotFound
// for unknown keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes a slash separated key and rejects keys escaping the
// store root.
func CleanKey(key string) (string, error) {
	k := strings.TrimPrefix(key, "/")
	if k == "" {
		return "", ErrInvalidKey
	}
	clean := path.Clean(k)
	if clean != k || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
