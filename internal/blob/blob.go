// Package blob stores uploaded file bytes keyed by content digest.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("blob not found")

// Store is a content-addressed byte store.
type Store interface {
	// Put writes r under key. Writing an existing key replaces it.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns a reader for key or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the backend in logs.
	Name() string
}

// KeyForDigest maps a hex digest to a sharded object key, e.g. "ab/cd/abcd…".
func KeyForDigest(digest string) (string, error) {
	digest = strings.ToLower(digest)
	if len(digest) < 8 {
		return "", fmt.Errorf("digest %q too short", digest)
	}
	for _, c := range digest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", fmt.Errorf("digest %q is not hex", digest)
		}
	}
	return digest[0:2] + "/" + digest[2:4] + "/" + digest, nil
}
