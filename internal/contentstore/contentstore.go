// Package contentstore implements the deduplicating file store: every
// distinct byte sequence is kept once, keyed by its SHA-256 digest, and
// repeat uploads only raise the reference count of the existing row.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/diane-assistant/filevault/internal/blob"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/internal/keyedlock"
	"github.com/diane-assistant/filevault/internal/store"
)

// ChunkSize is the read size used while hashing uploads.
const ChunkSize = 4096

// ErrNotFound is returned when a file id is unknown.
var ErrNotFound = errors.New("file not found")

// DeletePolicy selects how Delete treats shared content.
type DeletePolicy string

const (
	// PolicyHardDelete removes the row and blob regardless of reference count.
	PolicyHardDelete DeletePolicy = "hard"

	// PolicyDecrementRef removes one reference and drops the row and blob at zero.
	PolicyDecrementRef DeletePolicy = "decrement"
)

// ParseDeletePolicy maps a config value to a policy. Empty means hard delete.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyHardDelete:
		return PolicyHardDelete, nil
	case PolicyDecrementRef:
		return PolicyDecrementRef, nil
	default:
		return "", fmt.Errorf("unknown delete policy %q (want %q or %q)", s, PolicyHardDelete, PolicyDecrementRef)
	}
}

// Options configures a Store.
type Options struct {
	Policy DeletePolicy

	// TempDir holds uploads while they are hashed. Defaults to os.TempDir().
	TempDir string
}

// Store is the content-addressable file store.
type Store struct {
	catalog store.FileCatalog
	blobs   blob.Store
	policy  DeletePolicy
	tempDir string
	digests keyedlock.Map
}

// New creates a Store over a catalog and a blob backend.
func New(catalog store.FileCatalog, blobs blob.Store, opts Options) *Store {
	if opts.Policy == "" {
		opts.Policy = PolicyHardDelete
	}
	return &Store{
		catalog: catalog,
		blobs:   blobs,
		policy:  opts.Policy,
		tempDir: opts.TempDir,
	}
}

// Policy reports the configured delete policy.
func (s *Store) Policy() DeletePolicy {
	return s.policy
}

// Digest hashes r in ChunkSize reads and copies the bytes to w when w is non-nil.
func Digest(r io.Reader, w io.Writer) (digest string, n int64, err error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		m, rerr := r.Read(buf)
		if m > 0 {
			h.Write(buf[:m])
			if w != nil {
				if _, werr := w.Write(buf[:m]); werr != nil {
					return "", n, werr
				}
			}
			n += int64(m)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", n, rerr
		}
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Upload stores the content of r, deduplicating by digest. The returned
// bool is true when the content was already present. The recorded size is
// the number of bytes read; a differing declared size is only logged.
func (s *Store) Upload(ctx context.Context, r io.Reader, name, mediaType string, size int64) (*db.File, bool, error) {
	spool, err := os.CreateTemp(s.tempDir, "filevault-upload-*")
	if err != nil {
		return nil, false, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	digest, n, err := Digest(r, spool)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read upload: %w", err)
	}
	if size > 0 && size != n {
		slog.Warn("Declared upload size differs from content", "name", name, "declared", size, "actual", n)
	}

	key, err := blob.KeyForDigest(digest)
	if err != nil {
		return nil, false, err
	}

	unlock := s.digests.Lock(digest)
	defer unlock()

	existing, err := s.catalog.GetFileByHash(ctx, digest)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up digest: %w", err)
	}

	wroteBlob := false
	if existing == nil {
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return nil, false, err
		}
		if err := s.blobs.Put(ctx, key, spool, n, mediaType); err != nil {
			return nil, false, fmt.Errorf("failed to store content: %w", err)
		}
		wroteBlob = true
	}

	f, duplicate, err := s.catalog.IncrementOrInsert(ctx, &db.File{
		ID:               uuid.NewString(),
		Hash:             digest,
		OriginalFilename: name,
		FileType:         mediaType,
		Size:             n,
		StorageKey:       key,
	})
	if err != nil {
		if wroteBlob {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
				slog.Warn("Failed to remove orphaned blob", "key", key, "error", derr)
			}
		}
		return nil, false, fmt.Errorf("failed to record upload: %w", err)
	}

	slog.Info("File uploaded", "id", f.ID, "name", name, "hash", digest, "duplicate", duplicate, "refs", f.ReferenceCount)
	return f, duplicate, nil
}

// Delete removes a file according to the store's policy. It returns false
// when the id is unknown.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	f, err := s.catalog.GetFile(ctx, id)
	if err != nil {
		return false, err
	}
	if f == nil {
		return false, nil
	}

	unlock := s.digests.Lock(f.Hash)
	defer unlock()

	removed := false
	switch s.policy {
	case PolicyDecrementRef:
		remaining, err := s.catalog.DecrementReference(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		removed = remaining == 0
		slog.Info("File reference released", "id", id, "remaining", remaining)
	default:
		ok, err := s.catalog.DeleteFile(ctx, id)
		if err != nil || !ok {
			return ok, err
		}
		removed = true
		slog.Info("File deleted", "id", id, "refs", f.ReferenceCount)
	}

	if removed && f.StorageKey != "" {
		if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
			slog.Warn("Failed to delete blob", "id", id, "key", f.StorageKey, "error", err)
		}
	}
	return true, nil
}

// Get returns file metadata or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*db.File, error) {
	f, err := s.catalog.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotFound
	}
	return f, nil
}

// Open returns the stored bytes of a file.
func (s *Store) Open(ctx context.Context, id string) (*db.File, io.ReadCloser, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, f.StorageKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return f, rc, nil
}

// List returns all files in catalog order.
func (s *Store) List(ctx context.Context) ([]*db.File, error) {
	return s.catalog.ListFiles(ctx)
}

// ListByCategory returns files whose type matches a category alias
// (see ResolveCategory).
func (s *Store) ListByCategory(ctx context.Context, category string) ([]*db.File, error) {
	files, err := s.catalog.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	m := ResolveCategory(category)
	var out []*db.File
	for _, f := range files {
		if m.Matches(f.FileType) {
			out = append(out, f)
		}
	}
	return out, nil
}

// SmallFiles returns files of at most maxBytes, smallest first.
func (s *Store) SmallFiles(ctx context.Context, maxBytes int64) ([]*db.File, error) {
	return s.catalog.ListFilesUpToSize(ctx, maxBytes)
}
