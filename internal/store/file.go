package store

import (
	"context"

	"github.com/diane-assistant/filevault/internal/db"
)

// FileCatalog defines the catalog operations the content store relies on.
type FileCatalog interface {
	// IncrementOrInsert bumps the reference count of the row sharing f.Hash,
	// or inserts f with a reference count of 1. Must be atomic per digest.
	IncrementOrInsert(ctx context.Context, f *db.File) (*db.File, bool, error)

	// GetFile returns nil, nil when the id is unknown.
	GetFile(ctx context.Context, id string) (*db.File, error)

	// GetFileByHash returns nil, nil when the digest is unknown.
	GetFileByHash(ctx context.Context, hash string) (*db.File, error)

	// ListFiles returns all files in catalog order.
	ListFiles(ctx context.Context) ([]*db.File, error)

	// ListFilesUpToSize returns files of at most maxBytes, smallest first.
	ListFilesUpToSize(ctx context.Context, maxBytes int64) ([]*db.File, error)

	// DeleteFile removes a row unconditionally.
	DeleteFile(ctx context.Context, id string) (bool, error)

	// DecrementReference lowers the count and removes the row at zero.
	DecrementReference(ctx context.Context, id string) (int, error)
}

var _ FileCatalog = (*db.DB)(nil)
