package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// File is one distinct piece of content in the catalog.
type File struct {
	ID               string
	Hash             string // hex SHA-256, unique
	OriginalFilename string
	FileType         string // declared media type
	Size             int64
	StorageKey       string // blob backend key
	ReferenceCount   int
	UploadedAt       time.Time
}

const fileColumns = `id, COALESCE(hash, ''), original_filename, file_type, size, storage_key, reference_count, uploaded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	f := &File{}
	var uploaded int64
	if err := row.Scan(&f.ID, &f.Hash, &f.OriginalFilename, &f.FileType, &f.Size, &f.StorageKey, &f.ReferenceCount, &uploaded); err != nil {
		return nil, err
	}
	f.UploadedAt = fromUnix(uploaded)
	return f, nil
}

// =============================================================================
// File CRUD Operations
// =============================================================================

// IncrementOrInsert atomically resolves an upload against the catalog.
// If a row with f.Hash exists its reference count is incremented and the
// updated row is returned with duplicate=true. Otherwise f is inserted with
// a reference count of 1.
func (db *DB) IncrementOrInsert(ctx context.Context, f *File) (stored *File, duplicate bool, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE files SET reference_count = reference_count + 1 WHERE hash = ?`, f.Hash)
	if err != nil {
		return nil, false, fmt.Errorf("increment reference: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if affected == 0 {
		if f.UploadedAt.IsZero() {
			f.UploadedAt = time.Now().UTC()
		}
		f.ReferenceCount = 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO files (id, hash, original_filename, file_type, size, storage_key, reference_count, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Hash, f.OriginalFilename, f.FileType, f.Size, f.StorageKey, f.ReferenceCount, toUnix(f.UploadedAt),
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert file: %w", err)
		}
	}

	stored, err = scanFile(tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE hash = ?`, f.Hash))
	if err != nil {
		return nil, false, fmt.Errorf("reload file: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit upsert: %w", err)
	}
	return stored, affected > 0, nil
}

// GetFile retrieves a file by ID. Returns nil, nil when absent.
func (db *DB) GetFile(ctx context.Context, id string) (*File, error) {
	f, err := scanFile(db.conn.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// GetFileByHash retrieves a file by content digest. Returns nil, nil when absent.
func (db *DB) GetFileByHash(ctx context.Context, hash string) (*File, error) {
	f, err := scanFile(db.conn.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// ListFiles returns every file in catalog (insertion) order.
func (db *DB) ListFiles(ctx context.Context) ([]*File, error) {
	return db.queryFiles(ctx, `SELECT `+fileColumns+` FROM files ORDER BY rowid`)
}

// ListFilesUpToSize returns files no larger than maxBytes, smallest first.
func (db *DB) ListFilesUpToSize(ctx context.Context, maxBytes int64) ([]*File, error) {
	return db.queryFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE size <= ? ORDER BY size, rowid`, maxBytes)
}

func (db *DB) queryFiles(ctx context.Context, query string, args ...any) ([]*File, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes the row for id regardless of its reference count.
// Returns false if no row existed.
func (db *DB) DeleteFile(ctx context.Context, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DecrementReference lowers the reference count of id by one and removes the
// row once it reaches zero. It returns the remaining count; ErrNotFound is
// returned when no row exists.
func (db *DB) DecrementReference(ctx context.Context, id string) (remaining int, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	err = tx.QueryRowContext(ctx, `SELECT reference_count FROM files WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	if count <= 1 {
		_, err = tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
		remaining = 0
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE files SET reference_count = reference_count - 1 WHERE id = ?`, id)
		remaining = count - 1
	}
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}
