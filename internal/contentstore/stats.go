package contentstore

import (
	"context"

	"github.com/diane-assistant/filevault/internal/db"
)

// Stats aggregates storage usage across the catalog.
type Stats struct {
	TotalFiles          int     `json:"total_files"`
	UniqueFiles         int     `json:"unique_files"`
	Rows                int     `json:"-"`
	TotalSizeBytes      int64   `json:"total_size_bytes"`
	PhysicalSizeBytes   int64   `json:"physical_size_bytes"`
	SavedSizeBytes      int64   `json:"saved_size_bytes"`
	DuplicatePercentage float64 `json:"duplicate_percentage"`
}

// SavedFiles is the number of uploads that did not need new storage.
func (s Stats) SavedFiles() int {
	return s.TotalFiles - s.Rows
}

// Stats computes storage statistics over every file.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	files, err := s.catalog.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	st := ComputeStats(files)
	return &st, nil
}

// ComputeStats derives Stats from a set of rows.
func ComputeStats(files []*db.File) Stats {
	var st Stats
	hashes := make(map[string]struct{}, len(files))
	for _, f := range files {
		st.TotalFiles += f.ReferenceCount
		st.TotalSizeBytes += f.Size * int64(f.ReferenceCount)
		st.PhysicalSizeBytes += f.Size
		if f.Hash != "" {
			hashes[f.Hash] = struct{}{}
		}
	}
	st.Rows = len(files)
	st.UniqueFiles = len(hashes)
	st.SavedSizeBytes = st.TotalSizeBytes - st.PhysicalSizeBytes
	if st.TotalFiles > 0 {
		st.DuplicatePercentage = float64(st.TotalFiles-st.Rows) / float64(st.TotalFiles) * 100
	}
	return st
}
