package files

import (
	"time"

	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
)

// FileInfo is the view of a file reported by the tools.
type FileInfo struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	FileType       string    `json:"file_type"`
	Size           int64     `json:"size"`
	ReferenceCount int       `json:"reference_count"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

func fileInfo(f *db.File) FileInfo {
	return FileInfo{
		ID:             f.ID,
		Filename:       f.OriginalFilename,
		FileType:       f.FileType,
		Size:           f.Size,
		ReferenceCount: f.ReferenceCount,
		UploadedAt:     f.UploadedAt,
	}
}

// SearchResult is returned by search_files.
type SearchResult struct {
	Query string     `json:"query"`
	Files []FileInfo `json:"results"`
}

// ListResult is returned by list_or_show_files. Summary covers every file;
// Files holds at most limit entries of the filtered set.
type ListResult struct {
	Summary        contentstore.Stats `json:"summary"`
	Files          []FileInfo         `json:"files"`
	FilteredCount  int                `json:"filtered_count"`
	IncludeDetails bool               `json:"include_details"`
}

// FindResult is returned by find_files_to_delete.
type FindResult struct {
	Pattern  string     `json:"pattern"`
	FileType string     `json:"file_type,omitempty"`
	Files    []FileInfo `json:"results"`
}

// IDs returns the ids of the matched files.
func (r *FindResult) IDs() []string {
	ids := make([]string, len(r.Files))
	for i, f := range r.Files {
		ids[i] = f.ID
	}
	return ids
}

// DeleteResult is returned by a confirmed delete_files.
type DeleteResult struct {
	DeletedCount   int        `json:"deleted_count"`
	TotalRequested int        `json:"total_requested"`
	FilesInfo      []FileInfo `json:"files_info"`
}

// UploadInstructions is returned by upload_file; the model cannot carry
// file bytes, so the tool only explains how to upload.
type UploadInstructions struct {
	Message string `json:"message"`
}

// UploadInstructionsText is the message of UploadInstructions.
const UploadInstructionsText = "To upload a file, please use the Upload button in the navigation bar or drag and drop files into the upload area."
