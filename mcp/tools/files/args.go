package files

import (
	"errors"
	"fmt"
	"strings"
)

// UploadFileArgs are the arguments of upload_file.
type UploadFileArgs struct {
	Filename string `json:"filename" jsonschema_description:"Name of the file to upload"`
	FileType string `json:"file_type" jsonschema_description:"MIME type of the file (e.g., 'application/pdf')"`
	Size     int64  `json:"size,omitempty" jsonschema_description:"Size of the file in bytes"`
}

func (a *UploadFileArgs) Validate() error {
	if strings.TrimSpace(a.Filename) == "" {
		return errors.New("filename is required")
	}
	if strings.TrimSpace(a.FileType) == "" {
		return errors.New("file_type is required")
	}
	if a.Size < 0 {
		return errors.New("size must not be negative")
	}
	return nil
}

// SearchFilesArgs are the arguments of search_files.
type SearchFilesArgs struct {
	Query    *string  `json:"query" jsonschema_description:"Search query string to match against filenames"`
	FileType string   `json:"file_type,omitempty" jsonschema_description:"Filter by file type (e.g., 'pdf', 'image')"`
	DateFrom string   `json:"date_from,omitempty" jsonschema_description:"Filter files uploaded on or after this date (format: YYYY-MM-DD)"`
	DateTo   string   `json:"date_to,omitempty" jsonschema_description:"Filter files uploaded on or before this date (format: YYYY-MM-DD)"`
	MinSize  *float64 `json:"min_size,omitempty" jsonschema_description:"Filter files larger than or equal to this size"`
	MaxSize  *float64 `json:"max_size,omitempty" jsonschema_description:"Filter files smaller than or equal to this size"`
	SizeUnit string   `json:"size_unit,omitempty" jsonschema:"enum=bytes,enum=KB,enum=MB,enum=GB" jsonschema_description:"Unit for size filters. Default is bytes"`
}

func (a *SearchFilesArgs) Validate() error {
	if a.Query == nil {
		return errors.New("query is required")
	}
	if _, err := newSizeRange(a.MinSize, a.MaxSize, a.SizeUnit); err != nil {
		return err
	}
	if _, err := newDateRange(a.DateFrom, a.DateTo); err != nil {
		return err
	}
	return nil
}

// ListOrShowFilesArgs are the arguments of list_or_show_files. Nil
// pointers take the documented defaults.
type ListOrShowFilesArgs struct {
	CommandType    string   `json:"command_type,omitempty" jsonschema:"enum=list,enum=show" jsonschema_description:"The type of command, either 'list' or 'show'; both perform the same operation"`
	Limit          *int     `json:"limit,omitempty" jsonschema_description:"Maximum number of files to list (default: 50)"`
	IncludeDetails *bool    `json:"include_details,omitempty" jsonschema_description:"Whether to include detailed information about each file (default: true)"`
	FileType       string   `json:"file_type,omitempty" jsonschema_description:"Filter by file type (e.g., 'pdf', 'image', 'png', 'jpg')"`
	MinSize        *float64 `json:"min_size,omitempty" jsonschema_description:"Filter files larger than or equal to this size"`
	MaxSize        *float64 `json:"max_size,omitempty" jsonschema_description:"Filter files smaller than or equal to this size"`
	SizeUnit       string   `json:"size_unit,omitempty" jsonschema:"enum=bytes,enum=KB,enum=MB,enum=GB" jsonschema_description:"Unit for size filters. Default is bytes"`
}

const (
	defaultListLimit = 50
	defaultFindLimit = 20
)

func (a *ListOrShowFilesArgs) Validate() error {
	switch strings.ToLower(a.CommandType) {
	case "", "list", "show":
	default:
		return fmt.Errorf("command_type must be 'list' or 'show', got %q", a.CommandType)
	}
	if a.Limit != nil && *a.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	_, err := newSizeRange(a.MinSize, a.MaxSize, a.SizeUnit)
	return err
}

func (a *ListOrShowFilesArgs) limit() int {
	if a.Limit == nil {
		return defaultListLimit
	}
	return *a.Limit
}

func (a *ListOrShowFilesArgs) includeDetails() bool {
	return a.IncludeDetails == nil || *a.IncludeDetails
}

// FindFilesToDeleteArgs are the arguments of find_files_to_delete.
type FindFilesToDeleteArgs struct {
	NamePattern *string `json:"name_pattern" jsonschema_description:"Pattern to match against filenames (e.g., '.pdf', 'report', '.png')"`
	FileType    string  `json:"file_type,omitempty" jsonschema_description:"Filter by file type (e.g., 'pdf', 'image', 'png', 'jpg')"`
	Limit       *int    `json:"limit,omitempty" jsonschema_description:"Maximum number of files to find (default: 20)"`
}

func (a *FindFilesToDeleteArgs) Validate() error {
	if a.NamePattern == nil {
		return errors.New("name_pattern is required")
	}
	if a.Limit != nil && *a.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

// limit returns the match cap; zero means unlimited.
func (a *FindFilesToDeleteArgs) limit() int {
	if a.Limit == nil {
		return defaultFindLimit
	}
	return *a.Limit
}

// DeleteFilesArgs are the arguments of delete_files. An empty FileIDs
// refers to the files proposed by the last find_files_to_delete call of
// the session.
type DeleteFilesArgs struct {
	FileIDs   []string `json:"file_ids,omitempty" jsonschema_description:"File IDs to delete. Omit to delete the files found by find_files_to_delete"`
	Confirmed *bool    `json:"confirmed" jsonschema_description:"Whether the user has confirmed the deletion"`
}

func (a *DeleteFilesArgs) Validate() error {
	if a.Confirmed == nil {
		return errors.New("confirmed is required")
	}
	for _, id := range a.FileIDs {
		if strings.TrimSpace(id) == "" {
			return errors.New("file_ids must not contain empty ids")
		}
	}
	return nil
}
