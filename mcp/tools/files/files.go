// Package files provides the assistant's file tools: upload instructions,
// search, listing with storage statistics, and the two-step
// find-then-delete workflow over the content store.
package files

import (
	"context"
	"errors"
	"log/slog"

	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/mcp/tools"
)

// Tool names.
const (
	ToolUploadFile        = "upload_file"
	ToolSearchFiles       = "search_files"
	ToolListOrShowFiles   = "list_or_show_files"
	ToolFindFilesToDelete = "find_files_to_delete"
	ToolDeleteFiles       = "delete_files"
)

// FileStore is the part of the content store the tools use.
type FileStore interface {
	List(ctx context.Context) ([]*db.File, error)
	Get(ctx context.Context, id string) (*db.File, error)
	Delete(ctx context.Context, id string) (bool, error)
}

var _ FileStore = (*contentstore.Store)(nil)

// Provider implements the file tools.
type Provider struct {
	store   FileStore
	pending *PendingActions
}

// NewProvider creates a files provider. pending may be shared with the
// caller so it can drop a session's state; nil allocates a private one.
func NewProvider(store FileStore, pending *PendingActions) *Provider {
	if pending == nil {
		pending = NewPendingActions()
	}
	return &Provider{store: store, pending: pending}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "files"
}

// Pending returns the pending-deletion store used by the provider.
func (p *Provider) Pending() *PendingActions {
	return p.pending
}

// Tools returns the file tools in a fixed order.
func (p *Provider) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        ToolUploadFile,
			Description: "Explains how to upload a file to the system. Files are deduplicated on upload.",
			InputSchema: tools.GenerateSchema[UploadFileArgs](),
		},
		{
			Name:        ToolSearchFiles,
			Description: "Searches for files based on filename, type, upload date or size.",
			InputSchema: tools.GenerateSchema[SearchFilesArgs](),
		},
		{
			Name:        ToolListOrShowFiles,
			Description: "Lists or shows all files with their details and provides a summary of total size and count. Handles both 'list' and 'show' commands.",
			InputSchema: tools.GenerateSchema[ListOrShowFilesArgs](),
		},
		{
			Name:        ToolFindFilesToDelete,
			Description: "Finds files with names matching a pattern that could be deleted. This is the first step of a two-step deletion process.",
			InputSchema: tools.GenerateSchema[FindFilesToDeleteArgs](),
		},
		{
			Name:        ToolDeleteFiles,
			Description: "Deletes files by IDs. Only use after find_files_to_delete and explicit user confirmation.",
			InputSchema: tools.GenerateSchema[DeleteFilesArgs](),
		},
	}
}

// HasTool checks if a tool name belongs to this provider
func (p *Provider) HasTool(name string) bool {
	switch name {
	case ToolUploadFile, ToolSearchFiles, ToolListOrShowFiles, ToolFindFilesToDelete, ToolDeleteFiles:
		return true
	}
	return false
}

// Call executes a tool by name for a session.
func (p *Provider) Call(ctx context.Context, sessionID, name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case ToolUploadFile:
		if _, err := tools.DecodeArgs[UploadFileArgs](name, args); err != nil {
			return nil, err
		}
		return &UploadInstructions{Message: UploadInstructionsText}, nil
	case ToolSearchFiles:
		a, err := tools.DecodeArgs[SearchFilesArgs](name, args)
		if err != nil {
			return nil, err
		}
		return p.search(ctx, a)
	case ToolListOrShowFiles:
		a, err := tools.DecodeArgs[ListOrShowFilesArgs](name, args)
		if err != nil {
			return nil, err
		}
		return p.list(ctx, a)
	case ToolFindFilesToDelete:
		a, err := tools.DecodeArgs[FindFilesToDeleteArgs](name, args)
		if err != nil {
			return nil, err
		}
		return p.findToDelete(ctx, sessionID, a)
	case ToolDeleteFiles:
		a, err := tools.DecodeArgs[DeleteFilesArgs](name, args)
		if err != nil {
			return nil, err
		}
		return p.delete(ctx, sessionID, a)
	default:
		return nil, tools.UnknownTool(name)
	}
}

func (p *Provider) search(ctx context.Context, a *SearchFilesArgs) (*SearchResult, error) {
	sizes, _ := newSizeRange(a.MinSize, a.MaxSize, a.SizeUnit)
	dates, _ := newDateRange(a.DateFrom, a.DateTo)
	types := newTypeFilter(a.FileType)

	all, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	res := &SearchResult{Query: *a.Query, Files: []FileInfo{}}
	for _, f := range all {
		if nameContains(f, *a.Query) && types.matches(f) && dates.contains(f.UploadedAt) && sizes.contains(f.Size) {
			res.Files = append(res.Files, fileInfo(f))
		}
	}
	return res, nil
}

func (p *Provider) list(ctx context.Context, a *ListOrShowFilesArgs) (*ListResult, error) {
	sizes, _ := newSizeRange(a.MinSize, a.MaxSize, a.SizeUnit)
	types := newTypeFilter(a.FileType)

	all, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	res := &ListResult{
		Summary:        contentstore.ComputeStats(all),
		Files:          []FileInfo{},
		IncludeDetails: a.includeDetails(),
	}
	limit := a.limit()
	for _, f := range all {
		if !types.matches(f) || !sizes.contains(f.Size) {
			continue
		}
		res.FilteredCount++
		if res.IncludeDetails && len(res.Files) < limit {
			res.Files = append(res.Files, fileInfo(f))
		}
	}
	return res, nil
}

// findToDelete is read-only apart from recording the matches as the
// session's pending deletion.
func (p *Provider) findToDelete(ctx context.Context, sessionID string, a *FindFilesToDeleteArgs) (*FindResult, error) {
	types := newTypeFilter(a.FileType)

	all, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	res := &FindResult{Pattern: *a.NamePattern, FileType: a.FileType, Files: []FileInfo{}}
	limit := a.limit()
	for _, f := range all {
		if limit > 0 && len(res.Files) >= limit {
			break
		}
		if nameContains(f, *a.NamePattern) && types.matches(f) {
			res.Files = append(res.Files, fileInfo(f))
		}
	}
	p.pending.Set(sessionID, res.IDs())
	return res, nil
}

func (p *Provider) delete(ctx context.Context, sessionID string, a *DeleteFilesArgs) (*DeleteResult, error) {
	ids := a.FileIDs
	if !*a.Confirmed {
		if len(ids) == 0 {
			ids = p.pending.Peek(sessionID)
		}
		return nil, &tools.ToolError{
			Kind:           tools.KindConfirmationRequired,
			Tool:           ToolDeleteFiles,
			Message:        "deletion not confirmed",
			TotalRequested: len(ids),
		}
	}

	pending := p.pending.Take(sessionID)
	if len(ids) == 0 {
		ids = pending
	}

	res := &DeleteResult{TotalRequested: len(ids), FilesInfo: []FileInfo{}}
	for _, id := range ids {
		f, err := p.store.Get(ctx, id)
		if errors.Is(err, contentstore.ErrNotFound) {
			slog.Warn("File to delete not found", "session_id", sessionID, "id", id)
			continue
		}
		if err != nil {
			slog.Error("Failed to look up file for deletion", "id", id, "error", err)
			continue
		}
		deleted, err := p.store.Delete(ctx, id)
		if err != nil {
			slog.Error("Failed to delete file", "id", id, "error", err)
			continue
		}
		if deleted {
			res.DeletedCount++
			res.FilesInfo = append(res.FilesInfo, fileInfo(f))
		}
	}
	slog.Info("Files deleted", "session_id", sessionID, "deleted", res.DeletedCount, "requested", res.TotalRequested)
	return res, nil
}
