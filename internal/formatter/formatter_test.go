package formatter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/mcp/tools"
	"github.com/diane-assistant/filevault/mcp/tools/files"
)

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 bytes"},
		{512, "512 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{2097152, "2.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanSize(tt.in))
	}
}

func TestFormatSearch(t *testing.T) {
	got := Format(files.ToolSearchFiles, &files.SearchResult{Files: []files.FileInfo{
		{Filename: "a.pdf", FileType: "application/pdf", Size: 1536},
		{Filename: "b.txt", FileType: "text/plain", Size: 10},
	}})
	assert.Equal(t, "I found 2 files matching your query:\n\n1. a.pdf (application/pdf) - 1.5 KB\n2. b.txt (text/plain) - 10 bytes\n", got)

	got = Format(files.ToolSearchFiles, &files.SearchResult{})
	assert.Equal(t, "I didn't find any files matching your query. Try a different search term or check if the files exist.", got)
}

func TestFormatList(t *testing.T) {
	summary := contentstore.Stats{TotalFiles: 4, UniqueFiles: 3, Rows: 3, TotalSizeBytes: 2048, DuplicatePercentage: 25}
	got := Format(files.ToolListOrShowFiles, &files.ListResult{
		Summary: summary,
		Files: []files.FileInfo{
			{Filename: "a.txt", FileType: "text/plain", Size: 1024, ReferenceCount: 2},
			{Filename: "b.txt", FileType: "text/plain", Size: 0, ReferenceCount: 1},
		},
	})
	want := "File Storage Summary:\nTotal Files: 4\nUnique Files: 3\nTotal Storage: 2.0 KB\nDeduplication Savings: 25.0% (1 files)\n\n" +
		"Files (2):\n\n1. a.txt (text/plain) - 1.0 KB\n   References: 2\n2. b.txt (text/plain) - 0 bytes\n"
	assert.Equal(t, want, got)

	got = Format(files.ToolListOrShowFiles, &files.ListResult{Summary: summary})
	assert.Contains(t, got, "You have 4 files in storage. Request details to see the list.")

	got = Format(files.ToolListOrShowFiles, &files.ListResult{})
	assert.Contains(t, got, "Deduplication Savings: 0.0% (0 files)")
	assert.Contains(t, got, "There are no files in storage yet. Use the Upload button to add files.")
}

func TestFormatFind(t *testing.T) {
	got := Format(files.ToolFindFilesToDelete, &files.FindResult{Pattern: "draft", Files: []files.FileInfo{
		{Filename: "draft.txt", FileType: "text/plain", Size: 3},
	}})
	assert.Equal(t, "I found 1 files matching the pattern 'draft':\n\n1. draft.txt (text/plain) - 3 bytes\n\nTo delete these files, simply type 'yes'.", got)

	got = Format(files.ToolFindFilesToDelete, &files.FindResult{Pattern: "zzz"})
	assert.Equal(t, "I didn't find any files matching the pattern 'zzz'. Try a different pattern or check if the files exist.", got)
}

func TestFormatDelete(t *testing.T) {
	got := Format(files.ToolDeleteFiles, &files.DeleteResult{DeletedCount: 1, TotalRequested: 1, FilesInfo: []files.FileInfo{{Filename: "a"}}})
	assert.Equal(t, "Successfully deleted 1 file. The following files were deleted:\n\n1. a\n", got)

	got = Format(files.ToolDeleteFiles, &files.DeleteResult{DeletedCount: 2, TotalRequested: 2, FilesInfo: []files.FileInfo{{Filename: "a"}, {Filename: "b"}}})
	assert.Equal(t, "Successfully deleted 2 files. The following files were deleted:\n\n1. a\n2. b\n", got)

	got = Format(files.ToolDeleteFiles, &files.DeleteResult{TotalRequested: 3})
	assert.Equal(t, "No files were deleted. There might have been an error or the files may not exist.", got)
}

func TestFormatError(t *testing.T) {
	confirm := &tools.ToolError{Kind: tools.KindConfirmationRequired, Tool: files.ToolDeleteFiles, Message: "deletion not confirmed", TotalRequested: 2}
	assert.Equal(t, ConfirmDeletionText, FormatError(confirm))
	assert.Equal(t, "Error: unknown tool: nope", FormatError(tools.UnknownTool("nope")))
	assert.Equal(t, "Error: disk on fire", FormatError(errors.New("disk on fire")))
}

func TestFormatMap(t *testing.T) {
	assert.Equal(t, "No results found.", FormatMap(nil))
	assert.Equal(t, "Error: boom", FormatMap(map[string]interface{}{"error": "boom", "status": "x"}))

	got := FormatMap(map[string]interface{}{
		"zeta":         1,
		"size":         float64(2097152),
		"filename":     "a.bin",
		"message":      "Uploaded",
		"is_duplicate": true,
		"alpha":        "first",
	})
	assert.Equal(t, "Uploaded\n\nFilename: a.bin\nSize: 2.0 MB\nIs duplicate: true\nalpha: first\nzeta: 1", got)

	assert.Equal(t, "Size: 1.5", FormatMap(map[string]interface{}{"size": 1.5}))
}

func TestFormatUploadInstructions(t *testing.T) {
	got := Format(files.ToolUploadFile, &files.UploadInstructions{Message: files.UploadInstructionsText})
	assert.Equal(t, files.UploadInstructionsText, got)
}
