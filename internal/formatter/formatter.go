// Package formatter renders tool results as the assistant's reply text.
// Every template is deterministic so replies can be asserted verbatim.
package formatter

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/diane-assistant/filevault/mcp/tools"
	"github.com/diane-assistant/filevault/mcp/tools/files"
)

// ConfirmDeletionText asks the user to confirm a pending deletion.
const ConfirmDeletionText = "Please confirm if you want to delete these files by typing 'yes'."

// HumanSize renders a byte count as "512 bytes", "1.5 KB", "2.0 MB" or "1.0 GB".
func HumanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d bytes", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	case n < 1<<30:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	}
}

// Format renders the result of a successful tool call.
func Format(tool string, result interface{}) string {
	switch r := result.(type) {
	case *files.SearchResult:
		return formatSearch(r)
	case *files.ListResult:
		return formatList(r)
	case *files.FindResult:
		return formatFind(r)
	case *files.DeleteResult:
		return formatDelete(r)
	case *files.UploadInstructions:
		return r.Message
	case map[string]interface{}:
		return FormatMap(r)
	case nil:
		return "No results found."
	default:
		return fmt.Sprintf("Result from %s: %v", tool, r)
	}
}

// FormatError renders a failed tool call. Tool errors never abort a
// conversation; they become the reply.
func FormatError(err error) string {
	var te *tools.ToolError
	if errors.As(err, &te) {
		if te.Kind == tools.KindConfirmationRequired {
			return ConfirmDeletionText
		}
		return "Error: " + te.Message
	}
	return "Error: " + err.Error()
}

func writeFileLine(b *strings.Builder, idx int, f files.FileInfo) {
	fmt.Fprintf(b, "%d. %s (%s) - %s\n", idx, f.Filename, f.FileType, HumanSize(f.Size))
}

func formatSearch(r *files.SearchResult) string {
	if len(r.Files) == 0 {
		return "I didn't find any files matching your query. Try a different search term or check if the files exist."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d files matching your query:\n\n", len(r.Files))
	for i, f := range r.Files {
		writeFileLine(&b, i+1, f)
	}
	return b.String()
}

func formatList(r *files.ListResult) string {
	s := r.Summary
	var b strings.Builder
	b.WriteString("File Storage Summary:\n")
	fmt.Fprintf(&b, "Total Files: %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "Unique Files: %d\n", s.UniqueFiles)
	fmt.Fprintf(&b, "Total Storage: %s\n", HumanSize(s.TotalSizeBytes))
	fmt.Fprintf(&b, "Deduplication Savings: %.1f%% (%d files)\n\n", s.DuplicatePercentage, s.SavedFiles())

	switch {
	case len(r.Files) > 0:
		fmt.Fprintf(&b, "Files (%d):\n\n", len(r.Files))
		for i, f := range r.Files {
			writeFileLine(&b, i+1, f)
			if f.ReferenceCount > 1 {
				fmt.Fprintf(&b, "   References: %d\n", f.ReferenceCount)
			}
		}
	case s.TotalFiles > 0:
		fmt.Fprintf(&b, "You have %d files in storage. Request details to see the list.", s.TotalFiles)
	default:
		b.WriteString("There are no files in storage yet. Use the Upload button to add files.")
	}
	return b.String()
}

func formatFind(r *files.FindResult) string {
	if len(r.Files) == 0 {
		return fmt.Sprintf("I didn't find any files matching the pattern '%s'. Try a different pattern or check if the files exist.", r.Pattern)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d files matching the pattern '%s':\n\n", len(r.Files), r.Pattern)
	for i, f := range r.Files {
		writeFileLine(&b, i+1, f)
	}
	b.WriteString("\nTo delete these files, simply type 'yes'.")
	return b.String()
}

func formatDelete(r *files.DeleteResult) string {
	if r.DeletedCount == 0 {
		return "No files were deleted. There might have been an error or the files may not exist."
	}
	var b strings.Builder
	noun := "file"
	if r.DeletedCount > 1 {
		noun = "files"
	}
	fmt.Fprintf(&b, "Successfully deleted %d %s.", r.DeletedCount, noun)
	if len(r.FilesInfo) > 0 {
		b.WriteString(" The following files were deleted:\n\n")
		for i, f := range r.FilesInfo {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f.Filename)
		}
	}
	return b.String()
}

// priorityKeys are rendered first, in this order, by FormatMap.
var priorityKeys = []string{"message", "status", "file_id", "filename", "size", "is_duplicate"}

// FormatMap renders an ad hoc result. An "error" key short-circuits to
// "Error: ...". Known keys come first, then the rest sorted by name.
func FormatMap(m map[string]interface{}) string {
	if len(m) == 0 {
		return "No results found."
	}
	if e, ok := m["error"]; ok {
		return fmt.Sprintf("Error: %v", e)
	}

	var b strings.Builder
	seen := make(map[string]bool, len(priorityKeys))
	for _, k := range priorityKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		seen[k] = true
		switch k {
		case "message":
			fmt.Fprintf(&b, "%v\n\n", v)
		case "status":
			fmt.Fprintf(&b, "Status: %v\n", v)
		case "file_id":
			fmt.Fprintf(&b, "File ID: %v\n", v)
		case "filename":
			fmt.Fprintf(&b, "Filename: %v\n", v)
		case "size":
			if n, ok := asInteger(v); ok {
				fmt.Fprintf(&b, "Size: %s\n", HumanSize(n))
			} else {
				fmt.Fprintf(&b, "Size: %v\n", v)
			}
		case "is_duplicate":
			fmt.Fprintf(&b, "Is duplicate: %v\n", v)
		}
	}

	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		fmt.Fprintf(&b, "%s: %v\n", k, m[k])
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "No results found."
	}
	return out
}

func asInteger(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	}
	return 0, false
}
