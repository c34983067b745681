package contentstore

import "strings"

// Category is a resolved media-type filter.
type Category struct {
	// Pattern is the concrete media type, or a prefix when Prefix is set.
	Pattern string
	Prefix  bool
}

var categoryAliases = map[string]Category{
	"pdf":   {Pattern: "application/pdf"},
	"image": {Pattern: "image/", Prefix: true},
	"doc":   {Pattern: "application/msword"},
	"docx":  {Pattern: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"txt":   {Pattern: "text/plain"},
	"csv":   {Pattern: "text/csv"},
	"xlsx":  {Pattern: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"zip":   {Pattern: "application/zip"},
}

// ResolveCategory maps a friendly name such as "pdf" or "image" to a media
// type pattern. Unmapped names pass through literally; a trailing "/" makes
// them a prefix match.
func ResolveCategory(name string) Category {
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return Category{Pattern: key, Prefix: strings.HasSuffix(key, "/")}
}

// Matches reports whether mediaType satisfies the category, ignoring case.
func (c Category) Matches(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	if c.Prefix {
		return strings.HasPrefix(mt, c.Pattern)
	}
	return mt == c.Pattern
}
