package files

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diane-assistant/filevault/internal/blob"
	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/mcp/tools"
)

const session = "5f0c7a52-4f0e-4b8b-9d7e-2b0c3c1e9a10"

func newTestStore(t *testing.T) *contentstore.Store {
	t.Helper()
	dir := t.TempDir()
	d, err := db.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	return contentstore.New(d, blobs, contentstore.Options{TempDir: dir})
}

func upload(t *testing.T, s *contentstore.Store, name, mediaType, content string) *db.File {
	t.Helper()
	f, _, err := s.Upload(context.Background(), strings.NewReader(content), name, mediaType, int64(len(content)))
	require.NoError(t, err)
	return f
}

func fileCount(t *testing.T, s *contentstore.Store) int {
	t.Helper()
	all, err := s.List(context.Background())
	require.NoError(t, err)
	return len(all)
}

func TestToolsCatalog(t *testing.T) {
	p := NewProvider(newTestStore(t), nil)
	names := []string{}
	for _, tool := range p.Tools() {
		names = append(names, tool.Name)
		assert.True(t, p.HasTool(tool.Name))
		require.NotNil(t, tool.InputSchema)
	}
	assert.Equal(t, []string{ToolUploadFile, ToolSearchFiles, ToolListOrShowFiles, ToolFindFilesToDelete, ToolDeleteFiles}, names)
	assert.False(t, p.HasTool("rm_rf"))

	schema := p.Tools()[4].SchemaMap()
	assert.ElementsMatch(t, []interface{}{"confirmed"}, schema["required"])
}

func TestUnknownToolDoesNotMutate(t *testing.T) {
	s := newTestStore(t)
	upload(t, s, "a.txt", "text/plain", "aaa")
	p := NewProvider(s, nil)

	_, err := p.Call(context.Background(), session, "drop_everything", map[string]interface{}{"confirmed": true})
	require.Error(t, err)
	assert.Equal(t, tools.KindUnknownTool, tools.KindOf(err))
	assert.Equal(t, 1, fileCount(t, s))
}

func TestInvalidArgs(t *testing.T) {
	p := NewProvider(newTestStore(t), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
	}{
		{"search without query", ToolSearchFiles, map[string]interface{}{}},
		{"bad size unit", ToolSearchFiles, map[string]interface{}{"query": "", "min_size": 1.0, "size_unit": "parsecs"}},
		{"bad date", ToolSearchFiles, map[string]interface{}{"query": "", "date_from": "last tuesday"}},
		{"query wrong type", ToolSearchFiles, map[string]interface{}{"query": 42}},
		{"negative limit", ToolListOrShowFiles, map[string]interface{}{"limit": -1.0}},
		{"bad command", ToolListOrShowFiles, map[string]interface{}{"command_type": "explode"}},
		{"find without pattern", ToolFindFilesToDelete, map[string]interface{}{}},
		{"delete without confirmed", ToolDeleteFiles, map[string]interface{}{"file_ids": []interface{}{"x"}}},
		{"confirmed not bool", ToolDeleteFiles, map[string]interface{}{"file_ids": []interface{}{"x"}, "confirmed": "yes"}},
		{"upload without name", ToolUploadFile, map[string]interface{}{"file_type": "text/plain"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Call(ctx, session, tt.tool, tt.args)
			require.Error(t, err)
			assert.Equal(t, tools.KindInvalidArgs, tools.KindOf(err))
		})
	}
}

func TestUploadFileIsInformational(t *testing.T) {
	s := newTestStore(t)
	p := NewProvider(s, nil)
	out, err := p.Call(context.Background(), session, ToolUploadFile, map[string]interface{}{
		"filename": "x.pdf", "file_type": "application/pdf", "size": 10.0,
	})
	require.NoError(t, err)
	assert.Equal(t, UploadInstructionsText, out.(*UploadInstructions).Message)
	assert.Equal(t, 0, fileCount(t, s))
}

func TestSearchFiles(t *testing.T) {
	s := newTestStore(t)
	upload(t, s, "Report-2024.pdf", "application/pdf", strings.Repeat("r", 2048))
	upload(t, s, "report.txt", "text/plain", "tiny")
	upload(t, s, "photo.png", "image/png", strings.Repeat("p", 4096))
	p := NewProvider(s, nil)
	ctx := context.Background()

	out, err := p.Call(ctx, session, ToolSearchFiles, map[string]interface{}{"query": "REPORT"})
	require.NoError(t, err)
	assert.Len(t, out.(*SearchResult).Files, 2)

	out, err = p.Call(ctx, session, ToolSearchFiles, map[string]interface{}{"query": "report", "file_type": "pdf"})
	require.NoError(t, err)
	require.Len(t, out.(*SearchResult).Files, 1)
	assert.Equal(t, "Report-2024.pdf", out.(*SearchResult).Files[0].Filename)

	out, err = p.Call(ctx, session, ToolSearchFiles, map[string]interface{}{"query": "", "file_type": "image"})
	require.NoError(t, err)
	assert.Len(t, out.(*SearchResult).Files, 1)

	out, err = p.Call(ctx, session, ToolSearchFiles, map[string]interface{}{"query": "", "min_size": 2.0, "max_size": 4.0, "size_unit": "kb"})
	require.NoError(t, err)
	assert.Len(t, out.(*SearchResult).Files, 2, "bounds are inclusive")

	out, err = p.Call(ctx, session, ToolSearchFiles, map[string]interface{}{"query": "", "date_to": "2000-01-01"})
	require.NoError(t, err)
	assert.Empty(t, out.(*SearchResult).Files)
}

func TestListOrShowFiles(t *testing.T) {
	s := newTestStore(t)
	upload(t, s, "a.txt", "text/plain", "aaaa")
	upload(t, s, "a-copy.txt", "text/plain", "aaaa")
	upload(t, s, "b.pdf", "application/pdf", "bbbbbbbb")
	upload(t, s, "c.pdf", "application/pdf", "cc")
	p := NewProvider(s, nil)
	ctx := context.Background()

	out, err := p.Call(ctx, session, ToolListOrShowFiles, map[string]interface{}{"command_type": "show"})
	require.NoError(t, err)
	res := out.(*ListResult)
	assert.Equal(t, 4, res.Summary.TotalFiles)
	assert.Equal(t, 3, res.Summary.UniqueFiles)
	assert.Equal(t, 3, res.FilteredCount)
	require.Len(t, res.Files, 3)
	assert.Equal(t, "a.txt", res.Files[0].Filename)
	assert.Equal(t, 2, res.Files[0].ReferenceCount)

	out, err = p.Call(ctx, session, ToolListOrShowFiles, map[string]interface{}{"file_type": "pdf", "limit": 1.0})
	require.NoError(t, err)
	res = out.(*ListResult)
	assert.Equal(t, 4, res.Summary.TotalFiles, "summary ignores filters")
	assert.Equal(t, 2, res.FilteredCount)
	assert.Len(t, res.Files, 1)

	out, err = p.Call(ctx, session, ToolListOrShowFiles, map[string]interface{}{"include_details": false})
	require.NoError(t, err)
	res = out.(*ListResult)
	assert.Empty(t, res.Files)
	assert.Equal(t, 3, res.FilteredCount)
}

func TestTwoPhaseDelete(t *testing.T) {
	s := newTestStore(t)
	upload(t, s, "draft-1.txt", "text/plain", "one")
	upload(t, s, "draft-2.txt", "text/plain", "two")
	keep := upload(t, s, "final.txt", "text/plain", "three")
	p := NewProvider(s, nil)
	ctx := context.Background()

	out, err := p.Call(ctx, session, ToolFindFilesToDelete, map[string]interface{}{"name_pattern": "draft"})
	require.NoError(t, err)
	found := out.(*FindResult)
	require.Len(t, found.Files, 2)
	assert.Equal(t, 3, fileCount(t, s), "find is read-only")
	assert.Equal(t, found.IDs(), p.Pending().Peek(session))

	_, err = p.Call(ctx, session, ToolDeleteFiles, map[string]interface{}{"confirmed": false})
	require.Error(t, err)
	assert.Equal(t, tools.KindConfirmationRequired, tools.KindOf(err))
	var te *tools.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.TotalRequested)
	assert.Equal(t, 3, fileCount(t, s))
	assert.Len(t, p.Pending().Peek(session), 2, "unconfirmed delete keeps pending ids")

	out, err = p.Call(ctx, session, ToolDeleteFiles, map[string]interface{}{"confirmed": true})
	require.NoError(t, err)
	del := out.(*DeleteResult)
	assert.Equal(t, 2, del.DeletedCount)
	assert.Equal(t, 2, del.TotalRequested)
	assert.Len(t, del.FilesInfo, 2)
	assert.Equal(t, 1, fileCount(t, s))
	assert.Empty(t, p.Pending().Peek(session))

	_, err = s.Get(ctx, keep.ID)
	assert.NoError(t, err)

	out, err = p.Call(ctx, session, ToolDeleteFiles, map[string]interface{}{"confirmed": true})
	require.NoError(t, err)
	assert.Equal(t, 0, out.(*DeleteResult).DeletedCount, "nothing pending deletes nothing")
	assert.Equal(t, 1, fileCount(t, s))
}

func TestDeleteExplicitIDsSkipsMissing(t *testing.T) {
	s := newTestStore(t)
	f := upload(t, s, "x.txt", "text/plain", "x")
	p := NewProvider(s, nil)

	out, err := p.Call(context.Background(), session, ToolDeleteFiles, map[string]interface{}{
		"file_ids":  []interface{}{f.ID, "missing"},
		"confirmed": true,
	})
	require.NoError(t, err)
	res := out.(*DeleteResult)
	assert.Equal(t, 1, res.DeletedCount)
	assert.Equal(t, 2, res.TotalRequested)
}

func TestPendingIsPerSession(t *testing.T) {
	s := newTestStore(t)
	upload(t, s, "old.log", "text/plain", "old")
	p := NewProvider(s, nil)
	ctx := context.Background()

	_, err := p.Call(ctx, "session-a", ToolFindFilesToDelete, map[string]interface{}{"name_pattern": "old"})
	require.NoError(t, err)

	out, err := p.Call(ctx, "session-b", ToolDeleteFiles, map[string]interface{}{"confirmed": true})
	require.NoError(t, err)
	assert.Equal(t, 0, out.(*DeleteResult).DeletedCount)
	assert.Equal(t, 1, fileCount(t, s))
}

func TestFindLimit(t *testing.T) {
	s := newTestStore(t)
	for _, c := range []string{"1", "2", "3"} {
		upload(t, s, "tmp"+c, "text/plain", c)
	}
	p := NewProvider(s, nil)
	out, err := p.Call(context.Background(), session, ToolFindFilesToDelete, map[string]interface{}{"name_pattern": "tmp", "limit": 2.0})
	require.NoError(t, err)
	assert.Len(t, out.(*FindResult).Files, 2)
}
