package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diane-assistant/filevault/internal/blob"
	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/mcp/tools/files"
)

func newTestServer(t *testing.T) (*Server, *contentstore.Store) {
	t.Helper()
	dir := t.TempDir()
	d, err := db.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	cs := contentstore.New(d, blobs, contentstore.Options{TempDir: dir})
	return NewServer(files.NewProvider(cs, nil)), cs
}

func roundTrip(t *testing.T, s *Server, lines ...string) []MCPResponse {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")), &out))

	var resps []MCPResponse
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r MCPResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		resps = append(resps, r)
	}
	return resps
}

func resultText(t *testing.T, r MCPResponse) string {
	t.Helper()
	m, ok := r.Result.(map[string]interface{})
	require.True(t, ok, "result is an object: %#v", r.Result)
	content := m["content"].([]interface{})
	return content[0].(map[string]interface{})["text"].(string)
}

func TestInitializeAndList(t *testing.T) {
	s, _ := newTestServer(t)
	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"bogus"}`,
	)
	require.Len(t, resps, 3, "notifications get no response")

	info := resps[0].Result.(map[string]interface{})
	assert.Equal(t, ProtocolVersion, info["protocolVersion"])

	list := resps[1].Result.(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, list, 5)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "upload_file", first["name"])
	assert.Contains(t, first, "inputSchema")

	require.NotNil(t, resps[2].Error)
	assert.Equal(t, codeMethodNotFound, resps[2].Error.Code)
}

func TestCallTools(t *testing.T) {
	s, cs := newTestServer(t)
	_, _, err := cs.Upload(context.Background(), strings.NewReader("hello"), "notes.txt", "text/plain", 5)
	require.NoError(t, err)

	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_files","arguments":{"query":"notes"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"find_files_to_delete","arguments":{"name_pattern":"notes"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"delete_files","arguments":{"confirmed":false}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"delete_files","arguments":{"confirmed":true}}}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"search_files","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
	)
	require.Len(t, resps, 6)

	assert.Equal(t, "I found 1 files matching your query:\n\n1. notes.txt (text/plain) - 5 bytes\n", resultText(t, resps[0]))
	assert.Contains(t, resultText(t, resps[1]), "simply type 'yes'")

	require.NotNil(t, resps[2].Error)
	assert.Equal(t, "Please confirm if you want to delete these files by typing 'yes'.", resps[2].Error.Message)

	assert.Equal(t, "Successfully deleted 1 file. The following files were deleted:\n\n1. notes.txt\n", resultText(t, resps[3]))

	require.NotNil(t, resps[4].Error)
	assert.Equal(t, codeInvalidParams, resps[4].Error.Code)

	require.NotNil(t, resps[5].Error)
	assert.Equal(t, codeMethodNotFound, resps[5].Error.Code)
}
