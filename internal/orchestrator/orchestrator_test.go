package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diane-assistant/filevault/internal/blob"
	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/internal/formatter"
	"github.com/diane-assistant/filevault/internal/model"
	"github.com/diane-assistant/filevault/internal/model/modeltest"
	"github.com/diane-assistant/filevault/mcp/tools"
	"github.com/diane-assistant/filevault/mcp/tools/files"
)

type harness struct {
	orch    *Orchestrator
	db      *db.DB
	store   *contentstore.Store
	model   *modeltest.Scripted
	pending *files.PendingActions
}

func newHarness(t *testing.T, steps ...modeltest.Step) *harness {
	t.Helper()
	dir := t.TempDir()
	d, err := db.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	cs := contentstore.New(d, blobs, contentstore.Options{TempDir: dir})
	pending := files.NewPendingActions()
	scripted := modeltest.NewScripted(steps...)
	o := New(Options{
		Chats:   d,
		Files:   cs,
		Tools:   files.NewProvider(cs, pending),
		Pending: pending,
		Model:   scripted,
		Timeout: time.Second,
	})
	return &harness{orch: o, db: d, store: cs, model: scripted, pending: pending}
}

func (h *harness) upload(t *testing.T, name, content string) *db.File {
	t.Helper()
	f, _, err := h.store.Upload(context.Background(), strings.NewReader(content), name, "text/plain", int64(len(content)))
	require.NoError(t, err)
	return f
}

func (h *harness) messages(t *testing.T, sessionID string) []*db.ChatMessage {
	t.Helper()
	msgs, err := h.db.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	return msgs
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestUploadIntentShortCircuit(t *testing.T) {
	h := newHarness(t)
	resp, err := h.orch.ProcessMessage(context.Background(), Request{Message: "Please upload this file"})
	require.NoError(t, err)

	assert.Equal(t, UploadInstructionsReply, resp.Response)
	assert.Equal(t, "text", resp.Type)
	assert.Empty(t, h.model.Requests(), "model is not called")

	_, err = uuid.Parse(resp.SessionID)
	require.NoError(t, err)
	msgs := h.messages(t, resp.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, resp.MessageID, msgs[1].ID)
}

func TestRegexIntent(t *testing.T) {
	r := NewRegexIntent()
	for _, s := range []string{"upload this file", "Can you ATTACH the file?", "share files", "  please send file. "} {
		assert.True(t, r.DetectsUploadIntent(s), s)
	}
	for _, s := range []string{"list my files", "delete the uploaded report", "what did I share yesterday"} {
		assert.False(t, r.DetectsUploadIntent(s), s)
	}
}

func TestDirectTextReply(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("Hello!"))
	sid := uuid.NewString()

	resp, err := h.orch.ProcessMessage(context.Background(), Request{Message: "hi [FILES_ALREADY_PROCESSED]", SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Response)
	assert.Equal(t, sid, resp.SessionID, "well-formed unknown ids are created as given")

	reqs := h.model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hi", reqs[0].Prompt)
	assert.Len(t, reqs[0].Tools, 5)

	msgs := h.messages(t, sid)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Hello!", msgs[1].Content)
}

func TestInvalidSessionIDGetsFreshSession(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("ok"))
	resp, err := h.orch.ProcessMessage(context.Background(), Request{Message: "hi", SessionID: "not-a-uuid"})
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", resp.SessionID)
	_, err = uuid.Parse(resp.SessionID)
	assert.NoError(t, err)
}

func TestHistoryIsWrittenThrough(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("first"), modeltest.TextStep("second"))
	ctx := context.Background()

	resp, err := h.orch.ProcessMessage(ctx, Request{Message: "one"})
	require.NoError(t, err)
	_, err = h.orch.ProcessMessage(ctx, Request{Message: "two", SessionID: resp.SessionID})
	require.NoError(t, err)

	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].History)
	assert.Equal(t, []model.Message{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "first"},
	}, reqs[1].History)
	assert.Equal(t, 1, h.orch.CachedSessions())
}

func TestInlineFilesIngested(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("Sure, noted."))
	h.upload(t, "earlier.txt", "dup-content")

	resp, err := h.orch.ProcessMessage(context.Background(), Request{
		Message: "keep these",
		Files: []InlineFile{
			{Name: "new.txt", MimeType: "text/plain", Base64Data: b64("fresh")},
			{Name: "again.txt", MimeType: "text/plain", Base64Data: b64("dup-content")},
			{Name: "broken.bin", MimeType: "application/octet-stream", Base64Data: "%%% not base64 %%%"},
			{Name: "", Base64Data: b64("nameless")},
		},
	})
	require.NoError(t, err)

	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2, "malformed and nameless entries are skipped")

	prompt := h.model.Requests()[0].Prompt
	assert.True(t, strings.HasPrefix(prompt, "keep these\n\n\nAttached files:\n1. new.txt (text/plain), Size: 5 bytes, ID: "))
	assert.Contains(t, prompt, "2. earlier.txt (text/plain), Size: 11 bytes, ID: ")
	assert.Contains(t, prompt, " (Duplicate - Refs: 2)\n")
	assert.True(t, strings.HasSuffix(prompt, inlineFilesNote))

	assert.Equal(t, "I see you've attached 2 files: new.txt, earlier.txt. How can I help you with these files? I can assist with organizing, searching, or answering questions about them.\n\nSure, noted.", resp.Response)

	msgs := h.messages(t, resp.SessionID)
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].FileAttachments, 2)
}

func TestFileSummarySkippedWhenModelMentionsFiles(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("Your file looks great."))
	f := h.upload(t, "a.txt", "aaa")

	resp, err := h.orch.ProcessMessage(context.Background(), Request{AttachmentFileIDs: []string{f.ID, "missing-id"}})
	require.NoError(t, err)
	assert.Equal(t, "Your file looks great.", resp.Response)

	prompt := h.model.Requests()[0].Prompt
	assert.True(t, strings.HasPrefix(prompt, DefaultAttachmentMessage))
	assert.NotContains(t, prompt, "missing-id")
	assert.NotContains(t, prompt, "NOTE: Files were provided directly")

	msgs := h.messages(t, resp.SessionID)
	assert.Equal(t, []string{f.ID}, msgs[0].FileAttachments)
}

func TestUploadToolSuppressedForInlineFiles(t *testing.T) {
	h := newHarness(t, modeltest.ToolStep(files.ToolUploadFile, map[string]interface{}{"filename": "x.pdf", "file_type": "application/pdf"}))
	resp, err := h.orch.ProcessMessage(context.Background(), Request{
		Message: "here",
		Files:   []InlineFile{{Name: "x.pdf", MimeType: "application/pdf", Base64Data: b64("%PDF")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "I see you've already attached: x.pdf (application/pdf). What would you like me to do with these files?", resp.Response)
}

func TestUploadToolSuppressedWithNothingIngested(t *testing.T) {
	h := newHarness(t, modeltest.ToolStep(files.ToolUploadFile, map[string]interface{}{"filename": "x", "file_type": "y"}))
	resp, err := h.orch.ProcessMessage(context.Background(), Request{
		Message: "here",
		Files:   []InlineFile{{Name: "x", Base64Data: "***"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "I've received your files. What would you like me to do with them?", resp.Response)
}

func TestStatelessRetryExactlyOnce(t *testing.T) {
	h := newHarness(t, modeltest.ErrorStep(errors.New("history rejected")), modeltest.TextStep("recovered"))
	ctx := context.Background()
	sid := uuid.NewString()
	require.NoError(t, h.db.CreateSession(ctx, &db.ChatSession{ID: sid}))
	require.NoError(t, h.db.AppendMessages(ctx, sid, &db.ChatMessage{ID: uuid.NewString(), Role: db.RoleUser, Content: "old"}))

	resp, err := h.orch.ProcessMessage(ctx, Request{Message: "again", SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Response)

	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].History, 1)
	assert.Empty(t, reqs[1].History)
	assert.Equal(t, reqs[0].Prompt, reqs[1].Prompt)
}

func TestBothAttemptsFailBecomesReply(t *testing.T) {
	h := newHarness(t, modeltest.ErrorStep(errors.New("quota")), modeltest.ErrorStep(errors.New("still down")))
	resp, err := h.orch.ProcessMessage(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Error processing your request: still down", resp.Response)
	assert.Len(t, h.model.Requests(), 2)
}

func TestTimeoutTriggersRetry(t *testing.T) {
	h := newHarness(t, modeltest.Step{Block: true}, modeltest.TextStep("fast"))
	h.orch.timeout = 20 * time.Millisecond
	resp, err := h.orch.ProcessMessage(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Response)
}

func TestCancellationPersistsNothing(t *testing.T) {
	h := newHarness(t, modeltest.Step{Block: true}, modeltest.TextStep("never"))
	sid := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := h.orch.ProcessMessage(ctx, Request{Message: "hello", SessionID: sid})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Len(t, h.model.Requests(), 1, "no retry after cancellation")
	s, err := h.db.GetSession(context.Background(), sid)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 0, h.orch.CachedSessions())
}

// cancelAfterCall cancels the request context once the wrapped tool has run.
type cancelAfterCall struct {
	tools.ToolProvider
	cancel context.CancelFunc
}

func (c *cancelAfterCall) Call(ctx context.Context, sessionID, name string, args map[string]interface{}) (interface{}, error) {
	out, err := c.ToolProvider.Call(ctx, sessionID, name, args)
	c.cancel()
	return out, err
}

func TestCancellationAfterModelTurnStillPersists(t *testing.T) {
	h := newHarness(t, modeltest.ToolStep(files.ToolFindFilesToDelete, map[string]interface{}{"name_pattern": "draft"}))
	h.upload(t, "draft.txt", "d")
	sid := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orch.tools = &cancelAfterCall{ToolProvider: h.orch.tools, cancel: cancel}

	resp, err := h.orch.ProcessMessage(ctx, Request{Message: "find drafts", SessionID: sid})
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, strings.HasPrefix(resp.Response, "I found 1 files matching the pattern 'draft':"))

	assert.Len(t, h.pending.Peek(sid), 1)
	msgs := h.messages(t, sid)
	require.Len(t, msgs, 2, "tool side effects are recorded in the conversation")
	assert.Equal(t, resp.Response, msgs[1].Content)
}

func TestCachedHistoryMatchesStoredMessages(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("Got it."))
	ctx := context.Background()

	resp, err := h.orch.ProcessMessage(ctx, Request{
		Message: "hi",
		Files:   []InlineFile{{Name: "a.txt", MimeType: "text/plain", Base64Data: b64("abc")}},
	})
	require.NoError(t, err)
	assert.Contains(t, h.model.Requests()[0].Prompt, "Attached files:")

	cached, err := h.orch.loadHistory(ctx, resp.SessionID)
	require.NoError(t, err)
	h.orch.invalidate(resp.SessionID)
	stored, err := h.orch.loadHistory(ctx, resp.SessionID)
	require.NoError(t, err)

	assert.Equal(t, stored, cached)
	require.Len(t, cached, 2)
	assert.Equal(t, "hi", cached[0].Content)
}

func TestUploadIntentWithUnresolvedAttachmentStillAsksModel(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("That file id is unknown."))
	resp, err := h.orch.ProcessMessage(context.Background(), Request{
		Message:           "please upload this file",
		AttachmentFileIDs: []string{uuid.NewString()},
	})
	require.NoError(t, err)

	reqs := h.model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "please upload this file", reqs[0].Prompt)
	assert.Equal(t, "That file id is unknown.", resp.Response)

	msgs := h.messages(t, resp.SessionID)
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[0].FileAttachments)
}

func TestTwoPhaseDeleteThroughConversation(t *testing.T) {
	h := newHarness(t,
		modeltest.ToolStep(files.ToolFindFilesToDelete, map[string]interface{}{"name_pattern": "draft"}),
		modeltest.ToolStep(files.ToolDeleteFiles, map[string]interface{}{"confirmed": false}),
		modeltest.ToolStep(files.ToolDeleteFiles, map[string]interface{}{"confirmed": true}),
	)
	h.upload(t, "draft-a.txt", "a")
	h.upload(t, "draft-b.txt", "b")
	h.upload(t, "final.txt", "c")
	ctx := context.Background()

	resp, err := h.orch.ProcessMessage(ctx, Request{Message: "find my drafts to delete"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Response, "I found 2 files matching the pattern 'draft':"))
	assert.True(t, strings.HasSuffix(resp.Response, "To delete these files, simply type 'yes'."))
	sid := resp.SessionID

	resp, err = h.orch.ProcessMessage(ctx, Request{Message: "hmm", SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, formatter.ConfirmDeletionText, resp.Response)
	all, _ := h.store.List(ctx)
	assert.Len(t, all, 3)

	resp, err = h.orch.ProcessMessage(ctx, Request{Message: "yes", SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted 2 files. The following files were deleted:\n\n1. draft-a.txt\n2. draft-b.txt\n", resp.Response)
	all, _ = h.store.List(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "final.txt", all[0].OriginalFilename)

	assert.Len(t, h.messages(t, sid), 6)
}

func TestUnknownToolBecomesErrorText(t *testing.T) {
	h := newHarness(t, modeltest.ToolStep("format_disk", nil))
	h.upload(t, "a.txt", "a")
	resp, err := h.orch.ProcessMessage(context.Background(), Request{Message: "do it"})
	require.NoError(t, err)
	assert.Equal(t, "Error: unknown tool: format_disk", resp.Response)
	all, _ := h.store.List(context.Background())
	assert.Len(t, all, 1)
}

func TestSessionsSerializedAndParallel(t *testing.T) {
	steps := make([]modeltest.Step, 0, 10)
	for i := 0; i < 10; i++ {
		steps = append(steps, modeltest.TextStep("ok"))
	}
	h := newHarness(t, steps...)
	sid := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := sid
			if i%2 == 1 {
				id = uuid.NewString()
			}
			_, err := h.orch.ProcessMessage(context.Background(), Request{Message: "hi", SessionID: id})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, h.messages(t, sid), 10, "five exchanges on the shared session")
}

func TestSessionCRUD(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("hello"))
	ctx := context.Background()

	s, err := h.orch.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, db.DefaultSessionTitle, s.Title)

	_, err = h.orch.ProcessMessage(ctx, Request{Message: "hi", SessionID: s.ID})
	require.NoError(t, err)
	h.pending.Set(s.ID, []string{"x"})

	detail, err := h.orch.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 2)

	require.NoError(t, h.orch.RenameSession(ctx, s.ID, "Taxes"))
	assert.ErrorIs(t, h.orch.RenameSession(ctx, "missing", "x"), ErrSessionNotFound)

	list, err := h.orch.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Taxes", list[0].Title)

	require.NoError(t, h.orch.DeleteSession(ctx, s.ID))
	assert.Equal(t, 0, h.orch.CachedSessions())
	assert.Empty(t, h.pending.Peek(s.ID))
	_, err = h.orch.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.orch.DeleteSession(ctx, s.ID), ErrSessionNotFound)
}

func TestCacheEviction(t *testing.T) {
	h := newHarness(t, modeltest.TextStep("a"), modeltest.TextStep("b"), modeltest.TextStep("c"))
	h.orch.maxCache = 2
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.orch.ProcessMessage(ctx, Request{Message: "hi"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, h.orch.CachedSessions())
}

func TestRequestDecoding(t *testing.T) {
	var r Request
	require.NoError(t, json.Unmarshal([]byte(`{"message":"m","file_attachments":["a","b"],"files":[{"name":"n","type":"t","base64Data":"ZA=="}],"session_id":"s"}`), &r))
	assert.Equal(t, []string{"a", "b"}, r.AttachmentFileIDs)
	assert.Equal(t, "t", r.Files[0].MimeType)
	assert.Equal(t, "ZA==", r.Files[0].Base64Data)

	require.NoError(t, json.Unmarshal([]byte(`{"message":"m","file_attachments":null}`), &r))
	assert.Nil(t, r.AttachmentFileIDs)

	err := json.Unmarshal([]byte(`{"message":"m","file_attachments":"abc"}`), &r)
	assert.ErrorIs(t, err, ErrInvalidAttachments)
}
