// Package orchestrator runs assistant conversations: it resolves sessions,
// ingests attached files, asks the model for a reply, dispatches tool calls
// and persists each exchange.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/internal/formatter"
	"github.com/diane-assistant/filevault/internal/keyedlock"
	"github.com/diane-assistant/filevault/internal/model"
	"github.com/diane-assistant/filevault/internal/store"
	"github.com/diane-assistant/filevault/mcp/tools"
	"github.com/diane-assistant/filevault/mcp/tools/files"
)

// FileStore is the part of the content store used for attachments.
type FileStore interface {
	Upload(ctx context.Context, r io.Reader, name, mediaType string, size int64) (*db.File, bool, error)
	Get(ctx context.Context, id string) (*db.File, error)
}

var _ FileStore = (*contentstore.Store)(nil)

const (
	defaultTimeout           = 60 * time.Second
	defaultMaxCachedSessions = 256
)

// Options configures an Orchestrator.
type Options struct {
	Chats   store.ChatStore
	Files   FileStore
	Tools   tools.ToolProvider
	Pending *files.PendingActions
	Model   model.Client

	// Intent defaults to NewRegexIntent().
	Intent IntentClassifier

	// Timeout bounds each model attempt. Defaults to 60s.
	Timeout time.Duration

	// MaxCachedSessions caps the conversation cache. Defaults to 256.
	MaxCachedSessions int
}

// Orchestrator handles chat messages. Messages of one session are processed
// one at a time; different sessions run in parallel.
type Orchestrator struct {
	chats   store.ChatStore
	files   FileStore
	tools   tools.ToolProvider
	pending *files.PendingActions
	model   model.Client
	intent  IntentClassifier
	timeout time.Duration

	sessions keyedlock.Map

	cacheMu  sync.Mutex
	cache    map[string]*conversation
	maxCache int
}

// conversation is the cached model history of a session.
type conversation struct {
	history  []model.Message
	lastUsed time.Time
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Intent == nil {
		opts.Intent = NewRegexIntent()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxCachedSessions <= 0 {
		opts.MaxCachedSessions = defaultMaxCachedSessions
	}
	if opts.Pending == nil {
		opts.Pending = files.NewPendingActions()
	}
	return &Orchestrator{
		chats:    opts.Chats,
		files:    opts.Files,
		tools:    opts.Tools,
		pending:  opts.Pending,
		model:    opts.Model,
		intent:   opts.Intent,
		timeout:  opts.Timeout,
		cache:    make(map[string]*conversation),
		maxCache: opts.MaxCachedSessions,
	}
}

// ProcessMessage handles one inbound message. Model and tool failures become
// the reply text; an error is returned only for storage failures or when
// ctx is cancelled before the model turn completes, in which case nothing
// is persisted. A cancellation arriving later no longer stops the request.
func (o *Orchestrator) ProcessMessage(ctx context.Context, req Request) (*Response, error) {
	sessionID := req.SessionID
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.NewString()
	}

	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	message := strings.TrimSpace(strings.ReplaceAll(req.Message, filesProcessedMarker, ""))

	ingested := o.ingestInline(ctx, sessionID, req.Files)
	existing := o.resolveAttachments(ctx, req.AttachmentFileIDs, ingested)

	ids := make([]string, 0, len(existing)+len(ingested))
	for _, a := range existing {
		ids = append(ids, a.ID)
	}
	for _, a := range ingested {
		ids = append(ids, a.ID)
	}
	attached := append(append([]attachment(nil), ingested...), existing...)

	// Supplied ids count even when they no longer resolve.
	anyAttachments := len(req.AttachmentFileIDs) > 0 || len(ingested) > 0
	if message == "" && anyAttachments {
		message = DefaultAttachmentMessage
	}

	if !anyAttachments && o.intent.DetectsUploadIntent(message) {
		slog.Info("Upload intent without files", "session_id", sessionID)
		return o.persist(ctx, sessionID, message, ids, UploadInstructionsReply, nil)
	}

	inlineSupplied := len(req.Files) > 0
	prompt := buildPrompt(message, attached, inlineSupplied)

	history, err := o.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	reply, err := o.generate(ctx, sessionID, history, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Error("Model unavailable", "session_id", sessionID, "error", err)
		text := "Error processing your request: " + err.Error()
		return o.persist(ctx, sessionID, message, ids, text, history)
	}

	// Past this point cancellation is ignored: a dispatched tool is always
	// followed by the stored exchange.
	ctx = context.WithoutCancel(ctx)

	var text string
	switch {
	case reply.ToolCall != nil && reply.ToolCall.Name == files.ToolUploadFile && inlineSupplied:
		slog.Warn("Suppressed upload_file tool call", "session_id", sessionID)
		text = suppressedUploadReply(ingestedOrAll(ingested, attached))
	case reply.ToolCall != nil:
		text = o.dispatch(ctx, sessionID, reply.ToolCall)
	default:
		text = withFileSummary(reply.Text, attached)
	}

	return o.persist(ctx, sessionID, message, ids, text, history)
}

func ingestedOrAll(ingested, all []attachment) []attachment {
	if len(ingested) > 0 {
		return ingested
	}
	return all
}

// ingestInline decodes and stores base64 files. Entries that are incomplete,
// malformed or fail to store are logged and skipped.
func (o *Orchestrator) ingestInline(ctx context.Context, sessionID string, inline []InlineFile) []attachment {
	var out []attachment
	for _, f := range inline {
		if f.Name == "" || f.Base64Data == "" {
			slog.Warn("Skipping inline file without name or data", "session_id", sessionID, "name", f.Name)
			continue
		}
		data, err := decodeBase64(f.Base64Data)
		if err != nil {
			slog.Warn("Skipping inline file with invalid base64", "session_id", sessionID, "name", f.Name, "error", err)
			continue
		}
		stored, duplicate, err := o.files.Upload(ctx, bytes.NewReader(data), f.Name, f.MimeType, int64(len(data)))
		if err != nil {
			slog.Error("Failed to store inline file", "session_id", sessionID, "name", f.Name, "error", err)
			continue
		}
		slog.Info("Inline file stored", "session_id", sessionID, "id", stored.ID, "name", stored.OriginalFilename, "duplicate", duplicate)
		out = append(out, attachment{
			ID:             stored.ID,
			Filename:       stored.OriginalFilename,
			FileType:       stored.FileType,
			Size:           stored.Size,
			Duplicate:      duplicate,
			ReferenceCount: stored.ReferenceCount,
		})
	}
	return out
}

// decodeBase64 accepts standard base64, optionally behind a data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// resolveAttachments keeps the ids that exist, in order, skipping
// duplicates and ids already ingested in this call.
func (o *Orchestrator) resolveAttachments(ctx context.Context, ids []string, ingested []attachment) []attachment {
	seen := make(map[string]bool, len(ids)+len(ingested))
	for _, a := range ingested {
		seen[a.ID] = true
	}
	var out []attachment
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		f, err := o.files.Get(ctx, id)
		if err != nil {
			slog.Warn("Dropping unknown attachment", "id", id, "error", err)
			continue
		}
		out = append(out, attachment{ID: f.ID, Filename: f.OriginalFilename, FileType: f.FileType, Size: f.Size})
	}
	return out
}

// generate tries the stateful attempt and, on any failure other than
// cancellation of ctx, exactly one stateless attempt.
func (o *Orchestrator) generate(ctx context.Context, sessionID string, history []model.Message, prompt string) (*model.Reply, error) {
	reply, err := o.StatefulAttempt(ctx, history, prompt)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	slog.Warn("Stateful model attempt failed, retrying without history", "session_id", sessionID, "error", err)
	return o.StatelessAttempt(ctx, prompt)
}

// StatefulAttempt asks the model with the session history.
func (o *Orchestrator) StatefulAttempt(ctx context.Context, history []model.Message, prompt string) (*model.Reply, error) {
	return o.attempt(ctx, history, prompt)
}

// StatelessAttempt asks the model with the prompt alone.
func (o *Orchestrator) StatelessAttempt(ctx context.Context, prompt string) (*model.Reply, error) {
	return o.attempt(ctx, nil, prompt)
}

func (o *Orchestrator) attempt(ctx context.Context, history []model.Message, prompt string) (*model.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	reply, err := o.model.Generate(ctx, model.Request{History: history, Prompt: prompt, Tools: o.tools.Tools()})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, model.ErrEmptyResponse
	}
	return reply, nil
}

// dispatch runs a tool call and renders its outcome.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, call *model.ToolCall) string {
	slog.Info("Dispatching tool", "session_id", sessionID, "tool", call.Name)
	out, err := o.tools.Call(ctx, sessionID, call.Name, call.Args)
	if err != nil {
		if tools.KindOf(err) == "" {
			slog.Error("Tool failed", "session_id", sessionID, "tool", call.Name, "error", err)
		}
		return formatter.FormatError(err)
	}
	return formatter.Format(call.Name, out)
}

// persist stores the user message and reply, creating the session if
// needed, then writes both turns through to the cache. The cached turns
// are the stored rows, so a history rebuilt from the store after eviction
// is the same conversation.
func (o *Orchestrator) persist(ctx context.Context, sessionID, message string, ids []string, reply string, history []model.Message) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userMsg := &db.ChatMessage{ID: uuid.NewString(), Role: db.RoleUser, Content: message, FileAttachments: ids, Timestamp: now}
	assistantMsg := &db.ChatMessage{ID: uuid.NewString(), Role: db.RoleAssistant, Content: reply, Timestamp: now.Add(time.Microsecond)}
	if err := o.chats.AppendMessages(ctx, sessionID, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store messages: %w", err)
	}

	if history != nil {
		o.storeHistory(sessionID, append(history,
			model.Message{Role: model.RoleUser, Content: message},
			model.Message{Role: model.RoleAssistant, Content: reply},
		))
	} else {
		o.invalidate(sessionID)
	}

	return &Response{Type: "text", Response: reply, SessionID: sessionID, MessageID: assistantMsg.ID}, nil
}

func (o *Orchestrator) ensureSession(ctx context.Context, sessionID string) error {
	s, err := o.chats.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if s != nil {
		return nil
	}
	if err := o.chats.CreateSession(ctx, &db.ChatSession{ID: sessionID}); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("Session created", "session_id", sessionID)
	return nil
}

// --- Conversation cache ---

// loadHistory returns the cached history of a session, reading it from the
// store on a miss. The returned slice is a copy; the cache is only updated
// by storeHistory.
func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) ([]model.Message, error) {
	o.cacheMu.Lock()
	if c, ok := o.cache[sessionID]; ok {
		c.lastUsed = time.Now()
		history := append([]model.Message{}, c.history...)
		o.cacheMu.Unlock()
		return history, nil
	}
	o.cacheMu.Unlock()

	msgs, err := o.chats.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		role := model.RoleUser
		if m.Role == db.RoleAssistant {
			role = model.RoleAssistant
		}
		history = append(history, model.Message{Role: role, Content: m.Content})
	}
	return history, nil
}

func (o *Orchestrator) storeHistory(sessionID string, history []model.Message) {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()

	if _, ok := o.cache[sessionID]; !ok && len(o.cache) >= o.maxCache {
		o.evictOldestLocked()
	}
	o.cache[sessionID] = &conversation{history: history, lastUsed: time.Now()}
}

func (o *Orchestrator) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, c := range o.cache {
		if oldestID == "" || c.lastUsed.Before(oldest) {
			oldestID, oldest = id, c.lastUsed
		}
	}
	if oldestID != "" {
		delete(o.cache, oldestID)
		o.pending.Clear(oldestID)
		slog.Debug("Evicted conversation from cache", "session_id", oldestID)
	}
}

func (o *Orchestrator) invalidate(sessionID string) {
	o.cacheMu.Lock()
	delete(o.cache, sessionID)
	o.cacheMu.Unlock()
}

// CachedSessions reports how many conversations are cached.
func (o *Orchestrator) CachedSessions() int {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	return len(o.cache)
}

