package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/diane-assistant/filevault/internal/db"
)

// ErrSessionNotFound is returned for operations on a missing session.
var ErrSessionNotFound = errors.New("session not found")

// SessionDetail is a session with its messages in order.
type SessionDetail struct {
	*db.ChatSession
	Messages []*db.ChatMessage
}

// CreateSession starts an empty session. An empty title becomes
// db.DefaultSessionTitle.
func (o *Orchestrator) CreateSession(ctx context.Context, title string) (*db.ChatSession, error) {
	s := &db.ChatSession{ID: uuid.NewString(), Title: strings.TrimSpace(title)}
	if err := o.chats.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	slog.Info("Session created", "session_id", s.ID, "title", s.Title)
	return s, nil
}

// GetSession returns a session and its messages.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	s, err := o.chats.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	msgs, err := o.chats.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*db.ChatMessage{}
	}
	return &SessionDetail{ChatSession: s, Messages: msgs}, nil
}

// ListSessions returns sessions, most recently updated first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*db.ChatSession, error) {
	sessions, err := o.chats.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*db.ChatSession{}
	}
	return sessions, nil
}

// RenameSession changes a session title.
func (o *Orchestrator) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = db.DefaultSessionTitle
	}
	err := o.chats.RenameSession(ctx, id, title)
	if errors.Is(err, db.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// DeleteSession removes a session with its messages, cached history and
// pending deletion. It waits for an in-flight message of the session.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	unlock := o.sessions.Lock(id)
	defer unlock()

	ok, err := o.chats.DeleteSession(ctx, id)
	if err != nil {
		return err
	}
	o.invalidate(id)
	o.pending.Clear(id)
	if !ok {
		return ErrSessionNotFound
	}
	slog.Info("Session deleted", "session_id", id)
	return nil
}
