package store

import (
	"context"

	"github.com/diane-assistant/filevault/internal/db"
)

// ChatStore defines the persistence operations for sessions and messages.
type ChatStore interface {
	CreateSession(ctx context.Context, s *db.ChatSession) error
	GetSession(ctx context.Context, id string) (*db.ChatSession, error)
	ListSessions(ctx context.Context) ([]*db.ChatSession, error)
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) (bool, error)

	// AppendMessages stores all messages or none.
	AppendMessages(ctx context.Context, sessionID string, msgs ...*db.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]*db.ChatMessage, error)
}

var _ ChatStore = (*db.DB)(nil)
