package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New Conversation"

// ChatSession is a conversation with the assistant.
type ChatSession struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one immutable turn of a session.
type ChatMessage struct {
	ID              string
	SessionID       string
	Role            string
	Content         string
	FileAttachments []string
	Timestamp       time.Time
}

// =============================================================================
// Session Operations
// =============================================================================

// CreateSession inserts s, filling in the title and timestamps when unset.
func (db *DB) CreateSession(ctx context.Context, s *ChatSession) error {
	if s.Title == "" {
		s.Title = DefaultSessionTitle
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Title, toUnix(s.CreatedAt), toUnix(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (db *DB) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	s := &ChatSession{}
	var created, updated int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = fromUnix(created)
	s.UpdatedAt = fromUnix(updated)
	return s, nil
}

// ListSessions returns all sessions, most recently updated first.
func (db *DB) ListSessions(ctx context.Context) ([]*ChatSession, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		s := &ChatSession{}
		var created, updated int64
		if err := rows.Scan(&s.ID, &s.Title, &created, &updated); err != nil {
			return nil, err
		}
		s.CreatedAt = fromUnix(created)
		s.UpdatedAt = fromUnix(updated)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RenameSession sets the title of a session.
func (db *DB) RenameSession(ctx context.Context, id, title string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, toUnix(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and, by cascade, its messages.
func (db *DB) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// Message Operations
// =============================================================================

// AppendMessages stores msgs in order inside one transaction and bumps the
// session's updated_at. Either all messages are stored or none.
func (db *DB) AppendMessages(ctx context.Context, sessionID string, msgs ...*ChatMessage) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	last := time.Now().UTC()
	for _, m := range msgs {
		m.SessionID = sessionID
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now().UTC()
		}
		if m.FileAttachments == nil {
			m.FileAttachments = []string{}
		}
		attachments, err := json.Marshal(m.FileAttachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, session_id, role, content, file_attachments, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, sessionID, m.Role, m.Content, string(attachments), toUnix(m.Timestamp),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		last = m.Timestamp
	}

	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, toUnix(last), sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}
	return tx.Commit()
}

// ListMessages returns the messages of a session in chronological order.
func (db *DB) ListMessages(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, session_id, role, content, file_attachments, timestamp
		FROM chat_messages WHERE session_id = ?
		ORDER BY timestamp, rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*ChatMessage
	for rows.Next() {
		m := &ChatMessage{}
		var attachments string
		var ts int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &attachments, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attachments), &m.FileAttachments); err != nil {
			return nil, fmt.Errorf("decode attachments of message %s: %w", m.ID, err)
		}
		m.Timestamp = fromUnix(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
