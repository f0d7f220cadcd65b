package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session is one chat conversation scoped to a single source.
type Session struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"-"`
	SourceID  int64     `json:"source_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one transcript entry.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSession starts a new session for one of the owner's sources.
func (s *Store) CreateSession(ctx context.Context, ownerID, sourceID int64, title string) (Session, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (owner_id, source_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, ownerID, sourceID, title, now, now)
	if err != nil {
		return Session{}, fmt.Errorf("repo: create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("repo: create session: %w", err)
	}
	return Session{ID: id, OwnerID: ownerID, SourceID: sourceID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSession returns the session only if it belongs to ownerID.
func (s *Store) GetSession(ctx context.Context, id, ownerID int64) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, source_id, title, created_at, updated_at
		FROM sessions WHERE id = ? AND owner_id = ?`, id, ownerID).
		Scan(&sess.ID, &sess.OwnerID, &sess.SourceID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("repo: get session %d: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns the owner's sessions, newest first. sourceID 0
// means all sources.
func (s *Store) ListSessions(ctx context.Context, ownerID, sourceID int64) ([]Session, error) {
	query := `SELECT id, owner_id, source_id, title, created_at, updated_at
		FROM sessions WHERE owner_id = ?`
	args := []any{ownerID}
	if sourceID != 0 {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.SourceID, &sess.Title,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repo: list sessions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the owner's session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id, ownerID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("repo: delete session %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: delete session %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTitle renames a session.
func (s *Store) SetTitle(ctx context.Context, id int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repo: title session %d: %w", id, err)
	}
	return nil
}

// AppendMessage adds one transcript entry and bumps the session's
// updated_at.
func (s *Store) AppendMessage(ctx context.Context, sessionID int64, role, content string, sources []string) error {
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("repo: encode sources: %w", err)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, sources, created_at)
		VALUES (?, ?, ?, ?, ?)`, sessionID, role, content, string(encoded), now); err != nil {
		return fmt.Errorf("repo: append message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("repo: touch session %d: %w", sessionID, err)
	}
	return nil
}

// Messages returns a session's transcript in insertion order.
func (s *Store) Messages(ctx context.Context, sessionID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, sources, created_at
		FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repo: messages for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var sources string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &sources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: messages for session %d: %w", sessionID, err)
		}
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			return nil, fmt.Errorf("repo: decode sources: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UserMessageCount counts user-role messages in a session.
func (s *Store) UserMessageCount(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ? AND role = 'user'`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repo: count messages for session %d: %w", sessionID, err)
	}
	return n, nil
}
