package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"mediachat/internal/models"
)

// Store executes the typed read/write operations the orchestrator issues
// against the durable database. It owns schema creation, performed once per
// process lifetime.
type Store struct {
	db     *sql.DB
	driver string

	schemaOnce sync.Once
	schemaErr  error
}

// NewStore wraps an opened database handle.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// EnsureSchema creates the sessions, messages and generated_media tables if
// absent. Subsequent calls within the process are no-ops; the statements use
// IF NOT EXISTS so concurrent first users racing across processes cannot
// surface a duplicate-object error.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		stmts, err := schemaStatements(s.driver)
		if err != nil {
			s.schemaErr = wrapErr("ensure schema", err)
			return
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = wrapErr("ensure schema", err)
				return
			}
		}
	})
	return s.schemaErr
}

// UpsertSession inserts or updates the session row keyed by its identifier.
func (s *Store) UpsertSession(ctx context.Context, session models.Session) error {
	var query string
	switch s.driver {
	case "mysql":
		query = `INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE title = VALUES(title), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`
	}
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.Title, session.CreatedAt, session.UpdatedAt)
	return wrapErr("upsert session", err)
}

// InsertMessage appends a message row. A duplicate identifier fails with
// ErrConstraint.
func (s *Store) InsertMessage(ctx context.Context, msg models.Message) error {
	var attachments sql.NullString
	if len(msg.Attachments) > 0 {
		encoded, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		attachments = sql.NullString{String: string(encoded), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, attachments_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, attachments, msg.CreatedAt)
	return wrapErr("insert message", err)
}

// InsertMedia appends a generated media row.
func (s *Store) InsertMedia(ctx context.Context, item models.MediaItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_media (id, session_id, kind, prompt, url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.SessionID, item.Kind, item.Prompt, item.URL, item.CreatedAt)
	return wrapErr("insert media", err)
}

// GetSession fetches one session row. The boolean reports existence.
func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, bool, error) {
	var sess models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, wrapErr("get session", err)
	}
	return sess, true, nil
}

// ListSessions returns all sessions ordered by last activity.
func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, wrapErr("list sessions", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, wrapErr("scan session", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, wrapErr("list sessions", rows.Err())
}

// ListMessagesBySession returns one session's messages in creation order.
func (s *Store) ListMessagesBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, attachments_json, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg         models.Message
			attachments sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &attachments, &msg.CreatedAt); err != nil {
			return nil, wrapErr("scan message", err)
		}
		if attachments.Valid && attachments.String != "" {
			if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, wrapErr("list messages", rows.Err())
}

// ListMedia returns generated media, newest first, optionally scoped to one
// session. An empty sessionID lists everything.
func (s *Store) ListMedia(ctx context.Context, sessionID string) ([]models.MediaItem, error) {
	query := `SELECT id, session_id, kind, prompt, url, created_at FROM generated_media ORDER BY created_at DESC`
	args := []any{}
	if sessionID != "" {
		query = `SELECT id, session_id, kind, prompt, url, created_at FROM generated_media WHERE session_id = ? ORDER BY created_at DESC`
		args = append(args, sessionID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list media", err)
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		var item models.MediaItem
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Kind, &item.Prompt, &item.URL, &item.CreatedAt); err != nil {
			return nil, wrapErr("scan media", err)
		}
		items = append(items, item)
	}
	return items, wrapErr("list media", rows.Err())
}
