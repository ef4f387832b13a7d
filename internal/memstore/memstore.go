// Package memstore holds the process-local view of active sessions. It is
// the first point of read and write on the request path; the durable store
// remains the fallback source of truth after a restart.
package memstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediachat/internal/models"
)

// DefaultTitle is the placeholder until the first user message arrives.
const DefaultTitle = "New Chat"

// titleLimit is the number of runes kept from the first user message.
const titleLimit = 32

type entry struct {
	summary  models.Session
	messages []models.Message
}

// Store is an injectable in-memory session cache. All operations are total;
// reads and mutations of a session entry are linearized behind one lock, so
// two racing turns for the same session cannot lose an append.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func New() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// GetOrCreate returns the cached summary for sessionID, allocating a fresh
// identifier and an empty session when the id is unknown or empty.
func (s *Store) GetOrCreate(sessionID string) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID).summary
}

func (s *Store) getOrCreateLocked(sessionID string) *entry {
	if sessionID != "" {
		if e, ok := s.sessions[sessionID]; ok {
			return e
		}
	}
	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	e := &entry{summary: models.Session{
		ID:        id,
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.sessions[id] = e
	return e
}

// Append adds a message to the session, creating the session if needed. The
// first user message sets the title; every append bumps the updated
// timestamp.
func (s *Store) Append(sessionID string, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(sessionID)
	e.messages = append(e.messages, msg)
	if len(e.messages) == 1 && msg.Role == models.RoleUser {
		e.summary.Title = DeriveTitle(msg.Content)
	}
	e.summary.UpdatedAt = time.Now().UTC()
}

// Messages returns the cached message list in creation order. A session
// never touched this process yields an empty list; callers needing
// durability fall back to the durable store.
func (s *Store) Messages(sessionID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Summary returns the cached session summary.
func (s *Store) Summary(sessionID string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return e.summary, true
}

// Sessions lists cached session summaries, most recently updated first.
func (s *Store) Sessions() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Hydrate installs a session read back from the durable store. It is a no-op
// when the session is already cached, so a concurrent live turn wins over a
// stale durable read.
func (s *Store) Hydrate(summary models.Session, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[summary.ID]; ok {
		return
	}
	msgs := make([]models.Message, len(messages))
	copy(msgs, messages)
	s.sessions[summary.ID] = &entry{summary: summary, messages: msgs}
}

// DeriveTitle truncates the first user message into a session title.
// Whitespace-only content falls back to the placeholder.
func DeriveTitle(content string) string {
	trimmed := []rune(strings.TrimSpace(content))
	if len(trimmed) == 0 {
		return DefaultTitle
	}
	if len(trimmed) > titleLimit {
		trimmed = trimmed[:titleLimit]
	}
	return string(trimmed)
}
