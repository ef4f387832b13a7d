// Package agent orchestrates one conversation turn end to end: cache and
// durable writes for the user message, command classification, generation
// dispatch, and the assistant reply.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediachat/internal/command"
	"mediachat/internal/dispatch"
	"mediachat/internal/files"
	"mediachat/internal/memstore"
	"mediachat/internal/models"
	"mediachat/internal/render"
	"mediachat/internal/storage"
)

// Service composes the session cache, the durable store gateway, the
// generation dispatcher and the edit renderer.
type Service struct {
	cache      *memstore.Store
	store      *storage.Store
	dispatcher *dispatch.Dispatcher
	renderer   render.Renderer
	files      *files.Store
}

func NewService(cache *memstore.Store, store *storage.Store, dispatcher *dispatch.Dispatcher, renderer render.Renderer, fileStore *files.Store) *Service {
	return &Service{
		cache:      cache,
		store:      store,
		dispatcher: dispatcher,
		renderer:   renderer,
		files:      fileStore,
	}
}

// TurnResult is the updated conversation state after one turn.
type TurnResult struct {
	SessionID string            `json:"session_id"`
	Messages  []models.Message  `json:"messages"`
	MediaItem *models.MediaItem `json:"media_item,omitempty"`
}

// EditRequest asks for a trimmed derivative of an existing media item.
type EditRequest struct {
	SessionID string
	SourceURL string
	Kind      models.MediaKind
	Prompt    string
	StartSec  float64
	EndSec    float64
}

// HandleTurn accepts one inbound user message and returns the session's full
// ordered conversation, plus the media item when the message was a
// generation command. Any failure aborts the turn as a single error; rows
// already written stay written (a user message may end up durably persisted
// with no reply).
func (s *Service) HandleTurn(ctx context.Context, sessionID, userText string, attachments []models.Attachment) (*TurnResult, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := s.hydrateIfCold(ctx, sessionID); err != nil {
		return nil, err
	}

	session := s.cache.GetOrCreate(sessionID)

	userMsg := models.Message{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		Role:        models.RoleUser,
		Content:     userText,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
	// The cache sees the turn before the durable writes are awaited; a
	// reader on the cache path observes it immediately.
	s.cache.Append(session.ID, userMsg)

	summary, _ := s.cache.Summary(session.ID)
	if err := s.store.UpsertSession(ctx, summary); err != nil {
		return nil, err
	}
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	var (
		assistantText string
		mediaItem     *models.MediaItem
	)
	if cmd := command.Classify(userText); cmd.Kind == command.Generate {
		payload, err := s.generateMedia(ctx, cmd, attachments)
		if err != nil {
			return nil, err
		}
		mediaItem = &models.MediaItem{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Kind:      cmd.Media,
			Prompt:    cmd.Prompt,
			URL:       payload.URL,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.InsertMedia(ctx, *mediaItem); err != nil {
			return nil, err
		}
		assistantText = fmt.Sprintf("Generated %s: %s", cmd.Media, payload.URL)
	} else {
		text, err := s.dispatcher.GenerateText(ctx, userText, attachments)
		if err != nil {
			return nil, err
		}
		assistantText = text
	}

	assistantMsg := models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   assistantText,
		CreatedAt: time.Now().UTC(),
	}
	s.cache.Append(session.ID, assistantMsg)

	summary, _ = s.cache.Summary(session.ID)
	if err := s.store.UpsertSession(ctx, summary); err != nil {
		return nil, err
	}
	if err := s.store.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	return &TurnResult{
		SessionID: session.ID,
		Messages:  s.cache.Messages(session.ID),
		MediaItem: mediaItem,
	}, nil
}

func (s *Service) generateMedia(ctx context.Context, cmd command.Command, attachments []models.Attachment) (*dispatch.MediaPayload, error) {
	if cmd.Media == models.MediaImage {
		return s.dispatcher.GenerateImage(ctx, cmd.Prompt)
	}
	return s.dispatcher.GenerateVideo(ctx, cmd.Prompt, firstImageAttachment(attachments))
}

// ListSessions returns all sessions from the durable store, most recently
// active first.
func (s *Service) ListSessions(ctx context.Context) ([]models.Session, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx)
}

// ListMessages returns a session's conversation, serving the cache when it
// is warm and rebuilding it from the durable store otherwise.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if cached := s.cache.Messages(sessionID); len(cached) > 0 {
		return cached, nil
	}
	if err := s.hydrateIfCold(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.cache.Messages(sessionID), nil
}

// ListMedia lists generated media, optionally scoped to one session.
func (s *Service) ListMedia(ctx context.Context, sessionID string) ([]models.MediaItem, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s.store.ListMedia(ctx, sessionID)
}

// EditMedia renders a trimmed derivative and records it as a new MediaItem;
// the source item is never touched.
func (s *Service) EditMedia(ctx context.Context, req EditRequest) (*models.MediaItem, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	srcPath, err := s.files.Resolve(req.SourceURL)
	if err != nil {
		return nil, err
	}
	outPath, outURL := s.files.CreatePaths("mp4")
	if err := s.renderer.RenderEdit(ctx, render.EditInput{
		SourcePath: srcPath,
		Kind:       req.Kind,
		StartSec:   req.StartSec,
		EndSec:     req.EndSec,
		OutputPath: outPath,
	}); err != nil {
		return nil, err
	}

	if err := s.ensureSession(ctx, req.SessionID); err != nil {
		return nil, err
	}
	item := models.MediaItem{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Kind:      models.MediaVideo,
		Prompt:    "[Edited] " + req.Prompt,
		URL:       outURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertMedia(ctx, item); err != nil {
		return nil, err
	}
	return &item, nil
}

// hydrateIfCold rebuilds the cache entry for a session that exists durably
// but has not been touched this process. A session already warmed by a
// racing turn wins over the durable read.
func (s *Service) hydrateIfCold(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if _, ok := s.cache.Summary(sessionID); ok {
		return nil
	}
	sess, found, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	msgs, err := s.store.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.cache.Hydrate(sess, msgs)
	return nil
}

// ensureSession guarantees the session row exists before a media row
// references it.
func (s *Service) ensureSession(ctx context.Context, sessionID string) error {
	if err := s.hydrateIfCold(ctx, sessionID); err != nil {
		return err
	}
	if _, ok := s.cache.Summary(sessionID); ok {
		return nil
	}
	summary := s.cache.GetOrCreate(sessionID)
	return s.store.UpsertSession(ctx, summary)
}

func firstImageAttachment(attachments []models.Attachment) *models.Attachment {
	for i := range attachments {
		if strings.HasPrefix(attachments[i].MimeType, "image/") {
			return &attachments[i]
		}
	}
	return nil
}
