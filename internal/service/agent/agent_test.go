package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediachat/internal/dispatch"
	"mediachat/internal/files"
	"mediachat/internal/memstore"
	"mediachat/internal/models"
	"mediachat/internal/render"
	"mediachat/internal/storage"
)

// fakeBackend answers every generation instantly with canned content.
type fakeBackend struct {
	textErr  error
	imageErr error
	texts    int
}

func (f *fakeBackend) GenerateText(_ context.Context, prompt string, _ []models.Attachment) (string, error) {
	if f.textErr != nil {
		return "", f.textErr
	}
	f.texts++
	return "reply to: " + prompt, nil
}

func (f *fakeBackend) GenerateImage(_ context.Context, _ string) (*dispatch.RawMedia, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &dispatch.RawMedia{Data: []byte("png"), MIMEType: "image/png"}, nil
}

func (f *fakeBackend) StartVideo(_ context.Context, _ string, _ *models.Attachment) (*dispatch.VideoOperation, error) {
	return &dispatch.VideoOperation{
		Done:  true,
		Video: &dispatch.RawMedia{Data: []byte("mp4"), MIMEType: "video/mp4"},
	}, nil
}

func (f *fakeBackend) PollVideo(_ context.Context, op *dispatch.VideoOperation) (*dispatch.VideoOperation, error) {
	return op, nil
}

func (f *fakeBackend) FetchVideo(_ context.Context, _ *dispatch.VideoOperation, destPath string) error {
	return os.WriteFile(destPath, []byte("mp4"), 0o644)
}

// copyRenderer stands in for ffmpeg and just copies the source file.
type copyRenderer struct{ calls int }

func (r *copyRenderer) RenderEdit(_ context.Context, in render.EditInput) error {
	r.calls++
	data, err := os.ReadFile(in.SourcePath)
	if err != nil {
		return err
	}
	return os.WriteFile(in.OutputPath, data, 0o644)
}

type fixture struct {
	service  *Service
	cache    *memstore.Store
	store    *storage.Store
	files    *files.Store
	backend  *fakeBackend
	renderer *copyRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fileStore, err := files.NewStore(filepath.Join(t.TempDir(), "generated"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	backend := &fakeBackend{}
	dispatcher := dispatch.New(backend, fileStore, dispatch.Config{PollInterval: time.Millisecond, PollMaxAttempts: 3})
	dispatcher.SetSleep(func(time.Duration) {})

	cache := memstore.New()
	store := storage.NewStore(db, "sqlite3")
	renderer := &copyRenderer{}
	return &fixture{
		service:  NewService(cache, store, dispatcher, renderer, fileStore),
		cache:    cache,
		store:    store,
		files:    fileStore,
		backend:  backend,
		renderer: renderer,
	}
}

func TestHandleTurnAlternatesRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const turns = 3
	var sessionID string
	for i := 0; i < turns; i++ {
		result, err := f.service.HandleTurn(ctx, sessionID, fmt.Sprintf("question %d", i), nil)
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		sessionID = result.SessionID

		want := 2 * (i + 1)
		if len(result.Messages) != want {
			t.Fatalf("turn %d returned %d messages, want %d", i, len(result.Messages), want)
		}
	}

	messages, err := f.service.ListMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for i, msg := range messages {
		wantRole := models.RoleUser
		if i%2 == 1 {
			wantRole = models.RoleAssistant
		}
		if msg.Role != wantRole {
			t.Fatalf("message %d role = %q, want %q", i, msg.Role, wantRole)
		}
	}

	sessions, err := f.service.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d durable sessions, want 1", len(sessions))
	}
	if sessions[0].Title != "question 0" {
		t.Fatalf("durable title = %q, want first user message", sessions[0].Title)
	}
}

func TestHandleTurnImageCommandPersistsMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.HandleTurn(ctx, "", "/image a red fox", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if result.MediaItem == nil {
		t.Fatal("expected a media item")
	}
	if result.MediaItem.Kind != models.MediaImage || result.MediaItem.Prompt != "a red fox" {
		t.Fatalf("media item = %+v", result.MediaItem)
	}

	assistant := result.Messages[len(result.Messages)-1]
	if assistant.Role != models.RoleAssistant || !strings.Contains(assistant.Content, result.MediaItem.URL) {
		t.Fatalf("assistant message %+v does not reference %q", assistant, result.MediaItem.URL)
	}

	media, err := f.service.ListMedia(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("list media: %v", err)
	}
	if len(media) != 1 || media[0].ID != result.MediaItem.ID {
		t.Fatalf("durable media = %+v", media)
	}
	if f.backend.texts != 0 {
		t.Fatal("generation command must not invoke the chat model")
	}
}

func TestHandleTurnVideoCommand(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.HandleTurn(context.Background(), "", "/video waves at dusk", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if result.MediaItem == nil || result.MediaItem.Kind != models.MediaVideo {
		t.Fatalf("media item = %+v", result.MediaItem)
	}
	if !strings.HasSuffix(result.MediaItem.URL, ".mp4") {
		t.Fatalf("url = %q", result.MediaItem.URL)
	}
}

func TestHandleTurnFailureLeavesUserMessageWithoutReply(t *testing.T) {
	f := newFixture(t)
	f.backend.imageErr = errors.New("backend exploded")
	ctx := context.Background()

	_, err := f.service.HandleTurn(ctx, "", "/image doomed prompt", nil)
	if !errors.Is(err, dispatch.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}

	sessions, err := f.service.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	messages, err := f.store.ListMessagesBySession(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("list durable messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != models.RoleUser {
		t.Fatalf("durable messages = %+v, want only the user message", messages)
	}

	media, err := f.service.ListMedia(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("list media: %v", err)
	}
	if len(media) != 0 {
		t.Fatalf("failed generation left %d media rows", len(media))
	}
}

func TestListMessagesHydratesColdCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.HandleTurn(ctx, "", "remember this", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	// A fresh service with an empty cache over the same database simulates a
	// process restart.
	cold := NewService(memstore.New(), f.store, nil, f.renderer, f.files)
	messages, err := cold.ListMessages(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("hydrated %d messages, want 2", len(messages))
	}
	if messages[0].Content != "remember this" {
		t.Fatalf("first message = %q", messages[0].Content)
	}
}

func TestEditMediaCreatesDerivativeItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.HandleTurn(ctx, "", "/video source clip", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	item, err := f.service.EditMedia(ctx, EditRequest{
		SessionID: result.SessionID,
		SourceURL: result.MediaItem.URL,
		Kind:      models.MediaVideo,
		Prompt:    "first two seconds",
		StartSec:  0,
		EndSec:    2,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.renderer.calls != 1 {
		t.Fatalf("renderer ran %d times, want 1", f.renderer.calls)
	}
	if item.Prompt != "[Edited] first two seconds" {
		t.Fatalf("prompt = %q", item.Prompt)
	}
	if item.URL == result.MediaItem.URL {
		t.Fatal("edit must produce a new file, not overwrite the source")
	}

	media, err := f.service.ListMedia(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("list media: %v", err)
	}
	if len(media) != 2 {
		t.Fatalf("got %d media rows, want source plus derivative", len(media))
	}
}

func TestEditMediaRejectsForeignPath(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.EditMedia(context.Background(), EditRequest{
		SessionID: "s1",
		SourceURL: "/etc/passwd",
		Kind:      models.MediaVideo,
		Prompt:    "nope",
		StartSec:  0,
		EndSec:    1,
	})
	if err == nil {
		t.Fatal("expected path rejection")
	}
	if f.renderer.calls != 0 {
		t.Fatal("renderer must not run for a rejected source")
	}
}
