package memstore

import (
	"fmt"
	"testing"
	"time"

	"mediachat/internal/models"
)

func userMessage(sessionID, content string) models.Message {
	return models.Message{
		ID:        fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func TestGetOrCreateAllocatesIdentifier(t *testing.T) {
	store := New()

	created := store.GetOrCreate("")
	if created.ID == "" {
		t.Fatal("expected generated session id")
	}
	if created.Title != DefaultTitle {
		t.Fatalf("title = %q, want %q", created.Title, DefaultTitle)
	}

	again := store.GetOrCreate(created.ID)
	if again.ID != created.ID {
		t.Fatalf("expected same session back, got %q", again.ID)
	}
}

func TestAppendDerivesTitleFromFirstUserMessage(t *testing.T) {
	store := New()
	session := store.GetOrCreate("")

	store.Append(session.ID, userMessage(session.ID, "Hello there, can you help me with something long"))

	summary, ok := store.Summary(session.ID)
	if !ok {
		t.Fatal("session missing after append")
	}
	want := "Hello there, can you help me wit"
	if summary.Title != want {
		t.Fatalf("title = %q, want %q", summary.Title, want)
	}

	// A later message must not change the title.
	store.Append(session.ID, userMessage(session.ID, "different text"))
	summary, _ = store.Summary(session.ID)
	if summary.Title != want {
		t.Fatalf("title changed to %q after second message", summary.Title)
	}
}

func TestAppendWhitespaceOnlyKeepsPlaceholderTitle(t *testing.T) {
	store := New()
	session := store.GetOrCreate("")

	store.Append(session.ID, userMessage(session.ID, "   \n\t "))

	summary, _ := store.Summary(session.ID)
	if summary.Title != DefaultTitle {
		t.Fatalf("title = %q, want placeholder %q", summary.Title, DefaultTitle)
	}
}

func TestMessagesPreserveOrder(t *testing.T) {
	store := New()
	session := store.GetOrCreate("")

	for i := 0; i < 5; i++ {
		msg := userMessage(session.ID, fmt.Sprintf("message %d", i))
		msg.ID = fmt.Sprintf("id-%d", i)
		store.Append(session.ID, msg)
	}

	messages := store.Messages(session.ID)
	if len(messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(messages))
	}
	for i, msg := range messages {
		if msg.ID != fmt.Sprintf("id-%d", i) {
			t.Fatalf("message %d out of order: %q", i, msg.ID)
		}
	}
}

func TestMessagesUnknownSessionIsEmpty(t *testing.T) {
	store := New()
	if got := store.Messages("never-seen"); len(got) != 0 {
		t.Fatalf("expected empty list, got %d messages", len(got))
	}
}

func TestSessionsSortedByUpdatedDescending(t *testing.T) {
	store := New()

	first := store.GetOrCreate("")
	second := store.GetOrCreate("")

	store.Append(first.ID, userMessage(first.ID, "older"))
	time.Sleep(2 * time.Millisecond)
	store.Append(second.ID, userMessage(second.ID, "newer"))

	sessions := store.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != second.ID {
		t.Fatalf("expected most recently updated session first, got %q", sessions[0].ID)
	}
}

func TestHydrateDoesNotClobberWarmSession(t *testing.T) {
	store := New()
	session := store.GetOrCreate("s1")
	store.Append(session.ID, userMessage(session.ID, "live message"))

	stale := models.Session{ID: "s1", Title: "Stale", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	store.Hydrate(stale, nil)

	summary, _ := store.Summary("s1")
	if summary.Title == "Stale" {
		t.Fatal("hydrate overwrote a warm session")
	}
	if len(store.Messages("s1")) != 1 {
		t.Fatal("hydrate dropped cached messages")
	}
}

func TestHydrateInstallsColdSession(t *testing.T) {
	store := New()
	msgs := []models.Message{userMessage("s2", "restored")}
	store.Hydrate(models.Session{ID: "s2", Title: "Restored"}, msgs)

	summary, ok := store.Summary("s2")
	if !ok || summary.Title != "Restored" {
		t.Fatalf("expected hydrated session, got %+v ok=%v", summary, ok)
	}
	if len(store.Messages("s2")) != 1 {
		t.Fatal("expected hydrated messages")
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := DeriveTitle("Hello there, can you help me"); got != "Hello there, can you help me" {
		t.Fatalf("short title = %q", got)
	}
	if got := DeriveTitle(""); got != DefaultTitle {
		t.Fatalf("empty title = %q, want %q", got, DefaultTitle)
	}
}
