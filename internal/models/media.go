package models

import "time"

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaItem records one successfully generated image or video. An edited
// derivative is a new MediaItem for the same session, never a mutation.
type MediaItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      MediaKind `json:"kind"`
	Prompt    string    `json:"prompt"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
