package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is an inline file carried with a message. Data holds the
// base64-encoded payload; nothing is referenced outside the record.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Message is one turn half inside a session. Immutable once created.
type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
