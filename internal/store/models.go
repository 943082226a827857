package store

import "time"

type SessionRecord struct {
	ID           string    `json:"id"` // Session UUID
	DocumentName string    `json:"document_name"`
	Title        *string   `json:"title"` // Nullable, generated after first exchange
	CreatedAt    time.Time `json:"created_at"`
}

type TurnRecord struct {
	ID               string    `json:"id"` // UUID
	SessionID        string    `json:"session_id"`
	Role             string    `json:"role"` // "user" or "assistant"
	Content          string    `json:"content"`
	SourcesJSON      string    `json:"-"` // Retrieved chunks serialized as JSON
	Timestamp        time.Time `json:"timestamp"`
	NegativeFeedback bool      `json:"negative_feedback"`
}
