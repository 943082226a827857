package rag

import (
	"strings"

	"github.com/docuquery/docuquery/internal/chunk"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one completed exchange entry. Assistant turns carry the chunks
// that grounded the answer; user turns have no sources.
type Turn struct {
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Sources []chunk.Chunk `json:"sources,omitempty"`
}

// History is the ordered conversation so far, oldest first. It is only ever
// mutated by appending completed turns.
type History []Turn

// Transcript renders the history one line per turn as "<role>: <content>".
func (h History) Transcript() string {
	var b strings.Builder
	for i, turn := range h {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
	}
	return b.String()
}
