package session

import (
	"errors"
	"sync"
	"time"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/index"
	"github.com/docuquery/docuquery/internal/rag"
)

// State tracks where a session is in its lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateIndexed       State = "indexed"
	StateQuerying      State = "querying"
)

var (
	ErrNotIndexed   = errors.New("session: no document indexed")
	ErrTurnInFlight = errors.New("session: a turn is already in flight")
	ErrNotFound     = errors.New("session: not found")
)

// Session owns one conversation and the index for its document, 1:1. All
// retrieval for the session queries this index and no other. Mutable fields
// are guarded by mu; the index itself is read-only once attached.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	documentName string
	title        string
	strategy     chunk.Strategy
	index        *index.Index
	history      rag.History
	lastSources  []chunk.Chunk
	inFlight     bool
}

func newSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now(), state: StateUninitialized}
}

// attachIndex installs a freshly built index, discarding any previous index
// and the conversation that went with it. Never mutates an old index in
// place: concurrent readers of the previous document keep their snapshot.
func (s *Session) attachIndex(documentName string, strategy chunk.Strategy, idx *index.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrTurnInFlight
	}
	s.documentName = documentName
	s.strategy = strategy
	s.index = idx
	s.history = nil
	s.lastSources = nil
	s.title = ""
	s.state = StateIndexed
	return nil
}

// beginTurn moves the session into the querying state and hands back the
// turn's working snapshot. At most one turn runs at a time; a concurrent
// submit is rejected rather than queued so history order always matches the
// order callers observe.
func (s *Session) beginTurn() (rag.History, *index.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized || s.index == nil {
		return nil, nil, ErrNotIndexed
	}
	if s.inFlight {
		return nil, nil, ErrTurnInFlight
	}
	s.inFlight = true
	s.state = StateQuerying

	history := make(rag.History, len(s.history))
	copy(history, s.history)
	return history, s.index, nil
}

// completeTurn appends the finished exchange. Called only for successful
// turns; failed or cancelled turns go through abortTurn and leave history
// untouched.
func (s *Session) completeTurn(userTurn, assistantTurn rag.Turn) (firstExchange bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	firstExchange = len(s.history) == 0
	s.history = append(s.history, userTurn, assistantTurn)
	s.lastSources = assistantTurn.Sources
	s.inFlight = false
	s.state = StateIndexed
	return firstExchange
}

func (s *Session) abortTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.state = StateIndexed
}

// Clear resets the conversation and keeps the index: same document, fresh
// chat.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrTurnInFlight
	}
	s.history = nil
	s.lastSources = nil
	if s.state != StateUninitialized {
		s.state = StateIndexed
	}
	return nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() rag.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make(rag.History, len(s.history))
	copy(history, s.history)
	return history
}

// LastSources returns the chunks that grounded the most recent answer.
func (s *Session) LastSources() []chunk.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := make([]chunk.Chunk, len(s.lastSources))
	copy(sources, s.lastSources)
	return sources
}

// ExportHistory renders the conversation as plain text, one turn per line.
func (s *Session) ExportHistory() string {
	return s.History().Transcript()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) DocumentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentName
}

func (s *Session) Strategy() chunk.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) setTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Session) indexSnapshot() *index.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
