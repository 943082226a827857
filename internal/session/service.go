package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/extract"
	"github.com/docuquery/docuquery/internal/index"
	"github.com/docuquery/docuquery/internal/llm"
	"github.com/docuquery/docuquery/internal/rag"
)

// Archiver persists completed turns outside the session's own lifetime.
// Archiving is best-effort: a failed write never fails a turn.
type Archiver interface {
	CreateSession(sessionID, documentName string) error
	AppendTurn(sessionID string, turn rag.Turn) (string, error)
	SetSessionTitle(sessionID, title string) error
}

// Service owns all live sessions and runs the per-turn pipeline:
// rewrite -> retrieve -> synthesize -> append.
type Service struct {
	capability   llm.Capability
	rewriter     *rag.Rewriter
	retriever    *rag.Retriever
	synthesizer  *rag.Synthesizer
	extractor    *rag.Extractor
	archive      Archiver // nil disables archiving
	retrievalK   int
	embedWorkers int

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(capability llm.Capability, archive Archiver, retrievalK, embedWorkers int) *Service {
	return &Service{
		capability:   capability,
		rewriter:     rag.NewRewriter(capability),
		retriever:    rag.NewRetriever(capability),
		synthesizer:  rag.NewSynthesizer(capability),
		extractor:    rag.NewExtractor(capability),
		archive:      archive,
		retrievalK:   retrievalK,
		embedWorkers: embedWorkers,
		sessions:     make(map[string]*Session),
	}
}

// CreateSession extracts, chunks and indexes the uploaded document, then
// registers a fresh session around the result. On any failure nothing is
// registered and the caller sees the extraction or indexing error.
func (svc *Service) CreateSession(ctx context.Context, filename string, data []byte, format extract.Format, strategy chunk.Strategy) (*Session, error) {
	s := newSession(uuid.NewString())
	if err := svc.buildAndAttach(ctx, s, filename, data, format, strategy); err != nil {
		return nil, err
	}

	svc.mu.Lock()
	svc.sessions[s.ID] = s
	svc.mu.Unlock()

	if svc.archive != nil {
		if err := svc.archive.CreateSession(s.ID, filename); err != nil {
			log.Printf("Failed to archive session %s: %v", s.ID, err)
		}
	}
	return s, nil
}

// ReplaceDocument rebuilds the session around a new upload: fresh index,
// empty history. The old index is discarded, never mutated.
func (svc *Service) ReplaceDocument(ctx context.Context, sessionID, filename string, data []byte, format extract.Format, strategy chunk.Strategy) (*Session, error) {
	s, err := svc.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := svc.buildAndAttach(ctx, s, filename, data, format, strategy); err != nil {
		return nil, err
	}
	return s, nil
}

func (svc *Service) buildAndAttach(ctx context.Context, s *Session, filename string, data []byte, format extract.Format, strategy chunk.Strategy) error {
	text, err := extract.Extract(data, format)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: document contains no extractable text", extract.ErrCorruptDocument)
	}

	if strategy.Mode == chunk.ModeAutomatic {
		strategy = chunk.AutoStrategy(len([]rune(text)))
	}

	chunks, err := chunk.Split(text, strategy)
	if err != nil {
		return err
	}

	idx, err := index.Build(ctx, chunks, svc.capability, svc.embedWorkers)
	if err != nil {
		return fmt.Errorf("failed to build index for %s: %w", filename, err)
	}

	return s.attachIndex(filename, strategy, idx)
}

func (svc *Service) Get(sessionID string) (*Session, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	s, ok := svc.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (svc *Service) Delete(sessionID string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if _, ok := svc.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(svc.sessions, sessionID)
	return nil
}

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	Answer rag.Turn
	// TurnID is the archive id of the assistant turn, empty when archiving
	// is disabled or failed.
	TurnID string
}

// Submit runs one conversation turn. The history is appended only when the
// whole pipeline succeeds; a failed or cancelled turn leaves the
// conversation exactly as it was, so the caller can retry the same message.
func (svc *Service) Submit(ctx context.Context, sessionID, userMessage string) (*TurnResult, error) {
	s, err := svc.Get(sessionID)
	if err != nil {
		return nil, err
	}

	history, idx, err := s.beginTurn()
	if err != nil {
		return nil, err
	}

	standalone := svc.rewriter.Rewrite(ctx, history, userMessage)

	retrieved, err := svc.retriever.Retrieve(ctx, idx, standalone, svc.retrievalK)
	if err != nil {
		s.abortTurn()
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	answer, sources, err := svc.synthesizer.Synthesize(ctx, userMessage, history, retrieved)
	if err != nil {
		s.abortTurn()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		s.abortTurn()
		return nil, err
	}

	userTurn := rag.Turn{Role: rag.RoleUser, Content: userMessage}
	assistantTurn := rag.Turn{Role: rag.RoleAssistant, Content: answer, Sources: sources}
	firstExchange := s.completeTurn(userTurn, assistantTurn)

	result := &TurnResult{Answer: assistantTurn}
	if svc.archive != nil {
		if _, err := svc.archive.AppendTurn(s.ID, userTurn); err != nil {
			log.Printf("Failed to archive user turn for session %s: %v", s.ID, err)
		}
		turnID, err := svc.archive.AppendTurn(s.ID, assistantTurn)
		if err != nil {
			log.Printf("Failed to archive assistant turn for session %s: %v", s.ID, err)
		} else {
			result.TurnID = turnID
		}
	}

	if firstExchange {
		go svc.generateAndSaveTitle(s, userMessage)
	}
	return result, nil
}

// ExtractInvoice runs structured extraction against the session's index.
func (svc *Service) ExtractInvoice(ctx context.Context, sessionID, request string) (*rag.Invoice, error) {
	s, err := svc.Get(sessionID)
	if err != nil {
		return nil, err
	}
	idx := s.indexSnapshot()
	if idx == nil {
		return nil, ErrNotIndexed
	}
	return svc.extractor.ExtractInvoice(ctx, idx, request)
}

func (svc *Service) generateAndSaveTitle(s *Session, basisContent string) {
	title, err := svc.capability.Complete(context.Background(), rag.TitlePrompt(basisContent))
	if err != nil {
		log.Printf("Failed to generate title for session %s: %v", s.ID, err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}

	s.setTitle(title)
	if svc.archive != nil {
		if err := svc.archive.SetSessionTitle(s.ID, title); err != nil {
			log.Printf("Failed to save title %q for session %s: %v", title, s.ID, err)
		}
	}
}
