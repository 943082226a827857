package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/extract"
	"github.com/docuquery/docuquery/internal/llm"
	"github.com/docuquery/docuquery/internal/rag"
)

const ragDocument = "RAG combines retrieval with generation. LangChain provides tools for building RAG pipelines."

// stubCapability embeds by vocabulary word counts so similarity is
// deterministic and answers with a scripted completion. Shorter passages
// sharing a query term score higher than longer ones, like a real embedding
// would.
type stubCapability struct {
	mu              sync.Mutex
	completePrompts []string
	completeFunc    func(prompt string) (string, error)
	embedDelay      time.Duration
}

var embedVocab = []string{"rag", "combines", "retrieval", "generation", "langchain", "provides", "tools", "building", "pipelines", "what"}

func (s *stubCapability) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.embedDelay > 0 {
		time.Sleep(s.embedDelay)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(embedVocab))
		for j, term := range embedVocab {
			vec[j] = float32(strings.Count(lower, term))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *stubCapability) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.completePrompts = append(s.completePrompts, prompt)
	s.mu.Unlock()
	// Session titling runs in the background; keep it out of scripted
	// completions.
	if strings.Contains(prompt, "concise title") {
		return "Document Chat", nil
	}
	if s.completeFunc != nil {
		return s.completeFunc(prompt)
	}
	return "RAG grounds answers in retrieved passages.", nil
}

func newTestService(capability llm.Capability) *Service {
	return NewService(capability, nil, 4, 2)
}

func createRAGSession(t *testing.T, svc *Service) *Session {
	t.Helper()
	strategy, err := chunk.NewManualStrategy(50, 10)
	require.NoError(t, err)

	s, err := svc.CreateSession(context.Background(), "rag.txt", []byte(ragDocument), extract.FormatTXT, strategy)
	require.NoError(t, err)
	return s
}

func TestCreateSessionIndexesDocument(t *testing.T) {
	svc := newTestService(&stubCapability{})
	s := createRAGSession(t, svc)

	assert.Equal(t, StateIndexed, s.State())
	assert.Equal(t, "rag.txt", s.DocumentName())
	assert.Empty(t, s.History())

	// chunk_size=50 with overlap=10 over the scenario text yields multiple
	// overlapping chunks.
	assert.GreaterOrEqual(t, s.indexSnapshot().Len(), 2)
}

func TestCreateSessionAutomaticStrategy(t *testing.T) {
	svc := newTestService(&stubCapability{})
	s, err := svc.CreateSession(context.Background(), "rag.txt", []byte(ragDocument), extract.FormatTXT, chunk.Strategy{Mode: chunk.ModeAutomatic})
	require.NoError(t, err)

	st := s.Strategy()
	assert.Equal(t, chunk.ModeAutomatic, st.Mode)
	assert.Equal(t, 500, st.ChunkSize) // Short document tier
	assert.Equal(t, 100, st.ChunkOverlap)
}

func TestCreateSessionRejectsUnsupportedFormat(t *testing.T) {
	svc := newTestService(&stubCapability{})
	_, err := svc.CreateSession(context.Background(), "doc.png", []byte("bytes"), extract.Format("png"), chunk.Strategy{Mode: chunk.ModeAutomatic})
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
}

func TestSubmitEndToEnd(t *testing.T) {
	capability := &stubCapability{}
	svc := newTestService(capability)
	s := createRAGSession(t, svc)

	result, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)
	assert.Equal(t, rag.RoleAssistant, result.Answer.Role)
	assert.NotEmpty(t, result.Answer.Content)
	require.NotEmpty(t, result.Answer.Sources)

	// The best-matching chunk is the opening one that defines RAG.
	assert.Equal(t, 0, result.Answer.Sources[0].ID)
	assert.Contains(t, result.Answer.Sources[0].Text, "RAG combines retrieval")

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, rag.RoleUser, history[0].Role)
	assert.Equal(t, "What is RAG?", history[0].Content)
	assert.Empty(t, history[0].Sources)
	assert.Equal(t, rag.RoleAssistant, history[1].Role)
	assert.NotEmpty(t, history[1].Sources)

	assert.Equal(t, StateIndexed, s.State())
}

func TestSubmitRewritePassedToRetrievalOnly(t *testing.T) {
	const standalone = "Does RAG work with LangChain pipelines?"
	capability := &stubCapability{}
	capability.completeFunc = func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Standalone question:"):
			return standalone, nil
		case strings.Contains(prompt, "does that work with langchain?"):
			// The synthesis prompt carries the question as the user typed
			// it, never the rewritten form.
			assert.Contains(t, prompt, "Question: does that work with langchain?")
			assert.NotContains(t, prompt, standalone)
			return "Yes.", nil
		default:
			return "RAG grounds answers in retrieved passages.", nil
		}
	}
	svc := newTestService(capability)
	s := createRAGSession(t, svc)

	// Seed one exchange so the rewriter has history to resolve against.
	_, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), s.ID, "does that work with langchain?")
	require.NoError(t, err)
}

func TestSubmitSerializesConcurrentTurns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	capability := &stubCapability{}
	capability.completeFunc = func(prompt string) (string, error) {
		close(started)
		<-release
		return "slow answer", nil
	}
	svc := newTestService(capability)
	s := createRAGSession(t, svc)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), s.ID, "first question")
		firstDone <- err
	}()

	<-started
	// A second turn against the same session is rejected, not queued.
	_, err := svc.Submit(context.Background(), s.ID, "second question")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(release)
	require.NoError(t, <-firstDone)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first question", history[0].Content)
}

func TestSubmitFailureLeavesHistoryUnchanged(t *testing.T) {
	capability := &stubCapability{
		completeFunc: func(string) (string, error) { return "", llm.ErrRateLimit },
	}
	svc := newTestService(capability)
	s := createRAGSession(t, svc)

	_, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrRateLimit)

	assert.Empty(t, s.History(), "a failed turn must not append a partial entry")
	assert.Equal(t, StateIndexed, s.State(), "the session stays usable after a failed turn")

	// The same message can be retried once the provider recovers.
	capability.completeFunc = nil
	_, err = svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)
	assert.Len(t, s.History(), 2)
}

func TestSubmitCancelledTurnAppendsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	capability := &stubCapability{
		completeFunc: func(string) (string, error) {
			cancel() // Caller gives up mid-synthesis
			return "late answer", nil
		},
	}
	svc := newTestService(capability)
	s := createRAGSession(t, svc)

	_, err := svc.Submit(ctx, s.ID, "What is RAG?")
	require.Error(t, err)
	assert.Empty(t, s.History())
}

func TestSubmitUnknownSession(t *testing.T) {
	svc := newTestService(&stubCapability{})
	_, err := svc.Submit(context.Background(), "no-such-session", "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearKeepsIndex(t *testing.T) {
	svc := newTestService(&stubCapability{})
	s := createRAGSession(t, svc)

	_, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)
	require.Len(t, s.History(), 2)

	require.NoError(t, s.Clear())
	assert.Empty(t, s.History())
	assert.Empty(t, s.LastSources())
	assert.Equal(t, StateIndexed, s.State())

	// Same document, fresh conversation.
	_, err = svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)
	assert.Len(t, s.History(), 2)
}

func TestReplaceDocumentDiscardsHistory(t *testing.T) {
	svc := newTestService(&stubCapability{})
	s := createRAGSession(t, svc)

	_, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)

	_, err = svc.ReplaceDocument(context.Background(), s.ID, "other.txt", []byte("A completely different document about gardening."), extract.FormatTXT, chunk.Strategy{Mode: chunk.ModeAutomatic})
	require.NoError(t, err)

	assert.Equal(t, "other.txt", s.DocumentName())
	assert.Empty(t, s.History())
	assert.Equal(t, StateIndexed, s.State())
}

func TestExportHistoryFormat(t *testing.T) {
	svc := newTestService(&stubCapability{
		completeFunc: func(string) (string, error) { return "Grounded generation.", nil },
	})
	s := createRAGSession(t, svc)

	_, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)

	export := s.ExportHistory()
	lines := strings.Split(export, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "user: What is RAG?", lines[0])
	assert.Equal(t, "assistant: Grounded generation.", lines[1])
}

// recordingArchiver captures archive calls for assertions.
type recordingArchiver struct {
	mu       sync.Mutex
	sessions []string
	turns    []rag.Turn
}

func (a *recordingArchiver) CreateSession(sessionID, documentName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, sessionID)
	return nil
}

func (a *recordingArchiver) AppendTurn(sessionID string, turn rag.Turn) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = append(a.turns, turn)
	return "turn-id", nil
}

func (a *recordingArchiver) SetSessionTitle(string, string) error { return nil }

func TestSubmitArchivesCompletedTurns(t *testing.T) {
	archiver := &recordingArchiver{}
	svc := NewService(&stubCapability{}, archiver, 4, 2)

	strategy, err := chunk.NewManualStrategy(50, 10)
	require.NoError(t, err)
	s, err := svc.CreateSession(context.Background(), "rag.txt", []byte(ragDocument), extract.FormatTXT, strategy)
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), s.ID, "What is RAG?")
	require.NoError(t, err)
	assert.Equal(t, "turn-id", result.TurnID)

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	assert.Equal(t, []string{s.ID}, archiver.sessions)
	require.Len(t, archiver.turns, 2)
	assert.Equal(t, rag.RoleUser, archiver.turns[0].Role)
	assert.Equal(t, rag.RoleAssistant, archiver.turns[1].Role)
}
