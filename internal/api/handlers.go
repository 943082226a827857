package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/extract"
	"github.com/docuquery/docuquery/internal/llm"
	"github.com/docuquery/docuquery/internal/rag"
	"github.com/docuquery/docuquery/internal/session"
	"github.com/docuquery/docuquery/internal/store"
)

// maxUploadBytes bounds document uploads at 32 MiB.
const maxUploadBytes = 32 << 20

type APIHandler struct {
	sessions *session.Service
	archive  *store.SQLiteStore // may be nil when archiving is disabled
}

func NewAPIHandler(sessions *session.Service, archive *store.SQLiteStore) *APIHandler {
	return &APIHandler{sessions: sessions, archive: archive}
}

type SessionResponse struct {
	ID           string         `json:"id"`
	DocumentName string         `json:"document_name"`
	Title        string         `json:"title,omitempty"`
	State        session.State  `json:"state"`
	Strategy     chunk.Strategy `json:"strategy"`
	History      rag.History    `json:"history"`
}

func sessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		DocumentName: s.DocumentName(),
		Title:        s.Title(),
		State:        s.State(),
		Strategy:     s.Strategy(),
		History:      s.History(),
	}
}

// parseUpload reads the multipart form shared by session creation and
// document replacement: a "file" part plus optional chunking settings.
func parseUpload(r *http.Request) (filename string, data []byte, format extract.Format, strategy chunk.Strategy, err error) {
	if err = r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, "", chunk.Strategy{}, errBadRequest("invalid multipart form: " + err.Error())
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, "", chunk.Strategy{}, errBadRequest("missing file upload")
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return "", nil, "", chunk.Strategy{}, errBadRequest("failed to read upload: " + err.Error())
	}

	format, err = extract.DetectFormat(header.Filename)
	if err != nil {
		return "", nil, "", chunk.Strategy{}, err
	}

	mode := r.FormValue("mode")
	switch mode {
	case "", "automatic":
		strategy = chunk.Strategy{Mode: chunk.ModeAutomatic}
	case "manual":
		size, convErr := strconv.Atoi(r.FormValue("chunk_size"))
		if convErr != nil {
			return "", nil, "", chunk.Strategy{}, errBadRequest("manual mode requires an integer chunk_size")
		}
		overlap := 0
		if v := r.FormValue("chunk_overlap"); v != "" {
			if overlap, convErr = strconv.Atoi(v); convErr != nil {
				return "", nil, "", chunk.Strategy{}, errBadRequest("chunk_overlap must be an integer")
			}
		}
		strategy, err = chunk.NewManualStrategy(size, overlap)
		if err != nil {
			return "", nil, "", chunk.Strategy{}, err
		}
	default:
		return "", nil, "", chunk.Strategy{}, errBadRequest("mode must be \"automatic\" or \"manual\"")
	}

	return header.Filename, data, format, strategy, nil
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	filename, data, format, strategy, err := parseUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.CreateSession(r.Context(), filename, data, format, strategy)
	if err != nil {
		log.Printf("Error creating session for %s: %v", filename, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sessionResponse(s))
}

func (h *APIHandler) ReplaceDocumentHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	filename, data, format, strategy, err := parseUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.ReplaceDocument(r.Context(), sessionID, filename, data, format, strategy)
	if err != nil {
		log.Printf("Error replacing document for session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(sessionResponse(s))
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(sessionResponse(s))
}

type SubmitMessageRequest struct {
	Content string `json:"content"`
}

type SubmitMessageResponse struct {
	TurnID  string        `json:"turn_id,omitempty"`
	Role    rag.Role      `json:"role"`
	Content string        `json:"content"`
	Sources []chunk.Chunk `json:"sources"`
}

func (h *APIHandler) SubmitMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}
	if req.Content == "" {
		writeError(w, errBadRequest("message content cannot be empty"))
		return
	}

	result, err := h.sessions.Submit(r.Context(), sessionID, req.Content)
	if err != nil {
		log.Printf("Error submitting message for session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(SubmitMessageResponse{
		TurnID:  result.TurnID,
		Role:    result.Answer.Role,
		Content: result.Answer.Content,
		Sources: result.Answer.Sources,
	})
}

func (h *APIHandler) ClearSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Clear(); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(sessionResponse(s))
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ExportHistoryHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.ExportHistory()))
}

func (h *APIHandler) GetSourcesHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(s.LastSources())
}

type ExtractDataRequest struct {
	InputText string `json:"input_text"`
}

func (h *APIHandler) ExtractDataHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req ExtractDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}
	if req.InputText == "" {
		writeError(w, errBadRequest("input_text cannot be empty"))
		return
	}

	invoice, err := h.sessions.ExtractInvoice(r.Context(), sessionID, req.InputText)
	if err != nil {
		log.Printf("Error during data extraction for session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(invoice)
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

func (h *APIHandler) TurnFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		http.Error(w, "Turn archive is disabled", http.StatusNotImplemented)
		return
	}
	turnID := chi.URLParam(r, "turnID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}

	if err := h.archive.UpdateTurnFeedback(turnID, req.Negative); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListArchivedSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		http.Error(w, "Turn archive is disabled", http.StatusNotImplemented)
		return
	}
	sessions, err := h.archive.ListSessions()
	if err != nil {
		log.Printf("Error listing archived sessions: %v", err)
		http.Error(w, "Failed to list archived sessions", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(sessions)
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequestError{msg: msg} }

// writeError maps pipeline errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var badReq badRequestError
	switch {
	case errors.As(err, &badReq):
		http.Error(w, badReq.msg, http.StatusBadRequest)
	case errors.Is(err, chunk.ErrInvalidStrategy):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, extract.ErrUnsupportedFormat):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, extract.ErrCorruptDocument):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, session.ErrTurnInFlight):
		http.Error(w, "A turn is already in progress for this session", http.StatusConflict)
	case errors.Is(err, session.ErrNotIndexed):
		http.Error(w, "No document indexed for this session", http.StatusConflict)
	case errors.Is(err, llm.ErrRateLimit):
		http.Error(w, "Model provider rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, llm.ErrAuth):
		http.Error(w, "Model provider authentication failed", http.StatusBadGateway)
	case errors.Is(err, llm.ErrTimeout):
		http.Error(w, "Model provider request timed out", http.StatusGatewayTimeout)
	case errors.Is(err, llm.ErrTransient):
		http.Error(w, "Model provider is temporarily unavailable", http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
