package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Session lifecycle
		r.Post("/sessions", apiHandler.CreateSessionHandler)
		r.Get("/sessions/{sessionID}", apiHandler.GetSessionHandler)
		r.Post("/sessions/{sessionID}/document", apiHandler.ReplaceDocumentHandler)
		r.Post("/sessions/{sessionID}/clear", apiHandler.ClearSessionHandler)
		r.Delete("/sessions/{sessionID}", apiHandler.DeleteSessionHandler)
		r.Get("/sessions/{sessionID}/export", apiHandler.ExportHistoryHandler)

		// Conversation
		r.Post("/sessions/{sessionID}/messages", apiHandler.SubmitMessageHandler)
		r.Get("/sessions/{sessionID}/sources", apiHandler.GetSourcesHandler)
		r.Post("/sessions/{sessionID}/extract", apiHandler.ExtractDataHandler)

		// Turn archive
		r.Post("/turns/{turnID}/feedback", apiHandler.TurnFeedbackHandler)
		r.Get("/archive/sessions", apiHandler.ListArchivedSessionsHandler)
	})

	return r
}
