package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docuquery/docuquery/internal/api"
	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/llm"
	"github.com/docuquery/docuquery/internal/session"
	"github.com/docuquery/docuquery/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	noArchiveFlag := flag.Bool("no-archive", false, "Disable the SQLite turn archive")
	flag.Parse()

	// Build the model capability for the configured provider
	var capability llm.Capability
	switch config.AppConfig.LLMProvider {
	case "gemini":
		gemini, err := llm.NewGemini(context.Background(), config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini provider: %v", err)
		}
		defer gemini.Close()
		capability = gemini
	case "ollama":
		capability = llm.NewOllama(config.AppConfig.OllamaURL, config.AppConfig.OllamaChatModel, config.AppConfig.OllamaEmbedModel)
	default:
		log.Fatalf("Unknown LLM_PROVIDER %q (want \"gemini\" or \"ollama\")", config.AppConfig.LLMProvider)
	}

	// Per-attempt deadline first, then bounded retry on transient failures
	timeout := time.Duration(config.AppConfig.LLMTimeoutSeconds * float64(time.Second))
	capability = llm.WithRetry(llm.WithTimeout(capability, timeout))

	// Initialize the turn archive
	var archive *store.SQLiteStore
	var archiver session.Archiver
	if !*noArchiveFlag {
		var err error
		archive, err = store.NewSQLiteStore(config.AppConfig.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer archive.Close()
		archiver = archive
	}

	// Initialize the session service and API
	sessionService := session.NewService(capability, archiver, config.AppConfig.RetrievalK, config.AppConfig.EmbedWorkers)
	apiHandler := api.NewAPIHandler(sessionService, archive)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Indexing and LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
