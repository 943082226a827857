package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/extract"
	"github.com/docuquery/docuquery/internal/llm"
	"github.com/docuquery/docuquery/internal/session"
)

var (
	documentPath = flag.String("doc", "", "Path to the document to chat about (pdf, docx or txt)")
	chunkSize    = flag.Int("chunk-size", 0, "Manual chunk size in characters (0 selects automatic chunking)")
	chunkOverlap = flag.Int("chunk-overlap", 0, "Manual chunk overlap in characters")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *documentPath == "" {
		log.Fatal("Usage: chat -doc <file.pdf|file.docx|file.txt>")
	}

	config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nShutting down...")
		cancel()
		os.Exit(0)
	}()

	var capability llm.Capability
	switch config.AppConfig.LLMProvider {
	case "gemini":
		gemini, err := llm.NewGemini(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini provider: %v", err)
		}
		defer gemini.Close()
		capability = gemini
	case "ollama":
		capability = llm.NewOllama(config.AppConfig.OllamaURL, config.AppConfig.OllamaChatModel, config.AppConfig.OllamaEmbedModel)
	default:
		log.Fatalf("Unknown LLM_PROVIDER %q", config.AppConfig.LLMProvider)
	}
	timeout := time.Duration(config.AppConfig.LLMTimeoutSeconds * float64(time.Second))
	capability = llm.WithRetry(llm.WithTimeout(capability, timeout))

	data, err := os.ReadFile(*documentPath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *documentPath, err)
	}
	format, err := extract.DetectFormat(*documentPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	strategy := chunk.Strategy{Mode: chunk.ModeAutomatic}
	if *chunkSize > 0 {
		strategy, err = chunk.NewManualStrategy(*chunkSize, *chunkOverlap)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Println(boldGreen("DocuQuery"))
	fmt.Printf("Indexing %s...\n", boldCyan(filepath.Base(*documentPath)))

	// Turns live only in this process; no archive for the terminal client
	svc := session.NewService(capability, nil, config.AppConfig.RetrievalK, config.AppConfig.EmbedWorkers)
	s, err := svc.CreateSession(ctx, filepath.Base(*documentPath), data, format, strategy)
	if err != nil {
		log.Fatalf("Failed to index document: %v", err)
	}

	st := s.Strategy()
	fmt.Printf("Ready (chunk size %d, overlap %d). Ask about the document. Type 'exit' to quit, '/clear' to reset, '/export' to print the transcript.\n\n",
		st.ChunkSize, st.ChunkOverlap)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return
		case input == "/clear":
			if err := s.Clear(); err != nil {
				fmt.Printf("Cannot clear right now: %v\n", err)
				continue
			}
			fmt.Println("Conversation cleared. The document stays indexed.")
			continue
		case input == "/export":
			fmt.Println(s.ExportHistory())
			continue
		}

		result, err := svc.Submit(ctx, s.ID, input)
		if err != nil {
			fmt.Printf("Turn failed: %v\n", err)
			continue
		}

		fmt.Printf("%s %s\n", boldCyan("Assistant:"), result.Answer.Content)
		if len(result.Answer.Sources) > 0 {
			for i, src := range result.Answer.Sources {
				preview := src.Text
				if len(preview) > 120 {
					preview = preview[:120] + "..."
				}
				fmt.Println(faint(fmt.Sprintf("  [source %d, chunk %d] %s", i+1, src.ID, preview)))
			}
		}
		fmt.Println()
	}
}
