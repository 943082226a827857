package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey      string
	LLMProvider       string // "gemini" or "ollama"
	OllamaURL         string
	OllamaChatModel   string
	OllamaEmbedModel  string
	DatabaseURL       string
	HTTPPort          string
	LogLevel          string
	RetrievalK        int
	EmbedWorkers      int
	LLMTimeoutSeconds float64 // 0 disables the per-call deadline
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		LLMProvider:       getEnv("LLM_PROVIDER", "gemini"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434/api"),
		OllamaChatModel:   getEnv("OLLAMA_CHAT_MODEL", "llama3"),
		OllamaEmbedModel:  getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		DatabaseURL:       getEnv("DATABASE_URL", "docuquery.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		RetrievalK:        getEnvAsInt("RETRIEVAL_K", 4),
		EmbedWorkers:      getEnvAsInt("EMBED_WORKERS", 4),
		LLMTimeoutSeconds: getEnvAsFloat("LLM_TIMEOUT_SECONDS", 0),
	}

	if AppConfig.LLMProvider == "gemini" && AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
	}

	if AppConfig.RetrievalK <= 0 {
		log.Fatalf("RETRIEVAL_K must be positive, got %d", AppConfig.RetrievalK)
	}

	if AppConfig.EmbedWorkers <= 0 {
		log.Fatalf("EMBED_WORKERS must be positive, got %d", AppConfig.EmbedWorkers)
	}

	if AppConfig.LLMTimeoutSeconds < 0 {
		log.Fatalf("LLM_TIMEOUT_SECONDS must not be negative, got %f", AppConfig.LLMTimeoutSeconds)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
