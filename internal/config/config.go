// Package config resolves runtime configuration from the environment.
//
// Model identifiers and other tunables are exposed as accessor functions
// rather than fields populated once at import time, so that loading order
// relative to .env never changes what a given call observes (see
// DESIGN.md, "lazy configuration").
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var loadEnvOnce sync.Once

// loadDotenv loads a .env file into the process environment the first time
// any accessor in this package is used. It never overrides values already
// set in the OS environment.
func loadDotenv() {
	loadEnvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

func getenv(key string) string {
	loadDotenv()
	return strings.TrimSpace(os.Getenv(key))
}

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DatabaseURL returns the Postgres connection string (DATABASE_URL).
func DatabaseURL() string { return getenv("DATABASE_URL") }

// ExtractionModelID returns the model used by the Retain extraction call (C5).
func ExtractionModelID() string { return getenvDefault("EXTRACTION_MODEL_ID", "") }

// ConsolidationModelID returns the model used by the Consolidation classifier (C7).
func ConsolidationModelID() string { return getenvDefault("CONSOLIDATION_MODEL_ID", "") }

// ReflectModelID returns the model used by the Reflect tool-use loop (C9).
func ReflectModelID() string { return getenvDefault("REFLECT_MODEL_ID", "") }

// RerankModelID returns the model used for any optional reranking stage.
func RerankModelID() string { return getenvDefault("RERANK_MODEL_ID", "") }

// EmbeddingModelID returns the model used by the embedding provider (C2).
func EmbeddingModelID() string { return getenvDefault("EMBEDDING_MODEL_ID", "") }

// ConsolidationIntervalSeconds returns how often the scheduler (C10) runs a
// consolidation pass. Defaults to 300s per §6.
func ConsolidationIntervalSeconds() int {
	return getenvInt("CONSOLIDATION_INTERVAL_SECONDS", 300)
}

// LLMProvider selects which backend implements the llmprovider.Provider contract:
// "anthropic", "openai", or "google". Defaults to "anthropic".
func LLMProvider() string { return getenvDefault("LLM_PROVIDER", "anthropic") }

// AnthropicAPIKey returns the Anthropic API key, if configured.
func AnthropicAPIKey() string { return getenv("ANTHROPIC_API_KEY") }

// OpenAIAPIKey returns the OpenAI API key, if configured.
func OpenAIAPIKey() string { return getenv("OPENAI_API_KEY") }

// GoogleAPIKey returns the Google Gemini API key, if configured.
func GoogleAPIKey() string { return getenv("GOOGLE_API_KEY") }

// EmbeddingBaseURL returns the HTTP endpoint for the embedding provider.
func EmbeddingBaseURL() string { return getenv("EMBEDDING_BASE_URL") }

// EmbeddingAPIKey returns the API key for the embedding provider.
func EmbeddingAPIKey() string { return getenv("EMBEDDING_API_KEY") }

// LogLevel returns the configured zerolog level string (e.g. "info", "debug").
func LogLevel() string { return getenvDefault("LOG_LEVEL", "info") }

// EmbeddingConcurrency returns the process-wide embedding concurrency cap (§4.2).
func EmbeddingConcurrency() int { return getenvInt("EMBEDDING_CONCURRENCY", 5) }

// WriteConcurrency returns the process-wide write-path concurrency cap (§5).
func WriteConcurrency() int { return getenvInt("WRITE_CONCURRENCY", 5) }

// RecallFanoutLimit returns the cross-Recall search-side fan-out cap (§5).
func RecallFanoutLimit() int { return getenvInt("RECALL_FANOUT_LIMIT", 32) }
