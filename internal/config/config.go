package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Note source (host REST API).
	NotesAPIURL   string
	NotesAPIToken string
	NotesPageSize int

	// Embedding backend.
	EmbeddingBaseURL      string
	EmbeddingAPIKey       string
	EmbeddingModelName    string
	EmbeddingModelVersion string
	EmbeddingVersion      int
	EmbeddingVectorSize   int
	EmbeddingTimeout      time.Duration

	// Block splitting.
	MaxBlockTokens int
	EmbedTitle     bool
	EmbedHeading   bool

	// Sync pacing.
	RequestsPerSecond float64
	PageCycle         int
	Cooldown          time.Duration
	EmbedFanOut       int
	EmbedRetries      int

	// Retrieval defaults, overridable per request.
	MinSimilarity         float64
	MinBlockLength        int
	MaxHits               int
	Aggregation           string
	BlockSimilarityFactor float64
	PrevBlocks            int
	NextBlocks            int
	NearestBlocks         int
	ContextTokens         int
	MaxQueryTokens        int

	// RebuildDecision answers the model drift prompt at startup:
	// "rebuild" wipes and re-registers, "keep" registers alongside
	// existing rows, "defer" leaves the store read-only.
	RebuildDecision string

	DataDir   string
	APIPort   string
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	// Try to find project root by looking for go.mod
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		NotesAPIURL:   getEnv("NOTES_API_URL", "http://localhost:41184"),
		NotesAPIToken: getEnv("NOTES_API_TOKEN", ""),

		EmbeddingBaseURL:      getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingAPIKey:       getEnv("EMBEDDING_API_KEY", "dummy-key"),
		EmbeddingModelName:    getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingModelVersion: getEnv("EMBEDDING_MODEL_VERSION", "1"),

		Aggregation:     getEnv("AGGREGATION", "max"),
		RebuildDecision: getEnv("REBUILD_DECISION", "defer"),

		DataDir:   getEnv("DATA_DIR", "./data"),
		APIPort:   getEnv("API_PORT", "9000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	// EMBEDDING_VECTOR_SIZE must match the output vector size of the
	// embeddings model. For granite-embedding-278m-multilingual this is
	// typically 768 dimensions. If the size changes the store has to be
	// rebuilt, which the model drift check surfaces at startup.
	vectorSizeStr := getEnv("EMBEDDING_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be greater than 0")
	}
	cfg.EmbeddingVectorSize = vectorSize

	if cfg.NotesAPIToken == "" {
		return nil, fmt.Errorf("NOTES_API_TOKEN is required")
	}

	if cfg.NotesPageSize, err = getEnvInt("NOTES_PAGE_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.EmbeddingVersion, err = getEnvInt("EMBEDDING_VERSION", 1); err != nil {
		return nil, err
	}
	if cfg.MaxBlockTokens, err = getEnvInt("MAX_BLOCK_TOKENS", 512); err != nil {
		return nil, err
	}
	if cfg.PageCycle, err = getEnvInt("PAGE_CYCLE", 20); err != nil {
		return nil, err
	}
	if cfg.EmbedFanOut, err = getEnvInt("EMBED_FAN_OUT", 5); err != nil {
		return nil, err
	}
	if cfg.EmbedRetries, err = getEnvInt("EMBED_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.MinBlockLength, err = getEnvInt("MIN_BLOCK_LENGTH", 100); err != nil {
		return nil, err
	}
	if cfg.MaxHits, err = getEnvInt("MAX_HITS", 10); err != nil {
		return nil, err
	}
	if cfg.PrevBlocks, err = getEnvInt("PREV_BLOCKS", 0); err != nil {
		return nil, err
	}
	if cfg.NextBlocks, err = getEnvInt("NEXT_BLOCKS", 0); err != nil {
		return nil, err
	}
	if cfg.NearestBlocks, err = getEnvInt("NEAREST_BLOCKS", 0); err != nil {
		return nil, err
	}
	if cfg.ContextTokens, err = getEnvInt("CONTEXT_TOKENS", 2048); err != nil {
		return nil, err
	}
	if cfg.MaxQueryTokens, err = getEnvInt("MAX_QUERY_TOKENS", 512); err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond, err = getEnvFloat("REQUESTS_PER_SECOND", 10); err != nil {
		return nil, err
	}
	if cfg.MinSimilarity, err = getEnvFloat("MIN_SIMILARITY", 0.5); err != nil {
		return nil, err
	}
	if cfg.BlockSimilarityFactor, err = getEnvFloat("BLOCK_SIMILARITY_FACTOR", 0.5); err != nil {
		return nil, err
	}

	timeoutSecs, err := getEnvInt("EMBEDDING_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.EmbeddingTimeout = time.Duration(timeoutSecs) * time.Second

	cooldownSecs, err := getEnvInt("COOLDOWN_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.Cooldown = time.Duration(cooldownSecs) * time.Second

	cfg.EmbedTitle = getEnvBool("EMBED_TITLE", true)
	cfg.EmbedHeading = getEnvBool("EMBED_HEADING", true)

	if cfg.Aggregation != "max" && cfg.Aggregation != "avg" {
		return nil, fmt.Errorf("AGGREGATION must be \"max\" or \"avg\", got %q", cfg.Aggregation)
	}
	switch cfg.RebuildDecision {
	case "rebuild", "keep", "defer":
	default:
		return nil, fmt.Errorf("REBUILD_DECISION must be \"rebuild\", \"keep\" or \"defer\", got %q", cfg.RebuildDecision)
	}

	// Create the data directory if it doesn't exist (for the DB file)
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

// getEnvBool gets a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
