package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"strings"

	"notemind/internal/blocks"
	"notemind/internal/config"
	"notemind/internal/http"
	"notemind/internal/llm"
	"notemind/internal/notes"
	"notemind/internal/ratelimit"
	"notemind/internal/search"
	"notemind/internal/storage"
	syncengine "notemind/internal/sync"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel, "format", cfg.LogFormat)

	// Open the per-model embedding store
	modelCfg := storage.ModelConfig{
		Name:             cfg.EmbeddingModelName,
		Version:          cfg.EmbeddingModelVersion,
		MaxBlockSize:     cfg.MaxBlockTokens,
		EmbeddingVersion: cfg.EmbeddingVersion,
	}
	store, check, err := storage.Open(cfg.DataDir, modelCfg)
	if err != nil {
		log.Fatalf("Failed to open embedding store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()
	slog.Info("Embedding store opened", "path", store.Path(), "check", check)

	// Resolve any model drift with the configured answer
	if check != storage.CheckOK {
		decision, err := storage.ParseDecision(cfg.RebuildDecision)
		if err != nil {
			log.Fatalf("Invalid rebuild decision: %v", err)
		}
		if err := store.Resolve(check, storage.StaticConfirmer{Decision: decision}); err != nil {
			log.Fatalf("Failed to resolve model drift: %v", err)
		}
		slog.Info("Model drift resolved", "check", check, "decision", cfg.RebuildDecision, "ready", store.Ready())
		if !store.Ready() {
			slog.Warn("Store decision deferred: retrieval stays up, sync writes are rejected")
		}
	}

	ctx := context.Background()

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize, cfg.EmbeddingTimeout)
	testVec, err := embedder.EmbedText(ctx, "test")
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testVec) != cfg.EmbeddingVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.EmbeddingVectorSize, len(testVec))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.EmbeddingVectorSize)

	// Seed the retrieval pool from the store
	snapshot, err := store.ScanAll(ctx)
	if err != nil {
		log.Fatalf("Failed to load stored blocks: %v", err)
	}
	pool := search.NewPool(snapshot)
	slog.Info("Retrieval pool seeded", "blocks", len(snapshot))

	source := notes.NewClient(cfg.NotesAPIURL, cfg.NotesAPIToken, cfg.NotesPageSize)
	limiter := ratelimit.New(cfg.RequestsPerSecond)
	tok := blocks.NewRuneEstimator()

	engine := syncengine.NewEngine(source, store, embedder, limiter, tok, pool, syncengine.Config{
		MaxBlockTokens: cfg.MaxBlockTokens,
		PageCycle:      cfg.PageCycle,
		Cooldown:       cfg.Cooldown,
		FanOut:         cfg.EmbedFanOut,
		Retries:        cfg.EmbedRetries,
		Options: blocks.Options{
			EmbedTitle:   cfg.EmbedTitle,
			EmbedHeading: cfg.EmbedHeading,
		},
	})

	searchEngine := search.NewEngine(embedder, pool, tok, cfg.MaxQueryTokens)
	slog.Info("Retrieval engine initialized")

	defaults := search.Settings{
		MinSimilarity:         cfg.MinSimilarity,
		MinBlockLength:        cfg.MinBlockLength,
		MaxHits:               cfg.MaxHits,
		Aggregation:           search.Aggregation(cfg.Aggregation),
		BlockSimilarityFactor: cfg.BlockSimilarityFactor,
		PrevBlocks:            cfg.PrevBlocks,
		NextBlocks:            cfg.NextBlocks,
		NearestBlocks:         cfg.NearestBlocks,
	}

	// Create router with dependencies
	deps := &http.Deps{
		SyncEngine:    engine,
		SearchEngine:  searchEngine,
		Store:         store,
		Notes:         source,
		Tokenizer:     tok,
		Defaults:      defaults,
		ContextTokens: cfg.ContextTokens,
	}
	router := http.NewRouter(deps)

	// Start an initial sync pass after the router is ready
	if store.Ready() {
		go func() {
			slog.Info("Starting initial sync pass")
			if _, err := engine.Run(context.Background()); err != nil {
				slog.Error("Initial sync pass failed", "error", err)
			} else {
				slog.Info("Initial sync pass completed")
			}
		}()
	}

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("Note source configuration", "base_url", cfg.NotesAPIURL, "page_size", cfg.NotesPageSize)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}

// parseLogLevel maps the configured level name to a slog level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
