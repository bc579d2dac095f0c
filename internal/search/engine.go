package search

import (
	"context"
	"fmt"
	"strings"

	"notemind/internal/blocks"
	"notemind/internal/contextutil"
	"notemind/internal/llm"
)

// Engine turns queries into ranked, context-expanded note results. It
// reads the pool snapshot and never mutates the store.
type Engine struct {
	embedder       llm.Embedder
	pool           *Pool
	tok            blocks.Tokenizer
	maxQueryTokens int
}

// NewEngine creates a retrieval engine. maxQueryTokens bounds the query
// text sent to the embedder; longer queries are trimmed to their leading
// budgeted slice.
func NewEngine(embedder llm.Embedder, pool *Pool, tok blocks.Tokenizer, maxQueryTokens int) *Engine {
	return &Engine{
		embedder:       embedder,
		pool:           pool,
		tok:            tok,
		maxQueryTokens: maxQueryTokens,
	}
}

// Pool exposes the snapshot the engine reads, so the sync side can refresh
// it after a pass.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// SearchText ranks the pool against a free-text query.
func (e *Engine) SearchText(ctx context.Context, query string, s Settings) ([]NoteResult, error) {
	return e.search(ctx, query, "", s)
}

// SearchNote ranks the pool against a note's content (or a selection from
// it), excluding the note itself from its own results.
func (e *Engine) SearchNote(ctx context.Context, noteID, text string, s Settings) ([]NoteResult, error) {
	return e.search(ctx, text, noteID, s)
}

func (e *Engine) search(ctx context.Context, text, excludeNoteID string, s Settings) ([]NoteResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	text = strings.TrimSpace(e.trimQuery(text))
	if text == "" {
		return nil, fmt.Errorf("empty query")
	}

	vec, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	pool := e.pool.Load()
	results := FindNearest(pool, vec, excludeNoteID, s)
	results = Expand(results, pool, s)

	logger.DebugContext(ctx, "search completed",
		"pool_size", len(pool),
		"hits", len(results),
		"exclude", excludeNoteID,
	)
	return results, nil
}

// trimQuery keeps the leading slice of the query that fits the embedder's
// token budget.
func (e *Engine) trimQuery(text string) string {
	if e.maxQueryTokens <= 0 || e.tok.Count(text) <= e.maxQueryTokens {
		return text
	}
	groups := blocks.SplitByTokens([]string{text}, e.tok, e.maxQueryTokens, " ", blocks.PreferFirst)
	if len(groups) == 0 {
		return text
	}
	return strings.Join(groups[0], " ")
}
