package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"notemind/internal/blocks"
	"notemind/internal/contextutil"
	"notemind/internal/search"
)

// ContextHandler turns a query into an assembled, token-budgeted context
// string built from the most similar blocks.
type ContextHandler struct {
	engine        *search.Engine
	getter        NoteGetter
	tok           blocks.Tokenizer
	defaults      search.Settings
	defaultBudget int
}

// NewContextHandler creates a new ContextHandler.
func NewContextHandler(engine *search.Engine, getter NoteGetter, tok blocks.Tokenizer, defaults search.Settings, defaultBudget int) *ContextHandler {
	return &ContextHandler{
		engine:        engine,
		getter:        getter,
		tok:           tok,
		defaults:      defaults,
		defaultBudget: defaultBudget,
	}
}

// ContextRequest is the body of POST /api/context.
type ContextRequest struct {
	Query  string `json:"query"`
	Budget int    `json:"budget"`
	settingsOverride
}

// ContextResponse is the assembled text plus exactly the blocks included.
type ContextResponse struct {
	Text   string                `json:"text"`
	Blocks []search.ContextBlock `json:"blocks"`
}

func (h *ContextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}
	budget := req.Budget
	if budget <= 0 {
		budget = h.defaultBudget
	}

	results, err := h.engine.SearchText(ctx, req.Query, req.apply(h.defaults))
	if err != nil {
		logger.ErrorContext(ctx, "context search failed", "error", err)
		writeError(w, r, http.StatusBadGateway, "search failed")
		return
	}

	ctxBlocks := h.resolveTexts(ctx, results)
	text, used := search.AssembleContext(ctxBlocks, h.tok, budget)
	if used == nil {
		used = []search.ContextBlock{}
	}

	writeJSON(w, r, http.StatusOK, ContextResponse{Text: text, Blocks: used})
}

// resolveTexts recovers block fragments from note bodies, one fetch per
// note. Blocks whose spans no longer fit the current body are dropped;
// the next sync pass replaces them.
func (h *ContextHandler) resolveTexts(ctx context.Context, results []search.NoteResult) []search.ContextBlock {
	logger := contextutil.LoggerFromContext(ctx)

	bodies := make(map[string]string)
	var out []search.ContextBlock
	for _, res := range results {
		for _, b := range res.Blocks {
			body, ok := bodies[b.NoteID]
			if !ok {
				note, err := h.getter.Get(ctx, b.NoteID)
				if err != nil {
					logger.WarnContext(ctx, "context note fetch failed", "note_id", b.NoteID, "error", err)
					bodies[b.NoteID] = ""
					continue
				}
				body = note.Body
				bodies[b.NoteID] = body
			}
			if body == "" || b.BodyIdx+b.Length > len(body) {
				continue
			}
			out = append(out, search.ContextBlock{
				Block: b,
				Text:  body[b.BodyIdx : b.BodyIdx+b.Length],
			})
		}
	}
	return out
}
