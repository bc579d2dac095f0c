package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"notemind/internal/contextutil"
	"notemind/internal/search"
)

// SearchHandler ranks notes against a free-text query.
type SearchHandler struct {
	engine   *search.Engine
	defaults search.Settings
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine *search.Engine, defaults search.Settings) *SearchHandler {
	return &SearchHandler{engine: engine, defaults: defaults}
}

// SearchRequest is the body of POST /api/search. Settings fields override
// the configured retrieval defaults for this call only.
type SearchRequest struct {
	Query string `json:"query"`
	settingsOverride
}

// SearchResponse is a ranked list of notes.
type SearchResponse struct {
	Results []search.NoteResult `json:"results"`
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.engine.SearchText(ctx, req.Query, req.apply(h.defaults))
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, r, http.StatusBadGateway, "search failed")
		return
	}
	if results == nil {
		results = []search.NoteResult{}
	}

	writeJSON(w, r, http.StatusOK, SearchResponse{Results: results})
}
