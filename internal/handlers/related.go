package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"notemind/internal/contextutil"
	"notemind/internal/notes"
	"notemind/internal/search"
)

// NoteGetter fetches a single note body from the host application.
type NoteGetter interface {
	Get(ctx context.Context, id string) (notes.Note, error)
}

// RelatedHandler ranks notes related to an existing note, excluding the
// note itself from the results.
type RelatedHandler struct {
	engine   *search.Engine
	getter   NoteGetter
	defaults search.Settings
}

// NewRelatedHandler creates a new RelatedHandler.
func NewRelatedHandler(engine *search.Engine, getter NoteGetter, defaults search.Settings) *RelatedHandler {
	return &RelatedHandler{engine: engine, getter: getter, defaults: defaults}
}

// RelatedRequest is the body of POST /api/related. Either note_id or an
// inline title/body pair identifies the anchor note.
type RelatedRequest struct {
	NoteID string `json:"note_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	settingsOverride
}

func (h *RelatedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req RelatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	title, body := req.Title, req.Body
	if req.NoteID != "" {
		note, err := h.getter.Get(ctx, req.NoteID)
		if err != nil {
			logger.WarnContext(ctx, "anchor note fetch failed", "note_id", req.NoteID, "error", err)
			writeError(w, r, http.StatusNotFound, "note not found")
			return
		}
		title, body = note.Title, note.Body
	}

	text := body
	if title != "" {
		text = title + "\n" + body
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, r, http.StatusBadRequest, "note_id or title/body is required")
		return
	}

	results, err := h.engine.SearchNote(ctx, req.NoteID, text, req.apply(h.defaults))
	if err != nil {
		logger.ErrorContext(ctx, "related search failed", "note_id", req.NoteID, "error", err)
		writeError(w, r, http.StatusBadGateway, "search failed")
		return
	}
	if results == nil {
		results = []search.NoteResult{}
	}

	writeJSON(w, r, http.StatusOK, SearchResponse{Results: results})
}
