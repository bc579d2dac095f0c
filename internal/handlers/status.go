package handlers

import (
	"context"
	"errors"
	"net/http"

	"notemind/internal/contextutil"
	"notemind/internal/storage"
	syncengine "notemind/internal/sync"
)

// StatusStore is the read-only slice of the store the status endpoint
// reports on.
type StatusStore interface {
	CurrentModel() (storage.ModelRecord, error)
	Counts(ctx context.Context) (notes int64, blocks int64, err error)
}

// StatusHandler reports the store and sync state.
type StatusHandler struct {
	store  StatusStore
	engine *syncengine.Engine
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(store StatusStore, engine *syncengine.Engine) *StatusHandler {
	return &StatusHandler{store: store, engine: engine}
}

// StatusResponse describes the current index state. Model is null while
// the open-time drift decision is deferred.
type StatusResponse struct {
	Model        *storage.ModelRecord `json:"model"`
	ModelPending bool                 `json:"model_pending"`
	Notes        int64                `json:"notes"`
	Blocks       int64                `json:"blocks"`
	SyncRunning  bool                 `json:"sync_running"`
	LastPass     *syncengine.Stats    `json:"last_pass,omitempty"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	resp := StatusResponse{
		SyncRunning: h.engine.Running(),
		LastPass:    h.engine.LastStats(),
	}

	rec, err := h.store.CurrentModel()
	switch {
	case err == nil:
		resp.Model = &rec
	case errors.Is(err, storage.ErrNoModel):
		resp.ModelPending = true
	default:
		logger.ErrorContext(ctx, "model lookup failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "store unavailable")
		return
	}

	notes, blocks, err := h.store.Counts(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "store counts failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "store unavailable")
		return
	}
	resp.Notes = notes
	resp.Blocks = blocks

	writeJSON(w, r, http.StatusOK, resp)
}
