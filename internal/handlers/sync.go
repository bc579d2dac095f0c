package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"notemind/internal/contextutil"
	syncengine "notemind/internal/sync"
)

// Rebuilder is the slice of the store the sync handler needs for forced
// full rebuilds.
type Rebuilder interface {
	Rebuild() error
}

// SyncHandler starts sync passes over the note corpus.
type SyncHandler struct {
	engine *syncengine.Engine
	store  Rebuilder
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine *syncengine.Engine, store Rebuilder) *SyncHandler {
	return &SyncHandler{engine: engine, store: store}
}

// SyncResponse acknowledges an accepted sync pass.
type SyncResponse struct {
	JobID string `json:"job_id"`
}

// ServeHTTP accepts POST /api/sync. The pass runs in the background; the
// response carries a job id that tags every log line of the pass.
// `?force=true` wipes the store before the pass, re-embedding everything;
// a pass already in flight is cancelled first, its remaining work
// discarded along with the store file.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	force := r.URL.Query().Get("force") == "true"

	if h.engine.Running() && !force {
		writeError(w, r, http.StatusConflict, "sync pass already in progress")
		return
	}

	if force {
		h.engine.Stop()
		if err := h.store.Rebuild(); err != nil {
			logger.ErrorContext(ctx, "forced rebuild failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "rebuild failed")
			return
		}
		logger.InfoContext(ctx, "store rebuilt before sync pass")
	}

	jobID := uuid.New().String()
	jobLogger := logger.With("job_id", jobID)

	// The pass outlives the request; it carries its own context.
	go func() {
		ctx := context.WithValue(context.Background(), contextutil.LoggerKey(), jobLogger)
		if _, err := h.engine.Run(ctx); err != nil {
			jobLogger.ErrorContext(ctx, "sync pass failed", "error", err)
		}
	}()

	logger.InfoContext(ctx, "sync pass accepted", "job_id", jobID)
	writeJSON(w, r, http.StatusAccepted, SyncResponse{JobID: jobID})
}
