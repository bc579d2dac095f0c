package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notemind/internal/blocks"
	"notemind/internal/handlers"
	"notemind/internal/search"
	"notemind/internal/storage"
	syncengine "notemind/internal/sync"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	SyncEngine    *syncengine.Engine
	SearchEngine  *search.Engine
	Store         *storage.Store
	Notes         handlers.NoteGetter
	Tokenizer     blocks.Tokenizer
	Defaults      search.Settings
	ContextTokens int
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	syncHandler := handlers.NewSyncHandler(deps.SyncEngine, deps.Store)
	searchHandler := handlers.NewSearchHandler(deps.SearchEngine, deps.Defaults)
	relatedHandler := handlers.NewRelatedHandler(deps.SearchEngine, deps.Notes, deps.Defaults)
	contextHandler := handlers.NewContextHandler(deps.SearchEngine, deps.Notes, deps.Tokenizer, deps.Defaults, deps.ContextTokens)
	statusHandler := handlers.NewStatusHandler(deps.Store, deps.SyncEngine)
	healthHandler := handlers.NewHealthHandler(deps.Store)

	// Register API routes
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/sync", syncHandler)
		r.Method(http.MethodPost, "/search", searchHandler)
		r.Method(http.MethodPost, "/related", relatedHandler)
		r.Method(http.MethodPost, "/context", contextHandler)
		r.Method(http.MethodGet, "/status", statusHandler)
	})

	r.Method(http.MethodGet, "/health", healthHandler)

	return r
}
