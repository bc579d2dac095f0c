// Package sync keeps the embedding store consistent with the live note
// corpus, recomputing only what changed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"notemind/internal/blocks"
	"notemind/internal/contextutil"
	"notemind/internal/llm"
	"notemind/internal/notes"
	"notemind/internal/ratelimit"
	"notemind/internal/search"
	"notemind/internal/storage"
)

// ErrPassInProgress is returned when Run is called while another pass is
// still active. Store writes are sequenced through one pass at a time.
var ErrPassInProgress = errors.New("sync pass already in progress")

// BlockStore is the slice of the embedding store the engine writes to.
type BlockStore interface {
	GetNoteStatus(ctx context.Context, noteID, hash string) (storage.NoteStatus, error)
	ReplaceNoteBlocks(ctx context.Context, noteID, hash string, blocks []storage.Block) error
	DeleteNote(ctx context.Context, noteID string) error
	ScanAll(ctx context.Context) ([]storage.Block, error)
}

// Config tunes a sync pass.
type Config struct {
	MaxBlockTokens int            // token budget per block
	PageCycle      int            // pages between cooldowns, 0 disables
	Cooldown       time.Duration  // pause between page cycles
	FanOut         int            // in-flight embedding calls per note
	Retries        int            // per-note retries after a timeout
	Options        blocks.Options // embedding context policy
}

// Stats summarizes one completed pass.
type Stats struct {
	PassID    string        `json:"pass_id"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Deleted   int           `json:"deleted"`
	Duration  time.Duration `json:"duration"`
}

// Engine runs sync passes: enumerate, hash-gate, re-embed, reconcile.
type Engine struct {
	source   notes.Source
	store    BlockStore
	embedder llm.Embedder
	limiter  *ratelimit.Limiter
	splitter *blocks.Splitter
	tok      blocks.Tokenizer
	pool     *search.Pool
	cfg      Config

	running atomic.Bool
	lastMu  sync.Mutex
	last    *Stats

	passMu     sync.Mutex
	cancelPass context.CancelFunc
	passDone   chan struct{}

	// OnProgress, when set, receives (processed, total) after every note.
	OnProgress func(processed, total int)
}

// NewEngine creates a sync engine. The pool is refreshed from the store
// after every successful pass so retrieval sees the new snapshot.
func NewEngine(
	source notes.Source,
	store BlockStore,
	embedder llm.Embedder,
	limiter *ratelimit.Limiter,
	tok blocks.Tokenizer,
	pool *search.Pool,
	cfg Config,
) *Engine {
	if cfg.FanOut <= 0 {
		cfg.FanOut = 5
	}
	return &Engine{
		source:   source,
		store:    store,
		embedder: embedder,
		limiter:  limiter,
		splitter: blocks.NewSplitter(),
		tok:      tok,
		pool:     pool,
		cfg:      cfg,
	}
}

// LastStats returns the stats of the most recently completed pass, or nil.
func (e *Engine) LastStats() *Stats {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	return e.last
}

// Running reports whether a pass is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stop cancels the active pass and blocks until it has unwound, losing at
// most the in-flight note's update. A forced rebuild calls this so the
// old index's remaining work is discarded before the store file is
// replaced. No-op when idle.
func (e *Engine) Stop() {
	e.passMu.Lock()
	cancel, done := e.cancelPass, e.passDone
	e.passMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run executes one full pass. A failure on one note aborts only that
// note's update; the pass continues. Cancelling ctx, or calling Stop,
// stops the pass between notes, losing at most the in-flight note's
// update.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	e.passMu.Lock()
	if !e.running.CompareAndSwap(false, true) {
		e.passMu.Unlock()
		return Stats{}, ErrPassInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancelPass = cancel
	e.passDone = done
	e.passMu.Unlock()
	defer func() {
		e.passMu.Lock()
		e.cancelPass = nil
		e.passDone = nil
		e.passMu.Unlock()
		cancel()
		e.running.Store(false)
		close(done)
	}()

	logger := contextutil.LoggerFromContext(ctx)
	stats := Stats{PassID: uuid.New().String()}
	start := time.Now()
	logger = logger.With("pass_id", stats.PassID)

	// First enumeration: fields-only count for progress totals.
	total, err := e.source.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count notes: %w", err)
	}
	stats.Total = total
	logger.InfoContext(ctx, "sync pass started", "total_notes", total)

	// Second enumeration: bodies, page by page.
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		p, err := e.source.Page(ctx, page)
		if err != nil {
			return stats, fmt.Errorf("failed to list page %d: %w", page, err)
		}

		for i := range p.Items {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			e.syncNote(ctx, logger, &p.Items[i], &stats)
			stats.Processed++
			if e.OnProgress != nil {
				e.OnProgress(stats.Processed, stats.Total)
			}
		}

		if !p.HasMore {
			break
		}
		if e.cfg.PageCycle > 0 && page%e.cfg.PageCycle == 0 && e.cfg.Cooldown > 0 {
			logger.DebugContext(ctx, "cooldown between page cycles", "page", page, "cooldown", e.cfg.Cooldown)
			select {
			case <-time.After(e.cfg.Cooldown):
			case <-ctx.Done():
				return stats, ctx.Err()
			}
		}
	}

	deleted, err := e.reconcileDeletions(ctx, logger)
	if err != nil {
		return stats, err
	}
	stats.Deleted = deleted

	if err := e.refreshPool(ctx); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	logger.InfoContext(ctx, "sync pass completed",
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"deleted", stats.Deleted,
		"duration", stats.Duration,
	)

	e.lastMu.Lock()
	e.last = &stats
	e.lastMu.Unlock()
	return stats, nil
}

// syncNote brings a single note current. Failures are isolated here: they
// are counted and logged, never propagated, so one bad note cannot halt
// the corpus scan.
func (e *Engine) syncNote(ctx context.Context, logger *slog.Logger, n *notes.Note, stats *Stats) {
	if n.Deleted || n.Conflict || n.MarkupLanguage == 2 {
		stats.Skipped++
		return
	}

	hash := ContentHash(n, e.cfg.Options)

	status, err := e.store.GetNoteStatus(ctx, n.ID, hash)
	if err != nil {
		stats.Failed++
		logger.WarnContext(ctx, "note status check failed", "note_id", n.ID, "error", err)
		return
	}
	if status.UpToDate {
		stats.Skipped++
		return
	}

	split := e.splitter.Split(*n, hash, e.tok, e.cfg.MaxBlockTokens, e.cfg.Options)
	if len(split) == 0 {
		stats.Skipped++
		return
	}

	stored, err := e.embedWithRetry(ctx, split)
	if err != nil {
		stats.Failed++
		logger.WarnContext(ctx, "note embedding failed, keeping previous blocks",
			"note_id", n.ID, "blocks", len(split), "error", err)
		return
	}

	if err := e.store.ReplaceNoteBlocks(ctx, n.ID, hash, stored); err != nil {
		stats.Failed++
		logger.WarnContext(ctx, "note replace failed", "note_id", n.ID, "error", err)
		return
	}

	stats.Updated++
	logger.DebugContext(ctx, "note re-embedded", "note_id", n.ID, "blocks", len(stored))
}

// embedWithRetry embeds one note's blocks, retrying the whole note on
// timeouts. Backend rejections are not retried; the note is skipped until
// the next pass.
func (e *Engine) embedWithRetry(ctx context.Context, split []blocks.Block) ([]storage.Block, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		stored, err := e.embedBlocks(ctx, split)
		if err == nil {
			return stored, nil
		}
		lastErr = err
		if !errors.Is(err, llm.ErrTimeout) {
			break
		}
	}
	return nil, lastErr
}

// embedBlocks computes vectors for a note's blocks with a sliding window
// of in-flight requests. Each request first takes a rate limiter slot.
// Results are applied in block order regardless of completion order.
func (e *Engine) embedBlocks(ctx context.Context, split []blocks.Block) ([]storage.Block, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]storage.Block, len(split))
	sem := make(chan struct{}, e.cfg.FanOut)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		errMu.Unlock()
	}

	for i := range split {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			errMu.Lock()
			defer errMu.Unlock()
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.limiter.Wait(ctx); err != nil {
				fail(err)
				return
			}
			vec, err := e.embedder.EmbedText(ctx, split[i].Text)
			if err != nil {
				fail(err)
				return
			}
			out[i] = split[i].Block
			out[i].Embedding = vec
		}(i)
	}
	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// reconcileDeletions removes stored notes no longer present in the live
// corpus. Deletions are deduplicated per note id within the pass.
func (e *Engine) reconcileDeletions(ctx context.Context, logger *slog.Logger) (int, error) {
	live, err := e.source.LiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list live notes: %w", err)
	}

	stored, err := e.store.ScanAll(ctx)
	if err != nil {
		return 0, err
	}

	deleted := make(map[string]struct{})
	for _, b := range stored {
		if _, ok := live[b.NoteID]; ok {
			continue
		}
		if _, done := deleted[b.NoteID]; done {
			continue
		}
		if err := e.store.DeleteNote(ctx, b.NoteID); err != nil {
			return len(deleted), err
		}
		deleted[b.NoteID] = struct{}{}
	}

	if len(deleted) > 0 {
		logger.InfoContext(ctx, "reconciled deleted notes", "count", len(deleted))
	}
	return len(deleted), nil
}

// refreshPool installs a fresh store snapshot for the retrieval engine.
func (e *Engine) refreshPool(ctx context.Context) error {
	snapshot, err := e.store.ScanAll(ctx)
	if err != nil {
		return err
	}
	e.pool.Swap(snapshot)
	return nil
}
