// Package ratelimit paces outbound calls to an external embedding service.
//
// A single Limiter is shared per backend: every caller enqueues, and a
// single-flight release loop dispatches the oldest waiter once the
// configured spacing since the last dispatch has elapsed. Dispatch order is
// strictly FIFO and no two releases from the same limiter happen closer
// together than 1/requestsPerSecond.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter queues callers and releases them at a fixed ceiling of requests
// per second. The zero limiter is not usable; construct with New.
type Limiter struct {
	interval time.Duration

	mu      sync.Mutex
	queue   []*waiter
	running bool
	last    time.Time // last dispatch time, owned by the release loop
}

type waiter struct {
	release chan struct{}

	mu        sync.Mutex
	cancelled bool
}

// New creates a limiter for the given ceiling. A non-positive rate disables
// pacing entirely.
func New(requestsPerSecond float64) *Limiter {
	var interval time.Duration
	if requestsPerSecond > 0 {
		interval = time.Duration(float64(time.Second) / requestsPerSecond)
	}
	return &Limiter{interval: interval}
}

// Wait blocks until the limiter releases the caller or ctx is done. Callers
// ahead in the queue are always released first.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval == 0 {
		return ctx.Err()
	}

	w := &waiter{release: make(chan struct{})}

	l.mu.Lock()
	l.queue = append(l.queue, w)
	if !l.running {
		l.running = true
		go l.releaseLoop()
	}
	l.mu.Unlock()

	select {
	case <-w.release:
		return nil
	case <-ctx.Done():
		// The release loop skips cancelled waiters without consuming a
		// dispatch slot.
		w.mu.Lock()
		w.cancelled = true
		w.mu.Unlock()
		return ctx.Err()
	}
}

// releaseLoop dispatches queued waiters one at a time. Only one loop runs
// per limiter; it exits when the queue drains.
func (l *Limiter) releaseLoop() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		w.mu.Lock()
		if w.cancelled {
			w.mu.Unlock()
			continue
		}
		w.mu.Unlock()

		if wait := l.interval - time.Since(l.last); wait > 0 {
			time.Sleep(wait)
		}

		w.mu.Lock()
		if w.cancelled {
			w.mu.Unlock()
			continue
		}
		l.last = time.Now()
		close(w.release)
		w.mu.Unlock()
	}
}
