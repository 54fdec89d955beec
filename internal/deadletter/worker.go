package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// Snapshotter persists and reloads the full dead-letter set.
type Snapshotter interface {
	Save(ctx context.Context, entries []Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// Archiver stores point-in-time copies of the dead-letter set.
type Archiver interface {
	Archive(ctx context.Context, entries []Entry) error
}

// Publisher forwards individual entries to an external queue.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

const shutdownFlushTimeout = 10 * time.Second

// SnapshotWorker periodically copies the in-memory store to durable backends.
// The store itself never performs I/O.
type SnapshotWorker struct {
	store       *Store
	snapshotter Snapshotter
	archiver    Archiver
	publisher   Publisher
	logger      *logging.Logger
	interval    time.Duration

	mu           sync.Mutex
	published    map[string]struct{}
	lastArchived string
	// restorePending blocks Save until the persisted snapshot has been read
	// back, so an empty store never replaces it.
	restorePending bool
}

func NewSnapshotWorker(store *Store, logger *logging.Logger) *SnapshotWorker {
	if store == nil {
		panic("deadletter: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SnapshotWorker{
		store:     store,
		logger:    logger,
		interval:  time.Minute,
		published: make(map[string]struct{}),
	}
}

func (w *SnapshotWorker) WithSnapshotter(s Snapshotter) *SnapshotWorker {
	w.snapshotter = s
	return w
}

func (w *SnapshotWorker) WithArchiver(a Archiver) *SnapshotWorker {
	w.archiver = a
	return w
}

func (w *SnapshotWorker) WithPublisher(p Publisher) *SnapshotWorker {
	w.publisher = p
	return w
}

func (w *SnapshotWorker) WithInterval(d time.Duration) *SnapshotWorker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Restore loads the last snapshot into the store. Restored entries are
// treated as already published. When the load fails, snapshot saves are
// held back and every Flush retries the load first.
func (w *SnapshotWorker) Restore(ctx context.Context) (int, error) {
	if w.snapshotter == nil {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restoreLocked(ctx)
}

func (w *SnapshotWorker) restoreLocked(ctx context.Context) (int, error) {
	entries, err := w.snapshotter.Load(ctx)
	if err != nil {
		w.restorePending = true
		return 0, fmt.Errorf("deadletter: restore: %w", err)
	}
	w.restorePending = false
	n := w.store.Restore(entries)
	for _, e := range entries {
		w.published[e.ID] = struct{}{}
	}
	return n, nil
}

// Run flushes on every tick until ctx is cancelled, then flushes once more.
func (w *SnapshotWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			if err := w.Flush(flushCtx); err != nil {
				w.logger.Error("final dead letter flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Error("dead letter flush failed", "error", err)
			}
		}
	}
}

// Flush writes the current store contents to every configured backend.
func (w *SnapshotWorker) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.snapshotter != nil && w.restorePending {
		if n, err := w.restoreLocked(ctx); err != nil {
			errs = append(errs, err)
		} else {
			w.logger.Info("dead letter snapshot restored after earlier failure", "restored", n)
		}
	}

	entries := w.store.List()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	if w.snapshotter != nil && !w.restorePending {
		if err := w.snapshotter.Save(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}

	if w.archiver != nil && len(entries) > 0 {
		fp := fingerprint(entries)
		if fp != w.lastArchived {
			if err := w.archiver.Archive(ctx, entries); err != nil {
				errs = append(errs, err)
			} else {
				w.lastArchived = fp
			}
		}
	}

	if w.publisher != nil {
		live := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			live[e.ID] = struct{}{}
			if _, done := w.published[e.ID]; done {
				continue
			}
			if err := w.publisher.Publish(ctx, e); err != nil {
				errs = append(errs, err)
				continue
			}
			w.published[e.ID] = struct{}{}
		}
		for id := range w.published {
			if _, ok := live[id]; !ok {
				delete(w.published, id)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("deadletter: flush: %w", errors.Join(errs...))
	}
	w.logger.Debug("dead letters flushed", "count", len(entries))
	return nil
}

func fingerprint(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s:%d;", e.ID, e.Attempts)
	}
	return b.String()
}
