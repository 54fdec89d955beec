// Package deadletter keeps operations that exhausted their automatic retries
// so operators can inspect and replay them.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/vendor-negotiation/internal/observability/metrics"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

var (
	// ErrNotFound indicates the requested entry id does not exist.
	ErrNotFound = errors.New("deadletter: entry not found")
	// ErrRetryInProgress indicates another retry of the same entry is running.
	ErrRetryInProgress = errors.New("deadletter: retry already in progress")
)

// Entry records one failed operation.
type Entry struct {
	ID          string    `json:"id"`
	Operation   string    `json:"operation"`
	Input       any       `json:"input"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	Timestamp   time.Time `json:"timestamp"`
	LastAttempt time.Time `json:"lastAttempt"`
}

// ReplayFunc re-executes an operation with its stored input.
type ReplayFunc func(ctx context.Context, input any) error

type record struct {
	entry    Entry
	retrying bool
}

// Store is an in-memory, concurrency-safe collection of entries. Construct one
// per process and pass it to every caller.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*record
	now     func() time.Time
	newID   func() string
	logger  *logging.Logger
	metrics *metrics.ResilienceMetrics
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ResilienceMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*record),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records a failed operation and returns its id. It always succeeds.
func (s *Store) Add(operation string, input any, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	now := s.now()

	s.mu.Lock()
	id := s.newID()
	for _, taken := s.entries[id]; taken; _, taken = s.entries[id] {
		id = uuid.NewString()
	}
	s.entries[id] = &record{entry: Entry{
		ID:          id,
		Operation:   operation,
		Input:       input,
		Error:       msg,
		Attempts:    1,
		Timestamp:   now,
		LastAttempt: now,
	}}
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.ObserveDeadLetterAdded(operation)
	s.metrics.SetDeadLetterSize(size)
	s.logger.Warn("dead letter recorded",
		"dead_letter_id", id,
		"operation", operation,
		"error", msg,
	)
	return id
}

// List returns a copy of every entry in no particular order.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec.entry)
	}
	return out
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return rec.entry, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Retry replays an entry once with fn. On success the entry is removed and
// nil returned; on failure its attempt count and last error are updated and
// the failure returned. fn runs without holding the store lock.
func (s *Store) Retry(ctx context.Context, id string, fn ReplayFunc) error {
	if fn == nil {
		return fmt.Errorf("deadletter: nil replay function for %s", id)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	rec, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if rec.retrying {
		s.mu.Unlock()
		return ErrRetryInProgress
	}
	rec.retrying = true
	input := rec.entry.Input
	operation := rec.entry.Operation
	s.mu.Unlock()

	replayErr := runReplay(ctx, fn, input)

	s.mu.Lock()
	current, stillPresent := s.entries[id]
	if stillPresent && current == rec {
		if replayErr == nil {
			delete(s.entries, id)
		} else {
			rec.entry.Attempts++
			rec.entry.LastAttempt = s.now()
			rec.entry.Error = replayErr.Error()
		}
		rec.retrying = false
	}
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.ObserveDeadLetterRetry(operation, replayErr == nil)
	s.metrics.SetDeadLetterSize(size)
	if replayErr != nil {
		s.logger.Warn("dead letter retry failed",
			"dead_letter_id", id,
			"operation", operation,
			"error", replayErr.Error(),
		)
		return fmt.Errorf("deadletter: retry %s: %w", id, replayErr)
	}
	s.logger.Info("dead letter retry succeeded", "dead_letter_id", id, "operation", operation)
	return nil
}

func runReplay(ctx context.Context, fn ReplayFunc, input any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deadletter: replay panicked: %v", r)
		}
	}()
	return fn(ctx, input)
}

// Clear removes every entry and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*record)
	s.mu.Unlock()

	s.metrics.SetDeadLetterSize(0)
	s.logger.Info("dead letters cleared", "removed", n)
	return n
}

// Restore re-inserts previously snapshotted entries, keeping their ids.
// Entries whose id is already present are skipped.
func (s *Store) Restore(entries []Entry) int {
	s.mu.Lock()
	restored := 0
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, exists := s.entries[e.ID]; exists {
			continue
		}
		if e.Attempts < 1 {
			e.Attempts = 1
		}
		s.entries[e.ID] = &record{entry: e}
		restored++
	}
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.SetDeadLetterSize(size)
	if restored > 0 {
		s.logger.Info("dead letters restored", "restored", restored)
	}
	return restored
}
