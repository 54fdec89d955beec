package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoReplayFunc indicates no replay function is registered for an entry's
// operation.
var ErrNoReplayFunc = errors.New("deadletter: no replay function registered")

// Replayer lets operators retry an entry by id alone by binding operation
// names to replay functions.
type Replayer struct {
	store *Store

	mu    sync.RWMutex
	funcs map[string]ReplayFunc
}

func NewReplayer(store *Store) *Replayer {
	if store == nil {
		panic("deadletter: store cannot be nil")
	}
	return &Replayer{store: store, funcs: make(map[string]ReplayFunc)}
}

// Register binds operation to fn, replacing any previous binding.
func (r *Replayer) Register(operation string, fn ReplayFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.funcs, operation)
		return
	}
	r.funcs[operation] = fn
}

func (r *Replayer) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.funcs))
	for op := range r.funcs {
		ops = append(ops, op)
	}
	return ops
}

// Retry replays entry id with the function registered for its operation.
func (r *Replayer) Retry(ctx context.Context, id string) error {
	entry, ok := r.store.Get(id)
	if !ok {
		return ErrNotFound
	}
	r.mu.RLock()
	fn, ok := r.funcs[entry.Operation]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReplayFunc, entry.Operation)
	}
	return r.store.Retry(ctx, id, fn)
}
