package deadletter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("dl-%d", n)
	}
}

func newTestStore(clock *fakeClock) *Store {
	return NewStore(
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithLogger(logging.NewWithWriter("error", io.Discard)),
	)
}

func TestStoreLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clock)

	id := store.Add("classifyIntent", "hello", errors.New("model timeout"))
	entries := store.List()
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{
		ID:          id,
		Operation:   "classifyIntent",
		Input:       "hello",
		Error:       "model timeout",
		Attempts:    1,
		Timestamp:   clock.Now(),
		LastAttempt: clock.Now(),
	}, entries[0])

	clock.Advance(time.Minute)
	err := store.Retry(context.Background(), id, func(context.Context, any) error {
		return errors.New("still failing")
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "still failing")

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "still failing", got.Error)
	assert.Equal(t, clock.Now(), got.LastAttempt)
	assert.NotEqual(t, got.Timestamp, got.LastAttempt)

	var replayed any
	require.NoError(t, store.Retry(context.Background(), id, func(_ context.Context, input any) error {
		replayed = input
		return nil
	}))
	assert.Equal(t, "hello", replayed)
	assert.Empty(t, store.List())
}

func TestStoreAddWithNilError(t *testing.T) {
	store := newTestStore(&fakeClock{})
	id := store.Add("parseOffer", nil, nil)
	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "unknown error", got.Error)
}

func TestStoreRetryUnknownID(t *testing.T) {
	store := newTestStore(&fakeClock{})
	err := store.Retry(context.Background(), "missing", func(context.Context, any) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRetryRejectsNilFunc(t *testing.T) {
	store := newTestStore(&fakeClock{})
	id := store.Add("op", 1, errors.New("x"))
	assert.Error(t, store.Retry(context.Background(), id, nil))
	assert.Equal(t, 1, store.Len())
}

func TestStoreRetryRecoversPanics(t *testing.T) {
	store := newTestStore(&fakeClock{})
	id := store.Add("op", 1, errors.New("x"))

	err := store.Retry(context.Background(), id, func(context.Context, any) error { panic("bad replay") })
	assert.ErrorContains(t, err, "bad replay")
	got, _ := store.Get(id)
	assert.Equal(t, 2, got.Attempts)
}

func TestStoreRetryInProgress(t *testing.T) {
	store := newTestStore(&fakeClock{})
	id := store.Add("op", 1, errors.New("x"))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.Retry(context.Background(), id, func(context.Context, any) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := store.Retry(context.Background(), id, func(context.Context, any) error { return nil })
	assert.ErrorIs(t, err, ErrRetryInProgress)
	assert.Len(t, store.List(), 1)

	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, store.Len())
}

func TestStoreClearDuringRetryDropsResult(t *testing.T) {
	store := newTestStore(&fakeClock{})
	id := store.Add("op", 1, errors.New("x"))

	err := store.Retry(context.Background(), id, func(context.Context, any) error {
		store.Clear()
		store.Restore([]Entry{{ID: id, Operation: "op", Attempts: 5}})
		return errors.New("again")
	})
	require.Error(t, err)

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, 5, got.Attempts)
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(&fakeClock{})
	store.Add("a", 1, nil)
	store.Add("b", 2, nil)

	assert.Equal(t, 2, store.Clear())
	assert.Empty(t, store.List())
	assert.Zero(t, store.Clear())
}

func TestStoreRestoreKeepsIDsAndSkipsDuplicates(t *testing.T) {
	store := newTestStore(&fakeClock{})
	existing := store.Add("a", 1, nil)

	n := store.Restore([]Entry{
		{ID: existing, Operation: "dup"},
		{ID: "snap-1", Operation: "parseOffer", Input: "$5", Attempts: 3},
		{ID: "snap-2", Operation: "classifyIntent"},
		{Operation: "no-id"},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, store.Len())

	got, ok := store.Get("snap-2")
	require.True(t, ok)
	assert.Equal(t, 1, got.Attempts)

	orig, _ := store.Get(existing)
	assert.Equal(t, "a", orig.Operation)
}

func TestStoreAddRegeneratesCollidingIDs(t *testing.T) {
	store := NewStore(WithIDGenerator(func() string { return "same" }), WithLogger(logging.NewWithWriter("error", io.Discard)))
	first := store.Add("a", nil, nil)
	second := store.Add("b", nil, nil)
	assert.Equal(t, "same", first)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, store.Len())
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(WithLogger(logging.NewWithWriter("error", io.Discard)))

	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := store.Add("op", i, errors.New("fail"))
				_ = store.List()
				if i%2 == 0 {
					_ = store.Retry(context.Background(), id, func(context.Context, any) error { return nil })
				} else {
					_ = store.Retry(context.Background(), id, func(context.Context, any) error { return errors.New("again") })
				}
			}
		}(w)
	}
	wg.Wait()

	entries := store.List()
	assert.Len(t, entries, workers*perWorker/2)
	for _, e := range entries {
		assert.Equal(t, 2, e.Attempts)
	}
}
