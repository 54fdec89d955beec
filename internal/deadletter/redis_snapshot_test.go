package deadletter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSnapshotterRoundTrip(t *testing.T) {
	mr, client := newMiniredisClient(t)
	snap := NewRedisSnapshotter(client, nil)
	ctx := context.Background()

	entries, err := snap.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, entries)

	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	want := []Entry{{
		ID:          "dl-1",
		Operation:   "parseOffer",
		Input:       "I can offer $95",
		Error:       "timeout",
		Attempts:    2,
		Timestamp:   ts,
		LastAttempt: ts.Add(time.Minute),
	}}
	require.NoError(t, snap.Save(ctx, want))
	assert.True(t, mr.Exists(defaultSnapshotKey))

	got, err := snap.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, snap.Save(ctx, nil))
	got, err = snap.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisSnapshotterCustomKeyAndCorruptValue(t *testing.T) {
	mr, client := newMiniredisClient(t)
	snap := NewRedisSnapshotter(client, nil).WithKey("staging:deadletters")

	require.NoError(t, mr.Set("staging:deadletters", "{not json"))
	_, err := snap.Load(context.Background())
	assert.Error(t, err)
}

func TestRedisSnapshotterReportsConnectionErrors(t *testing.T) {
	mr, client := newMiniredisClient(t)
	snap := NewRedisSnapshotter(client, nil)
	mr.Close()

	assert.Error(t, snap.Save(context.Background(), []Entry{{ID: "x"}}))
	_, err := snap.Load(context.Background())
	assert.Error(t, err)
}
