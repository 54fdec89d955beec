package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSnapshotKey = "deadletter:snapshot"

// RedisSnapshotter stores the whole dead-letter set as one JSON value.
type RedisSnapshotter struct {
	redis  *redis.Client
	key    string
	tracer trace.Tracer
}

func NewRedisSnapshotter(client *redis.Client, tracer trace.Tracer) *RedisSnapshotter {
	if client == nil {
		panic("deadletter: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("negotiation.internal.deadletter.redis")
	}
	return &RedisSnapshotter{redis: client, key: defaultSnapshotKey, tracer: tracer}
}

// WithKey overrides the Redis key, e.g. to separate environments.
func (s *RedisSnapshotter) WithKey(key string) *RedisSnapshotter {
	if key != "" {
		s.key = key
	}
	return s
}

func (s *RedisSnapshotter) Save(ctx context.Context, entries []Entry) error {
	ctx, span := s.tracer.Start(ctx, "deadletter.redis.save")
	defer span.End()

	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deadletter: failed to marshal snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deadletter: failed to persist snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotter) Load(ctx context.Context) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "deadletter.redis.load")
	defer span.End()

	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("deadletter: failed to load snapshot: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("deadletter: failed to decode snapshot: %w", err)
	}
	return entries, nil
}
