package bootstrap

import (
	"context"
	"io"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/vendor-negotiation/internal/config"
	"github.com/wolfman30/vendor-negotiation/internal/deadletter"
	"github.com/wolfman30/vendor-negotiation/internal/negotiation"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

func quiet() *logging.Logger { return logging.NewWithWriter("error", io.Discard) }

func TestBuildRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quiet(), true)
	require.NotNil(t, client)
	_ = client.Close()

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, quiet(), true))
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: "127.0.0.1:1"}, quiet(), true))
}

func TestBuildPostgresPoolDisabled(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildModel(t *testing.T) {
	ctx := context.Background()
	awsCfg := aws.Config{Region: "us-east-1"}

	model, cleanup, err := BuildModel(ctx, &appconfig.Config{ModelProvider: "none"}, awsCfg, quiet())
	require.NoError(t, err)
	assert.Nil(t, model)
	cleanup()

	_, cleanup, err = BuildModel(ctx, &appconfig.Config{ModelProvider: "bedrock"}, awsCfg, quiet())
	assert.Error(t, err)
	cleanup()

	_, cleanup, err = BuildModel(ctx, &appconfig.Config{ModelProvider: "gemini"}, awsCfg, quiet())
	assert.Error(t, err)
	cleanup()

	_, cleanup, err = BuildModel(ctx, &appconfig.Config{ModelProvider: "openai"}, awsCfg, quiet())
	assert.Error(t, err)
	cleanup()

	model, cleanup, err = BuildModel(ctx, &appconfig.Config{ModelProvider: "bedrock", BedrockModelID: "anthropic.claude-3-haiku"}, awsCfg, quiet())
	require.NoError(t, err)
	assert.IsType(t, &negotiation.LLMModel{}, model)
	cleanup()
}

func TestBuildSnapshotWorker(t *testing.T) {
	store := deadletter.NewStore(deadletter.WithLogger(quiet()))

	worker, err := BuildSnapshotWorker(&appconfig.Config{DeadLetterBackend: "memory"}, store, DeadLetterBackends{}, quiet())
	require.NoError(t, err)
	assert.Nil(t, worker)

	_, err = BuildSnapshotWorker(&appconfig.Config{DeadLetterBackend: "redis"}, store, DeadLetterBackends{}, quiet())
	assert.Error(t, err)

	_, err = BuildSnapshotWorker(&appconfig.Config{DeadLetterBackend: "postgres"}, store, DeadLetterBackends{}, quiet())
	assert.Error(t, err)

	_, err = BuildSnapshotWorker(&appconfig.Config{DeadLetterBackend: "dynamo"}, store, DeadLetterBackends{}, quiet())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quiet(), false)
	t.Cleanup(func() { _ = client.Close() })

	worker, err = BuildSnapshotWorker(&appconfig.Config{DeadLetterBackend: "redis"}, store, DeadLetterBackends{Redis: client}, quiet())
	require.NoError(t, err)
	require.NotNil(t, worker)

	store.Add(negotiation.OpParseOffer, "$5", nil)
	require.NoError(t, worker.Flush(context.Background()))
	assert.True(t, mr.Exists("deadletter:snapshot"))

	awsCfg := aws.Config{Region: "us-east-1"}
	worker, err = BuildSnapshotWorker(&appconfig.Config{
		DeadLetterQueueURL:      "https://sqs.us-east-1.amazonaws.com/1/dlq",
		DeadLetterArchiveBucket: "bucket",
	}, store, DeadLetterBackends{AWS: &awsCfg}, quiet())
	require.NoError(t, err)
	assert.NotNil(t, worker)
}
