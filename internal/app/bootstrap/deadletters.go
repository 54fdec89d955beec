package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/vendor-negotiation/internal/config"
	"github.com/wolfman30/vendor-negotiation/internal/deadletter"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// DeadLetterBackends holds the optional clients a snapshot worker can use.
type DeadLetterBackends struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	AWS      *aws.Config
}

// BuildSnapshotWorker wires the dead-letter snapshot, archive and queue
// exporters selected by configuration. It returns nil when nothing is
// configured.
func BuildSnapshotWorker(cfg *appconfig.Config, store *deadletter.Store, backends DeadLetterBackends, logger *logging.Logger) (*deadletter.SnapshotWorker, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("bootstrap: config and store are required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var snapshotter deadletter.Snapshotter
	switch cfg.DeadLetterBackend {
	case "", "memory":
	case "redis":
		if backends.Redis == nil {
			return nil, fmt.Errorf("bootstrap: DEAD_LETTER_BACKEND=redis but redis is unavailable")
		}
		snapshotter = deadletter.NewRedisSnapshotter(backends.Redis, nil)
	case "postgres":
		if backends.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: DEAD_LETTER_BACKEND=postgres requires DATABASE_URL")
		}
		snapshotter = deadletter.NewPostgresSnapshotter(backends.Postgres)
	default:
		return nil, fmt.Errorf("bootstrap: unknown DEAD_LETTER_BACKEND %q", cfg.DeadLetterBackend)
	}

	var archiver deadletter.Archiver
	if cfg.DeadLetterArchiveBucket != "" && backends.AWS != nil {
		client := s3.NewFromConfig(*backends.AWS, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		archiver = deadletter.NewS3Archiver(client, cfg.DeadLetterArchiveBucket)
	}

	var publisher deadletter.Publisher
	if cfg.DeadLetterQueueURL != "" && backends.AWS != nil {
		publisher = deadletter.NewSQSPublisher(sqs.NewFromConfig(*backends.AWS), cfg.DeadLetterQueueURL)
	}

	if snapshotter == nil && archiver == nil && publisher == nil {
		return nil, nil
	}
	logger.Info("dead letter export enabled",
		"backend", cfg.DeadLetterBackend,
		"archive", archiver != nil,
		"queue", publisher != nil,
		"interval", cfg.DeadLetterSnapshotInterval,
	)
	return deadletter.NewSnapshotWorker(store, logger.Component("deadletter-worker")).
		WithSnapshotter(snapshotter).
		WithArchiver(archiver).
		WithPublisher(publisher).
		WithInterval(cfg.DeadLetterSnapshotInterval), nil
}
