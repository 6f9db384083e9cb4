package cli

import (
	"context"
	"fmt"
	"os"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/charmbracelet/log"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/blobstore/minio"
	"github.com/hupe1980/unibase/blobstore/s3"
	"github.com/hupe1980/unibase/codec"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index/hnsw"
	"github.com/hupe1980/unibase/internal/config"
	"github.com/hupe1980/unibase/lock"
	"github.com/hupe1980/unibase/lock/dynamo"
	"github.com/hupe1980/unibase/persistence"
	"github.com/hupe1980/unibase/resource"
)

// newLogger creates the charm logger used both for CLI messages and as
// the slog handler of the engine.
func newLogger(cfg *config.Config) *log.Logger {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	switch cfg.Log.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	l := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: cfg.Log.Format != "text",
	})
	log.SetDefault(l)
	return l
}

// openWorkspace translates cfg into engine options and opens the workspace.
func openWorkspace(ctx context.Context, cfg *config.Config, logger *log.Logger, mc unibase.MetricsCollector) (*unibase.Unibase, error) {
	opts, err := engineOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, unibase.WithLogger(unibase.NewLogger(logger)))
	if mc != nil {
		opts = append(opts, unibase.WithMetricsCollector(mc))
	}

	log.Debug("Opening workspace",
		"path", cfg.Workspace.Path,
		"store", cfg.Workspace.Store,
		"backend", cfg.Index.Backend,
	)
	return unibase.Open(ctx, cfg.Workspace.Path, opts...)
}

func engineOptions(ctx context.Context, cfg *config.Config) ([]unibase.Option, error) {
	backend := unibase.BackendFlat
	if cfg.Index.Backend == "hnsw" {
		backend = unibase.BackendHNSW
	}
	metric, err := distance.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	compression, err := persistence.ParseCompression(cfg.Index.Compression)
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(cfg.Index.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", cfg.Index.Codec)
	}

	h := cfg.Index.HNSW
	opts := []unibase.Option{
		unibase.WithBackend(backend),
		unibase.WithMetric(metric),
		unibase.WithCodec(c),
		unibase.WithCompression(compression),
		unibase.WithSnapshotRetention(cfg.Index.Retain),
		unibase.WithHNSW(func(o *hnsw.Options) {
			o.M = h.M
			o.EFConstruction = h.EFConstruction
			o.EFSearch = h.EFSearch
			o.Heuristic = h.Heuristic
			o.Seed = h.Seed
		}),
		unibase.WithResourceConfig(resource.Config{
			MemoryLimitBytes:      cfg.Resources.MemoryLimitBytes,
			MaxConcurrentSearches: cfg.Resources.MaxConcurrentSearches,
			IOLimitBytesPerSec:    cfg.Resources.IOLimitBytesPerSec,
		}),
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, unibase.WithBlobStore(store))
	}

	switch cfg.Lock.Kind {
	case config.LockNone:
		opts = append(opts, unibase.WithoutLock())
	case config.LockFile:
		opts = append(opts, unibase.WithLocker(lock.NewFileLock(cfg.Workspace.Path)))
	case config.LockDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		lease := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.Lock.Table, lockKey(cfg), func(o *dynamo.Options) {
			o.TTL = cfg.Lock.TTL
		})
		log.Debug("Using dynamodb lease", "table", cfg.Lock.Table, "key", lockKey(cfg), "owner", lease.Owner())
		opts = append(opts, unibase.WithLocker(lease))
	}

	return opts, nil
}

// openStore returns the workspace blob store, or nil for the default local
// directory.
func openStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	ws := cfg.Workspace
	switch ws.Store {
	case config.StoreMemory:
		return blobstore.NewMemoryStore(), nil
	case config.StoreS3:
		return s3.New(ctx, ws.S3.Bucket, func(o *s3.Options) {
			o.Prefix = ws.Path
			o.Region = ws.S3.Region
			o.Endpoint = ws.S3.Endpoint
			o.UsePathStyle = ws.S3.UsePathStyle
		})
	case config.StoreMinio:
		store, err := minio.Dial(ws.Minio.Endpoint, ws.Minio.Bucket, func(o *minio.Options) {
			o.AccessKey = ws.Minio.AccessKey
			o.SecretKey = ws.Minio.SecretKey
			o.Region = ws.Minio.Region
			o.Secure = ws.Minio.Secure
			o.Prefix = ws.Path
		})
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// lockKey identifies a workspace across processes.
func lockKey(cfg *config.Config) string {
	ws := cfg.Workspace
	switch ws.Store {
	case config.StoreS3:
		return "s3://" + path.Join(ws.S3.Bucket, ws.Path)
	case config.StoreMinio:
		return "minio://" + path.Join(ws.Minio.Endpoint, ws.Minio.Bucket, ws.Path)
	default:
		return ws.Store + "://" + ws.Path
	}
}
