package config

import (
	"time"
)

// Default configuration values
const (
	// Workspace defaults
	DefaultWorkspace = "./unibase-data"
	DefaultStore     = StoreLocal

	// Index defaults
	DefaultBackend     = "flat"
	DefaultMetric      = "cosine"
	DefaultCodec       = "go-json"
	DefaultCompression = "zstd"
	DefaultRetain      = 1

	// HNSW defaults
	DefaultM              = 16
	DefaultEFConstruction = 200
	DefaultSeed           = 1

	// Lock defaults
	DefaultLockKind = LockAuto
	DefaultLockTTL  = time.Minute

	// Log defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// ConfigName is the base name of the config file searched for.
	ConfigName = "unibase"

	// EnvPrefix prefixes environment overrides, e.g. UNIBASE_INDEX_BACKEND.
	EnvPrefix = "UNIBASE"
)

// Store kinds.
const (
	StoreLocal  = "local"
	StoreMemory = "memory"
	StoreS3     = "s3"
	StoreMinio  = "minio"
)

// Lock kinds.
const (
	LockAuto     = "auto"
	LockFile     = "file"
	LockDynamoDB = "dynamodb"
	LockNone     = "none"
)
