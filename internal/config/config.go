// Package config loads the unibase CLI configuration from a file, the
// environment and flags.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/hupe1980/unibase/codec"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/persistence"
)

// Config represents the complete CLI configuration.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Index     IndexConfig     `mapstructure:"index"`
	Lock      LockConfig      `mapstructure:"lock"`
	Resources ResourceConfig  `mapstructure:"resources"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// WorkspaceConfig selects where snapshots live.
type WorkspaceConfig struct {
	// Path is the local directory, or the key prefix in a bucket.
	Path  string `mapstructure:"path"`
	Store string `mapstructure:"store"`

	S3    S3Config    `mapstructure:"s3"`
	Minio MinioConfig `mapstructure:"minio"`
}

// S3Config configures an S3 workspace.
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// MinioConfig configures a MinIO workspace.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
}

// IndexConfig configures the engine.
type IndexConfig struct {
	Backend     string     `mapstructure:"backend"`
	Metric      string     `mapstructure:"metric"`
	Codec       string     `mapstructure:"codec"`
	Compression string     `mapstructure:"compression"`
	Retain      int        `mapstructure:"retain"`
	HNSW        HNSWConfig `mapstructure:"hnsw"`
}

// HNSWConfig configures the graph backend.
type HNSWConfig struct {
	M              int   `mapstructure:"m"`
	EFConstruction int   `mapstructure:"ef_construction"`
	EFSearch       int   `mapstructure:"ef_search"`
	Heuristic      bool  `mapstructure:"heuristic"`
	Seed           int64 `mapstructure:"seed"`
}

// LockConfig selects the workspace lock.
type LockConfig struct {
	Kind  string        `mapstructure:"kind"`
	Table string        `mapstructure:"table"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// ResourceConfig bounds memory, search concurrency and snapshot IO.
type ResourceConfig struct {
	MemoryLimitBytes      int64 `mapstructure:"memory_limit_bytes"`
	MaxConcurrentSearches int64 `mapstructure:"max_concurrent_searches"`
	IOLimitBytesPerSec    int64 `mapstructure:"io_limit_bytes_per_sec"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the HTTP endpoint of the serve command.
type MetricsConfig struct {
	// Listen is the address serving the API and /metrics. Empty falls back
	// to the --listen flag.
	Listen string `mapstructure:"listen"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Path:  DefaultWorkspace,
			Store: DefaultStore,
		},
		Index: IndexConfig{
			Backend:     DefaultBackend,
			Metric:      DefaultMetric,
			Codec:       DefaultCodec,
			Compression: DefaultCompression,
			Retain:      DefaultRetain,
			HNSW: HNSWConfig{
				M:              DefaultM,
				EFConstruction: DefaultEFConstruction,
				Heuristic:      true,
				Seed:           DefaultSeed,
			},
		},
		Lock: LockConfig{
			Kind: DefaultLockKind,
			TTL:  DefaultLockTTL,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(ConfigName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	d := DefaultConfig()

	viper.SetDefault("workspace.path", d.Workspace.Path)
	viper.SetDefault("workspace.store", d.Workspace.Store)
	viper.SetDefault("workspace.s3.bucket", "")
	viper.SetDefault("workspace.s3.region", "")
	viper.SetDefault("workspace.s3.endpoint", "")
	viper.SetDefault("workspace.s3.use_path_style", false)
	viper.SetDefault("workspace.minio.endpoint", "")
	viper.SetDefault("workspace.minio.bucket", "")
	viper.SetDefault("workspace.minio.access_key", "")
	viper.SetDefault("workspace.minio.secret_key", "")
	viper.SetDefault("workspace.minio.region", "")
	viper.SetDefault("workspace.minio.secure", false)

	viper.SetDefault("index.backend", d.Index.Backend)
	viper.SetDefault("index.metric", d.Index.Metric)
	viper.SetDefault("index.codec", d.Index.Codec)
	viper.SetDefault("index.compression", d.Index.Compression)
	viper.SetDefault("index.retain", d.Index.Retain)
	viper.SetDefault("index.hnsw.m", d.Index.HNSW.M)
	viper.SetDefault("index.hnsw.ef_construction", d.Index.HNSW.EFConstruction)
	viper.SetDefault("index.hnsw.ef_search", d.Index.HNSW.EFSearch)
	viper.SetDefault("index.hnsw.heuristic", d.Index.HNSW.Heuristic)
	viper.SetDefault("index.hnsw.seed", d.Index.HNSW.Seed)

	viper.SetDefault("lock.kind", d.Lock.Kind)
	viper.SetDefault("lock.table", "")
	viper.SetDefault("lock.ttl", d.Lock.TTL)

	viper.SetDefault("resources.memory_limit_bytes", 0)
	viper.SetDefault("resources.max_concurrent_searches", 0)
	viper.SetDefault("resources.io_limit_bytes_per_sec", 0)

	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)

	viper.SetDefault("metrics.listen", "")
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if !slices.Contains([]string{StoreLocal, StoreMemory, StoreS3, StoreMinio}, c.Workspace.Store) {
		return fmt.Errorf("config: unknown workspace store %q", c.Workspace.Store)
	}
	if c.Workspace.Store == StoreS3 && c.Workspace.S3.Bucket == "" {
		return fmt.Errorf("config: workspace.s3.bucket is required")
	}
	if c.Workspace.Store == StoreMinio && (c.Workspace.Minio.Endpoint == "" || c.Workspace.Minio.Bucket == "") {
		return fmt.Errorf("config: workspace.minio.endpoint and workspace.minio.bucket are required")
	}

	if !slices.Contains([]string{"flat", "hnsw"}, c.Index.Backend) {
		return fmt.Errorf("config: unknown backend %q", c.Index.Backend)
	}
	if _, err := distance.ParseMetric(c.Index.Metric); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := persistence.ParseCompression(c.Index.Compression); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, ok := codec.ByName(c.Index.Codec); !ok {
		return fmt.Errorf("config: unknown codec %q (want one of %v)", c.Index.Codec, codec.Names())
	}

	if !slices.Contains([]string{LockAuto, LockFile, LockDynamoDB, LockNone}, c.Lock.Kind) {
		return fmt.Errorf("config: unknown lock kind %q", c.Lock.Kind)
	}
	if c.Lock.Kind == LockDynamoDB && c.Lock.Table == "" {
		return fmt.Errorf("config: lock.table is required for dynamodb locks")
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !slices.Contains([]string{"text", "json", "logfmt"}, c.Log.Format) {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}
