// Package config loads rankctl configuration.
//
// Order: defaults -> config file -> ApplyEnvOverrides -> Validate. YAML files
// are decoded directly; .json and .jsonc files are standardized with hujson
// first, which lets them carry comments and trailing commas.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/vaulted/rankkey"
	"github.com/vaulted/rankkey/ordering"
)

var (
	// ErrInvalidConfig is returned when a loaded configuration fails validation.
	ErrInvalidConfig = errors.New("invalid config")

	errConfigFileRead = errors.New("cannot read config file")
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendFile   = "file"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RANKKEY_"

// Config holds the application configuration.
type Config struct {
	Rank   RankConfig   `yaml:"rank"`
	Store  StoreConfig  `yaml:"store"`
	Writer WriterConfig `yaml:"writer"`
	Log    LogConfig    `yaml:"log"`
	Events EventsConfig `yaml:"events"`
}

// RankConfig configures key generation.
type RankConfig struct {
	StepSize     uint64 `yaml:"step_size"`
	MaxKeyLength int    `yaml:"max_key_length"` // 0 disables automatic rebalancing
	EdgeStrategy string `yaml:"edge_strategy"`  // bisect, step
	JitterRange  int    `yaml:"jitter_range"`
	Unranked     string `yaml:"unranked"` // sentinel for items without an entry
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend         string        `yaml:"backend"` // memory, sqlite, mongo, file
	SQLitePath      string        `yaml:"sqlite_path"`
	FileDir         string        `yaml:"file_dir"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	MongoCollection string        `yaml:"mongo_collection"`
	Timeout         time.Duration `yaml:"timeout"` // bounds connecting and each CLI command
}

// WriterConfig configures asynchronous persistence.
type WriterConfig struct {
	Async       bool          `yaml:"async"`
	Concurrency int           `yaml:"concurrency"`
	MaxRetries  int           `yaml:"max_retries"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// EventsConfig configures rank change notifications over NATS.
type EventsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the default configuration.
func Default() *Config {
	w := ordering.DefaultWriterConfig()
	return &Config{
		Rank: RankConfig{
			StepSize:     rankkey.DefaultStep,
			MaxKeyLength: rankkey.DefaultConfig().MaxKeyLength,
			EdgeStrategy: rankkey.EdgeBisect.String(),
			Unranked:     rankkey.DefaultUnranked.String(),
		},
		Store: StoreConfig{
			Backend:         BackendMemory,
			SQLitePath:      filepath.Join(".rankkey", "ranks.db"),
			FileDir:         filepath.Join(".rankkey", "entries"),
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "rankkey",
			MongoCollection: "rank_entries",
			Timeout:         10 * time.Second,
		},
		Writer: WriterConfig{
			Concurrency: w.Concurrency,
			MaxRetries:  w.MaxRetries,
			Backoff:     w.Backoff,
			MaxBackoff:  w.MaxBackoff,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Events: EventsConfig{
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "rankkey.changes",
		},
	}
}

// Load returns the defaults overlaid with the file at path (when path is not
// empty) and the environment, validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}
	if err := c.parse(data, filepath.Ext(path)); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) parse(data []byte, ext string) error {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("invalid JSONC: %w", err)
		}
		// standard JSON is valid YAML, so one decoder serves both
		data = standardized
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ApplyEnvOverrides overlays RANKKEY_* variables looked up with getenv.
func (c *Config) ApplyEnvOverrides(getenv func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := getenv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("BACKEND", &c.Store.Backend)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("FILE_DIR", &c.Store.FileDir)
	str("MONGO_URI", &c.Store.MongoURI)
	str("MONGO_DB", &c.Store.MongoDatabase)
	str("EDGE_STRATEGY", &c.Rank.EdgeStrategy)
	str("UNRANKED", &c.Rank.Unranked)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("NATS_URL", &c.Events.NATSURL)

	if v, ok := getenv(EnvPrefix + "MAX_KEY_LENGTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_KEY_LENGTH: %w", ErrInvalidConfig, EnvPrefix, err)
		}
		c.Rank.MaxKeyLength = n
	}
	for name, dst := range map[string]*bool{"WRITER_ASYNC": &c.Writer.Async, "EVENTS_ENABLED": &c.Events.Enabled} {
		if v, ok := getenv(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate reports every problem with c, joined.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Rank.RankerConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Rank.UnrankedKey(); err != nil {
		errs = append(errs, fmt.Errorf("rank.unranked: %w", err))
	}
	if c.Rank.JitterRange < 0 {
		errs = append(errs, errors.New("rank.jitter_range must not be negative"))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case BackendFile:
		if c.Store.FileDir == "" {
			errs = append(errs, errors.New("store.file_dir is required for the file backend"))
		}
	case BackendMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("store.mongo_uri and store.mongo_database are required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, sqlite, mongo, file", c.Store.Backend))
	}

	if c.Writer.MaxRetries < 0 {
		errs = append(errs, errors.New("writer.max_retries must not be negative"))
	}
	if c.Writer.Backoff < 0 || c.Writer.MaxBackoff < 0 {
		errs = append(errs, errors.New("writer backoff must not be negative"))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		errs = append(errs, errors.New("events.nats_url is required when events are enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RankerConfig converts c into a rankkey.Config.
func (c RankConfig) RankerConfig() (*rankkey.Config, error) {
	strategy, ok := rankkey.ParseEdgeStrategy(c.EdgeStrategy)
	if !ok {
		return nil, fmt.Errorf("rank.edge_strategy %q is not one of bisect, step", c.EdgeStrategy)
	}
	if c.StepSize == 0 {
		return nil, errors.New("rank.step_size must be positive")
	}
	if c.MaxKeyLength < 0 {
		return nil, errors.New("rank.max_key_length must not be negative")
	}
	return rankkey.DefaultConfig().
		WithStepSize(c.StepSize).
		WithMaxKeyLength(c.MaxKeyLength).
		WithEdgeStrategy(strategy).
		WithJitterRange(c.JitterRange), nil
}

// UnrankedKey parses the unranked sentinel.
func (c RankConfig) UnrankedKey() (rankkey.Key, error) {
	return rankkey.Parse(c.Unranked)
}

// Ordering converts c into an ordering.WriterConfig.
func (c WriterConfig) Ordering() ordering.WriterConfig {
	return ordering.WriterConfig{
		Concurrency: c.Concurrency,
		MaxRetries:  c.MaxRetries,
		Backoff:     c.Backoff,
		MaxBackoff:  c.MaxBackoff,
	}
}
