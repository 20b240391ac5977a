// Package config holds the typed run configuration and loads it from layered
// sources with koanf:
//
//  1. built-in defaults (Default)
//  2. an optional YAML or JSON file, chosen by extension
//  3. environment variables DATALAKE_SECTION__KEY
//  4. explicit overrides, typically CLI flags
//
// Later layers win. Validate reports problems as Issues.
package config

import "datalake/internal/storage"

// Config is the whole run configuration.
type Config struct {
	// Job names the run in logs and metrics.
	Job       string          `koanf:"job" validate:"required"`
	Input     InputConfig     `koanf:"input"`
	Output    OutputConfig    `koanf:"output"`
	Storage   StorageConfig   `koanf:"storage"`
	Transform TransformConfig `koanf:"transform"`
	Join      JoinConfig      `koanf:"join"`
	Warehouse WarehouseConfig `koanf:"warehouse"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// InputConfig locates the two JSON inputs. Each is a glob over a storage
// URL, e.g. "data/song_data/*/*/*/*.json" or "s3://bucket/log_data/*/*/*.json".
type InputConfig struct {
	SongData string `koanf:"song_data" validate:"required"`
	LogData  string `koanf:"log_data" validate:"required"`
	// MaxParseErrors fails the run once more malformed lines than this were
	// skipped; 0 means unlimited.
	MaxParseErrors int `koanf:"max_parse_errors" validate:"min=0"`
}

type OutputConfig struct {
	Path           string `koanf:"path" validate:"required"`
	Overwrite      string `koanf:"overwrite" validate:"oneof=table partition"`
	Compression    string `koanf:"compression" validate:"oneof=snappy zstd none"`
	MaxRowsPerFile int    `koanf:"max_rows_per_file" validate:"min=0"`
}

type StorageConfig struct {
	S3 S3Config `koanf:"s3"`
}

type S3Config struct {
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint" validate:"omitempty,url"`
	Profile      string `koanf:"profile"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

type TransformConfig struct {
	// TimeZone is an IANA zone name for timestamp decomposition.
	TimeZone    string `koanf:"time_zone" validate:"required"`
	UsersPolicy string `koanf:"users_policy" validate:"oneof=keep-first keep-last most-complete"`
}

type JoinConfig struct {
	Matcher     string `koanf:"matcher" validate:"oneof=exact folded"`
	SongsSource string `koanf:"songs_source" validate:"oneof=memory storage"`
}

// WarehouseConfig enables the SQL mirror when Kind is set.
type WarehouseConfig struct {
	Kind   string `koanf:"kind" validate:"omitempty,oneof=sqlite postgres mssql mysql"`
	DSN    string `koanf:"dsn" validate:"required_with=Kind"`
	Schema string `koanf:"schema"`
}

type RuntimeConfig struct {
	ReaderWorkers int `koanf:"reader_workers" validate:"min=1,max=256"`
}

type MetricsConfig struct {
	Backend        string `koanf:"backend" validate:"oneof=none prometheus datadog"`
	PushgatewayURL string `koanf:"pushgateway_url" validate:"required_if=Backend prometheus"`
	StatsdAddr     string `koanf:"statsd_addr" validate:"required_if=Backend datadog"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in defaults. Inputs and output have none.
func Default() Config {
	return Config{
		Job: "datalake",
		Output: OutputConfig{
			Overwrite:   "table",
			Compression: "snappy",
		},
		Transform: TransformConfig{
			TimeZone:    "UTC",
			UsersPolicy: "keep-last",
		},
		Join: JoinConfig{
			Matcher:     "exact",
			SongsSource: "memory",
		},
		Runtime: RuntimeConfig{ReaderWorkers: 4},
		Metrics: MetricsConfig{Backend: "none"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// StorageConfig returns the storage.Config for a location under this run.
func (c *Config) StorageConfig(url string) storage.Config {
	return storage.Config{
		URL: url,
		S3: storage.S3Config{
			Region:       c.Storage.S3.Region,
			Endpoint:     c.Storage.S3.Endpoint,
			Profile:      c.Storage.S3.Profile,
			UsePathStyle: c.Storage.S3.UsePathStyle,
		},
	}
}
