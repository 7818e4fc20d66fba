// Package config loads runtime settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Upload log sinks.
const (
	SinkStore    = "store"
	SinkBigQuery = "bigquery"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	UploadDir string    `yaml:"upload_dir"`
	Geocoding Geocoding `yaml:"geocoding"`
	Report    Report    `yaml:"report"`
	Archive   Archive   `yaml:"archive"`
	UploadLog UploadLog `yaml:"upload_log"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Port string `yaml:"port"`
	// MaxUploadBytes caps multipart request bodies.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type Store struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type Geocoding struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Delay   time.Duration `yaml:"delay"`
	Timeout time.Duration `yaml:"timeout"`
}

type Report struct {
	Narrative bool   `yaml:"narrative"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
}

// Archive is disabled when Bucket is empty.
type Archive struct {
	Bucket string `yaml:"bucket"`
}

type UploadLog struct {
	Sink    string `yaml:"sink"`
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Server:    Server{Port: "8080", MaxUploadBytes: 32 << 20},
		Store:     Store{Driver: DriverSQLite, Path: "customer_data.db"},
		UploadDir: "uploads",
		Geocoding: Geocoding{
			Enabled: true,
			Delay:   200 * time.Millisecond,
			Timeout: 10 * time.Second,
		},
		UploadLog: UploadLog{Sink: SinkStore, Dataset: "customer_insights"},
		Log:       Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("STORE_DRIVER", &c.Store.Driver)
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Store.DSN = v
		if _, explicit := lookup("STORE_DRIVER"); !explicit {
			c.Store.Driver = DriverPostgres
		}
	}
	set("SQLITE_PATH", &c.Store.Path)
	set("UPLOAD_DIR", &c.UploadDir)
	set("PORT", &c.Server.Port)
	set("LOCATIONIQ_API_KEY", &c.Geocoding.APIKey)
	set("GEMINI_API_KEY", &c.Report.APIKey)
	set("GCS_BUCKET", &c.Archive.Bucket)
	set("GOOGLE_CLOUD_PROJECT", &c.UploadLog.Project)
	set("UPLOAD_LOG_SINK", &c.UploadLog.Sink)
	set("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("GEOCODING_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GEOCODING_ENABLED: %w", err)
		}
		c.Geocoding.Enabled = enabled
	}

	return nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn (or DATABASE_URL) is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.UploadDir == "" {
		errs = append(errs, errors.New("upload_dir is required"))
	}

	if c.Geocoding.Enabled && c.Geocoding.APIKey == "" {
		errs = append(errs, errors.New("geocoding.api_key (or LOCATIONIQ_API_KEY) is required when geocoding is enabled"))
	}
	if c.Geocoding.Delay < 0 {
		errs = append(errs, errors.New("geocoding.delay must not be negative"))
	}

	switch c.UploadLog.Sink {
	case SinkStore:
	case SinkBigQuery:
		if c.UploadLog.Project == "" || c.UploadLog.Dataset == "" {
			errs = append(errs, errors.New("upload_log.project and upload_log.dataset are required for the bigquery sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload_log.sink %q", c.UploadLog.Sink))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %w", errors.Join(errs...))
	}
	return nil
}
