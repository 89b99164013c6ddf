// Package config loads service settings from an optional YAML file,
// environment variables and command-line flags, in that order of precedence
// (flags win).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Driver names.
const (
	BlobDisk       = "disk"
	BlobS3         = "s3"
	MetadataMongo  = "mongo"
	MetadataSQLite = "sqlite"
)

// Config represents the server configuration.
type Config struct {
	Server struct {
		HTTPAddr       string        `yaml:"http_addr"`
		MaxUploadBytes int64         `yaml:"max_upload_bytes"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`
	Blob struct {
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
		S3     struct {
			Region string `yaml:"region"`
			Bucket string `yaml:"bucket"`
			Prefix string `yaml:"prefix"`
		} `yaml:"s3"`
	} `yaml:"blob"`
	Metadata struct {
		Driver     string `yaml:"driver"`
		MongoURI   string `yaml:"mongo_uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"metadata"`
	Cache struct {
		RedisAddr string        `yaml:"redis_addr"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Snapshot struct {
		Path    string `yaml:"path"`
		Workers int    `yaml:"workers"`
	} `yaml:"snapshot"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load builds a Config from args (without the program name).
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("pdfhost", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", os.Getenv("PDFHOST_CONFIG"), "path to YAML configuration file")
	httpAddr := fs.String("http-addr", "", "HTTP listen address")
	mongoURI := fs.String("mongo-uri", "", "MongoDB connection string")
	uploadDir := fs.String("upload-dir", "", "directory uploaded files are written to")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var cfg Config
	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if fs.Changed("http-addr") {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if fs.Changed("mongo-uri") {
		cfg.Metadata.MongoURI = *mongoURI
	}
	if fs.Changed("upload-dir") {
		cfg.Blob.Dir = *uploadDir
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile parses the YAML file at path into cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyDefaults sets default values for the configuration.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Blob.Driver == "" {
		cfg.Blob.Driver = BlobDisk
	}
	if cfg.Blob.Dir == "" {
		cfg.Blob.Dir = "uploads"
	}
	if cfg.Blob.S3.Region == "" {
		cfg.Blob.S3.Region = "us-west-2"
	}
	if cfg.Metadata.Driver == "" {
		cfg.Metadata.Driver = MetadataMongo
	}
	if cfg.Metadata.MongoURI == "" {
		cfg.Metadata.MongoURI = "mongodb://localhost:27017/test"
	}
	if cfg.Metadata.Database == "" {
		cfg.Metadata.Database = "test"
	}
	if cfg.Metadata.Collection == "" {
		cfg.Metadata.Collection = "books"
	}
	if cfg.Metadata.SQLitePath == "" {
		cfg.Metadata.SQLitePath = "pdfhost.db"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = "pdfFilesData.json"
	}
	if cfg.Snapshot.Workers == 0 {
		cfg.Snapshot.Workers = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnv overrides settings from PDFHOST_* environment variables.
func applyEnv(cfg *Config) {
	cfg.Server.HTTPAddr = envOrDefault("PDFHOST_HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Blob.Driver = envOrDefault("PDFHOST_BLOB_DRIVER", cfg.Blob.Driver)
	cfg.Blob.Dir = envOrDefault("PDFHOST_UPLOAD_DIR", cfg.Blob.Dir)
	cfg.Blob.S3.Region = envOrDefault("AWS_REGION", cfg.Blob.S3.Region)
	cfg.Blob.S3.Bucket = envOrDefault("PDFHOST_S3_BUCKET", cfg.Blob.S3.Bucket)
	cfg.Metadata.Driver = envOrDefault("PDFHOST_METADATA_DRIVER", cfg.Metadata.Driver)
	cfg.Metadata.MongoURI = envOrDefault("PDFHOST_MONGO_URI", cfg.Metadata.MongoURI)
	cfg.Metadata.Database = envOrDefault("PDFHOST_MONGO_DATABASE", cfg.Metadata.Database)
	cfg.Metadata.SQLitePath = envOrDefault("PDFHOST_SQLITE_PATH", cfg.Metadata.SQLitePath)
	cfg.Cache.RedisAddr = envOrDefault("PDFHOST_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Snapshot.Path = envOrDefault("PDFHOST_SNAPSHOT_PATH", cfg.Snapshot.Path)
	cfg.Log.Level = envOrDefault("PDFHOST_LOG_LEVEL", cfg.Log.Level)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Blob.Driver {
	case BlobDisk:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("config: blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config: unknown blob driver %q", c.Blob.Driver)
	}

	switch c.Metadata.Driver {
	case MetadataMongo, MetadataSQLite:
	default:
		return fmt.Errorf("config: unknown metadata driver %q", c.Metadata.Driver)
	}

	if c.Snapshot.Workers < 1 {
		return fmt.Errorf("config: snapshot.workers must be positive, got %d", c.Snapshot.Workers)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

// envOrDefault reads an env variable or returns the fallback.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
