package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	BackendGCS         = "gcs"
	BackendS3          = "s3"
	BackendDirectServe = "directServe"
	BackendMemory      = "memory"
)

// Config is the process configuration. It is loaded once at start and
// treated as read-only afterwards.
type Config struct {
	Port    string
	AppEnv  string
	DataDir string

	LogLevel string
	LogFile  string

	StorageBackend string
	Bucket         string

	GoogleProjectID  string
	GoogleServiceKey string // base64 encoded service account JSON

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Endpoint         string

	ServeDir         string
	PublicBaseURL    string
	URLSigningSecret string

	RecordStoreURL   string
	AdminTokenSecret string

	AMQPURL      string
	AMQPExchange string

	RecordRetention time.Duration
	FetchMaxBytes   int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", BackendGCS)
	v.SetDefault("SERVE_DIR", "./serve")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("RECORD_STORE_URL", "https://api.airtable.com/v0")
	v.SetDefault("AMQP_EXCHANGE", "image_pipeline")
	v.SetDefault("RECORD_RETENTION", "720h")
	v.SetDefault("FETCH_MAX_BYTES", 50<<20)
}

// loadEnvFiles overlays .env files onto the process environment. APP_ENV
// selects ".env.<APP_ENV>", falling back to ".env". Missing files are fine.
func loadEnvFiles() string {
	env := os.Getenv("APP_ENV")
	candidates := []string{".env"}
	if env != "" {
		candidates = []string{".env." + env, ".env"}
	}
	for _, name := range candidates {
		if err := godotenv.Load(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads .env files and the environment into a Config.
func Load() (*Config, error) {
	loadEnvFiles()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	retention, err := time.ParseDuration(v.GetString("RECORD_RETENTION"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECORD_RETENTION: %w", err)
	}

	cfg := &Config{
		Port:               v.GetString("PORT"),
		AppEnv:             strings.ToLower(v.GetString("APP_ENV")),
		DataDir:            v.GetString("DATA_DIR"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFile:            v.GetString("LOG_FILE"),
		StorageBackend:     v.GetString("STORAGE_BACKEND"),
		Bucket:             v.GetString("BUCKET_NAME"),
		GoogleProjectID:    v.GetString("GOOGLE_PROJECT_ID"),
		GoogleServiceKey:   v.GetString("GOOGLE_SERVICE_KEY"),
		AWSRegion:          v.GetString("AWS_REGION"),
		AWSAccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		S3Endpoint:         v.GetString("S3_ENDPOINT"),
		ServeDir:           v.GetString("SERVE_DIR"),
		PublicBaseURL:      strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		URLSigningSecret:   v.GetString("URL_SIGNING_SECRET"),
		RecordStoreURL:     strings.TrimRight(v.GetString("RECORD_STORE_URL"), "/"),
		AdminTokenSecret:   v.GetString("ADMIN_TOKEN_SECRET"),
		AMQPURL:            v.GetString("AMQP_URL"),
		AMQPExchange:       v.GetString("AMQP_EXCHANGE"),
		RecordRetention:    retention,
		FetchMaxBytes:      v.GetInt64("FETCH_MAX_BYTES"),
	}
	return cfg, cfg.Validate()
}

// Validate checks that the selected storage backend has what it needs.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.StorageBackend {
	case BackendGCS:
		require("GOOGLE_PROJECT_ID", c.GoogleProjectID)
		require("GOOGLE_SERVICE_KEY", c.GoogleServiceKey)
		require("BUCKET_NAME", c.Bucket)
	case BackendS3:
		require("AWS_REGION", c.AWSRegion)
		require("AWS_ACCESS_KEY_ID", c.AWSAccessKeyID)
		require("AWS_SECRET_ACCESS_KEY", c.AWSSecretAccessKey)
		require("BUCKET_NAME", c.Bucket)
	case BackendDirectServe:
		require("SERVE_DIR", c.ServeDir)
		require("PUBLIC_BASE_URL", c.PublicBaseURL)
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing configuration for %s backend: %s", c.StorageBackend, strings.Join(missing, ", "))
	}
	if c.FetchMaxBytes <= 0 {
		return fmt.Errorf("FETCH_MAX_BYTES must be positive")
	}
	return nil
}

// Development reports whether error responses may include diagnostics.
func (c *Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// GetFailuresDBPath returns the full path to the failures database.
// Path: {DATA_DIR}/failures.db
func (c *Config) GetFailuresDBPath() string {
	return filepath.Join(c.DataDir, "failures.db")
}

// GetSuccessDBPath returns the full path to the success database.
// Path: {DATA_DIR}/success.db
func (c *Config) GetSuccessDBPath() string {
	return filepath.Join(c.DataDir, "success.db")
}
