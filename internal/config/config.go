// Package config provides configuration management for markguard.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for markguard.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
	Markdown  MarkdownConfig  `mapstructure:"markdown"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	CORS CORSConfig `mapstructure:"cors"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// Compress responses with gzip when the client accepts it
	Compression bool `mapstructure:"compression"`

	// TLS configuration (optional)
	TLS *TLSConfig `mapstructure:"tls"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Allowed origins (use ["*"] for all)
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	AllowCredentials bool `mapstructure:"allow_credentials"`

	// Max age for preflight cache
	MaxAge time.Duration `mapstructure:"max_age"`
}

// TLSConfig holds TLS settings.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SanitizerConfig selects how untrusted HTML is sanitized.
type SanitizerConfig struct {
	// Strategy is one of auto, tree or text
	Strategy string `mapstructure:"strategy"`
}

// MarkdownConfig holds Markdown rendering settings.
type MarkdownConfig struct {
	// Enable GitHub Flavored Markdown (tables, strikethrough, autolinks, task lists)
	GFM bool `mapstructure:"gfm"`

	// Render soft line breaks as <br>
	HardWraps bool `mapstructure:"hard_wraps"`

	// Generate id attributes for headings
	HeadingIDs bool `mapstructure:"heading_ids"`

	// Maximum accepted document size in bytes
	MaxDocumentSize int64 `mapstructure:"max_document_size"`
}

// RateLimitConfig holds per-client throttling settings for the API.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Maximum requests per window
	Max int `mapstructure:"max"`

	// Time window
	Window time.Duration `mapstructure:"window"`

	// Counter store (memory or redis)
	Store string `mapstructure:"store"`

	// Redis connection URL when store is redis
	RedisURL string `mapstructure:"redis_url"`

	// Key clients by X-Real-IP / X-Forwarded-For. Only enable behind a
	// proxy that overwrites those headers.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// StorageConfig holds the object storage settings used for publications.
type StorageConfig struct {
	// Backend type (filesystem or s3)
	Type string `mapstructure:"type"`

	// Root directory for the filesystem backend
	Path string `mapstructure:"path"`

	// Compression applied to stored objects ("", gzip or zstd)
	Compression string `mapstructure:"compression"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible backend settings.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketPrefix    string `mapstructure:"bucket_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// PublishConfig holds settings for the publication store.
type PublishConfig struct {
	// Storage bucket that holds published documents
	Bucket string `mapstructure:"bucket"`

	// Publications older than this are purged (0 keeps them forever)
	Retention time.Duration `mapstructure:"retention"`

	// Cron expression for the retention job
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
