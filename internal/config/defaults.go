package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8420
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 2 * 1024 * 1024 // 2MB

	// Sanitizer defaults.
	DefaultStrategy = "auto"

	// Markdown defaults.
	DefaultMaxDocumentSize = 1024 * 1024 // 1MB

	// Rate limit defaults.
	DefaultRateLimitMax    = 120
	DefaultRateLimitWindow = time.Minute
	DefaultRateLimitStore  = "memory"

	// Storage defaults.
	DefaultStorageType = "filesystem"
	DefaultStoragePath = "data/objects"

	// Database defaults.
	DefaultDBPath       = "markguard.db"
	DefaultCacheSize    = -16000 // 16MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer

	// Publish defaults.
	DefaultPublishBucket   = "publications"
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultCleanupSchedule = "@hourly"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			Compression:  true,
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			},
		},
		Sanitizer: SanitizerConfig{
			Strategy: DefaultStrategy,
		},
		Markdown: MarkdownConfig{
			GFM:             true,
			HardWraps:       false,
			HeadingIDs:      true,
			MaxDocumentSize: DefaultMaxDocumentSize,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Max:     DefaultRateLimitMax,
			Window:  DefaultRateLimitWindow,
			Store:   DefaultRateLimitStore,
		},
		Storage: StorageConfig{
			Type: DefaultStorageType,
			Path: DefaultStoragePath,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			CacheSize:    DefaultCacheSize,
			BusyTimeout:  DefaultBusyTimeout,
			MaxOpenConns: DefaultMaxOpenConns,
		},
		Publish: PublishConfig{
			Bucket:          DefaultPublishBucket,
			Retention:       DefaultRetention,
			CleanupSchedule: DefaultCleanupSchedule,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
	}
}
