package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "MARKGUARD"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("markguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/markguard")
		v.AddConfigPath("/etc/markguard")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

// setViperDefaults registers every key so AutomaticEnv can override it and
// Unmarshal sees it even when no config file exists.
func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)
	v.SetDefault("server.compression", cfg.Server.Compression)

	v.SetDefault("server.cors.enabled", cfg.Server.CORS.Enabled)
	v.SetDefault("server.cors.allowed_origins", cfg.Server.CORS.AllowedOrigins)
	v.SetDefault("server.cors.allowed_methods", cfg.Server.CORS.AllowedMethods)
	v.SetDefault("server.cors.allowed_headers", cfg.Server.CORS.AllowedHeaders)
	v.SetDefault("server.cors.exposed_headers", cfg.Server.CORS.ExposedHeaders)
	v.SetDefault("server.cors.allow_credentials", cfg.Server.CORS.AllowCredentials)
	v.SetDefault("server.cors.max_age", cfg.Server.CORS.MaxAge)

	v.SetDefault("sanitizer.strategy", cfg.Sanitizer.Strategy)

	v.SetDefault("markdown.gfm", cfg.Markdown.GFM)
	v.SetDefault("markdown.hard_wraps", cfg.Markdown.HardWraps)
	v.SetDefault("markdown.heading_ids", cfg.Markdown.HeadingIDs)
	v.SetDefault("markdown.max_document_size", cfg.Markdown.MaxDocumentSize)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.max", cfg.RateLimit.Max)
	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)
	v.SetDefault("rate_limit.store", cfg.RateLimit.Store)
	v.SetDefault("rate_limit.redis_url", cfg.RateLimit.RedisURL)
	v.SetDefault("rate_limit.trust_proxy_headers", cfg.RateLimit.TrustProxyHeaders)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.compression", cfg.Storage.Compression)
	v.SetDefault("storage.s3.endpoint", cfg.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.region", cfg.Storage.S3.Region)
	v.SetDefault("storage.s3.access_key_id", cfg.Storage.S3.AccessKeyID)
	v.SetDefault("storage.s3.secret_access_key", cfg.Storage.S3.SecretAccessKey)
	v.SetDefault("storage.s3.bucket_prefix", cfg.Storage.S3.BucketPrefix)
	v.SetDefault("storage.s3.force_path_style", cfg.Storage.S3.ForcePathStyle)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.wal_mode", cfg.Database.WALMode)
	v.SetDefault("database.cache_size", cfg.Database.CacheSize)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)

	v.SetDefault("publish.bucket", cfg.Publish.Bucket)
	v.SetDefault("publish.retention", cfg.Publish.Retention)
	v.SetDefault("publish.cleanup_schedule", cfg.Publish.CleanupSchedule)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
	v.SetDefault("logging.timestamp", cfg.Logging.Timestamp)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"markguard.yaml",
		"markguard.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "markguard", "markguard.yaml"),
		"/etc/markguard/markguard.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
