package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateSanitizer(&cfg.Sanitizer)...)
	errs = append(errs, validateMarkdown(&cfg.Markdown)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validatePublish(&cfg.Publish)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.ReadTimeout > 0 && cfg.ReadTimeout < time.Second {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "warning: values below 1s may cause legitimate requests to timeout",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be positive",
		})
	}

	if cfg.CORS.Enabled && cfg.CORS.AllowCredentials {
		for _, origin := range cfg.CORS.AllowedOrigins {
			if origin == "*" {
				errs = append(errs, ValidationError{
					Field:   "server.cors",
					Message: "security: allow_credentials=true with allowed_origins=[\"*\"] is insecure",
				})
				break
			}
		}
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.cert_file",
				Message: "required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.key_file",
				Message: "required when TLS is enabled",
			})
		}
	}

	return errs
}

func validateSanitizer(cfg *SanitizerConfig) ValidationErrors {
	switch strings.ToLower(cfg.Strategy) {
	case "", "auto", "tree", "text":
		return nil
	}
	return ValidationErrors{{
		Field:   "sanitizer.strategy",
		Message: "must be one of: auto, tree, text",
	}}
}

func validateMarkdown(cfg *MarkdownConfig) ValidationErrors {
	if cfg.MaxDocumentSize <= 0 {
		return ValidationErrors{{
			Field:   "markdown.max_document_size",
			Message: "must be positive",
		}}
	}
	return nil
}

func validateRateLimit(cfg *RateLimitConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return nil
	}

	if cfg.Max < 1 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.max",
			Message: "must be at least 1",
		})
	}

	if cfg.Window < time.Second {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.window",
			Message: "must be at least 1s",
		})
	}

	switch cfg.Store {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			errs = append(errs, ValidationError{
				Field:   "rate_limit.redis_url",
				Message: "required when store is 'redis'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "rate_limit.store",
			Message: "must be 'memory' or 'redis'",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Type {
	case "filesystem":
		if cfg.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: "required when type is 'filesystem'",
			})
		}

		if strings.Contains(cfg.Path, "..") {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: "path traversal (..) not allowed",
			})
		}

	case "s3":
		if cfg.S3.Region == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.s3.region",
				Message: "required",
			})
		}

		if cfg.S3.AccessKeyID == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.s3.access_key_id",
				Message: "required",
			})
		}

		if cfg.S3.SecretAccessKey == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.s3.secret_access_key",
				Message: "required",
			})
		}

		if strings.Contains(cfg.S3.BucketPrefix, "/") {
			errs = append(errs, ValidationError{
				Field:   "storage.s3.bucket_prefix",
				Message: "must not contain path separators",
			})
		}

	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: "must be 'filesystem' or 's3'",
		})
	}

	switch cfg.Compression {
	case "", "gzip", "zstd":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.compression",
			Message: "must be empty, 'gzip' or 'zstd'",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "required",
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.busy_timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validatePublish(cfg *PublishConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Bucket == "" || strings.ContainsAny(cfg.Bucket, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "publish.bucket",
			Message: "required and must not contain path separators",
		})
	}

	if cfg.Retention < 0 {
		errs = append(errs, ValidationError{
			Field:   "publish.retention",
			Message: "must be non-negative",
		})
	}

	if cfg.Retention > 0 {
		if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "publish.cleanup_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}
