package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/database"
	"github.com/watzon/markguard/internal/markdown"
	"github.com/watzon/markguard/internal/metrics"
	"github.com/watzon/markguard/internal/publish"
	"github.com/watzon/markguard/internal/ratelimit"
	"github.com/watzon/markguard/internal/sanitize"
	"github.com/watzon/markguard/internal/server"
	"github.com/watzon/markguard/internal/storage"
)

var (
	servePort int
	serveHost string
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the markguard HTTP API.

The server will:
  - Open the publication index and run pending migrations
  - Connect the storage backend
  - Schedule publication retention when publish.retention is set
  - Serve /api/sanitize, /api/preview, /api/publish and friends

SIGINT or SIGTERM drains in-flight requests before exiting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs the server until ctx is canceled, then shuts it down.
func serve(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	backend, err := storage.NewBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}

	strategy, err := sanitize.ParseStrategy(cfg.Sanitizer.Strategy)
	if err != nil {
		return err
	}

	store := publish.NewStore(db, backend, cfg.Publish.Bucket)
	service := publish.NewService(
		markdown.NewConverter(cfg.Markdown),
		sanitize.New(sanitize.WithStrategy(strategy), sanitize.WithObserver(metrics.ObserveSanitize)),
		publish.NewAdapter(),
		store,
	)

	opts := []server.Option{server.WithVersion(version)}
	if cfg.RateLimit.Enabled {
		rlStore, err := ratelimit.NewStore(ctx, cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("creating rate limit store: %w", err)
		}
		defer rlStore.Close()

		limiter := ratelimit.New(rlStore, ratelimit.Rule{Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window})
		opts = append(opts, server.WithRateLimiter(limiter))
	}

	srv, err := server.New(cfg, db, backend, service, opts...)
	if err != nil {
		return err
	}

	if cfg.Publish.Retention > 0 {
		retention, err := publish.NewRetention(store, cfg.Publish.Retention, cfg.Publish.CleanupSchedule)
		if err != nil {
			return err
		}
		retention.Start()
		defer retention.Stop(context.Background())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	log.Info().
		Str("url", "http://"+cfg.Server.Address()).
		Str("strategy", string(strategy)).
		Str("storage", cfg.Storage.Type).
		Bool("rate_limit", cfg.RateLimit.Enabled).
		Msg("Server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down: %w", err)
	}

	return <-errCh
}
