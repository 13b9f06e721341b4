package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/database"
	"github.com/watzon/markguard/internal/database/migrations"
	"github.com/watzon/markguard/internal/publish"
	"github.com/watzon/markguard/internal/storage"
)

var (
	dbFormat    string
	dbOlderThan time.Duration
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Publication index utilities",
	Long: `Utilities for the SQLite publication index.

Examples:
  markguard db migrations          List applied schema migrations
  markguard db dump index.json     Export the publication index
  markguard db purge --older-than 720h`,
}

var dbMigrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "Apply pending migrations and list applied ones",
	Args:  cobra.NoArgs,
	RunE:  runDBMigrations,
}

var dbDumpCmd = &cobra.Command{
	Use:   "dump <file|->",
	Short: "Export the publication index",
	Long: `Export every publication record to a JSON or YAML file, or to stdout
when the argument is "-". Bodies stay in the storage backend.

Use the --format flag to specify output format (default: json).`,
	Args: cobra.ExactArgs(1),
	RunE: runDBDump,
}

var dbPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired publications now",
	Long: `Delete every publication older than --older-than, or publish.retention
when the flag is not given, together with its stored body.`,
	Args: cobra.NoArgs,
	RunE: runDBPurge,
}

func init() {
	dbDumpCmd.Flags().StringVarP(&dbFormat, "format", "f", "json", "Output format (json, yaml)")
	dbPurgeCmd.Flags().DurationVar(&dbOlderThan, "older-than", 0, "Maximum publication age")

	dbCmd.AddCommand(dbMigrationsCmd)
	dbCmd.AddCommand(dbDumpCmd)
	dbCmd.AddCommand(dbPurgeCmd)

	rootCmd.AddCommand(dbCmd)
}

func openStore(ctx context.Context, cfg *config.Config) (*publish.Store, *database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	backend, err := storage.NewBackend(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating storage backend: %w", err)
	}

	return publish.NewStore(db, backend, cfg.Publish.Bucket), db, nil
}

func runDBMigrations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.GetApplied(ctx, db.DB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range applied {
		fmt.Fprintf(out, "%-40s %s\n", m.ID, m.AppliedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%d migrations applied\n", len(applied))
	return nil
}

func runDBDump(cmd *cobra.Command, args []string) error {
	if dbFormat != "json" && dbFormat != "yaml" {
		return fmt.Errorf("unsupported format %q (use json or yaml)", dbFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var out io.Writer = cmd.OutOrStdout()
	if args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	n, err := dumpPublications(ctx, store, out, dbFormat)
	if err != nil {
		return err
	}

	if args[0] != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d publications to %s\n", n, args[0])
	}
	return nil
}

const dumpPageSize = 100

// dumpPublications writes the whole index to w, newest first.
func dumpPublications(ctx context.Context, store *publish.Store, w io.Writer, format string) (int, error) {
	all := make([]*publish.Publication, 0)
	for offset := 0; ; offset += dumpPageSize {
		page, total, err := store.List(ctx, dumpPageSize, offset)
		if err != nil {
			return 0, err
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			break
		}
	}

	var (
		data []byte
		err  error
	)
	if format == "yaml" {
		data, err = yaml.Marshal(all)
	} else {
		data, err = json.MarshalIndent(all, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return 0, fmt.Errorf("marshaling output: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("writing output: %w", err)
	}
	return len(all), nil
}

func runDBPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	maxAge := cfg.Publish.Retention
	if cmd.Flags().Changed("older-than") {
		maxAge = dbOlderThan
	}
	if maxAge <= 0 {
		return fmt.Errorf("no retention configured; pass --older-than")
	}

	ctx := cmd.Context()
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	schedule := cfg.Publish.CleanupSchedule
	if schedule == "" {
		schedule = config.DefaultCleanupSchedule
	}
	retention, err := publish.NewRetention(store, maxAge, schedule)
	if err != nil {
		return err
	}

	n, err := retention.RunOnce(ctx)
	if err != nil {
		return err
	}

	log.Debug().Dur("max_age", maxAge).Int("purged", n).Msg("Purge finished")
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d publications\n", n)
	return nil
}
