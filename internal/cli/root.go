package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/markguard/internal/config"
)

var (
	cfgFile string
	verbose bool

	version = "dev"
	commit  = "none"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "markguard",
	Short: "Sanitize untrusted HTML and publish Markdown safely",
	Long: `markguard turns untrusted HTML and Markdown into markup that is safe to
show in a browser or hand to a publishing target.

  - Allowlist sanitizer with a DOM-tree strategy and a text fallback
  - Markdown preview over HTTP and WebSocket
  - Publication store backed by SQLite and filesystem or S3 storage

Start the API server:
  markguard serve

Sanitize a file:
  markguard sanitize page.html > clean.html`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(config.Default().Logging)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./markguard.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads the config file and MARKGUARD_* environment overrides,
// then reapplies the logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging)

	if path, err := config.ConfigFilePath(cfgFile); err == nil {
		log.Debug().Str("file", path).Msg("Using config file")
	}
	return cfg, nil
}

// setupLogging configures the global zerolog logger. --verbose forces debug.
func setupLogging(cfg config.LoggingConfig) {
	configureLogger(os.Stderr, cfg)
}

func configureLogger(w io.Writer, cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w}
	}

	logCtx := zerolog.New(out).With()
	if cfg.Timestamp {
		logCtx = logCtx.Timestamp()
	}
	if cfg.Caller {
		logCtx = logCtx.Caller()
	}
	log.Logger = logCtx.Logger()
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetVersionInfo records the build version reported by the version command
// and the health endpoint.
func SetVersionInfo(v, c string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("markguard version %s (%s, %s)", version, commit, runtime.Version())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
