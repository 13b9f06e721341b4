package cli

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/markdown"
	"github.com/watzon/markguard/internal/sanitize"
)

var (
	renderInclude  []string
	renderOutDir   string
	renderStrategy string
	renderWatch    bool
)

var defaultRenderInclude = []string{"**.md", "**.markdown"}

const renderDebounce = 200 * time.Millisecond

var renderCmd = &cobra.Command{
	Use:   "render <dir>",
	Short: "Render a directory of Markdown into sanitized HTML",
	Long: `Render every Markdown file under <dir> that matches an --include glob
into a sanitized .html page next to it, or under --out with the same
relative layout.

Globs use "/" as separator: "*" stays within a directory, "**" crosses
directories. Hidden directories are skipped.

With --watch, files are re-rendered as they change until interrupted.

Examples:
  markguard render docs
  markguard render docs --out site --include 'guides/**.md'
  markguard render docs --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringSliceVarP(&renderInclude, "include", "i", defaultRenderInclude, "Glob patterns of files to render, relative to <dir>")
	renderCmd.Flags().StringVarP(&renderOutDir, "out", "o", "", "Output directory (default: alongside the sources)")
	renderCmd.Flags().StringVarP(&renderStrategy, "strategy", "s", "", "Sanitizer strategy (auto, tree, text); defaults to sanitizer.strategy")
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "Re-render files when they change")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := cfg.Sanitizer.Strategy
	if cmd.Flags().Changed("strategy") {
		name = renderStrategy
	}
	strategy, err := sanitize.ParseStrategy(name)
	if err != nil {
		return err
	}

	r, err := NewRenderer(RendererConfig{
		SourceDir: args[0],
		OutputDir: renderOutDir,
		Include:   renderInclude,
		Strategy:  strategy,
		Markdown:  cfg.Markdown,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := r.RenderAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d files (%d skipped, %d elements removed)\n",
		stats.Rendered, stats.Skipped, stats.Removed)

	if !renderWatch {
		return nil
	}
	return r.Watch(ctx)
}

// RendererConfig configures a Renderer.
type RendererConfig struct {
	SourceDir string
	// OutputDir defaults to SourceDir.
	OutputDir string
	Include   []string
	Strategy  sanitize.Strategy
	Markdown  config.MarkdownConfig
}

// Renderer turns Markdown files into standalone sanitized HTML pages.
type Renderer struct {
	src       string
	out       string
	include   []glob.Glob
	converter *markdown.Converter
	sanitizer *sanitize.Sanitizer
}

// RenderStats summarizes a RenderAll run.
type RenderStats struct {
	Rendered int
	Skipped  int
	Removed  int
}

func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	info, err := os.Stat(cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.SourceDir)
	}

	patterns := cfg.Include
	if len(patterns) == 0 {
		patterns = defaultRenderInclude
	}

	include := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		include = append(include, g)
	}

	out := cfg.OutputDir
	if out == "" {
		out = cfg.SourceDir
	}

	return &Renderer{
		src:       filepath.Clean(cfg.SourceDir),
		out:       filepath.Clean(out),
		include:   include,
		converter: markdown.NewConverter(cfg.Markdown),
		sanitizer: sanitize.New(sanitize.WithStrategy(cfg.Strategy)),
	}, nil
}

// Matches reports whether path, relative to the source directory, is
// selected by an include pattern.
func (r *Renderer) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range r.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (r *Renderer) skipDir(path string) bool {
	if path == r.src {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	return r.out != r.src && path == r.out
}

// RenderAll renders every matching file. Documents that fail to convert are
// logged and counted as skipped; I/O errors abort the run.
func (r *Renderer) RenderAll(ctx context.Context) (RenderStats, error) {
	var stats RenderStats

	err := filepath.WalkDir(r.src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if r.skipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(r.src, path)
		if err != nil || !r.Matches(rel) {
			return nil
		}

		res, err := r.RenderFile(path)
		switch {
		case isDocumentError(err):
			log.Warn().Err(err).Str("path", path).Msg("Skipping document")
			stats.Skipped++
			return nil
		case err != nil:
			return err
		}

		stats.Rendered++
		stats.Removed += res.Report.Removed()
		return nil
	})

	return stats, err
}

func isDocumentError(err error) bool {
	return errors.Is(err, markdown.ErrEmptyDocument) ||
		errors.Is(err, markdown.ErrDocumentTooLarge) ||
		errors.Is(err, markdown.ErrInvalidFrontMatter)
}

// OutputPath returns where the page for the source file at path is written.
func (r *Renderer) OutputPath(path string) (string, error) {
	rel, err := filepath.Rel(r.src, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ".html"
	return filepath.Join(r.out, rel), nil
}

// RenderFile converts and sanitizes one Markdown file and writes the page.
func (r *Renderer) RenderFile(path string) (sanitize.Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return sanitize.Result{}, fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := r.converter.Convert(src)
	if err != nil {
		return sanitize.Result{}, err
	}
	res := r.sanitizer.SanitizeResult(doc.HTML)

	dest, err := r.OutputPath(path)
	if err != nil {
		return res, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return res, fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(dest, []byte(page(doc.Title, res.HTML)), 0o644); err != nil {
		return res, fmt.Errorf("writing %s: %w", dest, err)
	}

	log.Debug().
		Str("source", path).
		Str("output", dest).
		Str("strategy", string(res.Strategy)).
		Int("removed", res.Report.Removed()).
		Msg("Rendered document")

	return res, nil
}

func page(title, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if title != "" {
		b.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// Watch re-renders matching files as they change and removes the page of a
// deleted source. It blocks until ctx is canceled.
func (r *Renderer) Watch(ctx context.Context) error {
	w, err := NewWatcher(WithDebounce(renderDebounce), WithSkip(r.skipDir))
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Stop()

	if err := w.WatchTree(r.src, r.handleEvent); err != nil {
		return fmt.Errorf("watching %s: %w", r.src, err)
	}
	w.Start(ctx)

	log.Info().Str("dir", r.src).Msg("Watching for changes")
	<-ctx.Done()
	return nil
}

func (r *Renderer) handleEvent(event FileEvent) {
	rel, err := filepath.Rel(r.src, event.Path)
	if err != nil || !r.Matches(rel) {
		return
	}

	switch event.Type {
	case EventCreated, EventModified:
		if _, err := r.RenderFile(event.Path); err != nil {
			log.Warn().Err(err).Str("path", event.Path).Msg("Failed to render document")
			return
		}
		log.Info().Str("path", rel).Str("event", event.Type.String()).Msg("Rendered document")

	case EventDeleted, EventRenamed:
		dest, err := r.OutputPath(event.Path)
		if err != nil {
			return
		}
		if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", dest).Msg("Failed to remove rendered page")
			return
		}
		log.Info().Str("path", rel).Msg("Removed rendered page")
	}
}
