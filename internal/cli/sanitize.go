package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/markdown"
	"github.com/watzon/markguard/internal/sanitize"
)

var (
	sanitizeMarkdown bool
	sanitizeStrategy string
	sanitizeReport   bool
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [file|-]",
	Short: "Sanitize HTML or Markdown to stdout",
	Long: `Read untrusted HTML from a file, or from stdin when the argument is
omitted or "-", and write the sanitized markup to stdout.

With --markdown the input is rendered as Markdown first. Front matter is
stripped from the output.

Examples:
  markguard sanitize comment.html
  curl -s https://example.com | markguard sanitize --strategy text
  markguard sanitize --markdown README.md --report`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSanitize,
}

func init() {
	sanitizeCmd.Flags().BoolVarP(&sanitizeMarkdown, "markdown", "m", false, "Render the input as Markdown before sanitizing")
	sanitizeCmd.Flags().StringVarP(&sanitizeStrategy, "strategy", "s", "", "Sanitizer strategy (auto, tree, text); defaults to sanitizer.strategy")
	sanitizeCmd.Flags().BoolVar(&sanitizeReport, "report", false, "Print what was removed to stderr")

	rootCmd.AddCommand(sanitizeCmd)
}

func runSanitize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := cfg.Sanitizer.Strategy
	if cmd.Flags().Changed("strategy") {
		name = sanitizeStrategy
	}
	strategy, err := sanitize.ParseStrategy(name)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	res, err := sanitizeInput(in, sanitizeOptions{
		Strategy: strategy,
		Markdown: sanitizeMarkdown,
		Config:   cfg.Markdown,
	})
	if err != nil {
		return err
	}

	if _, err := io.WriteString(cmd.OutOrStdout(), res.HTML); err != nil {
		return err
	}

	if sanitizeReport {
		r := res.Report
		fmt.Fprintf(cmd.ErrOrStderr(),
			"strategy=%s removed=%d comments=%d discarded=%d unwrapped=%d attributes=%d links=%d duration=%s\n",
			res.Strategy, r.Removed(), r.Comments, r.Discarded, r.Unwrapped, r.Attributes, r.Links, res.Duration)
	}
	return nil
}

type sanitizeOptions struct {
	Strategy sanitize.Strategy
	Markdown bool
	Config   config.MarkdownConfig
}

func sanitizeInput(r io.Reader, opts sanitizeOptions) (sanitize.Result, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return sanitize.Result{}, fmt.Errorf("reading input: %w", err)
	}

	input := string(src)
	if opts.Markdown {
		doc, err := markdown.NewConverter(opts.Config).Convert(src)
		if err != nil {
			return sanitize.Result{}, err
		}
		input = doc.HTML
	}

	return sanitize.New(sanitize.WithStrategy(opts.Strategy)).SanitizeResult(input), nil
}
