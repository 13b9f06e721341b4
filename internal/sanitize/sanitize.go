package sanitize

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Strategy selects how input is sanitized.
type Strategy string

const (
	// StrategyAuto uses the tree strategy and falls back to the text
	// pipeline when a tree cannot be built for the input.
	StrategyAuto Strategy = "auto"
	StrategyTree Strategy = "tree"
	StrategyText Strategy = "text"
)

// ParseStrategy converts a configuration value into a Strategy. The empty
// string selects StrategyAuto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyTree:
		return StrategyTree, nil
	case StrategyText:
		return StrategyText, nil
	default:
		return "", fmt.Errorf("unknown sanitizer strategy %q", s)
	}
}

// Report counts what a single sanitize call removed or rewrote.
type Report struct {
	Comments   int `json:"comments"`
	Discarded  int `json:"discarded"`
	Unwrapped  int `json:"unwrapped"`
	Attributes int `json:"attributes"`
	Links      int `json:"links"`
	Escaped    int `json:"escaped,omitempty"`
	Passes     int `json:"passes,omitempty"`
}

// Removed returns the number of comments, elements and attributes dropped.
func (r Report) Removed() int {
	return r.Comments + r.Discarded + r.Unwrapped + r.Attributes
}

func (r *Report) add(o Report) {
	r.Comments += o.Comments
	r.Discarded += o.Discarded
	r.Unwrapped += o.Unwrapped
	r.Attributes += o.Attributes
	r.Escaped += o.Escaped
}

// Result is the outcome of one sanitize call.
type Result struct {
	HTML     string        `json:"html"`
	Strategy Strategy      `json:"strategy"`
	Report   Report        `json:"report"`
	Duration time.Duration `json:"-"`
}

// Sanitizer is the single entry point for turning untrusted HTML into markup
// that only contains allowlisted tags and attributes. A Sanitizer holds no
// per-call state and is safe for concurrent use.
type Sanitizer struct {
	policy   *Policy
	strategy Strategy
	observer func(Result)
	logger   *zerolog.Logger
}

type Option func(*Sanitizer)

func WithStrategy(strategy Strategy) Option {
	return func(s *Sanitizer) {
		s.strategy = strategy
	}
}

func WithPolicy(policy *Policy) Option {
	return func(s *Sanitizer) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithObserver registers a callback invoked after every call, e.g. to record
// metrics. The callback must not retain the Result's HTML beyond the call.
func WithObserver(fn func(Result)) Option {
	return func(s *Sanitizer) {
		s.observer = fn
	}
}

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sanitizer) {
		s.logger = &logger
	}
}

func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		policy:   DefaultPolicy(),
		strategy: StrategyAuto,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultSanitizer = New()

// SanitizeHTML sanitizes html with the default policy and strategy.
func SanitizeHTML(html string) string {
	return defaultSanitizer.Sanitize(html)
}

// Strategy returns the configured strategy.
func (s *Sanitizer) Strategy() Strategy {
	return s.strategy
}

// Sanitize returns the sanitized form of html. It never fails; input that
// cannot be processed yields an empty string.
func (s *Sanitizer) Sanitize(html string) string {
	return s.SanitizeResult(html).HTML
}

// SanitizeResult is Sanitize with the strategy used and a removal report.
func (s *Sanitizer) SanitizeResult(html string) Result {
	start := time.Now()

	res := s.run(html)
	res.Duration = time.Since(start)

	s.log().Debug().
		Str("strategy", string(res.Strategy)).
		Int("input_bytes", len(html)).
		Int("output_bytes", len(res.HTML)).
		Int("removed", res.Report.Removed()).
		Dur("duration", res.Duration).
		Msg("Sanitized HTML")

	if s.observer != nil {
		s.observer(res)
	}
	return res
}

func (s *Sanitizer) run(input string) Result {
	if s.strategy == StrategyText {
		return s.runText(input)
	}

	out, report, err := s.runTree(input)
	if err == nil {
		return Result{HTML: out, Strategy: StrategyTree, Report: report}
	}

	if s.strategy == StrategyTree {
		s.log().Error().Err(err).Msg("Tree sanitizer failed, returning empty output")
		return Result{Strategy: StrategyTree, Report: report}
	}

	s.log().Warn().Err(err).Msg("Tree sanitizer failed, falling back to text pipeline")
	return s.runText(input)
}

func (s *Sanitizer) runTree(input string) (out string, report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("tree sanitizer panic: %v", r)
		}
	}()
	return sanitizeTree(input, s.policy)
}

func (s *Sanitizer) runText(input string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error().Interface("panic", r).Msg("Text sanitizer failed, returning empty output")
			res = Result{Strategy: StrategyText}
		}
	}()
	out, report := sanitizeText(input, s.policy)
	return Result{HTML: out, Strategy: StrategyText, Report: report}
}

func (s *Sanitizer) log() *zerolog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return &log.Logger
}
