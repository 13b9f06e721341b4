// Package publish turns Markdown into stored, target-ready publications.
package publish

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/markguard/internal/markdown"
	"github.com/watzon/markguard/internal/sanitize"
)

// Rendered is a converted and sanitized document that has not been stored.
type Rendered struct {
	Document *markdown.Document
	Result   sanitize.Result
}

// Service runs the publishing pipeline: convert, sanitize, adapt, store.
type Service struct {
	converter *markdown.Converter
	sanitizer *sanitize.Sanitizer
	adapter   *Adapter
	store     *Store
}

func NewService(converter *markdown.Converter, sanitizer *sanitize.Sanitizer, adapter *Adapter, store *Store) *Service {
	return &Service{
		converter: converter,
		sanitizer: sanitizer,
		adapter:   adapter,
		store:     store,
	}
}

func (s *Service) Store() *Store {
	return s.store
}

// Render converts src and sanitizes the result. It is what a preview shows.
func (s *Service) Render(src []byte) (*Rendered, error) {
	doc, err := s.converter.Convert(src)
	if err != nil {
		return nil, err
	}
	return &Rendered{
		Document: doc,
		Result:   s.sanitizer.SanitizeResult(doc.HTML),
	}, nil
}

// Publish renders src, adapts it for the publishing target and stores it.
func (s *Service) Publish(ctx context.Context, src []byte) (*Publication, error) {
	rendered, err := s.Render(src)
	if err != nil {
		return nil, err
	}

	adapted, err := s.adapter.Adapt(rendered.Result.HTML)
	if err != nil {
		return nil, err
	}

	fm := rendered.Document.FrontMatter
	p := &Publication{
		Title:       rendered.Document.Title,
		Description: fm.Description,
		Tags:        fm.Tags,
		Strategy:    string(rendered.Result.Strategy),
		Removed:     rendered.Result.Report.Removed(),
	}

	if err := s.store.Create(ctx, p, adapted); err != nil {
		return nil, fmt.Errorf("publishing document: %w", err)
	}

	log.Info().
		Str("id", p.ID).
		Str("title", p.Title).
		Int64("size", p.Size).
		Int("removed", p.Removed).
		Msg("Document published")

	return p, nil
}
