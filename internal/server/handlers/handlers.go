// Package handlers implements the HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/watzon/markguard/internal/markdown"
	"github.com/watzon/markguard/internal/metrics"
	"github.com/watzon/markguard/internal/publish"
	"github.com/watzon/markguard/internal/sanitize"
)

// Handlers serves the sanitize, preview and publishing endpoints.
type Handlers struct {
	sanitizers      map[sanitize.Strategy]*sanitize.Sanitizer
	defaultStrategy sanitize.Strategy
	service         *publish.Service
	maxDocumentSize int64
}

// New builds the handlers. strategy is the default for requests that do not
// name one.
func New(service *publish.Service, strategy sanitize.Strategy, maxDocumentSize int64) *Handlers {
	h := &Handlers{
		sanitizers:      make(map[sanitize.Strategy]*sanitize.Sanitizer, 3),
		defaultStrategy: strategy,
		service:         service,
		maxDocumentSize: maxDocumentSize,
	}
	for _, s := range []sanitize.Strategy{sanitize.StrategyAuto, sanitize.StrategyTree, sanitize.StrategyText} {
		h.sanitizers[s] = sanitize.New(
			sanitize.WithStrategy(s),
			sanitize.WithObserver(metrics.ObserveSanitize),
		)
	}
	return h
}

func (h *Handlers) sanitizer(name string) (*sanitize.Sanitizer, error) {
	if name == "" {
		return h.sanitizers[h.defaultStrategy], nil
	}
	strategy, err := sanitize.ParseStrategy(name)
	if err != nil {
		return nil, err
	}
	return h.sanitizers[strategy], nil
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

type markdownRequest struct {
	Markdown string `json:"markdown"`
}

var errMissingFile = errors.New(`multipart request has no "file" part`)

// readMarkdown accepts a multipart upload in the "file" field, a JSON body
// of the form {"markdown": "..."}, or a raw text body.
func (h *Handlers) readMarkdown(r *http.Request) ([]byte, error) {
	switch mt := mediaType(r); {
	case mt == "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxDocumentSize); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errMissingFile
		}
		defer file.Close()
		return h.readLimited(file)

	case mt == "application/json":
		var req markdownRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return []byte(req.Markdown), nil

	default:
		return io.ReadAll(r.Body)
	}
}

func (h *Handlers) readLimited(r io.Reader) ([]byte, error) {
	if h.maxDocumentSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, h.maxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxDocumentSize {
		return nil, markdown.ErrDocumentTooLarge
	}
	return data, nil
}

// markdownError maps conversion and upload failures to responses.
func markdownError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		ErrorWithDetails(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Document too large",
			map[string]int64{"limit": tooLarge.Limit})
	case errors.Is(err, markdown.ErrDocumentTooLarge):
		Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Document too large")
	case errors.Is(err, markdown.ErrEmptyDocument):
		Error(w, r, http.StatusUnprocessableEntity, "EMPTY_DOCUMENT", "Document is empty")
	case errors.Is(err, markdown.ErrInvalidFrontMatter):
		Error(w, r, http.StatusUnprocessableEntity, "INVALID_FRONT_MATTER", err.Error())
	case errors.Is(err, errMissingFile):
		BadRequest(w, r, err.Error())
	default:
		BadRequest(w, r, "Failed to read document")
	}
}

func isMarkdownError(err error) bool {
	return errors.Is(err, markdown.ErrEmptyDocument) ||
		errors.Is(err, markdown.ErrDocumentTooLarge) ||
		errors.Is(err, markdown.ErrInvalidFrontMatter)
}
