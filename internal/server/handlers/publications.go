package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/watzon/markguard/internal/publish"
)

type PublicationListResponse struct {
	Publications []*publish.Publication `json:"publications"`
	Total        int                    `json:"total"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Publish handles POST /api/publish.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	src, err := h.readMarkdown(r)
	if err != nil {
		markdownError(w, r, err)
		return
	}

	p, err := h.service.Publish(r.Context(), src)
	if err != nil {
		switch {
		case errors.Is(err, publish.ErrAdapt):
			Error(w, r, http.StatusUnprocessableEntity, "ADAPT_FAILED", "Document could not be adapted for publishing")
		case isMarkdownError(err):
			markdownError(w, r, err)
		default:
			log.Error().Err(err).Msg("Failed to publish document")
			InternalError(w, r, "Failed to publish document")
		}
		return
	}

	w.Header().Set("Location", "/api/publications/"+p.ID)
	JSON(w, http.StatusCreated, p)
}

// ListPublications handles GET /api/publications?limit=&offset=.
func (h *Handlers) ListPublications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		BadRequest(w, r, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		BadRequest(w, r, "offset must be a non-negative integer")
		return
	}

	pubs, total, err := h.service.Store().List(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list publications")
		InternalError(w, r, "Failed to list publications")
		return
	}

	JSON(w, http.StatusOK, PublicationListResponse{
		Publications: pubs,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}

// GetPublication handles GET /api/publications/{id}.
func (h *Handlers) GetPublication(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Store().Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, publish.ErrNotFound) {
		NotFound(w, r, "Publication not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to get publication")
		InternalError(w, r, "Failed to get publication")
		return
	}

	JSON(w, http.StatusOK, p)
}

// PublicationContent handles GET /api/publications/{id}/content and serves
// the stored HTML.
func (h *Handlers) PublicationContent(w http.ResponseWriter, r *http.Request) {
	p, rc, err := h.service.Store().GetContent(r.Context(), r.PathValue("id"))
	if errors.Is(err, publish.ErrNotFound) {
		NotFound(w, r, "Publication not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read publication")
		InternalError(w, r, "Failed to read publication")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src http: https:; sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("id", p.ID).Msg("Failed to stream publication")
	}
}

// DeletePublication handles DELETE /api/publications/{id}.
func (h *Handlers) DeletePublication(w http.ResponseWriter, r *http.Request) {
	err := h.service.Store().Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, publish.ErrNotFound) {
		NotFound(w, r, "Publication not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete publication")
		InternalError(w, r, "Failed to delete publication")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
