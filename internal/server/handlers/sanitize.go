package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/watzon/markguard/internal/sanitize"
	"github.com/watzon/markguard/internal/server/requestlog"
)

type SanitizeRequest struct {
	HTML     string `json:"html"`
	Strategy string `json:"strategy,omitempty"`
}

type SanitizeResponse struct {
	HTML     string            `json:"html"`
	Strategy sanitize.Strategy `json:"strategy"`
	Report   sanitize.Report   `json:"report"`
}

// Sanitize handles POST /api/sanitize. The body is either JSON
// ({"html": "...", "strategy": "tree"}) or raw HTML, in which case the
// strategy comes from the query string.
func (h *Handlers) Sanitize(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest

	if mediaType(r) == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BodyError(w, r, err)
			return
		}
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			BodyError(w, r, err)
			return
		}
		req.HTML = string(body)
		req.Strategy = r.URL.Query().Get("strategy")
	}

	s, err := h.sanitizer(req.Strategy)
	if err != nil {
		BadRequest(w, r, err.Error())
		return
	}

	res := s.SanitizeResult(req.HTML)
	requestlog.Annotate(r.Context(), res)

	JSON(w, http.StatusOK, SanitizeResponse{
		HTML:     res.HTML,
		Strategy: res.Strategy,
		Report:   res.Report,
	})
}
