package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/watzon/markguard/internal/markdown"
	"github.com/watzon/markguard/internal/metrics"
	"github.com/watzon/markguard/internal/publish"
	"github.com/watzon/markguard/internal/sanitize"
	"github.com/watzon/markguard/internal/server/requestlog"
)

type PreviewResponse struct {
	HTML        string               `json:"html"`
	Title       string               `json:"title,omitempty"`
	FrontMatter markdown.FrontMatter `json:"front_matter"`
	Strategy    sanitize.Strategy    `json:"strategy"`
	Report      sanitize.Report      `json:"report"`
}

func previewResponse(rendered *publish.Rendered) PreviewResponse {
	return PreviewResponse{
		HTML:        rendered.Result.HTML,
		Title:       rendered.Document.Title,
		FrontMatter: rendered.Document.FrontMatter,
		Strategy:    rendered.Result.Strategy,
		Report:      rendered.Result.Report,
	}
}

// Preview handles POST /api/preview.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	src, err := h.readMarkdown(r)
	if err != nil {
		markdownError(w, r, err)
		return
	}

	rendered, err := h.service.Render(src)
	if err != nil {
		markdownError(w, r, err)
		return
	}
	requestlog.Annotate(r.Context(), rendered.Result)

	JSON(w, http.StatusOK, previewResponse(rendered))
}

type livePreviewError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const livePreviewWriteTimeout = 10 * time.Second

// LivePreview handles GET /api/preview/live. Every text message from the
// client is a complete Markdown document; every reply is the rendered
// preview or an error object.
func (h *Handlers) LivePreview(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}
	defer conn.CloseNow()

	if h.maxDocumentSize > 0 {
		conn.SetReadLimit(h.maxDocumentSize)
	}

	metrics.IncrementPreviewConnections()
	defer metrics.DecrementPreviewConnections()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Debug().Err(err).Msg("Live preview connection closed")
			}
			return
		}

		var reply any
		if typ != websocket.MessageText {
			reply = livePreviewError{Error: "expected a text message", Code: "BAD_MESSAGE"}
		} else if rendered, err := h.service.Render(data); err != nil {
			reply = liveError(err)
		} else {
			reply = previewResponse(rendered)
		}

		if err := writeJSON(ctx, conn, reply); err != nil {
			log.Debug().Err(err).Msg("Failed to write live preview")
			return
		}
	}
}

func liveError(err error) livePreviewError {
	switch {
	case errors.Is(err, markdown.ErrEmptyDocument):
		return livePreviewError{Error: "Document is empty", Code: "EMPTY_DOCUMENT"}
	case errors.Is(err, markdown.ErrDocumentTooLarge):
		return livePreviewError{Error: "Document too large", Code: "PAYLOAD_TOO_LARGE"}
	default:
		return livePreviewError{Error: err.Error(), Code: "RENDER_FAILED"}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, livePreviewWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
