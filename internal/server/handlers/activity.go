package handlers

import (
	"net/http"
	"time"

	"github.com/watzon/markguard/internal/server/requestlog"
)

type ActivityHandler struct {
	store *requestlog.Store
}

func NewActivityHandler(store *requestlog.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

type ActivityResponse struct {
	requestlog.ListResult
	Stats requestlog.Stats `json:"stats"`
}

// List handles GET /api/activity. Supported filters: method, path,
// strategy, min_status, max_status, min_removed, since (RFC 3339), limit
// and offset.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := requestlog.FilterOptions{
		Method:     q.Get("method"),
		PathPrefix: q.Get("path"),
		Strategy:   q.Get("strategy"),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"min_status", &opts.MinStatus},
		{"max_status", &opts.MaxStatus},
		{"min_removed", &opts.MinRemoved},
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	}
	for _, p := range ints {
		v, err := queryInt(r, p.name, 0)
		if err != nil || v < 0 {
			BadRequest(w, r, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = v
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			BadRequest(w, r, "since must be an RFC 3339 timestamp")
			return
		}
		opts.Since = t
	}

	JSON(w, http.StatusOK, ActivityResponse{
		ListResult: h.store.List(opts),
		Stats:      h.store.Stats(),
	})
}
