package requestlog

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/watzon/markguard/internal/requestctx"
	"github.com/watzon/markguard/internal/sanitize"
)

type annotationKey struct{}

// annotation carries what a handler learned about the request back to the
// middleware. Handlers fill it through Annotate.
type annotation struct {
	mu       sync.Mutex
	strategy sanitize.Strategy
	removed  int
	errCode  string
}

// Annotate records the outcome of a sanitize call on the current request.
// It is a no-op outside Middleware.
func Annotate(ctx context.Context, res sanitize.Result) {
	a, ok := ctx.Value(annotationKey{}).(*annotation)
	if !ok {
		return
	}
	a.mu.Lock()
	a.strategy = res.Strategy
	a.removed += res.Report.Removed()
	a.mu.Unlock()
}

// AnnotateError records the error code returned to the client.
func AnnotateError(ctx context.Context, code string) {
	a, ok := ctx.Value(annotationKey{}).(*annotation)
	if !ok {
		return
	}
	a.mu.Lock()
	a.errCode = code
	a.mu.Unlock()
}

// Middleware records every API request in store.
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			a := &annotation{}
			ctx := context.WithValue(r.Context(), annotationKey{}, a)

			wrapped := &responseCapture{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)

			a.mu.Lock()
			entry := Entry{
				ID:         requestctx.RequestID(r.Context()),
				Timestamp:  start,
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     wrapped.status,
				DurationMS: float64(duration.Microseconds()) / 1000.0,
				BytesIn:    r.ContentLength,
				BytesOut:   int64(wrapped.bytes),
				ClientIP:   requestctx.ClientIP(r.Context()),
				Strategy:   string(a.strategy),
				Removed:    a.removed,
				ErrorCode:  a.errCode,
			}
			a.mu.Unlock()

			store.Add(entry)
		})
	}
}

func shouldSkip(path string) bool {
	return !strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/api/activity")
}

type responseCapture struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseCapture) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseCapture) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseCapture) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets live preview connections upgrade through the log.
func (w *responseCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
