package server

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/requestctx"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sanitize", nil)
	w := httptest.NewRecorder()

	RecoveryMiddleware(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RecoveryMiddleware(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRequestIDMiddleware(t *testing.T) {
	var (
		gotID   string
		gotTime time.Time
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = requestctx.RequestID(r.Context())
		gotTime = requestctx.RequestTime(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RequestIDMiddleware(handler).ServeHTTP(w, req)

	assert.NotEmpty(t, gotID)
	assert.Len(t, gotID, 36)
	assert.False(t, gotTime.IsZero())
	assert.Equal(t, gotID, w.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddleware_ExistingID(t *testing.T) {
	var gotID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = requestctx.RequestID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	w := httptest.NewRecorder()

	RequestIDMiddleware(handler).ServeHTTP(w, req)

	assert.Equal(t, "caller-chosen", gotID)
	assert.Equal(t, "caller-chosen", w.Header().Get("X-Request-ID"))
}

func TestClientIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		expected   string
	}{
		{
			name:       "remote address",
			remoteAddr: "192.0.2.10:51234",
			expected:   "192.0.2.10",
		},
		{
			name:       "real ip header",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			trustProxy: true,
			expected:   "203.0.113.7",
		},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.2"},
			trustProxy: true,
			expected:   "198.51.100.4",
		},
		{
			name:       "spoofed headers without a trusted proxy",
			remoteAddr: "192.0.2.10:51234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.4"},
			expected:   "192.0.2.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = requestctx.ClientIP(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			ClientIPMiddleware(tt.trustProxy)(handler).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sanitize", nil)
	w := httptest.NewRecorder()

	LoggingMiddleware(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		corsConfig    config.CORSConfig
		origin        string
		method        string
		expectOrigin  string
		expectCreds   bool
		expectStatus  int
		expectMethods string
		expectHeaders string
		expectMaxAge  string
		expectExposed string
	}{
		{
			name: "wildcard origin",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
			origin:       "http://example.com",
			method:       http.MethodGet,
			expectOrigin: "http://example.com",
			expectStatus: http.StatusOK,
		},
		{
			name: "listed origin",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000", "http://editor.test"},
			},
			origin:       "http://editor.test",
			method:       http.MethodPost,
			expectOrigin: "http://editor.test",
			expectStatus: http.StatusOK,
		},
		{
			name: "unlisted origin",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
			},
			origin:       "http://evil.test",
			method:       http.MethodGet,
			expectOrigin: "",
			expectStatus: http.StatusOK,
		},
		{
			name: "credentials",
			corsConfig: config.CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"http://localhost:3000"},
				AllowCredentials: true,
			},
			origin:       "http://localhost:3000",
			method:       http.MethodGet,
			expectOrigin: "http://localhost:3000",
			expectCreds:  true,
			expectStatus: http.StatusOK,
		},
		{
			name: "preflight",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         time.Hour,
			},
			origin:        "http://localhost:3000",
			method:        http.MethodOptions,
			expectOrigin:  "http://localhost:3000",
			expectStatus:  http.StatusNoContent,
			expectMethods: "GET, POST",
			expectHeaders: "Content-Type, X-Request-ID",
			expectMaxAge:  "3600",
		},
		{
			name: "exposed headers",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
				ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining"},
			},
			origin:        "http://localhost:3000",
			method:        http.MethodGet,
			expectOrigin:  "http://localhost:3000",
			expectStatus:  http.StatusOK,
			expectExposed: "X-Request-ID, X-RateLimit-Remaining",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/preview", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			CORSMiddleware(tt.corsConfig)(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectStatus, w.Code)
			assert.Equal(t, tt.expectOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectCreds {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
			assert.Equal(t, tt.expectMethods, w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, tt.expectHeaders, w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.expectMaxAge, w.Header().Get("Access-Control-Max-Age"))
			assert.Equal(t, tt.expectExposed, w.Header().Get("Access-Control-Expose-Headers"))
		})
	}
}

func TestMaxBodySizeMiddleware(t *testing.T) {
	const maxSize = int64(100)

	tests := []struct {
		name         string
		bodySize     int
		expectStatus int
	}{
		{"within limit", 50, http.StatusOK},
		{"at limit", 100, http.StatusOK},
		{"over limit", 150, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				_, _ = w.Write(body)
			})

			body := bytes.Repeat([]byte("a"), tt.bodySize)
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
			w := httptest.NewRecorder()

			MaxBodySizeMiddleware(maxSize)(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectStatus, w.Code)
		})
	}
}

func TestMaxBodySizeMiddleware_JSONError(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sanitize", strings.NewReader(strings.Repeat("x", 20)))
	w := httptest.NewRecorder()

	MaxBodySizeMiddleware(10)(handler).ServeHTTP(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "PAYLOAD_TOO_LARGE", body["code"])
}

func TestMaxBodySizeMiddleware_StreamedBody(t *testing.T) {
	var readErr error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("x", 20))))
	req.ContentLength = -1
	w := httptest.NewRecorder()

	MaxBodySizeMiddleware(10)(handler).ServeHTTP(w, req)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func TestCompressionMiddleware(t *testing.T) {
	mw, err := CompressionMiddleware()
	require.NoError(t, err)

	large := strings.Repeat("<p>sanitized</p>", 200)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(large))
	})

	t.Run("gzip when accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		mw(handler).ServeHTTP(w, req)

		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, large, string(got))
	})

	t.Run("identity without accept-encoding", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		mw(handler).ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, large, w.Body.String())
	})

	t.Run("small bodies stay plain", func(t *testing.T) {
		small := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		})
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		mw(small).ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, `{"status":"healthy"}`, w.Body.String())
	})

	t.Run("websocket upgrade bypasses gzip", func(t *testing.T) {
		var sawGzipWriter bool
		inspect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, isRecorder := w.(*httptest.ResponseRecorder)
			sawGzipWriter = !isRecorder
		})
		req := httptest.NewRequest(http.MethodGet, "/api/preview/live", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")

		mw(inspect).ServeHTTP(httptest.NewRecorder(), req)

		assert.False(t, sawGzipWriter)
	})
}

func TestMiddlewareChain(t *testing.T) {
	var (
		order     []string
		requestID string
		clientIP  string
	)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		requestID = requestctx.RequestID(r.Context())
		clientIP = requestctx.ClientIP(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	middlewares := []Middleware{
		RecoveryMiddleware,
		RequestIDMiddleware,
		ClientIPMiddleware(false),
		tag("first"),
		tag("second"),
	}

	var h http.Handler = handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, []string{"first", "second", "handler"}, order)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, "192.0.2.1", clientIP)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rw.status)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResponseWriter_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	n, err := rw.Write([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = rw.Write([]byte("world"))

	assert.Equal(t, 11, rw.bytes)
	assert.Equal(t, "hello world", rec.Body.String())
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}

	_, _, err := rw.Hijack()
	assert.Error(t, err)
}

func TestMetricsMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/publications/550e8400-e29b-41d4-a716-446655440000", nil)
	w := httptest.NewRecorder()

	MetricsMiddleware(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestMetricsMiddleware_SkipsMetricsEndpoint(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	MetricsMiddleware(handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/publications/550e8400-e29b-41d4-a716-446655440000", "/api/publications/:id"},
		{"/api/publications/550e8400-e29b-41d4-a716-446655440000/content", "/api/publications/:id/content"},
		{"/api/publications/42", "/api/publications/:id"},
		{"/api/sanitize", "/api/sanitize"},
		{"/api/publications/abc123", "/api/publications/abc123"},
		{"/health", "/health"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.path))
		})
	}
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"invalid-uuid", false},
		{"123", false},
		{"", false},
		{"550e8400-e29b-41d4-a716-44665544000", false},
		{"550e8400-e29b-41d4-a716-44665544000g", false},
		{"550e8400xe29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, isUUID(tt.input))
		})
	}
}

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"123", true},
		{"0", true},
		{"abc", false},
		{"12a", false},
		{"", false},
		{"-123", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, isNumeric(tt.input))
		})
	}
}
