package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/watzon/markguard/internal/database"
	"github.com/watzon/markguard/internal/storage"
)

type HealthHandlers struct {
	db      *database.DB
	backend storage.Backend
	bucket  string
	version string
}

func NewHealthHandlers(db *database.DB, backend storage.Backend, bucket, version string) *HealthHandlers {
	return &HealthHandlers{
		db:      db,
		backend: backend,
		bucket:  bucket,
		version: version,
	}
}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

var startTime = time.Now()

const healthCheckTimeout = 5 * time.Second

// healthProbeKey is never written; Exists on it only proves the backend
// answers.
const healthProbeKey = ".health"

// Health reports the database and storage backend. A failing component
// marks the service degraded, never unhealthy: sanitize and preview do not
// depend on either.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]ComponentHealth{
		"sanitizer": {Status: HealthStatusHealthy},
	}
	overall := HealthStatusHealthy

	if h.db != nil {
		components["database"] = h.checkDatabase(ctx)
	}
	if h.backend != nil {
		components["storage"] = h.checkStorage(ctx)
	}

	for _, c := range components {
		if c.Status != HealthStatusHealthy {
			overall = HealthStatusDegraded
		}
	}

	JSON(w, http.StatusOK, HealthResponse{
		Status:     overall,
		Version:    h.version,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	})
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.db.Ping(ctx)
	latency := time.Since(start)

	h.db.ReportStats()

	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Latency: latency.String(),
			Message: "database ping failed",
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Latency: latency.String(),
	}
}

func (h *HealthHandlers) checkStorage(ctx context.Context) ComponentHealth {
	start := time.Now()
	_, err := h.backend.Exists(ctx, h.bucket, healthProbeKey)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Latency: latency.String(),
			Message: "storage backend unavailable",
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Latency: latency.String(),
	}
}

func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "database unavailable",
			})
			return
		}
	}

	JSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

func (h *HealthHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := map[string]any{
		"runtime": RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     m.Alloc,
			MemSys:       m.Sys,
			NumGC:        m.NumGC,
		},
		"uptime": time.Since(startTime).Round(time.Second).String(),
	}

	if h.db != nil {
		dbStats := h.db.Stats()
		resp["database"] = map[string]any{
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
			"max_open":         dbStats.MaxOpenConnections,
		}
	}

	JSON(w, http.StatusOK, resp)
}
