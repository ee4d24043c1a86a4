package http

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/sawpanic/cryptolens/internal/persistence"
)

// BreakerState is implemented by guarded upstream clients.
type BreakerState interface {
	State() string
}

// HealthHandler provides system health status endpoint
type HealthHandler struct {
	database  persistence.RepositoryHealth
	providers map[string]BreakerState
	startTime time.Time
	version   string
	now       func() time.Time
}

// NewHealthHandler creates a new health handler. database may be nil when
// running without Postgres.
func NewHealthHandler(database persistence.RepositoryHealth, providers map[string]BreakerState, version string) *HealthHandler {
	return &HealthHandler{
		database:  database,
		providers: providers,
		startTime: time.Now(),
		version:   version,
		now:       time.Now,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message"`
}

// Check builds the health report.
func (h *HealthHandler) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckResult)

	if h.database != nil {
		hc := h.database.Health(ctx)
		switch {
		case !hc.Healthy:
			checks["database"] = CheckResult{Status: "fail", Message: strings.Join(hc.Errors, "; ")}
		case len(hc.Errors) > 0:
			checks["database"] = CheckResult{Status: "warn", Message: strings.Join(hc.Errors, "; ")}
		default:
			checks["database"] = CheckResult{Status: "pass", Message: "ok"}
		}
	}

	for name, p := range h.providers {
		state := p.State()
		status := "pass"
		switch state {
		case "open":
			status = "fail"
		case "half-open":
			status = "warn"
		}
		checks["provider:"+name] = CheckResult{Status: status, Message: "circuit " + state}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return HealthResponse{
		Status:    overallStatus(checks),
		Timestamp: h.now().UTC(),
		Uptime:    h.now().Sub(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
		Checks: checks,
	}
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Check(r.Context())
	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// overallStatus: a failing database is unhealthy, any other failure or
// warning is degraded.
func overallStatus(checks map[string]CheckResult) string {
	status := "healthy"
	for name, c := range checks {
		switch {
		case c.Status == "fail" && name == "database":
			return "unhealthy"
		case c.Status != "pass":
			status = "degraded"
		}
	}
	return status
}
