package handlers

import (
	"net/http"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
)

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthReporter wires the dependency probe set behind /readyz.
func WithHealthReporter(reporter repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.reporter = reporter
	}
}

// WithHealthBuild records the build identity reported by both endpoints.
func WithHealthBuild(version, environment string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
		h.environment = environment
	}
}

// WithHealthClock injects a custom clock primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	reporter    repositories.HealthRepository
	version     string
	environment string
	started     time.Time
	now         func() time.Time
}

// NewHealthHandlers constructs health handlers with optional overrides.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		version:     "dev",
		environment: "local",
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.started = h.now().UTC()
	return h
}

// Healthz reports process liveness without touching any dependency.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.version,
		"environment": h.environment,
		"uptime":      now.Sub(h.started).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

// Readyz evaluates dependency probes and reports 503 when a critical
// dependency is down.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	if h.reporter == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status":    domain.HealthStatusOK,
			"timestamp": now.Format(time.RFC3339),
		})
		return
	}

	report, err := h.reporter.Collect(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": domain.HealthStatusError,
			"error":  err.Error(),
		})
		return
	}

	checks := make(map[string]map[string]any, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":    check.Status,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
			details = append(details, name+": "+check.Error)
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status":      report.Status,
		"version":     h.version,
		"environment": h.environment,
		"checks":      checks,
		"details":     details,
		"timestamp":   now.Format(time.RFC3339),
	})
}
