package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	defaultCheckTimeout  = 3 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck tests one dependency. A nil error means ready.
type ReadinessCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	build   BuildInfo
	clock   func() time.Time
	timeout time.Duration
	checks  []namedCheck
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the version metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a dependency check run by /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks = append(h.checks, namedCheck{name: name, check: check})
		}
	}
}

// WithReadinessTimeout bounds each readiness check.
func WithReadinessTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// Healthz reports liveness only; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      healthStatusOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs every registered check and answers 503 when any of them fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	status := healthStatusOK
	checks := make(map[string]map[string]any, len(h.checks))
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		start := h.clock()
		err := c.check(ctx)
		cancel()

		result := map[string]any{
			"status":    healthStatusOK,
			"latencyMs": h.clock().Sub(start).Milliseconds(),
		}
		if err != nil {
			status = healthStatusDegraded
			result["status"] = healthStatusDegraded
			result["error"] = err.Error()
		}
		checks[c.name] = result
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"checked":   names,
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	})
}
