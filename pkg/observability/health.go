package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is the connectivity probe a dependency exposes for readiness
// checks. session.RedisStore and *sql.DB (via PingContext) both satisfy it
// through small adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthChecker provides liveness and readiness probes.
type HealthChecker struct {
	dependencies map[string]Pinger
}

// NewHealthChecker creates a health checker over named dependencies.
func NewHealthChecker(dependencies map[string]Pinger) *HealthChecker {
	return &HealthChecker{dependencies: dependencies}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ms,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Liveness always reports healthy while the process is running.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness checks every dependency and reports 503 when any is down.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check pings all registered dependencies.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	for name, dep := range h.dependencies {
		start := time.Now()
		depStatus := DependencyStatus{Status: StatusHealthy}

		if err := dep.Ping(ctx); err != nil {
			depStatus.Status = StatusUnhealthy
			depStatus.Message = err.Error()
			status.Status = StatusUnhealthy
		}
		depStatus.Latency = time.Since(start)

		status.Dependencies[name] = depStatus
	}

	return status
}
