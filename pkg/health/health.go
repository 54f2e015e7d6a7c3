// Package health runs registered dependency checks in parallel and exposes
// the aggregate as Kubernetes liveness/readiness handlers.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"
)

// readyCheckTimeout bounds one readiness pass across all checks.
const readyCheckTimeout = 5 * time.Second

// Status is the health state of one component or of the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// severity orders statuses for aggregation; higher is worse.
func (s Status) severity() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is the result of one check. Latency is filled in by the
// Checker.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Up reports a healthy component.
func Up() ComponentHealth {
	return ComponentHealth{Status: StatusUp}
}

// Degraded reports a component running in reduced form, a disabled cache
// for example. Degraded components keep the instance in rotation.
func Degraded(msg string) ComponentHealth {
	return ComponentHealth{Status: StatusDegraded, Message: msg}
}

// Down reports a failed component.
func Down(err error) ComponentHealth {
	return ComponentHealth{Status: StatusDown, Message: err.Error()}
}

// Report aggregates all component results; Status is the worst of them.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker holds named checks and runs them concurrently on demand.
type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every registered check concurrently and reports the worst
// status seen. An empty Checker reports up.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.runCheck(ctx, name, check)
			mu.Lock()
			report.Components[name] = result
			if result.Status.severity() > report.Status.severity() {
				report.Status = result.Status
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	report.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return report
}

// runCheck times one probe and logs anything that is not plain up.
func (c *Checker) runCheck(ctx context.Context, name string, check Check) ComponentHealth {
	start := time.Now()
	result := check(ctx)
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	if result.Status != StatusUp {
		c.logger.Warn("dependency unhealthy",
			"check", name,
			"status", result.Status,
			"message", result.Message)
	}
	return result
}

// LiveHandler answers liveness probes. It never runs checks: liveness asks
// whether the process should be restarted, not whether dependencies are up.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"alive"}`))
	}
}

// ReadyHandler answers readiness probes with the full report. A degraded
// report still answers 200: degraded components (an optional cache, say)
// reduce capability without making responses incorrect, so the instance
// stays in rotation and the report body carries the detail.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
