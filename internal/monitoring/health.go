package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a probed backend. A failing critical dependency marks the
// service down; a failing optional one only degrades it.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Critical bool
}

// HealthReport is the result of one probe round.
type HealthReport struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// HealthChecker probes dependencies on demand and, via Run, periodically.
type HealthChecker struct {
	deps    []Dependency
	metrics *Metrics
	clock   clockwork.Clock
	timeout time.Duration

	mu   sync.RWMutex
	last *HealthReport
}

// HealthOption configures a HealthChecker.
type HealthOption func(*HealthChecker)

// WithHealthClock overrides the clock used for tickers and timestamps.
func WithHealthClock(c clockwork.Clock) HealthOption {
	return func(h *HealthChecker) { h.clock = c }
}

// WithProbeTimeout bounds each dependency ping.
func WithProbeTimeout(d time.Duration) HealthOption {
	return func(h *HealthChecker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHealthChecker creates a checker for deps. metrics may be nil.
func NewHealthChecker(metrics *Metrics, deps []Dependency, opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{
		deps:    deps,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		timeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Check pings every dependency and returns the aggregated report.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:       StatusOK,
		Dependencies: make(map[string]string, len(h.deps)),
		CheckedAt:    h.clock.Now().UTC(),
	}

	for _, d := range h.deps {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := d.Pinger.Ping(pctx)
		cancel()

		h.metrics.SetDependencyUp(d.Name, err == nil)
		if err == nil {
			report.Dependencies[d.Name] = StatusOK
			continue
		}

		zap.L().Warn("monitoring: dependency probe failed",
			zap.String("dependency", d.Name),
			zap.Error(err),
		)
		report.Dependencies[d.Name] = StatusDown
		if d.Critical {
			report.Status = StatusDown
		} else if report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}

	h.mu.Lock()
	h.last = &report
	h.mu.Unlock()

	return report
}

// Last returns the most recent report, or nil before the first probe.
func (h *HealthChecker) Last() *HealthReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Run probes every interval until ctx is cancelled.
func (h *HealthChecker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	log := zap.L().With(zap.String("component", "monitoring.health"))
	log.Info("starting health checker", zap.Duration("interval", interval))

	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.Chan():
			report := h.Check(ctx)
			log.Debug("health probe complete", zap.String("status", report.Status))
		}
	}
}
