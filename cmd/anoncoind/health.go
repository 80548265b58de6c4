// health.go - Probes of the store, the ledger and the mempool.
package main

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the outcome of a probe, ordered from best to worst.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// errDegraded marks a probe failure that leaves the daemon usable.
var errDegraded = errors.New("degraded")

func (s HealthStatus) rank() int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

func statusOf(err error) HealthStatus {
	switch {
	case err == nil:
		return Healthy
	case errors.Is(err, errDegraded):
		return Degraded
	default:
		return Unhealthy
	}
}

// ComponentHealth is the last result of one probe.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth reports every probe together with the chain height.
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
	Height        int32             `json:"height"`
}

// HealthChecker runs its probes on demand, in name order.
type HealthChecker struct {
	mu      sync.Mutex
	probes  map[string]func() error
	height  func() int32
	started time.Time
	version string
}

func NewHealthChecker(version string, height func() int32) *HealthChecker {
	return &HealthChecker{
		probes:  make(map[string]func() error),
		height:  height,
		started: time.Now(),
		version: version,
	}
}

// RegisterComponent installs probe under name, replacing any earlier one.
// A probe returning an error wrapping errDegraded marks the component
// degraded; any other error marks it unhealthy.
func (hc *HealthChecker) RegisterComponent(name string, probe func() error) {
	hc.mu.Lock()
	hc.probes[name] = probe
	hc.mu.Unlock()
}

func (hc *HealthChecker) CheckHealth() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	names := make([]string, 0, len(hc.probes))
	for name := range hc.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &SystemHealth{
		OverallStatus: Healthy,
		Components:    make([]ComponentHealth, 0, len(names)),
		Uptime:        time.Since(hc.started),
		Version:       hc.version,
		Height:        hc.height(),
	}
	for _, name := range names {
		start := time.Now()
		err := hc.probes[name]()
		c := ComponentHealth{
			Name:      name,
			Status:    statusOf(err),
			Message:   "OK",
			LastCheck: time.Now(),
			Latency:   time.Since(start),
		}
		if err != nil {
			c.Message = err.Error()
		}
		if c.Status.rank() > report.OverallStatus.rank() {
			report.OverallStatus = c.Status
		}
		report.Components = append(report.Components, c)
	}
	report.Timestamp = time.Now()
	return report
}

// HealthCheckResponse wraps a report for the /health endpoint.
type HealthCheckResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var healthReplies = map[HealthStatus][2]string{
	Healthy:   {"success", "System is healthy"},
	Degraded:  {"warning", "System is degraded"},
	Unhealthy: {"error", "System is unhealthy"},
}

func CreateHealthResponse(health *SystemHealth) *HealthCheckResponse {
	r := healthReplies[health.OverallStatus]
	return &HealthCheckResponse{Status: r[0], Message: r[1], Data: health}
}
