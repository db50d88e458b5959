// Package health implements the Gateway's liveness/readiness report
// (spec §6 GET /api/health), grounded on the original Python
// gateway/health.py's gateway/channels/agent check triad.
package health

import (
	"fmt"
	"time"

	"github.com/nextlevelbuilder/gochat-gateway/internal/bridge"
	"github.com/nextlevelbuilder/gochat-gateway/internal/channels"
)

// Level is the closed set of health states a single check can report.
type Level string

const (
	Healthy   Level = "healthy"
	Degraded  Level = "degraded"
	Unhealthy Level = "unhealthy"
)

// Check is a single named health check result.
type Check struct {
	Name      string  `json:"name"`
	Status    Level   `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Status is the aggregate report served at /api/health.
type Status struct {
	Status        Level            `json:"status"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Timestamp     time.Time        `json:"timestamp"`
	Channels      map[string]bool  `json:"channels"`
	Checks        []Check          `json:"checks"`
}

// Checker composes gateway/channel/agent checks into one report.
type Checker struct {
	startedAt    time.Time
	manager      *channels.Manager
	bridge       *bridge.Bridge
	shuttingDown func() bool
}

// New creates a Checker. shuttingDown reports whether the gateway has
// begun graceful shutdown; pass nil if that never applies.
func New(manager *channels.Manager, b *bridge.Bridge, shuttingDown func() bool) *Checker {
	return &Checker{
		startedAt:    time.Now(),
		manager:      manager,
		bridge:       b,
		shuttingDown: shuttingDown,
	}
}

// Check runs all checks and aggregates them into one Status. The overall
// status is the least-healthy of the constituent checks.
func (c *Checker) Check() Status {
	checks := []Check{c.checkGateway()}
	checks = append(checks, c.checkChannels()...)
	checks = append(checks, c.checkAgent())

	overall := Healthy
	for _, chk := range checks {
		switch chk.Status {
		case Unhealthy:
			overall = Unhealthy
		case Degraded:
			if overall == Healthy {
				overall = Degraded
			}
		}
	}

	return Status{
		Status:        overall,
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		Timestamp:     time.Now(),
		Channels:      c.manager.ChannelStatuses(),
		Checks:        checks,
	}
}

func (c *Checker) checkGateway() Check {
	if c.shuttingDown != nil && c.shuttingDown() {
		return Check{Name: "gateway", Status: Unhealthy, Message: "gateway is shutting down"}
	}
	return Check{Name: "gateway", Status: Healthy, Message: "gateway running"}
}

func (c *Checker) checkChannels() []Check {
	statuses := c.manager.ChannelStatuses()
	if len(statuses) == 0 {
		return []Check{{Name: "channels", Status: Degraded, Message: "no channels registered"}}
	}
	var checks []Check
	for name, running := range statuses {
		if running {
			checks = append(checks, Check{Name: "channel:" + name, Status: Healthy, Message: "connected"})
		} else {
			checks = append(checks, Check{Name: "channel:" + name, Status: Unhealthy, Message: "not running"})
		}
	}
	return checks
}

func (c *Checker) checkAgent() Check {
	if c.bridge == nil {
		return Check{Name: "agent", Status: Degraded, Message: "agent bridge not initialized"}
	}
	count := c.bridge.GetActiveSessionCount()
	return Check{
		Name:    "agent",
		Status:  Healthy,
		Message: fmt.Sprintf("agent bridge available, %d active sessions", count),
	}
}
