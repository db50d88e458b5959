// Package sessioncleaner periodically garbage-collects idle bridge sessions
// (spec §4.L).
package sessioncleaner

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// SessionSource is the subset of the Agent Bridge the cleaner needs.
type SessionSource interface {
	GetIdleSessions(maxIdle time.Duration) []string
	RemoveSession(key string)
}

const defaultCheckInterval = time.Hour

// Cleaner runs the periodic idle-session sweep.
type Cleaner struct {
	source        SessionSource
	maxIdle       time.Duration
	checkInterval time.Duration
	cronSchedule  string // optional gronx expression overriding checkInterval

	stopCh chan struct{}
}

// New creates a Cleaner. A zero checkInterval falls back to the spec
// default of 3600s; cronSchedule, if non-empty, overrides the fixed
// interval with a cron-style schedule (supplemented feature, see
// SPEC_FULL.md Domain Stack).
func New(source SessionSource, maxIdle, checkInterval time.Duration, cronSchedule string) *Cleaner {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &Cleaner{
		source:        source,
		maxIdle:       maxIdle,
		checkInterval: checkInterval,
		cronSchedule:  cronSchedule,
		stopCh:        make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (c *Cleaner) Start(ctx context.Context) {
	go c.loop(ctx)
}

func (c *Cleaner) loop(ctx context.Context) {
	if c.cronSchedule != "" {
		c.loopCron(ctx)
		return
	}
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// loopCron ticks every minute and fires the sweep whenever cronSchedule is
// due, per gronx's minute-resolution cron matching.
func (c *Cleaner) loopCron(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			due, err := gronx.IsDue(c.cronSchedule)
			if err != nil {
				slog.Warn("invalid cron schedule for session cleaner", "schedule", c.cronSchedule, "error", err)
				continue
			}
			if due {
				c.sweep()
			}
		}
	}
}

// Stop halts the sweep loop.
func (c *Cleaner) Stop() {
	close(c.stopCh)
}

func (c *Cleaner) sweep() {
	idle := c.source.GetIdleSessions(c.maxIdle)
	for _, key := range idle {
		c.source.RemoveSession(key)
	}
	if len(idle) > 0 {
		slog.Info("session cleaner removed idle sessions", "count", len(idle))
	}
}

// GetIdleSessions inspects, without removing, sessions idle beyond an
// optional override (falling back to the configured maxIdle).
func (c *Cleaner) GetIdleSessions(idleOverride *time.Duration) []string {
	maxIdle := c.maxIdle
	if idleOverride != nil {
		maxIdle = *idleOverride
	}
	return c.source.GetIdleSessions(maxIdle)
}
