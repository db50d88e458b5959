// Package metrics implements the Metrics Collector (spec §4.E), grounded on
// original_source/python/gateway/metrics.py, with an additional OpenTelemetry
// span wrapped around bridge invocations for ambient observability.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var tracer = otel.Tracer("gochat-gateway/metrics")

var tracerProviderOnce sync.Once

// initTracerProvider wires a batching OTLP/HTTP exporter into the global
// tracer provider. It reads the standard OTEL_EXPORTER_OTLP_* env vars
// (endpoint defaults to localhost:4318); failures are logged and otel
// falls back to its built-in no-op tracer rather than blocking startup.
func initTracerProvider() {
	exporter, err := otlptracehttp.New(context.Background())
	if err != nil {
		slog.Warn("otlp trace exporter unavailable, tracing disabled", "error", err)
		return
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", "gochat-gateway")),
	)
	if err != nil {
		res = resource.Default()
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
}

// ChannelMetrics holds the per-channel runtime counters.
type ChannelMetrics struct {
	MessagesReceived    int64
	MessagesSent        int64
	Errors              int64
	ReconnectCount      int64
	LastError           string
	LastActivity        time.Time
	TotalResponseTimeMs float64
}

// AverageResponseTimeMs is 0 when no messages have been sent yet.
func (c ChannelMetrics) AverageResponseTimeMs() float64 {
	if c.MessagesSent == 0 {
		return 0
	}
	return c.TotalResponseTimeMs / float64(c.MessagesSent)
}

// Collector tracks metrics across channels.
type Collector struct {
	mu        sync.Mutex
	channels  map[string]*ChannelMetrics
	startedAt time.Time
}

// NewCollector creates a Collector with its clock started now. The first
// call also wires the global OpenTelemetry tracer provider.
func NewCollector() *Collector {
	tracerProviderOnce.Do(initTracerProvider)
	return &Collector{
		channels:  make(map[string]*ChannelMetrics),
		startedAt: time.Now(),
	}
}

func (c *Collector) ensure(channel string) *ChannelMetrics {
	m, ok := c.channels[channel]
	if !ok {
		m = &ChannelMetrics{}
		c.channels[channel] = m
	}
	return m
}

// RecordReceived records an inbound message receipt.
func (c *Collector) RecordReceived(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(channel)
	m.MessagesReceived++
	m.LastActivity = time.Now()
}

// RecordSent records a delivered response and its elapsed processing time.
func (c *Collector) RecordSent(channel string, responseTimeMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(channel)
	m.MessagesSent++
	m.TotalResponseTimeMs += responseTimeMs
	m.LastActivity = time.Now()
}

// RecordError records an error for a channel.
func (c *Collector) RecordError(channel, errText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(channel)
	m.Errors++
	m.LastError = errText
}

// RecordReconnect records a reconnect attempt for a channel.
func (c *Collector) RecordReconnect(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure(channel).ReconnectCount++
}

// ChannelSnapshot returns a copy of one channel's metrics, or false if unknown.
func (c *Collector) ChannelSnapshot(channel string) (ChannelMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.channels[channel]
	if !ok {
		return ChannelMetrics{}, false
	}
	return *m, true
}

// Summary is the aggregate view returned by GET /api/metrics.
type Summary struct {
	UptimeSeconds float64
	Channels      map[string]ChannelMetrics
	Totals        Totals
}

// Totals sums counters across all channels.
type Totals struct {
	TotalMessagesReceived int64
	TotalMessagesSent     int64
	TotalErrors           int64
}

// GetSummary takes a consistent snapshot of all channel metrics.
func (c *Collector) GetSummary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := make(map[string]ChannelMetrics, len(c.channels))
	var totals Totals
	for name, m := range c.channels {
		channels[name] = *m
		totals.TotalMessagesReceived += m.MessagesReceived
		totals.TotalMessagesSent += m.MessagesSent
		totals.TotalErrors += m.Errors
	}

	return Summary{
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		Channels:      channels,
		Totals:        totals,
	}
}

// Reset clears all metrics and restarts the uptime clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = make(map[string]*ChannelMetrics)
	c.startedAt = time.Now()
}

// StartSpan opens a trace span around a bridge invocation. Callers end it
// via the returned function once the response has been produced.
func StartSpan(ctx context.Context, channel string) (context.Context, func()) {
	ctx, span := tracer.Start(ctx, "bridge.process_message")
	return ctx, func() { span.End() }
}
