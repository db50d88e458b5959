package channels

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gochat-gateway/internal/bridge"
	"github.com/nextlevelbuilder/gochat-gateway/internal/config"
	"github.com/nextlevelbuilder/gochat-gateway/internal/dedup"
	"github.com/nextlevelbuilder/gochat-gateway/internal/errtax"
	"github.com/nextlevelbuilder/gochat-gateway/internal/metrics"
	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
	"github.com/nextlevelbuilder/gochat-gateway/internal/security"
	"github.com/nextlevelbuilder/gochat-gateway/internal/streaming"
)

// streamChunkQueueDepth bounds the chunk queue handed to a StreamingChannel,
// mirroring the backpressure bound on bridge.ProcessMessageStream's own
// internal queue (spec §5 Backpressure).
const streamChunkQueueDepth = 32

// imagePathPattern matches well-known staging path prefixes ending in a
// common image extension, used for response image extraction (spec
// §4.K step 7).
var imagePathPattern = regexp.MustCompile(`(?:/a0/|/git/agent-zero/|/app/)\S+\.(?:jpg|jpeg|png|gif|webp|bmp)`)

// Manager owns every registered adapter, the Deduplicator, and the
// routing pipeline installed as each adapter's inbound handler (spec
// §4.K), grounded on the teacher's internal/channels/manager.go
// registry/lifecycle idiom.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	cfg      map[string]config.ChannelConfig

	dedup    *dedup.Deduplicator
	security *security.Manager
	bridge   *bridge.Bridge
	metrics  *metrics.Collector
	lang     errtax.Language
}

// NewManager wires the fixed pipeline's collaborators together. Channels
// are registered separately via RegisterChannel.
func NewManager(b *bridge.Bridge, sec *security.Manager, m *metrics.Collector) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		cfg:      make(map[string]config.ChannelConfig),
		dedup:    dedup.New(0, 0),
		security: sec,
		bridge:   b,
		metrics:  m,
		lang:     errtax.LangZH,
	}
}

// RegisterChannel adds an adapter and wires the routing pipeline as its
// inbound handler.
func (m *Manager) RegisterChannel(ch Channel, cfg config.ChannelConfig) {
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.cfg[ch.Name()] = cfg
	m.mu.Unlock()

	ch.OnMessage(func(ctx context.Context, msg model.InboundMessage) {
		if sc, ok := ch.(StreamingChannel); ok {
			strategy := streaming.ForChannel(msg.Channel, ch.Capabilities())
			if strategy.Strategy == streaming.EditMessage {
				m.routeStreaming(ctx, sc, msg)
				return
			}
		}
		out := m.route(ctx, msg)
		if out == nil {
			return
		}
		if err := ch.Send(ctx, msg.ChannelChatID, *out); err != nil {
			slog.Error("failed to deliver outbound message", "channel", msg.Channel, "error", err)
		}
	})
}

// UnregisterChannel removes a previously registered adapter.
func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
	delete(m.cfg, name)
}

// GetChannel returns a registered adapter by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// route runs the fixed 8-step pipeline (spec §4.K) and returns the
// outbound message for the adapter to deliver, or nil for a silent
// no-reply (duplicate message).
func (m *Manager) route(ctx context.Context, msg model.InboundMessage) *model.OutboundMessage {
	// 1-2. Deduplicate, then security: access -> rate-limit -> validate.
	if m.dedup.IsDuplicate(msg.MessageID, msg.Channel) {
		return nil
	}
	if refusal := m.checkSecurity(msg); refusal != nil {
		return refusal
	}

	// 3. Metrics: record receipt.
	m.metrics.RecordReceived(msg.Channel)

	// 4. Collect attachments' local paths.
	localPaths := collectLocalPaths(msg)

	// 5. Bridge.processMessage.
	start := time.Now()
	spanCtx, endSpan := metrics.StartSpan(ctx, msg.Channel)
	reply, err := m.bridge.ProcessMessage(spanCtx, msg.Channel, msg.ChannelUserID, msg.ChannelChatID,
		msg.Content, msg.UserName, localPaths, msg.Metadata, nil)
	endSpan()
	if err != nil {
		m.metrics.RecordError(msg.Channel, err.Error())
		return m.refusal(errtax.Classify(err))
	}

	// 6. Metrics: record send with elapsed ms.
	elapsed := float64(time.Since(start).Milliseconds())
	m.metrics.RecordSent(msg.Channel, elapsed)

	// 7. Response image extraction (Gateway-only enrichment).
	attachments := extractResponseImages(reply)

	// 8. Return the outbound message for the adapter to deliver.
	return &model.OutboundMessage{Content: reply, Attachments: attachments}
}

// routeStreaming runs the same pipeline as route, but feeds the Agent's
// chunks to the adapter's SendStreaming as they arrive instead of waiting
// for the complete response (spec §4.H/§4.I/§8 scenario 5).
func (m *Manager) routeStreaming(ctx context.Context, ch StreamingChannel, msg model.InboundMessage) {
	if m.dedup.IsDuplicate(msg.MessageID, msg.Channel) {
		return
	}
	if refusal := m.checkSecurity(msg); refusal != nil {
		if err := ch.Send(ctx, msg.ChannelChatID, *refusal); err != nil {
			slog.Error("failed to deliver refusal", "channel", msg.Channel, "error", err)
		}
		return
	}

	m.metrics.RecordReceived(msg.Channel)
	localPaths := collectLocalPaths(msg)

	chunks := make(chan string, streamChunkQueueDepth)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ch.SendStreaming(ctx, msg.ChannelChatID, chunks, msg.MessageID); err != nil {
			slog.Error("streaming delivery failed", "channel", msg.Channel, "error", err)
		}
	}()

	onChunk := func(chunk string) {
		select {
		case chunks <- chunk:
		case <-ctx.Done():
		}
	}

	start := time.Now()
	spanCtx, endSpan := metrics.StartSpan(ctx, msg.Channel)
	reply, err := m.bridge.ProcessMessage(spanCtx, msg.Channel, msg.ChannelUserID, msg.ChannelChatID,
		msg.Content, msg.UserName, localPaths, msg.Metadata, onChunk)
	endSpan()

	if err != nil {
		m.metrics.RecordError(msg.Channel, err.Error())
		errText := errtax.Format(errtax.Classify(err), m.lang)
		select {
		case chunks <- errText:
		case <-ctx.Done():
		}
		close(chunks)
		wg.Wait()
		return
	}
	close(chunks)
	wg.Wait()

	elapsed := float64(time.Since(start).Milliseconds())
	m.metrics.RecordSent(msg.Channel, elapsed)

	if attachments := extractResponseImages(reply); len(attachments) > 0 {
		if err := ch.Send(ctx, msg.ChannelChatID, model.OutboundMessage{Attachments: attachments}); err != nil {
			slog.Error("failed to deliver response attachments", "channel", msg.Channel, "error", err)
		}
	}
}

// checkSecurity runs step 2 (access -> rate-limit -> validate), returning
// the localized refusal to send if any check fails, or nil if the
// message is clear to proceed.
func (m *Manager) checkSecurity(msg model.InboundMessage) *model.OutboundMessage {
	if !m.security.CheckAccess(msg) {
		return m.refusal(errtax.AccessDenied)
	}
	if !m.security.CheckRateLimit(msg) {
		return m.refusal(errtax.RateLimit)
	}
	if !m.security.ValidateMessage(msg) {
		return m.refusal(errtax.InvalidMessage)
	}
	return nil
}

func (m *Manager) refusal(kind errtax.Kind) *model.OutboundMessage {
	return &model.OutboundMessage{Content: errtax.Format(kind, m.lang)}
}

// collectLocalPaths gathers the already-downloaded local paths of an
// inbound message's attachments (step 4).
func collectLocalPaths(msg model.InboundMessage) []string {
	var localPaths []string
	for _, a := range msg.Attachments {
		if a.LocalPath != "" {
			localPaths = append(localPaths, a.LocalPath)
		}
	}
	return localPaths
}

// extractResponseImages scans response text for well-known staging
// paths and attaches any that exist on disk as Image attachments.
func extractResponseImages(text string) []model.Attachment {
	matches := imagePathPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	var out []model.Attachment
	for _, path := range matches {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		out = append(out, model.Attachment{
			Type:      model.MessageImage,
			LocalPath: path,
			Filename:  path[strings.LastIndexByte(path, '/')+1:],
		})
	}
	return out
}

// StartAll starts every registered channel; a failure on one channel is
// logged and does not prevent the others from starting.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			continue
		}
		slog.Info("channel started", "channel", name)
	}
}

// StopAll stops every registered channel.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
}

// ChannelStatuses reports each registered channel's running state, for
// the health checker and the /api/channels control-plane endpoint.
func (m *Manager) ChannelStatuses() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.IsRunning()
	}
	return out
}

// GetEnabledChannels returns the names of all registered channels.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// ApplyConfigChange diffs newConfig against the currently registered
// channels (spec §4.K): a token change requires a restart (logged, not
// performed here); enabled=false stops and unregisters; whitelist,
// blacklist, and rate limits are reloaded into the Security Manager.
// A changed require_mention is stored in the Manager's channel config,
// but a running adapter keeps the value it was constructed with.
// Channels present in newConfig but not yet registered are ignored:
// they are neither registered nor started.
func (m *Manager) ApplyConfigChange(newConfig map[string]config.ChannelConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ch := range m.channels {
		newCfg, present := newConfig[name]
		oldCfg := m.cfg[name]

		if !present {
			continue
		}
		if newCfg.Token != oldCfg.Token {
			slog.Warn("channel token changed, restart required to apply", "channel", name)
		}
		if !newCfg.Enabled && oldCfg.Enabled {
			slog.Info("channel disabled via config reload, stopping", "channel", name)
			if err := ch.Stop(context.Background()); err != nil {
				slog.Error("error stopping disabled channel", "channel", name, "error", err)
			}
			delete(m.channels, name)
			delete(m.cfg, name)
			continue
		}
		m.cfg[name] = newCfg
	}

	policies := make(map[string]security.ChannelPolicy, len(newConfig))
	for name, cfg := range newConfig {
		policies[name] = security.ChannelPolicy{
			Whitelist: cfg.Whitelist,
			Blacklist: cfg.Blacklist,
			RateLimit: security.RateLimitConfig{
				MaxRequests:   cfg.RateLimitOrDefault().MaxRequests,
				WindowSeconds: cfg.RateLimitOrDefault().WindowSeconds,
			},
		}
	}
	m.security.ReloadConfig(policies)
}
