// Package channels defines the Channel Adapter abstract contract (spec
// §4.I) and the Channel Manager that routes inbound messages through
// dedup/security/bridge/metrics (spec §4.K), grounded on the teacher's
// internal/channels/channel.go Channel/StreamingChannel/BaseChannel shape.
package channels

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

// Handler is the single inbound-message callback a Manager installs on
// every registered adapter.
type Handler func(ctx context.Context, msg model.InboundMessage)

// Channel is the contract every transport adapter satisfies.
type Channel interface {
	Name() string
	Capabilities() model.ChannelCapabilities
	OnMessage(handler Handler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, chatID string, out model.OutboundMessage) error
	IsRunning() bool
}

// StreamingChannel is implemented by adapters that can post a live,
// incrementally-edited response (spec §4.I sendStreaming).
type StreamingChannel interface {
	Channel
	SendStreaming(ctx context.Context, chatID string, chunks <-chan string, replyToID string) error
}

// ReconnectState is the adapter lifecycle state machine (spec §4.I).
type ReconnectState int

const (
	StateCreated ReconnectState = iota
	StateStarted
	StateConnected
	StateReconnecting
	StateStopped
)

const (
	reconnectBaseDelay   = time.Second
	maxReconnectDelay    = 300 * time.Second
	maxReconnectAttempts = 5
)

// NextBackoff returns the delay before reconnect attempt n (1-indexed),
// doubling from reconnectBaseDelay and capping at maxReconnectDelay.
func NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := reconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	return delay
}

// ShouldGiveUpReconnecting reports whether attempt has exhausted the
// configured retry budget.
func ShouldGiveUpReconnecting(attempt int) bool {
	return attempt > maxReconnectAttempts
}

// BaseChannel holds the state common to every adapter: name, running
// flag, inbound handler, and lifecycle state. Access lists are not kept
// here; they live in the Security Manager.
type BaseChannel struct {
	name    string
	mu      sync.RWMutex
	running bool
	handler Handler
	state   ReconnectState
}

// NewBaseChannel creates a BaseChannel with the given name.
func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name, state: StateCreated}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) OnMessage(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Dispatch invokes the registered handler, if any.
func (c *BaseChannel) Dispatch(ctx context.Context, msg model.InboundMessage) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(ctx, msg)
	}
}

func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *BaseChannel) SetRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
	if running {
		c.state = StateConnected
	} else {
		c.state = StateStopped
	}
}

func (c *BaseChannel) State() ReconnectState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *BaseChannel) SetState(s ReconnectState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// SplitForTransport chunks text into pieces no longer than maxLen,
// breaking on the last newline or space before the limit when possible
// so words/lines aren't split mid-token (spec §4.I "chunks long
// messages per maxMessageLength").
func SplitForTransport(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	remaining := text
	for len(remaining) > maxLen {
		cut := maxLen
		if idx := strings.LastIndexByte(remaining[:maxLen], '\n'); idx > maxLen/2 {
			cut = idx
		} else if idx := strings.LastIndexByte(remaining[:maxLen], ' '); idx > maxLen/2 {
			cut = idx
		}
		parts = append(parts, remaining[:cut])
		remaining = strings.TrimPrefix(remaining[cut:], "\n")
		remaining = strings.TrimPrefix(remaining, " ")
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}
