// Package security implements per-channel access control, sliding-window
// rate limiting, and content validation (spec §4.D), grounded on
// original_source/python/channels/security.py.
package security

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

// maxContentChars is the content-length boundary: exactly 10000 is accepted, 10001 is rejected.
const maxContentChars = 10000

// RateLimitConfig is the per-channel sliding-window configuration.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
}

func (c RateLimitConfig) normalized() RateLimitConfig {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	return c
}

// ChannelPolicy is the access/rate-limit configuration for one channel.
type ChannelPolicy struct {
	Whitelist []string
	Blacklist []string
	RateLimit RateLimitConfig
}

type slidingWindow struct {
	requests []time.Time
}

func (w *slidingWindow) isLimited(cfg RateLimitConfig, now time.Time) bool {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	kept := w.requests[:0]
	for _, t := range w.requests {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	w.requests = kept
	if len(w.requests) >= cfg.MaxRequests {
		return true
	}
	w.requests = append(w.requests, now)
	return false
}

// Manager enforces per-channel access control and rate limiting.
type Manager struct {
	mu          sync.RWMutex
	whitelists  map[string]map[string]struct{}
	blacklists  map[string]map[string]struct{}
	rateConfigs map[string]RateLimitConfig
	rateStates  map[string]*slidingWindow
	burst       map[string]*rate.Limiter
}

// NewManager builds a Manager from per-channel policies.
func NewManager(policies map[string]ChannelPolicy) *Manager {
	m := &Manager{
		rateStates: make(map[string]*slidingWindow),
		burst:      make(map[string]*rate.Limiter),
	}
	m.ReloadConfig(policies)
	return m
}

// ReloadConfig atomically replaces all access lists and rate-limit configs.
func (m *Manager) ReloadConfig(policies map[string]ChannelPolicy) {
	whitelists := make(map[string]map[string]struct{})
	blacklists := make(map[string]map[string]struct{})
	rateConfigs := make(map[string]RateLimitConfig)

	for channel, p := range policies {
		if len(p.Whitelist) > 0 {
			set := make(map[string]struct{}, len(p.Whitelist))
			for _, u := range p.Whitelist {
				set[u] = struct{}{}
			}
			whitelists[channel] = set
		}
		if len(p.Blacklist) > 0 {
			set := make(map[string]struct{}, len(p.Blacklist))
			for _, u := range p.Blacklist {
				set[u] = struct{}{}
			}
			blacklists[channel] = set
		}
		rateConfigs[channel] = p.RateLimit.normalized()
	}

	m.mu.Lock()
	m.whitelists = whitelists
	m.blacklists = blacklists
	m.rateConfigs = rateConfigs
	m.mu.Unlock()
}

// CheckAccess applies blacklist-then-whitelist semantics: blacklisted users
// are always denied; if a whitelist exists for the channel, only members
// are allowed; otherwise access is allowed.
func (m *Manager) CheckAccess(msg model.InboundMessage) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bl, ok := m.blacklists[msg.Channel]; ok {
		if _, denied := bl[msg.ChannelUserID]; denied {
			return false
		}
	}
	if wl, ok := m.whitelists[msg.Channel]; ok {
		if _, allowed := wl[msg.ChannelUserID]; !allowed {
			return false
		}
	}
	return true
}

// CheckRateLimit enforces a sliding window per (channel, userId): drop
// timestamps older than windowSeconds, deny if the remaining count is at or
// above maxRequests, else record now and allow. A secondary
// golang.org/x/time/rate token bucket, sized to the same average rate, is
// consulted first as a cheap burst guard — denying a true micro-burst
// without needing to touch the window at all.
func (m *Manager) CheckRateLimit(msg model.InboundMessage) bool {
	key := fmt.Sprintf("%s:%s", msg.Channel, msg.ChannelUserID)

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.rateConfigs[msg.Channel]
	if !ok {
		cfg = RateLimitConfig{}.normalized()
	}
	limiter, ok := m.burst[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxRequests)/float64(cfg.WindowSeconds)), cfg.MaxRequests)
		m.burst[key] = limiter
	}
	if !limiter.Allow() {
		return false
	}

	state, ok := m.rateStates[key]
	if !ok {
		state = &slidingWindow{}
		m.rateStates[key] = state
	}
	return !state.isLimited(cfg, time.Now())
}

// ValidateMessage rejects content over maxContentChars.
func (m *Manager) ValidateMessage(msg model.InboundMessage) bool {
	return len(msg.Content) <= maxContentChars
}

// SanitizeOutput is a hook for future output filtering. Default identity.
func (m *Manager) SanitizeOutput(text string) string {
	return text
}

// AddToWhitelist adds a user to a channel's whitelist.
func (m *Manager) AddToWhitelist(channel, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.whitelists == nil {
		m.whitelists = make(map[string]map[string]struct{})
	}
	if m.whitelists[channel] == nil {
		m.whitelists[channel] = make(map[string]struct{})
	}
	m.whitelists[channel][userID] = struct{}{}
}

// RemoveFromWhitelist removes a user from a channel's whitelist.
func (m *Manager) RemoveFromWhitelist(channel, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whitelists[channel], userID)
}

// AddToBlacklist adds a user to a channel's blacklist.
func (m *Manager) AddToBlacklist(channel, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blacklists == nil {
		m.blacklists = make(map[string]map[string]struct{})
	}
	if m.blacklists[channel] == nil {
		m.blacklists[channel] = make(map[string]struct{})
	}
	m.blacklists[channel][userID] = struct{}{}
}

// RemoveFromBlacklist removes a user from a channel's blacklist.
func (m *Manager) RemoveFromBlacklist(channel, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blacklists[channel], userID)
}
