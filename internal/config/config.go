// Package config loads and validates the gateway's YAML configuration
// (spec §4.A, §6), grounded on the teacher's internal/config/config.go
// struct-tag + Default()/Hash() idiom.
package config

import (
	"fmt"
)

// Config is the root of the gateway's configuration tree.
type Config struct {
	Gateway  GatewayConfig            `yaml:"gateway"`
	Agent    AgentConfig              `yaml:"agent"`
	Channels map[string]ChannelConfig `yaml:"channels"`
}

// AgentConfig points at the black-box agentic runtime this gateway
// fronts. It is not part of the spec's authoritative schema (the Agent
// runtime is an excluded collaborator) but the gateway still has to
// reach it somehow, so the wiring itself is configuration, not behavior.
type AgentConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GatewayConfig holds process-wide settings (spec §6).
type GatewayConfig struct {
	Host      string      `yaml:"host"`
	Port      int         `yaml:"port"`
	HotReload bool        `yaml:"hot_reload"`
	Verbose   bool        `yaml:"verbose"`
	Auth      AuthConfig  `yaml:"auth"`
	Session   SessionConfig `yaml:"session"`
}

// AuthConfig guards the HTTP control plane.
type AuthConfig struct {
	Token    string `yaml:"token"`
	Password string `yaml:"password"`
}

// SessionConfig tunes the session cleaner (spec §4.L).
type SessionConfig struct {
	MaxIdleHours          int `yaml:"max_idle_hours"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// RateLimitConfig is one channel's sliding-window policy (spec §4.G).
type RateLimitConfig struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// ChannelConfig holds one transport's credentials and access policy.
type ChannelConfig struct {
	Enabled        bool            `yaml:"enabled"`
	AccountID      string          `yaml:"account_id"`
	Token          string          `yaml:"token"`
	Whitelist      []string        `yaml:"whitelist"`
	Blacklist      []string        `yaml:"blacklist"`
	RequireMention *bool           `yaml:"require_mention"`
	AllowedGuilds  []int64         `yaml:"allowed_guilds"`
	RespondToDMs   *bool           `yaml:"respond_to_dms"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

const (
	defaultHost                   = "127.0.0.1"
	defaultPort                   = 18900
	defaultMaxIdleHours           = 24
	defaultCleanupIntervalSeconds = 3600
	defaultMaxRequests            = 10
	defaultWindowSeconds          = 60
)

// Default returns the gateway's baseline configuration, the same values
// a fresh install gets before any file or env override is applied.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:      defaultHost,
			Port:      defaultPort,
			HotReload: true,
			Session: SessionConfig{
				MaxIdleHours:           defaultMaxIdleHours,
				CleanupIntervalSeconds: defaultCleanupIntervalSeconds,
			},
		},
		Channels: map[string]ChannelConfig{},
	}
}

// Validate rejects configurations the gateway cannot safely boot with.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	for name, ch := range c.Channels {
		if ch.Enabled && ch.Token == "" {
			return fmt.Errorf("channel %q is enabled but has no token", name)
		}
	}
	return nil
}

// RateLimitOrDefault returns a channel's rate limit, filling in the
// gateway-wide defaults for any zero field.
func (c ChannelConfig) RateLimitOrDefault() RateLimitConfig {
	rl := c.RateLimit
	if rl.MaxRequests <= 0 {
		rl.MaxRequests = defaultMaxRequests
	}
	if rl.WindowSeconds <= 0 {
		rl.WindowSeconds = defaultWindowSeconds
	}
	return rl
}

// RequireMentionOrDefault reports whether a group chat must @-mention the
// bot before a message is routed, defaulting to true when unset.
func (c ChannelConfig) RequireMentionOrDefault() bool {
	if c.RequireMention == nil {
		return true
	}
	return *c.RequireMention
}

// RespondToDMsOrDefault reports whether direct messages are handled,
// defaulting to true when unset.
func (c ChannelConfig) RespondToDMsOrDefault() bool {
	if c.RespondToDMs == nil {
		return true
	}
	return *c.RespondToDMs
}
