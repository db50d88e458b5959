// Package gatewaysrv is the composition root (spec §4.M): it builds
// every collaborator in the documented order, exposes the bearer-token
// guarded HTTP control plane (spec §6), and reverses the order on
// shutdown. Grounded on the teacher's internal/gateway/server.go
// BuildMux/Start/graceful-shutdown idiom, trimmed of the WebSocket RPC
// and managed-mode CRUD surface.
package gatewaysrv

import (
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/gochat-gateway/internal/agentclient"
	"github.com/nextlevelbuilder/gochat-gateway/internal/attachments"
	"github.com/nextlevelbuilder/gochat-gateway/internal/bridge"
	"github.com/nextlevelbuilder/gochat-gateway/internal/channels"
	"github.com/nextlevelbuilder/gochat-gateway/internal/channels/discord"
	"github.com/nextlevelbuilder/gochat-gateway/internal/channels/telegram"
	"github.com/nextlevelbuilder/gochat-gateway/internal/config"
	"github.com/nextlevelbuilder/gochat-gateway/internal/health"
	"github.com/nextlevelbuilder/gochat-gateway/internal/metrics"
	"github.com/nextlevelbuilder/gochat-gateway/internal/security"
	"github.com/nextlevelbuilder/gochat-gateway/internal/sessioncleaner"
	"github.com/nextlevelbuilder/gochat-gateway/internal/stt"
)

// Server composes every Gateway collaborator and serves the HTTP control
// plane.
type Server struct {
	cfgPath string
	cfg     *config.Config

	metrics  *metrics.Collector
	security *security.Manager
	bridge   *bridge.Bridge
	manager  *channels.Manager
	attach   *attachments.Handler
	checker  *health.Checker
	cleaner  *sessioncleaner.Cleaner
	watcher  *config.Watcher

	httpServer *http.Server
	mux        *http.ServeMux
	apiLimiter *channels.WebhookRateLimiter

	shuttingDown atomic.Bool
	mu           sync.Mutex
}

// New builds every collaborator in the order spec §4.M mandates, wires
// the configured channels, and starts them. It does not start listening
// for HTTP requests; call Start for that.
func New(cfgPath string, cfg *config.Config) (*Server, error) {
	s := &Server{cfgPath: cfgPath, cfg: cfg}

	s.apiLimiter = channels.NewWebhookRateLimiter()
	s.metrics = metrics.NewCollector()

	policies := make(map[string]security.ChannelPolicy, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		policies[name] = security.ChannelPolicy{
			Whitelist: ch.Whitelist,
			Blacklist: ch.Blacklist,
			RateLimit: security.RateLimitConfig{
				MaxRequests:   ch.RateLimitOrDefault().MaxRequests,
				WindowSeconds: ch.RateLimitOrDefault().WindowSeconds,
			},
		}
	}
	s.security = security.NewManager(policies)

	agent := agentclient.New(agentclient.Config{
		Endpoint:       cfg.Agent.Endpoint,
		Token:          cfg.Agent.Token,
		TimeoutSeconds: cfg.Agent.TimeoutSeconds,
	})
	s.bridge = bridge.New(agent)

	s.manager = channels.NewManager(s.bridge, s.security, s.metrics)

	attach, err := attachments.NewHandler("tmp/uploads", 0)
	if err != nil {
		return nil, fmt.Errorf("build attachment handler: %w", err)
	}
	s.attach = attach
	s.attach.StartCleanupTask(context.Background())

	if err := s.registerChannels(); err != nil {
		return nil, fmt.Errorf("register channels: %w", err)
	}

	s.manager.StartAll(context.Background())

	s.checker = health.New(s.manager, s.bridge, s.shuttingDown.Load)

	s.cleaner = sessioncleaner.New(s.bridge,
		time.Duration(cfg.Gateway.Session.MaxIdleHours)*time.Hour,
		time.Duration(cfg.Gateway.Session.CleanupIntervalSeconds)*time.Second,
		"")
	s.cleaner.Start(context.Background())

	if cfg.Gateway.HotReload {
		w, err := config.NewWatcher(cfgPath, s.onConfigChange)
		if err != nil {
			slog.Warn("config hot-reload unavailable", "error", err)
		} else {
			s.watcher = w
			s.watcher.Start()
		}
	}

	return s, nil
}

// registerChannels builds and registers an adapter for every enabled
// entry in the config's channel table.
func (s *Server) registerChannels() error {
	sttClient := stt.New(stt.Config{})

	for name, chCfg := range s.cfg.Channels {
		if !chCfg.Enabled {
			continue
		}
		switch name {
		case "telegram":
			requireMention := chCfg.RequireMentionOrDefault()
			ch, err := telegram.New(telegram.Config{
				Token:          chCfg.Token,
				RequireMention: requireMention,
			}, s.attach, sttClient)
			if err != nil {
				return fmt.Errorf("build telegram channel: %w", err)
			}
			s.manager.RegisterChannel(ch, chCfg)
		case "discord":
			allowed := make(map[string]bool, len(chCfg.AllowedGuilds))
			for _, id := range chCfg.AllowedGuilds {
				allowed[fmt.Sprintf("%d", id)] = true
			}
			ch, err := discord.New(discord.Config{
				Token:          chCfg.Token,
				RequireMention: chCfg.RequireMentionOrDefault(),
				AllowedGuilds:  allowed,
				RespondToDMs:   chCfg.RespondToDMsOrDefault(),
			}, s.attach)
			if err != nil {
				return fmt.Errorf("build discord channel: %w", err)
			}
			s.manager.RegisterChannel(ch, chCfg)
		default:
			slog.Warn("unknown channel type in config, skipping", "channel", name)
		}
	}
	return nil
}

// onConfigChange is the ConfigWatcher callback: it applies the channel
// diff to the running Manager (spec §4.K applyConfigChange).
func (s *Server) onConfigChange(newCfg *config.Config) {
	s.mu.Lock()
	s.cfg = newCfg
	s.mu.Unlock()
	s.manager.ApplyConfigChange(newCfg.Channels)
}

// buildMux assembles the HTTP control plane, guarding every route except
// /api/health behind the configured bearer token.
func (s *Server) buildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.guard(s.handleStatus))
	mux.HandleFunc("/api/channels", s.guard(s.handleChannels))
	mux.HandleFunc("/api/sessions", s.guard(s.handleSessions))
	mux.HandleFunc("/api/metrics", s.guard(s.handleMetrics))
	mux.HandleFunc("/api/reload", s.guard(s.handleReload))

	s.mux = mux
	return mux
}

// guard wraps a handler with a per-remote-address request cap and a
// bearer-token check against gateway.auth.token; if no token is
// configured, the token check is skipped but the rate cap still applies.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.apiLimiter.Allow(r.RemoteAddr) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
			return
		}
		token := s.cfg.Gateway.Auth.Token
		if token == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header != "Bearer "+token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.checker.Check()
	w.Header().Set("Content-Type", "application/json")
	if status.Status == health.Unhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"channels":       s.manager.GetEnabledChannels(),
		"active_sessions": s.bridge.GetActiveSessionCount(),
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.manager.ChannelStatuses())
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.bridge.ListSessions()
	writeJSON(w, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.metrics.GetSummary())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	newCfg, err := config.Load(s.cfgPath)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	s.onConfigChange(newCfg)
	writeJSON(w, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Start serves the HTTP control plane until ctx is cancelled, then
// shuts down gracefully. Failure to bind the port is the only fatal
// startup error (spec §7).
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.buildMux()}

	slog.Info("gateway control plane starting", "addr", addr)

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway http server: %w", err)
	}
	return nil
}

// Shutdown reverses the startup order: stop accepting HTTP, stop the
// config watcher, stop the session cleaner, then stop every channel.
func (s *Server) Shutdown() {
	s.shuttingDown.Store(true)

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.cleaner != nil {
		s.cleaner.Stop()
	}
	if s.attach != nil {
		s.attach.StopCleanupTask()
	}
	s.manager.StopAll(context.Background())
}
