// Package streaming selects how a channel delivers a long-running response
// (spec §4.H), grounded on original_source/python/channels/streaming.py.
package streaming

import (
	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

// Strategy is the closed set of delivery modes.
type Strategy string

const (
	BufferAll       Strategy = "buffer_all"
	EditMessage     Strategy = "edit_message"
	TypingIndicator Strategy = "typing_indicator"
	Chunked         Strategy = "chunked"
)

// Config carries the tunables for whichever strategy is selected.
type Config struct {
	Strategy        Strategy
	EditIntervalMs  int
	ChunkSize       int
	TypingTimeoutMs int
	MaxEdits        int
}

const (
	defaultEditIntervalMs  = 1000
	defaultChunkSize       = 500
	defaultTypingTimeoutMs = 5000
	defaultMaxEdits        = 50
)

func defaults() Config {
	return Config{
		Strategy:        BufferAll,
		EditIntervalMs:  defaultEditIntervalMs,
		ChunkSize:       defaultChunkSize,
		TypingTimeoutMs: defaultTypingTimeoutMs,
		MaxEdits:        defaultMaxEdits,
	}
}

// Select picks a streaming Config for a channel's capability set. If the
// channel supports streaming edits, EditMessage is chosen with the edit
// interval floored at 1000ms; otherwise BufferAll.
func Select(caps model.ChannelCapabilities) Config {
	cfg := defaults()
	if caps.SupportsStreamingEdit {
		cfg.Strategy = EditMessage
		interval := caps.EditRateLimitMs
		if interval < defaultEditIntervalMs {
			interval = defaultEditIntervalMs
		}
		cfg.EditIntervalMs = interval
		return cfg
	}
	cfg.Strategy = BufferAll
	return cfg
}

// ForChannel returns the per-channel preset, overriding the generic
// Select() rule, matching the Python source's get_strategy_for_channel.
func ForChannel(channel string, caps model.ChannelCapabilities) Config {
	switch channel {
	case "telegram":
		cfg := defaults()
		cfg.Strategy = EditMessage
		cfg.EditIntervalMs = 1500
		cfg.MaxEdits = 30
		return cfg
	case "discord":
		cfg := defaults()
		cfg.Strategy = EditMessage
		cfg.EditIntervalMs = 1000
		cfg.MaxEdits = 50
		return cfg
	case "email":
		cfg := defaults()
		cfg.Strategy = BufferAll
		return cfg
	default:
		return Select(caps)
	}
}

// Handler tracks edit-rate state for a single in-flight streamed response.
type Handler struct {
	cfg           Config
	buffer        string
	messageID     string
	editCount     int
	lastEditUnix  int64
}

// NewHandler creates a Handler for the given streaming config.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// SetMessageID records the placeholder message id to edit in place.
func (h *Handler) SetMessageID(id string) {
	h.messageID = id
}

// Reset clears buffered state for reuse across responses.
func (h *Handler) Reset() {
	h.buffer = ""
	h.messageID = ""
	h.editCount = 0
	h.lastEditUnix = 0
}

// ShouldEdit reports whether handleChunk should push an in-place edit now,
// given the current time (unix millis) and whether max edits has already
// been reached.
func (h *Handler) ShouldEdit(nowUnixMs int64) bool {
	if h.editCount >= h.cfg.MaxEdits {
		return false
	}
	if h.lastEditUnix == 0 {
		return true
	}
	return nowUnixMs-h.lastEditUnix >= int64(h.cfg.EditIntervalMs)
}

// HandleChunk appends chunk to the buffer and reports whether this call
// should trigger an edit, recording the edit if so.
func (h *Handler) HandleChunk(chunk string, nowUnixMs int64) (buffered string, shouldEdit bool) {
	h.buffer += chunk
	if h.ShouldEdit(nowUnixMs) {
		h.editCount++
		h.lastEditUnix = nowUnixMs
		return h.buffer, true
	}
	return h.buffer, false
}

// Finalize returns the full buffered text for the terminal update.
func (h *Handler) Finalize() string {
	return h.buffer
}
