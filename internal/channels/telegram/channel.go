// Package telegram implements the Telegram Adapter (spec §4.J), grounded
// on the teacher's internal/channels/telegram/{channel,handlers,media}.go
// bot-construction, long-polling, and safe-edit idioms, generalized from
// the teacher's pairing/DM-policy model to the spec's Security-Manager-
// fronted routing.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/gochat-gateway/internal/attachments"
	"github.com/nextlevelbuilder/gochat-gateway/internal/channels"
	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
	"github.com/nextlevelbuilder/gochat-gateway/internal/stt"
)

const (
	maxMessageLength   = 4096
	safetyMargin       = 64
	editRateLimitMs    = 1500
	maxEdits           = 30
	typingRefreshEvery = 4 * time.Second
)

// Config holds the Telegram-specific wiring a Channel needs beyond the
// generic ChannelConfig the Manager already applies (whitelist/blacklist/
// rate limit live in the Security Manager).
type Config struct {
	Token          string
	RequireMention bool
	STT            stt.Config
}

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot      *telego.Bot
	cfg      Config
	attach   *attachments.Handler
	stt      *stt.Client
	username string

	mediaGroups *mediaGroupBuffer

	placeholders sync.Map // chatKey -> messageID
	pollCancel   context.CancelFunc
	pollDone     chan struct{}
}

// New creates a Telegram adapter. attach is used to stage downloaded
// media; sttClient transcribes voice messages when configured.
func New(cfg Config, attach *attachments.Handler, sttClient *stt.Client) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram"),
		bot:         bot,
		cfg:         cfg,
		attach:      attach,
		stt:         sttClient,
		mediaGroups: newMediaGroupBuffer(),
	}, nil
}

func (c *Channel) Capabilities() model.ChannelCapabilities {
	return model.ChannelCapabilities{
		SupportsMarkdown:      true,
		SupportsHTML:          true,
		SupportsEdit:          true,
		SupportsDelete:        true,
		SupportsVoice:         true,
		SupportsStreamingEdit: true,
		MaxMessageLength:      maxMessageLength,
		EditRateLimitMs:       editRateLimitMs,
	}
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.username = c.bot.Username()
	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.username)

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the loop to exit.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers a one-shot outbound message, chunking long text and
// falling back from the requested parse mode to plain text on a
// formatter error (spec §4.I).
func (c *Channel) Send(ctx context.Context, chatID string, out model.OutboundMessage) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}

	for _, chunk := range channels.SplitForTransport(out.Content, maxMessageLength-safetyMargin) {
		msg := tu.Message(tu.ID(id), chunk)
		applyParseMode(msg, out.ParseMode)
		if _, err := c.bot.SendMessage(ctx, msg); err != nil {
			plain := tu.Message(tu.ID(id), chunk)
			if _, retryErr := c.bot.SendMessage(ctx, plain); retryErr != nil {
				return fmt.Errorf("send message: %w", retryErr)
			}
		}
	}

	for _, att := range out.Attachments {
		if sendErr := c.sendAttachment(ctx, id, att); sendErr != nil {
			slog.Error("telegram attachment send failed", "error", sendErr)
		}
	}
	return nil
}

func (c *Channel) sendAttachment(ctx context.Context, chatID int64, att model.Attachment) error {
	if att.LocalPath == "" {
		return fmt.Errorf("attachment has no local path")
	}
	photo := tu.Photo(tu.ID(chatID), tu.FileFromDisk(att.LocalPath))
	_, err := c.bot.SendPhoto(ctx, photo)
	return err
}

func applyParseMode(msg *telego.SendMessageParams, mode model.ParseMode) {
	switch mode {
	case model.ParseMarkdown:
		msg.ParseMode = telego.ModeMarkdownV2
	case model.ParseHTML:
		msg.ParseMode = telego.ModeHTML
	}
}

// SendStreaming posts a placeholder then edits it as chunks arrive, no
// more often than editRateLimitMs and bounded by maxEdits, always
// emitting one final update with the complete text; text beyond one
// message's limit is sent as additional messages (spec §4.I).
func (c *Channel) SendStreaming(ctx context.Context, chatID string, chunks <-chan string, replyToID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}

	placeholder, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), "Thinking..."))
	if err != nil {
		return fmt.Errorf("send placeholder: %w", err)
	}

	typingDone := make(chan struct{})
	go c.keepTyping(ctx, id, typingDone)
	defer close(typingDone)

	var buf strings.Builder
	edits := 0
	lastEdit := time.Now()

	for chunk := range chunks {
		buf.WriteString(chunk)
		if edits >= maxEdits {
			continue
		}
		if time.Since(lastEdit) < editRateLimitMs*time.Millisecond {
			continue
		}
		if c.safeEdit(ctx, id, placeholder.MessageID, buf.String()+"▌") {
			edits++
			lastEdit = time.Now()
		}
	}

	final := buf.String()
	if final == "" {
		final = "(no response)"
	}
	parts := channels.SplitForTransport(final, maxMessageLength-safetyMargin)
	c.safeEdit(ctx, id, placeholder.MessageID, parts[0])
	for _, part := range parts[1:] {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), part)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// keepTyping refreshes the chat's typing indicator every
// typingRefreshEvery until done is closed or ctx is cancelled, since
// Telegram's own typing indicator expires a few seconds after each send.
func (c *Channel) keepTyping(ctx context.Context, chatID int64, done <-chan struct{}) {
	action := tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)
	if _, err := c.bot.SendChatAction(ctx, action); err != nil {
		slog.Debug("telegram typing action failed", "error", err)
	}

	ticker := time.NewTicker(typingRefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.bot.SendChatAction(ctx, action); err != nil {
				slog.Debug("telegram typing action failed", "error", err)
			}
		}
	}
}

// safeEdit edits a message, tolerating the two Telegram API errors that
// are not actionable: unchanged content and a message already gone.
func (c *Channel) safeEdit(ctx context.Context, chatID int64, messageID int, text string) bool {
	for _, chunk := range channels.SplitForTransport(text, maxMessageLength-safetyMargin) {
		params := tu.EditMessageText(tu.ID(chatID), messageID, chunk)
		if _, err := c.bot.EditMessageText(ctx, params); err != nil {
			if strings.Contains(err.Error(), "not modified") || strings.Contains(err.Error(), "message to edit not found") {
				return false
			}
			slog.Debug("telegram edit failed", "error", err)
			return false
		}
		return true
	}
	return false
}

func parseChatID(chatIDStr string) (int64, error) {
	raw := chatIDStr
	if idx := strings.Index(chatIDStr, ":topic:"); idx > 0 {
		raw = chatIDStr[:idx]
	}
	var id int64
	_, err := fmt.Sscanf(raw, "%d", &id)
	return id, err
}
