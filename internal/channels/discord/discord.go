// Package discord implements the Discord Adapter (spec §4.J), grounded
// on the teacher's internal/channels/discord/discord.go session/handler
// idioms, generalized from the teacher's pairing/DM-policy model to the
// spec's Security-Manager-fronted routing. discordgo runs its own event
// loop internally; Send/SendStreaming are safe to call from the
// Gateway's main loop since the library itself marshals calls onto its
// websocket write path.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/gochat-gateway/internal/attachments"
	"github.com/nextlevelbuilder/gochat-gateway/internal/channels"
	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

const (
	maxMessageLength  = 2000
	safetyMargin      = 100
	editRateLimitMs   = 1000
	maxEdits          = 50
	attachmentTimeout = 30 * time.Second
)

// Config holds the Discord-specific wiring a Channel needs beyond the
// generic ChannelConfig (whitelist/blacklist/rate limit live in the
// Security Manager).
type Config struct {
	Token          string
	RequireMention bool
	AllowedGuilds  map[string]bool // empty = all guilds allowed
	RespondToDMs   bool
}

// Channel connects to Discord via the gateway websocket.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	cfg       Config
	attach    *attachments.Handler
	botUserID string
}

// New creates a Discord adapter. attach downloads inbound attachments to
// local staging so raw URLs never reach the Agent Bridge (spec §3).
func New(cfg Config, attach *attachments.Handler) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord"),
		session:     session,
		cfg:         cfg,
		attach:      attach,
	}, nil
}

func (c *Channel) Capabilities() model.ChannelCapabilities {
	return model.ChannelCapabilities{
		SupportsMarkdown:      true,
		SupportsEdit:          true,
		SupportsDelete:        true,
		SupportsThreads:       true,
		SupportsReactions:     true,
		SupportsStreamingEdit: true,
		MaxMessageLength:      maxMessageLength,
		EditRateLimitMs:       editRateLimitMs,
	}
}

// Start opens the gateway connection and registers the message handler.
func (c *Channel) Start(_ context.Context) error {
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers a one-shot outbound message, splitting the text into
// successive messages of at most maxMessageLength-safetyMargin (1900)
// bytes. No continuation marker is added between the parts.
func (c *Channel) Send(_ context.Context, chatID string, out model.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	for _, chunk := range channels.SplitForTransport(out.Content, maxMessageLength-safetyMargin) {
		if _, err := c.session.ChannelMessageSend(chatID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	for _, att := range out.Attachments {
		if att.LocalPath == "" {
			continue
		}
		if err := c.sendAttachment(chatID, att); err != nil {
			slog.Error("discord attachment send failed", "error", err)
		}
	}
	return nil
}

func (c *Channel) sendAttachment(chatID string, att model.Attachment) error {
	f, err := os.Open(att.LocalPath)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	name := att.Filename
	if name == "" {
		name = filepath.Base(att.LocalPath)
	}
	_, err = c.session.ChannelFileSend(chatID, name, f)
	return err
}

// SendStreaming posts a placeholder and edits it as chunks arrive, no
// more often than editRateLimitMs and bounded by maxEdits.
func (c *Channel) SendStreaming(ctx context.Context, chatID string, chunks <-chan string, replyToID string) error {
	placeholder, err := c.session.ChannelMessageSend(chatID, "Thinking...")
	if err != nil {
		return fmt.Errorf("send placeholder: %w", err)
	}

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
		if _, err := c.session.ChannelMessageEdit(chatID, placeholder.ID, buf.String()+"▌"); err == nil {
			edits++
			lastEdit = time.Now()
		}
	}

	final := buf.String()
	if final == "" {
		final = "(no response)"
	}
	_, _ = c.session.ChannelMessageEdit(chatID, placeholder.ID, final)
	return nil
}

// handleMessage converts a Discord gateway event into an InboundMessage
// and dispatches it, applying the adapter-level inbound filter (spec
// §4.J): DM respect / guild allow-list, mention requirement, then
// mention stripping. Blacklist, whitelist, and rate limiting live in
// the Security Manager.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	if isDM && !c.cfg.RespondToDMs {
		return
	}
	if !isDM && len(c.cfg.AllowedGuilds) > 0 && !c.cfg.AllowedGuilds[m.GuildID] {
		return
	}

	content := m.Content
	atts := c.collectAttachments(context.Background(), m)

	isGroup := !isDM
	if isGroup && c.cfg.RequireMention {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}
		if !mentioned {
			return
		}
		content = stripMentionToken(content, c.botUserID)
	}

	c.Dispatch(context.Background(), model.InboundMessage{
		Channel:       "discord",
		ChannelUserID: m.Author.ID,
		ChannelChatID: m.ChannelID,
		Content:       content,
		MessageID:     m.ID,
		Attachments:   atts,
		IsGroup:       isGroup,
		UserName:      resolveDisplayName(m),
	})
}

// collectAttachments downloads each Discord attachment to local staging
// via the shared Attachment Handler, classifying images for sanitization
// the way Telegram's collectAttachments does (spec §3: raw URLs never
// pass through to the Agent).
func (c *Channel) collectAttachments(ctx context.Context, m *discordgo.MessageCreate) []model.Attachment {
	var out []model.Attachment
	for _, att := range m.Attachments {
		local, err := c.attach.DownloadFromURL(ctx, att.URL, att.Filename, attachmentTimeout)
		if err != nil {
			slog.Warn("discord attachment download failed", "error", err)
			continue
		}

		if strings.HasPrefix(att.ContentType, "image/") {
			sanitized := c.attach.SanitizeImage(local)
			out = append(out, model.Attachment{
				Type:      model.MessageImage,
				LocalPath: sanitized,
				Filename:  att.Filename,
				MimeType:  att.ContentType,
				Size:      int64(att.Size),
			})
			continue
		}

		file := model.Attachment{
			Type:      model.MessageFile,
			LocalPath: local,
			Filename:  att.Filename,
			MimeType:  att.ContentType,
			Size:      int64(att.Size),
		}
		if text, ok := c.attach.ExtractText(local, att.Filename); ok {
			file.Transcript = text
		}
		out = append(out, file)
	}
	return out
}

func stripMentionToken(content, botUserID string) string {
	token := fmt.Sprintf("<@%s>", botUserID)
	alt := fmt.Sprintf("<@!%s>", botUserID)
	content = strings.ReplaceAll(content, token, "")
	content = strings.ReplaceAll(content, alt, "")
	return strings.TrimSpace(content)
}

// resolveDisplayName prefers server nickname, then global display name,
// then username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
