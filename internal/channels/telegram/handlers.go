package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

const mediaGroupSettle = 500 * time.Millisecond

// mediaGroupBuffer buffers album (media-group) messages for a short
// settle window before they're processed together, grounded on the
// teacher's internal/channels/telegram/media.go mediaGroupBuffer.
type mediaGroupBuffer struct {
	mu     sync.Mutex
	groups map[string]*mediaGroup
}

type mediaGroup struct {
	messages []*telego.Message
	timer    *time.Timer
}

func newMediaGroupBuffer() *mediaGroupBuffer {
	return &mediaGroupBuffer{groups: make(map[string]*mediaGroup)}
}

// add buffers msg under its media group id and invokes flush once no
// further item has arrived within the settle window.
func (b *mediaGroupBuffer) add(groupID string, msg *telego.Message, flush func([]*telego.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[groupID]
	if !ok {
		g = &mediaGroup{}
		b.groups[groupID] = g
	}
	g.messages = append(g.messages, msg)
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(mediaGroupSettle, func() {
		b.mu.Lock()
		msgs := g.messages
		delete(b.groups, groupID)
		b.mu.Unlock()
		flush(msgs)
	})
}

// handleMessage converts a Telegram update into an InboundMessage and
// dispatches it, applying the adapter-level inbound filter (spec §4.J):
// mention requirement in groups, then mention stripping. Blacklist,
// whitelist, and rate limiting live in the Security Manager and are
// applied later by the Channel Manager's pipeline.
func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil {
		return
	}
	if msg.MediaGroupID != "" {
		c.mediaGroups.add(msg.MediaGroupID, msg, func(group []*telego.Message) {
			c.dispatchGroup(ctx, group)
		})
		return
	}
	c.dispatchGroup(ctx, []*telego.Message{msg})
}

func (c *Channel) dispatchGroup(ctx context.Context, group []*telego.Message) {
	if len(group) == 0 {
		return
	}
	primary := group[0]
	user := primary.From

	isGroup := primary.Chat.Type == "group" || primary.Chat.Type == "supergroup"
	content := primary.Text
	if content == "" {
		content = primary.Caption
	}

	if isGroup && c.cfg.RequireMention {
		mentioned, stripped := stripMention(content, c.username)
		if !mentioned {
			return
		}
		content = stripped
	}

	chatIDStr := fmt.Sprintf("%d", primary.Chat.ID)
	if primary.Chat.IsForum && primary.MessageThreadID != 0 {
		chatIDStr = fmt.Sprintf("%s:topic:%d", chatIDStr, primary.MessageThreadID)
	}

	var attachments []model.Attachment
	for _, m := range group {
		attachments = append(attachments, c.collectAttachments(ctx, m)...)
	}

	inbound := model.InboundMessage{
		Channel:       "telegram",
		ChannelUserID: fmt.Sprintf("%d", user.ID),
		ChannelChatID: chatIDStr,
		Content:       content,
		MessageID:     fmt.Sprintf("%d", primary.MessageID),
		Timestamp:     time.Unix(int64(primary.Date), 0),
		Attachments:   attachments,
		IsGroup:       isGroup,
		UserName:      user.Username,
	}
	c.Dispatch(ctx, inbound)
}

// collectAttachments downloads photos/voice/documents on msg and returns
// them as model.Attachment, transcribing voice via stt when configured.
func (c *Channel) collectAttachments(ctx context.Context, msg *telego.Message) []model.Attachment {
	var out []model.Attachment

	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		if local, err := c.downloadFileID(ctx, photo.FileID); err != nil {
			slog.Warn("telegram photo download failed", "error", err)
		} else {
			sanitized := c.attach.SanitizeImage(local)
			out = append(out, model.Attachment{Type: model.MessageImage, LocalPath: sanitized, Size: int64(photo.FileSize)})
		}
	}

	if msg.Voice != nil {
		if local, err := c.downloadFileID(ctx, msg.Voice.FileID); err != nil {
			slog.Warn("telegram voice download failed", "error", err)
		} else {
			att := model.Attachment{Type: model.MessageAudio, LocalPath: local, MimeType: msg.Voice.MimeType, Size: int64(msg.Voice.FileSize)}
			if c.stt != nil && c.stt.Enabled() {
				if transcript, err := c.stt.Transcribe(ctx, local); err != nil {
					slog.Warn("telegram voice transcription failed", "error", err)
				} else {
					att.Transcript = transcript
				}
			}
			out = append(out, att)
		}
	}

	if msg.Document != nil {
		if local, err := c.downloadFileID(ctx, msg.Document.FileID); err != nil {
			slog.Warn("telegram document download failed", "error", err)
		} else {
			out = append(out, model.Attachment{
				Type:      model.MessageFile,
				LocalPath: local,
				Filename:  msg.Document.FileName,
				MimeType:  msg.Document.MimeType,
				Size:      int64(msg.Document.FileSize),
			})
			if text, ok := c.attach.ExtractText(local, msg.Document.FileName); ok {
				out[len(out)-1].Transcript = text
			}
		}
	}

	return out
}

func (c *Channel) downloadFileID(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.cfg.Token, file.FilePath)
	return c.attach.DownloadFromURL(ctx, url, file.FilePath, 30*time.Second)
}

// stripMention reports whether botUsername is @-mentioned in text and
// returns the text with the mention token removed.
func stripMention(text, botUsername string) (mentioned bool, stripped string) {
	if botUsername == "" {
		return true, text
	}
	token := "@" + botUsername
	if !strings.Contains(text, token) {
		return false, text
	}
	return true, strings.TrimSpace(strings.Replace(text, token, "", 1))
}
