// Package model holds the canonical message and capability types shared
// between channel adapters, the channel manager, and the agent bridge.
package model

import "time"

// MessageType is the closed set of content kinds a message or attachment
// can carry.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

// largeAttachmentBytes is the threshold above which Attachment.IsLarge reports true.
const largeAttachmentBytes = 10 * 1024 * 1024 // 10 MiB

// Attachment is a single piece of media carried by an inbound or outbound
// message. At least one of URL, Data, or LocalPath must be set by the time
// it is consumed downstream; attachments handed to the agent always have
// LocalPath populated (raw URLs never cross that boundary).
type Attachment struct {
	Type       MessageType
	URL        string
	Data       []byte
	Filename   string
	MimeType   string
	Size       int64
	LocalPath  string
	Transcript string // STT transcript for audio/voice attachments, empty if not transcribed
}

// IsLarge reports whether the attachment exceeds the large-attachment threshold.
func (a Attachment) IsLarge() bool {
	return a.Size > largeAttachmentBytes
}

// InboundMessage is a transport-agnostic message arriving from a channel.
// All identifiers are opaque strings; the gateway never parses them.
type InboundMessage struct {
	Channel       string
	ChannelUserID string
	ChannelChatID string
	Content       string
	MessageID     string
	Timestamp     time.Time
	Attachments   []Attachment
	IsGroup       bool
	ReplyToID     string
	UserName      string
	Metadata      map[string]string
}

// ParseMode selects how OutboundMessage.Content should be rendered by the transport.
type ParseMode string

const (
	ParseMarkdown ParseMode = "markdown"
	ParseHTML     ParseMode = "html"
	ParsePlain    ParseMode = "plain"
)

// OutboundMessage is a transport-agnostic message to be delivered to a channel.
type OutboundMessage struct {
	Content     string
	Attachments []Attachment
	ParseMode   ParseMode
	ReplyToID   string
}

// ChannelCapabilities is an immutable declaration of what a channel adapter
// supports, established once at construction.
type ChannelCapabilities struct {
	SupportsMarkdown      bool
	SupportsHTML          bool
	SupportsReactions     bool
	SupportsThreads       bool
	SupportsEdit          bool
	SupportsDelete        bool
	MaxMessageLength      int
	SupportsAttachments   bool
	SupportsVoice         bool
	SupportsStreamingEdit bool
	EditRateLimitMs       int
}

// ChannelSession is a single conversation's binding to an agent context,
// exclusively owned by the agent bridge. Readers take a snapshot (see
// Bridge.GetSession and Bridge.ListSessions) rather than holding a
// pointer into the live map.
type ChannelSession struct {
	ContextID     string
	Channel       string
	ChannelUserID string
	ChannelChatID string
	UserName      string
	CreatedAt     time.Time
	LastActivity  time.Time
}
