package bridge

import "strings"

// channelPrefixes maps known channel names to their fixed 2-char session-key
// prefix, matching original_source/python/gateway/agent_bridge.go's
// _make_session_key table.
var channelPrefixes = map[string]string{
	"telegram": "tg",
	"discord":  "dc",
	"email":    "em",
	"slack":    "sl",
	"wechat":   "wx",
	"whatsapp": "wa",
	"matrix":   "mx",
}

// SessionKey derives the canonical "{prefix}:{channelUserId}" key for a
// channel user. Unknown channels fall back to their first two characters.
func SessionKey(channel, channelUserID string) string {
	prefix, ok := channelPrefixes[channel]
	if !ok {
		prefix = channel
		if len(prefix) > 2 {
			prefix = prefix[:2]
		}
	}
	return prefix + ":" + channelUserID
}

// GroupTopicSessionKey extends the base group key with a forum-topic
// suffix, supplementing the base spec's session-key form for Telegram forum
// groups (see SPEC_FULL.md Supplemented Features).
func GroupTopicSessionKey(baseKey, topicID string) string {
	return baseKey + ":topic:" + topicID
}

// ParseSessionKey splits a session key back into its prefix and the raw id.
func ParseSessionKey(key string) (prefix, rest string) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}
