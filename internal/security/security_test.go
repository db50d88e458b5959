package security

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

func TestBlacklistDeniesAccess(t *testing.T) {
	m := NewManager(map[string]ChannelPolicy{
		"telegram": {Blacklist: []string{"U1"}},
	})
	msg := model.InboundMessage{Channel: "telegram", ChannelUserID: "U1"}
	if m.CheckAccess(msg) {
		t.Fatal("blacklisted user should be denied")
	}
}

func TestWhitelistRestrictsToMembers(t *testing.T) {
	m := NewManager(map[string]ChannelPolicy{
		"telegram": {Whitelist: []string{"U1"}},
	})
	if !m.CheckAccess(model.InboundMessage{Channel: "telegram", ChannelUserID: "U1"}) {
		t.Fatal("whitelisted user should be allowed")
	}
	if m.CheckAccess(model.InboundMessage{Channel: "telegram", ChannelUserID: "U2"}) {
		t.Fatal("non-whitelisted user should be denied when a whitelist exists")
	}
}

func TestNoListsAllowsEveryone(t *testing.T) {
	m := NewManager(nil)
	if !m.CheckAccess(model.InboundMessage{Channel: "telegram", ChannelUserID: "anyone"}) {
		t.Fatal("with no lists configured, access should be allowed")
	}
}

func TestRateLimitDeniesThirdRequest(t *testing.T) {
	m := NewManager(map[string]ChannelPolicy{
		"telegram": {RateLimit: RateLimitConfig{MaxRequests: 2, WindowSeconds: 60}},
	})
	msg := model.InboundMessage{Channel: "telegram", ChannelUserID: "U1"}
	if !m.CheckRateLimit(msg) {
		t.Fatal("1st request should be allowed")
	}
	if !m.CheckRateLimit(msg) {
		t.Fatal("2nd request should be allowed")
	}
	if m.CheckRateLimit(msg) {
		t.Fatal("3rd request within the window should be denied")
	}
}

func TestValidateMessageBoundary(t *testing.T) {
	m := NewManager(nil)
	ok := strings.Repeat("a", 10000)
	tooLong := strings.Repeat("a", 10001)
	if !m.ValidateMessage(model.InboundMessage{Content: ok}) {
		t.Fatal("10000 chars should be accepted")
	}
	if m.ValidateMessage(model.InboundMessage{Content: tooLong}) {
		t.Fatal("10001 chars should be rejected")
	}
}
