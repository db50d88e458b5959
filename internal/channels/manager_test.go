package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/gochat-gateway/internal/bridge"
	"github.com/nextlevelbuilder/gochat-gateway/internal/config"
	"github.com/nextlevelbuilder/gochat-gateway/internal/metrics"
	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
	"github.com/nextlevelbuilder/gochat-gateway/internal/security"
)

type fakeAgent struct {
	response string
	err      error
}

func (f *fakeAgent) Communicate(ctx context.Context, msg bridge.UserMessage, onChunk func(string)) (string, error) {
	return f.response, f.err
}

type fakeChannel struct {
	*BaseChannel
	sent []model.OutboundMessage
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name)}
}

func (f *fakeChannel) Capabilities() model.ChannelCapabilities { return model.ChannelCapabilities{} }
func (f *fakeChannel) Start(ctx context.Context) error          { f.SetRunning(true); return nil }
func (f *fakeChannel) Stop(ctx context.Context) error           { f.SetRunning(false); return nil }
func (f *fakeChannel) Send(ctx context.Context, chatID string, out model.OutboundMessage) error {
	f.sent = append(f.sent, out)
	return nil
}

func newTestManager(t *testing.T, agentResp string, agentErr error) (*Manager, *fakeChannel) {
	t.Helper()
	b := bridge.New(&fakeAgent{response: agentResp, err: agentErr})
	sec := security.NewManager(nil)
	m := NewManager(b, sec, metrics.NewCollector())
	ch := newFakeChannel("telegram")
	m.RegisterChannel(ch, config.ChannelConfig{Enabled: true})
	return m, ch
}

func TestRouteDeliversAgentResponse(t *testing.T) {
	m, ch := newTestManager(t, "hello back", nil)
	ch.Dispatch(context.Background(), model.InboundMessage{
		Channel: "telegram", ChannelUserID: "u1", ChannelChatID: "c1", MessageID: "m1", Content: "hi",
	})
	if len(ch.sent) != 1 || ch.sent[0].Content != "hello back" {
		t.Fatalf("sent = %+v", ch.sent)
	}
}

func TestRouteDropsDuplicateMessageID(t *testing.T) {
	m, ch := newTestManager(t, "ok", nil)
	msg := model.InboundMessage{Channel: "telegram", ChannelUserID: "u1", ChannelChatID: "c1", MessageID: "dup", Content: "hi"}
	ch.Dispatch(context.Background(), msg)
	ch.Dispatch(context.Background(), msg)
	if len(ch.sent) != 1 {
		t.Fatalf("expected exactly 1 delivery for a duplicate message id, got %d", len(ch.sent))
	}
}

func TestRouteFormatsAgentErrorAsRefusal(t *testing.T) {
	m, ch := newTestManager(t, "", errors.New("agent timeout"))
	ch.Dispatch(context.Background(), model.InboundMessage{
		Channel: "telegram", ChannelUserID: "u1", ChannelChatID: "c1", MessageID: "m2", Content: "hi",
	})
	if len(ch.sent) != 1 || ch.sent[0].Content == "" {
		t.Fatalf("expected a localized refusal, got %+v", ch.sent)
	}
	_ = m
}

type streamingAgent struct {
	chunks []string
}

func (a *streamingAgent) Communicate(ctx context.Context, msg bridge.UserMessage, onChunk func(string)) (string, error) {
	var full string
	for _, c := range a.chunks {
		onChunk(c)
		full += c
	}
	return full, nil
}

type fakeStreamingChannel struct {
	*fakeChannel
	streamed [][]string
}

func newFakeStreamingChannel(name string) *fakeStreamingChannel {
	return &fakeStreamingChannel{fakeChannel: newFakeChannel(name)}
}

func (f *fakeStreamingChannel) Capabilities() model.ChannelCapabilities {
	return model.ChannelCapabilities{SupportsStreamingEdit: true, EditRateLimitMs: 1000}
}

func (f *fakeStreamingChannel) SendStreaming(ctx context.Context, chatID string, chunks <-chan string, replyToID string) error {
	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	f.streamed = append(f.streamed, got)
	return nil
}

func TestRouteStreamingUsesSendStreamingForEditCapableChannel(t *testing.T) {
	b := bridge.New(&streamingAgent{chunks: []string{"hel", "lo ", "world"}})
	sec := security.NewManager(nil)
	m := NewManager(b, sec, metrics.NewCollector())
	ch := newFakeStreamingChannel("discord")
	m.RegisterChannel(ch, config.ChannelConfig{Enabled: true})

	ch.Dispatch(context.Background(), model.InboundMessage{
		Channel: "discord", ChannelUserID: "u1", ChannelChatID: "c1", MessageID: "m1", Content: "hi",
	})

	if len(ch.streamed) != 1 {
		t.Fatalf("expected exactly one streamed delivery, got %d", len(ch.streamed))
	}
	if got := ch.streamed[0]; len(got) != 3 || got[0] != "hel" || got[2] != "world" {
		t.Fatalf("streamed chunks = %+v", got)
	}
	if len(ch.sent) != 0 {
		t.Fatalf("expected no plain Send when the channel streams, got %+v", ch.sent)
	}
}

func TestRouteStreamingSurfacesAgentErrorIntoStream(t *testing.T) {
	b := bridge.New(&fakeAgent{err: errors.New("agent timeout")})
	sec := security.NewManager(nil)
	m := NewManager(b, sec, metrics.NewCollector())
	ch := newFakeStreamingChannel("discord")
	m.RegisterChannel(ch, config.ChannelConfig{Enabled: true})

	ch.Dispatch(context.Background(), model.InboundMessage{
		Channel: "discord", ChannelUserID: "u1", ChannelChatID: "c1", MessageID: "m2", Content: "hi",
	})

	if len(ch.streamed) != 1 || len(ch.streamed[0]) == 0 {
		t.Fatalf("expected the error to surface as a streamed chunk, got %+v", ch.streamed)
	}
}
