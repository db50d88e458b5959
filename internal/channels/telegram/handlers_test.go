package telegram

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"
)

func TestStripMentionRequiresToken(t *testing.T) {
	mentioned, stripped := stripMention("hello @mybot how are you", "mybot")
	if !mentioned {
		t.Fatal("expected mention to be detected")
	}
	if stripped != "hello  how are you" && stripped != "hello how are you" {
		t.Fatalf("unexpected stripped text: %q", stripped)
	}
}

func TestStripMentionAbsent(t *testing.T) {
	mentioned, _ := stripMention("hello there", "mybot")
	if mentioned {
		t.Fatal("expected no mention")
	}
}

func TestStripMentionEmptyUsernameAlwaysMatches(t *testing.T) {
	mentioned, stripped := stripMention("hi", "")
	if !mentioned || stripped != "hi" {
		t.Fatalf("empty username should pass through unchanged, got %v %q", mentioned, stripped)
	}
}

func TestParseChatIDStripsTopicSuffix(t *testing.T) {
	id, err := parseChatID("-1009:topic:42")
	if err != nil {
		t.Fatal(err)
	}
	if id != -1009 {
		t.Fatalf("id = %d, want -1009", id)
	}
}

func TestMediaGroupBufferFlushesOnce(t *testing.T) {
	b := newMediaGroupBuffer()
	var flushed [][]*telego.Message
	done := make(chan struct{})

	flush := func(msgs []*telego.Message) {
		flushed = append(flushed, msgs)
		close(done)
	}

	b.add("g1", &telego.Message{MessageID: 1}, flush)
	b.add("g1", &telego.Message{MessageID: 2}, flush)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("media group never flushed")
	}

	if len(flushed) != 1 || len(flushed[0]) != 2 {
		t.Fatalf("flushed = %+v", flushed)
	}
}
