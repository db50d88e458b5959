package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestStripMentionTokenRemovesBothForms(t *testing.T) {
	out := stripMentionToken("<@123> hello <@!123>", "123")
	if out != "hello" {
		t.Fatalf("stripMentionToken = %q, want %q", out, "hello")
	}
}

func TestStripMentionTokenLeavesOtherMentionsAlone(t *testing.T) {
	out := stripMentionToken("<@999> hi <@123>", "123")
	if out != "<@999> hi" {
		t.Fatalf("stripMentionToken = %q", out)
	}
}

func TestResolveDisplayNamePrefersNickname(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1", GlobalName: "Global"},
		Member: &discordgo.Member{Nick: "Nicky"},
	}}
	if got := resolveDisplayName(m); got != "Nicky" {
		t.Fatalf("resolveDisplayName = %q, want Nicky", got)
	}
}

func TestResolveDisplayNameFallsBackToGlobalName(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1", GlobalName: "Global"},
	}}
	if got := resolveDisplayName(m); got != "Global" {
		t.Fatalf("resolveDisplayName = %q, want Global", got)
	}
}

func TestResolveDisplayNameFallsBackToUsername(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1"},
	}}
	if got := resolveDisplayName(m); got != "user1" {
		t.Fatalf("resolveDisplayName = %q, want user1", got)
	}
}

func TestCapabilitiesReportsDiscordLimits(t *testing.T) {
	ch := &Channel{}
	caps := ch.Capabilities()
	if caps.MaxMessageLength != maxMessageLength {
		t.Fatalf("MaxMessageLength = %d, want %d", caps.MaxMessageLength, maxMessageLength)
	}
	if !caps.SupportsStreamingEdit {
		t.Fatal("expected SupportsStreamingEdit")
	}
}
