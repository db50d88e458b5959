package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != defaultPort {
		t.Fatalf("port = %d, want default %d", cfg.Gateway.Port, defaultPort)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_TG_TOKEN", "secret-123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "gateway:\n  host: 0.0.0.0\n  port: 9000\nchannels:\n  telegram:\n    enabled: true\n    token: ${TEST_TG_TOKEN}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Gateway.Port)
	}
	if got := cfg.Channels["telegram"].Token; got != "secret-123" {
		t.Fatalf("token = %q, want secret-123", got)
	}
}

func TestLoadEnvVarFallbackDefault(t *testing.T) {
	os.Unsetenv("TEST_UNSET_TOKEN")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "gateway:\n  port: 8765\nchannels:\n  discord:\n    enabled: false\n    token: ${TEST_UNSET_TOKEN:-placeholder}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Channels["discord"].Token; got != "placeholder" {
		t.Fatalf("token = %q, want placeholder", got)
	}
}

func TestLoadRejectsEnabledChannelWithoutToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "gateway:\n  port: 8765\nchannels:\n  telegram:\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for enabled channel with no token")
	}
}

func TestGatewayHostEnvOverride(t *testing.T) {
	t.Setenv("GATEWAY_HOST", "0.0.0.0")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Host != "0.0.0.0" {
		t.Fatalf("host = %q, want 0.0.0.0 from env override", cfg.Gateway.Host)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Gateway.Port = 9999
	cfg.Channels["telegram"] = ChannelConfig{Enabled: true, Token: "tok"}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Gateway.Port != 9999 {
		t.Fatalf("port = %d, want 9999", loaded.Gateway.Port)
	}
	if loaded.Channels["telegram"].Token != "tok" {
		t.Fatalf("telegram token did not round-trip")
	}
}

func TestHashIsStableForEquivalentConfig(t *testing.T) {
	a := Default()
	b := Default()
	ha, err := a.Hash()
	if err != nil {
		t.Fatal(err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("hashes differ for equivalent configs: %s vs %s", ha, hb)
	}
	b.Gateway.Port = 1
	hc, _ := b.Hash()
	if hc == ha {
		t.Fatal("hash did not change after mutating config")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir available")
	}
	if got := ExpandHome("~/gateway/config.yaml"); got != filepath.Join(home, "gateway/config.yaml") {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/etc/gateway.yaml"); got != "/etc/gateway.yaml" {
		t.Fatalf("ExpandHome should not touch absolute paths, got %q", got)
	}
}
