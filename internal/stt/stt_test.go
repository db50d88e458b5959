package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestTranscribeDisabledWhenNoProxyURL(t *testing.T) {
	c := New(Config{})
	got, err := c.Transcribe(context.Background(), "/tmp/whatever.ogg")
	if err != nil || got != "" {
		t.Fatalf("expected silent no-op, got %q, %v", got, err)
	}
}

func TestTranscribeEmptyPathIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called for an empty path")
	}))
	defer srv.Close()

	c := New(Config{ProxyURL: srv.URL})
	got, err := c.Transcribe(context.Background(), "")
	if err != nil || got != "" {
		t.Fatalf("expected no-op, got %q, %v", got, err)
	}
}

func TestTranscribePostsMultipartAndParsesTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe_audio" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer file.Close()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript":"hello world"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "voice.ogg")
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(Config{ProxyURL: srv.URL})
	got, err := c.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestEmbedTranscript(t *testing.T) {
	if got := EmbedTranscript(""); got != "" {
		t.Fatalf("empty transcript should embed as empty, got %q", got)
	}
	if got := EmbedTranscript("hi"); got != "\n[voice transcript]: hi" {
		t.Fatalf("unexpected embed: %q", got)
	}
}
