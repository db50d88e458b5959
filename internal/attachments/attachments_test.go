package attachments

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveFromBytesStagesUnderUUIDName(t *testing.T) {
	dir := t.TempDir()
	h, err := NewHandler(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	path, err := h.SaveFromBytes([]byte("hello"), "note.txt")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".txt" {
		t.Fatalf("expected .txt extension, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}
}

func TestDownloadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	dir := t.TempDir()
	h, err := NewHandler(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	path, err := h.DownloadFromURL(context.Background(), srv.URL+"/file.png", "", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".png" {
		t.Fatalf("expected .png extension inferred from URL, got %s", path)
	}
}

func TestCleanupFileRemovesStagedFile(t *testing.T) {
	dir := t.TempDir()
	h, err := NewHandler(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	path, err := h.SaveFromBytes([]byte("x"), "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	h.CleanupFile(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed")
	}
}

func TestExtractTextRejectsBinaryExtension(t *testing.T) {
	dir := t.TempDir()
	h, err := NewHandler(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, ok := h.ExtractText(filepath.Join(dir, "whatever.exe"), "whatever.exe")
	if ok {
		t.Fatal("binary extension should not be extractable")
	}
}

func TestExtractTextReadsAllowedExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(p, []byte("hi <there>"), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := NewHandler(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	out, ok := h.ExtractText(p, "note.txt")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if !strings.Contains(out, "&lt;there&gt;") {
		t.Fatalf("expected HTML-escaped content, got %s", out)
	}
}
