// Package attachments implements the Attachment Handler (spec §4.F):
// downloading transport media to a local staging area, translating it to a
// path the agent can read, and sweeping expired files on a TTL.
//
// Grounded on original_source/python/gateway/attachment_handler.go (docker
// path prefix, uuid naming, hourly sweep) and the teacher's
// internal/channels/telegram/media.go (image re-encode, text extraction).
package attachments

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	defaultTTLHours   = 24
	cleanupInterval   = time.Hour
	internalPathPrefix = "/a0/tmp/uploads"
	docMaxChars       = 200_000
)

// textExtensions maps file extensions to MIME types for text files the
// Handler can extract content from, grounded on the teacher's media.go.
var textExtensions = map[string]string{
	".txt": "text/plain", ".md": "text/markdown", ".csv": "text/csv",
	".tsv": "text/tab-separated-values", ".json": "application/json",
	".yaml": "text/yaml", ".yml": "text/yaml", ".xml": "text/xml",
	".log": "text/plain", ".ini": "text/plain", ".cfg": "text/plain",
	".env": "text/plain", ".sh": "text/x-shellscript", ".py": "text/x-python",
	".go": "text/x-go", ".js": "text/javascript", ".ts": "text/typescript",
	".html": "text/html", ".css": "text/css", ".sql": "text/x-sql",
	".rs": "text/x-rust", ".java": "text/x-java", ".c": "text/x-c",
	".cpp": "text/x-c++", ".h": "text/x-c", ".rb": "text/x-ruby",
	".php": "text/x-php", ".toml": "text/x-toml",
}

// Handler owns a staging directory for downloaded/uploaded attachments.
type Handler struct {
	uploadFolder string
	ttl          time.Duration
	isDocker     bool
	httpClient   *http.Client

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewHandler creates a Handler rooted at uploadFolder (created if missing).
// A zero ttlHours falls back to the spec default of 24h.
func NewHandler(uploadFolder string, ttlHours int) (*Handler, error) {
	if ttlHours <= 0 {
		ttlHours = defaultTTLHours
	}
	if err := os.MkdirAll(uploadFolder, 0o755); err != nil {
		return nil, fmt.Errorf("create upload folder: %w", err)
	}
	return &Handler{
		uploadFolder: uploadFolder,
		ttl:          time.Duration(ttlHours) * time.Hour,
		isDocker:     os.Getenv("DOCKER_CONTAINER") == "1",
		httpClient:   &http.Client{},
	}, nil
}

func (h *Handler) publicPath(filename string) string {
	if h.isDocker {
		return filepath.Join(internalPathPrefix, filename)
	}
	return filepath.Join(h.uploadFolder, filename)
}

// actualPath converts a public (possibly container-internal) path back to
// the real filesystem path under the staging directory.
func (h *Handler) actualPath(path string) string {
	if strings.HasPrefix(path, internalPathPrefix) {
		return filepath.Join(h.uploadFolder, filepath.Base(path))
	}
	return path
}

func extOf(name, fallbackURL string) string {
	if name != "" {
		if e := filepath.Ext(name); e != "" {
			return e
		}
	}
	if fallbackURL != "" {
		u := fallbackURL
		if i := strings.IndexByte(u, '?'); i >= 0 {
			u = u[:i]
		}
		if e := filepath.Ext(u); e != "" {
			return e
		}
	}
	return ".bin"
}

// DownloadFromURL fetches url with the given timeout and stages it under a
// fresh uuid-based filename, returning the path handed to the agent
// (container-internal when DOCKER_CONTAINER=1).
func (h *Handler) DownloadFromURL(ctx context.Context, url, originalFilename string, timeout time.Duration) (string, error) {
	ext := extOf(originalFilename, url)
	filename := uuid.New().String() + ext
	localPath := filepath.Join(h.uploadFolder, filename)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download attachment: HTTP %d", resp.StatusCode)
	}

	if err := writeAtomic(localPath, resp.Body); err != nil {
		return "", err
	}

	slog.Debug("downloaded attachment", "filename", filename)
	return h.publicPath(filename), nil
}

// SaveFromBytes stages raw bytes without any network access.
func (h *Handler) SaveFromBytes(data []byte, filename string) (string, error) {
	ext := extOf(filename, "")
	unique := uuid.New().String() + ext
	localPath := filepath.Join(h.uploadFolder, unique)

	if err := writeAtomic(localPath, strings.NewReader(string(data))); err != nil {
		return "", err
	}
	return h.publicPath(unique), nil
}

func writeAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "upload-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close attachment: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize attachment: %w", err)
	}
	return nil
}

// CleanupFile best-effort unlinks path, resolving a container-internal path
// back to the real staging directory first.
func (h *Handler) CleanupFile(path string) {
	actual := h.actualPath(path)
	if err := os.Remove(actual); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to cleanup attachment", "path", actual, "error", err)
	}
}

// SanitizeImage re-encodes an image through imaging to strip metadata and
// normalize format before it reaches the agent, matching the teacher's
// sanitizeImage step in media.go. On failure the original path is returned.
func (h *Handler) SanitizeImage(path string) string {
	img, err := imaging.Open(path)
	if err != nil {
		slog.Warn("failed to sanitize image, using original", "error", err)
		return path
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".sanitized.jpg"
	if err := imaging.Save(img, out, imaging.JPEGQuality(90)); err != nil {
		slog.Warn("failed to save sanitized image, using original", "error", err)
		return path
	}
	_ = os.Remove(path)
	return out
}

// ExtractText reads a staged file and returns its content wrapped in an XML
// <file> tag, truncated at docMaxChars and HTML-escaped. Returns
// (message, false) for binary/unsupported extensions, where message is a
// placeholder the caller may embed instead.
func (h *Handler) ExtractText(localPath, filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	mime, ok := textExtensions[ext]
	if !ok {
		return fmt.Sprintf("[File: %s — binary format not supported, only text files can be processed]", filename), false
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Sprintf("[File: %s — read failed]", filename), false
	}

	content := string(data)
	if len(content) > docMaxChars {
		content = content[:docMaxChars] + "\n... [truncated]"
	}
	escaped := html.EscapeString(content)
	return fmt.Sprintf("<file name=%q mime=%q>\n%s\n</file>", filename, mime, escaped), true
}

// StartCleanupTask spawns the hourly TTL sweep. Idempotent.
func (h *Handler) StartCleanupTask(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	stopCh := h.stopCh
	h.mu.Unlock()

	slog.Info("attachment cleanup task started", "ttl", h.ttl)
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				h.cleanupOldFiles()
			}
		}
	}()
}

// StopCleanupTask stops the periodic sweep. Idempotent.
func (h *Handler) StopCleanupTask() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	close(h.stopCh)
	h.running = false
}

func (h *Handler) cleanupOldFiles() {
	cutoff := time.Now().Add(-h.ttl)
	entries, err := os.ReadDir(h.uploadFolder)
	if err != nil {
		slog.Error("attachment cleanup: list dir", "error", err)
		return
	}

	cleaned := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(h.uploadFolder, e.Name())); err == nil {
				cleaned++
			}
		}
	}
	if cleaned > 0 {
		slog.Info("cleaned up expired attachments", "count", cleaned)
	}
}
