// Package stt proxies voice attachments to an external speech-to-text
// service and offers EmbedTranscript to render a transcript inline,
// grounded on the teacher's internal/channels/telegram/stt.go multipart
// proxy call (a supplemented feature, see SPEC_FULL.md).
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultTimeoutSeconds = 30
	transcribeEndpoint    = "/transcribe_audio"
	maxResponseBytes      = 1 << 20
)

// Config points at an optional external transcription proxy. A blank
// ProxyURL disables transcription entirely.
type Config struct {
	ProxyURL       string
	APIKey         string
	TimeoutSeconds int
}

type response struct {
	Transcript string `json:"transcript"`
}

// Client calls the configured proxy's /transcribe_audio endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client. A zero-value Config yields a Client whose
// Transcribe always returns ("", nil), so callers can wire it
// unconditionally and let the empty URL act as the off switch.
func New(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	return &Client{cfg: cfg, httpClient: &http.Client{}}
}

// Enabled reports whether a proxy URL is configured.
func (c *Client) Enabled() bool {
	return c.cfg.ProxyURL != ""
}

// Transcribe uploads the audio file at localPath and returns its
// transcript. Returns ("", nil) when STT is not configured or localPath
// is empty, matching the teacher's silent-skip behavior for a failed
// upstream download.
func (c *Client) Transcribe(ctx context.Context, localPath string) (string, error) {
	if !c.Enabled() || localPath == "" {
		return "", nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("stt: open audio file %q: %w", localPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("stt: create form file field: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("stt: write audio bytes to form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("stt: close multipart writer: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	url := c.cfg.ProxyURL + transcribeEndpoint
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("stt: build request to %q: %w", url, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request to %q failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("stt: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stt: upstream returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("stt: parse response JSON: %w", err)
	}
	return result.Transcript, nil
}

// EmbedTranscript wraps a transcript the way the Agent expects inline
// voice-message context to look, for appending to message content.
func EmbedTranscript(transcript string) string {
	if transcript == "" {
		return ""
	}
	return "\n[voice transcript]: " + transcript
}
