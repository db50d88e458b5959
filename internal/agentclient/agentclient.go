// Package agentclient implements bridge.Agent over HTTP, fronting the
// black-box agentic runtime the Gateway routes messages into. The
// runtime itself is out of scope; this is only the thin wire client the
// Bridge needs to compile and run against a real deployment, grounded on
// the HTTP request/response shape of internal/stt's proxy client.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/gochat-gateway/internal/bridge"
)

const defaultTimeoutSeconds = 120

// Config points at the Agent's HTTP endpoint.
type Config struct {
	Endpoint       string
	Token          string
	TimeoutSeconds int
}

// Client calls the Agent's /communicate endpoint, optionally streaming a
// newline-delimited-JSON response.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	return &Client{cfg: cfg, httpClient: &http.Client{}}
}

type requestBody struct {
	Content        string   `json:"content"`
	Attachments    []string `json:"attachments,omitempty"`
	SystemMessages []string `json:"system_messages,omitempty"`
	Stream         bool     `json:"stream"`
}

// streamLine is one line of a streaming response: either a chunk or the
// final sentinel carrying the complete text.
type streamLine struct {
	Chunk string `json:"chunk,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Final string `json:"final,omitempty"`
	Error string `json:"error,omitempty"`
}

// Communicate implements bridge.Agent. When onChunk is non-nil it POSTs
// with stream=true and reads newline-delimited JSON events, invoking
// onChunk for each chunk event until the done sentinel; otherwise it
// POSTs stream=false and decodes a single JSON response.
func (c *Client) Communicate(ctx context.Context, msg bridge.UserMessage, onChunk func(chunk string)) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	body := requestBody{
		Content:        msg.Content,
		Attachments:    msg.Attachments,
		SystemMessages: msg.SystemMessages,
		Stream:         onChunk != nil,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("agentclient: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("agentclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agentclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agentclient: agent returned status %d", resp.StatusCode)
	}

	if onChunk == nil {
		var single struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&single); err != nil {
			return "", fmt.Errorf("agentclient: decode response: %w", err)
		}
		return single.Response, nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event streamLine
		if err := json.Unmarshal(line, &event); err != nil {
			return "", fmt.Errorf("agentclient: decode stream event: %w", err)
		}
		if event.Error != "" {
			return "", fmt.Errorf("agentclient: agent error: %s", event.Error)
		}
		if event.Done {
			return event.Final, nil
		}
		onChunk(event.Chunk)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("agentclient: read stream: %w", err)
	}
	return "", fmt.Errorf("agentclient: stream ended without a done event")
}
