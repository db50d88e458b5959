package agentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/gochat-gateway/internal/bridge"
)

func TestCommunicateNonStreamingDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req requestBody
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Fatal("expected stream=false")
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "hello back"})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	out, err := c.Communicate(context.Background(), bridge.UserMessage{Content: "hi"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello back" {
		t.Fatalf("response = %q", out)
	}
}

func TestCommunicateStreamingInvokesOnChunkThenReturnsFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"chunk":"Hel"}`,
			`{"chunk":"lo"}`,
			`{"done":true,"final":"Hello"}`,
		}
		w.Write([]byte(strings.Join(lines, "\n")))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	var chunks []string
	out, err := c.Communicate(context.Background(), bridge.UserMessage{Content: "hi"}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello" {
		t.Fatalf("final = %q", out)
	}
	if len(chunks) != 2 || chunks[0] != "Hel" || chunks[1] != "lo" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestCommunicatePropagatesUpstreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"agent crashed"}` + "\n"))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Communicate(context.Background(), bridge.UserMessage{Content: "hi"}, func(string) {})
	if err == nil || !strings.Contains(err.Error(), "agent crashed") {
		t.Fatalf("expected agent error, got %v", err)
	}
}

func TestCommunicateNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Communicate(context.Background(), bridge.UserMessage{Content: "hi"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}
