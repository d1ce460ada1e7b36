package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/himanshu-nimonkar/TerraMind/internal/config"
)

func completionCfg(url string) config.CompletionConfig {
	return config.CompletionConfig{BaseURL: url, APIKey: "key", Model: "test-model"}
}

func TestCompleteReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Path = %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decode request: %v", err)
		}
		if req.Model != "test-model" || req.Stream {
			t.Errorf("Unexpected request %+v", req)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "answer text"}}]}`)
	}))
	defer srv.Close()

	c := NewCompletionClient(completionCfg(srv.URL))
	got, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "answer text" {
		t.Errorf("Complete = %q", got)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	c := NewCompletionClient(completionCfg(srv.URL))
	if _, err := c.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestCompleteUnconfigured(t *testing.T) {
	c := NewCompletionClient(config.CompletionConfig{})
	if _, err := c.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Error("Expected error for unconfigured provider")
	}
}

func TestStreamParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decode request: %v", err)
		}
		if !req.Stream {
			t.Error("Expected stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices": [{"delta": {"content": "Hel"}}]}

: keep-alive comment

data: {"choices": [{"delta": {"content": "lo"}}]}

data: [DONE]

data: {"choices": [{"delta": {"content": "never seen"}}]}
`)
	}))
	defer srv.Close()

	c := NewCompletionClient(completionCfg(srv.URL))
	var sb strings.Builder
	for token, err := range c.Stream(context.Background(), CompletionRequest{}) {
		if err != nil {
			t.Fatalf("Stream error: %v", err)
		}
		sb.WriteString(token)
	}
	if sb.String() != "Hello" {
		t.Errorf("Streamed %q, want Hello", sb.String())
	}
}

func TestStreamYieldsErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCompletionClient(completionCfg(srv.URL))
	var gotErr error
	for _, err := range c.Stream(context.Background(), CompletionRequest{}) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatal("Expected stream error for 429 response")
	}
	if !strings.Contains(gotErr.Error(), "429") {
		t.Errorf("Error %q missing status code", gotErr)
	}
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			fmt.Fprintf(w, "data: {\"choices\": [{\"delta\": {\"content\": \"t%d\"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewCompletionClient(completionCfg(srv.URL))
	count := 0
	for range c.Stream(context.Background(), CompletionRequest{}) {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("Consumed %d tokens after break", count)
	}
}
