package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kbsearch/config"
	"kbsearch/internal/port"
)

func TestOllamaGenerate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: got.Model, Response: " 2, 1\n", Done: true})
	}))
	defer srv.Close()

	o := NewOllamaLLM(srv.URL+"/", "llama3.1:8b")
	out, err := o.Generate(context.Background(), "pick", port.GenerateOptions{Temperature: 0.1, TopP: 0.9, NumCtx: 4096})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "2, 1" {
		t.Errorf("expected trimmed response, got %q", out)
	}
	if got.Stream {
		t.Error("expected non-streaming request")
	}
	if got.Model != "llama3.1:8b" || got.Prompt != "pick" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Options.Temperature != 0.1 || got.Options.TopP != 0.9 || got.Options.NumCtx != 4096 {
		t.Errorf("sampling options not forwarded: %+v", got.Options)
	}
}

func TestOllamaGenerate_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaLLM(srv.URL, "missing").Generate(context.Background(), "x", port.GenerateOptions{})
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestOllamaGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOllamaLLM(srv.URL, "slow").Generate(ctx, "x", port.GenerateOptions{})
	if err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestOpenAIChatGenerate(t *testing.T) {
	t.Setenv("KBSEARCH_TEST_KEY", "sk-test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "gpt-test" {
			t.Errorf("unexpected model %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"3,1"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIChat("KBSEARCH_TEST_KEY", "gpt-test", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Generate(context.Background(), "pick", port.GenerateOptions{Temperature: 0.2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "3,1" {
		t.Errorf("expected 3,1, got %q", out)
	}
}

func TestNew(t *testing.T) {
	m, err := New(config.RerankConfig{Provider: "ollama", Model: "llama3.1:8b"})
	if err != nil {
		t.Fatal(err)
	}
	if m.ModelName() != "llama3.1:8b" {
		t.Errorf("unexpected model %s", m.ModelName())
	}

	if _, err := New(config.RerankConfig{Provider: "groq"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	t.Setenv("KBSEARCH_EMPTY_KEY", "")
	if _, err := New(config.RerankConfig{Provider: "openai", APIKeyEnv: "KBSEARCH_EMPTY_KEY"}); err == nil {
		t.Error("expected error when the API key is missing")
	}
}
