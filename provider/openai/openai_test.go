package openai_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/atlast/provider/transport"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "llama" || len(req.Messages) != 2 || req.Messages[1].Content != "riddle me" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  I stand by the sea.  "}}]}`))
	}))
	defer srv.Close()

	c := NewGroqClient("groq", Options{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "llama"})
	out, err := c.Generate(context.Background(), "riddle me")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "I stand by the sea." {
		t.Fatalf("unexpected output %q", out)
	}
	if c.Name() != "groq" {
		t.Fatalf("unexpected name %s", c.Name())
	}
}

func TestGenerateQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", Options{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "x")
	if transport.KindOf(err) != transport.KindQuotaExhausted {
		t.Fatalf("expected quota exhausted, got %v", err)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", Options{BaseURL: srv.URL})
	if _, err := c.Generate(context.Background(), "x"); transport.KindOf(err) != transport.KindFatal {
		t.Fatalf("expected fatal, got %v", err)
	}
}
