package cohere

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
		if r.URL.Path != "/v2/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "command-r-plus" || req.Messages[0].Content != "judge" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"message":{"content":[{"type":"text","text":"PASS: accurate"}]}}`))
	}))
	defer srv.Close()

	out, err := New("cohere", Options{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), "judge")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "PASS: accurate" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestGenerateEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":[]}}`))
	}))
	defer srv.Close()

	_, err := New("cohere", Options{BaseURL: srv.URL}).Generate(context.Background(), "judge")
	if transport.KindOf(err) != transport.KindFatal {
		t.Fatalf("expected fatal, got %v", err)
	}
}
