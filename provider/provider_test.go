package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/provider/transport"
)

type stubGenerator struct {
	name  string
	reply string
	err   error
	last  string
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.last = prompt
	return s.reply, s.err
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		in       string
		pass     bool
		feedback string
		bad      bool
	}{
		{"PASS: accurate and unique", true, "accurate and unique", false},
		{"pass - fine", true, "- fine", false},
		{"  FAIL: names the city", false, "names the city", false},
		{"Fail", false, "", false},
		{"Looks good to me", false, "", true},
		{"", false, "", true},
	}
	for _, c := range cases {
		v, err := ParseVerdict(c.in)
		if c.bad {
			if !errors.Is(err, ErrMalformedVerdict) {
				t.Errorf("ParseVerdict(%q) expected malformed, got %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVerdict(%q): %v", c.in, err)
			continue
		}
		if v.Pass != c.pass || v.Feedback != c.feedback {
			t.Errorf("ParseVerdict(%q) = %+v", c.in, v)
		}
	}
}

func TestPromptCritic(t *testing.T) {
	g := &stubGenerator{name: "cohere", reply: "FAIL: too vague"}
	c := NewPromptCritic(g)
	v, err := c.Critique(context.Background(), "Kyoto", "I have many temples.")
	if err != nil {
		t.Fatalf("Critique: %v", err)
	}
	if v.Pass || v.Feedback != "too vague" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if !strings.Contains(g.last, "Target City: Kyoto") || !strings.Contains(g.last, "I have many temples.") {
		t.Fatalf("prompt missing target or riddle: %s", g.last)
	}
	if c.Name() != "cohere" {
		t.Fatalf("unexpected name %s", c.Name())
	}

	g.err = transport.Transient("cohere", fmt.Errorf("timeout"))
	if _, err := c.Critique(context.Background(), "Kyoto", "x"); !IsTransient(err) {
		t.Fatalf("expected transient error to pass through, got %v", err)
	}
}

func TestErrorHelpers(t *testing.T) {
	q := fmt.Errorf("draft: %w", &Error{Provider: "groq", Kind: KindQuotaExhausted})
	if !IsQuotaExhausted(q) || IsTransient(q) {
		t.Fatalf("quota classification wrong")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatalf("plain error must not be transient")
	}
}

func TestNewSet(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"groq":   {Type: "groq", Model: "llama"},
			"gemini": {Type: "gemini"},
			"cohere": {Type: "cohere"},
		},
		Generators: []string{"groq", "gemini"},
		Critic:     "cohere",
		Proposer:   "gemini",
	}
	s, err := NewSet(cfg)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if len(s.Generators) != 2 || s.Generators[0].Name() != "groq" || s.Generators[1].Name() != "gemini" {
		t.Fatalf("generators out of order")
	}
	if len(s.Critics) != 1 || s.Critics[0].Name() != "cohere" {
		t.Fatalf("critic not wired")
	}
	if s.Proposer == nil || s.Proposer.Name() != "gemini" {
		t.Fatalf("proposer not wired")
	}

	cfg.Critics = []string{"cohere", "gemini"}
	s, err = NewSet(cfg)
	if err != nil {
		t.Fatalf("NewSet with critic chain: %v", err)
	}
	if len(s.Critics) != 2 || s.Critics[0].Name() != "cohere" || s.Critics[1].Name() != "gemini" {
		t.Fatalf("critic chain out of order")
	}

	if _, err := NewGenerator("x", config.LLMProvider{Type: "anthropic"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestDraftPrompt(t *testing.T) {
	if p := DraftPrompt("Kyoto", ""); !strings.Contains(p, "city of Kyoto") {
		t.Fatalf("unexpected prompt %s", p)
	}
	if p := DraftPrompt("Kyoto", "too vague"); !strings.Contains(p, "Feedback from QA: too vague") {
		t.Fatalf("feedback missing from prompt %s", p)
	}
}
