package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/provider/cohere"
	"github.com/mohammad-safakhou/atlast/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/atlast/provider/openai"
	"github.com/mohammad-safakhou/atlast/provider/transport"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Groq   Client = "groq"
	Gemini Client = "gemini"
	Cohere Client = "cohere"
)

// Generator turns a prompt into text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Error classes surfaced by every client.
type (
	Error = transport.Error
	Kind  = transport.Kind
)

const (
	KindTransient      = transport.KindTransient
	KindQuotaExhausted = transport.KindQuotaExhausted
	KindFatal          = transport.KindFatal
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTransient
}

// IsQuotaExhausted reports whether the provider refused for quota reasons.
func IsQuotaExhausted(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindQuotaExhausted
}

// NewGenerator creates a client for a single configured provider.
func NewGenerator(name string, p config.LLMProvider) (Generator, error) {
	switch Client(strings.ToLower(strings.TrimSpace(p.Type))) {
	case OpenAI:
		return openai_provider.NewOpenAIClient(name, openaiOptions(p)), nil
	case Groq:
		return openai_provider.NewGroqClient(name, openaiOptions(p)), nil
	case Gemini:
		return gemini.New(name, gemini.Options{
			APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model,
			Temperature: p.Temperature, MaxTokens: p.MaxTokens, Timeout: p.Timeout,
		}), nil
	case Cohere:
		return cohere.New(name, cohere.Options{
			APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model,
			Temperature: p.Temperature, MaxTokens: p.MaxTokens, Timeout: p.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", p.Type)
	}
}

func openaiOptions(p config.LLMProvider) openai_provider.Options {
	return openai_provider.Options{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Timeout:     p.Timeout,
	}
}

// Set is the provider wiring resolved from configuration.
type Set struct {
	Generators []Generator // ordered, primary first
	Critics    []Critic    // ordered fallback chain; empty disables critique
	Proposer   Generator   // nil keeps target selection on the static pools
	All        map[string]Generator
}

// NewSet builds every configured provider and resolves the roles.
func NewSet(cfg config.LLMConfig) (*Set, error) {
	s := &Set{All: make(map[string]Generator, len(cfg.Providers))}
	for name, p := range cfg.Providers {
		g, err := NewGenerator(name, p)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		s.All[name] = g
	}
	for _, name := range cfg.Generators {
		g, ok := s.All[name]
		if !ok {
			return nil, fmt.Errorf("generator %q not configured", name)
		}
		s.Generators = append(s.Generators, g)
	}
	for _, name := range cfg.CriticChain() {
		g, ok := s.All[name]
		if !ok {
			return nil, fmt.Errorf("critic %q not configured", name)
		}
		s.Critics = append(s.Critics, NewPromptCritic(g))
	}
	if cfg.Proposer != "" {
		g, ok := s.All[cfg.Proposer]
		if !ok {
			return nil, fmt.Errorf("proposer %q not configured", cfg.Proposer)
		}
		s.Proposer = g
	}
	return s, nil
}
