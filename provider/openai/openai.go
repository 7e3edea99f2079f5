package openai_provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/atlast/provider/transport"
)

const (
	openaiAPIURL = "https://api.openai.com/v1/chat/completions"
	groqAPIURL   = "https://api.groq.com/openai/v1/chat/completions"

	systemPrompt = "You are a creative riddle master."
)

// Options configures a chat completions client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// client speaks the OpenAI chat completions protocol. Groq serves the same protocol.
type client struct {
	name        string
	url         string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a client against the OpenAI endpoint unless BaseURL overrides it.
func NewOpenAIClient(name string, opts Options) *client {
	return newClient(name, openaiAPIURL, opts)
}

// NewGroqClient creates a client against Groq's OpenAI compatible endpoint.
func NewGroqClient(name string, opts Options) *client {
	return newClient(name, groqAPIURL, opts)
}

func newClient(name, defaultURL string, opts Options) *client {
	url := defaultURL
	if opts.BaseURL != "" {
		url = strings.TrimRight(opts.BaseURL, "/") + "/chat/completions"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &client{
		name:        name,
		url:         url,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

func (c *client) Name() string { return c.name }

// Generate sends a single user prompt and returns the first choice.
func (c *client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.sendRequest(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
}

func (c *client) sendRequest(ctx context.Context, messages []Message) (string, error) {
	body := request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	var out response
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := transport.PostJSON(ctx, c.httpClient, c.name, c.url, headers, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", transport.Fatal(c.name, fmt.Errorf("no choices in response"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
