// Package cohere implements a text generator over the Cohere v2 chat API.
package cohere

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/atlast/provider/transport"
)

const defaultURL = "https://api.cohere.com/v2/chat"

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	name       string
	url        string
	opts       Options
	httpClient *http.Client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type response struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func New(name string, opts Options) *Client {
	url := defaultURL
	if opts.BaseURL != "" {
		url = strings.TrimRight(opts.BaseURL, "/") + "/v2/chat"
	}
	if opts.Model == "" {
		opts.Model = "command-r-plus"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{name: name, url: url, opts: opts, httpClient: &http.Client{Timeout: opts.Timeout}}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := request{
		Model:       c.opts.Model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	var out response
	headers := map[string]string{"Authorization": "Bearer " + c.opts.APIKey}
	if err := transport.PostJSON(ctx, c.httpClient, c.name, c.url, headers, body, &out); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, p := range out.Message.Content {
		if p.Type == "" || p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", transport.Fatal(c.name, fmt.Errorf("empty message in response"))
	}
	return text, nil
}
