// Package transport holds the HTTP plumbing shared by the text generation clients
// and the classification of their failures.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind classifies a provider failure for retry decisions.
type Kind int

const (
	// KindTransient covers rate limits, 5xx and network failures. Retryable.
	KindTransient Kind = iota
	// KindQuotaExhausted means the account quota is spent. Not retryable.
	KindQuotaExhausted
	// KindFatal covers auth failures, bad requests and unparsable responses.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuotaExhausted:
		return "quota_exhausted"
	default:
		return "fatal"
	}
}

// Error is returned by every provider client.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err, treating unclassified errors as fatal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFatal
}

var quotaMarkers = []string{"insufficient_quota", "resource_exhausted", "quota"}

// Classify maps a non-2xx HTTP response to an *Error.
func Classify(provider string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if r := []rune(msg); len(r) > 512 {
		msg = string(r[:512])
	}
	e := &Error{Provider: provider, Status: status, Err: errors.New(msg)}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindTransient
		lower := strings.ToLower(msg)
		for _, m := range quotaMarkers {
			if strings.Contains(lower, m) {
				e.Kind = KindQuotaExhausted
				break
			}
		}
	case status >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindFatal
	}
	return e
}

// Transient wraps a network level failure.
func Transient(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindTransient, Err: err}
}

// Fatal wraps a failure that retrying cannot fix.
func Fatal(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindFatal, Err: err}
}

// PostJSON sends body as JSON to url and decodes a 2xx response into out.
func PostJSON(ctx context.Context, c *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return Fatal(provider, fmt.Errorf("failed to marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Fatal(provider, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return Transient(provider, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transient(provider, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Classify(provider, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Fatal(provider, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}
