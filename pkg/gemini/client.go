// Package gemini is a minimal client for the generateContent endpoint used to read receipt images.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
)

// Kind classifies a failed call so callers can pick user facing copy.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindDNS           Kind = "dns"
	KindConnection    Kind = "connection"
	KindTimeout       Kind = "timeout"
	KindOverloaded    Kind = "overloaded"
	KindRateLimited   Kind = "rate_limited"
	KindBadRequest    Kind = "bad_request"
	KindHTTP          Kind = "http"
	KindNoCandidates  Kind = "no_candidates"
)

// Error is returned for every failed call.
type Error struct {
	Kind       Kind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gemini %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gemini %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// GenerationConfig mirrors the sampling parameters of generateContent.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// ReceiptGeneration keeps output near deterministic and short.
var ReceiptGeneration = GenerationConfig{Temperature: 0.1, TopK: 1, TopP: 0.8, MaxOutputTokens: 512}

// Config configures the client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	ConnectRetryDelay time.Duration
	OverloadDelay     time.Duration
	HTTPClient        *http.Client
}

// Client calls the model with bounded retries. Connection faults and timeouts retry
// after ConnectRetryDelay, HTTP 503 after OverloadDelay. 429 and 400 never retry.
type Client struct {
	apiKey            string
	baseURL           string
	model             string
	maxRetries        int
	connectRetryDelay time.Duration
	overloadDelay     time.Duration
	http              *http.Client
}

// NewClient applies defaults to cfg.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		apiKey:            cfg.APIKey,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		model:             cfg.Model,
		maxRetries:        cfg.MaxRetries,
		connectRetryDelay: cfg.ConnectRetryDelay,
		overloadDelay:     cfg.OverloadDelay,
		http:              cfg.HTTPClient,
	}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateFromImage sends prompt plus a base64 image of mimeType and returns the
// first candidate's text. An empty mimeType is sent as image/jpeg.
func (c *Client) GenerateFromImage(ctx context.Context, prompt, mimeType, imageBase64 string, gen GenerationConfig) (string, error) {
	if c.apiKey == "" {
		return "", &Error{Kind: KindNotConfigured, Err: errors.New("api key missing")}
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{MimeType: mimeType, Data: imageBase64}},
		}}},
		GenerationConfig: gen,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	attempt := 0
	for {
		attempt++
		text, callErr := c.do(ctx, url, body)
		if callErr == nil {
			return text, nil
		}
		callErr.Attempts = attempt
		delay, retry := c.retryDelay(callErr.Kind)
		if !retry || attempt > c.maxRetries {
			return "", callErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", &Error{Kind: KindTimeout, Attempts: attempt, Err: ctx.Err()}
		}
	}
}

func (c *Client) retryDelay(kind Kind) (time.Duration, bool) {
	switch kind {
	case KindConnection, KindDNS, KindTimeout:
		return c.connectRetryDelay, true
	case KindOverloaded:
		return c.overloadDelay, true
	default:
		return 0, false
	}
}

func (c *Client) do(ctx context.Context, url string, body []byte) (string, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindConnection, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", classifyTransport(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusServiceUnavailable:
		return "", &Error{Kind: KindOverloaded, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Error{Kind: KindRateLimited, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	case resp.StatusCode == http.StatusBadRequest:
		return "", &Error{Kind: KindBadRequest, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	default:
		return "", &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &Error{Kind: KindNoCandidates, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Kind: KindNoCandidates, Err: errors.New("response has no candidates")}
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

func classifyTransport(err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNS, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
