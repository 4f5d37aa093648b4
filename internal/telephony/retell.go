// Package telephony talks to the voice platform's REST API: placing calls and
// authenticating its webhooks.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.retellai.com"

var ErrNotConfigured = errors.New("telephony: platform API key not configured")

// Config holds the platform credentials.
type Config struct {
	APIKey     string
	FromNumber string
	BaseURL    string
}

// Client is a minimal Retell REST client.
type Client struct {
	apiKey     string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether an API key is set.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// PhoneCallRequest places an outbound call. Variables are exposed to the
// agent prompt; Metadata is echoed back on webhooks.
type PhoneCallRequest struct {
	ToNumber   string
	FromNumber string
	AgentID    string
	Variables  map[string]string
	Metadata   map[string]any
}

// PlatformCall is the platform's view of a call.
type PlatformCall struct {
	CallID     string         `json:"call_id"`
	AgentID    string         `json:"agent_id,omitempty"`
	CallStatus string         `json:"call_status,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreatePhoneCall dials the driver.
func (c *Client) CreatePhoneCall(ctx context.Context, r PhoneCallRequest) (*PlatformCall, error) {
	from := r.FromNumber
	if from == "" {
		from = c.fromNumber
	}
	if from == "" {
		return nil, errors.New("telephony: no from number configured")
	}

	body := map[string]any{
		"from_number": from,
		"to_number":   r.ToNumber,
	}
	if r.AgentID != "" {
		body["override_agent_id"] = r.AgentID
	}
	if len(r.Variables) > 0 {
		body["retell_llm_dynamic_variables"] = r.Variables
	}
	if len(r.Metadata) > 0 {
		body["metadata"] = r.Metadata
	}

	var out PlatformCall
	if err := c.do(ctx, http.MethodPost, "/v2/create-phone-call", body, &out); err != nil {
		return nil, err
	}
	if out.CallID == "" {
		return nil, fmt.Errorf("telephony: response has no call_id")
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("platform API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
