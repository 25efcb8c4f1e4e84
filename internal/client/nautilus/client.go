package nautilus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the attestation enclave server.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	healthTimeout time.Duration
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nautilus server error (%d): %s", e.Status, e.Body)
}

type ResolveRequest struct {
	MarketID       uint64 `json:"market_id"`
	MarketQuestion string `json:"market_question"`
	MarketEndTime  int64  `json:"market_end_time"`
	DataSourceURL  string `json:"data_source_url,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

// Attestation is a signed outcome. Hashes, signature and public key are hex encoded.
type Attestation struct {
	MarketID            uint64 `json:"market_id"`
	Outcome             bool   `json:"outcome"`
	SourceData          string `json:"source_data"`
	SourceDataHash      string `json:"source_data_hash"`
	ResolutionTimestamp int64  `json:"resolution_timestamp"`
	MediaHash           string `json:"media_hash"`
	Signature           string `json:"signature"`
	PublicKey           string `json:"public_key"`
}

func NewClient(httpClient *http.Client, baseURL string, timeout, healthTimeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    httpClient,
		timeout:       timeout,
		healthTimeout: healthTimeout,
	}
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// Health probes GET /health. Any transport error or non-200 status reads as unhealthy.
func (c *Client) Health(ctx context.Context) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("nautilus client not configured")
	}
	if _, err := c.do(ctx, c.healthTimeout, http.MethodGet, "/health", nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (*Attestation, error) {
	if c == nil {
		return nil, fmt.Errorf("nautilus client not configured")
	}
	if req.MarketID == 0 {
		return nil, fmt.Errorf("market_id is required")
	}
	raw, err := c.do(ctx, c.timeout, http.MethodPost, "/resolve", req)
	if err != nil {
		return nil, err
	}
	var out Attestation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode attestation: %w", err)
	}
	if out.Signature == "" || out.PublicKey == "" {
		return nil, fmt.Errorf("attestation for market %d is unsigned", req.MarketID)
	}
	return &out, nil
}

// PendingMarkets returns the server's pending market list untouched.
func (c *Client) PendingMarkets(ctx context.Context) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("nautilus client not configured")
	}
	raw, err := c.do(ctx, c.healthTimeout, http.MethodGet, "/markets/pending", nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("pending markets response is not json")
	}
	return json.RawMessage(raw), nil
}
