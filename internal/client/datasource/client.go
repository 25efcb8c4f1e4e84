package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client fetches external market data sources referenced by markets.
type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

type APIError struct {
	URL    string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("data source %s returned %d", e.URL, e.Status)
}

func NewClient(httpClient *http.Client, userAgent string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if userAgent == "" {
		userAgent = "Prophyt-Market-Resolver/1.0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{httpClient: httpClient, userAgent: userAgent, timeout: timeout}
}

// Fetch returns the decoded JSON body, or the body as a string when it is not JSON.
func (c *Client) Fetch(ctx context.Context, rawURL string) (any, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("data source url is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{URL: rawURL, Status: resp.StatusCode}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("empty response from %s", rawURL)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body), nil
	}
	return decoded, nil
}
