package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CoinGecko API error (%d): %s", e.Status, e.Body)
}

// Quote is one coin's USD quote from /simple/price.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"marketCap"`
	Volume24h decimal.Decimal `json:"volume24h"`
	Change24h decimal.Decimal `json:"change24h"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

type simplePrice struct {
	USD          decimal.Decimal `json:"usd"`
	USDMarketCap decimal.Decimal `json:"usd_market_cap"`
	USD24hVol    decimal.Decimal `json:"usd_24h_vol"`
	USD24hChange decimal.Decimal `json:"usd_24h_change"`
}

func NewClient(httpClient *http.Client, host string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if host == "" {
		host = "https://api.coingecko.com/api/v3"
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
	}
}

// SimplePrice fetches the USD quote of one coin id (e.g. "sui").
func (c *Client) SimplePrice(ctx context.Context, coinID string) (*Quote, error) {
	coinID = strings.ToLower(strings.TrimSpace(coinID))
	if coinID == "" {
		return nil, fmt.Errorf("coin id is required")
	}
	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd")
	query.Set("include_market_cap", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var decoded map[string]simplePrice
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode price: %w", err)
	}
	item, ok := decoded[coinID]
	if !ok {
		return nil, fmt.Errorf("no price for %s", coinID)
	}
	return &Quote{
		Symbol:    strings.ToUpper(coinID),
		Currency:  "USD",
		Price:     item.USD,
		MarketCap: item.USDMarketCap.Floor(),
		Volume24h: item.USD24hVol.Floor(),
		Change24h: item.USD24hChange,
		FetchedAt: time.Now().UTC(),
	}, nil
}
