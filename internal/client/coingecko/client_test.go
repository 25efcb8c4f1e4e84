package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "sui", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"sui":{"usd":3.42,"usd_market_cap":11000000000.7,"usd_24h_vol":500000000.2,"usd_24h_change":-1.5}}`))
	}))
	defer srv.Close()

	quote, err := NewClient(srv.Client(), srv.URL).SimplePrice(context.Background(), "SUI")
	require.NoError(t, err)
	assert.Equal(t, "SUI", quote.Symbol)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("3.42")))
	assert.True(t, quote.MarketCap.Equal(decimal.NewFromInt(11000000000)))
	assert.True(t, quote.Change24h.Equal(decimal.RequireFromString("-1.5")))
}

func TestSimplePrice_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client(), srv.URL).SimplePrice(context.Background(), "sui")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}
