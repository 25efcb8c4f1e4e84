package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prophyt/internal/cache"
	"prophyt/internal/client/coingecko"
)

type fakeSource struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeSource) SimplePrice(_ context.Context, coinID string) (*coingecko.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &coingecko.Quote{Symbol: "SUI", Currency: "USD", Price: f.price, FetchedAt: time.Now()}, nil
}

type errCounter struct{ n int }

func (e *errCounter) PriceRefreshError() { e.n++ }

func TestLatest_FetchesOnMissThenServesCache(t *testing.T) {
	src := &fakeSource{price: decimal.RequireFromString("3.5")}
	svc := &Service{Source: src, Cache: cache.NewMemoryStore()}
	ctx := context.Background()

	p, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("3.5")))
	assert.False(t, p.Stale)

	_, err = svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestLatest_StaleFallback(t *testing.T) {
	src := &fakeSource{price: decimal.NewFromInt(2)}
	store := cache.NewMemoryStore()
	errs := &errCounter{}
	svc := &Service{Source: src, Cache: store, Metrics: errs}
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "price:sui"))

	src.err = errors.New("rate limited")
	p, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, p.Stale)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 1, errs.n)
}

func TestLatest_NoPriceAtAll(t *testing.T) {
	svc := &Service{Source: &fakeSource{err: errors.New("down")}, Cache: cache.NewMemoryStore()}
	_, err := svc.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestUSDPrice(t *testing.T) {
	svc := &Service{Source: &fakeSource{price: decimal.NewFromInt(4)}, Cache: cache.NewMemoryStore()}
	price, err := svc.USDPrice(context.Background(), "SUI")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(4)))

	_, err = svc.USDPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, ErrNoPrice)
}
