package pricecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"prophyt/internal/cache"
	"prophyt/internal/client/coingecko"
)

var ErrNoPrice = errors.New("no price available")

type QuoteSource interface {
	SimplePrice(ctx context.Context, coinID string) (*coingecko.Quote, error)
}

type ErrorRecorder interface {
	PriceRefreshError()
}

// Price is a cached quote. Stale is set when the upstream refresh failed and the last
// known value is served instead.
type Price struct {
	coingecko.Quote
	Stale bool `json:"stale"`
}

// Service keeps the SUI/USD quote in the shared cache.
type Service struct {
	Source  QuoteSource
	Cache   cache.Store
	TTL     time.Duration
	CoinID  string
	Metrics ErrorRecorder
	Logger  *zap.Logger

	mu sync.Mutex
}

func (s *Service) freshKey() string { return "price:" + s.coinID() }
func (s *Service) lastKey() string  { return "price:" + s.coinID() + ":last" }

// Refresh fetches the quote upstream and stores it.
func (s *Service) Refresh(ctx context.Context) (*Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) (*Price, error) {
	quote, err := s.Source.SimplePrice(ctx, s.coinID())
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.PriceRefreshError()
		}
		return nil, fmt.Errorf("fetch %s price: %w", s.coinID(), err)
	}
	price := &Price{Quote: *quote}
	if err := cache.SetJSON(ctx, s.Cache, s.freshKey(), price, s.ttl()); err != nil {
		s.logger().Warn("cache price failed", zap.Error(err))
	}
	if err := cache.SetJSON(ctx, s.Cache, s.lastKey(), price, 0); err != nil {
		s.logger().Warn("cache last price failed", zap.Error(err))
	}
	s.logger().Info("price refreshed", zap.String("coin", s.coinID()), zap.String("usd", quote.Price.String()))
	return price, nil
}

// Latest returns the cached quote, refreshing on a miss. When the refresh fails the last
// known quote is returned with Stale set.
func (s *Service) Latest(ctx context.Context) (*Price, error) {
	var cached Price
	found, err := cache.GetJSON(ctx, s.Cache, s.freshKey(), &cached)
	if err != nil {
		s.logger().Warn("read cached price failed", zap.Error(err))
	}
	if found {
		return &cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	price, refreshErr := s.refreshLocked(ctx)
	if refreshErr == nil {
		return price, nil
	}

	var last Price
	found, err = cache.GetJSON(ctx, s.Cache, s.lastKey(), &last)
	if err != nil || !found {
		return nil, fmt.Errorf("%w: %v", ErrNoPrice, refreshErr)
	}
	s.logger().Warn("serving stale price", zap.Error(refreshErr))
	last.Stale = true
	return &last, nil
}

// USDPrice returns the latest USD price of symbol. Only the configured coin is tracked.
func (s *Service) USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if !strings.EqualFold(symbol, s.coinID()) {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
	}
	price, err := s.Latest(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Price, nil
}

func (s *Service) coinID() string {
	if s.CoinID == "" {
		return "sui"
	}
	return strings.ToLower(s.CoinID)
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return time.Hour
	}
	return s.TTL
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
