package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"prophyt/internal/models"
	"prophyt/internal/projection"
	"prophyt/internal/repository"
)

var (
	ErrMarketNotFound = errors.New("market not found")
	ErrBetNotFound    = errors.New("bet not found")
)

// StatusAll disables the market status filter.
const StatusAll = "all"

// QueryService serves the read side of the projection.
type QueryService struct {
	Repo repository.Repository
	Now  func() time.Time
}

type MarketsResult struct {
	Items []models.Market
	Total int64
}

type BetsResult struct {
	Items []models.Bet
	Total int64
}

type ResolutionsResult struct {
	Items []models.Resolution
	Total int64
}

type MarketDetail struct {
	models.Market
	Bets                []models.Bet             `json:"bets"`
	YieldDeposits       []models.YieldDeposit    `json:"yieldDeposits"`
	MarketResolvedEvent *models.MarketResolution `json:"marketResolvedEvent"`
}

type MarketStats struct {
	MarketID          string          `json:"marketId"`
	TotalYesBets      decimal.Decimal `json:"totalYesBets"`
	TotalNoBets       decimal.Decimal `json:"totalNoBets"`
	TotalYesCount     int64           `json:"totalYesCount"`
	TotalNoCount      int64           `json:"totalNoCount"`
	TotalPoolSize     decimal.Decimal `json:"totalPoolSize"`
	Probability       decimal.Decimal `json:"probability"`
	TotalBets         int             `json:"totalBets"`
	UniqueBettors     int             `json:"uniqueBettors"`
	YieldDepositCount int             `json:"yieldDepositCount"`
	TotalYieldDeposit decimal.Decimal `json:"totalYieldDeposited"`
	IsResolved        bool            `json:"isResolved"`
	Outcome           *bool           `json:"outcome"`
}

type BetDetail struct {
	models.Bet
	Market *models.Market `json:"market"`
}

type ResolutionStats struct {
	Total        int64 `json:"total"`
	Last24h      int64 `json:"last24h"`
	YesLast24h   int64 `json:"yesLast24h"`
	NoLast24h    int64 `json:"noLast24h"`
	ActiveMarket int64 `json:"activeMarkets"`
}

func (s *QueryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *QueryService) ListMarkets(ctx context.Context, params repository.ListMarketsParams) (MarketsResult, error) {
	if params.Status != nil && strings.EqualFold(strings.TrimSpace(*params.Status), StatusAll) {
		params.Status = nil
	}
	total, err := s.Repo.CountMarkets(ctx, params)
	if err != nil {
		return MarketsResult{}, err
	}
	items, err := s.Repo.ListMarkets(ctx, params)
	if err != nil {
		return MarketsResult{}, err
	}
	return MarketsResult{Items: items, Total: total}, nil
}

// GetMarket resolves a platform, event or blockchain market id.
func (s *QueryService) GetMarket(ctx context.Context, ref string) (*models.Market, error) {
	market, err := s.Repo.FindMarketByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	return market, nil
}

func (s *QueryService) MarketDetail(ctx context.Context, ref string) (*MarketDetail, error) {
	market, err := s.GetMarket(ctx, ref)
	if err != nil {
		return nil, err
	}
	bets, err := s.Repo.ListBets(ctx, repository.ListBetsParams{MarketID: &market.ID, Limit: 10})
	if err != nil {
		return nil, err
	}
	deposits, err := s.Repo.ListYieldDeposits(ctx, market.ID, 5)
	if err != nil {
		return nil, err
	}
	summary, err := s.Repo.GetMarketResolution(ctx, market.ID)
	if err != nil {
		return nil, err
	}
	return &MarketDetail{
		Market:              *market,
		Bets:                bets,
		YieldDeposits:       deposits,
		MarketResolvedEvent: summary,
	}, nil
}

func (s *QueryService) MarketStats(ctx context.Context, ref string) (*MarketStats, error) {
	market, err := s.GetMarket(ctx, ref)
	if err != nil {
		return nil, err
	}
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{MarketID: &market.ID})
	if err != nil {
		return nil, err
	}
	bettors := map[string]struct{}{}
	for _, bet := range bets {
		bettors[bet.Bettor] = struct{}{}
	}
	deposits, err := s.Repo.ListYieldDeposits(ctx, market.ID, 500)
	if err != nil {
		return nil, err
	}
	deposited, err := s.Repo.SumYieldDeposits(ctx, market.ID)
	if err != nil {
		return nil, err
	}
	return &MarketStats{
		MarketID:          market.ID,
		TotalYesBets:      market.TotalYesBets,
		TotalNoBets:       market.TotalNoBets,
		TotalYesCount:     market.TotalYesCount,
		TotalNoCount:      market.TotalNoCount,
		TotalPoolSize:     market.TotalPoolSize,
		Probability:       market.Probability,
		TotalBets:         len(bets),
		UniqueBettors:     len(bettors),
		YieldDepositCount: len(deposits),
		TotalYieldDeposit: deposited,
		IsResolved:        market.IsResolved,
		Outcome:           market.Outcome,
	}, nil
}

func (s *QueryService) ListBets(ctx context.Context, params repository.ListBetsParams) (BetsResult, error) {
	total, err := s.Repo.CountBets(ctx, params)
	if err != nil {
		return BetsResult{}, err
	}
	items, err := s.Repo.ListBets(ctx, params)
	if err != nil {
		return BetsResult{}, err
	}
	return BetsResult{Items: items, Total: total}, nil
}

// MarketBets lists the bets of a market addressed by any of its ids.
func (s *QueryService) MarketBets(ctx context.Context, ref string, limit, offset int) (BetsResult, error) {
	market, err := s.GetMarket(ctx, ref)
	if err != nil {
		return BetsResult{}, err
	}
	return s.ListBets(ctx, repository.ListBetsParams{MarketID: &market.ID, Limit: limit, Offset: offset})
}

func (s *QueryService) RecentBets(ctx context.Context, limit int) ([]models.Bet, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Repo.ListBets(ctx, repository.ListBetsParams{Limit: limit})
}

func (s *QueryService) GetBet(ctx context.Context, id string) (*BetDetail, error) {
	bet, err := s.Repo.GetBet(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, ErrBetNotFound
	}
	market, err := s.Repo.GetMarketByID(ctx, bet.MarketID)
	if err != nil {
		return nil, err
	}
	return &BetDetail{Bet: *bet, Market: market}, nil
}

func (s *QueryService) UserBets(ctx context.Context, address string, limit, offset int) (BetsResult, error) {
	address = strings.TrimSpace(address)
	return s.ListBets(ctx, repository.ListBetsParams{Bettor: &address, Limit: limit, Offset: offset})
}

func (s *QueryService) UserStats(ctx context.Context, address string) (projection.UserStats, error) {
	address = strings.TrimSpace(address)
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{Bettor: &address})
	if err != nil {
		return projection.UserStats{}, err
	}
	markets, err := s.marketsOf(ctx, bets)
	if err != nil {
		return projection.UserStats{}, err
	}
	return projection.BuildUserStats(address, bets, markets), nil
}

func (s *QueryService) marketsOf(ctx context.Context, bets []models.Bet) (map[string]models.Market, error) {
	ids := make([]string, 0, len(bets))
	seen := map[string]struct{}{}
	for _, bet := range bets {
		if _, ok := seen[bet.MarketID]; ok {
			continue
		}
		seen[bet.MarketID] = struct{}{}
		ids = append(ids, bet.MarketID)
	}
	items, err := s.Repo.ListMarketsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// MarketChart buckets a market's bets; from defaults to market creation and to defaults to now.
func (s *QueryService) MarketChart(ctx context.Context, ref string, from, to *time.Time, interval string) (projection.MarketChart, error) {
	market, err := s.GetMarket(ctx, ref)
	if err != nil {
		return projection.MarketChart{}, err
	}
	start := market.CreatedAt
	if from != nil {
		start = *from
	}
	end := s.now()
	if to != nil {
		end = *to
	}
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{MarketID: &market.ID, From: &start, To: &end})
	if err != nil {
		return projection.MarketChart{}, err
	}
	return projection.BuildMarketChart(bets, start, end, interval), nil
}

func (s *QueryService) ProbabilityChart(ctx context.Context, ref string, points int) ([]projection.Point, error) {
	market, err := s.GetMarket(ctx, ref)
	if err != nil {
		return nil, err
	}
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{MarketID: &market.ID})
	if err != nil {
		return nil, err
	}
	return projection.BuildProbabilityPoints(bets, points), nil
}

func (s *QueryService) VolumeChart(ctx context.Context, ref string, interval string) ([]projection.Point, error) {
	market, err := s.GetMarket(ctx, ref)
	if err != nil {
		return nil, err
	}
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{MarketID: &market.ID})
	if err != nil {
		return nil, err
	}
	return projection.BuildVolumeChart(bets, market.CreatedAt, s.now(), interval), nil
}

func (s *QueryService) UserHistory(ctx context.Context, address string) ([]projection.Point, error) {
	address = strings.TrimSpace(address)
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{Bettor: &address})
	if err != nil {
		return nil, err
	}
	return projection.BuildUserHistory(bets), nil
}

func (s *QueryService) PlatformChart(ctx context.Context, days int) (projection.PlatformChart, error) {
	if days <= 0 {
		days = 30
	}
	now := s.now()
	bets, err := s.Repo.ListBetHistory(ctx, repository.BetHistoryParams{To: &now})
	if err != nil {
		return projection.PlatformChart{}, err
	}
	created, err := s.Repo.ListMarketCreationTimes(ctx, now)
	if err != nil {
		return projection.PlatformChart{}, err
	}
	return projection.BuildPlatformChart(days, now, bets, created), nil
}

// TopMarkets returns active markets ordered by volume, highest first.
func (s *QueryService) TopMarkets(ctx context.Context, limit int) ([]models.Market, error) {
	if limit <= 0 {
		limit = 10
	}
	status := models.MarketStatusActive
	asc := false
	items, err := s.Repo.ListMarkets(ctx, repository.ListMarketsParams{
		Status:  &status,
		OrderBy: "volume",
		Asc:     &asc,
		Limit:   500,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Volume.GreaterThan(items[j].Volume) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *QueryService) ListResolutions(ctx context.Context, params repository.ListResolutionsParams) (ResolutionsResult, error) {
	total, err := s.Repo.CountResolutions(ctx, params)
	if err != nil {
		return ResolutionsResult{}, err
	}
	items, err := s.Repo.ListResolutions(ctx, params)
	if err != nil {
		return ResolutionsResult{}, err
	}
	return ResolutionsResult{Items: items, Total: total}, nil
}

func (s *QueryService) ResolutionStats(ctx context.Context) (ResolutionStats, error) {
	total, err := s.Repo.CountResolutions(ctx, repository.ListResolutionsParams{})
	if err != nil {
		return ResolutionStats{}, err
	}
	byOutcome, err := s.Repo.CountResolutionsByOutcomeSince(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return ResolutionStats{}, err
	}
	status := models.MarketStatusActive
	active, err := s.Repo.CountMarkets(ctx, repository.ListMarketsParams{Status: &status})
	if err != nil {
		return ResolutionStats{}, err
	}
	return ResolutionStats{
		Total:        total,
		Last24h:      byOutcome[true] + byOutcome[false],
		YesLast24h:   byOutcome[true],
		NoLast24h:    byOutcome[false],
		ActiveMarket: active,
	}, nil
}

func (s *QueryService) Streams(ctx context.Context) ([]models.EventCursor, error) {
	return s.Repo.ListCursors(ctx)
}
