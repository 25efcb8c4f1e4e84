package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"prophyt/internal/models"
)

// CursorRepository persists one position row per tracked stream.
type CursorRepository interface {
	GetCursor(ctx context.Context, stream string) (*models.EventCursor, error)
	SaveCursor(ctx context.Context, item *models.EventCursor) error
	RecordCursorError(ctx context.Context, stream string, message string, at time.Time) error
	DeleteCursor(ctx context.Context, stream string) error
	ListCursors(ctx context.Context) ([]models.EventCursor, error)
}

// EventRepository appends raw ledger events. Upserts are keyed by (tx_digest, event_seq)
// and only refresh the raw payload on conflict.
type EventRepository interface {
	UpsertRawEvent(ctx context.Context, item models.RawEvent) error
}

type MarketRepository interface {
	GetMarketByID(ctx context.Context, id string) (*models.Market, error)
	// FindMarketByRef resolves an event market reference: blockchain id, then event market id, then platform id.
	FindMarketByRef(ctx context.Context, ref string) (*models.Market, error)
	// FindMarketByQuestion returns a seeded market with this question that has no on-chain id yet.
	FindMarketByQuestion(ctx context.Context, question string) (*models.Market, error)
	CreateMarket(ctx context.Context, item *models.Market) error
	AttachChainMarketID(ctx context.Context, id string, chainID string) error
	UpdateMarketTotals(ctx context.Context, id string, totals MarketTotals) error
	// MarkMarketResolved applies the terminal mutation only while is_resolved is false.
	MarkMarketResolved(ctx context.Context, id string, params ResolveMarketParams) (bool, error)
	SetMarketYield(ctx context.Context, id string, total decimal.Decimal) error
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)
	CountMarkets(ctx context.Context, params ListMarketsParams) (int64, error)
	ListMarketsByIDs(ctx context.Context, ids []string) ([]models.Market, error)
	ListExpiredUnresolvedMarkets(ctx context.Context, now time.Time, limit int) ([]models.Market, error)
	ListMarketCreationTimes(ctx context.Context, until time.Time) ([]time.Time, error)
	UpsertMarketResolution(ctx context.Context, item *models.MarketResolution) error
	GetMarketResolution(ctx context.Context, marketID string) (*models.MarketResolution, error)
}

type BetRepository interface {
	GetBet(ctx context.Context, id string) (*models.Bet, error)
	// InsertBet creates the bet unless the id already exists; created reports which happened.
	InsertBet(ctx context.Context, item *models.Bet) (created bool, err error)
	ListBets(ctx context.Context, params ListBetsParams) ([]models.Bet, error)
	CountBets(ctx context.Context, params ListBetsParams) (int64, error)
	// ListBetHistory returns every matching bet ordered by placed_at ascending.
	ListBetHistory(ctx context.Context, params BetHistoryParams) ([]models.Bet, error)
	MarkBetClaimed(ctx context.Context, id string, params ClaimBetParams) (bool, error)
	UpsertWinningsClaim(ctx context.Context, item *models.WinningsClaim) error
}

type YieldRepository interface {
	InsertYieldDeposit(ctx context.Context, item *models.YieldDeposit) error
	ListYieldDeposits(ctx context.Context, marketID string, limit int) ([]models.YieldDeposit, error)
	SumYieldDeposits(ctx context.Context, marketID string) (decimal.Decimal, error)
}

type ResolutionRepository interface {
	InsertResolution(ctx context.Context, item *models.Resolution) error
	ListResolutions(ctx context.Context, params ListResolutionsParams) ([]models.Resolution, error)
	CountResolutions(ctx context.Context, params ListResolutionsParams) (int64, error)
	CountResolutionsByOutcomeSince(ctx context.Context, since time.Time) (map[bool]int64, error)
}

// Repository is the full storage surface of the indexer.
type Repository interface {
	CursorRepository
	EventRepository
	MarketRepository
	BetRepository
	YieldRepository
	ResolutionRepository
}

type MarketTotals struct {
	TotalYesBets  decimal.Decimal
	TotalNoBets   decimal.Decimal
	TotalYesCount int64
	TotalNoCount  int64
	TotalPoolSize decimal.Decimal
	Volume        decimal.Decimal
	OpenInterest  decimal.Decimal
	Probability   decimal.Decimal
}

type ResolveMarketParams struct {
	Outcome          bool
	ResolutionDate   time.Time
	TotalYieldEarned *decimal.Decimal
}

type ClaimBetParams struct {
	WinningAmount decimal.Decimal
	YieldShare    decimal.Decimal
	ClaimedAt     time.Time
}

type ListMarketsParams struct {
	Limit      int
	Offset     int
	Status     *string
	ProtocolID *string
	IsResolved *bool
	OrderBy    string
	Asc        *bool
}

type ListBetsParams struct {
	Limit    int
	Offset   int
	MarketID *string
	Bettor   *string
	OrderBy  string
	Asc      *bool
}

type BetHistoryParams struct {
	MarketID *string
	Bettor   *string
	From     *time.Time
	To       *time.Time
}

type ListResolutionsParams struct {
	Limit    int
	Offset   int
	MarketID *string
}
