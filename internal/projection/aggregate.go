package projection

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"prophyt/internal/models"
	"prophyt/internal/repository"
)

var (
	hundred            = decimal.NewFromInt(100)
	neutralProbability = decimal.NewFromInt(50)
)

// Totals is the pool aggregate of one market's bets.
type Totals struct {
	Yes         decimal.Decimal
	No          decimal.Decimal
	YesCount    int64
	NoCount     int64
	Pool        decimal.Decimal
	Probability decimal.Decimal
}

// Aggregate recomputes pool totals from scratch. Pool is always Yes+No.
func Aggregate(bets []models.Bet) Totals {
	t := Totals{Yes: decimal.Zero, No: decimal.Zero}
	for _, bet := range bets {
		if bet.Position {
			t.Yes = t.Yes.Add(bet.Amount)
			t.YesCount++
			continue
		}
		t.No = t.No.Add(bet.Amount)
		t.NoCount++
	}
	t.Pool = t.Yes.Add(t.No)
	t.Probability = Probability(t.Yes, t.No)
	return t
}

// Probability is 100*yes/(yes+no) rounded to 4 places, or 50 for an empty pool.
func Probability(yes, no decimal.Decimal) decimal.Decimal {
	pool := yes.Add(no)
	if !pool.IsPositive() {
		return neutralProbability
	}
	return yes.Mul(hundred).DivRound(pool, 4)
}

func (t Totals) MarketTotals() repository.MarketTotals {
	return repository.MarketTotals{
		TotalYesBets:  t.Yes,
		TotalNoBets:   t.No,
		TotalYesCount: t.YesCount,
		TotalNoCount:  t.NoCount,
		TotalPoolSize: t.Pool,
		Volume:        t.Pool,
		OpenInterest:  t.Pool,
		Probability:   t.Probability,
	}
}

type Store interface {
	ListBetHistory(ctx context.Context, params repository.BetHistoryParams) ([]models.Bet, error)
	UpdateMarketTotals(ctx context.Context, id string, totals repository.MarketTotals) error
}

// Recompute rescans every bet of the market and rewrites its aggregate columns.
func Recompute(ctx context.Context, store Store, marketID string) (Totals, error) {
	bets, err := store.ListBetHistory(ctx, repository.BetHistoryParams{MarketID: &marketID})
	if err != nil {
		return Totals{}, fmt.Errorf("load bets of %s: %w", marketID, err)
	}
	totals := Aggregate(bets)
	if err := store.UpdateMarketTotals(ctx, marketID, totals.MarketTotals()); err != nil {
		return Totals{}, fmt.Errorf("update totals of %s: %w", marketID, err)
	}
	return totals, nil
}
