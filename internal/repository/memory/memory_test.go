package memrepository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prophyt/internal/models"
	"prophyt/internal/repository"
)

func TestMarkMarketResolved_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.PutMarket(models.Market{ID: "m1", Status: models.MarketStatusActive})

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ok, err := store.MarkMarketResolved(ctx, "m1", repository.ResolveMarketParams{Outcome: true, ResolutionDate: first})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkMarketResolved(ctx, "m1", repository.ResolveMarketParams{Outcome: false, ResolutionDate: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok)

	item, err := store.GetMarketByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, item.Outcome)
	assert.True(t, *item.Outcome)
	assert.Equal(t, models.MarketStatusResolved, item.Status)
	assert.True(t, item.ResolutionDate.Equal(first))
}

func TestInsertBet_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := New()
	created, err := store.InsertBet(ctx, &models.Bet{ID: "b1", MarketID: "m1", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = store.InsertBet(ctx, &models.Bet{ID: "b1", MarketID: "m1", Amount: decimal.NewFromInt(9)})
	require.NoError(t, err)
	assert.False(t, created)

	item, err := store.GetBet(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, item.Amount.Equal(decimal.NewFromInt(5)))
}

func TestFindMarketByRef_Priority(t *testing.T) {
	ctx := context.Background()
	store := New()
	chain := "42"
	store.PutMarket(models.Market{ID: "42", Question: "platform"})
	store.PutMarket(models.Market{ID: "m2", BlockchainMarketID: &chain, Question: "chain"})

	item, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "m2", item.ID)

	item, err = store.FindMarketByRef(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestListExpiredUnresolvedMarkets(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.PutMarket(models.Market{ID: "old", Status: models.MarketStatusActive, EndDate: now.Add(-48 * time.Hour)})
	store.PutMarket(models.Market{ID: "new", Status: models.MarketStatusActive, EndDate: now.Add(-time.Hour)})
	store.PutMarket(models.Market{ID: "future", Status: models.MarketStatusActive, EndDate: now.Add(time.Hour)})
	store.PutMarket(models.Market{ID: "done", Status: models.MarketStatusResolved, IsResolved: true, EndDate: now.Add(-72 * time.Hour)})

	items, err := store.ListExpiredUnresolvedMarkets(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "old", items[0].ID)
	assert.Equal(t, "new", items[1].ID)
}

func TestCursorLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	digest, seq := "d1", "0"
	require.NoError(t, store.SaveCursor(ctx, &models.EventCursor{Stream: "s", TxDigest: &digest, EventSeq: &seq, EventsTotal: 3}))
	require.NoError(t, store.RecordCursorError(ctx, "s", "boom", time.Now()))

	item, err := store.GetCursor(ctx, "s")
	require.NoError(t, err)
	require.True(t, item.HasPosition())
	require.NotNil(t, item.LastError)
	assert.Equal(t, int64(3), item.EventsTotal)

	require.NoError(t, store.SaveCursor(ctx, &models.EventCursor{Stream: "s", TxDigest: &digest, EventSeq: &seq, EventsTotal: 2}))
	item, err = store.GetCursor(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, item.LastError)
	assert.Equal(t, int64(5), item.EventsTotal)

	require.NoError(t, store.DeleteCursor(ctx, "s"))
	item, err = store.GetCursor(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, item)
}
