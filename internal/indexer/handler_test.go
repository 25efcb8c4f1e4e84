package indexer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prophyt/internal/client/sui"
	"prophyt/internal/models"
	"prophyt/internal/repository"
)

const createdBody = `{"market_id":"42","creator":"0xc","question":"Will SUI close above $5?","end_time":"1750000000"}`

func handle(t *testing.T, h *Handler, kind EventKind, evs ...sui.Event) error {
	t.Helper()
	return h.HandleBatch(context.Background(), kind, evs)
}

func TestHandler_MarketCreatedThenBets(t *testing.T) {
	h, store, pub := newTestHandler()
	ctx := context.Background()

	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1_700_000_000_000, createdBody)))
	market, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, market)
	assert.Equal(t, models.MarketStatusActive, market.Status)
	assert.Equal(t, int64(1750000000), market.EndDate.Unix())
	assert.Equal(t, "50", market.Probability.String())

	require.NoError(t, handle(t, h, KindBetPlaced,
		ledgerEvent(KindBetPlaced, "tx2", 0, 1_700_000_001_000, `{"bet_id":"b1","market_id":"42","user":"0xu","position":true,"amount":"700"}`),
		ledgerEvent(KindBetPlaced, "tx3", 0, 1_700_000_002_000, `{"bet_id":"b2","market_id":"42","user":"0xv","position":false,"amount":"300"}`),
	))
	market, err = store.GetMarketByID(ctx, market.ID)
	require.NoError(t, err)
	assert.True(t, market.TotalPoolSize.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "70", market.Probability.String())
	assert.Equal(t, int64(1), market.TotalYesCount)
	assert.Equal(t, 3, pub.Len())
	assert.Equal(t, market.ID, pub.msgs[1].MarketID)
}

func TestHandler_ReplayIsIdempotent(t *testing.T) {
	h, store, _ := newTestHandler()
	ctx := context.Background()
	created := ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)
	bet := ledgerEvent(KindBetPlaced, "tx2", 0, 2, `{"bet_id":"b1","market_id":"42","user":"0xu","position":true,"amount":"10"}`)

	for i := 0; i < 2; i++ {
		require.NoError(t, handle(t, h, KindMarketCreated, created))
		require.NoError(t, handle(t, h, KindBetPlaced, bet))
	}

	count, err := store.CountMarkets(ctx, repository.ListMarketsParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	bets, err := store.CountBets(ctx, repository.ListBetsParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), bets)
	assert.Equal(t, 1, store.RawEventCount(models.MarketCreatedEvent{}.TableName()))
	assert.Equal(t, 1, store.RawEventCount(models.BetPlacedEvent{}.TableName()))

	market, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	assert.True(t, market.TotalYesBets.Equal(decimal.NewFromInt(10)))
}

func TestHandler_BetBeforeMarketIsRetryable(t *testing.T) {
	h, store, pub := newTestHandler()
	bet := ledgerEvent(KindBetPlaced, "tx2", 0, 2, `{"bet_id":"b1","market_id":"42","user":"0xu","position":true,"amount":"10"}`)

	err := handle(t, h, KindBetPlaced, bet)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMarketNotFound)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, pub.Len())

	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)))
	require.NoError(t, handle(t, h, KindBetPlaced, bet))
	got, err := store.GetBet(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestHandler_SeededMarketGetsChainID(t *testing.T) {
	h, store, _ := newTestHandler()
	ctx := context.Background()
	store.PutMarket(models.Market{ID: "seed-1", Question: "Will SUI close above $5?", Status: models.MarketStatusActive, Probability: decimal.NewFromInt(50)})

	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)))

	count, err := store.CountMarkets(ctx, repository.ListMarketsParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	market, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, market)
	assert.Equal(t, "seed-1", market.ID)
}

func TestHandler_SameQuestionKeepsMarketsApart(t *testing.T) {
	h, store, _ := newTestHandler()
	ctx := context.Background()
	second := `{"market_id":"43","creator":"0xc","question":"Will SUI close above $5?","end_time":"1760000000"}`

	require.NoError(t, handle(t, h, KindMarketCreated,
		ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody),
		ledgerEvent(KindMarketCreated, "tx2", 0, 2, second),
	))

	count, err := store.CountMarkets(ctx, repository.ListMarketsParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	m42, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, m42)
	m43, err := store.FindMarketByRef(ctx, "43")
	require.NoError(t, err)
	require.NotNil(t, m43)
	assert.NotEqual(t, m42.ID, m43.ID)
	assert.Equal(t, "42", *m42.BlockchainMarketID)
	assert.Equal(t, "43", *m43.BlockchainMarketID)

	require.NoError(t, handle(t, h, KindBetPlaced,
		ledgerEvent(KindBetPlaced, "tx3", 0, 3, `{"bet_id":"b1","market_id":"42","user":"0xu","position":true,"amount":"10"}`),
	))
	m43, err = store.FindMarketByRef(ctx, "43")
	require.NoError(t, err)
	assert.True(t, m43.TotalPoolSize.IsZero())
}

func TestHandler_MarketResolvedIsTerminal(t *testing.T) {
	h, store, _ := newTestHandler()
	ctx := context.Background()
	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)))

	require.NoError(t, handle(t, h, KindMarketResolved,
		ledgerEvent(KindMarketResolved, "tx5", 0, 1_750_000_100_000, `{"market_id":"42","outcome":true,"total_yield_earned":"12"}`)))
	require.NoError(t, handle(t, h, KindMarketResolved,
		ledgerEvent(KindMarketResolved, "tx6", 0, 1_750_000_200_000, `{"market_id":"42","outcome":false,"total_yield_earned":"15"}`)))

	market, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	assert.True(t, market.IsResolved)
	require.NotNil(t, market.Outcome)
	assert.True(t, *market.Outcome)
	assert.Equal(t, int64(1_750_000_100), market.ResolutionDate.Unix())
	assert.True(t, market.TotalYieldEarned.Equal(decimal.NewFromInt(15)))

	summary, ok := store.MarketResolution(market.ID)
	require.True(t, ok)
	assert.True(t, summary.TotalYieldEarned.Equal(decimal.NewFromInt(15)))
}

func TestHandler_NautilusResolved(t *testing.T) {
	h, store, _ := newTestHandler()
	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)))
	require.NoError(t, handle(t, h, KindNautilusMarketResolved,
		ledgerEvent(KindNautilusMarketResolved, "tx7", 0, 1, `{"market_id":42,"outcome":false,"source_data":"api","resolution_timestamp":"1750000500","enclave_id":"0xe"}`)))

	market, err := store.FindMarketByRef(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, market.IsResolved)
	assert.False(t, *market.Outcome)
	assert.Equal(t, int64(1750000500), market.ResolutionDate.Unix())
}

func TestHandler_ResolutionOfUnknownMarketIsRetryable(t *testing.T) {
	h, _, _ := newTestHandler()
	err := handle(t, h, KindMarketResolved, ledgerEvent(KindMarketResolved, "tx5", 0, 1, `{"market_id":"404","outcome":true,"total_yield_earned":"0"}`))
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestHandler_WinningsClaimed(t *testing.T) {
	h, store, _ := newTestHandler()
	ctx := context.Background()
	claim := ledgerEvent(KindWinningsClaimed, "tx9", 0, 1_760_000_000_000, `{"bet_id":"b1","user":"0xu","winning_amount":"25","yield_share":"2"}`)

	assert.ErrorIs(t, handle(t, h, KindWinningsClaimed, claim), ErrBetNotFound)

	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)))
	require.NoError(t, handle(t, h, KindBetPlaced, ledgerEvent(KindBetPlaced, "tx2", 0, 2, `{"bet_id":"b1","market_id":"42","user":"0xu","position":true,"amount":"10"}`)))
	require.NoError(t, handle(t, h, KindWinningsClaimed, claim))
	require.NoError(t, handle(t, h, KindWinningsClaimed, claim))

	bet, err := store.GetBet(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, bet.IsClaimed)
	assert.True(t, bet.WinningAmount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, int64(1_760_000_000), bet.ClaimedAt.Unix())
}

func TestHandler_YieldDeposited(t *testing.T) {
	h, store, _ := newTestHandler()
	ctx := context.Background()
	deposit := ledgerEvent(KindYieldDeposited, "tx3", 1, 5, `{"market_id":"42","amount":"7"}`)

	require.NoError(t, handle(t, h, KindYieldDeposited, deposit))
	assert.Equal(t, 1, store.RawEventCount(models.YieldDepositedEvent{}.TableName()))

	require.NoError(t, handle(t, h, KindMarketCreated, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody)))
	market, err := store.FindMarketByRef(ctx, "42")
	require.NoError(t, err)
	deposits, err := store.ListYieldDeposits(ctx, market.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, deposits)

	require.NoError(t, handle(t, h, KindYieldDeposited, deposit))
	require.NoError(t, handle(t, h, KindYieldDeposited, deposit))
	deposits, err = store.ListYieldDeposits(ctx, market.ID, 5)
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}

func TestHandler_NFTEventsAreRawOnly(t *testing.T) {
	h, store, pub := newTestHandler()
	require.NoError(t, handle(t, h, KindBetProofNFTMinted,
		ledgerEvent(KindBetProofNFTMinted, "tx4", 0, 1, `{"market_id":"42","bet_id":"b1","nft_id":"0xn","owner":"0xu","position":true,"bet_amount":"10"}`)))
	require.NoError(t, handle(t, h, KindWinningProofNFTMinted,
		ledgerEvent(KindWinningProofNFTMinted, "tx4", 1, 1, `{"market_id":"42","bet_id":"b1","nft_id":"0xn","owner":"0xu","winning_amount":"10","profit_percentage":"50"}`)))

	assert.Equal(t, 1, store.RawEventCount(models.BetProofNFTMintedEvent{}.TableName()))
	assert.Equal(t, 1, store.RawEventCount(models.WinningProofNFTMintedEvent{}.TableName()))
	count, err := store.CountMarkets(context.Background(), repository.ListMarketsParams{})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 2, pub.Len())
}

func TestHandler_RejectsForeignKindInBatch(t *testing.T) {
	h, _, _ := newTestHandler()
	err := handle(t, h, KindBetPlaced, ledgerEvent(KindMarketCreated, "tx1", 0, 1, createdBody))
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))
}
