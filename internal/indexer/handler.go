package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"prophyt/internal/client/sui"
	"prophyt/internal/feed"
	"prophyt/internal/models"
	"prophyt/internal/projection"
	"prophyt/internal/repository"
)

var (
	// ErrMarketNotFound means the referenced market has not been indexed yet. The batch is
	// retried on the next iteration.
	ErrMarketNotFound = errors.New("market not indexed yet")
	// ErrBetNotFound is the bet counterpart of ErrMarketNotFound.
	ErrBetNotFound = errors.New("bet not indexed yet")
)

// IsRetryable reports whether err is a cross-stream ordering gap that heals on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrMarketNotFound) || errors.Is(err, ErrBetNotFound)
}

type Publisher interface {
	Publish(msg feed.Message)
}

// Handler applies decoded ledger events to the raw log and the market projection.
type Handler struct {
	Repo   repository.Repository
	Feed   Publisher
	Logger *zap.Logger
	Now    func() time.Time
}

// HandleBatch applies events in order; the first error aborts the batch.
func (h *Handler) HandleBatch(ctx context.Context, kind EventKind, events []sui.Event) error {
	for _, ev := range events {
		decoded, err := Decode(ev)
		if err != nil {
			return err
		}
		if decoded.Kind != kind {
			return fmt.Errorf("event %s is %s, stream expects %s", ev.ID, decoded.Kind, kind)
		}
		if err := h.Handle(ctx, decoded); err != nil {
			return fmt.Errorf("%s %s: %w", kind, ev.ID, err)
		}
	}
	return nil
}

func (h *Handler) Handle(ctx context.Context, d Decoded) error {
	if h == nil || h.Repo == nil {
		return fmt.Errorf("handler not configured")
	}
	meta := h.rawMeta(d.Event)
	var marketID string
	var err error

	switch p := d.Payload.(type) {
	case *MarketCreated:
		marketID, err = h.marketCreated(ctx, meta, p)
	case *BetPlaced:
		marketID, err = h.betPlaced(ctx, meta, p)
	case *MarketResolved:
		marketID, err = h.marketResolved(ctx, meta, p)
	case *NautilusMarketResolved:
		marketID, err = h.nautilusResolved(ctx, meta, p)
	case *WinningsClaimed:
		marketID, err = h.winningsClaimed(ctx, meta, p)
	case *YieldDeposited:
		marketID, err = h.yieldDeposited(ctx, meta, p)
	case *BetProofNFTMinted:
		marketID = string(p.MarketID)
		err = h.Repo.UpsertRawEvent(ctx, &models.BetProofNFTMintedEvent{
			RawEventMeta: meta,
			MarketID:     string(p.MarketID),
			BetID:        string(p.BetID),
			NftID:        string(p.NftID),
			Owner:        p.Owner,
			Position:     p.Position,
			BetAmount:    p.BetAmount,
			BlobAddress:  p.BlobAddress,
			ImageURL:     p.ImageURL,
			ImageBlobID:  p.ImageBlobID,
		})
	case *WinningProofNFTMinted:
		marketID = string(p.MarketID)
		err = h.Repo.UpsertRawEvent(ctx, &models.WinningProofNFTMintedEvent{
			RawEventMeta:     meta,
			MarketID:         string(p.MarketID),
			BetID:            string(p.BetID),
			NftID:            string(p.NftID),
			Owner:            p.Owner,
			WinningAmount:    p.WinningAmount,
			ProfitPercentage: p.ProfitPercentage,
			BlobAddress:      p.BlobAddress,
			ImageURL:         p.ImageURL,
			ImageBlobID:      p.ImageBlobID,
		})
	default:
		return fmt.Errorf("unhandled payload %T", d.Payload)
	}
	if err != nil {
		return err
	}

	h.publish(d, marketID)
	return nil
}

func (h *Handler) marketCreated(ctx context.Context, meta models.RawEventMeta, p *MarketCreated) (string, error) {
	chainID := strings.TrimSpace(string(p.MarketID))
	if err := h.Repo.UpsertRawEvent(ctx, &models.MarketCreatedEvent{
		RawEventMeta: meta,
		MarketID:     chainID,
		Creator:      p.Creator,
		Question:     p.Question,
		EndTime:      int64(p.EndTime),
	}); err != nil {
		return "", err
	}
	if chainID == "" {
		return "", fmt.Errorf("market created event without market id")
	}

	existing, err := h.Repo.FindMarketByRef(ctx, chainID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	seeded, err := h.Repo.FindMarketByQuestion(ctx, p.Question)
	if err != nil {
		return "", err
	}
	if seeded != nil {
		if err := h.Repo.AttachChainMarketID(ctx, seeded.ID, chainID); err != nil {
			return "", err
		}
		h.logger().Info("attached on-chain id to seeded market",
			zap.String("market", seeded.ID),
			zap.String("chain_id", chainID),
		)
		return seeded.ID, nil
	}

	now := h.now()
	creator := p.Creator
	market := &models.Market{
		ID:                 uuid.NewString(),
		MarketID:           &chainID,
		BlockchainMarketID: &chainID,
		Question:           p.Question,
		Creator:            &creator,
		Status:             models.MarketStatusActive,
		EndDate:            time.Unix(int64(p.EndTime), 0).UTC(),
		TotalYesBets:       decimal.Zero,
		TotalNoBets:        decimal.Zero,
		TotalPoolSize:      decimal.Zero,
		Volume:             decimal.Zero,
		OpenInterest:       decimal.Zero,
		Probability:        projection.Probability(decimal.Zero, decimal.Zero),
		TotalYieldEarned:   decimal.Zero,
		CreatedAt:          eventTime(meta, now),
		UpdatedAt:          now,
	}
	if err := h.Repo.CreateMarket(ctx, market); err != nil {
		return "", err
	}
	return market.ID, nil
}

func (h *Handler) betPlaced(ctx context.Context, meta models.RawEventMeta, p *BetPlaced) (string, error) {
	if err := h.Repo.UpsertRawEvent(ctx, &models.BetPlacedEvent{
		RawEventMeta: meta,
		BetID:        string(p.BetID),
		MarketID:     string(p.MarketID),
		Bettor:       p.User,
		Position:     p.Position,
		Amount:       p.Amount,
		NftID:        string(p.NftID),
	}); err != nil {
		return "", err
	}

	market, err := h.Repo.FindMarketByRef(ctx, string(p.MarketID))
	if err != nil {
		return "", err
	}
	if market == nil {
		return "", fmt.Errorf("bet %s references market %s: %w", p.BetID, p.MarketID, ErrMarketNotFound)
	}

	now := h.now()
	bet := &models.Bet{
		ID:        string(p.BetID),
		MarketID:  market.ID,
		Bettor:    p.User,
		Position:  p.Position,
		Amount:    p.Amount,
		PlacedAt:  eventTime(meta, now),
		TxDigest:  meta.TxDigest,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nft := string(p.NftID); nft != "" {
		bet.NftID = &nft
	}
	created, err := h.Repo.InsertBet(ctx, bet)
	if err != nil {
		return "", err
	}
	if !created {
		h.logger().Debug("bet already indexed", zap.String("bet", bet.ID))
	}
	if _, err := projection.Recompute(ctx, h.Repo, market.ID); err != nil {
		return "", err
	}
	return market.ID, nil
}

func (h *Handler) marketResolved(ctx context.Context, meta models.RawEventMeta, p *MarketResolved) (string, error) {
	if err := h.Repo.UpsertRawEvent(ctx, &models.MarketResolvedEvent{
		RawEventMeta:     meta,
		MarketID:         string(p.MarketID),
		Outcome:          p.Outcome,
		TotalYieldEarned: p.TotalYieldEarned,
	}); err != nil {
		return "", err
	}

	market, err := h.Repo.FindMarketByRef(ctx, string(p.MarketID))
	if err != nil {
		return "", err
	}
	if market == nil {
		return "", fmt.Errorf("resolution of market %s: %w", p.MarketID, ErrMarketNotFound)
	}

	now := h.now()
	yield := p.TotalYieldEarned
	changed, err := h.Repo.MarkMarketResolved(ctx, market.ID, repository.ResolveMarketParams{
		Outcome:          p.Outcome,
		ResolutionDate:   eventTime(meta, now),
		TotalYieldEarned: &yield,
	})
	if err != nil {
		return "", err
	}
	if !changed {
		if err := h.Repo.SetMarketYield(ctx, market.ID, yield); err != nil {
			return "", err
		}
	}
	if err := h.Repo.UpsertMarketResolution(ctx, &models.MarketResolution{
		MarketID:         market.ID,
		Outcome:          p.Outcome,
		TotalYieldEarned: yield,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		return "", err
	}
	return market.ID, nil
}

func (h *Handler) nautilusResolved(ctx context.Context, meta models.RawEventMeta, p *NautilusMarketResolved) (string, error) {
	if err := h.Repo.UpsertRawEvent(ctx, &models.NautilusMarketResolvedEvent{
		RawEventMeta:        meta,
		MarketID:            string(p.MarketID),
		Outcome:             p.Outcome,
		SourceData:          p.SourceData,
		ResolutionTimestamp: int64(p.ResolutionTimestamp),
		EnclaveID:           string(p.EnclaveID),
		BlobAddress:         p.BlobAddress,
		ImageURL:            p.ImageURL,
		ImageBlobID:         p.ImageBlobID,
	}); err != nil {
		return "", err
	}

	market, err := h.Repo.FindMarketByRef(ctx, string(p.MarketID))
	if err != nil {
		return "", err
	}
	if market == nil {
		return "", fmt.Errorf("oracle resolution of market %s: %w", p.MarketID, ErrMarketNotFound)
	}

	resolvedAt := time.Unix(int64(p.ResolutionTimestamp), 0).UTC()
	if p.ResolutionTimestamp == 0 {
		resolvedAt = eventTime(meta, h.now())
	}
	if _, err := h.Repo.MarkMarketResolved(ctx, market.ID, repository.ResolveMarketParams{
		Outcome:        p.Outcome,
		ResolutionDate: resolvedAt,
	}); err != nil {
		return "", err
	}
	return market.ID, nil
}

func (h *Handler) winningsClaimed(ctx context.Context, meta models.RawEventMeta, p *WinningsClaimed) (string, error) {
	if err := h.Repo.UpsertRawEvent(ctx, &models.WinningsClaimedEvent{
		RawEventMeta:  meta,
		BetID:         string(p.BetID),
		User:          p.User,
		WinningAmount: p.WinningAmount,
		YieldShare:    p.YieldShare,
		NftID:         string(p.NftID),
	}); err != nil {
		return "", err
	}

	bet, err := h.Repo.GetBet(ctx, string(p.BetID))
	if err != nil {
		return "", err
	}
	if bet == nil {
		return "", fmt.Errorf("claim of bet %s: %w", p.BetID, ErrBetNotFound)
	}

	now := h.now()
	if _, err := h.Repo.MarkBetClaimed(ctx, bet.ID, repository.ClaimBetParams{
		WinningAmount: p.WinningAmount,
		YieldShare:    p.YieldShare,
		ClaimedAt:     eventTime(meta, now),
	}); err != nil {
		return "", err
	}
	if err := h.Repo.UpsertWinningsClaim(ctx, &models.WinningsClaim{
		BetID:         bet.ID,
		User:          p.User,
		WinningAmount: p.WinningAmount,
		YieldShare:    p.YieldShare,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return "", err
	}
	return bet.MarketID, nil
}

func (h *Handler) yieldDeposited(ctx context.Context, meta models.RawEventMeta, p *YieldDeposited) (string, error) {
	if err := h.Repo.UpsertRawEvent(ctx, &models.YieldDepositedEvent{
		RawEventMeta: meta,
		MarketID:     string(p.MarketID),
		Amount:       p.Amount,
	}); err != nil {
		return "", err
	}

	market, err := h.Repo.FindMarketByRef(ctx, string(p.MarketID))
	if err != nil {
		return "", err
	}
	if market == nil {
		h.logger().Warn("yield deposit for unknown market dropped",
			zap.String("market", string(p.MarketID)),
			zap.String("tx", meta.TxDigest),
		)
		return "", nil
	}
	if err := h.Repo.InsertYieldDeposit(ctx, &models.YieldDeposit{
		MarketID:    market.ID,
		Amount:      p.Amount,
		TxDigest:    meta.TxDigest,
		EventSeq:    meta.EventSeq,
		DepositedAt: eventTime(meta, h.now()),
	}); err != nil {
		return "", err
	}
	return market.ID, nil
}

func (h *Handler) rawMeta(ev sui.Event) models.RawEventMeta {
	now := h.now()
	raw := ev.ParsedJSON
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return models.RawEventMeta{
		TxDigest:    ev.ID.TxDigest,
		EventSeq:    ev.ID.EventSeq,
		Sender:      ev.Sender,
		TimestampMs: int64(ev.TimestampMs),
		RawJSON:     datatypes.JSON(raw),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (h *Handler) publish(d Decoded, marketID string) {
	if h.Feed == nil {
		return
	}
	if marketID == "" {
		marketID = d.Payload.MarketRef()
	}
	h.Feed.Publish(feed.Message{
		Kind:        d.Kind.Name(),
		TxDigest:    d.Event.ID.TxDigest,
		EventSeq:    d.Event.ID.EventSeq,
		MarketID:    marketID,
		TimestampMs: int64(d.Event.TimestampMs),
		Payload:     d.Event.ParsedJSON,
		PublishedAt: h.now(),
	})
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// eventTime is the ledger timestamp of the event, or fallback when the node omitted it.
func eventTime(meta models.RawEventMeta, fallback time.Time) time.Time {
	if meta.TimestampMs <= 0 {
		return fallback
	}
	return time.UnixMilli(meta.TimestampMs).UTC()
}
