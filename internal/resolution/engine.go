package resolution

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"prophyt/internal/archive"
	"prophyt/internal/client/nautilus"
	"prophyt/internal/client/sui"
	"prophyt/internal/models"
	"prophyt/internal/repository"
)

var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrNoMarketIdentifier = errors.New("market has no usable on-chain identifier")
	ErrNotExpired         = errors.New("market has not ended yet")
	ErrInconclusive       = errors.New("no outcome signal")
	ErrSweepRunning       = errors.New("a sweep is already running")
	ErrNotPersisted       = errors.New("resolution landed on-chain but was not stored")
)

const (
	PathNautilus = "nautilus"
	PathManual   = "manual"

	PolicyDefaultNo       = "default_no"
	PolicyLeaveUnresolved = "leave_unresolved"

	clockObjectID = "0x6"
)

type Submitter interface {
	SubmitMoveCall(ctx context.Context, req sui.MoveCallRequest) (*sui.TransactionResponse, error)
}

type ObjectReader interface {
	GetObject(ctx context.Context, id string) (*sui.ObjectData, error)
}

type Oracle interface {
	Health(ctx context.Context) (bool, error)
	Resolve(ctx context.Context, req nautilus.ResolveRequest) (*nautilus.Attestation, error)
}

type DataSource interface {
	Fetch(ctx context.Context, url string) (any, error)
}

type PriceSource interface {
	USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Recorder interface {
	Resolution(path, result string)
	DefaultOutcome()
	SweepDuration(seconds float64)
}

// Config carries the on-chain object ids and the decision policy of the engine.
type Config struct {
	BatchSize            int
	MaxRetries           int
	RetryBaseDelay       time.Duration
	SkewThreshold        float64
	DefaultOutcomePolicy string
	NautilusEnabled      bool

	PackageID          string
	CoinType           string
	MarketStateID      string
	RegistryID         string
	NautilusRegistryID string
	SuilendStateID     string
	HaedalStateID      string
	VoloStateID        string
}

type Options struct {
	// UseNautilus forces the oracle path on or off; nil picks it when enabled and healthy.
	UseNautilus   *bool
	DataSourceURL string
}

type Result struct {
	RunID    string `json:"runId"`
	Resolved int    `json:"resolved"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
}

// Engine settles expired markets through the oracle or the manual fallback.
type Engine struct {
	Repo       repository.Repository
	Ledger     Submitter
	Objects    ObjectReader
	Oracle     Oracle
	DataSource DataSource
	Prices     PriceSource
	Archive    archive.Archiver
	Config     Config
	Metrics    Recorder
	Logger     *zap.Logger
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error

	sweepMu sync.Mutex
}

// Sweep resolves up to BatchSize expired markets, oldest end date first. One market's
// failure never stops the batch. Concurrent calls return ErrSweepRunning.
func (e *Engine) Sweep(ctx context.Context, opts Options) (Result, error) {
	if !e.sweepMu.TryLock() {
		return Result{}, ErrSweepRunning
	}
	defer e.sweepMu.Unlock()

	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	defer func() {
		if e.Metrics != nil {
			e.Metrics.SweepDuration(time.Since(start).Seconds())
		}
	}()

	markets, err := e.Repo.ListExpiredUnresolvedMarkets(ctx, e.now(), e.batchSize())
	if err != nil {
		return res, fmt.Errorf("list expired markets: %w", err)
	}
	if len(markets) == 0 {
		return res, nil
	}
	useOracle := e.useOracle(ctx, opts.UseNautilus)
	log := e.logger().With(zap.String("run_id", res.RunID))
	log.Info("resolution sweep started", zap.Int("markets", len(markets)), zap.Bool("nautilus", useOracle))

	for i := range markets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		market := &markets[i]
		if market.ChainRef() == "" {
			res.Skipped++
			log.Warn("market skipped, no identifier", zap.String("market", market.ID))
			continue
		}
		if err := e.resolve(ctx, market, useOracle, opts.DataSourceURL); err != nil {
			res.Failed++
			log.Warn("market resolution failed", zap.String("market", market.ID), zap.Error(err))
			continue
		}
		res.Resolved++
	}
	log.Info("resolution sweep finished",
		zap.Int("resolved", res.Resolved),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// ResolveMarketByID settles one market on operator request. Already resolved markets are a no-op.
// It returns ErrSweepRunning while a sweep holds the engine.
func (e *Engine) ResolveMarketByID(ctx context.Context, id string, opts Options) error {
	if !e.sweepMu.TryLock() {
		return ErrSweepRunning
	}
	defer e.sweepMu.Unlock()

	market, err := e.Repo.FindMarketByRef(ctx, id)
	if err != nil {
		return err
	}
	if market == nil {
		return ErrMarketNotFound
	}
	if market.IsResolved {
		e.logger().Info("market already resolved", zap.String("market", market.ID))
		return nil
	}
	if market.ChainRef() == "" {
		return ErrNoMarketIdentifier
	}
	return e.resolve(ctx, market, e.useOracle(ctx, opts.UseNautilus), opts.DataSourceURL)
}

// Health reports whether the oracle answers its health probe.
func (e *Engine) Health(ctx context.Context) (bool, error) {
	if e.Oracle == nil {
		return false, fmt.Errorf("oracle not configured")
	}
	return e.Oracle.Health(ctx)
}

func (e *Engine) useOracle(ctx context.Context, forced *bool) bool {
	if forced != nil {
		return *forced && e.Oracle != nil
	}
	if !e.Config.NautilusEnabled || e.Oracle == nil {
		return false
	}
	healthy, err := e.Oracle.Health(ctx)
	if err != nil || !healthy {
		e.logger().Warn("oracle unhealthy, using manual resolution", zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) resolve(ctx context.Context, market *models.Market, useOracle bool, dataSourceURL string) error {
	path := PathManual
	fn := e.resolveManually
	if useOracle {
		path = PathNautilus
		fn = e.resolveWithOracle
	}
	err := e.retry(ctx, func(ctx context.Context) error {
		return fn(ctx, market, dataSourceURL)
	})
	result := "success"
	if err != nil {
		result = "failure"
	}
	if e.Metrics != nil {
		e.Metrics.Resolution(path, result)
	}
	return err
}

func (e *Engine) retry(ctx context.Context, fn func(context.Context) error) error {
	attempts := e.maxRetries()
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if permanent(err) || attempt == attempts-1 {
			break
		}
		delay := e.retryBaseDelay() * time.Duration(attempt+1)
		e.logger().Warn("resolution attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max", attempts),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, ErrNotExpired) ||
		errors.Is(err, ErrInconclusive) ||
		errors.Is(err, ErrNoMarketIdentifier) ||
		errors.Is(err, ErrNotPersisted)
}

// persist retries a store write that follows a landed transaction. The transaction itself is
// never resubmitted, so a final failure is reported as ErrNotPersisted.
func (e *Engine) persist(ctx context.Context, what string, fn func(context.Context) error) error {
	attempts := e.maxRetries()
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		e.logger().Warn("store after submit failed", zap.String("what", what), zap.Int("attempt", attempt+1), zap.Error(err))
		if sleepErr := e.sleep(ctx, e.retryBaseDelay()*time.Duration(attempt+1)); sleepErr != nil {
			err = sleepErr
			break
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrNotPersisted, what, err)
}

func (e *Engine) resolveWithOracle(ctx context.Context, market *models.Market, dataSourceURL string) error {
	now := e.now()
	if now.Before(market.EndDate) {
		return ErrNotExpired
	}
	chainMarketID, err := e.extractMarketID(ctx, market)
	if err != nil {
		return err
	}

	req := nautilus.ResolveRequest{
		MarketID:       chainMarketID,
		MarketQuestion: market.Question,
		MarketEndTime:  market.EndDate.Unix(),
		DataSourceURL:  firstNonEmpty(dataSourceURL, deref(market.DataSourceURL)),
		ImageURL:       deref(market.ImageURL),
	}
	att, err := e.Oracle.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("oracle resolve: %w", err)
	}

	call, err := e.oracleCall(chainMarketID, att)
	if err != nil {
		return err
	}
	tx, err := e.Ledger.SubmitMoveCall(ctx, call)
	if err != nil {
		return fmt.Errorf("submit oracle resolution: %w", err)
	}

	record := &models.Resolution{
		ID:                  uuid.NewString(),
		MarketID:            market.ID,
		ChainMarketID:       chainMarketID,
		Outcome:             att.Outcome,
		SourceData:          att.SourceData,
		SourceDataHash:      att.SourceDataHash,
		ResolutionTimestamp: att.ResolutionTimestamp,
		MediaHash:           att.MediaHash,
		Signature:           att.Signature,
		PublicKey:           att.PublicKey,
		TxDigest:            tx.Digest,
		CreatedAt:           now,
	}
	e.archive(ctx, record)
	if err := e.persist(ctx, "resolution record", func(ctx context.Context) error {
		return e.Repo.InsertResolution(ctx, record)
	}); err != nil {
		e.logger().Error("attestation not stored",
			zap.String("market", market.ID),
			zap.String("tx", tx.Digest),
			zap.String("signature", att.Signature),
			zap.String("public_key", att.PublicKey),
			zap.String("source_data_hash", att.SourceDataHash),
			zap.Error(err),
		)
		return err
	}
	if err := e.markResolved(ctx, market.ID, att.Outcome, now); err != nil {
		return err
	}
	e.logger().Info("market resolved by oracle",
		zap.String("market", market.ID),
		zap.Uint64("chain_market_id", chainMarketID),
		zap.Bool("outcome", att.Outcome),
		zap.String("tx", tx.Digest),
	)
	return nil
}

func (e *Engine) oracleCall(chainMarketID uint64, att *nautilus.Attestation) (sui.MoveCallRequest, error) {
	cfg := e.Config
	for name, id := range map[string]string{
		"market state":      cfg.MarketStateID,
		"nautilus registry": cfg.NautilusRegistryID,
		"registry":          cfg.RegistryID,
		"suilend state":     cfg.SuilendStateID,
		"haedal state":      cfg.HaedalStateID,
		"volo state":        cfg.VoloStateID,
	} {
		if strings.TrimSpace(id) == "" {
			return sui.MoveCallRequest{}, fmt.Errorf("%s object id is not configured", name)
		}
	}
	sourceHash, err := hexBytes(att.SourceDataHash)
	if err != nil {
		return sui.MoveCallRequest{}, fmt.Errorf("source data hash: %w", err)
	}
	mediaHash, err := hexBytes(att.MediaHash)
	if err != nil {
		return sui.MoveCallRequest{}, fmt.Errorf("media hash: %w", err)
	}
	signature, err := hexBytes(att.Signature)
	if err != nil {
		return sui.MoveCallRequest{}, fmt.Errorf("signature: %w", err)
	}
	publicKey, err := hexBytes(att.PublicKey)
	if err != nil {
		return sui.MoveCallRequest{}, fmt.Errorf("public key: %w", err)
	}
	return sui.MoveCallRequest{
		PackageID:     cfg.PackageID,
		Module:        "prediction_market",
		Function:      "resolve_market_with_nautilus",
		TypeArguments: []string{e.coinType()},
		Arguments: []any{
			cfg.MarketStateID,
			cfg.NautilusRegistryID,
			cfg.RegistryID,
			cfg.SuilendStateID,
			cfg.HaedalStateID,
			cfg.VoloStateID,
			strconv.FormatUint(chainMarketID, 10),
			att.Outcome,
			att.SourceData,
			sourceHash,
			strconv.FormatInt(att.ResolutionTimestamp, 10),
			mediaHash,
			signature,
			publicKey,
			clockObjectID,
		},
	}, nil
}

func (e *Engine) resolveManually(ctx context.Context, market *models.Market, dataSourceURL string) error {
	outcome := e.DetermineOutcome(ctx, market, dataSourceURL)
	if outcome == nil {
		if e.Config.DefaultOutcomePolicy == PolicyLeaveUnresolved {
			return ErrInconclusive
		}
		e.logger().Warn("no outcome signal, defaulting to NO", zap.String("market", market.ID))
		if e.Metrics != nil {
			e.Metrics.DefaultOutcome()
		}
		outcome = boolPtr(false)
	}

	tx, err := e.Ledger.SubmitMoveCall(ctx, sui.MoveCallRequest{
		PackageID:     e.Config.PackageID,
		Module:        "prediction_market",
		Function:      "resolve_market",
		TypeArguments: []string{e.coinType()},
		Arguments:     []any{market.ChainRef(), *outcome},
	})
	if err != nil {
		return fmt.Errorf("submit manual resolution: %w", err)
	}
	if err := e.markResolved(ctx, market.ID, *outcome, e.now()); err != nil {
		return err
	}
	e.logger().Info("market resolved manually",
		zap.String("market", market.ID),
		zap.Bool("outcome", *outcome),
		zap.String("tx", tx.Digest),
	)
	return nil
}

// DetermineOutcome walks the manual signals in order: data source, spot price, pool skew.
// nil means no signal was conclusive.
func (e *Engine) DetermineOutcome(ctx context.Context, market *models.Market, dataSourceURL string) *bool {
	question := strings.ToLower(market.Question)
	if url := firstNonEmpty(dataSourceURL, deref(market.DataSourceURL)); url != "" && e.DataSource != nil {
		data, err := e.DataSource.Fetch(ctx, url)
		if err != nil {
			e.logger().Warn("data source fetch failed", zap.String("url", url), zap.Error(err))
		} else if out := ParseExternalData(data, question); out != nil {
			return out
		}
	}

	if e.Prices != nil && strings.Contains(question, "sui") && (strings.Contains(question, "price") || strings.Contains(question, "$")) {
		if target, ok := ExtractPriceTarget(question); ok {
			price, err := e.Prices.USDPrice(ctx, "SUI")
			if err != nil {
				e.logger().Warn("price lookup failed", zap.Error(err))
			} else if price.IsPositive() {
				return boolPtr(price.GreaterThanOrEqual(target))
			}
		}
	}

	return PoolSkew(market.TotalYesBets, market.TotalNoBets, e.skewThreshold())
}

// extractMarketID finds the numeric id the contract knows the market by.
func (e *Engine) extractMarketID(ctx context.Context, market *models.Market) (uint64, error) {
	if chainID := deref(market.BlockchainMarketID); chainID != "" {
		if e.Objects != nil {
			obj, err := e.Objects.GetObject(ctx, chainID)
			if err != nil {
				e.logger().Warn("market object lookup failed", zap.String("object", chainID), zap.Error(err))
			} else if id := idFromObject(obj); id > 0 {
				return id, nil
			}
		}
		if id := parseUintDigits(chainID, 10); id > 0 {
			return id, nil
		}
	}
	if ref := deref(market.MarketID); ref != "" {
		if id, err := strconv.ParseUint(ref, 10, 64); err == nil && id > 0 {
			return id, nil
		}
		if id := parseUintDigits(ref, 10); id > 0 {
			return id, nil
		}
	}
	return 0, ErrNoMarketIdentifier
}

func idFromObject(obj *sui.ObjectData) uint64 {
	if obj == nil || obj.Content == nil {
		return 0
	}
	for _, key := range []string{"market_id", "id", "marketId"} {
		switch v := obj.Content.Fields[key].(type) {
		case string:
			if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
				return id
			}
		case float64:
			if v > 0 {
				return uint64(v)
			}
		case json.Number:
			if id, err := strconv.ParseUint(v.String(), 10, 64); err == nil && id > 0 {
				return id
			}
		}
	}
	return 0
}

func (e *Engine) archive(ctx context.Context, record *models.Resolution) {
	if e.Archive == nil {
		return
	}
	body, err := json.Marshal(record)
	if err != nil {
		e.logger().Warn("encode resolution for archive failed", zap.Error(err))
		return
	}
	key := archive.ResolutionKey(record.MarketID, record.CreatedAt)
	if err := e.Archive.Put(ctx, key, body); err != nil {
		e.logger().Warn("archive resolution failed", zap.String("key", key), zap.Error(err))
	}
}

func hexBytes(s string) ([]int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(raw))
	for i, b := range raw {
		out[i] = int(b)
	}
	return out, nil
}

func (e *Engine) markResolved(ctx context.Context, marketID string, outcome bool, at time.Time) error {
	return e.persist(ctx, "mark resolved", func(ctx context.Context) error {
		_, err := e.Repo.MarkMarketResolved(ctx, marketID, repository.ResolveMarketParams{
			Outcome:        outcome,
			ResolutionDate: at,
		})
		return err
	})
}

func (e *Engine) maxRetries() int {
	if e.Config.MaxRetries <= 0 {
		return 3
	}
	return e.Config.MaxRetries
}

func (e *Engine) batchSize() int {
	if e.Config.BatchSize <= 0 {
		return 10
	}
	return e.Config.BatchSize
}

func (e *Engine) retryBaseDelay() time.Duration {
	if e.Config.RetryBaseDelay <= 0 {
		return time.Second
	}
	return e.Config.RetryBaseDelay
}

func (e *Engine) skewThreshold() float64 {
	if e.Config.SkewThreshold <= 0.5 || e.Config.SkewThreshold > 1 {
		return 0.6
	}
	return e.Config.SkewThreshold
}

func (e *Engine) coinType() string {
	if e.Config.CoinType == "" {
		return "0x2::sui::SUI"
	}
	return e.Config.CoinType
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
