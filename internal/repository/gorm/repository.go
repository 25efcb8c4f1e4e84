package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prophyt/internal/models"
	"prophyt/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

// --- cursors ------------------------------------------------------------------

func (s *Store) GetCursor(ctx context.Context, stream string) (*models.EventCursor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.EventCursor
	err := s.db.WithContext(ctx).First(&item, "stream = ?", stream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveCursor(ctx context.Context, item *models.EventCursor) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stream"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tx_digest":       item.TxDigest,
			"event_seq":       item.EventSeq,
			"last_success_at": item.LastSuccessAt,
			"last_attempt_at": item.LastAttemptAt,
			"last_error":      nil,
			"events_total":    gorm.Expr("event_cursors.events_total + ?", item.EventsTotal),
			"updated_at":      item.UpdatedAt,
		}),
	}).Create(item).Error
}

func (s *Store) RecordCursorError(ctx context.Context, stream string, message string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	item := &models.EventCursor{
		Stream:        stream,
		LastAttemptAt: &at,
		LastError:     &message,
		UpdatedAt:     at,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_attempt_at", "last_error", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) DeleteCursor(ctx context.Context, stream string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Where("stream = ?", stream).Delete(&models.EventCursor{}).Error
}

func (s *Store) ListCursors(ctx context.Context) ([]models.EventCursor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.EventCursor
	if err := s.db.WithContext(ctx).Order("stream asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- raw events ---------------------------------------------------------------

func (s *Store) UpsertRawEvent(ctx context.Context, item models.RawEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_digest"}, {Name: "event_seq"}},
		DoUpdates: clause.AssignmentColumns([]string{"raw_json", "updated_at"}),
	}).Create(item).Error
}

// --- markets ------------------------------------------------------------------

func (s *Store) GetMarketByID(ctx context.Context, id string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	return s.firstMarket(ctx, "id = ?", id)
}

func (s *Store) FindMarketByRef(ctx context.Context, ref string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	for _, cond := range []string{"blockchain_market_id = ?", "market_id = ?", "id = ?"} {
		item, err := s.firstMarket(ctx, cond, ref)
		if err != nil || item != nil {
			return item, err
		}
	}
	return nil, nil
}

func (s *Store) FindMarketByQuestion(ctx context.Context, question string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}
	return s.firstMarket(ctx, "question = ? AND (blockchain_market_id IS NULL OR blockchain_market_id = '')", question)
}

func (s *Store) firstMarket(ctx context.Context, cond string, arg any) (*models.Market, error) {
	var item models.Market
	err := s.db.WithContext(ctx).Where(cond, arg).Order("created_at asc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item).Error
}

func (s *Store) AttachChainMarketID(ctx context.Context, id string, chainID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"blockchain_market_id": chainID,
			"market_id":            gorm.Expr("COALESCE(market_id, ?)", chainID),
			"updated_at":           time.Now().UTC(),
		}).Error
}

func (s *Store) UpdateMarketTotals(ctx context.Context, id string, totals repository.MarketTotals) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_yes_bets":  totals.TotalYesBets,
			"total_no_bets":   totals.TotalNoBets,
			"total_yes_count": totals.TotalYesCount,
			"total_no_count":  totals.TotalNoCount,
			"total_pool_size": totals.TotalPoolSize,
			"volume":          totals.Volume,
			"open_interest":   totals.OpenInterest,
			"probability":     totals.Probability,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (s *Store) MarkMarketResolved(ctx context.Context, id string, params repository.ResolveMarketParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	updates := map[string]any{
		"is_resolved":     true,
		"outcome":         params.Outcome,
		"status":          models.MarketStatusResolved,
		"resolution_date": params.ResolutionDate,
		"updated_at":      time.Now().UTC(),
	}
	if params.TotalYieldEarned != nil {
		updates["total_yield_earned"] = *params.TotalYieldEarned
	}
	res := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SetMarketYield(ctx context.Context, id string, total decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_yield_earned": total,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyMarketFilters(s.db.WithContext(ctx).Model(&models.Market{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 20)
	offset := normalizeOffset(params.Offset)
	var items []models.Market
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMarkets(ctx context.Context, params repository.ListMarketsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applyMarketFilters(s.db.WithContext(ctx).Model(&models.Market{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyMarketFilters(query *gorm.DB, params repository.ListMarketsParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.ProtocolID != nil && strings.TrimSpace(*params.ProtocolID) != "" {
		query = query.Where("protocol_id = ?", strings.TrimSpace(*params.ProtocolID))
	}
	if params.IsResolved != nil {
		query = query.Where("is_resolved = ?", *params.IsResolved)
	}
	return query
}

func (s *Store) ListMarketsByIDs(ctx context.Context, ids []string) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ids = cleanStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.Market
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListExpiredUnresolvedMarkets(ctx context.Context, now time.Time, limit int) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Where("status = ? AND is_resolved = ? AND end_date <= ?", models.MarketStatusActive, false, now).
		Order("end_date asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListMarketCreationTimes(ctx context.Context, until time.Time) ([]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var out []time.Time
	err := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("created_at <= ?", until).
		Order("created_at asc").
		Pluck("created_at", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpsertMarketResolution(ctx context.Context, item *models.MarketResolution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"outcome", "total_yield_earned", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetMarketResolution(ctx context.Context, marketID string) (*models.MarketResolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.MarketResolution
	err := s.db.WithContext(ctx).First(&item, "market_id = ?", marketID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- bets ---------------------------------------------------------------------

func (s *Store) GetBet(ctx context.Context, id string) (*models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Bet
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertBet(ctx context.Context, item *models.Bet) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListBets(ctx context.Context, params repository.ListBetsParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyBetFilters(s.db.WithContext(ctx).Model(&models.Bet{}), params.MarketID, params.Bettor)
	query = applyOrder(query, params.OrderBy, params.Asc, "placed_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.Bet
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBets(ctx context.Context, params repository.ListBetsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applyBetFilters(s.db.WithContext(ctx).Model(&models.Bet{}), params.MarketID, params.Bettor).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListBetHistory(ctx context.Context, params repository.BetHistoryParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyBetFilters(s.db.WithContext(ctx).Model(&models.Bet{}), params.MarketID, params.Bettor)
	if params.From != nil {
		query = query.Where("placed_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("placed_at <= ?", *params.To)
	}
	var items []models.Bet
	if err := query.Order("placed_at asc").Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func applyBetFilters(query *gorm.DB, marketID, bettor *string) *gorm.DB {
	if marketID != nil && strings.TrimSpace(*marketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*marketID))
	}
	if bettor != nil && strings.TrimSpace(*bettor) != "" {
		query = query.Where("bettor = ?", strings.TrimSpace(*bettor))
	}
	return query
}

func (s *Store) MarkBetClaimed(ctx context.Context, id string, params repository.ClaimBetParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Bet{}).
		Where("id = ? AND is_claimed = ?", id, false).
		Updates(map[string]any{
			"is_claimed":     true,
			"winning_amount": params.WinningAmount,
			"yield_share":    params.YieldShare,
			"claimed_at":     params.ClaimedAt,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpsertWinningsClaim(ctx context.Context, item *models.WinningsClaim) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bet_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"winning_amount", "yield_share", "updated_at"}),
	}).Create(item).Error
}

// --- yield --------------------------------------------------------------------

func (s *Store) InsertYieldDeposit(ctx context.Context, item *models.YieldDeposit) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_digest"}, {Name: "event_seq"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ListYieldDeposits(ctx context.Context, marketID string, limit int) ([]models.YieldDeposit, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.YieldDeposit
	err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("deposited_at desc").
		Limit(normalizeLimit(limit, 5)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumYieldDeposits(ctx context.Context, marketID string) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var sum decimal.NullDecimal
	err := s.db.WithContext(ctx).Model(&models.YieldDeposit{}).
		Where("market_id = ?", marketID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// --- resolutions --------------------------------------------------------------

func (s *Store) InsertResolution(ctx context.Context, item *models.Resolution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListResolutions(ctx context.Context, params repository.ListResolutionsParams) ([]models.Resolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Resolution{})
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	var items []models.Resolution
	err := query.Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 50)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountResolutions(ctx context.Context, params repository.ListResolutionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Resolution{})
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountResolutionsByOutcomeSince(ctx context.Context, since time.Time) (map[bool]int64, error) {
	out := map[bool]int64{}
	if s == nil || s.db == nil {
		return out, nil
	}
	var rows []struct {
		Outcome bool
		Count   int64
	}
	err := s.db.WithContext(ctx).Model(&models.Resolution{}).
		Select("outcome, COUNT(*) AS count").
		Where("created_at > ?", since).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Outcome] = row.Count
	}
	return out, nil
}

// --- helpers ------------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
