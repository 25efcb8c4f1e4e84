// Package memrepository is a map-backed repository.Repository used by the
// memory db driver and by tests across the module.
package memrepository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"prophyt/internal/models"
	"prophyt/internal/repository"
)

type rawKey struct {
	table  string
	digest string
	seq    string
}

type Store struct {
	mu sync.RWMutex

	cursors     map[string]models.EventCursor
	rawEvents   map[rawKey]models.RawEvent
	markets     map[string]models.Market
	bets        map[string]models.Bet
	claims      map[string]models.WinningsClaim
	deposits    []models.YieldDeposit
	summaries   map[string]models.MarketResolution
	resolutions []models.Resolution
	nextID      uint64
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		cursors:   map[string]models.EventCursor{},
		rawEvents: map[rawKey]models.RawEvent{},
		markets:   map[string]models.Market{},
		bets:      map[string]models.Bet{},
		claims:    map[string]models.WinningsClaim{},
		summaries: map[string]models.MarketResolution{},
	}
}

// RawEventCount returns the number of stored rows for one raw event table.
func (s *Store) RawEventCount(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.rawEvents {
		if key.table == table {
			n++
		}
	}
	return n
}

// PutMarket stores a market as-is, overwriting any previous row.
func (s *Store) PutMarket(item models.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[item.ID] = item
}

// --- cursors ------------------------------------------------------------------

func (s *Store) GetCursor(_ context.Context, stream string) (*models.EventCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.cursors[stream]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) SaveCursor(_ context.Context, item *models.EventCursor) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cursors[item.Stream]
	next := *item
	next.EventsTotal = prev.EventsTotal + item.EventsTotal
	next.LastError = nil
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	s.cursors[item.Stream] = next
	return nil
}

func (s *Store) RecordCursorError(_ context.Context, stream string, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.cursors[stream]
	item.Stream = stream
	item.LastAttemptAt = &at
	item.LastError = &message
	item.UpdatedAt = at
	s.cursors[stream] = item
	return nil
}

func (s *Store) DeleteCursor(_ context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, stream)
	return nil
}

func (s *Store) ListCursors(_ context.Context) ([]models.EventCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EventCursor, 0, len(s.cursors))
	for _, item := range s.cursors {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out, nil
}

// --- raw events ---------------------------------------------------------------

func (s *Store) UpsertRawEvent(_ context.Context, item models.RawEvent) error {
	if item == nil {
		return nil
	}
	digest, seq := item.EventKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawEvents[rawKey{table: item.TableName(), digest: digest, seq: seq}] = item
	return nil
}

// --- markets ------------------------------------------------------------------

func (s *Store) GetMarketByID(_ context.Context, id string) (*models.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.markets[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) FindMarketByRef(_ context.Context, ref string) (*models.Market, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matchers := []func(m models.Market) bool{
		func(m models.Market) bool { return m.BlockchainMarketID != nil && *m.BlockchainMarketID == ref },
		func(m models.Market) bool { return m.MarketID != nil && *m.MarketID == ref },
		func(m models.Market) bool { return m.ID == ref },
	}
	for _, match := range matchers {
		if item := s.firstMarketLocked(match); item != nil {
			return item, nil
		}
	}
	return nil, nil
}

func (s *Store) FindMarketByQuestion(_ context.Context, question string) (*models.Market, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstMarketLocked(func(m models.Market) bool {
		return m.Question == question && (m.BlockchainMarketID == nil || *m.BlockchainMarketID == "")
	}), nil
}

func (s *Store) firstMarketLocked(match func(models.Market) bool) *models.Market {
	var found *models.Market
	for _, item := range s.markets {
		if !match(item) {
			continue
		}
		if found == nil || item.CreatedAt.Before(found.CreatedAt) {
			cp := item
			found = &cp
		}
	}
	return found
}

func (s *Store) CreateMarket(_ context.Context, item *models.Market) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[item.ID]; ok {
		return nil
	}
	if item.MarketID != nil {
		for _, existing := range s.markets {
			if existing.MarketID != nil && *existing.MarketID == *item.MarketID {
				return nil
			}
		}
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	s.markets[item.ID] = *item
	return nil
}

func (s *Store) AttachChainMarketID(_ context.Context, id string, chainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.markets[id]
	if !ok {
		return nil
	}
	ref := chainID
	item.BlockchainMarketID = &ref
	if item.MarketID == nil {
		item.MarketID = &ref
	}
	item.UpdatedAt = time.Now().UTC()
	s.markets[id] = item
	return nil
}

func (s *Store) UpdateMarketTotals(_ context.Context, id string, totals repository.MarketTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.markets[id]
	if !ok {
		return nil
	}
	item.TotalYesBets = totals.TotalYesBets
	item.TotalNoBets = totals.TotalNoBets
	item.TotalYesCount = totals.TotalYesCount
	item.TotalNoCount = totals.TotalNoCount
	item.TotalPoolSize = totals.TotalPoolSize
	item.Volume = totals.Volume
	item.OpenInterest = totals.OpenInterest
	item.Probability = totals.Probability
	item.UpdatedAt = time.Now().UTC()
	s.markets[id] = item
	return nil
}

func (s *Store) MarkMarketResolved(_ context.Context, id string, params repository.ResolveMarketParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.markets[id]
	if !ok || item.IsResolved {
		return false, nil
	}
	outcome := params.Outcome
	at := params.ResolutionDate
	item.IsResolved = true
	item.Outcome = &outcome
	item.Status = models.MarketStatusResolved
	item.ResolutionDate = &at
	if params.TotalYieldEarned != nil {
		item.TotalYieldEarned = *params.TotalYieldEarned
	}
	item.UpdatedAt = time.Now().UTC()
	s.markets[id] = item
	return true, nil
}

func (s *Store) SetMarketYield(_ context.Context, id string, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.markets[id]
	if !ok {
		return nil
	}
	item.TotalYieldEarned = total
	item.UpdatedAt = time.Now().UTC()
	s.markets[id] = item
	return nil
}

func (s *Store) ListMarkets(_ context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	s.mu.RLock()
	items := s.filterMarketsLocked(params)
	s.mu.RUnlock()
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return page(items, params.Limit, params.Offset, 20), nil
}

func (s *Store) CountMarkets(_ context.Context, params repository.ListMarketsParams) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterMarketsLocked(params))), nil
}

func (s *Store) filterMarketsLocked(params repository.ListMarketsParams) []models.Market {
	out := make([]models.Market, 0, len(s.markets))
	for _, item := range s.markets {
		if params.Status != nil && strings.TrimSpace(*params.Status) != "" && item.Status != strings.TrimSpace(*params.Status) {
			continue
		}
		if params.ProtocolID != nil && strings.TrimSpace(*params.ProtocolID) != "" {
			if item.ProtocolID == nil || *item.ProtocolID != strings.TrimSpace(*params.ProtocolID) {
				continue
			}
		}
		if params.IsResolved != nil && item.IsResolved != *params.IsResolved {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (s *Store) ListMarketsByIDs(_ context.Context, ids []string) ([]models.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Market, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if item, ok := s.markets[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) ListExpiredUnresolvedMarkets(_ context.Context, now time.Time, limit int) ([]models.Market, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	out := make([]models.Market, 0)
	for _, item := range s.markets {
		if item.Status == models.MarketStatusActive && !item.IsResolved && !item.EndDate.After(now) {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListMarketCreationTimes(_ context.Context, until time.Time) ([]time.Time, error) {
	s.mu.RLock()
	out := make([]time.Time, 0, len(s.markets))
	for _, item := range s.markets {
		if !item.CreatedAt.After(until) {
			out = append(out, item.CreatedAt)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) UpsertMarketResolution(_ context.Context, item *models.MarketResolution) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.summaries[item.MarketID]; ok {
		prev.Outcome = item.Outcome
		prev.TotalYieldEarned = item.TotalYieldEarned
		prev.UpdatedAt = time.Now().UTC()
		s.summaries[item.MarketID] = prev
		return nil
	}
	s.summaries[item.MarketID] = *item
	return nil
}

func (s *Store) GetMarketResolution(_ context.Context, marketID string) (*models.MarketResolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.summaries[marketID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

// MarketResolution returns the stored MarketResolved summary for a market.
func (s *Store) MarketResolution(marketID string) (models.MarketResolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.summaries[marketID]
	return item, ok
}

// --- bets ---------------------------------------------------------------------

func (s *Store) GetBet(_ context.Context, id string) (*models.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.bets[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) InsertBet(_ context.Context, item *models.Bet) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[item.ID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	s.bets[item.ID] = *item
	return true, nil
}

func (s *Store) ListBets(_ context.Context, params repository.ListBetsParams) ([]models.Bet, error) {
	s.mu.RLock()
	items := s.filterBetsLocked(params.MarketID, params.Bettor)
	s.mu.RUnlock()
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return items[i].PlacedAt.Before(items[j].PlacedAt)
		}
		return items[i].PlacedAt.After(items[j].PlacedAt)
	})
	return page(items, params.Limit, params.Offset, 50), nil
}

func (s *Store) CountBets(_ context.Context, params repository.ListBetsParams) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterBetsLocked(params.MarketID, params.Bettor))), nil
}

func (s *Store) ListBetHistory(_ context.Context, params repository.BetHistoryParams) ([]models.Bet, error) {
	s.mu.RLock()
	items := s.filterBetsLocked(params.MarketID, params.Bettor)
	s.mu.RUnlock()
	out := items[:0]
	for _, item := range items {
		if params.From != nil && item.PlacedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && item.PlacedAt.After(*params.To) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out, nil
}

func (s *Store) filterBetsLocked(marketID, bettor *string) []models.Bet {
	out := make([]models.Bet, 0, len(s.bets))
	for _, item := range s.bets {
		if marketID != nil && strings.TrimSpace(*marketID) != "" && item.MarketID != strings.TrimSpace(*marketID) {
			continue
		}
		if bettor != nil && strings.TrimSpace(*bettor) != "" && item.Bettor != strings.TrimSpace(*bettor) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (s *Store) MarkBetClaimed(_ context.Context, id string, params repository.ClaimBetParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.bets[id]
	if !ok || item.IsClaimed {
		return false, nil
	}
	winning := params.WinningAmount
	share := params.YieldShare
	at := params.ClaimedAt
	item.IsClaimed = true
	item.WinningAmount = &winning
	item.YieldShare = &share
	item.ClaimedAt = &at
	item.UpdatedAt = time.Now().UTC()
	s.bets[id] = item
	return true, nil
}

func (s *Store) UpsertWinningsClaim(_ context.Context, item *models.WinningsClaim) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[item.BetID] = *item
	return nil
}

// --- yield --------------------------------------------------------------------

func (s *Store) InsertYieldDeposit(_ context.Context, item *models.YieldDeposit) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.deposits {
		if existing.TxDigest == item.TxDigest && existing.EventSeq == item.EventSeq {
			return nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	s.deposits = append(s.deposits, *item)
	return nil
}

func (s *Store) ListYieldDeposits(_ context.Context, marketID string, limit int) ([]models.YieldDeposit, error) {
	s.mu.RLock()
	out := make([]models.YieldDeposit, 0)
	for _, item := range s.deposits {
		if item.MarketID == marketID {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DepositedAt.After(out[j].DepositedAt) })
	return page(out, limit, 0, 5), nil
}

func (s *Store) SumYieldDeposits(_ context.Context, marketID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, item := range s.deposits {
		if item.MarketID == marketID {
			sum = sum.Add(item.Amount)
		}
	}
	return sum, nil
}

// --- resolutions --------------------------------------------------------------

func (s *Store) InsertResolution(_ context.Context, item *models.Resolution) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.resolutions = append(s.resolutions, *item)
	return nil
}

func (s *Store) ListResolutions(_ context.Context, params repository.ListResolutionsParams) ([]models.Resolution, error) {
	s.mu.RLock()
	items := s.filterResolutionsLocked(params.MarketID)
	s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return page(items, params.Limit, params.Offset, 50), nil
}

func (s *Store) CountResolutions(_ context.Context, params repository.ListResolutionsParams) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterResolutionsLocked(params.MarketID))), nil
}

func (s *Store) CountResolutionsByOutcomeSince(_ context.Context, since time.Time) (map[bool]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[bool]int64{}
	for _, item := range s.resolutions {
		if item.CreatedAt.After(since) {
			out[item.Outcome]++
		}
	}
	return out, nil
}

func (s *Store) filterResolutionsLocked(marketID *string) []models.Resolution {
	out := make([]models.Resolution, 0, len(s.resolutions))
	for _, item := range s.resolutions {
		if marketID != nil && strings.TrimSpace(*marketID) != "" && item.MarketID != strings.TrimSpace(*marketID) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func page[T any](items []T, limit, offset, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
