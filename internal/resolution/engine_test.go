package resolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prophyt/internal/archive"
	"prophyt/internal/client/nautilus"
	"prophyt/internal/client/sui"
	"prophyt/internal/models"
	"prophyt/internal/repository"
	memrepository "prophyt/internal/repository/memory"
)

var now = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type fakeSubmitter struct {
	calls []sui.MoveCallRequest
	errs  []error
}

func (f *fakeSubmitter) SubmitMoveCall(_ context.Context, req sui.MoveCallRequest) (*sui.TransactionResponse, error) {
	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &sui.TransactionResponse{Digest: "0xdigest"}, nil
}

type fakeOracle struct {
	healthy bool
	att     *nautilus.Attestation
	reqs    []nautilus.ResolveRequest
}

func (f *fakeOracle) Health(context.Context) (bool, error) { return f.healthy, nil }

func (f *fakeOracle) Resolve(_ context.Context, req nautilus.ResolveRequest) (*nautilus.Attestation, error) {
	f.reqs = append(f.reqs, req)
	if f.att == nil {
		return nil, errors.New("oracle down")
	}
	return f.att, nil
}

type fakeObjects struct {
	fields map[string]any
}

func (f *fakeObjects) GetObject(_ context.Context, id string) (*sui.ObjectData, error) {
	if f.fields == nil {
		return nil, errors.New("not found")
	}
	return &sui.ObjectData{ObjectID: id, Content: &sui.ObjectContent{Fields: f.fields}}, nil
}

type fakeDataSource struct {
	data any
	err  error
}

func (f *fakeDataSource) Fetch(context.Context, string) (any, error) { return f.data, f.err }

type fakeRecorder struct {
	results  map[string]int
	defaults int
}

func (f *fakeRecorder) Resolution(path, result string) {
	if f.results == nil {
		f.results = map[string]int{}
	}
	f.results[path+"/"+result]++
}
func (f *fakeRecorder) DefaultOutcome()       { f.defaults++ }
func (f *fakeRecorder) SweepDuration(float64) {}

type flakyStore struct {
	*memrepository.Store
	insertFailures int
	markFailures   int
}

func (s *flakyStore) InsertResolution(ctx context.Context, item *models.Resolution) error {
	if s.insertFailures > 0 {
		s.insertFailures--
		return errors.New("connection reset")
	}
	return s.Store.InsertResolution(ctx, item)
}

func (s *flakyStore) MarkMarketResolved(ctx context.Context, id string, params repository.ResolveMarketParams) (bool, error) {
	if s.markFailures > 0 {
		s.markFailures--
		return false, errors.New("connection reset")
	}
	return s.Store.MarkMarketResolved(ctx, id, params)
}

type fixture struct {
	engine  *Engine
	store   *memrepository.Store
	ledger  *fakeSubmitter
	oracle  *fakeOracle
	archive *archive.Memory
	metrics *fakeRecorder
	sleeps  []time.Duration
}

func newFixture() *fixture {
	f := &fixture{
		store:   memrepository.New(),
		ledger:  &fakeSubmitter{},
		oracle:  &fakeOracle{healthy: true},
		archive: archive.NewMemory(),
		metrics: &fakeRecorder{},
	}
	f.engine = &Engine{
		Repo:    f.store,
		Ledger:  f.ledger,
		Objects: &fakeObjects{},
		Oracle:  f.oracle,
		Archive: f.archive,
		Metrics: f.metrics,
		Config: Config{
			MaxRetries:           3,
			RetryBaseDelay:       time.Second,
			SkewThreshold:        0.6,
			DefaultOutcomePolicy: PolicyDefaultNo,
			PackageID:            "0xpkg",
			CoinType:             "0x2::sui::SUI",
			MarketStateID:        "0xstate",
			RegistryID:           "0xregistry",
			NautilusRegistryID:   "0xnautilus",
			SuilendStateID:       "0xsuilend",
			HaedalStateID:        "0xhaedal",
			VoloStateID:          "0xvolo",
		},
		Now: func() time.Time { return now },
		Sleep: func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	}
	return f
}

func (f *fixture) market(id, chainID string, yes, no int64, end time.Time) {
	m := models.Market{
		ID:           id,
		Question:     "Will it happen?",
		Status:       models.MarketStatusActive,
		EndDate:      end,
		TotalYesBets: decimal.NewFromInt(yes),
		TotalNoBets:  decimal.NewFromInt(no),
		CreatedAt:    end.Add(-time.Hour),
	}
	if chainID != "" {
		ref := chainID
		m.MarketID = &ref
		m.BlockchainMarketID = &ref
	}
	f.store.PutMarket(m)
}

func (f *fixture) get(t *testing.T, id string) *models.Market {
	t.Helper()
	m, err := f.store.GetMarketByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func off() *bool { return boolPtr(false) }

func TestSweep_DataSourceOutcome(t *testing.T) {
	f := newFixture()
	f.engine.DataSource = &fakeDataSource{data: map[string]any{"outcome": true}}
	f.market("m1", "0xabc", 0, 0, now.Add(-time.Minute))
	url := "https://example.com/result"
	m := f.get(t, "m1")
	m.DataSourceURL = &url
	f.store.PutMarket(*m)

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, f.ledger.calls, 1)
	call := f.ledger.calls[0]
	assert.Equal(t, "0xpkg::prediction_market::resolve_market", call.Target())
	assert.Equal(t, []string{"0x2::sui::SUI"}, call.TypeArguments)
	assert.Equal(t, []any{"0xabc", true}, call.Arguments)

	got := f.get(t, "m1")
	assert.True(t, got.IsResolved)
	assert.True(t, *got.Outcome)
	assert.Equal(t, models.MarketStatusResolved, got.Status)
	require.NotNil(t, got.ResolutionDate)
	assert.Equal(t, now, *got.ResolutionDate)
	assert.Equal(t, 1, f.metrics.results["manual/success"])
}

func TestSweep_PoolSkewYes(t *testing.T) {
	f := newFixture()
	f.market("m1", "0xabc", 70, 30, now.Add(-time.Minute))

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.True(t, *f.get(t, "m1").Outcome)
	assert.Zero(t, f.metrics.defaults)
}

func TestSweep_DefaultNo(t *testing.T) {
	f := newFixture()
	f.market("m1", "0xabc", 50, 50, now.Add(-time.Minute))

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.False(t, *f.get(t, "m1").Outcome)
	assert.Equal(t, 1, f.metrics.defaults)
}

func TestSweep_LeaveUnresolvedPolicy(t *testing.T) {
	f := newFixture()
	f.engine.Config.DefaultOutcomePolicy = PolicyLeaveUnresolved
	f.market("m1", "0xabc", 50, 50, now.Add(-time.Minute))

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, f.ledger.calls)
	assert.Empty(t, f.sleeps)
	assert.False(t, f.get(t, "m1").IsResolved)
}

func TestSweep_SkipsMarketsWithoutIdentifier(t *testing.T) {
	f := newFixture()
	f.market("m1", "", 70, 30, now.Add(-time.Minute))
	f.market("m2", "0xdef", 70, 30, now.Add(-2*time.Minute))

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, Result{RunID: res.RunID, Resolved: 1, Skipped: 1}, res)
}

func TestSweep_IgnoresFutureAndResolvedMarkets(t *testing.T) {
	f := newFixture()
	f.market("future", "0x1", 70, 30, now.Add(time.Hour))
	f.market("done", "0x2", 70, 30, now.Add(-time.Hour))
	_, err := f.store.MarkMarketResolved(context.Background(), "done", repository.ResolveMarketParams{Outcome: false, ResolutionDate: now})
	require.NoError(t, err)

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, Result{RunID: res.RunID}, res)
	assert.Empty(t, f.ledger.calls)
	assert.False(t, *f.get(t, "done").Outcome)
}

func TestSweep_RetriesWithLinearBackoff(t *testing.T) {
	f := newFixture()
	f.ledger.errs = []error{errors.New("gas"), errors.New("gas")}
	f.market("m1", "0xabc", 70, 30, now.Add(-time.Minute))

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Len(t, f.ledger.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)
}

func TestSweep_FailureLeavesMarketActive(t *testing.T) {
	f := newFixture()
	f.ledger.errs = []error{errors.New("a"), errors.New("b"), errors.New("c")}
	f.market("m1", "0xabc", 70, 30, now.Add(-time.Minute))
	f.market("m2", "0xdef", 70, 30, now.Add(-time.Second))

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Resolved)
	assert.False(t, f.get(t, "m1").IsResolved)
	assert.True(t, f.get(t, "m2").IsResolved)
	assert.Equal(t, 1, f.metrics.results["manual/failure"])
}

func TestSweep_RefusesConcurrentRun(t *testing.T) {
	f := newFixture()
	f.market("m1", "0xabc", 70, 30, now.Add(-time.Minute))

	f.engine.sweepMu.Lock()
	_, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	f.engine.sweepMu.Unlock()
	require.ErrorIs(t, err, ErrSweepRunning)
	assert.False(t, f.get(t, "m1").IsResolved)

	res, err := f.engine.Sweep(context.Background(), Options{UseNautilus: off()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
}

func TestResolveMarketByID_Oracle(t *testing.T) {
	f := newFixture()
	f.engine.Objects = &fakeObjects{fields: map[string]any{"market_id": "7"}}
	f.oracle.att = &nautilus.Attestation{
		MarketID:            7,
		Outcome:             true,
		SourceData:          "api says yes",
		SourceDataHash:      "0a0b",
		ResolutionTimestamp: 1_751_328_000,
		MediaHash:           "",
		Signature:           "ff",
		PublicKey:           "0x01",
	}
	f.market("m1", "0xmarket", 0, 0, now.Add(-time.Minute))

	require.NoError(t, f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: boolPtr(true), DataSourceURL: "https://data"}))

	require.Len(t, f.oracle.reqs, 1)
	assert.Equal(t, uint64(7), f.oracle.reqs[0].MarketID)
	assert.Equal(t, "https://data", f.oracle.reqs[0].DataSourceURL)
	assert.Equal(t, now.Add(-time.Minute).Unix(), f.oracle.reqs[0].MarketEndTime)

	require.Len(t, f.ledger.calls, 1)
	call := f.ledger.calls[0]
	assert.Equal(t, "resolve_market_with_nautilus", call.Function)
	require.Len(t, call.Arguments, 15)
	assert.Equal(t, "0xstate", call.Arguments[0])
	assert.Equal(t, "7", call.Arguments[6])
	assert.Equal(t, true, call.Arguments[7])
	assert.Equal(t, []int{10, 11}, call.Arguments[9])
	assert.Equal(t, "1751328000", call.Arguments[10])
	assert.Equal(t, []int{}, call.Arguments[11])
	assert.Equal(t, []int{255}, call.Arguments[12])
	assert.Equal(t, []int{1}, call.Arguments[13])
	assert.Equal(t, "0x6", call.Arguments[14])

	records, err := f.store.ListResolutions(context.Background(), repository.ListResolutionsParams{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0xdigest", records[0].TxDigest)
	assert.Equal(t, "ff", records[0].Signature)
	assert.Len(t, f.archive.Keys(), 1)

	got := f.get(t, "m1")
	assert.True(t, got.IsResolved)
	assert.True(t, *got.Outcome)
	assert.Equal(t, 1, f.metrics.results["nautilus/success"])
}

func oracleFixture() *fixture {
	f := newFixture()
	f.engine.Objects = &fakeObjects{fields: map[string]any{"market_id": "7"}}
	f.oracle.att = &nautilus.Attestation{
		MarketID:            7,
		Outcome:             true,
		SourceData:          "api says yes",
		SourceDataHash:      "0a0b",
		ResolutionTimestamp: 1_751_328_000,
		Signature:           "ff",
		PublicKey:           "0x01",
	}
	f.market("m1", "0xmarket", 0, 0, now.Add(-time.Minute))
	return f
}

func TestResolveMarketByID_StoreFailureDoesNotResubmit(t *testing.T) {
	f := oracleFixture()
	f.engine.Repo = &flakyStore{Store: f.store, insertFailures: 1, markFailures: 1}

	require.NoError(t, f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: boolPtr(true)}))

	assert.Len(t, f.oracle.reqs, 1)
	assert.Len(t, f.ledger.calls, 1)
	records, err := f.store.ListResolutions(context.Background(), repository.ListResolutionsParams{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ff", records[0].Signature)
	assert.Equal(t, "0x01", records[0].PublicKey)
	assert.True(t, f.get(t, "m1").IsResolved)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, f.sleeps)
}

func TestResolveMarketByID_StoreDownIsNotRetriedOnChain(t *testing.T) {
	f := oracleFixture()
	f.engine.Repo = &flakyStore{Store: f.store, insertFailures: 10}

	err := f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: boolPtr(true)})
	require.ErrorIs(t, err, ErrNotPersisted)
	assert.Len(t, f.ledger.calls, 1)
	assert.Len(t, f.archive.Keys(), 1)
	assert.False(t, f.get(t, "m1").IsResolved)
	assert.Equal(t, 1, f.metrics.results["nautilus/failure"])
}

func TestResolveMarketByID_RefusedDuringSweep(t *testing.T) {
	f := newFixture()
	f.market("m1", "0xabc", 70, 30, now.Add(-time.Minute))

	f.engine.sweepMu.Lock()
	err := f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: off()})
	f.engine.sweepMu.Unlock()
	require.ErrorIs(t, err, ErrSweepRunning)
	assert.Empty(t, f.ledger.calls)

	require.NoError(t, f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: off()}))
	assert.Len(t, f.ledger.calls, 1)
}

func TestResolveMarketByID_OracleRefusesOpenMarket(t *testing.T) {
	f := newFixture()
	f.market("m1", "123", 0, 0, now.Add(time.Hour))

	err := f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: boolPtr(true)})
	assert.ErrorIs(t, err, ErrNotExpired)
	assert.Empty(t, f.oracle.reqs)
	assert.Empty(t, f.sleeps)
}

func TestResolveMarketByID_NoOps(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.engine.ResolveMarketByID(context.Background(), "missing", Options{}), ErrMarketNotFound)

	f.market("m1", "0xabc", 70, 30, now.Add(-time.Hour))
	_, err := f.store.MarkMarketResolved(context.Background(), "m1", repository.ResolveMarketParams{Outcome: false, ResolutionDate: now})
	require.NoError(t, err)
	require.NoError(t, f.engine.ResolveMarketByID(context.Background(), "m1", Options{UseNautilus: off()}))
	assert.Empty(t, f.ledger.calls)
}

func TestUseOracle_FallsBackWhenUnhealthy(t *testing.T) {
	f := newFixture()
	f.engine.Config.NautilusEnabled = true
	f.oracle.healthy = false
	f.market("m1", "0xabc", 70, 30, now.Add(-time.Minute))

	res, err := f.engine.Sweep(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Empty(t, f.oracle.reqs)
	assert.Equal(t, "resolve_market", f.ledger.calls[0].Function)
}

func TestExtractMarketID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ref := func(s string) *string { return &s }

	id, err := f.engine.extractMarketID(ctx, &models.Market{BlockchainMarketID: ref("0x12ab34")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), id)

	f.engine.Objects = &fakeObjects{fields: map[string]any{"id": float64(99)}}
	id, err = f.engine.extractMarketID(ctx, &models.Market{BlockchainMarketID: ref("0x12ab34")})
	require.NoError(t, err)
	assert.Equal(t, uint64(99), id)

	id, err = f.engine.extractMarketID(ctx, &models.Market{MarketID: ref("42")})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = f.engine.extractMarketID(ctx, &models.Market{MarketID: ref("abc")})
	assert.ErrorIs(t, err, ErrNoMarketIdentifier)
}
