package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"prophyt/internal/client/coingecko"
	"prophyt/internal/feed"
	"prophyt/internal/models"
	"prophyt/internal/pricecache"
	memrepository "prophyt/internal/repository/memory"
	"prophyt/internal/resolution"
	"prophyt/internal/service"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func strPtr(v string) *string { return &v }

func newQuery(t *testing.T) *service.QueryService {
	t.Helper()
	ctx := context.Background()
	repo := memrepository.New()
	require.NoError(t, repo.CreateMarket(ctx, &models.Market{
		ID: "m1", MarketID: strPtr("7"), BlockchainMarketID: strPtr("7"),
		Question: "Will SUI close above $5?", Status: models.MarketStatusActive,
		EndDate: testNow.Add(time.Hour), CreatedAt: testNow.Add(-24 * time.Hour),
		Volume: decimal.NewFromInt(100), Probability: decimal.NewFromInt(50),
	}))
	_, err := repo.InsertBet(ctx, &models.Bet{ID: "b1", MarketID: "m1", Bettor: "0xa", Position: true, Amount: decimal.NewFromInt(100), PlacedAt: testNow.Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, repo.SaveCursor(ctx, &models.EventCursor{Stream: "prediction_market::BetPlaced", TxDigest: strPtr("tx"), EventSeq: strPtr("0"), EventsTotal: 1}))
	return &service.QueryService{Repo: repo, Now: func() time.Time { return testNow }}
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func do(t *testing.T, r http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestMarketHandler(t *testing.T) {
	r := newRouter()
	(&MarketHandler{Query: newQuery(t)}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/markets?status=all&limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var markets []models.Market
	require.NoError(t, json.Unmarshal(env.Data, &markets))
	require.Len(t, markets, 1)
	assert.EqualValues(t, 1, env.Meta["total"])
	assert.Equal(t, false, env.Meta["has_next"])

	w, env = do(t, r, http.MethodGet, "/api/markets/7", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "m1", detail["ID"])
	assert.Len(t, detail["bets"], 1)

	w, _ = do(t, r, http.MethodGet, "/api/markets/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/markets/m1/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats service.MarketStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.UniqueBettors)
}

func TestBetAndUserHandlers(t *testing.T) {
	r := newRouter()
	query := newQuery(t)
	(&BetHandler{Query: query}).Register(r)
	(&UserHandler{Query: query}).Register(r)

	for _, path := range []string{"/api/bets", "/api/bets/recent", "/api/bets/market/7", "/api/bets/user/0xa", "/api/users/0xa/bets"} {
		w, env := do(t, r, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		var bets []models.Bet
		require.NoError(t, json.Unmarshal(env.Data, &bets), path)
		assert.Len(t, bets, 1, path)
	}

	w, _ := do(t, r, http.MethodGet, "/api/bets/b1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/bets/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := do(t, r, http.MethodGet, "/api/users/0xa/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 1, stats["totalBets"])
}

func TestChartHandler(t *testing.T) {
	r := newRouter()
	(&ChartHandler{Query: newQuery(t)}).Register(r)

	paths := []string{
		"/api/charts/market/m1?interval=1h",
		"/api/charts/market/m1/probability?points=10",
		"/api/charts/market/m1/volume",
		"/api/charts/user/0xa/betting-history",
		"/api/charts/platform?days=7",
		"/api/charts/top-markets",
	}
	for _, path := range paths {
		w, _ := do(t, r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, _ := do(t, r, http.MethodGet, "/api/charts/market/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeResolver struct {
	healthy  bool
	err      error
	sweepErr error
	resolved []string
	opts     []resolution.Options
}

func (f *fakeResolver) Health(context.Context) (bool, error) { return f.healthy, nil }

func (f *fakeResolver) ResolveMarketByID(_ context.Context, id string, opts resolution.Options) error {
	f.resolved = append(f.resolved, id)
	f.opts = append(f.opts, opts)
	return f.err
}

func (f *fakeResolver) Sweep(_ context.Context, opts resolution.Options) (resolution.Result, error) {
	f.opts = append(f.opts, opts)
	if f.sweepErr != nil {
		return resolution.Result{}, f.sweepErr
	}
	return resolution.Result{RunID: "run", Resolved: 2}, nil
}

type fakePending struct{}

func (fakePending) PendingMarkets(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[{"market_id":"7"}]`), nil
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, OperatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestNautilusHandler_AuthAndResolve(t *testing.T) {
	r := newRouter()
	resolver := &fakeResolver{healthy: true}
	(&NautilusHandler{Resolver: resolver, Pending: fakePending{}, Query: newQuery(t)}).Register(r, RequireOperator("s3cret"))

	w, _ := do(t, r, http.MethodGet, "/api/nautilus/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env := do(t, r, http.MethodGet, "/api/nautilus/pending-markets", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"market_id":"7"}]`, string(env.Data))
	w, _ = do(t, r, http.MethodGet, "/api/nautilus/stats", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/nautilus/resolutions?market_id=m1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/nautilus/resolve/7", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, resolver.resolved)

	w, _ = do(t, r, http.MethodPost, "/api/nautilus/resolve/7", "", map[string]string{
		"Authorization": "Bearer " + signToken(t, "wrong", jwt.SigningMethodHS256),
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/nautilus/resolve/7", "", map[string]string{
		"Authorization": "Bearer " + signToken(t, "s3cret", jwt.SigningMethodHS512),
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	auth := map[string]string{"Authorization": "Bearer " + signToken(t, "s3cret", jwt.SigningMethodHS256)}
	w, _ = do(t, r, http.MethodPost, "/api/nautilus/resolve/7", `{"use_nautilus":false,"data_source_url":"https://example.com/x"}`, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"7"}, resolver.resolved)
	require.NotNil(t, resolver.opts[0].UseNautilus)
	assert.False(t, *resolver.opts[0].UseNautilus)
	assert.Equal(t, "https://example.com/x", resolver.opts[0].DataSourceURL)

	w, env = do(t, r, http.MethodPost, "/api/nautilus/resolve-all", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	var result resolution.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.Resolved)
	assert.Nil(t, resolver.opts[1].UseNautilus)

	w, _ = do(t, r, http.MethodPost, "/api/nautilus/resolve/7", `{bad`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNautilusHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{resolution.ErrMarketNotFound, http.StatusNotFound},
		{resolution.ErrNoMarketIdentifier, http.StatusBadRequest},
		{resolution.ErrNotExpired, http.StatusConflict},
		{resolution.ErrSweepRunning, http.StatusConflict},
		{errors.New("rpc down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		r := newRouter()
		(&NautilusHandler{Resolver: &fakeResolver{err: tc.err}}).Register(r)
		w, _ := do(t, r, http.MethodPost, "/api/nautilus/resolve/7", "", nil)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestNautilusHandler_SweepConflict(t *testing.T) {
	r := newRouter()
	(&NautilusHandler{Resolver: &fakeResolver{sweepErr: resolution.ErrSweepRunning}}).Register(r)
	w, _ := do(t, r, http.MethodPost, "/api/nautilus/resolve-all", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRequireOperator_EmptySecretDisablesCheck(t *testing.T) {
	r := newRouter()
	resolver := &fakeResolver{}
	(&NautilusHandler{Resolver: resolver}).Register(r, RequireOperator(""))

	w, _ := do(t, r, http.MethodPost, "/api/nautilus/resolve/7", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakePrices struct {
	price *pricecache.Price
	err   error
}

func (f fakePrices) Latest(context.Context) (*pricecache.Price, error) { return f.price, f.err }

func TestOracleAndIndexerHandlers(t *testing.T) {
	r := newRouter()
	(&OracleHandler{Prices: fakePrices{price: &pricecache.Price{Quote: coingecko.Quote{Price: decimal.RequireFromString("3.21")}, Stale: true}}}).Register(r)
	(&IndexerHandler{Query: newQuery(t)}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/oracle/price/latest", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env.Meta["stale"])

	w, env = do(t, r, http.MethodGet, "/api/indexer/streams", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cursors []models.EventCursor
	require.NoError(t, json.Unmarshal(env.Data, &cursors))
	require.Len(t, cursors, 1)
	assert.Equal(t, "prediction_market::BetPlaced", cursors[0].Stream)

	r = newRouter()
	(&OracleHandler{Prices: fakePrices{err: pricecache.ErrNoPrice}}).Register(r)
	w, _ = do(t, r, http.MethodGet, "/api/oracle/price/latest", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	r := newRouter()
	(&HealthHandler{DB: fakePinger{err: errors.New("down")}, Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})}).Register(r)

	w, _ := do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w, _ = do(t, r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")

	r = newRouter()
	(&HealthHandler{}).Register(r)
	w, _ = do(t, r, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFeedHandler_StreamsFilteredEvents(t *testing.T) {
	hub := feed.NewHub(nil, nil)
	r := newRouter()
	(&FeedHandler{Hub: hub, Buffer: 8}).Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events?kind=BetPlaced", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(feed.Message{Kind: "MarketCreated", TxDigest: "skip"})
	hub.Publish(feed.Message{Kind: "BetPlaced", TxDigest: "tx1", EventSeq: "0", MarketID: "7"})

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	var msg feed.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "tx1", msg.TxDigest)
	assert.Equal(t, "BetPlaced", msg.Kind)
}
