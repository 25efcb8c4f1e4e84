package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/service"
)

type ChartHandler struct {
	Query  *service.QueryService
	Logger *zap.Logger
}

func (h *ChartHandler) Register(r *gin.Engine) {
	group := r.Group("/api/charts")
	group.GET("/market/:id", h.marketChart)
	group.GET("/market/:id/probability", h.probabilityChart)
	group.GET("/market/:id/volume", h.volumeChart)
	group.GET("/user/:address/betting-history", h.userHistory)
	group.GET("/platform", h.platformChart)
	group.GET("/top-markets", h.topMarkets)
}

func intervalQuery(c *gin.Context, def string) string {
	if v := strings.TrimSpace(c.Query("interval")); v != "" {
		return v
	}
	return def
}

// @Summary Bucketed market chart
// @Tags charts
// @Param id path string true "market id"
// @Param interval query string false "1m|5m|15m|30m|1h|4h|1d|1w (default 1h)"
// @Param from query string false "unix seconds or RFC3339 (default market creation)"
// @Param to query string false "unix seconds or RFC3339 (default now)"
// @Success 200 {object} apiResponse
// @Router /api/charts/market/{id} [get]
func (h *ChartHandler) marketChart(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	interval := intervalQuery(c, "1h")
	chart, err := h.Query.MarketChart(c.Request.Context(), c.Param("id"), timeQuery(c, "from"), timeQuery(c, "to"), interval)
	if err != nil {
		queryError(c, h.Logger, "market chart failed", err)
		return
	}
	Ok(c, chart, map[string]any{"interval": interval})
}

// @Summary Sampled YES probability
// @Tags charts
// @Param id path string true "market id"
// @Param points query int false "sample count (default 50)"
// @Success 200 {object} apiResponse
// @Router /api/charts/market/{id}/probability [get]
func (h *ChartHandler) probabilityChart(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	points, err := h.Query.ProbabilityChart(c.Request.Context(), c.Param("id"), intQuery(c, "points", 50))
	if err != nil {
		queryError(c, h.Logger, "probability chart failed", err)
		return
	}
	Ok(c, points, nil)
}

// @Summary Cumulative market volume
// @Tags charts
// @Param id path string true "market id"
// @Param interval query string false "bucket width (default 1d)"
// @Success 200 {object} apiResponse
// @Router /api/charts/market/{id}/volume [get]
func (h *ChartHandler) volumeChart(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	interval := intervalQuery(c, "1d")
	points, err := h.Query.VolumeChart(c.Request.Context(), c.Param("id"), interval)
	if err != nil {
		queryError(c, h.Logger, "volume chart failed", err)
		return
	}
	Ok(c, points, map[string]any{"interval": interval})
}

// @Summary Cumulative stake of an address
// @Tags charts
// @Param address path string true "bettor address"
// @Success 200 {object} apiResponse
// @Router /api/charts/user/{address}/betting-history [get]
func (h *ChartHandler) userHistory(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	points, err := h.Query.UserHistory(c.Request.Context(), c.Param("address"))
	if err != nil {
		queryError(c, h.Logger, "user history failed", err)
		return
	}
	Ok(c, points, nil)
}

// @Summary Daily platform totals
// @Tags charts
// @Param days query int false "days (default 30)"
// @Success 200 {object} apiResponse
// @Router /api/charts/platform [get]
func (h *ChartHandler) platformChart(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	days := intQuery(c, "days", 30)
	if days > 365 {
		days = 365
	}
	chart, err := h.Query.PlatformChart(c.Request.Context(), days)
	if err != nil {
		queryError(c, h.Logger, "platform chart failed", err)
		return
	}
	Ok(c, chart, map[string]any{"days": days})
}

// @Summary Active markets by volume
// @Tags charts
// @Param limit query int false "limit (default 10)"
// @Success 200 {object} apiResponse
// @Router /api/charts/top-markets [get]
func (h *ChartHandler) topMarkets(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	items, err := h.Query.TopMarkets(c.Request.Context(), intQuery(c, "limit", 10))
	if err != nil {
		queryError(c, h.Logger, "top markets failed", err)
		return
	}
	Ok(c, items, nil)
}
