package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/models"
	"prophyt/internal/repository"
	"prophyt/internal/service"
)

type MarketHandler struct {
	Query  *service.QueryService
	Logger *zap.Logger
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/api/markets")
	group.GET("", h.listMarkets)
	group.GET("/:id", h.getMarket)
	group.GET("/:id/stats", h.getMarketStats)
}

// @Summary List markets
// @Tags markets
// @Param status query string false "active|resolved|all (default active)"
// @Param protocol_id query string false "yield protocol"
// @Param is_resolved query bool false "resolved flag"
// @Param order_by query string false "created_at|end_date|volume|probability"
// @Param ascending query bool false "ascending"
// @Param limit query int false "limit (default 20)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/markets [get]
func (h *MarketHandler) listMarkets(c *gin.Context) {
	if h.Query == nil || h.Query.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)
	status := strings.TrimSpace(c.Query("status"))
	if status == "" {
		status = models.MarketStatusActive
	}
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"created_at":  "created_at",
		"end_date":    "end_date",
		"volume":      "volume",
		"probability": "probability",
	})

	result, err := h.Query.ListMarkets(c.Request.Context(), repository.ListMarketsParams{
		Limit:      limit,
		Offset:     offset,
		Status:     &status,
		ProtocolID: strQueryPtr(c, "protocol_id"),
		IsResolved: boolQueryPtr(c, "is_resolved"),
		OrderBy:    orderBy,
		Asc:        boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		queryError(c, h.Logger, "list markets failed", err)
		return
	}
	Ok(c, result.Items, paginationMeta(limit, offset, result.Total))
}

// @Summary Get market with recent bets and yield deposits
// @Tags markets
// @Param id path string true "platform, event or blockchain market id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/markets/{id} [get]
func (h *MarketHandler) getMarket(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	detail, err := h.Query.MarketDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		queryError(c, h.Logger, "get market failed", err)
		return
	}
	Ok(c, detail, nil)
}

// @Summary Market statistics
// @Tags markets
// @Param id path string true "market id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/markets/{id}/stats [get]
func (h *MarketHandler) getMarketStats(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	stats, err := h.Query.MarketStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		queryError(c, h.Logger, "market stats failed", err)
		return
	}
	Ok(c, stats, nil)
}
