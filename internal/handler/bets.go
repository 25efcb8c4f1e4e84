package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/repository"
	"prophyt/internal/service"
)

type BetHandler struct {
	Query  *service.QueryService
	Logger *zap.Logger
}

func (h *BetHandler) Register(r *gin.Engine) {
	group := r.Group("/api/bets")
	group.GET("", h.listBets)
	group.GET("/recent", h.recentBets)
	group.GET("/market/:marketId", h.marketBets)
	group.GET("/user/:address", h.userBets)
	group.GET("/:betId", h.getBet)
}

// @Summary List bets
// @Tags bets
// @Param limit query int false "limit (default 50)"
// @Param offset query int false "offset"
// @Param order_by query string false "placed_at|amount"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/bets [get]
func (h *BetHandler) listBets(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"placed_at": "placed_at",
		"amount":    "amount",
	})
	result, err := h.Query.ListBets(c.Request.Context(), repository.ListBetsParams{
		Limit:   limit,
		Offset:  offset,
		OrderBy: orderBy,
		Asc:     boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		queryError(c, h.Logger, "list bets failed", err)
		return
	}
	Ok(c, result.Items, paginationMeta(limit, offset, result.Total))
}

// @Summary Most recent bets
// @Tags bets
// @Param limit query int false "limit (default 20)"
// @Success 200 {object} apiResponse
// @Router /api/bets/recent [get]
func (h *BetHandler) recentBets(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	items, err := h.Query.RecentBets(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		queryError(c, h.Logger, "recent bets failed", err)
		return
	}
	Ok(c, items, nil)
}

// @Summary Get bet with its market
// @Tags bets
// @Param betId path string true "bet id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/bets/{betId} [get]
func (h *BetHandler) getBet(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	bet, err := h.Query.GetBet(c.Request.Context(), c.Param("betId"))
	if err != nil {
		queryError(c, h.Logger, "get bet failed", err)
		return
	}
	Ok(c, bet, nil)
}

// @Summary Bets of a market
// @Tags bets
// @Param marketId path string true "market id"
// @Param limit query int false "limit (default 50)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/bets/market/{marketId} [get]
func (h *BetHandler) marketBets(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	result, err := h.Query.MarketBets(c.Request.Context(), c.Param("marketId"), limit, offset)
	if err != nil {
		queryError(c, h.Logger, "market bets failed", err)
		return
	}
	Ok(c, result.Items, paginationMeta(limit, offset, result.Total))
}

// @Summary Bets of a user
// @Tags bets
// @Param address path string true "bettor address"
// @Param limit query int false "limit (default 50)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/bets/user/{address} [get]
func (h *BetHandler) userBets(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	result, err := h.Query.UserBets(c.Request.Context(), c.Param("address"), limit, offset)
	if err != nil {
		queryError(c, h.Logger, "user bets failed", err)
		return
	}
	Ok(c, result.Items, paginationMeta(limit, offset, result.Total))
}
