package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/service"
)

type UserHandler struct {
	Query  *service.QueryService
	Logger *zap.Logger
}

func (h *UserHandler) Register(r *gin.Engine) {
	group := r.Group("/api/users/:address")
	group.GET("/bets", h.userBets)
	group.GET("/stats", h.userStats)
}

// @Summary Bets placed by an address
// @Tags users
// @Param address path string true "bettor address"
// @Param limit query int false "limit (default 50)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/users/{address}/bets [get]
func (h *UserHandler) userBets(c *gin.Context) {
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

// @Summary Betting statistics of an address
// @Tags users
// @Param address path string true "bettor address"
// @Success 200 {object} apiResponse
// @Router /api/users/{address}/stats [get]
func (h *UserHandler) userStats(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	stats, err := h.Query.UserStats(c.Request.Context(), c.Param("address"))
	if err != nil {
		queryError(c, h.Logger, "user stats failed", err)
		return
	}
	Ok(c, stats, nil)
}
