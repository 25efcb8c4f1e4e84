package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/pricecache"
	"prophyt/internal/service"
)

type IndexerHandler struct {
	Query  *service.QueryService
	Logger *zap.Logger
}

func (h *IndexerHandler) Register(r *gin.Engine) {
	r.GET("/api/indexer/streams", h.streams)
}

// @Summary Cursor position and last error per event stream
// @Tags indexer
// @Success 200 {object} apiResponse
// @Router /api/indexer/streams [get]
func (h *IndexerHandler) streams(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	items, err := h.Query.Streams(c.Request.Context())
	if err != nil {
		queryError(c, h.Logger, "list streams failed", err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

type PriceReader interface {
	Latest(ctx context.Context) (*pricecache.Price, error)
}

type OracleHandler struct {
	Prices PriceReader
	Logger *zap.Logger
}

func (h *OracleHandler) Register(r *gin.Engine) {
	r.GET("/api/oracle/price/latest", h.latestPrice)
}

// @Summary Latest SUI/USD quote
// @Tags oracle
// @Success 200 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/oracle/price/latest [get]
func (h *OracleHandler) latestPrice(c *gin.Context) {
	if h.Prices == nil {
		Error(c, http.StatusServiceUnavailable, "price cache disabled", nil)
		return
	}
	price, err := h.Prices.Latest(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, pricecache.ErrNoPrice) {
			status = http.StatusServiceUnavailable
		}
		if h.Logger != nil {
			h.Logger.Warn("latest price failed", zap.Error(err))
		}
		Error(c, status, err.Error(), nil)
		return
	}
	Ok(c, price, map[string]any{"stale": price.Stale})
}
