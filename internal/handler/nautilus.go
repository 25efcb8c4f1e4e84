package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/repository"
	"prophyt/internal/resolution"
	"prophyt/internal/service"
)

// Resolver is the operator surface of the resolution engine.
type Resolver interface {
	Health(ctx context.Context) (bool, error)
	ResolveMarketByID(ctx context.Context, id string, opts resolution.Options) error
	Sweep(ctx context.Context, opts resolution.Options) (resolution.Result, error)
}

type PendingSource interface {
	PendingMarkets(ctx context.Context) (json.RawMessage, error)
}

type NautilusHandler struct {
	Resolver Resolver
	Pending  PendingSource
	Query    *service.QueryService
	Logger   *zap.Logger
}

type resolveRequest struct {
	UseNautilus   *bool  `json:"use_nautilus"`
	DataSourceURL string `json:"data_source_url"`
}

// Register mounts the routes; write middleware guards the operator endpoints only.
func (h *NautilusHandler) Register(r *gin.Engine, write ...gin.HandlerFunc) {
	group := r.Group("/api/nautilus")
	group.GET("/health", h.health)
	group.GET("/pending-markets", h.pendingMarkets)
	group.GET("/resolutions", h.listResolutions)
	group.GET("/stats", h.stats)

	ops := group.Group("", write...)
	ops.POST("/resolve/:marketId", h.resolveMarket)
	ops.POST("/resolve-all", h.resolveAll)
}

// @Summary Oracle health
// @Tags nautilus
// @Success 200 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/nautilus/health [get]
func (h *NautilusHandler) health(c *gin.Context) {
	if h.Resolver == nil {
		Error(c, http.StatusServiceUnavailable, "resolver unavailable", nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	healthy, err := h.Resolver.Health(ctx)
	if err != nil || !healthy {
		msg := "oracle unhealthy"
		if err != nil {
			msg = err.Error()
		}
		Error(c, http.StatusServiceUnavailable, msg, map[string]any{"healthy": false})
		return
	}
	Ok(c, gin.H{"healthy": true}, nil)
}

// @Summary Markets the oracle reports as pending
// @Tags nautilus
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/nautilus/pending-markets [get]
func (h *NautilusHandler) pendingMarkets(c *gin.Context) {
	if h.Pending == nil {
		Error(c, http.StatusServiceUnavailable, "oracle unavailable", nil)
		return
	}
	raw, err := h.Pending.PendingMarkets(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("pending markets failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, raw, nil)
}

// @Summary Stored oracle attestations
// @Tags nautilus
// @Param market_id query string false "platform market id"
// @Param limit query int false "limit (default 50)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/nautilus/resolutions [get]
func (h *NautilusHandler) listResolutions(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	result, err := h.Query.ListResolutions(c.Request.Context(), repository.ListResolutionsParams{
		Limit:    limit,
		Offset:   offset,
		MarketID: strQueryPtr(c, "market_id"),
	})
	if err != nil {
		queryError(c, h.Logger, "list resolutions failed", err)
		return
	}
	Ok(c, result.Items, paginationMeta(limit, offset, result.Total))
}

// @Summary Resolution statistics
// @Tags nautilus
// @Success 200 {object} apiResponse
// @Router /api/nautilus/stats [get]
func (h *NautilusHandler) stats(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	stats, err := h.Query.ResolutionStats(c.Request.Context())
	if err != nil {
		queryError(c, h.Logger, "resolution stats failed", err)
		return
	}
	Ok(c, stats, nil)
}

// @Summary Resolve one market
// @Tags nautilus
// @Param marketId path string true "market id"
// @Param body body resolveRequest false "resolution options"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Security BearerAuth
// @Router /api/nautilus/resolve/{marketId} [post]
func (h *NautilusHandler) resolveMarket(c *gin.Context) {
	if h.Resolver == nil {
		Error(c, http.StatusServiceUnavailable, "resolver unavailable", nil)
		return
	}
	req, ok := bindResolveRequest(c)
	if !ok {
		return
	}
	marketID := c.Param("marketId")
	err := h.Resolver.ResolveMarketByID(c.Request.Context(), marketID, resolution.Options{
		UseNautilus:   req.UseNautilus,
		DataSourceURL: req.DataSourceURL,
	})
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, resolution.ErrMarketNotFound):
			status = http.StatusNotFound
		case errors.Is(err, resolution.ErrNoMarketIdentifier):
			status = http.StatusBadRequest
		case errors.Is(err, resolution.ErrNotExpired), errors.Is(err, resolution.ErrSweepRunning):
			status = http.StatusConflict
		}
		if h.Logger != nil {
			h.Logger.Warn("manual resolve failed", zap.String("market_id", marketID), zap.Error(err))
		}
		Error(c, status, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"marketId": marketID, "resolved": true}, nil)
}

// @Summary Run one resolution sweep now
// @Tags nautilus
// @Param body body resolveRequest false "resolution options"
// @Success 200 {object} apiResponse
// @Security BearerAuth
// @Router /api/nautilus/resolve-all [post]
func (h *NautilusHandler) resolveAll(c *gin.Context) {
	if h.Resolver == nil {
		Error(c, http.StatusServiceUnavailable, "resolver unavailable", nil)
		return
	}
	req, ok := bindResolveRequest(c)
	if !ok {
		return
	}
	result, err := h.Resolver.Sweep(c.Request.Context(), resolution.Options{UseNautilus: req.UseNautilus})
	if errors.Is(err, resolution.ErrSweepRunning) {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual sweep failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func bindResolveRequest(c *gin.Context) (resolveRequest, bool) {
	var req resolveRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return req, false
	}
	return req, true
}
