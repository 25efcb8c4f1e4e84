package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prophyt/internal/service"
)

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func boolQueryPtr(c *gin.Context, key string) *bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return &b
		}
	}
	return nil
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

// timeQuery accepts unix seconds, unix milliseconds or RFC3339.
func timeQuery(c *gin.Context, key string) *time.Time {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		var t time.Time
		if n > 1e12 {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

func parseOrder(value string, allow map[string]string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return ""
	}
	if mapped, ok := allow[key]; ok {
		return mapped
	}
	return ""
}

// queryError maps query service errors onto the response envelope.
func queryError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrMarketNotFound), errors.Is(err, service.ErrBetNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	default:
		if logger != nil {
			logger.Warn(msg, zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
