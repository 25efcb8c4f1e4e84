package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiResponse is the envelope of every JSON endpoint. Code is 0 on success, the HTTP status otherwise.
type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{Message: "ok", Data: data, Meta: meta})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{Code: status, Message: message, Meta: meta})
}

// Abort writes an error envelope and stops the remaining handlers in the chain.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, apiResponse{Code: status, Message: message})
}

// paginationMeta describes one page of a list endpoint.
func paginationMeta(limit, offset int, total int64) map[string]any {
	limit = max(limit, 0)
	offset = max(offset, 0)
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": int64(offset+limit) < total,
	}
}
