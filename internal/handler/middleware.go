package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// OperatorClaims is the bearer token payload accepted on operator endpoints.
type OperatorClaims struct {
	Role string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

const operatorSubjectKey = "operator_subject"

// RequireOperator checks an HS256 bearer token. An empty secret disables the check.
func RequireOperator(secret string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(auth, "Bearer ") {
			Abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := verifyOperatorToken(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), key)
		if err != nil {
			Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(operatorSubjectKey, claims.Subject)
		c.Next()
	}
}

func verifyOperatorToken(token string, key []byte) (*OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &OperatorClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// WriteAudit logs every non-read request under /api/.
func WriteAudit(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("operator", c.GetString(operatorSubjectKey)),
		}
		switch {
		case status >= 500:
			logger.Error("operator request", fields...)
		case status >= 400:
			logger.Warn("operator request", fields...)
		default:
			logger.Info("operator request", fields...)
		}
	}
}
