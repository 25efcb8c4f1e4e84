package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"prophyt/internal/feed"
)

type Subscriber interface {
	Subscribe(kind string, buf int) (<-chan feed.Message, func())
}

// FeedHandler streams indexed events to websocket clients.
type FeedHandler struct {
	Hub            Subscriber
	Buffer         int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OriginPatterns []string
	Logger         *zap.Logger
}

func (h *FeedHandler) Register(r *gin.Engine) {
	r.GET("/ws/events", h.events)
}

// @Summary Live event feed (websocket)
// @Tags feed
// @Param kind query string false "event kind, e.g. BetPlaced"
// @Success 101 {string} string "switching protocols"
// @Router /ws/events [get]
func (h *FeedHandler) events(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusServiceUnavailable, "feed unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		h.logger().Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	kind := strings.TrimSpace(c.Query("kind"))
	msgs, cancel := h.Hub.Subscribe(kind, h.Buffer)
	defer cancel()

	// Clients only listen; CloseRead handles control frames and cancels ctx on disconnect.
	ctx := conn.CloseRead(c.Request.Context())
	ping := time.NewTicker(h.pingInterval())
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			if err := h.withTimeout(ctx, conn.Ping); err != nil {
				return
			}
		case msg, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed stopped")
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger().Warn("encode feed message failed", zap.Error(err))
				continue
			}
			if err := h.withTimeout(ctx, func(ctx context.Context) error {
				return conn.Write(ctx, websocket.MessageText, payload)
			}); err != nil {
				h.logger().Debug("feed write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *FeedHandler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	timeout := h.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func (h *FeedHandler) pingInterval() time.Duration {
	if h.PingInterval <= 0 {
		return 30 * time.Second
	}
	return h.PingInterval
}

func (h *FeedHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
