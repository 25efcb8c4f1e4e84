package feed

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Message is one indexed ledger event as published to live subscribers.
type Message struct {
	Kind        string          `json:"kind"`
	TxDigest    string          `json:"txDigest"`
	EventSeq    string          `json:"eventSeq"`
	MarketID    string          `json:"marketId,omitempty"`
	TimestampMs int64           `json:"timestampMs"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

type DropRecorder interface {
	FeedDropped()
}

type subscriber struct {
	ch   chan Message
	kind string
}

// Hub fans messages out to subscribers without blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]subscriber
	nextID  uint64
	dropped atomic.Uint64

	Metrics DropRecorder
	Logger  *zap.Logger
}

func NewHub(metrics DropRecorder, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:    map[uint64]subscriber{},
		Metrics: metrics,
		Logger:  logger,
	}
}

// Subscribe registers a subscriber for one kind ("" for every kind) and returns its channel
// plus a cancel func that unregisters and closes it.
func (h *Hub) Subscribe(kind string, buf int) (<-chan Message, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Message, buf)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscriber{ch: ch, kind: kind}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(msg Message) {
	if h == nil {
		return
	}
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.kind != "" && sub.kind != msg.Kind {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
			if h.Metrics != nil {
				h.Metrics.FeedDropped()
			}
		}
	}
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
