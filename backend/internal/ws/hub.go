package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"streamtracker/backend/internal/collab"
)

const mirrorEnqueueTimeout = 100 * time.Millisecond

// Hub is the broadcast gateway: the set of attached connections in the one
// shared room, fanned out to on every published event. It also mirrors
// each event onto the kafka topic so consumers outside this process see
// the same stream.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	dispatcher *collab.KafkaDispatcher // nil disables the mirror
	logger     *zap.Logger
}

func NewHub(dispatcher *collab.KafkaDispatcher, logger *zap.Logger) *Hub {
	return &Hub{
		conns:      make(map[*Conn]struct{}),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *Hub) Join(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Publish implements collab.Broadcaster. Delivery is best effort: every
// attached connection gets the event (sender included), slow consumers
// drop rather than block the publisher.
func (h *Hub) Publish(evt collab.Event) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(evt)
	}

	if h.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorEnqueueTimeout)
		defer cancel()
		if err := h.dispatcher.Enqueue(ctx, collab.NewTopicEvent(evt)); err != nil {
			h.logger.Warn("kafka mirror dropped event",
				zap.String("type", evt.Type), zap.Error(err))
		}
	}
}
