package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

const defaultSubscriberBuffer = 16

// Hub delivers points updates to in-process subscribers keyed by user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]map[chan PointsUpdate]struct{}
	buffer int
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[uint64]map[chan PointsUpdate]struct{}),
		buffer: defaultSubscriberBuffer,
	}
}

// Subscribe registers a subscriber for userID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(userID uint64) (<-chan PointsUpdate, func()) {
	ch := make(chan PointsUpdate, h.buffer)
	h.mu.Lock()
	set := h.subs[userID]
	if set == nil {
		set = make(map[chan PointsUpdate]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if current := h.subs[userID]; current != nil {
				delete(current, ch)
				if len(current) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscribers for userID.
func (h *Hub) Subscribers(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// PublishPointsUpdate implements Sink. Slow subscribers drop updates instead of
// blocking the publisher.
func (h *Hub) PublishPointsUpdate(_ context.Context, update PointsUpdate) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[update.UserID] {
		select {
		case ch <- update:
		default:
			log.WithField("user_id", update.UserID).Debug("events: subscriber buffer full, dropping points update")
		}
	}
	return nil
}
