package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const subscriptionBuffer = 64

// Hub delivers events to the in-process subscribers of each user.
type Hub struct {
	log *log.Logger

	mu   sync.RWMutex
	subs map[int64]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{log: logger, subs: make(map[int64]map[*Subscription]struct{})}
}

// Subscription is a handle on one user's change feed.
type Subscription struct {
	hub    *Hub
	userID int64
	ch     chan Event
	once   sync.Once
}

// Subscribe registers a new subscriber for userID.
func (h *Hub) Subscribe(userID int64) *Subscription {
	s := &Subscription{hub: h, userID: userID, ch: make(chan Event, subscriptionBuffer)}
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Events returns the delivery channel. It is closed by Cancel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Cancel unregisters the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.hub.remove(s) })
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.userID)
		}
	}
	close(s.ch)
}

// Broadcast hands ev to every subscriber of ev.UserID without blocking.
// Slow subscribers lose events; they refetch on the next one anyway.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.UserID] {
		select {
		case s.ch <- ev:
		default:
			h.log.WithFields(log.Fields{"user": ev.UserID, "event": ev.ID}).Debug("subscriber buffer full, dropping event")
		}
	}
}

// Subscribers reports how many subscriptions userID currently has.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
