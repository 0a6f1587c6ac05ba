package changefeed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"velib-cloud/internal/observability/metrics"
)

// ScopeAll subscribes to every station.
const ScopeAll = "*"

// Event signals that a new snapshot was appended for a station.
type Event struct {
	StationID string    `json:"station_id"`
	Seq       int64     `json:"seq,omitempty"`
	Timestamp time.Time `json:"ts"`
	Source    string    `json:"-"`
}

// Hub fans change events out to scoped subscribers. Delivery is at-most-once
// and callbacks run on the publisher's goroutine.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	logger zerolog.Logger
}

// NewHub constructs a hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscription is a registered callback. Dispose releases it.
type Subscription struct {
	hub      *Hub
	id       uint64
	scope    string
	callback func(Event)
	disposed atomic.Bool
}

// Subscribe registers a callback for a station id or ScopeAll.
func (h *Hub) Subscribe(scope string, callback func(Event)) *Subscription {
	if scope == "" {
		scope = ScopeAll
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{hub: h, id: h.nextID, scope: scope, callback: callback}
	byID, ok := h.subs[scope]
	if !ok {
		byID = make(map[uint64]*Subscription)
		h.subs[scope] = byID
	}
	byID[sub.id] = sub
	return sub
}

// Scope returns the subscribed scope.
func (s *Subscription) Scope() string {
	if s == nil {
		return ""
	}
	return s.scope
}

// Dispose stops callbacks immediately. Calling it more than once is a no-op.
func (s *Subscription) Dispose() {
	if s == nil || !s.disposed.CompareAndSwap(false, true) {
		return
	}
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if byID, ok := h.subs[s.scope]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(h.subs, s.scope)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, byID := range h.subs {
		count += len(byID)
	}
	return count
}

// Publish delivers an event to the station's subscribers and to ScopeAll.
func (h *Hub) Publish(event Event) {
	if h == nil || event.StationID == "" {
		return
	}
	metrics.IncChangefeedEvent(event.Source)

	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[event.StationID])+len(h.subs[ScopeAll]))
	for _, sub := range h.subs[event.StationID] {
		targets = append(targets, sub)
	}
	for _, sub := range h.subs[ScopeAll] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if sub.disposed.Load() || sub.callback == nil {
			continue
		}
		h.deliver(sub, event)
	}
}

func (h *Hub) deliver(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().
				Interface("panic", r).
				Str("scope", sub.scope).
				Str("station_id", event.StationID).
				Msg("change feed subscriber panicked")
		}
	}()
	sub.callback(event)
}
