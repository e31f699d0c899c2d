// Package live is the reactive read layer. The market core publishes an
// invalidation Event after every committed mutation; subscribers (browser
// websockets, other server instances via Redis) receive the events for
// the topics they follow and re-run their queries.
//
// Events say "this changed", never "here is the new state", so a dropped
// event costs one stale view until the next event or refetch, and the
// payload can never leak data past the query-level access checks.
package live

import (
	"log/slog"
	"sync"
	"time"
)

// Event is one invalidation notice.
type Event struct {
	Topic string    `json:"topic"`
	Kind  string    `json:"kind"`
	ID    string    `json:"id,omitempty"`
	At    time.Time `json:"at"`
}

// Topic helpers. Every core mutation publishes on one or more of these.
func UserTopic(userID string) string         { return "user:" + userID }
func TicketTopic(ticketID string) string     { return "ticket:" + ticketID }
func ConversationTopic(convID string) string { return "conversation:" + convID }

const (
	// TicketsTopic carries changes to the open-ticket feed.
	TicketsTopic = "tickets"
	// PresenceTopic carries tutor availability changes.
	PresenceTopic = "presence"
)

// Publisher is what the market core needs from the read layer.
type Publisher interface {
	Publish(events ...Event)
}

// Subscription receives events for a fixed set of topics until Close.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	topics []string
	hub    *Hub
	once   sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Hub fans events out to local subscribers and to any registered sinks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	sinks  []func(Event)
	buffer int
	log    *slog.Logger
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// AddSink registers fn to receive every event published locally. Used
// to forward events to other instances.
func (h *Hub) AddSink(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, fn)
}

// Subscribe follows topics. Duplicate topics are ignored.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]bool, len(topics))
	for _, t := range topics {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		sub.topics = append(sub.topics, t)
		if h.subs[t] == nil {
			h.subs[t] = make(map[*Subscription]struct{})
		}
		h.subs[t][sub] = struct{}{}
	}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range sub.topics {
		delete(h.subs[t], sub)
		if len(h.subs[t]) == 0 {
			delete(h.subs, t)
		}
	}
	close(sub.ch)
}

// Publish delivers events locally and hands them to every sink.
func (h *Hub) Publish(events ...Event) {
	h.Deliver(events...)

	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()
	for _, ev := range events {
		for _, sink := range sinks {
			sink(ev)
		}
	}
}

// Deliver hands events to local subscribers only. A subscriber whose
// buffer is full misses the event.
func (h *Hub) Deliver(events ...Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		for sub := range h.subs[ev.Topic] {
			select {
			case sub.ch <- ev:
			default:
				h.log.Debug("live subscriber buffer full, event dropped", "topic", ev.Topic, "kind", ev.Kind)
			}
		}
	}
}

// SubscriberCount returns the number of subscriptions following topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
