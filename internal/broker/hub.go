package broker

import (
	"context"
	"sync"
)

// subscriptionBuffer bounds the notifications queued per subscriber. When it is
// full a new notification is dropped: the subscriber will re-read after the queued one anyway.
const subscriptionBuffer = 16

// Hub fans change events out to in-process subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives the events of one table (or of every table when table is "").
type Subscription struct {
	C     <-chan Event
	c     chan Event
	table string
	hub   *Hub
	once  sync.Once
}

// Subscribe registers a subscriber. Callers must Close it.
func (h *Hub) Subscribe(table string) *Subscription {
	c := make(chan Event, subscriptionBuffer)
	s := &Subscription{C: c, c: c, table: table, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Close unregisters the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.c)
		s.hub.mu.Unlock()
	})
}

// Dispatch delivers ev to every matching subscriber without blocking.
func (h *Hub) Dispatch(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.table != "" && s.table != ev.Table {
			continue
		}
		select {
		case s.c <- ev:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// LocalPublisher dispatches straight into a hub. It serves single-process
// deployments that run without a bus.
type LocalPublisher struct {
	Hub *Hub
}

func (p LocalPublisher) Publish(ctx context.Context, ev Event) error {
	p.Hub.Dispatch(ev)
	return nil
}

func (p LocalPublisher) Close() error { return nil }
