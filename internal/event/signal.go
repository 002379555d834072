package event

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is the handle returned by Signal.Connect.
// Disconnect is idempotent and safe to call from any goroutine.
type Subscription struct {
	id   string
	once sync.Once
	drop func(id string)
}

// ID returns the unique identifier of this subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Disconnect removes the handler from the signal.
// Calling Disconnect more than once has no effect.
func (s *Subscription) Disconnect() {
	s.once.Do(func() {
		s.drop(s.id)
	})
}

// Signal is a synchronous, typed observer registry.
// The zero value is ready to use.
type Signal[T any] struct {
	mu       sync.Mutex
	handlers []handler[T]
}

type handler[T any] struct {
	id string
	fn func(T)
}

// Connect registers fn and returns its subscription handle.
func (s *Signal[T]) Connect(fn func(T)) *Subscription {
	id := uuid.NewString()

	s.mu.Lock()
	s.handlers = append(s.handlers, handler[T]{id: id, fn: fn})
	s.mu.Unlock()

	return &Subscription{id: id, drop: s.disconnect}
}

// ConnectOnce registers fn to run for the next emission only.
func (s *Signal[T]) ConnectOnce(fn func(T)) *Subscription {
	var sub *Subscription
	sub = s.Connect(func(v T) {
		sub.Disconnect()
		fn(v)
	})
	return sub
}

// Emit delivers v to all connected handlers in connection order.
// Handlers run on the calling goroutine; a handler may disconnect
// itself or connect new handlers without deadlocking.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	snapshot := make([]handler[T], len(s.handlers))
	copy(snapshot, s.handlers)
	s.mu.Unlock()

	for _, h := range snapshot {
		if s.connected(h.id) {
			h.fn(v)
		}
	}
}

// Len returns the number of connected handlers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func (s *Signal[T]) connected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handlers {
		if h.id == id {
			return true
		}
	}
	return false
}

func (s *Signal[T]) disconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Group tracks a set of subscriptions that share a lifetime.
// DisconnectAll is used at dispose time to guarantee that every
// connection made by a component is torn down with it.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add registers a subscription with the group.
func (g *Group) Add(subs ...*Subscription) {
	g.mu.Lock()
	g.subs = append(g.subs, subs...)
	g.mu.Unlock()
}

// DisconnectAll disconnects every tracked subscription and empties
// the group.
func (g *Group) DisconnectAll() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Disconnect()
	}
}

// Len returns the number of tracked subscriptions.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}
