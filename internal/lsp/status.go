package lsp

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weavedoc/weave/internal/event"
)

// DefaultStatusTTL bounds how long an uncleared status message lives.
const DefaultStatusTTL = 10 * time.Second

// StatusMessage is a transient, user-visible note about connection
// health ("reconnecting…", "server unavailable"). Messages self-expire
// so stale UI state cannot outlive its cause.
type StatusMessage struct {
	ID      string
	Text    string
	Created time.Time
}

// StatusBoard holds the current set of status messages and notifies
// observers on every change.
type StatusBoard struct {
	mu       sync.Mutex
	messages map[string]StatusMessage
	timers   map[string]*time.Timer

	// Changed fires with the full current message list after every
	// set, clear or expiry.
	Changed event.Signal[[]StatusMessage]
}

// NewStatusBoard creates an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		messages: make(map[string]StatusMessage),
		timers:   make(map[string]*time.Timer),
	}
}

// Set publishes a message that expires after ttl unless cleared first.
// A non-positive ttl uses DefaultStatusTTL. Returns the message id.
func (b *StatusBoard) Set(text string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}

	id := uuid.NewString()
	msg := StatusMessage{ID: id, Text: text, Created: time.Now()}

	b.mu.Lock()
	b.messages[id] = msg
	b.timers[id] = time.AfterFunc(ttl, func() { b.Clear(id) })
	b.mu.Unlock()

	b.Changed.Emit(b.Messages())
	return id
}

// Clear removes a message before its expiry. Unknown ids are ignored.
func (b *StatusBoard) Clear(id string) {
	b.mu.Lock()
	_, ok := b.messages[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.messages, id)
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	b.Changed.Emit(b.Messages())
}

// Messages returns the current messages, oldest first.
func (b *StatusBoard) Messages() []StatusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := make([]StatusMessage, 0, len(b.messages))
	for _, m := range b.messages {
		msgs = append(msgs, m)
	}
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].Created.Before(msgs[j-1].Created); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
	return msgs
}
