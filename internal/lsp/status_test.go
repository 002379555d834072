package lsp

import (
	"testing"
	"time"
)

func TestStatusBoardSetAndClear(t *testing.T) {
	b := NewStatusBoard()

	changes := 0
	b.Changed.Connect(func([]StatusMessage) { changes++ })

	id := b.Set("indexing project", time.Minute)
	if msgs := b.Messages(); len(msgs) != 1 || msgs[0].Text != "indexing project" {
		t.Fatalf("Messages = %+v, want the one status", msgs)
	}

	b.Clear(id)
	if msgs := b.Messages(); len(msgs) != 0 {
		t.Errorf("Messages after Clear = %+v, want none", msgs)
	}
	if changes != 2 {
		t.Errorf("change emissions = %d, want 2", changes)
	}

	// Clearing twice is a quiet no-op.
	b.Clear(id)
	if changes != 2 {
		t.Errorf("change emissions after double clear = %d, want 2", changes)
	}
}

func TestStatusBoardOrderedOldestFirst(t *testing.T) {
	b := NewStatusBoard()
	b.Set("first", time.Minute)
	b.Set("second", time.Minute)
	b.Set("third", time.Minute)

	msgs := b.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Messages = %d, want 3", len(msgs))
	}
	if msgs[0].Text != "first" || msgs[2].Text != "third" {
		t.Errorf("order = [%s %s %s], want insertion order", msgs[0].Text, msgs[1].Text, msgs[2].Text)
	}
}

func TestStatusBoardExpiry(t *testing.T) {
	b := NewStatusBoard()
	b.Set("transient", 20*time.Millisecond)
	b.Set("durable", time.Minute)

	deadline := time.After(2 * time.Second)
	for {
		msgs := b.Messages()
		if len(msgs) == 1 {
			if msgs[0].Text != "durable" {
				t.Fatalf("survivor = %q, want durable", msgs[0].Text)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("status did not expire, still %d messages", len(msgs))
		case <-time.After(5 * time.Millisecond):
		}
	}
}
