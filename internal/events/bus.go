package events

import (
	"context"
	"sync"
)

// RatingEvent is fired by the rating write path whenever a rating is created
// or updated. RatingCount is the user's total after the write; Created marks
// a genuinely new rating, false when an existing score was overwritten.
type RatingEvent struct {
	UserID      int64 `json:"user_id"`
	RatingCount int   `json:"rating_count"`
	Created     bool  `json:"created"`
}

// Publisher is anything the rating write path can hand events to: the
// in-process bus, or a Redis channel when running with a broker.
type Publisher interface {
	PublishRatingEvent(ctx context.Context, ev RatingEvent) error
}

// Bus is a minimal in-process fan-out used when no broker is configured.
// Slow subscribers drop events rather than block the write path.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan RatingEvent
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan RatingEvent)}
}

func (b *Bus) PublishRatingEvent(_ context.Context, ev RatingEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a new consumer. The returned cancel func must be
// called to release the channel.
func (b *Bus) Subscribe() (<-chan RatingEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan RatingEvent, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
