// Package projection builds read-side views from the domain event
// stream. Projections are observers: they never feed back into state.
package projection

import (
	"sync"
	"time"

	"chat-mesh/domain"
	"chat-mesh/domain/event"
)

// Entry is one timeline item, ordered by arrival.
type Entry struct {
	Message domain.Message
	Remote  bool
	SeenAt  time.Time
}

// Timeline keeps an append-only per-channel view of applied messages.
// Message ids are deduplicated; the store is the source of truth, the
// timeline only mirrors what was applied.
type Timeline struct {
	mu       sync.RWMutex
	now      func() time.Time
	channels map[string][]Entry
	seen     map[string]map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{
		now:      time.Now,
		channels: make(map[string][]Entry),
		seen:     make(map[string]map[string]struct{}),
	}
}

// Consume appends applied messages. Other domain events are ignored.
func (t *Timeline) Consume(e event.DomainEvent) {
	applied, ok := e.(event.MessageApplied)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.seen[applied.Channel]
	if ids == nil {
		ids = make(map[string]struct{})
		t.seen[applied.Channel] = ids
	}
	if _, dup := ids[applied.Message.ID]; dup {
		return
	}
	ids[applied.Message.ID] = struct{}{}
	t.channels[applied.Channel] = append(t.channels[applied.Channel], Entry{
		Message: applied.Message,
		Remote:  applied.Remote,
		SeenAt:  t.now(),
	})
}

// Entries returns the channel's timeline in arrival order.
func (t *Timeline) Entries(channelID string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := t.channels[channelID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Recent returns up to limit newest entries, oldest first.
func (t *Timeline) Recent(channelID string, limit int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := t.channels[channelID]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]Entry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

func (t *Timeline) Len(channelID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels[channelID])
}
