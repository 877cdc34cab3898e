// Package bus carries the daemon's internal events: native store changes,
// sync pass completions and message lifecycle notifications. Producers and
// consumers are decoupled through kind prefixes instead of listener lists.
package bus

import (
	"strings"
	"sync"
)

type subscriber struct {
	prefix string
	ch     chan Event
}

// Bus is an in-process publish/subscribe hub. Publishing never blocks: a
// subscriber that cannot keep up loses events rather than stalling the
// sync machinery.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers the event to every subscriber whose prefix matches the
// event kind. Full subscriber channels are skipped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// Subscribe registers for events whose kind starts with prefix and returns
// the delivery channel plus an unsubscribe function. bufSize bounds how far
// a slow consumer may fall behind before events are dropped.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	s := &subscriber{prefix: prefix, ch: make(chan Event, bufSize)}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.subs {
			if cur == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
