// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import "sync"

// Event names a session notification.
type Event string

const (
	// EventAuthenticated is published after a callback is validated and
	// after a persisted session is restored.
	EventAuthenticated Event = "authenticated"

	// EventNotAuthenticated is published when no persisted session could
	// be restored.
	EventNotAuthenticated Event = "not-authenticated"
)

// Handler receives a copy of the session an Event is about.
type Handler func(*Session)

type subscription struct {
	id   uint64
	fn   Handler
	once bool
}

// Bus delivers Events to subscribed Handlers in subscription order.  A
// Handler runs on the publisher's goroutine and may subscribe, unsubscribe or
// publish itself.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Event][]subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[Event][]subscription{}}
}

// Subscribe calls h for every e until the returned func is called.
func (b *Bus) Subscribe(e Event, h Handler) (unsubscribe func()) {
	return b.add(e, h, false)
}

// Once calls h for the next e only.
func (b *Bus) Once(e Event, h Handler) (unsubscribe func()) {
	return b.add(e, h, true)
}

func (b *Bus) add(e Event, h Handler, once bool) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[e] = append(b.subs[e], subscription{id: id, fn: h, once: once})
	return func() { b.remove(e, id) }
}

func (b *Bus) remove(e Event, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[e]
	for i, s := range subs {
		if s.id == id {
			b.subs[e] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers e to its handlers, each receiving its own copy of s.
func (b *Bus) Publish(e Event, s *Session) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[e]))
	copy(subs, b.subs[e])
	b.mu.Unlock()

	for _, sub := range subs {
		// a once handler fires for whoever removes it first
		if sub.once && !b.remove(e, sub.id) {
			continue
		}
		sub.fn(s.Clone())
	}
}
