// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryDurable is an in-memory Durable and Watcher.  Sharing one
// MemoryDurable between several clients behaves like browser tabs sharing
// local storage.
type MemoryDurable struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[int]func(Event)
	nextID   int
}

var (
	_ Durable = (*MemoryDurable)(nil)
	_ Watcher = (*MemoryDurable)(nil)
)

// NewMemoryDurable creates an empty MemoryDurable.
func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{
		data:     map[string]string{},
		watchers: map[int]func(Event){},
	}
}

// Get implements Durable.Get
func (m *MemoryDurable) Get(_ context.Context, key string) (string, error) {
	const op = "storage.(MemoryDurable).Get"
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrNotFound)
	}
	return v, nil
}

// Set implements Durable.Set
func (m *MemoryDurable) Set(ctx context.Context, key, value string) error {
	const op = "storage.(MemoryDurable).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	m.notify(Event{Key: key, Origin: OriginFromContext(ctx)})
	return nil
}

// Delete implements Durable.Delete
func (m *MemoryDurable) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	_, ok := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()
	if ok {
		m.notify(Event{Key: key, Origin: OriginFromContext(ctx)})
	}
	return nil
}

// Watch implements Watcher.Watch.  fn is called synchronously by the writer.
func (m *MemoryDurable) Watch(ctx context.Context, fn func(Event)) (func(), error) {
	const op = "storage.(MemoryDurable).Watch"
	if fn == nil {
		return nil, fmt.Errorf("%s: watch func is nil: %w", op, ErrInvalidParameter)
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			stop()
		}()
	}
	return stop, nil
}

func (m *MemoryDurable) notify(e Event) {
	m.mu.RLock()
	fns := make([]func(Event), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}

// MemoryVolatile is an in-memory Volatile backed by go-cache.
type MemoryVolatile struct {
	c *gocache.Cache
}

var _ Volatile = (*MemoryVolatile)(nil)

// NewMemoryVolatile creates a MemoryVolatile which purges expired entries
// every cleanupInterval.  A cleanupInterval <= 0 disables purging; expired
// entries are still never returned.
func NewMemoryVolatile(cleanupInterval time.Duration) *MemoryVolatile {
	return &MemoryVolatile{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get implements Volatile.Get
func (m *MemoryVolatile) Get(_ context.Context, key string) (string, error) {
	const op = "storage.(MemoryVolatile).Get"
	v, ok := m.c.Get(key)
	if !ok {
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrNotFound)
	}
	s, _ := v.(string)
	return s, nil
}

// Set implements Volatile.Set.  A ttl <= 0 stores an entry that has already
// expired, the same way a cookie with an expiry in the past is dropped.
func (m *MemoryVolatile) Set(_ context.Context, key, value string, ttl time.Duration) error {
	const op = "storage.(MemoryVolatile).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	if ttl <= 0 {
		m.c.Delete(key)
		return nil
	}
	m.c.Set(key, value, ttl)
	return nil
}

// Delete implements Volatile.Delete
func (m *MemoryVolatile) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
