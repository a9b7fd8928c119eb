// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// eventsChannel is the pub/sub channel suffix used for change events.
	eventsChannel = "events"

	// Each compartment has its own key namespace, so the durable and
	// volatile entries of one key can share a client and a prefix.
	durableNamespace  = "durable"
	volatileNamespace = "volatile"
)

// redisStore holds what RedisDurable and RedisVolatile share.
type redisStore struct {
	client redis.UniversalClient
	prefix string
}

func newRedisStore(op, namespace string, client redis.UniversalClient, opt ...Option) (*redisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	prefix := namespace
	if opts.withPrefix != "" {
		prefix = opts.withPrefix + ":" + namespace
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

// key returns the redis key of k: [prefix:]namespace:k
func (r *redisStore) key(k string) string {
	return r.prefix + ":" + k
}

func (r *redisStore) get(ctx context.Context, op, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// RedisDurable is a Durable and Watcher backed by redis.  Clients in
// different processes sharing a RedisDurable observe each other's changes
// through redis pub/sub, the way browser tabs observe local storage events.
type RedisDurable struct {
	*redisStore
}

var (
	_ Durable = (*RedisDurable)(nil)
	_ Watcher = (*RedisDurable)(nil)
)

// NewRedisDurable creates a RedisDurable.  Its keys are "durable:<key>",
// after the optional WithPrefix prefix.
func NewRedisDurable(client redis.UniversalClient, opt ...Option) (*RedisDurable, error) {
	s, err := newRedisStore("storage.NewRedisDurable", durableNamespace, client, opt...)
	if err != nil {
		return nil, err
	}
	return &RedisDurable{redisStore: s}, nil
}

// Get implements Durable.Get
func (r *RedisDurable) Get(ctx context.Context, key string) (string, error) {
	return r.get(ctx, "storage.(RedisDurable).Get", key)
}

// Set implements Durable.Set
func (r *RedisDurable) Set(ctx context.Context, key, value string) error {
	const op = "storage.(RedisDurable).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.publish(ctx, op, key)
}

// Delete implements Durable.Delete
func (r *RedisDurable) Delete(ctx context.Context, key string) error {
	const op = "storage.(RedisDurable).Delete"
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return nil
	}
	return r.publish(ctx, op, key)
}

type redisEvent struct {
	Key    string `json:"key"`
	Origin string `json:"origin,omitempty"`
}

func (r *RedisDurable) publish(ctx context.Context, op, key string) error {
	b, err := json.Marshal(redisEvent{Key: key, Origin: OriginFromContext(ctx)})
	if err != nil {
		return fmt.Errorf("%s: unable to encode event: %w", op, err)
	}
	if err := r.client.Publish(ctx, r.key(eventsChannel), b).Err(); err != nil {
		return fmt.Errorf("%s: unable to publish event: %w", op, err)
	}
	return nil
}

// Watch implements Watcher.Watch.  fn is called from a dedicated goroutine.
func (r *RedisDurable) Watch(ctx context.Context, fn func(Event)) (func(), error) {
	const op = "storage.(RedisDurable).Watch"
	if fn == nil {
		return nil, fmt.Errorf("%s: watch func is nil: %w", op, ErrInvalidParameter)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := r.client.Subscribe(ctx, r.key(eventsChannel))
	// wait for the subscription to be confirmed so no event is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%s: unable to subscribe: %w", op, err)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
		})
	}
	ch := sub.Channel()
	go func() {
		defer stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e redisEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				fn(Event{Key: e.Key, Origin: e.Origin})
			}
		}
	}()
	return stop, nil
}

// RedisVolatile is a Volatile backed by redis key expiry.
type RedisVolatile struct {
	*redisStore
}

var _ Volatile = (*RedisVolatile)(nil)

// NewRedisVolatile creates a RedisVolatile.  Its keys are "volatile:<key>",
// after the optional WithPrefix prefix.
func NewRedisVolatile(client redis.UniversalClient, opt ...Option) (*RedisVolatile, error) {
	s, err := newRedisStore("storage.NewRedisVolatile", volatileNamespace, client, opt...)
	if err != nil {
		return nil, err
	}
	return &RedisVolatile{redisStore: s}, nil
}

// Get implements Volatile.Get
func (r *RedisVolatile) Get(ctx context.Context, key string) (string, error) {
	return r.get(ctx, "storage.(RedisVolatile).Get", key)
}

// Set implements Volatile.Set
func (r *RedisVolatile) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "storage.(RedisVolatile).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements Volatile.Delete
func (r *RedisVolatile) Delete(ctx context.Context, key string) error {
	const op = "storage.(RedisVolatile).Delete"
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
