// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package storage provides the key-value compartments a relying party uses to
// persist its session: a Durable compartment whose entries live until they
// are deleted and a Volatile compartment whose entries expire.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Durable is a compartment whose entries persist until explicitly deleted.
// Implementations must be concurrently safe.
type Durable interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Volatile is a compartment whose entries expire after a ttl. Implementations
// must be concurrently safe.
type Volatile interface {
	// Get returns the value for key or ErrNotFound once the entry has
	// expired.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Event describes a change to a Durable entry.
type Event struct {
	// Key that changed.
	Key string

	// Origin of the writer, see WithOrigin.  Empty when the writer didn't
	// identify itself.
	Origin string
}

// Watcher is implemented by Durable compartments which can notify about
// changes made through any handle, including other processes.
type Watcher interface {
	// Watch calls fn for every change until stop is called or ctx is done.
	Watch(ctx context.Context, fn func(Event)) (stop func(), err error)
}

type originKey struct{}

// WithOrigin returns a context which identifies the writer of Durable
// changes, so a watcher can ignore the changes it made itself.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the origin set by WithOrigin.
func OriginFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	o, _ := ctx.Value(originKey{}).(string)
	return o
}
