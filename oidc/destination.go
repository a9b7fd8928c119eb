// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/anvil-connect/storage"
)

// DestinationKey is the durable storage key of the destination path.
const DestinationKey = "anvil.connect.destination"

// Destination remembers the path the user was on before authenticating, so
// they can be returned there after the callback.
type Destination struct {
	store storage.Durable
}

// NewDestination creates a Destination kept in store.
func NewDestination(store storage.Durable) (*Destination, error) {
	const op = "oidc.NewDestination"
	if store == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	return &Destination{store: store}, nil
}

// Set replaces the destination.
func (d *Destination) Set(ctx context.Context, path string) error {
	const op = "oidc.(Destination).Set"
	if path == "" {
		return fmt.Errorf("%s: path is empty: %w", op, ErrInvalidParameter)
	}
	if err := d.store.Set(ctx, DestinationKey, path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get returns the destination without clearing it.  It returns an empty path
// when none is set.
func (d *Destination) Get(ctx context.Context) (string, error) {
	const op = "oidc.(Destination).Get"
	path, err := d.store.Get(ctx, DestinationKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, nil
}

// GetAndClear returns the destination and removes it, so it's consumed at
// most once.
func (d *Destination) GetAndClear(ctx context.Context) (string, error) {
	const op = "oidc.(Destination).GetAndClear"
	path, err := d.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := d.store.Delete(ctx, DestinationKey); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, nil
}
