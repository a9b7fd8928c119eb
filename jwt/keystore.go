// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// KeySetFunc loads a KeySet, typically with network calls.
type KeySetFunc func(ctx context.Context) (KeySet, error)

// KeyStore holds the KeySet used to validate tokens.  The KeySet is loaded
// once by Prepare, before any token is validated; concurrent Prepare calls
// share a single load.
type KeyStore struct {
	load KeySetFunc

	mu     sync.RWMutex
	keySet KeySet

	group singleflight.Group
}

// NewKeyStore creates a KeyStore which loads its KeySet with load.
func NewKeyStore(load KeySetFunc) (*KeyStore, error) {
	const op = "jwt.NewKeyStore"
	if load == nil {
		return nil, fmt.Errorf("%s: key set func is nil: %w", op, ErrInvalidParameter)
	}
	return &KeyStore{load: load}, nil
}

// NewStaticKeyStore creates a KeyStore which is already prepared with ks.
func NewStaticKeyStore(ks KeySet) (*KeyStore, error) {
	const op = "jwt.NewStaticKeyStore"
	if ks == nil {
		return nil, fmt.Errorf("%s: key set is nil: %w", op, ErrInvalidParameter)
	}
	return &KeyStore{
		load:   func(context.Context) (KeySet, error) { return ks, nil },
		keySet: ks,
	}, nil
}

// NewDiscoveryKeyStore creates a KeyStore which discovers the provider's
// JWKS from its issuer.
func NewDiscoveryKeyStore(issuer, caPEM string, opt ...Option) (*KeyStore, error) {
	const op = "jwt.NewDiscoveryKeyStore"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	return NewKeyStore(func(ctx context.Context) (KeySet, error) {
		return NewOIDCDiscoveryKeySet(ctx, issuer, caPEM, opt...)
	})
}

// Prepare loads the KeySet unless it has already been loaded.  A failed load
// is not cached, so Prepare may be retried.
func (s *KeyStore) Prepare(ctx context.Context) (KeySet, error) {
	const op = "jwt.(KeyStore).Prepare"
	if ks := s.KeySet(); ks != nil {
		return ks, nil
	}
	v, err, _ := s.group.Do("prepare", func() (interface{}, error) {
		if ks := s.KeySet(); ks != nil {
			return ks, nil
		}
		ks, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		if ks == nil {
			return nil, fmt.Errorf("key set func returned nil: %w", ErrInvalidParameter)
		}
		s.mu.Lock()
		s.keySet = ks
		s.mu.Unlock()
		return ks, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v.(KeySet), nil
}

// KeySet returns the prepared KeySet or nil when Prepare hasn't succeeded.
func (s *KeyStore) KeySet() KeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keySet
}
