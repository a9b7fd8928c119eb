// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/hashicorp/anvil-connect/sdk/cryptor"
	"github.com/hashicorp/anvil-connect/storage"
)

// NonceKey is the durable storage key of the raw nonce.
const NonceKey = "nonce"

// NonceManager issues and verifies the single in-flight nonce.  Only the
// hash of the nonce leaves the relying party, bound to the authorization
// request; issuing a new nonce invalidates any outstanding request.
type NonceManager struct {
	store   storage.Durable
	cryptor cryptor.Cryptor
}

// NewNonceManager creates a NonceManager which keeps the nonce in store.
func NewNonceManager(store storage.Durable, c cryptor.Cryptor) (*NonceManager, error) {
	const op = "oidc.NewNonceManager"
	switch {
	case store == nil:
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	case c == nil:
		return nil, fmt.Errorf("%s: cryptor is nil: %w", op, ErrNilParameter)
	}
	return &NonceManager{store: store, cryptor: c}, nil
}

// Issue generates and stores a fresh nonce and returns its hash.
func (n *NonceManager) Issue(ctx context.Context) (string, error) {
	const op = "oidc.(NonceManager).Issue"
	nonce, err := n.cryptor.GenerateNonce()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	if err := n.store.Set(ctx, NonceKey, nonce); err != nil {
		return "", fmt.Errorf("%s: unable to store nonce: %w", op, err)
	}
	return cryptor.SHA256URL(nonce), nil
}

// Verify reports whether candidate is the hash of the stored nonce.  It's
// false when no nonce was issued.  The nonce is not cleared, so verifying
// the same callback twice gives the same answer.
func (n *NonceManager) Verify(ctx context.Context, candidate string) (bool, error) {
	const op = "oidc.(NonceManager).Verify"
	nonce, err := n.store.Get(ctx, NonceKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%s: unable to read nonce: %w", op, err)
	case nonce == "":
		return false, nil
	}
	want := cryptor.SHA256URL(nonce)
	return subtle.ConstantTimeCompare([]byte(want), []byte(candidate)) == 1, nil
}
