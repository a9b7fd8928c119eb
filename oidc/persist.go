// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/anvil-connect/storage"
	"github.com/hashicorp/go-multierror"
)

const (
	// SessionKey is the durable key of the encrypted session and the
	// volatile key of the secret which decrypts it.
	SessionKey = "anvil.connect"

	// SessionStateKey is the durable key of the provider's session state.
	SessionStateKey = "anvil.connect.session.state"

	// DefaultSessionTTL bounds how long a persisted session can be
	// decrypted when the provider didn't return expires_in.
	DefaultSessionTTL = 3600 * time.Second
)

// Serialize encrypts the session into the durable compartment and stores the
// secret in the volatile compartment, expiring with the session's expires_in.
// Once the secret expires the ciphertext can't be decrypted any more.
func (c *Client) Serialize(ctx context.Context) error {
	const op = "oidc.(Client).Serialize"
	logger := c.logger.Named("persist")
	c.mu.RLock()
	s := c.session.Clone()
	state := c.sessionState
	c.mu.RUnlock()

	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: unable to encode session: %w", op, err)
	}
	secret, ciphertext, err := c.cryptor.Encrypt(ctx, plaintext)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ttl := DefaultSessionTTL
	if s.ExpiresIn > 0 {
		ttl = time.Duration(s.ExpiresIn) * time.Second
	}
	if err := c.volatile.Set(ctx, SessionKey, escape(secret), ttl); err != nil {
		return fmt.Errorf("%s: unable to store secret: %w", op, err)
	}
	logger.Debug("stored session secret", "ttl", ttl)
	if err := c.writeSessionState(ctx, state); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	// written last: other clients restore the session when this key changes
	if err := c.durable.Set(c.originContext(ctx), SessionKey, ciphertext); err != nil {
		return fmt.Errorf("%s: unable to store session: %w", op, err)
	}
	logger.Debug("stored encrypted session")
	return nil
}

// Deserialize restores the persisted session.  It never fails: when there's
// nothing to restore, or the secret has expired, or decryption fails, the
// session becomes empty and EventNotAuthenticated is published.  Otherwise
// EventAuthenticated is published with the restored session.
func (c *Client) Deserialize(ctx context.Context) *Session {
	logger := c.logger.Named("persist")
	s, err := c.restore(ctx)
	state := c.readSessionState(ctx)
	if err != nil {
		logger.Debug("cannot deserialize session", "error", err)
		s = &Session{}
	}

	c.mu.Lock()
	c.session = s
	c.sessionState = state
	c.mu.Unlock()

	restored := s.Clone()
	if err != nil {
		c.events.Publish(EventNotAuthenticated, restored)
		return restored
	}
	c.events.Publish(EventAuthenticated, restored)
	return restored
}

func (c *Client) restore(ctx context.Context) (*Session, error) {
	const op = "oidc.(Client).restore"
	escaped, err := c.volatile.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("%s: no secret: %s: %w", op, err, ErrDeserialize)
	}
	secret, err := unescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed secret: %s: %w", op, err, ErrDeserialize)
	}
	ciphertext, err := c.durable.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("%s: no session: %s: %w", op, err, ErrDeserialize)
	}
	plaintext, err := c.cryptor.Decrypt(ctx, secret, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrDeserialize)
	}
	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("%s: unable to decode session: %s: %w", op, err, ErrDeserialize)
	}
	return &s, nil
}

// Reset empties the session and removes the persisted copy.  The session
// state is kept.  Storage failures are logged.
func (c *Client) Reset(ctx context.Context) {
	c.mu.Lock()
	c.session = &Session{}
	c.mu.Unlock()

	var result *multierror.Error
	if err := c.volatile.Delete(ctx, SessionKey); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to clear secret: %w", err))
	}
	if err := c.durable.Delete(c.originContext(ctx), SessionKey); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to clear session: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		c.logger.Named("persist").Warn("reset was incomplete", "error", err)
		return
	}
	c.logger.Named("persist").Debug("session reset")
}

// writeSessionState stores state in its durable slot, or removes the slot
// when state is empty.
func (c *Client) writeSessionState(ctx context.Context, state string) error {
	ctx = c.originContext(ctx)
	if state == "" {
		if err := c.durable.Delete(ctx, SessionStateKey); err != nil {
			return fmt.Errorf("unable to clear session state: %w", err)
		}
		return nil
	}
	if err := c.durable.Set(ctx, SessionStateKey, state); err != nil {
		return fmt.Errorf("unable to store session state: %w", err)
	}
	return nil
}

func (c *Client) readSessionState(ctx context.Context) string {
	state, err := c.durable.Get(ctx, SessionStateKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.Named("persist").Warn("unable to read session state", "error", err)
	}
	return state
}

func (c *Client) originContext(ctx context.Context) context.Context {
	return storage.WithOrigin(ctx, c.origin)
}

// onStorageEvent restores the session when another client changed it.
func (c *Client) onStorageEvent(e storage.Event) {
	if e.Key != SessionKey || e.Origin == c.origin {
		return
	}
	c.logger.Named("persist").Debug("session changed by another client", "origin", e.Origin)
	c.Deserialize(context.Background())
}
