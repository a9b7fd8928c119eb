// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
)

// Callback processes the provider's response to an authorization request,
// typically parsed from the redirect fragment with ParseForm.
//
// An error response resets the session, records its session state and
// returns an *AuthorizationError.  Otherwise the response is validated and,
// only once every check passed, replaces the session.  User info is then
// fetched when there's an access token; failing to get it doesn't fail the
// callback.  Finally the session is persisted and EventAuthenticated is
// published.  Persisting is best-effort: when it fails the failure is logged
// and the session is only established in memory.
func (c *Client) Callback(ctx context.Context, response map[string]string) (*Session, error) {
	const op = "oidc.(Client).Callback"
	if response == nil {
		return nil, fmt.Errorf("%s: response is nil: %w", op, ErrNilParameter)
	}
	logger := c.logger.Named("callback")

	if code := response["error"]; code != "" {
		// a settled popup race cancels ctx; the losing branch must not reset
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Debug("provider returned an error", "error", code)
		c.storeSessionState(ctx, response["session_state"])
		c.Reset(ctx)
		return nil, &AuthorizationError{
			Code:         code,
			Description:  response["error_description"],
			URI:          response["error_uri"],
			SessionState: response["session_state"],
		}
	}

	v := &validation{response: response}
	if err := c.validate(ctx, v); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := newSession(response, v.accessClaims, v.idClaims)
	c.mu.Lock()
	// a settled popup race cancels ctx; the losing branch must not commit
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.session = s
	c.sessionState = s.SessionState
	c.mu.Unlock()
	logger.Debug("session established", "sub", s.Subject())

	if s.AccessToken != "" {
		c.loadUserInfo(ctx, s)
	}

	if err := c.Serialize(ctx); err != nil {
		logger.Error("unable to persist session", "error", err)
	}
	committed := c.Session()
	c.events.Publish(EventAuthenticated, committed)
	return committed, nil
}

// loadUserInfo attaches the user's claims to s when the userinfo response is
// about the id token's subject.  Failures are logged, never returned.
func (c *Client) loadUserInfo(ctx context.Context, s *Session) {
	const op = "oidc.(Client).loadUserInfo"
	logger := c.logger.Named("callback")
	info, err := c.UserInfo(ctx)
	if err != nil {
		logger.Warn("user info retrieval failed", "error", err)
		return
	}
	sub, _ := info["sub"].(string)
	switch {
	case sub == "":
		logger.Error("user info response is malformed", "error", fmt.Errorf("%s: missing sub claim: %w", op, ErrUserInfoMismatch))
		return
	case s.IDClaims != nil && s.Subject() != sub:
		logger.Error("user info is about a different user than the id token", "error", fmt.Errorf("%s: sub %q != %q: %w", op, sub, s.Subject(), ErrUserInfoMismatch))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		s.UserInfo = info
	}
}

// storeSessionState records the provider's session state in memory and in its
// durable slot.
func (c *Client) storeSessionState(ctx context.Context, state string) {
	c.mu.Lock()
	c.sessionState = state
	c.mu.Unlock()
	if err := c.writeSessionState(ctx, state); err != nil {
		c.logger.Warn("unable to store session state", "error", err)
	}
}
