// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/url"
)

// Signout resets the session and navigates to the provider's signout
// endpoint, which returns the user to path (default "/") on the current
// origin.  path also becomes the destination; an empty path consumes the
// current destination instead.  Storage failures are logged, only a failure
// to navigate is returned.
func (c *Client) Signout(ctx context.Context, path string) error {
	const op = "oidc.(Client).Signout"
	logger := c.logger.Named("signout")

	uri := c.signoutURI(path)

	if path != "" {
		if err := c.destination.Set(ctx, path); err != nil {
			logger.Warn("unable to set destination", "error", err)
		}
	} else if _, err := c.destination.GetAndClear(ctx); err != nil {
		logger.Warn("unable to clear destination", "error", err)
	}

	c.Reset(ctx)

	if err := c.window.Navigate(ctx, uri); err != nil {
		return fmt.Errorf("%s: unable to navigate: %w", op, err)
	}
	return nil
}

// signoutURI returns the provider's signout URL for the current session.
func (c *Client) signoutURI(path string) string {
	if path == "" {
		path = "/"
	}
	redirect := path
	if u, err := url.Parse(c.location.Href()); err == nil && u.Host != "" {
		u.Path = path
		u.RawPath = ""
		redirect = u.String()
	}

	c.mu.RLock()
	idToken := c.session.IDToken
	c.mu.RUnlock()

	return c.config.endpoint("signout") + "?" + EncodeForm(
		Param{Key: "post_logout_redirect_uri", Value: redirect},
		Param{Key: "id_token_hint", Value: idToken},
	)
}

// CheckSessionMessage returns the OpenID Connect Session Management message
// for the provider's check session frame and the origin it must be posted
// to.  See: https://openid.net/specs/openid-connect-session-1_0.html
func (c *Client) CheckSessionMessage() (message, targetOrigin string) {
	return c.config.ClientID + " " + c.SessionState(), c.config.Issuer
}

// CheckSession posts the check session message to target.
func (c *Client) CheckSession(ctx context.Context, target MessageTarget) error {
	const op = "oidc.(Client).CheckSession"
	if target == nil {
		return fmt.Errorf("%s: target is nil: %w", op, ErrNilParameter)
	}
	message, origin := c.CheckSessionMessage()
	if err := target.PostMessage(ctx, message, origin); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
