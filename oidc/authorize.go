// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ReadyMessage is posted by a callback page to announce it has loaded.  It
// carries no response and is ignored.
const ReadyMessage = "__ready__"

// Authorize authenticates the user.
//
// When the location carries a callback fragment, the fragment is handed to
// Callback.  Otherwise the current path is remembered as the destination and
// the user is sent to the provider: with DisplayPage the window navigates
// away and Authorize returns a nil session once navigation began; with
// DisplayPopup a popup is opened and Authorize returns the session from
// whichever completes first, a callback message posted by the popup or an
// EventAuthenticated published by any other flow.
func (c *Client) Authorize(ctx context.Context) (*Session, error) {
	const op = "oidc.(Client).Authorize"
	logger := c.logger.Named("authorize")

	if hash := strings.TrimPrefix(c.location.Hash(), "#"); hash != "" {
		logger.Debug("processing callback fragment")
		response, err := ParseForm(hash)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return c.Callback(ctx, response)
	}

	if path := c.location.Path(); path != "" {
		if err := c.destination.Set(ctx, path); err != nil {
			logger.Warn("unable to remember destination", "error", err)
		}
	}

	if c.config.Display == DisplayPopup {
		return c.authorizePopup(ctx)
	}

	uri, err := c.AuthURI(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Debug("navigating to provider")
	if err := c.window.Navigate(ctx, uri); err != nil {
		return nil, fmt.Errorf("%s: unable to navigate: %w", op, err)
	}
	return nil, nil
}

type authorizeResult struct {
	session *Session
	err     error
}

func (c *Client) authorizePopup(ctx context.Context) (*Session, error) {
	const op = "oidc.(Client).authorizePopup"
	logger := c.logger.Named("authorize")

	// raceCtx is cancelled once the race is settled, so a losing callback
	// still in flight can't commit its session.
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan authorizeResult, 1)
	var settleOnce sync.Once
	settle := func(s *Session, err error) {
		settleOnce.Do(func() {
			done <- authorizeResult{session: s, err: err}
			cancel()
		})
	}

	var messageOnce sync.Once
	removeListener := c.window.AddMessageListener(func(data string) {
		if data == ReadyMessage {
			logger.Debug("popup is ready")
			return
		}
		messageOnce.Do(func() {
			go func() {
				if raceCtx.Err() != nil {
					logger.Debug("ignoring callback message, authorization already settled")
					return
				}
				response, err := ParseForm(URLFragment(data))
				if err != nil {
					settle(nil, fmt.Errorf("%s: %w", op, err))
					return
				}
				logger.Debug("processing callback message")
				settle(c.Callback(raceCtx, response))
			}()
		})
	})
	defer removeListener()

	unsubscribe := c.events.Once(EventAuthenticated, func(s *Session) {
		logger.Debug("authenticated by another flow")
		settle(s, nil)
	})
	defer unsubscribe()

	uri, err := c.AuthURI(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	popup, err := c.window.Open(ctx, uri, PopupName, PopupFeatures(c.window.Metrics(), c.popupWidth, c.popupHeight))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to open popup: %w", op, err)
	}

	<-raceCtx.Done()
	settle(nil, fmt.Errorf("%s: %w", op, ctx.Err()))
	r := <-done

	if popup != nil {
		if err := popup.Close(); err != nil {
			logger.Warn("unable to close popup", "error", err)
		}
	}
	return r.session, r.err
}
