// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"

	sdkhttp "github.com/hashicorp/anvil-connect/sdk/http"
)

// Headers returns h with a bearer Authorization header added when the
// session holds an access token.  h is not modified.
func (c *Client) Headers(h map[string]string) map[string]string {
	c.mu.RLock()
	token := c.session.AccessToken
	c.mu.RUnlock()
	if token == "" {
		return h
	}
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	out["Authorization"] = "Bearer " + token
	return out
}

// Request sends r with the session's credentials.
func (c *Client) Request(ctx context.Context, r *sdkhttp.Request) (*sdkhttp.Response, error) {
	const op = "oidc.(Client).Request"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	req := *r
	req.Headers = c.Headers(r.Headers)
	req.CrossDomain = true
	resp, err := c.http.Request(ctx, &req)
	if err != nil {
		c.logger.Warn("request failed", "method", req.Method, "url", req.URL, "error", err)
		return resp, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("request succeeded", "method", req.Method, "url", req.URL)
	return resp, nil
}

// UserInfo gets the user's claims from the provider's userinfo endpoint.
func (c *Client) UserInfo(ctx context.Context) (map[string]interface{}, error) {
	const op = "oidc.(Client).UserInfo"
	resp, err := c.Request(ctx, &sdkhttp.Request{
		Method: http.MethodGet,
		URL:    c.config.endpoint("userinfo"),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	info, err := c.http.Data(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return info, nil
}
