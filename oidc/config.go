// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/anvil-connect/oidc/internal/strutils"
)

const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
)

// ResponseType is a space delimited set of the tokens the provider returns
// from an implicit flow authorization request.
type ResponseType string

const (
	ResponseTypeIDTokenToken ResponseType = "id_token token"
	ResponseTypeIDToken      ResponseType = "id_token"
	ResponseTypeToken        ResponseType = "token"
)

// Requires reports whether tokenType ("id_token" or "token") is one of the
// response type's tokens.
func (rt ResponseType) Requires(tokenType string) bool {
	return strutils.StrListContains(strings.Fields(string(rt)), tokenType)
}

// Valid reports whether the response type is one of the supported implicit
// flow response types.
func (rt ResponseType) Valid() bool {
	switch rt {
	case ResponseTypeIDTokenToken, ResponseTypeIDToken, ResponseTypeToken:
		return true
	default:
		return false
	}
}

// Display is how the authorization request is presented to the user.
type Display string

const (
	// DisplayPage navigates the current window to the provider.
	DisplayPage Display = "page"

	// DisplayPopup opens the provider in a popup window.
	DisplayPopup Display = "popup"
)

// Config represents the configuration of a relying party using the implicit
// flow.  It's immutable once the Client is created.
type Config struct {
	// Issuer is the provider's URL.  Authorization, userinfo and signout
	// endpoints are resolved relative to it.
	Issuer string

	// ClientID is the relying party id
	ClientID string

	// RedirectURI is where the provider sends the callback response.
	RedirectURI string

	// Scopes always starts with "openid" and "profile".
	Scopes []string

	ResponseType ResponseType
	Display      Display
}

// NewConfig composes a new Config.
//
// Supported options: WithScopes, WithResponseType, WithDisplay
func NewConfig(issuer, clientID, redirectURI string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:       issuer,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		Scopes:       strutils.RemoveDuplicatesStable(append([]string{ScopeOpenID, ScopeProfile}, opts.withScopes...), false),
		ResponseType: opts.withResponseType,
		Display:      opts.withDisplay,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration.  It doesn't verify the issuer is reachable.
func (c *Config) Validate() error {
	const op = "oidc.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s: issuer is empty: %w", op, ErrConfiguration)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrConfiguration)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("%s: issuer %s is invalid: %s: %w", op, c.Issuer, err, ErrConfiguration)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s: issuer %s scheme is not http or https: %w", op, c.Issuer, ErrConfiguration)
	}
	if c.RedirectURI != "" {
		if _, err := url.Parse(c.RedirectURI); err != nil {
			return fmt.Errorf("%s: redirect uri %s is invalid: %s: %w", op, c.RedirectURI, err, ErrConfiguration)
		}
	}
	for _, required := range []string{ScopeOpenID, ScopeProfile} {
		if !strutils.StrListContains(c.Scopes, required) {
			return fmt.Errorf("%s: scopes must include %q: %w", op, required, ErrConfiguration)
		}
	}
	if !c.ResponseType.Valid() {
		return fmt.Errorf("%s: unsupported response type %q: %w", op, c.ResponseType, ErrConfiguration)
	}
	switch c.Display {
	case DisplayPage, DisplayPopup:
	default:
		return fmt.Errorf("%s: unsupported display %q: %w", op, c.Display, ErrConfiguration)
	}
	return nil
}

// Scope returns the space delimited scope parameter.
func (c *Config) Scope() string {
	return strings.Join(c.Scopes, " ")
}

// endpoint resolves name relative to the issuer.
func (c *Config) endpoint(name string) string {
	return strings.TrimSuffix(c.Issuer, "/") + "/" + strings.TrimPrefix(name, "/")
}

// params returns the authorization request parameters, in request order.
func (c *Config) params() []Param {
	return []Param{
		{Key: "response_type", Value: string(c.ResponseType)},
		{Key: "client_id", Value: c.ClientID},
		{Key: "redirect_uri", Value: c.RedirectURI},
		{Key: "scope", Value: c.Scope()},
		{Key: "display", Value: string(c.Display)},
	}
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withScopes       []string
	withResponseType ResponseType
	withDisplay      Display
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withResponseType: ResponseTypeIDTokenToken,
		withDisplay:      DisplayPage,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
