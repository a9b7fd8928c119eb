// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/anvil-connect/jwt"
	"github.com/hashicorp/anvil-connect/sdk/cryptor"
	"github.com/hashicorp/anvil-connect/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
)

const (
	// DefaultPopupWidth and DefaultPopupHeight size the authorization popup.
	DefaultPopupWidth  = 700
	DefaultPopupHeight = 500

	// PopupName is the window name of the authorization popup.
	PopupName = "anvil"
)

// Adapters are the host bindings a Client depends on.  All are required.
type Adapters struct {
	HTTP     HTTP
	Location Location
	Window   Window

	// Durable holds the encrypted session, the session state, the nonce and
	// the destination.  When it also implements storage.Watcher, changes
	// made by other clients are picked up.
	Durable storage.Durable

	// Volatile holds the secret which decrypts the session.
	Volatile storage.Volatile
}

// Client is an implicit flow relying party.  It owns its configuration,
// session and adapters.  A Client is safe for concurrent use.
type Client struct {
	config *Config

	http     HTTP
	location Location
	window   Window
	durable  storage.Durable
	volatile storage.Volatile

	cryptor   cryptor.Cryptor
	validator jwt.Validator
	keys      *jwt.KeyStore
	claims    ClaimChecker
	now       func() time.Time
	logger    hclog.Logger
	origin    string

	popupWidth  int
	popupHeight int

	nonces      *NonceManager
	destination *Destination
	events      *Bus

	mu           sync.RWMutex
	session      *Session
	sessionState string

	watchCancel context.CancelFunc
	stopWatch   func()
	doneOnce    sync.Once
}

// NewClient creates a Client.  When the durable compartment implements
// storage.Watcher, the client restores the session whenever another client
// persists or clears it; call Done to stop watching.
//
// Supported options: WithLogger, WithCryptor, WithTokenValidator,
// WithKeyStore, WithClaimChecker, WithProviderCA, WithSupportedAlgs,
// WithPopupSize, WithOrigin, WithNow
func NewClient(c *Config, a Adapters, opt ...Option) (*Client, error) {
	const op = "oidc.NewClient"
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case a.HTTP == nil:
		return nil, fmt.Errorf("%s: http adapter is missing: %w", op, ErrConfiguration)
	case a.Location == nil:
		return nil, fmt.Errorf("%s: location adapter is missing: %w", op, ErrConfiguration)
	case a.Window == nil:
		return nil, fmt.Errorf("%s: window adapter is missing: %w", op, ErrConfiguration)
	case a.Durable == nil:
		return nil, fmt.Errorf("%s: durable storage is missing: %w", op, ErrConfiguration)
	case a.Volatile == nil:
		return nil, fmt.Errorf("%s: volatile storage is missing: %w", op, ErrConfiguration)
	}
	opts := getClientOpts(opt...)

	cfg := *c
	cfg.Scopes = append([]string(nil), c.Scopes...)

	origin := opts.withOrigin
	if origin == "" {
		var err error
		if origin, err = uuid.GenerateUUID(); err != nil {
			return nil, fmt.Errorf("%s: unable to generate origin: %w", op, err)
		}
	}

	keys := opts.withKeyStore
	if keys == nil {
		var algs []jwt.Option
		if len(opts.withSupportedAlgs) > 0 {
			algs = append(algs, jwt.WithSupportedAlgs(opts.withSupportedAlgs...))
		}
		var err error
		if keys, err = jwt.NewDiscoveryKeyStore(cfg.Issuer, opts.withProviderCA, algs...); err != nil {
			return nil, fmt.Errorf("%s: unable to create key store: %w", op, err)
		}
	}

	nonces, err := NewNonceManager(a.Durable, opts.withCryptor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	dest, err := NewDestination(a.Durable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := &Client{
		config:      &cfg,
		http:        a.HTTP,
		location:    a.Location,
		window:      a.Window,
		durable:     a.Durable,
		volatile:    a.Volatile,
		cryptor:     opts.withCryptor,
		validator:   opts.withValidator,
		keys:        keys,
		claims:      opts.withClaimChecker,
		now:         opts.withNow,
		logger:      opts.withLogger,
		origin:      origin,
		popupWidth:  opts.withPopupWidth,
		popupHeight: opts.withPopupHeight,
		nonces:      nonces,
		destination: dest,
		events:      NewBus(),
		session:     &Session{},
	}

	if w, ok := a.Durable.(storage.Watcher); ok {
		ctx, cancel := context.WithCancel(context.Background())
		stop, err := w.Watch(ctx, client.onStorageEvent)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%s: unable to watch storage: %w", op, err)
		}
		client.watchCancel = cancel
		client.stopWatch = stop
	}
	return client, nil
}

// Done stops watching storage for changes made by other clients.
func (c *Client) Done() {
	c.doneOnce.Do(func() {
		if c.stopWatch != nil {
			c.stopWatch()
		}
		if c.watchCancel != nil {
			c.watchCancel()
		}
	})
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() *Config {
	cfg := *c.config
	cfg.Scopes = append([]string(nil), c.config.Scopes...)
	return &cfg
}

// Origin identifies the client's writes to shared storage.
func (c *Client) Origin() string { return c.origin }

// Nonces returns the client's NonceManager.
func (c *Client) Nonces() *NonceManager { return c.nonces }

// Destination returns the client's Destination.
func (c *Client) Destination() *Destination { return c.destination }

// Session returns a copy of the current session.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Clone()
}

// SessionState returns the provider's session state from the last callback
// or restored session.
func (c *Client) SessionState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionState
}

// IsAuthenticated reports whether the session holds an id token.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.IDToken != ""
}

// Subscribe calls h for every e until the returned func is called.
func (c *Client) Subscribe(e Event, h Handler) (unsubscribe func()) {
	return c.events.Subscribe(e, h)
}

// Once calls h for the next e only.
func (c *Client) Once(e Event, h Handler) (unsubscribe func()) {
	return c.events.Once(e, h)
}

// PrepareAuthorization loads the key material needed to validate tokens.  It
// must succeed before a callback can be validated, unless the token validator
// needs no keys.  Concurrent calls share a single load.
func (c *Client) PrepareAuthorization(ctx context.Context) error {
	const op = "oidc.(Client).PrepareAuthorization"
	if _, err := c.keys.Prepare(ctx); err != nil {
		c.logger.Warn("prepare authorization failed", "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("prepare authorization succeeded")
	return nil
}

// AuthURI issues a fresh nonce and returns the provider URL for endpoint
// (default "authorize") with the configured parameters, the overrides and the
// nonce's hash.  Overrides replace configured parameters of the same name.
func (c *Client) AuthURI(ctx context.Context, endpoint string, overrides map[string]string) (string, error) {
	const op = "oidc.(Client).AuthURI"
	if endpoint == "" {
		endpoint = "authorize"
	}
	nonce, err := c.nonces.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return c.config.endpoint(endpoint) + "?" + EncodeForm(mergeParams(c.config.params(), overrides, nonce)...), nil
}

// mergeParams applies overrides to params in place, appends the remaining
// overrides in key order and finishes with the nonce.
func mergeParams(params []Param, overrides map[string]string, nonce string) []Param {
	out := make([]Param, 0, len(params)+len(overrides)+1)
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if v, ok := overrides[p.Key]; ok {
			p.Value = v
		}
		seen[p.Key] = true
		out = append(out, p)
	}
	for _, k := range sortedKeys(overrides) {
		if seen[k] || k == "nonce" {
			continue
		}
		out = append(out, Param{Key: k, Value: overrides[k]})
	}
	return append(out, Param{Key: "nonce", Value: nonce})
}

// clientOptions is the set of available options for Client functions
type clientOptions struct {
	withLogger        hclog.Logger
	withCryptor       cryptor.Cryptor
	withValidator     jwt.Validator
	withKeyStore      *jwt.KeyStore
	withClaimChecker  ClaimChecker
	withProviderCA    string
	withSupportedAlgs []jwt.Alg
	withPopupWidth    int
	withPopupHeight   int
	withOrigin        string
	withNow           func() time.Time
}

// clientDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withLogger:       hclog.NewNullLogger(),
		withCryptor:      cryptor.NewJOSE(),
		withValidator:    jwt.SignatureValidator{},
		withClaimChecker: StandardClaimChecker{},
		withPopupWidth:   DefaultPopupWidth,
		withPopupHeight:  DefaultPopupHeight,
		withNow:          time.Now,
	}
}

// getClientOpts gets the defaults and applies the opt overrides passed in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
