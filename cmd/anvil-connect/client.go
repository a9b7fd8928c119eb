// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/anvil-connect/jwt"
	"github.com/hashicorp/anvil-connect/oidc"
	sdkhttp "github.com/hashicorp/anvil-connect/sdk/http"
	"github.com/hashicorp/go-multierror"
)

// shutdownTimeout bounds stopping the callback server.
const shutdownTimeout = 5 * time.Second

// rp is a client and the host it runs in.
type rp struct {
	client *oidc.Client
	host   *loopback
	close  func() error
}

// Close releases the client, its callback server and its storage.
func (r *rp) Close() error {
	r.client.Done()
	var result *multierror.Error
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.host.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to stop callback server: %w", err))
	}
	if err := r.close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to close storage: %w", err))
	}
	return result.ErrorOrNil()
}

// newRP creates the relying party.  With listen, the callback server is
// started first so the redirect uri names the address it listens on.
func (a *app) newRP(ctx context.Context, listen bool) (*rp, error) {
	c := a.config
	caPEM, err := readOptionalFile(c.CACert)
	if err != nil {
		return nil, fmt.Errorf("read ca_cert: %w", err)
	}
	httpAdapter, err := sdkhttp.NewAdapter(caPEM)
	if err != nil {
		return nil, err
	}

	host := newLoopback(c.ListenAddr, c.CallbackPath, a.openURL, a.logger)
	if listen {
		if err := host.Start(); err != nil {
			return nil, err
		}
	}

	durable, volatile, closeStorage, err := openStorage(c)
	if err != nil {
		_ = host.Close(ctx)
		return nil, err
	}
	r := &rp{host: host, close: closeStorage}

	cfg, err := oidc.NewConfig(c.Issuer, c.ClientID, host.RedirectURI(), c.oidcOptions()...)
	if err != nil {
		_ = host.Close(ctx)
		_ = closeStorage()
		return nil, err
	}
	opts := []oidc.Option{
		oidc.WithLogger(a.logger),
		oidc.WithProviderCA(caPEM),
		oidc.WithSupportedAlgs(c.supportedAlgs()...),
	}
	keys, err := a.keyStore(caPEM)
	if err != nil {
		_ = host.Close(ctx)
		_ = closeStorage()
		return nil, err
	}
	if keys != nil {
		opts = append(opts, oidc.WithKeyStore(keys))
	}

	r.client, err = oidc.NewClient(cfg, oidc.Adapters{
		HTTP:     httpAdapter,
		Location: host,
		Window:   host,
		Durable:  durable,
		Volatile: volatile,
	}, opts...)
	if err != nil {
		_ = host.Close(ctx)
		_ = closeStorage()
		return nil, err
	}
	return r, nil
}

// keyStore returns the key store the config selects instead of discovery, or
// nil.
func (a *app) keyStore(caPEM string) (*jwt.KeyStore, error) {
	c := a.config
	switch {
	case c.JWKSURL != "" && c.JWKSNoCache:
		return jwt.NewKeyStore(func(ctx context.Context) (jwt.KeySet, error) {
			return jwt.NewJSONWebKeySet(ctx, c.JWKSURL, caPEM)
		})
	case c.JWKSURL != "":
		return jwt.NewKeyStore(func(ctx context.Context) (jwt.KeySet, error) {
			return jwt.NewCachedJWKSKeySet(ctx, c.JWKSURL, caPEM)
		})
	case len(c.PublicKeys) > 0:
		pems := make([]string, 0, len(c.PublicKeys))
		for _, f := range c.PublicKeys {
			pem, err := readOptionalFile(f)
			if err != nil {
				return nil, fmt.Errorf("read public key: %w", err)
			}
			pems = append(pems, pem)
		}
		ks, err := jwt.NewStaticKeySet(pems)
		if err != nil {
			return nil, err
		}
		return jwt.NewStaticKeyStore(ks)
	default:
		return nil, nil
	}
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
