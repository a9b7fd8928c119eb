// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/hashicorp/anvil-connect/jwt"
	"github.com/hashicorp/anvil-connect/sdk/cryptor"
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithScopes provides an optional list of scopes requested in addition to
// "openid" and "profile".
//
// Valid for: Config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = append(o.withScopes, scopes...)
		}
	}
}

// WithResponseType provides an optional response type.
//
// Valid for: Config
func WithResponseType(rt ResponseType) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResponseType = rt
		}
	}
}

// WithDisplay provides an optional display mode.
//
// Valid for: Config
func WithDisplay(d Display) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withDisplay = d
		}
	}
}

// WithLogger provides an optional logger.
//
// Valid for: Client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithCryptor provides an optional cryptor used to protect the persisted
// session and to generate nonces.
//
// Valid for: Client
func WithCryptor(c cryptor.Cryptor) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && c != nil {
			o.withCryptor = c
		}
	}
}

// WithTokenValidator provides an optional token validator.
//
// Valid for: Client
func WithTokenValidator(v jwt.Validator) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && v != nil {
			o.withValidator = v
		}
	}
}

// WithKeyStore provides an optional key store.  By default keys are
// discovered from the issuer.
//
// Valid for: Client
func WithKeyStore(ks *jwt.KeyStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && ks != nil {
			o.withKeyStore = ks
		}
	}
}

// WithClaimChecker provides an optional claim checker.
//
// Valid for: Client
func WithClaimChecker(cc ClaimChecker) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && cc != nil {
			o.withClaimChecker = cc
		}
	}
}

// WithProviderCA provides an optional CA certificate PEM used when
// discovering the provider's keys.
//
// Valid for: Client
func WithProviderCA(caPEM string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withProviderCA = caPEM
		}
	}
}

// WithSupportedAlgs provides an optional list of signing algorithms accepted
// when keys are discovered from the issuer.
//
// Valid for: Client
func WithSupportedAlgs(algs ...jwt.Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withSupportedAlgs = algs
		}
	}
}

// WithPopupSize provides an optional popup size in pixels.
//
// Valid for: Client
func WithPopupSize(width, height int) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && width > 0 && height > 0 {
			o.withPopupWidth = width
			o.withPopupHeight = height
		}
	}
}

// WithOrigin provides an optional origin which identifies the client's
// writes to shared storage.  By default a random origin is generated.
//
// Valid for: Client
func WithOrigin(origin string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withOrigin = origin
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: Client and TestProvider
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch o := o.(type) {
		case *clientOptions:
			o.withNow = now
		case *testProviderOptions:
			o.withNow = now
		}
	}
}
