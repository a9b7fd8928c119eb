// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// DefaultMinRefreshInterval is the shortest interval between background
// refreshes of a CachedJWKSKeySet.
const DefaultMinRefreshInterval = 15 * time.Minute

type configOptions struct {
	withSupportedAlgs      []string
	withMinRefreshInterval time.Duration
}

func configDefaults() configOptions {
	return configOptions{
		withSupportedAlgs:      DefaultSupportedAlgs(),
		withMinRefreshInterval: DefaultMinRefreshInterval,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

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

// WithSupportedAlgs provides an optional list of signing algorithms accepted
// by an OIDCDiscoveryKeySet.
func WithSupportedAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			if len(algs) == 0 {
				return
			}
			v.withSupportedAlgs = make([]string, 0, len(algs))
			for _, a := range algs {
				v.withSupportedAlgs = append(v.withSupportedAlgs, string(a))
			}
		}
	}
}

// WithMinRefreshInterval provides an optional minimum interval between
// refreshes of a CachedJWKSKeySet.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			if d > 0 {
				v.withMinRefreshInterval = d
			}
		}
	}
}
