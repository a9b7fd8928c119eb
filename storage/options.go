// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package storage

import "time"

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

type options struct {
	withNow    func() time.Time
	withPrefix string
}

func optDefaults() options {
	return options{
		withNow: time.Now,
	}
}

func getOpts(opt ...Option) options {
	opts := optDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithNow provides an optional func for the current time, used when deciding
// whether an entry has expired.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && now != nil {
			o.withNow = now
		}
	}
}

// WithPrefix provides an optional key prefix, which allows several relying
// parties to share one backing store.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withPrefix = prefix
		}
	}
}
