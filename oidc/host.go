// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"

	sdkhttp "github.com/hashicorp/anvil-connect/sdk/http"
)

// HTTP sends requests on behalf of the relying party.  sdk/http.Adapter is
// an implementation.
type HTTP interface {
	Request(ctx context.Context, r *sdkhttp.Request) (*sdkhttp.Response, error)

	// Data decodes a response body.
	Data(r *sdkhttp.Response) (map[string]interface{}, error)
}

// Location is the address of the document hosting the relying party.
type Location interface {
	// Hash returns the fragment, with or without the leading "#".
	Hash() string
	Path() string
	Href() string
}

// WindowMetrics describes the window which opens a popup.  Zero outer
// dimensions fall back to the client dimensions.
type WindowMetrics struct {
	ScreenX      float64
	ScreenY      float64
	OuterWidth   float64
	OuterHeight  float64
	ClientWidth  float64
	ClientHeight float64
}

// Popup is a window opened by Window.Open.
type Popup interface {
	Close() error
}

// Window is the window hosting the relying party.
type Window interface {
	// Navigate leaves the relying party for uri.  It returns once the
	// navigation has begun.
	Navigate(ctx context.Context, uri string) error

	// Open opens uri in a new named window with the given features.
	Open(ctx context.Context, uri, name, features string) (Popup, error)

	Metrics() WindowMetrics

	// AddMessageListener calls fn with the data of every message posted to
	// the window until remove is called.
	AddMessageListener(fn func(data string)) (remove func())
}

// MessageTarget receives cross document messages, such as the provider's
// check session frame.
type MessageTarget interface {
	PostMessage(ctx context.Context, message, targetOrigin string) error
}
