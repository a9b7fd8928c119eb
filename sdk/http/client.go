// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrInvalidCertificatePem = errors.New("invalid certificate PEM")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrUnexpectedStatus      = errors.New("unexpected http status")
	ErrInvalidBody           = errors.New("invalid response body")
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 1 << 20

// NewClient creates a new http client which will use the optional CA certificate PEM
// if provided, otherwise it will use the installed system CA chain.
func NewClient(caPEM string) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, ErrInvalidCertificatePem
		}

		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}

	return &http.Client{
		Transport: tr,
	}, nil
}

// ClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func ClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// Request describes an outbound request made on behalf of the relying party.
type Request struct {
	Method string
	URL    string

	// CrossDomain marks requests sent to an origin other than the one hosting
	// the relying party. It is informational for non-browser hosts.
	CrossDomain bool

	Headers map[string]string
}

// Response is a fully read http response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Adapter issues Requests with an http.Client. It satisfies the oidc
// package's HTTP host adapter interface.
type Adapter struct {
	client *http.Client
}

// NewAdapter creates an Adapter using a pooled client which trusts the
// optional CA certificate PEM.
func NewAdapter(caPEM string) (*Adapter, error) {
	const op = "http.NewAdapter"
	c, err := NewClient(caPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Adapter{client: c}, nil
}

// NewAdapterWithClient creates an Adapter for an existing http.Client.
func NewAdapterWithClient(c *http.Client) (*Adapter, error) {
	const op = "http.NewAdapterWithClient"
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrInvalidParameter)
	}
	return &Adapter{client: c}, nil
}

// Client returns the adapter's underlying http.Client.
func (a *Adapter) Client() *http.Client { return a.client }

// Request sends r and reads the complete response. Responses with a status
// outside of 2xx are returned alongside an error wrapping ErrUnexpectedStatus.
func (a *Adapter) Request(ctx context.Context, r *Request) (*Response, error) {
	const op = "http.(Adapter).Request"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrInvalidParameter)
	}
	if r.URL == "" {
		return nil, fmt.Errorf("%s: request url is empty: %w", op, ErrInvalidParameter)
	}
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request to %s failed: %w", op, r.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response body: %w", op, err)
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("%s: %s returned %d: %w", op, r.URL, resp.StatusCode, ErrUnexpectedStatus)
	}
	return out, nil
}

// Data decodes a JSON object response body.
func (a *Adapter) Data(r *Response) (map[string]interface{}, error) {
	const op = "http.(Adapter).Data"
	if r == nil {
		return nil, fmt.Errorf("%s: response is nil: %w", op, ErrInvalidParameter)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(r.Body), &data); err != nil {
		return nil, fmt.Errorf("%s: unable to decode body: %w: %s", op, ErrInvalidBody, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%s: body is not an object: %w", op, ErrInvalidBody)
	}
	return data, nil
}
