// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestLoopback(t *testing.T, open func(string) error) *loopback {
	t.Helper()
	l := newLoopback("127.0.0.1:0", defaultCallbackPath, open, hclog.NewNullLogger())
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func postMessage(t *testing.T, origin, target, data string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target+messagePath, strings.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestLoopback_Server(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	l := startTestLoopback(t, func(string) error { return nil })
	origin := l.origin()
	require.True(strings.HasPrefix(origin, "http://127.0.0.1:"), origin)
	assert.Equal(origin+"/callback", l.RedirectURI())
	assert.Equal(origin+"/", l.Href())

	resp, err := http.Get(l.RedirectURI() + "#access_token=x")
	require.NoError(err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(err)
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Contains(resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(string(body), `"__ready__"`)
	assert.Contains(string(body), messagePath)

	var mu sync.Mutex
	var got []string
	remove := l.AddMessageListener(func(data string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, data)
	})

	assert.Equal(http.StatusForbidden, postMessage(t, "https://evil.example.com", origin, "stolen"))
	assert.Equal(http.StatusNoContent, postMessage(t, origin, origin, oidc.ReadyMessage))
	assert.Equal(http.StatusNoContent, postMessage(t, "", origin, origin+"/callback#id_token=abc"))

	mu.Lock()
	assert.Equal([]string{oidc.ReadyMessage, origin + "/callback#id_token=abc"}, got)
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	href, err := l.WaitForCallback(ctx)
	require.NoError(err)
	assert.Equal(origin+"/callback#id_token=abc", href, "the ready message isn't a callback")

	remove()
	l.PostMessage("after")
	mu.Lock()
	assert.Len(got, 2)
	mu.Unlock()

	assert.Equal(http.StatusMethodNotAllowed, func() int {
		resp, err := http.Get(origin + messagePath)
		require.NoError(err)
		resp.Body.Close()
		return resp.StatusCode
	}())
}

func TestLoopback_Location(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	l := newLoopback("localhost:8400", "/callback", nil, hclog.NewNullLogger())
	assert.Equal("http://localhost:8400/callback", l.RedirectURI())
	assert.Equal("/", l.Path())
	assert.Empty(l.Hash())

	l.SetHref("http://localhost:8400/callback#access_token=a%20b&scope=openid")
	assert.Equal("/callback", l.Path())
	assert.Equal("#access_token=a%20b&scope=openid", l.Hash())
	resp, err := oidc.ParseForm(strings.TrimPrefix(l.Hash(), "#"))
	assert.NoError(err)
	assert.Equal("a b", resp["access_token"])

	assert.NoError(l.Close(context.Background()), "closing an unstarted server")
}

func TestLoopback_Window(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	var opened []string
	openErr := errors.New("no browser")
	fail := false
	l := newLoopback("localhost:8400", "/callback", func(uri string) error {
		if fail {
			return openErr
		}
		opened = append(opened, uri)
		return nil
	}, hclog.NewNullLogger())

	require.NoError(l.Navigate(ctx, "https://provider.example.com/authorize?a=1"))
	p, err := l.Open(ctx, "https://provider.example.com/authorize?a=2", oidc.PopupName, "")
	require.NoError(err)
	assert.NoError(p.Close())
	assert.Equal([]string{"https://provider.example.com/authorize?a=1", "https://provider.example.com/authorize?a=2"}, opened)
	assert.Equal(oidc.WindowMetrics{}, l.Metrics())

	fail = true
	assert.ErrorIs(l.Navigate(ctx, "https://provider.example.com/"), openErr)
	_, err = l.Open(ctx, "https://provider.example.com/", oidc.PopupName, "")
	assert.ErrorIs(err, openErr)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(l.Navigate(cancelled, "https://provider.example.com/"), context.Canceled)
	_, err = l.WaitForCallback(cancelled)
	assert.ErrorIs(err, context.Canceled)
}
