// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Signout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("with-path", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		env := newTestEnv(t, nil)
		c := env.client
		s := env.authenticate(t, c)
		env.location.Set("https://rp.example.com/profile?tab=keys")

		require.NoError(c.Signout(ctx, "/goodbye"))
		assert.False(c.IsAuthenticated())
		assert.True(c.Session().IsEmpty())

		navs := env.window.Navigations()
		require.Len(navs, 1)
		assert.Equal(env.provider.Addr()+"/signout?post_logout_redirect_uri="+
			escape("https://rp.example.com/goodbye?tab=keys")+
			"&id_token_hint="+escape(s.IDToken), navs[0])

		u, err := url.Parse(navs[0])
		require.NoError(err)
		assert.Equal("https://rp.example.com/goodbye?tab=keys", u.Query().Get("post_logout_redirect_uri"))
		assert.Equal(s.IDToken, u.Query().Get("id_token_hint"))

		dest, err := c.Destination().Get(ctx)
		require.NoError(err)
		assert.Equal("/goodbye", dest)
	})

	t.Run("default-path", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		env := newTestEnv(t, nil)
		c := env.client
		require.NoError(c.Destination().Set(ctx, "/stale"))

		require.NoError(c.Signout(ctx, ""))
		navs := env.window.Navigations()
		require.Len(navs, 1)
		u, err := url.Parse(navs[0])
		require.NoError(err)
		assert.Equal("https://rp.example.com/", u.Query().Get("post_logout_redirect_uri"))
		assert.Empty(u.Query().Get("id_token_hint"))

		dest, err := c.Destination().Get(ctx)
		require.NoError(err)
		assert.Empty(dest, "the destination is consumed")
	})

	t.Run("navigation-fails", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		env.authenticate(t, env.client)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := env.client.Signout(cancelled, "/")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, env.client.IsAuthenticated(), "the session is reset regardless")
	})
}

type testMessageTarget struct {
	message, origin string
	err             error
}

func (m *testMessageTarget) PostMessage(_ context.Context, message, targetOrigin string) error {
	m.message, m.origin = message, targetOrigin
	return m.err
}

func TestClient_CheckSession(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, nil)
	c := env.client
	env.provider.SetSessionState("abc")
	env.authenticate(t, c)

	message, origin := c.CheckSessionMessage()
	assert.Equal("test-client-id abc", message)
	assert.Equal(env.provider.Addr(), origin)

	target := &testMessageTarget{}
	require.NoError(c.CheckSession(ctx, target))
	assert.Equal("test-client-id abc", target.message)
	assert.Equal(env.provider.Addr(), target.origin)

	assert.ErrorIs(c.CheckSession(ctx, nil), ErrNilParameter)
	target.err = errors.New("frame gone")
	assert.ErrorContains(c.CheckSession(ctx, target), "frame gone")
}
