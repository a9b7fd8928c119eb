// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/anvil-connect/sdk/cryptor"
	"github.com/hashicorp/anvil-connect/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Serialize(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.authenticate(t, env.client)

	ciphertext, err := env.durable.Get(ctx, SessionKey)
	require.NoError(err)
	assert.NotContains(ciphertext, s.AccessToken, "the durable copy is encrypted")
	assert.NotContains(ciphertext, "alice@example.com")
	secret, err := env.volatile.Get(ctx, SessionKey)
	require.NoError(err)
	assert.NotEmpty(secret)

	restored := env.newClient(t, nil)
	var events []Event
	restored.Subscribe(EventAuthenticated, func(*Session) { events = append(events, EventAuthenticated) })
	restored.Subscribe(EventNotAuthenticated, func(*Session) { events = append(events, EventNotAuthenticated) })

	got := restored.Deserialize(ctx)
	assert.Equal(s, got)
	assert.Equal(s, restored.Session())
	assert.True(restored.IsAuthenticated())
	assert.Equal("test-session-state", restored.SessionState())
	assert.Equal([]Event{EventAuthenticated}, events)
}

func TestClient_Deserialize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv)
	}{
		{name: "nothing-persisted", setup: func(*testing.T, *testEnv) {}},
		{
			name: "secret-gone",
			setup: func(t *testing.T, env *testEnv) {
				env.authenticate(t, env.client)
				require.NoError(t, env.volatile.Delete(ctx, SessionKey))
			},
		},
		{
			name: "session-gone",
			setup: func(t *testing.T, env *testEnv) {
				env.authenticate(t, env.client)
				require.NoError(t, env.durable.Delete(ctx, SessionKey))
			},
		},
		{
			name: "wrong-secret",
			setup: func(t *testing.T, env *testEnv) {
				env.authenticate(t, env.client)
				secret, _, err := cryptor.NewJOSE().Encrypt(ctx, []byte("{}"))
				require.NoError(t, err)
				require.NoError(t, env.volatile.Set(ctx, SessionKey, escape(secret), time.Hour))
			},
		},
		{
			name: "malformed-secret",
			setup: func(t *testing.T, env *testEnv) {
				env.authenticate(t, env.client)
				require.NoError(t, env.volatile.Set(ctx, SessionKey, "%zz", time.Hour))
			},
		},
		{
			name: "corrupt-session",
			setup: func(t *testing.T, env *testEnv) {
				env.authenticate(t, env.client)
				require.NoError(t, env.durable.Set(ctx, SessionKey, "not-a-jwe"))
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			env := newTestEnv(t, nil)
			tt.setup(t, env)

			c := env.newClient(t, nil)
			var events []Event
			c.Subscribe(EventAuthenticated, func(*Session) { events = append(events, EventAuthenticated) })
			c.Subscribe(EventNotAuthenticated, func(*Session) { events = append(events, EventNotAuthenticated) })

			got := c.Deserialize(ctx)
			assert.True(got.IsEmpty())
			assert.False(c.IsAuthenticated())
			assert.Equal([]Event{EventNotAuthenticated}, events)
		})
	}
}

func TestClient_Deserialize_Expired(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.provider.SetExpiresIn(time.Second)
	s := env.authenticate(t, env.client)
	require.Equal(t, int64(1), s.ExpiresIn)

	// the secret expires with the session, the ciphertext stays behind
	time.Sleep(1500 * time.Millisecond)
	got := env.client.Deserialize(ctx)
	assert.True(got.IsEmpty())
	assert.False(env.client.IsAuthenticated())
	_, err := env.durable.Get(ctx, SessionKey)
	assert.NoError(err)
}

func TestClient_Reset(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, nil)
	c := env.client
	env.authenticate(t, c)

	for i := 0; i < 2; i++ {
		c.Reset(ctx)
		assert.True(c.Session().IsEmpty())
		assert.False(c.IsAuthenticated())
		_, err := env.durable.Get(ctx, SessionKey)
		assert.ErrorIs(err, storage.ErrNotFound)
		_, err = env.volatile.Get(ctx, SessionKey)
		assert.ErrorIs(err, storage.ErrNotFound)
	}

	// the provider's session state outlives the local session
	state, err := env.durable.Get(ctx, SessionStateKey)
	require.NoError(err)
	assert.Equal("test-session-state", state)
	assert.Equal("test-session-state", c.SessionState())
}

func TestClient_SessionStateSlot(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.authenticate(t, env.client)

	env.provider.SetSessionState("")
	env.authenticate(t, env.client)
	_, err := env.durable.Get(ctx, SessionStateKey)
	assert.ErrorIs(err, storage.ErrNotFound, "an empty session state removes the slot")
	require.Empty(env.client.SessionState())
}

// TestClient_SharedStorage covers clients sharing storage, like browser tabs:
// a session established or cleared by one is picked up by the others.
func TestClient_SharedStorage(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, nil)
	a := env.client
	b := env.newClient(t, nil)
	require.NotEqual(a.Origin(), b.Origin())

	var aEvents, bEvents []Event
	a.Subscribe(EventAuthenticated, func(*Session) { aEvents = append(aEvents, EventAuthenticated) })
	a.Subscribe(EventNotAuthenticated, func(*Session) { aEvents = append(aEvents, EventNotAuthenticated) })
	var bSubject string
	b.Subscribe(EventAuthenticated, func(s *Session) {
		bEvents = append(bEvents, EventAuthenticated)
		bSubject = s.Subject()
	})
	b.Subscribe(EventNotAuthenticated, func(*Session) { bEvents = append(bEvents, EventNotAuthenticated) })

	s := env.authenticate(t, a)
	assert.Equal([]Event{EventAuthenticated}, aEvents, "a client ignores its own writes")
	assert.Equal([]Event{EventAuthenticated}, bEvents)
	assert.Equal("alice@example.com", bSubject)
	assert.True(b.IsAuthenticated())
	assert.Equal(s, b.Session())

	a.Reset(ctx)
	assert.Equal([]Event{EventAuthenticated}, aEvents)
	assert.Equal([]Event{EventAuthenticated, EventNotAuthenticated}, bEvents)
	assert.False(b.IsAuthenticated())

	// a stopped client no longer follows the others
	b.Done()
	env.authenticate(t, a)
	assert.Len(bEvents, 2)
	assert.False(b.IsAuthenticated())
}
