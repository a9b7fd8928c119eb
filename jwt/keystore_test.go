// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStore_Prepare(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	_, pub := testKey(t)
	ks, err := NewStaticKeySet([]string{pub})
	require.NoError(err)

	var loads int32
	release := make(chan struct{})
	store, err := NewKeyStore(func(context.Context) (KeySet, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return ks, nil
	})
	require.NoError(err)
	assert.Nil(store.KeySet())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Prepare(ctx)
			assert.NoError(err)
			assert.Equal(ks, got)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(int32(1), atomic.LoadInt32(&loads))
	assert.Equal(ks, store.KeySet())

	// already prepared
	_, err = store.Prepare(ctx)
	require.NoError(err)
	assert.Equal(int32(1), atomic.LoadInt32(&loads))
}

func TestKeyStore_PrepareRetry(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	_, pub := testKey(t)
	ks, err := NewStaticKeySet([]string{pub})
	require.NoError(err)

	fail := true
	store, err := NewKeyStore(func(context.Context) (KeySet, error) {
		if fail {
			return nil, errors.New("unavailable")
		}
		return ks, nil
	})
	require.NoError(err)

	_, err = store.Prepare(ctx)
	require.Error(err)
	assert.Nil(store.KeySet())

	fail = false
	got, err := store.Prepare(ctx)
	require.NoError(err)
	assert.Equal(ks, got)
}

func TestNewKeyStores(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	_, err := NewKeyStore(nil)
	assert.ErrorIs(err, ErrInvalidParameter)
	_, err = NewStaticKeyStore(nil)
	assert.ErrorIs(err, ErrInvalidParameter)
	_, err = NewDiscoveryKeyStore("", "")
	assert.ErrorIs(err, ErrInvalidParameter)

	_, pub := testKey(t)
	ks, err := NewStaticKeySet([]string{pub})
	require.NoError(err)
	static, err := NewStaticKeyStore(ks)
	require.NoError(err)
	assert.Equal(ks, static.KeySet())

	priv, _ := testKey(t)
	srv := testJWKSServer(t, "k", priv)
	discovered, err := NewDiscoveryKeyStore(srv.URL, "")
	require.NoError(err)
	got, err := discovered.Prepare(ctx)
	require.NoError(err)
	claims := map[string]interface{}{"sub": "bob"}
	parsed, err := got.VerifySignature(ctx, testSign(t, priv, "k", claims))
	require.NoError(err)
	assert.Equal(claims, parsed)
}
