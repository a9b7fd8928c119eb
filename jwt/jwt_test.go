// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	require := require.New(t)
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	der, err := x509.MarshalPKIXPublicKey(k.Public())
	require.NoError(err)
	return k, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func testSign(t *testing.T, k *ecdsa.PrivateKey, kid string, claims map[string]interface{}) string {
	t.Helper()
	require := require.New(t)
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: k}, opts)
	require.NoError(err)
	raw, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	require.NoError(err)
	return raw
}

// testJWKSServer serves a discovery document at /.well-known/openid-configuration
// and the public keys at /jwks.
func testJWKSServer(t *testing.T, kid string, keys ...*ecdsa.PrivateKey) *httptest.Server {
	t.Helper()
	set := jose.JSONWebKeySet{}
	for _, k := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.Public(),
			KeyID:     kid,
			Algorithm: string(jose.ES256),
			Use:       "sig",
		})
	}
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"issuer":                 srv.URL,
				"authorization_endpoint": srv.URL + "/authorize",
				"jwks_uri":               srv.URL + "/jwks",
			})
		case "/jwks":
			_ = json.NewEncoder(w).Encode(set)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
