// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/anvil-connect/jwt"
	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("not checked"), 0o600))

	tests := []struct {
		name         string
		yaml         string
		want         *Config
		wantErrMatch []string
	}{
		{
			name: "minimal",
			yaml: `
issuer: https://provider.example.com
client_id: cli
state_dir: /tmp/anvil
`,
			want: &Config{
				Issuer:       "https://provider.example.com",
				ClientID:     "cli",
				StateDir:     "/tmp/anvil",
				ListenAddr:   defaultListenAddr,
				CallbackPath: defaultCallbackPath,
				Timeout:      defaultTimeout,
			},
		},
		{
			name: "complete",
			yaml: `
issuer: https://provider.example.com
client_id: cli
scopes: [email, address]
response_type: id_token
display: popup
ca_cert: ` + caFile + `
jwks_url: https://provider.example.com/jwks
jwks_no_cache: true
signing_algs: [ES256, RS256]
listen_addr: 127.0.0.1:9000
callback_path: /oidc/callback
state_dir: /tmp/anvil
redis:
  addr: localhost:6379
  db: 2
  prefix: anvil
timeout: 30s
`,
			want: &Config{
				Issuer:       "https://provider.example.com",
				ClientID:     "cli",
				Scopes:       []string{"email", "address"},
				ResponseType: "id_token",
				Display:      "popup",
				CACert:       caFile,
				JWKSURL:      "https://provider.example.com/jwks",
				JWKSNoCache:  true,
				SigningAlgs:  []string{"ES256", "RS256"},
				ListenAddr:   "127.0.0.1:9000",
				CallbackPath: "/oidc/callback",
				StateDir:     "/tmp/anvil",
				Redis:        &RedisConfig{Addr: "localhost:6379", DB: 2, Prefix: "anvil"},
				Timeout:      30 * time.Second,
			},
		},
		{
			name:         "missing-required",
			yaml:         "state_dir: /tmp/anvil\n",
			wantErrMatch: []string{"issuer", "client_id", `"required"`},
		},
		{
			name: "invalid-values",
			yaml: `
issuer: not a url
client_id: cli
response_type: code
display: touch
signing_algs: [HS256]
callback_path: callback
state_dir: /tmp/anvil
`,
			wantErrMatch: []string{"issuer", "response_type", "display", "signing_algs[0]", "callback_path"},
		},
		{
			name: "missing-ca-file",
			yaml: `
issuer: https://provider.example.com
client_id: cli
ca_cert: ` + filepath.Join(dir, "missing.pem") + `
state_dir: /tmp/anvil
`,
			wantErrMatch: []string{"ca_cert"},
		},
		{
			name: "redis-without-addr",
			yaml: `
issuer: https://provider.example.com
client_id: cli
state_dir: /tmp/anvil
redis:
  db: 1
`,
			wantErrMatch: []string{"redis.addr"},
		},
		{
			name: "unknown-field",
			yaml: `
issuer: https://provider.example.com
client_id: cli
client_secret: nope
`,
			wantErrMatch: []string{"client_secret"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := ParseConfig([]byte(tt.yaml))
			if len(tt.wantErrMatch) > 0 {
				require.Error(err)
				for _, m := range tt.wantErrMatch {
					assert.Contains(err.Error(), m)
				}
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("ANVIL_TEST_CLIENT_ID", "from-env")
	t.Setenv("ANVIL_TEST_ISSUER", "https://env.example.com")
	assert, require := assert.New(t), require.New(t)

	path := filepath.Join(t.TempDir(), "anvil-connect.yaml")
	require.NoError(os.WriteFile(path, []byte(`
issuer: ${ANVIL_TEST_ISSUER}
client_id: $ANVIL_TEST_CLIENT_ID
`), 0o600))

	c, err := LoadConfig(path)
	require.NoError(err)
	assert.Equal("https://env.example.com", c.Issuer)
	assert.Equal("from-env", c.ClientID)
	assert.NotEmpty(c.StateDir)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(err, os.ErrNotExist)
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c := &Config{
		Scopes:       []string{"email"},
		ResponseType: "token",
		Display:      "popup",
		SigningAlgs:  []string{"ES384"},
	}
	cfg, err := oidc.NewConfig("https://provider.example.com", "cli", "http://localhost:8400/callback", c.oidcOptions()...)
	require.NoError(err)
	assert.Equal([]string{oidc.ScopeOpenID, oidc.ScopeProfile, "email"}, cfg.Scopes)
	assert.Equal(oidc.ResponseTypeToken, cfg.ResponseType)
	assert.Equal(oidc.DisplayPopup, cfg.Display)
	assert.Equal([]jwt.Alg{jwt.ES384}, c.supportedAlgs())

	cfg, err = oidc.NewConfig("https://provider.example.com", "cli", "", (&Config{}).oidcOptions()...)
	require.NoError(err)
	assert.Equal(oidc.ResponseTypeIDTokenToken, cfg.ResponseType)
	assert.Equal(oidc.DisplayPage, cfg.Display)
}
