// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/anvil-connect/oidc/internal/strutils"
	"github.com/hashicorp/anvil-connect/sdk/cryptor"
	sdkhttp "github.com/hashicorp/anvil-connect/sdk/http"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local TLS server implementing the provider side of the
// implicit flow, which makes writing tests much easier.  It serves discovery,
// /authorize (redirecting with the response in the fragment), /jwks,
// /userinfo and /signout.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	allowedRedirectURIs []string
	subject             string
	userInfo            map[string]interface{}
	customClaims        map[string]interface{}
	atHash              string
	authError           string
	sessionState        string
	expiresIn           time.Duration
	disableUserInfo     bool
	issuedAccessTokens  map[string]bool
	signouts            []url.Values
	nowFunc             func() time.Time

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider, which is stopped when
// the test completes.
//
// Supported options: WithTestPort, WithNow
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	p := &TestProvider{
		clientID:     "test-client-id",
		subject:      "alice@example.com",
		sessionState: "test-session-state",
		expiresIn:    time.Hour,
		userInfo: map[string]interface{}{
			"name":  "Alice Doe",
			"email": "alice@example.com",
		},
		issuedAccessTokens: map[string]bool{},
		nowFunc:            opts.withNow,
		t:                  t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	if opts.withTestPort != 0 {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withTestPort)
	} else {
		p.httpServer = httptest.NewUnstartedServer(p)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the base URL of the test provider, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// HTTPAdapter returns an HTTP adapter which trusts the test provider.
func (p *TestProvider) HTTPAdapter() *sdkhttp.Adapter {
	p.t.Helper()
	a, err := sdkhttp.NewAdapter(p.caCert)
	require.NoError(p.t, err)
	return a
}

// SetClientID configures the only client id /authorize accepts.  The default
// is "test-client-id".
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetAllowedRedirectURIs restricts the redirect URIs /authorize accepts.  Any
// redirect URI is accepted when none are configured.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the sub of issued tokens and of the userinfo reply.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = sub
}

// SetUserInfo configures the userinfo reply.  Its claims are added to, and
// may override, the sub claim.
func (p *TestProvider) SetUserInfo(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfo = claims
}

// SetCustomClaims lets you set additional claims for issued id tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetAtHash overrides the at_hash claim of issued id tokens.
func (p *TestProvider) SetAtHash(atHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.atHash = atHash
}

// SetAuthError makes /authorize respond with the error code instead of
// tokens.  An empty code restores normal responses.
func (p *TestProvider) SetAuthError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authError = code
}

// SetSessionState configures the session_state of responses.
func (p *TestProvider) SetSessionState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionState = state
}

// SetExpiresIn configures the lifetime of issued tokens.
func (p *TestProvider) SetExpiresIn(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = d
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from the
// discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// Signouts returns the query of every /signout request.
func (p *TestProvider) Signouts() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.signouts...)
}

// AuthorizeRedirect sends the authorization request uri, as the user agent
// would, and returns the URL the provider redirected to.
func (p *TestProvider) AuthorizeRedirect(uri string) (string, error) {
	const op = "TestProvider.AuthorizeRedirect"
	client, err := sdkhttp.NewClient(p.caCert)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Get(uri)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, body)
	}
	return resp.Header.Get("Location"), nil
}

func (p *TestProvider) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// writeAuthResponse redirects to redirectURI with params in the fragment.
func (p *TestProvider) writeAuthResponse(w http.ResponseWriter, req *http.Request, redirectURI string, params ...Param) {
	http.Redirect(w, req, redirectURI+"#"+EncodeForm(params...), http.StatusFound)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, redirectURI, errorCode, errorMessage string) {
	params := []Param{{Key: "error", Value: errorCode}}
	if errorMessage != "" {
		params = append(params, Param{Key: "error_description", Value: errorMessage})
	}
	if p.sessionState != "" {
		params = append(params, Param{Key: "session_state", Value: p.sessionState})
	}
	p.writeAuthResponse(w, req, redirectURI, params...)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			UserinfoEndpoint   string   `json:"userinfo_endpoint,omitempty"`
			EndSessionEndpoint string   `json:"end_session_endpoint"`
			ResponseTypes      []string `json:"response_types_supported"`
			SigningAlgs        []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.Addr() + "/authorize",
			JWKSURI:            p.Addr() + "/jwks",
			UserinfoEndpoint:   p.Addr() + "/userinfo",
			EndSessionEndpoint: p.Addr() + "/signout",
			ResponseTypes: []string{
				string(ResponseTypeIDTokenToken),
				string(ResponseTypeIDToken),
				string(ResponseTypeToken),
			},
			SigningAlgs: []string{string(jose.ES256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.authorize(w, req)

	case "/jwks":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !p.issuedAccessTokens[token] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.subject}
		for k, v := range p.userInfo {
			reply[k] = v
		}
		_ = p.writeJSON(w, reply)

	case "/signout":
		p.signouts = append(p.signouts, req.URL.Query())
		if redirect := req.URL.Query().Get("post_logout_redirect_uri"); redirect != "" {
			http.Redirect(w, req, redirect, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) authorize(w http.ResponseWriter, req *http.Request) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri")
	switch {
	case redirectURI == "":
		http.Error(w, "missing redirect_uri parameter", http.StatusBadRequest)
		return
	case len(p.allowedRedirectURIs) > 0 && !strutils.StrListContains(p.allowedRedirectURIs, redirectURI):
		http.Error(w, "redirect_uri is not allowed", http.StatusBadRequest)
		return
	}

	responseType := ResponseType(qv.Get("response_type"))
	nonce := qv.Get("nonce")
	switch {
	case qv.Get("client_id") != p.clientID:
		p.writeAuthErrorResponse(w, req, redirectURI, "unauthorized_client", "")
		return
	case !responseType.Valid():
		p.writeAuthErrorResponse(w, req, redirectURI, "unsupported_response_type", "")
		return
	case !strutils.StrListContains(strings.Fields(qv.Get("scope")), ScopeOpenID):
		p.writeAuthErrorResponse(w, req, redirectURI, "invalid_scope", "")
		return
	case responseType.Requires(string(ResponseTypeIDToken)) && nonce == "":
		p.writeAuthErrorResponse(w, req, redirectURI, "invalid_request", "missing nonce parameter")
		return
	case p.authError != "":
		p.writeAuthErrorResponse(w, req, redirectURI, p.authError, "")
		return
	}

	now := p.now()
	registered := jwt.Claims{
		Issuer:   p.Addr(),
		Subject:  p.subject,
		Audience: jwt.Audience{p.clientID},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(p.expiresIn)),
	}

	var params []Param
	var accessToken string
	if responseType.Requires(string(ResponseTypeToken)) {
		var err error
		accessToken, err = signJWT(p.ecdsaPrivateKey, registered, map[string]interface{}{"scope": qv.Get("scope")})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		p.issuedAccessTokens[accessToken] = true
		params = append(params,
			Param{Key: "access_token", Value: accessToken},
			Param{Key: "token_type", Value: "Bearer"},
			Param{Key: "expires_in", Value: strconv.Itoa(int(p.expiresIn.Seconds()))},
		)
	}
	if responseType.Requires(string(ResponseTypeIDToken)) {
		private := map[string]interface{}{"nonce": nonce}
		if accessToken != "" {
			private["at_hash"] = cryptor.AtHash(accessToken)
		}
		if p.atHash != "" {
			private["at_hash"] = p.atHash
		}
		for k, v := range p.customClaims {
			private[k] = v
		}
		idToken, err := signJWT(p.ecdsaPrivateKey, registered, private)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		params = append(params, Param{Key: "id_token", Value: idToken})
	}
	if p.sessionState != "" {
		params = append(params, Param{Key: "session_state", Value: p.sessionState})
	}
	p.writeAuthResponse(w, req, redirectURI, params...)
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	input := block.Bytes

	pub, err := x509.ParsePKIXPublicKey(input)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     "test-key",
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}

// testProviderOptions is the set of available options for TestProvider
// functions
type testProviderOptions struct {
	withTestPort int
	withNow      func() time.Time
}

// testProviderDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

// getTestProviderOpts gets the test provider defaults and applies the opt
// overrides passed in
func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort provides an optional port for the test provider.
//
// Valid for: TestProvider
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withTestPort = port
		}
	}
}
