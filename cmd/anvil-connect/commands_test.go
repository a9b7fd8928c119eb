// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBrowser stands in for the user's browser.  When complete is set, it
// signs in at the provider and loads the callback page, which reports back
// to the loopback server.
type testBrowser struct {
	provider *oidc.TestProvider
	complete bool

	mu     sync.Mutex
	opened []string
	errs   chan error
}

func newTestBrowser(p *oidc.TestProvider, complete bool) *testBrowser {
	return &testBrowser{provider: p, complete: complete, errs: make(chan error, 10)}
}

func (b *testBrowser) open(uri string) error {
	b.mu.Lock()
	b.opened = append(b.opened, uri)
	b.mu.Unlock()
	if b.complete && strings.HasPrefix(uri, b.provider.Addr()+"/authorize") {
		go func() {
			if err := b.signIn(uri); err != nil {
				b.errs <- err
			}
		}()
	}
	return nil
}

func (b *testBrowser) signIn(uri string) error {
	loc, err := b.provider.AuthorizeRedirect(uri)
	if err != nil {
		return err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return err
	}
	origin := u.Scheme + "://" + u.Host

	resp, err := http.Get(loc)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback page: unexpected status %d", resp.StatusCode)
	}
	for _, data := range []string{oidc.ReadyMessage, loc} {
		req, err := http.NewRequest(http.MethodPost, origin+messagePath, strings.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("message: unexpected status %d", resp.StatusCode)
		}
	}
	return nil
}

func (b *testBrowser) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

func (b *testBrowser) Err() error {
	select {
	case err := <-b.errs:
		return err
	default:
		return nil
	}
}

// writeTestConfig writes a config for p into a new directory and returns
// its path.
func writeTestConfig(t *testing.T, p *oidc.TestProvider, timeout time.Duration, extra string) string {
	t.Helper()
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(caFile, []byte(p.CACert()), 0o600))
	cfg := fmt.Sprintf(`
issuer: %s
client_id: test-client-id
ca_cert: %s
listen_addr: 127.0.0.1:0
state_dir: %s
timeout: %s
%s`, p.Addr(), caFile, filepath.Join(dir, "state"), timeout, extra)
	cfgFile := filepath.Join(dir, "anvil-connect.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o600))
	return cfgFile
}

func runCmd(t *testing.T, open func(string) error, cfgFile string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--config", cfgFile,
		"--env-file", filepath.Join(filepath.Dir(cfgFile), "missing.env"),
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		display string
	}{
		{name: "page", display: "page"},
		{name: "popup", display: "popup"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			p := oidc.StartTestProvider(t)
			cfgFile := writeTestConfig(t, p, 10*time.Second, "display: "+tt.display)
			browser := newTestBrowser(p, true)

			out, _, err := runCmd(t, browser.open, cfgFile, "login")
			require.NoError(err)
			require.NoError(browser.Err())
			var summary sessionSummary
			require.NoError(json.Unmarshal([]byte(out), &summary))
			assert.Equal("alice@example.com", summary.Subject)
			assert.Equal("test-session-state", summary.SessionState)
			require.NotNil(summary.Expires)
			assert.True(summary.Expires.After(time.Now()))
			require.Len(browser.Opened(), 1)
			assert.True(strings.HasPrefix(browser.Opened()[0], p.Addr()+"/authorize?"))

			out, _, err = runCmd(t, browser.open, cfgFile, "whoami")
			require.NoError(err)
			assert.Contains(out, `"subject": "alice@example.com"`)

			out, _, err = runCmd(t, browser.open, cfgFile, "userinfo")
			require.NoError(err)
			var info map[string]interface{}
			require.NoError(json.Unmarshal([]byte(out), &info))
			assert.Equal("Alice Doe", info["name"])
			assert.Equal("alice@example.com", info["sub"])

			out, _, err = runCmd(t, browser.open, cfgFile, "check-session")
			require.NoError(err)
			assert.Equal(fmt.Sprintf("message: test-client-id test-session-state\norigin:  %s\n", p.Addr()), out)

			_, stderr, err := runCmd(t, browser.open, cfgFile, "logout", "/goodbye")
			require.NoError(err)
			assert.Contains(stderr, "Logged out.")
			opened := browser.Opened()
			require.Len(opened, 2)
			signout, err := url.Parse(opened[1])
			require.NoError(err)
			assert.Equal(p.Addr()+"/signout", signout.Scheme+"://"+signout.Host+signout.Path)
			assert.NotEmpty(signout.Query().Get("id_token_hint"))
			assert.True(strings.HasSuffix(signout.Query().Get("post_logout_redirect_uri"), "/goodbye"))

			_, _, err = runCmd(t, browser.open, cfgFile, "whoami")
			assert.ErrorIs(err, errNotAuthenticated)
		})
	}
}

func TestCommands_Callback(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidc.StartTestProvider(t)
	cfgFile := writeTestConfig(t, p, time.Second, "")
	browser := newTestBrowser(p, false)

	// the browser never reports back, so login gives up
	_, _, err := runCmd(t, browser.open, cfgFile, "login", "--display", "page")
	require.Error(err)
	assert.ErrorIs(err, context.DeadlineExceeded)
	require.Len(browser.Opened(), 1)

	loc, err := p.AuthorizeRedirect(browser.Opened()[0])
	require.NoError(err)

	out, _, err := runCmd(t, browser.open, cfgFile, "callback", loc)
	require.NoError(err)
	assert.Contains(out, `"subject": "alice@example.com"`)

	out, _, err = runCmd(t, browser.open, cfgFile, "whoami")
	require.NoError(err)
	assert.Contains(out, `"subject": "alice@example.com"`)

	_, _, err = runCmd(t, browser.open, cfgFile, "callback", "http://127.0.0.1/callback")
	assert.Error(err)
}

func TestCommands_Errors(t *testing.T) {
	t.Parallel()
	p := oidc.StartTestProvider(t)
	cfgFile := writeTestConfig(t, p, 10*time.Second, "")
	browser := newTestBrowser(p, false)
	t.Cleanup(func() { assert.Empty(t, browser.Opened()) })

	tests := []struct {
		name         string
		cfgFile      string
		args         []string
		wantErrIs    error
		wantErrMatch string
	}{
		{
			name:      "not-logged-in",
			cfgFile:   cfgFile,
			args:      []string{"whoami"},
			wantErrIs: errNotAuthenticated,
		},
		{
			name:      "userinfo-not-logged-in",
			cfgFile:   cfgFile,
			args:      []string{"userinfo"},
			wantErrIs: errNotAuthenticated,
		},
		{
			name:         "missing-config",
			cfgFile:      filepath.Join(t.TempDir(), "missing.yaml"),
			args:         []string{"whoami"},
			wantErrMatch: "load config file",
		},
		{
			name:         "invalid-display",
			cfgFile:      cfgFile,
			args:         []string{"login", "--display", "tab"},
			wantErrMatch: "display",
		},
		{
			name:         "callback-without-url",
			cfgFile:      cfgFile,
			args:         []string{"callback"},
			wantErrMatch: "accepts 1 arg(s)",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			_, _, err := runCmd(t, browser.open, tt.cfgFile, tt.args...)
			assert.Error(err)
			if tt.wantErrIs != nil {
				assert.ErrorIs(err, tt.wantErrIs)
			}
			if tt.wantErrMatch != "" {
				assert.Contains(err.Error(), tt.wantErrMatch)
			}
		})
	}
}
