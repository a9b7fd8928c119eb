// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/hashicorp/go-hclog"
)

const (
	messagePath    = "/message"
	maxMessageSize = 64 * 1024
)

// callbackPage stands in for the opener's message channel: it posts the
// ready message, then its own address, back to the loopback server.
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>anvil-connect</title></head>
<body>
<p id="status">Completing sign in...</p>
<script>
(function () {
  function post(data) {
    return fetch({{.MessagePath}}, {method: "POST", headers: {"Content-Type": "text/plain"}, body: data});
  }
  post({{.Ready}}).then(function () {
    return post(window.location.href);
  }).then(function () {
    document.getElementById("status").textContent = "Signed in. You can close this window.";
    window.close();
  }, function (err) {
    document.getElementById("status").textContent = "Unable to complete sign in: " + err;
  });
})();
</script>
</body>
</html>
`))

// loopback hosts an oidc.Client on the command line.  The user's browser
// plays the popup or the redirected window; the callback page reports back
// to a server listening on the loopback interface.
type loopback struct {
	addr         string
	callbackPath string
	openURL      func(string) error
	logger       hclog.Logger

	mu        sync.Mutex
	href      string
	listeners map[int]func(string)
	nextID    int
	listener  net.Listener
	server    *http.Server

	callbacks chan string
}

var (
	_ oidc.Location = (*loopback)(nil)
	_ oidc.Window   = (*loopback)(nil)
)

func newLoopback(addr, callbackPath string, openURL func(string) error, logger hclog.Logger) *loopback {
	l := &loopback{
		addr:         addr,
		callbackPath: callbackPath,
		openURL:      openURL,
		logger:       logger.Named("loopback"),
		listeners:    map[int]func(string){},
		callbacks:    make(chan string, 1),
	}
	l.href = l.origin() + "/"
	return l
}

// Start listens on the loopback address and serves the callback page.
func (l *loopback) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", l.addr, err)
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	l.Register(r)
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}

	l.mu.Lock()
	l.listener = ln
	l.server = srv
	l.href = "http://" + ln.Addr().String() + "/"
	l.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("callback server stopped", "error", err)
		}
	}()
	l.logger.Debug("callback server started", "addr", ln.Addr().String())
	return nil
}

// Register adds the callback page and message routes to r.
func (l *loopback) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Get(l.callbackPath, l.serveCallback)
		r.Post(messagePath, l.receiveMessage)
	})
}

// Close stops the server.
func (l *loopback) Close(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (l *loopback) origin() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return "http://" + l.listener.Addr().String()
	}
	return "http://" + l.addr
}

// RedirectURI is the callback page's address.
func (l *loopback) RedirectURI() string {
	return l.origin() + l.callbackPath
}

func (l *loopback) serveCallback(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := callbackPage.Execute(w, struct{ MessagePath, Ready string }{messagePath, oidc.ReadyMessage})
	if err != nil {
		l.logger.Error("unable to write callback page", "error", err)
	}
}

func (l *loopback) receiveMessage(w http.ResponseWriter, req *http.Request) {
	if o := req.Header.Get("Origin"); o != "" && o != l.origin() {
		l.logger.Warn("rejected message from another origin", "origin", o)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, maxMessageSize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	l.PostMessage(string(data))
	w.WriteHeader(http.StatusNoContent)
}

// SetHref replaces the current location, as if the window loaded it.
func (l *loopback) SetHref(href string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.href = href
}

// Href implements oidc.Location.Href
func (l *loopback) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.href
}

// Hash implements oidc.Location.Hash
func (l *loopback) Hash() string {
	u, err := url.Parse(l.Href())
	if err != nil || u.Fragment == "" {
		return ""
	}
	return "#" + u.EscapedFragment()
}

// Path implements oidc.Location.Path
func (l *loopback) Path() string {
	u, err := url.Parse(l.Href())
	if err != nil {
		return ""
	}
	return u.Path
}

// Navigate implements oidc.Window.Navigate by opening uri in the browser.
func (l *loopback) Navigate(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.openURL(uri)
}

// Open implements oidc.Window.Open by opening uri in the browser.
func (l *loopback) Open(ctx context.Context, uri, name, _ string) (oidc.Popup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.openURL(uri); err != nil {
		return nil, err
	}
	l.logger.Debug("opened browser", "name", name)
	return browserTab{logger: l.logger}, nil
}

// Metrics implements oidc.Window.Metrics.  A terminal has no geometry.
func (l *loopback) Metrics() oidc.WindowMetrics {
	return oidc.WindowMetrics{}
}

// AddMessageListener implements oidc.Window.AddMessageListener
func (l *loopback) AddMessageListener(fn func(data string)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// PostMessage delivers data to the message listeners.  The latest callback
// address is also kept for WaitForCallback.
func (l *loopback) PostMessage(data string) {
	if data != oidc.ReadyMessage {
		select {
		case l.callbacks <- data:
		default:
			l.logger.Debug("dropped callback, one is already pending")
		}
	}
	l.mu.Lock()
	fns := make([]func(string), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

// WaitForCallback returns the next callback address posted by the callback
// page.
func (l *loopback) WaitForCallback(ctx context.Context) (string, error) {
	select {
	case href := <-l.callbacks:
		return href, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// browserTab is a popup opened in the user's browser.  The callback page
// closes itself, so there's nothing left to close.
type browserTab struct {
	logger hclog.Logger
}

func (b browserTab) Close() error {
	b.logger.Debug("browser tab is closed by the callback page")
	return nil
}
