// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// TestLocation is an in-memory Location for tests.
type TestLocation struct {
	mu   sync.Mutex
	href string
}

var _ Location = (*TestLocation)(nil)

// NewTestLocation creates a TestLocation at href.
func NewTestLocation(href string) *TestLocation {
	return &TestLocation{href: href}
}

// Set changes the location, for example to a callback URL.
func (l *TestLocation) Set(href string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.href = href
}

// Href implements Location.Href
func (l *TestLocation) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.href
}

// Hash implements Location.Hash
func (l *TestLocation) Hash() string {
	href := l.Href()
	if i := strings.Index(href, "#"); i >= 0 {
		return href[i:]
	}
	return ""
}

// Path implements Location.Path
func (l *TestLocation) Path() string {
	u, err := url.Parse(l.Href())
	if err != nil {
		return ""
	}
	return u.Path
}

// TestPopup is the Popup opened by a TestWindow.
type TestPopup struct {
	mu     sync.Mutex
	closed int
}

var _ Popup = (*TestPopup)(nil)

// Close implements Popup.Close
func (p *TestPopup) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// Closed reports how many times Close was called.
func (p *TestPopup) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// TestOpened records a TestWindow.Open call.
type TestOpened struct {
	URI      string
	Name     string
	Features string
	Popup    *TestPopup
}

// TestWindow is an in-memory Window for tests.  It records navigations and
// opened popups, and delivers messages posted with PostMessage.
type TestWindow struct {
	mu          sync.Mutex
	metrics     WindowMetrics
	navigations []string
	opened      []TestOpened
	listeners   map[int]func(string)
	nextID      int
	onOpen      func(uri string)
	openErr     error
}

var _ Window = (*TestWindow)(nil)

// NewTestWindow creates a TestWindow with the given metrics.
func NewTestWindow(m WindowMetrics) *TestWindow {
	return &TestWindow{
		metrics:   m,
		listeners: map[int]func(string){},
	}
}

// OnOpen registers fn to be called on its own goroutine with the uri of every
// opened popup, standing in for the user completing the flow in the popup.
func (w *TestWindow) OnOpen(fn func(uri string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onOpen = fn
}

// SetOpenError makes Open fail with err.
func (w *TestWindow) SetOpenError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.openErr = err
}

// Navigate implements Window.Navigate
func (w *TestWindow) Navigate(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.navigations = append(w.navigations, uri)
	return nil
}

// Open implements Window.Open
func (w *TestWindow) Open(ctx context.Context, uri, name, features string) (Popup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	if w.openErr != nil {
		err := w.openErr
		w.mu.Unlock()
		return nil, err
	}
	p := &TestPopup{}
	w.opened = append(w.opened, TestOpened{URI: uri, Name: name, Features: features, Popup: p})
	hook := w.onOpen
	w.mu.Unlock()

	if hook != nil {
		go hook(uri)
	}
	return p, nil
}

// Metrics implements Window.Metrics
func (w *TestWindow) Metrics() WindowMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// AddMessageListener implements Window.AddMessageListener
func (w *TestWindow) AddMessageListener(fn func(data string)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// PostMessage delivers data to every message listener.
func (w *TestWindow) PostMessage(data string) {
	w.mu.Lock()
	fns := make([]func(string), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

// Listeners returns the number of registered message listeners.
func (w *TestWindow) Listeners() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}

// Navigations returns the uris navigated to.
func (w *TestWindow) Navigations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.navigations...)
}

// Opened returns the popups opened.
func (w *TestWindow) Opened() []TestOpened {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]TestOpened(nil), w.opened...)
}
