// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileEntry is one persisted value.  A zero Expires never expires.
type fileEntry struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// fileStore keeps all entries of a compartment in a single JSON document
// which is rewritten atomically on every change.
type fileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func (f *fileStore) load() (map[string]fileEntry, error) {
	entries := map[string]fileEntry{}
	b, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return entries, nil
	case err != nil:
		return nil, err
	case len(b) == 0:
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("corrupt store %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *fileStore) save(entries map[string]fileEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, b, 0o600)
}

func (f *fileStore) get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return "", false, err
	}
	e, ok := entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.Expires.IsZero() && !f.now().Before(e.Expires) {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (f *fileStore) set(key string, e fileEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	now := f.now()
	for k, v := range entries {
		if !v.Expires.IsZero() && !now.Before(v.Expires) {
			delete(entries, k)
		}
	}
	entries[key] = e
	return f.save(entries)
}

func (f *fileStore) delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return f.save(entries)
}

// writeFileAtomic writes data to a temp file in the destination directory and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// FileDurable is a Durable stored in a single file.  It is safe for
// concurrent use within a process; concurrent processes are last write wins.
type FileDurable struct {
	fs *fileStore
}

var _ Durable = (*FileDurable)(nil)

// NewFileDurable creates a FileDurable at path.  The file is created on the
// first write.
func NewFileDurable(path string) (*FileDurable, error) {
	const op = "storage.NewFileDurable"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, ErrInvalidParameter)
	}
	return &FileDurable{fs: &fileStore{path: path, now: time.Now}}, nil
}

// Get implements Durable.Get
func (f *FileDurable) Get(_ context.Context, key string) (string, error) {
	const op = "storage.(FileDurable).Get"
	v, ok, err := f.fs.get(key)
	switch {
	case err != nil:
		return "", fmt.Errorf("%s: %w", op, err)
	case !ok:
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrNotFound)
	}
	return v, nil
}

// Set implements Durable.Set
func (f *FileDurable) Set(_ context.Context, key, value string) error {
	const op = "storage.(FileDurable).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	if err := f.fs.set(key, fileEntry{Value: value}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements Durable.Delete
func (f *FileDurable) Delete(_ context.Context, key string) error {
	const op = "storage.(FileDurable).Delete"
	if err := f.fs.delete(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FileVolatile is a Volatile stored in a single file, the non-browser
// equivalent of a cookie jar.
type FileVolatile struct {
	fs *fileStore
}

var _ Volatile = (*FileVolatile)(nil)

// NewFileVolatile creates a FileVolatile at path.  Supports the WithNow
// option.
func NewFileVolatile(path string, opt ...Option) (*FileVolatile, error) {
	const op = "storage.NewFileVolatile"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	return &FileVolatile{fs: &fileStore{path: path, now: opts.withNow}}, nil
}

// Get implements Volatile.Get
func (f *FileVolatile) Get(_ context.Context, key string) (string, error) {
	const op = "storage.(FileVolatile).Get"
	v, ok, err := f.fs.get(key)
	switch {
	case err != nil:
		return "", fmt.Errorf("%s: %w", op, err)
	case !ok:
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrNotFound)
	}
	return v, nil
}

// Set implements Volatile.Set
func (f *FileVolatile) Set(_ context.Context, key, value string, ttl time.Duration) error {
	const op = "storage.(FileVolatile).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	var err error
	if ttl <= 0 {
		err = f.fs.delete(key)
	} else {
		err = f.fs.set(key, fileEntry{Value: value, Expires: f.fs.now().Add(ttl)})
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements Volatile.Delete
func (f *FileVolatile) Delete(_ context.Context, key string) error {
	const op = "storage.(FileVolatile).Delete"
	if err := f.fs.delete(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
