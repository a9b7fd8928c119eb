// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/anvil-connect/storage"
	"github.com/redis/go-redis/v9"
)

const (
	durableFile  = "durable.json"
	volatileFile = "volatile.json"
)

// openStorage returns the session compartments selected by c: Redis when
// configured, files in the state dir otherwise.
func openStorage(c *Config) (storage.Durable, storage.Volatile, func() error, error) {
	if c.Redis != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Username: c.Redis.Username,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		var opts []storage.Option
		if c.Redis.Prefix != "" {
			opts = append(opts, storage.WithPrefix(c.Redis.Prefix))
		}
		durable, err := storage.NewRedisDurable(client, opts...)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		volatile, err := storage.NewRedisVolatile(client, opts...)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		return durable, volatile, client.Close, nil
	}

	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return nil, nil, nil, fmt.Errorf("unable to create state dir: %w", err)
	}
	durable, err := storage.NewFileDurable(filepath.Join(c.StateDir, durableFile))
	if err != nil {
		return nil, nil, nil, err
	}
	volatile, err := storage.NewFileVolatile(filepath.Join(c.StateDir, volatileFile))
	if err != nil {
		return nil, nil, nil, err
	}
	return durable, volatile, func() error { return nil }, nil
}
