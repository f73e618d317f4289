// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrKeyNotFound = errors.New("key not found")

// Backend is the key-value store behind the ledger. Values are opaque
// bytes; List returns every entry whose key starts with prefix.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

// New creates a storage backend.
//
//	"memory"  in-process map, state lost on restart
//	"badger"  embedded badger database at path
//	"redis"   shared redis at addr
func New(backendType, path, addr, password string) (Backend, error) {
	switch backendType {
	case "memory":
		return NewMemory(), nil
	case "badger":
		return NewBadger(path)
	case "redis":
		return NewRedis(addr, password)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backendType)
	}
}
