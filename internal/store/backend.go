// Package store caches users' activity collections in front of the activity
// source and collapses concurrent fetches for the same user into one.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// Backend is a byte-oriented cache with per-entry expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
