// Package cache provides the TTL cache used for raw venue feeds, published
// snapshots and short-lived computed opportunity lists. Values are
// msgpack-encoded.
package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type Cache interface {
	// Get decodes the cached value into dest and reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

func encode(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func decode(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}
