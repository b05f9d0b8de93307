// Package repository holds the key/value backends behind the ledger's
// getData/setData surface.
package repository

import "context"

// Storage is a byte-oriented key/value store.
//
// Get returns an empty, non-nil slice for an absent key; callers treat an
// empty value as "not found".
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

func ctxDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// nonNil maps a nil value to an empty one for columns declared NOT NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
