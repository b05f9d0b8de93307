package repository

import (
	"context"
	"sync"
)

type MemStorage struct {
	data map[string][]byte
	mu   sync.RWMutex
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		data: make(map[string][]byte),
	}
}

func (s *MemStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBytes(s.data[key]), nil
}

func (s *MemStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cloneBytes(value)
	return nil
}

// Snapshot returns a deep copy of every entry.
func (s *MemStorage) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		out[k] = cloneBytes(v)
	}
	return out
}

func (s *MemStorage) Ping(ctx context.Context) error {
	return ctxDone(ctx)
}

func (s *MemStorage) Close() error {
	return nil
}
