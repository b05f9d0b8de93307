// Package pool is a typed wrapper over sync.Pool for values that know how to
// clear themselves.
package pool

import "sync"

// Resetter clears a value so it can be handed out again.
type Resetter interface {
	Reset()
}

// Pool hands out values of T. Values are reset on Put, so Get never returns
// state left by a previous user.
type Pool[T Resetter] struct {
	pool sync.Pool
}

// New creates a pool whose empty Get falls back to newFunc.
//
// Example:
//
//	buffers := pool.New(func() *gzipBuffer { return newGzipBuffer() })
//	b := buffers.Get()
//	defer buffers.Put(b)
func New[T Resetter](newFunc func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any { return newFunc() },
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put resets x and returns it to the pool. x must not be used afterwards.
func (p *Pool[T]) Put(x T) {
	x.Reset()
	p.pool.Put(x)
}
