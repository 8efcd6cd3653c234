package svcgraph

import (
	"sync"
	"sync/atomic"
)

// cleanupFunc disposes of a service value. It is resolved by the container from the
// cleanup functions registered with WithCleanupFunc, falling back to io.Closer.
type cleanupFunc func(v any) error

// Owned is the handle a Unique service is forwarded as. Whoever holds it owns the value
// exclusively and is expected to Close it, or to take the value out with Release.
type Owned[T any] struct {
	mu      sync.Mutex
	value   T
	held    bool
	cleanup cleanupFunc
}

func newOwned[T any](v any, cleanup cleanupFunc) *Owned[T] {
	return &Owned[T]{
		value:   valueAs[T](v),
		held:    true,
		cleanup: cleanup,
	}
}

// Get returns the owned value, or the zero value once the handle has been released or
// closed.
func (o *Owned[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Release transfers the value out of the handle. The caller becomes responsible for
// it and Close turns into a no-op.
func (o *Owned[T]) Release() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.value
	var zero T
	o.value = zero
	o.held = false
	return v
}

// Close disposes of the value. Only the first call has any effect.
func (o *Owned[T]) Close() error {
	o.mu.Lock()
	if !o.held {
		o.mu.Unlock()
		return nil
	}
	v := o.value
	var zero T
	o.value = zero
	o.held = false
	o.mu.Unlock()

	if o.cleanup == nil {
		return nil
	}
	return o.cleanup(v)
}

func (o *Owned[T]) underlying() any {
	return o.Get()
}

func (o *Owned[T]) releaseHandle() error {
	return o.Close()
}

// refState is the counter behind every *Ref[T] of one shared instance, including the
// reference the container itself holds.
type refState struct {
	value   any
	count   atomic.Int64
	cleanup cleanupFunc

	once sync.Once
	err  error
}

func newRefState(value any, cleanup cleanupFunc) *refState {
	st := &refState{
		value:   value,
		cleanup: cleanup,
	}
	st.count.Store(1)
	return st
}

// tryRetain adds a reference unless the count already dropped to zero, in which case
// the value has been cleaned up and must not be handed out again.
func (st *refState) tryRetain() bool {
	for {
		n := st.count.Load()
		if n <= 0 {
			return false
		}
		if st.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (st *refState) retain() {
	if !st.tryRetain() {
		panic("retain of a released shared service")
	}
}

func (st *refState) release() error {
	if st.count.Add(-1) > 0 {
		return nil
	}
	st.once.Do(func() {
		if st.cleanup != nil {
			st.err = st.cleanup(st.value)
		}
	})
	return st.err
}

// Ref is the handle a Shared service is forwarded as. Each handle accounts for one
// reference; the value is cleaned up when the last handle is released and the
// container has been shut down.
type Ref[T any] struct {
	st       *refState
	value    T
	released atomic.Bool
}

// shareFunc builds the Ref for one more reference on st. It fails with ErrShutdown
// once the last reference, the container's included, has been released.
func shareFunc[T any]() func(st *refState) (any, error) {
	return func(st *refState) (any, error) {
		if !st.tryRetain() {
			return nil, ErrShutdown
		}
		return &Ref[T]{st: st, value: valueAs[T](st.value)}, nil
	}
}

// Get returns the shared value. It must not be used after Release.
func (r *Ref[T]) Get() T {
	return r.value
}

// Retain returns a new handle to the same value, adding one reference.
func (r *Ref[T]) Retain() *Ref[T] {
	if r.released.Load() {
		panic("retain of a released reference")
	}
	r.st.retain()
	return &Ref[T]{st: r.st, value: r.value}
}

// Release drops this handle's reference. Releasing the same handle twice is a no-op.
func (r *Ref[T]) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	return r.st.release()
}

// Count returns the number of live references, including the container's own.
func (r *Ref[T]) Count() int64 {
	return r.st.count.Load()
}

func (r *Ref[T]) underlying() any {
	return r.value
}

func (r *Ref[T]) releaseHandle() error {
	return r.Release()
}

// handle is the untyped view of *Owned[T] and *Ref[T] used by Call.
type handle interface {
	underlying() any
	releaseHandle() error
}
