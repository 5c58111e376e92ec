// Package cache provides a memoizing key/value cache over pluggable byte backends.
//
// Logical keys are slash-delimited paths such as "pdf/1/01373/0001/soa-2019-06-05.pdf".
// A Backend owns physical storage; Converters layer typed views over a byte cache and
// may append a suffix to the physical key. Values are never invalidated by age: once
// written they are trusted until explicitly deleted.
package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrBackend marks failures of the underlying storage rather than of a computed value.
var ErrBackend = errors.New("cache backend failure")

// BackendError wraps an error returned by a Backend.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is reports ErrBackend so callers can classify without knowing the concrete backend.
func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Backend stores raw bytes under physical keys.
//
// Get must report a missing key as (nil, false, nil) rather than an error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// URLForKey returns a human-followable locator, if the backend has one.
	URLForKey(key string) (string, bool)
	Description() string
}

// ComputeFunc produces a value on a cache miss.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// Cache is a typed view over a Backend.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T) error
	Delete(ctx context.Context, key string) error
	URLForKey(key string) (string, bool)
	// LazyGet returns the cached value for key, or calls compute exactly once,
	// stores its result and returns it.
	LazyGet(ctx context.Context, key string, compute ComputeFunc[T]) (T, error)
	Description() string
}

// Observer is notified of lookups; it is used for hit/miss metrics.
type Observer func(key string, hit bool)

// Bytes is the base Cache[[]byte] that talks to a Backend directly.
type Bytes struct {
	backend  Backend
	observer Observer
}

// Option customizes a Bytes cache.
type Option func(*Bytes)

// WithObserver registers a lookup observer.
func WithObserver(obs Observer) Option {
	return func(b *Bytes) { b.observer = obs }
}

// New wraps backend in a byte cache.
func New(backend Backend, opts ...Option) *Bytes {
	b := &Bytes{backend: backend}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the stored bytes for key.
func (b *Bytes) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := b.backend.Get(ctx, key)
	if err != nil {
		return nil, false, &BackendError{Op: "get", Key: key, Err: err}
	}
	return value, ok, nil
}

// Set stores value under key.
func (b *Bytes) Set(ctx context.Context, key string, value []byte) error {
	if err := b.backend.Set(ctx, key, value); err != nil {
		return &BackendError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Bytes) Delete(ctx context.Context, key string) error {
	if err := b.backend.Delete(ctx, key); err != nil {
		return &BackendError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// URLForKey delegates to the backend.
func (b *Bytes) URLForKey(key string) (string, bool) {
	return b.backend.URLForKey(key)
}

// Description names the backend for logs.
func (b *Bytes) Description() string {
	return b.backend.Description()
}

// LazyGet implements Cache.
func (b *Bytes) LazyGet(ctx context.Context, key string, compute ComputeFunc[[]byte]) ([]byte, error) {
	value, ok, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	b.observe(key, ok)
	if ok {
		return value, nil
	}
	value, err = compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (b *Bytes) observe(key string, hit bool) {
	if b.observer != nil {
		b.observer(key, hit)
	}
}
