package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Converter maps values of type T to bytes and back. Suffix, when set, is appended
// to every key before it reaches the inner cache. Encode and Decode receive the
// logical key (without Suffix) so that key-dependent encodings stay deterministic.
type Converter[T any] struct {
	Name   string
	Suffix string
	Encode func(key string, value T) ([]byte, error)
	Decode func(key string, data []byte) (T, error)
}

// Converted is a Cache[T] layered over a byte cache.
type Converted[T any] struct {
	inner Cache[[]byte]
	conv  Converter[T]
}

// Convert layers conv over inner.
func Convert[T any](inner Cache[[]byte], conv Converter[T]) *Converted[T] {
	return &Converted[T]{inner: inner, conv: conv}
}

func (c *Converted[T]) physical(key string) string {
	return key + c.conv.Suffix
}

// Get decodes the value stored under key.
func (c *Converted[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, ok, err := c.inner.Get(ctx, c.physical(key))
	if err != nil || !ok {
		return zero, ok, err
	}
	value, err := c.conv.Decode(key, data)
	if err != nil {
		return zero, false, fmt.Errorf("%s decode %q: %w", c.conv.Name, key, err)
	}
	return value, true, nil
}

// Set encodes and stores value.
func (c *Converted[T]) Set(ctx context.Context, key string, value T) error {
	data, err := c.conv.Encode(key, value)
	if err != nil {
		return fmt.Errorf("%s encode %q: %w", c.conv.Name, key, err)
	}
	return c.inner.Set(ctx, c.physical(key), data)
}

// Delete removes key from the inner cache.
func (c *Converted[T]) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, c.physical(key))
}

// URLForKey returns the locator of the physical key.
func (c *Converted[T]) URLForKey(key string) (string, bool) {
	return c.inner.URLForKey(c.physical(key))
}

// Description names the layer chain.
func (c *Converted[T]) Description() string {
	return fmt.Sprintf("%s(%s)", c.conv.Name, c.inner.Description())
}

// LazyGet implements Cache. A computed value is returned as-is, not re-decoded.
func (c *Converted[T]) LazyGet(ctx context.Context, key string, compute ComputeFunc[T]) (T, error) {
	var (
		computed T
		fresh    bool
	)
	data, err := c.inner.LazyGet(ctx, c.physical(key), func(ctx context.Context) ([]byte, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		computed, fresh = value, true
		encoded, err := c.conv.Encode(key, value)
		if err != nil {
			return nil, fmt.Errorf("%s encode %q: %w", c.conv.Name, key, err)
		}
		return encoded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if fresh {
		return computed, nil
	}
	value, err := c.conv.Decode(key, data)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s decode %q: %w", c.conv.Name, key, err)
	}
	return value, nil
}

// TextConverter stores strings as UTF-8.
var TextConverter = Converter[string]{
	Name: "text",
	Encode: func(_ string, value string) ([]byte, error) {
		return []byte(value), nil
	},
	Decode: func(_ string, data []byte) (string, error) {
		return string(data), nil
	},
}

// JSONConverter stores values as JSON documents.
func JSONConverter[T any]() Converter[T] {
	return Converter[T]{
		Name: "json",
		Encode: func(_ string, value T) ([]byte, error) {
			return json.Marshal(value)
		},
		Decode: func(_ string, data []byte) (T, error) {
			var value T
			err := json.Unmarshal(data, &value)
			return value, err
		},
	}
}

// AsText returns a string view of inner.
func AsText(inner Cache[[]byte]) *Converted[string] {
	return Convert(inner, TextConverter)
}

// AsJSON returns a JSON view of inner.
func AsJSON[T any](inner Cache[[]byte]) *Converted[T] {
	return Convert(inner, JSONConverter[T]())
}
