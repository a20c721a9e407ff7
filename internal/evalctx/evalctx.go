// Package evalctx provides the evaluation context consulted by flipping
// strategies: a named key/value bag with type-checked reads, plus ambient
// propagation through [context.Context] so evaluation parameters reach
// deeply nested calls without explicit threading.
package evalctx

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrKeyNotFound is returned by typed reads when the key is absent.
	ErrKeyNotFound = errors.New("evaluation context key not found")

	// ErrTypeMismatch is returned when a key is present but its value is not
	// of the requested type. It signals a caller programming error.
	ErrTypeMismatch = errors.New("evaluation context type mismatch")
)

// Context is a named key/value bag of evaluation parameters (user id,
// region, and so on). A Context created to wrap a block of work is owned by
// that scope; handing it to nested work goes through [MergedWith] or the
// ambient helpers, which copy rather than share.
type Context struct {
	values map[string]any
}

// New creates an empty evaluation context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// FromMap creates an evaluation context seeded with a copy of values.
func FromMap(values map[string]any) *Context {
	c := New()
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Put stores a value under key and returns the context for chaining.
func (c *Context) Put(key string, value any) *Context {
	c.values[key] = value
	return c
}

// Lookup returns the raw value stored under key.
func (c *Context) Lookup(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Contains reports whether key is present.
func (c *Context) Contains(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Keys returns the stored keys in sorted order.
func (c *Context) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the context.
func (c *Context) Clone() *Context {
	if c == nil {
		return New()
	}
	return FromMap(c.values)
}

// AsMap returns a copy of the stored key/value pairs.
func (c *Context) AsMap() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// MergedWith returns a new context holding c's entries overlaid with other's.
// Keys from other win on conflict. Neither input is mutated.
func (c *Context) MergedWith(other *Context) *Context {
	merged := c.Clone()
	if other != nil {
		for k, v := range other.values {
			merged.values[k] = v
		}
	}
	return merged
}

// Value reads key from c as a T. It returns [ErrKeyNotFound] when the key is
// absent and [ErrTypeMismatch] when the stored value is not a T.
func Value[T any](c *Context, key string) (T, error) {
	var zero T
	raw, ok := c.Lookup(key)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %T", ErrTypeMismatch, key, raw, zero)
	}
	return v, nil
}

// String reads key as a string.
func (c *Context) String(key string) (string, error) {
	return Value[string](c, key)
}

// Int reads key as an int.
func (c *Context) Int(key string) (int, error) {
	return Value[int](c, key)
}

// Bool reads key as a bool.
func (c *Context) Bool(key string) (bool, error) {
	return Value[bool](c, key)
}

// Float64 reads key as a float64.
func (c *Context) Float64(key string) (float64, error) {
	return Value[float64](c, key)
}
