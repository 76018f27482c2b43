package xmldict

import (
	"bytes"
	"encoding/json"
)

// Container is an insertion-ordered key→value mapping representing one XML
// element: attribute keys (prefixed), child tag names, and the reserved text
// and comment keys. Values are scalars (string, bool, nil), nested
// *Container, or []any for repeated siblings.
type Container struct {
	keys   []string
	values map[string]any
}

// NewContainer returns an empty ordered container.
func NewContainer() *Container {
	return &Container{values: make(map[string]any)}
}

// Set stores v under key, appending the key to the order on first use.
func (c *Container) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Get returns the value stored under key.
func (c *Container) Get(key string) (any, bool) {
	if c == nil || c.values == nil {
		return nil, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Delete removes key and its value, preserving the order of remaining keys.
func (c *Container) Delete(key string) {
	if c == nil || c.values == nil {
		return
	}
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice is shared; callers must
// not modify it.
func (c *Container) Keys() []string {
	if c == nil {
		return nil
	}
	return c.keys
}

// Len reports the number of keys.
func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Walk invokes fn for each (key, value) pair in insertion order until fn
// returns false.
func (c *Container) Walk(fn func(key string, value any) bool) {
	if c == nil || fn == nil {
		return
	}
	for _, k := range c.keys {
		if !fn(k, c.values[k]) {
			return
		}
	}
}

// Equal reports deep equality with another container, including key order.
func (c *Container) Equal(other *Container) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i, k := range c.Keys() {
		if other.Keys()[i] != k {
			return false
		}
		a, _ := c.Get(k)
		b, _ := other.Get(k)
		if !valueEqual(a, b) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case *Container:
		bv, ok := b.(*Container)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// marshalNoEscape renders v as JSON without the default HTML escaping, so
// markup characters in document text come through literally.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	// Encode appends a newline
	return out[:len(out)-1], nil
}

// MarshalJSON renders the container as a JSON object in insertion order.
func (c *Container) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		v, _ := c.Get(k)
		body, err := marshalNoEscape(v)
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CDATA marks a scalar the encoder must emit as a CDATA section instead of
// escaped text. Decode never produces it.
type CDATA string

// MarshalJSON renders CDATA as a plain JSON string.
func (c CDATA) MarshalJSON() ([]byte, error) {
	return marshalNoEscape(string(c))
}
