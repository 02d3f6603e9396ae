package machine

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// An Array is an ordered, growable sequence of values.
type Array struct {
	Elems []Value
}

var _ Value = (*Array)(nil)

// NewArray creates an array owning the given elements.
func NewArray(elems []Value) *Array { return &Array{Elems: elems} }

func (a *Array) String() string { return fmt.Sprintf("array(%d)", len(a.Elems)) }
func (a *Array) Type() string   { return "array" }
func (a *Array) Len() int       { return len(a.Elems) }

// index normalizes a possibly negative index; ok is false when out of range.
func (a *Array) index(i float64) (int, bool) {
	n := int(i)
	if n < 0 {
		n += len(a.Elems)
	}
	return n, n >= 0 && n < len(a.Elems)
}

// An Object is an insertion-preserving mapping of string keys to values. The
// entries slice preserves insertion order; the swiss index maps each key to
// its entry position.
type Object struct {
	entries []objEntry
	index   *swiss.Map[string, int]
}

type objEntry struct {
	key string
	val Value
}

var _ Value = (*Object)(nil)

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{index: swiss.NewMap[string, int](4)}
}

func (o *Object) String() string { return fmt.Sprintf("object(%d)", len(o.entries)) }
func (o *Object) Type() string   { return "object" }
func (o *Object) Len() int       { return len(o.entries) }

// Get returns the value for key, reporting whether it exists.
func (o *Object) Get(key string) (Value, bool) {
	i, ok := o.index.Get(key)
	if !ok {
		return nil, false
	}
	return o.entries[i].val, true
}

// Set updates an existing key or appends a new one, preserving insertion
// order.
func (o *Object) Set(key string, v Value) {
	if i, ok := o.index.Get(key); ok {
		o.entries[i].val = v
		return
	}
	o.index.Put(key, len(o.entries))
	o.entries = append(o.entries, objEntry{key: key, val: v})
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.entries))
	for i, e := range o.entries {
		keys[i] = e.key
	}
	return keys
}

// Values returns the values in insertion order.
func (o *Object) Values() []Value {
	vals := make([]Value, len(o.entries))
	for i, e := range o.entries {
		vals[i] = e.val
	}
	return vals
}
