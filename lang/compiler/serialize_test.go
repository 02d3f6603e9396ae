package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/compiler"
)

const roundTripSrc = `
export var PI = 3.14159
var greeting = "hello"
enum Color { Red, Green = 5, Blue }

class Animal {
  Animal(n) { this.name = n }
  func speak() { return this.name + " says hi" }
}

func makeAdder(n) {
  return (x) => x + n
}

func classify(v, fallback = "none", ...rest) {
  if v == null return fallback
  for i in rest {
    if i == v break
  }
  try { throw v } catch(e) { return e } finally { }
}
`

func TestSerializeRoundTrip(t *testing.T) {
	proto := compile(t, roundTripSrc)

	b, err := compiler.Serialize(proto)
	require.NoError(t, err)
	require.True(t, compiler.IsCompiled(b))

	decoded, err := compiler.Deserialize(b)
	require.NoError(t, err)

	assert.Equal(t, proto.Name, decoded.Name)
	assert.Equal(t, proto.Arity, decoded.Arity)
	assert.Equal(t, proto.Chunk.Code, decoded.Chunk.Code)
	assert.Equal(t, proto.Chunk.Exports, decoded.Chunk.Exports)
	assert.Equal(t, proto.Locals, decoded.Locals)

	// serialize -> deserialize -> serialize is byte-identical
	b2, err := compiler.Serialize(decoded)
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}

func TestSerializePreservesLineTable(t *testing.T) {
	proto := compile(t, "var a = 1\nvar b = 2\nvar c = 3\n")
	b, err := compiler.Serialize(proto)
	require.NoError(t, err)
	decoded, err := compiler.Deserialize(b)
	require.NoError(t, err)

	for pc := 0; pc < len(proto.Chunk.Code); pc++ {
		require.Equal(t, proto.Chunk.Line(pc), decoded.Chunk.Line(pc), "line at pc %d", pc)
	}
}

func TestSerializeNestedPrototypes(t *testing.T) {
	proto := compile(t, "func outer() { var c = 0\nreturn () => c }\n")
	b, err := compiler.Serialize(proto)
	require.NoError(t, err)
	decoded, err := compiler.Deserialize(b)
	require.NoError(t, err)

	var found *compiler.FuncProto
	for _, c := range decoded.Chunk.Constants {
		if fp, ok := c.(*compiler.FuncProto); ok {
			found = fp
		}
	}
	require.NotNil(t, found, "nested prototype not preserved")
	assert.Equal(t, "outer", found.Name)
}

func TestDeserializeErrors(t *testing.T) {
	proto := compile(t, "return 1\n")
	good, err := compiler.Serialize(proto)
	require.NoError(t, err)

	// bad magic
	bad := append([]byte("XXXX"), good[4:]...)
	_, err = compiler.Deserialize(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")

	// unsupported version
	bad = append([]byte(nil), good...)
	bad[4] = 99
	_, err = compiler.Deserialize(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported bytecode version")

	// truncated payload
	_, err = compiler.Deserialize(good[:len(good)-3])
	require.Error(t, err)

	// trailing data
	_, err = compiler.Deserialize(append(append([]byte(nil), good...), 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestIsCompiled(t *testing.T) {
	assert.True(t, compiler.IsCompiled([]byte("MPBC\x01rest")))
	assert.False(t, compiler.IsCompiled([]byte("var x = 1")))
	assert.False(t, compiler.IsCompiled([]byte("MP")))
}
