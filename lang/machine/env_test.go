package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/machine"
)

func TestEnvironmentGetSetDefine(t *testing.T) {
	root := machine.NewEnvironment(nil)
	child := machine.NewEnvironment(root)

	root.Define("a", num(1))

	// Get walks the parent chain
	v, ok := child.Get("a")
	require.True(t, ok)
	assert.Equal(t, num(1), v)

	// Set updates the existing binding where it lives
	child.Set("a", num(2))
	v, _ = root.Get("a")
	assert.Equal(t, num(2), v)
	assert.False(t, child.Has("a"))

	// Set with no binding anywhere defines in the receiver scope
	child.Set("b", num(3))
	assert.True(t, child.Has("b"))
	_, ok = root.Get("b")
	assert.False(t, ok)

	// Define always writes locally, shadowing the parent
	child.Define("a", num(9))
	v, _ = child.Get("a")
	assert.Equal(t, num(9), v)
	v, _ = root.Get("a")
	assert.Equal(t, num(2), v)
}

type mapProvider map[string]machine.Value

func (p mapProvider) GetVar(name string) (machine.Value, bool) {
	v, ok := p[name]
	return v, ok
}

func TestEnvironmentProvider(t *testing.T) {
	root := machine.NewEnvironment(nil)
	root.Define("a", num(1))
	env := machine.NewEnvironment(root).WithProvider(mapProvider{"p": num(7), "a": num(99)})

	// provider is consulted after the local map, before the parent
	v, ok := env.Get("p")
	require.True(t, ok)
	assert.Equal(t, num(7), v)

	v, _ = env.Get("a") // provider shadows the parent
	assert.Equal(t, num(99), v)

	env.Define("p", num(8)) // local map shadows the provider
	v, _ = env.Get("p")
	assert.Equal(t, num(8), v)
}

func TestEnvironmentClear(t *testing.T) {
	root := machine.NewEnvironment(nil)
	root.Define("keep", num(1))
	env := machine.NewEnvironment(root)
	env.Define("drop", num(2))

	env.Clear()
	_, ok := env.Get("drop")
	assert.False(t, ok)
	// the parent is untouched
	v, ok := env.Get("keep")
	require.True(t, ok)
	assert.Equal(t, num(1), v)
}

func TestEnvironmentNames(t *testing.T) {
	env := machine.NewEnvironment(nil)
	env.Define("x", num(1))
	env.Define("y", num(2))
	assert.ElementsMatch(t, []string{"x", "y"}, env.Names())
}
