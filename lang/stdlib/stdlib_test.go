package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/machine"
)

func callNative(t *testing.T, m *machine.Machine, name string, args ...machine.Value) (machine.Value, error) {
	t.Helper()
	v, ok := m.Root().Get(name)
	require.True(t, ok, "builtin %s not registered", name)
	fn, ok := v.(*machine.NativeFunc)
	require.True(t, ok, "builtin %s is not a native function", name)
	return fn.Fn(m, args)
}

func TestRegisterInstallsEverything(t *testing.T) {
	m := machine.New()
	Register(m)

	for name := range builtins {
		_, ok := m.Root().Get(name)
		assert.True(t, ok, "missing builtin %s", name)
	}
	for _, name := range []string{"date", "json", "regex", "globals"} {
		_, ok := m.Root().Get(name)
		assert.True(t, ok, "missing sub-object %s", name)
	}
}

func TestConversions(t *testing.T) {
	m := machine.New()
	Register(m)

	v, err := callNative(t, m, "str", machine.Number(2.5))
	require.NoError(t, err)
	assert.Equal(t, machine.String("2.5"), v)

	v, err = callNative(t, m, "num", machine.String(" 42 "))
	require.NoError(t, err)
	assert.Equal(t, machine.Number(42), v)

	v, err = callNative(t, m, "num", machine.String("nope"))
	require.NoError(t, err)
	assert.Equal(t, machine.Null, v)

	v, err = callNative(t, m, "bool", machine.Number(0))
	require.NoError(t, err)
	assert.Equal(t, machine.False, v)

	_, err = callNative(t, m, "str")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 1 argument")
}

func TestRangeBuiltin(t *testing.T) {
	m := machine.New()
	Register(m)

	v, err := callNative(t, m, "range", machine.Number(5))
	require.NoError(t, err)
	r, ok := v.(*machine.Range)
	require.True(t, ok)
	assert.Equal(t, 5, r.Len())

	v, err = callNative(t, m, "range", machine.Number(2), machine.Number(10), machine.Number(2))
	require.NoError(t, err)
	r = v.(*machine.Range)
	assert.Equal(t, 4, r.Len())

	_, err = callNative(t, m, "range", machine.Number(0), machine.Number(1), machine.Number(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step cannot be zero")
}

func TestMinMaxSpreadArray(t *testing.T) {
	m := machine.New()
	Register(m)

	arr := machine.NewArray([]machine.Value{machine.Number(4), machine.Number(1), machine.Number(3)})
	v, err := callNative(t, m, "min", arr)
	require.NoError(t, err)
	assert.Equal(t, machine.Number(1), v)
	v, err = callNative(t, m, "max", arr)
	require.NoError(t, err)
	assert.Equal(t, machine.Number(4), v)
}

func TestRandomIntBounds(t *testing.T) {
	m := machine.New()
	Register(m)

	for i := 0; i < 50; i++ {
		v, err := callNative(t, m, "randomInt", machine.Number(3), machine.Number(5))
		require.NoError(t, err)
		n, _ := machine.AsNumber(v)
		assert.GreaterOrEqual(t, n, 3.0)
		assert.LessOrEqual(t, n, 5.0)
	}

	_, err := callNative(t, m, "randomInt", machine.Number(5), machine.Number(3))
	require.Error(t, err)
}

func TestJSONParse(t *testing.T) {
	m := machine.New()

	v, err := jsonParse(m, []machine.Value{machine.String(`{"a": 1, "b": [true, "x"], "c": null}`)})
	require.NoError(t, err)
	obj, ok := v.(*machine.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, obj.Keys())

	b, _ := obj.Get("b")
	arr, ok := b.(*machine.Array)
	require.True(t, ok)
	assert.Equal(t, machine.True, arr.Elems[0])
	assert.Equal(t, machine.String("x"), arr.Elems[1])

	c, _ := obj.Get("c")
	assert.Equal(t, machine.Null, c)

	_, err = jsonParse(m, []machine.Value{machine.String(`{"a": }`)})
	require.Error(t, err)

	_, err = jsonParse(m, []machine.Value{machine.String(`1 2`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing")
}

func TestJSONStringifyCanonical(t *testing.T) {
	m := machine.New()

	// parse -> stringify is canonical: stable key order, no whitespace
	in := `{ "z" : 1,   "a": [ 1,2 ] }`
	v, err := jsonParse(m, []machine.Value{machine.String(in)})
	require.NoError(t, err)
	out, err := jsonStringify(m, []machine.Value{v})
	require.NoError(t, err)
	assert.Equal(t, machine.String(`{"z":1,"a":[1,2]}`), out)

	// stringify -> parse -> stringify is idempotent
	v2, err := jsonParse(m, []machine.Value{out})
	require.NoError(t, err)
	out2, err := jsonStringify(m, []machine.Value{v2})
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestJSONStringifyIndent(t *testing.T) {
	m := machine.New()
	obj := machine.NewObject()
	obj.Set("a", machine.Number(1))
	out, err := jsonStringify(m, []machine.Value{obj, machine.Number(2)})
	require.NoError(t, err)
	assert.Equal(t, machine.String("{\n  \"a\": 1\n}"), out)
}

func TestDateParts(t *testing.T) {
	m := machine.New()
	Register(m)

	// the fixed epoch is 2021-03-04T05:06:07Z, whose year is 2021 in local
	// time; the time built-in is checked to return a number
	const ms = 1614834367000
	v, err := callNative(t, m, "time")
	require.NoError(t, err)
	_, ok := machine.AsNumber(v)
	assert.True(t, ok)

	parts, _ := m.Root().Get("date")
	obj := parts.(*machine.Object)
	yearFn, _ := obj.Get("year")
	y, err := yearFn.(*machine.NativeFunc).Fn(m, []machine.Value{machine.Number(ms)})
	require.NoError(t, err)
	n, _ := machine.AsNumber(y)
	assert.InDelta(t, 2021, n, 1) // timezone-dependent around new year only
}

func TestRegexErrors(t *testing.T) {
	m := machine.New()
	_, err := regexMatch(m, []machine.Value{machine.String("("), machine.String("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")

	v, err := regexFind(m, []machine.Value{machine.String("z+"), machine.String("abc")})
	require.NoError(t, err)
	assert.Equal(t, machine.Null, v)
}

func TestSliceClamping(t *testing.T) {
	m := machine.New()
	v, err := biSlice(m, []machine.Value{machine.String("hello"), machine.Number(-3)})
	require.NoError(t, err)
	assert.Equal(t, machine.String("llo"), v)

	v, err = biSlice(m, []machine.Value{machine.String("hi"), machine.Number(0), machine.Number(99)})
	require.NoError(t, err)
	assert.Equal(t, machine.String("hi"), v)
}
