package interp_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/interp"
	"github.com/azathrix/minipanda/lang/machine"
)

func num(f float64) machine.Value { return machine.Number(f) }
func str(s string) machine.Value  { return machine.String(s) }

func runSrc(t *testing.T, src string) machine.Value {
	t.Helper()
	i := interp.New()
	v, err := i.Run([]byte(src), "", false)
	require.NoError(t, err)
	return v
}

// The reference scenarios of the language surface, end to end through the
// façade with the standard library registered.
func TestScenarios(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want machine.Value
	}{
		{
			"arithmetic precedence",
			"return 2 + 3 * 4",
			num(14),
		},
		{
			"closure counter",
			`
func makeCounter(){ var c=0; return ()=> { c=c+1; return c } }
var f=makeCounter(); f(); f(); return f()
`,
			num(3),
		},
		{
			"inheritance dispatch",
			`
class Animal { Animal(n){this.name=n} func speak(){return this.name+" says hello"} }
class Dog : Animal { Dog(n,b){super.Animal(n); this.breed=b} func speak(){return this.name+" barks"} }
return Dog("Buddy","Lab").speak()
`,
			str("Buddy barks"),
		},
		{
			"try catch finally ordering",
			`
var x=0
try { throw 5 } catch(e) { x=e } finally { x=x+10 }
return x
`,
			num(15),
		},
		{
			"for in range with break",
			`
var sum=0
for i in range(10){ if i==5 break; sum=sum+i }
return sum
`,
			num(10),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, runSrc(t, c.src))
		})
	}
}

func TestCompileThenRunEqualsRun(t *testing.T) {
	src := `
func fib(n) { if n < 2 return n
return fib(n-1) + fib(n-2) }
return fib(10)
`
	i := interp.New()
	direct, err := i.Run([]byte(src), "", false)
	require.NoError(t, err)

	cs, err := i.Compile([]byte(src), "fib.panda")
	require.NoError(t, err)
	viaBytecode, err := interp.New().Run(cs.Bytecode, "", false)
	require.NoError(t, err)

	assert.Equal(t, direct, viaBytecode)
	assert.Equal(t, num(55), direct)
}

func TestCompileHash(t *testing.T) {
	i := interp.New()
	a, err := i.Compile([]byte("return 1"), "a.panda")
	require.NoError(t, err)
	b, err := i.Compile([]byte("return 1"), "b.panda")
	require.NoError(t, err)
	c, err := i.Compile([]byte("return 2"), "c.panda")
	require.NoError(t, err)

	assert.Len(t, a.Hash, 64)
	assert.Equal(t, a.Hash, b.Hash) // content hash, not file hash
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestEval(t *testing.T) {
	i := interp.New()

	v, err := i.Eval("2 + 3", nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, num(5), v)

	// extra bindings through a map environment
	v, err = i.Eval("a * b", map[string]machine.Value{"a": num(6), "b": num(7)}, "", false)
	require.NoError(t, err)
	assert.Equal(t, num(42), v)

	// multi-line expressions are fine
	v, err = i.Eval("1 +\n2", nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, num(3), v)
}

type oneVarProvider struct{}

func (oneVarProvider) GetVar(name string) (machine.Value, bool) {
	if name == "answer" {
		return num(42), true
	}
	return nil, false
}

func TestEvalWithProvider(t *testing.T) {
	i := interp.New()
	v, err := i.Eval("answer + 1", oneVarProvider{}, "", false)
	require.NoError(t, err)
	assert.Equal(t, num(43), v)
}

func TestNamedScopes(t *testing.T) {
	i := interp.New()

	_, err := i.Run([]byte("var x = 1"), "a", false)
	require.NoError(t, err)
	_, err = i.Run([]byte("var x = 2"), "b", false)
	require.NoError(t, err)

	va, err := i.Eval("x", nil, "a", false)
	require.NoError(t, err)
	vb, err := i.Eval("x", nil, "b", false)
	require.NoError(t, err)
	assert.Equal(t, num(1), va)
	assert.Equal(t, num(2), vb)

	// clearScope resets the scope's bindings
	_, err = i.Run([]byte("var y = 3"), "a", true)
	require.NoError(t, err)
	_, err = i.Eval("x", nil, "a", false)
	require.Error(t, err)
}

func TestCallGlobalFunction(t *testing.T) {
	i := interp.New()
	_, err := i.Run([]byte("func add(a, b) { return a + b }"), "", false)
	require.NoError(t, err)

	v, err := i.Call("add", num(2), num(3))
	require.NoError(t, err)
	assert.Equal(t, num(5), v)

	_, err = i.Call("nope")
	require.Error(t, err)
}

func TestCallWith(t *testing.T) {
	i := interp.New()
	_, err := i.Run([]byte("func scaled(x) { return x * factor }"), "", false)
	require.NoError(t, err)

	v, err := i.CallWith(map[string]machine.Value{"factor": num(10)}, "scaled", num(4))
	require.NoError(t, err)
	assert.Equal(t, num(40), v)

	// the one-shot binding does not leak into the root scope
	_, ok := i.GetGlobal("factor")
	assert.False(t, ok)
}

func TestGlobals(t *testing.T) {
	i := interp.New()
	i.SetGlobal("answer", num(42))

	v, err := i.Eval("answer", nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, num(42), v)

	got, ok := i.GetGlobal("answer")
	require.True(t, ok)
	assert.Equal(t, num(42), got)
}

func TestLoadModulePreSeeds(t *testing.T) {
	i := interp.New()
	i.Machine().Loader = nil

	require.NoError(t, i.LoadModule([]byte("export var PI = 3.14"), "math", "math.panda"))

	v, err := i.Run([]byte("import \"math\" as m\nreturn m.PI"), "", false)
	require.NoError(t, err)
	assert.Equal(t, num(3.14), v)

	// compiled bytecode pre-seeds too
	cs, err := i.Compile([]byte("export var E = 2.71"), "euler.panda")
	require.NoError(t, err)
	require.NoError(t, i.LoadModule(cs.Bytecode, "euler", ""))
	v, err = i.Run([]byte("import \"euler\" as e\nreturn e.E"), "", false)
	require.NoError(t, err)
	assert.Equal(t, num(2.71), v)
}

func TestRunFileWithImports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.panda"),
		[]byte("export var factor = 6\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.panda"),
		[]byte("import \"helper\" as h\nreturn h.factor * 7\n"), 0o600))

	i := interp.New()
	v, err := i.RunFile(filepath.Join(dir, "main.panda"))
	require.NoError(t, err)
	assert.Equal(t, num(42), v)
}

func TestDefaultLoaderRefusesEscapes(t *testing.T) {
	loader := machine.DefaultLoader(t.TempDir())
	b, _, err := loader("../secret")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, _, err = loader("/etc/passwd")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPrintGoesToStdout(t *testing.T) {
	i := interp.New()
	var out bytes.Buffer
	i.Machine().Stdout = &out

	_, err := i.Run([]byte("print(\"hello\", 1 + 1)"), "", false)
	require.NoError(t, err)
	assert.Equal(t, "hello 2\n", out.String())
}

func TestJSONRoundTripScript(t *testing.T) {
	src := `
var parsed = json.parse("\{\"b\": 1, \"a\": [true, null, 2.5]}")
return json.stringify(parsed)
`
	v := runSrc(t, src)
	// key order is preserved
	assert.Equal(t, str(`{"b":1,"a":[true,null,2.5]}`), v)
}

func TestStdlibThroughScripts(t *testing.T) {
	cases := []struct {
		src  string
		want machine.Value
	}{
		{"return len(\"abc\")", num(3)},
		{"return str(14)", str("14")},
		{"return num(\"2.5\")", num(2.5)},
		{"return type([1])", str("array")},
		{"var a = [1]\npush(a, 2, 3)\nreturn len(a)", num(3)},
		{"var a = [1, 2]\nreturn pop(a) + len(a)", num(3)},
		{"return join(split(\"a-b-c\", \"-\"), \"+\")", str("a+b+c")},
		{"return contains([1, 2], 2)", machine.True},
		{"return min(3, 1, 2)", num(1)},
		{"return max(3, 1, 2)", num(3)},
		{"return pow(2, 10)", num(1024)},
		{"return floor(2.7) + ceil(2.2)", num(5)},
		{"return keys({a: 1, b: 2})[1]", str("b")},
		{"return values({a: 1, b: 2})[0]", num(1)},
		{"return slice(\"hello\", 1, 3)", str("el")},
		{"return regex.match(\"^h.*o$\", \"hello\")", machine.True},
		{"return regex.replace(\"l+\", \"hello\", \"L\")", str("heLo")},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, runSrc(t, c.src), "source: %s", c.src)
	}
}

func TestAssertBuiltin(t *testing.T) {
	i := interp.New()
	_, err := i.Run([]byte("assert(1 == 1)"), "", false)
	require.NoError(t, err)

	_, err = i.Run([]byte("assert(1 == 2, \"math is broken\")"), "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "math is broken")
}
