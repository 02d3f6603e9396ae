package machine_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/compiler"
	"github.com/azathrix/minipanda/lang/machine"
)

func newMachine() *machine.Machine {
	m := machine.New()
	m.Loader = nil
	return m
}

func run(t *testing.T, src string) (machine.Value, error) {
	t.Helper()
	proto, err := machine.CompileSource([]byte(src), "test.panda")
	require.NoError(t, err)
	return newMachine().RunProto(proto, nil)
}

func runVal(t *testing.T, src string) machine.Value {
	t.Helper()
	v, err := run(t, src)
	require.NoError(t, err)
	return v
}

func num(f float64) machine.Value { return machine.Number(f) }
func str(s string) machine.Value  { return machine.String(s) }

func TestExprResults(t *testing.T) {
	cases := []struct {
		src  string
		want machine.Value
	}{
		{"return 2 + 3 * 4", num(14)},
		{"var x = 10\nreturn x % 3", num(1)},
		{"return -7 % 3", num(-1)}, // sign of the dividend
		{"return \"a\" + 1", str("a1")},
		{"return 1 + \"a\"", str("1a")},
		{"return \"x\" + \"y\"", str("xy")},
		{"return 7 & 3", num(3)},
		{"return 1 << 4", num(16)},
		{"return ~0", num(-1)},
		{"return 5 > 2", machine.True},
		{"return \"a\" < \"b\"", machine.True},
		{"return 1 == 1.0", machine.True},
		{"return null == null", machine.True},
		{"return null == 0", machine.False},
		{"return !null", machine.True},
		{"return !0", machine.True},
		{"return !\"\"", machine.False}, // empty string is truthy
		{"return true ? 1 : 2", num(1)},
		{"return false ? 1 : 2", num(2)},
		{"return null ?? 3", num(3)},
		{"return 0 ?? 3", num(0)},
		{"return false || 5", num(5)},
		{"return 2 && 3", num(3)},
		{"return 0 and 3", num(0)},
		{"return 1 or 2", num(1)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, runVal(t, c.src), "source: %s", c.src)
	}
}

func TestDivisionByZero(t *testing.T) {
	// division by zero yields infinity, not an error
	v := runVal(t, "var zero = 0\nreturn 1 / zero")
	n, ok := machine.AsNumber(v)
	require.True(t, ok)
	assert.True(t, math.IsInf(n, 1))

	v = runVal(t, "var zero = 0\nreturn -1 / zero")
	n, _ = machine.AsNumber(v)
	assert.True(t, math.IsInf(n, -1))
}

func TestNumberFormatting(t *testing.T) {
	assert.Equal(t, "14", machine.Number(14).String())
	assert.Equal(t, "-3", machine.Number(-3).String())
	assert.Equal(t, "2.5", machine.Number(2.5).String())
	assert.Equal(t, "1e+21", machine.Number(1e21).String())
	assert.Equal(t, str("v=14"), runVal(t, "var v = 14\nreturn \"v={v}\""))
}

func TestVariablesAndScopes(t *testing.T) {
	assert.Equal(t, num(3), runVal(t, "var a = 1\n{ var a = 2\n }\nreturn a + 2"))
	assert.Equal(t, num(2), runVal(t, "var a = 1\n{ a = 2 }\nreturn a"))
	assert.Equal(t, num(5), runVal(t, "func f() { var a = 5\nreturn a }\nreturn f()"))

	_, err := run(t, "return missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable missing")
}

func TestClosureCounter(t *testing.T) {
	src := `
func makeCounter(){ var c=0; return ()=> { c=c+1; return c } }
var f=makeCounter(); f(); f(); return f()
`
	assert.Equal(t, num(3), runVal(t, src))
}

func TestClosureCapturesVariableNotValue(t *testing.T) {
	// two closures over the same slot observe each other's writes, before
	// and after the frame unwinds
	src := `
func make() {
  var c = 0
  var inc = () => { c = c + 1; return c }
  var get = () => c
  return [inc, get]
}
var p = make()
p[0]()
p[0]()
return p[1]()
`
	assert.Equal(t, num(2), runVal(t, src))
}

func TestCounterIndependence(t *testing.T) {
	src := `
func makeCounter(){ var c=0; return ()=> { c=c+1; return c } }
var a = makeCounter()
var b = makeCounter()
a(); a(); b()
return a() * 10 + b()
`
	assert.Equal(t, num(32), runVal(t, src))
}

func TestFunctionDefaultsAndRest(t *testing.T) {
	assert.Equal(t, num(7), runVal(t, "func f(a, b = 5) { return a + b }\nreturn f(2)"))
	assert.Equal(t, num(6), runVal(t, "func f(a, b = 5) { return a + b }\nreturn f(2, 4)"))
	// an explicit null argument takes the default too
	assert.Equal(t, num(7), runVal(t, "func f(a, b = 5) { return a + b }\nreturn f(2, null)"))
	// missing arguments pad with null
	assert.Equal(t, machine.Null, runVal(t, "func f(a, b) { return b }\nreturn f(1)"))
	// rest parameter collects extras
	assert.Equal(t, num(3), runVal(t, "func f(a, ...rest) { return rest.length }\nreturn f(1, 2, 3, 4)"))
	assert.Equal(t, num(0), runVal(t, "func f(...rest) { return rest.length }\nreturn f()"))
	assert.Equal(t, num(4), runVal(t, "func f(a, ...rest) { return rest[1] }\nreturn f(1, 2, 4)"))
}

func TestArityMismatch(t *testing.T) {
	_, err := run(t, "func f(a) { return a }\nreturn f(1, 2)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 1 argument")
}

func TestNotCallable(t *testing.T) {
	_, err := run(t, "var x = 5\nreturn x()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not callable")
}

func TestRecursionStackOverflow(t *testing.T) {
	_, err := run(t, "func f() { return f() }\nreturn f()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack overflow")

	// bounded recursion up to a depth below the cap still works
	assert.Equal(t, num(40), runVal(t, "func f(n) { if n == 0 return 0\nreturn f(n - 1) + 1 }\nreturn f(40)"))
}

func TestWhileLoop(t *testing.T) {
	src := `
var sum = 0
var i = 0
while i < 10 {
  i = i + 1
  if i % 2 == 1 continue
  if i > 8 break
  sum = sum + i
}
return sum
`
	// 2 + 4 + 6 + 8 = 20
	assert.Equal(t, num(20), runVal(t, src))
}

func TestForInArray(t *testing.T) {
	assert.Equal(t, num(6), runVal(t, "var s = 0\nfor v in [1, 2, 3] s = s + v\nreturn s"))
	assert.Equal(t, str("a0b1c2"), runVal(t, `
var s = ""
for i, c in "abc" { s = s + c + i }
return s
`))
}

func TestForInObject(t *testing.T) {
	src := `
var keys = ""
var sum = 0
for k, v in {a: 1, b: 2, c: 3} {
  keys = keys + k
  sum = sum + v
}
return keys + sum
`
	// insertion order is preserved
	assert.Equal(t, str("abc6"), runVal(t, src))
}

func TestForInBreak(t *testing.T) {
	src := `
var sum = 0
for v in [0, 1, 2, 3, 4, 5, 6, 7, 8, 9] {
  if v == 5 break
  sum = sum + v
}
return sum
`
	assert.Equal(t, num(10), runVal(t, src))
}

func TestNestedForLoops(t *testing.T) {
	src := `
var s = 0
for a in [1, 2] {
  for b in [10, 20] {
    if b == 20 continue
    s = s + a * b
  }
}
return s
`
	assert.Equal(t, num(30), runVal(t, src))
}

func TestLoopStackBalance(t *testing.T) {
	// a loop with break/continue leaves the operand stack balanced: running
	// it many times in one script would overflow otherwise
	src := `
var total = 0
var round = 0
while round < 100 {
  round = round + 1
  for v in [1, 2, 3] {
    if v == 2 continue
    if v == 3 break
    total = total + v
  }
}
return total
`
	assert.Equal(t, num(100), runVal(t, src))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, num(5), runVal(t, "return \"hello\".length"))
	assert.Equal(t, str("e"), runVal(t, "return \"hello\"[1]"))
	assert.Equal(t, str("o"), runVal(t, "return \"hello\"[-1]"))
	assert.Equal(t, str("ab3"), runVal(t, "var n = 3\nreturn \"ab{n}\""))
	assert.Equal(t, str("sum=5!"), runVal(t, "var a=2\nvar b=3\nreturn \"sum={a + b}!\""))
	assert.Equal(t, str("{literal}"), runVal(t, `return "\{literal}"`))
}

func TestArrays(t *testing.T) {
	assert.Equal(t, num(3), runVal(t, "return [1, 2, 3].length"))
	assert.Equal(t, num(2), runVal(t, "var a = [1, 2, 3]\nreturn a[1]"))
	assert.Equal(t, num(3), runVal(t, "var a = [1, 2, 3]\nreturn a[-1]"))
	assert.Equal(t, num(9), runVal(t, "var a = [1, 2, 3]\na[0] = 9\nreturn a[0]"))

	_, err := run(t, "var a = [1]\nreturn a[5]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestObjects(t *testing.T) {
	assert.Equal(t, num(1), runVal(t, "var o = {a: 1, b: 2}\nreturn o.a"))
	assert.Equal(t, num(2), runVal(t, "var o = {a: 1}\no.b = 2\nreturn o[\"b\"]"))
	assert.Equal(t, machine.Null, runVal(t, "var o = {a: 1}\nreturn o.missing"))
	assert.Equal(t, num(5), runVal(t, "var o = {n: 1}\no.n += 4\nreturn o.n"))
}

func TestIncDec(t *testing.T) {
	assert.Equal(t, num(2), runVal(t, "var a = 1\na++\nreturn a"))
	assert.Equal(t, num(1), runVal(t, "var a = 1\nreturn a++"))
	assert.Equal(t, num(2), runVal(t, "var a = 1\nreturn ++a"))
	assert.Equal(t, num(0), runVal(t, "var a = 1\nreturn --a"))
	assert.Equal(t, num(2), runVal(t, "var o = {n: 1}\no.n++\nreturn o.n"))
	assert.Equal(t, num(1), runVal(t, "var o = {n: 1}\nreturn o.n++"))
	assert.Equal(t, num(2), runVal(t, "var o = {n: 1}\nreturn ++o.n"))
	assert.Equal(t, num(1), runVal(t, "var a = [1, 2]\nreturn a[0]++"))
	assert.Equal(t, num(2), runVal(t, "var a = [1, 2]\na[0]++\nreturn a[0]"))
	assert.Equal(t, num(2), runVal(t, "var a = [1, 2]\nreturn ++a[0]"))
}

func TestCompoundAssignment(t *testing.T) {
	assert.Equal(t, num(6), runVal(t, "var a = 2\na *= 3\nreturn a"))
	assert.Equal(t, num(1), runVal(t, "var a = 7\na %= 3\nreturn a"))
	assert.Equal(t, num(8), runVal(t, "var a = [2]\na[0] += 6\nreturn a[0]"))
}

func TestOptionalChaining(t *testing.T) {
	assert.Equal(t, machine.Null, runVal(t, "var o = null\nreturn o?.x"))
	assert.Equal(t, num(1), runVal(t, "var o = {x: 1}\nreturn o?.x"))
	assert.Equal(t, machine.Null, runVal(t, "var a = null\nreturn a?[0]"))
	assert.Equal(t, num(1), runVal(t, "var a = [1]\nreturn a?[0]"))
	assert.Equal(t, machine.Null, runVal(t, "var o = null\nreturn o?.m(1)"))
}

func TestInheritanceDispatch(t *testing.T) {
	src := `
class Animal { Animal(n){this.name=n} func speak(){return this.name+" says hello"} }
class Dog : Animal { Dog(n,b){super.Animal(n); this.breed=b} func speak(){return this.name+" barks"} }
return Dog("Buddy","Lab").speak()
`
	assert.Equal(t, str("Buddy barks"), runVal(t, src))
}

func TestInheritedMethod(t *testing.T) {
	src := `
class Animal { Animal(n){this.name=n} func speak(){return this.name+" says hello"} }
class Cat : Animal { }
return Cat().speak()
`
	// Cat's synthesized constructor forwards to Animal's with null padding
	assert.Equal(t, str("null says hello"), runVal(t, src))
}

func TestFieldInitializers(t *testing.T) {
	src := `
class Point {
  var x = 1
  var y = 2
  func sum() { return this.x + this.y }
}
return Point().sum()
`
	assert.Equal(t, num(3), runVal(t, src))
}

func TestStaticMembers(t *testing.T) {
	src := `
class Counter {
  static var count = 10
  static func bump() { Counter.count = Counter.count + 1
    return Counter.count }
}
Counter.bump()
return Counter.bump()
`
	assert.Equal(t, num(12), runVal(t, src))
}

func TestConstructorReturnsThis(t *testing.T) {
	src := `
class C { C() { this.v = 7
  return } }
return C().v
`
	assert.Equal(t, num(7), runVal(t, src))
}

func TestBoundMethod(t *testing.T) {
	src := `
class Greeter { Greeter(n){this.n=n} func hi(){return "hi "+this.n} }
var g = Greeter("bob")
var m = g.hi
return m()
`
	assert.Equal(t, str("hi bob"), runVal(t, src))
}

func TestLambdaCapturesThis(t *testing.T) {
	src := `
class Box {
  Box(v) { this.v = v }
  func getter() { return () => this.v }
}
return Box(9).getter()()
`
	assert.Equal(t, num(9), runVal(t, src))
}

func TestTryCatchFinallyOrdering(t *testing.T) {
	src := `
var x=0
try { throw 5 } catch(e) { x=e } finally { x=x+10 }
return x
`
	assert.Equal(t, num(15), runVal(t, src))
}

func TestFinallyRunsOnce(t *testing.T) {
	// no throw: finally exactly once
	assert.Equal(t, num(1), runVal(t, "var n=0\ntry { } finally { n=n+1 }\nreturn n"))
	// try throws, catch handles: finally exactly once
	assert.Equal(t, num(11), runVal(t, "var n=0\ntry { throw 1 } catch(e) { n=n+10 } finally { n=n+1 }\nreturn n"))
}

func TestFinallyRethrowsPending(t *testing.T) {
	src := `
var x = ""
try {
  try { throw "a" } finally { x = x + "f1" }
} catch(e) { x = x + e }
return x
`
	assert.Equal(t, str("f1a"), runVal(t, src))
}

func TestCatchRethrow(t *testing.T) {
	src := `
var log = ""
try {
  try { throw "boom" } catch(e) { log = log + "c1:" + e + " "; throw "again" } finally { log = log + "f1 " }
} catch(e) { log = log + "c2:" + e }
return log
`
	assert.Equal(t, str("c1:boom f1 c2:again"), runVal(t, src))
}

func TestUncaughtThrow(t *testing.T) {
	_, err := run(t, "throw \"kaput\"")
	require.Error(t, err)
	rte, ok := err.(*machine.RuntimeError)
	require.True(t, ok, "error type %T", err)
	assert.Contains(t, rte.Msg, "kaput")
	assert.Equal(t, machine.String("kaput"), rte.Thrown)
	require.NotEmpty(t, rte.Trace)
	assert.Equal(t, "test.panda", rte.Trace[0].File)
}

func TestThrowAcrossFrames(t *testing.T) {
	src := `
func inner() { throw "deep" }
func outer() { inner() }
var got = ""
try { outer() } catch(e) { got = e }
return got
`
	assert.Equal(t, str("deep"), runVal(t, src))
}

func TestRuntimeErrorIsCatchable(t *testing.T) {
	src := `
var got = ""
try { missing() } catch(e) { got = e }
return got
`
	v := runVal(t, src)
	s, ok := machine.AsString(v)
	require.True(t, ok)
	assert.Contains(t, s, "undefined variable missing")
}

func TestReturnThroughFinally(t *testing.T) {
	src := `
var log = 0
func f() { try { return 1 } finally { log = log + 1 } }
var r = f()
return r * 10 + log
`
	assert.Equal(t, num(11), runVal(t, src))
}

func TestBreakThroughFinally(t *testing.T) {
	src := `
var log = ""
for v in [1, 2, 3] {
  try {
    if v == 2 break
    log = log + v
  } finally { log = log + "f" }
}
return log
`
	assert.Equal(t, str("1ff"), runVal(t, src))
}

func TestStackTraceOrder(t *testing.T) {
	src := `
func inner() { throw "x" }
func outer() { inner() }
outer()
`
	_, err := run(t, src)
	require.Error(t, err)
	rte, ok := err.(*machine.RuntimeError)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(rte.Trace), 3)
	assert.Equal(t, "inner", rte.Trace[0].Function)
	assert.Equal(t, "outer", rte.Trace[1].Function)
	assert.Equal(t, "<script>", rte.Trace[2].Function)
}

func TestEnumValues(t *testing.T) {
	assert.Equal(t, num(0), runVal(t, "enum E { A, B, C }\nreturn E.A"))
	assert.Equal(t, num(6), runVal(t, "enum E { A, B = 5, C }\nreturn E.C"))
	assert.Equal(t, str("x"), runVal(t, "enum E { A, B = \"x\", C }\nreturn E.B"))
	assert.Equal(t, num(1), runVal(t, "enum E { A, B = \"x\", C }\nreturn E.C"))
}

func TestTooManyNestedTry(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("try {\n")
	}
	sb.WriteString("var x = 1\n")
	for i := 0; i < 20; i++ {
		sb.WriteString("} finally { }\n")
	}
	_, err := run(t, sb.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many nested try")
}

func TestMachineReusableAfterError(t *testing.T) {
	m := newMachine()
	proto, err := machine.CompileSource([]byte("throw \"boom\""), "a.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.Error(t, err)

	proto, err = machine.CompileSource([]byte("return 42"), "b.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, num(42), v)
}

func TestNativeFunctions(t *testing.T) {
	m := newMachine()
	m.Root().Define("twice", &machine.NativeFunc{
		Name: "twice",
		Fn: func(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
			n, _ := machine.AsNumber(args[0])
			return machine.Number(n * 2), nil
		},
	})
	proto, err := machine.CompileSource([]byte("return twice(21)"), "test.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, num(42), v)
}

func TestNativeErrorIsCatchable(t *testing.T) {
	m := newMachine()
	m.Root().Define("fail", &machine.NativeFunc{
		Name: "fail",
		Fn: func(_ *machine.Machine, _ []machine.Value) (machine.Value, error) {
			return nil, fmt.Errorf("native kaput")
		},
	})
	proto, err := machine.CompileSource([]byte("var got = \"\"\ntry { fail() } catch(e) { got = e }\nreturn got"), "test.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	s, _ := machine.AsString(v)
	assert.Contains(t, s, "native kaput")
}

func TestGlobalDeclarations(t *testing.T) {
	m := newMachine()
	scope := machine.NewEnvironment(m.Root())

	proto, err := machine.CompileSource([]byte("var local = 1\nglobal var shared = 2"), "a.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, scope)
	require.NoError(t, err)

	// the scoped binding is not in the root, the global one is
	_, ok := m.Root().Get("local")
	assert.False(t, ok)
	v, ok := m.Root().Get("shared")
	require.True(t, ok)
	assert.Equal(t, num(2), v)
	v, ok = scope.Get("local")
	require.True(t, ok)
	assert.Equal(t, num(1), v)
}

func TestBytecodeRoundTripExecution(t *testing.T) {
	src := `
func fib(n) { if n < 2 return n
  return fib(n-1) + fib(n-2) }
return fib(12)
`
	proto, err := machine.CompileSource([]byte(src), "test.panda")
	require.NoError(t, err)
	direct, err := newMachine().RunProto(proto, nil)
	require.NoError(t, err)

	b, err := compiler.Serialize(proto)
	require.NoError(t, err)
	decoded, err := compiler.Deserialize(b)
	require.NoError(t, err)
	viaBytes, err := newMachine().RunProto(decoded, nil)
	require.NoError(t, err)

	assert.Equal(t, direct, viaBytes)
	assert.Equal(t, num(144), direct)
}

func TestMaxSteps(t *testing.T) {
	m := newMachine()
	m.MaxSteps = 1000
	proto, err := machine.CompileSource([]byte("while true { }"), "spin.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget exceeded")
}

// ---- modules ----

func mapLoader(sources map[string]string) machine.LoadFunc {
	return func(path string) ([]byte, string, error) {
		src, ok := sources[path]
		if !ok {
			return nil, "", nil
		}
		return []byte(src), path + ".panda", nil
	}
}

func TestModuleExports(t *testing.T) {
	m := newMachine()
	m.Loader = mapLoader(map[string]string{
		"math": "export var PI=3.14159\nvar SECRET=42",
	})

	proto, err := machine.CompileSource([]byte("import \"math\" as mm\nreturn mm.PI"), "main.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, num(3.14159), v)

	proto, err = machine.CompileSource([]byte("import \"math\" as mm\nreturn mm.SECRET"), "main2.panda")
	require.NoError(t, err)
	v, err = m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, machine.Null, v)
}

func TestModuleNoExportsExposesAll(t *testing.T) {
	m := newMachine()
	m.Loader = mapLoader(map[string]string{
		"util": "var answer = 42\nfunc double(x) { return x * 2 }",
	})
	proto, err := machine.CompileSource([]byte("import \"util\"\nreturn util.double(util.answer)"), "main.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, num(84), v)
}

func TestModuleBodyRunsOnce(t *testing.T) {
	m := newMachine()
	count := 0
	m.Root().Define("bump", &machine.NativeFunc{
		Name: "bump",
		Fn: func(_ *machine.Machine, _ []machine.Value) (machine.Value, error) {
			count++
			return machine.Null, nil
		},
	})
	m.Loader = mapLoader(map[string]string{
		"mod": "bump()\nexport var v = 1",
	})
	src := "import \"mod\" as a\nimport \"mod\" as b\nreturn a.v + b.v"
	proto, err := machine.CompileSource([]byte(src), "main.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, num(2), v)
	assert.Equal(t, 1, count)

	// clearing the cache re-executes the body
	m.ClearModuleCache()
	proto, err = machine.CompileSource([]byte("import \"mod\" as c\nreturn c.v"), "main2.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCircularImport(t *testing.T) {
	m := newMachine()
	m.Loader = mapLoader(map[string]string{
		"a": "import \"b\"\nexport var va = 1",
		"b": "import \"a\"\nexport var vb = 2",
	})
	proto, err := machine.CompileSource([]byte("import \"a\"\nreturn 0"), "main.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular import")
}

func TestModuleNotFound(t *testing.T) {
	m := newMachine()
	m.Loader = mapLoader(nil)
	proto, err := machine.CompileSource([]byte("import \"nope\""), "main.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGlobalImport(t *testing.T) {
	m := newMachine()
	m.Loader = mapLoader(map[string]string{
		"cfg": "export var mode = \"fast\"",
	})
	proto, err := machine.CompileSource([]byte("global import \"cfg\"\nreturn 0"), "main.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.NoError(t, err)

	v, ok := m.Root().Get("cfg")
	require.True(t, ok)
	mod, ok := v.(*machine.Module)
	require.True(t, ok)
	got, ok := mod.Lookup("mode")
	require.True(t, ok)
	assert.Equal(t, str("fast"), got)
}

func TestImportPathDots(t *testing.T) {
	m := newMachine()
	m.Loader = mapLoader(map[string]string{
		"util/strings": "export var sep = \"-\"",
	})
	proto, err := machine.CompileSource([]byte("import \"util.strings\" as s\nreturn s.sep"), "main.panda")
	require.NoError(t, err)
	v, err := m.RunProto(proto, nil)
	require.NoError(t, err)
	assert.Equal(t, str("-"), v)
}

func TestRegisterScript(t *testing.T) {
	m := newMachine()
	proto, err := machine.CompileSource([]byte("export var seeded = 99"), "pre.panda")
	require.NoError(t, err)
	m.RegisterScript("pre", proto)

	main, err := machine.CompileSource([]byte("import \"pre\" as p\nreturn p.seeded"), "main.panda")
	require.NoError(t, err)
	v, err := m.RunProto(main, nil)
	require.NoError(t, err)
	assert.Equal(t, num(99), v)
}

// ---- debugger hook ----

type recordingDebugger struct {
	lines []int
}

func (d *recordingDebugger) ShouldStop(_ string, line, _ int) (bool, string) {
	d.lines = append(d.lines, line)
	return false, ""
}
func (d *recordingDebugger) OnStopped(_, _ string, _ int) {}
func (d *recordingDebugger) IsPaused() bool               { return false }

func TestDebuggerLineTransitions(t *testing.T) {
	m := newMachine()
	dbg := &recordingDebugger{}
	m.Debugger = dbg

	proto, err := machine.CompileSource([]byte("var a = 1\nvar b = 2\nreturn a + b"), "dbg.panda")
	require.NoError(t, err)
	_, err = m.RunProto(proto, nil)
	require.NoError(t, err)

	require.NotEmpty(t, dbg.lines)
	assert.Contains(t, dbg.lines, 1)
	assert.Contains(t, dbg.lines, 2)
	assert.Contains(t, dbg.lines, 3)
}
