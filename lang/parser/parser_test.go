package parser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/parser"
)

func parseDump(t *testing.T, src string) string {
	t.Helper()
	prog, err := parser.Parse([]byte(src), "test.panda")
	require.NoError(t, err)
	var sb strings.Builder
	ast.Print(&sb, prog)
	return sb.String()
}

func TestParseVarAndBinary(t *testing.T) {
	got := parseDump(t, "var x = 1 + 2 * 3\n")
	want := `var x
  binary +
    1
    binary *
      2
      3
`
	assert.Equal(t, want, got)
}

func TestParsePrecedence(t *testing.T) {
	// ?? binds between || and &&, shifts between relational and additive
	got := parseDump(t, "return a || b ?? c && d\n")
	want := `return
  logical ||
    ident a
    logical ??
      ident b
      logical &&
        ident c
        ident d
`
	assert.Equal(t, want, got)

	got = parseDump(t, "return a < b << c + d\n")
	want = `return
  binary <
    ident a
    binary <<
      ident b
      binary +
        ident c
        ident d
`
	assert.Equal(t, want, got)
}

func TestParseAndOrKeywords(t *testing.T) {
	got := parseDump(t, "return a and b or c\n")
	want := `return
  logical ||
    logical &&
      ident a
      ident b
    ident c
`
	assert.Equal(t, want, got)
}

func TestParseTernaryAssign(t *testing.T) {
	got := parseDump(t, "x = c ? a : b\n")
	want := `expr
  assign =
    ident x
    ternary
      ident c
      ident a
      ident b
`
	assert.Equal(t, want, got)
}

func TestParseLambda(t *testing.T) {
	got := parseDump(t, "var f = (a, b=2) => a + b\n")
	want := `var f
  lambda(a, b=...)
    return
      binary +
        ident a
        ident b
`
	assert.Equal(t, want, got)
}

func TestParseLambdaDisambiguation(t *testing.T) {
	// empty parameter list
	got := parseDump(t, "var f = () => 1\n")
	assert.Contains(t, got, "lambda()")

	// rest parameter
	got = parseDump(t, "var f = (...rest) => rest\n")
	assert.Contains(t, got, "lambda(...rest)")

	// default value containing nested parens
	got = parseDump(t, "var f = (a = g(1, (2))) => a\n")
	assert.Contains(t, got, "lambda(a=...)")

	// arrow on the next line
	got = parseDump(t, "var f = (a)\n  => a\n")
	assert.Contains(t, got, "lambda(a)")

	// grouped expression, not a lambda
	got = parseDump(t, "var g = (a)\n")
	assert.Contains(t, got, "ident a")
	assert.NotContains(t, got, "lambda")

	// a call followed by a grouped expression stays a call
	got = parseDump(t, "f(a, b)\n")
	assert.Contains(t, got, "call")
}

func TestParseClass(t *testing.T) {
	src := `class Dog : Animal {
  var breed = "lab"
  static var count = 0
  Dog(n, b) { super.Animal(n); this.breed = b }
  func speak() { return this.name + " barks" }
  static func total() { return Dog.count }
}
`
	got := parseDump(t, src)
	assert.Contains(t, got, "class Dog : Animal")
	assert.Contains(t, got, "field breed")
	assert.Contains(t, got, "static field count")
	assert.Contains(t, got, "method Dog(n, b)")
	assert.Contains(t, got, "method speak()")
	assert.Contains(t, got, "static method total()")
	assert.Contains(t, got, "super.Animal")
}

func TestParseForIn(t *testing.T) {
	got := parseDump(t, "for k, v in obj { x = v }\n")
	assert.Contains(t, got, "for k, v in")

	got = parseDump(t, "for i in items x = i\n")
	assert.Contains(t, got, "for i in")
}

func TestParseTryCatchFinally(t *testing.T) {
	got := parseDump(t, "try { f() } catch(e) { g(e) } finally { h() }\n")
	assert.Contains(t, got, "try")
	assert.Contains(t, got, "catch e")
	assert.Contains(t, got, "finally")

	got = parseDump(t, "try { f() } finally { h() }\n")
	assert.Contains(t, got, "finally")
	assert.NotContains(t, got, "catch")
}

func TestParseEnum(t *testing.T) {
	got := parseDump(t, "enum E { A, B = 5, C, D = \"x\" }\n")
	assert.Contains(t, got, "enum E")
	assert.Contains(t, got, "member A")
	assert.Contains(t, got, "member B")
	assert.Contains(t, got, "member D")
}

func TestParseImport(t *testing.T) {
	got := parseDump(t, "import \"util.math\" as m\n")
	assert.Contains(t, got, `import "util.math" as m`)

	got = parseDump(t, "global import \"util\"\n")
	assert.Contains(t, got, `import "util" global`)
}

func TestParseGlobalExportPrefixes(t *testing.T) {
	got := parseDump(t, "global var x = 1\nexport func f() { }\n")
	assert.Contains(t, got, "var global x")
	assert.Contains(t, got, "func export f()")
}

func TestParseStatementTermination(t *testing.T) {
	// semicolons, newlines and closing-brace lookahead all terminate
	got := parseDump(t, "var a = 1; var b = 2\nif c { var d = 3 }")
	assert.Contains(t, got, "var a")
	assert.Contains(t, got, "var b")
	assert.Contains(t, got, "var d")
}

func TestParseInterpolation(t *testing.T) {
	got := parseDump(t, "return \"sum={a + b}!\"\n")
	want := `return
  interp
    "sum="
    binary +
      ident a
      ident b
    "!"
`
	assert.Equal(t, want, got)
}

func TestParseOptionalChaining(t *testing.T) {
	got := parseDump(t, "return a?.b?[0]\n")
	assert.Contains(t, got, "prop ?.b")
	assert.Contains(t, got, "index ?[]")
}

func TestParsePostfix(t *testing.T) {
	got := parseDump(t, "a++\n--b\n")
	assert.Contains(t, got, "postfix ++")
	assert.Contains(t, got, "unary --")
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src      string
		contains string
	}{
		{"var f = (a=1, b) => a\n", "non-default parameter"},
		{"1 = 2\n", "invalid assignment target"},
		{"a?.b = 2\n", "invalid assignment target"},
		{"try { }\n", "try requires a catch or finally"},
		{"var 1 = 2\n", "expected identifier"},
		{"global return\n", "expected declaration after global"},
		{"class C { func 1() {} }\n", "expected identifier"},
		{"class C { D() {} }\n", "constructor must be named C"},
		{"enum E { A = b }\n", "expected number or string"},
		{"return )\n", "unexpected"},
	}
	for _, c := range cases {
		_, err := parser.Parse([]byte(c.src), "test.panda")
		require.Error(t, err, "source %q", c.src)
		assert.Contains(t, err.Error(), c.contains, "source %q", c.src)
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := parser.Parse([]byte("var x = 1\nvar = 2\n"), "test.panda")
	require.Error(t, err)
	perr, ok := err.(*parser.Error)
	require.True(t, ok, "error type %T", err)
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, "test.panda", perr.File)
}
