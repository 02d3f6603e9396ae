package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/lang/token"
)

func scanTypes(t *testing.T, src string) []token.Type {
	t.Helper()
	toks, err := Scan([]byte(src), "test.panda")
	require.NoError(t, err)
	types := make([]token.Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestScanBasic(t *testing.T) {
	types := scanTypes(t, "var x = 1 + 2.5\n")
	want := []token.Type{
		token.VAR, token.IDENT, token.EQ, token.NUMBER, token.PLUS,
		token.NUMBER, token.NEWLINE, token.EOF,
	}
	assert.Equal(t, want, types)
}

func TestScanPositions(t *testing.T) {
	toks, err := Scan([]byte("var x = 1\n  y"), "test.panda")
	require.NoError(t, err)

	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 1, toks[0].Col)
	assert.Equal(t, "x", toks[1].Lexeme)
	assert.Equal(t, 5, toks[1].Col)
	assert.Equal(t, 9, toks[3].Col)
	assert.Equal(t, 1.0, toks[3].Num)

	// y is on line 2, col 3
	y := toks[5]
	assert.Equal(t, token.IDENT, y.Type)
	assert.Equal(t, 2, y.Line)
	assert.Equal(t, 3, y.Col)
}

func TestScanOperators(t *testing.T) {
	types := scanTypes(t, "== != <= >= << >> && || ?? ?. ?[ ++ -- += -= *= /= %= => ... ~ ^ & |")
	want := []token.Type{
		token.EQL, token.NEQ, token.LE, token.GE, token.LTLT, token.GTGT,
		token.ANDAND, token.OROR, token.QQUESTION, token.QDOT, token.QLBRACK,
		token.PLUSPLUS, token.MINUSMINUS, token.PLUSEQ, token.MINUSEQ,
		token.STAREQ, token.SLASHEQ, token.PERCENTEQ, token.ARROW,
		token.ELLIPSIS, token.TILDE, token.CIRCUMFLEX, token.AMPERSAND,
		token.PIPE, token.EOF,
	}
	assert.Equal(t, want, types)
}

func TestScanComments(t *testing.T) {
	types := scanTypes(t, "x // a comment = 1\ny")
	want := []token.Type{token.IDENT, token.NEWLINE, token.IDENT, token.EOF}
	assert.Equal(t, want, types)
}

func TestScanString(t *testing.T) {
	toks, err := Scan([]byte(`"hello\n\t\"w\\orld\{"`), "test.panda")
	require.NoError(t, err)
	require.Equal(t, token.STRING, toks[0].Type)
	assert.Equal(t, "hello\n\t\"w\\orld{", toks[0].Str)
	assert.False(t, toks[0].Interpolated())
}

func TestScanInterpolation(t *testing.T) {
	toks, err := Scan([]byte(`"a{b + 1}c{obj.m("x")}"`), "test.panda")
	require.NoError(t, err)
	tok := toks[0]
	require.True(t, tok.Interpolated())
	require.Len(t, tok.Parts, 4)

	assert.Equal(t, "a", tok.Parts[0].Text)
	assert.Equal(t, "b + 1", tok.Parts[1].Expr)
	assert.Equal(t, "c", tok.Parts[2].Text)
	assert.Equal(t, `obj.m("x")`, tok.Parts[3].Expr)
}

func TestScanInterpolationNestedBraces(t *testing.T) {
	toks, err := Scan([]byte(`"v={({a: 1}).a}"`), "test.panda")
	require.NoError(t, err)
	tok := toks[0]
	require.True(t, tok.Interpolated())
	require.Len(t, tok.Parts, 2)
	assert.Equal(t, "v=", tok.Parts[0].Text)
	assert.Equal(t, "({a: 1}).a", tok.Parts[1].Expr)
}

func TestScanErrors(t *testing.T) {
	cases := []struct {
		src      string
		contains string
		line     int
	}{
		{`"abc`, "unterminated string", 1},
		{"\n  \"abc", "unterminated string", 2},
		{`"a{b`, "unterminated interpolation", 1},
		{`"a\q"`, "invalid escape", 1},
		{"123abc", "malformed number", 1},
		{"@", "unexpected character", 1},
	}
	for _, c := range cases {
		_, err := Scan([]byte(c.src), "test.panda")
		require.Error(t, err, "source %q", c.src)
		serr, ok := err.(*Error)
		require.True(t, ok, "source %q: error type %T", c.src, err)
		assert.Contains(t, serr.Msg, c.contains, "source %q", c.src)
		assert.Equal(t, c.line, serr.Line, "source %q", c.src)
	}
}

func TestScanNumbers(t *testing.T) {
	toks, err := Scan([]byte("0 42 3.25 10.0"), "test.panda")
	require.NoError(t, err)
	var nums []float64
	for _, tok := range toks {
		if tok.Type == token.NUMBER {
			nums = append(nums, tok.Num)
		}
	}
	assert.Equal(t, []float64{0, 42, 3.25, 10}, nums)
}
