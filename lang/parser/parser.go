// Package parser implements the recursive-descent parser that transforms a
// token stream into an abstract syntax tree. The parser is single-pass and
// newline-sensitive: newlines terminate statements but are skipped between
// declarations and inside bracketed constructs.
package parser

import (
	"fmt"

	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/scanner"
	"github.com/azathrix/minipanda/lang/token"
)

// Error is a syntax error with its source position.
type Error struct {
	Msg  string
	File string
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

// Parse tokenizes and parses a source buffer into a program. The returned
// error, if non-nil, is a *scanner.Error or *Error; the parser does not
// attempt recovery, the first error aborts the parse.
func Parse(src []byte, filename string) (prog *ast.Program, err error) {
	toks, err := scanner.Scan(src, filename)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks, file: filename}
	defer p.recoverError(&err)

	prog = &ast.Program{File: filename}
	p.skipNewlines()
	for !p.at(token.EOF) {
		prog.Stmts = append(prog.Stmts, p.declaration())
		p.skipNewlines()
	}
	return prog, nil
}

type parser struct {
	toks []token.Token
	pos  int
	file string
}

// errors abort the parse via panic; recoverError converts them back to a
// returned error at the API boundary.
type parseFailure struct{ err *Error }

func (p *parser) recoverError(err *error) {
	if r := recover(); r != nil {
		pf, ok := r.(parseFailure)
		if !ok {
			panic(r)
		}
		*err = pf.err
	}
}

func (p *parser) errorAt(tok token.Token, format string, args ...any) {
	panic(parseFailure{&Error{
		Msg:  fmt.Sprintf(format, args...),
		File: p.file,
		Line: tok.Line,
		Col:  tok.Col,
	}})
}

func (p *parser) cur() token.Token     { return p.toks[p.pos] }
func (p *parser) at(t token.Type) bool { return p.toks[p.pos].Type == t }

// peekAt returns the token n positions ahead without consuming, EOF-padded.
func (p *parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token.Token {
	tok := p.toks[p.pos]
	if tok.Type != token.EOF {
		p.pos++
	}
	return tok
}

func (p *parser) match(t token.Type) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(t token.Type, context string) token.Token {
	if !p.at(t) {
		p.errorAt(p.cur(), "expected %#v %s, got %#v", t, context, p.cur().Type)
	}
	return p.advance()
}

func (p *parser) skipNewlines() {
	for p.at(token.NEWLINE) || p.at(token.SEMI) {
		p.advance()
	}
}

// endStatement consumes a statement terminator: a semicolon or newline, or
// accepts a closing brace lookahead or end of input without consuming.
func (p *parser) endStatement() {
	switch p.cur().Type {
	case token.SEMI, token.NEWLINE:
		p.advance()
	case token.RBRACE, token.EOF:
		// lookahead only
	default:
		p.errorAt(p.cur(), "expected end of statement, got %#v", p.cur().Type)
	}
}

func (p *parser) pos2(tok token.Token) ast.Position {
	return ast.Position{Line: tok.Line, Col: tok.Col}
}

// parseInterp reparses the captured sub-sources of an interpolated string
// token into expressions.
func (p *parser) parseInterp(tok token.Token) *ast.InterpString {
	is := &ast.InterpString{Position: p.pos2(tok)}
	for _, part := range tok.Parts {
		if part.Expr == "" {
			is.Parts = append(is.Parts, ast.InterpPart{Text: part.Text})
			continue
		}
		sub, err := parseExprSource([]byte(part.Expr), p.file, part.Line)
		if err != nil {
			if pe, ok := err.(*Error); ok {
				panic(parseFailure{pe})
			}
			p.errorAt(tok, "invalid interpolation: %s", err)
		}
		is.Parts = append(is.Parts, ast.InterpPart{Expr: sub})
	}
	return is
}

// parseExprSource parses a standalone expression, used for interpolations.
// Reported positions are offset to the given base line.
func parseExprSource(src []byte, filename string, baseLine int) (e ast.Expr, err error) {
	toks, err := scanner.Scan(src, filename)
	if err != nil {
		if se, ok := err.(*scanner.Error); ok {
			se.Line += baseLine - 1
		}
		return nil, err
	}
	for i := range toks {
		toks[i].Line += baseLine - 1
	}

	p := &parser{toks: toks, file: filename}
	defer p.recoverError(&err)

	e = p.expression()
	if !p.at(token.EOF) {
		p.errorAt(p.cur(), "unexpected %#v after interpolated expression", p.cur().Type)
	}
	return e, nil
}
