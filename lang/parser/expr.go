package parser

import (
	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/token"
)

// Binary operator precedence levels, from loosest to tightest:
// assignment, ternary, ||, ??, &&, |, ^, &, == !=, < <= > >=, << >>, + -,
// * / %, prefix unary, postfix, call/index/property, primary.

func (p *parser) expression() ast.Expr {
	return p.assignment()
}

func (p *parser) assignment() ast.Expr {
	left := p.ternary()

	op := p.cur().Type
	switch op {
	case token.EQ, token.PLUSEQ, token.MINUSEQ, token.STAREQ, token.SLASHEQ, token.PERCENTEQ:
	default:
		return left
	}
	tok := p.advance()
	p.checkAssignTarget(left, tok)
	return &ast.Assign{
		Position: p.pos2(tok),
		Op:       op,
		Target:   left,
		Value:    p.assignment(), // right-associative
	}
}

func (p *parser) checkAssignTarget(e ast.Expr, at token.Token) {
	switch e := e.(type) {
	case *ast.Ident:
		return
	case *ast.Property:
		if !e.Optional {
			return
		}
	case *ast.Index:
		if !e.Optional {
			return
		}
	}
	p.errorAt(at, "invalid assignment target")
}

func (p *parser) ternary() ast.Expr {
	cond := p.logicalOr()
	if !p.at(token.QUESTION) {
		return cond
	}
	tok := p.advance()
	p.skipNewlines()
	then := p.expression()
	p.skipNewlines()
	p.expect(token.COLON, "in ternary expression")
	p.skipNewlines()
	els := p.expression()
	return &ast.Ternary{Position: p.pos2(tok), Cond: cond, Then: then, Else: els}
}

// binaryLevel builds one precedence level of left-associative binary
// expressions; next parses the next tighter level.
func (p *parser) binaryLevel(next func() ast.Expr, logical bool, ops ...token.Type) ast.Expr {
	left := next()
	for {
		cur := p.cur().Type
		matched := false
		for _, op := range ops {
			if cur == op {
				matched = true
				break
			}
		}
		if !matched {
			return left
		}
		tok := p.advance()
		p.skipNewlines()
		right := next()
		op := normalizeOp(tok.Type)
		if logical {
			left = &ast.Logical{Position: p.pos2(tok), Op: op, Left: left, Right: right}
		} else {
			left = &ast.Binary{Position: p.pos2(tok), Op: op, Left: left, Right: right}
		}
	}
}

// normalizeOp maps the keyword operators and/or to their symbolic forms.
func normalizeOp(t token.Type) token.Type {
	switch t {
	case token.AND:
		return token.ANDAND
	case token.OR:
		return token.OROR
	}
	return t
}

func (p *parser) logicalOr() ast.Expr {
	return p.binaryLevel(p.nullCoalesce, true, token.OROR, token.OR)
}

func (p *parser) nullCoalesce() ast.Expr {
	return p.binaryLevel(p.logicalAnd, true, token.QQUESTION)
}

func (p *parser) logicalAnd() ast.Expr {
	return p.binaryLevel(p.bitOr, true, token.ANDAND, token.AND)
}

func (p *parser) bitOr() ast.Expr {
	return p.binaryLevel(p.bitXor, false, token.PIPE)
}

func (p *parser) bitXor() ast.Expr {
	return p.binaryLevel(p.bitAnd, false, token.CIRCUMFLEX)
}

func (p *parser) bitAnd() ast.Expr {
	return p.binaryLevel(p.equality, false, token.AMPERSAND)
}

func (p *parser) equality() ast.Expr {
	return p.binaryLevel(p.relational, false, token.EQL, token.NEQ)
}

func (p *parser) relational() ast.Expr {
	return p.binaryLevel(p.shift, false, token.LT, token.LE, token.GT, token.GE)
}

func (p *parser) shift() ast.Expr {
	return p.binaryLevel(p.additive, false, token.LTLT, token.GTGT)
}

func (p *parser) additive() ast.Expr {
	return p.binaryLevel(p.multiplicative, false, token.PLUS, token.MINUS)
}

func (p *parser) multiplicative() ast.Expr {
	return p.binaryLevel(p.unary, false, token.STAR, token.SLASH, token.PERCENT)
}

func (p *parser) unary() ast.Expr {
	switch p.cur().Type {
	case token.BANG, token.MINUS, token.TILDE:
		tok := p.advance()
		return &ast.Unary{Position: p.pos2(tok), Op: tok.Type, Operand: p.unary()}
	case token.PLUSPLUS, token.MINUSMINUS:
		tok := p.advance()
		operand := p.unary()
		p.checkAssignTarget(operand, tok)
		return &ast.Unary{Position: p.pos2(tok), Op: tok.Type, Operand: operand}
	}
	return p.postfix()
}

func (p *parser) postfix() ast.Expr {
	e := p.callSuffix(p.primary())
	if p.at(token.PLUSPLUS) || p.at(token.MINUSMINUS) {
		tok := p.advance()
		p.checkAssignTarget(e, tok)
		return &ast.Unary{Position: p.pos2(tok), Op: tok.Type, Operand: e, Postfix: true}
	}
	return e
}

// callSuffix parses the chain of call, index and property suffixes.
func (p *parser) callSuffix(e ast.Expr) ast.Expr {
	for {
		switch p.cur().Type {
		case token.LPAREN:
			tok := p.advance()
			e = &ast.Call{Position: p.pos2(tok), Callee: e, Args: p.arguments()}
		case token.DOT:
			tok := p.advance()
			name := p.expect(token.IDENT, "after '.'")
			e = &ast.Property{Position: p.pos2(tok), Obj: e, Name: name.Lexeme}
		case token.QDOT:
			tok := p.advance()
			name := p.expect(token.IDENT, "after '?.'")
			e = &ast.Property{Position: p.pos2(tok), Obj: e, Name: name.Lexeme, Optional: true}
		case token.LBRACK:
			tok := p.advance()
			p.skipNewlines()
			key := p.expression()
			p.skipNewlines()
			p.expect(token.RBRACK, "after index")
			e = &ast.Index{Position: p.pos2(tok), Obj: e, Key: key}
		case token.QLBRACK:
			tok := p.advance()
			p.skipNewlines()
			key := p.expression()
			p.skipNewlines()
			p.expect(token.RBRACK, "after index")
			e = &ast.Index{Position: p.pos2(tok), Obj: e, Key: key, Optional: true}
		default:
			return e
		}
	}
}

func (p *parser) arguments() []ast.Expr {
	var args []ast.Expr
	p.skipNewlines()
	for !p.at(token.RPAREN) {
		args = append(args, p.expression())
		p.skipNewlines()
		if !p.match(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RPAREN, "after arguments")
	if len(args) > 255 {
		p.errorAt(p.cur(), "too many arguments (max 255)")
	}
	return args
}

func (p *parser) primary() ast.Expr {
	tok := p.cur()
	switch tok.Type {
	case token.NUMBER:
		p.advance()
		return &ast.Literal{Position: p.pos2(tok), Value: tok.Num}
	case token.STRING:
		p.advance()
		if tok.Interpolated() {
			return p.parseInterp(tok)
		}
		return &ast.Literal{Position: p.pos2(tok), Value: tok.Str}
	case token.TRUE:
		p.advance()
		return &ast.Literal{Position: p.pos2(tok), Value: true}
	case token.FALSE:
		p.advance()
		return &ast.Literal{Position: p.pos2(tok), Value: false}
	case token.NULL:
		p.advance()
		return &ast.Literal{Position: p.pos2(tok), Value: nil}
	case token.IDENT:
		p.advance()
		return &ast.Ident{Position: p.pos2(tok), Name: tok.Lexeme}
	case token.THIS:
		p.advance()
		return &ast.This{Position: p.pos2(tok)}
	case token.SUPER:
		p.advance()
		p.expect(token.DOT, "after super")
		name := p.expect(token.IDENT, "as super method name")
		return &ast.Super{Position: p.pos2(tok), Method: name.Lexeme}
	case token.LPAREN:
		if p.lambdaAhead() {
			return p.lambda()
		}
		p.advance()
		p.skipNewlines()
		e := p.expression()
		p.skipNewlines()
		p.expect(token.RPAREN, "after grouped expression")
		return e
	case token.LBRACK:
		return p.arrayLit()
	case token.LBRACE:
		return p.objectLit()
	}
	p.errorAt(tok, "unexpected %#v in expression", tok.Type)
	return nil
}

// lambdaAhead decides, without consuming tokens, whether the parenthesis at
// the current position opens a lambda parameter list. It scans forward to
// the matching close parenthesis (tracking nested delimiters, which covers
// default values containing parentheses) and checks for a => arrow, possibly
// after newlines.
func (p *parser) lambdaAhead() bool {
	depth := 0
	i := 0
scan:
	for {
		switch p.peekAt(i).Type {
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
			if depth == 0 {
				break scan
			}
		case token.EOF:
			return false
		}
		i++
	}
	for {
		i++
		switch p.peekAt(i).Type {
		case token.NEWLINE:
		case token.ARROW:
			return true
		default:
			return false
		}
	}
}

func (p *parser) lambda() ast.Expr {
	lp := p.expect(token.LPAREN, "before lambda parameters")
	fn := &ast.FuncLit{Position: p.pos2(lp)}
	fn.Params, fn.Rest = p.parameters()
	p.skipNewlines()
	p.expect(token.ARROW, "in lambda")
	p.skipNewlines()

	if p.at(token.LBRACE) {
		fn.Body = p.block().Stmts
	} else {
		// expression body is an implicit return
		x := p.expression()
		line, col := x.Pos()
		fn.Body = []ast.Stmt{&ast.ReturnStmt{Position: ast.Position{Line: line, Col: col}, Value: x}}
	}
	return fn
}

func (p *parser) arrayLit() ast.Expr {
	lb := p.expect(token.LBRACK, "before array literal")
	lit := &ast.ArrayLit{Position: p.pos2(lb)}
	p.skipNewlines()
	for !p.at(token.RBRACK) {
		lit.Elems = append(lit.Elems, p.expression())
		p.skipNewlines()
		if !p.match(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RBRACK, "after array literal")
	return lit
}

func (p *parser) objectLit() ast.Expr {
	lb := p.expect(token.LBRACE, "before object literal")
	lit := &ast.ObjectLit{Position: p.pos2(lb)}
	p.skipNewlines()
	for !p.at(token.RBRACE) {
		var key string
		switch p.cur().Type {
		case token.IDENT:
			key = p.advance().Lexeme
		case token.STRING:
			tok := p.advance()
			if tok.Interpolated() {
				p.errorAt(tok, "object key cannot be an interpolated string")
			}
			key = tok.Str
		default:
			p.errorAt(p.cur(), "expected object key, got %#v", p.cur().Type)
		}
		p.expect(token.COLON, "after object key")
		p.skipNewlines()
		lit.Entries = append(lit.Entries, ast.ObjectEntry{Key: key, Value: p.expression()})
		p.skipNewlines()
		if !p.match(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RBRACE, "after object literal")
	return lit
}
