package parser

import (
	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/token"
)

// declaration parses a top-level or block-level declaration or statement,
// handling the optional global/export prefixes.
func (p *parser) declaration() ast.Stmt {
	var global, export bool
	switch p.cur().Type {
	case token.GLOBAL:
		// "global" may prefix var/func/class/enum, or "global import"
		p.advance()
		global = true
	case token.EXPORT:
		p.advance()
		export = true
	}

	switch p.cur().Type {
	case token.VAR:
		return p.varDecl(global, export)
	case token.FUNC:
		return p.funcDecl(global, export)
	case token.CLASS:
		return p.classDecl(global, export)
	case token.ENUM:
		return p.enumDecl(global, export)
	case token.IMPORT:
		if export {
			p.errorAt(p.cur(), "import cannot be exported")
		}
		return p.importStmt(global)
	}

	if global {
		p.errorAt(p.cur(), "expected declaration after global")
	}
	if export {
		p.errorAt(p.cur(), "expected declaration after export")
	}
	return p.statement()
}

func (p *parser) varDecl(global, export bool) ast.Stmt {
	kw := p.expect(token.VAR, "in variable declaration")
	name := p.expect(token.IDENT, "as variable name")
	decl := &ast.VarDecl{Position: p.pos2(kw), Name: name.Lexeme, Global: global, Export: export}
	if p.match(token.EQ) {
		decl.Value = p.expression()
	}
	p.endStatement()
	return decl
}

func (p *parser) funcDecl(global, export bool) ast.Stmt {
	kw := p.expect(token.FUNC, "in function declaration")
	name := p.expect(token.IDENT, "as function name")
	fn := p.funcRemainder(name.Lexeme, kw)
	return &ast.FuncDecl{Position: p.pos2(kw), Fn: fn, Global: global, Export: export}
}

// funcRemainder parses the parameter list and body of a function whose name
// (possibly empty) has already been consumed.
func (p *parser) funcRemainder(name string, at token.Token) *ast.FuncLit {
	fn := &ast.FuncLit{Position: p.pos2(at), Name: name}
	p.expect(token.LPAREN, "before parameters")
	fn.Params, fn.Rest = p.parameters()

	fn.Body = p.funcBody()
	return fn
}

// parameters parses the parameter list up to and including the closing
// parenthesis. No non-default parameter may follow a default-valued one, and
// at most one rest parameter is allowed, in last position.
func (p *parser) parameters() ([]ast.Param, string) {
	var (
		params     []ast.Param
		rest       string
		sawDefault bool
	)
	p.skipNewlines()
	for !p.at(token.RPAREN) {
		if p.match(token.ELLIPSIS) {
			name := p.expect(token.IDENT, "as rest parameter name")
			rest = name.Lexeme
			p.skipNewlines()
			break
		}
		name := p.expect(token.IDENT, "as parameter name")
		par := ast.Param{Name: name.Lexeme}
		if p.match(token.EQ) {
			par.Default = p.expression()
			sawDefault = true
		} else if sawDefault {
			p.errorAt(name, "non-default parameter %s follows a default parameter", name.Lexeme)
		}
		params = append(params, par)
		p.skipNewlines()
		if !p.match(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RPAREN, "after parameters")
	if len(params) > 255 {
		p.errorAt(p.cur(), "too many parameters (max 255)")
	}
	return params, rest
}

// funcBody parses a block body or a single-statement body.
func (p *parser) funcBody() []ast.Stmt {
	if p.at(token.LBRACE) {
		return p.block().Stmts
	}
	return []ast.Stmt{p.statement()}
}

func (p *parser) classDecl(global, export bool) ast.Stmt {
	kw := p.expect(token.CLASS, "in class declaration")
	name := p.expect(token.IDENT, "as class name")
	decl := &ast.ClassDecl{Position: p.pos2(kw), Name: name.Lexeme, Global: global, Export: export}
	if p.match(token.COLON) {
		super := p.expect(token.IDENT, "as superclass name")
		decl.Super = super.Lexeme
	}

	p.expect(token.LBRACE, "before class body")
	p.skipNewlines()
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		p.classMember(decl)
		p.skipNewlines()
	}
	p.expect(token.RBRACE, "after class body")
	return decl
}

func (p *parser) classMember(decl *ast.ClassDecl) {
	static := p.match(token.STATIC)

	switch p.cur().Type {
	case token.VAR:
		p.advance()
		name := p.expect(token.IDENT, "as field name")
		fd := ast.FieldDef{Name: name.Lexeme, Static: static, Line: name.Line, Col: name.Col}
		if p.match(token.EQ) {
			fd.Value = p.expression()
		}
		p.endStatement()
		decl.Fields = append(decl.Fields, fd)

	case token.FUNC:
		kw := p.advance()
		name := p.expect(token.IDENT, "as method name")
		fn := p.funcRemainder(name.Lexeme, kw)
		decl.Methods = append(decl.Methods, ast.MethodDef{Name: name.Lexeme, Fn: fn, Static: static})

	case token.IDENT:
		// the constructor is declared by the class name, without "func"
		name := p.cur()
		if name.Lexeme != decl.Name {
			p.errorAt(name, "unexpected identifier %s in class body (the constructor must be named %s)", name.Lexeme, decl.Name)
		}
		if static {
			p.errorAt(name, "constructor cannot be static")
		}
		p.advance()
		fn := p.funcRemainder(name.Lexeme, name)
		decl.Methods = append(decl.Methods, ast.MethodDef{Name: name.Lexeme, Fn: fn})

	default:
		p.errorAt(p.cur(), "expected field, method or constructor in class body, got %#v", p.cur().Type)
	}
}

func (p *parser) enumDecl(global, export bool) ast.Stmt {
	kw := p.expect(token.ENUM, "in enum declaration")
	name := p.expect(token.IDENT, "as enum name")
	decl := &ast.EnumDecl{Position: p.pos2(kw), Name: name.Lexeme, Global: global, Export: export}

	p.expect(token.LBRACE, "before enum members")
	p.skipNewlines()
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		mname := p.expect(token.IDENT, "as enum member name")
		m := ast.EnumMember{Name: mname.Lexeme, Line: mname.Line, Col: mname.Col}
		if p.match(token.EQ) {
			m.Value = p.enumValue()
		}
		decl.Members = append(decl.Members, m)
		p.skipNewlines()
		if !p.match(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RBRACE, "after enum members")
	return decl
}

// enumValue parses an explicit enum member value: a number (possibly
// negated) or a plain string literal.
func (p *parser) enumValue() ast.Expr {
	tok := p.cur()
	switch tok.Type {
	case token.NUMBER:
		p.advance()
		return &ast.Literal{Position: p.pos2(tok), Value: tok.Num}
	case token.MINUS:
		p.advance()
		num := p.expect(token.NUMBER, "after - in enum value")
		return &ast.Literal{Position: p.pos2(tok), Value: -num.Num}
	case token.STRING:
		if tok.Interpolated() {
			p.errorAt(tok, "enum value cannot be an interpolated string")
		}
		p.advance()
		return &ast.Literal{Position: p.pos2(tok), Value: tok.Str}
	default:
		p.errorAt(tok, "expected number or string as enum value, got %#v", tok.Type)
		return nil
	}
}

func (p *parser) importStmt(global bool) ast.Stmt {
	kw := p.expect(token.IMPORT, "in import")
	path := p.expect(token.STRING, "as import path")
	if path.Interpolated() {
		p.errorAt(path, "import path cannot be an interpolated string")
	}
	stmt := &ast.ImportStmt{Position: p.pos2(kw), Path: path.Str, Global: global}
	if p.match(token.AS) {
		alias := p.expect(token.IDENT, "as import alias")
		stmt.Alias = alias.Lexeme
	}
	p.endStatement()
	return stmt
}

func (p *parser) statement() ast.Stmt {
	switch p.cur().Type {
	case token.IF:
		return p.ifStmt()
	case token.WHILE:
		return p.whileStmt()
	case token.FOR:
		return p.forStmt()
	case token.RETURN:
		kw := p.advance()
		st := &ast.ReturnStmt{Position: p.pos2(kw)}
		if !p.at(token.SEMI) && !p.at(token.NEWLINE) && !p.at(token.RBRACE) && !p.at(token.EOF) {
			st.Value = p.expression()
		}
		p.endStatement()
		return st
	case token.BREAK:
		kw := p.advance()
		p.endStatement()
		return &ast.BreakStmt{Position: p.pos2(kw)}
	case token.CONTINUE:
		kw := p.advance()
		p.endStatement()
		return &ast.ContinueStmt{Position: p.pos2(kw)}
	case token.THROW:
		kw := p.advance()
		st := &ast.ThrowStmt{Position: p.pos2(kw), Value: p.expression()}
		p.endStatement()
		return st
	case token.TRY:
		return p.tryStmt()
	case token.LBRACE:
		return p.block()
	default:
		tok := p.cur()
		st := &ast.ExprStmt{Position: p.pos2(tok), X: p.expression()}
		p.endStatement()
		return st
	}
}

func (p *parser) block() *ast.BlockStmt {
	lb := p.expect(token.LBRACE, "to open block")
	blk := &ast.BlockStmt{Position: p.pos2(lb)}
	p.skipNewlines()
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		blk.Stmts = append(blk.Stmts, p.declaration())
		p.skipNewlines()
	}
	p.expect(token.RBRACE, "to close block")
	return blk
}

func (p *parser) ifStmt() ast.Stmt {
	kw := p.expect(token.IF, "in if statement")
	st := &ast.IfStmt{Position: p.pos2(kw), Cond: p.expression()}
	p.skipNewlines()
	st.Then = p.statement()
	// an else may follow on the next line
	save := p.pos
	p.skipNewlines()
	if p.match(token.ELSE) {
		p.skipNewlines()
		st.Else = p.statement()
	} else {
		p.pos = save
	}
	return st
}

func (p *parser) whileStmt() ast.Stmt {
	kw := p.expect(token.WHILE, "in while statement")
	st := &ast.WhileStmt{Position: p.pos2(kw), Cond: p.expression()}
	p.skipNewlines()
	st.Body = p.statement()
	return st
}

func (p *parser) forStmt() ast.Stmt {
	kw := p.expect(token.FOR, "in for statement")
	first := p.expect(token.IDENT, "as loop variable")
	st := &ast.ForInStmt{Position: p.pos2(kw), Value: first.Lexeme}
	if p.match(token.COMMA) {
		second := p.expect(token.IDENT, "as loop value variable")
		st.Key = first.Lexeme
		st.Value = second.Lexeme
	}
	p.expect(token.IN, "in for statement")
	st.Iterable = p.expression()
	p.skipNewlines()
	st.Body = p.statement()
	return st
}

func (p *parser) tryStmt() ast.Stmt {
	kw := p.expect(token.TRY, "in try statement")
	st := &ast.TryStmt{Position: p.pos2(kw)}
	p.skipNewlines()
	st.Body = p.block()

	save := p.pos
	p.skipNewlines()
	if p.match(token.CATCH) {
		if p.match(token.LPAREN) {
			v := p.expect(token.IDENT, "as catch variable")
			st.CatchVar = v.Lexeme
			p.expect(token.RPAREN, "after catch variable")
		}
		p.skipNewlines()
		st.Catch = p.block()
		save = p.pos
	} else {
		p.pos = save
	}

	p.skipNewlines()
	if p.match(token.FINALLY) {
		p.skipNewlines()
		st.Finally = p.block()
	} else {
		p.pos = save
	}

	if st.Catch == nil && st.Finally == nil {
		p.errorAt(kw, "try requires a catch or finally block")
	}
	return st
}
