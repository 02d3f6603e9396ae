package ast

import (
	"fmt"
	"io"
	"strings"
)

// Print writes a compact indented representation of the node tree to w, one
// node per line. It is used by the parse CLI command and by parser tests.
func Print(w io.Writer, prog *Program) {
	p := printer{w: w}
	for _, st := range prog.Stmts {
		p.stmt(st, 0)
	}
}

type printer struct {
	w io.Writer
}

func (p *printer) printf(depth int, format string, args ...any) {
	fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (p *printer) stmt(s Stmt, d int) {
	switch s := s.(type) {
	case *VarDecl:
		p.printf(d, "var %s%s", prefix(s.Global, s.Export), s.Name)
		if s.Value != nil {
			p.expr(s.Value, d+1)
		}
	case *FuncDecl:
		p.printf(d, "func %s%s%s", prefix(s.Global, s.Export), s.Fn.Name, signature(s.Fn))
		p.stmts(s.Fn.Body, d+1)
	case *ClassDecl:
		if s.Super != "" {
			p.printf(d, "class %s%s : %s", prefix(s.Global, s.Export), s.Name, s.Super)
		} else {
			p.printf(d, "class %s%s", prefix(s.Global, s.Export), s.Name)
		}
		for _, f := range s.Fields {
			tag := "field"
			if f.Static {
				tag = "static field"
			}
			p.printf(d+1, "%s %s", tag, f.Name)
			if f.Value != nil {
				p.expr(f.Value, d+2)
			}
		}
		for _, m := range s.Methods {
			tag := "method"
			if m.Static {
				tag = "static method"
			}
			p.printf(d+1, "%s %s%s", tag, m.Name, signature(m.Fn))
			p.stmts(m.Fn.Body, d+2)
		}
	case *ImportStmt:
		alias := ""
		if s.Alias != "" {
			alias = " as " + s.Alias
		}
		p.printf(d, "import %q%s%s", s.Path, alias, globalSuffix(s.Global))
	case *EnumDecl:
		p.printf(d, "enum %s%s", prefix(s.Global, s.Export), s.Name)
		for _, m := range s.Members {
			p.printf(d+1, "member %s", m.Name)
			if m.Value != nil {
				p.expr(m.Value, d+2)
			}
		}
	case *IfStmt:
		p.printf(d, "if")
		p.expr(s.Cond, d+1)
		p.stmt(s.Then, d+1)
		if s.Else != nil {
			p.printf(d, "else")
			p.stmt(s.Else, d+1)
		}
	case *WhileStmt:
		p.printf(d, "while")
		p.expr(s.Cond, d+1)
		p.stmt(s.Body, d+1)
	case *ForInStmt:
		if s.Key != "" {
			p.printf(d, "for %s, %s in", s.Key, s.Value)
		} else {
			p.printf(d, "for %s in", s.Value)
		}
		p.expr(s.Iterable, d+1)
		p.stmt(s.Body, d+1)
	case *ReturnStmt:
		p.printf(d, "return")
		if s.Value != nil {
			p.expr(s.Value, d+1)
		}
	case *BreakStmt:
		p.printf(d, "break")
	case *ContinueStmt:
		p.printf(d, "continue")
	case *TryStmt:
		p.printf(d, "try")
		p.stmt(s.Body, d+1)
		if s.Catch != nil {
			p.printf(d, "catch %s", s.CatchVar)
			p.stmt(s.Catch, d+1)
		}
		if s.Finally != nil {
			p.printf(d, "finally")
			p.stmt(s.Finally, d+1)
		}
	case *ThrowStmt:
		p.printf(d, "throw")
		p.expr(s.Value, d+1)
	case *BlockStmt:
		p.printf(d, "block")
		p.stmts(s.Stmts, d+1)
	case *ExprStmt:
		p.printf(d, "expr")
		p.expr(s.X, d+1)
	}
}

func (p *printer) stmts(list []Stmt, d int) {
	for _, s := range list {
		p.stmt(s, d)
	}
}

func (p *printer) expr(e Expr, d int) {
	switch e := e.(type) {
	case *Literal:
		switch v := e.Value.(type) {
		case nil:
			p.printf(d, "null")
		case string:
			p.printf(d, "%q", v)
		default:
			p.printf(d, "%v", v)
		}
	case *InterpString:
		p.printf(d, "interp")
		for _, part := range e.Parts {
			if part.Expr != nil {
				p.expr(part.Expr, d+1)
			} else {
				p.printf(d+1, "%q", part.Text)
			}
		}
	case *Ident:
		p.printf(d, "ident %s", e.Name)
	case *Assign:
		p.printf(d, "assign %s", e.Op)
		p.expr(e.Target, d+1)
		p.expr(e.Value, d+1)
	case *Ternary:
		p.printf(d, "ternary")
		p.expr(e.Cond, d+1)
		p.expr(e.Then, d+1)
		p.expr(e.Else, d+1)
	case *Logical:
		p.printf(d, "logical %s", e.Op)
		p.expr(e.Left, d+1)
		p.expr(e.Right, d+1)
	case *Binary:
		p.printf(d, "binary %s", e.Op)
		p.expr(e.Left, d+1)
		p.expr(e.Right, d+1)
	case *Unary:
		if e.Postfix {
			p.printf(d, "postfix %s", e.Op)
		} else {
			p.printf(d, "unary %s", e.Op)
		}
		p.expr(e.Operand, d+1)
	case *Call:
		p.printf(d, "call")
		p.expr(e.Callee, d+1)
		for _, a := range e.Args {
			p.expr(a, d+1)
		}
	case *Property:
		op := "."
		if e.Optional {
			op = "?."
		}
		p.printf(d, "prop %s%s", op, e.Name)
		p.expr(e.Obj, d+1)
	case *Index:
		op := "[]"
		if e.Optional {
			op = "?[]"
		}
		p.printf(d, "index %s", op)
		p.expr(e.Obj, d+1)
		p.expr(e.Key, d+1)
	case *This:
		p.printf(d, "this")
	case *Super:
		p.printf(d, "super.%s", e.Method)
	case *FuncLit:
		p.printf(d, "lambda%s", signature(e))
		p.stmts(e.Body, d+1)
	case *ArrayLit:
		p.printf(d, "array")
		for _, el := range e.Elems {
			p.expr(el, d+1)
		}
	case *ObjectLit:
		p.printf(d, "object")
		for _, ent := range e.Entries {
			p.printf(d+1, "key %s", ent.Key)
			p.expr(ent.Value, d+2)
		}
	}
}

func signature(fn *FuncLit) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, par := range fn.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(par.Name)
		if par.Default != nil {
			sb.WriteString("=...")
		}
	}
	if fn.Rest != "" {
		if len(fn.Params) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("..." + fn.Rest)
	}
	sb.WriteByte(')')
	return sb.String()
}

func prefix(global, export bool) string {
	switch {
	case global:
		return "global "
	case export:
		return "export "
	}
	return ""
}

func globalSuffix(global bool) string {
	if global {
		return " global"
	}
	return ""
}
