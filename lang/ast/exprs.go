package ast

import "github.com/azathrix/minipanda/lang/token"

// A Literal is a number, string (without interpolation), boolean or null
// literal. Value is one of nil, bool, float64, string.
type Literal struct {
	Position
	Value any
}

// An InterpString is a string literal with interpolated expressions. Parts
// alternate plain fragments (Text set) and sub-expressions (Expr set).
type InterpString struct {
	Position
	Parts []InterpPart
}

type InterpPart struct {
	Text string
	Expr Expr
}

// An Ident is a name reference; the compiler resolves it to a local, an
// upvalue or a global.
type Ident struct {
	Position
	Name string
}

// An Assign is a plain or compound assignment expression. Op is token.EQ for
// plain assignment, or one of the compound tokens (PLUSEQ..PERCENTEQ).
// Target must be an Ident, Property or Index expression.
type Assign struct {
	Position
	Op     token.Type
	Target Expr
	Value  Expr
}

// A Ternary is a ?: conditional expression.
type Ternary struct {
	Position
	Cond, Then, Else Expr
}

// A Logical is a short-circuit binary expression: ||, && or ??.
type Logical struct {
	Position
	Op          token.Type
	Left, Right Expr
}

// A Binary is a strict binary expression (arithmetic, comparison, bitwise).
type Binary struct {
	Position
	Op          token.Type
	Left, Right Expr
}

// A Unary is a prefix (!x, -x, ~x, ++x, --x) or postfix (x++, x--) unary
// expression. For ++/-- the operand must be a valid assignment target.
type Unary struct {
	Position
	Op      token.Type
	Operand Expr
	Postfix bool
}

// A Call invokes a callee with arguments. An optional-chained method call
// rides on the Optional flag of its Property callee.
type Call struct {
	Position
	Callee Expr
	Args   []Expr
}

// A Property is a dot access expression obj.Name or obj?.Name.
type Property struct {
	Position
	Obj      Expr
	Name     string
	Optional bool
}

// An Index is a bracket access expression obj[key] or obj?[key].
type Index struct {
	Position
	Obj      Expr
	Key      Expr
	Optional bool
}

// A This refers to the receiver in a method or constructor body.
type This struct {
	Position
}

// A Super is a super.Method reference; it only appears as the callee of a
// call inside a method of a subclass.
type Super struct {
	Position
	Method string
}

// A FuncLit is a lambda or the body of a function/method declaration.
type FuncLit struct {
	Position
	Name   string // empty for lambdas
	Params []Param
	Rest   string // rest parameter name, empty if absent
	Body   []Stmt
}

type Param struct {
	Name    string
	Default Expr // nil if the parameter has no default value
}

// An ArrayLit is an array literal [a, b, c].
type ArrayLit struct {
	Position
	Elems []Expr
}

// An ObjectLit is an object literal {key: value, ...}. Insertion order is
// preserved.
type ObjectLit struct {
	Position
	Entries []ObjectEntry
}

type ObjectEntry struct {
	Key   string
	Value Expr
}

func (*Literal) expr()      {}
func (*InterpString) expr() {}
func (*Ident) expr()        {}
func (*Assign) expr()       {}
func (*Ternary) expr()      {}
func (*Logical) expr()      {}
func (*Binary) expr()       {}
func (*Unary) expr()        {}
func (*Call) expr()         {}
func (*Property) expr()     {}
func (*Index) expr()        {}
func (*This) expr()         {}
func (*Super) expr()        {}
func (*FuncLit) expr()      {}
func (*ArrayLit) expr()     {}
func (*ObjectLit) expr()    {}
