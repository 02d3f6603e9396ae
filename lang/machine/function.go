package machine

import (
	"fmt"

	"github.com/azathrix/minipanda/lang/compiler"
)

// A Function is a closure: a compiled prototype plus its captured upvalues
// and the globals scope in force when the Closure instruction executed.
type Function struct {
	Proto    *compiler.FuncProto
	Upvalues []*Upvalue
	Globals  *Environment
	Owner    *Class // defining class for methods, nil otherwise
}

var _ Value = (*Function)(nil)

func (f *Function) String() string { return fmt.Sprintf("func %s", f.Name()) }
func (f *Function) Type() string   { return "function" }

func (f *Function) Name() string {
	if f.Proto.Name == "" {
		return "<anonymous>"
	}
	return f.Proto.Name
}

// A NativeFunc is a host-provided callable. Natives execute synchronously
// and must return before the interpreter loop resumes.
type NativeFunc struct {
	Name string
	Fn   func(m *Machine, args []Value) (Value, error)
}

var _ Value = (*NativeFunc)(nil)

func (n *NativeFunc) String() string { return fmt.Sprintf("native %s", n.Name) }
func (n *NativeFunc) Type() string   { return "function" }

// A BoundMethod pairs a receiver with a function, produced by property
// access on an instance.
type BoundMethod struct {
	Receiver Value
	Fn       *Function
}

var _ Value = (*BoundMethod)(nil)

func (b *BoundMethod) String() string { return fmt.Sprintf("bound %s", b.Fn.Name()) }
func (b *BoundMethod) Type() string   { return "function" }

// A Class holds instance methods, static fields and static methods, and an
// optional superclass. The constructor is the method named like the class.
type Class struct {
	Name          string
	Super         *Class
	Methods       map[string]*Function
	StaticFields  *Object
	StaticMethods map[string]*Function
}

var _ Value = (*Class)(nil)

// NewClass creates an empty class.
func NewClass(name string) *Class {
	return &Class{
		Name:          name,
		Methods:       make(map[string]*Function),
		StaticFields:  NewObject(),
		StaticMethods: make(map[string]*Function),
	}
}

func (c *Class) String() string { return "class " + c.Name }
func (c *Class) Type() string   { return "class" }

// An Instance is an object created from a class.
type Instance struct {
	Class  *Class
	Fields *Object
}

var _ Value = (*Instance)(nil)

// NewInstance creates an instance with no fields set.
func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Fields: NewObject()}
}

func (i *Instance) String() string { return i.Class.Name + " instance" }
func (i *Instance) Type() string   { return i.Class.Name }

// A Module is a loaded script with its own scope and optional export list.
// A module with a non-empty export set hides the non-exported names; a
// module with no exports exposes every top-level binding.
type Module struct {
	Path    string
	Scope   *Environment
	Exports map[string]bool
}

var _ Value = (*Module)(nil)

func (m *Module) String() string { return "module " + m.Path }
func (m *Module) Type() string   { return "module" }

// Lookup resolves an exported name of the module.
func (m *Module) Lookup(name string) (Value, bool) {
	if len(m.Exports) > 0 && !m.Exports[name] {
		return nil, false
	}
	if !m.Scope.Has(name) {
		return nil, false
	}
	return m.Scope.Get(name)
}

// A GlobalTable is a proxy value over an environment, exposing its bindings
// through property access.
type GlobalTable struct {
	Env *Environment
}

var _ Value = (*GlobalTable)(nil)

func (g *GlobalTable) String() string { return "globals" }
func (g *GlobalTable) Type() string   { return "globals" }

// A Range is the numeric iterable produced by the range built-in.
type Range struct {
	Start, Stop, Step float64
}

var _ Value = (*Range)(nil)

func (r *Range) String() string {
	return fmt.Sprintf("range(%s, %s, %s)", Number(r.Start), Number(r.Stop), Number(r.Step))
}
func (r *Range) Type() string { return "range" }

// Len returns the number of values the range produces.
func (r *Range) Len() int {
	if r.Step == 0 {
		return 0
	}
	n := (r.Stop - r.Start) / r.Step
	if n <= 0 {
		return 0
	}
	// round up for partial final steps
	in := int(n)
	if float64(in) < n {
		in++
	}
	return in
}

// An Upvalue is a reference to a variable of an enclosing function: open
// while the owning frame is live (pointing at a stack slot), closed (owning
// the value) afterwards. Open upvalues form a list ordered by descending
// stack index.
type Upvalue struct {
	slot   int // stack index while open
	closed bool
	value  Value
	next   *Upvalue
}

var _ Value = (*Upvalue)(nil)

func (u *Upvalue) String() string { return "upvalue" }
func (u *Upvalue) Type() string   { return "upvalue" }
