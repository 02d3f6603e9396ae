// Package interp is the embedding façade of the interpreter: it wires the
// compilation pipeline to a machine, registers the standard library, and
// exposes the host-facing entry points (run, eval, call, global accessors,
// module pre-seeding).
package interp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/azathrix/minipanda/lang/compiler"
	"github.com/azathrix/minipanda/lang/machine"
	"github.com/azathrix/minipanda/lang/stdlib"
)

// A CompiledScript is the result of compiling a source buffer: its
// serialized bytecode and a content hash of the source.
type CompiledScript struct {
	Proto    *compiler.FuncProto
	Bytecode []byte
	Hash     string
}

// An Interp owns one machine and its named scopes.
type Interp struct {
	m      *machine.Machine
	scopes map[string]*machine.Environment
}

// New creates an interpreter with the standard library registered in its
// root scope.
func New() *Interp {
	m := machine.New()
	stdlib.Register(m)
	return &Interp{
		m:      m,
		scopes: make(map[string]*machine.Environment),
	}
}

// Machine returns the underlying virtual machine.
func (i *Interp) Machine() *machine.Machine { return i.m }

// scope resolves a named scope, creating a child of the root on first use.
// The empty name designates the root scope itself.
func (i *Interp) scope(name string, clear bool) *machine.Environment {
	if name == "" {
		return i.m.Root()
	}
	env, ok := i.scopes[name]
	if !ok {
		env = machine.NewEnvironment(i.m.Root())
		i.scopes[name] = env
	}
	if clear {
		env.Clear()
	}
	return env
}

// Compile parses and compiles source, returning the prototype, its MPBC
// serialization and a hash of the source content.
func (i *Interp) Compile(src []byte, name string) (*CompiledScript, error) {
	proto, err := machine.CompileSource(src, name)
	if err != nil {
		return nil, err
	}
	b, err := compiler.Serialize(proto)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(src)
	return &CompiledScript{
		Proto:    proto,
		Bytecode: b,
		Hash:     hex.EncodeToString(sum[:]),
	}, nil
}

// Run executes a script in the given named scope. Input starting with the
// MPBC magic is deserialized as compiled bytecode; anything else is treated
// as UTF-8 source.
func (i *Interp) Run(input []byte, scopeName string, clearScope bool) (machine.Value, error) {
	var (
		proto *compiler.FuncProto
		err   error
	)
	if compiler.IsCompiled(input) {
		proto, err = compiler.Deserialize(input)
	} else {
		proto, err = machine.CompileSource(input, "<input>")
	}
	if err != nil {
		return nil, err
	}
	return i.m.RunProto(proto, i.scope(scopeName, clearScope))
}

// RunProto executes an already-compiled prototype in the given named scope.
func (i *Interp) RunProto(proto *compiler.FuncProto, scopeName string, clearScope bool) (machine.Value, error) {
	return i.m.RunProto(proto, i.scope(scopeName, clearScope))
}

// Eval evaluates a single expression and returns its value. The optional
// env provides extra bindings visible to the expression: a
// map[string]machine.Value, a *machine.Environment or a machine.Provider.
func (i *Interp) Eval(expr string, env any, scopeName string, clearScope bool) (machine.Value, error) {
	src := "return (\n" + expr + "\n)"
	proto, err := machine.CompileSource([]byte(src), "<eval>")
	if err != nil {
		return nil, err
	}

	scope := i.scope(scopeName, clearScope)
	switch env := env.(type) {
	case nil:
	case map[string]machine.Value:
		child := machine.NewEnvironment(scope)
		for k, v := range env {
			child.Define(k, v)
		}
		scope = child
	case *machine.Environment:
		scope = env
	case machine.Provider:
		scope = machine.NewEnvironment(scope).WithProvider(env)
	default:
		return nil, fmt.Errorf("unsupported eval environment type %T", env)
	}
	return i.m.RunProto(proto, scope)
}

// Call invokes a global function by name with the given arguments.
func (i *Interp) Call(funcName string, args ...machine.Value) (machine.Value, error) {
	fn, ok := i.m.Root().Get(funcName)
	if !ok {
		return nil, fmt.Errorf("undefined function %s", funcName)
	}
	return i.m.Call(fn, args...)
}

// CallWith invokes a global function with a one-shot child environment
// holding the extra bindings for the duration of the call.
func (i *Interp) CallWith(env map[string]machine.Value, funcName string, args ...machine.Value) (machine.Value, error) {
	child := machine.NewEnvironment(i.m.Root())
	for k, v := range env {
		child.Define(k, v)
	}
	v, ok := child.Get(funcName)
	if !ok {
		return nil, fmt.Errorf("undefined function %s", funcName)
	}
	if fn, ok := v.(*machine.Function); ok {
		// rebind the function's globals to the one-shot environment
		scoped := *fn
		scoped.Globals = child
		return i.m.Call(&scoped, args...)
	}
	return i.m.Call(v, args...)
}

// SetGlobal defines a binding in the root scope.
func (i *Interp) SetGlobal(name string, v machine.Value) {
	i.m.Root().Define(name, v)
}

// GetGlobal reads a binding from the root scope.
func (i *Interp) GetGlobal(name string) (machine.Value, bool) {
	return i.m.Root().Get(name)
}

// LoadModule pre-seeds the compiled-script cache under a module name, from
// either MPBC bytes or source.
func (i *Interp) LoadModule(b []byte, name, sourcePath string) error {
	var (
		proto *compiler.FuncProto
		err   error
	)
	if compiler.IsCompiled(b) {
		proto, err = compiler.Deserialize(b)
	} else {
		if sourcePath == "" {
			sourcePath = name
		}
		proto, err = machine.CompileSource(b, sourcePath)
	}
	if err != nil {
		return err
	}
	i.m.RegisterScript(name, proto)
	return nil
}

// RunFile reads and runs a script file; module imports resolve relative to
// the file's directory.
func (i *Interp) RunFile(path string) (machine.Value, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	i.m.Loader = machine.DefaultLoader(filepath.Dir(path))
	var proto *compiler.FuncProto
	if compiler.IsCompiled(b) {
		proto, err = compiler.Deserialize(b)
	} else {
		proto, err = machine.CompileSource(b, path)
	}
	if err != nil {
		return nil, err
	}
	return i.m.RunProto(proto, i.m.Root())
}
