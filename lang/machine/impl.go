package machine

import (
	"strings"

	"github.com/azathrix/minipanda/lang/compiler"
)

// Property access, indexing, fused invocation and module loading are the
// more involved opcodes; their implementations live in this file.

// getProperty resolves a dot access against the receiver kind: instance
// fields and methods, class statics, module exports, the global-table proxy,
// plain object fields, and the length of arrays and strings.
func (m *Machine) getProperty(recv Value, name string) (Value, error) {
	switch recv := recv.(type) {
	case *Instance:
		if v, ok := recv.Fields.Get(name); ok {
			return v, nil
		}
		if fn, ok := recv.Class.Methods[name]; ok {
			return &BoundMethod{Receiver: recv, Fn: fn}, nil
		}
		return nil, m.newError("undefined property %s on %s", name, recv.Class.Name)

	case *Class:
		for c := recv; c != nil; c = c.Super {
			if v, ok := c.StaticFields.Get(name); ok {
				return v, nil
			}
			if fn, ok := c.StaticMethods[name]; ok {
				return fn, nil
			}
		}
		return nil, m.newError("undefined static member %s on class %s", name, recv.Name)

	case *Module:
		// modules with no exports expose every top-level binding; hidden or
		// missing names read as null
		if v, ok := recv.Lookup(name); ok {
			return v, nil
		}
		return Null, nil

	case *GlobalTable:
		if v, ok := recv.Env.Get(name); ok {
			return v, nil
		}
		return Null, nil

	case *Object:
		if v, ok := recv.Get(name); ok {
			return v, nil
		}
		return Null, nil

	case *Array:
		if name == "length" {
			return Number(len(recv.Elems)), nil
		}
		return nil, m.newError("arrays have no property %s", name)

	case String:
		if name == "length" {
			return Number(len(recv)), nil
		}
		return nil, m.newError("strings have no property %s", name)
	}
	return nil, m.newError("cannot read property %s of %s", name, recv.Type())
}

func (m *Machine) setProperty(recv Value, name string, v Value) error {
	switch recv := recv.(type) {
	case *Instance:
		recv.Fields.Set(name, v)
		return nil
	case *Object:
		recv.Set(name, v)
		return nil
	case *Class:
		recv.StaticFields.Set(name, v)
		return nil
	case *GlobalTable:
		recv.Env.Set(name, v)
		return nil
	case *Module:
		return m.newError("cannot assign to property %s of a module", name)
	}
	return m.newError("cannot set property %s on %s", name, recv.Type())
}

func (m *Machine) getIndex(recv, key Value) (Value, error) {
	switch recv := recv.(type) {
	case *Array:
		n, ok := AsNumber(key)
		if !ok {
			return nil, m.newError("array index must be a number, got %s", key.Type())
		}
		i, ok := recv.index(n)
		if !ok {
			return nil, m.newError("array index %s out of range (length %d)", key.String(), len(recv.Elems))
		}
		return recv.Elems[i], nil

	case *Object:
		s, ok := AsString(key)
		if !ok {
			return nil, m.newError("object key must be a string, got %s", key.Type())
		}
		if v, ok := recv.Get(s); ok {
			return v, nil
		}
		return Null, nil

	case String:
		n, ok := AsNumber(key)
		if !ok {
			return nil, m.newError("string index must be a number, got %s", key.Type())
		}
		i := int(n)
		if i < 0 {
			i += len(recv)
		}
		if i < 0 || i >= len(recv) {
			return nil, m.newError("string index %s out of range (length %d)", key.String(), len(recv))
		}
		return recv[i : i+1], nil

	case *Instance:
		if s, ok := AsString(key); ok {
			return m.getProperty(recv, s)
		}
	}
	return nil, m.newError("values of type %s cannot be indexed", recv.Type())
}

func (m *Machine) setIndex(recv, key, v Value) error {
	switch recv := recv.(type) {
	case *Array:
		n, ok := AsNumber(key)
		if !ok {
			return m.newError("array index must be a number, got %s", key.Type())
		}
		i, ok := recv.index(n)
		if !ok {
			return m.newError("array index %s out of range (length %d)", key.String(), len(recv.Elems))
		}
		recv.Elems[i] = v
		return nil

	case *Object:
		s, ok := AsString(key)
		if !ok {
			return m.newError("object key must be a string, got %s", key.Type())
		}
		recv.Set(s, v)
		return nil

	case *Instance:
		if s, ok := AsString(key); ok {
			recv.Fields.Set(s, v)
			return nil
		}
	}
	return m.newError("values of type %s cannot be index-assigned", recv.Type())
}

// invoke is the fused obj.name(args) dispatch: instance methods are called
// without materializing a bound method; every other receiver goes through
// getProperty and a regular call.
func (m *Machine) invoke(name string, argc int) error {
	recv := m.peek(argc)

	if inst, ok := recv.(*Instance); ok {
		if v, ok := inst.Fields.Get(name); ok {
			m.stack[m.sp-argc-1] = v
			return m.callValue(v, argc)
		}
		if fn, ok := inst.Class.Methods[name]; ok {
			// the receiver stays in the callee slot and becomes "this"
			return m.callFunction(fn, argc)
		}
		return m.newError("undefined property %s on %s", name, inst.Class.Name)
	}

	v, err := m.getProperty(recv, name)
	if err != nil {
		return err
	}
	m.stack[m.sp-argc-1] = v
	return m.callValue(v, argc)
}

// ---- modules ----

// moduleKey translates the dots of an import path into path separators.
func moduleKey(path string) string {
	return strings.ReplaceAll(path, ".", "/")
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' || path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// importModule resolves, compiles and executes a module, caching the result
// for the machine's lifetime. The module object is registered before its
// body executes so modules can hold references to each other, but re-entry
// while the body is still running is a circular import error.
func (m *Machine) importModule(path string) (*Module, error) {
	key := moduleKey(path)
	if m.loading[key] {
		return nil, m.newError("circular import of module %s", path)
	}
	if mod, ok := m.modules[key]; ok {
		return mod, nil
	}

	proto, ok := m.scripts[key]
	if !ok {
		if m.Loader == nil {
			return nil, m.newError("module %s not found: no loader configured", path)
		}
		b, full, err := m.Loader(key)
		if err != nil {
			return nil, m.newError("cannot load module %s: %s", path, err.Error())
		}
		if b == nil {
			return nil, m.newError("module %s not found", path)
		}
		if full == "" {
			full = key
		}
		if compiler.IsCompiled(b) {
			proto, err = compiler.Deserialize(b)
		} else {
			proto, err = CompileSource(b, full)
		}
		if err != nil {
			return nil, m.newError("cannot compile module %s: %s", path, err.Error())
		}
		m.scripts[key] = proto
	}

	scope := NewEnvironment(m.root)
	mod := &Module{Path: path, Scope: scope, Exports: make(map[string]bool, len(proto.Chunk.Exports))}
	for _, name := range proto.Chunk.Exports {
		mod.Exports[name] = true
	}
	m.modules[key] = mod
	m.loading[key] = true
	defer delete(m.loading, key)

	// the body runs nested, preserving the caller's stack and frames, in a
	// fresh sub-scope of the root
	fn := &Function{Proto: proto, Globals: scope}
	if _, err := m.Call(fn); err != nil {
		delete(m.modules, key)
		return nil, err
	}
	return mod, nil
}
