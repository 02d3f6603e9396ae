package machine

import (
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// A Provider supplies read-only external bindings to an environment; it is
// consulted after the local map and before the parent.
type Provider interface {
	GetVar(name string) (Value, bool)
}

// An Environment is a hierarchical name to value scope: lookups walk the
// local map, then the optional provider, then the parent chain.
type Environment struct {
	vars     *swiss.Map[string, Value]
	parent   *Environment
	provider Provider
}

// NewEnvironment creates a scope with an optional parent.
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{
		vars:   swiss.NewMap[string, Value](8),
		parent: parent,
	}
}

// WithProvider attaches a read-only provider and returns the environment.
func (e *Environment) WithProvider(p Provider) *Environment {
	e.provider = p
	return e
}

// Parent returns the enclosing scope, nil at the root.
func (e *Environment) Parent() *Environment { return e.parent }

// Get looks the name up through local map, provider, then parent chain.
func (e *Environment) Get(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars.Get(name); ok {
			return v, true
		}
		if env.provider != nil {
			if v, ok := env.provider.GetVar(name); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Set updates an existing binding, walking up the chain; if the name is not
// bound anywhere it is defined in the receiver scope.
func (e *Environment) Set(name string, v Value) {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.vars.Get(name); ok {
			env.vars.Put(name, v)
			return
		}
	}
	e.vars.Put(name, v)
}

// Define writes the binding in the receiver scope, shadowing any parent
// binding of the same name.
func (e *Environment) Define(name string, v Value) {
	e.vars.Put(name, v)
}

// Has reports whether the name is bound in the receiver scope only.
func (e *Environment) Has(name string) bool {
	_, ok := e.vars.Get(name)
	return ok
}

// Clear resets the local map; parent and provider are untouched.
func (e *Environment) Clear() {
	e.vars = swiss.NewMap[string, Value](8)
}

// Names returns the locally bound names, sorted.
func (e *Environment) Names() []string {
	names := make([]string, 0, e.vars.Count())
	e.vars.Iter(func(k string, _ Value) bool {
		names = append(names, k)
		return false
	})
	slices.Sort(names)
	return names
}
