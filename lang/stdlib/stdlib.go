// Package stdlib registers the built-in globals of the language in a
// machine's root scope. The machine core only depends on the registration
// path; everything here lives behind it.
package stdlib

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/azathrix/minipanda/lang/machine"
)

// Register defines the built-in globals and the date, json and regex
// sub-objects in the machine's root scope.
func Register(m *machine.Machine) {
	root := m.Root()
	for name, fn := range builtins {
		root.Define(name, &machine.NativeFunc{Name: name, Fn: fn})
	}
	root.Define("date", dateObject())
	root.Define("json", jsonObject())
	root.Define("regex", regexObject())
	root.Define("globals", &machine.GlobalTable{Env: root})
}

type nativeFn = func(m *machine.Machine, args []machine.Value) (machine.Value, error)

func native(obj *machine.Object, name string, fn nativeFn) {
	obj.Set(name, &machine.NativeFunc{Name: name, Fn: fn})
}

var builtins = map[string]nativeFn{
	"print":      biPrint,
	"type":       biType,
	"str":        biStr,
	"num":        biNum,
	"bool":       biBool,
	"len":        biLen,
	"push":       biPush,
	"pop":        biPop,
	"range":      biRange,
	"keys":       biKeys,
	"values":     biValues,
	"contains":   biContains,
	"slice":      biSlice,
	"join":       biJoin,
	"split":      biSplit,
	"abs":        mathUnary("abs", math.Abs),
	"floor":      mathUnary("floor", math.Floor),
	"ceil":       mathUnary("ceil", math.Ceil),
	"round":      mathUnary("round", math.Round),
	"sqrt":       mathUnary("sqrt", math.Sqrt),
	"pow":        biPow,
	"min":        biMin,
	"max":        biMax,
	"random":     biRandom,
	"randomInt":  biRandomInt,
	"time":       biTime,
	"now":        biNow,
	"trace":      biTrace,
	"debug":      biDebug,
	"stacktrace": biStacktrace,
	"assert":     biAssert,
}

func wantArgs(name string, args []machine.Value, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return fmt.Errorf("%s expects %d arguments (%d given)", name, min, len(args))
		}
		return fmt.Errorf("%s expects %d to %d arguments (%d given)", name, min, max, len(args))
	}
	return nil
}

func wantNumber(name string, v machine.Value, pos int) (float64, error) {
	n, ok := machine.AsNumber(v)
	if !ok {
		return 0, fmt.Errorf("%s: argument %d must be a number, got %s", name, pos+1, v.Type())
	}
	return n, nil
}

func wantString(name string, v machine.Value, pos int) (string, error) {
	s, ok := machine.AsString(v)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %s", name, pos+1, v.Type())
	}
	return s, nil
}

func biPrint(m *machine.Machine, args []machine.Value) (machine.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	fmt.Fprintln(m.Out(), strings.Join(parts, " "))
	return machine.Null, nil
}

func biType(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("type", args, 1, 1); err != nil {
		return nil, err
	}
	return machine.String(args[0].Type()), nil
}

func biStr(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("str", args, 1, 1); err != nil {
		return nil, err
	}
	return machine.String(args[0].String()), nil
}

func biNum(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("num", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case machine.Number:
		return v, nil
	case machine.String:
		n, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return machine.Null, nil
		}
		return machine.Number(n), nil
	case machine.Bool:
		if v {
			return machine.Number(1), nil
		}
		return machine.Number(0), nil
	}
	return machine.Null, nil
}

func biBool(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("bool", args, 1, 1); err != nil {
		return nil, err
	}
	return machine.Bool(machine.Truth(args[0])), nil
}

func biLen(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case machine.String:
		return machine.Number(len(v)), nil
	case *machine.Array:
		return machine.Number(v.Len()), nil
	case *machine.Object:
		return machine.Number(v.Len()), nil
	case *machine.Range:
		return machine.Number(v.Len()), nil
	}
	return nil, fmt.Errorf("len: value of type %s has no length", args[0].Type())
}

func biPush(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("push", args, 2, -1); err != nil {
		return nil, err
	}
	arr, ok := args[0].(*machine.Array)
	if !ok {
		return nil, fmt.Errorf("push: argument 1 must be an array, got %s", args[0].Type())
	}
	arr.Elems = append(arr.Elems, args[1:]...)
	return arr, nil
}

func biPop(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("pop", args, 1, 1); err != nil {
		return nil, err
	}
	arr, ok := args[0].(*machine.Array)
	if !ok {
		return nil, fmt.Errorf("pop: argument 1 must be an array, got %s", args[0].Type())
	}
	if len(arr.Elems) == 0 {
		return machine.Null, nil
	}
	v := arr.Elems[len(arr.Elems)-1]
	arr.Elems = arr.Elems[:len(arr.Elems)-1]
	return v, nil
}

func biRange(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("range", args, 1, 3); err != nil {
		return nil, err
	}
	nums := make([]float64, len(args))
	for i, a := range args {
		n, err := wantNumber("range", a, i)
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	r := &machine.Range{Step: 1}
	switch len(nums) {
	case 1:
		r.Stop = nums[0]
	case 2:
		r.Start, r.Stop = nums[0], nums[1]
	case 3:
		r.Start, r.Stop, r.Step = nums[0], nums[1], nums[2]
		if r.Step == 0 {
			return nil, fmt.Errorf("range: step cannot be zero")
		}
	}
	return r, nil
}

func biKeys(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("keys", args, 1, 1); err != nil {
		return nil, err
	}
	obj, ok := args[0].(*machine.Object)
	if !ok {
		if inst, ok := args[0].(*machine.Instance); ok {
			obj = inst.Fields
		} else {
			return nil, fmt.Errorf("keys: argument 1 must be an object, got %s", args[0].Type())
		}
	}
	keys := obj.Keys()
	elems := make([]machine.Value, len(keys))
	for i, k := range keys {
		elems[i] = machine.String(k)
	}
	return machine.NewArray(elems), nil
}

func biValues(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("values", args, 1, 1); err != nil {
		return nil, err
	}
	obj, ok := args[0].(*machine.Object)
	if !ok {
		if inst, ok := args[0].(*machine.Instance); ok {
			obj = inst.Fields
		} else {
			return nil, fmt.Errorf("values: argument 1 must be an object, got %s", args[0].Type())
		}
	}
	return machine.NewArray(obj.Values()), nil
}

func biContains(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("contains", args, 2, 2); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case machine.String:
		sub, err := wantString("contains", args[1], 1)
		if err != nil {
			return nil, err
		}
		return machine.Bool(strings.Contains(string(v), sub)), nil
	case *machine.Array:
		for _, e := range v.Elems {
			if machine.Equal(e, args[1]) {
				return machine.True, nil
			}
		}
		return machine.False, nil
	case *machine.Object:
		key, err := wantString("contains", args[1], 1)
		if err != nil {
			return nil, err
		}
		_, ok := v.Get(key)
		return machine.Bool(ok), nil
	}
	return nil, fmt.Errorf("contains: argument 1 must be a string, array or object, got %s", args[0].Type())
}

func biSlice(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("slice", args, 2, 3); err != nil {
		return nil, err
	}
	lo, err := wantNumber("slice", args[1], 1)
	if err != nil {
		return nil, err
	}

	clamp := func(i, n int) int {
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}

	switch v := args[0].(type) {
	case machine.String:
		hi := float64(len(v))
		if len(args) == 3 {
			if hi, err = wantNumber("slice", args[2], 2); err != nil {
				return nil, err
			}
		}
		l, h := clamp(int(lo), len(v)), clamp(int(hi), len(v))
		if l > h {
			l = h
		}
		return v[l:h], nil
	case *machine.Array:
		hi := float64(len(v.Elems))
		if len(args) == 3 {
			if hi, err = wantNumber("slice", args[2], 2); err != nil {
				return nil, err
			}
		}
		l, h := clamp(int(lo), len(v.Elems)), clamp(int(hi), len(v.Elems))
		if l > h {
			l = h
		}
		return machine.NewArray(append([]machine.Value(nil), v.Elems[l:h]...)), nil
	}
	return nil, fmt.Errorf("slice: argument 1 must be a string or array, got %s", args[0].Type())
}

func biJoin(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("join", args, 1, 2); err != nil {
		return nil, err
	}
	arr, ok := args[0].(*machine.Array)
	if !ok {
		return nil, fmt.Errorf("join: argument 1 must be an array, got %s", args[0].Type())
	}
	sep := ""
	if len(args) == 2 {
		var err error
		if sep, err = wantString("join", args[1], 1); err != nil {
			return nil, err
		}
	}
	parts := make([]string, len(arr.Elems))
	for i, e := range arr.Elems {
		parts[i] = e.String()
	}
	return machine.String(strings.Join(parts, sep)), nil
}

func biSplit(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("split", args, 2, 2); err != nil {
		return nil, err
	}
	s, err := wantString("split", args[0], 0)
	if err != nil {
		return nil, err
	}
	sep, err := wantString("split", args[1], 1)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, sep)
	elems := make([]machine.Value, len(parts))
	for i, p := range parts {
		elems[i] = machine.String(p)
	}
	return machine.NewArray(elems), nil
}

func mathUnary(name string, fn func(float64) float64) nativeFn {
	return func(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		n, err := wantNumber(name, args[0], 0)
		if err != nil {
			return nil, err
		}
		return machine.Number(fn(n)), nil
	}
}

func biPow(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("pow", args, 2, 2); err != nil {
		return nil, err
	}
	x, err := wantNumber("pow", args[0], 0)
	if err != nil {
		return nil, err
	}
	y, err := wantNumber("pow", args[1], 1)
	if err != nil {
		return nil, err
	}
	return machine.Number(math.Pow(x, y)), nil
}

func biMin(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	return minMax("min", args, func(a, b float64) bool { return b < a })
}

func biMax(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	return minMax("max", args, func(a, b float64) bool { return b > a })
}

func minMax(name string, args []machine.Value, better func(cur, cand float64) bool) (machine.Value, error) {
	if err := wantArgs(name, args, 1, -1); err != nil {
		return nil, err
	}
	// a single array argument spreads over its elements
	if len(args) == 1 {
		if arr, ok := args[0].(*machine.Array); ok {
			args = arr.Elems
		}
	}
	if len(args) == 0 {
		return machine.Null, nil
	}
	best, err := wantNumber(name, args[0], 0)
	if err != nil {
		return nil, err
	}
	for i, a := range args[1:] {
		n, err := wantNumber(name, a, i+1)
		if err != nil {
			return nil, err
		}
		if better(best, n) {
			best = n
		}
	}
	return machine.Number(best), nil
}

func biRandom(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("random", args, 0, 0); err != nil {
		return nil, err
	}
	return machine.Number(rand.Float64()), nil //nolint:gosec
}

func biRandomInt(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("randomInt", args, 2, 2); err != nil {
		return nil, err
	}
	lo, err := wantNumber("randomInt", args[0], 0)
	if err != nil {
		return nil, err
	}
	hi, err := wantNumber("randomInt", args[1], 1)
	if err != nil {
		return nil, err
	}
	l, h := int64(lo), int64(hi)
	if h < l {
		return nil, fmt.Errorf("randomInt: upper bound %d is below lower bound %d", h, l)
	}
	return machine.Number(float64(l + rand.Int63n(h-l+1))), nil //nolint:gosec
}

func biTime(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("time", args, 0, 0); err != nil {
		return nil, err
	}
	return machine.Number(float64(time.Now().Unix())), nil
}

func biNow(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("now", args, 0, 0); err != nil {
		return nil, err
	}
	return machine.Number(float64(time.Now().UnixMilli())), nil
}

func biTrace(m *machine.Machine, args []machine.Value) (machine.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	fmt.Fprintln(m.ErrOut(), "trace:", strings.Join(parts, " "))
	return machine.Null, nil
}

func biDebug(m *machine.Machine, args []machine.Value) (machine.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%s(%s)", a.Type(), a.String())
	}
	fmt.Fprintln(m.ErrOut(), "debug:", strings.Join(parts, " "))
	return machine.Null, nil
}

func biStacktrace(m *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("stacktrace", args, 0, 0); err != nil {
		return nil, err
	}
	return machine.String(m.Stacktrace()), nil
}

func biAssert(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("assert", args, 1, 2); err != nil {
		return nil, err
	}
	if machine.Truth(args[0]) {
		return machine.Null, nil
	}
	if len(args) == 2 {
		return nil, fmt.Errorf("assertion failed: %s", args[1].String())
	}
	return nil, fmt.Errorf("assertion failed")
}
