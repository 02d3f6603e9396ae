package machine

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/azathrix/minipanda/lang/compiler"
	"github.com/azathrix/minipanda/lang/parser"
)

// Fixed bounds of the machine.
const (
	// StackMax is the operand stack capacity in slots.
	StackMax = 256
	// FramesMax is the call frame capacity.
	FramesMax = 64
	// HandlersMax is the exception handler capacity.
	HandlersMax = 16
)

// A callFrame records an executing function: its bytecode position and the
// stack base at which its locals begin (slot 0 holds the callee or the bound
// receiver).
type callFrame struct {
	fn       *Function
	ip       int
	base     int
	lastLine int
}

type handlerState int8

const (
	hActive    handlerState = iota
	hInCatch                // the catch block is executing
	hInFinally              // the finally block is executing
)

// A handler is the saved state of one SetupTry: the catch and finally
// targets plus the stack and frame watermarks to restore on unwind.
type handler struct {
	catchAddr   int // absolute code address, 0 when the try has no catch
	finallyAddr int // absolute code address, 0 when the try has no finally
	catchSlot   int // local slot of the catch variable, -1 if absent
	stackDepth  int
	frameCount  int
	state       handlerState
	pending     Value // exception travelling through the finally block
	pendingErr  *RuntimeError
}

// A Machine is a single-threaded virtual machine instance. Instances do not
// share mutable state: a host may run several in parallel, one goroutine
// each.
type Machine struct {
	stack        [StackMax]Value
	sp           int
	frames       [FramesMax]callFrame
	frameCount   int
	handlers     [HandlersMax]handler
	handlerCount int

	// open upvalues, ordered by descending stack index
	openUpvalues *Upvalue

	root    *Environment
	modules map[string]*Module
	loading map[string]bool
	scripts map[string]*compiler.FuncProto
	pools   iterPools

	// Loader resolves module paths; when nil, imports fail as not found.
	Loader LoadFunc
	// Debugger, when set, is consulted at source line transitions.
	Debugger Debugger
	// MaxSteps bounds the number of executed instructions; <= 0 means no
	// limit.
	MaxSteps int
	steps    int

	// Stdout, Stderr and Stdin are the standard I/O abstractions for native
	// functions. If nil, the process streams are used.
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// New creates a machine with an empty root scope and the default file
// loader rooted at the current directory.
func New() *Machine {
	return &Machine{
		root:    NewEnvironment(nil),
		modules: make(map[string]*Module),
		loading: make(map[string]bool),
		scripts: make(map[string]*compiler.FuncProto),
		Loader:  DefaultLoader("."),
	}
}

// Root returns the root scope, in which global-declared names live.
func (m *Machine) Root() *Environment { return m.root }

// Out returns the stdout writer for native functions.
func (m *Machine) Out() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// ErrOut returns the stderr writer for native functions.
func (m *Machine) ErrOut() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

// CompileSource parses and compiles a source buffer to its top-level
// prototype.
func CompileSource(src []byte, filename string) (*compiler.FuncProto, error) {
	prog, err := parser.Parse(src, filename)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(prog)
}

// RegisterScript pre-seeds the compiled-script cache under a module name,
// so a later import resolves without invoking the loader.
func (m *Machine) RegisterScript(name string, proto *compiler.FuncProto) {
	m.scripts[moduleKey(name)] = proto
}

// ClearModuleCache drops all cached modules; their bodies will re-execute
// on the next import.
func (m *Machine) ClearModuleCache() {
	m.modules = make(map[string]*Module)
}

// RunProto executes a compiled prototype against the given globals scope
// (the root scope when nil) and returns the script's result value.
func (m *Machine) RunProto(proto *compiler.FuncProto, globals *Environment) (Value, error) {
	if globals == nil {
		globals = m.root
	}
	fn := &Function{Proto: proto, Globals: globals}
	return m.Call(fn)
}

// Call invokes a callable value with the given arguments. It is the entry
// point used by the embedding layer and re-entrant native functions.
func (m *Machine) Call(callee Value, args ...Value) (Value, error) {
	if m.sp+len(args)+1 >= StackMax {
		return nil, m.newError("stack overflow")
	}
	baseFrame, baseHandler, baseSp := m.frameCount, m.handlerCount, m.sp
	m.push(callee)
	for _, a := range args {
		m.push(a)
	}
	if err := m.callValue(callee, len(args)); err != nil {
		m.recoverState(baseFrame, baseHandler, baseSp)
		return nil, m.asRuntimeError(err)
	}
	if m.frameCount == baseFrame {
		// native or argument-less class call, already completed
		return m.pop(), nil
	}
	res, err := m.run(baseFrame, baseHandler)
	if err != nil {
		m.recoverState(baseFrame, baseHandler, baseSp)
		return nil, err
	}
	return res, nil
}

// recoverState rewinds the machine after an escaped error so that it stays
// usable for the next entry.
func (m *Machine) recoverState(baseFrame, baseHandler, baseSp int) {
	m.closeUpvalues(baseSp)
	m.releaseIterators(baseSp, m.sp)
	m.sp = baseSp
	m.frameCount = baseFrame
	m.handlerCount = baseHandler
}

// ---- stack primitives ----

func (m *Machine) push(v Value) {
	m.stack[m.sp] = v
	m.sp++
}

func (m *Machine) pop() Value {
	m.sp--
	return m.stack[m.sp]
}

// peek returns the value n slots below the top without popping.
func (m *Machine) peek(n int) Value {
	return m.stack[m.sp-1-n]
}

// ---- upvalues ----

// captureUpvalue returns the open upvalue for the stack slot, creating and
// inserting it in descending-index order if none exists yet.
func (m *Machine) captureUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	uv := m.openUpvalues
	for uv != nil && uv.slot > slot {
		prev = uv
		uv = uv.next
	}
	if uv != nil && uv.slot == slot {
		return uv
	}
	created := &Upvalue{slot: slot, next: uv}
	if prev == nil {
		m.openUpvalues = created
	} else {
		prev.next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above the threshold slot,
// copying the stack value into the upvalue. Each open upvalue is closed
// exactly once, when its slot is about to leave the stack.
func (m *Machine) closeUpvalues(threshold int) {
	for m.openUpvalues != nil && m.openUpvalues.slot >= threshold {
		uv := m.openUpvalues
		uv.value = m.stack[uv.slot]
		uv.closed = true
		m.openUpvalues = uv.next
		uv.next = nil
	}
}

// releaseIterators returns any iterator held in the given stack range to
// its pool; used when unwinding past hidden loop slots.
func (m *Machine) releaseIterators(from, to int) {
	for i := from; i < to; i++ {
		if it, ok := m.stack[i].(Iterator); ok {
			m.pools.giveBack(it)
			m.stack[i] = Null
		}
	}
}

// ---- errors and exception dispatch ----

func (m *Machine) newError(format string, args ...any) *RuntimeError {
	e := &RuntimeError{Msg: fmt.Sprintf(format, args...)}
	if m.frameCount > 0 {
		frame := &m.frames[m.frameCount-1]
		ch := frame.fn.Proto.Chunk
		e.File = ch.File
		e.Line = ch.Line(frame.ip - 1)
	}
	e.Trace = m.captureTrace()
	return e
}

func (m *Machine) captureTrace() []TraceFrame {
	trace := make([]TraceFrame, 0, m.frameCount)
	for i := m.frameCount - 1; i >= 0; i-- {
		frame := &m.frames[i]
		ch := frame.fn.Proto.Chunk
		ip := frame.ip
		if ip > 0 {
			ip--
		}
		trace = append(trace, TraceFrame{
			Function: frame.fn.Name(),
			File:     ch.File,
			Line:     ch.Line(ip),
		})
	}
	return trace
}

// Stacktrace formats the current call stack, innermost first; exposed for
// the stacktrace built-in.
func (m *Machine) Stacktrace() string {
	var sb strings.Builder
	for _, fr := range m.captureTrace() {
		sb.WriteString(fr.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (m *Machine) asRuntimeError(err error) *RuntimeError {
	if rte, ok := err.(*RuntimeError); ok {
		return rte
	}
	e := m.newError("%s", err.Error())
	return e
}

// raise walks the handler stack, most recently pushed first, unwinding the
// operand stack and call frames to each handler's watermarks. Handlers below
// baseHandler belong to an outer run invocation and are out of reach: the
// exception then escapes this run as an error.
func (m *Machine) raise(v Value, rte *RuntimeError, baseHandler int) bool {
	for m.handlerCount > baseHandler {
		h := &m.handlers[m.handlerCount-1]
		switch {
		case h.catchAddr != 0 && h.state == hActive:
			m.unwindTo(h.stackDepth, h.frameCount)
			h.state = hInCatch
			m.push(v)
			m.frames[m.frameCount-1].ip = h.catchAddr
			return true

		case h.finallyAddr != 0 && h.state != hInFinally:
			m.unwindTo(h.stackDepth, h.frameCount)
			h.state = hInFinally
			h.pending = v
			h.pendingErr = rte
			m.frames[m.frameCount-1].ip = h.finallyAddr
			return true

		default:
			m.handlerCount--
		}
	}
	return false
}

// raiseError funnels a Go error through the script-level handlers; thrown
// script values keep their identity, other errors surface as their message
// string.
func (m *Machine) raiseError(err error, baseHandler int) bool {
	rte := m.asRuntimeError(err)
	v := rte.Thrown
	if v == nil {
		v = String(rte.Msg)
	}
	return m.raise(v, rte, baseHandler)
}

func (m *Machine) unwindTo(depth, frames int) {
	m.closeUpvalues(depth)
	m.releaseIterators(depth, m.sp)
	m.sp = depth
	m.frameCount = frames
}

// ---- calls ----

func (m *Machine) callValue(callee Value, argc int) error {
	switch callee := callee.(type) {
	case *Function:
		return m.callFunction(callee, argc)

	case *BoundMethod:
		m.stack[m.sp-argc-1] = callee.Receiver
		return m.callFunction(callee.Fn, argc)

	case *Class:
		inst := NewInstance(callee)
		m.stack[m.sp-argc-1] = inst
		if ctor, ok := callee.Methods[callee.Name]; ok {
			return m.callFunction(ctor, argc)
		}
		if argc > 0 {
			return m.newError("class %s expects no constructor arguments (%d given)", callee.Name, argc)
		}
		return nil

	case *NativeFunc:
		args := make([]Value, argc)
		copy(args, m.stack[m.sp-argc:m.sp])
		m.sp -= argc + 1
		res, err := callee.Fn(m, args)
		if err != nil {
			if rte, ok := err.(*RuntimeError); ok {
				return rte
			}
			return m.newError("%s: %s", callee.Name, err.Error())
		}
		if res == nil {
			res = Null
		}
		m.push(res)
		return nil
	}
	return m.newError("value of type %s is not callable", callee.Type())
}

// callFunction pushes a frame for a script function. Missing arguments are
// padded with null up to the arity (defaults apply in the prologue); extra
// arguments require a rest parameter and are collected into an array.
func (m *Machine) callFunction(fn *Function, argc int) error {
	proto := fn.Proto
	if argc > proto.Arity && proto.Rest == "" {
		return m.newError("function %s expects at most %d arguments (%d given)", fn.Name(), proto.Arity, argc)
	}
	if m.sp+(proto.Arity-argc)+1 >= StackMax {
		return m.newError("stack overflow")
	}
	for argc < proto.Arity {
		m.push(Null)
		argc++
	}
	nslots := proto.Arity
	if proto.Rest != "" {
		extra := argc - proto.Arity
		elems := make([]Value, extra)
		copy(elems, m.stack[m.sp-extra:m.sp])
		m.sp -= extra
		m.push(NewArray(elems))
		nslots++
	}
	if m.frameCount >= FramesMax {
		return m.newError("stack overflow")
	}
	frame := &m.frames[m.frameCount]
	m.frameCount++
	frame.fn = fn
	frame.ip = 0
	frame.base = m.sp - nslots - 1
	frame.lastLine = -1
	return nil
}

// ---- the interpreter loop ----

// run executes frames until a Return brings the frame count back to
// baseFrame, and returns the result left on the stack. Exception dispatch
// is bounded below by baseHandler.
func (m *Machine) run(baseFrame, baseHandler int) (Value, error) {
	for {
		frame := &m.frames[m.frameCount-1]
		ch := frame.fn.Proto.Chunk
		code := ch.Code

		if m.MaxSteps > 0 {
			m.steps++
			if m.steps > m.MaxSteps {
				return nil, m.newError("execution budget exceeded (%d steps)", m.MaxSteps)
			}
		}
		if m.sp >= StackMax-2 {
			err := m.newError("stack overflow")
			if m.raiseError(err, baseHandler) {
				continue
			}
			return nil, err
		}
		if m.Debugger != nil {
			line := ch.Line(frame.ip)
			if line != frame.lastLine {
				frame.lastLine = line
				if stop, reason := m.Debugger.ShouldStop(ch.File, line, m.frameCount); stop {
					m.Debugger.OnStopped(reason, ch.File, line)
					debugPause(m.Debugger)
				}
			}
		}

		op := compiler.Opcode(code[frame.ip])
		frame.ip++

		readByte := func() byte {
			b := code[frame.ip]
			frame.ip++
			return b
		}
		readU16 := func() int {
			v := int(code[frame.ip])<<8 | int(code[frame.ip+1])
			frame.ip += 2
			return v
		}

		var err error

		switch op {
		case compiler.Const:
			m.push(constValue(ch.Constants[readU16()]))

		case compiler.Null:
			m.push(Null)
		case compiler.True:
			m.push(True)
		case compiler.False:
			m.push(False)

		case compiler.Pop:
			m.sp--
		case compiler.Dup:
			m.push(m.stack[m.sp-1])
		case compiler.Dup2:
			m.push(m.stack[m.sp-2])
			m.push(m.stack[m.sp-2])
		case compiler.Swap:
			m.stack[m.sp-2], m.stack[m.sp-1] = m.stack[m.sp-1], m.stack[m.sp-2]
		case compiler.SwapUnder:
			m.stack[m.sp-3], m.stack[m.sp-2] = m.stack[m.sp-2], m.stack[m.sp-3]
		case compiler.Rot3Under:
			w, x, y := m.stack[m.sp-4], m.stack[m.sp-3], m.stack[m.sp-2]
			m.stack[m.sp-4], m.stack[m.sp-3], m.stack[m.sp-2] = y, w, x

		case compiler.GetLocal:
			m.push(m.stack[frame.base+int(readByte())])
		case compiler.SetLocal:
			m.stack[frame.base+int(readByte())] = m.stack[m.sp-1]

		case compiler.GetUpvalue:
			uv := frame.fn.Upvalues[readByte()]
			if uv.closed {
				m.push(uv.value)
			} else {
				m.push(m.stack[uv.slot])
			}
		case compiler.SetUpvalue:
			uv := frame.fn.Upvalues[readByte()]
			if uv.closed {
				uv.value = m.stack[m.sp-1]
			} else {
				m.stack[uv.slot] = m.stack[m.sp-1]
			}
		case compiler.CloseUpvalue:
			m.closeUpvalues(m.sp - 1)
			m.sp--

		case compiler.GetGlobal:
			name := ch.Constants[readU16()].(string)
			v, ok := frame.fn.Globals.Get(name)
			if !ok {
				err = m.newError("undefined variable %s", name)
				break
			}
			m.push(v)
		case compiler.SetGlobal:
			name := ch.Constants[readU16()].(string)
			frame.fn.Globals.Set(name, m.stack[m.sp-1])
		case compiler.DefineGlobal:
			name := ch.Constants[readU16()].(string)
			frame.fn.Globals.Define(name, m.pop())
		case compiler.DefineRootGlobal:
			name := ch.Constants[readU16()].(string)
			m.root.Define(name, m.pop())

		case compiler.Add:
			y, x := m.pop(), m.pop()
			z := addValues(x, y)
			if z == nil {
				err = m.newError("unsupported operand types for +: %s and %s", x.Type(), y.Type())
				break
			}
			m.push(z)
		case compiler.Subtract, compiler.Multiply, compiler.Divide, compiler.Modulo:
			y, x := m.pop(), m.pop()
			xn, ok1 := AsNumber(x)
			yn, ok2 := AsNumber(y)
			if !ok1 || !ok2 {
				err = m.newError("unsupported operand types for %s: %s and %s", arithName(op), x.Type(), y.Type())
				break
			}
			var r float64
			switch op {
			case compiler.Subtract:
				r = xn - yn
			case compiler.Multiply:
				r = xn * yn
			case compiler.Divide:
				r = xn / yn // division by zero yields ±Inf
			case compiler.Modulo:
				r = math.Mod(xn, yn)
			}
			m.push(Number(r))

		case compiler.Negate:
			n, ok := AsNumber(m.pop())
			if !ok {
				err = m.newError("operand of - must be a number")
				break
			}
			m.push(Number(-n))
		case compiler.Not:
			m.push(Bool(!Truth(m.pop())))
		case compiler.BitNot:
			n, ok := AsNumber(m.pop())
			if !ok {
				err = m.newError("operand of ~ must be a number")
				break
			}
			m.push(Number(float64(^toInt64(n))))

		case compiler.Equal:
			y, x := m.pop(), m.pop()
			m.push(Bool(Equal(x, y)))
		case compiler.NotEqual:
			y, x := m.pop(), m.pop()
			m.push(Bool(!Equal(x, y)))

		case compiler.Less, compiler.LessEqual, compiler.Greater, compiler.GreaterEqual:
			y, x := m.pop(), m.pop()
			var res Value
			res, err = compareValues(op, x, y)
			if err != nil {
				err = m.asRuntimeError(err)
				break
			}
			m.push(res)

		case compiler.BitAnd, compiler.BitOr, compiler.BitXor, compiler.ShiftLeft, compiler.ShiftRight:
			y, x := m.pop(), m.pop()
			xn, ok1 := AsNumber(x)
			yn, ok2 := AsNumber(y)
			if !ok1 || !ok2 {
				err = m.newError("unsupported operand types for %s: %s and %s", arithName(op), x.Type(), y.Type())
				break
			}
			xi, yi := toInt64(xn), toInt64(yn)
			var r int64
			switch op {
			case compiler.BitAnd:
				r = xi & yi
			case compiler.BitOr:
				r = xi | yi
			case compiler.BitXor:
				r = xi ^ yi
			case compiler.ShiftLeft:
				r = xi << (uint64(yi) & 63)
			case compiler.ShiftRight:
				r = xi >> (uint64(yi) & 63)
			}
			m.push(Number(float64(r)))

		case compiler.Jump:
			off := readU16()
			frame.ip += off
		case compiler.JumpIfFalse:
			off := readU16()
			if !Truth(m.stack[m.sp-1]) {
				frame.ip += off
			}
		case compiler.JumpIfTrue:
			off := readU16()
			if Truth(m.stack[m.sp-1]) {
				frame.ip += off
			}
		case compiler.JumpIfNotNull:
			off := readU16()
			if _, isNull := m.stack[m.sp-1].(NullType); !isNull {
				frame.ip += off
			}
		case compiler.Loop:
			off := readU16()
			frame.ip -= off

		case compiler.Call:
			argc := int(readByte())
			err = m.callValue(m.peek(argc), argc)

		case compiler.Invoke:
			name := ch.Constants[readU16()].(string)
			argc := int(readByte())
			err = m.invoke(name, argc)

		case compiler.Return:
			result := m.pop()
			m.closeUpvalues(frame.base)
			m.releaseIterators(frame.base, m.sp)
			m.frameCount--
			for m.handlerCount > baseHandler && m.handlers[m.handlerCount-1].frameCount > m.frameCount {
				m.handlerCount--
			}
			m.sp = frame.base
			m.push(result)
			if m.frameCount == baseFrame {
				return m.pop(), nil
			}

		case compiler.Closure:
			proto := ch.Constants[readU16()].(*compiler.FuncProto)
			fn := &Function{Proto: proto, Globals: frame.fn.Globals}
			fn.Upvalues = make([]*Upvalue, len(proto.Upvalues))
			for i := range proto.Upvalues {
				isLocal := readByte() == 1
				index := int(readByte())
				if isLocal {
					fn.Upvalues[i] = m.captureUpvalue(frame.base + index)
				} else {
					fn.Upvalues[i] = frame.fn.Upvalues[index]
				}
			}
			m.push(fn)

		case compiler.NewArray:
			n := readU16()
			elems := make([]Value, n)
			copy(elems, m.stack[m.sp-n:m.sp])
			m.sp -= n
			m.push(NewArray(elems))

		case compiler.NewObject:
			m.push(NewObject())

		case compiler.GetField:
			name := ch.Constants[readU16()].(string)
			obj := m.pop()
			var v Value
			v, err = m.getProperty(obj, name)
			if err == nil {
				m.push(v)
			}

		case compiler.SetField:
			name := ch.Constants[readU16()].(string)
			val := m.pop()
			obj, ok := m.stack[m.sp-1].(*Object)
			if !ok {
				err = m.newError("cannot set field %s on %s", name, m.stack[m.sp-1].Type())
				break
			}
			obj.Set(name, val)

		case compiler.GetIndex:
			key, obj := m.pop(), m.pop()
			var v Value
			v, err = m.getIndex(obj, key)
			if err == nil {
				m.push(v)
			}

		case compiler.SetIndex:
			val, key, obj := m.pop(), m.pop(), m.pop()
			err = m.setIndex(obj, key, val)
			if err == nil {
				m.push(val)
			}

		case compiler.GetProperty:
			name := ch.Constants[readU16()].(string)
			obj := m.pop()
			var v Value
			v, err = m.getProperty(obj, name)
			if err == nil {
				m.push(v)
			}

		case compiler.SetProperty:
			name := ch.Constants[readU16()].(string)
			val, obj := m.pop(), m.pop()
			err = m.setProperty(obj, name, val)
			if err == nil {
				m.push(val)
			}

		case compiler.Class:
			cp := ch.Constants[readU16()].(*compiler.ClassProto)
			m.push(NewClass(cp.Name))

		case compiler.Inherit:
			superV := m.pop()
			sup, ok := superV.(*Class)
			if !ok {
				err = m.newError("superclass must be a class, got %s", superV.Type())
				break
			}
			cls := m.stack[m.sp-1].(*Class)
			cls.Super = sup
			// copy parent methods; the child's own methods attach afterwards
			// and overwrite
			for name, fn := range sup.Methods {
				cls.Methods[name] = fn
			}

		case compiler.Method:
			name := ch.Constants[readU16()].(string)
			fn := m.pop().(*Function)
			cls := m.stack[m.sp-1].(*Class)
			fn.Owner = cls
			cls.Methods[name] = fn

		case compiler.StaticMethod:
			name := ch.Constants[readU16()].(string)
			fn := m.pop().(*Function)
			cls := m.stack[m.sp-1].(*Class)
			fn.Owner = cls
			cls.StaticMethods[name] = fn

		case compiler.StaticField:
			name := ch.Constants[readU16()].(string)
			val := m.pop()
			cls := m.stack[m.sp-1].(*Class)
			cls.StaticFields.Set(name, val)

		case compiler.This:
			m.push(m.stack[frame.base])

		case compiler.GetSuper:
			name := ch.Constants[readU16()].(string)
			this := m.pop()
			owner := frame.fn.Owner
			if owner == nil || owner.Super == nil {
				err = m.newError("super is only valid in a method of a subclass")
				break
			}
			method, ok := owner.Super.Methods[name]
			if !ok {
				err = m.newError("undefined method %s on superclass %s", name, owner.Super.Name)
				break
			}
			m.push(&BoundMethod{Receiver: this, Fn: method})

		case compiler.BuildString:
			n := readU16()
			var sb strings.Builder
			for i := m.sp - n; i < m.sp; i++ {
				sb.WriteString(m.stack[i].String())
			}
			m.sp -= n
			m.push(String(sb.String()))

		case compiler.GetIter:
			v := m.pop()
			it := m.pools.rent(v)
			if it == nil {
				err = m.newError("value of type %s is not iterable", v.Type())
				break
			}
			m.push(it)

		case compiler.ForIterLocal:
			slot := int(readByte())
			off := readU16()
			it := m.stack[frame.base+slot].(Iterator)
			if it.HasNext() {
				m.push(it.Next())
			} else {
				m.pools.giveBack(it)
				m.stack[frame.base+slot] = Null
				frame.ip += off
			}

		case compiler.ForIterKVLocal:
			slot := int(readByte())
			off := readU16()
			it := m.stack[frame.base+slot].(Iterator)
			if it.HasNext() {
				k, v := it.NextKV()
				m.push(k)
				m.push(v)
			} else {
				m.pools.giveBack(it)
				m.stack[frame.base+slot] = Null
				frame.ip += off
			}

		case compiler.CloseIter:
			slot := int(readByte())
			if it, ok := m.stack[frame.base+slot].(Iterator); ok {
				m.pools.giveBack(it)
				m.stack[frame.base+slot] = Null
			}

		case compiler.Import:
			path := ch.Constants[readU16()].(string)
			aliasIdx := readU16()
			isGlobal := readByte() == 1
			var mod *Module
			mod, err = m.importModule(path)
			if err != nil {
				break
			}
			if isGlobal {
				name := lastSegment(path)
				if aliasIdx != 0xFFFF {
					name = ch.Constants[aliasIdx].(string)
				}
				m.root.Define(name, mod)
			} else {
				m.push(mod)
			}

		case compiler.SetupTry:
			if m.handlerCount >= HandlersMax {
				err = m.newError("too many nested try blocks")
				break
			}
			catchOff := readU16()
			catchAddr := 0
			if catchOff != 0 {
				catchAddr = frame.ip + catchOff
			}
			finallyOff := readU16()
			finallyAddr := 0
			if finallyOff != 0 {
				finallyAddr = frame.ip + finallyOff
			}
			slot := readByte()
			catchSlot := -1
			if slot != 0xFF {
				catchSlot = int(slot)
			}
			m.handlers[m.handlerCount] = handler{
				catchAddr:   catchAddr,
				finallyAddr: finallyAddr,
				catchSlot:   catchSlot,
				stackDepth:  m.sp,
				frameCount:  m.frameCount,
				state:       hActive,
			}
			m.handlerCount++

		case compiler.EndTry:
			h := &m.handlers[m.handlerCount-1]
			if h.finallyAddr != 0 {
				h.state = hInFinally
				h.pending = nil
				h.pendingErr = nil
			} else {
				m.handlerCount--
			}

		case compiler.Throw:
			v := m.pop()
			rte := m.newError("uncaught exception: %s", v.String())
			rte.Thrown = v
			if !m.raise(v, rte, baseHandler) {
				return nil, rte
			}

		case compiler.EndFinally:
			m.handlerCount--
			h := m.handlers[m.handlerCount]
			if h.pending != nil {
				if !m.raise(h.pending, h.pendingErr, baseHandler) {
					if h.pendingErr != nil {
						return nil, h.pendingErr
					}
					return nil, m.newError("uncaught exception: %s", h.pending.String())
				}
			}

		default:
			err = m.newError("unknown opcode %d", op)
		}

		if err != nil {
			if m.raiseError(err, baseHandler) {
				continue
			}
			return nil, m.asRuntimeError(err)
		}
	}
}

// constValue converts a constant pool entry to its runtime value.
func constValue(c any) Value {
	switch c := c.(type) {
	case nil:
		return Null
	case bool:
		return Bool(c)
	case float64:
		return Number(c)
	case string:
		return String(c)
	}
	panic(fmt.Sprintf("constant %T cannot be pushed directly", c))
}

func arithName(op compiler.Opcode) string {
	switch op {
	case compiler.Subtract:
		return "-"
	case compiler.Multiply:
		return "*"
	case compiler.Divide:
		return "/"
	case compiler.Modulo:
		return "%"
	case compiler.BitAnd:
		return "&"
	case compiler.BitOr:
		return "|"
	case compiler.BitXor:
		return "^"
	case compiler.ShiftLeft:
		return "<<"
	case compiler.ShiftRight:
		return ">>"
	}
	return op.String()
}

// addValues implements +, overloaded to string concatenation whenever either
// operand is a string; nil signals unsupported operands.
func addValues(x, y Value) Value {
	if xn, ok := x.(Number); ok {
		if yn, ok := y.(Number); ok {
			return xn + yn
		}
	}
	_, xs := x.(String)
	_, ys := y.(String)
	if xs || ys {
		return String(x.String() + y.String())
	}
	return nil
}

func compareValues(op compiler.Opcode, x, y Value) (Value, error) {
	if xn, ok := x.(Number); ok {
		if yn, ok := y.(Number); ok {
			switch op {
			case compiler.Less:
				return Bool(xn < yn), nil
			case compiler.LessEqual:
				return Bool(xn <= yn), nil
			case compiler.Greater:
				return Bool(xn > yn), nil
			case compiler.GreaterEqual:
				return Bool(xn >= yn), nil
			}
		}
	}
	if xs, ok := x.(String); ok {
		if ys, ok := y.(String); ok {
			switch op {
			case compiler.Less:
				return Bool(xs < ys), nil
			case compiler.LessEqual:
				return Bool(xs <= ys), nil
			case compiler.Greater:
				return Bool(xs > ys), nil
			case compiler.GreaterEqual:
				return Bool(xs >= ys), nil
			}
		}
	}
	return nil, fmt.Errorf("values of types %s and %s are not comparable", x.Type(), y.Type())
}
