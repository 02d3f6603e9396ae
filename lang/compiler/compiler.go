// Package compiler takes a parsed AST and compiles it to bytecode that can
// be executed by the virtual machine. Compilation is single-pass: locals and
// upvalues are resolved during emission and no intermediate representation
// is retained. The package also implements the MPBC binary envelope and a
// disassembler.
package compiler

import (
	"fmt"
	"math"

	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/token"
)

// Error is a compilation error with its source position.
type Error struct {
	Msg  string
	File string
	Line int
	Col  int
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// FuncType describes the kind of function being compiled; it affects slot 0
// and the implicit return value.
type FuncType int8

const (
	FuncScript FuncType = iota
	FuncFunction
	FuncLambda
	FuncMethod
	FuncInitializer
)

// Compile compiles a parsed program to its top-level function prototype.
// The returned error, if non-nil, is an *Error.
func Compile(prog *ast.Program) (proto *FuncProto, err error) {
	fc := newFcomp(nil, FuncScript, prog.File, "<script>", "")
	defer fc.recoverError(&err)

	for _, st := range prog.Stmts {
		fc.stmt(st)
	}
	return fc.finish(), nil
}

type compileFailure struct{ err *Error }

// fcomp holds the per-function compiler state; nested functions are compiled
// by a fresh child fcomp linked to its enclosing one for upvalue resolution.
type fcomp struct {
	enclosing *fcomp
	proto     *FuncProto
	ftype     FuncType
	file      string

	locals     []local
	scopeDepth int
	loops      []*loopInfo
	tries      []*tryInfo

	constIndex map[any]uint16

	line int // current source line for emitted code
}

type local struct {
	name     string
	depth    int
	captured bool
}

type loopInfo struct {
	start      int
	scopeDepth int
	breaks     []int
	iterSlot   int // -1 for while loops
	triesAt    int // len(tries) at loop entry
}

type tryInfo struct {
	finally   *ast.BlockStmt // nil if the try has no finally
	inFinally bool
}

func newFcomp(enclosing *fcomp, ftype FuncType, file, name, className string) *fcomp {
	fc := &fcomp{
		enclosing: enclosing,
		ftype:     ftype,
		file:      file,
		proto: &FuncProto{
			Name:      name,
			ClassName: className,
			IsInit:    ftype == FuncInitializer,
			Chunk:     &Chunk{File: file},
		},
		constIndex: make(map[any]uint16),
	}
	// slot 0 is reserved: the receiver in methods and initializers, unnamed
	// in scripts, functions and lambdas.
	slot0 := ""
	if ftype == FuncMethod || ftype == FuncInitializer {
		slot0 = "this"
	}
	fc.locals = append(fc.locals, local{name: slot0, depth: 0})
	return fc
}

func (fc *fcomp) recoverError(err *error) {
	if r := recover(); r != nil {
		cf, ok := r.(compileFailure)
		if !ok {
			panic(r)
		}
		*err = cf.err
	}
}

func (fc *fcomp) errorf(node ast.Node, format string, args ...any) {
	line, col := 0, 0
	if node != nil {
		line, col = node.Pos()
	}
	panic(compileFailure{&Error{
		Msg:  fmt.Sprintf(format, args...),
		File: fc.file,
		Line: line,
		Col:  col,
	}})
}

// finish seals the function: emits the implicit return, attributed to the
// last compiled line, and returns the completed prototype.
func (fc *fcomp) finish() *FuncProto {
	fc.emitReturnValue()
	fc.emit(Return)
	for _, l := range fc.locals {
		fc.proto.Locals = append(fc.proto.Locals, l.name)
	}
	return fc.proto
}

// emitReturnValue pushes the implicit return value: the receiver for
// initializers, null otherwise.
func (fc *fcomp) emitReturnValue() {
	if fc.ftype == FuncInitializer {
		fc.emit(This)
	} else {
		fc.emit(Null)
	}
}

// ---- emission helpers ----

func (fc *fcomp) at(node ast.Node) {
	if node != nil {
		line, _ := node.Pos()
		fc.line = line
	}
}

func (fc *fcomp) emit(op Opcode) int {
	pc := len(fc.proto.Chunk.Code)
	fc.proto.Chunk.WriteByte(byte(op), fc.line)
	return pc
}

func (fc *fcomp) emitByte(b byte) {
	fc.proto.Chunk.WriteByte(b, fc.line)
}

func (fc *fcomp) emitU16(v uint16) {
	fc.proto.Chunk.WriteByte(byte(v>>8), fc.line)
	fc.proto.Chunk.WriteByte(byte(v), fc.line)
}

// addConstant interns a constant pool entry and returns its index. Primitive
// constants are deduplicated; prototypes are always appended.
func (fc *fcomp) addConstant(node ast.Node, v any) uint16 {
	switch v.(type) {
	case nil, bool, float64, string:
		if idx, ok := fc.constIndex[v]; ok {
			return idx
		}
	}
	ch := fc.proto.Chunk
	if len(ch.Constants) >= MaxConstants {
		fc.errorf(node, "too many constants in one chunk")
	}
	ch.Constants = append(ch.Constants, v)
	idx := uint16(len(ch.Constants) - 1)
	switch v.(type) {
	case nil, bool, float64, string:
		fc.constIndex[v] = idx
	}
	return idx
}

func (fc *fcomp) emitConst(node ast.Node, v any) {
	switch v {
	case nil:
		fc.emit(Null)
		return
	case true:
		fc.emit(True)
		return
	case false:
		fc.emit(False)
		return
	}
	idx := fc.addConstant(node, v)
	fc.emit(Const)
	fc.emitU16(idx)
}

func (fc *fcomp) nameConstant(node ast.Node, name string) uint16 {
	return fc.addConstant(node, name)
}

// emitJump writes a forward jump with a placeholder offset and returns the
// position to patch.
func (fc *fcomp) emitJump(op Opcode) int {
	fc.emit(op)
	fc.emitU16(0xFFFF)
	return len(fc.proto.Chunk.Code) - 2
}

func (fc *fcomp) patchJump(node ast.Node, pos int) {
	off := len(fc.proto.Chunk.Code) - (pos + 2)
	if off > MaxJump {
		fc.errorf(node, "jump too large to encode (%d bytes)", off)
	}
	fc.proto.Chunk.Code[pos] = byte(off >> 8)
	fc.proto.Chunk.Code[pos+1] = byte(off)
}

// emitLoop writes a backward jump to the given code position.
func (fc *fcomp) emitLoop(node ast.Node, start int) {
	fc.emit(Loop)
	off := len(fc.proto.Chunk.Code) + 2 - start
	if off > MaxJump {
		fc.errorf(node, "loop body too large to encode (%d bytes)", off)
	}
	fc.emitU16(uint16(off))
}

// ---- scopes and name resolution ----

func (fc *fcomp) beginScope() { fc.scopeDepth++ }

func (fc *fcomp) endScope() {
	fc.scopeDepth--
	for len(fc.locals) > 0 {
		l := fc.locals[len(fc.locals)-1]
		if l.depth <= fc.scopeDepth {
			break
		}
		if l.captured {
			fc.emit(CloseUpvalue)
		} else {
			fc.emit(Pop)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

// discardLocals emits the pops needed to unwind locals deeper than depth
// without truncating the compile-time table; used by break and continue.
func (fc *fcomp) discardLocals(depth int) {
	for i := len(fc.locals) - 1; i >= 0 && fc.locals[i].depth > depth; i-- {
		if fc.locals[i].captured {
			fc.emit(CloseUpvalue)
		} else {
			fc.emit(Pop)
		}
	}
}

func (fc *fcomp) declareLocal(node ast.Node, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		l := fc.locals[i]
		if l.depth < fc.scopeDepth {
			break
		}
		if l.name == name {
			fc.errorf(node, "variable %s is already declared in this scope", name)
		}
	}
	if len(fc.locals) > MaxLocals {
		fc.errorf(node, "too many local variables in function (max %d)", MaxLocals)
	}
	fc.locals = append(fc.locals, local{name: name, depth: fc.scopeDepth})
	return len(fc.locals) - 1
}

func (fc *fcomp) resolveLocal(name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return i
		}
	}
	return -1
}

func (fc *fcomp) resolveUpvalue(node ast.Node, name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if slot := fc.enclosing.resolveLocal(name); slot >= 0 {
		fc.enclosing.locals[slot].captured = true
		return fc.addUpvalue(node, uint8(slot), true)
	}
	if uv := fc.enclosing.resolveUpvalue(node, name); uv >= 0 {
		return fc.addUpvalue(node, uint8(uv), false)
	}
	return -1
}

func (fc *fcomp) addUpvalue(node ast.Node, index uint8, isLocal bool) int {
	for i, uv := range fc.proto.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	if len(fc.proto.Upvalues) >= MaxUpvalues {
		fc.errorf(node, "too many captured variables in function (max %d)", MaxUpvalues)
	}
	fc.proto.Upvalues = append(fc.proto.Upvalues, UpvalueDesc{IsLocal: isLocal, Index: index})
	return len(fc.proto.Upvalues) - 1
}

// ---- statements ----

func (fc *fcomp) stmt(s ast.Stmt) {
	fc.at(s)
	switch s := s.(type) {
	case *ast.VarDecl:
		if s.Value != nil {
			fc.expr(s.Value)
		} else {
			fc.emit(Null)
		}
		fc.defineVariable(s, s.Name, s.Global, s.Export)

	case *ast.FuncDecl:
		// declare the name before compiling the body so the function can
		// refer to itself through its local slot
		if fc.scopeDepth > 0 && !s.Global {
			fc.declareLocal(s, s.Fn.Name)
			fc.method(s.Fn, FuncFunction, nil, nil, false)
			return
		}
		fc.method(s.Fn, FuncFunction, nil, nil, false)
		fc.defineGlobalName(s, s.Fn.Name, s.Global, s.Export)

	case *ast.ClassDecl:
		fc.classDecl(s)

	case *ast.EnumDecl:
		fc.enumDecl(s)

	case *ast.ImportStmt:
		fc.importStmt(s)

	case *ast.IfStmt:
		fc.expr(s.Cond)
		elseJump := fc.emitJump(JumpIfFalse)
		fc.emit(Pop)
		fc.stmt(s.Then)
		endJump := fc.emitJump(Jump)
		fc.patchJump(s, elseJump)
		fc.emit(Pop)
		if s.Else != nil {
			fc.stmt(s.Else)
		}
		fc.patchJump(s, endJump)

	case *ast.WhileStmt:
		loop := &loopInfo{
			start:      len(fc.proto.Chunk.Code),
			scopeDepth: fc.scopeDepth,
			iterSlot:   -1,
			triesAt:    len(fc.tries),
		}
		fc.loops = append(fc.loops, loop)
		fc.expr(s.Cond)
		exitJump := fc.emitJump(JumpIfFalse)
		fc.emit(Pop)
		fc.stmt(s.Body)
		fc.emitLoop(s, loop.start)
		fc.patchJump(s, exitJump)
		fc.emit(Pop)
		for _, br := range loop.breaks {
			fc.patchJump(s, br)
		}
		fc.loops = fc.loops[:len(fc.loops)-1]

	case *ast.ForInStmt:
		fc.forInStmt(s)

	case *ast.ReturnStmt:
		if fc.ftype == FuncInitializer && s.Value != nil {
			fc.errorf(s, "cannot return a value from a constructor")
		}
		if s.Value != nil {
			fc.expr(s.Value)
		} else {
			fc.emitReturnValue()
		}
		fc.unwindTries(0)
		fc.emit(Return)

	case *ast.BreakStmt:
		if len(fc.loops) == 0 {
			fc.errorf(s, "break outside of a loop")
		}
		loop := fc.loops[len(fc.loops)-1]
		fc.unwindTries(loop.triesAt)
		fc.discardLocals(loop.scopeDepth)
		if loop.iterSlot >= 0 {
			fc.emit(CloseIter)
			fc.emitByte(byte(loop.iterSlot))
		}
		loop.breaks = append(loop.breaks, fc.emitJump(Jump))

	case *ast.ContinueStmt:
		if len(fc.loops) == 0 {
			fc.errorf(s, "continue outside of a loop")
		}
		loop := fc.loops[len(fc.loops)-1]
		fc.unwindTries(loop.triesAt)
		fc.discardLocals(loop.scopeDepth)
		fc.emitLoop(s, loop.start)

	case *ast.TryStmt:
		fc.tryStmt(s)

	case *ast.ThrowStmt:
		fc.expr(s.Value)
		fc.emit(Throw)

	case *ast.BlockStmt:
		fc.beginScope()
		for _, st := range s.Stmts {
			fc.stmt(st)
		}
		fc.endScope()

	case *ast.ExprStmt:
		fc.expr(s.X)
		fc.emit(Pop)

	default:
		fc.errorf(s, "internal error: unknown statement %T", s)
	}
}

// defineVariable binds the value on top of the stack to the name, as a local
// in nested scopes or as a global otherwise.
func (fc *fcomp) defineVariable(node ast.Node, name string, global, export bool) {
	if fc.scopeDepth > 0 && !global {
		if export {
			fc.errorf(node, "export is only valid at the top level")
		}
		fc.declareLocal(node, name)
		return
	}
	fc.defineGlobalName(node, name, global, export)
}

func (fc *fcomp) defineGlobalName(node ast.Node, name string, global, export bool) {
	idx := fc.nameConstant(node, name)
	if global {
		fc.emit(DefineRootGlobal)
	} else {
		fc.emit(DefineGlobal)
	}
	fc.emitU16(idx)
	if export {
		fc.recordExport(node, name)
	}
}

func (fc *fcomp) recordExport(node ast.Node, name string) {
	if fc.ftype != FuncScript || fc.scopeDepth > 0 {
		fc.errorf(node, "export is only valid at the top level")
	}
	fc.proto.Chunk.Exports = append(fc.proto.Chunk.Exports, name)
}

// unwindTries emits the EndTry/finally sequences needed to leave the try
// blocks above the given depth, innermost first. Used by return, break and
// continue. Handlers whose finally block is being compiled are skipped: the
// VM discards them when the frame unwinds.
func (fc *fcomp) unwindTries(downTo int) {
	for i := len(fc.tries) - 1; i >= downTo; i-- {
		t := fc.tries[i]
		if t.inFinally {
			continue
		}
		fc.emit(EndTry)
		if t.finally != nil {
			fc.beginScope()
			for _, st := range t.finally.Stmts {
				fc.stmt(st)
			}
			fc.endScope()
			fc.emit(EndFinally)
		}
	}
}

func (fc *fcomp) forInStmt(s *ast.ForInStmt) {
	fc.beginScope()

	fc.expr(s.Iterable)
	fc.emit(GetIter)
	iterSlot := fc.declareLocal(s, "(iter)")

	var keySlot, valSlot int
	if s.Key != "" {
		fc.emit(Null)
		keySlot = fc.declareLocal(s, s.Key)
	}
	fc.emit(Null)
	valSlot = fc.declareLocal(s, s.Value)

	loop := &loopInfo{
		start:      len(fc.proto.Chunk.Code),
		scopeDepth: fc.scopeDepth,
		iterSlot:   iterSlot,
		triesAt:    len(fc.tries),
	}
	fc.loops = append(fc.loops, loop)

	var exit int
	if s.Key != "" {
		fc.emit(ForIterKVLocal)
		fc.emitByte(byte(iterSlot))
		fc.emitU16(0xFFFF)
		exit = len(fc.proto.Chunk.Code) - 2
		// the iterator pushed key then value
		fc.emit(SetLocal)
		fc.emitByte(byte(valSlot))
		fc.emit(Pop)
		fc.emit(SetLocal)
		fc.emitByte(byte(keySlot))
		fc.emit(Pop)
	} else {
		fc.emit(ForIterLocal)
		fc.emitByte(byte(iterSlot))
		fc.emitU16(0xFFFF)
		exit = len(fc.proto.Chunk.Code) - 2
		fc.emit(SetLocal)
		fc.emitByte(byte(valSlot))
		fc.emit(Pop)
	}

	fc.stmt(s.Body)
	fc.emitLoop(s, loop.start)
	fc.patchJump(s, exit)
	for _, br := range loop.breaks {
		fc.patchJump(s, br)
	}
	fc.loops = fc.loops[:len(fc.loops)-1]

	fc.endScope()
}

func (fc *fcomp) tryStmt(s *ast.TryStmt) {
	catchSlot := byte(0xFF)
	if s.Catch != nil && s.CatchVar != "" {
		// the exception value is pushed exactly where the next local lands
		catchSlot = byte(len(fc.locals))
	}

	fc.emit(SetupTry)
	catchPos := len(fc.proto.Chunk.Code)
	fc.emitU16(0)
	finallyPos := len(fc.proto.Chunk.Code)
	fc.emitU16(0)
	fc.emitByte(catchSlot)

	ti := &tryInfo{finally: s.Finally}
	fc.tries = append(fc.tries, ti)

	fc.beginScope()
	for _, st := range s.Body.Stmts {
		fc.stmt(st)
	}
	fc.endScope()
	fc.emit(EndTry)

	var normalJump int
	hasNormalJump := false
	if s.Catch != nil {
		// jump over the catch block: to the finally if present, else past
		normalJump = fc.emitJump(Jump)
		hasNormalJump = true

		fc.patchJump(s, catchPos)
		fc.beginScope()
		if s.CatchVar != "" {
			// the thrown value pushed by the VM becomes the catch variable
			fc.declareLocal(s.Catch, s.CatchVar)
		} else {
			fc.emit(Pop)
		}
		for _, st := range s.Catch.Stmts {
			fc.stmt(st)
		}
		fc.endScope()
		fc.emit(EndTry)
	}

	fc.tries = fc.tries[:len(fc.tries)-1]

	if s.Finally != nil {
		if hasNormalJump {
			fc.patchJump(s, normalJump)
			hasNormalJump = false
		}
		fc.patchJump(s, finallyPos)
		ti.inFinally = true
		fc.beginScope()
		for _, st := range s.Finally.Stmts {
			fc.stmt(st)
		}
		fc.endScope()
		fc.emit(EndFinally)
	}
	if hasNormalJump {
		fc.patchJump(s, normalJump)
	}
}

func (fc *fcomp) classDecl(s *ast.ClassDecl) {
	protoIdx := fc.addConstant(s, &ClassProto{Name: s.Name})
	fc.emit(Class)
	fc.emitU16(protoIdx)

	if s.Super != "" {
		if s.Super == s.Name {
			fc.errorf(s, "class %s cannot inherit from itself", s.Name)
		}
		fc.variableGet(s, s.Super)
		fc.emit(Inherit)
	}

	for _, f := range s.Fields {
		if !f.Static {
			continue
		}
		if f.Value != nil {
			fc.expr(f.Value)
		} else {
			fc.emit(Null)
		}
		idx := fc.nameConstant(s, f.Name)
		fc.emit(StaticField)
		fc.emitU16(idx)
	}

	var ctor *ast.MethodDef
	for i := range s.Methods {
		m := &s.Methods[i]
		if !m.Static && m.Name == s.Name {
			ctor = m
			continue
		}
		ftype := FuncMethod
		if m.Static {
			ftype = FuncFunction
		}
		fc.method(m.Fn, ftype, s, nil, false)
		idx := fc.nameConstant(s, m.Name)
		if m.Static {
			fc.emit(StaticMethod)
		} else {
			fc.emit(Method)
		}
		fc.emitU16(idx)
	}

	// the constructor carries the field initializers; synthesize one when
	// the class has instance fields or a superclass but no explicit
	// constructor
	fields := instanceFields(s)
	if ctor != nil {
		// an explicit constructor controls its own superclass call
		fc.method(ctor.Fn, FuncInitializer, s, fields, false)
		idx := fc.nameConstant(s, s.Name)
		fc.emit(Method)
		fc.emitU16(idx)
	} else if len(fields) > 0 || s.Super != "" {
		synth := &ast.FuncLit{Position: ast.Position{Line: fc.line}, Name: s.Name}
		fc.method(synth, FuncInitializer, s, fields, s.Super != "")
		idx := fc.nameConstant(s, s.Name)
		fc.emit(Method)
		fc.emitU16(idx)
	}

	fc.defineVariable(s, s.Name, s.Global, s.Export)
}

func instanceFields(s *ast.ClassDecl) []ast.FieldDef {
	var fields []ast.FieldDef
	for _, f := range s.Fields {
		if !f.Static {
			fields = append(fields, f)
		}
	}
	return fields
}

// startsWithSuperCall reports whether the first statement of a constructor
// body is an explicit super.Parent(...) call.
func startsWithSuperCall(fn *ast.FuncLit) bool {
	if len(fn.Body) == 0 {
		return false
	}
	es, ok := fn.Body[0].(*ast.ExprStmt)
	if !ok {
		return false
	}
	call, ok := es.X.(*ast.Call)
	if !ok {
		return false
	}
	_, ok = call.Callee.(*ast.Super)
	return ok
}

func (fc *fcomp) enumDecl(s *ast.EnumDecl) {
	fc.emit(NewObject)
	// bare members continue incrementing the last numeric value observed; a
	// bare member with only string values before it is an error
	next := 0.0
	numericSeen, stringSeen := false, false
	for _, m := range s.Members {
		var val any
		switch v := memberValue(m).(type) {
		case nil:
			if stringSeen && !numericSeen {
				fc.errorf(s, "enum member %s cannot auto-increment: no numeric value observed before it", m.Name)
			}
			val = next
			next++
			numericSeen = true
		case float64:
			val = v
			next = v + 1
			numericSeen = true
		case string:
			val = v
			stringSeen = true
		}
		fc.emitConst(s, val)
		idx := fc.nameConstant(s, m.Name)
		fc.emit(SetField)
		fc.emitU16(idx)
	}
	fc.defineVariable(s, s.Name, s.Global, s.Export)
}

func memberValue(m ast.EnumMember) any {
	if m.Value == nil {
		return nil
	}
	lit, ok := m.Value.(*ast.Literal)
	if !ok {
		return nil
	}
	return lit.Value
}

func (fc *fcomp) importStmt(s *ast.ImportStmt) {
	if s.Path == "" {
		fc.errorf(s, "import path cannot be empty")
	}
	pathIdx := fc.addConstant(s, s.Path)
	aliasIdx := uint16(0xFFFF)
	if s.Alias != "" {
		aliasIdx = fc.addConstant(s, s.Alias)
	}
	fc.emit(Import)
	fc.emitU16(pathIdx)
	fc.emitU16(aliasIdx)
	if s.Global {
		fc.emitByte(1)
		return
	}
	fc.emitByte(0)

	// the module value is on the stack: bind it under the alias or the last
	// path segment
	name := s.Alias
	if name == "" {
		name = lastPathSegment(s.Path)
	}
	fc.defineVariable(s, name, false, false)
}

func lastPathSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' || path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// ---- functions ----

// method compiles a function literal in a child compiler and emits the
// Closure instruction that instantiates it. For initializers,
// fields are the instance field initializers to inject and autoSuper
// requests a synthesized zero-argument superclass constructor call.
func (fc *fcomp) method(fn *ast.FuncLit, ftype FuncType, class *ast.ClassDecl, fields []ast.FieldDef, autoSuper bool) {
	className := ""
	if class != nil {
		className = class.Name
	}
	name := fn.Name
	if name == "" {
		name = "<lambda>"
		ftype = FuncLambda
	}

	child := newFcomp(fc, ftype, fc.file, name, className)
	child.line = fc.line
	child.proto.Arity = len(fn.Params)
	child.proto.Rest = fn.Rest

	for _, par := range fn.Params {
		child.declareLocal(fn, par.Name)
	}
	if fn.Rest != "" {
		child.declareLocal(fn, fn.Rest)
	}

	// the body compiles in its own scope so that declarations are locals,
	// not globals; parameters stay at depth 0
	child.beginScope()

	// default values: replace a null argument with the default expression
	for i, par := range fn.Params {
		if par.Default == nil {
			continue
		}
		slot := byte(i + 1)
		child.emit(GetLocal)
		child.emitByte(slot)
		skip := child.emitJump(JumpIfNotNull)
		child.emit(Pop)
		child.expr(par.Default)
		child.emit(SetLocal)
		child.emitByte(slot)
		child.emit(Pop)
		end := child.emitJump(Jump)
		child.patchJump(fn, skip)
		child.emit(Pop)
		child.patchJump(fn, end)
	}

	if ftype == FuncInitializer {
		if autoSuper {
			child.emit(This)
			idx := child.nameConstant(fn, class.Super)
			child.emit(GetSuper)
			child.emitU16(idx)
			child.emit(Call)
			child.emitByte(0)
			child.emit(Pop)
		}
		body := fn.Body
		if len(body) > 0 && startsWithSuperCall(fn) {
			child.stmt(body[0])
			body = body[1:]
		}
		for _, f := range fields {
			child.emit(This)
			if f.Value != nil {
				child.expr(f.Value)
			} else {
				child.emit(Null)
			}
			idx := child.nameConstant(fn, f.Name)
			child.emit(SetProperty)
			child.emitU16(idx)
			child.emit(Pop)
		}
		for _, st := range body {
			child.stmt(st)
		}
	} else {
		for _, st := range fn.Body {
			child.stmt(st)
		}
	}

	proto := child.finish()

	idx := fc.addConstant(fn, proto)
	fc.emit(Closure)
	fc.emitU16(idx)
	for _, uv := range proto.Upvalues {
		if uv.IsLocal {
			fc.emitByte(1)
		} else {
			fc.emitByte(0)
		}
		fc.emitByte(uv.Index)
	}
}

// ---- variables ----

func (fc *fcomp) variableGet(node ast.Node, name string) {
	if slot := fc.resolveLocal(name); slot >= 0 {
		fc.emit(GetLocal)
		fc.emitByte(byte(slot))
		return
	}
	if uv := fc.resolveUpvalue(node, name); uv >= 0 {
		fc.emit(GetUpvalue)
		fc.emitByte(byte(uv))
		return
	}
	idx := fc.nameConstant(node, name)
	fc.emit(GetGlobal)
	fc.emitU16(idx)
}

// variableSet emits the store for the value on top of the stack; the value
// is left on the stack as the expression result.
func (fc *fcomp) variableSet(node ast.Node, name string) {
	if slot := fc.resolveLocal(name); slot >= 0 {
		fc.emit(SetLocal)
		fc.emitByte(byte(slot))
		return
	}
	if uv := fc.resolveUpvalue(node, name); uv >= 0 {
		fc.emit(SetUpvalue)
		fc.emitByte(byte(uv))
		return
	}
	idx := fc.nameConstant(node, name)
	fc.emit(SetGlobal)
	fc.emitU16(idx)
}

// ---- expressions ----

func (fc *fcomp) expr(e ast.Expr) {
	fc.at(e)
	if v, ok := fold(e); ok {
		fc.emitConst(e, v)
		return
	}

	switch e := e.(type) {
	case *ast.Literal:
		fc.emitConst(e, e.Value)

	case *ast.InterpString:
		for _, part := range e.Parts {
			if part.Expr != nil {
				fc.expr(part.Expr)
			} else {
				fc.emitConst(e, part.Text)
			}
		}
		fc.emit(BuildString)
		fc.emitU16(uint16(len(e.Parts)))

	case *ast.Ident:
		fc.variableGet(e, e.Name)

	case *ast.Assign:
		fc.assign(e)

	case *ast.Ternary:
		fc.expr(e.Cond)
		elseJump := fc.emitJump(JumpIfFalse)
		fc.emit(Pop)
		fc.expr(e.Then)
		endJump := fc.emitJump(Jump)
		fc.patchJump(e, elseJump)
		fc.emit(Pop)
		fc.expr(e.Else)
		fc.patchJump(e, endJump)

	case *ast.Logical:
		fc.expr(e.Left)
		var op Opcode
		switch e.Op {
		case token.OROR:
			op = JumpIfTrue
		case token.ANDAND:
			op = JumpIfFalse
		case token.QQUESTION:
			op = JumpIfNotNull
		}
		end := fc.emitJump(op)
		fc.emit(Pop)
		fc.expr(e.Right)
		fc.patchJump(e, end)

	case *ast.Binary:
		fc.expr(e.Left)
		fc.expr(e.Right)
		fc.emit(binaryOpcode(e.Op))

	case *ast.Unary:
		fc.unary(e)

	case *ast.Call:
		fc.call(e)

	case *ast.Property:
		fc.expr(e.Obj)
		idx := fc.nameConstant(e, e.Name)
		if e.Optional {
			skip := fc.emitJump(JumpIfNotNull)
			end := fc.emitJump(Jump)
			fc.patchJump(e, skip)
			fc.emit(GetProperty)
			fc.emitU16(idx)
			fc.patchJump(e, end)
		} else {
			fc.emit(GetProperty)
			fc.emitU16(idx)
		}

	case *ast.Index:
		fc.expr(e.Obj)
		if e.Optional {
			skip := fc.emitJump(JumpIfNotNull)
			end := fc.emitJump(Jump)
			fc.patchJump(e, skip)
			fc.expr(e.Key)
			fc.emit(GetIndex)
			fc.patchJump(e, end)
		} else {
			fc.expr(e.Key)
			fc.emit(GetIndex)
		}

	case *ast.This:
		fc.thisExpr(e)

	case *ast.Super:
		fc.thisExpr(e)
		idx := fc.nameConstant(e, e.Method)
		fc.emit(GetSuper)
		fc.emitU16(idx)

	case *ast.FuncLit:
		fc.method(e, FuncLambda, nil, nil, false)

	case *ast.ArrayLit:
		for _, el := range e.Elems {
			fc.expr(el)
		}
		fc.emit(NewArray)
		fc.emitU16(uint16(len(e.Elems)))

	case *ast.ObjectLit:
		fc.emit(NewObject)
		for _, ent := range e.Entries {
			fc.expr(ent.Value)
			idx := fc.nameConstant(e, ent.Key)
			fc.emit(SetField)
			fc.emitU16(idx)
		}

	default:
		fc.errorf(e, "internal error: unknown expression %T", e)
	}
}

// thisExpr resolves the receiver: slot 0 of the enclosing method, possibly
// captured as an upvalue from within a lambda.
func (fc *fcomp) thisExpr(node ast.Node) {
	if slot := fc.resolveLocal("this"); slot == 0 &&
		(fc.ftype == FuncMethod || fc.ftype == FuncInitializer) {
		fc.emit(This)
		return
	}
	if uv := fc.resolveUpvalue(node, "this"); uv >= 0 {
		fc.emit(GetUpvalue)
		fc.emitByte(byte(uv))
		return
	}
	fc.errorf(node, "cannot use this outside of a method")
}

func (fc *fcomp) assign(e *ast.Assign) {
	switch target := e.Target.(type) {
	case *ast.Ident:
		if e.Op == token.EQ {
			fc.expr(e.Value)
		} else {
			fc.variableGet(target, target.Name)
			fc.expr(e.Value)
			fc.emit(compoundOpcode(e.Op))
		}
		fc.variableSet(e, target.Name)

	case *ast.Property:
		fc.expr(target.Obj)
		if e.Op != token.EQ {
			fc.emit(Dup)
			idx := fc.nameConstant(target, target.Name)
			fc.emit(GetField)
			fc.emitU16(idx)
			fc.expr(e.Value)
			fc.emit(compoundOpcode(e.Op))
		} else {
			fc.expr(e.Value)
		}
		idx := fc.nameConstant(target, target.Name)
		fc.emit(SetProperty)
		fc.emitU16(idx)

	case *ast.Index:
		fc.expr(target.Obj)
		fc.expr(target.Key)
		if e.Op != token.EQ {
			fc.emit(Dup2)
			fc.emit(GetIndex)
			fc.expr(e.Value)
			fc.emit(compoundOpcode(e.Op))
		} else {
			fc.expr(e.Value)
		}
		fc.emit(SetIndex)

	default:
		fc.errorf(e, "invalid assignment target")
	}
}

func (fc *fcomp) unary(e *ast.Unary) {
	switch e.Op {
	case token.BANG:
		fc.expr(e.Operand)
		fc.emit(Not)
	case token.MINUS:
		fc.expr(e.Operand)
		fc.emit(Negate)
	case token.TILDE:
		fc.expr(e.Operand)
		fc.emit(BitNot)
	case token.PLUSPLUS, token.MINUSMINUS:
		fc.incDec(e)
	default:
		fc.errorf(e, "internal error: unknown unary operator %s", e.Op)
	}
}

// incDec compiles ++ and -- over the three target kinds, as prefix (result
// is the new value) or postfix (result is the old value).
func (fc *fcomp) incDec(e *ast.Unary) {
	op := Add
	if e.Op == token.MINUSMINUS {
		op = Subtract
	}
	one := func() { fc.emitConst(e, 1.0) }

	switch target := e.Operand.(type) {
	case *ast.Ident:
		fc.variableGet(target, target.Name)
		if e.Postfix {
			fc.emit(Dup)
			one()
			fc.emit(op)
			fc.variableSet(e, target.Name)
			fc.emit(Pop)
		} else {
			one()
			fc.emit(op)
			fc.variableSet(e, target.Name)
		}

	case *ast.Property:
		idx := fc.nameConstant(target, target.Name)
		fc.expr(target.Obj)
		fc.emit(Dup)
		fc.emit(GetField)
		fc.emitU16(idx)
		if e.Postfix {
			// obj old -> old obj new, keeping the old value as the result
			fc.emit(Dup)
			fc.emit(SwapUnder)
			one()
			fc.emit(op)
			fc.emit(SetProperty)
			fc.emitU16(idx)
			fc.emit(Pop)
		} else {
			one()
			fc.emit(op)
			fc.emit(SetProperty)
			fc.emitU16(idx)
		}

	case *ast.Index:
		fc.expr(target.Obj)
		fc.expr(target.Key)
		fc.emit(Dup2)
		fc.emit(GetIndex)
		if e.Postfix {
			// obj key old -> old obj key new
			fc.emit(Dup)
			fc.emit(Rot3Under)
			one()
			fc.emit(op)
			fc.emit(SetIndex)
			fc.emit(Pop)
		} else {
			one()
			fc.emit(op)
			fc.emit(SetIndex)
		}

	default:
		fc.errorf(e, "invalid assignment target")
	}
}

func (fc *fcomp) call(e *ast.Call) {
	if len(e.Args) > 255 {
		fc.errorf(e, "too many arguments (max 255)")
	}
	argc := byte(len(e.Args))

	switch callee := e.Callee.(type) {
	case *ast.Property:
		// fused property call: obj.name(args) or obj?.name(args)
		fc.expr(callee.Obj)
		idx := fc.nameConstant(callee, callee.Name)
		if callee.Optional {
			skip := fc.emitJump(JumpIfNotNull)
			end := fc.emitJump(Jump)
			fc.patchJump(e, skip)
			for _, a := range e.Args {
				fc.expr(a)
			}
			fc.emit(Invoke)
			fc.emitU16(idx)
			fc.emitByte(argc)
			fc.patchJump(e, end)
			return
		}
		for _, a := range e.Args {
			fc.expr(a)
		}
		fc.emit(Invoke)
		fc.emitU16(idx)
		fc.emitByte(argc)

	case *ast.Super:
		fc.thisExpr(callee)
		idx := fc.nameConstant(callee, callee.Method)
		fc.emit(GetSuper)
		fc.emitU16(idx)
		for _, a := range e.Args {
			fc.expr(a)
		}
		fc.emit(Call)
		fc.emitByte(argc)

	default:
		fc.expr(e.Callee)
		for _, a := range e.Args {
			fc.expr(a)
		}
		fc.emit(Call)
		fc.emitByte(argc)
	}
}

func binaryOpcode(t token.Type) Opcode {
	switch t {
	case token.PLUS:
		return Add
	case token.MINUS:
		return Subtract
	case token.STAR:
		return Multiply
	case token.SLASH:
		return Divide
	case token.PERCENT:
		return Modulo
	case token.EQL:
		return Equal
	case token.NEQ:
		return NotEqual
	case token.LT:
		return Less
	case token.LE:
		return LessEqual
	case token.GT:
		return Greater
	case token.GE:
		return GreaterEqual
	case token.AMPERSAND:
		return BitAnd
	case token.PIPE:
		return BitOr
	case token.CIRCUMFLEX:
		return BitXor
	case token.LTLT:
		return ShiftLeft
	case token.GTGT:
		return ShiftRight
	}
	panic(fmt.Sprintf("no opcode for binary operator %s", t))
}

func compoundOpcode(t token.Type) Opcode {
	switch t {
	case token.PLUSEQ:
		return Add
	case token.MINUSEQ:
		return Subtract
	case token.STAREQ:
		return Multiply
	case token.SLASHEQ:
		return Divide
	case token.PERCENTEQ:
		return Modulo
	}
	panic(fmt.Sprintf("no opcode for compound assignment %s", t))
}

// ---- constant folding ----

// fold evaluates an expression at compile time when all of its operands
// reduce to literals. It returns the folded value and whether folding
// applied.
func fold(e ast.Expr) (any, bool) {
	switch e := e.(type) {
	case *ast.Literal:
		return e.Value, true

	case *ast.Unary:
		if e.Op == token.PLUSPLUS || e.Op == token.MINUSMINUS {
			return nil, false
		}
		v, ok := fold(e.Operand)
		if !ok {
			return nil, false
		}
		switch e.Op {
		case token.MINUS:
			if n, ok := v.(float64); ok {
				return -n, true
			}
		case token.BANG:
			return !truthy(v), true
		case token.TILDE:
			if n, ok := v.(float64); ok {
				return float64(^int64(n)), true
			}
		}
		return nil, false

	case *ast.Binary:
		l, ok := fold(e.Left)
		if !ok {
			return nil, false
		}
		r, ok := fold(e.Right)
		if !ok {
			return nil, false
		}
		return foldBinary(e.Op, l, r)
	}
	return nil, false
}

func foldBinary(op token.Type, l, r any) (any, bool) {
	if ln, ok := l.(float64); ok {
		rn, ok := r.(float64)
		if !ok {
			return nil, false
		}
		switch op {
		case token.PLUS:
			return ln + rn, true
		case token.MINUS:
			return ln - rn, true
		case token.STAR:
			return ln * rn, true
		case token.SLASH:
			return ln / rn, true
		case token.PERCENT:
			return math.Mod(ln, rn), true
		case token.LT:
			return ln < rn, true
		case token.LE:
			return ln <= rn, true
		case token.GT:
			return ln > rn, true
		case token.GE:
			return ln >= rn, true
		case token.EQL:
			return ln == rn, true
		case token.NEQ:
			return ln != rn, true
		case token.AMPERSAND:
			return float64(int64(ln) & int64(rn)), true
		case token.PIPE:
			return float64(int64(ln) | int64(rn)), true
		case token.CIRCUMFLEX:
			return float64(int64(ln) ^ int64(rn)), true
		case token.LTLT:
			return float64(int64(ln) << (uint64(rn) & 63)), true
		case token.GTGT:
			return float64(int64(ln) >> (uint64(rn) & 63)), true
		}
		return nil, false
	}
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return nil, false
		}
		switch op {
		case token.PLUS:
			return ls + rs, true
		case token.EQL:
			return ls == rs, true
		case token.NEQ:
			return ls != rs, true
		}
		return nil, false
	}
	if lb, ok := l.(bool); ok {
		rb, ok := r.(bool)
		if !ok {
			return nil, false
		}
		switch op {
		case token.EQL:
			return lb == rb, true
		case token.NEQ:
			return lb != rb, true
		}
	}
	return nil, false
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	}
	return true
}
