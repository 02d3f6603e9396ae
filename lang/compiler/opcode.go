package compiler

import "fmt"

// Opcode is a single byte instruction tag. Operands follow the opcode byte:
// a big-endian short index into the constant pool, a byte local slot, a
// big-endian short jump offset (forward jumps are relative to the byte after
// the offset), or combinations thereof.
type Opcode uint8

// "x DUP x x" is a stack picture describing the state of the operand stack
// before and after execution of the instruction.
//
//nolint:revive
const (
	// constants
	Const Opcode = iota //      - Const<k>   value
	Null                //      - Null       null
	True                //      - True       true
	False               //      - False      false

	// stack
	Pop       //         x Pop        -
	Dup       //         x Dup        x x
	Dup2      //       x y Dup2       x y x y
	Swap      //       x y Swap       y x
	SwapUnder //     x y z SwapUnder  y x z
	Rot3Under //   w x y z Rot3Under  y w x z

	// locals and upvalues; the Set forms peek, leaving the value as the
	// expression result
	GetLocal     //      - GetLocal<slot>   value
	SetLocal     //  value SetLocal<slot>   value
	GetUpvalue   //      - GetUpvalue<uv>   value
	SetUpvalue   //  value SetUpvalue<uv>   value
	CloseUpvalue //  value CloseUpvalue     -      (closes the top slot, then pops)

	// globals (resolved against the closure's scope chain)
	GetGlobal        //      - GetGlobal<name>        value
	SetGlobal        //  value SetGlobal<name>        value
	DefineGlobal     //  value DefineGlobal<name>     -
	DefineRootGlobal //  value DefineRootGlobal<name> -

	// arithmetic, comparison, logic, bitwise
	Add          //  x y Add          x+y
	Subtract     //  x y Subtract     x-y
	Multiply     //  x y Multiply     x*y
	Divide       //  x y Divide       x/y
	Modulo       //  x y Modulo       x%y
	Negate       //    x Negate       -x
	Not          //    x Not          !x
	Equal        //  x y Equal        x==y
	NotEqual     //  x y NotEqual     x!=y
	Less         //  x y Less         x<y
	LessEqual    //  x y LessEqual    x<=y
	Greater      //  x y Greater      x>y
	GreaterEqual //  x y GreaterEqual x>=y
	BitAnd       //  x y BitAnd       x&y
	BitOr        //  x y BitOr        x|y
	BitXor       //  x y BitXor       x^y
	BitNot       //    x BitNot       ~x
	ShiftLeft    //  x y ShiftLeft    x<<y
	ShiftRight   //  x y ShiftRight   x>>y

	// jumps; conditional jumps peek at the condition, the compiler emits the
	// Pop explicitly on each branch
	Jump          //      - Jump<off>          -
	JumpIfFalse   //   cond JumpIfFalse<off>   cond
	JumpIfTrue    //   cond JumpIfTrue<off>    cond
	JumpIfNotNull //      x JumpIfNotNull<off> x
	Loop          //      - Loop<off>          -      (backward jump)

	// calls
	Call   //  fn a1..aN Call<n>          result
	Invoke //   r a1..aN Invoke<name,n>   result (fused r.name(a1..aN))
	Return //     result Return           -

	// closures
	Closure //  - Closure<proto> [isLocal,index]*  fn

	// aggregates
	NewArray    //  e1..eN NewArray<n>       array
	NewObject   //       - NewObject         object
	GetField    //     obj GetField<name>    value  (constant-named read)
	SetField    // obj val SetField<name>    obj    (literal building: pops value only)
	GetIndex    //   obj k GetIndex          value
	SetIndex    // obj k v SetIndex          v
	GetProperty //     obj GetProperty<name> value
	SetProperty // obj val SetProperty<name> val

	// classes
	Class        //          - Class<proto>        class
	Inherit      // cls super Inherit              cls
	Method       //    cls fn Method<name>         cls
	StaticMethod //    cls fn StaticMethod<name>   cls
	StaticField  //   cls val StaticField<name>    cls
	This         //          - This                this
	GetSuper     //       this GetSuper<name>      bound

	// strings
	BuildString //  p1..pN BuildString<n>  string

	// iterators
	GetIter        //  iterable GetIter                 iter
	ForIterLocal   //         - ForIterLocal<slot,off>  value (or jump past loop)
	ForIterKVLocal //         - ForIterKVLocal<slot,off> key value (or jump)
	CloseIter      //         - CloseIter<slot>         -

	// imports
	Import // - Import<path,alias,isGlobal> module (nothing when isGlobal)

	// exceptions
	SetupTry   //      - SetupTry<catch,finally,slot> -
	EndTry     //      - EndTry                       -
	Throw      //  value Throw                        -
	EndFinally //      - EndFinally                   -

	OpcodeMax = EndFinally
)

var opcodeNames = [...]string{
	Add:              "add",
	BitAnd:           "bitand",
	BitNot:           "bitnot",
	BitOr:            "bitor",
	BitXor:           "bitxor",
	BuildString:      "buildstring",
	Call:             "call",
	Class:            "class",
	CloseIter:        "closeiter",
	CloseUpvalue:     "closeupvalue",
	Closure:          "closure",
	Const:            "const",
	DefineGlobal:     "defineglobal",
	DefineRootGlobal: "definerootglobal",
	Divide:           "divide",
	Dup2:             "dup2",
	Dup:              "dup",
	EndFinally:       "endfinally",
	EndTry:           "endtry",
	Equal:            "equal",
	False:            "false",
	ForIterKVLocal:   "foriterkvlocal",
	ForIterLocal:     "foriterlocal",
	GetField:         "getfield",
	GetGlobal:        "getglobal",
	GetIndex:         "getindex",
	GetIter:          "getiter",
	GetLocal:         "getlocal",
	GetProperty:      "getproperty",
	GetSuper:         "getsuper",
	GetUpvalue:       "getupvalue",
	Greater:          "greater",
	GreaterEqual:     "greaterequal",
	Import:           "import",
	Inherit:          "inherit",
	Invoke:           "invoke",
	Jump:             "jump",
	JumpIfFalse:      "jumpiffalse",
	JumpIfNotNull:    "jumpifnotnull",
	JumpIfTrue:       "jumpiftrue",
	Less:             "less",
	LessEqual:        "lessequal",
	Loop:             "loop",
	Method:           "method",
	Modulo:           "modulo",
	Multiply:         "multiply",
	Negate:           "negate",
	NewArray:         "newarray",
	NewObject:        "newobject",
	Not:              "not",
	NotEqual:         "notequal",
	Null:             "null",
	Pop:              "pop",
	Return:           "return",
	Rot3Under:        "rot3under",
	SetField:         "setfield",
	SetGlobal:        "setglobal",
	SetIndex:         "setindex",
	SetLocal:         "setlocal",
	SetProperty:      "setproperty",
	SetUpvalue:       "setupvalue",
	SetupTry:         "setuptry",
	ShiftLeft:        "shiftleft",
	ShiftRight:       "shiftright",
	StaticField:      "staticfield",
	StaticMethod:     "staticmethod",
	Subtract:         "subtract",
	Swap:             "swap",
	SwapUnder:        "swapunder",
	This:             "this",
	Throw:            "throw",
	True:             "true",
}

func (op Opcode) String() string {
	if op <= OpcodeMax {
		if name := opcodeNames[op]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

// operand kinds, used by the disassembler and the serializer validation
type operandKind int8

const (
	operandNone    operandKind = iota
	operandConst               // u16 constant index
	operandSlot                // u8 local or upvalue slot
	operandJump                // u16 forward offset
	operandLoop                // u16 backward offset
	operandCount               // u8 argument or element count
	operandConst16             // u16 count (NewArray, BuildString)
	operandInvoke              // u16 name + u8 argcount
	operandIter                // u8 slot + u16 forward offset
	operandImport              // u16 path + u16 alias + u8 flag
	operandTry                 // u16 catch + u16 finally + u8 slot
)

var operands = [...]operandKind{
	Const:            operandConst,
	GetLocal:         operandSlot,
	SetLocal:         operandSlot,
	GetUpvalue:       operandSlot,
	SetUpvalue:       operandSlot,
	GetGlobal:        operandConst,
	SetGlobal:        operandConst,
	DefineGlobal:     operandConst,
	DefineRootGlobal: operandConst,
	Jump:             operandJump,
	JumpIfFalse:      operandJump,
	JumpIfTrue:       operandJump,
	JumpIfNotNull:    operandJump,
	Loop:             operandLoop,
	Call:             operandCount,
	Invoke:           operandInvoke,
	Closure:          operandConst, // plus one (isLocal, index) byte pair per upvalue
	NewArray:         operandConst16,
	GetField:         operandConst,
	SetField:         operandConst,
	GetProperty:      operandConst,
	SetProperty:      operandConst,
	Class:            operandConst,
	Method:           operandConst,
	StaticMethod:     operandConst,
	StaticField:      operandConst,
	GetSuper:         operandConst,
	BuildString:      operandConst16,
	ForIterLocal:     operandIter,
	ForIterKVLocal:   operandIter,
	CloseIter:        operandSlot,
	Import:           operandImport,
	SetupTry:         operandTry,
}

func (op Opcode) operand() operandKind {
	if int(op) < len(operands) {
		return operands[op]
	}
	return operandNone
}
