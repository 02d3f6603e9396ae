package compiler

import (
	"fmt"
	"io"
	"strings"
)

// Disasm writes a human-readable listing of the prototype and all of its
// nested function prototypes to w.
func Disasm(w io.Writer, proto *FuncProto) {
	disasmProto(w, proto)
}

func disasmProto(w io.Writer, p *FuncProto) {
	name := p.Name
	if p.ClassName != "" {
		name = p.ClassName + "." + name
	}
	fmt.Fprintf(w, "function %s (arity %d", name, p.Arity)
	if p.Rest != "" {
		fmt.Fprintf(w, ", rest %s", p.Rest)
	}
	if len(p.Upvalues) > 0 {
		fmt.Fprintf(w, ", upvalues %d", len(p.Upvalues))
	}
	fmt.Fprintln(w, ")")

	if len(p.Chunk.Exports) > 0 {
		fmt.Fprintf(w, "  exports: %s\n", strings.Join(p.Chunk.Exports, ", "))
	}

	ch := p.Chunk
	lastLine := -1
	for pc := 0; pc < len(ch.Code); {
		line := ch.Line(pc)
		if line != lastLine {
			fmt.Fprintf(w, "%5d ", line)
			lastLine = line
		} else {
			fmt.Fprint(w, "    | ")
		}
		pc = disasmInstr(w, ch, pc)
	}

	// nested prototypes follow their parent
	for _, c := range ch.Constants {
		if fp, ok := c.(*FuncProto); ok {
			fmt.Fprintln(w)
			disasmProto(w, fp)
		}
	}
}

func disasmInstr(w io.Writer, ch *Chunk, pc int) int {
	op := Opcode(ch.Code[pc])
	fmt.Fprintf(w, "%04d %-16s", pc, op)
	pc++

	rd16 := func() int {
		v := int(ch.Code[pc])<<8 | int(ch.Code[pc+1])
		pc += 2
		return v
	}
	constOperand := func() {
		idx := rd16()
		fmt.Fprintf(w, " %d (%s)", idx, constString(ch, idx))
	}

	switch op.operand() {
	case operandConst:
		constOperand()
		if op == Closure {
			if fp, ok := ch.Constants[int(ch.Code[pc-2])<<8|int(ch.Code[pc-1])].(*FuncProto); ok {
				for range fp.Upvalues {
					isLocal := ch.Code[pc] == 1
					idx := ch.Code[pc+1]
					pc += 2
					kind := "upvalue"
					if isLocal {
						kind = "local"
					}
					fmt.Fprintf(w, " [%s %d]", kind, idx)
				}
			}
		}
	case operandSlot:
		fmt.Fprintf(w, " %d", ch.Code[pc])
		pc++
	case operandJump:
		off := rd16()
		fmt.Fprintf(w, " +%d -> %04d", off, pc+off)
	case operandLoop:
		off := rd16()
		fmt.Fprintf(w, " -%d -> %04d", off, pc-off)
	case operandCount:
		fmt.Fprintf(w, " %d", ch.Code[pc])
		pc++
	case operandConst16:
		fmt.Fprintf(w, " %d", rd16())
	case operandInvoke:
		constOperand()
		fmt.Fprintf(w, " args %d", ch.Code[pc])
		pc++
	case operandIter:
		slot := ch.Code[pc]
		pc++
		off := rd16()
		fmt.Fprintf(w, " slot %d +%d -> %04d", slot, off, pc+off)
	case operandImport:
		pathIdx := rd16()
		aliasIdx := rd16()
		isGlobal := ch.Code[pc]
		pc++
		fmt.Fprintf(w, " path %s", constString(ch, pathIdx))
		if aliasIdx != 0xFFFF {
			fmt.Fprintf(w, " as %s", constString(ch, aliasIdx))
		}
		if isGlobal == 1 {
			fmt.Fprint(w, " global")
		}
	case operandTry:
		catchOff := rd16()
		catchBase := pc
		finallyOff := rd16()
		finallyBase := pc
		slot := ch.Code[pc]
		pc++
		if catchOff != 0 {
			fmt.Fprintf(w, " catch %04d", catchBase+catchOff)
		}
		if finallyOff != 0 {
			fmt.Fprintf(w, " finally %04d", finallyBase+finallyOff)
		}
		if slot != 0xFF {
			fmt.Fprintf(w, " var %d", slot)
		}
	}
	fmt.Fprintln(w)
	return pc
}

func constString(ch *Chunk, idx int) string {
	if idx < 0 || idx >= len(ch.Constants) {
		return "?"
	}
	switch c := ch.Constants[idx].(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", c)
	case *FuncProto:
		return "fn " + c.Name
	case *ClassProto:
		return "class " + c.Name
	default:
		return fmt.Sprintf("%v", c)
	}
}
