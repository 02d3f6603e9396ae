package compiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// The MPBC envelope: magic bytes, a version byte, then the top-level
// function prototype encoded recursively with length-prefixed sections. All
// integers are big-endian. Serialization is deterministic: encoding a
// decoded prototype yields byte-identical output.

// Magic identifies a compiled bytecode buffer.
var Magic = [4]byte{'M', 'P', 'B', 'C'}

// Version is the bytecode format version; increment to force recompilation
// of saved bytecode files.
const Version = 1

// Constant pool entry tags.
const (
	tagNull  = 0
	tagBool  = 1
	tagNum   = 2
	tagStr   = 3
	tagFunc  = 4
	tagClass = 5
)

// IsCompiled reports whether the buffer starts with the MPBC magic.
func IsCompiled(b []byte) bool {
	return len(b) >= len(Magic) && bytes.Equal(b[:len(Magic)], Magic[:])
}

// Serialize encodes a compiled function prototype into its binary envelope.
func Serialize(proto *FuncProto) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(Version)
	enc := encoder{w: &buf}
	enc.proto(proto)
	if enc.err != nil {
		return nil, enc.err
	}
	return buf.Bytes(), nil
}

type encoder struct {
	w   *bytes.Buffer
	err error
}

func (e *encoder) u16(v int) {
	if v > 0xFFFF && e.err == nil {
		e.err = &Error{Msg: fmt.Sprintf("value %d exceeds 16-bit section limit", v), File: "bytecode"}
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	e.w.Write(b[:])
}

func (e *encoder) u32(v int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.w.Write(b[:])
}

func (e *encoder) str(s string) {
	e.u16(len(s))
	e.w.WriteString(s)
}

func (e *encoder) proto(p *FuncProto) {
	e.str(p.Name)
	e.str(p.ClassName)
	e.u16(p.Arity)
	e.str(p.Rest)
	if p.IsInit {
		e.w.WriteByte(1)
	} else {
		e.w.WriteByte(0)
	}

	e.u16(len(p.Upvalues))
	for _, uv := range p.Upvalues {
		if uv.IsLocal {
			e.w.WriteByte(1)
		} else {
			e.w.WriteByte(0)
		}
		e.w.WriteByte(uv.Index)
	}

	e.u16(len(p.Locals))
	for _, name := range p.Locals {
		e.str(name)
	}

	ch := p.Chunk
	e.str(ch.File)
	e.u32(len(ch.Code))
	e.w.Write(ch.Code)

	e.u32(len(ch.lines))
	for _, run := range ch.lines {
		e.u32(run.PC)
		e.u32(run.Line)
	}

	e.u16(len(ch.Constants))
	for _, c := range ch.Constants {
		switch c := c.(type) {
		case nil:
			e.w.WriteByte(tagNull)
		case bool:
			e.w.WriteByte(tagBool)
			if c {
				e.w.WriteByte(1)
			} else {
				e.w.WriteByte(0)
			}
		case float64:
			e.w.WriteByte(tagNum)
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(c))
			e.w.Write(b[:])
		case string:
			e.w.WriteByte(tagStr)
			e.str(c)
		case *FuncProto:
			e.w.WriteByte(tagFunc)
			e.proto(c)
		case *ClassProto:
			e.w.WriteByte(tagClass)
			e.str(c.Name)
		default:
			if e.err == nil {
				e.err = &Error{Msg: fmt.Sprintf("unsupported constant kind %T", c), File: ch.File}
			}
		}
	}

	e.u16(len(ch.Exports))
	for _, name := range ch.Exports {
		e.str(name)
	}
}

// Deserialize decodes a binary envelope back into a function prototype. It
// fails on wrong magic, unsupported version or unknown constant tags.
func Deserialize(b []byte) (*FuncProto, error) {
	if !IsCompiled(b) {
		return nil, &Error{Msg: "invalid bytecode: bad magic", File: "bytecode"}
	}
	if len(b) < len(Magic)+1 {
		return nil, &Error{Msg: "invalid bytecode: truncated header", File: "bytecode"}
	}
	if v := b[len(Magic)]; v != Version {
		return nil, &Error{Msg: fmt.Sprintf("unsupported bytecode version %d (want %d)", v, Version), File: "bytecode"}
	}
	dec := decoder{b: b, off: len(Magic) + 1}
	proto := dec.proto()
	if dec.err != nil {
		return nil, dec.err
	}
	if dec.off != len(b) {
		return nil, &Error{Msg: "invalid bytecode: trailing data", File: "bytecode"}
	}
	return proto, nil
}

type decoder struct {
	b   []byte
	off int
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = &Error{Msg: fmt.Sprintf(format, args...), File: "bytecode"}
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.b) {
		d.fail("invalid bytecode: truncated at offset %d", d.off)
		return nil
	}
	sl := d.b[d.off : d.off+n]
	d.off += n
	return sl
}

func (d *decoder) u8() byte {
	sl := d.take(1)
	if sl == nil {
		return 0
	}
	return sl[0]
}

func (d *decoder) u16() int {
	sl := d.take(2)
	if sl == nil {
		return 0
	}
	return int(binary.BigEndian.Uint16(sl))
}

func (d *decoder) u32() int {
	sl := d.take(4)
	if sl == nil {
		return 0
	}
	return int(binary.BigEndian.Uint32(sl))
}

func (d *decoder) str() string {
	n := d.u16()
	return string(d.take(n))
}

func (d *decoder) proto() *FuncProto {
	p := &FuncProto{}
	p.Name = d.str()
	p.ClassName = d.str()
	p.Arity = d.u16()
	p.Rest = d.str()
	p.IsInit = d.u8() == 1

	nup := d.u16()
	for i := 0; i < nup && d.err == nil; i++ {
		isLocal := d.u8() == 1
		idx := d.u8()
		p.Upvalues = append(p.Upvalues, UpvalueDesc{IsLocal: isLocal, Index: idx})
	}

	nlocals := d.u16()
	for i := 0; i < nlocals && d.err == nil; i++ {
		p.Locals = append(p.Locals, d.str())
	}

	ch := &Chunk{}
	ch.File = d.str()
	ch.Code = append([]byte(nil), d.take(d.u32())...)

	nruns := d.u32()
	for i := 0; i < nruns && d.err == nil; i++ {
		pc := d.u32()
		line := d.u32()
		ch.lines = append(ch.lines, lineRun{PC: pc, Line: line})
	}

	nconsts := d.u16()
	for i := 0; i < nconsts && d.err == nil; i++ {
		switch tag := d.u8(); tag {
		case tagNull:
			ch.Constants = append(ch.Constants, nil)
		case tagBool:
			ch.Constants = append(ch.Constants, d.u8() == 1)
		case tagNum:
			sl := d.take(8)
			if sl != nil {
				ch.Constants = append(ch.Constants, math.Float64frombits(binary.BigEndian.Uint64(sl)))
			}
		case tagStr:
			ch.Constants = append(ch.Constants, d.str())
		case tagFunc:
			ch.Constants = append(ch.Constants, d.proto())
		case tagClass:
			ch.Constants = append(ch.Constants, &ClassProto{Name: d.str()})
		default:
			d.fail("invalid bytecode: unknown constant tag %d", tag)
		}
	}

	nexports := d.u16()
	for i := 0; i < nexports && d.err == nil; i++ {
		ch.Exports = append(ch.Exports, d.str())
	}

	p.Chunk = ch
	return p
}
