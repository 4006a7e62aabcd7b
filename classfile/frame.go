package classfile

import (
	"fmt"
	"strings"
)

// Frame is the abstract machine state at one code offset: the types on the
// operand stack (bottom first) and the type held by each local slot. A nil
// local is an unset slot (verification type top).
type Frame struct {
	Offset int
	Stack  []Type
	Locals []Type
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Offset: f.Offset,
		Stack:  append([]Type(nil), f.Stack...),
		Locals: append([]Type(nil), f.Locals...),
	}
}

// Depth is the operand stack height in slots.
func (f *Frame) Depth() int { return len(f.Stack) }

func (f *Frame) Push(t Type) { f.Stack = append(f.Stack, t) }

// Pop removes and returns the top of the stack.
func (f *Frame) Pop() Type {
	if len(f.Stack) == 0 {
		internal("pop", ErrStackUnderflow)
	}
	t := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return t
}

// PopN removes n values and returns them in stack order (deepest first).
func (f *Frame) PopN(n int) []Type {
	if n > len(f.Stack) {
		internalf("pop", ErrStackUnderflow, "need %d values, have %d", n, len(f.Stack))
	}
	vals := append([]Type(nil), f.Stack[len(f.Stack)-n:]...)
	f.Stack = f.Stack[:len(f.Stack)-n]
	return vals
}

// Peek returns the value n slots below the top (0 is the top).
func (f *Frame) Peek(n int) Type {
	if n >= len(f.Stack) {
		internalf("peek", ErrStackUnderflow, "depth %d, have %d", n, len(f.Stack))
	}
	return f.Stack[len(f.Stack)-1-n]
}

// Local returns the type held by slot, or nil if it is unset.
func (f *Frame) Local(slot int) Type {
	if slot < 0 || slot >= len(f.Locals) {
		return nil
	}
	return f.Locals[slot]
}

// SetLocal records that slot now holds a value of type t.
func (f *Frame) SetLocal(slot int, t Type) {
	for len(f.Locals) <= slot {
		f.Locals = append(f.Locals, nil)
	}
	f.Locals[slot] = t
}

// trimmedLocals drops trailing unset slots.
func (f *Frame) trimmedLocals() []Type {
	n := len(f.Locals)
	for n > 0 && f.Locals[n-1] == nil {
		n--
	}
	return f.Locals[:n]
}

func (f *Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%d locals=[", f.Offset)
	for i, t := range f.Locals {
		if i > 0 {
			sb.WriteString(", ")
		}
		if t == nil {
			sb.WriteString("top")
		} else {
			sb.WriteString(t.String())
		}
	}
	sb.WriteString("] stack=[")
	for i, t := range f.Stack {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.String())
	}
	sb.WriteString("]")
	return sb.String()
}
