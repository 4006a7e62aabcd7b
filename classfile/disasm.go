package classfile

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset int
	Op     Opcode
	Wide   bool
	Local  int    // load/store slot
	Value  int32  // bipush/sipush immediate, newarray type
	Index  uint16 // constant pool operand
	Dims   uint8  // multianewarray dimensions
	Target int    // absolute branch target
	Size   int
}

// DecodeInstruction decodes the instruction at pc.
func DecodeInstruction(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("pc %d outside code of %d bytes", pc, len(code))
	}
	in := Instruction{Offset: pc, Op: Opcode(code[pc])}
	if in.Op == Wide {
		if pc+4 > len(code) {
			return in, fmt.Errorf("truncated wide instruction at %d", pc)
		}
		in.Wide = true
		in.Op = Opcode(code[pc+1])
		in.Local = int(binary.BigEndian.Uint16(code[pc+2:]))
		in.Size = 4
		return in, nil
	}
	info, ok := in.Op.Info()
	if !ok {
		return in, fmt.Errorf("unknown opcode 0x%02x at %d", byte(in.Op), pc)
	}
	in.Size = info.Size()
	if pc+in.Size > len(code) {
		return in, fmt.Errorf("truncated %s at %d", in.Op, pc)
	}
	operand := code[pc+1 : pc+in.Size]
	switch info.Operand {
	case OperandLocal:
		in.Local = int(operand[0])
	case OperandByte:
		in.Value = int32(int8(operand[0]))
	case OperandShort:
		in.Value = int32(int16(binary.BigEndian.Uint16(operand)))
	case OperandCP1:
		in.Index = uint16(operand[0])
	case OperandCP2:
		in.Index = binary.BigEndian.Uint16(operand)
	case OperandBranch:
		in.Target = pc + int(int16(binary.BigEndian.Uint16(operand)))
	case OperandAType:
		in.Value = int32(operand[0])
	case OperandMulti:
		in.Index = binary.BigEndian.Uint16(operand)
		in.Dims = operand[2]
	case OperandNone:
		switch {
		case in.Op >= Iload0 && in.Op < Iload0+4:
			in.Local = int(in.Op - Iload0)
		case in.Op >= Aload0 && in.Op < Aload0+4:
			in.Local = int(in.Op - Aload0)
		case in.Op >= Istore0 && in.Op < Istore0+4:
			in.Local = int(in.Op - Istore0)
		case in.Op >= Astore0 && in.Op < Astore0+4:
			in.Local = int(in.Op - Astore0)
		case in.Op >= IconstM1 && in.Op <= Iconst5:
			in.Value = int32(in.Op) - int32(Iconst0)
		}
	}
	return in, nil
}

// DecodeCode decodes a whole instruction sequence.
func DecodeCode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		in, err := DecodeInstruction(code, pc)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		pc += in.Size
	}
	return out, nil
}

// Disassemble returns a javap-like listing of cf.
func Disassemble(cf *ClassFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; class %s extends %s [%s]\n", cf.This, cf.Super, cf.Flags)
	fmt.Fprintf(&sb, "; version %d.%d\n\n", cf.Major, cf.Minor)

	sb.WriteString("; Constants:\n")
	for i := 1; i <= cf.Pool.Len(); i++ {
		fmt.Fprintf(&sb, ";   #%-3d %s\n", i, describeConstant(cf.Pool, uint16(i)))
	}
	sb.WriteString("\n")

	for _, f := range cf.Fields {
		fmt.Fprintf(&sb, "field %s %s [%s]\n", f.Name, f.Descriptor, f.Flags)
	}
	if len(cf.Fields) > 0 {
		sb.WriteString("\n")
	}

	for _, m := range cf.Methods {
		fmt.Fprintf(&sb, "method %s%s [%s]\n", m.Name, m.Descriptor, m.Flags)
		if m.Code == nil {
			sb.WriteString("\n")
			continue
		}
		fmt.Fprintf(&sb, "  ; stack=%d locals=%d\n", m.Code.MaxStack, m.Code.MaxLocals)
		frames := make(map[int]FrameInfo)
		for _, f := range m.Code.Frames {
			frames[f.Offset] = f
		}
		instrs, err := DecodeCode(m.Code.Code)
		for _, in := range instrs {
			if f, ok := frames[in.Offset]; ok {
				fmt.Fprintf(&sb, "  ; frame locals=%v stack=%v\n", f.Locals, f.Stack)
			}
			fmt.Fprintf(&sb, "  %4d: %s\n", in.Offset, formatInstruction(cf.Pool, in))
		}
		if err != nil {
			fmt.Fprintf(&sb, "  ; error: %v\n", err)
		}
		sb.WriteString("\n")
	}

	for _, a := range cf.Attributes {
		fmt.Fprintf(&sb, "; attribute %s (%d bytes)\n", a.AttrName, len(a.Body))
	}
	return sb.String()
}

func formatInstruction(pool *ConstantPool, in Instruction) string {
	name := in.Op.String()
	if in.Wide {
		return fmt.Sprintf("wide %s %d", name, in.Local)
	}
	info, _ := in.Op.Info()
	switch info.Operand {
	case OperandLocal:
		return fmt.Sprintf("%s %d", name, in.Local)
	case OperandByte, OperandShort:
		return fmt.Sprintf("%s %d", name, in.Value)
	case OperandCP1, OperandCP2:
		return fmt.Sprintf("%s #%d // %s", name, in.Index, describeConstant(pool, in.Index))
	case OperandBranch:
		return fmt.Sprintf("%s %d", name, in.Target)
	case OperandAType:
		switch uint8(in.Value) {
		case TInt:
			return name + " int"
		case TBoolean:
			return name + " boolean"
		}
		return fmt.Sprintf("%s %d", name, in.Value)
	case OperandMulti:
		return fmt.Sprintf("%s #%d %d // %s", name, in.Index, in.Dims, describeConstant(pool, in.Index))
	}
	return name
}

func describeConstant(pool *ConstantPool, idx uint16) string {
	c, err := pool.Entry(idx)
	if err != nil {
		return err.Error()
	}
	switch c.Tag {
	case TagUtf8:
		return fmt.Sprintf("Utf8 %q", c.Text)
	case TagInteger:
		return fmt.Sprintf("Integer %d", c.Int)
	case TagClass:
		name, _ := pool.ClassNameAt(idx)
		return "Class " + name
	case TagString:
		s, _ := pool.Utf8(c.A)
		return fmt.Sprintf("String %q", s)
	case TagNameAndType:
		name, d, _ := pool.NameAndType(idx)
		return fmt.Sprintf("NameAndType %s:%s", name, d)
	case TagFieldref, TagMethodref:
		class, name, d, _ := pool.MemberRef(idx)
		return fmt.Sprintf("%s %s.%s:%s", c.Tag, class, name, d)
	}
	return c.Tag.String()
}
