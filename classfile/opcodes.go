package classfile

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a JVM instruction opcode. Only the subset the code generator
// emits is defined.
type Opcode byte

// Constants
const (
	AconstNull Opcode = 0x01
	IconstM1   Opcode = 0x02
	Iconst0    Opcode = 0x03
	Iconst1    Opcode = 0x04
	Iconst2    Opcode = 0x05
	Iconst3    Opcode = 0x06
	Iconst4    Opcode = 0x07
	Iconst5    Opcode = 0x08
	Bipush     Opcode = 0x10
	Sipush     Opcode = 0x11
	Ldc        Opcode = 0x12
	LdcW       Opcode = 0x13
)

// Loads
const (
	Iload  Opcode = 0x15
	Aload  Opcode = 0x19
	Iload0 Opcode = 0x1a
	Aload0 Opcode = 0x2a
	Iaload Opcode = 0x2e
	Aaload Opcode = 0x32
	Baload Opcode = 0x33
)

// Stores
const (
	Istore  Opcode = 0x36
	Astore  Opcode = 0x3a
	Istore0 Opcode = 0x3b
	Astore0 Opcode = 0x4b
	Iastore Opcode = 0x4f
	Aastore Opcode = 0x53
	Bastore Opcode = 0x54
)

// Stack
const (
	Pop  Opcode = 0x57
	Dup  Opcode = 0x59
	Swap Opcode = 0x5f
)

// Arithmetic
const (
	Iadd Opcode = 0x60
	Isub Opcode = 0x64
	Imul Opcode = 0x68
	Idiv Opcode = 0x6c
	Irem Opcode = 0x70
	Ineg Opcode = 0x74
)

// Control flow
const (
	Ifeq     Opcode = 0x99
	Ifne     Opcode = 0x9a
	Iflt     Opcode = 0x9b
	Ifge     Opcode = 0x9c
	Ifgt     Opcode = 0x9d
	Ifle     Opcode = 0x9e
	IfIcmpeq Opcode = 0x9f
	IfIcmpne Opcode = 0xa0
	IfIcmplt Opcode = 0xa1
	IfIcmpge Opcode = 0xa2
	IfIcmpgt Opcode = 0xa3
	IfIcmple Opcode = 0xa4
	IfAcmpeq Opcode = 0xa5
	IfAcmpne Opcode = 0xa6
	Goto     Opcode = 0xa7
)

// Returns
const (
	Ireturn Opcode = 0xac
	Areturn Opcode = 0xb0
	Return  Opcode = 0xb1
)

// Fields and methods
const (
	Getstatic     Opcode = 0xb2
	Putstatic     Opcode = 0xb3
	Getfield      Opcode = 0xb4
	Putfield      Opcode = 0xb5
	Invokevirtual Opcode = 0xb6
	Invokespecial Opcode = 0xb7
	Invokestatic  Opcode = 0xb8
)

// Objects and arrays
const (
	New            Opcode = 0xbb
	Newarray       Opcode = 0xbc
	Anewarray      Opcode = 0xbd
	Arraylength    Opcode = 0xbe
	Wide           Opcode = 0xc4
	Multianewarray Opcode = 0xc5
)

// Primitive array type codes for newarray.
const (
	TBoolean uint8 = 4
	TInt     uint8 = 10
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how an instruction's immediate operands are encoded.
type OperandKind uint8

const (
	OperandNone   OperandKind = iota
	OperandLocal              // u1 local index (u2 after wide)
	OperandByte               // s1 immediate
	OperandShort              // s2 immediate
	OperandCP1                // u1 constant pool index
	OperandCP2                // u2 constant pool index
	OperandBranch             // s2 relative offset
	OperandAType              // u1 primitive array type
	OperandMulti              // u2 class index, u1 dimensions
	OperandWide               // wide prefix
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string
	Operand OperandKind
}

// Size returns the encoded length of the instruction, opcode included.
func (i OpcodeInfo) Size() int {
	switch i.Operand {
	case OperandLocal, OperandByte, OperandCP1, OperandAType:
		return 2
	case OperandShort, OperandCP2, OperandBranch:
		return 3
	case OperandMulti:
		return 4
	}
	return 1
}

var opcodeTable = map[Opcode]OpcodeInfo{
	AconstNull: {"aconst_null", OperandNone},
	IconstM1:   {"iconst_m1", OperandNone},
	Iconst0:    {"iconst_0", OperandNone},
	Iconst1:    {"iconst_1", OperandNone},
	Iconst2:    {"iconst_2", OperandNone},
	Iconst3:    {"iconst_3", OperandNone},
	Iconst4:    {"iconst_4", OperandNone},
	Iconst5:    {"iconst_5", OperandNone},
	Bipush:     {"bipush", OperandByte},
	Sipush:     {"sipush", OperandShort},
	Ldc:        {"ldc", OperandCP1},
	LdcW:       {"ldc_w", OperandCP2},

	Iload:  {"iload", OperandLocal},
	Aload:  {"aload", OperandLocal},
	Iaload: {"iaload", OperandNone},
	Aaload: {"aaload", OperandNone},
	Baload: {"baload", OperandNone},

	Istore:  {"istore", OperandLocal},
	Astore:  {"astore", OperandLocal},
	Iastore: {"iastore", OperandNone},
	Aastore: {"aastore", OperandNone},
	Bastore: {"bastore", OperandNone},

	Pop:  {"pop", OperandNone},
	Dup:  {"dup", OperandNone},
	Swap: {"swap", OperandNone},

	Iadd: {"iadd", OperandNone},
	Isub: {"isub", OperandNone},
	Imul: {"imul", OperandNone},
	Idiv: {"idiv", OperandNone},
	Irem: {"irem", OperandNone},
	Ineg: {"ineg", OperandNone},

	Ifeq:     {"ifeq", OperandBranch},
	Ifne:     {"ifne", OperandBranch},
	Iflt:     {"iflt", OperandBranch},
	Ifge:     {"ifge", OperandBranch},
	Ifgt:     {"ifgt", OperandBranch},
	Ifle:     {"ifle", OperandBranch},
	IfIcmpeq: {"if_icmpeq", OperandBranch},
	IfIcmpne: {"if_icmpne", OperandBranch},
	IfIcmplt: {"if_icmplt", OperandBranch},
	IfIcmpge: {"if_icmpge", OperandBranch},
	IfIcmpgt: {"if_icmpgt", OperandBranch},
	IfIcmple: {"if_icmple", OperandBranch},
	IfAcmpeq: {"if_acmpeq", OperandBranch},
	IfAcmpne: {"if_acmpne", OperandBranch},
	Goto:     {"goto", OperandBranch},

	Ireturn: {"ireturn", OperandNone},
	Areturn: {"areturn", OperandNone},
	Return:  {"return", OperandNone},

	Getstatic:     {"getstatic", OperandCP2},
	Putstatic:     {"putstatic", OperandCP2},
	Getfield:      {"getfield", OperandCP2},
	Putfield:      {"putfield", OperandCP2},
	Invokevirtual: {"invokevirtual", OperandCP2},
	Invokespecial: {"invokespecial", OperandCP2},
	Invokestatic:  {"invokestatic", OperandCP2},

	New:            {"new", OperandCP2},
	Newarray:       {"newarray", OperandAType},
	Anewarray:      {"anewarray", OperandCP2},
	Arraylength:    {"arraylength", OperandNone},
	Wide:           {"wide", OperandWide},
	Multianewarray: {"multianewarray", OperandMulti},
}

func init() {
	for i := 0; i < 4; i++ {
		opcodeTable[Iload0+Opcode(i)] = OpcodeInfo{fmt.Sprintf("iload_%d", i), OperandNone}
		opcodeTable[Aload0+Opcode(i)] = OpcodeInfo{fmt.Sprintf("aload_%d", i), OperandNone}
		opcodeTable[Istore0+Opcode(i)] = OpcodeInfo{fmt.Sprintf("istore_%d", i), OperandNone}
		opcodeTable[Astore0+Opcode(i)] = OpcodeInfo{fmt.Sprintf("astore_%d", i), OperandNone}
	}
}

// Info returns metadata for op.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(0x%02x)", byte(op))
}

// IsBranch reports whether op takes a relative jump offset.
func (op Opcode) IsBranch() bool {
	info, ok := opcodeTable[op]
	return ok && info.Operand == OperandBranch
}

// shortForm maps a generic load/store to its _0 variant.
func shortForm(op Opcode) Opcode {
	switch op {
	case Iload:
		return Iload0
	case Aload:
		return Aload0
	case Istore:
		return Istore0
	case Astore:
		return Astore0
	}
	return op
}
