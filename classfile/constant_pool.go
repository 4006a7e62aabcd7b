package classfile

import (
	"fmt"
)

// ConstantTag identifies the kind of a constant pool entry.
type ConstantTag uint8

const (
	TagUtf8        ConstantTag = 1
	TagInteger     ConstantTag = 3
	TagClass       ConstantTag = 7
	TagString      ConstantTag = 8
	TagFieldref    ConstantTag = 9
	TagMethodref   ConstantTag = 10
	TagNameAndType ConstantTag = 12
)

var tagNames = map[ConstantTag]string{
	TagUtf8:        "Utf8",
	TagInteger:     "Integer",
	TagClass:       "Class",
	TagString:      "String",
	TagFieldref:    "Fieldref",
	TagMethodref:   "Methodref",
	TagNameAndType: "NameAndType",
}

func (t ConstantTag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// MaxConstants is the largest number of live entries a pool can hold.
const MaxConstants = 65534

// Constant is one pool entry. Which fields are meaningful depends on Tag:
//
//	Utf8         Text
//	Integer      Int
//	Class        A = name (Utf8)
//	String       A = value (Utf8)
//	NameAndType  A = name (Utf8), B = descriptor (Utf8)
//	Fieldref     A = class (Class), B = name and type (NameAndType)
//	Methodref    A = class (Class), B = name and type (NameAndType)
type Constant struct {
	Tag  ConstantTag
	Text string
	Int  int32
	A, B uint16
}

// constKey is the structural identity of an entry. Composite entries are
// keyed by the strings they resolve to, so a Fieldref is found again from
// its (class, name, descriptor) without walking the referenced entries.
type constKey struct {
	tag     ConstantTag
	a, b, c string
	i       int32
}

// ConstantPool is a deduplicating table of constants, indexed from 1.
type ConstantPool struct {
	entries []Constant
	index   map[constKey]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{index: make(map[constKey]uint16)}
}

// Len returns the number of live entries.
func (p *ConstantPool) Len() int { return len(p.entries) }

// Count is the value written as constant_pool_count.
func (p *ConstantPool) Count() uint16 { return uint16(len(p.entries) + 1) }

func (p *ConstantPool) add(key constKey, c Constant) uint16 {
	if idx, ok := p.index[key]; ok {
		return idx
	}
	if len(p.entries) >= MaxConstants {
		internalf("add constant", ErrPoolOverflow, "cannot add %s entry", c.Tag)
	}
	p.entries = append(p.entries, c)
	idx := uint16(len(p.entries))
	p.index[key] = idx
	return idx
}

func (p *ConstantPool) AddUtf8(s string) uint16 {
	return p.add(constKey{tag: TagUtf8, a: s}, Constant{Tag: TagUtf8, Text: s})
}

func (p *ConstantPool) AddInteger(v int32) uint16 {
	return p.add(constKey{tag: TagInteger, i: v}, Constant{Tag: TagInteger, Int: v})
}

// AddClass interns a class by internal name ("java/lang/Object") or, for
// array classes, by descriptor ("[I").
func (p *ConstantPool) AddClass(name string) uint16 {
	key := constKey{tag: TagClass, a: name}
	if idx, ok := p.index[key]; ok {
		return idx
	}
	utf := p.AddUtf8(name)
	return p.add(key, Constant{Tag: TagClass, A: utf})
}

// AddClassType interns the class constant for a reference or array type.
func (p *ConstantPool) AddClassType(t Type) uint16 {
	return p.AddClass(ClassName(t))
}

func (p *ConstantPool) AddString(s string) uint16 {
	key := constKey{tag: TagString, a: s}
	if idx, ok := p.index[key]; ok {
		return idx
	}
	utf := p.AddUtf8(s)
	return p.add(key, Constant{Tag: TagString, A: utf})
}

func (p *ConstantPool) AddNameAndType(name, descriptor string) uint16 {
	key := constKey{tag: TagNameAndType, a: name, b: descriptor}
	if idx, ok := p.index[key]; ok {
		return idx
	}
	n := p.AddUtf8(name)
	d := p.AddUtf8(descriptor)
	return p.add(key, Constant{Tag: TagNameAndType, A: n, B: d})
}

// AddFieldref interns a reference to field name of class with type t.
func (p *ConstantPool) AddFieldref(class, name string, t Type) uint16 {
	return p.addMemberRef(TagFieldref, class, name, t.Descriptor())
}

// AddMethodref interns a reference to method name of class with signature m.
func (p *ConstantPool) AddMethodref(class, name string, m MethodType) uint16 {
	return p.addMemberRef(TagMethodref, class, name, m.Descriptor())
}

func (p *ConstantPool) addMemberRef(tag ConstantTag, class, name, descriptor string) uint16 {
	key := constKey{tag: tag, a: class, b: name, c: descriptor}
	if idx, ok := p.index[key]; ok {
		return idx
	}
	c := p.AddClass(class)
	nat := p.AddNameAndType(name, descriptor)
	return p.add(key, Constant{Tag: tag, A: c, B: nat})
}

// Entry returns the constant at idx.
func (p *ConstantPool) Entry(idx uint16) (Constant, error) {
	if idx == 0 || int(idx) > len(p.entries) {
		return Constant{}, fmt.Errorf("%w: %d", ErrInvalidConstant, idx)
	}
	return p.entries[idx-1], nil
}

func (p *ConstantPool) entryOf(idx uint16, tag ConstantTag) (Constant, error) {
	c, err := p.Entry(idx)
	if err != nil {
		return c, err
	}
	if c.Tag != tag {
		return c, fmt.Errorf("%w: #%d is %s, want %s", ErrInvalidConstant, idx, c.Tag, tag)
	}
	return c, nil
}

// Utf8 returns the text of the Utf8 entry at idx.
func (p *ConstantPool) Utf8(idx uint16) (string, error) {
	c, err := p.entryOf(idx, TagUtf8)
	return c.Text, err
}

// ClassNameAt returns the name of the Class entry at idx.
func (p *ConstantPool) ClassNameAt(idx uint16) (string, error) {
	c, err := p.entryOf(idx, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.A)
}

// NameAndType returns the name and descriptor of the NameAndType entry at idx.
func (p *ConstantPool) NameAndType(idx uint16) (name, descriptor string, err error) {
	c, err := p.entryOf(idx, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.A); err != nil {
		return "", "", err
	}
	descriptor, err = p.Utf8(c.B)
	return name, descriptor, err
}

// MemberRef resolves a Fieldref or Methodref.
func (p *ConstantPool) MemberRef(idx uint16) (class, name, descriptor string, err error) {
	c, err := p.Entry(idx)
	if err != nil {
		return "", "", "", err
	}
	if c.Tag != TagFieldref && c.Tag != TagMethodref {
		return "", "", "", fmt.Errorf("%w: #%d is %s", ErrInvalidReference, idx, c.Tag)
	}
	if class, err = p.ClassNameAt(c.A); err != nil {
		return "", "", "", err
	}
	name, descriptor, err = p.NameAndType(c.B)
	return class, name, descriptor, err
}

// Descriptor derives the descriptor of the entry at idx. String and Integer
// constants resolve to their value type, Class entries to the type they
// name, and NameAndType, Fieldref and Methodref to their type portion.
func (p *ConstantPool) Descriptor(idx uint16) (string, error) {
	c, err := p.Entry(idx)
	if err != nil {
		return "", err
	}
	switch c.Tag {
	case TagString:
		return String.Descriptor(), nil
	case TagInteger:
		return Int{}.Descriptor(), nil
	case TagClass:
		name, err := p.Utf8(c.A)
		if err != nil {
			return "", err
		}
		return ClassType(name).Descriptor(), nil
	case TagNameAndType:
		_, d, err := p.NameAndType(idx)
		return d, err
	case TagFieldref, TagMethodref:
		_, d, err := p.NameAndType(c.B)
		return d, err
	}
	return "", fmt.Errorf("%w: #%d is %s", ErrNoDescriptor, idx, c.Tag)
}

// OperandType returns the value type an ldc, getfield or getstatic on idx
// produces.
func (p *ConstantPool) OperandType(idx uint16) (Type, error) {
	d, err := p.Descriptor(idx)
	if err != nil {
		return nil, err
	}
	return ParseFieldDescriptor(d)
}

// MethodAt returns the signature of the Methodref at idx.
func (p *ConstantPool) MethodAt(idx uint16) (MethodType, error) {
	if _, err := p.entryOf(idx, TagMethodref); err != nil {
		return MethodType{}, err
	}
	d, err := p.Descriptor(idx)
	if err != nil {
		return MethodType{}, err
	}
	return ParseMethodDescriptor(d)
}

// WriteTo serializes constant_pool_count followed by the entries.
func (p *ConstantPool) WriteTo(w *Buffer) {
	w.WriteU2(p.Count())
	for _, c := range p.entries {
		w.WriteU1(uint8(c.Tag))
		switch c.Tag {
		case TagUtf8:
			w.WriteUTF8(c.Text)
		case TagInteger:
			w.WriteI4(c.Int)
		case TagClass, TagString:
			w.WriteU2(c.A)
		case TagFieldref, TagMethodref, TagNameAndType:
			w.WriteU2(c.A)
			w.WriteU2(c.B)
		}
	}
}

// load appends an already-decoded entry; used by the reader.
func (p *ConstantPool) load(c Constant) {
	p.entries = append(p.entries, c)
}
