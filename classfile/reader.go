package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errTruncated = errors.New("truncated class file")

// ClassFile is a decoded class file.
type ClassFile struct {
	Minor, Major uint16
	Pool         *ConstantPool
	Flags        AccessFlags
	This         string
	Super        string
	Fields       []FieldInfo
	Methods      []MethodInfo
	Attributes   []RawAttribute
}

// FieldInfo is a decoded field_info.
type FieldInfo struct {
	Flags      AccessFlags
	Name       string
	Descriptor string
}

// MethodInfo is a decoded method_info. Code is nil for methods without a
// Code attribute.
type MethodInfo struct {
	Flags      AccessFlags
	Name       string
	Descriptor string
	Code       *CodeInfo
	Attributes []RawAttribute
}

// CodeInfo is a decoded Code attribute.
type CodeInfo struct {
	MaxStack  uint16
	MaxLocals uint16
	Code      []byte
	Frames    []FrameInfo
	HasFrames bool // a StackMapTable attribute was present
}

// FrameInfo is a decoded full_frame.
type FrameInfo struct {
	Offset int
	Locals []VerificationType
	Stack  []VerificationType
}

// VerificationType is a decoded verification_type_info. Class is set for
// ItemObject.
type VerificationType struct {
	Tag   uint8
	Class string
}

func (v VerificationType) String() string {
	switch v.Tag {
	case ItemTop:
		return "top"
	case ItemInteger:
		return "int"
	case ItemNull:
		return "null"
	case ItemObject:
		return v.Class
	}
	return fmt.Sprintf("item(%d)", v.Tag)
}

// Method finds a method by name and descriptor.
func (cf *ClassFile) Method(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// Field finds a field by name.
func (cf *ClassFile) Field(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// reader walks a byte slice; the first failure sticks.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d", errTruncated, n, r.pos)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

// Parse decodes a class file. Only the constant kinds the code generator
// produces are understood.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, fmt.Errorf("bad magic 0x%08X", magic)
	}
	cf := &ClassFile{Pool: NewConstantPool()}
	cf.Minor = r.u2()
	cf.Major = r.u2()
	if err := parsePool(r, cf.Pool); err != nil {
		return nil, err
	}

	cf.Flags = AccessFlags(r.u2())
	this, super := r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}
	var err error
	if cf.This, err = cf.Pool.ClassNameAt(this); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if cf.Super, err = cf.Pool.ClassNameAt(super); err != nil {
		return nil, fmt.Errorf("super_class: %w", err)
	}
	r.pos += 2 * int(r.u2()) // interfaces

	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		f := FieldInfo{Flags: AccessFlags(r.u2())}
		f.Name, f.Descriptor = cf.utf8(r, r.u2()), cf.utf8(r, r.u2())
		skipAttributes(r)
		cf.Fields = append(cf.Fields, f)
	}
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		m := MethodInfo{Flags: AccessFlags(r.u2())}
		m.Name, m.Descriptor = cf.utf8(r, r.u2()), cf.utf8(r, r.u2())
		for _, a := range cf.attributes(r) {
			if a.AttrName == "Code" {
				code, err := cf.parseCode(a.Body)
				if err != nil {
					return nil, fmt.Errorf("%s%s: %w", m.Name, m.Descriptor, err)
				}
				m.Code = code
				continue
			}
			m.Attributes = append(m.Attributes, a)
		}
		cf.Methods = append(cf.Methods, m)
	}
	cf.Attributes = cf.attributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after class file", len(data)-r.pos)
	}
	return cf, nil
}

func parsePool(r *reader, pool *ConstantPool) error {
	count := int(r.u2())
	for i := 1; i < count && r.err == nil; i++ {
		c := Constant{Tag: ConstantTag(r.u1())}
		switch c.Tag {
		case TagUtf8:
			c.Text = DecodeModifiedUTF8(r.bytes(int(r.u2())))
		case TagInteger:
			c.Int = int32(r.u4())
		case TagClass, TagString:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagNameAndType:
			c.A, c.B = r.u2(), r.u2()
		default:
			if r.err == nil {
				return fmt.Errorf("constant #%d: unsupported tag %d", i, c.Tag)
			}
		}
		pool.load(c)
	}
	return r.err
}

func (cf *ClassFile) utf8(r *reader, idx uint16) string {
	if r.err != nil {
		return ""
	}
	s, err := cf.Pool.Utf8(idx)
	if err != nil {
		r.err = err
	}
	return s
}

func (cf *ClassFile) attributes(r *reader) []RawAttribute {
	var attrs []RawAttribute
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		name := cf.utf8(r, r.u2())
		body := r.bytes(int(r.u4()))
		attrs = append(attrs, RawAttribute{AttrName: name, Body: body})
	}
	return attrs
}

func skipAttributes(r *reader) {
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		r.u2()
		r.bytes(int(r.u4()))
	}
}

func (cf *ClassFile) parseCode(body []byte) (*CodeInfo, error) {
	r := &reader{data: body}
	ci := &CodeInfo{MaxStack: r.u2(), MaxLocals: r.u2()}
	ci.Code = r.bytes(int(r.u4()))
	r.pos += 8 * int(r.u2()) // exception table
	for _, a := range cf.attributes(r) {
		if a.AttrName != "StackMapTable" {
			continue
		}
		frames, err := cf.parseStackMap(a.Body)
		if err != nil {
			return nil, fmt.Errorf("StackMapTable: %w", err)
		}
		ci.Frames = frames
		ci.HasFrames = true
	}
	return ci, r.err
}

func (cf *ClassFile) parseStackMap(body []byte) ([]FrameInfo, error) {
	r := &reader{data: body}
	var frames []FrameInfo
	offset := -1
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		tag := r.u1()
		if tag != FullFrameTag {
			return nil, fmt.Errorf("unsupported frame type %d", tag)
		}
		delta := int(r.u2())
		if offset < 0 {
			offset = delta
		} else {
			offset += delta + 1
		}
		f := FrameInfo{Offset: offset}
		for k := int(r.u2()); k > 0 && r.err == nil; k-- {
			f.Locals = append(f.Locals, cf.verificationType(r))
		}
		for k := int(r.u2()); k > 0 && r.err == nil; k-- {
			f.Stack = append(f.Stack, cf.verificationType(r))
		}
		frames = append(frames, f)
	}
	return frames, r.err
}

func (cf *ClassFile) verificationType(r *reader) VerificationType {
	v := VerificationType{Tag: r.u1()}
	if v.Tag == ItemObject {
		idx := r.u2()
		if r.err == nil {
			name, err := cf.Pool.ClassNameAt(idx)
			if err != nil {
				r.err = err
			}
			v.Class = name
		}
	}
	return v
}
