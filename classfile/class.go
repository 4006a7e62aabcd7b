package classfile

import (
	"fmt"
	"strings"
)

// Class file format constants.
const (
	Magic        uint32 = 0xCAFEBABE
	DefaultMajor uint16 = 58
	DefaultMinor uint16 = 0
)

// AccessFlags is a class, field or method access_flags value.
type AccessFlags uint16

const (
	AccPublic  AccessFlags = 0x0001
	AccPrivate AccessFlags = 0x0002
	AccStatic  AccessFlags = 0x0008
	AccFinal   AccessFlags = 0x0010
	AccSuper   AccessFlags = 0x0020
)

func (f AccessFlags) String() string {
	var parts []string
	for _, fl := range []struct {
		bit  AccessFlags
		name string
	}{
		{AccPublic, "public"},
		{AccPrivate, "private"},
		{AccStatic, "static"},
		{AccFinal, "final"},
		{AccSuper, "super"},
	} {
		if f&fl.bit != 0 {
			parts = append(parts, fl.name)
		}
	}
	return strings.Join(parts, " ")
}

// Field is a field declaration.
type Field struct {
	Name  string
	Type  Type
	Flags AccessFlags
}

// Method is a method declaration. Code is nil until the body is attached.
type Method struct {
	Name       string
	Type       MethodType
	Flags      AccessFlags
	Code       *Code
	Attributes []Attribute
}

// IsStatic reports whether m has no receiver.
func (m *Method) IsStatic() bool { return m.Flags&AccStatic != 0 }

// NewCode starts m's body. Parameters, and the receiver of instance
// methods, occupy the first local slots.
func (m *Method) NewCode(pool *ConstantPool, owner string) *Code {
	params := m.Type.Params
	if !m.IsStatic() {
		params = append([]Type{Reference{owner}}, params...)
	}
	m.Code = NewCode(pool, m.Type.Return, params...)
	return m.Code
}

type memberKey struct{ name, descriptor string }

// Class is the structural model of one class file. The class owns its
// constant pool exclusively.
type Class struct {
	Name       string
	Super      string
	Flags      AccessFlags
	Major      uint16
	Minor      uint16
	Fields     []*Field
	Methods    []*Method
	Attributes []Attribute

	pool    *ConstantPool
	members map[memberKey]bool
}

// NewClass creates an empty class.
func NewClass(name, super string, flags AccessFlags) *Class {
	return &Class{
		Name:    name,
		Super:   super,
		Flags:   flags,
		Major:   DefaultMajor,
		Minor:   DefaultMinor,
		pool:    NewConstantPool(),
		members: make(map[memberKey]bool),
	}
}

// Pool returns the class's constant pool.
func (c *Class) Pool() *ConstantPool { return c.pool }

func (c *Class) claim(kind, name, descriptor string) {
	key := memberKey{kind + ":" + name, descriptor}
	if c.members[key] {
		internalf("add "+kind, ErrDuplicateMember, "%s.%s %s", c.Name, name, descriptor)
	}
	c.members[key] = true
}

// AddField declares a field. Declaring the same name and type twice panics.
func (c *Class) AddField(name string, t Type, flags AccessFlags) *Field {
	c.claim("field", name, t.Descriptor())
	f := &Field{Name: name, Type: t, Flags: flags}
	c.Fields = append(c.Fields, f)
	return f
}

// AddMethod declares a method. Declaring the same name and signature twice
// panics.
func (c *Class) AddMethod(name string, t MethodType, flags AccessFlags) *Method {
	c.claim("method", name, t.Descriptor())
	m := &Method{Name: name, Type: t, Flags: flags}
	c.Methods = append(c.Methods, m)
	return m
}

// Field returns the field named name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Method returns the method with the given name and signature, or nil.
func (c *Class) Method(name string, t MethodType) *Method {
	d := t.Descriptor()
	for _, m := range c.Methods {
		if m.Name == name && m.Type.Descriptor() == d {
			return m
		}
	}
	return nil
}

// AddAttribute attaches a class-level attribute.
func (c *Class) AddAttribute(a Attribute) {
	c.Attributes = append(c.Attributes, a)
}

// Bytes serializes the class file. Members are encoded first because
// encoding interns names and frame types into the pool, which is written
// ahead of them.
func (c *Class) Bytes() ([]byte, error) {
	var body Buffer
	body.WriteU2(uint16(c.Flags))
	body.WriteU2(c.pool.AddClass(c.Name))
	body.WriteU2(c.pool.AddClass(c.Super))
	body.WriteU2(0) // interfaces_count

	body.WriteU2(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		body.WriteU2(uint16(f.Flags))
		body.WriteU2(c.pool.AddUtf8(f.Name))
		body.WriteU2(c.pool.AddUtf8(f.Type.Descriptor()))
		body.WriteU2(0)
	}

	body.WriteU2(uint16(len(c.Methods)))
	for _, m := range c.Methods {
		body.WriteU2(uint16(m.Flags))
		body.WriteU2(c.pool.AddUtf8(m.Name))
		body.WriteU2(c.pool.AddUtf8(m.Type.Descriptor()))
		attrs := m.Attributes
		if m.Code != nil {
			attrs = append([]Attribute{m.Code}, attrs...)
		}
		if err := writeAttributes(&body, c.pool, attrs); err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", c.Name, m.Name, m.Type.Descriptor(), err)
		}
	}

	if err := writeAttributes(&body, c.pool, c.Attributes); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}

	var out Buffer
	out.WriteU4(Magic)
	out.WriteU2(c.Minor)
	out.WriteU2(c.Major)
	c.pool.WriteTo(&out)
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// FileName is the name of the file the class is written to.
func (c *Class) FileName() string {
	name := c.Name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name + ".class"
}
