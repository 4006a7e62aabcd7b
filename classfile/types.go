package classfile

import (
	"fmt"
	"strings"
)

// Type is a verification-relevant value type. The set of variants is
// closed: Int, Bool, Reference, Array and Null. Values compare with ==.
type Type interface {
	// Descriptor returns the field descriptor, e.g. "I" or "[Ljava/lang/String;".
	Descriptor() string
	String() string
	isType()
}

type (
	// Int is the 32-bit integer type.
	Int struct{}
	// Bool is the JVM boolean. On the operand stack it is an int.
	Bool struct{}
	// Reference is an instance of a named class (internal form, e.g. "java/lang/String").
	Reference struct{ Class string }
	// Array is a one-dimensional array; nest for more dimensions.
	Array struct{ Elem Type }
	// Null is the type of aconst_null.
	Null struct{}
)

func (Int) Descriptor() string         { return "I" }
func (Bool) Descriptor() string        { return "Z" }
func (t Reference) Descriptor() string { return "L" + t.Class + ";" }
func (t Array) Descriptor() string     { return "[" + t.Elem.Descriptor() }
func (Null) Descriptor() string        { return "Ljava/lang/Object;" }

func (Int) String() string         { return "int" }
func (Bool) String() string        { return "boolean" }
func (t Reference) String() string { return t.Class }
func (t Array) String() string     { return t.Elem.String() + "[]" }
func (Null) String() string        { return "null" }

func (Int) isType()       {}
func (Bool) isType()      {}
func (Reference) isType() {}
func (Array) isType()     {}
func (Null) isType()      {}

// Well-known reference types.
var (
	Object       = Reference{"java/lang/Object"}
	String       = Reference{"java/lang/String"}
	PrintStream  = Reference{"java/io/PrintStream"}
	InputStream  = Reference{"java/io/InputStream"}
	Scanner      = Reference{"java/util/Scanner"}
	StringArray  = Array{String}
	ObjectArray  = Array{Object}
	IntArray     = Array{Int{}}
	BooleanArray = Array{Bool{}}
)

// ArrayOf wraps elem in dims array dimensions.
func ArrayOf(elem Type, dims int) Type {
	for i := 0; i < dims; i++ {
		elem = Array{elem}
	}
	return elem
}

// Dimensions returns the number of array dimensions of t and its innermost
// element type.
func Dimensions(t Type) (int, Type) {
	n := 0
	for {
		a, ok := t.(Array)
		if !ok {
			return n, t
		}
		n++
		t = a.Elem
	}
}

// IsReference reports whether values of t are object references.
func IsReference(t Type) bool {
	switch t.(type) {
	case Reference, Array, Null:
		return true
	}
	return false
}

// ClassName returns the name a CONSTANT_Class entry uses for t: the internal
// name for classes, the descriptor for arrays.
func ClassName(t Type) string {
	switch t := t.(type) {
	case Reference:
		return t.Class
	case Array:
		return t.Descriptor()
	}
	internalf("class name", ErrNoDescriptor, "%s is not a class type", t)
	return ""
}

// ClassType is the inverse of ClassName.
func ClassType(name string) Type {
	if strings.HasPrefix(name, "[") {
		if t, err := ParseFieldDescriptor(name); err == nil {
			return t
		}
	}
	return Reference{name}
}

// MethodType is a method signature. A nil Return means void.
type MethodType struct {
	Params []Type
	Return Type
}

// Signature builds a MethodType.
func Signature(ret Type, params ...Type) MethodType {
	return MethodType{Params: params, Return: ret}
}

func (m MethodType) Descriptor() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(p.Descriptor())
	}
	sb.WriteByte(')')
	if m.Return == nil {
		sb.WriteByte('V')
	} else {
		sb.WriteString(m.Return.Descriptor())
	}
	return sb.String()
}

func (m MethodType) String() string { return m.Descriptor() }

// ParseFieldDescriptor parses a single field descriptor.
func ParseFieldDescriptor(s string) (Type, error) {
	t, rest, err := parseType(s)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("trailing characters in descriptor %q", s)
	}
	return t, nil
}

// ParseMethodDescriptor parses "(params)ret".
func ParseMethodDescriptor(s string) (MethodType, error) {
	var m MethodType
	if !strings.HasPrefix(s, "(") {
		return m, fmt.Errorf("method descriptor %q does not start with '('", s)
	}
	rest := s[1:]
	for !strings.HasPrefix(rest, ")") {
		if rest == "" {
			return m, fmt.Errorf("unterminated method descriptor %q", s)
		}
		var t Type
		var err error
		t, rest, err = parseType(rest)
		if err != nil {
			return m, err
		}
		m.Params = append(m.Params, t)
	}
	rest = rest[1:]
	if rest == "V" {
		return m, nil
	}
	ret, err := ParseFieldDescriptor(rest)
	if err != nil {
		return m, err
	}
	m.Return = ret
	return m, nil
}

func parseType(s string) (Type, string, error) {
	if s == "" {
		return nil, "", fmt.Errorf("empty descriptor")
	}
	switch s[0] {
	case 'I':
		return Int{}, s[1:], nil
	case 'Z':
		return Bool{}, s[1:], nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return nil, "", fmt.Errorf("unterminated class descriptor %q", s)
		}
		return Reference{s[1:end]}, s[end+1:], nil
	case '[':
		elem, rest, err := parseType(s[1:])
		if err != nil {
			return nil, "", err
		}
		return Array{elem}, rest, nil
	}
	return nil, "", fmt.Errorf("unsupported descriptor %q", s)
}
