// Package ir is the analyzed program handed to the code generator: every
// identifier is resolved, every expression is typed and constants are folded.
package ir

import "strings"

// BaseType is the element type of a Type.
type BaseType uint8

const (
	Void BaseType = iota
	Int
	Bool
	String
	Record
)

var baseNames = [...]string{
	Void:   "void",
	Int:    "int",
	Bool:   "bool",
	String: "string",
	Record: "record",
}

func (b BaseType) String() string {
	if int(b) < len(baseNames) {
		return baseNames[b]
	}
	return "invalid"
}

// Type is a source-level type: a base type, the record name for record
// types, and the number of array dimensions.
type Type struct {
	Base   BaseType `cbor:"1,keyasint"`
	Record string   `cbor:"2,keyasint,omitempty"`
	Dims   int      `cbor:"3,keyasint,omitempty"`
}

var (
	VoidType   = Type{Base: Void}
	IntType    = Type{Base: Int}
	BoolType   = Type{Base: Bool}
	StringType = Type{Base: String}
)

// RecordType returns the type of record name.
func RecordType(name string) Type { return Type{Base: Record, Record: name} }

// ArrayOf returns t with dims more array dimensions.
func ArrayOf(t Type, dims int) Type {
	t.Dims += dims
	return t
}

func (t Type) IsVoid() bool   { return t.Base == Void && t.Dims == 0 }
func (t Type) IsArray() bool  { return t.Dims > 0 }
func (t Type) IsInt() bool    { return t.Base == Int && t.Dims == 0 }
func (t Type) IsBool() bool   { return t.Base == Bool && t.Dims == 0 }
func (t Type) IsRecord() bool { return t.Base == Record && t.Dims == 0 }

// IsPrimitive reports whether t is int or bool.
func (t Type) IsPrimitive() bool { return t.IsInt() || t.IsBool() }

// Elem returns the element type of an array type.
func (t Type) Elem() Type {
	if t.Dims > 0 {
		t.Dims--
	}
	return t
}

// BaseOf strips all array dimensions.
func (t Type) BaseOf() Type {
	t.Dims = 0
	return t
}

func (t Type) String() string {
	name := t.Base.String()
	if t.Base == Record {
		name = t.Record
	}
	return name + strings.Repeat("[]", t.Dims)
}
