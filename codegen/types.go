package codegen

import (
	"unicode"
	"unicode/utf8"

	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/ir"
)

// LibraryClass is the class holding the predefined procedures.
const LibraryClass = "StandardLibrary"

// ClassName is the JVM name of the class generated for program name.
func ClassName(program string) string { return capitalize(program) }

// RecordClassName is the JVM name of the nested class for a record.
func RecordClassName(program, record string) string {
	return ClassName(program) + "$" + capitalize(record)
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// typeMapper converts source types for one program.
type typeMapper struct {
	program string
}

// jvm returns the JVM type of t, nil for void.
func (m typeMapper) jvm(t ir.Type) classfile.Type {
	var base classfile.Type
	switch t.Base {
	case ir.Void:
		if t.Dims == 0 {
			return nil
		}
		fail("map type", ErrUnsupportedTyp, "array of void")
	case ir.Int:
		base = classfile.Int{}
	case ir.Bool:
		base = classfile.Bool{}
	case ir.String:
		base = classfile.String
	case ir.Record:
		base = classfile.Reference{Class: RecordClassName(m.program, t.Record)}
	default:
		fail("map type", ErrUnsupportedTyp, "%s", t)
	}
	return classfile.ArrayOf(base, t.Dims)
}

func (m typeMapper) signature(proc *ir.Procedure) classfile.MethodType {
	params := make([]classfile.Type, len(proc.Params))
	for i, p := range proc.Params {
		params[i] = m.jvm(p.Type)
	}
	return classfile.Signature(m.jvm(proc.Result), params...)
}

