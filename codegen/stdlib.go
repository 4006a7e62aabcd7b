package codegen

import (
	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/ir"
)

var predefined = []*ir.Procedure{
	{Name: "writeint", Params: []*ir.Variable{{Name: "i", Type: ir.IntType, Kind: ir.Param}}, Result: ir.VoidType, Predefined: true},
	{Name: "writebool", Params: []*ir.Variable{{Name: "b", Type: ir.BoolType, Kind: ir.Param}}, Result: ir.VoidType, Predefined: true},
	{Name: "writeln", Result: ir.VoidType, Predefined: true},
	{Name: "readint", Result: ir.IntType, Predefined: true},
}

// Predefined returns the procedures every program can call without
// declaring them. They are implemented by StandardLibrary.
func Predefined() []*ir.Procedure {
	out := make([]*ir.Procedure, len(predefined))
	copy(out, predefined)
	return out
}

func predefinedProc(name string) *ir.Procedure {
	for _, p := range predefined {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// StandardLibrary builds the class implementing the predefined
// procedures on top of System.out and a shared Scanner over System.in.
func StandardLibrary(major uint16) *classfile.Class {
	c := classfile.NewClass(LibraryClass, "java/lang/Object", classfile.AccPublic|classfile.AccSuper|classfile.AccFinal)
	c.Major = major
	pool := c.Pool()
	c.AddField("scanner", classfile.Scanner, classfile.AccPrivate|classfile.AccStatic)
	out := pool.AddFieldref("java/lang/System", "out", classfile.PrintStream)
	scanner := pool.AddFieldref(LibraryClass, "scanner", classfile.Scanner)

	printer := func(name string, arg classfile.Type) {
		m := c.AddMethod(name, classfile.Signature(nil, arg), classfile.AccPublic|classfile.AccStatic)
		code := m.NewCode(pool, c.Name)
		code.GetStatic(out)
		code.Load(0)
		code.InvokeVirtual(pool.AddMethodref("java/io/PrintStream", "print", classfile.Signature(nil, arg)))
		code.ReturnValue()
	}
	printer("writeint", classfile.Int{})
	printer("writebool", classfile.Bool{})

	m := c.AddMethod("writeln", classfile.Signature(nil), classfile.AccPublic|classfile.AccStatic)
	code := m.NewCode(pool, c.Name)
	code.GetStatic(out)
	code.InvokeVirtual(pool.AddMethodref("java/io/PrintStream", "println", classfile.Signature(nil)))
	code.ReturnValue()

	m = c.AddMethod("readint", classfile.Signature(classfile.Int{}), classfile.AccPublic|classfile.AccStatic)
	code = m.NewCode(pool, c.Name)
	code.GetStatic(scanner)
	code.InvokeVirtual(pool.AddMethodref("java/util/Scanner", "nextInt", classfile.Signature(classfile.Int{})))
	code.ReturnValue()

	m = c.AddMethod("<clinit>", classfile.Signature(nil), classfile.AccStatic)
	code = m.NewCode(pool, c.Name)
	code.New("java/util/Scanner")
	code.Dup()
	code.GetStatic(pool.AddFieldref("java/lang/System", "in", classfile.InputStream))
	code.InvokeSpecial(pool.AddMethodref("java/util/Scanner", "<init>", classfile.Signature(nil, classfile.InputStream)))
	code.PutStatic(scanner)
	code.ReturnValue()
	return c
}
