package codegen

import (
	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/ir"
)

var (
	concatSig   = classfile.Signature(classfile.String, classfile.String)
	toStringSig = classfile.Signature(classfile.String)
	initSig     = classfile.Signature(nil)
)

// stringify converts the value of type t on top of code's stack to a
// String: ints and bools through their wrapper classes, arrays through
// java.util.Arrays and records through their own toString.
func stringify(code *classfile.Code, t ir.Type) {
	pool := code.Pool()
	var class, name string
	var param classfile.Type
	switch {
	case t.Dims > 1:
		class, name, param = "java/util/Arrays", "deepToString", classfile.ObjectArray
	case t.Dims == 1 && t.Base == ir.Int:
		class, name, param = "java/util/Arrays", "toString", classfile.IntArray
	case t.Dims == 1 && t.Base == ir.Bool:
		class, name, param = "java/util/Arrays", "toString", classfile.BooleanArray
	case t.Dims == 1:
		class, name, param = "java/util/Arrays", "toString", classfile.ObjectArray
	case t.Base == ir.Int:
		class, name, param = "java/lang/Integer", "toString", classfile.Int{}
	case t.Base == ir.Bool:
		class, name, param = "java/lang/Boolean", "toString", classfile.Bool{}
	case t.Base == ir.String:
		return
	default:
		class, name, param = "java/util/Objects", "toString", classfile.Object
	}
	code.InvokeStatic(pool.AddMethodref(class, name, classfile.Signature(classfile.String, param)))
}

// concat appends the String on top of the stack to the one below it.
func concat(code *classfile.Code) {
	code.InvokeVirtual(code.Pool().AddMethodref("java/lang/String", "concat", concatSig))
}

// addConstructor adds <init>()V calling the superclass constructor.
func addConstructor(c *classfile.Class) {
	m := c.AddMethod("<init>", initSig, classfile.AccPublic)
	code := m.NewCode(c.Pool(), c.Name)
	code.Load(0)
	code.InvokeSpecial(c.Pool().AddMethodref(c.Super, "<init>", initSig))
	code.ReturnValue()
}

// addToString adds toString() rendering the instance as
// "Name {f: v, g: w}".
func addToString(c *classfile.Class, rec *ir.RecordDecl, types typeMapper) {
	pool := c.Pool()
	m := c.AddMethod("toString", toStringSig, classfile.AccPublic)
	code := m.NewCode(pool, c.Name)

	code.PushString(capitalize(rec.Name) + " {")
	for i, f := range rec.Fields {
		label := f.Name + ": "
		if i > 0 {
			label = ", " + label
		}
		code.PushString(label)
		concat(code)
		code.Load(0)
		code.GetField(pool.AddFieldref(c.Name, f.Name, types.jvm(f.Type)))
		stringify(code, f.Type)
		concat(code)
	}
	code.PushString("}")
	concat(code)
	code.ReturnValue()
}
