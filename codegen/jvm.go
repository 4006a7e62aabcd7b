package codegen

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/ir"
)

var log = commonlog.GetLogger("yapl.codegen")

var (
	mainSig  = classfile.Signature(nil, classfile.StringArray)
	printSig = classfile.Signature(nil, classfile.String)
)

// JVM is the Backend producing class files: one class for the program
// with its globals as static fields and its procedures as static methods,
// one nested class per record and the StandardLibrary class.
type JVM struct {
	// Major is the class-file major version written into every class.
	Major uint16

	prog    *ir.Program
	types   typeMapper
	class   *classfile.Class
	inner   *classfile.InnerClasses
	statics []*ir.Variable // globals initialized in <clinit>
	classes []*classfile.Class

	record  *classfile.Class
	recDecl *ir.RecordDecl

	code   *classfile.Code
	method string
	locals map[*ir.Variable]int
	blocks []*branchBlock
	chains []*chain
}

// branchBlock is an open if/else or while: control re-enters start on
// loops and joins at end with start's frame.
type branchBlock struct {
	start classfile.Label
	end   classfile.Label
}

// NewJVM returns a backend emitting class files of version major.0.
func NewJVM(major uint16) *JVM {
	if major == 0 {
		major = classfile.DefaultMajor
	}
	return &JVM{Major: major}
}

// Classes returns the classes completed so far: records first, then the
// program class and StandardLibrary once ExitProgram ran.
func (g *JVM) Classes() []*classfile.Class { return g.classes }

func (g *JVM) mustCode(op string) *classfile.Code {
	if g.code == nil {
		fail(op, ErrNoMethod, "called outside a method")
	}
	return g.code
}

func (g *JVM) pool() *classfile.ConstantPool { return g.class.Pool() }

// ---------------------------------------------------------------------------
// Program, records and methods
// ---------------------------------------------------------------------------

func (g *JVM) EnterProgram(p *ir.Program) {
	g.prog = p
	g.types = typeMapper{program: p.Name}
	g.class = classfile.NewClass(ClassName(p.Name), "java/lang/Object", classfile.AccPublic|classfile.AccSuper)
	g.class.Major = g.Major
	g.inner = &classfile.InnerClasses{}
	if p.Source != "" {
		g.class.AddAttribute(&classfile.SourceFile{File: p.Source})
	}
	log.Debugf("enter program %s", g.class.Name)
}

func (g *JVM) ExitProgram() {
	if len(g.statics) > 0 {
		g.openMethod("<clinit>", classfile.Signature(nil), classfile.AccStatic)
		for _, v := range g.statics {
			g.initValue(v.Type)
			g.code.PutStatic(g.staticRef(v))
		}
		g.closeMethod("exit program")
	}
	if len(g.inner.Classes) > 0 {
		g.class.AddAttribute(g.inner)
	}
	g.classes = append(g.classes, g.class, StandardLibrary(g.Major))
	log.Debugf("exit program %s: %d classes", g.class.Name, len(g.classes))
}

func (g *JVM) EnterRecord(rec *ir.RecordDecl) {
	if g.record != nil {
		fail("enter record", ErrUnbalanced, "%s opened inside %s", rec.Name, g.record.Name)
	}
	g.record = classfile.NewClass(RecordClassName(g.prog.Name, rec.Name), "java/lang/Object", classfile.AccPublic|classfile.AccSuper)
	g.record.Major = g.Major
	g.recDecl = rec
}

func (g *JVM) ExitRecord() {
	c := g.record
	if c == nil {
		fail("exit record", ErrNoRecord, "no record to close")
	}
	addConstructor(c)
	addToString(c, g.recDecl, g.types)

	simple := capitalize(g.recDecl.Name)
	flags := classfile.AccPublic | classfile.AccStatic
	own := &classfile.InnerClasses{}
	own.Add(c.Name, g.class.Name, simple, flags)
	c.AddAttribute(own)
	if g.prog.Source != "" {
		c.AddAttribute(&classfile.SourceFile{File: g.prog.Source})
	}
	g.inner.Add(c.Name, g.class.Name, simple, flags)

	g.classes = append(g.classes, c)
	g.record, g.recDecl = nil, nil
	log.Debugf("record %s: %d fields", c.Name, len(c.Fields))
}

func (g *JVM) openMethod(name string, sig classfile.MethodType, flags classfile.AccessFlags) {
	if g.code != nil {
		fail("enter function", ErrUnbalanced, "%s opened inside %s", name, g.method)
	}
	m := g.class.AddMethod(name, sig, flags)
	g.code = m.NewCode(g.pool(), g.class.Name)
	g.method = name
	g.locals = make(map[*ir.Variable]int)
	g.blocks, g.chains = nil, nil
}

// closeMethod ends the open method, returning a default value if control
// can still fall off its end.
func (g *JVM) closeMethod(op string) {
	code := g.mustCode(op)
	if len(g.blocks) != 0 || len(g.chains) != 0 {
		fail(op, ErrUnbalanced, "%s: %d blocks and %d chains left open", g.method, len(g.blocks), len(g.chains))
	}
	if code.Reachable() {
		switch t := code.Result(); {
		case t == nil:
		case classfile.IsReference(t):
			code.AconstNull()
		case t == classfile.Bool{}:
			code.PushBool(false)
		default:
			code.PushInt(0)
		}
		code.ReturnValue()
	}
	log.Debugf("method %s: max stack %d, max locals %d, %d bytes", g.method, code.MaxStack(), code.MaxLocals(), code.Offset())
	g.code, g.method, g.locals = nil, "", nil
}

func (g *JVM) EnterMainFunction() {
	g.openMethod("main", mainSig, classfile.AccPublic|classfile.AccStatic)
}

func (g *JVM) ExitMainFunction() { g.closeMethod("exit main") }

func (g *JVM) EnterFunction(proc *ir.Procedure) {
	g.openMethod(proc.Name, g.types.signature(proc), classfile.AccPublic|classfile.AccStatic)
	for i, p := range proc.Params {
		g.locals[p] = i
	}
}

func (g *JVM) ExitFunction() { g.closeMethod("exit function") }

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

func (g *JVM) AllocVariable(v *ir.Variable) {
	switch v.Kind {
	case ir.Global:
		g.class.AddField(v.Name, g.types.jvm(v.Type), classfile.AccPublic|classfile.AccStatic)
		if v.Type.IsArray() || v.Type.IsRecord() {
			g.statics = append(g.statics, v)
		}
	case ir.Field:
		if g.record == nil {
			fail("alloc variable", ErrNoRecord, "field %s", v.Name)
		}
		g.record.AddField(v.Name, g.types.jvm(v.Type), classfile.AccPublic)
	case ir.Param:
		if _, ok := g.locals[v]; !ok {
			fail("alloc variable", ErrUnknownVar, "parameter %s is not bound by the open method", v.Name)
		}
	default:
		code := g.mustCode("alloc variable")
		slot := code.AllocLocal(g.types.jvm(v.Type))
		g.locals[v] = slot
		g.initValue(v.Type)
		code.Store(slot)
	}
}

// initValue pushes the initial value of a fresh variable: zero, false, an
// empty array or a new record.
func (g *JVM) initValue(t ir.Type) {
	code := g.code
	switch {
	case t.IsArray():
		for i := 0; i < t.Dims; i++ {
			code.PushInt(0)
		}
		g.NewArray(t.BaseOf(), t.Dims)
	case t.IsRecord():
		g.NewRecord(g.prog.Record(t.Record))
	case t.IsBool():
		code.PushBool(false)
	case t.IsInt():
		code.PushInt(0)
	default:
		code.AconstNull()
	}
}

func (g *JVM) staticRef(v *ir.Variable) uint16 {
	return g.pool().AddFieldref(g.class.Name, v.Name, g.types.jvm(v.Type))
}

func (g *JVM) fieldRef(record string, f *ir.Variable) uint16 {
	return g.pool().AddFieldref(RecordClassName(g.prog.Name, record), f.Name, g.types.jvm(f.Type))
}

func (g *JVM) slot(op string, v *ir.Variable) int {
	slot, ok := g.locals[v]
	if !ok {
		fail(op, ErrUnknownVar, "%s %s in %s", v.Kind, v.Name, g.method)
	}
	return slot
}

// ---------------------------------------------------------------------------
// Loads and stores
// ---------------------------------------------------------------------------

func (g *JVM) LoadConstant(t ir.Type, value int32) {
	code := g.mustCode("load constant")
	if t.IsBool() {
		code.PushBool(value != 0)
		g.connect()
		return
	}
	code.PushInt(value)
}

func (g *JVM) LoadString(s string) { g.mustCode("load string").PushString(s) }

func (g *JVM) LoadVar(v *ir.Variable) {
	code := g.mustCode("load")
	switch v.Kind {
	case ir.Global:
		code.GetStatic(g.staticRef(v))
	case ir.Field:
		fail("load", ErrUnknownVar, "field %s loaded as a variable", v.Name)
	default:
		code.Load(g.slot("load", v))
	}
	if v.Type.IsBool() {
		g.connect()
	}
}

func (g *JVM) StoreVar(v *ir.Variable) {
	code := g.mustCode("store")
	switch v.Kind {
	case ir.Global:
		code.PutStatic(g.staticRef(v))
	case ir.Field:
		fail("store", ErrUnknownVar, "field %s stored as a variable", v.Name)
	default:
		code.Store(g.slot("store", v))
	}
}

func (g *JVM) LoadElement(elem ir.Type) {
	g.mustCode("load element").ArrayLoad()
	if elem.IsBool() {
		g.connect()
	}
}

func (g *JVM) StoreElement(ir.Type) { g.mustCode("store element").ArrayStore() }

func (g *JVM) LoadField(record string, f *ir.Variable) {
	g.mustCode("load field").GetField(g.fieldRef(record, f))
	if f.Type.IsBool() {
		g.connect()
	}
}

func (g *JVM) StoreField(record string, f *ir.Variable) {
	g.mustCode("store field").PutField(g.fieldRef(record, f))
}

// ---------------------------------------------------------------------------
// Calls and output
// ---------------------------------------------------------------------------

func (g *JVM) Write() {
	code := g.mustCode("write")
	code.GetStatic(g.pool().AddFieldref("java/lang/System", "out", classfile.PrintStream))
	code.Swap()
	code.InvokeVirtual(g.pool().AddMethodref("java/io/PrintStream", "print", printSig))
}

func (g *JVM) CallFunction(proc *ir.Procedure) {
	code := g.mustCode("call")
	owner := g.class.Name
	if proc.Predefined {
		owner = LibraryClass
	}
	code.InvokeStatic(g.pool().AddMethodref(owner, proc.Name, g.types.signature(proc)))
	if proc.Result.IsBool() {
		g.connect()
	}
}

func (g *JVM) Stringify(t ir.Type) { stringify(g.mustCode("stringify"), t) }

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

var arithOps = map[ir.Op]classfile.Opcode{
	ir.Add: classfile.Iadd,
	ir.Sub: classfile.Isub,
	ir.Mul: classfile.Imul,
	ir.Div: classfile.Idiv,
	ir.Mod: classfile.Irem,
}

var compareOps = map[ir.Op]classfile.Opcode{
	ir.Lt: classfile.IfIcmplt,
	ir.Le: classfile.IfIcmple,
	ir.Gt: classfile.IfIcmpgt,
	ir.Ge: classfile.IfIcmpge,
	ir.Eq: classfile.IfIcmpeq,
	ir.Ne: classfile.IfIcmpne,
}

func (g *JVM) Op1(op ir.Op) {
	code := g.mustCode("op1")
	switch op {
	case ir.Neg:
		code.Neg()
	case ir.Plus:
	default:
		fail("op1", ErrUnsupportedOp, "%s", op)
	}
}

func (g *JVM) Op2(op ir.Op) {
	code := g.mustCode("op2")
	switch {
	case op.IsArithmetic():
		code.Arith(arithOps[op])
	case op.IsRelational():
		g.compare(op)
	case op.IsLogical():
		g.openChain(op)
	default:
		fail("op2", ErrUnsupportedOp, "%s", op)
	}
}

// compare pops two operands and pushes 1 when op holds, else 0.
func (g *JVM) compare(op ir.Op) {
	code := g.code
	jump := compareOps[op]
	if code.Reachable() && classfile.IsReference(code.Frame().Peek(0)) {
		switch op {
		case ir.Eq:
			jump = classfile.IfAcmpeq
		case ir.Ne:
			jump = classfile.IfAcmpne
		default:
			fail("compare", ErrUnsupportedOp, "%s on references", op)
		}
	}
	yes, reset, end := code.NewLabel(), code.NewLabel(), code.NewLabel()
	code.Jump(jump, yes)
	code.Mark(reset)
	code.PushBool(false)
	code.Goto(end)
	code.MarkFrom(yes, reset)
	code.PushBool(true)
	code.Mark(end)
	g.connect()
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (g *JVM) topBlock(op string) *branchBlock {
	if len(g.blocks) == 0 {
		fail(op, ErrUnbalanced, "no open branching block")
	}
	return g.blocks[len(g.blocks)-1]
}

func (g *JVM) StartBranchingBlock() {
	code := g.mustCode("start block")
	b := &branchBlock{start: code.NewLabel(), end: code.NewLabel()}
	code.Mark(b.start)
	g.blocks = append(g.blocks, b)
}

// Branch skips to the block's end (or else part) when the boolean on top
// of the stack is false.
func (g *JVM) Branch() {
	b := g.topBlock("branch")
	g.code.Jump(classfile.Ifeq, b.end)
}

// ElseBranch ends the then part: it jumps over the else part and binds the
// old end label as the else entry.
func (g *JVM) ElseBranch() {
	b := g.topBlock("else")
	end := g.code.NewLabel()
	g.code.Goto(end)
	g.code.MarkFrom(b.end, b.start)
	b.end = end
}

func (g *JVM) Loop() {
	b := g.topBlock("loop")
	g.code.Goto(b.start)
}

func (g *JVM) EndBranchingBlock() {
	b := g.topBlock("end block")
	g.code.MarkFrom(b.end, b.start)
	g.blocks = g.blocks[:len(g.blocks)-1]
}

func (g *JVM) ReturnFromFunction() { g.mustCode("return").ReturnValue() }

// ---------------------------------------------------------------------------
// Objects and stack
// ---------------------------------------------------------------------------

// NewArray pops dims lengths and pushes a new array of elem.
func (g *JVM) NewArray(elem ir.Type, dims int) {
	code := g.mustCode("new array")
	if dims == 1 {
		code.NewArray(g.types.jvm(elem))
		return
	}
	code.MultiNewArray(g.types.jvm(ir.ArrayOf(elem, dims)), dims)
}

func (g *JVM) NewRecord(rec *ir.RecordDecl) {
	code := g.mustCode("new record")
	if rec == nil {
		fail("new record", ErrNoRecord, "unknown record type")
	}
	class := RecordClassName(g.prog.Name, rec.Name)
	code.New(class)
	code.Dup()
	code.InvokeSpecial(g.pool().AddMethodref(class, "<init>", initSig))
}

func (g *JVM) ArrayLength() { g.mustCode("arraylength").ArrayLength() }
func (g *JVM) Dup()         { g.mustCode("dup").Dup() }
func (g *JVM) Pop()         { g.mustCode("pop").Pop() }
