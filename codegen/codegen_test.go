package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/ir"
	"github.com/chazu/yapl/vm"
)

// ---------------------------------------------------------------------------
// Program construction helpers
// ---------------------------------------------------------------------------

func local(name string, t ir.Type) *ir.Variable {
	return &ir.Variable{Name: name, Type: t, Kind: ir.Local}
}

func use(v *ir.Variable, sels ...ir.Selector) *ir.Designator {
	return &ir.Designator{Var: v, Selectors: sels}
}

func at(x ir.Expr) ir.Selector       { return ir.Selector{Index: x} }
func dot(f *ir.Variable) ir.Selector { return ir.Selector{Field: f} }
func num(n int32) *ir.IntLit         { return &ir.IntLit{Value: n} }
func truth(b bool) *ir.BoolLit       { return &ir.BoolLit{Value: b} }
func neg(x ir.Expr) *ir.Unary        { return &ir.Unary{Op: ir.Neg, X: x} }

func bin(op ir.Op, x, y ir.Expr) *ir.Binary { return &ir.Binary{Op: op, X: x, Y: y} }

func set(d *ir.Designator, x ir.Expr) *ir.Assign { return &ir.Assign{Target: d, Value: x} }

func call(p *ir.Procedure, args ...ir.Expr) *ir.Call {
	return &ir.Call{Proc: p, Args: args}
}

func do(p *ir.Procedure, args ...ir.Expr) *ir.CallStmt {
	return &ir.CallStmt{Call: call(p, args...)}
}

func writeint(x ir.Expr) ir.Stmt  { return do(predefinedProc("writeint"), x) }
func writebool(x ir.Expr) ir.Stmt { return do(predefinedProc("writebool"), x) }
func writeln() ir.Stmt            { return do(predefinedProc("writeln")) }
func readint() *ir.Call           { return call(predefinedProc("readint")) }

func mainProgram(vars []*ir.Variable, stmts ...ir.Stmt) *ir.Program {
	return &ir.Program{Name: "test", Main: &ir.Block{Vars: vars, Stmts: stmts}}
}

// compile generates p and returns its class images.
func compile(t *testing.T, p *ir.Program, opts ProfileOptions) [][]byte {
	t.Helper()
	g := NewJVM(0)
	var err error
	func() {
		defer classfile.Recover(&err)
		Generate(g, p, opts)
	}()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	var images [][]byte
	for _, c := range g.Classes() {
		data, err := c.Bytes()
		if err != nil {
			t.Fatalf("%s: %v", c.Name, err)
		}
		images = append(images, data)
	}
	return images
}

// run compiles p, executes its main method and returns what it printed.
func run(t *testing.T, p *ir.Program, opts ProfileOptions, stdin string) string {
	t.Helper()
	machine, err := vm.Load(compile(t, p, opts)...)
	if err != nil {
		t.Fatalf("vm.Load failed: %v", err)
	}
	machine.MaxSteps = 1_000_000
	var out strings.Builder
	if err := machine.Run(ClassName(p.Name), strings.NewReader(stdin), &out); err != nil {
		t.Fatalf("run failed: %v\noutput so far: %q", err, out.String())
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr ir.Expr
		want string
	}{
		{"precedence", bin(ir.Add, num(3), bin(ir.Mul, num(5), num(2))), "13"},
		{"remainder", bin(ir.Mod, num(10), num(3)), "1"},
		{"truncating division", bin(ir.Div, neg(num(7)), num(2)), "-3"},
		{"negative remainder", bin(ir.Mod, neg(num(7)), num(2)), "-1"},
		{"unary plus", &ir.Unary{Op: ir.Plus, X: num(4)}, "4"},
		{"sipush range", bin(ir.Sub, num(1000), num(1)), "999"},
		{"ldc range", bin(ir.Mul, num(100000), num(3)), "300000"},
		{"min int", num(-2147483648), "-2147483648"},
		{"constant", &ir.ConstRef{Const: &ir.Const{Name: "k", Type: ir.IntType, Value: 42}}, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, mainProgram(nil, writeint(tt.expr)), ProfileOptions{}, "")
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		op   ir.Op
		x, y int32
		want string
	}{
		{ir.Lt, 1, 2, "true"},
		{ir.Lt, 2, 2, "false"},
		{ir.Le, 2, 2, "true"},
		{ir.Gt, -1, 0, "false"},
		{ir.Ge, 3, 2, "true"},
		{ir.Eq, 5, 5, "true"},
		{ir.Ne, 5, 5, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got := run(t, mainProgram(nil, writebool(bin(tt.op, num(tt.x), num(tt.y)))), ProfileOptions{}, "")
			if got != tt.want {
				t.Errorf("%d %s %d = %q, want %q", tt.x, tt.op, tt.y, got, tt.want)
			}
		})
	}
}

// sideEffect returns a procedure that prints S and returns true.
func sideEffect() *ir.Procedure {
	return &ir.Procedure{
		Name:   "side",
		Result: ir.BoolType,
		Body: &ir.Block{Stmts: []ir.Stmt{
			&ir.Write{Text: "S"},
			&ir.Return{Value: truth(true)},
		}},
	}
}

func TestShortCircuit(t *testing.T) {
	tests := []struct {
		name string
		cond func(side *ir.Procedure) ir.Expr
		want string
	}{
		{"false and", func(s *ir.Procedure) ir.Expr { return bin(ir.And, truth(false), call(s)) }, "false"},
		{"true or", func(s *ir.Procedure) ir.Expr { return bin(ir.Or, truth(true), call(s)) }, "true"},
		{"true and", func(s *ir.Procedure) ir.Expr { return bin(ir.And, truth(true), call(s)) }, "Strue"},
		{"false or", func(s *ir.Procedure) ir.Expr { return bin(ir.Or, truth(false), call(s)) }, "Strue"},
		{"flattened and", func(s *ir.Procedure) ir.Expr {
			return bin(ir.And, bin(ir.And, truth(true), truth(true)), bin(ir.And, truth(false), call(s)))
		}, "false"},
		{"relational operand", func(s *ir.Procedure) ir.Expr {
			return bin(ir.Or, bin(ir.And, bin(ir.Lt, num(1), num(2)), truth(false)), call(s))
		}, "Strue"},
		{"nested or in and", func(s *ir.Procedure) ir.Expr {
			return bin(ir.And, truth(true), bin(ir.Or, bin(ir.Gt, num(2), num(1)), call(s)))
		}, "true"},
		{"arithmetic comparison", func(s *ir.Procedure) ir.Expr {
			return bin(ir.Eq, bin(ir.Add, num(1), num(1)), bin(ir.Mul, num(2), num(1)))
		}, "true"},
		{"call argument chain", func(s *ir.Procedure) ir.Expr {
			return bin(ir.And, call(s), bin(ir.Or, truth(false), truth(false)))
		}, "Sfalse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side := sideEffect()
			p := mainProgram(nil, writebool(tt.cond(side)))
			p.Procedures = []*ir.Procedure{side}
			if got := run(t, p, ProfileOptions{}, ""); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestRelationalChainLayout checks that (a < b) And (c < d) compiles to one
// chain: both operands jump to the same skip label and a single goto leaves
// the true path for the chain end.
func TestRelationalChainLayout(t *testing.T) {
	a, b, c, d := local("a", ir.IntType), local("b", ir.IntType), local("c", ir.IntType), local("d", ir.IntType)
	p := mainProgram([]*ir.Variable{a, b, c, d},
		writebool(bin(ir.And, bin(ir.Lt, use(a), use(b)), bin(ir.Lt, use(c), use(d)))),
	)
	cf := parseAll(t, compile(t, p, ProfileOptions{}))[ClassName(p.Name)]
	m := cf.Method("main", "([Ljava/lang/String;)V")
	if m == nil || m.Code == nil {
		t.Fatal("main not found")
	}
	insns, err := classfile.DecodeCode(m.Code.Code)
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[int]int)
	for i, in := range insns {
		pos[in.Offset] = i
	}

	var skips []int
	for _, in := range insns {
		if in.Op == classfile.Ifeq {
			skips = append(skips, in.Target)
		}
	}
	if len(skips) != 2 || skips[0] != skips[1] {
		t.Fatalf("ifeq targets = %v, want two jumps to one skip label", skips)
	}
	skip, ok := pos[skips[0]]
	if !ok || insns[skip].Op != classfile.Iconst0 || skip+1 >= len(insns) {
		t.Fatalf("skip label does not push false")
	}
	end := insns[skip+1].Offset
	if insns[skip+1].Op != classfile.Invokestatic {
		t.Errorf("chain end holds %s, want the writebool call", insns[skip+1].Op)
	}

	var toEnd int
	for _, in := range insns {
		if in.Op == classfile.Goto && in.Target == end {
			toEnd++
		}
	}
	if toEnd != 1 {
		t.Errorf("%d gotos reach the chain end, want 1", toEnd)
	}
}

func TestBoolVariablesInChains(t *testing.T) {
	a, b, c := local("a", ir.BoolType), local("b", ir.BoolType), local("c", ir.BoolType)
	p := mainProgram([]*ir.Variable{a, b, c},
		set(use(a), truth(true)),
		set(use(c), bin(ir.And, use(a), bin(ir.Or, use(b), bin(ir.Ne, num(1), num(2))))),
		writebool(use(c)),
		set(use(b), bin(ir.And, use(b), use(a))),
		writebool(use(b)),
	)
	if got := run(t, p, ProfileOptions{}, ""); got != "truefalse" {
		t.Errorf("output = %q, want truefalse", got)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func TestIfElse(t *testing.T) {
	x := local("x", ir.IntType)
	branch := func(n int32) []ir.Stmt {
		return []ir.Stmt{
			set(use(x), num(n)),
			&ir.If{
				Cond: bin(ir.Gt, use(x), num(5)),
				Then: []ir.Stmt{&ir.Write{Text: "big"}},
				Else: []ir.Stmt{&ir.Write{Text: "small"}},
			},
			&ir.If{
				Cond: bin(ir.Eq, use(x), num(0)),
				Then: []ir.Stmt{&ir.Write{Text: "!"}},
			},
		}
	}
	stmts := append(branch(9), branch(0)...)
	if got := run(t, mainProgram([]*ir.Variable{x}, stmts...), ProfileOptions{}, ""); got != "bigsmall!" {
		t.Errorf("output = %q, want bigsmall!", got)
	}
}

func TestWhileLoop(t *testing.T) {
	i, sum := local("i", ir.IntType), local("sum", ir.IntType)
	p := mainProgram([]*ir.Variable{i, sum},
		&ir.While{
			Cond: bin(ir.Lt, use(i), num(5)),
			Body: []ir.Stmt{
				set(use(sum), bin(ir.Add, use(sum), use(i))),
				set(use(i), bin(ir.Add, use(i), num(1))),
			},
		},
		writeint(use(sum)),
	)
	if got := run(t, p, ProfileOptions{}, ""); got != "10" {
		t.Errorf("output = %q, want 10", got)
	}
}

func TestNestedBlocks(t *testing.T) {
	outer := local("outer", ir.IntType)
	inner := local("inner", ir.IntType)
	p := mainProgram([]*ir.Variable{outer},
		set(use(outer), num(1)),
		&ir.BlockStmt{Block: &ir.Block{
			Vars: []*ir.Variable{inner},
			Stmts: []ir.Stmt{
				set(use(inner), bin(ir.Add, use(outer), num(1))),
				writeint(use(inner)),
			},
		}},
		writeln(),
		writeint(use(outer)),
	)
	if got := run(t, p, ProfileOptions{}, ""); got != "2\n1" {
		t.Errorf("output = %q, want \"2\\n1\"", got)
	}
}

func TestRecursion(t *testing.T) {
	n := &ir.Variable{Name: "n", Type: ir.IntType, Kind: ir.Param}
	fact := &ir.Procedure{Name: "fact", Params: []*ir.Variable{n}, Result: ir.IntType}
	fact.Body = &ir.Block{Stmts: []ir.Stmt{
		&ir.If{
			Cond: bin(ir.Le, use(n), num(1)),
			Then: []ir.Stmt{&ir.Return{Value: num(1)}},
		},
		&ir.Return{Value: bin(ir.Mul, use(n), call(fact, bin(ir.Sub, use(n), num(1))))},
	}}
	p := mainProgram(nil, writeint(call(fact, num(10))))
	p.Procedures = []*ir.Procedure{fact}
	if got := run(t, p, ProfileOptions{}, ""); got != "3628800" {
		t.Errorf("fact(10) = %q, want 3628800", got)
	}
}

func TestDefaultReturnValues(t *testing.T) {
	noInt := &ir.Procedure{Name: "noInt", Result: ir.IntType, Body: &ir.Block{}}
	noBool := &ir.Procedure{Name: "noBool", Result: ir.BoolType, Body: &ir.Block{}}
	early := &ir.Procedure{Name: "early", Result: ir.VoidType, Body: &ir.Block{Stmts: []ir.Stmt{
		&ir.Write{Text: "a"},
		&ir.Return{},
	}}}
	p := mainProgram(nil, writeint(call(noInt)), writebool(call(noBool)), do(early), do(noInt))
	p.Procedures = []*ir.Procedure{noInt, noBool, early}
	if got := run(t, p, ProfileOptions{}, ""); got != "0falsea" {
		t.Errorf("output = %q, want 0falsea", got)
	}
}

func TestReadInt(t *testing.T) {
	p := mainProgram(nil, writeint(bin(ir.Add, readint(), readint())))
	if got := run(t, p, ProfileOptions{}, "4\n  5 "); got != "9" {
		t.Errorf("output = %q, want 9", got)
	}
}

// ---------------------------------------------------------------------------
// Arrays and records
// ---------------------------------------------------------------------------

func TestArrays(t *testing.T) {
	a := local("a", ir.ArrayOf(ir.IntType, 1))
	grid := local("grid", ir.ArrayOf(ir.BoolType, 2))
	p := mainProgram([]*ir.Variable{a, grid},
		writeint(&ir.ArrayLen{Array: use(a)}),
		set(use(a), &ir.NewArray{Elem: ir.IntType, Lens: []ir.Expr{num(5)}}),
		set(use(a, at(num(2))), num(7)),
		writeint(bin(ir.Add, use(a, at(num(2))), use(a, at(num(0))))),
		writeint(&ir.ArrayLen{Array: use(a)}),
		set(use(grid), &ir.NewArray{Elem: ir.BoolType, Lens: []ir.Expr{num(2), num(3)}}),
		set(use(grid, at(num(1)), at(bin(ir.Add, num(1), num(1)))), bin(ir.Lt, num(1), num(2))),
		writebool(use(grid, at(num(1)), at(num(2)))),
		writebool(use(grid, at(num(0)), at(num(2)))),
		writeint(&ir.ArrayLen{Array: use(grid, at(num(1)))}),
	)
	if got := run(t, p, ProfileOptions{}, ""); got != "075truefalse3" {
		t.Errorf("output = %q, want 075truefalse3", got)
	}
}

func TestArrayIndexInsideChain(t *testing.T) {
	flags := local("flags", ir.ArrayOf(ir.BoolType, 1))
	p := mainProgram([]*ir.Variable{flags},
		set(use(flags), &ir.NewArray{Elem: ir.BoolType, Lens: []ir.Expr{num(3)}}),
		set(use(flags, at(num(1))), truth(true)),
		writebool(bin(ir.And, use(flags, at(bin(ir.Sub, num(2), num(1)))), bin(ir.Or, use(flags, at(num(0))), truth(true)))),
	)
	if got := run(t, p, ProfileOptions{}, ""); got != "true" {
		t.Errorf("output = %q, want true", got)
	}
}

func pointRecord() (*ir.RecordDecl, *ir.Variable, *ir.Variable) {
	x := &ir.Variable{Name: "x", Type: ir.IntType, Kind: ir.Field}
	y := &ir.Variable{Name: "y", Type: ir.IntType, Kind: ir.Field}
	return &ir.RecordDecl{Name: "point", Fields: []*ir.Variable{x, y}}, x, y
}

func TestRecords(t *testing.T) {
	point, x, y := pointRecord()
	p1, p2 := local("p1", ir.RecordType("point")), local("p2", ir.RecordType("point"))
	prog := mainProgram([]*ir.Variable{p1, p2},
		set(use(p1, dot(x)), num(3)),
		set(use(p1, dot(y)), bin(ir.Add, use(p1, dot(x)), num(1))),
		writeint(use(p1, dot(y))),
		writebool(bin(ir.Eq, use(p1), use(p2))),
		set(use(p2), use(p1)),
		writebool(bin(ir.Eq, use(p1), use(p2))),
		set(use(p2), &ir.NewRecord{Record: point}),
		writebool(bin(ir.Ne, use(p1), use(p2))),
		writeint(use(p2, dot(x))),
	)
	prog.Records = []*ir.RecordDecl{point}
	if got := run(t, prog, ProfileOptions{}, ""); got != "4falsetruetrue0" {
		t.Errorf("output = %q, want 4falsetruetrue0", got)
	}
}

func TestGlobals(t *testing.T) {
	point, x, _ := pointRecord()
	count := &ir.Variable{Name: "count", Type: ir.IntType, Kind: ir.Global}
	list := &ir.Variable{Name: "list", Type: ir.ArrayOf(ir.IntType, 1), Kind: ir.Global}
	origin := &ir.Variable{Name: "origin", Type: ir.RecordType("point"), Kind: ir.Global}

	bump := &ir.Procedure{Name: "bump", Result: ir.VoidType, Body: &ir.Block{Stmts: []ir.Stmt{
		set(use(count), bin(ir.Add, use(count), num(1))),
	}}}
	p := mainProgram(nil,
		do(bump),
		do(bump),
		writeint(use(count)),
		writeint(&ir.ArrayLen{Array: use(list)}),
		set(use(origin, dot(x)), num(5)),
		writeint(use(origin, dot(x))),
	)
	p.Records = []*ir.RecordDecl{point}
	p.Globals = []*ir.Variable{count, list, origin}
	p.Procedures = []*ir.Procedure{bump}
	if got := run(t, p, ProfileOptions{}, ""); got != "205" {
		t.Errorf("output = %q, want 205", got)
	}
}

// ---------------------------------------------------------------------------
// Class layout
// ---------------------------------------------------------------------------

func parseAll(t *testing.T, images [][]byte) map[string]*classfile.ClassFile {
	t.Helper()
	classes := make(map[string]*classfile.ClassFile)
	for _, data := range images {
		cf, err := classfile.Parse(data)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		classes[cf.This] = cf
	}
	return classes
}

func TestClassLayout(t *testing.T) {
	point, _, _ := pointRecord()
	g := &ir.Variable{Name: "g", Type: ir.BoolType, Kind: ir.Global}
	p := mainProgram(nil, writeln())
	p.Name = "shapes"
	p.Source = "shapes.yapl"
	p.Records = []*ir.RecordDecl{point}
	p.Globals = []*ir.Variable{g}

	classes := parseAll(t, compile(t, p, ProfileOptions{}))
	if len(classes) != 3 {
		t.Fatalf("got %d classes, want 3", len(classes))
	}

	prog := classes["Shapes"]
	if prog == nil {
		t.Fatal("missing program class Shapes")
	}
	if prog.Major != classfile.DefaultMajor {
		t.Errorf("major = %d, want %d", prog.Major, classfile.DefaultMajor)
	}
	if f := prog.Field("g"); f == nil || f.Descriptor != "Z" || f.Flags&classfile.AccStatic == 0 {
		t.Errorf("global field g = %+v", f)
	}
	if prog.Method("main", "([Ljava/lang/String;)V") == nil {
		t.Error("missing main method")
	}
	if prog.Method("<clinit>", "()V") != nil {
		t.Error("<clinit> generated without array or record globals")
	}
	names := map[string]bool{}
	for _, a := range prog.Attributes {
		names[a.AttrName] = true
	}
	if !names["SourceFile"] || !names["InnerClasses"] {
		t.Errorf("program class attributes = %v", names)
	}

	rec := classes["Shapes$Point"]
	if rec == nil {
		t.Fatal("missing record class Shapes$Point")
	}
	if rec.Method("<init>", "()V") == nil || rec.Method("toString", "()Ljava/lang/String;") == nil {
		t.Error("record class lacks <init> or toString")
	}
	if f := rec.Field("x"); f == nil || f.Flags&classfile.AccStatic != 0 {
		t.Errorf("record field x = %+v", f)
	}

	lib := classes[LibraryClass]
	if lib == nil {
		t.Fatal("missing StandardLibrary")
	}
	for _, proc := range Predefined() {
		if lib.Method(proc.Name, typeMapper{}.signature(proc).Descriptor()) == nil {
			t.Errorf("StandardLibrary lacks %s", proc.Name)
		}
	}
}

func TestMajorVersion(t *testing.T) {
	g := NewJVM(61)
	Generate(g, mainProgram(nil), ProfileOptions{})
	for _, c := range g.Classes() {
		if c.Major != 61 {
			t.Errorf("%s: major = %d, want 61", c.Name, c.Major)
		}
	}
}

// ---------------------------------------------------------------------------
// Stack map frames
// ---------------------------------------------------------------------------

// TestFramesAtBranchTargets checks that every method carries exactly one
// frame per branch target and nothing else.
func TestFramesAtBranchTargets(t *testing.T) {
	side := sideEffect()
	i, ok := local("i", ir.IntType), local("ok", ir.BoolType)
	p := mainProgram([]*ir.Variable{i, ok},
		&ir.While{
			Cond: bin(ir.And, bin(ir.Lt, use(i), num(10)), bin(ir.Or, use(ok), call(side))),
			Body: []ir.Stmt{
				&ir.If{
					Cond: bin(ir.Eq, bin(ir.Mod, use(i), num(2)), num(0)),
					Then: []ir.Stmt{set(use(ok), truth(false))},
					Else: []ir.Stmt{set(use(ok), bin(ir.Ge, use(i), num(3)))},
				},
				set(use(i), bin(ir.Add, use(i), num(1))),
			},
		},
		writebool(use(ok)),
	)
	p.Procedures = []*ir.Procedure{side}

	for name, cf := range parseAll(t, compile(t, p, ProfileOptions{WatchAll: true})) {
		for _, m := range cf.Methods {
			if m.Code == nil {
				continue
			}
			insns, err := classfile.DecodeCode(m.Code.Code)
			if err != nil {
				t.Fatalf("%s.%s: %v", name, m.Name, err)
			}
			targets := map[int]bool{}
			for _, in := range insns {
				if in.Op.IsBranch() {
					targets[in.Target] = true
				}
			}
			last := -1
			for _, f := range m.Code.Frames {
				if !targets[f.Offset] {
					t.Errorf("%s.%s: frame at %d is not a branch target", name, m.Name, f.Offset)
				}
				if f.Offset <= last {
					t.Errorf("%s.%s: frame offsets not increasing at %d", name, m.Name, f.Offset)
				}
				last = f.Offset
				delete(targets, f.Offset)
			}
			for off := range targets {
				t.Errorf("%s.%s: branch target %d has no frame", name, m.Name, off)
			}
		}
	}
}

func TestDeadCodeAfterReturn(t *testing.T) {
	proc := &ir.Procedure{Name: "f", Result: ir.IntType, Body: &ir.Block{Stmts: []ir.Stmt{
		&ir.Return{Value: num(1)},
		writeint(num(2)),
		&ir.Return{Value: num(3)},
	}}}
	p := mainProgram(nil, writeint(call(proc)))
	p.Procedures = []*ir.Procedure{proc}

	cf := parseAll(t, compile(t, p, ProfileOptions{}))["Test"]
	m := cf.Method("f", "()I")
	insns, err := classfile.DecodeCode(m.Code.Code)
	if err != nil {
		t.Fatal(err)
	}
	if len(insns) != 2 || insns[0].Op != classfile.Iconst1 || insns[1].Op != classfile.Ireturn {
		t.Errorf("f compiled to %d instructions, want iconst_1 ireturn", len(insns))
	}
	if len(m.Code.Frames) != 0 {
		t.Errorf("f has %d frames, want 0", len(m.Code.Frames))
	}
}

// ---------------------------------------------------------------------------
// Internal errors
// ---------------------------------------------------------------------------

func TestInternalErrors(t *testing.T) {
	tests := []struct {
		name string
		call func(g *JVM)
		want error
	}{
		{"load outside method", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.LoadConstant(ir.IntType, 1)
		}, ErrNoMethod},
		{"resume without suspend", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.EnterMainFunction()
			g.ResumeChains()
		}, ErrUnbalanced},
		{"branch without block", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.EnterMainFunction()
			g.Branch()
		}, ErrUnbalanced},
		{"undeclared local", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.EnterMainFunction()
			g.LoadVar(local("ghost", ir.IntType))
		}, ErrUnknownVar},
		{"field outside record", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.AllocVariable(&ir.Variable{Name: "f", Type: ir.IntType, Kind: ir.Field})
		}, ErrNoRecord},
		{"open chain at exit", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.EnterMainFunction()
			g.Op2(ir.And)
			g.ExitMainFunction()
		}, ErrUnbalanced},
		{"void array", func(g *JVM) {
			g.EnterProgram(&ir.Program{Name: "p"})
			g.AllocVariable(&ir.Variable{Name: "v", Type: ir.ArrayOf(ir.VoidType, 1), Kind: ir.Global})
		}, ErrUnsupportedTyp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			func() {
				defer classfile.Recover(&err)
				tt.call(NewJVM(0))
			}()
			var ie *classfile.InternalError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want *classfile.InternalError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
