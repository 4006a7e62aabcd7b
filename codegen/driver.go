package codegen

import (
	"slices"
	"strings"

	"github.com/chazu/yapl/ir"
)

// Generate walks p and issues the Backend calls that translate it. When
// opts asks for instrumentation, b is wrapped in a Profiler.
func Generate(b Backend, p *ir.Program, opts ProfileOptions) {
	d := &driver{b: b, opts: opts, prog: p}
	if opts.Enabled() {
		d.prof = NewProfiler(b)
		d.b = d.prof
		d.vardumps = slices.Compact(slices.Sorted(slices.Values(opts.Vardump)))
	}
	d.program()
}

type driver struct {
	b    Backend
	prof *Profiler
	opts ProfileOptions
	prog *ir.Program

	params []*ir.Variable
	locals [][]*ir.Variable // visible locals, one slice per open block

	vardumps []int // requested vardump lines, sorted
	nextDump int   // first request not yet placed
}

func (d *driver) program() {
	p := d.prog
	d.b.EnterProgram(p)
	for _, rec := range p.Records {
		d.b.EnterRecord(rec)
		for _, f := range rec.Fields {
			d.b.AllocVariable(f)
		}
		d.b.ExitRecord()
	}
	for _, v := range p.Globals {
		d.b.AllocVariable(v)
	}

	for _, proc := range p.Procedures {
		if proc.Predefined || proc.Body == nil {
			continue
		}
		log.Debugf("procedure %s (line %d)", proc.Name, proc.Line)
		d.b.EnterFunction(proc)
		d.params = proc.Params
		if d.prof != nil && d.opts.traces(proc.Name) {
			d.prof.DumpCall(proc)
		}
		d.block(proc.Body)
		d.b.ExitFunction()
	}

	d.b.EnterMainFunction()
	d.params = nil
	if p.Main != nil {
		d.block(p.Main)
	}
	d.b.ExitMainFunction()
	d.b.ExitProgram()
}

func (d *driver) block(b *ir.Block) {
	d.locals = append(d.locals, nil)
	top := len(d.locals) - 1
	for _, v := range b.Vars {
		d.b.AllocVariable(v)
		d.locals[top] = append(d.locals[top], v)
	}
	d.vardump(b.Begin)
	d.stmts(b.Stmts)
	d.vardump(b.End)
	d.locals = d.locals[:top]
}

func (d *driver) scopes() []Scope {
	var locals []*ir.Variable
	for _, vs := range d.locals {
		locals = append(locals, vs...)
	}
	return []Scope{
		{Title: "Globals:", Vars: d.prog.Globals},
		{Title: "Params:", Vars: d.params},
		{Title: "Locals:", Vars: locals},
	}
}

// vardump places the pending vardump requests at or before line. Requests
// for lines without a statement dump at the next statement or block end;
// several requests placed at once share one dump.
func (d *driver) vardump(line int) {
	if d.prof == nil || line <= 0 || d.nextDump >= len(d.vardumps) {
		return
	}
	want := d.vardumps[d.nextDump]
	if want > line {
		return
	}
	for d.nextDump < len(d.vardumps) && d.vardumps[d.nextDump] <= line {
		d.nextDump++
	}
	d.prof.DumpAtLine(want, d.scopes())
}

func (d *driver) watching(line int) bool {
	return d.prof != nil && d.opts.watches(line)
}

func (d *driver) print(s string) { d.prof.print(s) }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (d *driver) stmts(list []ir.Stmt) {
	for _, s := range list {
		d.stmt(s)
	}
}

func (d *driver) stmt(s ir.Stmt) {
	line := s.Pos()
	d.vardump(line)
	watch := d.watching(line)

	switch s := s.(type) {
	case *ir.Assign:
		d.assign(s, watch)
	case *ir.CallStmt:
		d.callStmt(s, watch)
	case *ir.If:
		if watch {
			d.print(prefix(line) + "if ")
		}
		d.b.StartBranchingBlock()
		d.expr(s.Cond, watch)
		if watch {
			d.prof.newline()
		}
		d.b.Branch()
		d.stmts(s.Then)
		if len(s.Else) > 0 {
			d.b.ElseBranch()
			d.stmts(s.Else)
		}
		d.b.EndBranchingBlock()
		d.vardump(s.End)
	case *ir.While:
		d.b.StartBranchingBlock()
		if watch {
			d.print(prefix(line) + "while ")
		}
		d.expr(s.Cond, watch)
		if watch {
			d.prof.newline()
		}
		d.b.Branch()
		d.stmts(s.Body)
		d.b.Loop()
		d.b.EndBranchingBlock()
		d.vardump(s.End)
	case *ir.Return:
		if s.Value != nil {
			if watch {
				d.print(prefix(line) + "return ")
			}
			d.expr(s.Value, watch)
			if watch {
				d.prof.newline()
			}
		}
		d.b.ReturnFromFunction()
	case *ir.Write:
		d.b.LoadString(s.Text)
		d.b.Write()
	case *ir.BlockStmt:
		d.block(s.Block)
	default:
		fail("statement", ErrUnsupportedOp, "%T at line %d", s, line)
	}
}

// assign evaluates the target's array or record reference first, then the
// value. A watched assignment prints "target = " and the rendered value.
func (d *driver) assign(s *ir.Assign, watch bool) {
	des := s.Target
	n := len(des.Selectors)
	value := func() {
		if watch {
			d.print(prefix(s.Line) + designatorText(des) + " = ")
		}
		d.expr(s.Value, watch)
		if watch {
			d.prof.newline()
		}
	}
	if n == 0 {
		value()
		d.b.StoreVar(des.Var)
		return
	}

	d.b.LoadVar(des.Var)
	d.selectors(des, n-1)
	last := des.Selectors[n-1]
	if last.Index != nil {
		d.index(last.Index)
		value()
		d.b.StoreElement(des.Type())
		return
	}
	value()
	d.b.StoreField(des.TypeAt(n-1).Record, last.Field)
}

// callStmt discards the call's result. A watched call prints the call with
// its arguments, and " = result" when there is one.
func (d *driver) callStmt(s *ir.CallStmt, watch bool) {
	c := s.Call
	res := c.Proc.Result
	if watch {
		d.print(prefix(s.Line))
	}
	d.args(c, watch)
	if watch && res.IsVoid() {
		d.prof.newline()
	}
	d.b.CallFunction(c.Proc)
	if res.IsVoid() {
		return
	}
	if watch {
		d.print(" = ")
		d.prof.DumpTopOfStack(res)
		d.prof.newline()
	}
	d.b.Pop()
}

// designatorText renders a[].next style names for profiler output.
func designatorText(des *ir.Designator) string {
	var sb strings.Builder
	sb.WriteString(des.Var.Name)
	for _, sel := range des.Selectors {
		if sel.Index != nil {
			sb.WriteString("[]")
		} else {
			sb.WriteString("." + sel.Field.Name)
		}
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// selectors applies the first n selectors of des to the value on the stack.
func (d *driver) selectors(des *ir.Designator, n int) {
	for i, sel := range des.Selectors[:n] {
		if sel.Index != nil {
			d.index(sel.Index)
			d.b.LoadElement(des.TypeAt(i + 1))
		} else {
			d.b.LoadField(des.TypeAt(i).Record, sel.Field)
		}
	}
}

func (d *driver) index(x ir.Expr) {
	d.b.SuspendChains()
	d.expr(x, false)
	d.b.ResumeChains()
}

// args pushes the arguments of c. When watched it prints "name(" and each
// rendered argument, without the closing call.
func (d *driver) args(c *ir.Call, watch bool) {
	if watch {
		d.print(c.Proc.Name + "(")
	}
	d.b.SuspendChains()
	for i, a := range c.Args {
		if watch && i > 0 {
			d.print(", ")
		}
		d.expr(a, watch)
	}
	d.b.ResumeChains()
	if watch {
		d.print(")")
	}
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// leaf emits load for a value of type t and, when watched, prints it. A
// watched boolean is printed before it joins an open chain.
func (d *driver) leaf(t ir.Type, watch bool, load func()) {
	if !watch {
		load()
		return
	}
	if !t.IsBool() {
		load()
		d.prof.DumpTopOfStack(t)
		return
	}
	d.b.SuspendChains()
	load()
	d.prof.DumpTopOfStack(t)
	d.b.ResumeChains()
	d.b.Connect()
}

// operand renders x inside a watched expression, parenthesized unless it
// is a left operand continuing the same operator. Operands of And and Or
// stay bare since text after a chain's last operand runs on the merged path.
func (d *driver) operand(parent ir.Op, x ir.Expr, left, watch bool) {
	bin, ok := x.(*ir.Binary)
	paren := watch && ok && !parent.IsLogical() && !(left && bin.Op == parent)
	if paren {
		d.print("(")
	}
	d.expr(x, watch)
	if paren {
		d.print(")")
	}
}

// expr pushes the value of x. When watch is set the generated code also
// prints x with the run-time value of every operand in place.
func (d *driver) expr(x ir.Expr, watch bool) {
	switch x := x.(type) {
	case *ir.IntLit:
		d.leaf(ir.IntType, watch, func() { d.b.LoadConstant(ir.IntType, x.Value) })
	case *ir.BoolLit:
		d.leaf(ir.BoolType, watch, func() { d.b.LoadConstant(ir.BoolType, boolValue(x.Value)) })
	case *ir.ConstRef:
		d.leaf(x.Const.Type, watch, func() { d.b.LoadConstant(x.Const.Type, x.Const.Value) })
	case *ir.Designator:
		d.leaf(x.Type(), watch, func() {
			d.b.LoadVar(x.Var)
			d.selectors(x, len(x.Selectors))
		})
	case *ir.Unary:
		if watch {
			d.print(x.Op.String())
		}
		d.operand(x.Op, x.X, false, watch)
		d.b.Op1(x.Op)
	case *ir.Binary:
		switch {
		case x.Op.IsLogical():
			d.b.Op2(x.Op)
			d.operand(x.Op, x.X, true, watch)
			if watch {
				d.print(" " + x.Op.String() + " ")
			}
			d.operand(x.Op, x.Y, false, watch)
		case x.Op.IsRelational():
			d.b.SuspendChains()
			d.operand(x.Op, x.X, true, watch)
			if watch {
				d.print(" " + x.Op.String() + " ")
			}
			d.operand(x.Op, x.Y, false, watch)
			d.b.ResumeChains()
			d.b.Op2(x.Op)
		default:
			d.operand(x.Op, x.X, true, watch)
			if watch {
				d.print(" " + x.Op.String() + " ")
			}
			d.operand(x.Op, x.Y, false, watch)
			d.b.Op2(x.Op)
		}
	case *ir.Call:
		d.args(x, watch)
		d.b.CallFunction(x.Proc)
	case *ir.NewArray:
		if watch {
			d.print("new " + x.Elem.String())
		}
		d.b.SuspendChains()
		for _, l := range x.Lens {
			if watch {
				d.print("[")
			}
			d.expr(l, watch)
			if watch {
				d.print("]")
			}
		}
		d.b.ResumeChains()
		d.b.NewArray(x.Elem, len(x.Lens))
	case *ir.NewRecord:
		if watch {
			d.print("new " + x.Record.Name)
		}
		d.b.NewRecord(x.Record)
	case *ir.ArrayLen:
		d.expr(x.Array, false)
		d.b.ArrayLength()
		if watch {
			d.prof.DumpTopOfStack(ir.IntType)
		}
	default:
		fail("expression", ErrUnsupportedOp, "%T at line %d", x, x.Pos())
	}
}
