package ir

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The wire form flattens the program: variables, constants, records and
// procedures live in tables and are referenced by index.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FormatVersion is bumped on incompatible wire changes.
const FormatVersion = 1

type wireProgram struct {
	Version int         `cbor:"1,keyasint"`
	Name    string      `cbor:"2,keyasint"`
	Source  string      `cbor:"3,keyasint,omitempty"`
	Consts  []wireConst `cbor:"4,keyasint,omitempty"` // every constant, any scope
	Vars    []wireVar   `cbor:"5,keyasint,omitempty"` // every variable, any scope
	Records []wireRec   `cbor:"6,keyasint,omitempty"`
	Procs   []wireProc  `cbor:"7,keyasint,omitempty"` // declared procedures first
	Decl    int         `cbor:"8,keyasint,omitempty"` // number of declared procedures
	Globals []int       `cbor:"9,keyasint,omitempty"`
	Global  []int       `cbor:"10,keyasint,omitempty"` // program-level constants
	Main    *wireBlock  `cbor:"11,keyasint,omitempty"`
}

type wireConst struct {
	Name  string `cbor:"1,keyasint"`
	Type  Type   `cbor:"2,keyasint"`
	Value int32  `cbor:"3,keyasint,omitempty"`
}

type wireVar struct {
	Name string  `cbor:"1,keyasint"`
	Type Type    `cbor:"2,keyasint"`
	Kind VarKind `cbor:"3,keyasint,omitempty"`
	Line int     `cbor:"4,keyasint,omitempty"`
}

type wireRec struct {
	Name   string `cbor:"1,keyasint"`
	Fields []int  `cbor:"2,keyasint,omitempty"`
	Line   int    `cbor:"3,keyasint,omitempty"`
}

type wireProc struct {
	Name       string     `cbor:"1,keyasint"`
	Params     []int      `cbor:"2,keyasint,omitempty"`
	Result     Type       `cbor:"3,keyasint"`
	Body       *wireBlock `cbor:"4,keyasint,omitempty"`
	Predefined bool       `cbor:"5,keyasint,omitempty"`
	Line       int        `cbor:"6,keyasint,omitempty"`
}

type wireBlock struct {
	Consts []int      `cbor:"1,keyasint,omitempty"`
	Vars   []int      `cbor:"2,keyasint,omitempty"`
	Stmts  []wireStmt `cbor:"3,keyasint,omitempty"`
	Begin  int        `cbor:"4,keyasint,omitempty"`
	End    int        `cbor:"5,keyasint,omitempty"`
}

type stmtKind uint8

const (
	stmtAssign stmtKind = iota + 1
	stmtCall
	stmtIf
	stmtWhile
	stmtReturn
	stmtWrite
	stmtBlock
)

type wireStmt struct {
	Kind   stmtKind   `cbor:"1,keyasint"`
	Line   int        `cbor:"2,keyasint,omitempty"`
	Target *wireExpr  `cbor:"3,keyasint,omitempty"`
	Value  *wireExpr  `cbor:"4,keyasint,omitempty"`
	Then   []wireStmt `cbor:"5,keyasint,omitempty"`
	Else   []wireStmt `cbor:"6,keyasint,omitempty"`
	Text   string     `cbor:"7,keyasint,omitempty"`
	Block  *wireBlock `cbor:"8,keyasint,omitempty"`
	End    int        `cbor:"9,keyasint,omitempty"`
}

type exprKind uint8

const (
	exprInt exprKind = iota + 1
	exprBool
	exprConst
	exprDesignator
	exprUnary
	exprBinary
	exprCall
	exprNewArray
	exprNewRecord
	exprArrayLen
)

type wireExpr struct {
	Kind  exprKind   `cbor:"1,keyasint"`
	Line  int        `cbor:"2,keyasint,omitempty"`
	Int   int32      `cbor:"3,keyasint,omitempty"`
	Bool  bool       `cbor:"4,keyasint,omitempty"`
	Ref   int        `cbor:"5,keyasint,omitempty"` // const, variable, procedure or record index
	Op    Op         `cbor:"6,keyasint,omitempty"`
	Args  []wireExpr `cbor:"7,keyasint,omitempty"` // operands, arguments, array lengths
	Sels  []wireSel  `cbor:"8,keyasint,omitempty"`
	Type  Type       `cbor:"9,keyasint,omitempty"`
	Inner *wireExpr  `cbor:"10,keyasint,omitempty"`
}

type wireSel struct {
	Index *wireExpr `cbor:"1,keyasint,omitempty"`
	Field int       `cbor:"2,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct {
	w       wireProgram
	consts  map[*Const]int
	vars    map[*Variable]int
	records map[*RecordDecl]int
	procs   map[*Procedure]int
	extern  []*Procedure
}

// Marshal encodes p as canonical CBOR.
func Marshal(p *Program) ([]byte, error) {
	e := &encoder{
		consts:  make(map[*Const]int),
		vars:    make(map[*Variable]int),
		records: make(map[*RecordDecl]int),
		procs:   make(map[*Procedure]int),
	}
	e.w = wireProgram{Version: FormatVersion, Name: p.Name, Source: p.Source}

	for _, r := range p.Records {
		e.records[r] = len(e.w.Records)
		e.w.Records = append(e.w.Records, wireRec{Name: r.Name, Line: r.Line})
	}
	for i, r := range p.Records {
		for _, f := range r.Fields {
			e.w.Records[i].Fields = append(e.w.Records[i].Fields, e.variable(f))
		}
	}
	for _, proc := range p.Procedures {
		e.procs[proc] = len(e.w.Procs)
		e.w.Procs = append(e.w.Procs, wireProc{})
	}
	e.w.Decl = len(p.Procedures)
	for _, c := range p.Consts {
		e.w.Global = append(e.w.Global, e.constant(c))
	}
	for _, v := range p.Globals {
		e.w.Globals = append(e.w.Globals, e.variable(v))
	}
	for _, proc := range p.Procedures {
		e.w.Procs[e.procs[proc]] = e.procedure(proc)
	}
	if p.Main != nil {
		e.w.Main = e.block(p.Main)
	}
	// procedures only reachable through calls, e.g. predefined ones
	for i := 0; i < len(e.extern); i++ {
		proc := e.extern[i]
		e.w.Procs[e.procs[proc]] = e.procedure(proc)
	}

	data, err := cborEncMode.Marshal(&e.w)
	if err != nil {
		return nil, fmt.Errorf("ir: marshal program: %w", err)
	}
	return data, nil
}

func (e *encoder) constant(c *Const) int {
	if id, ok := e.consts[c]; ok {
		return id
	}
	id := len(e.w.Consts)
	e.consts[c] = id
	e.w.Consts = append(e.w.Consts, wireConst{Name: c.Name, Type: c.Type, Value: c.Value})
	return id
}

func (e *encoder) variable(v *Variable) int {
	if id, ok := e.vars[v]; ok {
		return id
	}
	id := len(e.w.Vars)
	e.vars[v] = id
	e.w.Vars = append(e.w.Vars, wireVar{Name: v.Name, Type: v.Type, Kind: v.Kind, Line: v.Line})
	return id
}

func (e *encoder) procRef(p *Procedure) int {
	if id, ok := e.procs[p]; ok {
		return id
	}
	id := len(e.w.Procs)
	e.procs[p] = id
	e.w.Procs = append(e.w.Procs, wireProc{})
	e.extern = append(e.extern, p)
	return id
}

func (e *encoder) procedure(p *Procedure) wireProc {
	wp := wireProc{Name: p.Name, Result: p.Result, Predefined: p.Predefined, Line: p.Line}
	for _, param := range p.Params {
		wp.Params = append(wp.Params, e.variable(param))
	}
	if p.Body != nil {
		wp.Body = e.block(p.Body)
	}
	return wp
}

func (e *encoder) block(b *Block) *wireBlock {
	wb := &wireBlock{Begin: b.Begin, End: b.End}
	for _, c := range b.Consts {
		wb.Consts = append(wb.Consts, e.constant(c))
	}
	for _, v := range b.Vars {
		wb.Vars = append(wb.Vars, e.variable(v))
	}
	wb.Stmts = e.stmts(b.Stmts)
	return wb
}

func (e *encoder) stmts(list []Stmt) []wireStmt {
	var out []wireStmt
	for _, s := range list {
		out = append(out, e.stmt(s))
	}
	return out
}

func (e *encoder) stmt(s Stmt) wireStmt {
	ws := wireStmt{Line: s.Pos()}
	switch s := s.(type) {
	case *Assign:
		ws.Kind = stmtAssign
		ws.Target = e.expr(s.Target)
		ws.Value = e.expr(s.Value)
	case *CallStmt:
		ws.Kind = stmtCall
		ws.Value = e.expr(s.Call)
	case *If:
		ws.Kind, ws.End = stmtIf, s.End
		ws.Value = e.expr(s.Cond)
		ws.Then = e.stmts(s.Then)
		ws.Else = e.stmts(s.Else)
	case *While:
		ws.Kind, ws.End = stmtWhile, s.End
		ws.Value = e.expr(s.Cond)
		ws.Then = e.stmts(s.Body)
	case *Return:
		ws.Kind = stmtReturn
		if s.Value != nil {
			ws.Value = e.expr(s.Value)
		}
	case *Write:
		ws.Kind = stmtWrite
		ws.Text = s.Text
	case *BlockStmt:
		ws.Kind = stmtBlock
		ws.Block = e.block(s.Block)
	default:
		panic(fmt.Sprintf("ir: unknown statement %T", s))
	}
	return ws
}

func (e *encoder) expr(x Expr) *wireExpr {
	we := &wireExpr{Line: x.Pos()}
	switch x := x.(type) {
	case *IntLit:
		we.Kind, we.Int = exprInt, x.Value
	case *BoolLit:
		we.Kind, we.Bool = exprBool, x.Value
	case *ConstRef:
		we.Kind, we.Ref = exprConst, e.constant(x.Const)
	case *Designator:
		we.Kind, we.Ref = exprDesignator, e.variable(x.Var)
		for _, sel := range x.Selectors {
			if sel.Index != nil {
				we.Sels = append(we.Sels, wireSel{Index: e.expr(sel.Index)})
			} else {
				we.Sels = append(we.Sels, wireSel{Field: e.variable(sel.Field) + 1})
			}
		}
	case *Unary:
		we.Kind, we.Op = exprUnary, x.Op
		we.Inner = e.expr(x.X)
	case *Binary:
		we.Kind, we.Op = exprBinary, x.Op
		we.Args = []wireExpr{*e.expr(x.X), *e.expr(x.Y)}
	case *Call:
		we.Kind, we.Ref = exprCall, e.procRef(x.Proc)
		for _, a := range x.Args {
			we.Args = append(we.Args, *e.expr(a))
		}
	case *NewArray:
		we.Kind, we.Type = exprNewArray, x.Elem
		for _, l := range x.Lens {
			we.Args = append(we.Args, *e.expr(l))
		}
	case *NewRecord:
		we.Kind, we.Ref = exprNewRecord, e.records[x.Record]
	case *ArrayLen:
		we.Kind = exprArrayLen
		we.Inner = e.expr(x.Array)
	default:
		panic(fmt.Sprintf("ir: unknown expression %T", x))
	}
	return we
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type decoder struct {
	w       *wireProgram
	consts  []*Const
	vars    []*Variable
	records []*RecordDecl
	procs   []*Procedure
}

// Unmarshal decodes a program produced by Marshal.
func Unmarshal(data []byte) (*Program, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ir: unmarshal program: %w", err)
	}
	if w.Version != FormatVersion {
		return nil, fmt.Errorf("ir: unsupported format version %d", w.Version)
	}
	if w.Decl > len(w.Procs) {
		return nil, fmt.Errorf("ir: %d declared procedures, table has %d", w.Decl, len(w.Procs))
	}

	d := &decoder{w: &w}
	for _, c := range w.Consts {
		d.consts = append(d.consts, &Const{Name: c.Name, Type: c.Type, Value: c.Value})
	}
	for _, v := range w.Vars {
		d.vars = append(d.vars, &Variable{Name: v.Name, Type: v.Type, Kind: v.Kind, Line: v.Line})
	}
	for _, r := range w.Records {
		d.records = append(d.records, &RecordDecl{Name: r.Name, Line: r.Line})
	}
	for _, wp := range w.Procs {
		d.procs = append(d.procs, &Procedure{Name: wp.Name, Result: wp.Result, Predefined: wp.Predefined, Line: wp.Line})
	}

	p := &Program{Name: w.Name, Source: w.Source}
	var err error
	for i, r := range w.Records {
		for _, id := range r.Fields {
			f, err := d.variable(id)
			if err != nil {
				return nil, err
			}
			d.records[i].Fields = append(d.records[i].Fields, f)
		}
	}
	p.Records = d.records
	if p.Consts, err = d.constList(w.Global); err != nil {
		return nil, err
	}
	if p.Globals, err = d.varList(w.Globals); err != nil {
		return nil, err
	}
	for i, wp := range w.Procs {
		proc := d.procs[i]
		if proc.Params, err = d.varList(wp.Params); err != nil {
			return nil, err
		}
		if wp.Body != nil {
			if proc.Body, err = d.block(wp.Body); err != nil {
				return nil, fmt.Errorf("procedure %s: %w", proc.Name, err)
			}
		}
	}
	p.Procedures = d.procs[:w.Decl]
	if w.Main != nil {
		if p.Main, err = d.block(w.Main); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (d *decoder) variable(id int) (*Variable, error) {
	if id < 0 || id >= len(d.vars) {
		return nil, fmt.Errorf("ir: bad variable reference %d", id)
	}
	return d.vars[id], nil
}

func (d *decoder) varList(ids []int) ([]*Variable, error) {
	var out []*Variable
	for _, id := range ids {
		v, err := d.variable(id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *decoder) constList(ids []int) ([]*Const, error) {
	var out []*Const
	for _, id := range ids {
		if id < 0 || id >= len(d.consts) {
			return nil, fmt.Errorf("ir: bad constant reference %d", id)
		}
		out = append(out, d.consts[id])
	}
	return out, nil
}

func (d *decoder) block(wb *wireBlock) (*Block, error) {
	b := &Block{Begin: wb.Begin, End: wb.End}
	var err error
	if b.Consts, err = d.constList(wb.Consts); err != nil {
		return nil, err
	}
	if b.Vars, err = d.varList(wb.Vars); err != nil {
		return nil, err
	}
	if b.Stmts, err = d.stmts(wb.Stmts); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *decoder) stmts(list []wireStmt) ([]Stmt, error) {
	var out []Stmt
	for i := range list {
		s, err := d.stmt(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *decoder) stmt(ws *wireStmt) (Stmt, error) {
	switch ws.Kind {
	case stmtAssign:
		target, err := d.expr(ws.Target)
		if err != nil {
			return nil, err
		}
		des, ok := target.(*Designator)
		if !ok {
			return nil, fmt.Errorf("ir: line %d: assignment target is %T", ws.Line, target)
		}
		value, err := d.expr(ws.Value)
		if err != nil {
			return nil, err
		}
		return &Assign{Line: ws.Line, Target: des, Value: value}, nil
	case stmtCall:
		x, err := d.expr(ws.Value)
		if err != nil {
			return nil, err
		}
		call, ok := x.(*Call)
		if !ok {
			return nil, fmt.Errorf("ir: line %d: call statement holds %T", ws.Line, x)
		}
		return &CallStmt{Line: ws.Line, Call: call}, nil
	case stmtIf, stmtWhile:
		cond, err := d.expr(ws.Value)
		if err != nil {
			return nil, err
		}
		then, err := d.stmts(ws.Then)
		if err != nil {
			return nil, err
		}
		if ws.Kind == stmtWhile {
			return &While{Line: ws.Line, End: ws.End, Cond: cond, Body: then}, nil
		}
		els, err := d.stmts(ws.Else)
		if err != nil {
			return nil, err
		}
		return &If{Line: ws.Line, End: ws.End, Cond: cond, Then: then, Else: els}, nil
	case stmtReturn:
		r := &Return{Line: ws.Line}
		if ws.Value != nil {
			v, err := d.expr(ws.Value)
			if err != nil {
				return nil, err
			}
			r.Value = v
		}
		return r, nil
	case stmtWrite:
		return &Write{Line: ws.Line, Text: ws.Text}, nil
	case stmtBlock:
		if ws.Block == nil {
			return nil, fmt.Errorf("ir: line %d: empty block statement", ws.Line)
		}
		b, err := d.block(ws.Block)
		if err != nil {
			return nil, err
		}
		return &BlockStmt{Line: ws.Line, Block: b}, nil
	}
	return nil, fmt.Errorf("ir: line %d: unknown statement kind %d", ws.Line, ws.Kind)
}

func (d *decoder) exprs(list []wireExpr) ([]Expr, error) {
	var out []Expr
	for i := range list {
		x, err := d.expr(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (d *decoder) expr(we *wireExpr) (Expr, error) {
	if we == nil {
		return nil, fmt.Errorf("ir: missing expression")
	}
	switch we.Kind {
	case exprInt:
		return &IntLit{Line: we.Line, Value: we.Int}, nil
	case exprBool:
		return &BoolLit{Line: we.Line, Value: we.Bool}, nil
	case exprConst:
		cs, err := d.constList([]int{we.Ref})
		if err != nil {
			return nil, err
		}
		return &ConstRef{Line: we.Line, Const: cs[0]}, nil
	case exprDesignator:
		v, err := d.variable(we.Ref)
		if err != nil {
			return nil, err
		}
		des := &Designator{Line: we.Line, Var: v}
		for _, ws := range we.Sels {
			if ws.Index != nil {
				idx, err := d.expr(ws.Index)
				if err != nil {
					return nil, err
				}
				des.Selectors = append(des.Selectors, Selector{Index: idx})
				continue
			}
			f, err := d.variable(ws.Field - 1)
			if err != nil {
				return nil, err
			}
			des.Selectors = append(des.Selectors, Selector{Field: f})
		}
		return des, nil
	case exprUnary:
		x, err := d.expr(we.Inner)
		if err != nil {
			return nil, err
		}
		return &Unary{Line: we.Line, Op: we.Op, X: x}, nil
	case exprBinary:
		if len(we.Args) != 2 {
			return nil, fmt.Errorf("ir: line %d: binary %s has %d operands", we.Line, we.Op, len(we.Args))
		}
		ops, err := d.exprs(we.Args)
		if err != nil {
			return nil, err
		}
		return &Binary{Line: we.Line, Op: we.Op, X: ops[0], Y: ops[1]}, nil
	case exprCall:
		if we.Ref < 0 || we.Ref >= len(d.procs) {
			return nil, fmt.Errorf("ir: bad procedure reference %d", we.Ref)
		}
		args, err := d.exprs(we.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Line: we.Line, Proc: d.procs[we.Ref], Args: args}, nil
	case exprNewArray:
		lens, err := d.exprs(we.Args)
		if err != nil {
			return nil, err
		}
		return &NewArray{Line: we.Line, Elem: we.Type, Lens: lens}, nil
	case exprNewRecord:
		if we.Ref < 0 || we.Ref >= len(d.records) {
			return nil, fmt.Errorf("ir: bad record reference %d", we.Ref)
		}
		return &NewRecord{Line: we.Line, Record: d.records[we.Ref]}, nil
	case exprArrayLen:
		x, err := d.expr(we.Inner)
		if err != nil {
			return nil, err
		}
		des, ok := x.(*Designator)
		if !ok {
			return nil, fmt.Errorf("ir: line %d: array length of %T", we.Line, x)
		}
		return &ArrayLen{Line: we.Line, Array: des}, nil
	}
	return nil, fmt.Errorf("ir: line %d: unknown expression kind %d", we.Line, we.Kind)
}
