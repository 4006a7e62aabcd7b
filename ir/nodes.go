package ir

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Stmt is a statement. Line is the source line it starts on.
type Stmt interface {
	Pos() int
	stmtNode()
}

type (
	// Assign stores Value into Target.
	Assign struct {
		Line   int
		Target *Designator
		Value  Expr
	}

	// CallStmt calls a procedure and discards any result.
	CallStmt struct {
		Line int
		Call *Call
	}

	// If runs Then when Cond holds, else Else (which may be empty). End is
	// the line of the closing keyword, 0 when unknown.
	If struct {
		Line int
		End  int
		Cond Expr
		Then []Stmt
		Else []Stmt
	}

	// While repeats Body while Cond holds.
	While struct {
		Line int
		End  int
		Cond Expr
		Body []Stmt
	}

	// Return leaves the procedure; Value is nil in void procedures.
	Return struct {
		Line  int
		Value Expr
	}

	// Write prints a string literal.
	Write struct {
		Line int
		Text string
	}

	// BlockStmt is a nested scope.
	BlockStmt struct {
		Line  int
		Block *Block
	}
)

func (s *Assign) Pos() int    { return s.Line }
func (s *CallStmt) Pos() int  { return s.Line }
func (s *If) Pos() int        { return s.Line }
func (s *While) Pos() int     { return s.Line }
func (s *Return) Pos() int    { return s.Line }
func (s *Write) Pos() int     { return s.Line }
func (s *BlockStmt) Pos() int { return s.Line }

func (*Assign) stmtNode()    {}
func (*CallStmt) stmtNode()  {}
func (*If) stmtNode()        {}
func (*While) stmtNode()     {}
func (*Return) stmtNode()    {}
func (*Write) stmtNode()     {}
func (*BlockStmt) stmtNode() {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Expr is a typed expression.
type Expr interface {
	Pos() int
	Type() Type
	exprNode()
}

// Op is a unary or binary operator.
type Op uint8

const (
	Add Op = iota + 1
	Sub
	Mul
	Div
	Mod
	Lt
	Le
	Gt
	Ge
	Eq
	Ne
	And
	Or
	Neg
	Plus
)

var opNames = map[Op]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	Lt: "<", Le: "<=", Gt: ">", Ge: ">=", Eq: "==", Ne: "!=",
	And: "And", Or: "Or", Neg: "-", Plus: "+",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "?"
}

// IsArithmetic reports whether o combines two ints into an int.
func (o Op) IsArithmetic() bool { return o >= Add && o <= Mod }

// IsRelational reports whether o compares two values into a bool.
func (o Op) IsRelational() bool { return o >= Lt && o <= Ne }

// IsLogical reports whether o is a short-circuit boolean operator.
func (o Op) IsLogical() bool { return o == And || o == Or }

type (
	IntLit struct {
		Line  int
		Value int32
	}

	BoolLit struct {
		Line  int
		Value bool
	}

	// ConstRef reads a named constant.
	ConstRef struct {
		Line  int
		Const *Const
	}

	// Designator names a variable, optionally followed by array index and
	// record field selectors, e.g. a[i].next.
	Designator struct {
		Line      int
		Var       *Variable
		Selectors []Selector
	}

	Unary struct {
		Line int
		Op   Op
		X    Expr
	}

	Binary struct {
		Line int
		Op   Op
		X, Y Expr
	}

	// Call invokes a procedure with arguments.
	Call struct {
		Line int
		Proc *Procedure
		Args []Expr
	}

	// NewArray allocates new Elem[l1][l2]...; Elem has no dimensions.
	NewArray struct {
		Line int
		Elem Type
		Lens []Expr
	}

	// NewRecord allocates a record instance.
	NewRecord struct {
		Line   int
		Record *RecordDecl
	}

	// ArrayLen is the length of the array Array denotes.
	ArrayLen struct {
		Line  int
		Array *Designator
	}
)

// Selector is one array index (Index != nil) or record field access.
type Selector struct {
	Index Expr
	Field *Variable
}

func (e *IntLit) Pos() int     { return e.Line }
func (e *BoolLit) Pos() int    { return e.Line }
func (e *ConstRef) Pos() int   { return e.Line }
func (e *Designator) Pos() int { return e.Line }
func (e *Unary) Pos() int      { return e.Line }
func (e *Binary) Pos() int     { return e.Line }
func (e *Call) Pos() int       { return e.Line }
func (e *NewArray) Pos() int   { return e.Line }
func (e *NewRecord) Pos() int  { return e.Line }
func (e *ArrayLen) Pos() int   { return e.Line }

func (*IntLit) Type() Type       { return IntType }
func (*BoolLit) Type() Type      { return BoolType }
func (e *ConstRef) Type() Type   { return e.Const.Type }
func (e *Designator) Type() Type { return e.TypeAt(len(e.Selectors)) }
func (e *Unary) Type() Type      { return e.X.Type() }
func (e *Call) Type() Type       { return e.Proc.Result }
func (e *NewArray) Type() Type   { return ArrayOf(e.Elem, len(e.Lens)) }
func (e *NewRecord) Type() Type  { return RecordType(e.Record.Name) }
func (*ArrayLen) Type() Type     { return IntType }

func (e *Binary) Type() Type {
	if e.Op.IsArithmetic() {
		return IntType
	}
	return BoolType
}

// TypeAt is the type after applying the first n selectors.
func (e *Designator) TypeAt(n int) Type {
	t := e.Var.Type
	for _, sel := range e.Selectors[:n] {
		if sel.Index != nil {
			t = t.Elem()
		} else {
			t = sel.Field.Type
		}
	}
	return t
}

func (*IntLit) exprNode()     {}
func (*BoolLit) exprNode()    {}
func (*ConstRef) exprNode()   {}
func (*Designator) exprNode() {}
func (*Unary) exprNode()      {}
func (*Binary) exprNode()     {}
func (*Call) exprNode()       {}
func (*NewArray) exprNode()   {}
func (*NewRecord) exprNode()  {}
func (*ArrayLen) exprNode()   {}
