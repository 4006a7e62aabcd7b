package ir

// VarKind says where a variable lives.
type VarKind uint8

const (
	Global VarKind = iota
	Local
	Param
	Field
)

func (k VarKind) String() string {
	switch k {
	case Global:
		return "global"
	case Local:
		return "local"
	case Param:
		return "param"
	case Field:
		return "field"
	}
	return "invalid"
}

// Variable is a resolved variable, parameter or record field. Variables are
// compared by identity.
type Variable struct {
	Name string
	Type Type
	Kind VarKind
	Line int
}

// Const is a named compile-time constant. Bool constants hold 0 or 1.
type Const struct {
	Name  string
	Type  Type
	Value int32
}

// RecordDecl is a record type with its ordered fields.
type RecordDecl struct {
	Name   string
	Fields []*Variable
	Line   int
}

// Field returns the field called name, or nil.
func (r *RecordDecl) Field(name string) *Variable {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Procedure is a user or predefined procedure. Predefined procedures have
// no body.
type Procedure struct {
	Name       string
	Params     []*Variable
	Result     Type
	Body       *Block
	Predefined bool
	Line       int
}

// Block is a scope: its constant and variable declarations and statements.
// Begin and End are the lines of its delimiters, 0 when unknown.
type Block struct {
	Consts []*Const
	Vars   []*Variable
	Stmts  []Stmt
	Begin  int
	End    int
}

// Program is a whole analyzed compilation unit.
type Program struct {
	Name       string
	Source     string // source file name, optional
	Consts     []*Const
	Records    []*RecordDecl
	Globals    []*Variable
	Procedures []*Procedure
	Main       *Block
}

// Record returns the record declaration called name, or nil.
func (p *Program) Record(name string) *RecordDecl {
	for _, r := range p.Records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Procedure returns the procedure called name, or nil.
func (p *Program) Procedure(name string) *Procedure {
	for _, proc := range p.Procedures {
		if proc.Name == name {
			return proc
		}
	}
	return nil
}
