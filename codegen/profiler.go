package codegen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/yapl/ir"
)

// ProfileOptions selects the instrumentation the driver weaves into the
// generated code.
type ProfileOptions struct {
	// Vardump lists lines at which every visible variable is printed. A
	// line holding no statement dumps at the next statement or block end.
	Vardump []int
	// Watch lists lines whose assignments, conditions, returns and call
	// statements are printed with their operand values; WatchAll watches
	// every line.
	Watch    []int
	WatchAll bool
	// CallTrace names procedures that print their arguments on entry.
	CallTrace []string
}

// Enabled reports whether any instrumentation is requested.
func (o ProfileOptions) Enabled() bool {
	return len(o.Vardump) > 0 || len(o.Watch) > 0 || o.WatchAll || len(o.CallTrace) > 0
}

func (o ProfileOptions) watches(line int) bool { return o.WatchAll || slices.Contains(o.Watch, line) }
func (o ProfileOptions) traces(name string) bool {
	return slices.Contains(o.CallTrace, name)
}

// Scope is one titled group of variables in a vardump.
type Scope struct {
	Title string
	Vars  []*ir.Variable
}

const profilerRule = 48

// Profiler decorates a Backend with calls that print program state at run
// time. It only adds loads, Dup, Stringify, Write and writeln calls, so the
// control flow of the wrapped backend's output is unchanged.
type Profiler struct {
	Backend
	writeln *ir.Procedure
}

// NewProfiler wraps b.
func NewProfiler(b Backend) *Profiler {
	return &Profiler{Backend: b, writeln: predefinedProc("writeln")}
}

func prefix(line int) string { return fmt.Sprintf("[PROFILER, line %d] ", line) }

func (p *Profiler) print(s string) {
	p.LoadString(s)
	p.Write()
}

func (p *Profiler) newline() { p.CallFunction(p.writeln) }

// DumpVariable prints "type name: value" and a newline.
func (p *Profiler) DumpVariable(v *ir.Variable) {
	p.print(v.Type.String() + " " + v.Name + ": ")
	p.LoadVar(v)
	p.Stringify(v.Type)
	p.Write()
	p.newline()
}

// DumpScope prints a section title followed by each variable in it.
func (p *Profiler) DumpScope(s Scope) {
	p.print(s.Title)
	p.newline()
	for _, v := range s.Vars {
		p.DumpVariable(v)
	}
	p.newline()
}

// DumpTopOfStack prints the value of type t on top of the stack, leaving
// the value in place.
func (p *Profiler) DumpTopOfStack(t ir.Type) {
	p.Dup()
	p.Stringify(t)
	p.Write()
}

// DumpAtLine prints a banner for line and then every scope.
func (p *Profiler) DumpAtLine(line int, scopes []Scope) {
	p.print(prefix(line) + strings.Repeat("=", profilerRule))
	p.newline()
	for _, s := range scopes {
		p.DumpScope(s)
	}
}

// DumpCall prints "name(arg, arg)" from the parameters of the procedure
// being entered.
func (p *Profiler) DumpCall(proc *ir.Procedure) {
	p.print(prefix(proc.Line) + proc.Name + "(")
	for i, param := range proc.Params {
		if i > 0 {
			p.print(", ")
		}
		p.LoadVar(param)
		p.Stringify(param.Type)
		p.Write()
	}
	p.print(")")
	p.newline()
}
