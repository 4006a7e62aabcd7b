package codegen

import (
	"strings"
	"testing"

	"github.com/chazu/yapl/ir"
)

func TestProfileOptions(t *testing.T) {
	opts := ProfileOptions{Vardump: []int{3}, Watch: []int{5}, CallTrace: []string{"f"}}
	if !opts.Enabled() {
		t.Error("Enabled() = false")
	}
	if (ProfileOptions{}).Enabled() {
		t.Error("zero options enabled")
	}
	if !opts.watches(5) || opts.watches(3) {
		t.Error("watches")
	}
	if !(ProfileOptions{WatchAll: true}).watches(99) {
		t.Error("WatchAll does not watch every line")
	}
	if !opts.traces("f") || opts.traces("g") {
		t.Error("traces")
	}
}

func TestWatchAssignment(t *testing.T) {
	x := local("x", ir.IntType)
	flags := local("flags", ir.ArrayOf(ir.BoolType, 1))
	p := mainProgram([]*ir.Variable{x, flags},
		&ir.Assign{Line: 3, Target: use(x), Value: bin(ir.Add, num(2), num(3))},
		&ir.Assign{Line: 4, Target: use(flags), Value: &ir.NewArray{Elem: ir.BoolType, Lens: []ir.Expr{num(2)}}},
		&ir.Assign{Line: 5, Target: use(flags, at(num(1))), Value: bin(ir.Gt, use(x), num(4))},
		&ir.Assign{Line: 6, Target: use(x), Value: num(0)},
		writeint(use(x)),
	)
	got := run(t, p, ProfileOptions{Watch: []int{3, 4, 5}}, "")
	want := "[PROFILER, line 3] x = 2 + 3\n" +
		"[PROFILER, line 4] flags = new bool[2]\n" +
		"[PROFILER, line 5] flags[] = 5 > 4\n" +
		"0"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestWatchConditions(t *testing.T) {
	i := local("i", ir.IntType)
	p := mainProgram([]*ir.Variable{i},
		&ir.While{
			Line: 2,
			Cond: bin(ir.Lt, use(i), num(2)),
			Body: []ir.Stmt{&ir.Assign{Line: 3, Target: use(i), Value: bin(ir.Add, use(i), num(1))}},
		},
		&ir.If{
			Line: 4,
			Cond: bin(ir.Or, truth(false), bin(ir.Eq, use(i), num(2))),
			Then: []ir.Stmt{&ir.Write{Line: 5, Text: "done"}},
		},
	)
	got := run(t, p, ProfileOptions{Watch: []int{2, 4}}, "")
	want := "[PROFILER, line 2] while 0 < 2\n" +
		"[PROFILER, line 2] while 1 < 2\n" +
		"[PROFILER, line 2] while 2 < 2\n" +
		"[PROFILER, line 4] if false Or 2 == 2\n" +
		"done"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestWatchCallStatements(t *testing.T) {
	p := mainProgram(nil,
		&ir.CallStmt{Line: 7, Call: readint()},
		&ir.CallStmt{Line: 8, Call: call(predefinedProc("writeint"), bin(ir.Sub, readint(), num(2)))},
		writeint(readint()),
	)
	got := run(t, p, ProfileOptions{Watch: []int{7, 8}}, "11 22 33")
	want := "[PROFILER, line 7] readint() = 11\n" +
		"[PROFILER, line 8] writeint(readint() - 2)\n20" +
		"33"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWatchRendersOperands(t *testing.T) {
	a, x := local("a", ir.IntType), local("x", ir.IntType)
	flag, ok := local("flag", ir.BoolType), local("ok", ir.BoolType)
	arr, grid := local("arr", ir.ArrayOf(ir.IntType, 1)), local("grid", ir.ArrayOf(ir.IntType, 2))
	limit := &ir.ConstRef{Const: &ir.Const{Name: "limit", Type: ir.IntType, Value: 9}}
	line := func(n int, d *ir.Designator, v ir.Expr) ir.Stmt { return &ir.Assign{Line: n, Target: d, Value: v} }

	p := mainProgram([]*ir.Variable{a, x, flag, ok, arr, grid},
		line(1, use(a), num(4)),
		line(1, use(arr), &ir.NewArray{Elem: ir.IntType, Lens: []ir.Expr{num(3)}}),
		line(2, use(x), bin(ir.Mul, bin(ir.Add, use(a), num(1)), neg(use(a)))),
		line(3, use(x), bin(ir.Sub, bin(ir.Sub, use(a), num(1)), limit)),
		line(4, use(x), bin(ir.Add, readint(), &ir.ArrayLen{Array: use(arr)})),
		line(5, use(ok), bin(ir.And, use(flag), bin(ir.Gt, use(a), num(2)))),
		line(6, use(ok), bin(ir.Or, use(flag), bin(ir.And, bin(ir.Gt, use(a), num(2)), bin(ir.Lt, use(a), limit)))),
		line(7, use(grid), &ir.NewArray{Elem: ir.IntType, Lens: []ir.Expr{use(a), num(2)}}),
		writebool(use(ok)),
		writeint(use(x)),
	)
	got := run(t, p, ProfileOptions{Watch: []int{2, 3, 4, 5, 6, 7}}, "7")
	// flag is false, so line 5 stops after its first operand.
	want := "[PROFILER, line 2] x = (4 + 1) * -4\n" +
		"[PROFILER, line 3] x = 4 - 1 - 9\n" +
		"[PROFILER, line 4] x = readint() + 3\n" +
		"[PROFILER, line 5] ok = false\n" +
		"[PROFILER, line 6] ok = false Or 4 > 2 And 4 < 9\n" +
		"[PROFILER, line 7] grid = new int[4][2]\n" +
		"true10"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestWatchReturn(t *testing.T) {
	n := &ir.Variable{Name: "n", Type: ir.IntType, Kind: ir.Param}
	even := &ir.Procedure{
		Name:   "even",
		Params: []*ir.Variable{n},
		Result: ir.BoolType,
		Line:   1,
		Body: &ir.Block{Stmts: []ir.Stmt{
			&ir.Return{Line: 2, Value: bin(ir.Eq, bin(ir.Mod, use(n), num(2)), num(0))},
		}},
	}
	p := mainProgram(nil, writebool(call(even, num(6))))
	p.Procedures = []*ir.Procedure{even}

	got := run(t, p, ProfileOptions{Watch: []int{2}}, "")
	if want := "[PROFILER, line 2] return (6 % 2) == 0\ntrue"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWatchRecord(t *testing.T) {
	point, x, _ := pointRecord()
	a, b := local("a", ir.RecordType("point")), local("b", ir.RecordType("point"))
	p := mainProgram([]*ir.Variable{a, b},
		&ir.Assign{Line: 2, Target: use(a, dot(x)), Value: num(3)},
		&ir.Assign{Line: 3, Target: use(b), Value: use(a)},
	)
	p.Records = []*ir.RecordDecl{point}
	got := run(t, p, ProfileOptions{Watch: []int{2, 3}}, "")
	want := "[PROFILER, line 2] a.x = 3\n" +
		"[PROFILER, line 3] b = Point {x: 3, y: 0}\n"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestCallTrace(t *testing.T) {
	a := &ir.Variable{Name: "a", Type: ir.IntType, Kind: ir.Param}
	ok := &ir.Variable{Name: "ok", Type: ir.BoolType, Kind: ir.Param}
	pick := &ir.Procedure{
		Name:   "pick",
		Params: []*ir.Variable{a, ok},
		Result: ir.IntType,
		Line:   2,
		Body: &ir.Block{Stmts: []ir.Stmt{
			&ir.If{Line: 3, Cond: use(ok), Then: []ir.Stmt{&ir.Return{Line: 3, Value: use(a)}}},
			&ir.Return{Line: 4, Value: neg(use(a))},
		}},
	}
	p := mainProgram(nil,
		writeint(call(pick, num(4), truth(true))),
		writeint(call(pick, num(6), bin(ir.And, truth(true), truth(false)))),
	)
	p.Procedures = []*ir.Procedure{pick}

	got := run(t, p, ProfileOptions{CallTrace: []string{"pick"}}, "")
	want := "[PROFILER, line 2] pick(4, true)\n4" +
		"[PROFILER, line 2] pick(6, false)\n-6"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestVardump(t *testing.T) {
	g := &ir.Variable{Name: "g", Type: ir.IntType, Kind: ir.Global}
	n := &ir.Variable{Name: "n", Type: ir.IntType, Kind: ir.Param}
	x := local("x", ir.BoolType)
	show := &ir.Procedure{
		Name:   "show",
		Params: []*ir.Variable{n},
		Result: ir.VoidType,
		Line:   2,
		Body: &ir.Block{
			Vars: []*ir.Variable{x},
			Stmts: []ir.Stmt{
				&ir.Assign{Line: 4, Target: use(x), Value: truth(true)},
				&ir.Assign{Line: 5, Target: use(g), Value: use(n)},
			},
		},
	}
	p := mainProgram(nil, &ir.CallStmt{Line: 9, Call: call(show, num(7))})
	p.Globals = []*ir.Variable{g}
	p.Procedures = []*ir.Procedure{show}

	got := run(t, p, ProfileOptions{Vardump: []int{5}}, "")
	want := "[PROFILER, line 5] " + strings.Repeat("=", 48) + "\n" +
		"Globals:\nint g: 0\n\n" +
		"Params:\nint n: 7\n\n" +
		"Locals:\nbool x: true\n\n"
	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

// dumpText is the vardump output for a main program whose only variable is
// the int x.
func dumpText(line int, x string) string {
	return prefix(line) + strings.Repeat("=", 48) + "\n" +
		"Globals:\n\nParams:\n\nLocals:\nint x: " + x + "\n\n"
}

func TestVardumpPlacement(t *testing.T) {
	tests := []struct {
		name    string
		vardump []int
		end     int
		want    string
	}{
		{"line without statement", []int{3}, 0, dumpText(3, "1")},
		{"end of if", []int{6}, 0, dumpText(6, "2")},
		{"end of block", []int{8}, 9, dumpText(8, "2")},
		{"past the last line", []int{8}, 0, ""},
		{"requests merged", []int{2, 1}, 0, dumpText(1, "0")},
		{"every request", []int{1, 3, 8}, 9, dumpText(1, "0") + dumpText(3, "1") + dumpText(8, "2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := local("x", ir.IntType)
			p := mainProgram([]*ir.Variable{x},
				&ir.Assign{Line: 2, Target: use(x), Value: num(1)},
				&ir.If{
					Line: 4,
					End:  6,
					Cond: bin(ir.Eq, use(x), num(1)),
					Then: []ir.Stmt{&ir.Assign{Line: 5, Target: use(x), Value: num(2)}},
				},
			)
			p.Main.End = tt.end
			if got := run(t, p, ProfileOptions{Vardump: tt.vardump}, ""); got != tt.want {
				t.Errorf("output =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestVardumpOncePerLine(t *testing.T) {
	x := local("x", ir.IntType)
	p := mainProgram([]*ir.Variable{x},
		&ir.Assign{Line: 2, Target: use(x), Value: num(1)},
		&ir.Assign{Line: 2, Target: use(x), Value: num(2)},
	)
	got := run(t, p, ProfileOptions{Vardump: []int{2}}, "")
	if n := strings.Count(got, "[PROFILER, line 2]"); n != 1 {
		t.Errorf("line 2 dumped %d times, want 1:\n%s", n, got)
	}
	if !strings.Contains(got, "int x: 0\n") {
		t.Errorf("dump does not show x before the statement:\n%s", got)
	}
}

func TestDesignatorText(t *testing.T) {
	next := &ir.Variable{Name: "next", Type: ir.RecordType("node"), Kind: ir.Field}
	list := local("list", ir.ArrayOf(ir.RecordType("node"), 1))
	if got := designatorText(use(list, at(num(0)), dot(next), dot(next))); got != "list[].next.next" {
		t.Errorf("designatorText = %q", got)
	}
}
