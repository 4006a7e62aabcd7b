package compiler

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/yapl/codegen"
	"github.com/chazu/yapl/ir"
	"github.com/chazu/yapl/manifest"
	"github.com/chazu/yapl/vm"
)

func predefined(name string) *ir.Procedure {
	for _, p := range codegen.Predefined() {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// greetProgram prints "hello " and the sum of the two numbers on stdin.
func greetProgram() *ir.Program {
	sum := &ir.Variable{Name: "sum", Type: ir.IntType, Kind: ir.Local, Line: 2}
	readint := &ir.Call{Line: 3, Proc: predefined("readint")}
	return &ir.Program{
		Name:   "greet",
		Source: "greet.yapl",
		Main: &ir.Block{
			Vars: []*ir.Variable{sum},
			Stmts: []ir.Stmt{
				&ir.Assign{Line: 3, Target: &ir.Designator{Var: sum}, Value: &ir.Binary{Op: ir.Add, X: readint, Y: readint}},
				&ir.Write{Line: 4, Text: "hello "},
				&ir.CallStmt{Line: 5, Call: &ir.Call{Proc: predefined("writeint"), Args: []ir.Expr{&ir.Designator{Var: sum}}}},
			},
		},
	}
}

func TestBuildWritesClasses(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "greet.yir")
	if err := SaveProgram(src, greetProgram()); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}
	prog, err := LoadProgram(src)
	if err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}

	s := DefaultSettings()
	s.OutputDir = filepath.Join(dir, "out", "classes")
	out, err := NewContext(s).Build(prog)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if out.MainClass() != "Greet" {
		t.Errorf("MainClass() = %q, want Greet", out.MainClass())
	}
	for _, name := range []string{"Greet.class", "StandardLibrary.class"} {
		if _, err := os.Stat(filepath.Join(s.OutputDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	machine, err := vm.Load(out.Images()...)
	if err != nil {
		t.Fatal(err)
	}
	var stdout strings.Builder
	if err := machine.Run(out.MainClass(), strings.NewReader("20 22"), &stdout); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stdout.String() != "hello 42" {
		t.Errorf("output = %q, want %q", stdout.String(), "hello 42")
	}
}

func TestCompileWithProfile(t *testing.T) {
	s := DefaultSettings()
	s.Profile = codegen.ProfileOptions{Watch: []int{3}}
	out, err := NewContext(s).Compile(greetProgram())
	if err != nil {
		t.Fatal(err)
	}
	machine, err := vm.Load(out.Images()...)
	if err != nil {
		t.Fatal(err)
	}
	var stdout strings.Builder
	if err := machine.Run(out.MainClass(), strings.NewReader("1 2"), &stdout); err != nil {
		t.Fatal(err)
	}
	if want := "[PROFILER, line 3] sum = readint() + readint()\nhello 3"; stdout.String() != want {
		t.Errorf("output = %q, want %q", stdout.String(), want)
	}
}

func TestCompileInternalError(t *testing.T) {
	ghost := &ir.Variable{Name: "ghost", Type: ir.IntType, Kind: ir.Local}
	p := &ir.Program{Name: "broken", Main: &ir.Block{Stmts: []ir.Stmt{
		&ir.Assign{Target: &ir.Designator{Var: ghost}, Value: &ir.IntLit{Value: 1}},
	}}}

	out, err := NewContext(DefaultSettings()).Compile(p)
	if err == nil {
		t.Fatal("expected error")
	}
	if out != nil {
		t.Error("partial output returned with an error")
	}
	if !errors.Is(err, codegen.ErrUnknownVar) {
		t.Errorf("err = %v, want ErrUnknownVar", err)
	}
}

func TestWriteReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	// Directories squatting on the class file names make both writes fail.
	for _, name := range []string{"A.class", "B.class"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	out := &Output{Program: "a", Classes: []ClassFile{
		{Name: "A", File: "A.class", Data: []byte{1}},
		{Name: "C", File: "C.class", Data: []byte{2}},
		{Name: "B", File: "B.class", Data: []byte{3}},
	}}

	err := NewContext(Settings{OutputDir: dir}).Write(out)
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *multierror.Error", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(merr.Errors), err)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "C.class")); err != nil || len(data) != 1 {
		t.Errorf("C.class = %v, %v; want written despite earlier failure", data, err)
	}
}

func TestLoadProgramErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadProgram(filepath.Join(dir, "missing.yir")); err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("missing file err = %v", err)
	}

	bad := filepath.Join(dir, "bad.yir")
	if err := os.WriteFile(bad, []byte("not cbor"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProgram(bad); err == nil || !strings.Contains(err.Error(), bad) {
		t.Errorf("malformed file err = %v, want it to name the file", err)
	}
}

func TestSettingsFromManifest(t *testing.T) {
	m := &manifest.Manifest{
		Dir:    "/proj",
		Output: manifest.OutputConfig{Dir: "build", MajorVersion: 61},
		Profile: manifest.ProfileConfig{
			Watch:     []int{4},
			CallTrace: []string{"f"},
		},
	}

	s := SettingsFromManifest(m)
	if s.OutputDir != "/proj/build" || s.Major != 61 {
		t.Errorf("settings = %+v", s)
	}
	if s.Profile.Enabled() {
		t.Error("profile applied although [profile] is not enabled")
	}

	m.Profile.Enabled = true
	s = SettingsFromManifest(m)
	if len(s.Profile.Watch) != 1 || s.Profile.CallTrace[0] != "f" {
		t.Errorf("profile = %+v", s.Profile)
	}
}

// TestJavaAcceptsClasses runs the generated classes on a real JVM, whose
// verifier checks the stack map frames.
func TestJavaAcceptsClasses(t *testing.T) {
	java, err := exec.LookPath("java")
	if err != nil {
		t.Skip("java not on PATH")
	}
	s := DefaultSettings()
	s.OutputDir = t.TempDir()
	s.Profile = codegen.ProfileOptions{WatchAll: true}
	if _, err := NewContext(s).Build(greetProgram()); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(java, "-Xverify:all", "-cp", s.OutputDir, "Greet")
	cmd.Stdin = strings.NewReader("5 6")
	got, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("java failed: %v\n%s", err, got)
	}
	if want := "hello [PROFILER, line 5] writeint(11)\n11"; !strings.HasSuffix(string(got), want) {
		t.Errorf("output = %q, want it to end in %q", got, want)
	}
}
