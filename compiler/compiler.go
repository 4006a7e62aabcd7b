// Package compiler drives code generation for an analyzed YAPL program:
// it loads the program, runs the JVM backend and writes the class files.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/codegen"
	"github.com/chazu/yapl/ir"
)

// Context carries the settings and logger of a compilation.
type Context struct {
	Settings Settings
	Log      commonlog.Logger
}

// NewContext returns a context logging to the "yapl.compiler" logger.
func NewContext(s Settings) *Context {
	return &Context{Settings: s, Log: commonlog.GetLogger("yapl.compiler")}
}

// ClassFile is one generated class.
type ClassFile struct {
	Name string // internal name, e.g. Prog$Rec
	File string // file name, e.g. Prog$Rec.class
	Data []byte
}

// Output holds the classes of a program in generation order: records,
// the program class, then StandardLibrary.
type Output struct {
	Program string
	Classes []ClassFile
}

// MainClass is the class holding main.
func (o *Output) MainClass() string { return codegen.ClassName(o.Program) }

// Images returns the raw class file bytes.
func (o *Output) Images() [][]byte {
	images := make([][]byte, len(o.Classes))
	for i, c := range o.Classes {
		images[i] = c.Data
	}
	return images
}

// LoadProgram reads an analyzed program in the CBOR interchange format.
func LoadProgram(path string) (*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := ir.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// SaveProgram writes p in the interchange format read by LoadProgram.
func SaveProgram(path string, p *ir.Program) error {
	data, err := ir.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Compile generates and serializes every class of p. Nothing is written;
// an internal error aborts the whole program.
func (ctx *Context) Compile(p *ir.Program) (out *Output, err error) {
	defer func() {
		if err != nil {
			ctx.Log.Criticalf("compiling %s: %s", p.Name, err)
		}
	}()
	defer classfile.Recover(&err)

	g := codegen.NewJVM(ctx.Settings.Major)
	codegen.Generate(g, p, ctx.Settings.Profile)

	out = &Output{Program: p.Name}
	for _, c := range g.Classes() {
		data, err := c.Bytes()
		if err != nil {
			return nil, err
		}
		out.Classes = append(out.Classes, ClassFile{Name: c.Name, File: c.FileName(), Data: data})
		ctx.Log.Debugf("generated %s (%d bytes)", c.Name, len(data))
	}
	return out, nil
}

// Write stores every class under the output directory. It keeps going
// after a failed file and reports all failures together.
func (ctx *Context) Write(out *Output) error {
	dir := ctx.Settings.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		ctx.Log.Errorf("cannot create %s: %s", dir, err)
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	var result *multierror.Error
	for _, c := range out.Classes {
		path := filepath.Join(dir, c.File)
		if err := os.WriteFile(path, c.Data, 0644); err != nil {
			ctx.Log.Errorf("cannot write %s: %s", path, err)
			result = multierror.Append(result, fmt.Errorf("cannot write %s: %w", path, err))
			continue
		}
		ctx.Log.Infof("wrote %s", path)
	}
	return result.ErrorOrNil()
}

// Build compiles p and writes its classes.
func (ctx *Context) Build(p *ir.Program) (*Output, error) {
	out, err := ctx.Compile(p)
	if err != nil {
		return nil, err
	}
	return out, ctx.Write(out)
}
