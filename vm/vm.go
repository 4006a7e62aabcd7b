package vm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/yapl/classfile"
)

var log = commonlog.GetLogger("yapl.vm")

const (
	// DefaultMaxDepth bounds the call stack.
	DefaultMaxDepth = 2048
	mainDescriptor  = "([Ljava/lang/String;)V"
)

// Class is a loaded class with its static state.
type Class struct {
	Name    string
	File    *classfile.ClassFile
	Statics map[string]Value

	initialized bool
	methods     map[string]*method
}

// method is a prepared method body: instructions by offset and frames by
// offset.
type method struct {
	class  *Class
	info   *classfile.MethodInfo
	sig    classfile.MethodType
	insns  map[int]classfile.Instruction
	frames map[int]*classfile.FrameInfo
}

// VM holds loaded classes and the standard streams of one execution.
type VM struct {
	// MaxSteps aborts execution after that many instructions; 0 means no
	// limit.
	MaxSteps int
	MaxDepth int

	classes map[string]*Class
	out     io.Writer
	in      *inputStream
	steps   int
	depth   int
}

// New returns a VM with classes loaded.
func New(classes ...*classfile.ClassFile) *VM {
	vm := &VM{MaxDepth: DefaultMaxDepth, classes: make(map[string]*Class)}
	for _, cf := range classes {
		vm.Define(cf)
	}
	return vm
}

// Load parses class file images and returns a VM holding them.
func Load(images ...[]byte) (*VM, error) {
	vm := New()
	for i, data := range images {
		cf, err := classfile.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("class image %d: %w", i, err)
		}
		vm.Define(cf)
	}
	return vm, nil
}

// Define adds a class, replacing one of the same name.
func (vm *VM) Define(cf *classfile.ClassFile) {
	vm.classes[cf.This] = &Class{Name: cf.This, File: cf, Statics: make(map[string]Value), methods: make(map[string]*method)}
}

// Class returns the loaded class called name, or nil.
func (vm *VM) Class(name string) *Class { return vm.classes[name] }

// Run executes className.main(String[]) with the given standard streams.
func (vm *VM) Run(className string, stdin io.Reader, stdout io.Writer) error {
	vm.setStreams(stdin, stdout)
	_, err := vm.Invoke(className, "main", mainDescriptor, &Array{Elem: "Ljava/lang/String;"})
	return err
}

func (vm *VM) setStreams(stdin io.Reader, stdout io.Writer) {
	if stdout == nil {
		stdout = io.Discard
	}
	vm.out = stdout
	var r *bufio.Reader
	if stdin != nil {
		r = bufio.NewReader(stdin)
	}
	vm.in = &inputStream{r: r}
}

// Invoke runs a static method and returns its result (nil for void).
func (vm *VM) Invoke(className, name, descriptor string, args ...Value) (Value, error) {
	if vm.out == nil {
		vm.setStreams(nil, nil)
	}
	c, err := vm.initClass(className)
	if err != nil {
		return nil, err
	}
	m, err := c.method(name, descriptor)
	if err != nil {
		return nil, err
	}
	if m.info.Flags&classfile.AccStatic == 0 {
		return nil, fmt.Errorf("%w: %s.%s%s is not static", ErrNoMethod, className, name, descriptor)
	}
	return vm.execute(m, args)
}

// lookup returns a loaded class without initializing it.
func (vm *VM) lookup(name string) (*Class, error) {
	c, ok := vm.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoClass, name)
	}
	return c, nil
}

// initClass sets static fields to their defaults and runs <clinit> the
// first time a class is used.
func (vm *VM) initClass(name string) (*Class, error) {
	c, err := vm.lookup(name)
	if err != nil || c.initialized {
		return c, err
	}
	c.initialized = true
	for _, f := range c.File.Fields {
		if f.Flags&classfile.AccStatic != 0 {
			c.Statics[f.Name] = zeroValue(f.Descriptor)
		}
	}
	if c.File.Method("<clinit>", "()V") != nil {
		m, err := c.method("<clinit>", "()V")
		if err != nil {
			return nil, err
		}
		log.Debugf("initializing %s", name)
		if _, err := vm.execute(m, nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// newObject allocates an instance with every field at its default.
func newObject(c *Class) *Object {
	o := &Object{Class: c, Fields: make(map[string]Value)}
	for _, f := range c.File.Fields {
		if f.Flags&classfile.AccStatic == 0 {
			o.Fields[f.Name] = zeroValue(f.Descriptor)
		}
	}
	return o
}

// method prepares and caches a method body, checking the static
// properties the verifier relies on.
func (c *Class) method(name, descriptor string) (*method, error) {
	key := name + descriptor
	if m, ok := c.methods[key]; ok {
		return m, nil
	}
	info := c.File.Method(name, descriptor)
	if info == nil {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrNoMethod, c.Name, name, descriptor)
	}
	if info.Code == nil {
		return nil, fmt.Errorf("%w: %s.%s%s has no Code attribute", ErrVerify, c.Name, name, descriptor)
	}
	sig, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerify, err)
	}
	insns, err := classfile.DecodeCode(info.Code.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrVerify, c.Name, name, err)
	}

	m := &method{
		class:  c,
		info:   info,
		sig:    sig,
		insns:  make(map[int]classfile.Instruction, len(insns)),
		frames: make(map[int]*classfile.FrameInfo),
	}
	for _, in := range insns {
		m.insns[in.Offset] = in
	}
	for i := range info.Code.Frames {
		f := &info.Code.Frames[i]
		if _, ok := m.insns[f.Offset]; !ok {
			return nil, m.verifyError(f.Offset, "stack map frame is not on an instruction boundary")
		}
		if len(f.Locals) > int(info.Code.MaxLocals) {
			return nil, m.verifyError(f.Offset, "frame has %d locals, max_locals is %d", len(f.Locals), info.Code.MaxLocals)
		}
		if len(f.Stack) > int(info.Code.MaxStack) {
			return nil, m.verifyError(f.Offset, "frame has %d stack entries, max_stack is %d", len(f.Stack), info.Code.MaxStack)
		}
		m.frames[f.Offset] = f
	}

	size := len(info.Code.Code)
	for _, in := range insns {
		if in.Op.IsBranch() && !in.Wide {
			if _, ok := m.frames[in.Target]; !ok {
				return nil, m.verifyError(in.Offset, "no stack map frame at branch target %d", in.Target)
			}
		}
		next := in.Offset + in.Size
		switch in.Op {
		case classfile.Goto, classfile.Return, classfile.Ireturn, classfile.Areturn:
			if _, ok := m.frames[next]; next < size && !ok {
				return nil, m.verifyError(next, "no stack map frame after unconditional branch")
			}
		}
		if next == size && !endsMethod(in.Op) {
			return nil, m.verifyError(in.Offset, "falling off the end of the code")
		}
	}
	c.methods[key] = m
	return m, nil
}

func endsMethod(op classfile.Opcode) bool {
	switch op {
	case classfile.Goto, classfile.Return, classfile.Ireturn, classfile.Areturn:
		return true
	}
	return false
}

func (m *method) verifyError(pc int, format string, args ...any) error {
	return &ExecError{Class: m.class.Name, Method: m.info.Name, PC: pc, Err: fmt.Errorf("%w: "+format, append([]any{ErrVerify}, args...)...)}
}
