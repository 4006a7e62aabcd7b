package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/yapl/classfile"
)

// intrinsic implements a library method. args holds the receiver first
// for instance methods.
type intrinsic func(vm *VM, args []Value) (Value, error)

// intrinsics is keyed by class.name+descriptor. It is filled in init
// because the intrinsics call back into the interpreter.
var intrinsics map[string]intrinsic

func init() {
	intrinsics = map[string]intrinsic{
		"java/lang/Object.<init>()V": func(*VM, []Value) (Value, error) { return nil, nil },

		"java/io/PrintStream.print(Ljava/lang/String;)V": func(vm *VM, args []Value) (Value, error) {
			s, err := vm.toString(args[1])
			if err != nil {
				return nil, err
			}
			return nil, vm.print(s)
		},
		"java/io/PrintStream.print(I)V": func(vm *VM, args []Value) (Value, error) {
			return nil, vm.print(strconv.Itoa(int(args[1].(int32))))
		},
		"java/io/PrintStream.print(Z)V": func(vm *VM, args []Value) (Value, error) {
			return nil, vm.print(formatBool(args[1].(int32)))
		},
		"java/io/PrintStream.println()V": func(vm *VM, args []Value) (Value, error) {
			return nil, vm.print("\n")
		},

		"java/lang/String.concat(Ljava/lang/String;)Ljava/lang/String;": func(vm *VM, args []Value) (Value, error) {
			a, ok1 := args[0].(string)
			b, ok2 := args[1].(string)
			if !ok1 || !ok2 {
				return nil, ErrNullPointer
			}
			return a + b, nil
		},
		"java/lang/Integer.toString(I)Ljava/lang/String;": func(vm *VM, args []Value) (Value, error) {
			return strconv.Itoa(int(args[0].(int32))), nil
		},
		"java/lang/Boolean.toString(Z)Ljava/lang/String;": func(vm *VM, args []Value) (Value, error) {
			return formatBool(args[0].(int32)), nil
		},
		"java/util/Objects.toString(Ljava/lang/Object;)Ljava/lang/String;": func(vm *VM, args []Value) (Value, error) {
			return vm.toString(args[0])
		},
		"java/util/Arrays.toString([I)Ljava/lang/String;":                  arraysToString,
		"java/util/Arrays.toString([Z)Ljava/lang/String;":                  arraysToString,
		"java/util/Arrays.toString([Ljava/lang/Object;)Ljava/lang/String;": arraysToString,

		"java/util/Arrays.deepToString([Ljava/lang/Object;)Ljava/lang/String;": func(vm *VM, args []Value) (Value, error) {
			return vm.formatArray(args[0], true)
		},

		"java/util/Scanner.<init>(Ljava/io/InputStream;)V": func(vm *VM, args []Value) (Value, error) {
			sc, ok := args[0].(*scanner)
			in, ok2 := args[1].(*inputStream)
			if !ok || !ok2 {
				return nil, ErrNullPointer
			}
			sc.in = in
			return nil, nil
		},
		"java/util/Scanner.nextInt()I": func(vm *VM, args []Value) (Value, error) {
			sc, ok := args[0].(*scanner)
			if !ok || sc.in == nil {
				return nil, ErrNullPointer
			}
			return sc.nextInt()
		},
	}
}

func arraysToString(vm *VM, args []Value) (Value, error) { return vm.formatArray(args[0], false) }

func formatBool(v int32) string {
	if v != 0 {
		return "true"
	}
	return "false"
}

func (vm *VM) print(s string) error {
	_, err := io.WriteString(vm.out, s)
	return err
}

// toString is String.valueOf(Object): null, the string itself, or the
// result of the object's own toString.
func (vm *VM) toString(v Value) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case *Object:
		if v.Class.File.Method("toString", "()Ljava/lang/String;") != nil {
			m, err := v.Class.method("toString", "()Ljava/lang/String;")
			if err != nil {
				return "", err
			}
			res, err := vm.execute(m, []Value{v})
			if err != nil {
				return "", err
			}
			return vm.toString(res)
		}
	}
	return fmt.Sprintf("%s@%p", typeName(v), v), nil
}

// formatArray renders an array the way java.util.Arrays does; deep
// recurses into nested arrays.
func (vm *VM) formatArray(v Value, deep bool) (string, error) {
	a, ok := v.(*Array)
	if !ok || a == nil {
		return "null", nil
	}
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		var s string
		var err error
		switch {
		case a.Elem == "I":
			s = strconv.Itoa(int(e.(int32)))
		case a.Elem == "Z":
			s = formatBool(e.(int32))
		case deep && strings.HasPrefix(a.Elem, "["):
			s, err = vm.formatArray(e, true)
		default:
			s, err = vm.toString(e)
		}
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

// nextInt reads the next whitespace-delimited token as an int.
func (s *scanner) nextInt() (Value, error) {
	r := s.in.r
	if r == nil {
		return nil, ErrNoInput
	}
	var tok strings.Builder
	for {
		c, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if unicode.IsSpace(c) {
			if tok.Len() > 0 {
				break
			}
			continue
		}
		tok.WriteRune(c)
	}
	if tok.Len() == 0 {
		return nil, ErrNoInput
	}
	n, err := strconv.ParseInt(tok.String(), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: For input string: %q", ErrInputMismatch, tok.String())
	}
	return int32(n), nil
}

// ---------------------------------------------------------------------------
// Fields, calls and allocation
// ---------------------------------------------------------------------------

func (vm *VM) hostStatic(class, name string) (Value, bool) {
	switch class + "." + name {
	case "java/lang/System.out":
		return printStream{}, true
	case "java/lang/System.in":
		return vm.in, true
	}
	return nil, false
}

func (vm *VM) fieldAccess(f *frame, op classfile.Opcode, idx uint16) error {
	class, name, _, err := f.m.class.File.Pool.MemberRef(idx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}

	switch op {
	case classfile.Getstatic, classfile.Putstatic:
		if v, ok := vm.hostStatic(class, name); ok && op == classfile.Getstatic {
			f.push(v)
			return nil
		}
		c, err := vm.initClass(class)
		if err != nil {
			return err
		}
		if _, ok := c.Statics[name]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrNoField, class, name)
		}
		if op == classfile.Getstatic {
			f.push(c.Statics[name])
		} else {
			c.Statics[name] = f.pop()
		}
		return nil
	}

	var value Value
	if op == classfile.Putfield {
		value = f.pop()
	}
	o, ok := f.pop().(*Object)
	if !ok || o == nil {
		return ErrNullPointer
	}
	if _, ok := o.Fields[name]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoField, class, name)
	}
	if op == classfile.Getfield {
		f.push(o.Fields[name])
	} else {
		o.Fields[name] = value
	}
	return nil
}

func (vm *VM) invoke(f *frame, op classfile.Opcode, idx uint16) error {
	class, name, desc, err := f.m.class.File.Pool.MemberRef(idx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}
	sig, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}
	n := len(sig.Params)
	if op != classfile.Invokestatic {
		n++
	}
	args := f.popN(n)

	var result Value
	if fn, ok := intrinsics[class+"."+name+desc]; ok {
		result, err = fn(vm, args)
	} else {
		result, err = vm.invokeLoaded(op, class, name, desc, args)
	}
	if err != nil {
		return err
	}
	if sig.Return != nil {
		f.push(result)
	}
	return nil
}

func (vm *VM) invokeLoaded(op classfile.Opcode, class, name, desc string, args []Value) (Value, error) {
	var target *Class
	var err error
	switch op {
	case classfile.Invokestatic:
		target, err = vm.initClass(class)
	case classfile.Invokespecial:
		if args[0] == nil {
			return nil, ErrNullPointer
		}
		target, err = vm.lookup(class)
	default:
		o, ok := args[0].(*Object)
		if !ok || o == nil {
			return nil, ErrNullPointer
		}
		target = o.Class
	}
	if err != nil {
		return nil, err
	}
	m, err := target.method(name, desc)
	if err != nil {
		return nil, err
	}
	return vm.execute(m, args)
}

// allocate implements new.
func (vm *VM) allocate(class string) (Value, error) {
	if class == "java/util/Scanner" {
		return &scanner{}, nil
	}
	c, err := vm.initClass(class)
	if err != nil {
		return nil, err
	}
	return newObject(c), nil
}
