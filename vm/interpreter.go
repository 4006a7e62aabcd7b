package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/yapl/classfile"
)

// ---------------------------------------------------------------------------
// Frame: execution state of one method invocation
// ---------------------------------------------------------------------------

type frame struct {
	m      *method
	locals []Value
	stack  []Value
	pc     int
}

func (f *frame) push(v Value) {
	if len(f.stack) >= int(f.m.info.Code.MaxStack) {
		panic(f.m.verifyError(f.pc, "operand stack exceeds max_stack %d", f.m.info.Code.MaxStack))
	}
	f.stack = append(f.stack, v)
}

func (f *frame) pop() Value {
	if len(f.stack) == 0 {
		panic(f.m.verifyError(f.pc, "operand stack underflow"))
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// popN pops n values, returned deepest first.
func (f *frame) popN(n int) []Value {
	if len(f.stack) < n {
		panic(f.m.verifyError(f.pc, "operand stack underflow"))
	}
	vals := make([]Value, n)
	copy(vals, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vals
}

func (f *frame) popInt() int32 {
	v, ok := f.pop().(int32)
	if !ok {
		panic(f.m.verifyError(f.pc, "expected int on the operand stack"))
	}
	return v
}

func (f *frame) local(slot int) Value {
	if slot >= len(f.locals) {
		panic(f.m.verifyError(f.pc, "local %d exceeds max_locals %d", slot, len(f.locals)))
	}
	return f.locals[slot]
}

func (f *frame) setLocal(slot int, v Value) {
	if slot >= len(f.locals) {
		panic(f.m.verifyError(f.pc, "local %d exceeds max_locals %d", slot, len(f.locals)))
	}
	f.locals[slot] = v
}

// checkFrame compares the live state with the stack map frame recorded
// for the current offset.
func (f *frame) checkFrame(sm *classfile.FrameInfo) {
	if len(sm.Stack) != len(f.stack) {
		panic(f.m.verifyError(f.pc, "stack height %d, frame declares %d", len(f.stack), len(sm.Stack)))
	}
	for i, vt := range sm.Stack {
		if !assignable(f.stack[i], vt) {
			panic(f.m.verifyError(f.pc, "stack[%d] holds %T, frame declares %s", i, f.stack[i], vt))
		}
	}
	for i, vt := range sm.Locals {
		if !assignable(f.locals[i], vt) {
			panic(f.m.verifyError(f.pc, "local %d holds %T, frame declares %s", i, f.locals[i], vt))
		}
	}
}

func assignable(v Value, vt classfile.VerificationType) bool {
	_, isInt := v.(int32)
	switch vt.Tag {
	case classfile.ItemTop:
		return true
	case classfile.ItemInteger:
		return isInt
	case classfile.ItemNull:
		return v == nil
	case classfile.ItemObject:
		return !isInt
	}
	return false
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

// execute runs m with args in its first local slots. Verification failures
// inside the loop panic with *ExecError and are turned into the returned
// error here.
func (vm *VM) execute(m *method, args []Value) (result Value, err error) {
	code := m.info.Code
	if len(args) > int(code.MaxLocals) {
		return nil, m.verifyError(0, "%d arguments exceed max_locals %d", len(args), code.MaxLocals)
	}
	if vm.depth >= vm.MaxDepth {
		return nil, &ExecError{Class: m.class.Name, Method: m.info.Name, Err: ErrStackOverflow}
	}
	vm.depth++
	defer func() { vm.depth-- }()

	f := &frame{m: m, locals: make([]Value, code.MaxLocals), stack: make([]Value, 0, code.MaxStack)}
	copy(f.locals, args)

	defer func() {
		if r := recover(); r != nil {
			ee, ok := r.(*ExecError)
			if !ok {
				panic(r)
			}
			result, err = nil, ee
		}
	}()

	for {
		if vm.MaxSteps > 0 && vm.steps >= vm.MaxSteps {
			return nil, vm.fail(f, ErrStepLimit)
		}
		vm.steps++
		in, ok := m.insns[f.pc]
		if !ok {
			return nil, m.verifyError(f.pc, "no instruction at this offset")
		}
		if sm := m.frames[f.pc]; sm != nil {
			f.checkFrame(sm)
		}
		next := f.pc + in.Size

		done, ret, err := vm.step(f, in, &next)
		if err != nil {
			var ee *ExecError
			if errors.As(err, &ee) {
				return nil, err
			}
			return nil, vm.fail(f, err)
		}
		if done {
			return ret, nil
		}
		f.pc = next
	}
}

func (vm *VM) fail(f *frame, err error) error {
	return &ExecError{Class: f.m.class.Name, Method: f.m.info.Name, PC: f.pc, Err: err}
}

// step executes one instruction. It returns done with the method result
// on a return instruction and may redirect next for branches.
func (vm *VM) step(f *frame, in classfile.Instruction, next *int) (done bool, result Value, err error) {
	pool := f.m.class.File.Pool
	op := in.Op

	switch {
	case op >= classfile.IconstM1 && op <= classfile.Iconst5, op == classfile.Bipush, op == classfile.Sipush:
		f.push(in.Value)
		return false, nil, nil
	case op == classfile.Iload || op == classfile.Aload ||
		op >= classfile.Iload0 && op < classfile.Iload0+4 ||
		op >= classfile.Aload0 && op < classfile.Aload0+4:
		f.push(f.local(in.Local))
		return false, nil, nil
	case op == classfile.Istore || op == classfile.Astore ||
		op >= classfile.Istore0 && op < classfile.Istore0+4 ||
		op >= classfile.Astore0 && op < classfile.Astore0+4:
		f.setLocal(in.Local, f.pop())
		return false, nil, nil
	case op >= classfile.Ifeq && op <= classfile.Ifle:
		if compareZero(op, f.popInt()) {
			*next = in.Target
		}
		return false, nil, nil
	case op >= classfile.IfIcmpeq && op <= classfile.IfIcmple:
		b := f.popInt()
		a := f.popInt()
		if compareInts(op, a, b) {
			*next = in.Target
		}
		return false, nil, nil
	}

	switch op {
	case classfile.AconstNull:
		f.push(nil)
	case classfile.Ldc, classfile.LdcW:
		c, err := pool.Entry(in.Index)
		if err != nil {
			return false, nil, fmt.Errorf("%w: %v", ErrVerify, err)
		}
		switch c.Tag {
		case classfile.TagInteger:
			f.push(c.Int)
		case classfile.TagString:
			s, err := pool.Utf8(c.A)
			if err != nil {
				return false, nil, fmt.Errorf("%w: %v", ErrVerify, err)
			}
			f.push(s)
		default:
			return false, nil, fmt.Errorf("%w: ldc of %s constant", ErrVerify, c.Tag)
		}

	case classfile.Iaload, classfile.Baload, classfile.Aaload:
		idx := f.popInt()
		a, err := arrayOperand(f.pop(), idx)
		if err != nil {
			return false, nil, err
		}
		f.push(a.Elems[idx])
	case classfile.Iastore, classfile.Bastore, classfile.Aastore:
		v := f.pop()
		idx := f.popInt()
		a, err := arrayOperand(f.pop(), idx)
		if err != nil {
			return false, nil, err
		}
		if op == classfile.Bastore {
			b, ok := v.(int32)
			if !ok {
				return false, nil, fmt.Errorf("%w: bastore of %T", ErrVerify, v)
			}
			v = b & 1
		}
		a.Elems[idx] = v
	case classfile.Arraylength:
		a, ok := f.pop().(*Array)
		if !ok || a == nil {
			return false, nil, ErrNullPointer
		}
		f.push(int32(len(a.Elems)))

	case classfile.Pop:
		f.pop()
	case classfile.Dup:
		v := f.pop()
		f.push(v)
		f.push(v)
	case classfile.Swap:
		vals := f.popN(2)
		f.push(vals[1])
		f.push(vals[0])

	case classfile.Iadd, classfile.Isub, classfile.Imul, classfile.Idiv, classfile.Irem:
		b := f.popInt()
		a := f.popInt()
		v, err := arith(op, a, b)
		if err != nil {
			return false, nil, err
		}
		f.push(v)
	case classfile.Ineg:
		f.push(-f.popInt())

	case classfile.IfAcmpeq, classfile.IfAcmpne:
		vals := f.popN(2)
		if (vals[0] == vals[1]) == (op == classfile.IfAcmpeq) {
			*next = in.Target
		}
	case classfile.Goto:
		*next = in.Target

	case classfile.Return:
		return true, nil, nil
	case classfile.Ireturn, classfile.Areturn:
		return true, f.pop(), nil

	case classfile.Getstatic, classfile.Putstatic, classfile.Getfield, classfile.Putfield:
		return false, nil, vm.fieldAccess(f, op, in.Index)
	case classfile.Invokestatic, classfile.Invokevirtual, classfile.Invokespecial:
		return false, nil, vm.invoke(f, op, in.Index)

	case classfile.New:
		name, err := pool.ClassNameAt(in.Index)
		if err != nil {
			return false, nil, fmt.Errorf("%w: %v", ErrVerify, err)
		}
		obj, err := vm.allocate(name)
		if err != nil {
			return false, nil, err
		}
		f.push(obj)
	case classfile.Newarray:
		n := f.popInt()
		elem := "I"
		if in.Value == int32(classfile.TBoolean) {
			elem = "Z"
		}
		a, err := newArray("["+elem, []int32{n})
		if err != nil {
			return false, nil, err
		}
		f.push(a)
	case classfile.Anewarray:
		name, err := pool.ClassNameAt(in.Index)
		if err != nil {
			return false, nil, fmt.Errorf("%w: %v", ErrVerify, err)
		}
		if !strings.HasPrefix(name, "[") {
			name = "L" + name + ";"
		}
		a, err := newArray("["+name, []int32{f.popInt()})
		if err != nil {
			return false, nil, err
		}
		f.push(a)
	case classfile.Multianewarray:
		desc, err := pool.ClassNameAt(in.Index)
		if err != nil {
			return false, nil, fmt.Errorf("%w: %v", ErrVerify, err)
		}
		counts := make([]int32, in.Dims)
		for i := len(counts) - 1; i >= 0; i-- {
			counts[i] = f.popInt()
		}
		a, err := newArray(desc, counts)
		if err != nil {
			return false, nil, err
		}
		f.push(a)
	}
	return false, nil, nil
}

func arrayOperand(v Value, idx int32) (*Array, error) {
	a, ok := v.(*Array)
	if !ok || a == nil {
		return nil, ErrNullPointer
	}
	if idx < 0 || int(idx) >= len(a.Elems) {
		return nil, fmt.Errorf("%w: Index %d out of bounds for length %d", ErrIndex, idx, len(a.Elems))
	}
	return a, nil
}

func arith(op classfile.Opcode, a, b int32) (int32, error) {
	switch op {
	case classfile.Iadd:
		return a + b, nil
	case classfile.Isub:
		return a - b, nil
	case classfile.Imul:
		return a * b, nil
	case classfile.Idiv:
		if b == 0 {
			return 0, ErrArithmetic
		}
		return a / b, nil
	}
	if b == 0 {
		return 0, ErrArithmetic
	}
	return a % b, nil
}

func compareZero(op classfile.Opcode, v int32) bool {
	switch op {
	case classfile.Ifeq:
		return v == 0
	case classfile.Ifne:
		return v != 0
	case classfile.Iflt:
		return v < 0
	case classfile.Ifge:
		return v >= 0
	case classfile.Ifgt:
		return v > 0
	}
	return v <= 0
}

func compareInts(op classfile.Opcode, a, b int32) bool {
	switch op {
	case classfile.IfIcmpeq:
		return a == b
	case classfile.IfIcmpne:
		return a != b
	case classfile.IfIcmplt:
		return a < b
	case classfile.IfIcmpge:
		return a >= b
	case classfile.IfIcmpgt:
		return a > b
	}
	return a <= b
}
