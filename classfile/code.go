package classfile

import (
	"fmt"
	"math"
	"sort"
)

// Label is an opaque jump target handed out by Code.NewLabel.
type Label struct{ id int }

// Valid reports whether l was allocated by a Code.
func (l Label) Valid() bool { return l.id > 0 }

type labelState struct {
	defined  bool
	offset   int
	frame    *Frame
	seq      int    // archive order, later wins at a shared offset
	targeted bool   // some emitted jump refers to it
	jumpSite *Frame // frame at the first forward jump
}

// Code is the instruction stream of one method body. Emitters write the
// instruction bytes and apply the instruction's effect to the live frame.
// Jumps write a placeholder that Encode resolves.
//
// Instructions emitted while control cannot reach the current offset (after
// goto or return, before a jump target is marked) are dropped.
type Code struct {
	pool   *ConstantPool
	buf    Buffer
	frame  *Frame
	result Type // method return type, nil for void

	maxStack  int
	maxLocals int
	nextLocal int
	declared  []Type

	labels    []labelState
	jumps     map[int]Label
	archived  int
	reachable bool
}

// NewCode starts a method body whose local slots begin with params (the
// receiver first for instance methods).
func NewCode(pool *ConstantPool, result Type, params ...Type) *Code {
	c := &Code{
		pool:      pool,
		frame:     &Frame{},
		result:    result,
		labels:    []labelState{{}},
		jumps:     make(map[int]Label),
		reachable: true,
	}
	for _, p := range params {
		slot := c.AllocLocal(p)
		c.frame.SetLocal(slot, p)
	}
	return c
}

// Pool returns the constant pool operands are interned in.
func (c *Code) Pool() *ConstantPool { return c.pool }

// Frame returns the live frame. Callers must not modify it.
func (c *Code) Frame() *Frame { return c.frame }

// Offset is the offset the next instruction will be written at.
func (c *Code) Offset() int { return c.buf.Len() }

// Reachable reports whether control can fall through to Offset.
func (c *Code) Reachable() bool { return c.reachable }

// Result is the method's return type, nil for void.
func (c *Code) Result() Type { return c.result }

// MaxStack is the deepest operand stack reached so far.
func (c *Code) MaxStack() int { return c.maxStack }

// MaxLocals is the number of local slots in use, parameters included.
func (c *Code) MaxLocals() int { return c.maxLocals }

// ---------------------------------------------------------------------------
// Locals and labels
// ---------------------------------------------------------------------------

// AllocLocal reserves the next local slot for a value of type t. Slots are
// never reused within a method.
func (c *Code) AllocLocal(t Type) int {
	slot := c.nextLocal
	if slot > math.MaxUint16 {
		internalf("alloc local", ErrLocalIndex, "slot %d", slot)
	}
	c.nextLocal++
	c.declared = append(c.declared, t)
	if c.nextLocal > c.maxLocals {
		c.maxLocals = c.nextLocal
	}
	return slot
}

// LocalType returns the declared type of slot.
func (c *Code) LocalType(slot int) Type {
	if slot < 0 || slot >= len(c.declared) {
		internalf("local type", ErrLocalIndex, "slot %d of %d", slot, len(c.declared))
	}
	return c.declared[slot]
}

// NewLabel allocates an undefined label.
func (c *Code) NewLabel() Label {
	c.labels = append(c.labels, labelState{})
	return Label{len(c.labels) - 1}
}

func (c *Code) label(l Label) *labelState {
	if l.id <= 0 || l.id >= len(c.labels) {
		internalf("label", ErrUnresolvedLabel, "unknown label %d", l.id)
	}
	return &c.labels[l.id]
}

// Mark binds l to the current offset and archives the live frame for it.
// Code following a targeted label is reachable again; if the fall-through
// was dead the live frame becomes the frame at the first jump to l.
func (c *Code) Mark(l Label) {
	st := c.label(l)
	if st.defined {
		internalf("mark", ErrLabelRedefined, "label %d", l.id)
	}
	if !c.reachable && st.jumpSite != nil {
		c.frame = st.jumpSite.Clone()
	}
	c.archive(st)
}

// MarkFrom resets the live frame to the frame archived for ancestor, then
// binds l to the current offset with that frame. Divergent paths rejoin on
// the ancestor's shape this way without frame merging.
func (c *Code) MarkFrom(l, ancestor Label) {
	anc := c.label(ancestor)
	if !anc.defined {
		internalf("mark", ErrUnresolvedLabel, "ancestor label %d is not defined", ancestor.id)
	}
	st := c.label(l)
	if st.defined {
		internalf("mark", ErrLabelRedefined, "label %d", l.id)
	}
	c.frame = anc.frame.Clone()
	c.archive(st)
}

func (c *Code) archive(st *labelState) {
	c.archived++
	st.defined = true
	st.offset = c.Offset()
	st.seq = c.archived
	st.frame = c.frame.Clone()
	st.frame.Offset = st.offset
	c.reachable = c.reachable || st.targeted
}

// Defined reports whether l has been marked.
func (c *Code) Defined(l Label) bool { return c.label(l).defined }

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Code) push(t Type) {
	c.frame.Push(t)
	if d := c.frame.Depth(); d > c.maxStack {
		c.maxStack = d
	}
}

func (c *Code) op(op Opcode) { c.buf.WriteU1(uint8(op)) }

func (c *Code) opU2(op Opcode, v uint16) {
	c.op(op)
	c.buf.WriteU2(v)
}

// localOp encodes a load or store using the _n, narrow or wide form.
func (c *Code) localOp(op Opcode, slot int) {
	switch {
	case slot < 0 || slot > math.MaxUint16:
		internalf("local op", ErrLocalIndex, "slot %d", slot)
	case slot <= 3:
		c.op(shortForm(op) + Opcode(slot))
	case slot <= math.MaxUint8:
		c.op(op)
		c.buf.WriteU1(uint8(slot))
	default:
		c.op(Wide)
		c.opU2(op, uint16(slot))
	}
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// PushInt pushes v using the shortest encoding.
func (c *Code) PushInt(v int32) {
	if !c.reachable {
		return
	}
	switch {
	case v >= -1 && v <= 5:
		c.op(Opcode(int32(Iconst0) + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		c.op(Bipush)
		c.buf.WriteI1(int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		c.op(Sipush)
		c.buf.WriteI2(int16(v))
	default:
		c.ldc(c.pool.AddInteger(v))
		return
	}
	c.push(Int{})
}

// PushBool pushes 1 or 0.
func (c *Code) PushBool(b bool) {
	if !c.reachable {
		return
	}
	if b {
		c.op(Iconst1)
	} else {
		c.op(Iconst0)
	}
	c.push(Bool{})
}

// PushString pushes a String constant.
func (c *Code) PushString(s string) {
	if !c.reachable {
		return
	}
	c.ldc(c.pool.AddString(s))
}

// Ldc pushes the Integer or String constant at idx.
func (c *Code) Ldc(idx uint16) {
	if !c.reachable {
		return
	}
	c.ldc(idx)
}

func (c *Code) ldc(idx uint16) {
	t, err := c.pool.OperandType(idx)
	if err != nil {
		internal("ldc", err)
	}
	if idx <= math.MaxUint8 {
		c.op(Ldc)
		c.buf.WriteU1(uint8(idx))
	} else {
		c.opU2(LdcW, idx)
	}
	c.push(t)
}

func (c *Code) AconstNull() {
	if !c.reachable {
		return
	}
	c.op(AconstNull)
	c.push(Null{})
}

// ---------------------------------------------------------------------------
// Locals
// ---------------------------------------------------------------------------

// Load pushes local slot, choosing iload or aload from its declared type.
func (c *Code) Load(slot int) {
	if !c.reachable {
		return
	}
	t := c.frame.Local(slot)
	if t == nil {
		internalf("load", ErrLocalIndex, "slot %d is not initialized", slot)
	}
	if IsReference(t) {
		c.localOp(Aload, slot)
	} else {
		c.localOp(Iload, slot)
	}
	c.push(t)
}

// Store pops into local slot.
func (c *Code) Store(slot int) {
	if !c.reachable {
		return
	}
	t := c.LocalType(slot)
	c.frame.Pop()
	if IsReference(t) {
		c.localOp(Astore, slot)
	} else {
		c.localOp(Istore, slot)
	}
	c.frame.SetLocal(slot, t)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func (c *Code) arrayOperand(op string, depth int) Array {
	t := c.frame.Peek(depth)
	a, ok := t.(Array)
	if !ok {
		internalf(op, ErrStackUnderflow, "expected array on stack, found %s", t)
	}
	return a
}

func elementOps(elem Type) (load, store Opcode) {
	switch elem.(type) {
	case Int:
		return Iaload, Iastore
	case Bool:
		return Baload, Bastore
	}
	return Aaload, Aastore
}

// ArrayLoad pops index and array and pushes the element.
func (c *Code) ArrayLoad() {
	if !c.reachable {
		return
	}
	a := c.arrayOperand("array load", 1)
	load, _ := elementOps(a.Elem)
	c.op(load)
	c.frame.PopN(2)
	c.push(a.Elem)
}

// ArrayStore pops value, index and array.
func (c *Code) ArrayStore() {
	if !c.reachable {
		return
	}
	a := c.arrayOperand("array store", 2)
	_, store := elementOps(a.Elem)
	c.op(store)
	c.frame.PopN(3)
}

func (c *Code) ArrayLength() {
	if !c.reachable {
		return
	}
	c.arrayOperand("arraylength", 0)
	c.op(Arraylength)
	c.frame.Pop()
	c.push(Int{})
}

// NewArray pops a count and pushes a one-dimensional array of elem.
// Primitive elements use newarray, references anewarray.
func (c *Code) NewArray(elem Type) {
	if !c.reachable {
		return
	}
	switch elem.(type) {
	case Int:
		c.op(Newarray)
		c.buf.WriteU1(TInt)
	case Bool:
		c.op(Newarray)
		c.buf.WriteU1(TBoolean)
	default:
		c.opU2(Anewarray, c.pool.AddClassType(elem))
	}
	c.frame.Pop()
	c.push(Array{elem})
}

// MultiNewArray pops dims counts and pushes an array of type t.
func (c *Code) MultiNewArray(t Type, dims int) {
	if !c.reachable {
		return
	}
	if dims < 1 || dims > math.MaxUint8 {
		internalf("multianewarray", ErrStackUnderflow, "bad dimension count %d", dims)
	}
	c.opU2(Multianewarray, c.pool.AddClassType(t))
	c.buf.WriteU1(uint8(dims))
	c.frame.PopN(dims)
	c.push(t)
}

// ---------------------------------------------------------------------------
// Stack and arithmetic
// ---------------------------------------------------------------------------

func (c *Code) Pop() {
	if !c.reachable {
		return
	}
	c.op(Pop)
	c.frame.Pop()
}

func (c *Code) Dup() {
	if !c.reachable {
		return
	}
	c.op(Dup)
	c.push(c.frame.Peek(0))
}

func (c *Code) Swap() {
	if !c.reachable {
		return
	}
	c.op(Swap)
	vals := c.frame.PopN(2)
	c.push(vals[1])
	c.push(vals[0])
}

// Arith emits a binary int instruction (iadd, isub, imul, idiv, irem).
func (c *Code) Arith(op Opcode) {
	if !c.reachable {
		return
	}
	switch op {
	case Iadd, Isub, Imul, Idiv, Irem:
	default:
		internalf("arith", ErrStackUnderflow, "%s is not a binary int instruction", op)
	}
	c.op(op)
	c.frame.PopN(2)
	c.push(Int{})
}

func (c *Code) Neg() {
	if !c.reachable {
		return
	}
	c.op(Ineg)
	c.frame.Pop()
	c.push(Int{})
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Jump emits a conditional or unconditional branch to l. Conditional
// branches pop their operands (one for ifXX, two for if_icmpXX and
// if_acmpXX); goto leaves control unreachable.
func (c *Code) Jump(op Opcode, l Label) {
	if !c.reachable {
		return
	}
	switch {
	case op >= Ifeq && op <= Ifle:
		c.frame.Pop()
	case op >= IfIcmpeq && op <= IfAcmpne:
		c.frame.PopN(2)
	case op == Goto:
	default:
		internalf("jump", ErrUnresolvedLabel, "%s is not a branch", op)
	}
	st := c.label(l)
	if !st.defined && st.jumpSite == nil {
		st.jumpSite = c.frame.Clone()
	}
	st.targeted = true
	c.jumps[c.Offset()] = l
	c.opU2(op, 0)
	if op == Goto {
		c.reachable = false
	}
}

func (c *Code) Goto(l Label) { c.Jump(Goto, l) }

// ReturnValue emits the return instruction matching the method's result
// type and pops the result when there is one.
func (c *Code) ReturnValue() {
	if !c.reachable {
		return
	}
	switch {
	case c.result == nil:
		c.op(Return)
	case IsReference(c.result):
		c.op(Areturn)
		c.frame.Pop()
	default:
		c.op(Ireturn)
		c.frame.Pop()
	}
	c.reachable = false
}

// ---------------------------------------------------------------------------
// Fields, methods and objects
// ---------------------------------------------------------------------------

func (c *Code) fieldType(op string, idx uint16) Type {
	t, err := c.pool.OperandType(idx)
	if err != nil {
		internal(op, err)
	}
	return t
}

func (c *Code) GetStatic(idx uint16) {
	if !c.reachable {
		return
	}
	t := c.fieldType("getstatic", idx)
	c.opU2(Getstatic, idx)
	c.push(t)
}

func (c *Code) PutStatic(idx uint16) {
	if !c.reachable {
		return
	}
	c.fieldType("putstatic", idx)
	c.opU2(Putstatic, idx)
	c.frame.Pop()
}

func (c *Code) GetField(idx uint16) {
	if !c.reachable {
		return
	}
	t := c.fieldType("getfield", idx)
	c.opU2(Getfield, idx)
	c.frame.Pop()
	c.push(t)
}

func (c *Code) PutField(idx uint16) {
	if !c.reachable {
		return
	}
	c.fieldType("putfield", idx)
	c.opU2(Putfield, idx)
	c.frame.PopN(2)
}

func (c *Code) invoke(op Opcode, idx uint16, receiver bool) {
	if !c.reachable {
		return
	}
	m, err := c.pool.MethodAt(idx)
	if err != nil {
		internal(op.String(), err)
	}
	n := len(m.Params)
	if receiver {
		n++
	}
	c.opU2(op, idx)
	c.frame.PopN(n)
	if m.Return != nil {
		c.push(m.Return)
	}
}

func (c *Code) InvokeStatic(idx uint16)  { c.invoke(Invokestatic, idx, false) }
func (c *Code) InvokeVirtual(idx uint16) { c.invoke(Invokevirtual, idx, true) }
func (c *Code) InvokeSpecial(idx uint16) { c.invoke(Invokespecial, idx, true) }

// New pushes an uninitialized instance of class; pair with dup and
// invokespecial <init>.
func (c *Code) New(class string) {
	if !c.reachable {
		return
	}
	c.opU2(New, c.pool.AddClass(class))
	c.push(Reference{class})
}

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

// backpatch resolves every pending jump in place.
func (c *Code) backpatch() error {
	for at, l := range c.jumps {
		st := c.label(l)
		if !st.defined {
			return &InternalError{Op: "backpatch", Err: fmt.Errorf("%w: label %d (jump at %d)", ErrUnresolvedLabel, l.id, at)}
		}
		rel := st.offset - at
		if rel < math.MinInt16 || rel > math.MaxInt16 {
			return &InternalError{Op: "backpatch", Err: fmt.Errorf("%w: %d", ErrJumpOutOfRange, rel)}
		}
		c.buf.PutU2(at+1, uint16(int16(rel)))
	}
	return nil
}

// StackMapFrames returns the frames the verifier needs: one per offset that
// is the target of an emitted jump, taken from the label archived last at
// that offset. Frames are ordered by offset.
func (c *Code) StackMapFrames() []*Frame {
	targets := make(map[int]bool)
	for _, l := range c.jumps {
		if st := c.label(l); st.defined {
			targets[st.offset] = true
		}
	}
	best := make(map[int]*labelState)
	for i := range c.labels {
		st := &c.labels[i]
		if !st.defined || !targets[st.offset] || st.offset >= c.Offset() {
			continue
		}
		if cur, ok := best[st.offset]; !ok || st.seq > cur.seq {
			best[st.offset] = st
		}
	}
	frames := make([]*Frame, 0, len(best))
	for _, st := range best {
		frames = append(frames, st.frame)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Offset < frames[j].Offset })
	return frames
}

// Bytes returns the resolved instruction bytes.
func (c *Code) Bytes() ([]byte, error) {
	if err := c.backpatch(); err != nil {
		return nil, err
	}
	return c.buf.Bytes(), nil
}

// Name implements Attribute.
func (c *Code) Name() string { return "Code" }

// Encode implements Attribute. It produces max_stack, max_locals, the
// resolved code, an empty exception table and a nested StackMapTable.
func (c *Code) Encode(pool *ConstantPool) ([]byte, error) {
	code, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	if len(code) > math.MaxUint16 {
		return nil, &InternalError{Op: "encode code", Err: fmt.Errorf("%w: %d bytes", ErrCodeTooLarge, len(code))}
	}
	var w Buffer
	w.WriteU2(uint16(c.maxStack))
	w.WriteU2(uint16(c.maxLocals))
	w.WriteU4(uint32(len(code)))
	w.Write(code)
	w.WriteU2(0) // exception_table_length
	smt := &StackMapTable{Frames: c.StackMapFrames()}
	w.WriteU2(1)
	if err := WriteAttribute(&w, pool, smt); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
