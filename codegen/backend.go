// Package codegen translates an analyzed program into JVM classes. The
// driver walks the ir tree and issues Backend calls in evaluation order; the
// JVM backend turns each call into instructions through package classfile.
package codegen

import "github.com/chazu/yapl/ir"

// Backend is the translation surface the driver programs against.
//
// Operands are pushed before the operation that consumes them, except for
// the short-circuit operators: Op2(ir.And) and Op2(ir.Or) are issued before
// their operands so the backend can lay out the skip labels first.
type Backend interface {
	EnterProgram(p *ir.Program)
	ExitProgram()
	EnterMainFunction()
	ExitMainFunction()
	EnterFunction(proc *ir.Procedure)
	ExitFunction()
	EnterRecord(rec *ir.RecordDecl)
	ExitRecord()

	// AllocVariable gives v storage: a static field for globals, an
	// instance field inside an open record, an initialized local slot
	// otherwise.
	AllocVariable(v *ir.Variable)

	LoadConstant(t ir.Type, value int32)
	LoadString(s string)
	LoadVar(v *ir.Variable)
	StoreVar(v *ir.Variable)
	// LoadElement and StoreElement expect array and index (and the value
	// for stores) on the stack; elem is the element type.
	LoadElement(elem ir.Type)
	StoreElement(elem ir.Type)
	// LoadField and StoreField expect the record reference (and the value
	// for stores) on the stack.
	LoadField(record string, f *ir.Variable)
	StoreField(record string, f *ir.Variable)

	// Write prints the String on top of the stack.
	Write()
	CallFunction(proc *ir.Procedure)
	Op1(op ir.Op)
	Op2(op ir.Op)

	StartBranchingBlock()
	Branch()
	ElseBranch()
	Loop()
	EndBranchingBlock()
	ReturnFromFunction()

	NewArray(elem ir.Type, dims int)
	NewRecord(rec *ir.RecordDecl)
	ArrayLength()
	Dup()
	Pop()
	// Stringify replaces the value of type t on top of the stack with its
	// String form.
	Stringify(t ir.Type)

	// SuspendChains hides the open short-circuit chains until the matching
	// ResumeChains, so booleans loaded in between are plain values.
	SuspendChains()
	ResumeChains()
	// Connect hands the boolean on top of the stack to the innermost open
	// chain as its next operand. It is a no-op outside a chain.
	Connect()
}
