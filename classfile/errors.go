package classfile

import (
	"errors"
	"fmt"
)

// Sentinel causes for internal errors. A generator that trips one of these
// has a bug; the input program was already validated upstream.
var (
	ErrPoolOverflow     = errors.New("constant pool overflow")
	ErrUnresolvedLabel  = errors.New("jump to unresolved label")
	ErrStackUnderflow   = errors.New("operand stack underflow")
	ErrLocalIndex       = errors.New("local variable index out of range")
	ErrDuplicateMember  = errors.New("duplicate class member")
	ErrNoDescriptor     = errors.New("constant has no descriptor")
	ErrLabelRedefined   = errors.New("label already defined")
	ErrCodeTooLarge     = errors.New("code exceeds 65535 bytes")
	ErrJumpOutOfRange   = errors.New("jump offset exceeds 16 bits")
	ErrInvalidConstant  = errors.New("invalid constant pool index")
	ErrInvalidReference = errors.New("constant does not reference a member")
)

// InternalError reports a violated code-generation contract.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// internal panics with an *InternalError. Callers at the compilation
// boundary recover it with Recover.
func internal(op string, err error) {
	panic(&InternalError{Op: op, Err: err})
}

func internalf(op string, err error, format string, args ...any) {
	panic(&InternalError{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)})
}

// Recover converts a panicking *InternalError into an error stored in errp.
// Any other panic value is re-raised. Use it as
//
//	defer classfile.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*errp = ie
		return
	}
	panic(r)
}
