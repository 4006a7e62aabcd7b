package codegen

import (
	"errors"
	"fmt"

	"github.com/chazu/yapl/classfile"
)

var (
	ErrNoMethod       = errors.New("no open method")
	ErrNoRecord       = errors.New("no open record")
	ErrUnknownVar     = errors.New("variable has no storage")
	ErrUnbalanced     = errors.New("unbalanced block or chain")
	ErrUnsupportedOp  = errors.New("unsupported operator")
	ErrUnsupportedTyp = errors.New("unsupported type")
)

// fail aborts generation; compiler.Compile recovers it with
// classfile.Recover.
func fail(op string, err error, format string, args ...any) {
	panic(&classfile.InternalError{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)})
}
