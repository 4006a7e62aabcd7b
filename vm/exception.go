package vm

import (
	"errors"
	"fmt"
)

// Java exceptions raised by executed code, and verification failures the
// interpreter detects.
var (
	ErrVerify        = errors.New("java.lang.VerifyError")
	ErrNoClass       = errors.New("java.lang.NoClassDefFoundError")
	ErrNoMethod      = errors.New("java.lang.NoSuchMethodError")
	ErrNoField       = errors.New("java.lang.NoSuchFieldError")
	ErrNullPointer   = errors.New("java.lang.NullPointerException")
	ErrIndex         = errors.New("java.lang.ArrayIndexOutOfBoundsException")
	ErrNegativeSize  = errors.New("java.lang.NegativeArraySizeException")
	ErrArithmetic    = errors.New("java.lang.ArithmeticException: / by zero")
	ErrInputMismatch = errors.New("java.util.InputMismatchException")
	ErrNoInput       = errors.New("java.util.NoSuchElementException")
	ErrStackOverflow = errors.New("java.lang.StackOverflowError")
	ErrStepLimit     = errors.New("step limit exceeded")
	ErrClassCast     = errors.New("java.lang.ClassCastException")
)

// ExecError locates a failure inside a method.
type ExecError struct {
	Class  string
	Method string
	PC     int
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s.%s@%d: %v", e.Class, e.Method, e.PC, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
