package vm

import (
	"bufio"
	"fmt"
	"strings"
)

// Value is a run-time value: int32 for int and boolean, string for
// java.lang.String, *Object, *Array, a host object, or nil for null.
type Value any

// Object is an instance of a loaded class.
type Object struct {
	Class  *Class
	Fields map[string]Value
}

// Array is a JVM array. Elem is the component descriptor ("I", "Z",
// "[I", "LDemo$Point;").
type Array struct {
	Elem  string
	Elems []Value
}

// Host objects backing the java library classes generated code touches.
type (
	printStream struct{}
	inputStream struct{ r *bufio.Reader }
	scanner     struct{ in *inputStream }
)

// zeroValue is the default value of a field or array element with
// descriptor desc.
func zeroValue(desc string) Value {
	switch desc {
	case "I", "Z", "B", "C", "S":
		return int32(0)
	}
	return nil
}

// newArray builds an array of the given descriptor ("[[I") with the first
// len(counts) dimensions allocated.
func newArray(desc string, counts []int32) (Value, error) {
	if !strings.HasPrefix(desc, "[") {
		return nil, fmt.Errorf("%w: %s is not an array type", ErrVerify, desc)
	}
	if counts[0] < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeSize, counts[0])
	}
	a := &Array{Elem: desc[1:], Elems: make([]Value, counts[0])}
	for i := range a.Elems {
		if len(counts) > 1 {
			sub, err := newArray(a.Elem, counts[1:])
			if err != nil {
				return nil, err
			}
			a.Elems[i] = sub
		} else {
			a.Elems[i] = zeroValue(a.Elem)
		}
	}
	return a, nil
}

// typeName is the name Object.toString uses for v.
func typeName(v Value) string {
	switch v := v.(type) {
	case *Object:
		return strings.ReplaceAll(v.Class.Name, "/", ".")
	case *Array:
		return "[" + v.Elem
	case string:
		return "java.lang.String"
	}
	return fmt.Sprintf("%T", v)
}
