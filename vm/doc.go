// Package vm executes the class files yaplc produces.
//
// This package contains:
//   - A reference interpreter for the JVM instruction subset the code
//     generator emits
//   - Intrinsic implementations of the java.lang, java.io and java.util
//     methods generated code calls
//   - Run-time checks of the verifier metadata: max_stack, max_locals and a
//     StackMapTable frame at every branch target whose shape matches the
//     live frame
//
// It is not a JVM. It exists so tests and yaplc -run can execute programs
// without one.
package vm
