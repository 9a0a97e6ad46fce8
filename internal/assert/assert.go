//go:build !release

package assert

import "fmt"

// That panics with the formatted message if cond is false. Used for
// internal invariants that should never be violated by correct code, not
// for validating external input.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
