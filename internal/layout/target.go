package layout

import "bcrebuild/internal/types"

// Target describes the data layout of the machine the bytecode runs on.
type Target struct {
	Name     string // e.g. "clambc"
	PtrSize  int    // bytes
	PtrAlign int    // bytes

	// IntAlign overrides the natural alignment of integers by bit width.
	IntAlign map[types.Width]int
}

// Bytecode64 is the default target: 64-bit pointers, naturally aligned
// integers.
func Bytecode64() Target {
	return Target{
		Name:     "bytecode64",
		PtrSize:  8,
		PtrAlign: 8,
	}
}

// Bytecode32 describes a 32-bit host where i64 is only 4-byte aligned.
func Bytecode32() Target {
	return Target{
		Name:     "bytecode32",
		PtrSize:  4,
		PtrAlign: 4,
		IntAlign: map[types.Width]int{types.Width64: 4},
	}
}
