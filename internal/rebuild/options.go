package rebuild

import "bcrebuild/internal/layout"

// Options configures a rebuild run.
type Options struct {
	// Target is the data layout used for sizes, offsets and strides.
	Target layout.Target

	// AllowNonUniform accepts aggregates whose leaves differ from the
	// leaf reached through element 0. Their storage is still addressed in
	// units of that first leaf.
	AllowNonUniform bool
}

// DefaultOptions returns options for the default 64-bit bytecode target.
func DefaultOptions() Options {
	return Options{Target: layout.Bytecode64()}
}
