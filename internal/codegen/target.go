package codegen

// Target names the ABI a module is compiled for. It is recorded in the
// per-function compile state, but no lowering step reads it: symbol
// mangling, exit conventions, and IL emission are the same for every
// target.
type Target string

const (
	// TargetNative names linking into a native executable alongside a
	// C-ABI runtime library: exported functions are mangled and return
	// with a plain `ret`.
	TargetNative Target = "native"
	// TargetFreestanding names bare-metal or unikernel-style linking. It
	// produces the same IL as TargetNative.
	TargetFreestanding Target = "freestanding"
)
