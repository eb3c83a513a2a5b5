// Package codegen lowers a validated WebAssembly module to textual QBE IL
// by walking each function body's stack-machine opcodes and building the
// corresponding block graph in package qbeil. The generator never
// executes WebAssembly; every runtime-observable behavior (traps,
// memory/table backing storage, GC allocation) is delegated to a fixed
// table of external symbols the generated IL calls into.
package codegen

// The following constants name every external symbol the generated IL
// may reference. A real runtime library provides C-compatible
// definitions for each; this compiler core only emits calls to them.
const (
	SymMemoryBase   = "__wasm_memory"
	SymTableBase    = "__wasm_table"
	SymMemoryBaseOf = "__wasm_memory_base"
	SymMemSizePages   = "__wasm_memory_size_pages"
	SymMemSizePages64 = "__wasm_memory_size_pages64"
	SymMemGrow        = "__wasm_memory_grow"
	SymMemGrow64      = "__wasm_memory_grow64"
	SymMemInitSeg     = "__wasm_memory_init_seg"
	SymDataDrop       = "__wasm_data_drop"
	SymMemCopy        = "__wasm_memory_copy"
	SymMemFill        = "__wasm_memory_fill"

	SymTableGet  = "__wasm_table_get"
	SymTableSet  = "__wasm_table_set"
	SymTableInit = "__wasm_table_init"
	SymTableCopy = "__wasm_table_copy"
	SymTableGrow = "__wasm_table_grow"
	SymTableFill = "__wasm_table_fill"
	SymTableSize = "__wasm_table_size_op"
	SymElemDrop  = "__wasm_elem_drop"

	SymTrapUnreachable      = "__wasm_trap_unreachable"
	SymTrapNullReference    = "__wasm_trap_null_reference"
	SymTrapDivByZero        = "__wasm_trap_div_by_zero"
	SymTrapIntegerOverflow  = "__wasm_trap_integer_overflow"
	SymTrapInvalidConversion = "__wasm_trap_invalid_conversion"
	SymTrapOutOfBounds       = "__wasm_trap_out_of_bounds"

	SymPushExceptionHandler = "__wasm_push_exception_handler"
	SymPopExceptionHandler  = "__wasm_pop_exception_handler"
	SymGetException         = "__wasm_get_exception"
	SymThrow                = "__wasm_throw"
	SymRethrow              = "__wasm_rethrow"

	SymStructNew         = "__wasm_struct_new"
	SymStructNewDefault  = "__wasm_struct_new_default"
	SymArrayNew          = "__wasm_array_new"
	SymArrayNewDefault   = "__wasm_array_new_default"
	SymRefI31            = "__wasm_ref_i31"
	SymRefTest           = "__wasm_ref_test"
	SymRefTestNull       = "__wasm_ref_test_null"
	SymRefCast           = "__wasm_ref_cast"
	SymRefCastNull       = "__wasm_ref_cast_null"
	SymI31GetS           = "__wasm_i31_get_s"
	SymI31GetU           = "__wasm_i31_get_u"

	// SymInitGlobalsTable is a module-level symbol listing every imported
	// global's index (see initGlobalsTable), resolving the open question of
	// how a runtime learns which globals it must repopulate before
	// calling the module's start function (see DESIGN.md).
	SymInitGlobalsTable = "__wasm_init_globals"
)

// mathHelper returns the fixed runtime symbol name for a float math
// helper, unary or binary, such as "__wasm_f32_sqrt".
func mathHelper(floatWidth int, op string) string {
	prefix := "__wasm_f32_"
	if floatWidth == 64 {
		prefix = "__wasm_f64_"
	}
	return prefix + op
}

// intHelper returns the fixed runtime symbol name for an integer helper
// such as "__wasm_i32_clz".
func intHelper(intWidth int, op string) string {
	prefix := "__wasm_i32_"
	if intWidth == 64 {
		prefix = "__wasm_i64_"
	}
	return prefix + op
}

// truncSatHelper returns the fixed runtime symbol for a saturating
// truncation conversion, e.g. "__wasm_i32_trunc_sat_f64_u".
func truncSatHelper(intWidth, floatWidth int, signed bool) string {
	sign := "u"
	if signed {
		sign = "s"
	}
	return "__wasm_i" + itoa(intWidth) + "_trunc_sat_f" + itoa(floatWidth) + "_" + sign
}

func itoa(n int) string {
	switch n {
	case 32:
		return "32"
	case 64:
		return "64"
	default:
		return "0"
	}
}
