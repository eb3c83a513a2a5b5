package wasm

// ValueType is the encoding byte for a WebAssembly value type. The wire
// encoding doubles as the in-memory discriminant, following the teacher's
// convention of keying types directly off their binary-format byte.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c

	// ValueTypeI8 and ValueTypeI16 are packed storage-only types: they may
	// appear as a struct field or array element storage type but never as
	// a local, parameter, or stack value type.
	ValueTypeI8  ValueType = 0x78
	ValueTypeI16 ValueType = 0x77

	ValueTypeFuncRef   ValueType = 0x70
	ValueTypeExternRef ValueType = 0x6f
	ValueTypeAnyRef    ValueType = 0x6e
	ValueTypeEqRef     ValueType = 0x6d
	ValueTypeI31Ref    ValueType = 0x6c
	ValueTypeStructRef ValueType = 0x65
	ValueTypeArrayRef  ValueType = 0x66

	ValueTypeNullFuncRef   ValueType = 0x73
	ValueTypeNullExternRef ValueType = 0x72
	ValueTypeNullRef       ValueType = 0x71
)

// IsReference reports whether v is one of the ten reference-kind value types.
func (v ValueType) IsReference() bool {
	switch v {
	case ValueTypeFuncRef, ValueTypeExternRef, ValueTypeAnyRef, ValueTypeEqRef,
		ValueTypeI31Ref, ValueTypeStructRef, ValueTypeArrayRef,
		ValueTypeNullFuncRef, ValueTypeNullExternRef, ValueTypeNullRef:
		return true
	}
	return false
}

// IsPacked reports whether v is a storage-only packed type (i8/i16).
func (v ValueType) IsPacked() bool {
	return v == ValueTypeI8 || v == ValueTypeI16
}

// Size returns the in-memory size, in bytes, of a value of this type when
// held in a local slot or register: 4 for i32/f32, 8 for i64/f64 and every
// reference type (treated uniformly as 64-bit pointers).
func (v ValueType) Size() int {
	switch v {
	case ValueTypeI32, ValueTypeF32:
		return 4
	default:
		return 8
	}
}

// String renders the WebAssembly text-format name of the type.
func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeI8:
		return "i8"
	case ValueTypeI16:
		return "i16"
	case ValueTypeFuncRef:
		return "funcref"
	case ValueTypeExternRef:
		return "externref"
	case ValueTypeAnyRef:
		return "anyref"
	case ValueTypeEqRef:
		return "eqref"
	case ValueTypeI31Ref:
		return "i31ref"
	case ValueTypeStructRef:
		return "structref"
	case ValueTypeArrayRef:
		return "arrayref"
	case ValueTypeNullFuncRef:
		return "nullfuncref"
	case ValueTypeNullExternRef:
		return "nullexternref"
	case ValueTypeNullRef:
		return "nullref"
	default:
		return "unknown"
	}
}
