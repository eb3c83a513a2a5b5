package wasm

import (
	"fmt"
	"math"

	"github.com/wasmqbe/waqc/internal/leb128"
)

// ConstValue is the evaluated result of a constant expression: exactly one
// of the numeric fields is meaningful, selected by Type. A null or
// function reference is carried in RefIndex/IsNullRef rather than as a
// pointer value, since constant expressions never run host code.
type ConstValue struct {
	Type ValueType

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// RefIndex holds the function index for a ref.func result.
	RefIndex Index
	// IsNullRef is true for a ref.null result.
	IsNullRef bool
	// GlobalIndex is set instead of a literal when the expression is a
	// bare `global.get $g`, since an imported global's actual value is
	// not known until link/load time.
	GlobalIndex Index
	IsGlobalRef bool
}

// EvalConstExpr evaluates the small opcode subset legal in a constant
// expression: i32.const, i64.const, f32.const, f64.const, global.get,
// ref.null, ref.func, terminated by end. It does not evaluate arbitrary
// code and rejects anything else.
func EvalConstExpr(expr []byte) (ConstValue, error) {
	if len(expr) == 0 {
		return ConstValue{}, fmt.Errorf("empty constant expression")
	}
	op := Opcode(expr[0])
	rest := expr[1:]
	switch op {
	case OpcodeI32Const:
		v, _, err := leb128.LoadInt32(rest)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstValue{Type: ValueTypeI32, I32: v}, nil
	case OpcodeI64Const:
		v, _, err := leb128.LoadInt64(rest)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstValue{Type: ValueTypeI64, I64: v}, nil
	case OpcodeF32Const:
		if len(rest) < 4 {
			return ConstValue{}, fmt.Errorf("truncated f32.const")
		}
		bits := uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16 | uint32(rest[3])<<24
		return ConstValue{Type: ValueTypeF32, F32: math.Float32frombits(bits)}, nil
	case OpcodeF64Const:
		if len(rest) < 8 {
			return ConstValue{}, fmt.Errorf("truncated f64.const")
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(rest[i]) << (8 * i)
		}
		return ConstValue{Type: ValueTypeF64, F64: math.Float64frombits(bits)}, nil
	case OpcodeGlobalGet:
		idx, _, err := leb128.LoadUint32(rest)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstValue{IsGlobalRef: true, GlobalIndex: idx}, nil
	case OpcodeRefNull:
		if len(rest) < 1 {
			return ConstValue{}, fmt.Errorf("truncated ref.null")
		}
		return ConstValue{Type: ValueType(rest[0]), IsNullRef: true}, nil
	case OpcodeRefFunc:
		idx, _, err := leb128.LoadUint32(rest)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstValue{Type: ValueTypeFuncRef, RefIndex: idx}, nil
	default:
		return ConstValue{}, fmt.Errorf("opcode 0x%x is not valid in a constant expression", byte(op))
	}
}

// constExprResultType reports the value type an expression produces,
// resolving a global.get indirection through the module's own global and
// import sections. Used by the validator to type-check global/data/elem
// initializers without fully evaluating them.
func constExprResultType(m *Module, expr []byte) (ValueType, error) {
	cv, err := EvalConstExpr(expr)
	if err != nil {
		return 0, err
	}
	if !cv.IsGlobalRef {
		return cv.Type, nil
	}
	gt, err := globalTypeOf(m, cv.GlobalIndex)
	if err != nil {
		return 0, err
	}
	return gt.ValType, nil
}

func memoryTypeOf(m *Module, idx Index) (*MemoryType, error) {
	numImports := 0
	for _, imp := range m.ImportSection {
		if imp.Type != ExternTypeMemory {
			continue
		}
		if Index(numImports) == idx {
			return imp.DescMemory, nil
		}
		numImports++
	}
	localIdx := int(idx) - numImports
	if localIdx < 0 || localIdx >= len(m.MemorySection) {
		return nil, fmt.Errorf("memory index %d out of range", idx)
	}
	return m.MemorySection[localIdx], nil
}

func globalTypeOf(m *Module, idx Index) (*GlobalType, error) {
	numImports := 0
	for _, imp := range m.ImportSection {
		if imp.Type != ExternTypeGlobal {
			continue
		}
		if Index(numImports) == idx {
			return imp.DescGlobal, nil
		}
		numImports++
	}
	localIdx := int(idx) - numImports
	if localIdx < 0 || localIdx >= len(m.GlobalSection) {
		return nil, fmt.Errorf("global index %d out of range", idx)
	}
	return m.GlobalSection[localIdx].Type, nil
}
