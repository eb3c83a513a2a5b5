package codegen

import (
	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepReference lowers the plain reference-type opcodes: ref.null,
// ref.is_null, ref.func, ref.eq, ref.as_non_null, br_on_null, and
// br_on_non_null. Every reference value is carried as an opaque l-typed
// pointer (for ref.func, the address of the function's mangled symbol),
// matching ilType's uniform treatment of reference types.
func stepReference(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeRefNull:
		vt, err := r.ReadValueType()
		if err != nil {
			return true, err
		}
		s.push(qbeil.IntConst{V: 0}, vt)
		return true, nil

	case wasm.OpcodeRefIsNull:
		v := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Comparison{Op: qbeil.CmpEq, Result: result, OperandType: qbeil.TypeLong, Lhs: v.val, Rhs: qbeil.IntConst{V: 0}})
		s.push(result, wasm.ValueTypeI32)
		return true, nil

	case wasm.OpcodeRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		s.push(qbeil.Global{Name: mangleFunctionName(s.module, idx)}, wasm.ValueTypeFuncRef)
		return true, nil

	case wasm.OpcodeRefEq:
		rhs := s.pop()
		lhs := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Comparison{Op: qbeil.CmpEq, Result: result, OperandType: qbeil.TypeLong, Lhs: lhs.val, Rhs: rhs.val})
		s.push(result, wasm.ValueTypeI32)
		return true, nil

	case wasm.OpcodeRefAsNonNull:
		return true, lowerRefAsNonNull(s)

	case wasm.OpcodeBrOnNull:
		depth, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerBrOnNull(s, int(depth))

	case wasm.OpcodeBrOnNonNull:
		depth, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerBrOnNonNull(s, int(depth))
	}
	return false, nil
}

// lowerRefAsNonNull branches to a trap block when the reference is null,
// falling through with the (known non-null) reference otherwise —
// mirroring stepControl's unconditional-trap pattern but guarded by the
// null check, since unlike unreachable this trap is conditional.
func lowerRefAsNonNull(s *compileState) error {
	v := s.pop()
	isNull := s.newTemp()
	s.emit(qbeil.Comparison{Op: qbeil.CmpEq, Result: isNull, OperandType: qbeil.TypeLong, Lhs: v.val, Rhs: qbeil.IntConst{V: 0}})

	trap := s.ilFunc.NewBlock(s.newLabel("nonnull_trap"))
	cont := s.ilFunc.NewBlock(s.newLabel("nonnull_ok"))
	s.block.Terminate(qbeil.Branch{Cond: isNull, IfTrue: trap.Label, IfFalse: cont.Label})

	s.setBlock(trap)
	s.emit(qbeil.Call{Target: trapSymbol(SymTrapNullReference)})
	s.block.Terminate(qbeil.Halt{})

	s.setBlock(cont)
	s.push(v.val, v.typ)
	return nil
}

func lowerBrOnNull(s *compileState, depth int) error {
	v := s.pop()
	isNull := s.newTemp()
	s.emit(qbeil.Comparison{Op: qbeil.CmpEq, Result: isNull, OperandType: qbeil.TypeLong, Lhs: v.val, Rhs: qbeil.IntConst{V: 0}})
	// On a null ref, branch to depth with nothing extra pushed (the
	// frame's own labelTypes already account for it); otherwise fall
	// through with the (known non-null) reference back on the stack.
	if err := lowerBr(s, depth, isNull); err != nil {
		return err
	}
	s.push(v.val, v.typ)
	return nil
}

func lowerBrOnNonNull(s *compileState, depth int) error {
	v := s.pop()
	isNonNull := s.newTemp()
	s.emit(qbeil.Comparison{Op: qbeil.CmpNe, Result: isNonNull, OperandType: qbeil.TypeLong, Lhs: v.val, Rhs: qbeil.IntConst{V: 0}})
	// On a non-null ref, branch to depth carrying the reference; on the
	// fall-through (null) path the reference is dropped.
	s.push(v.val, v.typ)
	if err := lowerBr(s, depth, isNonNull); err != nil {
		return err
	}
	s.pop()
	return nil
}
