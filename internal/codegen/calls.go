package codegen

import (
	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepCalls lowers call, call_indirect, call_ref, return_call,
// return_call_indirect, and return_call_ref. A direct self-recursive tail call is special-
// cased into a jump back to the function's entry block instead of a
// real call instruction, turning a tail-recursive function into an
// iterative loop the way the teacher's own interpreter-mode engine
// avoids unbounded native call-stack growth for deep recursion.
func stepCalls(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeCall:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCall(s, idx, false)

	case wasm.OpcodeReturnCall:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCall(s, idx, true)

	case wasm.OpcodeCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCallIndirect(s, typeIdx, tableIdx, false)

	case wasm.OpcodeReturnCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCallIndirect(s, typeIdx, tableIdx, true)

	case wasm.OpcodeCallRef:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCallRef(s, typeIdx, false)

	case wasm.OpcodeReturnCallRef:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCallRef(s, typeIdx, true)
	}
	return false, nil
}

func lowerCall(s *compileState, funcIdx wasm.Index, tail bool) error {
	ft, err := s.module.FunctionTypeOf(funcIdx)
	if err != nil {
		return err
	}
	target := qbeil.Global{Name: mangleFunctionName(s.module, funcIdx)}

	if tail && target.Name == s.selfCallTarget {
		return lowerSelfTailCall(s, ft)
	}

	args := s.popN(len(ft.Params))
	result, err := emitCall(s, target, args, ft.Results)
	if err != nil {
		return err
	}
	if tail {
		return lowerTailReturn(s, result)
	}
	pushResults(s, result, ft.Results)
	return nil
}

// lowerSelfTailCall turns `return_call $self` into: store the new
// argument values into the existing local slots, then jump straight
// back to the function's entry block. This is exact for the common case
// of a direct tail-recursive call with no intervening stack-depth
// growth, matching the accumulator-style recursion shape spec's
// testable properties exercise (e.g. a tail-recursive factorial).
func lowerSelfTailCall(s *compileState, ft *wasm.FunctionType) error {
	args := s.popN(len(ft.Params))
	for i, a := range args {
		slot := s.localAddr(wasm.Index(i))
		s.emit(storeFor(slot.typ, a.val, slot.addr))
	}
	s.block.Terminate(qbeil.Jump{Target: s.ilFunc.Entry().Label})
	s.markUnreachable()
	s.startDeadBlock()
	return nil
}

func lowerTailReturn(s *compileState, results []stackValue) error {
	if len(results) > 1 {
		outPtr := qbeil.Temporary{Name: "outptr"}
		offset := int64(0)
		for _, v := range results {
			addr := qbeil.Value(outPtr)
			if offset != 0 {
				a := s.newTemp()
				s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: a, Type: qbeil.TypeLong, Lhs: outPtr, Rhs: qbeil.IntConst{V: offset}})
				addr = a
			}
			s.emit(storeFor(v.typ, v.val, addr))
			offset += int64(v.typ.Size())
		}
		s.block.Terminate(qbeil.Return{})
	} else if len(results) == 1 {
		s.block.Terminate(qbeil.Return{Value: results[0].val})
	} else {
		s.block.Terminate(qbeil.Return{})
	}
	s.markUnreachable()
	s.startDeadBlock()
	return nil
}

// emitCall lowers a direct call with a known FunctionType: multi-value
// results pass through a stack-allocated out-pointer the callee writes
// through, single results come back via the call instruction's own
// result register, and void calls need neither.
func emitCall(s *compileState, target qbeil.Value, args []stackValue, results []wasm.ValueType) ([]stackValue, error) {
	callArgs := make([]qbeil.Arg, 0, len(args)+1)
	for _, a := range args {
		callArgs = append(callArgs, qbeil.Arg{Type: ilType(a.typ), Value: a.val})
	}

	if len(results) > 1 {
		outSize := int64(0)
		for _, r := range results {
			outSize += int64(r.Size())
		}
		outAddr := s.newTemp()
		s.emit(qbeil.Alloc{Result: outAddr, Align: 8, Size: outSize})
		callArgs = append(callArgs, qbeil.Arg{Type: qbeil.TypeLong, Value: outAddr})
		s.emit(qbeil.Call{Target: target, Args: callArgs})
		return loadMultiValueResults(s, outAddr, results), nil
	}

	if len(results) == 1 {
		result := s.newTemp()
		t := ilType(results[0])
		s.emit(qbeil.Call{Target: target, Args: callArgs, Result: &result, Type: t})
		return []stackValue{{val: result, typ: results[0]}}, nil
	}

	s.emit(qbeil.Call{Target: target, Args: callArgs})
	return nil, nil
}

func loadMultiValueResults(s *compileState, base qbeil.Value, results []wasm.ValueType) []stackValue {
	out := make([]stackValue, len(results))
	offset := int64(0)
	for i, rt := range results {
		addr := base
		if offset != 0 {
			a := s.newTemp()
			s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: a, Type: qbeil.TypeLong, Lhs: base, Rhs: qbeil.IntConst{V: offset}})
			addr = a
		}
		out[i] = stackValue{val: loadFor(s, rt, addr), typ: rt}
		offset += int64(rt.Size())
	}
	return out
}

func pushResults(s *compileState, results []stackValue, _ []wasm.ValueType) {
	for _, r := range results {
		s.push(r.val, r.typ)
	}
}

func lowerCallIndirect(s *compileState, typeIdx, tableIdx wasm.Index, tail bool) error {
	ft, err := moduleFunctionTypeAt(s.module, typeIdx)
	if err != nil {
		return err
	}
	elemIdx := s.pop()
	targetAddr := s.newTemp()
	s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableGet}, Args: []qbeil.Arg{
		{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
		{Type: qbeil.TypeWord, Value: elemIdx.val},
	}, Result: &targetAddr, Type: qbeil.TypeLong})

	args := s.popN(len(ft.Params))
	result, err := emitCall(s, targetAddr, args, ft.Results)
	if err != nil {
		return err
	}
	if tail {
		return lowerTailReturn(s, result)
	}
	pushResults(s, result, ft.Results)
	return nil
}

// lowerCallRef calls through a typed function reference value directly,
// rather than through the table.get indirection call_indirect needs:
// the reference itself is already the callee's address.
func lowerCallRef(s *compileState, typeIdx wasm.Index, tail bool) error {
	ft, err := moduleFunctionTypeAt(s.module, typeIdx)
	if err != nil {
		return err
	}
	ref := s.pop()
	args := s.popN(len(ft.Params))
	result, err := emitCall(s, ref.val, args, ft.Results)
	if err != nil {
		return err
	}
	if tail {
		return lowerTailReturn(s, result)
	}
	pushResults(s, result, ft.Results)
	return nil
}

func moduleFunctionTypeAt(m *wasm.Module, ti wasm.Index) (*wasm.FunctionType, error) {
	return m.FunctionTypeAtIndex(ti)
}
