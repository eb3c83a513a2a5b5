package codegen

import (
	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// memoryBase resolves the runtime-provided pointer to the start of
// linear memory memIdx's backing storage. Memory 0, overwhelmingly the
// common case, is loaded straight from the fixed pointer symbol
// __wasm_memory; any additional memory is obtained by calling
// __wasm_memory_base(mem_idx), since only memory 0 gets a dedicated
// symbol.
func memoryBase(s *compileState, memIdx wasm.Index) qbeil.Value {
	base := s.newTemp()
	if memIdx == 0 {
		s.emit(qbeil.Load{Op: qbeil.LoadL, Result: base, Type: qbeil.TypeLong, Address: qbeil.Global{Name: SymMemoryBase}})
		return base
	}
	s.emit(qbeil.Call{Target: qbeil.Global{Name: SymMemoryBaseOf}, Args: []qbeil.Arg{
		{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(memIdx)}},
	}, Result: &base, Type: qbeil.TypeLong})
	return base
}

// effectiveAddress computes base-pointer + dynamic address + static
// offset, the value every load/store instruction actually reads or
// writes through. dyn arrives as a w-typed (32-bit) WebAssembly address
// and is zero-extended to l before the pointer arithmetic, matching
// every 32-bit memory's addressing width.
func effectiveAddress(s *compileState, memIdx wasm.Index, dyn qbeil.Value, offset uint32) qbeil.Value {
	widened := s.newTemp()
	s.emit(qbeil.UnaryOp{Op: qbeil.OpExtUW, Result: widened, Type: qbeil.TypeLong, Src: dyn})

	base := s.newTemp()
	s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: base, Type: qbeil.TypeLong, Lhs: memoryBase(s, memIdx), Rhs: widened})
	if offset == 0 {
		return base
	}
	withOffset := s.newTemp()
	s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: withOffset, Type: qbeil.TypeLong, Lhs: base, Rhs: qbeil.IntConst{V: int64(offset)}})
	return withOffset
}

// stepMemory lowers every plain load/store opcode plus memory.size and
// memory.grow. Loads and stores are emitted as plain QBE load/store
// instructions through the computed address: no bounds check is emitted
// and SymTrapOutOfBounds is not called, so an out-of-range access is not
// trapped by the generated code.
func stepMemory(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeI32Load:
		return true, lowerLoad(s, r, qbeil.LoadW, wasm.ValueTypeI32)
	case wasm.OpcodeI64Load:
		return true, lowerLoad(s, r, qbeil.LoadL, wasm.ValueTypeI64)
	case wasm.OpcodeF32Load:
		return true, lowerLoad(s, r, qbeil.LoadS, wasm.ValueTypeF32)
	case wasm.OpcodeF64Load:
		return true, lowerLoad(s, r, qbeil.LoadD, wasm.ValueTypeF64)
	case wasm.OpcodeI32Load8S:
		return true, lowerLoad(s, r, qbeil.LoadSB, wasm.ValueTypeI32)
	case wasm.OpcodeI32Load8U:
		return true, lowerLoad(s, r, qbeil.LoadUB, wasm.ValueTypeI32)
	case wasm.OpcodeI32Load16S:
		return true, lowerLoad(s, r, qbeil.LoadSH, wasm.ValueTypeI32)
	case wasm.OpcodeI32Load16U:
		return true, lowerLoad(s, r, qbeil.LoadUH, wasm.ValueTypeI32)
	case wasm.OpcodeI64Load8S:
		return true, lowerLoad(s, r, qbeil.LoadSB, wasm.ValueTypeI64)
	case wasm.OpcodeI64Load8U:
		return true, lowerLoad(s, r, qbeil.LoadUB, wasm.ValueTypeI64)
	case wasm.OpcodeI64Load16S:
		return true, lowerLoad(s, r, qbeil.LoadSH, wasm.ValueTypeI64)
	case wasm.OpcodeI64Load16U:
		return true, lowerLoad(s, r, qbeil.LoadUH, wasm.ValueTypeI64)
	case wasm.OpcodeI64Load32S:
		return true, lowerLoad(s, r, qbeil.LoadSW, wasm.ValueTypeI64)
	case wasm.OpcodeI64Load32U:
		return true, lowerLoad(s, r, qbeil.LoadUW, wasm.ValueTypeI64)

	case wasm.OpcodeI32Store:
		return true, lowerStore(s, r, qbeil.StoreW)
	case wasm.OpcodeI64Store:
		return true, lowerStore(s, r, qbeil.StoreL)
	case wasm.OpcodeF32Store:
		return true, lowerStore(s, r, qbeil.StoreS)
	case wasm.OpcodeF64Store:
		return true, lowerStore(s, r, qbeil.StoreD)
	case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		return true, lowerStore(s, r, qbeil.StoreB)
	case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		return true, lowerStore(s, r, qbeil.StoreH)
	case wasm.OpcodeI64Store32:
		return true, lowerStore(s, r, qbeil.StoreW)

	case wasm.OpcodeMemorySize:
		memIdx, err := r.ReadByte()
		if err != nil {
			return true, err
		}
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymMemSizePages}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(memIdx)}},
		}, Result: &result, Type: qbeil.TypeWord})
		s.push(result, wasm.ValueTypeI32)
		return true, nil

	case wasm.OpcodeMemoryGrow:
		memIdx, err := r.ReadByte()
		if err != nil {
			return true, err
		}
		delta := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymMemGrow}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(memIdx)}},
			{Type: qbeil.TypeWord, Value: delta.val},
		}, Result: &result, Type: qbeil.TypeWord})
		s.push(result, wasm.ValueTypeI32)
		return true, nil
	}
	return false, nil
}

func lowerLoad(s *compileState, r *wasm.InstrReader, op qbeil.LoadOp, resultType wasm.ValueType) error {
	ma, err := r.ReadMemArg()
	if err != nil {
		return err
	}
	dyn := s.pop()
	// The decoder's plain MemArg carries no memory index (multi-memory
	// encodes one in the align byte's high bit, which ReadMemArg does not
	// parse), so every plain load/store addresses memory 0.
	addr := effectiveAddress(s, 0, dyn.val, ma.Offset)
	result := s.newTemp()
	s.emit(qbeil.Load{Op: op, Result: result, Type: ilType(resultType), Address: addr})
	s.push(result, resultType)
	return nil
}

func lowerStore(s *compileState, r *wasm.InstrReader, op qbeil.StoreOp) error {
	ma, err := r.ReadMemArg()
	if err != nil {
		return err
	}
	v := s.pop()
	dyn := s.pop()
	addr := effectiveAddress(s, 0, dyn.val, ma.Offset)
	s.emit(qbeil.Store{Op: op, Value: v.val, Address: addr})
	return nil
}
