package codegen

import (
	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepTable lowers table.get/table.set (plain opcodes) plus the bulk
// memory/table operations and saturating truncations carried behind the
// 0xFC prefix. Every one of these instructions is itself a runtime
// concern (table storage layout, segment dropping, saturating float
// conversion) so each lowers to a single call into runtime.go's helper
// table rather than inline QBE arithmetic.
func stepTable(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeTableGet:
		tableIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		idx := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableGet}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
			{Type: qbeil.TypeWord, Value: idx.val},
		}, Result: &result, Type: qbeil.TypeLong})
		s.push(result, wasm.ValueTypeFuncRef)
		return true, nil

	case wasm.OpcodeTableSet:
		tableIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		v := s.pop()
		idx := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableSet}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
			{Type: qbeil.TypeWord, Value: idx.val},
			{Type: qbeil.TypeLong, Value: v.val},
		}})
		return true, nil
	}
	return false, nil
}

// stepMisc lowers the 0xFC-prefixed sub-opcode family: the 8 saturating
// truncations plus bulk memory/table copy, init, fill, grow, and size
// operations.
func stepMisc(s *compileState, r *wasm.InstrReader, miscOp wasm.Index) error {
	switch miscOp {
	case wasm.MiscI32TruncSatF32S, wasm.MiscI32TruncSatF32U,
		wasm.MiscI32TruncSatF64S, wasm.MiscI32TruncSatF64U,
		wasm.MiscI64TruncSatF32S, wasm.MiscI64TruncSatF32U,
		wasm.MiscI64TruncSatF64S, wasm.MiscI64TruncSatF64U:
		return lowerTruncSat(s, miscOp)

	case wasm.MiscMemoryInit:
		segIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, err := r.ReadU32(); err != nil { // memory index, always 0 here
			return err
		}
		n := s.pop()
		src := s.pop()
		dst := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymMemInitSeg}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(segIdx)}},
			{Type: qbeil.TypeWord, Value: dst.val}, {Type: qbeil.TypeWord, Value: src.val}, {Type: qbeil.TypeWord, Value: n.val},
		}})
		return nil

	case wasm.MiscDataDrop:
		segIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymDataDrop}, Args: []qbeil.Arg{{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(segIdx)}}}})
		return nil

	case wasm.MiscMemoryCopy:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		n := s.pop()
		src := s.pop()
		dst := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymMemCopy}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: dst.val}, {Type: qbeil.TypeWord, Value: src.val}, {Type: qbeil.TypeWord, Value: n.val},
		}})
		return nil

	case wasm.MiscMemoryFill:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		n := s.pop()
		val := s.pop()
		dst := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymMemFill}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: dst.val}, {Type: qbeil.TypeWord, Value: val.val}, {Type: qbeil.TypeWord, Value: n.val},
		}})
		return nil

	case wasm.MiscTableInit:
		elemIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		n := s.pop()
		src := s.pop()
		dst := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableInit}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(elemIdx)}},
			{Type: qbeil.TypeWord, Value: dst.val}, {Type: qbeil.TypeWord, Value: src.val}, {Type: qbeil.TypeWord, Value: n.val},
		}})
		return nil

	case wasm.MiscElemDrop:
		elemIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymElemDrop}, Args: []qbeil.Arg{{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(elemIdx)}}}})
		return nil

	case wasm.MiscTableCopy:
		dstTable, err := r.ReadU32()
		if err != nil {
			return err
		}
		srcTable, err := r.ReadU32()
		if err != nil {
			return err
		}
		n := s.pop()
		src := s.pop()
		dst := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableCopy}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(dstTable)}},
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(srcTable)}},
			{Type: qbeil.TypeWord, Value: dst.val}, {Type: qbeil.TypeWord, Value: src.val}, {Type: qbeil.TypeWord, Value: n.val},
		}})
		return nil

	case wasm.MiscTableGrow:
		tableIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		n := s.pop()
		v := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableGrow}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
			{Type: qbeil.TypeLong, Value: v.val}, {Type: qbeil.TypeWord, Value: n.val},
		}, Result: &result, Type: qbeil.TypeWord})
		s.push(result, wasm.ValueTypeI32)
		return nil

	case wasm.MiscTableSize:
		tableIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableSize}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
		}, Result: &result, Type: qbeil.TypeWord})
		s.push(result, wasm.ValueTypeI32)
		return nil

	case wasm.MiscTableFill:
		tableIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		n := s.pop()
		v := s.pop()
		dst := s.pop()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymTableFill}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tableIdx)}},
			{Type: qbeil.TypeWord, Value: dst.val}, {Type: qbeil.TypeLong, Value: v.val}, {Type: qbeil.TypeWord, Value: n.val},
		}})
		return nil
	}
	return nil
}

// lowerTruncSat lowers one of the 8 saturating float->int conversions:
// unlike the trapping plain truncation opcodes (see lowerTruncConversion
// in numeric.go), out-of-range and NaN inputs clamp to the representable
// extreme instead of trapping, which truncSatHelper's runtime
// implementation handles directly.
func lowerTruncSat(s *compileState, miscOp wasm.Index) error {
	var intWidth, floatWidth int
	var signed bool
	var resultType wasm.ValueType
	switch miscOp {
	case wasm.MiscI32TruncSatF32S:
		intWidth, floatWidth, signed, resultType = 32, 32, true, wasm.ValueTypeI32
	case wasm.MiscI32TruncSatF32U:
		intWidth, floatWidth, signed, resultType = 32, 32, false, wasm.ValueTypeI32
	case wasm.MiscI32TruncSatF64S:
		intWidth, floatWidth, signed, resultType = 32, 64, true, wasm.ValueTypeI32
	case wasm.MiscI32TruncSatF64U:
		intWidth, floatWidth, signed, resultType = 32, 64, false, wasm.ValueTypeI32
	case wasm.MiscI64TruncSatF32S:
		intWidth, floatWidth, signed, resultType = 64, 32, true, wasm.ValueTypeI64
	case wasm.MiscI64TruncSatF32U:
		intWidth, floatWidth, signed, resultType = 64, 32, false, wasm.ValueTypeI64
	case wasm.MiscI64TruncSatF64S:
		intWidth, floatWidth, signed, resultType = 64, 64, true, wasm.ValueTypeI64
	case wasm.MiscI64TruncSatF64U:
		intWidth, floatWidth, signed, resultType = 64, 64, false, wasm.ValueTypeI64
	}
	v := s.pop()
	result := s.newTemp()
	s.emit(qbeil.Call{Target: qbeil.Global{Name: truncSatHelper(intWidth, floatWidth, signed)},
		Args:   []qbeil.Arg{{Type: ilType(v.typ), Value: v.val}},
		Result: &result, Type: ilType(resultType)})
	s.push(result, resultType)
	return nil
}
