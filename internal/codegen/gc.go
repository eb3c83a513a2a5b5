package codegen

import (
	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepGC lowers the 0xFB-prefixed struct/array/i31/ref.test instruction
// family. None of these have a QBE-native form: every one allocates,
// inspects, or casts a GC object, so all of them go through the runtime
// allocator/accessor helpers named in runtime.go. Field offsets within a
// struct are computed the same way a local's address is: a fixed byte
// offset added to a base pointer, with every field in its own 8-byte
// slot in declaration order (see structFieldAddress).
func stepGC(s *compileState, r *wasm.InstrReader, miscOp wasm.Index) error {
	switch miscOp {
	case wasm.GCStructNew, wasm.GCStructNewDefault:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		st, err := s.module.StructTypeAt(typeIdx)
		if err != nil {
			return err
		}
		var fieldVals []stackValue
		if miscOp == wasm.GCStructNew {
			fieldVals = s.popN(len(st.Fields))
		}
		result := s.newTemp()
		sym := SymStructNew
		if miscOp == wasm.GCStructNewDefault {
			sym = SymStructNewDefault
		}
		args := []qbeil.Arg{{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(typeIdx)}}}
		for _, fv := range fieldVals {
			args = append(args, qbeil.Arg{Type: ilType(fv.typ), Value: fv.val})
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: sym}, Args: args, Result: &result, Type: qbeil.TypeLong})
		s.push(result, wasm.ValueTypeStructRef)
		return nil

	case wasm.GCStructGet, wasm.GCStructGetS, wasm.GCStructGetU:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		fieldIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		st, err := s.module.StructTypeAt(typeIdx)
		if err != nil {
			return err
		}
		ref := s.pop()
		addr := structFieldAddress(s, ref.val, st, fieldIdx)
		field := st.Fields[fieldIdx]
		result := s.newTemp()
		s.emit(qbeil.Load{Op: fieldLoadOp(field, miscOp), Result: result, Type: fieldILType(field), Address: addr})
		s.push(result, fieldValueType(field))
		return nil

	case wasm.GCStructSet:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		fieldIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		st, err := s.module.StructTypeAt(typeIdx)
		if err != nil {
			return err
		}
		v := s.pop()
		ref := s.pop()
		addr := structFieldAddress(s, ref.val, st, fieldIdx)
		s.emit(storeFor(v.typ, v.val, addr))
		return nil

	case wasm.GCArrayNew, wasm.GCArrayNewDefault:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		var initVal stackValue
		if miscOp == wasm.GCArrayNew {
			initVal = s.pop()
		}
		length := s.pop()
		result := s.newTemp()
		sym := SymArrayNew
		if miscOp == wasm.GCArrayNewDefault {
			sym = SymArrayNewDefault
		}
		args := []qbeil.Arg{{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(typeIdx)}}, {Type: qbeil.TypeWord, Value: length.val}}
		if miscOp == wasm.GCArrayNew {
			args = append(args, qbeil.Arg{Type: ilType(initVal.typ), Value: initVal.val})
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: sym}, Args: args, Result: &result, Type: qbeil.TypeLong})
		s.push(result, wasm.ValueTypeArrayRef)
		return nil

	case wasm.GCArrayGet, wasm.GCArrayGetS, wasm.GCArrayGetU:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		at, err := s.module.ArrayTypeAt(typeIdx)
		if err != nil {
			return err
		}
		idx := s.pop()
		ref := s.pop()
		addr := arrayElementAddress(s, ref.val, at, idx.val)
		result := s.newTemp()
		s.emit(qbeil.Load{Op: fieldLoadOp(at.Element, miscOp), Result: result, Type: fieldILType(at.Element), Address: addr})
		s.push(result, fieldValueType(at.Element))
		return nil

	case wasm.GCArraySet:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		at, err := s.module.ArrayTypeAt(typeIdx)
		if err != nil {
			return err
		}
		v := s.pop()
		idx := s.pop()
		ref := s.pop()
		addr := arrayElementAddress(s, ref.val, at, idx.val)
		s.emit(storeFor(v.typ, v.val, addr))
		return nil

	case wasm.GCArrayLen:
		ref := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Load{Op: qbeil.LoadW, Result: result, Type: qbeil.TypeWord, Address: ref.val})
		s.push(result, wasm.ValueTypeI32)
		return nil

	case wasm.GCRefTest, wasm.GCRefTestNull:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		ref := s.pop()
		result := s.newTemp()
		sym := SymRefTest
		if miscOp == wasm.GCRefTestNull {
			sym = SymRefTestNull
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: sym}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(typeIdx)}}, {Type: qbeil.TypeLong, Value: ref.val},
		}, Result: &result, Type: qbeil.TypeWord})
		s.push(result, wasm.ValueTypeI32)
		return nil

	case wasm.GCRefCast, wasm.GCRefCastNull:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		ref := s.pop()
		result := s.newTemp()
		sym := SymRefCast
		if miscOp == wasm.GCRefCastNull {
			sym = SymRefCastNull
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: sym}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(typeIdx)}}, {Type: qbeil.TypeLong, Value: ref.val},
		}, Result: &result, Type: qbeil.TypeLong})
		s.push(result, wasm.ValueTypeStructRef)
		return nil

	case wasm.GCRefI31:
		v := s.pop()
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymRefI31}, Args: []qbeil.Arg{{Type: qbeil.TypeWord, Value: v.val}}, Result: &result, Type: qbeil.TypeLong})
		s.push(result, wasm.ValueTypeI31Ref)
		return nil

	case wasm.GCI31GetS, wasm.GCI31GetU:
		ref := s.pop()
		sym := SymI31GetS
		if miscOp == wasm.GCI31GetU {
			sym = SymI31GetU
		}
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: sym}, Args: []qbeil.Arg{{Type: qbeil.TypeLong, Value: ref.val}}, Result: &result, Type: qbeil.TypeWord})
		s.push(result, wasm.ValueTypeI32)
		return nil
	}
	return nil
}

// structFieldAddress computes the address of field fieldIdx within the
// object ref points at. A struct is a contiguous region of 8-byte field
// slots, field i at offset i*8, with no allocator header — the layout
// __wasm_struct_new/__wasm_struct_new_default allocate to.
func structFieldAddress(s *compileState, ref qbeil.Value, st *wasm.StructType, fieldIdx wasm.Index) qbeil.Value {
	addr := s.newTemp()
	s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: addr, Type: qbeil.TypeLong, Lhs: ref, Rhs: qbeil.IntConst{V: int64(fieldIdx) * 8}})
	return addr
}

// arrayElementAddress computes the address of element idx in the array
// ref points at. An array is a 4-byte length header followed by 8-byte
// element slots — the layout __wasm_array_new/__wasm_array_new_default
// allocate to; array.len reads the same 4-byte header at offset 0.
func arrayElementAddress(s *compileState, ref qbeil.Value, at *wasm.ArrayType, idx qbeil.Value) qbeil.Value {
	scaled := s.newTemp()
	s.emit(qbeil.BinaryOp{Op: qbeil.OpMul, Result: scaled, Type: qbeil.TypeLong, Lhs: idx, Rhs: qbeil.IntConst{V: 8}})
	base := s.newTemp()
	s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: base, Type: qbeil.TypeLong, Lhs: ref, Rhs: qbeil.IntConst{V: 4}})
	addr := s.newTemp()
	s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: addr, Type: qbeil.TypeLong, Lhs: base, Rhs: scaled})
	return addr
}

func fieldILType(f wasm.FieldType) qbeil.Type {
	switch f.StorageValueType {
	case wasm.ValueTypeI8, wasm.ValueTypeI16:
		return qbeil.TypeWord
	default:
		return ilType(f.StorageValueType)
	}
}

func fieldValueType(f wasm.FieldType) wasm.ValueType {
	switch f.StorageValueType {
	case wasm.ValueTypeI8, wasm.ValueTypeI16:
		return wasm.ValueTypeI32
	default:
		return f.StorageValueType
	}
}

func fieldLoadOp(f wasm.FieldType, op wasm.Index) qbeil.LoadOp {
	switch f.StorageValueType {
	case wasm.ValueTypeI8:
		if op == wasm.GCStructGetU || op == wasm.GCArrayGetU {
			return qbeil.LoadUB
		}
		return qbeil.LoadSB
	case wasm.ValueTypeI16:
		if op == wasm.GCStructGetU || op == wasm.GCArrayGetU {
			return qbeil.LoadUH
		}
		return qbeil.LoadSH
	case wasm.ValueTypeF32:
		return qbeil.LoadS
	case wasm.ValueTypeF64:
		return qbeil.LoadD
	case wasm.ValueTypeI32:
		return qbeil.LoadW
	default:
		return qbeil.LoadL
	}
}
