package codegen

import (
	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepVariable lowers local and global access opcodes.
func stepVariable(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeLocalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		slot := s.localAddr(idx)
		s.push(loadFor(s, slot.typ, slot.addr), slot.typ)
		return true, nil

	case wasm.OpcodeLocalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		slot := s.localAddr(idx)
		v := s.pop()
		s.emit(storeFor(slot.typ, v.val, slot.addr))
		return true, nil

	case wasm.OpcodeLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		slot := s.localAddr(idx)
		v := s.pop()
		s.emit(storeFor(slot.typ, v.val, slot.addr))
		s.push(v.val, v.typ)
		return true, nil

	case wasm.OpcodeGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		gt, err := moduleGlobalType(s.module, idx)
		if err != nil {
			return true, err
		}
		result := s.newTemp()
		sym := qbeil.Global{Name: mangleGlobalName(s.module, idx)}
		s.emit(loadGlobalInstr(result, gt, sym))
		s.push(result, gt)
		return true, nil

	case wasm.OpcodeGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		gt, err := moduleGlobalType(s.module, idx)
		if err != nil {
			return true, err
		}
		v := s.pop()
		sym := qbeil.Global{Name: mangleGlobalName(s.module, idx)}
		s.emit(storeFor(gt, v.val, sym))
		return true, nil
	}
	return false, nil
}

func moduleGlobalType(m *wasm.Module, idx wasm.Index) (wasm.ValueType, error) {
	numImported := m.NumImportedGlobals()
	if int(idx) < numImported {
		count := 0
		for _, imp := range m.ImportSection {
			if imp.Type != wasm.ExternTypeGlobal {
				continue
			}
			if count == int(idx) {
				return imp.DescGlobal.ValType, nil
			}
			count++
		}
	}
	localIdx := int(idx) - numImported
	return m.GlobalSection[localIdx].Type.ValType, nil
}

func loadGlobalInstr(result qbeil.Temporary, vt wasm.ValueType, sym qbeil.Value) qbeil.Instr {
	t := ilType(vt)
	var op qbeil.LoadOp
	switch t {
	case qbeil.TypeWord:
		op = qbeil.LoadW
	case qbeil.TypeSingle:
		op = qbeil.LoadS
	case qbeil.TypeDouble:
		op = qbeil.LoadD
	default:
		op = qbeil.LoadL
	}
	return qbeil.Load{Op: op, Result: result, Type: t, Address: sym}
}
