package wasm

import "fmt"

// stepMisc validates the sub-opcode following the 0xFC prefix: saturating
// truncation and the bulk-memory/table instruction set.
func (v *funcValidator) stepMisc(r *InstrReader, offset int) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	switch Index(sub) {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U:
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeI32)
	case MiscI32TruncSatF64S, MiscI32TruncSatF64U:
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeI32)
	case MiscI64TruncSatF32S, MiscI64TruncSatF32U:
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeI64)
	case MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeI64)
	case MiscMemoryInit:
		if _, err := r.ReadU32(); err != nil { // data segment index
			return err
		}
		if _, err := r.ReadU32(); err != nil { // memory index
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
	case MiscDataDrop:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	case MiscMemoryCopy:
		if _, err := r.ReadU32(); err != nil { // dst memory index
			return err
		}
		if _, err := r.ReadU32(); err != nil { // src memory index
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
	case MiscMemoryFill:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
	case MiscTableInit:
		if _, err := r.ReadU32(); err != nil { // elem segment index
			return err
		}
		if _, err := r.ReadU32(); err != nil { // table index
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
	case MiscElemDrop:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	case MiscTableCopy:
		if _, err := r.ReadU32(); err != nil { // dst table
			return err
		}
		if _, err := r.ReadU32(); err != nil { // src table
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeI32)
	case MiscTableGrow:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.pop(offset)
		v.push(ValueTypeI32)
	case MiscTableSize:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.push(ValueTypeI32)
	case MiscTableFill:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.pop(offset)
		v.popExpect(offset, ValueTypeI32)
	default:
		return fmt.Errorf("unrecognized 0xFC sub-opcode %d", sub)
	}
	return nil
}

// stepGC validates the sub-opcode following the 0xFB prefix: the GC
// proposal's struct/array/i31/ref.test instruction set.
func (v *funcValidator) stepGC(r *InstrReader, offset int) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	switch Index(sub) {
	case GCStructNew:
		ti, err := r.ReadU32()
		if err != nil {
			return err
		}
		st, err := v.m.StructTypeAt(ti)
		if err != nil {
			return fmt.Errorf("struct.new: %s", err)
		}
		for range st.Fields {
			v.pop(offset)
		}
		v.push(ValueTypeStructRef)
	case GCStructNewDefault:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.push(ValueTypeStructRef)
	case GCStructGet, GCStructGetS, GCStructGetU:
		if _, err := r.ReadU32(); err != nil { // type index
			return err
		}
		if _, err := r.ReadU32(); err != nil { // field index
			return err
		}
		v.popExpect(offset, ValueTypeStructRef)
		v.push(ValueTypeI32)
	case GCStructSet:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.pop(offset)
		v.popExpect(offset, ValueTypeStructRef)
	case GCArrayNew:
		ti, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, err := v.m.ArrayTypeAt(ti); err != nil {
			return fmt.Errorf("array.new: %s", err)
		}
		v.popExpect(offset, ValueTypeI32)
		v.pop(offset)
		v.push(ValueTypeArrayRef)
	case GCArrayNewDefault:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeArrayRef)
	case GCArrayGet, GCArrayGetS, GCArrayGetU:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeArrayRef)
		v.push(ValueTypeI32)
	case GCArraySet:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.pop(offset)
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, ValueTypeArrayRef)
	case GCArrayLen:
		v.popExpect(offset, ValueTypeArrayRef)
		v.push(ValueTypeI32)
	case GCRefTest, GCRefTestNull:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.pop(offset)
		v.push(ValueTypeI32)
	case GCRefCast, GCRefCastNull:
		ti, err := r.ReadU32()
		if err != nil {
			return err
		}
		v.pop(offset)
		_ = ti
		v.push(ValueTypeStructRef)
	case GCRefI31:
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeI31Ref)
	case GCI31GetS, GCI31GetU:
		v.popExpect(offset, ValueTypeI31Ref)
		v.push(ValueTypeI32)
	default:
		return fmt.Errorf("unrecognized 0xFB sub-opcode %d", sub)
	}
	return nil
}
