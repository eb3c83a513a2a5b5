package wasm

import "fmt"

// memoryAddrType returns the address operand type for memory index mi:
// i64 under Memory64, i32 otherwise.
func (v *funcValidator) memoryAddrType(mi Index) ValueType {
	mt, err := memoryTypeOf(v.m, mi)
	if err != nil || !mt.IsMemory64 {
		return ValueTypeI32
	}
	return ValueTypeI64
}

func (v *funcValidator) load(r *InstrReader, offset int, memIdx Index, result ValueType) error {
	if _, err := r.ReadMemArg(); err != nil {
		return err
	}
	v.popExpect(offset, v.memoryAddrType(memIdx))
	v.push(result)
	return nil
}

func (v *funcValidator) store(r *InstrReader, offset int, memIdx Index, value ValueType) error {
	if _, err := r.ReadMemArg(); err != nil {
		return err
	}
	v.popExpect(offset, value)
	v.popExpect(offset, v.memoryAddrType(memIdx))
	return nil
}

// stepNumericOrMemory handles every opcode not already special-cased in
// step: loads/stores, memory.size/grow, and the dense numeric
// arithmetic/comparison/conversion range.
func (v *funcValidator) stepNumericOrMemory(r *InstrReader, offset int, op Opcode) error {
	switch op {
	case OpcodeI32Load:
		return v.load(r, offset, 0, ValueTypeI32)
	case OpcodeI64Load:
		return v.load(r, offset, 0, ValueTypeI64)
	case OpcodeF32Load:
		return v.load(r, offset, 0, ValueTypeF32)
	case OpcodeF64Load:
		return v.load(r, offset, 0, ValueTypeF64)
	case OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI32Load16S, OpcodeI32Load16U:
		return v.load(r, offset, 0, ValueTypeI32)
	case OpcodeI64Load8S, OpcodeI64Load8U, OpcodeI64Load16S, OpcodeI64Load16U, OpcodeI64Load32S, OpcodeI64Load32U:
		return v.load(r, offset, 0, ValueTypeI64)
	case OpcodeI32Store:
		return v.store(r, offset, 0, ValueTypeI32)
	case OpcodeI64Store:
		return v.store(r, offset, 0, ValueTypeI64)
	case OpcodeF32Store:
		return v.store(r, offset, 0, ValueTypeF32)
	case OpcodeF64Store:
		return v.store(r, offset, 0, ValueTypeF64)
	case OpcodeI32Store8, OpcodeI32Store16:
		return v.store(r, offset, 0, ValueTypeI32)
	case OpcodeI64Store8, OpcodeI64Store16, OpcodeI64Store32:
		return v.store(r, offset, 0, ValueTypeI64)
	case OpcodeMemorySize:
		mi, err := r.ReadU32()
		if err != nil {
			return err
		}
		v.push(v.memoryAddrType(mi))
		return nil
	case OpcodeMemoryGrow:
		mi, err := r.ReadU32()
		if err != nil {
			return err
		}
		at := v.memoryAddrType(mi)
		v.popExpect(offset, at)
		v.push(at)
		return nil
	}

	if op >= OpcodeI32Eqz && op <= OpcodeI32GeU {
		return v.intCompare(offset, op, ValueTypeI32)
	}
	if op >= OpcodeI64Eqz && op <= OpcodeI64GeU {
		return v.intCompare(offset, op, ValueTypeI64)
	}
	if op >= OpcodeF32Eq && op <= OpcodeF32Ge {
		v.popExpect(offset, ValueTypeF32)
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeI32)
		return nil
	}
	if op >= OpcodeF64Eq && op <= OpcodeF64Ge {
		v.popExpect(offset, ValueTypeF64)
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeI32)
		return nil
	}
	if op >= OpcodeI32Clz && op <= OpcodeI32Rotr {
		return v.intArith(offset, op, ValueTypeI32)
	}
	if op >= OpcodeI64Clz && op <= OpcodeI64Rotr {
		return v.intArith(offset, op, ValueTypeI64)
	}
	if op >= OpcodeF32Abs && op <= OpcodeF32Copysign {
		return v.floatArith(offset, op, ValueTypeF32)
	}
	if op >= OpcodeF64Abs && op <= OpcodeF64Copysign {
		return v.floatArith(offset, op, ValueTypeF64)
	}

	switch op {
	case OpcodeI32WrapI64:
		v.popExpect(offset, ValueTypeI64)
		v.push(ValueTypeI32)
	case OpcodeI32TruncF32S, OpcodeI32TruncF32U:
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeI32)
	case OpcodeI32TruncF64S, OpcodeI32TruncF64U:
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeI32)
	case OpcodeI64ExtendI32S, OpcodeI64ExtendI32U:
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeI64)
	case OpcodeI64TruncF32S, OpcodeI64TruncF32U:
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeI64)
	case OpcodeI64TruncF64S, OpcodeI64TruncF64U:
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeI64)
	case OpcodeF32ConvertI32S, OpcodeF32ConvertI32U:
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeF32)
	case OpcodeF32ConvertI64S, OpcodeF32ConvertI64U:
		v.popExpect(offset, ValueTypeI64)
		v.push(ValueTypeF32)
	case OpcodeF32DemoteF64:
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeF32)
	case OpcodeF64ConvertI32S, OpcodeF64ConvertI32U:
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeF64)
	case OpcodeF64ConvertI64S, OpcodeF64ConvertI64U:
		v.popExpect(offset, ValueTypeI64)
		v.push(ValueTypeF64)
	case OpcodeF64PromoteF32:
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeF64)
	case OpcodeI32ReinterpretF32:
		v.popExpect(offset, ValueTypeF32)
		v.push(ValueTypeI32)
	case OpcodeI64ReinterpretF64:
		v.popExpect(offset, ValueTypeF64)
		v.push(ValueTypeI64)
	case OpcodeF32ReinterpretI32:
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeF32)
	case OpcodeF64ReinterpretI64:
		v.popExpect(offset, ValueTypeI64)
		v.push(ValueTypeF64)
	case OpcodeI32Extend8S, OpcodeI32Extend16S:
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeI32)
	case OpcodeI64Extend8S, OpcodeI64Extend16S, OpcodeI64Extend32S:
		v.popExpect(offset, ValueTypeI64)
		v.push(ValueTypeI64)
	default:
		return fmt.Errorf("unrecognized opcode 0x%x", byte(op))
	}
	return nil
}

func (v *funcValidator) intCompare(offset int, op Opcode, t ValueType) error {
	isEqz := op == OpcodeI32Eqz || op == OpcodeI64Eqz
	v.popExpect(offset, t)
	if !isEqz {
		v.popExpect(offset, t)
	}
	v.push(ValueTypeI32)
	return nil
}

func (v *funcValidator) intArith(offset int, op Opcode, t ValueType) error {
	isUnary := op == OpcodeI32Clz || op == OpcodeI32Ctz || op == OpcodeI32Popcnt ||
		op == OpcodeI64Clz || op == OpcodeI64Ctz || op == OpcodeI64Popcnt
	v.popExpect(offset, t)
	if !isUnary {
		v.popExpect(offset, t)
	}
	v.push(t)
	return nil
}

func (v *funcValidator) floatArith(offset int, op Opcode, t ValueType) error {
	isBinary := op == OpcodeF32Add || op == OpcodeF32Sub || op == OpcodeF32Mul || op == OpcodeF32Div ||
		op == OpcodeF32Min || op == OpcodeF32Max || op == OpcodeF32Copysign ||
		op == OpcodeF64Add || op == OpcodeF64Sub || op == OpcodeF64Mul || op == OpcodeF64Div ||
		op == OpcodeF64Min || op == OpcodeF64Max || op == OpcodeF64Copysign
	v.popExpect(offset, t)
	if isBinary {
		v.popExpect(offset, t)
	}
	v.push(t)
	return nil
}
