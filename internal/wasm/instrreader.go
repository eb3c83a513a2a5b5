package wasm

import (
	"fmt"

	"github.com/wasmqbe/waqc/internal/leb128"
)

// InstrReader walks a function body's raw instruction bytes one field at a
// time. Both the validator and the code generator share it so the two
// passes agree byte-for-byte on where each instruction starts and ends.
type InstrReader struct {
	code []byte
	pos  int
	// base is the byte offset of code[0] within the original module, used
	// to produce module-relative offsets in diagnostics.
	base int
}

// NewInstrReader wraps code for sequential reading. base is added to every
// reported offset.
func NewInstrReader(code []byte, base int) *InstrReader {
	return &InstrReader{code: code, base: base}
}

// Done reports whether every byte has been consumed.
func (r *InstrReader) Done() bool { return r.pos >= len(r.code) }

// Offset returns the module-relative byte offset of the next unread byte.
func (r *InstrReader) Offset() int { return r.base + r.pos }

func (r *InstrReader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("offset %d: %s", r.Offset(), fmt.Sprintf(format, args...))
}

// ReadByte satisfies io.ByteReader so internal/leb128 can decode directly
// out of the instruction stream.
func (r *InstrReader) ReadByte() (byte, error) {
	if r.pos >= len(r.code) {
		return 0, fmt.Errorf("offset %d: unexpected end of function body", r.Offset())
	}
	b := r.code[r.pos]
	r.pos++
	return b, nil
}

// ReadOpcode reads the next leading opcode byte.
func (r *InstrReader) ReadOpcode() (Opcode, error) {
	b, err := r.ReadByte()
	return Opcode(b), err
}

// ReadU32 reads an unsigned 32-bit LEB128 field (indices, counts, memarg
// fields).
func (r *InstrReader) ReadU32() (uint32, error) {
	v, n, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, r.wrapLEB(err, n)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit LEB128 field.
func (r *InstrReader) ReadU64() (uint64, error) {
	v, n, err := leb128.DecodeUint64(r)
	if err != nil {
		return 0, r.wrapLEB(err, n)
	}
	return v, nil
}

// ReadI32 reads a signed 32-bit LEB128 immediate (i32.const).
func (r *InstrReader) ReadI32() (int32, error) {
	v, n, err := leb128.DecodeInt32(r)
	if err != nil {
		return 0, r.wrapLEB(err, n)
	}
	return v, nil
}

// ReadI64 reads a signed 64-bit LEB128 immediate (i64.const).
func (r *InstrReader) ReadI64() (int64, error) {
	v, n, err := leb128.DecodeInt64(r)
	if err != nil {
		return 0, r.wrapLEB(err, n)
	}
	return v, nil
}

func (r *InstrReader) wrapLEB(err error, consumed uint64) error {
	return fmt.Errorf("offset %d: %s", r.base+r.pos-int(consumed), err.Error())
}

// ReadF32 reads a raw little-endian IEEE-754 single.
func (r *InstrReader) ReadF32() (uint32, error) {
	if r.pos+4 > len(r.code) {
		return 0, r.errorf("truncated f32 immediate")
	}
	b := r.code[r.pos : r.pos+4]
	r.pos += 4
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadF64 reads a raw little-endian IEEE-754 double.
func (r *InstrReader) ReadF64() (uint64, error) {
	if r.pos+8 > len(r.code) {
		return 0, r.errorf("truncated f64 immediate")
	}
	b := r.code[r.pos : r.pos+8]
	r.pos += 8
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

// ReadValueType reads a single value-type byte.
func (r *InstrReader) ReadValueType() (ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return ValueType(b), nil
}

// MemArg is the alignment hint and byte offset carried by every
// memory load/store instruction. Multi-memory encodes the memory index in
// the same field when the alignment's top bit is set; waqc's decoder
// instead always reads a plain (align, offset) pair and a module is
// expected to carry at most the memories its Memory section declares, so
// the simpler two-field form covers every case this core emits.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// ReadMemArg reads a load/store instruction's alignment and offset fields.
func (r *InstrReader) ReadMemArg() (MemArg, error) {
	align, err := r.ReadU32()
	if err != nil {
		return MemArg{}, err
	}
	offset, err := r.ReadU32()
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Align: align, Offset: offset}, nil
}

// ReadBlockType reads the block-type lookahead byte shared by block, loop,
// if, and try: empty (0x40), an inline value type, or a signed LEB128
// type index.
func (r *InstrReader) ReadBlockType() (BlockType, error) {
	if r.pos >= len(r.code) {
		return BlockType{}, r.errorf("truncated block type")
	}
	b := r.code[r.pos]
	switch b {
	case BlockTypeEmptyByte:
		r.pos++
		return BlockType{Empty: true}, nil
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64,
		ValueTypeFuncRef, ValueTypeExternRef, ValueTypeAnyRef, ValueTypeEqRef,
		ValueTypeI31Ref, ValueTypeStructRef, ValueTypeArrayRef,
		ValueTypeNullFuncRef, ValueTypeNullExternRef, ValueTypeNullRef:
		if b&0x80 == 0 {
			r.pos++
			return BlockType{ValueType: ValueType(b)}, nil
		}
	}
	idx, _, err := leb128.DecodeInt33AsInt64(r)
	if err != nil {
		return BlockType{}, r.errorf("invalid block type: %s", err)
	}
	if idx < 0 {
		return BlockType{}, r.errorf("invalid block type index")
	}
	return BlockType{IsIndex: true, TypeIndex: Index(idx)}, nil
}

// FuncTypeForBlock resolves a BlockType's params/results against the
// module's type section. An inline value type or empty block has no
// params and zero-or-one results.
func FuncTypeForBlock(m *Module, bt BlockType) (params, results []ValueType, err error) {
	switch {
	case bt.Empty:
		return nil, nil, nil
	case bt.IsIndex:
		ft, err := m.functionTypeAt(bt.TypeIndex)
		if err != nil {
			return nil, nil, err
		}
		return ft.Params, ft.Results, nil
	default:
		return nil, []ValueType{bt.ValueType}, nil
	}
}

func (m *Module) functionTypeAt(ti Index) (*FunctionType, error) {
	if int(ti) >= len(m.TypeSection) {
		return nil, fmt.Errorf("type index %d out of range", ti)
	}
	ft, ok := m.TypeSection[ti].(*FunctionType)
	if !ok {
		return nil, fmt.Errorf("type %d is not a function type", ti)
	}
	return ft, nil
}
