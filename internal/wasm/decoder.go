package wasm

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/wasmqbe/waqc/internal/leb128"
)

var binaryMagic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const binaryVersion uint32 = 1

// decoder carries the single io.Reader and running byte offset shared by
// every section/field reader, so ParseErrors can report precise positions
// without threading an offset through every function signature.
type decoder struct {
	r      io.Reader
	offset int
}

func (d *decoder) errorf(format string, args ...interface{}) error {
	return newParseError(d.offset, format, args...)
}

func (d *decoder) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, d.wrapEOF(err)
	}
	d.offset++
	return buf[0], nil
}

func (d *decoder) wrapEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return d.errorf("unexpected end of input")
	}
	return err
}

// ReadByte satisfies io.ByteReader so *decoder can feed internal/leb128
// directly, tracking offset as a side effect.
func (d *decoder) ReadByte() (byte, error) {
	return d.readByte()
}

func (d *decoder) readBytes(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, d.wrapEOF(err)
	}
	d.offset += int(n)
	return buf, nil
}

func (d *decoder) readU32LEB() (uint32, error) {
	v, n, err := leb128.DecodeUint32(d)
	if err != nil {
		return 0, d.wrapLEBErr(err, n)
	}
	return v, nil
}

func (d *decoder) readU64LEB() (uint64, error) {
	v, n, err := leb128.DecodeUint64(d)
	if err != nil {
		return 0, d.wrapLEBErr(err, n)
	}
	return v, nil
}

func (d *decoder) readI32LEB() (int32, error) {
	v, n, err := leb128.DecodeInt32(d)
	if err != nil {
		return 0, d.wrapLEBErr(err, n)
	}
	return v, nil
}

func (d *decoder) readI64LEB() (int64, error) {
	v, n, err := leb128.DecodeInt64(d)
	if err != nil {
		return 0, d.wrapLEBErr(err, n)
	}
	return v, nil
}

// readI33LEB reads the signed 33-bit index used by block types, sign
// extended into an int64.
func (d *decoder) readI33LEB() (int64, error) {
	v, n, err := leb128.DecodeInt33AsInt64(d)
	if err != nil {
		return 0, d.wrapLEBErr(err, n)
	}
	return v, nil
}

// wrapLEBErr annotates a leb128 decode failure with the offset it
// actually occurred at: ReadByte already advanced d.offset per byte
// consumed, so on error we rewind to where the field started.
func (d *decoder) wrapLEBErr(err error, consumed uint64) error {
	return newParseError(d.offset-int(consumed), "%s", err.Error())
}

func (d *decoder) readName() (string, error) {
	n, err := d.readU32LEB()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", d.errorf("invalid UTF-8 in name")
	}
	return string(b), nil
}

func (d *decoder) readValueType() (ValueType, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64,
		ValueTypeI8, ValueTypeI16,
		ValueTypeFuncRef, ValueTypeExternRef, ValueTypeAnyRef, ValueTypeEqRef,
		ValueTypeI31Ref, ValueTypeStructRef, ValueTypeArrayRef,
		ValueTypeNullFuncRef, ValueTypeNullExternRef, ValueTypeNullRef:
		return ValueType(b), nil
	default:
		return 0, d.errorf("invalid value type byte 0x%x", b)
	}
}

func (d *decoder) readValueTypeVector() ([]ValueType, error) {
	n, err := d.readU32LEB()
	if err != nil {
		return nil, err
	}
	out := make([]ValueType, n)
	for i := range out {
		vt, err := d.readValueType()
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

// DecodeModule parses a binary WebAssembly module from r. It performs no
// structural or type validation beyond what is necessary to lay out the
// index spaces faithfully; call Validate on the result before compiling.
func DecodeModule(r io.Reader) (*Module, error) {
	d := &decoder{r: r}

	var magic [4]byte
	if _, err := io.ReadFull(d.r, magic[:]); err != nil {
		return nil, d.wrapEOF(err)
	}
	d.offset += 4
	if magic != binaryMagic {
		return nil, d.errorf("not a WebAssembly module: bad magic")
	}

	var versionBuf [4]byte
	if _, err := io.ReadFull(d.r, versionBuf[:]); err != nil {
		return nil, d.wrapEOF(err)
	}
	d.offset += 4
	if binary.LittleEndian.Uint32(versionBuf[:]) != binaryVersion {
		return nil, d.errorf("unsupported binary version")
	}

	m := &Module{
		CustomSections: map[string][]byte{},
		FunctionNames:  map[Index]string{},
	}

	var lastSectionID SectionID = 0
	sawNonCustom := false
	for {
		idByte, err := d.readByte()
		if err != nil {
			if pe, ok := err.(*ParseError); ok && pe.Message == "unexpected end of input" {
				break
			}
			return nil, err
		}
		id := SectionID(idByte)
		size, err := d.readU32LEB()
		if err != nil {
			return nil, err
		}
		payload, err := d.readBytes(size)
		if err != nil {
			return nil, err
		}
		if id != SectionIDCustom {
			if sawNonCustom && id <= lastSectionID {
				return nil, newParseError(d.offset-int(size), "section %s out of order", SectionIDName(id))
			}
			lastSectionID = id
			sawNonCustom = true
		}

		sd := &decoder{r: bytes.NewReader(payload), offset: d.offset - int(size)}
		if err := decodeSection(m, id, sd, payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func decodeSection(m *Module, id SectionID, d *decoder, payload []byte) error {
	switch id {
	case SectionIDCustom:
		return decodeCustomSection(m, d)
	case SectionIDType:
		return decodeTypeSection(m, d)
	case SectionIDImport:
		return decodeImportSection(m, d)
	case SectionIDFunction:
		return decodeFunctionSection(m, d)
	case SectionIDTable:
		return decodeTableSection(m, d)
	case SectionIDMemory:
		return decodeMemorySection(m, d)
	case SectionIDGlobal:
		return decodeGlobalSection(m, d)
	case SectionIDExport:
		return decodeExportSection(m, d)
	case SectionIDStart:
		return decodeStartSection(m, d)
	case SectionIDElement:
		return decodeElementSection(m, d)
	case SectionIDCode:
		return decodeCodeSection(m, d)
	case SectionIDData:
		return decodeDataSection(m, d)
	case SectionIDDataCount:
		return decodeDataCountSection(m, d)
	default:
		// Unknown section ids are skipped per the spec.
		return nil
	}
}

func decodeCustomSection(m *Module, d *decoder) error {
	name, err := d.readName()
	if err != nil {
		return err
	}
	rest, err := io.ReadAll(d.r)
	if err != nil {
		return d.wrapEOF(err)
	}
	m.CustomSections[name] = rest
	if name == "name" {
		decodeNameSubsections(m, rest)
	}
	return nil
}

// decodeNameSubsections extracts the function-name subsection (id 1) from
// the "name" custom section. Malformed subsections are ignored: the name
// section is advisory only and must never fail compilation.
func decodeNameSubsections(m *Module, payload []byte) {
	sd := &decoder{r: bytes.NewReader(payload)}
	for {
		subID, err := sd.readByte()
		if err != nil {
			return
		}
		size, err := sd.readU32LEB()
		if err != nil {
			return
		}
		sub, err := sd.readBytes(size)
		if err != nil {
			return
		}
		if subID == 1 {
			decodeFunctionNameSubsection(m, sub)
		}
	}
}

func decodeFunctionNameSubsection(m *Module, payload []byte) {
	fd := &decoder{r: bytes.NewReader(payload)}
	n, err := fd.readU32LEB()
	if err != nil {
		return
	}
	for i := uint32(0); i < n; i++ {
		idx, err := fd.readU32LEB()
		if err != nil {
			return
		}
		name, err := fd.readName()
		if err != nil {
			return
		}
		m.FunctionNames[idx] = name
	}
}

func decodeTypeSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.TypeSection = make([]CompositeType, n)
	for i := range m.TypeSection {
		tag, err := d.readByte()
		if err != nil {
			return err
		}
		switch tag {
		case 0x60:
			params, err := d.readValueTypeVector()
			if err != nil {
				return err
			}
			results, err := d.readValueTypeVector()
			if err != nil {
				return err
			}
			m.TypeSection[i] = &FunctionType{Params: params, Results: results}
		case 0x5f:
			st, err := decodeStructType(d)
			if err != nil {
				return err
			}
			m.TypeSection[i] = st
		case 0x5e:
			ft, err := decodeFieldType(d)
			if err != nil {
				return err
			}
			m.TypeSection[i] = &ArrayType{Element: ft}
		default:
			return d.errorf("invalid type form 0x%x", tag)
		}
	}
	return nil
}

func decodeStructType(d *decoder) (*StructType, error) {
	n, err := d.readU32LEB()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldType, n)
	for i := range fields {
		ft, err := decodeFieldType(d)
		if err != nil {
			return nil, err
		}
		fields[i] = ft
	}
	return &StructType{Fields: fields}, nil
}

func decodeFieldType(d *decoder) (FieldType, error) {
	vt, err := d.readValueType()
	if err != nil {
		return FieldType{}, err
	}
	mutByte, err := d.readByte()
	if err != nil {
		return FieldType{}, err
	}
	return FieldType{StorageValueType: vt, Mutable: mutByte != 0}, nil
}

func decodeImportSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.ImportSection = make([]*Import, n)
	for i := range m.ImportSection {
		mod, err := d.readName()
		if err != nil {
			return err
		}
		field, err := d.readName()
		if err != nil {
			return err
		}
		kind, err := d.readByte()
		if err != nil {
			return err
		}
		imp := &Import{Module: mod, Name: field, Type: ExternType(kind)}
		switch ExternType(kind) {
		case ExternTypeFunc:
			ti, err := d.readU32LEB()
			if err != nil {
				return err
			}
			imp.DescFunc = ti
		case ExternTypeTable:
			tt, err := decodeTableType(d)
			if err != nil {
				return err
			}
			imp.DescTable = tt
		case ExternTypeMemory:
			mt, err := decodeMemoryType(d)
			if err != nil {
				return err
			}
			imp.DescMemory = mt
		case ExternTypeGlobal:
			gt, err := decodeGlobalType(d)
			if err != nil {
				return err
			}
			imp.DescGlobal = gt
		default:
			return d.errorf("invalid import kind 0x%x", kind)
		}
		m.ImportSection[i] = imp
	}
	return nil
}

func decodeTableType(d *decoder) (*TableType, error) {
	et, err := d.readValueType()
	if err != nil {
		return nil, err
	}
	if !et.IsReference() {
		return nil, d.errorf("table element type must be a reference type")
	}
	lim, err := decodeLimits(d)
	if err != nil {
		return nil, err
	}
	return &TableType{ElementType: et, Limits: lim}, nil
}

func decodeMemoryType(d *decoder) (*MemoryType, error) {
	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}
	lim, err := decodeLimitsBody(d, flags)
	if err != nil {
		return nil, err
	}
	return &MemoryType{Limits: lim, IsMemory64: flags&0x04 != 0}, nil
}

func decodeLimits(d *decoder) (Limits, error) {
	flags, err := d.readByte()
	if err != nil {
		return Limits{}, err
	}
	return decodeLimitsBody(d, flags)
}

func decodeLimitsBody(d *decoder, flags byte) (Limits, error) {
	is64 := flags&0x04 != 0
	hasMax := flags&0x01 != 0
	readDim := func() (uint64, error) {
		if is64 {
			return d.readU64LEB()
		}
		v, err := d.readU32LEB()
		return uint64(v), err
	}
	min, err := readDim()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: min, HasMax: hasMax}
	if hasMax {
		max, err := readDim()
		if err != nil {
			return Limits{}, err
		}
		lim.Max = max
	}
	return lim, nil
}

func decodeGlobalType(d *decoder) (*GlobalType, error) {
	vt, err := d.readValueType()
	if err != nil {
		return nil, err
	}
	mutByte, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return &GlobalType{ValType: vt, Mutable: mutByte != 0}, nil
}

func decodeFunctionSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.FunctionSection = make([]Index, n)
	for i := range m.FunctionSection {
		ti, err := d.readU32LEB()
		if err != nil {
			return err
		}
		m.FunctionSection[i] = ti
	}
	return nil
}

func decodeTableSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.TableSection = make([]*TableType, n)
	for i := range m.TableSection {
		tt, err := decodeTableType(d)
		if err != nil {
			return err
		}
		m.TableSection[i] = tt
	}
	return nil
}

func decodeMemorySection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.MemorySection = make([]*MemoryType, n)
	for i := range m.MemorySection {
		mt, err := decodeMemoryType(d)
		if err != nil {
			return err
		}
		m.MemorySection[i] = mt
	}
	return nil
}

// readInitExpr consumes a constant-expression byte stream, tracking
// nested block/loop/if structures so the balancing top-level `end` is the
// one that terminates the expression rather than an inner one.
func readInitExpr(d *decoder) ([]byte, error) {
	var buf bytes.Buffer
	depth := 0
	for {
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		switch Opcode(b) {
		case OpcodeBlock, OpcodeLoop, OpcodeIf, OpcodeTry:
			depth++
			// Block type byte follows; consume it (and a LEB index if not
			// one of the recognized short forms).
			bt, err := d.readByte()
			if err != nil {
				return nil, err
			}
			buf.WriteByte(bt)
			if bt != BlockTypeEmptyByte {
				switch ValueType(bt) {
				case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64,
					ValueTypeFuncRef, ValueTypeExternRef:
				default:
					// bt was the first byte of a signed LEB128 type index;
					// re-read the remaining bytes by rewinding is not
					// possible with this reader, so instead treat bt as
					// already-consumed first byte and continue scanning a
					// signed LEB from here.
					if err := skipSignedLEBContinuation(d, bt); err != nil {
						return nil, err
					}
				}
			}
		case OpcodeEnd:
			if depth == 0 {
				return buf.Bytes(), nil
			}
			depth--
		case OpcodeI32Const:
			if err := skipSignedLEB(d, &buf); err != nil {
				return nil, err
			}
		case OpcodeI64Const:
			if err := skipSignedLEB(d, &buf); err != nil {
				return nil, err
			}
		case OpcodeF32Const:
			if err := copyRaw(d, &buf, 4); err != nil {
				return nil, err
			}
		case OpcodeF64Const:
			if err := copyRaw(d, &buf, 8); err != nil {
				return nil, err
			}
		case OpcodeGlobalGet:
			if err := skipUnsignedLEB(d, &buf); err != nil {
				return nil, err
			}
		case OpcodeRefNull:
			rt, err := d.readByte()
			if err != nil {
				return nil, err
			}
			buf.WriteByte(rt)
		case OpcodeRefFunc:
			if err := skipUnsignedLEB(d, &buf); err != nil {
				return nil, err
			}
		}
	}
}

// skipSignedLEBContinuation consumes the remaining bytes of a signed
// LEB128 sequence whose first byte (already written to the caller's
// buffer) was bt.
func skipSignedLEBContinuation(d *decoder, bt byte) error {
	b := bt
	for b&0x80 != 0 {
		var err error
		b, err = d.readByte()
		if err != nil {
			return err
		}
	}
	return nil
}

func skipSignedLEB(d *decoder, buf *bytes.Buffer) error {
	for {
		b, err := d.readByte()
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		if b&0x80 == 0 {
			return nil
		}
	}
}

func skipUnsignedLEB(d *decoder, buf *bytes.Buffer) error {
	return skipSignedLEB(d, buf)
}

func copyRaw(d *decoder, buf *bytes.Buffer, n int) error {
	b, err := d.readBytes(uint32(n))
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func decodeGlobalSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.GlobalSection = make([]*Global, n)
	for i := range m.GlobalSection {
		gt, err := decodeGlobalType(d)
		if err != nil {
			return err
		}
		expr, err := readInitExpr(d)
		if err != nil {
			return err
		}
		m.GlobalSection[i] = &Global{Type: gt, InitExpr: expr}
	}
	return nil
}

func decodeExportSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.ExportSection = make([]*Export, n)
	for i := range m.ExportSection {
		name, err := d.readName()
		if err != nil {
			return err
		}
		kind, err := d.readByte()
		if err != nil {
			return err
		}
		idx, err := d.readU32LEB()
		if err != nil {
			return err
		}
		m.ExportSection[i] = &Export{Name: name, Type: ExternType(kind), Index: idx}
	}
	return nil
}

func decodeStartSection(m *Module, d *decoder) error {
	idx, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.StartSection = &idx
	return nil
}

func decodeElementSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.ElementSection = make([]*ElementSegment, n)
	for i := range m.ElementSection {
		seg, err := decodeElementSegment(d)
		if err != nil {
			return err
		}
		m.ElementSection[i] = seg
	}
	return nil
}

func decodeElementSegment(d *decoder) (*ElementSegment, error) {
	flags, err := d.readU32LEB()
	if err != nil {
		return nil, err
	}
	seg := &ElementSegment{}
	switch flags {
	case 0:
		expr, err := readInitExpr(d)
		if err != nil {
			return nil, err
		}
		seg.OffsetExpr = expr
		idxs, err := decodeFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 1:
		seg.Passive = true
		if _, err := d.readByte(); err != nil { // elemkind
			return nil, err
		}
		idxs, err := decodeFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 2:
		ti, err := d.readU32LEB()
		if err != nil {
			return nil, err
		}
		seg.TableIndex = ti
		expr, err := readInitExpr(d)
		if err != nil {
			return nil, err
		}
		seg.OffsetExpr = expr
		if _, err := d.readByte(); err != nil { // elemkind
			return nil, err
		}
		idxs, err := decodeFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 3:
		seg.Passive = true
		if _, err := d.readByte(); err != nil {
			return nil, err
		}
		idxs, err := decodeFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 4:
		expr, err := readInitExpr(d)
		if err != nil {
			return nil, err
		}
		seg.OffsetExpr = expr
		idxs, err := decodeExprFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 5:
		seg.Passive = true
		if _, err := d.readValueType(); err != nil {
			return nil, err
		}
		idxs, err := decodeExprFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 6:
		ti, err := d.readU32LEB()
		if err != nil {
			return nil, err
		}
		seg.TableIndex = ti
		expr, err := readInitExpr(d)
		if err != nil {
			return nil, err
		}
		seg.OffsetExpr = expr
		if _, err := d.readValueType(); err != nil {
			return nil, err
		}
		idxs, err := decodeExprFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	case 7:
		seg.Passive = true
		seg.Declarative = true
		if _, err := d.readValueType(); err != nil {
			return nil, err
		}
		idxs, err := decodeExprFuncIndexVector(d)
		if err != nil {
			return nil, err
		}
		seg.FuncIndices = idxs
	default:
		return nil, d.errorf("invalid element segment flags %d", flags)
	}
	if flags == 3 || flags == 7 {
		seg.Declarative = true
	}
	return seg, nil
}

func decodeFuncIndexVector(d *decoder) ([]Index, error) {
	n, err := d.readU32LEB()
	if err != nil {
		return nil, err
	}
	out := make([]Index, n)
	for i := range out {
		idx, err := d.readU32LEB()
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// decodeExprFuncIndexVector reads a vector of `ref.func idx end`
// expressions, as used by element-segment encodings 4-7, collapsing each
// to its referenced function index (ref.null entries become the sentinel
// ^Index(0), marking "no function").
func decodeExprFuncIndexVector(d *decoder) ([]Index, error) {
	n, err := d.readU32LEB()
	if err != nil {
		return nil, err
	}
	out := make([]Index, n)
	for i := range out {
		expr, err := readInitExpr(d)
		if err != nil {
			return nil, err
		}
		out[i] = extractFuncIndexFromExpr(expr)
	}
	return out, nil
}

func extractFuncIndexFromExpr(expr []byte) Index {
	if len(expr) == 0 || Opcode(expr[0]) != OpcodeRefFunc {
		return ^Index(0)
	}
	v, _, err := leb128.LoadUint32(expr[1:])
	if err != nil {
		return ^Index(0)
	}
	return v
}

func decodeCodeSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.CodeSection = make([]*FunctionBody, n)
	for i := range m.CodeSection {
		size, err := d.readU32LEB()
		if err != nil {
			return err
		}
		body, err := d.readBytes(size)
		if err != nil {
			return err
		}
		fb, err := decodeFunctionBody(d.offset-int(size), body)
		if err != nil {
			return err
		}
		m.CodeSection[i] = fb
	}
	return nil
}

func decodeFunctionBody(startOffset int, body []byte) (*FunctionBody, error) {
	bd := &decoder{r: bytes.NewReader(body), offset: startOffset}
	n, err := bd.readU32LEB()
	if err != nil {
		return nil, err
	}
	groups := make([]LocalGroup, n)
	for i := range groups {
		count, err := bd.readU32LEB()
		if err != nil {
			return nil, err
		}
		typ, err := bd.readValueType()
		if err != nil {
			return nil, err
		}
		groups[i] = LocalGroup{Count: count, Type: typ}
	}
	rest, err := io.ReadAll(bd.r)
	if err != nil {
		return nil, bd.wrapEOF(err)
	}
	return &FunctionBody{LocalGroups: groups, Code: rest}, nil
}

func decodeDataSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.DataSection = make([]*DataSegment, n)
	for i := range m.DataSection {
		flags, err := d.readU32LEB()
		if err != nil {
			return err
		}
		seg := &DataSegment{}
		switch flags {
		case 0:
			expr, err := readInitExpr(d)
			if err != nil {
				return err
			}
			seg.OffsetExpr = expr
		case 1:
			seg.Passive = true
		case 2:
			mi, err := d.readU32LEB()
			if err != nil {
				return err
			}
			seg.MemoryIndex = mi
			expr, err := readInitExpr(d)
			if err != nil {
				return err
			}
			seg.OffsetExpr = expr
		default:
			return d.errorf("invalid data segment flags %d", flags)
		}
		size, err := d.readU32LEB()
		if err != nil {
			return err
		}
		b, err := d.readBytes(size)
		if err != nil {
			return err
		}
		seg.Bytes = b
		m.DataSection[i] = seg
	}
	return nil
}

func decodeDataCountSection(m *Module, d *decoder) error {
	n, err := d.readU32LEB()
	if err != nil {
		return err
	}
	m.DataCountSection = &n
	return nil
}

// Validate runs the structural validator over m, returning every issue
// found across all defined functions in a single pass.
func Validate(m *Module) *ValidationResult {
	return validateModule(m)
}
