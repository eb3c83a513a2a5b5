// Package wasm implements the decoder and structural validator for the
// WebAssembly binary module format: magic/version, section dispatch,
// LEB128-encoded fields, composite (func/struct/array) types, and the raw
// init-expression bytes that globals, element segments, and data segments
// carry. The decoder leaves instruction bodies unparsed; the validator in
// this package and internal/codegen each walk them opcode-by-opcode.
package wasm

import "fmt"

// Index is a dense integer reference into one of a module's index spaces
// (types, functions, tables, memories, globals).
type Index = uint32

// SectionID identifies a top-level section of a binary module.
type SectionID byte

const (
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
	SectionIDDataCount
)

// SectionIDName returns the human-readable name of a section ID, for
// diagnostics.
func SectionIDName(s SectionID) string {
	switch s {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	case SectionIDDataCount:
		return "data count"
	default:
		return "unknown"
	}
}

// ExternType classifies an import or export descriptor.
type ExternType byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the WebAssembly text-format field name for et.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	default:
		return fmt.Sprintf("0x%x", byte(et))
	}
}

// CompositeType is the closed sum of type-section entries: function,
// struct, and array types, each identified by its position in
// Module.TypeSection.
type CompositeType interface {
	compositeType()
}

// FunctionType is a `(params) -> (results)` signature.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

func (*FunctionType) compositeType() {}

// String renders a stable key such as "i32i64_f32", used both for
// diagnostics and as a signature-deduplication key.
func (f *FunctionType) String() string {
	ps := valueTypesKey(f.Params)
	rs := valueTypesKey(f.Results)
	return ps + "_" + rs
}

func valueTypesKey(vs []ValueType) string {
	if len(vs) == 0 {
		return "null"
	}
	s := ""
	for _, v := range vs {
		s += v.String()
	}
	return s
}

// FieldType is the storage type plus mutability of a struct field or an
// array's element.
type FieldType struct {
	// StorageValueType holds the value type when the field stores an
	// unpacked or packed value type directly.
	StorageValueType ValueType
	// StorageTypeIndex holds the referenced composite type index when the
	// field's declared type is itself a type-index encoded reference
	// (e.g. `(ref $other)`); IsTypeIndex reports which form applies.
	StorageTypeIndex Index
	IsTypeIndex      bool
	Mutable          bool
}

// StructType is a GC composite type: a fixed sequence of named-by-index
// fields, each independently mutable or not.
type StructType struct {
	Fields []FieldType
}

func (*StructType) compositeType() {}

// ArrayType is a GC composite type: a single, possibly-mutable element type.
type ArrayType struct {
	Element FieldType
}

func (*ArrayType) compositeType() {}

// Import is one import-section entry: its module and field names, its
// ExternType, and the descriptor for that kind.
type Import struct {
	Module, Name string
	Type         ExternType

	// Exactly one of the following is meaningful, selected by Type.
	DescFunc   Index // type index, when Type == ExternTypeFunc
	DescTable  *TableType
	DescMemory *MemoryType
	DescGlobal *GlobalType
}

// TableType describes a table's element type and size limits.
type TableType struct {
	ElementType ValueType
	Limits      Limits
}

// MemoryType describes a linear memory's size limits and addressing mode.
type MemoryType struct {
	Limits   Limits
	IsMemory64 bool
}

// Limits is the `{min, max?}` pair shared by tables and memories.
type Limits struct {
	Min uint64
	Max uint64
	HasMax bool
}

// GlobalType is a value type plus mutability flag.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global is a module-defined global: its type plus the raw bytes of its
// init expression, left unevaluated by the decoder.
type Global struct {
	Type     *GlobalType
	InitExpr []byte
}

// Export associates a name with an index into one of the four extern
// index spaces.
type Export struct {
	Name  string
	Type  ExternType
	Index Index
}

// FunctionBody is a single code-section entry: declared local groups plus
// the raw, unparsed instruction bytes.
type FunctionBody struct {
	// LocalGroups is the (count, type) run-length encoding as read from
	// the code section.
	LocalGroups []LocalGroup
	Code        []byte
}

// LocalGroup is a single `(count, type)` pair from a function body's local
// declarations.
type LocalGroup struct {
	Count uint32
	Type  ValueType
}

// AllLocals expands the run-length-encoded local groups into one ValueType
// per declared local.
func (f *FunctionBody) AllLocals() []ValueType {
	var out []ValueType
	for _, g := range f.LocalGroups {
		for i := uint32(0); i < g.Count; i++ {
			out = append(out, g.Type)
		}
	}
	return out
}

// DataSegment is a data-section entry: either active (bound to a memory
// index with a constant offset expression) or passive.
type DataSegment struct {
	Passive    bool
	MemoryIndex Index
	OffsetExpr []byte
	Bytes      []byte
}

// ElementSegment is an element-section entry: either active (bound to a
// table index with a constant offset expression) or passive/declarative.
type ElementSegment struct {
	Passive      bool
	Declarative  bool
	TableIndex   Index
	OffsetExpr   []byte
	FuncIndices  []Index
}

// Module is the immutable, fully decoded form of a WebAssembly binary
// module. It is constructed once by DecodeModule and is read-only for the
// remainder of compilation.
type Module struct {
	TypeSection     []CompositeType
	ImportSection   []*Import
	FunctionSection []Index // type indices, one per defined function
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*Global
	ExportSection   []*Export
	StartSection    *Index
	ElementSection  []*ElementSegment
	CodeSection     []*FunctionBody
	DataSection     []*DataSegment
	DataCountSection *uint32

	// CustomSections maps a custom section's name to its raw payload; the
	// last occurrence of a given name wins, matching how DecodeModule
	// folds them in encounter order.
	CustomSections map[string][]byte

	// FunctionNames maps a function index to the debug name harvested
	// from the "name" custom section's function-name subsection.
	FunctionNames map[Index]string
}

// NumImportedFunctions counts ImportSection entries of kind func.
func (m *Module) NumImportedFunctions() int {
	n := 0
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeFunc {
			n++
		}
	}
	return n
}

// NumImportedTables counts ImportSection entries of kind table.
func (m *Module) NumImportedTables() int {
	n := 0
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeTable {
			n++
		}
	}
	return n
}

// NumImportedMemories counts ImportSection entries of kind memory.
func (m *Module) NumImportedMemories() int {
	n := 0
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeMemory {
			n++
		}
	}
	return n
}

// NumImportedGlobals counts ImportSection entries of kind global.
func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeGlobal {
			n++
		}
	}
	return n
}

// FunctionTypeIndex returns the type-section index of function funcIdx,
// whether imported or defined.
func (m *Module) FunctionTypeIndex(funcIdx Index) (Index, error) {
	numImports := 0
	for _, imp := range m.ImportSection {
		if imp.Type != ExternTypeFunc {
			continue
		}
		if Index(numImports) == funcIdx {
			return imp.DescFunc, nil
		}
		numImports++
	}
	localIdx := int(funcIdx) - numImports
	if localIdx < 0 || localIdx >= len(m.FunctionSection) {
		return 0, fmt.Errorf("function index %d out of range", funcIdx)
	}
	return m.FunctionSection[localIdx], nil
}

// FunctionTypeOf returns the FunctionType of function funcIdx.
func (m *Module) FunctionTypeOf(funcIdx Index) (*FunctionType, error) {
	ti, err := m.FunctionTypeIndex(funcIdx)
	if err != nil {
		return nil, err
	}
	if int(ti) >= len(m.TypeSection) {
		return nil, fmt.Errorf("type index %d out of range", ti)
	}
	ft, ok := m.TypeSection[ti].(*FunctionType)
	if !ok {
		return nil, fmt.Errorf("type %d is not a function type", ti)
	}
	return ft, nil
}

// FunctionTypeAtIndex returns the FunctionType at type-section index ti,
// as opposed to FunctionTypeOf which resolves a function index.
func (m *Module) FunctionTypeAtIndex(ti Index) (*FunctionType, error) {
	return m.functionTypeAt(ti)
}

// StructTypeAt returns the StructType at type index ti.
func (m *Module) StructTypeAt(ti Index) (*StructType, error) {
	if int(ti) >= len(m.TypeSection) {
		return nil, fmt.Errorf("type index %d out of range", ti)
	}
	st, ok := m.TypeSection[ti].(*StructType)
	if !ok {
		return nil, fmt.Errorf("type %d is not a struct type", ti)
	}
	return st, nil
}

// ArrayTypeAt returns the ArrayType at type index ti.
func (m *Module) ArrayTypeAt(ti Index) (*ArrayType, error) {
	if int(ti) >= len(m.TypeSection) {
		return nil, fmt.Errorf("type index %d out of range", ti)
	}
	at, ok := m.TypeSection[ti].(*ArrayType)
	if !ok {
		return nil, fmt.Errorf("type %d is not an array type", ti)
	}
	return at, nil
}

// FunctionName returns the debug name for funcIdx, an export name if the
// function is exported and undocumented, or a synthesized "func_N" name.
func (m *Module) FunctionName(funcIdx Index) string {
	if name, ok := m.FunctionNames[funcIdx]; ok {
		return name
	}
	for _, exp := range m.ExportSection {
		if exp.Type == ExternTypeFunc && exp.Index == funcIdx {
			return exp.Name
		}
	}
	return fmt.Sprintf("func_%d", funcIdx)
}

// ExportedFunctionName returns the export name for funcIdx and true if it
// is exported as a function.
func (m *Module) ExportedFunctionName(funcIdx Index) (string, bool) {
	for _, exp := range m.ExportSection {
		if exp.Type == ExternTypeFunc && exp.Index == funcIdx {
			return exp.Name, true
		}
	}
	return "", false
}
