package qbeil

import "strings"

// DataField is one typed field of a data definition; Count repeats Value
// Count times (Count==1 for a simple scalar field, >1 for zero-filled
// array padding via an IntConst{0}).
type DataField struct {
	Type  Type
	Value Value
	Count int
}

// DataDef is a module-level data definition: a named, optionally
// exported region initialized from a sequence of typed fields. Every
// module-defined WebAssembly global becomes one of these, as does every
// data segment's backing storage.
type DataDef struct {
	Name   string
	Export bool
	Fields []DataField
}

func (d *DataDef) render(sb *strings.Builder) {
	if d.Export {
		sb.WriteString("export ")
	}
	sb.WriteString("data $")
	sb.WriteString(d.Name)
	sb.WriteString(" = { ")
	for i, f := range d.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Type.String())
		sb.WriteString(" ")
		sb.WriteString(f.Value.operand())
		if f.Count > 1 {
			sb.WriteString(" ")
			sb.WriteString(IntConst{V: int64(f.Count)}.operand())
		}
	}
	sb.WriteString(" }\n")
}

// Module is the complete output of one compilation: every emitted
// function plus every module-level data definition, in the order they
// should appear in the textual IL.
type Module struct {
	Functions []*Function
	DataDefs  []*DataDef
}

// NewModule returns an empty Module ready to be populated by codegen.
func NewModule() *Module {
	return &Module{}
}

// AddFunction appends f to the module.
func (m *Module) AddFunction(f *Function) {
	m.Functions = append(m.Functions, f)
}

// AddData appends d to the module.
func (m *Module) AddData(d *DataDef) {
	m.DataDefs = append(m.DataDefs, d)
}

// Render serializes the module to its textual IL form. Rendering is a
// pure function of the Module's contents: invoking it twice on the same
// built module yields byte-identical text, which is what makes
// compilation as a whole idempotent (data definitions first, in
// insertion order, then functions, in insertion order).
func (m *Module) Render() string {
	var sb strings.Builder
	for _, d := range m.DataDefs {
		d.render(&sb)
	}
	for _, f := range m.Functions {
		f.render(&sb)
	}
	return sb.String()
}
