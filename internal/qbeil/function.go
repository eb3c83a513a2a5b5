package qbeil

import (
	"fmt"
	"strings"
)

// Param is one function parameter: its IL type and the temporary that
// names it within the function body.
type Param struct {
	Name Temporary
	Type Type
}

// Function is one emitted IL function. Blocks[0] is always labelled
// "entry" and is the function's sole entry point; codegen relies on this
// to target self-tail-calls back to `@entry`.
type Function struct {
	Name       string
	Params     []Param
	ReturnType *Type
	Export     bool
	Blocks     []*Block
}

// NewFunction creates a function with its mandatory entry block already
// present.
func NewFunction(name string) *Function {
	f := &Function{Name: name}
	f.Blocks = append(f.Blocks, NewBlock("entry"))
	return f
}

// Entry returns the function's entry block.
func (f *Function) Entry() *Block {
	return f.Blocks[0]
}

// NewBlock appends and returns a fresh block under a name unique within
// this function.
func (f *Function) NewBlock(label Label) *Block {
	b := NewBlock(label)
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) render(sb *strings.Builder) {
	if f.Export {
		sb.WriteString("export ")
	}
	sb.WriteString("function ")
	if f.ReturnType != nil {
		fmt.Fprintf(sb, "%s ", *f.ReturnType)
	}
	fmt.Fprintf(sb, "$%s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s %s", p.Type, p.Name.operand())
	}
	sb.WriteString(") {\n")
	for _, b := range f.Blocks {
		b.render(sb)
	}
	sb.WriteString("}\n")
}
