package qbeil

import (
	"fmt"
	"strconv"
)

// Value is anything that can appear as an operand: a temporary, a named
// global, an integer or floating-point literal, or (in terminators and
// phi incoming lists) a block label.
type Value interface {
	operand() string
}

// Temporary is an SSA register, identified by a dense integer id rather
// than the source-level string names an interpreter-oriented compiler
// might use; Name, when non-empty, is used only to make emitted text
// more readable and has no semantic effect.
type Temporary struct {
	ID   int
	Name string
}

func (t Temporary) operand() string {
	if t.Name != "" {
		return "%" + t.Name
	}
	return fmt.Sprintf("%%t%d", t.ID)
}

// Global references a module-level data definition or function symbol by
// its mangled name.
type Global struct {
	Name string
}

func (g Global) operand() string { return "$" + g.Name }

// IntConst is an integer literal, valid as a w or l operand.
type IntConst struct {
	V int64
}

func (c IntConst) operand() string { return strconv.FormatInt(c.V, 10) }

// FloatConst is a floating-point literal; Type selects single or double
// rendering so the textual IL carries the right precision tag.
type FloatConst struct {
	V    float64
	Type Type
}

func (c FloatConst) operand() string {
	bits := 64
	prefix := "d_"
	if c.Type == TypeSingle {
		bits = 32
		prefix = "s_"
	}
	return prefix + strconv.FormatFloat(c.V, 'g', -1, bits)
}

// Label names a basic block.
type Label string

func (l Label) operand() string { return "@" + string(l) }
