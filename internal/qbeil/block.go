package qbeil

import (
	"fmt"
	"strings"
)

// Block is a single basic block: an optional run of leading Phi
// instructions, an ordered list of other instructions, and exactly one
// terminator. Codegen panics rather than silently dropping code if it
// ever tries to append past a set terminator — that always indicates a
// control-flow bug in the translator, never a legitimate program shape.
type Block struct {
	Label Label
	Phis  []Phi
	Instrs []Instr
	Term   Terminator
}

// NewBlock creates an empty, unterminated block under the given label.
func NewBlock(label Label) *Block {
	return &Block{Label: label}
}

// AddPhi appends a phi node. Phis are kept apart from ordinary
// instructions and always rendered ahead of them, so AddPhi may be
// called at any point before the block is terminated.
func (b *Block) AddPhi(p Phi) {
	if b.Term != nil {
		panic(fmt.Sprintf("qbeil: phi appended to already-terminated block %q", b.Label))
	}
	b.Phis = append(b.Phis, p)
}

// Append adds a non-terminating instruction to the block.
func (b *Block) Append(i Instr) {
	if b.Term != nil {
		panic(fmt.Sprintf("qbeil: instruction appended to already-terminated block %q", b.Label))
	}
	b.Instrs = append(b.Instrs, i)
}

// Terminate sets the block's terminator. Calling it twice on the same
// block is a translator bug and panics immediately rather than silently
// discarding the first terminator.
func (b *Block) Terminate(t Terminator) {
	if b.Term != nil {
		panic(fmt.Sprintf("qbeil: block %q terminated twice", b.Label))
	}
	b.Term = t
}

// Terminated reports whether Terminate has already been called.
func (b *Block) Terminated() bool {
	return b.Term != nil
}

func (b *Block) render(sb *strings.Builder) {
	fmt.Fprintf(sb, "@%s\n", b.Label)
	for _, p := range b.Phis {
		p.render(sb)
	}
	for _, in := range b.Instrs {
		in.render(sb)
	}
	if b.Term == nil {
		panic(fmt.Sprintf("qbeil: block %q rendered without a terminator", b.Label))
	}
	b.Term.renderTerm(sb)
}
