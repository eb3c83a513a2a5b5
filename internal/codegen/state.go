package codegen

import (
	"fmt"

	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// ilType maps a WebAssembly value type to its IL representation: i32/f32
// map to w/s, i64/f64 and every reference type map to l (references are
// always treated as opaque 64-bit pointers at this layer).
func ilType(vt wasm.ValueType) qbeil.Type {
	switch vt {
	case wasm.ValueTypeI32:
		return qbeil.TypeWord
	case wasm.ValueTypeF32:
		return qbeil.TypeSingle
	case wasm.ValueTypeF64:
		return qbeil.TypeDouble
	default:
		return qbeil.TypeLong
	}
}

// stackValue is one entry of the compile-time value stack: an IL value
// paired with the WebAssembly type it represents, so lowering code can
// pick the right typed opcode without re-deriving the type from the IL
// value alone (an IL Temporary carries no type of its own).
type stackValue struct {
	val qbeil.Value
	typ wasm.ValueType
}

// codegenFrame is codegen's own control-frame stack entry, distinct from
// the validator's: it additionally tracks the IL blocks involved in
// lowering this construct and the incoming values merged at its exit, so
// that br/br_if/br_table/end can synthesize the right jumps and phis.
type codegenFrame struct {
	opcode wasm.Opcode

	params  []wasm.ValueType
	results []wasm.ValueType

	// headerLabel is the block a branch out of a loop's body re-enters
	// (the loop header); for every other construct it is unused.
	headerLabel qbeil.Label

	// headerParamTemps holds the placeholder temporaries allocated for a
	// loop's header parameters, in declaration order; only meaningful
	// for a loop frame.
	headerParamTemps []qbeil.Temporary
	// loopBodyBlock is where a loop's actual body instructions are
	// appended; the header block itself holds only phis and a jump here.
	loopBodyBlock *qbeil.Block

	// continueLabel is the label of mergeBlock once ensureMerge has
	// created it; a loop frame never sets it, since branches to a loop
	// target headerLabel instead.
	continueLabel qbeil.Label

	// mergeBlock is lowered lazily: the block every exit path from this
	// construct (fallthrough `end`, or an earlier `br`) eventually
	// joins at. Created on first use so straight-line code that never
	// branches out doesn't pay for a block it never needs.
	mergeBlock *qbeil.Block

	// exitEdges accumulates one []stackValue per distinct control-flow
	// edge that reaches mergeBlock (or, for a loop, its header), each
	// tagged with the label of the block it came from; end lowering turns
	// these into one phi node per result, even when there is only one
	// edge.
	exitEdges []exitEdge

	// mergeResultVals caches the placeholder temporaries allocated for
	// this frame's merge block, so every branch targeting it references
	// the same temporaries the eventual phi nodes define.
	mergeResultVals []qbeil.Value

	// startStackDepth is the operand-stack depth when this frame was
	// pushed, so `else`/`catch` know how far to unwind.
	startStackDepth int

	// The following fields are meaningful only for an `if` frame.
	ifElseBlock *qbeil.Block
	ifInputs    []stackValue
	sawElse     bool

	unreachable bool
}

type exitEdge struct {
	from   qbeil.Label
	values []stackValue
}

// localSlot is the alloc'd stack address backing one WebAssembly local,
// plus its WebAssembly type so loads/stores use the right width.
type localSlot struct {
	addr qbeil.Value
	typ  wasm.ValueType
}

// compileState is the per-function mutable state threaded through one
// function's instruction-by-instruction lowering.
type compileState struct {
	module   *wasm.Module
	target   Target
	funcIdx  wasm.Index
	funcType *wasm.FunctionType

	ilFunc *qbeil.Function
	block  *qbeil.Block

	stack  []stackValue
	frames []*codegenFrame

	locals []localSlot

	tempSeq  int
	labelSeq int

	// selfCallTarget is the symbol name of the function being compiled,
	// used to recognize direct self-recursive tail calls and lower them
	// as a jump back to the entry block instead of a real call.
	selfCallTarget string
}

func newCompileState(m *wasm.Module, target Target, funcIdx wasm.Index, ft *wasm.FunctionType, ilFunc *qbeil.Function) *compileState {
	return &compileState{
		module:         m,
		target:         target,
		funcIdx:        funcIdx,
		funcType:       ft,
		ilFunc:         ilFunc,
		block:          ilFunc.Entry(),
		selfCallTarget: ilFunc.Name,
	}
}

func (s *compileState) newTemp() qbeil.Temporary {
	s.tempSeq++
	return qbeil.Temporary{ID: s.tempSeq}
}

func (s *compileState) newLabel(hint string) qbeil.Label {
	s.labelSeq++
	return qbeil.Label(fmt.Sprintf("%s%d", hint, s.labelSeq))
}

func (s *compileState) push(v qbeil.Value, t wasm.ValueType) {
	s.stack = append(s.stack, stackValue{val: v, typ: t})
}

// pop removes and returns the top value. A function-level control frame
// always exists, so frames is never empty; once that frame's own
// unreachable flag is set (after an unconditional br/return/unreachable
// elsewhere in the same block of dead code), an empty stack is not a bug
// — it is WebAssembly's stack-polymorphism rule for unreachable code —
// so pop fabricates a zero value rather than panicking. The fabricated
// value is never observed at run time, since the code producing it can
// never execute.
func (s *compileState) pop() stackValue {
	if len(s.stack) == 0 {
		if len(s.frames) > 0 && s.curFrame().unreachable {
			return stackValue{val: qbeil.IntConst{V: 0}, typ: wasm.ValueTypeI32}
		}
		panic("codegen: value stack underflow")
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return top
}

// markUnreachable flags the current frame so further pops in this block
// of dead code (after an unconditional exit) fabricate values instead of
// underflowing.
func (s *compileState) markUnreachable() {
	s.curFrame().unreachable = true
}

func (s *compileState) popN(n int) []stackValue {
	out := make([]stackValue, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = s.pop()
	}
	return out
}

func (s *compileState) curFrame() *codegenFrame {
	return s.frames[len(s.frames)-1]
}

func (s *compileState) pushFrame(f *codegenFrame) {
	s.frames = append(s.frames, f)
}

func (s *compileState) popFrame() *codegenFrame {
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// frameAt returns the frame `depth` levels up from the innermost (depth
// 0 is the innermost frame), matching the WebAssembly branch-depth
// encoding.
func (s *compileState) frameAt(depth int) *codegenFrame {
	return s.frames[len(s.frames)-1-depth]
}

// emit appends a non-terminating instruction to the current block.
func (s *compileState) emit(i qbeil.Instr) {
	s.block.Append(i)
}

// setBlock switches lowering to a fresh block, used whenever control
// flow merges or splits.
func (s *compileState) setBlock(b *qbeil.Block) {
	s.block = b
}

// localAddr returns the stack slot backing local index idx: function
// parameters occupy the low indices, declared locals follow, exactly as
// in the WebAssembly local index space.
func (s *compileState) localAddr(idx wasm.Index) localSlot {
	return s.locals[idx]
}
