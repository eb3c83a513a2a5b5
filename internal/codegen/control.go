package codegen

import (
	"fmt"

	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepControl lowers the structured control-flow opcodes. Every
// construct is built on one idea: a merge point's result values are
// named by fresh temporaries up front, and a qbeil.Phi collecting each
// predecessor edge is attached to the merge block once every edge
// reaching it is known. Because Block keeps phis in their own slice and
// always renders them ahead of ordinary instructions regardless of when
// AddPhi was called, the temporaries can be used by code emitted before
// their incoming edges are finalized — the standard trick that makes
// this single forward pass sufficient, with no second pass to patch up
// phi nodes afterward.
func stepControl(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeUnreachable:
		target := trapSymbol(SymTrapUnreachable)
		s.emit(qbeil.Call{Target: target})
		s.block.Terminate(qbeil.Halt{})
		s.markUnreachable()
		s.startDeadBlock()
		return true, nil

	case wasm.OpcodeNop:
		return true, nil

	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		return true, lowerBlockOrLoop(s, r, op)

	case wasm.OpcodeIf:
		return true, lowerIf(s, r)

	case wasm.OpcodeElse:
		return true, lowerElse(s)

	case wasm.OpcodeEnd:
		return true, lowerEnd(s)

	case wasm.OpcodeBr:
		depth, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerBr(s, int(depth), nil)

	case wasm.OpcodeBrIf:
		depth, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerBrIf(s, int(depth))

	case wasm.OpcodeBrTable:
		return true, lowerBrTable(s, r)

	case wasm.OpcodeReturn:
		return true, lowerReturn(s)

	case wasm.OpcodeDrop:
		s.pop()
		return true, nil

	case wasm.OpcodeSelect:
		return true, lowerSelect(s, nil)

	case wasm.OpcodeSelectT:
		n, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		types := make([]wasm.ValueType, n)
		for i := range types {
			vt, err := r.ReadValueType()
			if err != nil {
				return true, err
			}
			types[i] = vt
		}
		return true, lowerSelect(s, types)
	}
	return false, nil
}

func trapSymbol(name string) qbeil.Value { return qbeil.Global{Name: name} }

// startDeadBlock switches lowering to a fresh, unreferenced block so
// instructions between an unconditional exit and the construct's
// matching else/end have somewhere to land; WebAssembly permits such
// code as long as it type-checks under stack polymorphism, even though
// it can never run.
func (s *compileState) startDeadBlock() {
	s.setBlock(s.ilFunc.NewBlock(s.newLabel("dead")))
}

func lowerBlockOrLoop(s *compileState, r *wasm.InstrReader, op wasm.Opcode) error {
	bt, err := r.ReadBlockType()
	if err != nil {
		return err
	}
	params, results, err := wasm.FuncTypeForBlock(s.module, bt)
	if err != nil {
		return err
	}
	inputs := s.popN(len(params))

	f := &codegenFrame{opcode: op, params: params, results: results, startStackDepth: len(s.stack)}

	if op == wasm.OpcodeLoop {
		// The header block holds only phis and a jump into the body: the
		// body's own instructions (including a possible branch straight
		// back to the header) must never set the header's own terminator,
		// since its phis are only finalized once every backward edge is
		// known, at the loop's `end` — and a terminated block refuses any
		// further AddPhi call. Keeping the header phi-only and jumping
		// into a separate body block sidesteps that ordering conflict
		// entirely.
		header := s.ilFunc.NewBlock(s.newLabel("loop"))
		bodyBlock := s.ilFunc.NewBlock(s.newLabel("loopbody"))
		headerVals := make([]stackValue, len(params))
		headerTemps := make([]qbeil.Temporary, len(params))
		for i, p := range params {
			t := s.newTemp()
			headerTemps[i] = t
			headerVals[i] = stackValue{val: t, typ: p}
		}
		f.headerLabel = header.Label
		f.headerParamTemps = headerTemps
		f.loopBodyBlock = bodyBlock
		f.exitEdges = append(f.exitEdges, exitEdge{from: s.block.Label, values: inputs})

		if !s.block.Terminated() {
			s.block.Terminate(qbeil.Jump{Target: header.Label})
		}
		s.pushFrame(f)
		s.setBlock(bodyBlock)
		for _, v := range headerVals {
			s.push(v.val, v.typ)
		}
		return nil
	}

	// Plain `block`: no new block is needed up front; execution simply
	// continues in the current block. A merge block is only materialized
	// the first time a branch actually targets this frame's end.
	s.pushFrame(f)
	for _, in := range inputs {
		s.push(in.val, in.typ)
	}
	return nil
}

// ensureMerge lazily creates the block every exit from frame f joins at,
// along with one fresh result temporary per result type; the first call
// wins, later calls return the same block.
func (s *compileState) ensureMerge(f *codegenFrame) *qbeil.Block {
	if f.mergeBlock != nil {
		return f.mergeBlock
	}
	merge := s.ilFunc.NewBlock(s.newLabel("merge"))
	f.mergeBlock = merge
	f.continueLabel = merge.Label
	return merge
}

func (s *compileState) mergeResultTemps(f *codegenFrame) []qbeil.Value {
	if f.mergeResultVals != nil {
		return f.mergeResultVals
	}
	vals := make([]qbeil.Value, len(f.results))
	for i := range vals {
		vals[i] = s.newTemp()
	}
	f.mergeResultVals = vals
	return vals
}

func lowerIf(s *compileState, r *wasm.InstrReader) error {
	bt, err := r.ReadBlockType()
	if err != nil {
		return err
	}
	params, results, err := wasm.FuncTypeForBlock(s.module, bt)
	if err != nil {
		return err
	}
	cond := s.pop()
	inputs := s.popN(len(params))

	thenBlock := s.ilFunc.NewBlock(s.newLabel("then"))
	elseBlock := s.ilFunc.NewBlock(s.newLabel("else"))
	s.block.Terminate(qbeil.Branch{Cond: cond.val, IfTrue: thenBlock.Label, IfFalse: elseBlock.Label})

	f := &codegenFrame{
		opcode:          wasm.OpcodeIf,
		params:          params,
		results:         results,
		startStackDepth: len(s.stack),
		ifElseBlock:     elseBlock,
		ifInputs:        inputs,
	}
	s.pushFrame(f)
	s.setBlock(thenBlock)
	for _, in := range inputs {
		s.push(in.val, in.typ)
	}
	return nil
}

func lowerElse(s *compileState) error {
	f := s.curFrame()
	if f.opcode != wasm.OpcodeIf {
		return fmt.Errorf("else without matching if")
	}
	// Close out the then-branch: its exit edge joins the merge block
	// unless it already terminated itself (e.g. via return/br).
	if !s.block.Terminated() {
		vals := s.popN(len(f.results))
		merge := s.ensureMerge(f)
		f.exitEdges = append(f.exitEdges, exitEdge{from: s.block.Label, values: vals})
		s.block.Terminate(qbeil.Jump{Target: merge.Label})
	}
	f.sawElse = true
	f.unreachable = false
	s.stack = s.stack[:f.startStackDepth]
	s.setBlock(f.ifElseBlock)
	for _, in := range f.ifInputs {
		s.push(in.val, in.typ)
	}
	return nil
}

func lowerEnd(s *compileState) error {
	f := s.popFrame()

	if f.opcode == wasm.OpcodeIf && !f.sawElse {
		// No else arm was written: the implicit else is the identity
		// function, so its edge carries the if's own inputs straight
		// through (only valid, per validator, when params == results).
		if !f.ifElseBlock.Terminated() {
			saved := s.block
			savedStack := s.stack
			s.setBlock(f.ifElseBlock)
			s.stack = nil
			for _, in := range f.ifInputs {
				s.push(in.val, in.typ)
			}
			vals := s.popN(len(f.results))
			merge := s.ensureMerge(f)
			f.exitEdges = append(f.exitEdges, exitEdge{from: f.ifElseBlock.Label, values: vals})
			f.ifElseBlock.Terminate(qbeil.Jump{Target: merge.Label})
			s.setBlock(saved)
			s.stack = savedStack
		}
	}

	if f.opcode == wasm.OpcodeLoop {
		finalizeLoopHeaderPhis(s, f)
		// Fallthrough out of the loop's body continues in whatever block
		// is current; no merge block is needed unless some br targeted
		// an enclosing construct, which that construct handles itself.
		return nil
	}

	if f.mergeBlock == nil {
		// Nothing ever branched to this construct's end: the fallthrough
		// stack, as-is, already holds the right result values.
		return nil
	}

	if !s.block.Terminated() {
		vals := s.popN(len(f.results))
		f.exitEdges = append(f.exitEdges, exitEdge{from: s.block.Label, values: vals})
		s.block.Terminate(qbeil.Jump{Target: f.mergeBlock.Label})
	}

	resultTemps := s.mergeResultTemps(f)
	finalizeMergePhis(f, resultTemps)
	s.setBlock(f.mergeBlock)
	for i, t := range resultTemps {
		s.push(t, f.results[i])
	}
	return nil
}

// finalizeMergePhis attaches one phi per result temporary, fed by every
// recorded exit edge. A construct with a single predecessor still gets a
// (degenerate, single-incoming) phi rather than a plain copy: QBE treats
// a one-entry phi as equivalent to a copy, and keeping the uniform shape
// here avoids a separate code path for the common case.
func finalizeMergePhis(f *codegenFrame, resultTemps []qbeil.Value) {
	for i, t := range resultTemps {
		var incoming []qbeil.PhiIncoming
		for _, e := range f.exitEdges {
			incoming = append(incoming, qbeil.PhiIncoming{From: e.from, Value: e.values[i].val})
		}
		f.mergeBlock.AddPhi(qbeil.Phi{Result: t.(qbeil.Temporary), Type: ilType(f.results[i]), Incoming: incoming})
	}
}

func finalizeLoopHeaderPhis(s *compileState, f *codegenFrame) {
	header := s.ilFunc.Blocks[indexOfBlock(s.ilFunc, f.headerLabel)]
	for i, result := range f.headerParamTemps {
		var incoming []qbeil.PhiIncoming
		for _, e := range f.exitEdges {
			incoming = append(incoming, qbeil.PhiIncoming{From: e.from, Value: e.values[i].val})
		}
		header.AddPhi(qbeil.Phi{Result: result, Type: ilType(f.params[i]), Incoming: incoming})
	}
	header.Terminate(qbeil.Jump{Target: f.loopBodyBlock.Label})
}

func indexOfBlock(f *qbeil.Function, label qbeil.Label) int {
	for i, b := range f.Blocks {
		if b.Label == label {
			return i
		}
	}
	panic("codegen: unknown block label " + string(label))
}

func lowerBr(s *compileState, depth int, condVal qbeil.Value) error {
	f := s.frameAt(depth)
	labelTypes := f.results
	if f.opcode == wasm.OpcodeLoop {
		labelTypes = f.params
	}
	vals := s.peekN(len(labelTypes))

	var target qbeil.Label
	if f.opcode == wasm.OpcodeLoop {
		target = f.headerLabel
	} else {
		target = s.ensureMerge(f).Label
	}
	f.exitEdges = append(f.exitEdges, exitEdge{from: s.block.Label, values: vals})

	if condVal == nil {
		s.popN(len(labelTypes))
		s.block.Terminate(qbeil.Jump{Target: target})
		s.markUnreachable()
		s.startDeadBlock()
		return nil
	}
	fallthroughLabel := s.newLabel("brfall")
	fallthrough_ := s.ilFunc.NewBlock(fallthroughLabel)
	s.block.Terminate(qbeil.Branch{Cond: condVal, IfTrue: target, IfFalse: fallthrough_.Label})
	s.setBlock(fallthrough_)
	return nil
}

func lowerBrIf(s *compileState, depth int) error {
	cond := s.pop()
	return lowerBr(s, depth, cond.val)
}

func lowerBrTable(s *compileState, r *wasm.InstrReader) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	targets := make([]uint32, n)
	for i := range targets {
		d, err := r.ReadU32()
		if err != nil {
			return err
		}
		targets[i] = d
	}
	defaultDepth, err := r.ReadU32()
	if err != nil {
		return err
	}
	idx := s.pop()

	// br_table lowers to a cascade of equality tests against the index,
	// each branching to its target's merge/header via the same edge
	// machinery as a plain br. The final, unconditional jump handles the
	// default target and any index value out of the table's range.
	for i, depth := range targets {
		eq := s.newTemp()
		s.emit(qbeil.Comparison{Op: qbeil.CmpEq, Result: eq, OperandType: qbeil.TypeWord, Lhs: idx.val, Rhs: qbeil.IntConst{V: int64(i)}})
		if err := lowerBr(s, int(depth), eq); err != nil {
			return err
		}
	}
	return lowerBr(s, int(defaultDepth), nil)
}

func lowerReturn(s *compileState) error {
	results := s.funcType.Results
	vals := s.popN(len(results))
	if len(vals) > 1 {
		// Multi-value return goes through the out-pointer ABI parameter,
		// the function's last declared parameter.
		outPtr := qbeil.Temporary{Name: "outptr"}
		offset := int64(0)
		for _, v := range vals {
			addr := qbeil.Value(outPtr)
			if offset != 0 {
				a := s.newTemp()
				s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: a, Type: qbeil.TypeLong, Lhs: outPtr, Rhs: qbeil.IntConst{V: offset}})
				addr = a
			}
			s.emit(storeFor(v.typ, v.val, addr))
			offset += int64(v.typ.Size())
		}
		s.block.Terminate(qbeil.Return{})
	} else if len(vals) == 1 {
		s.block.Terminate(qbeil.Return{Value: vals[0].val})
	} else {
		s.block.Terminate(qbeil.Return{})
	}
	s.markUnreachable()
	s.startDeadBlock()
	return nil
}

func lowerSelect(s *compileState, explicitTypes []wasm.ValueType) error {
	cond := s.pop()
	b := s.pop()
	a := s.pop()
	typ := a.typ
	if len(explicitTypes) == 1 {
		typ = explicitTypes[0]
	}
	result := s.newTemp()
	// QBE has no ternary operator: lower through a conditional branch
	// into a dedicated merge block with a two-edge phi, exactly like an
	// if/else producing one result.
	thenB := s.ilFunc.NewBlock(s.newLabel("selT"))
	elseB := s.ilFunc.NewBlock(s.newLabel("selF"))
	mergeB := s.ilFunc.NewBlock(s.newLabel("selM"))
	s.block.Terminate(qbeil.Branch{Cond: cond.val, IfTrue: thenB.Label, IfFalse: elseB.Label})
	thenB.Terminate(qbeil.Jump{Target: mergeB.Label})
	elseB.Terminate(qbeil.Jump{Target: mergeB.Label})
	mergeB.AddPhi(qbeil.Phi{Result: result, Type: ilType(typ), Incoming: []qbeil.PhiIncoming{
		{From: thenB.Label, Value: a.val},
		{From: elseB.Label, Value: b.val},
	}})
	s.setBlock(mergeB)
	s.push(result, typ)
	return nil
}

// peekN returns the top n stack values without removing them, used by br
// targets that are conditional (br_if, br_table's tests) and so must
// leave the operand stack intact for the fallthrough path.
func (s *compileState) peekN(n int) []stackValue {
	out := make([]stackValue, n)
	copy(out, s.stack[len(s.stack)-n:])
	return out
}
