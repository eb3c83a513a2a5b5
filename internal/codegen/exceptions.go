package codegen

import (
	"fmt"

	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// stepExceptions lowers try/catch/catch_all/delegate/throw/rethrow. The
// decoder never materializes a tag section (see DESIGN.md), so a catch
// arm has no way to know an exception's parameter types; the runtime's
// push/pop-handler pair is therefore modeled as an opaque, setjmp-style
// mechanism entirely outside the generated control-flow graph rather
// than a real QBE branch from the try body to its catch arms. A catch
// or catch_all body is only ever reached by the runtime unwinding into
// it, never by straight-line fallthrough from the try body, so it lowers
// into a dead block exactly like code following an unconditional exit.
func stepExceptions(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpcodeTry:
		return true, lowerTry(s, r)

	case wasm.OpcodeCatch:
		tagIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		return true, lowerCatch(s, &tagIdx)

	case wasm.OpcodeCatchAll:
		return true, lowerCatch(s, nil)

	case wasm.OpcodeDelegate:
		if _, err := r.ReadU32(); err != nil {
			return true, err
		}
		s.popFrame()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymPopExceptionHandler}})
		return true, nil

	case wasm.OpcodeThrow:
		tagIdx, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymThrow}, Args: []qbeil.Arg{{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(tagIdx)}}}})
		s.block.Terminate(qbeil.Halt{})
		s.markUnreachable()
		s.startDeadBlock()
		return true, nil

	case wasm.OpcodeRethrow:
		depth, err := r.ReadU32()
		if err != nil {
			return true, err
		}
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymRethrow}, Args: []qbeil.Arg{{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(depth)}}}})
		s.block.Terminate(qbeil.Halt{})
		s.markUnreachable()
		s.startDeadBlock()
		return true, nil
	}
	return false, nil
}

func lowerTry(s *compileState, r *wasm.InstrReader) error {
	bt, err := r.ReadBlockType()
	if err != nil {
		return err
	}
	params, results, err := wasm.FuncTypeForBlock(s.module, bt)
	if err != nil {
		return err
	}
	inputs := s.popN(len(params))

	s.emit(qbeil.Call{Target: qbeil.Global{Name: SymPushExceptionHandler}})

	f := &codegenFrame{opcode: wasm.OpcodeTry, params: params, results: results, startStackDepth: len(s.stack)}
	s.pushFrame(f)
	for _, in := range inputs {
		s.push(in.val, in.typ)
	}
	return nil
}

func lowerCatch(s *compileState, tagIdx *uint32) error {
	f := s.curFrame()
	if f.opcode != wasm.OpcodeTry {
		return fmt.Errorf("catch without matching try")
	}

	// Close out whatever arm (the try body, or a preceding catch) is
	// currently live: its normal completion joins the construct's merge
	// point like any other block-shaped exit.
	if !s.block.Terminated() {
		vals := s.popN(len(f.results))
		merge := s.ensureMerge(f)
		f.exitEdges = append(f.exitEdges, exitEdge{from: s.block.Label, values: vals})
		s.block.Terminate(qbeil.Jump{Target: merge.Label})
	}

	f.unreachable = false
	s.stack = s.stack[:f.startStackDepth]
	s.startDeadBlock()

	// The pop-handler call belongs to the catch arm itself, not the
	// block it replaces: emit it into the fresh dead block rather than
	// the one just terminated above.
	s.emit(qbeil.Call{Target: qbeil.Global{Name: SymPopExceptionHandler}})

	if tagIdx != nil {
		result := s.newTemp()
		s.emit(qbeil.Call{Target: qbeil.Global{Name: SymGetException}, Args: []qbeil.Arg{
			{Type: qbeil.TypeWord, Value: qbeil.IntConst{V: int64(*tagIdx)}},
		}, Result: &result, Type: qbeil.TypeLong})
	}
	return nil
}
