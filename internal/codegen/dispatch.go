package codegen

import (
	"fmt"

	"github.com/wasmqbe/waqc/internal/wasm"
)

// lowerInstructions walks a function body's opcode stream from its
// outermost implicit block down, handing each instruction to the family
// stepper that claims it. It stops once the outermost frame (pushed by
// compileFunction before this call) is popped by the matching `end`,
// mirroring how validateFunction in package wasm drains the same stream
// through funcValidator.step during structural validation.
func lowerInstructions(s *compileState, r *wasm.InstrReader) error {
	for len(s.frames) > 0 {
		if r.Done() {
			return fmt.Errorf("codegen: function body ended without a matching end")
		}
		offset := r.Offset()
		op, err := r.ReadOpcode()
		if err != nil {
			return err
		}

		if op == wasm.OpcodeMiscPrefix {
			sub, err := r.ReadU32()
			if err != nil {
				return err
			}
			if err := stepMisc(s, r, wasm.Index(sub)); err != nil {
				return fmt.Errorf("at offset %d: %w", offset, err)
			}
			continue
		}
		if op == wasm.OpcodeGCPrefix {
			sub, err := r.ReadU32()
			if err != nil {
				return err
			}
			if err := stepGC(s, r, wasm.Index(sub)); err != nil {
				return fmt.Errorf("at offset %d: %w", offset, err)
			}
			continue
		}

		handled, err := tryFamilies(s, r, op)
		if err != nil {
			return fmt.Errorf("at offset %d: %w", offset, err)
		}
		if !handled {
			return fmt.Errorf("codegen: unhandled opcode 0x%x at offset %d", op, offset)
		}
	}
	return nil
}

// tryFamilies dispatches op to each per-family stepper in turn, stopping
// at the first that claims it. Order mirrors the plain-opcode ranges
// laid out in opcode.go: control flow, then locals/globals, numeric,
// memory, calls, references, tables, and finally exception handling.
func tryFamilies(s *compileState, r *wasm.InstrReader, op wasm.Opcode) (bool, error) {
	steppers := [...]func(*compileState, *wasm.InstrReader, wasm.Opcode) (bool, error){
		stepControl,
		stepVariable,
		stepNumeric,
		stepMemory,
		stepCalls,
		stepReference,
		stepTable,
		stepExceptions,
	}
	for _, step := range steppers {
		handled, err := step(s, r, op)
		if err != nil {
			return true, err
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}
