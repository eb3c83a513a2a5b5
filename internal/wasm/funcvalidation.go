package wasm

import "fmt"

// valueTypeUnknown is the polymorphic "bottom" type produced by popping an
// empty stack inside unreachable code: it compares equal to any type the
// caller expects, modeling the standard WebAssembly stack polymorphism
// after an unconditional branch, return, or trap.
const valueTypeUnknown ValueType = 0x00

// controlFrame tracks one nested block/loop/if/try during validation.
type controlFrame struct {
	opcode     Opcode
	startDepth int
	params     []ValueType
	results    []ValueType
	unreachable bool
}

// labelTypes returns the types a branch targeting this frame must supply:
// a loop's branch target is its entry (so it expects the loop's params),
// every other construct's branch target is its exit (so it expects results).
func (f *controlFrame) labelTypes() []ValueType {
	if f.opcode == OpcodeLoop {
		return f.params
	}
	return f.results
}

type funcValidator struct {
	m        *Module
	funcIdx  Index
	result   *ValidationResult
	locals   []ValueType
	stack    []ValueType
	frames   []*controlFrame
}

func (v *funcValidator) errorAt(offset int, format string, args ...interface{}) {
	v.result.addError(v.funcIdx, offset, format, args...)
}

func (v *funcValidator) warnAt(offset int, format string, args ...interface{}) {
	v.result.addWarning(v.funcIdx, offset, format, args...)
}

func (v *funcValidator) curFrame() *controlFrame {
	return v.frames[len(v.frames)-1]
}

func (v *funcValidator) push(t ValueType) {
	v.stack = append(v.stack, t)
}

func (v *funcValidator) pushN(ts []ValueType) {
	for _, t := range ts {
		v.push(t)
	}
}

// pop removes and returns the top value, honoring bottom-type polymorphism
// when the current frame is marked unreachable and the stack has been
// drained to the frame's floor.
func (v *funcValidator) pop(offset int) ValueType {
	f := v.curFrame()
	if len(v.stack) <= f.startDepth {
		if f.unreachable {
			return valueTypeUnknown
		}
		v.errorAt(offset, "value stack underflow")
		return valueTypeUnknown
	}
	t := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return t
}

// popExpect pops a value and checks it against want, unless either side is
// the polymorphic bottom type.
func (v *funcValidator) popExpect(offset int, want ValueType) {
	got := v.pop(offset)
	if got == valueTypeUnknown || want == valueTypeUnknown {
		return
	}
	if got != want {
		v.errorAt(offset, "type mismatch: expected %s, got %s", want, got)
	}
}

func (v *funcValidator) popExpectTypes(offset int, want []ValueType) {
	for i := len(want) - 1; i >= 0; i-- {
		v.popExpect(offset, want[i])
	}
}

// resetToFrameFloor truncates the stack down to the frame's starting
// depth, used when entering an else branch or closing a frame whose
// remainder is dead (unreachable) code.
func (v *funcValidator) resetToFrameFloor(f *controlFrame) {
	if len(v.stack) > f.startDepth {
		v.stack = v.stack[:f.startDepth]
	}
}

func (v *funcValidator) markUnreachable() {
	v.curFrame().unreachable = true
	v.resetToFrameFloor(v.curFrame())
}

func (v *funcValidator) localType(idx Index) (ValueType, bool) {
	if int(idx) >= len(v.locals) {
		return 0, false
	}
	return v.locals[idx], true
}

// validateModule runs the structural validator over every defined
// function in m, accumulating issues across the whole module in one pass.
func validateModule(m *Module) *ValidationResult {
	result := &ValidationResult{}
	numImportedFuncs := m.NumImportedFunctions()
	for i, body := range m.CodeSection {
		funcIdx := Index(numImportedFuncs + i)
		ft, err := m.FunctionTypeOf(funcIdx)
		if err != nil {
			result.addError(funcIdx, 0, "%s", err)
			continue
		}
		validateFunction(m, funcIdx, ft, body, result)
	}
	if len(m.MemorySection)+m.NumImportedMemories() > 1 {
		result.addWarning(0, 0, "module declares multiple memories")
	}
	return result
}

func validateFunction(m *Module, funcIdx Index, ft *FunctionType, body *FunctionBody, result *ValidationResult) {
	locals := append(append([]ValueType{}, ft.Params...), body.AllLocals()...)
	v := &funcValidator{m: m, funcIdx: funcIdx, result: result, locals: locals}
	v.frames = []*controlFrame{{opcode: OpcodeBlock, startDepth: 0, results: ft.Results}}

	r := NewInstrReader(body.Code, 0)
	for !r.Done() {
		if len(v.frames) == 0 {
			v.errorAt(r.Offset(), "code after function end")
			return
		}
		offset := r.Offset()
		op, err := r.ReadOpcode()
		if err != nil {
			v.errorAt(offset, "%s", err)
			return
		}
		if err := v.step(r, offset, op); err != nil {
			v.errorAt(offset, "%s", err)
			return
		}
	}
	if len(v.frames) != 0 {
		v.errorAt(r.Offset(), "function body missing end")
	}
}

// step validates a single instruction's effect and advances r past its
// immediates. It returns an error only for malformed encodings that make
// further progress unsafe; ordinary type mismatches are recorded via
// v.errorAt and do not stop the walk.
func (v *funcValidator) step(r *InstrReader, offset int, op Opcode) error {
	switch op {
	case OpcodeUnreachable:
		v.markUnreachable()
	case OpcodeNop:
	case OpcodeBlock, OpcodeLoop, OpcodeIf, OpcodeTry:
		bt, err := r.ReadBlockType()
		if err != nil {
			return err
		}
		params, results, err := FuncTypeForBlock(v.m, bt)
		if err != nil {
			return err
		}
		if op == OpcodeIf {
			v.popExpect(offset, ValueTypeI32)
		}
		v.popExpectTypes(offset, params)
		frame := &controlFrame{opcode: op, startDepth: len(v.stack), params: params, results: results}
		v.frames = append(v.frames, frame)
		v.pushN(params)
	case OpcodeElse:
		f := v.curFrame()
		if f.opcode != OpcodeIf {
			return fmt.Errorf("else without matching if")
		}
		v.checkFrameExit(offset, f)
		v.resetToFrameFloor(f)
		f.unreachable = false
		f.opcode = OpcodeElse
		v.pushN(f.params)
	case OpcodeCatch, OpcodeCatchAll:
		f := v.curFrame()
		v.checkFrameExit(offset, f)
		v.resetToFrameFloor(f)
		f.unreachable = false
		if op == OpcodeCatch {
			if _, err := r.ReadU32(); err != nil { // tag index
				return err
			}
		}
	case OpcodeDelegate:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popFrame(offset)
	case OpcodeEnd:
		f := v.curFrame()
		if f.opcode == OpcodeIf && len(f.results) != 0 && !equalValueTypes(f.params, f.results) {
			v.errorAt(offset, "if without matching else cannot produce a non-empty, non-pass-through result")
		}
		v.checkFrameExit(offset, f)
		v.frames = v.frames[:len(v.frames)-1]
		if len(v.frames) > 0 {
			v.pushN(f.results)
		}
	case OpcodeBr:
		d, err := r.ReadU32()
		if err != nil {
			return err
		}
		v.checkBranch(offset, d)
		v.markUnreachable()
	case OpcodeBrIf:
		d, err := r.ReadU32()
		if err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.checkBranch(offset, d)
	case OpcodeBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d, err := r.ReadU32()
			if err != nil {
				return err
			}
			v.checkBranch(offset, d)
		}
		d, err := r.ReadU32()
		if err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.checkBranch(offset, d)
		v.markUnreachable()
	case OpcodeReturn:
		v.popExpectTypes(offset, v.frames[0].results)
		v.markUnreachable()
	case OpcodeCall:
		fi, err := r.ReadU32()
		if err != nil {
			return err
		}
		ft, err := v.m.FunctionTypeOf(fi)
		if err != nil {
			return fmt.Errorf("call: %s", err)
		}
		v.popExpectTypes(offset, ft.Params)
		v.pushN(ft.Results)
	case OpcodeCallIndirect:
		ti, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, err := r.ReadU32(); err != nil { // table index
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		if int(ti) < len(v.m.TypeSection) {
			if ft, ok := v.m.TypeSection[ti].(*FunctionType); ok {
				v.popExpectTypes(offset, ft.Params)
				v.pushN(ft.Results)
			}
		}
	case OpcodeReturnCall:
		fi, err := r.ReadU32()
		if err != nil {
			return err
		}
		ft, err := v.m.FunctionTypeOf(fi)
		if err != nil {
			return fmt.Errorf("return_call: %s", err)
		}
		v.popExpectTypes(offset, ft.Params)
		v.markUnreachable()
	case OpcodeReturnCallIndirect:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.markUnreachable()
	case OpcodeCallRef, OpcodeReturnCallRef:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.pop(offset)
		v.markUnreachable()
	case OpcodeThrow:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.markUnreachable()
	case OpcodeRethrow:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.markUnreachable()
	case OpcodeDrop:
		v.pop(offset)
	case OpcodeSelect:
		v.popExpect(offset, ValueTypeI32)
		b := v.pop(offset)
		a := v.pop(offset)
		if a != valueTypeUnknown && b != valueTypeUnknown && a != b {
			v.errorAt(offset, "select operands have mismatched types %s/%s", a, b)
		}
		if a != valueTypeUnknown {
			v.push(a)
		} else {
			v.push(b)
		}
	case OpcodeSelectT:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		var t ValueType
		for i := uint32(0); i < n; i++ {
			vt, err := r.ReadValueType()
			if err != nil {
				return err
			}
			t = vt
		}
		v.popExpect(offset, ValueTypeI32)
		v.popExpect(offset, t)
		v.popExpect(offset, t)
		v.push(t)
	case OpcodeLocalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		t, ok := v.localType(idx)
		if !ok {
			v.errorAt(offset, "local index %d out of range", idx)
			v.push(valueTypeUnknown)
			break
		}
		v.push(t)
	case OpcodeLocalSet, OpcodeLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		t, ok := v.localType(idx)
		if !ok {
			v.errorAt(offset, "local index %d out of range", idx)
			v.pop(offset)
			break
		}
		v.popExpect(offset, t)
		if op == OpcodeLocalTee {
			v.push(t)
		}
	case OpcodeGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		gt, err := globalTypeOf(v.m, idx)
		if err != nil {
			v.errorAt(offset, "%s", err)
			v.push(valueTypeUnknown)
			break
		}
		v.push(gt.ValType)
	case OpcodeGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		gt, err := globalTypeOf(v.m, idx)
		if err != nil {
			v.errorAt(offset, "%s", err)
			v.pop(offset)
			break
		}
		if !gt.Mutable {
			v.errorAt(offset, "global.set on immutable global %d", idx)
		}
		v.popExpect(offset, gt.ValType)
	case OpcodeTableGet:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.popExpect(offset, ValueTypeI32)
		v.push(ValueTypeFuncRef)
	case OpcodeTableSet:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.pop(offset)
		v.popExpect(offset, ValueTypeI32)
	case OpcodeI32Const:
		if _, err := r.ReadI32(); err != nil {
			return err
		}
		v.push(ValueTypeI32)
	case OpcodeI64Const:
		if _, err := r.ReadI64(); err != nil {
			return err
		}
		v.push(ValueTypeI64)
	case OpcodeF32Const:
		if _, err := r.ReadF32(); err != nil {
			return err
		}
		v.push(ValueTypeF32)
	case OpcodeF64Const:
		if _, err := r.ReadF64(); err != nil {
			return err
		}
		v.push(ValueTypeF64)
	case OpcodeRefNull:
		vt, err := r.ReadValueType()
		if err != nil {
			return err
		}
		v.push(vt)
	case OpcodeRefIsNull:
		v.pop(offset)
		v.push(ValueTypeI32)
	case OpcodeRefFunc:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		v.push(ValueTypeFuncRef)
	case OpcodeRefEq:
		v.pop(offset)
		v.pop(offset)
		v.push(ValueTypeI32)
	case OpcodeRefAsNonNull:
		t := v.pop(offset)
		v.push(t)
	case OpcodeBrOnNull:
		d, err := r.ReadU32()
		if err != nil {
			return err
		}
		t := v.pop(offset)
		v.checkBranch(offset, d)
		v.push(t)
	case OpcodeBrOnNonNull:
		d, err := r.ReadU32()
		if err != nil {
			return err
		}
		v.pop(offset)
		v.checkBranch(offset, d)
	case OpcodeMiscPrefix:
		return v.stepMisc(r, offset)
	case OpcodeGCPrefix:
		return v.stepGC(r, offset)
	default:
		return v.stepNumericOrMemory(r, offset, op)
	}
	return nil
}

func equalValueTypes(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkFrameExit verifies the value stack holds exactly the frame's
// declared results when a frame is about to close (at else/catch/end),
// unless the frame is unreachable.
func (v *funcValidator) checkFrameExit(offset int, f *controlFrame) {
	if f.unreachable {
		return
	}
	want := f.results
	if len(v.stack)-f.startDepth != len(want) {
		v.errorAt(offset, "block exits with %d values on stack, expected %d", len(v.stack)-f.startDepth, len(want))
		return
	}
	for i, t := range want {
		got := v.stack[f.startDepth+i]
		if got != t {
			v.errorAt(offset, "block result %d: expected %s, got %s", i, t, got)
		}
	}
}

func (v *funcValidator) popFrame(offset int) {
	if len(v.frames) == 0 {
		v.errorAt(offset, "unbalanced control frame")
		return
	}
	v.frames = v.frames[:len(v.frames)-1]
}

func (v *funcValidator) checkBranch(offset int, depth uint32) {
	if int(depth) >= len(v.frames) {
		v.errorAt(offset, "branch depth %d exceeds enclosing block nesting", depth)
		return
	}
	target := v.frames[len(v.frames)-1-int(depth)]
	want := target.labelTypes()
	if len(v.stack) < len(want) {
		if !v.curFrame().unreachable {
			v.errorAt(offset, "branch to depth %d: not enough values on stack", depth)
		}
		return
	}
	base := len(v.stack) - len(want)
	for i, t := range want {
		got := v.stack[base+i]
		if got != valueTypeUnknown && t != valueTypeUnknown && got != t {
			v.errorAt(offset, "branch to depth %d: expected %s, got %s", depth, t, got)
		}
	}
}
