package codegen

import (
	"fmt"

	"github.com/wasmqbe/waqc/internal/qbeil"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// Compile lowers a validated WebAssembly module to a qbeil.Module. The
// caller must have already run wasm.DecodeModule and wasm.Validate (or
// equivalently api.Compile, which chains both before calling this) —
// Compile does not re-check structural well-formedness.
func Compile(m *wasm.Module, target Target) (*qbeil.Module, error) {
	out := qbeil.NewModule()

	if err := compileGlobals(m, out); err != nil {
		return nil, err
	}
	if err := compileDataSegments(m, out); err != nil {
		return nil, err
	}
	out.AddData(initGlobalsTable(m))

	numImported := m.NumImportedFunctions()
	for i, body := range m.CodeSection {
		funcIdx := wasm.Index(numImported + i)
		ft, err := m.FunctionTypeOf(funcIdx)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", funcIdx, err)
		}
		fn, err := compileFunction(m, target, funcIdx, ft, body)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", funcIdx, err)
		}
		out.AddFunction(fn)
	}
	return out, nil
}

// compileGlobals emits one data definition per module-defined global,
// initialized by evaluating its (necessarily constant) init expression.
// Imported globals get no data definition of their own; the runtime
// populates their storage via the SymInitGlobalsTable table before the
// start function runs (see DESIGN.md's resolution of this question).
func compileGlobals(m *wasm.Module, out *qbeil.Module) error {
	numImported := m.NumImportedGlobals()
	for i, g := range m.GlobalSection {
		idx := wasm.Index(numImported + i)
		cv, err := wasm.EvalConstExpr(g.InitExpr)
		if err != nil {
			return fmt.Errorf("global %d: %w", idx, err)
		}
		field, err := constValueField(m, g.Type.ValType, cv)
		if err != nil {
			return fmt.Errorf("global %d: %w", idx, err)
		}
		out.AddData(&qbeil.DataDef{
			Name:   mangleGlobalName(m, idx),
			Export: isExportedGlobal(m, idx),
			Fields: []qbeil.DataField{field},
		})
	}
	return nil
}

func isExportedGlobal(m *wasm.Module, idx wasm.Index) bool {
	for _, exp := range m.ExportSection {
		if exp.Type == wasm.ExternTypeGlobal && exp.Index == idx {
			return true
		}
	}
	return false
}

// constValueField renders a ConstValue into a module-level data field. A
// global.get initializer (only legal when it refers to an imported,
// necessarily-immutable global) becomes a reference to that global's own
// data symbol, which the linker resolves to its host-supplied value; a
// null reference becomes a zero word.
func constValueField(m *wasm.Module, vt wasm.ValueType, cv wasm.ConstValue) (qbeil.DataField, error) {
	t := ilType(vt)
	if cv.IsGlobalRef {
		return qbeil.DataField{Type: t, Value: qbeil.Global{Name: mangleGlobalName(m, cv.GlobalIndex)}}, nil
	}
	if cv.IsNullRef {
		return qbeil.DataField{Type: t, Value: qbeil.IntConst{V: 0}}, nil
	}
	switch t {
	case qbeil.TypeSingle:
		return qbeil.DataField{Type: t, Value: qbeil.FloatConst{V: float64(cv.F32), Type: t}}, nil
	case qbeil.TypeDouble:
		return qbeil.DataField{Type: t, Value: qbeil.FloatConst{V: cv.F64, Type: t}}, nil
	case qbeil.TypeWord:
		return qbeil.DataField{Type: t, Value: qbeil.IntConst{V: int64(cv.I32)}}, nil
	default:
		if vt == wasm.ValueTypeFuncRef {
			return qbeil.DataField{Type: t, Value: qbeil.Global{Name: mangleFunctionName(m, cv.RefIndex)}}, nil
		}
		return qbeil.DataField{Type: t, Value: qbeil.IntConst{V: cv.I64}}, nil
	}
}

// compileDataSegments emits one data definition per data segment, active
// or passive alike, named __wasm_data_<i> and holding its raw bytes as a
// sequence of byte-typed fields. The definition records neither whether
// the segment is passive nor its memory offset; dropped segments are
// handled at the data.drop call site, not here.
func compileDataSegments(m *wasm.Module, out *qbeil.Module) error {
	for i, seg := range m.DataSection {
		fields := make([]qbeil.DataField, len(seg.Bytes))
		for j, b := range seg.Bytes {
			fields[j] = qbeil.DataField{Type: qbeil.TypeByte, Value: qbeil.IntConst{V: int64(b)}}
		}
		if len(fields) == 0 {
			fields = []qbeil.DataField{{Type: qbeil.TypeByte, Value: qbeil.IntConst{V: 0}, Count: 0}}
		}
		out.AddData(&qbeil.DataDef{
			Name:   fmt.Sprintf("__wasm_data_%d", i),
			Fields: fields,
		})
	}
	return nil
}

// initGlobalsTable emits the fixed-format table the runtime walks to
// repopulate every imported global before the start function executes:
// one l-typed field per imported global holding its index among the
// imported globals, with no type or storage slot alongside it. The
// runtime matches entries by position against the host-provided import
// list.
func initGlobalsTable(m *wasm.Module) *qbeil.DataDef {
	var fields []qbeil.DataField
	numImported := m.NumImportedGlobals()
	for i := 0; i < numImported; i++ {
		fields = append(fields, qbeil.DataField{Type: qbeil.TypeLong, Value: qbeil.IntConst{V: int64(i)}})
	}
	if len(fields) == 0 {
		fields = []qbeil.DataField{{Type: qbeil.TypeLong, Value: qbeil.IntConst{V: 0}, Count: 0}}
	}
	return &qbeil.DataDef{Name: SymInitGlobalsTable, Fields: fields}
}

// compileFunction lowers one function body: it allocates stack storage
// for every local (parameters included, so their address can be taken
// uniformly with declared locals), copies incoming parameters into their
// slots, then walks the instruction stream opcode by opcode.
func compileFunction(m *wasm.Module, target Target, funcIdx wasm.Index, ft *wasm.FunctionType, body *wasm.FunctionBody) (*qbeil.Function, error) {
	fn := qbeil.NewFunction(mangleFunctionName(m, funcIdx))
	fn.Export = isExportedFunc(m, funcIdx)
	if len(ft.Results) == 1 {
		rt := ilType(ft.Results[0])
		fn.ReturnType = &rt
	}
	// Multi-value results pass through an out-pointer parameter appended
	// after the declared parameters, matching the ABI note in the design:
	// callers allocate storage and pass its address; the function writes
	// every result word into it instead of returning through `ret`.
	multiValue := len(ft.Results) > 1

	for i, p := range ft.Params {
		pt := ilType(p)
		name := qbeil.Temporary{Name: fmt.Sprintf("p%d", i)}
		fn.Params = append(fn.Params, qbeil.Param{Name: name, Type: pt})
	}
	var outPtr qbeil.Temporary
	if multiValue {
		outPtr = qbeil.Temporary{Name: "outptr"}
		fn.Params = append(fn.Params, qbeil.Param{Name: outPtr, Type: qbeil.TypeLong})
	}

	s := newCompileState(m, target, funcIdx, ft, fn)

	allLocalTypes := append(append([]wasm.ValueType{}, ft.Params...), body.AllLocals()...)
	s.locals = make([]localSlot, len(allLocalTypes))
	for i, lt := range allLocalTypes {
		addr := s.newTemp()
		size := int64(lt.Size())
		align := 4
		if size == 8 {
			align = 8
		}
		s.emit(qbeil.Alloc{Result: addr, Align: align, Size: size})
		s.locals[i] = localSlot{addr: addr, typ: lt}
		if i < len(ft.Params) {
			s.emit(storeFor(lt, qbeil.Temporary{Name: fmt.Sprintf("p%d", i)}, addr))
		}
	}

	top := &codegenFrame{opcode: wasm.OpcodeBlock, results: ft.Results, startStackDepth: 0}
	s.pushFrame(top)

	r := wasm.NewInstrReader(body.Code, 0)
	if err := lowerInstructions(s, r); err != nil {
		return nil, err
	}

	if !s.block.Terminated() {
		if top.unreachable {
			// The body's last exit was unconditional (return, return_call,
			// br, throw, unreachable), so the closing `end` is dead code
			// with no result values left to return.
			s.block.Terminate(qbeil.Halt{})
		} else {
			finishFunction(s, multiValue, outPtr)
		}
	}
	return fn, nil
}

func isExportedFunc(m *wasm.Module, idx wasm.Index) bool {
	_, ok := m.ExportedFunctionName(idx)
	return ok
}

// storeFor writes src (of WebAssembly type lt) into the local slot at
// addr.
func storeFor(lt wasm.ValueType, src qbeil.Value, addr qbeil.Value) qbeil.Instr {
	switch ilType(lt) {
	case qbeil.TypeWord:
		return qbeil.Store{Op: qbeil.StoreW, Value: src, Address: addr}
	case qbeil.TypeSingle:
		return qbeil.Store{Op: qbeil.StoreS, Value: src, Address: addr}
	case qbeil.TypeDouble:
		return qbeil.Store{Op: qbeil.StoreD, Value: src, Address: addr}
	default:
		return qbeil.Store{Op: qbeil.StoreL, Value: src, Address: addr}
	}
}

// loadFor reads the local slot at addr (of WebAssembly type lt) into a
// fresh temporary.
func loadFor(s *compileState, lt wasm.ValueType, addr qbeil.Value) qbeil.Value {
	result := s.newTemp()
	t := ilType(lt)
	var op qbeil.LoadOp
	switch t {
	case qbeil.TypeWord:
		op = qbeil.LoadW
	case qbeil.TypeSingle:
		op = qbeil.LoadS
	case qbeil.TypeDouble:
		op = qbeil.LoadD
	default:
		op = qbeil.LoadL
	}
	s.emit(qbeil.Load{Op: op, Result: result, Type: t, Address: addr})
	return result
}

// finishFunction lowers an implicit function-end return: whatever values
// remain on the stack (matching the function's declared result arity)
// are returned, through the out-pointer ABI for multi-value functions.
func finishFunction(s *compileState, multiValue bool, outPtr qbeil.Temporary) {
	results := s.popN(len(s.funcType.Results))
	if multiValue {
		storeMultiValueResults(s, outPtr, results)
		s.block.Terminate(qbeil.Return{})
		return
	}
	if len(results) == 0 {
		s.block.Terminate(qbeil.Return{})
		return
	}
	s.block.Terminate(qbeil.Return{Value: results[0].val})
}

func storeMultiValueResults(s *compileState, outPtr qbeil.Temporary, results []stackValue) {
	offset := int64(0)
	for _, r := range results {
		addr := qbeil.Value(outPtr)
		if offset != 0 {
			addr = s.newTemp()
			s.emit(qbeil.BinaryOp{Op: qbeil.OpAdd, Result: addr.(qbeil.Temporary), Type: qbeil.TypeLong, Lhs: outPtr, Rhs: qbeil.IntConst{V: offset}})
		}
		s.emit(storeFor(r.typ, r.val, addr))
		offset += int64(r.typ.Size())
	}
}
