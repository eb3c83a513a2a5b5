package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmqbe/waqc/internal/leb128"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// body is a small builder for hand-assembled instruction streams, since
// this repository has no WebAssembly encoder to produce them from a
// higher-level form.
type body struct {
	b []byte
}

func newBody() *body { return &body{} }

func (c *body) op(op wasm.Opcode) *body {
	c.b = append(c.b, byte(op))
	return c
}

func (c *body) u32(v uint32) *body {
	c.b = append(c.b, leb128.EncodeUint32(v)...)
	return c
}

func (c *body) i32(v int32) *body {
	c.b = append(c.b, leb128.EncodeInt32(v)...)
	return c
}

func (c *body) i64(v int64) *body {
	c.b = append(c.b, leb128.EncodeInt64(v)...)
	return c
}

func (c *body) byte(b byte) *body {
	c.b = append(c.b, b)
	return c
}

func (c *body) bytes() []byte { return c.b }

// moduleWithFunc builds a single-function module: the given function type,
// one function body, and no imports/globals/memory, which is enough to
// exercise compileFunction directly through Compile.
func moduleWithFunc(ft *wasm.FunctionType, locals []wasm.LocalGroup, code []byte) *wasm.Module {
	return &wasm.Module{
		TypeSection:     []wasm.CompositeType{ft},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.FunctionBody{
			{LocalGroups: locals, Code: code},
		},
	}
}

func compileSingleFunc(t *testing.T, ft *wasm.FunctionType, locals []wasm.LocalGroup, code []byte) string {
	t.Helper()
	m := moduleWithFunc(ft, locals, code)
	out, err := Compile(m, TargetNative)
	require.NoError(t, err)
	require.Len(t, out.Functions, 1)
	return out.Render()
}

func TestCompile_returnConstant(t *testing.T) {
	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	code := newBody().op(wasm.OpcodeI32Const).i32(42).op(wasm.OpcodeEnd).bytes()

	il := compileSingleFunc(t, ft, nil, code)
	require.Contains(t, il, "function w $")
	require.Contains(t, il, "42")
	require.Contains(t, il, "ret")
}

func TestCompile_addition(t *testing.T) {
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	code := newBody().
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeLocalGet).u32(1).
		op(wasm.OpcodeI32Add).
		op(wasm.OpcodeEnd).
		bytes()

	il := compileSingleFunc(t, ft, nil, code)
	require.Contains(t, il, "add")
	require.Contains(t, il, "ret")
}

func TestCompile_recursiveFactorialSelfTailCall(t *testing.T) {
	// func fac(n, acc) -> i32 {
	//   if n == 0 { return acc }
	//   return fac(n - 1, n * acc)
	// }
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	code := newBody().
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeI32Eqz).
		op(wasm.OpcodeIf).byte(wasm.BlockTypeEmptyByte).
		op(wasm.OpcodeLocalGet).u32(1).
		op(wasm.OpcodeReturn).
		op(wasm.OpcodeEnd). // end if
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeI32Const).i32(1).
		op(wasm.OpcodeI32Sub).
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeLocalGet).u32(1).
		op(wasm.OpcodeI32Mul).
		op(wasm.OpcodeReturnCall).u32(0).
		op(wasm.OpcodeEnd).
		bytes()

	il := compileSingleFunc(t, ft, nil, code)
	require.Contains(t, il, "jnz")
	require.Contains(t, il, "mul")
}

func TestCompile_iterativeSumViaLoop(t *testing.T) {
	// func sum(n) -> i32 {
	//   local acc = 0
	//   block {
	//     loop {
	//       br_if 1 (n == 0)
	//       acc = acc + n
	//       n = n - 1
	//       br 0
	//     }
	//   }
	//   return acc
	// }
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	locals := []wasm.LocalGroup{{Count: 1, Type: wasm.ValueTypeI32}} // local 1: acc
	code := newBody().
		op(wasm.OpcodeI32Const).i32(0).
		op(wasm.OpcodeLocalSet).u32(1).
		op(wasm.OpcodeBlock).byte(wasm.BlockTypeEmptyByte).
		op(wasm.OpcodeLoop).byte(wasm.BlockTypeEmptyByte).
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeI32Eqz).
		op(wasm.OpcodeBrIf).u32(1).
		op(wasm.OpcodeLocalGet).u32(1).
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeI32Add).
		op(wasm.OpcodeLocalSet).u32(1).
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeI32Const).i32(1).
		op(wasm.OpcodeI32Sub).
		op(wasm.OpcodeLocalSet).u32(0).
		op(wasm.OpcodeBr).u32(0).
		op(wasm.OpcodeEnd). // end loop
		op(wasm.OpcodeEnd). // end block
		op(wasm.OpcodeLocalGet).u32(1).
		op(wasm.OpcodeEnd).
		bytes()

	il := compileSingleFunc(t, ft, locals, code)
	require.Contains(t, il, "@entry")
	require.Contains(t, il, "jmp")
}

func TestCompile_memoryStoreAndLoad(t *testing.T) {
	// func storeThenLoad(addr, val) -> i32 {
	//   i32.store addr val
	//   return i32.load addr
	// }
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	code := newBody().
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeLocalGet).u32(1).
		op(wasm.OpcodeI32Store).u32(2).u32(0). // align, offset
		op(wasm.OpcodeLocalGet).u32(0).
		op(wasm.OpcodeI32Load).u32(2).u32(0).
		op(wasm.OpcodeEnd).
		bytes()

	il := compileSingleFunc(t, ft, nil, code)
	require.Contains(t, il, "storew")
	require.Contains(t, il, "loadw")
}

func TestCompile_mutableGlobalIncrement(t *testing.T) {
	// global g: mutable i32 = 0
	// func bump() -> i32 {
	//   global.set g (global.get g + 1)
	//   return global.get g
	// }
	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	code := newBody().
		op(wasm.OpcodeGlobalGet).u32(0).
		op(wasm.OpcodeI32Const).i32(1).
		op(wasm.OpcodeI32Add).
		op(wasm.OpcodeGlobalSet).u32(0).
		op(wasm.OpcodeGlobalGet).u32(0).
		op(wasm.OpcodeEnd).
		bytes()

	initExpr := newBody().op(wasm.OpcodeI32Const).i32(0).op(wasm.OpcodeEnd).bytes()
	m := &wasm.Module{
		TypeSection:     []wasm.CompositeType{ft},
		FunctionSection: []wasm.Index{0},
		GlobalSection: []*wasm.Global{
			{Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true}, InitExpr: initExpr},
		},
		CodeSection: []*wasm.FunctionBody{{Code: code}},
	}

	out, err := Compile(m, TargetNative)
	require.NoError(t, err)
	require.Len(t, out.Functions, 1)
	il := out.Render()
	require.Contains(t, il, "add")
	require.Contains(t, il, "storew")
	require.Contains(t, il, "loadw")
}

func TestCompile_exportedFunctionIsMarkedExport(t *testing.T) {
	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	code := newBody().op(wasm.OpcodeI32Const).i32(7).op(wasm.OpcodeEnd).bytes()
	m := moduleWithFunc(ft, nil, code)
	m.ExportSection = []*wasm.Export{{Name: "seven", Type: wasm.ExternTypeFunc, Index: 0}}

	out, err := Compile(m, TargetNative)
	require.NoError(t, err)
	require.True(t, out.Functions[0].Export)
	require.Contains(t, out.Render(), "export function")
}

func TestCompile_tryCatch(t *testing.T) {
	// func f() -> i32 {
	//   try (result i32) {
	//     i32.const 1
	//   } catch 0
	//     i32.const 2
	//   end
	// }
	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	code := newBody().
		op(wasm.OpcodeTry).byte(byte(wasm.ValueTypeI32)).
		op(wasm.OpcodeI32Const).i32(1).
		op(wasm.OpcodeCatch).u32(0).
		op(wasm.OpcodeI32Const).i32(2).
		op(wasm.OpcodeEnd). // end try/catch
		op(wasm.OpcodeEnd). // end function
		bytes()

	il := compileSingleFunc(t, ft, nil, code)
	require.Contains(t, il, "__wasm_push_exception_handler")
	require.Contains(t, il, "__wasm_pop_exception_handler")
}

func TestCompile_tryCatchAllWithThrow(t *testing.T) {
	// func f() -> i32 {
	//   try (result i32) {
	//     throw 0
	//   } catch_all
	//     i32.const 9
	//   end
	// }
	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	code := newBody().
		op(wasm.OpcodeTry).byte(byte(wasm.ValueTypeI32)).
		op(wasm.OpcodeThrow).u32(0).
		op(wasm.OpcodeCatchAll).
		op(wasm.OpcodeI32Const).i32(9).
		op(wasm.OpcodeEnd).
		op(wasm.OpcodeEnd).
		bytes()

	il := compileSingleFunc(t, ft, nil, code)
	require.Contains(t, il, "__wasm_throw")
	require.Contains(t, il, "__wasm_pop_exception_handler")
}

func TestCompile_unhandledOpcodeErrors(t *testing.T) {
	ft := &wasm.FunctionType{}
	// 0xff is not assigned to any plain opcode family, prefix, or GC/misc
	// prefix byte, so it should surface as an explicit dispatch error
	// rather than being silently skipped.
	code := []byte{0xff, byte(wasm.OpcodeEnd)}
	_, err := compileSingleFuncErr(ft, nil, code)
	require.Error(t, err)
}

func compileSingleFuncErr(ft *wasm.FunctionType, locals []wasm.LocalGroup, code []byte) (string, error) {
	m := moduleWithFunc(ft, locals, code)
	out, err := Compile(m, TargetNative)
	if err != nil {
		return "", err
	}
	return out.Render(), nil
}
