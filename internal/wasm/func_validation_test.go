package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validateSingleFunction(t *testing.T, ft *FunctionType, body []byte) *ValidationResult {
	t.Helper()
	m := &Module{TypeSection: []CompositeType{ft}, FunctionSection: []Index{0}, CodeSection: []*FunctionBody{{Code: body}}}
	return Validate(m)
}

func TestValidateFunction_returnConstant(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{byte(OpcodeI32Const), 42, byte(OpcodeEnd)}
	res := validateSingleFunction(t, ft, body)
	require.True(t, res.OK(), "%v", res.Errors())
}

func TestValidateFunction_typeMismatchOnReturn(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{byte(OpcodeF32Const), 0, 0, 0, 0, byte(OpcodeEnd)}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}

func TestValidateFunction_stackUnderflow(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{byte(OpcodeI32Add), byte(OpcodeEnd)}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}

func TestValidateFunction_localOutOfRange(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{byte(OpcodeLocalGet), 5, byte(OpcodeDrop), byte(OpcodeEnd)}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}

func TestValidateFunction_globalSetImmutable(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{byte(OpcodeI32Const), 1, byte(OpcodeGlobalSet), 0, byte(OpcodeEnd)}
	m := &Module{
		TypeSection:     []CompositeType{ft},
		FunctionSection: []Index{0},
		GlobalSection:   []*Global{{Type: &GlobalType{ValType: ValueTypeI32, Mutable: false}, InitExpr: []byte{byte(OpcodeI32Const), 0, byte(OpcodeEnd)}}},
		CodeSection:     []*FunctionBody{{Code: body}},
	}
	res := Validate(m)
	require.False(t, res.OK())
}

func TestValidateFunction_ifElseBalanced(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{
		byte(OpcodeI32Const), 1,
		byte(OpcodeIf), byte(ValueTypeI32),
		byte(OpcodeI32Const), 1,
		byte(OpcodeElse),
		byte(OpcodeI32Const), 0,
		byte(OpcodeEnd),
		byte(OpcodeEnd),
	}
	res := validateSingleFunction(t, ft, body)
	require.True(t, res.OK(), "%v", res.Errors())
}

func TestValidateFunction_ifWithoutElseNonEmptyResult(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{
		byte(OpcodeI32Const), 1,
		byte(OpcodeIf), byte(ValueTypeI32),
		byte(OpcodeI32Const), 1,
		byte(OpcodeEnd),
		byte(OpcodeEnd),
	}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}

func TestValidateFunction_branchDepthOutOfRange(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{byte(OpcodeBr), 9, byte(OpcodeEnd)}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}

func TestValidateFunction_unreachablePolymorphism(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{
		byte(OpcodeUnreachable),
		byte(OpcodeI32Add), // would underflow if not for unreachable polymorphism
		byte(OpcodeEnd),
	}
	res := validateSingleFunction(t, ft, body)
	require.True(t, res.OK(), "%v", res.Errors())
}

func TestValidateFunction_missingEnd(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{byte(OpcodeNop)}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}

func TestValidateFunction_selectMismatchedOperands(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	body := []byte{
		byte(OpcodeI32Const), 1,
		byte(OpcodeF32Const), 0, 0, 0, 0,
		byte(OpcodeI32Const), 1,
		byte(OpcodeSelect),
		byte(OpcodeEnd),
	}
	res := validateSingleFunction(t, ft, body)
	require.False(t, res.OK())
}
