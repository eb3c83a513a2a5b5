package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunctionType_String(t *testing.T) {
	for _, tc := range []struct {
		functype *FunctionType
		exp      string
	}{
		{functype: &FunctionType{}, exp: "null_null"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32}}, exp: "i32_null"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeF64}}, exp: "i32f64_null"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeF32, ValueTypeI32, ValueTypeF64}}, exp: "f32i32f64_null"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeI64}}, exp: "null_i64"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeI64, ValueTypeF32}}, exp: "null_i64f32"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeF32, ValueTypeI32, ValueTypeF64}}, exp: "null_f32i32f64"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}, exp: "i32_i64"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI64, ValueTypeF32}, Results: []ValueType{ValueTypeI64, ValueTypeF32}}, exp: "i64f32_i64f32"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI64, ValueTypeF32, ValueTypeF64}, Results: []ValueType{ValueTypeF32, ValueTypeI32, ValueTypeF64}}, exp: "i64f32f64_f32i32f64"},
	} {
		tc := tc
		t.Run(tc.functype.String(), func(t *testing.T) {
			require.Equal(t, tc.exp, tc.functype.String())
		})
	}
}

func TestSectionIDName(t *testing.T) {
	tests := []struct {
		name     string
		input    SectionID
		expected string
	}{
		{"custom", SectionIDCustom, "custom"},
		{"type", SectionIDType, "type"},
		{"import", SectionIDImport, "import"},
		{"function", SectionIDFunction, "function"},
		{"table", SectionIDTable, "table"},
		{"memory", SectionIDMemory, "memory"},
		{"global", SectionIDGlobal, "global"},
		{"export", SectionIDExport, "export"},
		{"start", SectionIDStart, "start"},
		{"element", SectionIDElement, "element"},
		{"code", SectionIDCode, "code"},
		{"data", SectionIDData, "data"},
		{"unknown", 100, "unknown"},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SectionIDName(tc.input))
		})
	}
}

func TestExternTypeName(t *testing.T) {
	tests := []struct {
		name     string
		input    ExternType
		expected string
	}{
		{"func", ExternTypeFunc, "func"},
		{"table", ExternTypeTable, "table"},
		{"mem", ExternTypeMemory, "memory"},
		{"global", ExternTypeGlobal, "global"},
		{"unknown", 100, "0x64"},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ExternTypeName(tc.input))
		})
	}
}

func TestModule_functionIndexSpace(t *testing.T) {
	ft0 := &FunctionType{Results: []ValueType{ValueTypeI32}}
	ft1 := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	m := &Module{
		TypeSection: []CompositeType{ft0, ft1},
		ImportSection: []*Import{
			{Module: "env", Name: "imported", Type: ExternTypeFunc, DescFunc: 1},
		},
		FunctionSection: []Index{0},
		ExportSection: []*Export{
			{Name: "main", Type: ExternTypeFunc, Index: 1},
		},
		FunctionNames: map[Index]string{0: "imported"},
	}

	require.Equal(t, 1, m.NumImportedFunctions())

	ti, err := m.FunctionTypeIndex(0)
	require.NoError(t, err)
	require.Equal(t, Index(1), ti)

	ti, err = m.FunctionTypeIndex(1)
	require.NoError(t, err)
	require.Equal(t, Index(0), ti)

	ft, err := m.FunctionTypeOf(1)
	require.NoError(t, err)
	require.Same(t, ft0, ft)

	require.Equal(t, "imported", m.FunctionName(0))
	require.Equal(t, "main", m.FunctionName(1))
	require.Equal(t, "func_2", m.FunctionName(2))

	name, ok := m.ExportedFunctionName(1)
	require.True(t, ok)
	require.Equal(t, "main", name)

	_, ok = m.ExportedFunctionName(0)
	require.False(t, ok)
}

func TestModule_compositeTypeLookup(t *testing.T) {
	st := &StructType{Fields: []FieldType{{StorageValueType: ValueTypeI32}}}
	at := &ArrayType{Element: FieldType{StorageValueType: ValueTypeI64}}
	m := &Module{TypeSection: []CompositeType{st, at}}

	got, err := m.StructTypeAt(0)
	require.NoError(t, err)
	require.Same(t, st, got)

	_, err = m.StructTypeAt(1)
	require.Error(t, err)

	gotArr, err := m.ArrayTypeAt(1)
	require.NoError(t, err)
	require.Same(t, at, gotArr)
}

func TestFunctionBody_AllLocals(t *testing.T) {
	fb := &FunctionBody{LocalGroups: []LocalGroup{
		{Count: 2, Type: ValueTypeI32},
		{Count: 1, Type: ValueTypeF64},
	}}
	require.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeF64}, fb.AllLocals())
}
