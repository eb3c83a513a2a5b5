package qbeil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func moduleOf(f *Function) *Module {
	m := NewModule()
	m.AddFunction(f)
	return m
}

func TestFunction_renderSimpleAdd(t *testing.T) {
	f := NewFunction("add")
	f.Export = true
	w := TypeWord
	f.ReturnType = &w
	f.Params = []Param{
		{Name: Temporary{Name: "a"}, Type: TypeWord},
		{Name: Temporary{Name: "b"}, Type: TypeWord},
	}
	result := Temporary{Name: "r"}
	f.Entry().Append(BinaryOp{Op: OpAdd, Result: result, Type: TypeWord, Lhs: Temporary{Name: "a"}, Rhs: Temporary{Name: "b"}})
	f.Entry().Terminate(Return{Value: result})

	got := moduleOf(f).Render()
	require.Equal(t, "export function w $add(w %a, w %b) {\n@entry\n\t%r =w add %a, %b\n\tret %r\n}\n", got)
}

func TestBlock_doubleTerminatePanics(t *testing.T) {
	b := NewBlock("l")
	b.Terminate(Halt{})
	require.Panics(t, func() { b.Terminate(Halt{}) })
}

func TestBlock_appendAfterTerminatePanics(t *testing.T) {
	b := NewBlock("l")
	b.Terminate(Halt{})
	require.Panics(t, func() { b.Append(Copy{Result: Temporary{ID: 0}, Type: TypeWord, Src: IntConst{V: 1}}) })
}

func TestModule_renderIsDeterministic(t *testing.T) {
	build := func() *Module {
		m := NewModule()
		f := NewFunction("main")
		f.Entry().Append(Copy{Result: Temporary{ID: 0}, Type: TypeWord, Src: IntConst{V: 42}})
		f.Entry().Terminate(Return{Value: Temporary{ID: 0}})
		m.AddFunction(f)
		return m
	}
	require.Equal(t, build().Render(), build().Render())
}

func TestPhi_render(t *testing.T) {
	f := NewFunction("choose")
	merge := f.NewBlock("merge")
	result := Temporary{ID: 1}
	merge.AddPhi(Phi{Result: result, Type: TypeWord, Incoming: []PhiIncoming{
		{From: "then", Value: IntConst{V: 1}},
		{From: "els", Value: IntConst{V: 0}},
	}})
	merge.Terminate(Return{Value: result})
	f.Entry().Terminate(Jump{Target: "merge"})

	got := moduleOf(f).Render()
	require.True(t, strings.Contains(got, "%t1 =w phi @then 1, @els 0\n"), got)
}

func TestDataDef_render(t *testing.T) {
	m := NewModule()
	m.AddData(&DataDef{Name: "global_0", Fields: []DataField{{Type: TypeWord, Value: IntConst{V: 7}}}})
	got := m.Render()
	require.Equal(t, "data $global_0 = { w 7 }\n", got)
}
