package wasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeModule_headerRejection(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x00, 0x61, 0x73}},
		{"bad magic", []byte{0x01, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeModule(bytes.NewReader(tt.in))
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
		})
	}
}

func TestDecodeModule_emptyModule(t *testing.T) {
	in := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	m, err := DecodeModule(bytes.NewReader(in))
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Empty(t, m.TypeSection)
}

func TestDecodeModule_typeAndFunctionSections(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	// type section: one func type (i32, i32) -> i32
	typeSection := []byte{
		0x01,                   // 1 type
		0x60,                   // func form
		0x02, 0x7f, 0x7f,       // 2 params i32 i32
		0x01, 0x7f,             // 1 result i32
	}
	buf.WriteByte(byte(SectionIDType))
	buf.WriteByte(byte(len(typeSection)))
	buf.Write(typeSection)

	// function section: one function using type 0
	funcSection := []byte{0x01, 0x00}
	buf.WriteByte(byte(SectionIDFunction))
	buf.WriteByte(byte(len(funcSection)))
	buf.Write(funcSection)

	// code section: local.get 0, local.get 1, i32.add, end
	body := []byte{byte(OpcodeLocalGet), 0, byte(OpcodeLocalGet), 1, byte(OpcodeI32Add), byte(OpcodeEnd)}
	codeEntry := append([]byte{0x00}, body...) // 0 local groups
	codeSection := append([]byte{0x01, byte(len(codeEntry))}, codeEntry...)
	buf.WriteByte(byte(SectionIDCode))
	buf.WriteByte(byte(len(codeSection)))
	buf.Write(codeSection)

	m, err := DecodeModule(&buf)
	require.NoError(t, err)
	require.Len(t, m.TypeSection, 1)
	ft, ok := m.TypeSection[0].(*FunctionType)
	require.True(t, ok)
	require.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32}, ft.Params)
	require.Equal(t, []ValueType{ValueTypeI32}, ft.Results)
	require.Equal(t, []Index{0}, m.FunctionSection)
	require.Len(t, m.CodeSection, 1)
	require.Equal(t, body, m.CodeSection[0].Code)

	res := Validate(m)
	require.True(t, res.OK(), "%v", res.Errors())
}

func TestDecodeModule_truncatedSectionIsParseError(t *testing.T) {
	in := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, byte(SectionIDType), 0x05, 0x01}
	_, err := DecodeModule(bytes.NewReader(in))
	require.Error(t, err)
}

func TestDecodeModule_customNameSection(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var nameSub bytes.Buffer
	nameSub.WriteByte(0x01) // function count
	nameSub.WriteByte(0x00) // function index 0
	nameSub.WriteByte(0x04) // name length
	nameSub.WriteString("main")

	var funcNameSubsection bytes.Buffer
	funcNameSubsection.WriteByte(0x01) // subsection id: function names
	funcNameSubsection.WriteByte(byte(nameSub.Len()))
	funcNameSubsection.Write(nameSub.Bytes())

	var customPayload bytes.Buffer
	customPayload.WriteByte(0x04) // "name" length
	customPayload.WriteString("name")
	customPayload.Write(funcNameSubsection.Bytes())

	buf.WriteByte(byte(SectionIDCustom))
	buf.WriteByte(byte(customPayload.Len()))
	buf.Write(customPayload.Bytes())

	m, err := DecodeModule(&buf)
	require.NoError(t, err)
	require.Equal(t, "main", m.FunctionNames[0])
}
