package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmqbe/waqc/internal/leb128"
)

// encodeModule assembles a minimal binary module: a header, a type
// section with one `() -> i32` signature, a function section naming it,
// and a code section returning a constant. There is no encoder anywhere
// in this repository, so tests build the byte stream by hand.
func encodeModule(t *testing.T, body []byte) []byte {
	t.Helper()
	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	typeSection := []byte{0x01, 0x60, 0x00, 0x01, 0x7f} // 1 type, func, 0 params, 1 result i32
	out = append(out, byte(1) /* SectionIDType */, byte(len(typeSection)))
	out = append(out, typeSection...)

	funcSection := []byte{0x01, 0x00}
	out = append(out, byte(3) /* SectionIDFunction */, byte(len(funcSection)))
	out = append(out, funcSection...)

	codeEntry := append([]byte{0x00}, body...) // 0 local groups
	codeSection := append([]byte{0x01, byte(len(codeEntry))}, codeEntry...)
	out = append(out, byte(10) /* SectionIDCode */, byte(len(codeSection)))
	out = append(out, codeSection...)

	return out
}

func TestCompile_validModuleProducesIL(t *testing.T) {
	body := append([]byte{0x41}, leb128.EncodeInt32(7)...) // i32.const 7
	body = append(body, 0x0b)                               // end
	wasmBytes := encodeModule(t, body)

	il, err := Compile(wasmBytes, Options{})
	require.NoError(t, err)
	require.Contains(t, il, "function w $")
	require.Contains(t, il, "ret")
}

func TestCompile_malformedHeaderReturnsParseError(t *testing.T) {
	_, err := Compile([]byte{0x00, 0x61, 0x73}, Options{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, ce.ParseErr)
	require.Nil(t, ce.Issues)
}

func TestCompile_validationFailureReturnsIssues(t *testing.T) {
	// A function body that falls off the end without a matching `end`
	// is well-formed at the decode stage (the decoder does not walk
	// opcodes) but fails structural validation.
	body := []byte{0x41, 0x07} // i32.const 7, no end
	wasmBytes := encodeModule(t, body)

	_, err := Compile(wasmBytes, Options{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.NotEmpty(t, ce.Issues)
}

func TestCompile_nilSinkDoesNotPanic(t *testing.T) {
	body := append([]byte{0x41}, leb128.EncodeInt32(1)...)
	body = append(body, 0x0b)
	wasmBytes := encodeModule(t, body)

	require.NotPanics(t, func() {
		_, err := Compile(wasmBytes, Options{Sink: nil})
		require.NoError(t, err)
	})
}

type capturingSink struct {
	messages []string
}

func (c *capturingSink) Log(level LogLevel, stage, message string, fields map[string]any) {
	c.messages = append(c.messages, stage+": "+message)
}

func TestCompile_sinkReceivesDiagnostics(t *testing.T) {
	body := append([]byte{0x41}, leb128.EncodeInt32(1)...)
	body = append(body, 0x0b)
	wasmBytes := encodeModule(t, body)

	sink := &capturingSink{}
	_, err := Compile(wasmBytes, Options{Sink: sink})
	require.NoError(t, err)
	require.NotEmpty(t, sink.messages)
}

func TestCompile_defaultsToNativeTarget(t *testing.T) {
	body := append([]byte{0x41}, leb128.EncodeInt32(1)...)
	body = append(body, 0x0b)
	wasmBytes := encodeModule(t, body)

	_, err := Compile(wasmBytes, Options{Target: ""})
	require.NoError(t, err)
}

func TestCompileError_messageSummarizesIssues(t *testing.T) {
	body := []byte{0x41, 0x07}
	wasmBytes := encodeModule(t, body)

	_, err := Compile(wasmBytes, Options{})
	require.Error(t, err)
	require.NotEmpty(t, err.Error())
}
