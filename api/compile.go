// Package api is the public entry point of the compiler core: a pure
// function from a WebAssembly binary module to QBE IL text. It owns no
// runtime, executes no WebAssembly, and keeps no state across calls —
// an Options value configures a single Compile invocation.
package api

import (
	"bytes"
	"fmt"

	"github.com/wasmqbe/waqc/internal/codegen"
	"github.com/wasmqbe/waqc/internal/logging"
	"github.com/wasmqbe/waqc/internal/wasm"
)

// Target re-exports codegen.Target so callers never need to import
// internal/codegen directly.
type Target = codegen.Target

const (
	TargetNative       = codegen.TargetNative
	TargetFreestanding = codegen.TargetFreestanding
)

// LogLevel and its constants re-export internal/logging's Level so a
// caller wiring its own Sink (as cmd/waqc does for logrus) never needs
// to import internal/logging directly.
type LogLevel = logging.Level

const (
	LogLevelDebug = logging.LevelDebug
	LogLevelInfo  = logging.LevelInfo
	LogLevelWarn  = logging.LevelWarn
	LogLevelError = logging.LevelError
)

// Sink re-exports logging.Sink for the same reason.
type Sink = logging.Sink

// Issue, Severity, and Location re-export the structural-validation
// finding types so a caller inspecting a CompileError's Issues never
// needs to import internal/wasm directly.
type (
	Issue    = wasm.Issue
	Severity = wasm.Severity
	Location = wasm.Location
)

const (
	SeverityError   = wasm.SeverityError
	SeverityWarning = wasm.SeverityWarning
)

// CompileError is returned by Compile when the input fails to parse or
// validate. Exactly one of ParseErr or Issues is populated, matching
// which stage rejected the module.
type CompileError struct {
	ParseErr error
	Issues   []Issue
}

func (e *CompileError) Error() string {
	if e.ParseErr != nil {
		return e.ParseErr.Error()
	}
	if len(e.Issues) > 0 {
		return fmt.Sprintf("%s (and %d more issue(s))", e.Issues[0].String(), len(e.Issues)-1)
	}
	return "compile failed"
}

func (e *CompileError) Unwrap() error { return e.ParseErr }

// Options configures a single Compile call.
type Options struct {
	// Target names the ABI to compile for; every target produces the
	// same IL (see codegen.Target). The zero value is TargetNative.
	Target Target
	// Sink receives structured diagnostics from every pipeline stage.
	// A nil Sink discards them.
	Sink logging.Sink
}

// Compile decodes, structurally validates, and lowers a WebAssembly
// binary module to textual QBE IL. It performs no linking, assembly, or
// execution: the returned string is exactly what a QBE-compatible
// backend consumes next.
func Compile(wasmBytes []byte, opts Options) (string, error) {
	target := opts.Target
	if target == "" {
		target = TargetNative
	}
	log := logging.NewLogger(opts.Sink, "compile")

	m, err := wasm.DecodeModule(bytes.NewReader(wasmBytes))
	if err != nil {
		log.Errorf("decode failed: %s", err)
		return "", &CompileError{ParseErr: err}
	}
	log.Debugf("decoded module: %d functions, %d globals", len(m.CodeSection), len(m.GlobalSection))

	result := wasm.Validate(m)
	if !result.OK() {
		log.Errorf("validation failed with %d error(s)", len(result.Errors()))
		return "", &CompileError{Issues: result.Errors()}
	}
	for _, w := range result.Warnings() {
		log.Warnf("%s", w.String())
	}

	out, err := codegen.Compile(m, target)
	if err != nil {
		log.Errorf("codegen failed: %s", err)
		return "", err
	}
	log.Infof("compiled %d function(s) to IL", len(out.Functions))
	return out.Render(), nil
}
