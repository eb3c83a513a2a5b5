package wasm

import "fmt"

// ParseError is returned by DecodeModule for any malformed byte sequence:
// bad magic/version, truncated sections, out-of-width LEB128 integers,
// invalid UTF-8 in names, or an unrecognized type-form marker. Offset is
// the byte position, relative to the start of the module, where the
// problem was detected.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
}

func newParseError(offset int, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// Severity classifies a validation Issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Location pinpoints a validation issue within a function body.
type Location struct {
	FunctionIndex Index
	ByteOffset    int
}

// Issue is a single structural or advisory finding from Validate.
type Issue struct {
	Severity Severity
	Message  string
	Location Location
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: function %d, offset %d: %s", i.Severity, i.Location.FunctionIndex, i.Location.ByteOffset, i.Message)
}

// ValidationResult accumulates every Issue found by a single validation
// pass over a Module, separating blocking errors from advisory warnings.
type ValidationResult struct {
	Issues []Issue
}

// Errors returns the subset of Issues at SeverityError.
func (r *ValidationResult) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Warnings returns the subset of Issues at SeverityWarning.
func (r *ValidationResult) Warnings() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

// OK reports whether no blocking errors were recorded.
func (r *ValidationResult) OK() bool {
	return len(r.Errors()) == 0
}

func (r *ValidationResult) addError(funcIdx Index, offset int, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Location: Location{FunctionIndex: funcIdx, ByteOffset: offset},
	})
}

func (r *ValidationResult) addWarning(funcIdx Index, offset int, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
		Location: Location{FunctionIndex: funcIdx, ByteOffset: offset},
	})
}

// Error renders the first blocking error, satisfying the error interface
// so a *ValidationResult with outstanding errors can itself be returned
// as an error value by callers that only care about the first failure.
func (r *ValidationResult) Error() string {
	errs := r.Errors()
	if len(errs) == 0 {
		return "validation failed"
	}
	return errs[0].String()
}
