// Package qaerr defines the error taxonomy shared by every motionqa analyzer.
//
// Analyzers never return a zero score in place of a statistic they could not
// compute. They return an *Error whose Kind is one of the sentinel errors
// below, so callers can classify failures with errors.Is:
//
//	report, err := timing.Analyze(timestamps, fps)
//	if errors.Is(err, qaerr.ErrInsufficientData) {
//	    // too few frames for this statistic
//	}
//
// The *Error also carries the operation, the frame index (when the failure
// is tied to one frame) and the offending value, which is enough context to
// reproduce the failure.
package qaerr

import (
	"errors"
	"fmt"
	"strings"
)

// Statistic errors.
var (
	// ErrInsufficientData indicates the sequence is too short for the
	// requested statistic.
	ErrInsufficientData = errors.New("insufficient data")
)

// Input and configuration errors.
var (
	// ErrInvalidInput indicates an out-of-range value, such as a
	// non-positive declared frame rate or a threshold outside (0,1].
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfiguration indicates structurally incompatible settings,
	// such as a wobble grid smaller than 2x2.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Pass errors.
var (
	// ErrUpstreamDecodeFailure indicates the frame source could not produce
	// a requested frame. It is propagated as-is and never retried.
	ErrUpstreamDecodeFailure = errors.New("upstream decode failure")

	// ErrCanceled indicates the caller canceled the analysis between frame
	// pairs. No partial report accompanies it.
	ErrCanceled = errors.New("analysis canceled")
)

// NoIndex marks an error that is not tied to a particular frame.
const NoIndex = -1

// Error is the structured failure returned by analyzers.
type Error struct {
	Kind   error  // one of the sentinel errors of this package
	Op     string // operation that failed, e.g. "timing.Analyze"
	Index  int    // frame or sample index, NoIndex when not applicable
	Field  string // name of the offending value, if any
	Value  any    // offending value, if any
	Detail string // human readable explanation
	Err    error  // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(kindText(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s=%v)", e.Field, e.Value)
	}
	if e.Index != NoIndex {
		fmt.Fprintf(&b, " at frame %d", e.Index)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WithIndex returns a copy of e tied to the given frame index.
func (e *Error) WithIndex(index int) *Error {
	c := *e
	c.Index = index
	return &c
}

func kindText(kind error) string {
	if kind == nil {
		return "error"
	}
	return kind.Error()
}

// InsufficientData reports that only have samples were available where need
// are required.
func InsufficientData(op string, have, need int) *Error {
	return &Error{
		Kind:   ErrInsufficientData,
		Op:     op,
		Index:  NoIndex,
		Detail: fmt.Sprintf("have %d samples, need at least %d", have, need),
	}
}

// InvalidInput reports an out-of-range value.
func InvalidInput(op, field string, value any, detail string) *Error {
	return &Error{
		Kind:   ErrInvalidInput,
		Op:     op,
		Index:  NoIndex,
		Field:  field,
		Value:  value,
		Detail: detail,
	}
}

// InvalidConfiguration reports structurally incompatible settings.
func InvalidConfiguration(op, field string, value any, detail string) *Error {
	return &Error{
		Kind:   ErrInvalidConfiguration,
		Op:     op,
		Index:  NoIndex,
		Field:  field,
		Value:  value,
		Detail: detail,
	}
}

// UpstreamDecode wraps a frame source failure at the given index.
func UpstreamDecode(op string, index int, cause error) *Error {
	return &Error{
		Kind:  ErrUpstreamDecodeFailure,
		Op:    op,
		Index: index,
		Err:   cause,
	}
}

// Canceled wraps a context error observed before the given index was read.
func Canceled(op string, index int, cause error) *Error {
	return &Error{
		Kind:  ErrCanceled,
		Op:    op,
		Index: index,
		Err:   cause,
	}
}

// IsKind reports whether err carries the given kind sentinel.
func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}
