package ende

import (
	"errors"
	"fmt"
)

// Error handling follows a small set of sentinel kinds, wrapped with the
// structural path accumulated in the Context at the point of failure. Check
// kinds with errors.Is and extract the path with errors.As:
//
//	var encErr *ende.Error
//	if errors.As(err, &encErr) {
//		log.Printf("failed at %s: %v", encErr.Path, encErr.Err)
//	}
//	if errors.Is(err, ende.ErrSizeExceeded) {
//		// reject the input
//	}
//
// Underlying medium failures surface as endio.IOError and are never retried
// by the engine.
var (
	// ErrInvalidData is returned when content violates the declared format:
	// a null terminator embedded in a null-terminated string, a malformed
	// UTF-16/32 sequence, a var-int overflowing its target type, a value that
	// doesn't fit its declared bit-width.
	ErrInvalidData = errors.New("invalid data")

	// ErrUnknownVariant is returned when a decoded discriminant matches no
	// registered variant. Decoding never silently falls back to a default.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrSizeExceeded is returned when a declared collection or string length
	// exceeds the configured SizeRepr.MaxSize. It is returned before any
	// storage for the claimed length is allocated.
	ErrSizeExceeded = errors.New("size limit exceeded")

	// ErrDepthExceeded is returned when the recursion guard trips, preventing
	// unbounded stack growth on cyclic or adversarially deep input.
	ErrDepthExceeded = errors.New("recursion depth exceeded")

	// ErrFlatten is returned when a flattened value disagrees with the value
	// actually being encoded, e.g. a flattened length of 16 applied to a
	// 12-element slice.
	ErrFlatten = errors.New("flatten mismatch")
)

// Error wraps a sentinel kind with the structural path at which it occurred.
type Error struct {
	// Err is the error kind, matchable with errors.Is.
	Err error
	// Path is the dotted structural path (field names, variant names,
	// indices) from the root value to the failing element. Empty when the
	// failure happened at the root.
	Path string
	// Message carries extra information about the failure.
	Message string
}

// Error implements error.
func (e *Error) Error() string {
	str := e.Err.Error()
	if e.Message != "" {
		str += ": " + e.Message
	}
	if e.Path != "" {
		str += " (at " + e.Path + ")"
	}
	return str
}

// Unwrap implements errors.Unwrap.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps kind with a formatted message and the context's current
// structural path. ctx may be nil.
func newError(ctx *Context, kind error, format string, args ...any) error {
	err := &Error{
		Err:     kind,
		Message: fmt.Sprintf(format, args...),
	}
	if ctx != nil {
		err.Path = ctx.Path()
	}
	return err
}

// pathError attaches the context's current structural path to err, unless it
// already carries one. Errors from nested encodes pass through unchanged so
// the deepest path wins.
func pathError(ctx *Context, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	path := ""
	if ctx != nil {
		path = ctx.Path()
	}
	if path == "" {
		return err
	}
	return &Error{Err: err, Path: path}
}
