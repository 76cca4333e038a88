package endio

import "errors"

// NewIOError returns an IOError wrapping err with the given message.
// err is typically the error returned by the io.Reader or io.Writer, or
// another error describing why the medium isn't operating correctly.
func NewIOError(err error, message string) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	return IOError{
		Err:     err,
		Message: message,
	}
}

// IOError is returned when the underlying medium fails, or misbehaves in a
// way the engine cannot paper over. Callers seeing an IOError should stop
// using the reader or writer that produced it.
type IOError struct {
	Err     error
	Message string
}

// Error implements error.
func (e IOError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap implements errors.Unwrap.
func (e IOError) Unwrap() error {
	return e.Err
}
