package error

import (
	"fmt"

	"github.com/pkg/errors"
)

// ContextClosedError is returned by blocking waits which were aborted because the
// parent context got closed.
type ContextClosedError struct {
	Message string
}

func (m *ContextClosedError) Error() string {
	return m.Message
}

// FatalError marks a failed precondition: the run has to be aborted before any
// resource gets mutated.
type FatalError struct {
	Message string
	Cause   error
}

func NewFatalError(cause error, format string, args ...interface{}) *FatalError {
	return &FatalError{
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func (f *FatalError) Error() string {
	if f.Cause == nil {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Message, f.Cause)
}

func (f *FatalError) Unwrap() error {
	return f.Cause
}

// IsFatal is true if err or one of its causes is a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
