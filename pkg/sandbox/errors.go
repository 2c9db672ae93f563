package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEngine is returned when the configured engine is unknown
	ErrInvalidEngine = errors.New("invalid sandbox engine")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")

	// ErrInvalidCallStack is returned when the call stack limit is invalid
	ErrInvalidCallStack = errors.New("invalid call stack size (must be >= 0)")

	// ErrSandboxNotRunning is returned when the sandbox is not running
	ErrSandboxNotRunning = errors.New("sandbox is not running")

	// ErrSandboxAlreadyRunning is returned when the sandbox is already running
	ErrSandboxAlreadyRunning = errors.New("sandbox is already running")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrEmptyEntryPoint is returned when a callable is constructed without an entry point
	ErrEmptyEntryPoint = errors.New("entry point name is required")
)

// CompileError reports source text that could not be turned into a callable:
// a syntax error, or an entry point that does not name a function.
type CompileError struct {
	Entry   string
	Message string
}

func (e *CompileError) Error() string {
	return e.Message
}

// RuntimeError reports a value thrown, or a promise rejected, while a
// callable ran. Message is the thrown error's message, or the string form of
// a thrown non-error value.
type RuntimeError struct {
	Message string
	Name    string // constructor name of the thrown value, when known
	Stack   string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

func notCallable(entry, kind string) *CompileError {
	return &CompileError{
		Entry:   entry,
		Message: fmt.Sprintf("%s is not a function (got %s)", entry, kind),
	}
}
