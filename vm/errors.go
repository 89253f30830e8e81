package vm

import "fmt"

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies failures raised while executing a block.
type ErrorKind int

const (
	ArgumentError ErrorKind = iota + 1
	LookupError
	TypeError
	ControlFlowError
	InvocationError
	LoadError
	InternalError
)

var errorKindNames = map[ErrorKind]string{
	ArgumentError:    "ArgumentError",
	LookupError:      "LookupError",
	TypeError:        "TypeError",
	ControlFlowError: "ControlFlowError",
	InvocationError:  "InvocationError",
	LoadError:        "LoadError",
	InternalError:    "InternalError",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type stored on a frame and returned from Machine.Run.
// Index is the source position of the failing instruction, or -1.
type Error struct {
	Kind    ErrorKind
	Message string
	Index   int
}

func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s at %d: %s", e.Kind, e.Index, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is a kind sentinel (an *Error without message)
// of the same kind, so callers can write errors.Is(err, vm.ErrLookup).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" {
		return t.Kind == e.Kind && t.Message == e.Message
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrArgument     = &Error{Kind: ArgumentError, Index: -1}
	ErrLookup       = &Error{Kind: LookupError, Index: -1}
	ErrType         = &Error{Kind: TypeError, Index: -1}
	ErrControlFlow  = &Error{Kind: ControlFlowError, Index: -1}
	ErrInvocation   = &Error{Kind: InvocationError, Index: -1}
	ErrLoad         = &Error{Kind: LoadError, Index: -1}
	ErrInternal     = &Error{Kind: InternalError, Index: -1}
	ErrTypeMismatch = ErrType
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Index: -1}
}

// Messages shared between the dispatcher and the command handlers.
const (
	msgInvokingError   = "Invoking error is occurred."
	msgUnexpectedBreak = "Unexpected break/continue"
	msgUnexpectedEnd   = "Unexpected end of block"
	msgUnexpectedRet   = "Unexpected return"
	msgDividedByZero   = "Divided by zero"
)
