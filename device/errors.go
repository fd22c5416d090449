package device

import (
	"errors"
	"fmt"
)

// Failure causes. Session errors wrap exactly one of these, so callers can
// test them with errors.Is.
var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrBusy            = errors.New("device busy")
	ErrInvalidState    = errors.New("invalid session state")
	ErrFileNotFound    = errors.New("bitstream file not found")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrTimeout         = errors.New("timed out")
	ErrCanceled        = errors.New("canceled")
	ErrLengthMismatch  = errors.New("operand length mismatch")
	ErrWrongDirection  = errors.New("register direction not allowed")
	ErrUnknownRegister = errors.New("unknown register")
)

// Op identifies the session operation that failed
type Op string

const (
	OpConnect Op = "connect"
	OpProgram Op = "program"
	OpWrite   Op = "write"
	OpTrigger Op = "trigger"
	OpAwait   Op = "await"
	OpRead    Op = "read"
)

// Category returns the error family name used in user-facing messages
func (o Op) Category() string {
	switch o {
	case OpConnect:
		return "ConnectError"
	case OpProgram:
		return "ProgramError"
	case OpWrite:
		return "WriteError"
	case OpTrigger:
		return "TriggerError"
	case OpAwait:
		return "TimeoutError"
	case OpRead:
		return "ReadError"
	default:
		return "Error"
	}
}

// Error is returned by every failing Session operation
type Error struct {
	Op       Op
	Register string
	State    State
	Err      error
}

func (e *Error) Error() string {
	if e.Register != "" {
		return fmt.Sprintf("%s %s (state %s): %v", e.Op, e.Register, e.State, e.Err)
	}
	return fmt.Sprintf("%s (state %s): %v", e.Op, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Category returns the error family of the failed operation
func (e *Error) Category() string {
	return e.Op.Category()
}

// AsError extracts a *Error from err's chain
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
