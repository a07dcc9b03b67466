package machine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while binding or running
// machine instances.
//
// Runtime errors fall into three groups:
//   - Configuration: unknown machine or state, parameter count mismatch
//   - Runtime: non-numeric timer values, disabled targets, full mailboxes
//   - Defects: broken execution-stack invariants (double pop, orphan trigger)
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Machine is the fully qualified name of the affected instance.
	Machine string

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeUnknownState      RuntimeErrorCode = "UNKNOWN_STATE"
	ErrCodeUnknownMachine    RuntimeErrorCode = "UNKNOWN_MACHINE"
	ErrCodeUnknownClass      RuntimeErrorCode = "UNKNOWN_CLASS"
	ErrCodeParameterMismatch RuntimeErrorCode = "PARAMETER_MISMATCH"
	ErrCodeDuplicateName     RuntimeErrorCode = "DUPLICATE_NAME"
	ErrCodeInvalidClass      RuntimeErrorCode = "INVALID_CLASS"

	ErrCodeNotNumeric   RuntimeErrorCode = "NOT_NUMERIC"
	ErrCodeDisabled     RuntimeErrorCode = "DISABLED"
	ErrCodeMailboxFull  RuntimeErrorCode = "MAILBOX_FULL"
	ErrCodeReplyLost    RuntimeErrorCode = "REPLY_LOST"
	ErrCodeReadOnly     RuntimeErrorCode = "READ_ONLY"
	ErrCodeInvalidValue RuntimeErrorCode = "INVALID_VALUE"

	ErrCodeDoublePop         RuntimeErrorCode = "DOUBLE_POP"
	ErrCodeOrphanTrigger     RuntimeErrorCode = "ORPHAN_TRIGGER"
	ErrCodeTerminalReexecute RuntimeErrorCode = "TERMINAL_REEXECUTE"
	ErrCodeInvalidTransition RuntimeErrorCode = "INVALID_TRANSITION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Machine != "" {
		return fmt.Sprintf("%s: %s (machine=%s)", e.Code, e.Message, e.Machine)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Defect reports whether the error indicates a broken invariant.
func (e *RuntimeError) Defect() bool {
	switch e.Code {
	case ErrCodeDoublePop, ErrCodeOrphanTrigger, ErrCodeTerminalReexecute, ErrCodeInvalidTransition:
		return true
	}
	return false
}

// Config reports whether the error was detected while binding a class or
// instance.
func (e *RuntimeError) Config() bool {
	switch e.Code {
	case ErrCodeUnknownState, ErrCodeUnknownMachine, ErrCodeUnknownClass,
		ErrCodeParameterMismatch, ErrCodeDuplicateName, ErrCodeInvalidClass:
		return true
	}
	return false
}

// IsDefect returns true if err is a protocol or logic defect.
// Uses errors.As to handle wrapped errors.
func IsDefect(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Defect()
	}
	return false
}

// IsConfigError returns true if err is a configuration error.
func IsConfigError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Config()
	}
	return false
}

// HasCode returns true if err is a RuntimeError with the given code.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewConfigError creates a configuration error for a machine.
func NewConfigError(code RuntimeErrorCode, machine, message string) *RuntimeError {
	return &RuntimeError{Code: code, Machine: machine, Message: message}
}

// NewDefectError creates an execution-stack defect error.
func NewDefectError(code RuntimeErrorCode, message string) *RuntimeError {
	return &RuntimeError{Code: code, Message: message}
}

func newError(code RuntimeErrorCode, machine, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Machine: machine, Message: fmt.Sprintf(format, args...)}
}
