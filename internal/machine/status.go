package machine

import "fmt"

// Status is the lifecycle state of an action.
//
//	New -> Running -> {Complete, Failed, Suspended, NeedsRetry}
//	Suspended -> Running
//	NeedsRetry -> Running
//
// Complete and Failed are terminal.
type Status int

const (
	StatusNew Status = iota
	StatusRunning
	StatusSuspended
	StatusNeedsRetry
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusNeedsRetry:
		return "NeedsRetry"
	case StatusComplete:
		return "Complete"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s is Complete or Failed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// transition is the single place where action status changes are checked.
// A Suspended action may finish while suspended: it pushed a child and then
// reported its own result.
func transition(from, to Status) error {
	if from.Terminal() {
		return NewDefectError(ErrCodeTerminalReexecute,
			fmt.Sprintf("action already %s cannot become %s", from, to))
	}
	ok := false
	switch from {
	case StatusNew:
		ok = to == StatusRunning
	case StatusRunning:
		ok = to != StatusNew
	case StatusSuspended:
		ok = to == StatusRunning || to == StatusSuspended || to.Terminal()
	case StatusNeedsRetry:
		ok = to == StatusRunning
	}
	if !ok {
		return NewDefectError(ErrCodeInvalidTransition,
			fmt.Sprintf("invalid action transition %s -> %s", from, to))
	}
	return nil
}
