package compiler

import (
	"fmt"

	"github.com/roach88/clockwork/internal/machine"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateClass     = "E101" // class declared twice
	ErrDuplicateMachine   = "E102" // machine declared twice
	ErrUnknownClass       = "E103" // machine or local of an undeclared class
	ErrParameterCount     = "E104" // parameters supplied do not match the class
	ErrInvalidClass       = "E105" // class template is inconsistent
	ErrUnknownInitial     = "E106" // initial state is not a declared state
	ErrUnknownCommand     = "E107" // handler names a command the class lacks
	ErrInvalidMachineName = "E108" // machine name is empty or reserved
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled program. It returns every error found.
func Validate(p *Program) []ValidationError {
	var errs []ValidationError

	classes := map[string]*machine.Class{}
	for _, c := range machine.BuiltinClasses() {
		classes[c.Name] = c
	}
	declared := map[string]bool{}
	for _, c := range p.Classes {
		if declared[c.Name] {
			errs = append(errs, ValidationError{
				Field:   "class." + c.Name,
				Message: fmt.Sprintf("duplicate class %q", c.Name),
				Code:    ErrDuplicateClass,
			})
		}
		declared[c.Name] = true
		classes[c.Name] = c
	}
	for _, c := range p.Classes {
		errs = append(errs, validateClass(c, classes)...)
	}

	seen := map[string]bool{}
	for _, d := range p.Instances {
		field := "machine." + d.Name
		line := 0
		if d.Pos.IsValid() {
			line = d.Pos.Line()
		}
		if d.Name == "" || d.Name == "SELF" || d.Name == machine.TimerSymbol {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q cannot name a machine", d.Name),
				Code:    ErrInvalidMachineName,
				Line:    line,
			})
		}
		if seen[d.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate machine %q", d.Name),
				Code:    ErrDuplicateMachine,
				Line:    line,
			})
		}
		seen[d.Name] = true

		c, ok := classes[d.Class]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".class",
				Message: fmt.Sprintf("unknown class %q", d.Class),
				Code:    ErrUnknownClass,
				Line:    line,
			})
			continue
		}
		if c.Kind != machine.KindList && len(d.Params) != len(c.Parameters) {
			errs = append(errs, ValidationError{
				Field:   field + ".params",
				Message: fmt.Sprintf("class %s declares %d parameters, %d supplied", c.Name, len(c.Parameters), len(d.Params)),
				Code:    ErrParameterCount,
				Line:    line,
			})
		}
	}
	return errs
}

func validateClass(c *machine.Class, classes map[string]*machine.Class) []ValidationError {
	var errs []ValidationError
	field := "class." + c.Name

	for _, err := range c.Validate() {
		errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrInvalidClass})
	}
	if c.InitialState != "" && len(c.States) > 0 && !c.HasState(c.InitialState) {
		if _, stable := c.StableState(c.InitialState); !stable {
			errs = append(errs, ValidationError{
				Field:   field + ".initial",
				Message: fmt.Sprintf("initial state %q is not a state", c.InitialState),
				Code:    ErrUnknownInitial,
			})
		}
	}
	for _, ss := range c.StableStates {
		for _, h := range ss.Subconditions {
			if h.Kind != machine.HandlerCommand {
				continue
			}
			if _, ok := c.Commands[h.Command]; !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".stable." + ss.Name,
					Message: fmt.Sprintf("handler runs unknown command %q", h.Command),
					Code:    ErrUnknownCommand,
				})
			}
		}
	}
	for _, l := range c.Locals {
		if _, ok := classes[l.Class]; !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".locals." + l.Name,
				Message: fmt.Sprintf("unknown class %q", l.Class),
				Code:    ErrUnknownClass,
			})
		}
	}
	return errs
}
