package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

// InstanceDecl declares one instance of a class.
type InstanceDecl struct {
	Name   string
	Class  string
	Params []ir.Value
	Pos    token.Pos
}

// Program is a compiled set of class templates and instance declarations,
// both in declaration order.
type Program struct {
	Classes   []*machine.Class
	Instances []InstanceDecl
}

// Compile decodes the top-level `class` and `machine` structs of v.
//
//	class: Pump: { states: ["idle", "running"], ... }
//	machine: pump1: { class: "Pump" }
func Compile(v cue.Value) (*Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	p := &Program{}

	if cv := v.LookupPath(cue.ParsePath("class")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			c, err := CompileClass(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", iter.Label(), err)
			}
			p.Classes = append(p.Classes, c)
		}
	}

	if mv := v.LookupPath(cue.ParsePath("machine")); mv.Exists() {
		iter, err := mv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			d, err := CompileMachine(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("machine %s: %w", iter.Label(), err)
			}
			p.Instances = append(p.Instances, d)
		}
	}
	return p, nil
}

// CompileMachine decodes one instance declaration. The instance name is
// the value's label.
func CompileMachine(v cue.Value) (InstanceDecl, error) {
	if err := v.Err(); err != nil {
		return InstanceDecl{}, formatCUEError(err)
	}
	d := InstanceDecl{Name: label(v), Pos: v.Pos()}
	var err error
	if d.Class, err = stringField(v, "class", d.Name); err != nil {
		return d, err
	}
	if d.Params, err = parseParamValues(v, d.Name); err != nil {
		return d, err
	}
	return d, nil
}

// Class returns the program's class named name.
func (p *Program) Class(name string) (*machine.Class, bool) {
	for _, c := range p.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Load defines the classes and creates the instances in reg. Failures are
// collected rather than stopping at the first; instances are not bound or
// enabled.
func (p *Program) Load(reg *machine.Registry) error {
	var errs []error
	for _, c := range p.Classes {
		if err := reg.DefineClass(c); err != nil {
			errs = append(errs, fmt.Errorf("class %s: %w", c.Name, err))
		}
	}
	for _, d := range p.Instances {
		if _, err := reg.Create(d.Name, d.Class, d.Params...); err != nil {
			errs = append(errs, fmt.Errorf("machine %s: %w", d.Name, err))
		}
	}
	return errors.Join(errs...)
}
