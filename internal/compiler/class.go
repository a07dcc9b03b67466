package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

// CompileClass decodes a CUE value into a class template. The class name
// is the value's label:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`class: Valve: { ... }`)
//	c, err := CompileClass(v.LookupPath(cue.ParsePath("class.Valve")))
func CompileClass(v cue.Value) (*machine.Class, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	c := &machine.Class{
		Name:     label(v),
		Commands: map[string]machine.Command{},
		Receives: map[string]machine.Command{},
		Options:  map[string]ir.Value{},
	}
	var err error

	kind, err := optionalString(v, "kind", "kind")
	if err != nil {
		return nil, err
	}
	if c.Kind, err = machine.ParseKind(kind); err != nil {
		return nil, &CompileError{Field: "kind", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("kind")).Pos()}
	}

	if sv := v.LookupPath(cue.ParsePath("states")); sv.Exists() {
		if c.States, err = stringList(sv, "states"); err != nil {
			return nil, err
		}
	}
	if c.InitialState, err = optionalString(v, "initial", "initial"); err != nil {
		return nil, err
	}
	if c.Parameters, err = parseParameters(v); err != nil {
		return nil, err
	}
	if c.Options, err = parseValueMap(v, "options"); err != nil {
		return nil, err
	}
	if c.Exports, err = parseExports(v); err != nil {
		return nil, err
	}
	if c.Locals, err = parseLocals(v); err != nil {
		return nil, err
	}
	if c.StableStates, err = parseStableStates(v); err != nil {
		return nil, err
	}
	if c.Transitions, err = parseTransitions(v); err != nil {
		return nil, err
	}
	if c.Commands, err = parseCommands(v, "commands"); err != nil {
		return nil, err
	}
	if c.Receives, err = parseCommands(v, "receives"); err != nil {
		return nil, err
	}

	if !v.LookupPath(cue.ParsePath("states")).Exists() {
		c.States = derivedStates(c)
	}
	return c, nil
}

// derivedStates lists the states a class mentions when none are declared.
func derivedStates(c *machine.Class) []string {
	var states []string
	add := func(s string) {
		if s == "" || s == machine.AnyState {
			return
		}
		for _, have := range states {
			if have == s {
				return
			}
		}
		states = append(states, s)
	}
	add(c.InitialState)
	for _, ss := range c.StableStates {
		add(ss.Name)
	}
	for _, t := range c.Transitions {
		add(t.Source)
		add(t.Dest)
	}
	return states
}

// parseParameters accepts names or {name, defaults} objects.
func parseParameters(v cue.Value) ([]machine.ParameterSpec, error) {
	pv := v.LookupPath(cue.ParsePath("parameters"))
	if !pv.Exists() {
		return nil, nil
	}
	items, err := listValues(pv)
	if err != nil {
		return nil, err
	}
	params := make([]machine.ParameterSpec, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("parameters[%d]", i)
		if name, err := item.String(); err == nil {
			params = append(params, machine.ParameterSpec{Name: ir.NormalizeName(name)})
			continue
		}
		name, err := stringField(item, "name", field)
		if err != nil {
			return nil, err
		}
		defaults, err := parseValueMap(item, "defaults")
		if err != nil {
			return nil, err
		}
		params = append(params, machine.ParameterSpec{Name: name, Defaults: defaults})
	}
	return params, nil
}

func parseValueMap(v cue.Value, key string) (map[string]ir.Value, error) {
	out := map[string]ir.Value{}
	mv := v.LookupPath(cue.ParsePath(key))
	if !mv.Exists() {
		return out, nil
	}
	iter, err := mv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := ir.NormalizeName(iter.Label())
		val, err := compileValue(iter.Value(), key+"."+name)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

func parseExports(v cue.Value) (map[string]string, error) {
	ev := v.LookupPath(cue.ParsePath("exports"))
	if !ev.Exists() {
		return nil, nil
	}
	iter, err := ev.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := map[string]string{}
	for iter.Next() {
		name := ir.NormalizeName(iter.Label())
		addr, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: "exports." + name, Message: "export address must be a string", Pos: iter.Value().Pos()}
		}
		out[name] = addr
	}
	return out, nil
}

// parseLocals decodes owned sub-instances in declaration order.
func parseLocals(v cue.Value) ([]machine.LocalSpec, error) {
	lv := v.LookupPath(cue.ParsePath("locals"))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var locals []machine.LocalSpec
	for iter.Next() {
		name := ir.NormalizeName(iter.Label())
		field := "locals." + name
		class, err := stringField(iter.Value(), "class", field)
		if err != nil {
			return nil, err
		}
		params, err := parseParamValues(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		locals = append(locals, machine.LocalSpec{Name: name, Class: class, Params: params})
	}
	return locals, nil
}

func parseParamValues(v cue.Value, field string) ([]ir.Value, error) {
	pv := v.LookupPath(cue.ParsePath("params"))
	if !pv.Exists() {
		return nil, nil
	}
	items, err := listValues(pv)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Value, len(items))
	for i, item := range items {
		if out[i], err = compileValue(item, fmt.Sprintf("%s.params[%d]", field, i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parseStableStates keeps declaration order; the first state whose
// condition holds wins.
func parseStableStates(v cue.Value) ([]machine.StableState, error) {
	sv := v.LookupPath(cue.ParsePath("stable"))
	if !sv.Exists() {
		return nil, nil
	}
	items, err := listValues(sv)
	if err != nil {
		return nil, err
	}
	out := make([]machine.StableState, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("stable[%d]", i)
		name, err := stringField(item, "state", field)
		if err != nil {
			return nil, err
		}
		var cond machine.Expr
		if wv := item.LookupPath(cue.ParsePath("when")); wv.Exists() {
			if cond, err = compileExpr(wv, field+".when"); err != nil {
				return nil, err
			}
		}
		subs, err := parseHandlers(item, field)
		if err != nil {
			return nil, err
		}
		out = append(out, machine.NewStableState(name, cond, subs...))
	}
	return out, nil
}

func parseHandlers(v cue.Value, field string) ([]machine.ConditionHandler, error) {
	hv := v.LookupPath(cue.ParsePath("handlers"))
	if !hv.Exists() {
		return nil, nil
	}
	items, err := listValues(hv)
	if err != nil {
		return nil, err
	}
	var out []machine.ConditionHandler
	for i, item := range items {
		hfield := fmt.Sprintf("%s.handlers[%d]", field, i)
		cond, err := compileExpr(item.LookupPath(cue.ParsePath("when")), hfield+".when")
		if err != nil {
			return nil, err
		}
		h := machine.ConditionHandler{Condition: cond}
		switch {
		case item.LookupPath(cue.ParsePath("flag")).Exists():
			h.Kind = machine.HandlerFlag
			h.Flag, err = stringField(item, "flag", hfield)
		case item.LookupPath(cue.ParsePath("command")).Exists():
			h.Kind = machine.HandlerCommand
			h.Command, err = stringField(item, "command", hfield)
		default:
			err = &CompileError{Field: hfield, Message: "handler needs a flag or a command", Pos: item.Pos()}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func parseTransitions(v cue.Value) ([]machine.Transition, error) {
	tv := v.LookupPath(cue.ParsePath("transitions"))
	if !tv.Exists() {
		return nil, nil
	}
	items, err := listValues(tv)
	if err != nil {
		return nil, err
	}
	out := make([]machine.Transition, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("transitions[%d]", i)
		from, err := optionalString(item, "from", field)
		if err != nil {
			return nil, err
		}
		if from == "" {
			from = machine.AnyState
		}
		to, err := stringField(item, "to", field)
		if err != nil {
			return nil, err
		}
		on, err := stringField(item, "on", field)
		if err != nil {
			return nil, err
		}
		t := machine.Transition{Source: from, Dest: to, Trigger: on}
		if wv := item.LookupPath(cue.ParsePath("when")); wv.Exists() {
			if t.Condition, err = compileExpr(wv, field+".when"); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func parseCommands(v cue.Value, key string) (map[string]machine.Command, error) {
	out := map[string]machine.Command{}
	cv := v.LookupPath(cue.ParsePath(key))
	if !cv.Exists() {
		return out, nil
	}
	iter, err := cv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := ir.NormalizeName(iter.Label())
		steps, err := compileSteps(iter.Value(), key+"."+name)
		if err != nil {
			return nil, err
		}
		out[name] = machine.Command{Name: name, Steps: steps}
	}
	return out, nil
}

// label returns the last path selector of v, unquoted.
func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return ir.NormalizeName(strings.Trim(sels[len(sels)-1].String(), `"`))
}

// stringField reads a required string field.
func stringField(v cue.Value, key, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + key, Message: "must be a string", Pos: fv.Pos()}
	}
	return ir.NormalizeName(s), nil
}

// optionalString reads a string field that may be absent.
func optionalString(v cue.Value, key, field string) (string, error) {
	if !v.LookupPath(cue.ParsePath(key)).Exists() {
		return "", nil
	}
	return stringField(v, key, field)
}

func stringList(v cue.Value, field string) ([]string, error) {
	items, err := listValues(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, err := item.String()
		if err != nil {
			return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", field, i), Message: "must be a string", Pos: item.Pos()}
		}
		out[i] = ir.NormalizeName(s)
	}
	return out, nil
}

// CompileError is a decoding error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError turns the first CUE error into a CompileError carrying
// its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: strings.TrimSpace(first.Error()),
			Pos:     positions[0],
		}
	}
	return err
}
