package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/clockwork/internal/machine"
)

// compileSteps decodes a command body: a list of step objects, one verb
// key each.
//
//	{state: "running"}                    set own state
//	{set: "pump", to: "running"}          set another machine's state
//	{set: "SPEED", value: 20}             set a property
//	{send: "start", to: "pump"}           send (no target broadcasts)
//	{call: "start", on: "pump"}           send and wait for the reply
//	{wait: 500}                           wait milliseconds
//	{waitfor: ["IS", "pump", "running"]}  wait for a condition
//	{enable: "pump"} {disable: "pump"}
//	{resume: "pump", at: "idle"}
//	{log: {str: "started"}}
//	{append: "pump", to: "queue"}
//	{take: "queue", into: "NEXT", last: false}
//	{intersect: ["a", "b"], into: "both"}
func compileSteps(v cue.Value, field string) ([]machine.Step, error) {
	items, err := listValues(v)
	if err != nil {
		return nil, err
	}
	steps := make([]machine.Step, 0, len(items))
	for i, item := range items {
		step, err := compileStep(item, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func compileStep(v cue.Value, field string) (machine.Step, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: field, Message: "step must be an object", Pos: v.Pos()}
	}
	has := func(key string) bool { return v.LookupPath(cue.ParsePath(key)).Exists() }
	str := func(key string) (string, error) { return stringField(v, key, field) }
	expr := func(key string) (machine.Expr, error) {
		return compileExpr(v.LookupPath(cue.ParsePath(key)), field+"."+key)
	}

	switch {
	case has("state"):
		state, err := str("state")
		if err != nil {
			return nil, err
		}
		return machine.SetStateStep{State: state}, nil

	case has("set"):
		target, err := str("set")
		if err != nil {
			return nil, err
		}
		if has("value") {
			x, err := expr("value")
			if err != nil {
				return nil, err
			}
			return machine.SetValueStep{Property: target, Value: x}, nil
		}
		state, err := str("to")
		if err != nil {
			return nil, err
		}
		return machine.SetStateStep{Machine: target, State: state}, nil

	case has("send"):
		msg, err := str("send")
		if err != nil {
			return nil, err
		}
		target, err := optionalString(v, "to", field)
		if err != nil {
			return nil, err
		}
		return machine.SendStep{Message: msg, Target: target}, nil

	case has("call"):
		msg, err := str("call")
		if err != nil {
			return nil, err
		}
		target, err := str("on")
		if err != nil {
			return nil, err
		}
		return machine.CallStep{Message: msg, Target: target}, nil

	case has("wait"):
		x, err := expr("wait")
		if err != nil {
			return nil, err
		}
		return machine.WaitStep{Millis: x}, nil

	case has("waitfor"):
		x, err := expr("waitfor")
		if err != nil {
			return nil, err
		}
		return machine.WaitForStep{Condition: x}, nil

	case has("enable"):
		m, err := str("enable")
		if err != nil {
			return nil, err
		}
		return machine.EnableStep{Machine: m}, nil

	case has("disable"):
		m, err := str("disable")
		if err != nil {
			return nil, err
		}
		return machine.DisableStep{Machine: m}, nil

	case has("resume"):
		m, err := str("resume")
		if err != nil {
			return nil, err
		}
		at, err := optionalString(v, "at", field)
		if err != nil {
			return nil, err
		}
		return machine.ResumeStep{Machine: m, State: at}, nil

	case has("log"):
		x, err := expr("log")
		if err != nil {
			return nil, err
		}
		return machine.LogStep{Value: x}, nil

	case has("append"):
		x, err := expr("append")
		if err != nil {
			return nil, err
		}
		list, err := str("to")
		if err != nil {
			return nil, err
		}
		return machine.AppendStep{List: list, Item: x}, nil

	case has("take"):
		list, err := str("take")
		if err != nil {
			return nil, err
		}
		into, err := str("into")
		if err != nil {
			return nil, err
		}
		last := false
		if lv := v.LookupPath(cue.ParsePath("last")); lv.Exists() {
			if last, err = lv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		return machine.TakeStep{List: list, Property: into, Last: last}, nil

	case has("intersect"):
		srcs, err := stringList(v.LookupPath(cue.ParsePath("intersect")), field+".intersect")
		if err != nil {
			return nil, err
		}
		into, err := str("into")
		if err != nil {
			return nil, err
		}
		return machine.IntersectStep{Dest: into, Sources: srcs}, nil
	}
	return nil, &CompileError{Field: field, Message: "unknown step", Pos: v.Pos()}
}
