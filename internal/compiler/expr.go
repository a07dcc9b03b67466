package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

// compileExpr decodes a predicate or value expression.
//
// Expressions are written in prefix form as CUE lists:
//
//	["AND", ["IS", "pump", "running"], [">", "TIMER", 500]]
//
// Atoms: ints and bools are literals, a string is a symbol (a property,
// a machine, TIMER or a bare state name), {str: "..."} is a string literal
// and null is the null literal.
func compileExpr(v cue.Value, field string) (machine.Expr, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch v.IncompleteKind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return machine.Lit{Value: ir.Int(n)}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return machine.Lit{Value: ir.Bool(b)}, nil
	case cue.NullKind:
		return machine.Lit{Value: ir.Null{}}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return machine.S(ir.NormalizeName(s)), nil
	case cue.StructKind:
		lit := v.LookupPath(cue.ParsePath("str"))
		if !lit.Exists() {
			return nil, &CompileError{Field: field, Message: "object expression must be {str: ...}", Pos: v.Pos()}
		}
		s, err := lit.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return machine.Lit{Value: ir.String(s)}, nil
	case cue.ListKind:
		return compileForm(v, field)
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: field, Message: "float values are not supported, use int", Pos: v.Pos()}
	}
	return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported expression kind %v", v.IncompleteKind()), Pos: v.Pos()}
}

// arity of fixed-size forms, operator included.
var formArity = map[string]int{
	"NOT": 2, "NEG": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 3, "-": 3, "*": 3, "/": 3, "%": 3,
	"IS": 3, "ENABLED": 2, "DISABLED": 2,
	"ANY": 3, "ALL": 3, "COUNT": 3, "BITSET": 3,
	"SIZE": 2, "FIRST": 2, "LAST": 2,
	"INCLUDES": 3, "ITEM": 3, "CAST": 3,
}

func compileForm(v cue.Value, field string) (machine.Expr, error) {
	items, err := listValues(v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &CompileError{Field: field, Message: "empty expression", Pos: v.Pos()}
	}
	op, err := items[0].String()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "expression must start with an operator name", Pos: items[0].Pos()}
	}
	op = strings.ToUpper(op)
	args := items[1:]

	if op == "AND" || op == "OR" {
		if len(args) == 0 {
			return nil, &CompileError{Field: field, Message: op + " needs at least one operand", Pos: v.Pos()}
		}
		xs := make([]machine.Expr, len(args))
		for i, a := range args {
			if xs[i], err = compileExpr(a, field); err != nil {
				return nil, err
			}
		}
		if op == "AND" {
			return machine.And(xs...), nil
		}
		return machine.Or(xs...), nil
	}

	want, ok := formArity[op]
	if !ok {
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("unknown operator %q", op), Pos: items[0].Pos()}
	}
	if len(items) != want {
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("%s takes %d operands, got %d", op, want-1, len(args)), Pos: v.Pos()}
	}

	switch op {
	case "NOT", "NEG":
		x, err := compileExpr(args[0], field)
		if err != nil {
			return nil, err
		}
		return machine.Unary{Op: machine.Op(op), X: x}, nil
	case "IS":
		m, state, err := stringPair(args, field)
		if err != nil {
			return nil, err
		}
		return machine.Is{Machine: m, State: state}, nil
	case "ENABLED", "DISABLED":
		m, err := nameArg(args[0], field)
		if err != nil {
			return nil, err
		}
		return machine.EnabledQuery{Machine: m, Disabled: op == "DISABLED"}, nil
	case "ANY", "ALL", "COUNT", "BITSET":
		list, state, err := stringPair(args, field)
		if err != nil {
			return nil, err
		}
		return machine.ListQuery{Op: machine.ListOp(op), List: list, State: state}, nil
	case "SIZE", "FIRST", "LAST":
		list, err := nameArg(args[0], field)
		if err != nil {
			return nil, err
		}
		return machine.ListQuery{Op: machine.ListOp(op), List: list}, nil
	case "INCLUDES":
		list, err := nameArg(args[0], field)
		if err != nil {
			return nil, err
		}
		x, err := compileExpr(args[1], field)
		if err != nil {
			return nil, err
		}
		return machine.ListQuery{Op: machine.ListIncludes, List: list, Arg: x}, nil
	case "ITEM":
		n, err := compileExpr(args[0], field)
		if err != nil {
			return nil, err
		}
		list, err := nameArg(args[1], field)
		if err != nil {
			return nil, err
		}
		return machine.ListQuery{Op: machine.ListItem, List: list, Arg: n}, nil
	case "CAST":
		x, err := compileExpr(args[0], field)
		if err != nil {
			return nil, err
		}
		to, err := nameArg(args[1], field)
		if err != nil {
			return nil, err
		}
		to = strings.ToUpper(to)
		if to != "STRING" && to != "NUMBER" {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("cannot cast to %q", to), Pos: args[1].Pos()}
		}
		return machine.Cast{X: x, To: to}, nil
	}

	l, err := compileExpr(args[0], field)
	if err != nil {
		return nil, err
	}
	r, err := compileExpr(args[1], field)
	if err != nil {
		return nil, err
	}
	return machine.Cmp(machine.Op(op), l, r), nil
}

func stringPair(args []cue.Value, field string) (string, string, error) {
	a, err := nameArg(args[0], field)
	if err != nil {
		return "", "", err
	}
	b, err := nameArg(args[1], field)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

// nameArg reads an operand that must be a plain name.
func nameArg(v cue.Value, field string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "expected a name", Pos: v.Pos()}
	}
	return ir.NormalizeName(s), nil
}

func listValues(v cue.Value) ([]cue.Value, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out, nil
}

// compileValue decodes a literal property or parameter value.
func compileValue(v cue.Value, field string) (ir.Value, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: field, Message: "float values are not supported, use int", Pos: v.Pos()}
	}
	return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported value kind %v", v.IncompleteKind()), Pos: v.Pos()}
}
