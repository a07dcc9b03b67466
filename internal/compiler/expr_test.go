package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

func compileExprString(t *testing.T, src string) (machine.Expr, error) {
	t.Helper()
	v := cuecontext.New().CompileString("x: " + src)
	require.NoError(t, v.Err())
	return compileExpr(v.LookupPath(cue.ParsePath("x")), "x")
}

func TestCompileExpr_Forms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want machine.Expr
	}{
		{"int literal", `5`, machine.Lit{Value: ir.Int(5)}},
		{"bool literal", `true`, machine.Lit{Value: ir.Bool(true)}},
		{"null literal", `null`, machine.Lit{Value: ir.Null{}}},
		{"string literal", `{str: "hello"}`, machine.Lit{Value: ir.String("hello")}},
		{"symbol", `"pump.SPEED"`, machine.S("pump.SPEED")},
		{"comparison", `[">", "TIMER", 500]`, machine.Cmp(machine.OpGt, machine.S("TIMER"), machine.L(500))},
		{"lowercase logic", `["and", true, false]`, machine.And(machine.L(true), machine.L(false))},
		{"or of three", `["OR", 1, 2, 3]`, machine.Or(machine.L(1), machine.L(2), machine.L(3))},
		{"not", `["NOT", "X"]`, machine.Not(machine.S("X"))},
		{"is", `["IS", "pump", "running"]`, machine.Is{Machine: "pump", State: "running"}},
		{"enabled", `["ENABLED", "pump"]`, machine.EnabledQuery{Machine: "pump"}},
		{"disabled", `["DISABLED", "pump"]`, machine.EnabledQuery{Machine: "pump", Disabled: true}},
		{"any", `["ANY", "pumps", "on"]`, machine.ListQuery{Op: machine.ListAny, List: "pumps", State: "on"}},
		{"size", `["SIZE", "pumps"]`, machine.ListQuery{Op: machine.ListSize, List: "pumps"}},
		{"includes", `["INCLUDES", "pumps", "pump1"]`, machine.ListQuery{Op: machine.ListIncludes, List: "pumps", Arg: machine.S("pump1")}},
		{"item", `["ITEM", 2, "pumps"]`, machine.ListQuery{Op: machine.ListItem, List: "pumps", Arg: machine.L(2)}},
		{"cast", `["CAST", "X", "string"]`, machine.Cast{X: machine.S("X"), To: "STRING"}},
		{"arithmetic", `["+", "X", ["*", 2, 3]]`, machine.Cmp(machine.OpAdd, machine.S("X"), machine.Cmp(machine.OpMul, machine.L(2), machine.L(3)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileExprString(t, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileExpr_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"float", `1.5`, "float"},
		{"empty list", `[]`, "empty expression"},
		{"unknown operator", `["FROB", 1]`, "unknown operator"},
		{"wrong arity", `["==", 1]`, "takes 2 operands"},
		{"operator not a string", `[1, 2]`, "operator"},
		{"object without str", `{x: 1}`, "{str: ...}"},
		{"bad cast", `["CAST", "X", "FLOAT"]`, "cannot cast"},
		{"name operand", `["IS", 1, "on"]`, "expected a name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileExprString(t, tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)

			var ce *CompileError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestCompileExpr_TimerClauseDerived(t *testing.T) {
	x, err := compileExprString(t, `["AND", ["IS", "SELF", "waiting"], [">", "TIMER", 100]]`)
	require.NoError(t, err)

	ss := machine.NewStableState("expired", x)
	assert.True(t, ss.UsesTimer)
	assert.Equal(t, machine.L(100), ss.TimerValue)
}
