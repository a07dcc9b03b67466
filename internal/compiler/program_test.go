package compiler

import (
	"io"
	"log/slog"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

const plantSrc = `
class: Valve: {
	initial: "closed"
	options: {INPUT: 0}
	stable: [
		{state: "open", when: ["==", "INPUT", 1]},
		{state: "closed"},
	]
}

class: Lamp: {
	parameters: ["valve"]
	initial: "dark"
	stable: [
		{state: "lit", when: ["IS", "valve", "open"]},
		{state: "dark"},
	]
}

machine: valve: {class: "Valve"}
machine: lamp: {class: "Lamp", params: ["valve"]}
machine: pumps: {class: "LIST", params: ["valve"]}
`

func compileProgram(t *testing.T, src string) *Program {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	p, err := Compile(v)
	require.NoError(t, err)
	return p
}

func TestCompile_Program(t *testing.T) {
	p := compileProgram(t, plantSrc)

	require.Len(t, p.Classes, 2)
	assert.Equal(t, "Valve", p.Classes[0].Name)
	assert.Equal(t, "Lamp", p.Classes[1].Name)

	require.Len(t, p.Instances, 3)
	assert.Equal(t, "valve", p.Instances[0].Name)
	assert.Equal(t, "lamp", p.Instances[1].Name)
	assert.Equal(t, []ir.Value{ir.String("valve")}, p.Instances[1].Params)
	assert.True(t, p.Instances[1].Pos.IsValid())

	c, ok := p.Class("Lamp")
	require.True(t, ok)
	assert.Equal(t, "dark", c.InitialState)
	_, ok = p.Class("Nope")
	assert.False(t, ok)
}

func TestCompile_WrapsClassErrors(t *testing.T) {
	v := cuecontext.New().CompileString(`class: Bad: {stable: [{when: true}]}`)
	require.NoError(t, v.Err())
	_, err := Compile(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class Bad")

	var ce *CompileError
	assert.ErrorAs(t, err, &ce)
}

func TestCompileMachine_RequiresClass(t *testing.T) {
	v := cuecontext.New().CompileString(`machine: m: {params: [1]}`)
	require.NoError(t, v.Err())
	_, err := Compile(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class is required")
}

func TestProgram_Load(t *testing.T) {
	p := compileProgram(t, plantSrc)
	reg := machine.NewRegistry(machine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	require.NoError(t, p.Load(reg))
	require.NotNil(t, reg.Lookup("valve"))
	require.NotNil(t, reg.Lookup("lamp"))
	assert.Equal(t, machine.KindList, reg.Lookup("pumps").Kind())

	reg.EnableAll()
	assert.Equal(t, 0, reg.ErrorCount())
	assert.Equal(t, "closed", reg.Lookup("valve").State())
}

func TestProgram_LoadCollectsErrors(t *testing.T) {
	p := compileProgram(t, `
		machine: a: {class: "Ghost"}
		machine: b: {class: "Phantom"}
	`)
	reg := machine.NewRegistry(machine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := p.Load(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "machine a")
	assert.Contains(t, err.Error(), "machine b")
}
