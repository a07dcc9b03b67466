package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
)

func TestInstance_ValveScenario(t *testing.T) {
	f := newFixture(t)
	f.define(valveClass())
	f.define(watcherClass())
	valve := f.create("valve", "Valve")
	f.create("panel", "Watcher", "valve")
	f.reg.EnableAll()
	f.poll()
	require.Equal(t, "closed", valve.State())
	f.sent.reset()

	require.NoError(t, valve.SetValue("INPUT", ir.Int(1)))
	f.poll()

	assert.Equal(t, "open", valve.State())
	assert.Equal(t, []string{"valve.closed_leave", "valve.open_enter"}, f.sent.messages("valve", "panel"))
	assert.Equal(t, ir.String("open"), valve.Properties()[PropState])
}

func TestInstance_ListBecomesNonEmpty(t *testing.T) {
	f := newFixture(t)
	f.create("pump", ClassFlag)
	list := f.create("pumps", ClassList)
	f.reg.EnableAll()
	f.poll()
	require.Equal(t, StateEmpty, list.State())

	list.AddParameter(ir.String("pump"))
	f.poll()

	assert.Equal(t, StateNonEmpty, list.State())
	assert.Len(t, list.Parameters(), 1)
	assert.Equal(t, f.reg.Lookup("pump").ID(), list.Parameters()[0].Machine)

	list.ClearParameters()
	f.poll()
	assert.Equal(t, StateEmpty, list.State())
}

func TestInstance_CoalescedDirtyFlagsEvaluateOnce(t *testing.T) {
	f := newFixture(t)
	f.define(&Class{Name: "Source", Options: map[string]ir.Value{"X": ir.Int(7)}})
	f.define(&Class{
		Name:         "Follower",
		InitialState: "low",
		Parameters:   []ParameterSpec{{Name: "src"}},
		StableStates: []StableState{
			NewStableState("high", Cmp(OpGt, S("src.X"), L(5))),
			NewStableState("low", L(true)),
		},
	})
	b := f.create("b", "Source")
	a := f.create("a", "Follower", "b")
	f.reg.EnableAll()
	f.poll()
	require.Equal(t, "high", a.State())
	before := a.Evaluations()

	// Two changes before A is polled.
	require.NoError(t, b.SetValue("X", ir.Int(3)))
	require.NoError(t, b.SetValue("X", ir.Int(9)))
	assert.Equal(t, 2, a.NeedsCheck())

	f.poll()
	assert.Equal(t, before+1, a.Evaluations())
	assert.Equal(t, "high", a.State(), "evaluation must see the final value")
	assert.Equal(t, 0, a.NeedsCheck())
}

func TestInstance_FirstDeclaredStableStateWins(t *testing.T) {
	f := newFixture(t)
	f.define(&Class{
		Name:    "Tie",
		Options: map[string]ir.Value{"X": ir.Int(1)},
		StableStates: []StableState{
			NewStableState("first", Cmp(OpGt, S("X"), L(0))),
			NewStableState("second", Cmp(OpGt, S("X"), L(0))),
		},
	})
	m := f.create("tie", "Tie")
	f.reg.EnableAll()

	for i := 0; i < 3; i++ {
		m.needsCheck++
		f.poll()
		assert.Equal(t, "first", m.State())
	}
}

func TestInstance_EvaluationSkippedWhileExecuting(t *testing.T) {
	f := newFixture(t)
	f.define(valveClass())
	m := f.create("valve", "Valve")
	f.reg.EnableAll()
	f.poll()

	m.Push(&scriptWork{name: "busy", results: []Status{StatusRunning}, trace: new([]string)})
	m.Idle()
	require.NoError(t, m.SetValue("INPUT", ir.Int(1)))

	assert.False(t, m.EvaluateStableState())
	assert.Equal(t, "closed", m.State())
}

func TestInstance_SelfEnterAndLeaveHandlersRunInOrder(t *testing.T) {
	f := newFixture(t)
	f.define(&Class{
		Name:         "Door",
		InitialState: "shut",
		States:       []string{"shut", "ajar"},
		Options:      map[string]ir.Value{"LOG": ir.String("")},
		Receives: map[string]Command{
			"door.shut_leave": {Name: "left", Steps: []Step{
				SetValueStep{Property: "LOG", Value: Cmp(OpAdd, S("LOG"), L("leave;"))},
			}},
			"door.ajar_enter": {Name: "entered", Steps: []Step{
				SetValueStep{Property: "LOG", Value: Cmp(OpAdd, S("LOG"), L("enter;"))},
			}},
		},
	})
	door := f.create("door", "Door")
	f.reg.EnableAll()
	f.poll()

	require.NoError(t, door.SetState("ajar"))
	f.poll()

	v, _ := door.GetValue("LOG")
	assert.Equal(t, ir.String("leave;enter;"), v)
}

func TestInstance_SetStateSameStateIsNoop(t *testing.T) {
	f := newFixture(t)
	f.define(valveClass())
	f.define(watcherClass())
	valve := f.create("valve", "Valve")
	f.create("panel", "Watcher", "valve")
	f.reg.EnableAll()
	f.poll()
	f.sent.reset()

	require.NoError(t, valve.SetState("closed"))
	assert.Empty(t, f.sent.messages("valve", "panel"))

	err := valve.SetState("exploded")
	assert.True(t, HasCode(err, ErrCodeUnknownState))
}

func TestInstance_TransitionOnMessage(t *testing.T) {
	f := newFixture(t)
	pump := f.create("pump", ClassFlag)
	f.reg.EnableAll()
	f.poll()

	f.reg.Dispatcher().Deliver(Package{Target: pump.ID(), Message: "turnOn"})
	f.poll()
	assert.Equal(t, StateOn, pump.State())

	// turnOn has no transition from "on"; nothing happens.
	f.reg.Dispatcher().Deliver(Package{Target: pump.ID(), Message: "turnOn"})
	f.poll()
	assert.Equal(t, StateOn, pump.State())
}

func TestInstance_MessageFromStrangerRejected(t *testing.T) {
	f := newFixture(t)
	f.define(watcherClass())
	stranger := f.create("stranger", ClassFlag)
	m := f.create("m", "Watcher", "valve")

	assert.False(t, m.Receives("poke", stranger))
	assert.True(t, m.Receives("poke", m))
	assert.True(t, stranger.Receives("turnOn", m), "transition triggers are public")
}

func TestInstance_ConstantAndReadOnlyProperties(t *testing.T) {
	f := newFixture(t)
	c := f.create("limit", ClassConstant)
	c.Preset(PropValue, ir.Int(10))
	f.reg.EnableAll()

	err := c.SetValue(PropValue, ir.Int(11))
	assert.True(t, HasCode(err, ErrCodeReadOnly))
	err = c.SetValue(TimerSymbol, ir.Int(0))
	assert.True(t, HasCode(err, ErrCodeReadOnly))
	err = c.SetValue(PropState, ir.String("x"))
	assert.True(t, HasCode(err, ErrCodeReadOnly))

	v, ok := c.GetValue(PropValue)
	require.True(t, ok)
	assert.Equal(t, ir.Int(10), v)
}

func TestInstance_SetValueThroughVariableName(t *testing.T) {
	f := newFixture(t)
	f.define(watcherClass())
	speed := f.create("speed", ClassVariable)
	m := f.create("m", "Watcher", "speed")
	f.reg.EnableAll()

	require.NoError(t, m.SetValue("target", ir.Int(42)))
	v, _ := speed.GetValue(PropValue)
	assert.Equal(t, ir.Int(42), v)

	require.NoError(t, m.SetValue("speed.VALUE", ir.Int(43)))
	v, _ = m.GetValue("target")
	assert.Equal(t, ir.Int(43), v)
}

func TestInstance_FlagHandlerFollowsCondition(t *testing.T) {
	f := newFixture(t)
	f.create("alarm", ClassFlag)
	f.define(&Class{
		Name:    "Tank",
		Options: map[string]ir.Value{"LEVEL": ir.Int(0)},
		StableStates: []StableState{
			NewStableState("filling", Cmp(OpLt, S("LEVEL"), L(100)),
				ConditionHandler{Kind: HandlerFlag, Condition: Cmp(OpGt, S("LEVEL"), L(90)), Flag: "alarm"}),
			NewStableState("full", L(true)),
		},
	})
	tank := f.create("tank", "Tank")
	f.reg.EnableAll()
	f.poll()
	alarm := f.reg.Lookup("alarm")
	require.Equal(t, "filling", tank.State())
	require.Equal(t, StateOff, alarm.State())

	require.NoError(t, tank.SetValue("LEVEL", ir.Int(95)))
	f.poll()
	assert.Equal(t, StateOn, alarm.State())

	// Leaving the owning state forces the flag off.
	require.NoError(t, tank.SetValue("LEVEL", ir.Int(100)))
	f.poll()
	assert.Equal(t, "full", tank.State())
	assert.Equal(t, StateOff, alarm.State())
}

func TestInstance_CommandHandlerRunsOncePerEntry(t *testing.T) {
	f := newFixture(t)
	f.define(&Class{
		Name:    "Counter",
		Options: map[string]ir.Value{"X": ir.Int(0), "HITS": ir.Int(0)},
		StableStates: []StableState{
			NewStableState("active", L(true),
				ConditionHandler{Kind: HandlerCommand, Condition: Cmp(OpGt, S("X"), L(0)), Command: "hit"}),
		},
		Commands: map[string]Command{
			"hit": {Name: "hit", Steps: []Step{
				SetValueStep{Property: "HITS", Value: Cmp(OpAdd, S("HITS"), L(1))},
			}},
		},
	})
	m := f.create("c", "Counter")
	f.reg.EnableAll()
	f.poll()
	require.Equal(t, "active", m.State())

	require.NoError(t, m.SetValue("X", ir.Int(1)))
	f.poll()
	require.NoError(t, m.SetValue("X", ir.Int(2)))
	f.poll()

	v, _ := m.GetValue("HITS")
	assert.Equal(t, ir.Int(1), v)
}

func TestInstance_ExportsAndPersistence(t *testing.T) {
	rec := &recordingHooks{}
	f := newFixture(t, WithPersistence(rec), WithExporter(rec))
	c := valveClass()
	c.Exports = map[string]string{"open": "Q1.0", "INPUT": "IW4"}
	f.define(c)
	valve := f.create("valve", "Valve")
	f.reg.EnableAll()
	f.poll()

	require.NoError(t, valve.SetValue("INPUT", ir.Int(1)))
	f.poll()

	assert.Equal(t, []string{"valve=closed", "valve=open"}, rec.states)
	assert.Equal(t, []string{"valve.INPUT=1"}, rec.props)
	assert.Equal(t, []string{"IW4=1", "Q1.0=1"}, rec.exported)

	require.NoError(t, valve.SetValue("INPUT", ir.Int(0)))
	f.poll()
	assert.Equal(t, []string{"IW4=1", "Q1.0=1", "IW4=0", "Q1.0=0"}, rec.exported)
}

type recordingHooks struct {
	states   []string
	props    []string
	exported []string
}

func (r *recordingHooks) MachineStateChanged(machine, state string) {
	r.states = append(r.states, machine+"="+state)
}

func (r *recordingHooks) PropertyChanged(machine, property string, v ir.Value) {
	r.props = append(r.props, machine+"."+property+"="+v.String())
}

func (r *recordingHooks) ExportedValueChanged(address string, v ir.Value) {
	r.exported = append(r.exported, address+"="+v.String())
}
