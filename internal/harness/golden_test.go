package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_ValveLamp(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "valve_lamp.yaml"))
	require.NoError(t, err)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_ValveLamp -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "valve_lamp.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a := TraceSnapshot{ScenarioName: scenario.Name, Trace: first.Trace}
	b := TraceSnapshot{ScenarioName: scenario.Name, Trace: second.Trace}
	assert.Equal(t, string(a.Bytes()), string(b.Bytes()))
}

func TestTraceSnapshot_Bytes(t *testing.T) {
	s := TraceSnapshot{
		ScenarioName: "demo",
		Trace: []TraceEvent{
			{Seq: 1, Type: EventState, Machine: "pump", State: "idle"},
			{Seq: 2, Type: EventProperty, Machine: "tank", Property: "level", Value: "40"},
			{Seq: 3, Type: EventMessage, Machine: "pump", Target: "*", Message: "pump.idle_enter"},
			{Seq: 4, Type: EventCommand, Message: "GET pump", Output: "idle"},
			{Seq: 5, Type: EventExport, Target: "Q0.1", Value: "1"},
		},
	}

	want := "scenario: demo\n" +
		"0001 state pump -> idle\n" +
		"0002 property tank.level = 40\n" +
		"0003 message pump -> * pump.idle_enter\n" +
		"0004 command GET pump => idle\n" +
		"0005 export Q0.1 = 1\n"
	assert.Equal(t, want, string(s.Bytes()))
}
