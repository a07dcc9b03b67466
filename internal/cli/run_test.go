package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/engine"
	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
	"github.com/roach88/clockwork/internal/store"
)

func executeRun(t *testing.T, timeout time.Duration, stdin string, args ...string) (string, string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRun_NonExistentSpecsDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, _, err := executeRun(t, time.Second, "", "--db", dbPath, "/nonexistent/specs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load specs")
}

func TestRun_InvalidSpecs(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": unknownClassSpec})
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, _, err := executeRun(t, time.Second, "", "--db", dbPath, dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown class "Missing"`)
}

func TestRun_PersistsStatesUntilCancelled(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})
	dbPath := filepath.Join(t.TempDir(), "test.db")

	out, logs, err := executeRun(t, 300*time.Millisecond, "", "--db", dbPath, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Runtime started")
	assert.Contains(t, logs, "runtime stopped gracefully")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	states, err := st.ReadMachineStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open", states["valve"])
	assert.Equal(t, "idle", states["pump"])
}

func TestRun_ConsoleCommands(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})
	dbPath := filepath.Join(t.TempDir(), "test.db")

	stdin := "GET pump\nSET pump TO running\nGET pump\nGET nobody\n"
	out, _, err := executeRun(t, 500*time.Millisecond, stdin, "--db", dbPath, "--console", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "idle\nOK\nrunning\nerror: ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	state, ok, err := st.ReadMachineState(context.Background(), "pump")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "running", state)
}

func TestRun_RestoresPersistentProperties(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.WriteProperty(context.Background(), "valve", "INPUT", ir.Int(0)))
	require.NoError(t, st.Close())

	_, logs, err := executeRun(t, 300*time.Millisecond, "", "--db", dbPath, dir)
	require.NoError(t, err)
	assert.Contains(t, logs, "restored=1")

	st, err = store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	state, _, err := st.ReadMachineState(context.Background(), "valve")
	require.NoError(t, err)
	assert.Equal(t, "closed", state)
}

func TestRunConsole_StopsAtEOF(t *testing.T) {
	reg := machine.NewRegistry()
	rt := engine.New(reg)

	out := &bytes.Buffer{}
	err := runConsole(context.Background(), rt, strings.NewReader(""), out)
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestRun_HelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	assert.Contains(t, cmd.Long, "--console")
	assert.Contains(t, cmd.Long, "clockwork run --db")
}
