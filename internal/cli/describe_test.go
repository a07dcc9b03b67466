package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/store"
)

func executeDescribe(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewDescribeCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDescribe_SettledMachines(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})

	out, err := executeDescribe(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "valve (Valve")
	assert.Contains(t, out, "state=open enabled")
	assert.Contains(t, out, "pump (Pump")
	assert.Contains(t, out, "state=idle enabled")
}

func TestDescribe_NamedMachineJSON(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})

	out, err := executeDescribe(t, "json", dir, "valve")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []MachineSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "valve", resp.Data[0].Name)
	assert.Equal(t, "Valve", resp.Data[0].Class)
	assert.Equal(t, "open", resp.Data[0].State)
	assert.True(t, resp.Data[0].Enabled)
	assert.Equal(t, "1", resp.Data[0].Properties["INPUT"])
}

func TestDescribe_UnknownMachine(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})

	out, err := executeDescribe(t, "text", dir, "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `no machine "nobody"`)
}

func TestDescribe_RestoresFromDatabase(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})
	dbPath := filepath.Join(t.TempDir(), "plant.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.WriteProperty(context.Background(), "valve", "INPUT", ir.Int(0)))
	require.NoError(t, st.Close())

	out, err := executeDescribe(t, "text", "--db", dbPath, dir, "valve")
	require.NoError(t, err)
	assert.Contains(t, out, "state=closed enabled")
}

func TestDescribe_InvalidSpecs(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": unknownClassSpec})

	out, err := executeDescribe(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E103]")
}
