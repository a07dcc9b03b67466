package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadFiles_UnifiesFiles(t *testing.T) {
	dir := t.TempDir()
	classes := writeCUE(t, dir, "classes.cue", `
class: Valve: {
	initial: "closed"
	stable: [{state: "closed"}]
}
`)
	machines := writeCUE(t, dir, "machines.cue", `
machine: v1: {class: "Valve"}
machine: v2: {class: "Valve"}
`)

	p, err := LoadFiles(classes, machines)
	require.NoError(t, err)
	require.Len(t, p.Classes, 1)
	require.Len(t, p.Instances, 2)
	assert.Equal(t, "v1", p.Instances[0].Name)
}

func TestLoadFiles_Errors(t *testing.T) {
	_, err := LoadFiles()
	assert.Error(t, err)

	_, err = LoadFiles(filepath.Join(t.TempDir(), "missing.cue"))
	assert.ErrorContains(t, err, "missing.cue")

	dir := t.TempDir()
	bad := writeCUE(t, dir, "bad.cue", "class: {\n")
	_, err = LoadFiles(bad)
	var ce *CompileError
	assert.ErrorAs(t, err, &ce)
}
