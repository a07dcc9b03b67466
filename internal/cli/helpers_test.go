package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const plantSpec = `
package plant

class: Valve: {
	initial: "closed"
	options: {INPUT: 1, PERSISTENT: true}
	stable: [
		{state: "open", when: ["==", "INPUT", 1]},
		{state: "closed"},
	]
}

class: Pump: {
	states: ["idle", "running"]
	initial: "idle"
	transitions: [
		{from: "idle", to: "running", on: "start"},
		{from: "running", to: "idle", on: "stop"},
	]
}

machine: valve: {class: "Valve"}
machine: pump: {class: "Pump"}
`

const interlockSpec = `
package plant

class: Interlock: {
	parameters: ["other"]
	initial: "free"
	stable: [
		{state: "blocked", when: ["IS", "other", "busy"]},
		{state: "free"},
	]
}

machine: a: {class: "Interlock", params: ["b"]}
machine: b: {class: "Interlock", params: ["a"]}
`

const unknownClassSpec = `
package plant

machine: m: {class: "Missing"}
`

// writeSpecs creates a specs directory holding one file per entry.
func writeSpecs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "specs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}
