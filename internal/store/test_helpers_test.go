package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh file-backed store that is closed when the
// test ends.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
