package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
)

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, table := range []string{"machine_states", "properties", "state_history"} {
		assert.NotEmpty(t, tableColumns(t, s.db, table), table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/plant.db")
	assert.Error(t, err)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteMachineState(context.Background(), "pump", "idle"))
	state, ok, err := s.ReadMachineState(context.Background(), "pump")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "idle", state)
}

func TestClose_Repeated(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())

	s, err := Open(filepath.Join(t.TempDir(), "plant.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	// busy_timeout reads back as a number, foreign_keys as 0/1 and
	// synchronous as its enum value.
	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		require.NoError(t, err, name)
		assert.Equal(t, value, got, name)
	}
}

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{"machine", "state", "seq"}, tableColumns(t, s.db, "machine_states"))
	assert.Equal(t, []string{"machine", "property", "value", "seq"}, tableColumns(t, s.db, "properties"))
	assert.Equal(t, []string{"seq", "machine", "previous", "state"}, tableColumns(t, s.db, "state_history"))
}

func TestConstraint_PropertiesPrimaryKey(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO properties (machine, property, value, seq) VALUES ('tank', 'level', '1', 1)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO properties (machine, property, value, seq) VALUES ('tank', 'level', '2', 2)`)
	assert.Error(t, err, "duplicate (machine, property) must be rejected")
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	version, err := s.userVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
	assert.Contains(t, tableIndexes(t, s.db, "state_history"), "idx_state_history_machine")
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.db")

	// A base-schema database written before any migration existed.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO machine_states (machine, state, seq) VALUES ('pump', 'running', 7)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.userVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
	assert.Contains(t, tableIndexes(t, s.db, "state_history"), "idx_state_history_machine")
	assert.Equal(t, int64(7), s.Seq(), "sequence resumes after existing rows")
}

func TestOpen_ResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteMachineState(ctx, "pump", "idle"))
	require.NoError(t, s.WriteProperty(ctx, "tank", "level", ir.Int(3)))
	last := s.Seq()
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, last, s.Seq())
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	return indexes
}
