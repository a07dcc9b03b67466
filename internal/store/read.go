package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/clockwork/internal/ir"
)

// StateChange is one row of the state history.
type StateChange struct {
	Seq      int64
	Machine  string
	Previous string // empty for the first recorded state
	State    string
}

// ReadMachineState returns the stored state of machine. ok is false when the
// machine has never been recorded.
func (s *Store) ReadMachineState(ctx context.Context, machine string) (state string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT state FROM machine_states WHERE machine = ?`, machine,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read machine state: %w", err)
	}
	return state, true, nil
}

// ReadMachineStates returns the stored state of every machine.
func (s *Store) ReadMachineStates(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT machine, state FROM machine_states
		ORDER BY machine COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read machine states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var machine, state string
		if err := rows.Scan(&machine, &state); err != nil {
			return nil, fmt.Errorf("read machine states: %w", err)
		}
		out[machine] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read machine states: %w", err)
	}
	return out, nil
}

// ReadProperties returns every stored property of machine.
func (s *Store) ReadProperties(ctx context.Context, machine string) (map[string]ir.Value, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property, value FROM properties
		WHERE machine = ?
		ORDER BY property COLLATE BINARY ASC
	`, machine)
	if err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ir.Value)
	for rows.Next() {
		var property, text string
		if err := rows.Scan(&property, &text); err != nil {
			return nil, fmt.Errorf("read properties: %w", err)
		}
		v, err := unmarshalValue(text)
		if err != nil {
			return nil, fmt.Errorf("read property %s.%s: %w", machine, property, err)
		}
		out[property] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}
	return out, nil
}

// ReadHistory returns the state changes of machine in seq order. An empty
// machine name returns the history of all machines.
func (s *Store) ReadHistory(ctx context.Context, machine string) ([]StateChange, error) {
	query := `SELECT seq, machine, previous, state FROM state_history`
	var args []any
	if machine != "" {
		query += ` WHERE machine = ?`
		args = append(args, machine)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []StateChange
	for rows.Next() {
		var c StateChange
		var previous sql.NullString
		if err := rows.Scan(&c.Seq, &c.Machine, &previous, &c.State); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		c.Previous = previous.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}
