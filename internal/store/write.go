package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/clockwork/internal/ir"
)

// WriteMachineState records machine entering state. The current state row is
// upserted and a history row is appended in the same transaction. Writing the
// state a machine already has in the store is a no-op.
func (s *Store) WriteMachineState(ctx context.Context, machine, state string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write machine state: %w", err)
	}
	defer tx.Rollback()

	var previous sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM machine_states WHERE machine = ?`, machine,
	).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("write machine state: %w", err)
	}
	if previous.Valid && previous.String == state {
		return nil
	}

	seq := s.nextSeq()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO machine_states (machine, state, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(machine) DO UPDATE SET state = excluded.state, seq = excluded.seq
	`, machine, state, seq); err != nil {
		return fmt.Errorf("write machine state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state_history (seq, machine, previous, state)
		VALUES (?, ?, ?, ?)
	`, seq, machine, previous, state); err != nil {
		return fmt.Errorf("write state history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write machine state: %w", err)
	}
	return nil
}

// WriteProperty upserts the committed value of machine.property.
func (s *Store) WriteProperty(ctx context.Context, machine, property string, v ir.Value) error {
	text, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("write property %s.%s: %w", machine, property, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (machine, property, value, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(machine, property) DO UPDATE SET value = excluded.value, seq = excluded.seq
	`, machine, property, text, s.nextSeq())
	if err != nil {
		return fmt.Errorf("write property %s.%s: %w", machine, property, err)
	}
	return nil
}
