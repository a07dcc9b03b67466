package store

import (
	"fmt"

	"github.com/roach88/clockwork/internal/ir"
)

// marshalValue converts a property value to canonical JSON TEXT for storage.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses a stored value column.
func unmarshalValue(text string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
