package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_NumericCoercion(t *testing.T) {
	assert.True(t, Equal(Int(1), String("1")))
	assert.True(t, Equal(Int(1), Bool(true)))
	assert.False(t, Equal(Int(2), String("two")))
	assert.True(t, Equal(String("open"), String("open")))
	assert.False(t, Equal(String("open"), String("closed")))
}

func TestEqual_Null(t *testing.T) {
	assert.True(t, Equal(Null{}, nil))
	assert.False(t, Equal(Null{}, Int(0)))
	assert.False(t, Equal(String(""), Null{}))
}

func TestCompare(t *testing.T) {
	c, ok := Compare(Int(3), Int(5))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(String("7"), Int(7))
	require.True(t, ok)
	assert.Equal(t, 0, c)

	_, ok = Compare(String("high"), Int(7))
	assert.False(t, ok, "non-numeric operand must not compare")
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"zero", Int(0), false},
		{"nonzero", Int(-4), true},
		{"true", Bool(true), true},
		{"empty string", String(""), false},
		{"false string", String("false"), false},
		{"text", String("on"), true},
		{"null", Null{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.v))
		})
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(float64(12))
	require.NoError(t, err)
	assert.Equal(t, Int(12), v)

	_, err = FromAny(1.5)
	assert.Error(t, err, "fractional floats are rejected")

	v, err = FromAny(nil)
	require.NoError(t, err)
	assert.Equal(t, Null{}, v)

	_, err = FromAny([]string{"x"})
	assert.Error(t, err)
}
