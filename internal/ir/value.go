package ir

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface representing a machine property value.
// Only Null, Int, String and Bool implement it.
type Value interface {
	irValue()
	fmt.Stringer
}

// Null is the value of a property that has never been assigned.
type Null struct{}

func (Null) irValue() {}

func (Null) String() string { return "null" }

// Int is an integer property value. Always int64, never float.
type Int int64

func (Int) irValue() {}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// String is a text property value. State names and unresolved symbols
// are represented as strings.
type String string

func (String) irValue() {}

func (s String) String() string { return string(s) }

// Bool is a boolean property value.
type Bool bool

func (Bool) irValue() {}

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// IsNull reports whether v is absent or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// AsInt coerces v to an integer. Strings holding a decimal integer and
// booleans coerce; anything else reports false.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Bool:
		if val {
			return 1, true
		}
		return 0, true
	case String:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Truthy reports whether v counts as true in a condition. Non-zero
// integers, true, and non-empty strings other than "false" are true.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case String:
		return val != "" && val != "false"
	default:
		return false
	}
}

// Equal compares two values. Integers compare numerically with any value
// that coerces to an integer; otherwise the text forms are compared.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	_, aInt := a.(Int)
	_, bInt := b.(Int)
	if aInt || bInt {
		x, okx := AsInt(a)
		y, oky := AsInt(b)
		if okx && oky {
			return x == y
		}
	}
	return a.String() == b.String()
}

// Compare orders two numeric values. It reports false when either side
// does not coerce to an integer.
func Compare(a, b Value) (int, bool) {
	x, okx := AsInt(a)
	y, oky := AsInt(b)
	if !okx || !oky {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}

// FromAny converts a decoded YAML/JSON/CUE scalar into a Value.
// Floats are accepted only when they hold an integral value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("float value %v is not allowed", val)
		}
		return Int(int64(val)), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// MustFromAny is FromAny for literals known to be valid.
func MustFromAny(v any) Value {
	out, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return out
}
