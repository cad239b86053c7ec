package param

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Type identifies the value type a parameter carries.
type Type int

const (
	// TypeBool is a boolean parameter (switches, gates).
	TypeBool Type = iota + 1
	// TypeInt is an integer parameter (counts, indices).
	TypeInt
	// TypeFloat is a floating-point parameter (continuous controls).
	TypeFloat
	// TypeString is a string parameter (enums, names, file paths).
	TypeString
)

// String returns the lowercase name used in registry files and errors.
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a registry type name to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "bool":
		return TypeBool, nil
	case "int":
		return TypeInt, nil
	case "float":
		return TypeFloat, nil
	case "string":
		return TypeString, nil
	default:
		return 0, fmt.Errorf("unknown parameter type %q", s)
	}
}

// Value is a sealed interface over the four parameter value types.
// Only Bool, Int, Float, and String implement it. Values are immutable
// and safe to share across snapshots.
type Value interface {
	paramValue() // Sealed - only these types implement it

	// Type reports the dynamic type of the value.
	Type() Type
}

// Bool is a boolean parameter value.
type Bool bool

func (Bool) paramValue() {}

// Type implements Value.
func (Bool) Type() Type { return TypeBool }

// Int is an integer parameter value. Always int64.
type Int int64

func (Int) paramValue() {}

// Type implements Value.
func (Int) Type() Type { return TypeInt }

// Float is a floating-point parameter value.
// NaN and infinities are rejected at construction and validation time;
// a Float inside committed state is always finite.
type Float float64

func (Float) paramValue() {}

// Type implements Value.
func (Float) Type() Type { return TypeFloat }

// String is a string parameter value.
type String string

func (String) paramValue() {}

// Type implements Value.
func (String) Type() Type { return TypeString }

// Numeric returns the value as a float64 for range checks.
// Returns false for non-numeric values.
func Numeric(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// Finite reports whether a value is safe to commit: non-nil, and if
// Float, neither NaN nor infinite.
func Finite(v Value) bool {
	if v == nil {
		return false
	}
	if f, ok := v.(Float); ok {
		return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
	}
	return true
}

// FromAny converts a decoded YAML/JSON scalar to a Value.
// Accepted Go types: bool, string, int, int64, float64, json.Number.
// Whole-number float64 inputs stay Float (the registry type check
// decides whether an int was required).
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid parameter value")
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite float is not a valid parameter value")
		}
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite float is not a valid parameter value")
		}
		return Float(f), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Coerce converts v to the descriptor type t where the conversion is
// lossless (Int -> Float, whole Float -> Int). Returns false if the
// value cannot represent t.
func Coerce(v Value, t Type) (Value, bool) {
	if v == nil {
		return nil, false
	}
	if v.Type() == t {
		return v, true
	}
	switch t {
	case TypeFloat:
		if i, ok := v.(Int); ok {
			return Float(i), true
		}
	case TypeInt:
		if f, ok := v.(Float); ok && float64(f) == math.Trunc(float64(f)) {
			return Int(f), true
		}
	}
	return nil, false
}

// Equal compares two values for exact equality (same type, same value).
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b
}

// Format renders a value for logs and CLI output.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case String:
		return string(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}
