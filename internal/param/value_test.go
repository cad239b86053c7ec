package param

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueTypes(t *testing.T) {
	tests := []struct {
		name string
		val  Value
		want Type
	}{
		{"bool", Bool(true), TypeBool},
		{"int", Int(42), TypeInt},
		{"float", Float(0.5), TypeFloat},
		{"string", String("live_overdub"), TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.val.Type())
		})
	}
}

func TestNumeric(t *testing.T) {
	n, ok := Numeric(Int(3))
	require.True(t, ok)
	assert.Equal(t, 3.0, n)

	n, ok = Numeric(Float(0.25))
	require.True(t, ok)
	assert.Equal(t, 0.25, n)

	_, ok = Numeric(Bool(true))
	assert.False(t, ok)

	_, ok = Numeric(String("x"))
	assert.False(t, ok)
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(Float(1.5)))
	assert.True(t, Finite(Int(1)))
	assert.True(t, Finite(Bool(false)))
	assert.False(t, Finite(Float(math.NaN())))
	assert.False(t, Finite(Float(math.Inf(1))))
	assert.False(t, Finite(nil))
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Value
		wantErr bool
	}{
		{"bool", true, Bool(true), false},
		{"string", "freeze", String("freeze"), false},
		{"int", 7, Int(7), false},
		{"int64", int64(-2), Int(-2), false},
		{"float", 0.5, Float(0.5), false},
		{"nil rejected", nil, nil, true},
		{"nan rejected", math.NaN(), nil, true},
		{"inf rejected", math.Inf(-1), nil, true},
		{"slice rejected", []string{"a"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce(t *testing.T) {
	// Int widens to Float losslessly.
	v, ok := Coerce(Int(3), TypeFloat)
	require.True(t, ok)
	assert.Equal(t, Float(3), v)

	// Whole float narrows to Int.
	v, ok = Coerce(Float(5), TypeInt)
	require.True(t, ok)
	assert.Equal(t, Int(5), v)

	// Fractional float does not narrow.
	_, ok = Coerce(Float(5.5), TypeInt)
	assert.False(t, ok)

	// Cross-kind conversions fail.
	_, ok = Coerce(String("1"), TypeInt)
	assert.False(t, ok)
	_, ok = Coerce(Bool(true), TypeFloat)
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "true", Format(Bool(true)))
	assert.Equal(t, "42", Format(Int(42)))
	assert.Equal(t, "0.5", Format(Float(0.5)))
	assert.Equal(t, "live_overdub", Format(String("live_overdub")))
	assert.Equal(t, "<nil>", Format(nil))
}

func TestMarshalCanonicalDeterminism(t *testing.T) {
	obj := map[string]any{
		"target": "granular.voiceA.recording.feedback",
		"value":  0.5,
		"strict": false,
		"nested": map[string]any{"b": int64(2), "a": int64(1)},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)

	// Repeated marshaling of the same map must be byte-identical.
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}

	// Keys come out sorted.
	assert.JSONEq(t, `{"nested":{"a":1,"b":2},"strict":false,"target":"granular.voiceA.recording.feedback","value":0.5}`, string(first))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"v": math.NaN()})
	require.Error(t, err)

	_, err = MarshalCanonical(nil)
	require.Error(t, err)
}

func TestMarshalCanonicalValues(t *testing.T) {
	b, err := MarshalCanonical(Float(0.5))
	require.NoError(t, err)
	assert.Equal(t, "0.5", string(b))

	b, err = MarshalCanonical(Int(-3))
	require.NoError(t, err)
	assert.Equal(t, "-3", string(b))

	b, err = MarshalCanonical(String("a<b"))
	require.NoError(t, err)
	// No HTML escaping in canonical form.
	assert.Equal(t, `"a<b"`, string(b))
}
