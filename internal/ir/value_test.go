package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalValueTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Value
	}{
		{"null", `null`, Null{}},
		{"bool", `true`, Bool(true)},
		{"int", `42`, Int(42)},
		{"big int", `9007199254740993`, Int(9007199254740993)},
		{"float", `1.5`, Float(1.5)},
		{"string", `"x"`, String("x")},
		{"array", `[1,"a",null]`, Array{Int(1), String("a"), Null{}}},
		{"object", `{"a":{"b":[]}}`, Object{"a": Object{"b": Array{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := UnmarshalValue([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestUnmarshalValueRejectsTrailingData(t *testing.T) {
	_, err := UnmarshalValue([]byte(`1 2`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing")
}

func TestFromGoIntegralFloats(t *testing.T) {
	v, err := FromGo(map[string]any{"n": float64(3), "f": 0.25})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Int(3), "f": Float(0.25)}, v)
}

func TestToGoRoundTrip(t *testing.T) {
	original := Object{"a": Array{Int(1), Bool(false), Null{}}, "s": String("x")}
	back, err := FromGo(ToGo(original))
	require.NoError(t, err)
	assert.True(t, Equal(original, back))
}

func TestObjectJSONEmbedding(t *testing.T) {
	type wrapper struct {
		Payload Object `json:"payload"`
	}
	data, err := json.Marshal(wrapper{Payload: Object{"b": Int(1), "a": Int(2)}})
	require.NoError(t, err)
	assert.Equal(t, `{"payload":{"a":2,"b":1}}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, Object{"a": Int(2), "b": Int(1)}, w.Payload)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "null", TypeName(Null{}))
	assert.Equal(t, "number", TypeName(Float(1)))
	assert.Equal(t, "object", TypeName(Object{}))
}

func TestObjectKeyOrderIsCanonical(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"zebra":1,"alpha":{"y":true,"b":null}}`))
	require.NoError(t, err)

	out, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"b":null,"y":true},"zebra":1}`, string(out))
	assert.Equal(t, []string{"alpha", "zebra"}, v.(Object).SortedKeys())
}
