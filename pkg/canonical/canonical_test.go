package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sorts object keys", `{"b":1,"a":2}`, `{"a":2,"b":1}`},
		{"strips whitespace", `{ "a" : [ 1 , 2 ] }`, `{"a":[1,2]}`},
		{"nested objects", `{"z":{"y":true,"x":null}}`, `{"z":{"x":null,"y":true}}`},
		{"integer numbers stay integral", `{"n":5.0}`, `{"n":5}`},
		{"fractions preserved", `{"n":0.5}`, `{"n":0.5}`},
		{"escapes control chars", "{\"a\":\"line\\nbreak\"}", `{"a":"line\nbreak"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MarshalJSON([]byte(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarshalJSONRejectsTrailingData(t *testing.T) {
	_, err := MarshalJSON([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestMarshalStruct(t *testing.T) {
	type inner struct {
		B string `json:"beta"`
		A int    `json:"alpha"`
	}
	got, err := Marshal(inner{B: "x", A: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":1,"beta":"x"}`, string(got))
}

func TestMarshalDeterministic(t *testing.T) {
	v := map[string]any{"k1": 1, "k2": []any{"a", "b"}, "k3": map[string]any{"n": 2}}
	first, err := Marshal(v)
	require.NoError(t, err)
	for range 50 {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
