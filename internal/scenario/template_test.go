package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_Flattens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  StringList
	}{
		{name: "plain strings", input: `["a", "b"]`, want: StringList{"a", "b"}},
		{name: "single string", input: `"only"`, want: StringList{"only"}},
		{name: "single-key object", input: `[{"rule": "Be kind"}]`, want: StringList{"Be kind"}},
		{name: "multi-key object", input: `[{"a": 1, "b": "x"}]`, want: StringList{`{"a":1,"b":"x"}`}},
		{name: "numbers and bools", input: `[3, true]`, want: StringList{"3", "true"}},
		{name: "nested list", input: `[["x", "y"]]`, want: StringList{"x; y"}},
		{name: "nulls dropped", input: `["a", null]`, want: StringList{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringList
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlexInt(t *testing.T) {
	var p PersonaType
	require.NoError(t, json.Unmarshal([]byte(`{"age": "45 years"}`), &p))
	assert.Equal(t, FlexInt(45), p.Age)

	require.NoError(t, json.Unmarshal([]byte(`{"age": 38}`), &p))
	assert.Equal(t, FlexInt(38), p.Age)

	require.NoError(t, json.Unmarshal([]byte(`{"age": "mid-forties"}`), &p))
	assert.Equal(t, FlexInt(0), p.Age)
}

func TestNormalizeMode(t *testing.T) {
	for in, want := range map[string]string{
		"assess":     ModeAssess,
		"Learn Mode": ModeLearn,
		"try_mode":   ModeTry,
		" ASSESS ":   ModeAssess,
	} {
		got, err := NormalizeMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeMode("grade")
	assert.Error(t, err)
}
