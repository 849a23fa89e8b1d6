// ABOUTME: Tests for the deterministic JSON serializer.
// ABOUTME: Verifies key sorting, array order, nulls, and typed value handling.

package replay

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableJSON(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"string", "a<b", `"a<b"`},
		{"number", json.Number("1.50"), "1.5"},
		{"number exponent", json.Number("1e2"), "100"},
		{"number integral float", json.Number("1.0"), "1"},
		{"number negative zero", json.Number("-0"), "0"},
		{"number beyond int64", json.Number("123456789012345678901234567890"), "123456789012345678901234567890"},
		{"float", 2.0, "2"},
		{"nested sort", map[string]any{"b": map[string]any{"y": 2, "x": 1}, "a": 1}, `{"a":1,"b":{"x":1,"y":2}}`},
		{"array order kept", []any{3, 1, 2}, "[3,1,2]"},
		{"nil member", map[string]any{"z": nil, "a": true}, `{"a":true,"z":null}`},
		{"nan", math.NaN(), "null"},
		{"typed map", map[string]int{"b": 2, "a": 1}, `{"a":1,"b":2}`},
		{"struct", struct {
			B string `json:"b"`
			A int    `json:"a"`
		}{B: "x", A: 1}, `{"a":1,"b":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StableJSON(tt.in))
		})
	}
}

func TestStableJSON_NumberSpellingsMatch(t *testing.T) {
	decode := func(raw string) any {
		var v any
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		return v
	}

	want := StableJSON(map[string]any{"a": 1, "b": 2.5})
	for _, raw := range []string{
		`{"a":1,"b":2.5}`,
		`{"a":1.0,"b":2.50}`,
		`{"b":25e-1,"a":1e0}`,
	} {
		assert.Equal(t, want, StableJSON(decode(raw)), raw)
	}
	assert.NotEqual(t, want, StableJSON(decode(`{"a":1.000001,"b":2.5}`)))
}
