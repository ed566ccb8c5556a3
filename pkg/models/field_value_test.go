package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected FieldValue
		ok       bool
	}{
		{"string", "John", StringValue("John"), true},
		{"float64", 80.5, NumberValue(80.5), true},
		{"float32", float32(2), NumberValue(2), true},
		{"int", 7, NumberValue(7), true},
		{"int8", int8(-8), NumberValue(-8), true},
		{"int16", int16(1600), NumberValue(1600), true},
		{"int32", int32(32), NumberValue(32), true},
		{"int64", int64(64), NumberValue(64), true},
		{"uint", uint(1), NumberValue(1), true},
		{"uint8", uint8(255), NumberValue(255), true},
		{"uint16", uint16(16), NumberValue(16), true},
		{"uint32", uint32(32), NumberValue(32), true},
		{"uint64", uint64(1990), NumberValue(1990), true},
		{"json number", json.Number("42"), NumberValue(42), true},
		{"bool", true, BoolValue(true), true},
		{"list keeps strings only", []any{"a", 1, "b"}, ListValue{"a", "b"}, true},
		{"nil", nil, nil, false},
		{"struct", struct{}{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFieldValue(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseFieldValue_MapOfSmallIntegers(t *testing.T) {
	got, ok := ParseFieldValue(map[string]any{"day": uint8(15), "month": int16(3), "year": uint16(1990)})
	require.True(t, ok)
	assert.Equal(t, []string{"15", "3", "1990"}, got.Strings())
}
