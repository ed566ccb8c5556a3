package models

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// FieldValue is the closed set of shapes a raw extraction value can take:
// StringValue, NumberValue, BoolValue, ListValue or MapValue.
type FieldValue interface {
	// Strings flattens the value into trimmed, non-empty strings.
	Strings() []string
	isFieldValue()
}

// Scalar is a leaf allowed inside a MapValue.
type Scalar interface {
	FieldValue
	isScalar()
}

type (
	StringValue string
	NumberValue float64
	BoolValue   bool
	ListValue   []string
	MapValue    map[string]Scalar
)

func (StringValue) isFieldValue() {}
func (NumberValue) isFieldValue() {}
func (BoolValue) isFieldValue()   {}
func (ListValue) isFieldValue()   {}
func (MapValue) isFieldValue()    {}

func (StringValue) isScalar() {}
func (NumberValue) isScalar() {}

func (v StringValue) Strings() []string {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return nil
	}
	return []string{s}
}

func (v NumberValue) Strings() []string {
	return []string{FormatNumber(float64(v))}
}

func (v BoolValue) Strings() []string {
	return []string{strconv.FormatBool(bool(v))}
}

func (v ListValue) Strings() []string {
	var out []string
	for _, item := range v {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Strings returns the leaves in key order.
func (v MapValue) Strings() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		out = append(out, v[k].Strings()...)
	}
	return out
}

// FormatNumber renders a number the shortest way that round-trips, so 80 is "80".
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseFieldValue converts a decoded JSON value into a FieldValue. Values of
// any other shape (nil, nested lists, unsupported types) are rejected.
func ParseFieldValue(v any) (FieldValue, bool) {
	switch val := v.(type) {
	case FieldValue:
		return val, true
	case string:
		return StringValue(val), true
	case bool:
		return BoolValue(val), true
	case []string:
		return ListValue(val), true
	case []any:
		list := ListValue{}
		for _, item := range val {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		return list, true
	case map[string]any:
		m := MapValue{}
		for k, item := range val {
			if s, ok := parseScalar(item); ok {
				m[k] = s
			}
		}
		return m, true
	}

	if s, ok := parseScalar(v); ok {
		return s, true
	}
	return nil, false
}

func parseScalar(v any) (Scalar, bool) {
	switch n := v.(type) {
	case string:
		return StringValue(n), true
	case float64:
		return NumberValue(n), true
	case float32:
		return NumberValue(n), true
	case int:
		return NumberValue(n), true
	case int8:
		return NumberValue(n), true
	case int16:
		return NumberValue(n), true
	case int32:
		return NumberValue(n), true
	case int64:
		return NumberValue(n), true
	case uint:
		return NumberValue(n), true
	case uint8:
		return NumberValue(n), true
	case uint16:
		return NumberValue(n), true
	case uint32:
		return NumberValue(n), true
	case uint64:
		return NumberValue(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return NumberValue(f), true
	}
	return nil, false
}

// StringifyValue renders a stored value for audit comparison. Strings are kept
// verbatim and everything else is JSON encoded; nil stays nil.
func StringifyValue(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &val
	case float64:
		s := FormatNumber(val)
		return &s
	case bool:
		s := strconv.FormatBool(val)
		return &s
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// IsEmptyValue reports whether a merge input should be ignored.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return false
}
