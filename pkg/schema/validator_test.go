package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferFieldType(t *testing.T) {
	tests := []struct {
		key      string
		expected FieldType
	}{
		{"email", TypeEmail},
		{"E-Mail_Address", TypeEmail},
		{"mobileNumber", TypePhone},
		{"home_tel", TypePhone},
		{"dateOfBirth", TypeDate},
		{"passport_expiry", TypeDate},
		{"dob", TypeDate},
		{"fullName", TypeName},
		{"surname", TypeName},
		{"street_address", TypeAddress},
		{"monthly_salary", TypeCurrency},
		{"number_of_dependents", TypeNumber},
		{"is_resident", TypeBoolean},
		{"this_is_text", TypeText},
		{"nationality", TypeText},
		{"passportNumber", TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferFieldType(tt.key))
		})
	}
}

func TestValidator_ValidateValue(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		fieldType FieldType
		value     string
		valid     bool
	}{
		{"valid email", TypeEmail, "john.doe@example.com", true},
		{"email without domain", TypeEmail, "john.doe@", false},
		{"email without tld", TypeEmail, "john@example", false},
		{"ten digit phone", TypePhone, "555-123-4567", true},
		{"international phone", TypePhone, "+971 50 123 4567", true},
		{"short phone", TypePhone, "123-4567", false},
		{"long phone", TypePhone, "1234567890123", false},
		{"day first date", TypeDate, "15/03/1990", true},
		{"iso date", TypeDate, "1990-03-15", true},
		{"iso date time", TypeDate, "1990-03-15T10:00:00Z", true},
		{"month name date", TypeDate, "15 Mar 1990", true},
		{"month name any case", TypeDate, "15 MAR 1990", true},
		{"free text date", TypeDate, "March fifteenth", false},
		{"number with commas", TypeNumber, "1,234.5", true},
		{"not a number", TypeNumber, "twelve", false},
		{"currency with symbol", TypeCurrency, "$1,234.56", true},
		{"currency with spaces", TypeCurrency, "$ 1 234", true},
		{"currency with three decimals", TypeCurrency, "12.345", false},
		{"text always passes", TypeText, "anything at all", true},
		{"names always pass", TypeName, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateValue(tt.fieldType, tt.value)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	t.Run("valid fields", func(t *testing.T) {
		result := v.Validate(map[string]any{
			"email":       "john@example.com",
			"phone":       []any{"555-123-4567", "+1 (555) 987-6543"},
			"dateOfBirth": "15/03/1990",
			"fullName":    "John Smith",
		})
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("errors reported per value in key order", func(t *testing.T) {
		result := v.Validate(map[string]any{
			"phone": []any{"555-123-4567", "12"},
			"email": "not-an-email",
		})
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 2)
		assert.Equal(t, "email", result.Errors[0].Field)
		assert.Equal(t, TypeEmail, result.Errors[0].Type)
		assert.Equal(t, "phone", result.Errors[1].Field)
		assert.Equal(t, "12", result.Errors[1].Value)
	})

	t.Run("unsupported values are ignored", func(t *testing.T) {
		result := v.Validate(map[string]any{
			"email": nil,
			"phone": "",
		})
		assert.True(t, result.Valid)
	})
}
