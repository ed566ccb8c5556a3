package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// FieldType is the semantic type inferred for a profile field
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeEmail    FieldType = "email"
	TypePhone    FieldType = "phone"
	TypeDate     FieldType = "date"
	TypeNumber   FieldType = "number"
	TypeCurrency FieldType = "currency"
	TypeAddress  FieldType = "address"
	TypeName     FieldType = "name"
	TypeBoolean  FieldType = "boolean"
)

// typeRules are checked in order; the first rule with a matching key term wins
var typeRules = []struct {
	fieldType FieldType
	terms     []string
	prefix    bool
}{
	{TypeEmail, []string{"email", "e-mail"}, false},
	{TypePhone, []string{"phone", "mobile", "tel"}, false},
	{TypeDate, []string{"date", "birth", "dob", "expiry"}, false},
	{TypeName, []string{"name", "first", "last"}, false},
	{TypeAddress, []string{"address", "street", "city"}, false},
	{TypeCurrency, []string{"amount", "price", "salary"}, false},
	{TypeNumber, []string{"count", "number_of", "quantity"}, false},
	{TypeBoolean, []string{"is_", "has_"}, true},
}

// InferFieldType guesses a field's type from its key.
func InferFieldType(key string) FieldType {
	k := strings.ToLower(key)
	for _, rule := range typeRules {
		for _, term := range rule.terms {
			if rule.prefix && strings.HasPrefix(k, term) || !rule.prefix && strings.Contains(k, term) {
				return rule.fieldType
			}
		}
	}
	return TypeText
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string    `json:"field"`
	Type    FieldType `json:"type"`
	Value   string    `json:"value"`
	Message string    `json:"message"`
}

// ValidationResult represents the result of validating profile fields
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator checks field values against the format implied by their key.
// Results are advisory; nothing in the merge path blocks on them.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every value of every field. Fields are reported in key order.
func (v *Validator) Validate(fields map[string]any) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []ValidationError{}}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fv, ok := models.ParseFieldValue(fields[key])
		if !ok {
			continue
		}
		fieldType := InferFieldType(key)
		for _, value := range fv.Strings() {
			if err := v.ValidateValue(fieldType, value); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, ValidationError{
					Field:   key,
					Type:    fieldType,
					Value:   value,
					Message: err.Error(),
				})
			}
		}
	}

	return result
}

// ValidateValue checks a single value against a field type. Types without a
// format rule always pass.
func (v *Validator) ValidateValue(fieldType FieldType, value string) error {
	switch fieldType {
	case TypeEmail:
		if !isValidEmail(value) {
			return fmt.Errorf("invalid email format")
		}
	case TypePhone:
		if !isValidPhone(value) {
			return fmt.Errorf("invalid phone format (expected 10 to 12 digits)")
		}
	case TypeDate:
		if !isValidDate(value) {
			return fmt.Errorf("invalid date format")
		}
	case TypeNumber:
		if !isValidNumber(value) {
			return fmt.Errorf("invalid number format")
		}
	case TypeCurrency:
		if !isValidCurrency(value) {
			return fmt.Errorf("invalid currency format")
		}
	}
	return nil
}

// Format validation regexes
var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^\$?[\d,]+\.?\d{0,2}$`)
	dateRegexes   = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}$`),
		regexp.MustCompile(`^\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}$`),
		regexp.MustCompile(`(?i)^\d{1,2}\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\s+\d{4}$`),
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`),
	}
)

func isValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

func isValidPhone(s string) bool {
	n := len(normalizers.DigitsOnly(s))
	return n >= 10 && n <= 12
}

func isValidDate(s string) bool {
	for _, re := range dateRegexes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func isValidNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return err == nil
}

func isValidCurrency(s string) bool {
	return currencyRegex.MatchString(strings.ReplaceAll(s, " ", ""))
}
