// Package normalizers canonicalizes names, identifiers and field values for comparison
package normalizers

import (
	"strings"
	"sync"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

const (
	Exact      = "exact"
	Email      = "nemail"
	Phone      = "nphone"
	Digits     = "digits_only"
	Name       = "nname"
	Identifier = "nid"
	Lower      = "lowercase"
	Trimmed    = "trim"
)

var (
	mu       sync.RWMutex
	registry = make(map[string]Normalizer)
)

func init() {
	Register(Exact, Identity)
	Register(Email, NormalizeEmail)
	Register(Phone, NormalizePhone)
	Register(Digits, DigitsOnly)
	Register(Name, NormalizeName)
	Register(Identifier, NormalizeID)
	Register(Lower, strings.ToLower)
	Register(Trimmed, strings.TrimSpace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value; unknown names leave it unchanged
func Apply(value, normalizer string) string {
	fn, ok := Get(normalizer)
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	for _, name := range normalizers {
		value = Apply(value, name)
	}
	return value
}

func Identity(s string) string {
	return s
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone keeps the digits and drops a leading US country code from
// 11-digit numbers, so "1 (555) 123-4567" and "555-123-4567" compare equal.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}
