package aggregation

import (
	"regexp"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	separatorRun       = regexp.MustCompile(`[ \-_]+`)
	disallowedKeyChars = regexp.MustCompile(`[^a-z0-9_]`)
)

// NormalizeFieldKey lowercases and trims k, collapses runs of space, hyphen
// and underscore into one underscore, drops anything outside [a-z0-9_] and
// trims leading and trailing underscores.
func NormalizeFieldKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = separatorRun.ReplaceAllString(k, "_")
	k = disallowedKeyChars.ReplaceAllString(k, "")
	return strings.Trim(k, "_")
}

// ExtractValues flattens a raw extraction value into trimmed, non-empty
// strings. Unsupported shapes yield nothing.
func ExtractValues(v any) []string {
	fv, ok := models.ParseFieldValue(v)
	if !ok {
		return nil
	}
	return fv.Strings()
}
