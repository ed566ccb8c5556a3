// Package matching scores how likely two documents describe the same person
package matching

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const (
	// PartialIDConfidence is returned when one identifier contains the other (OCR truncation)
	PartialIDConfidence = 0.85
	// PrefixIDConfidence is returned when identifiers share their first PrefixIDLength characters
	PrefixIDConfidence = 0.70

	minContainmentLength = 6
	PrefixIDLength       = 7
)

// IDMatch is the tiered outcome of comparing two identifiers
type IDMatch struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
}

// Scorer provides the name and identifier comparisons used by grouping
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// NameSimilarity compares two display names independent of word order.
// It returns 1.0 only when the token-sorted normalized forms are equal and 0
// when either side normalizes to nothing.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	na := normalizers.NormalizeName(a)
	nb := normalizers.NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	return s.Levenshtein(TokenSort(na), TokenSort(nb))
}

// CompareIDs compares two identifiers after normalization.
func (s *Scorer) CompareIDs(a, b string) IDMatch {
	na := normalizers.NormalizeID(a)
	nb := normalizers.NormalizeID(b)
	if na == "" || nb == "" {
		return IDMatch{}
	}
	if na == nb {
		return IDMatch{Match: true, Confidence: 1.0}
	}
	if len(na) >= minContainmentLength && len(nb) >= minContainmentLength &&
		(strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return IDMatch{Match: true, Confidence: PartialIDConfidence}
	}
	if len(na) >= PrefixIDLength && len(nb) >= PrefixIDLength && na[:PrefixIDLength] == nb[:PrefixIDLength] {
		return IDMatch{Match: true, Confidence: PrefixIDConfidence}
	}
	return IDMatch{}
}

// Levenshtein returns 1 - distance/longest, measured in runes.
func (s *Scorer) Levenshtein(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}

// TokenSort sorts the whitespace-separated tokens of s alphabetically.
func TokenSort(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
