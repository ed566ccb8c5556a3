// Package dates resolves raw OCR date strings into ISO-8601 dates
package dates

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ISOLayout is the output format of every successful resolution
const ISOLayout = "2006-01-02"

const (
	FormatISO        = "YYYY-MM-DD"
	FormatDayFirst   = "DD/MM/YYYY"
	FormatMonthFirst = "MM/DD/YYYY"
	FormatTextual    = "DD Mon YYYY"
)

// Resolution is a successfully resolved date
type Resolution struct {
	ISO           string  `json:"iso"`
	AssumedFormat string  `json:"assumed_format"`
	Confidence    float64 `json:"confidence"`
}

// Resolver turns a raw date into a Resolution. ok is false when the input
// could not be read as a date.
type Resolver interface {
	Resolve(ctx context.Context, raw string, hint models.DocumentCategory) (res Resolution, ok bool)
}

const (
	isoConfidence       = 1.0
	textualConfidence   = 0.95
	unambiguousNumeric  = 0.9
	ambiguousConfidence = 0.6

	// two-digit years at or above this pivot are read as 19xx
	twoDigitYearPivot = 50
)

var (
	isoLayouts = []string{
		"2006-1-2",
		"2006/1/2",
		"2006.1.2",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	textualLayouts = []string{
		"2 Jan 2006",
		"2 January 2006",
		"2-Jan-2006",
		"2/Jan/2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 Jan 06",
		"2-Jan-06",
	}
	numericDate = regexp.MustCompile(`^(\d{1,2})[/\-. ](\d{1,2})[/\-. ](\d{2}|\d{4})$`)
)

// LayoutResolver reads ISO, textual-month and numeric dates. Numeric dates
// are read day-first for identity documents and month-first otherwise; when
// both readings are valid the confidence is lowered.
type LayoutResolver struct{}

// NewLayoutResolver creates a new LayoutResolver
func NewLayoutResolver() *LayoutResolver {
	return &LayoutResolver{}
}

// DayFirst reports whether numeric dates on documents of this category are day-first.
func DayFirst(hint models.DocumentCategory) bool {
	return hint != models.CategoryOther && hint != ""
}

func (r *LayoutResolver) Resolve(_ context.Context, raw string, hint models.DocumentCategory) (Resolution, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return Resolution{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Resolution{ISO: t.Format(ISOLayout), AssumedFormat: FormatISO, Confidence: isoConfidence}, true
		}
	}

	titled := titleMonth(s)
	for _, layout := range textualLayouts {
		if t, err := time.Parse(layout, titled); err == nil {
			return Resolution{ISO: t.Format(ISOLayout), AssumedFormat: FormatTextual, Confidence: textualConfidence}, true
		}
	}

	m := numericDate.FindStringSubmatch(s)
	if m == nil {
		return Resolution{}, false
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	year := expandYear(m[3])

	dayFirst := DayFirst(hint)
	day, month, format := first, second, FormatDayFirst
	if !dayFirst {
		day, month, format = second, first, FormatMonthFirst
	}

	primary, primaryOK := civilDate(year, month, day)
	alternate, alternateOK := civilDate(year, day, month)

	switch {
	case primaryOK && alternateOK && first != second:
		return Resolution{ISO: primary, AssumedFormat: format, Confidence: ambiguousConfidence}, true
	case primaryOK:
		return Resolution{ISO: primary, AssumedFormat: format, Confidence: unambiguousNumeric}, true
	case alternateOK:
		// the preferred order is impossible (e.g. month 13), so the other one must be meant
		return Resolution{ISO: alternate, AssumedFormat: swapFormat(format), Confidence: unambiguousNumeric}, true
	}
	return Resolution{}, false
}

func civilDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	return t.Format(ISOLayout), true
}

func expandYear(y string) int {
	n, _ := strconv.Atoi(y)
	if len(y) == 4 {
		return n
	}
	if n >= twoDigitYearPivot {
		return 1900 + n
	}
	return 2000 + n
}

func swapFormat(format string) string {
	if format == FormatDayFirst {
		return FormatMonthFirst
	}
	return FormatDayFirst
}

// titleMonth turns "15 MAR 1990" into "15 Mar 1990" so the textual layouts match.
func titleMonth(s string) string {
	words := strings.Fields(strings.NewReplacer("-", " - ", "/", " / ", ",", " ,").Replace(s))
	for i, w := range words {
		if w[0] < '0' || w[0] > '9' {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	out := strings.Join(words, " ")
	return strings.NewReplacer(" - ", "-", " / ", "/", " ,", ",").Replace(out)
}

// String renders a Resolution for logs
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%s, %.2f)", r.ISO, r.AssumedFormat, r.Confidence)
}
