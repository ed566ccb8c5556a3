// Package aggregation folds per-document raw fields into one multi-valued view per person
package aggregation

import (
	"context"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// dedupRules map key substrings to the normalizer used to collapse duplicate
// values. The first matching rule wins; unmatched keys dedup exactly.
var dedupRules = []struct {
	terms      []string
	normalizer string
}{
	{[]string{"email"}, normalizers.Email},
	{[]string{"phone", "tel", "mobile"}, normalizers.Phone},
	{[]string{"ssn", "social", "id"}, normalizers.Digits},
}

// Aggregator builds ProfileField views from document contributions
type Aggregator struct {
	logger ectologger.Logger
}

// NewAggregator creates a new Aggregator
func NewAggregator(logger ectologger.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate folds contributions in the given order into one ProfileField per
// normalized key.
func (a *Aggregator) Aggregate(ctx context.Context, contributions []models.Contribution) map[string]models.ProfileField {
	ctx, span := tracing.StartSpan(ctx, "aggregation.Aggregator.Aggregate")
	defer span.End()

	fields := make(map[string]*fieldBuilder)
	for _, c := range contributions {
		// raw keys that normalize alike fold in sorted order so first-seen is stable
		rawKeys := make([]string, 0, len(c.Fields))
		for rawKey := range c.Fields {
			rawKeys = append(rawKeys, rawKey)
		}
		sort.Strings(rawKeys)

		for _, rawKey := range rawKeys {
			rawValue := c.Fields[rawKey]
			key := NormalizeFieldKey(rawKey)
			if key == "" {
				continue
			}
			values := ExtractValues(rawValue)
			if len(values) == 0 {
				continue
			}
			fold(fields, key, values, c)
		}
	}

	out := make(map[string]models.ProfileField, len(fields))
	for key, b := range fields {
		f := b.field
		f.Values = dedupValues(key, f.Values)
		f.Type = string(schema.InferFieldType(key))
		f.HasConflict = len(f.Values) > 1
		out[key] = f
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"contributions": len(contributions),
		"fields":        len(out),
	}).Debug("Aggregated profile fields")

	return out
}

// fieldBuilder accumulates one field; the sets mirror Values and Sources
type fieldBuilder struct {
	field   models.ProfileField
	values  mapset.Set[string]
	sources mapset.Set[string]
}

func fold(fields map[string]*fieldBuilder, key string, values []string, c models.Contribution) {
	b, ok := fields[key]
	if !ok {
		b = &fieldBuilder{
			field: models.ProfileField{
				Key:         key,
				Values:      []string{},
				Sources:     []string{},
				LastUpdated: c.ExtractedAt,
			},
			values:  mapset.NewThreadUnsafeSet[string](),
			sources: mapset.NewThreadUnsafeSet[string](),
		}
		fields[key] = b
	}
	f := &b.field

	for _, v := range values {
		if b.values.Add(v) {
			f.Values = append(f.Values, v)
		}
	}

	// a document counts once per field even if several raw keys normalize to it
	if b.sources.Add(c.DocumentID) {
		n := float64(len(f.Sources))
		f.Sources = append(f.Sources, c.DocumentID)
		f.Confidence = (f.Confidence*n + c.Confidence) / (n + 1)
	}

	if c.ExtractedAt.After(f.LastUpdated) {
		f.LastUpdated = c.ExtractedAt
	}
}

// dedupValues collapses values that are equal under the key's normalizer,
// keeping the first seen spelling.
func dedupValues(key string, values []string) []string {
	normalizer := dedupNormalizer(key)
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		canonical := normalizers.Apply(v, normalizer)
		if canonical == "" {
			// nothing left to compare on (e.g. an "id" key holding free text)
			canonical = v
		}
		if seen.Add(canonical) {
			out = append(out, v)
		}
	}
	return out
}

func dedupNormalizer(key string) string {
	for _, rule := range dedupRules {
		for _, term := range rule.terms {
			if strings.Contains(key, term) {
				return rule.normalizer
			}
		}
	}
	return normalizers.Exact
}
