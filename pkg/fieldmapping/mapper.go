// Package fieldmapping turns raw extraction payloads into canonical profile fields
package fieldmapping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Mapping is the canonical view of one document
type Mapping struct {
	Category models.DocumentCategory `json:"category"`
	Fields   map[string]any          `json:"fields"`
	// Confidences holds the 0..100 OCR confidence of fields copied from a
	// {value, confidence} entry
	Confidences map[string]float64 `json:"confidences,omitempty"`
	// UnresolvedDates lists date fields left with their raw value
	UnresolvedDates []string `json:"unresolved_dates,omitempty"`
}

type compiledAlias struct {
	field string
	paths []*jmespath.JMESPath
}

// Mapper applies category alias tables to raw extraction payloads
type Mapper struct {
	logger    ectologger.Logger
	resolver  dates.Resolver
	tables    map[models.DocumentCategory][]compiledAlias
	generic   []compiledAlias
	fallbacks []compiledAlias
}

// NewMapper compiles the alias tables
func NewMapper(logger ectologger.Logger, resolver dates.Resolver) (*Mapper, error) {
	m := &Mapper{
		logger:   logger,
		resolver: resolver,
		tables:   make(map[models.DocumentCategory][]compiledAlias, len(categoryAliases)),
	}

	for category, aliases := range categoryAliases {
		compiled, err := compileAliases(aliases)
		if err != nil {
			return nil, fmt.Errorf("compile %s aliases: %w", category, err)
		}
		m.tables[category] = compiled
	}

	var err error
	if m.generic, err = compileAliases(genericArrays); err != nil {
		return nil, fmt.Errorf("compile generic arrays: %w", err)
	}
	if m.fallbacks, err = compileAliases(firstEntryFallbacks); err != nil {
		return nil, fmt.Errorf("compile fallbacks: %w", err)
	}

	return m, nil
}

func compileAliases(aliases []alias) ([]compiledAlias, error) {
	out := make([]compiledAlias, 0, len(aliases))
	for _, a := range aliases {
		ca := compiledAlias{field: a.field}
		for _, path := range a.paths {
			expr, err := jmespath.Compile(path)
			if err != nil {
				return nil, fmt.Errorf("invalid path %q for %s: %w", path, a.field, err)
			}
			ca.paths = append(ca.paths, expr)
		}
		out = append(out, ca)
	}
	return out, nil
}

// Map produces canonical fields for payload. The payload's "fields" object is
// copied first, the category's alias table is applied on top, email and phone
// are filled from generic arrays when still unset and date fields are
// rewritten to ISO-8601 when the resolver can read them.
func (m *Mapper) Map(ctx context.Context, payload map[string]any, category models.DocumentCategory) Mapping {
	ctx, span := tracing.StartSpan(ctx, "fieldmapping.Mapper.Map")
	defer span.End()

	out := Mapping{
		Category:    category,
		Fields:      map[string]any{},
		Confidences: map[string]float64{},
	}

	copyFlatFields(payload, &out)

	if table, ok := m.tables[category]; ok {
		for _, a := range table {
			if v, found := firstValue(a.paths, payload, false); found {
				out.Fields[a.field] = v
			}
		}
	} else {
		for _, a := range m.generic {
			if v, found := firstValue(a.paths, payload, false); found {
				if _, isList := v.([]any); isList {
					out.Fields[a.field] = v
				}
			}
		}
	}

	for _, a := range m.fallbacks {
		if _, set := out.Fields[a.field]; set {
			continue
		}
		if v, found := firstValue(a.paths, payload, true); found {
			out.Fields[a.field] = v
		}
	}

	m.resolveDates(ctx, &out)

	if len(out.Confidences) == 0 {
		out.Confidences = nil
	}
	return out
}

// copyFlatFields copies payload["fields"]. Entries shaped like an extracted
// field ({value, confidence}) are unwrapped to their value.
func copyFlatFields(payload map[string]any, out *Mapping) {
	fields, ok := payload["fields"].(map[string]any)
	if !ok {
		return
	}
	for k, v := range fields {
		entry, isEntry := v.(map[string]any)
		if !isEntry {
			out.Fields[k] = v
			continue
		}
		value, hasValue := entry["value"]
		if !hasValue {
			out.Fields[k] = v
			continue
		}
		out.Fields[k] = value
		if c, ok := entry["confidence"].(float64); ok {
			out.Confidences[k] = c
		}
	}
}

// firstValue returns the first path that yields a non-empty value. With
// scalarOnly, lists and objects are passed over.
func firstValue(paths []*jmespath.JMESPath, payload map[string]any, scalarOnly bool) (any, bool) {
	for _, p := range paths {
		v, err := p.Search(payload)
		if err != nil || isBlank(v) {
			continue
		}
		if scalarOnly {
			switch v.(type) {
			case []any, map[string]any:
				continue
			}
		}
		return v, true
	}
	return nil, false
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func (m *Mapper) resolveDates(ctx context.Context, out *Mapping) {
	keys := make([]string, 0, len(out.Fields))
	for k := range out.Fields {
		if IsDateField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, ok := out.Fields[k].(string)
		if !ok {
			out.UnresolvedDates = append(out.UnresolvedDates, k)
			continue
		}
		res, resolved := m.resolver.Resolve(ctx, raw, out.Category)
		if !resolved {
			m.logger.WithContext(ctx).WithFields(map[string]any{
				"field":    k,
				"category": out.Category,
			}).Debug("Date left unresolved")
			out.UnresolvedDates = append(out.UnresolvedDates, k)
			continue
		}
		out.Fields[k] = res.ISO
	}
}
