// Package grouping clusters document extractions into person groups
package grouping

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	AutoGroupThreshold    = 0.95
	SuggestMergeThreshold = 0.85
	MinMatchThreshold     = 0.70

	combinedIDWeight   = 0.6
	combinedNameWeight = 0.4
)

const (
	ReasonExactID        = "Exact ID number match"
	ReasonPartialID      = "Partial ID number match"
	ReasonHighName       = "High name similarity"
	ReasonModerateName   = "Moderate name similarity — review recommended"
	ReasonLowName        = "Low name similarity"
	ReasonCombined       = "Combined ID and name match"
	ReasonNoMatch        = "No match detected"
	ReasonSingleDocument = "Single document"
)

// PairMatch is the evidence that two documents belong to the same person
type PairMatch struct {
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Config contains configuration for the grouping engine
type Config struct {
	// MaxParallelBatches bounds GroupBatches concurrency (default: 4)
	MaxParallelBatches int
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{MaxParallelBatches: 4}
}

// Engine groups documents by pairwise name and identifier evidence.
// It holds no per-run state and can be shared.
type Engine struct {
	logger ectologger.Logger
	scorer *matching.Scorer
	config Config
	newID  func() string
}

// Option customizes an Engine
type Option func(*Engine)

// WithIDGenerator replaces the group id generator
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates a new grouping engine
func NewEngine(logger ectologger.Logger, scorer *matching.Scorer, config Config, opts ...Option) *Engine {
	if config.MaxParallelBatches <= 0 {
		config.MaxParallelBatches = DefaultConfig().MaxParallelBatches
	}
	e := &Engine{
		logger: logger,
		scorer: scorer,
		config: config,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluatePair scores two documents. Identifier evidence takes priority over
// name evidence; a combined score is only used when neither alone qualifies.
func (e *Engine) EvaluatePair(a, b models.DocumentExtraction) PairMatch {
	id := e.scorer.CompareIDs(a.IDNumber(), b.IDNumber())
	if id.Match && id.Confidence >= AutoGroupThreshold {
		return PairMatch{Confidence: 1.0, Reason: ReasonExactID}
	}
	if id.Match && id.Confidence >= SuggestMergeThreshold {
		return PairMatch{Confidence: id.Confidence, Reason: ReasonPartialID}
	}

	name := e.scorer.NameSimilarity(a.Name(), b.Name())
	switch {
	case name >= AutoGroupThreshold:
		return PairMatch{Confidence: name, Reason: ReasonHighName}
	case name >= SuggestMergeThreshold:
		return PairMatch{Confidence: name, Reason: ReasonModerateName}
	case name >= MinMatchThreshold:
		return PairMatch{Confidence: name, Reason: ReasonLowName}
	}

	if id.Match && id.Confidence >= MinMatchThreshold && name >= MinMatchThreshold {
		return PairMatch{
			Confidence: combinedIDWeight*id.Confidence + combinedNameWeight*name,
			Reason:     ReasonCombined,
		}
	}

	return PairMatch{Confidence: 0, Reason: ReasonNoMatch}
}

type edge struct {
	a, b  string
	match PairMatch
}

// GroupDocuments partitions docs into person groups and suggests merges
// between groups whose evidence falls short of auto-grouping.
func (e *Engine) GroupDocuments(ctx context.Context, docs []models.DocumentExtraction) models.GroupingResult {
	ctx, span := tracing.StartSpan(ctx, "grouping.Engine.GroupDocuments")
	defer span.End()

	start := time.Now()
	log := e.logger.WithContext(ctx)

	ordered := e.canonicalOrder(docs, log)
	result := e.group(ordered)

	metrics.RecordGrouping(len(ordered), len(result.SuggestedMerges), time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"documents":   len(ordered),
		"groups":      len(result.Groups),
		"suggestions": len(result.SuggestedMerges),
	}).Debug("Grouped documents")

	return result
}

// canonicalOrder drops duplicate document ids (first occurrence wins) and
// sorts by id so that every tie-break below is independent of input order.
func (e *Engine) canonicalOrder(docs []models.DocumentExtraction, log ectologger.Logger) []models.DocumentExtraction {
	seen := make(map[string]bool, len(docs))
	ordered := make([]models.DocumentExtraction, 0, len(docs))
	for _, d := range docs {
		if seen[d.DocumentID] {
			log.WithField("document_id", d.DocumentID).Warn("Ignoring duplicate document id in grouping batch")
			continue
		}
		seen[d.DocumentID] = true
		ordered = append(ordered, d)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DocumentID < ordered[j].DocumentID
	})
	return ordered
}

func (e *Engine) group(docs []models.DocumentExtraction) models.GroupingResult {
	result := models.GroupingResult{
		Groups:          []models.PersonGroup{},
		SuggestedMerges: []models.SuggestedMerge{},
	}

	switch len(docs) {
	case 0:
		return result
	case 1:
		result.Groups = append(result.Groups, e.singleton(docs[0]))
		return result
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocumentID
	}
	uf := newUnionFind(ids)

	var autoEdges, suggestEdges []edge
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			m := e.EvaluatePair(docs[i], docs[j])
			switch {
			case m.Confidence >= AutoGroupThreshold:
				uf.union(docs[i].DocumentID, docs[j].DocumentID)
				autoEdges = append(autoEdges, edge{a: docs[i].DocumentID, b: docs[j].DocumentID, match: m})
			case m.Confidence >= SuggestMergeThreshold:
				suggestEdges = append(suggestEdges, edge{a: docs[i].DocumentID, b: docs[j].DocumentID, match: m})
			}
		}
	}

	// strongest edge per final root; strictly greater keeps the first seen on ties
	best := make(map[string]PairMatch)
	for _, ed := range autoEdges {
		root := uf.find(ed.a)
		if cur, ok := best[root]; !ok || ed.match.Confidence > cur.Confidence {
			best[root] = ed.match
		}
	}

	groupIndex := make(map[string]int)
	for _, d := range docs {
		root := uf.find(d.DocumentID)
		idx, ok := groupIndex[root]
		if !ok {
			idx = len(result.Groups)
			groupIndex[root] = idx
			match, hasEdge := best[root]
			if !hasEdge {
				match = PairMatch{Confidence: 1.0, Reason: ReasonSingleDocument}
			}
			result.Groups = append(result.Groups, models.PersonGroup{
				ID:          e.newID(),
				Confidence:  match.Confidence,
				MatchReason: match.Reason,
			})
		}
		result.Groups[idx].DocumentIDs = append(result.Groups[idx].DocumentIDs, d.DocumentID)
	}

	e.assignNames(docs, uf, groupIndex, result.Groups)
	result.SuggestedMerges = projectSuggestions(suggestEdges, uf, groupIndex, result.Groups)
	return result
}

func (e *Engine) singleton(d models.DocumentExtraction) models.PersonGroup {
	g := models.PersonGroup{
		ID:          e.newID(),
		Confidence:  1.0,
		DocumentIDs: []string{d.DocumentID},
		MatchReason: ReasonSingleDocument,
	}
	if name := d.Name(); name != "" {
		g.Name = &name
	}
	return g
}

// assignNames picks, per group, the extracted name whose name field was read
// with the highest confidence.
func (e *Engine) assignNames(docs []models.DocumentExtraction, uf *unionFind, groupIndex map[string]int, groups []models.PersonGroup) {
	bestConfidence := make(map[int]float64)
	for _, d := range docs {
		name := d.Name()
		if name == "" {
			continue
		}
		idx := groupIndex[uf.find(d.DocumentID)]
		confidence := d.NameConfidence()
		if cur, ok := bestConfidence[idx]; ok && confidence <= cur {
			continue
		}
		bestConfidence[idx] = confidence
		groups[idx].Name = &name
	}
}

// projectSuggestions lifts document-level suggestions onto final groups.
// Suggestions inside one group are dropped and each unordered group pair is
// reported once.
func projectSuggestions(edges []edge, uf *unionFind, groupIndex map[string]int, groups []models.PersonGroup) []models.SuggestedMerge {
	out := []models.SuggestedMerge{}
	seen := make(map[[2]int]bool)
	for _, ed := range edges {
		if uf.connected(ed.a, ed.b) {
			continue
		}
		ga := groupIndex[uf.find(ed.a)]
		gb := groupIndex[uf.find(ed.b)]
		if ga > gb {
			ga, gb = gb, ga
		}
		key := [2]int{ga, gb}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.SuggestedMerge{
			GroupID1:   groups[ga].ID,
			GroupID2:   groups[gb].ID,
			Confidence: ed.match.Confidence,
			Reason:     ed.match.Reason,
		})
	}
	return out
}

// GroupBatches groups independent batches concurrently. Results are returned
// in batch order.
func (e *Engine) GroupBatches(ctx context.Context, batches [][]models.DocumentExtraction) ([]models.GroupingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "grouping.Engine.GroupBatches")
	defer span.End()

	results := make([]models.GroupingResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxParallelBatches)

	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.GroupDocuments(gctx, batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Grouping batches cancelled")
		return nil, err
	}
	return results, nil
}
