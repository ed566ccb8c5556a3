package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Runner executes Cypher statements. *Client implements it.
type Runner interface {
	RunInTransaction(ctx context.Context, statements []Statement) error
	CollectStrings(ctx context.Context, st Statement, column string) ([]string, error)
}

const (
	upsertPersons = `UNWIND $persons AS p
MERGE (person:Person {id: p.id})
SET person.name = p.name, person.confidence = p.confidence, person.match_reason = p.match_reason`

	upsertDocuments = `UNWIND $documents AS d
MERGE (doc:Document {id: d.id})
SET doc.file_name = d.file_name
WITH doc, d
MATCH (person:Person {id: d.person_id})
MERGE (person)-[:HAS_DOCUMENT]->(doc)`

	upsertSuggestions = `UNWIND $suggestions AS s
MATCH (a:Person {id: s.from}), (b:Person {id: s.to})
MERGE (a)-[r:POSSIBLY_SAME]->(b)
SET r.confidence = s.confidence, r.reason = s.reason`

	documentsOfPerson = `MATCH (:Person {id: $id})-[:HAS_DOCUMENT]->(doc:Document)
RETURN doc.id AS id ORDER BY doc.id`
)

// GroupProjector writes grouping results as (:Person)-[:HAS_DOCUMENT]->(:Document)
// with (:Person)-[:POSSIBLY_SAME]->(:Person) for suggested merges
type GroupProjector struct {
	runner Runner
	logger ectologger.Logger
}

// NewGroupProjector creates a new projector
func NewGroupProjector(runner Runner, logger ectologger.Logger) *GroupProjector {
	return &GroupProjector{
		runner: runner,
		logger: logger,
	}
}

// Project upserts the result in one transaction. Re-projecting the same
// result is a no-op.
func (p *GroupProjector) Project(ctx context.Context, result models.GroupingResult, documents []models.DocumentExtraction) error {
	ctx, span := tracing.StartSpan(ctx, "graph.GroupProjector.Project")
	defer span.End()

	statements := buildProjection(result, documents)
	if len(statements) == 0 {
		return nil
	}

	if err := p.runner.RunInTransaction(ctx, statements); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to project grouping result")
		return fmt.Errorf("project grouping result: %w", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"groups":      len(result.Groups),
		"suggestions": len(result.SuggestedMerges),
	}).Debug("Projected grouping result")
	return nil
}

// DocumentsOf returns the document ids linked to a person node
func (p *GroupProjector) DocumentsOf(ctx context.Context, personID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.GroupProjector.DocumentsOf")
	defer span.End()

	ids, err := p.runner.CollectStrings(ctx, Statement{
		Cypher: documentsOfPerson,
		Params: map[string]any{"id": personID},
	}, "id")
	if err != nil {
		return nil, fmt.Errorf("documents of %s: %w", personID, err)
	}
	return ids, nil
}

func buildProjection(result models.GroupingResult, documents []models.DocumentExtraction) []Statement {
	if len(result.Groups) == 0 {
		return nil
	}

	fileNames := make(map[string]string, len(documents))
	for _, d := range documents {
		fileNames[d.DocumentID] = d.FileName
	}

	persons := ectolinq.Map(result.Groups, func(g models.PersonGroup) any {
		var name any
		if g.Name != nil {
			name = *g.Name
		}
		return map[string]any{
			"id":           g.ID,
			"name":         name,
			"confidence":   g.Confidence,
			"match_reason": g.MatchReason,
		}
	})

	docs := []any{}
	for _, g := range result.Groups {
		for _, id := range g.DocumentIDs {
			docs = append(docs, map[string]any{
				"id":        id,
				"file_name": fileNames[id],
				"person_id": g.ID,
			})
		}
	}

	statements := []Statement{
		{Cypher: upsertPersons, Params: map[string]any{"persons": persons}},
		{Cypher: upsertDocuments, Params: map[string]any{"documents": docs}},
	}

	if len(result.SuggestedMerges) > 0 {
		suggestions := ectolinq.Map(result.SuggestedMerges, func(s models.SuggestedMerge) any {
			return map[string]any{
				"from":       s.GroupID1,
				"to":         s.GroupID2,
				"confidence": s.Confidence,
				"reason":     s.Reason,
			}
		})
		statements = append(statements, Statement{Cypher: upsertSuggestions, Params: map[string]any{"suggestions": suggestions}})
	}

	return statements
}
