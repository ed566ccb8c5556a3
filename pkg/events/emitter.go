// Package events publishes profile and grouping lifecycle events
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher writes one keyed event. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload any) error
}

// Emitter handles event emission for fern
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *Emitter) base(ctx context.Context, eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     e.now().UTC(),
		CorrelationID: fernctx.GetRequestID(ctx),
	}
}

// EmitProfileMerged emits profile.merged when the merge changed something.
// Events are keyed by person so one person's events stay ordered.
func (e *Emitter) EmitProfileMerged(ctx context.Context, personID, documentID string, result *models.MergeResult) error {
	if result == nil || (result.FieldsUpdated == 0 && !result.NewProfileCreated) {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitProfileMerged")
	defer span.End()

	event := ProfileMergedEvent{
		BaseEvent:         e.base(ctx, EventTypeProfileMerged),
		PersonID:          personID,
		DocumentID:        documentID,
		FieldsUpdated:     result.FieldsUpdated,
		SkippedFields:     result.SkippedFields,
		NewProfileCreated: result.NewProfileCreated,
	}

	if err := e.publisher.Publish(ctx, personID, string(EventTypeProfileMerged), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Error("Failed to emit profile.merged event")
		return err
	}
	return nil
}

// EmitDocumentsGrouped emits documents.grouped for a grouping run. Events are
// keyed by the partition fingerprint so reruns over the same documents that
// reach the same grouping share a key.
func (e *Emitter) EmitDocumentsGrouped(ctx context.Context, result models.GroupingResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDocumentsGrouped")
	defer span.End()

	total := 0
	for _, g := range result.Groups {
		total += len(g.DocumentIDs)
	}

	// group ids are minted per run; the partition itself is the document sets
	partition, err := fingerprint.Of(result.Groups, "id", "name", "confidence", "match_reason")
	if err != nil {
		return err
	}

	event := DocumentsGroupedEvent{
		BaseEvent:       e.base(ctx, EventTypeDocumentsGrouped),
		Groups:          result.Groups,
		SuggestedMerges: result.SuggestedMerges,
		TotalDocuments:  total,
		Partition:       partition,
	}

	if err := e.publisher.Publish(ctx, partition, string(EventTypeDocumentsGrouped), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit documents.grouped event")
		return err
	}
	return nil
}
