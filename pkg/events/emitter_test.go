package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

type published struct {
	key       string
	eventType string
	payload   any
}

type fakePublisher struct {
	events []published
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, key, eventType string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{key: key, eventType: eventType, payload: payload})
	return nil
}

func newTestEmitter(p Publisher) *Emitter {
	e := NewEmitter(p, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e
}

func TestEmitProfileMerged(t *testing.T) {
	ctx := fernctx.SetRequestID(context.Background(), "req-1")

	tests := []struct {
		name   string
		result *models.MergeResult
		emits  bool
	}{
		{name: "fields updated", result: &models.MergeResult{FieldsUpdated: 2}, emits: true},
		{name: "new empty profile", result: &models.MergeResult{NewProfileCreated: true}, emits: true},
		{name: "nothing changed", result: &models.MergeResult{SkippedFields: []string{"a"}}},
		{name: "nil result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePublisher{}
			require.NoError(t, newTestEmitter(p).EmitProfileMerged(ctx, "p1", "doc-1", tt.result))
			if !tt.emits {
				assert.Empty(t, p.events)
				return
			}
			require.Len(t, p.events, 1)
			assert.Equal(t, "p1", p.events[0].key)
			assert.Equal(t, "profile.merged", p.events[0].eventType)

			event := p.events[0].payload.(ProfileMergedEvent)
			assert.Equal(t, "doc-1", event.DocumentID)
			assert.Equal(t, "req-1", event.CorrelationID)
			assert.Equal(t, SchemaVersion, event.SchemaVersion)
			assert.NotEmpty(t, event.EventID)
		})
	}

	t.Run("publish error", func(t *testing.T) {
		e := newTestEmitter(&fakePublisher{err: errors.New("down")})
		err := e.EmitProfileMerged(ctx, "p1", "doc-1", &models.MergeResult{FieldsUpdated: 1})
		assert.Error(t, err)
	})
}

func TestEmitDocumentsGrouped(t *testing.T) {
	p := &fakePublisher{}
	result := models.GroupingResult{
		Groups: []models.PersonGroup{
			{ID: "g1", DocumentIDs: []string{"d1", "d2"}},
			{ID: "g2", DocumentIDs: []string{"d3"}},
		},
	}

	require.NoError(t, newTestEmitter(p).EmitDocumentsGrouped(context.Background(), result))
	require.Len(t, p.events, 1)

	event := p.events[0].payload.(DocumentsGroupedEvent)
	assert.Equal(t, 3, event.TotalDocuments)
	assert.Equal(t, EventTypeDocumentsGrouped, event.EventType)
	assert.Equal(t, event.Partition, p.events[0].key)
	assert.NotEmpty(t, event.Partition)

	rerun := models.GroupingResult{
		Groups: []models.PersonGroup{
			{ID: "g7", DocumentIDs: []string{"d1", "d2"}},
			{ID: "g8", DocumentIDs: []string{"d3"}},
		},
	}
	require.NoError(t, newTestEmitter(p).EmitDocumentsGrouped(context.Background(), rerun))
	require.Len(t, p.events, 2)
	assert.Equal(t, p.events[0].key, p.events[1].key)
}
