package processor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/fieldmapping"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

var errConflict = errors.New("could not serialize access")

type mergeCall struct {
	personID    string
	documentID  string
	fields      map[string]any
	confidences map[string]float64
}

type fakeMerger struct {
	calls    []mergeCall
	failures []error
	result   *models.MergeResult
}

func (f *fakeMerger) MergeToProfile(_ context.Context, personID string, fields map[string]any, documentID string, confidences map[string]float64) (*models.MergeResult, error) {
	f.calls = append(f.calls, mergeCall{personID: personID, documentID: documentID, fields: fields, confidences: confidences})
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.MergeResult{FieldsUpdated: len(fields), SkippedFields: []string{}}, nil
}

type fakeEmitter struct {
	emitted int
	err     error
}

func (f *fakeEmitter) EmitProfileMerged(context.Context, string, string, *models.MergeResult) error {
	f.emitted++
	return f.err
}

func newTestProcessor(t *testing.T, merger *fakeMerger, emitter Emitter) *Processor {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	mapper, err := fieldmapping.NewMapper(logger, dates.NewLayoutResolver())
	require.NoError(t, err)

	p := NewProcessor(logger, mapper, merger, emitter, Config{MaxRetries: 3, InitialInterval: time.Millisecond})
	p.retryable = func(err error) bool { return errors.Is(err, errConflict) }
	return p
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("maps payload and lets explicit fields win", func(t *testing.T) {
		merger := &fakeMerger{}
		emitter := &fakeEmitter{}
		p := newTestProcessor(t, merger, emitter)

		_, err := p.Process(ctx, ExtractionMessage{
			PersonID:   "p1",
			DocumentID: "doc-1",
			Category:   "passport",
			Payload: map[string]any{
				"passport_no":   "N1234567",
				"date_of_birth": "15/03/1990",
				"fields": map[string]any{
					"fullName": map[string]any{"value": "John Smith", "confidence": float64(88)},
				},
			},
			Fields:           map[string]any{"passportNumber": "N7654321"},
			FieldConfidences: map[string]float64{"passportNumber": 99},
		})
		require.NoError(t, err)

		require.Len(t, merger.calls, 1)
		call := merger.calls[0]
		assert.Equal(t, "p1", call.personID)
		assert.Equal(t, "doc-1", call.documentID)
		assert.Equal(t, "N7654321", call.fields["passportNumber"])
		assert.Equal(t, "1990-03-15", call.fields["dateOfBirth"])
		assert.Equal(t, "John Smith", call.fields["fullName"])
		assert.Equal(t, map[string]float64{"fullName": 88, "passportNumber": 99}, call.confidences)
		assert.Equal(t, 1, emitter.emitted)
	})

	t.Run("retries serialization conflicts", func(t *testing.T) {
		merger := &fakeMerger{failures: []error{errConflict, errConflict}}
		p := newTestProcessor(t, merger, nil)

		res, err := p.Process(ctx, ExtractionMessage{PersonID: "p1", DocumentID: "doc-1", Fields: map[string]any{"a": "b"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.FieldsUpdated)
		assert.Len(t, merger.calls, 3)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		merger := &fakeMerger{failures: []error{errConflict, errConflict, errConflict, errConflict, errConflict}}
		p := newTestProcessor(t, merger, nil)

		_, err := p.Process(ctx, ExtractionMessage{PersonID: "p1", DocumentID: "doc-1", Fields: map[string]any{"a": "b"}})
		assert.ErrorIs(t, err, errConflict)
		assert.Len(t, merger.calls, 4)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		merger := &fakeMerger{failures: []error{errors.New("connection refused")}}
		p := newTestProcessor(t, merger, nil)

		_, err := p.Process(ctx, ExtractionMessage{PersonID: "p1", DocumentID: "doc-1", Fields: map[string]any{"a": "b"}})
		assert.ErrorContains(t, err, "connection refused")
		assert.Len(t, merger.calls, 1)
	})

	t.Run("emit failure does not fail the merge", func(t *testing.T) {
		p := newTestProcessor(t, &fakeMerger{}, &fakeEmitter{err: errors.New("broker down")})
		_, err := p.Process(ctx, ExtractionMessage{PersonID: "p1", DocumentID: "doc-1", Fields: map[string]any{"a": "b"}})
		assert.NoError(t, err)
	})
}

func TestProcessor_HandleMessage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		value    string
		failures []error
		poison   bool
		wantErr  bool
		merges   int
	}{
		{name: "valid", value: `{"person_id":"p1","document_id":"d1","fields":{"a":"b"}}`, merges: 1},
		{name: "malformed json", value: `{"person_id":`, poison: true, wantErr: true},
		{name: "missing person", value: `{"document_id":"d1"}`, poison: true, wantErr: true},
		{name: "confidence out of range", value: `{"person_id":"p1","document_id":"d1","field_confidences":{"a":101}}`, poison: true, wantErr: true},
		{
			name:     "bad request from merge",
			value:    `{"person_id":" ","document_id":"d1"}`,
			failures: []error{httperror.NewHTTPError(http.StatusBadRequest, "person id is required")},
			poison:   true,
			wantErr:  true,
			merges:   1,
		},
		{
			name:     "not found from merge",
			value:    `{"person_id":"p1","document_id":"d1"}`,
			failures: []error{httperror.NewHTTPError(http.StatusNotFound, "profile p1 not found")},
			poison:   true,
			wantErr:  true,
			merges:   1,
		},
		{
			name:     "storage failure is retried by the consumer",
			value:    `{"person_id":"p1","document_id":"d1"}`,
			failures: []error{errors.New("db down")},
			wantErr:  true,
			merges:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merger := &fakeMerger{failures: tt.failures}
			p := newTestProcessor(t, merger, nil)

			err := p.HandleMessage(ctx, &kafka.IncomingMessage{Value: []byte(tt.value)})
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.poison, errors.Is(err, kafka.ErrPoisonMessage))
			}
			assert.Len(t, merger.calls, tt.merges)
		})
	}
}
