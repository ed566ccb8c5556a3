package merging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/encryption"
	"github.com/Ramsey-B/fern/pkg/models"
)

// memoryStore keeps committed state separately from the working copy so a
// failed transaction leaves no trace.
type memoryStore struct {
	committed map[string]models.ProfileRecord
	audits    []models.AuditEntry

	working      map[string]models.ProfileRecord
	pendingAudit []models.AuditEntry

	failUpdate error
	failAudit  error
	updates    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{committed: map[string]models.ProfileRecord{}}
}

func (s *memoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.working = make(map[string]models.ProfileRecord, len(s.committed))
	for k, v := range s.committed {
		s.working[k] = v
	}
	s.pendingAudit = nil

	if err := fn(ctx); err != nil {
		s.working = nil
		s.pendingAudit = nil
		return err
	}
	s.committed = s.working
	s.audits = append(s.audits, s.pendingAudit...)
	return nil
}

func (s *memoryStore) GetForUpdate(_ context.Context, personID string) (*models.ProfileRecord, error) {
	r, ok := s.working[personID]
	if !ok {
		return nil, nil
	}
	r.Fields = append(json.RawMessage(nil), r.Fields...)
	return &r, nil
}

func (s *memoryStore) Get(_ context.Context, personID string) (*models.ProfileRecord, error) {
	r, ok := s.committed[personID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memoryStore) Create(_ context.Context, record *models.ProfileRecord) (bool, error) {
	if _, ok := s.working[record.PersonID]; ok {
		return false, nil
	}
	s.working[record.PersonID] = *record
	return true, nil
}

func (s *memoryStore) Update(_ context.Context, record *models.ProfileRecord) error {
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.updates++
	record.Version++
	s.working[record.PersonID] = *record
	return nil
}

func (s *memoryStore) AppendBatch(_ context.Context, entries []models.AuditEntry) error {
	if s.failAudit != nil {
		return s.failAudit
	}
	s.pendingAudit = append(s.pendingAudit, entries...)
	return nil
}

func (s *memoryStore) seed(t *testing.T, personID string, fields map[string]models.StoredField) {
	t.Helper()
	r := models.ProfileRecord{PersonID: personID, Version: 1}
	require.NoError(t, r.SetStoredFields(fields))
	s.committed[personID] = r
}

func (s *memoryStore) stored(t *testing.T, personID string) map[string]models.StoredField {
	t.Helper()
	r, ok := s.committed[personID]
	require.True(t, ok)
	fields, err := r.StoredFields()
	require.NoError(t, err)
	return fields
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *memoryStore, enc encryption.Encryptor) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	seq := 0
	return NewEngine(logger, store, store, store, enc,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("audit-%d", seq)
		}),
	)
}

func sealed(t *testing.T, enc encryption.Encryptor, v any, src models.FieldSource) models.StoredField {
	t.Helper()
	s, err := enc.Encrypt(v)
	require.NoError(t, err)
	return models.StoredField{Value: s, Source: src}
}

func ptr[T any](v T) *T { return &v }

func TestMergeToProfile(t *testing.T) {
	ctx := context.Background()
	enc := encryption.Plaintext{}

	t.Run("creates a profile", func(t *testing.T) {
		store := newMemoryStore()
		e := newTestEngine(store, enc)

		res, err := e.MergeToProfile(ctx, "p1", map[string]any{
			"fullName": "John Smith",
			"email":    "",
			"nothing":  nil,
		}, "doc-1", map[string]float64{"fullName": 92})
		require.NoError(t, err)

		assert.True(t, res.NewProfileCreated)
		assert.Equal(t, 1, res.FieldsUpdated)
		assert.Empty(t, res.SkippedFields)

		fields := store.stored(t, "p1")
		require.Contains(t, fields, "fullName")
		assert.NotContains(t, fields, "email")
		assert.Equal(t, "doc-1", fields["fullName"].Source.DocumentID)
		assert.Equal(t, ptr(92.0), fields["fullName"].Source.Confidence)
		assert.Equal(t, fixedNow, fields["fullName"].Source.ExtractedAt)

		require.Len(t, store.audits, 1)
		a := store.audits[0]
		assert.Equal(t, models.AuditActionCreate, a.Action)
		assert.Nil(t, a.OldValue)
		assert.Equal(t, ptr("John Smith"), a.NewValue)
		assert.Equal(t, models.AuditSourceOCR, a.Source)
		assert.Equal(t, "doc-1", a.SourceDocumentID)
		assert.Equal(t, "audit-1", a.ID)
	})

	t.Run("confidence gate", func(t *testing.T) {
		tests := []struct {
			name     string
			previous *float64
			supplied map[string]float64
			applied  bool
			wantConf *float64
		}{
			{name: "lower is skipped", previous: ptr(90.0), supplied: map[string]float64{"name": 80}},
			{name: "equal overwrites", previous: ptr(90.0), supplied: map[string]float64{"name": 90}, applied: true, wantConf: ptr(90.0)},
			{name: "higher overwrites", previous: ptr(90.0), supplied: map[string]float64{"name": 95}, applied: true, wantConf: ptr(95.0)},
			{name: "missing supplied keeps previous", previous: ptr(90.0), applied: true, wantConf: ptr(90.0)},
			{name: "missing previous", supplied: map[string]float64{"name": 10}, applied: true, wantConf: ptr(10.0)},
			{name: "neither", applied: true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := newMemoryStore()
				store.seed(t, "p1", map[string]models.StoredField{
					"name": sealed(t, enc, "Old", models.FieldSource{DocumentID: "doc-0", Confidence: tt.previous}),
				})
				e := newTestEngine(store, enc)

				res, err := e.MergeToProfile(ctx, "p1", map[string]any{"name": "New"}, "doc-1", tt.supplied)
				require.NoError(t, err)
				assert.False(t, res.NewProfileCreated)

				field := store.stored(t, "p1")["name"]
				if !tt.applied {
					assert.Equal(t, []string{"name"}, res.SkippedFields)
					assert.Equal(t, 0, res.FieldsUpdated)
					assert.Equal(t, "doc-0", field.Source.DocumentID)
					assert.Empty(t, store.audits)
					return
				}
				assert.Empty(t, res.SkippedFields)
				assert.Equal(t, 1, res.FieldsUpdated)
				assert.Equal(t, "doc-1", field.Source.DocumentID)
				assert.Equal(t, tt.wantConf, field.Source.Confidence)
				require.Len(t, store.audits, 1)
				assert.Equal(t, models.AuditActionUpdate, store.audits[0].Action)
				assert.Equal(t, ptr("Old"), store.audits[0].OldValue)
				assert.Equal(t, ptr("New"), store.audits[0].NewValue)
			})
		}
	})

	t.Run("manual edits are never overwritten", func(t *testing.T) {
		store := newMemoryStore()
		store.seed(t, "p1", map[string]models.StoredField{
			"email": sealed(t, enc, "me@x.com", models.FieldSource{ManuallyEdited: true, Confidence: ptr(1.0)}),
		})
		e := newTestEngine(store, enc)

		res, err := e.MergeToProfile(ctx, "p1", map[string]any{"email": "ocr@x.com", "phone": "555"}, "doc-1",
			map[string]float64{"email": 100})
		require.NoError(t, err)
		assert.Equal(t, []string{"email"}, res.SkippedFields)
		assert.Equal(t, 1, res.FieldsUpdated)

		fields := store.stored(t, "p1")
		got, err := enc.Decrypt(fields["email"].Value)
		require.NoError(t, err)
		assert.Equal(t, "me@x.com", got)
		assert.True(t, fields["email"].Source.ManuallyEdited)

		require.Len(t, store.audits, 1)
		assert.Equal(t, "phone", store.audits[0].FieldName)
	})

	t.Run("audit entries only for changed values", func(t *testing.T) {
		store := newMemoryStore()
		store.seed(t, "p1", map[string]models.StoredField{
			"a": sealed(t, enc, "same", models.FieldSource{DocumentID: "doc-0"}),
			"b": sealed(t, enc, float64(1), models.FieldSource{DocumentID: "doc-0"}),
		})
		e := newTestEngine(store, enc)

		res, err := e.MergeToProfile(ctx, "p1", map[string]any{"a": "same", "b": float64(2), "c": []any{"x", "y"}}, "doc-1", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, res.FieldsUpdated)

		require.Len(t, store.audits, 2)
		assert.Equal(t, "b", store.audits[0].FieldName)
		assert.Equal(t, ptr("1"), store.audits[0].OldValue)
		assert.Equal(t, ptr("2"), store.audits[0].NewValue)
		assert.Equal(t, "c", store.audits[1].FieldName)
		assert.Equal(t, ptr(`["x","y"]`), store.audits[1].NewValue)
	})

	t.Run("reapplying is a no-op", func(t *testing.T) {
		store := newMemoryStore()
		e := newTestEngine(store, enc)
		fields := map[string]any{"fullName": "John Smith", "dob": "1990-03-15"}

		_, err := e.MergeToProfile(ctx, "p1", fields, "doc-1", nil)
		require.NoError(t, err)
		updates, audits := store.updates, len(store.audits)

		res, err := e.MergeToProfile(ctx, "p1", fields, "doc-1", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, res.FieldsUpdated)
		assert.False(t, res.NewProfileCreated)
		assert.Equal(t, updates, store.updates)
		assert.Len(t, store.audits, audits)
	})

	t.Run("storage error aborts everything", func(t *testing.T) {
		store := newMemoryStore()
		store.seed(t, "p1", map[string]models.StoredField{
			"name": sealed(t, enc, "Old", models.FieldSource{DocumentID: "doc-0"}),
		})
		store.failAudit = errors.New("disk full")
		e := newTestEngine(store, enc)

		_, err := e.MergeToProfile(ctx, "p1", map[string]any{"name": "New"}, "doc-1", nil)
		require.Error(t, err)
		assert.ErrorContains(t, err, "disk full")

		got, err := enc.Decrypt(store.stored(t, "p1")["name"].Value)
		require.NoError(t, err)
		assert.Equal(t, "Old", got)
		assert.Empty(t, store.audits)
	})

	t.Run("unreadable stored field is skipped", func(t *testing.T) {
		store := newMemoryStore()
		store.seed(t, "p1", map[string]models.StoredField{
			"name":  {Value: "{corrupt", Source: models.FieldSource{DocumentID: "doc-0"}},
			"email": sealed(t, enc, "a@x.com", models.FieldSource{DocumentID: "doc-0"}),
		})
		e := newTestEngine(store, enc)

		res, err := e.MergeToProfile(ctx, "p1", map[string]any{"name": "New", "email": "b@x.com"}, "doc-1", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"name"}, res.SkippedFields)
		assert.Equal(t, 1, res.FieldsUpdated)

		fields := store.stored(t, "p1")
		assert.Equal(t, "{corrupt", fields["name"].Value)
	})

	t.Run("missing identifiers", func(t *testing.T) {
		e := newTestEngine(newMemoryStore(), enc)

		_, err := e.MergeToProfile(ctx, " ", map[string]any{"a": "b"}, "doc-1", nil)
		require.ErrorIs(t, err, ErrPersonIDRequired)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

		_, err = e.MergeToProfile(ctx, "p1", map[string]any{"a": "b"}, "", nil)
		require.ErrorIs(t, err, ErrDocumentIDRequired)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("encrypted at rest", func(t *testing.T) {
		sealer, err := encryption.NewSealerFromHex("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
		require.NoError(t, err)
		store := newMemoryStore()
		e := newTestEngine(store, sealer)

		_, err = e.MergeToProfile(ctx, "p1", map[string]any{"ssn": "123-45-6789"}, "doc-1", nil)
		require.NoError(t, err)
		assert.NotContains(t, string(store.committed["p1"].Fields), "123-45-6789")

		profile, err := e.GetProfile(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "123-45-6789", profile.Fields["ssn"].Value)
		assert.Equal(t, 1, profile.Version)
	})
}

func TestGetProfile_NotFound(t *testing.T) {
	e := newTestEngine(newMemoryStore(), encryption.Plaintext{})
	_, err := e.GetProfile(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestFieldMerger_MergeField(t *testing.T) {
	m := NewFieldMerger(func() time.Time { return fixedNow })

	tests := []struct {
		name    string
		current CurrentField
		value   any
		want    Outcome
		changed bool
		action  models.AuditAction
	}{
		{name: "new field", value: "x", want: OutcomeWrite, changed: true, action: models.AuditActionCreate},
		{name: "empty string", value: "", want: OutcomeSkipEmpty},
		{name: "null", value: nil, want: OutcomeSkipEmpty},
		{name: "unreadable", current: CurrentField{Exists: true, Unreadable: true}, value: "x", want: OutcomeSkipUnreadable},
		{
			name:    "manual edit wins over empty",
			current: CurrentField{Exists: true, Value: models.ProfileFieldValue{Value: "x", Source: models.FieldSource{ManuallyEdited: true}}},
			value:   "",
			want:    OutcomeSkipManual,
		},
		{
			name:    "same value",
			current: CurrentField{Exists: true, Value: models.ProfileFieldValue{Value: "x"}},
			value:   "x",
			want:    OutcomeWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.MergeField(tt.current, tt.value, "doc-1", nil)
			assert.Equal(t, tt.want, d.Outcome)
			assert.Equal(t, tt.changed, d.Changed)
			assert.Equal(t, tt.action, d.Action)
		})
	}

	assert.True(t, OutcomeSkipManual.Recorded())
	assert.False(t, OutcomeSkipEmpty.Recorded())
}
