// Package merging writes document extractions into a person's profile
package merging

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/encryption"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	ErrPersonIDRequired   = httperror.NewHTTPError(http.StatusBadRequest, "person id is required")
	ErrDocumentIDRequired = httperror.NewHTTPError(http.StatusBadRequest, "document id is required")
)

// ProfileStore persists profile rows
type ProfileStore interface {
	// GetForUpdate returns the row locked for the current transaction, or nil when absent
	GetForUpdate(ctx context.Context, personID string) (*models.ProfileRecord, error)
	// Create inserts the row. It reports false when a concurrent writer created it first.
	Create(ctx context.Context, record *models.ProfileRecord) (bool, error)
	Update(ctx context.Context, record *models.ProfileRecord) error
	Get(ctx context.Context, personID string) (*models.ProfileRecord, error)
}

// AuditStore appends field change history
type AuditStore interface {
	AppendBatch(ctx context.Context, entries []models.AuditEntry) error
}

// Transactor runs fn in one transaction
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Engine runs the profile merge transaction
type Engine struct {
	logger      ectologger.Logger
	profiles    ProfileStore
	audits      AuditStore
	tx          Transactor
	encryptor   encryption.Encryptor
	fieldMerger *FieldMerger
	now         func() time.Time
	newID       func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides audit entry ID generation
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates a new merge engine
func NewEngine(
	logger ectologger.Logger,
	profiles ProfileStore,
	audits AuditStore,
	tx Transactor,
	encryptor encryption.Encryptor,
	opts ...Option,
) *Engine {
	e := &Engine{
		logger:    logger,
		profiles:  profiles,
		audits:    audits,
		tx:        tx,
		encryptor: encryptor,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.fieldMerger = NewFieldMerger(e.now)
	return e
}

// MergeToProfile merges OCR fields from one document into the person's
// profile. confidences holds the per-field OCR confidence on a 0..100 scale;
// a missing entry keeps the stored confidence.
//
// Everything happens in one transaction: the profile row is created if
// missing, then locked, and the new field map and all audit entries are
// written together or not at all. Nothing is written when no field changed.
func (e *Engine) MergeToProfile(
	ctx context.Context,
	personID string,
	fields map[string]any,
	documentID string,
	confidences map[string]float64,
) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeToProfile")
	defer span.End()

	if strings.TrimSpace(personID) == "" {
		return nil, ErrPersonIDRequired
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, ErrDocumentIDRequired
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id":   personID,
		"document_id": documentID,
		"field_count": len(fields),
	})

	var result *models.MergeResult
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.merge(ctx, log, personID, fields, documentID, confidences)
		return err
	})
	if err != nil {
		metrics.RecordMerge("failed", 0)
		log.WithError(err).Error("Profile merge failed")
		return nil, err
	}

	switch {
	case result.NewProfileCreated:
		metrics.RecordMerge("created", result.FieldsUpdated)
	case result.FieldsUpdated > 0:
		metrics.RecordMerge("updated", result.FieldsUpdated)
	default:
		metrics.RecordMerge("unchanged", 0)
	}

	log.WithFields(map[string]any{
		"fields_updated":      result.FieldsUpdated,
		"skipped_fields":      len(result.SkippedFields),
		"new_profile_created": result.NewProfileCreated,
	}).Info("Merged document into profile")

	return result, nil
}

func (e *Engine) merge(
	ctx context.Context,
	log ectologger.Logger,
	personID string,
	fields map[string]any,
	documentID string,
	confidences map[string]float64,
) (*models.MergeResult, error) {
	result := &models.MergeResult{SkippedFields: []string{}}

	record, created, err := e.loadOrCreate(ctx, personID)
	if err != nil {
		return nil, err
	}
	result.NewProfileCreated = created

	stored, err := record.StoredFields()
	if err != nil {
		return nil, fmt.Errorf("decode profile fields for %s: %w", personID, err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var audits []models.AuditEntry
	now := e.now().UTC()

	for _, key := range keys {
		current := e.currentField(log, stored, key)

		var supplied *float64
		if c, ok := confidences[key]; ok {
			supplied = &c
		}

		decision := e.fieldMerger.MergeField(current, fields[key], documentID, supplied)
		if decision.Outcome != OutcomeWrite {
			if decision.Outcome.Recorded() {
				result.SkippedFields = append(result.SkippedFields, key)
				metrics.RecordSkippedField(string(decision.Outcome))
			}
			continue
		}

		sealed, err := e.encryptor.Encrypt(decision.Value.Value)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %s: %w", key, err)
		}
		stored[key] = models.StoredField{Value: sealed, Source: decision.Value.Source}

		if decision.Changed {
			result.FieldsUpdated++
			audits = append(audits, models.AuditEntry{
				ID:               e.newID(),
				ProfileID:        personID,
				FieldName:        key,
				OldValue:         decision.OldValue,
				NewValue:         decision.NewValue,
				Action:           decision.Action,
				Source:           models.AuditSourceOCR,
				SourceDocumentID: documentID,
				CreatedAt:        now,
			})
		}
	}

	if result.FieldsUpdated == 0 {
		return result, nil
	}

	if err := record.SetStoredFields(stored); err != nil {
		return nil, fmt.Errorf("encode profile fields for %s: %w", personID, err)
	}
	record.UpdatedAt = now
	if err := e.profiles.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("update profile %s: %w", personID, err)
	}
	if err := e.audits.AppendBatch(ctx, audits); err != nil {
		return nil, fmt.Errorf("append audit entries for %s: %w", personID, err)
	}

	return result, nil
}

// loadOrCreate makes sure the profile row exists and returns it locked
func (e *Engine) loadOrCreate(ctx context.Context, personID string) (*models.ProfileRecord, bool, error) {
	record, err := e.profiles.GetForUpdate(ctx, personID)
	if err != nil {
		return nil, false, fmt.Errorf("load profile %s: %w", personID, err)
	}
	if record != nil {
		return record, false, nil
	}

	now := e.now().UTC()
	created, err := e.profiles.Create(ctx, &models.ProfileRecord{
		PersonID:  personID,
		Fields:    []byte("{}"),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create profile %s: %w", personID, err)
	}

	record, err = e.profiles.GetForUpdate(ctx, personID)
	if err != nil {
		return nil, false, fmt.Errorf("load profile %s: %w", personID, err)
	}
	if record == nil {
		return nil, false, fmt.Errorf("profile %s missing after create", personID)
	}
	return record, created, nil
}

func (e *Engine) currentField(log ectologger.Logger, stored map[string]models.StoredField, key string) CurrentField {
	sf, ok := stored[key]
	if !ok {
		return CurrentField{}
	}
	value, err := e.encryptor.Decrypt(sf.Value)
	if err != nil {
		log.WithError(err).WithField("field", key).Warn("Could not decrypt stored field, skipping")
		return CurrentField{Exists: true, Unreadable: true}
	}
	return CurrentField{
		Exists: true,
		Value:  models.ProfileFieldValue{Value: value, Source: sf.Source},
	}
}

// GetProfile returns the decrypted profile. Fields that cannot be decrypted
// are left out.
func (e *Engine) GetProfile(ctx context.Context, personID string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.GetProfile")
	defer span.End()

	record, err := e.profiles.Get(ctx, personID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", personID)
	}

	stored, err := record.StoredFields()
	if err != nil {
		return nil, fmt.Errorf("decode profile fields for %s: %w", personID, err)
	}

	log := e.logger.WithContext(ctx).WithField("person_id", personID)
	profile := &models.Profile{
		PersonID:  record.PersonID,
		Fields:    make(map[string]models.ProfileFieldValue, len(stored)),
		Version:   record.Version,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	for key := range stored {
		current := e.currentField(log, stored, key)
		if current.Unreadable {
			continue
		}
		profile.Fields[key] = current.Value
	}
	return profile, nil
}
