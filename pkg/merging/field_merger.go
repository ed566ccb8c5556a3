package merging

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Outcome is what the merge decided for one incoming field
type Outcome string

const (
	OutcomeWrite          Outcome = "write"
	OutcomeSkipEmpty      Outcome = "empty"
	OutcomeSkipManual     Outcome = "manually_edited"
	OutcomeSkipConfidence Outcome = "lower_confidence"
	OutcomeSkipUnreadable Outcome = "unreadable"
)

// Recorded reports whether the outcome is reported back in skippedFields
func (o Outcome) Recorded() bool {
	switch o {
	case OutcomeSkipManual, OutcomeSkipConfidence, OutcomeSkipUnreadable:
		return true
	}
	return false
}

// FieldDecision is the result of merging one field
type FieldDecision struct {
	Outcome Outcome
	// Value is the field to store when Outcome is OutcomeWrite
	Value models.ProfileFieldValue
	// Changed is true when the stringified value differs from the current one
	Changed bool
	OldValue *string
	NewValue *string
	Action   models.AuditAction
}

// FieldMerger decides, per field, whether an OCR value may replace the stored one
type FieldMerger struct {
	now func() time.Time
}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger(now func() time.Time) *FieldMerger {
	if now == nil {
		now = time.Now
	}
	return &FieldMerger{now: now}
}

// CurrentField is the stored state of a field as seen by the merge
type CurrentField struct {
	Exists bool
	// Unreadable is set when the stored value could not be decrypted
	Unreadable bool
	Value      models.ProfileFieldValue
}

// MergeField applies the manual-edit, empty-value and confidence gates in
// that order. Equal confidence is allowed to overwrite.
func (m *FieldMerger) MergeField(current CurrentField, value any, documentID string, supplied *float64) FieldDecision {
	if current.Unreadable {
		return FieldDecision{Outcome: OutcomeSkipUnreadable}
	}
	if current.Exists && current.Value.Source.ManuallyEdited {
		return FieldDecision{Outcome: OutcomeSkipManual}
	}
	if models.IsEmptyValue(value) {
		return FieldDecision{Outcome: OutcomeSkipEmpty}
	}

	var previous *float64
	if current.Exists {
		previous = current.Value.Source.Confidence
	}
	if previous != nil && supplied != nil && *supplied < *previous {
		return FieldDecision{Outcome: OutcomeSkipConfidence}
	}

	confidence := supplied
	if confidence == nil {
		confidence = previous
	}

	var oldValue *string
	if current.Exists {
		oldValue = models.StringifyValue(current.Value.Value)
	}
	newValue := models.StringifyValue(value)
	action, changed := models.DeriveAuditAction(oldValue, newValue)

	return FieldDecision{
		Outcome: OutcomeWrite,
		Value: models.ProfileFieldValue{
			Value: value,
			Source: models.FieldSource{
				DocumentID:     documentID,
				ExtractedAt:    m.now().UTC(),
				ManuallyEdited: false,
				Confidence:     copyFloat(confidence),
			},
		},
		Changed:  changed,
		OldValue: oldValue,
		NewValue: newValue,
		Action:   action,
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
