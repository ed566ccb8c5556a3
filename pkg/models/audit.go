package models

import "time"

// AuditAction is derived from the presence of the old and new values
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// AuditSourceOCR marks changes written by the automated merge
const AuditSourceOCR = "ocr"

// AuditEntry is one append-only field change
type AuditEntry struct {
	ID               string      `json:"id" db:"id"`
	ProfileID        string      `json:"profile_id" db:"profile_id"`
	FieldName        string      `json:"field_name" db:"field_name"`
	OldValue         *string     `json:"old_value" db:"old_value"`
	NewValue         *string     `json:"new_value" db:"new_value"`
	Action           AuditAction `json:"action" db:"action"`
	Source           string      `json:"source" db:"source"`
	SourceDocumentID string      `json:"source_document_id" db:"source_document_id"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// DeriveAuditAction returns the action for an old/new pair, or false when the
// pair is not a change.
func DeriveAuditAction(oldValue, newValue *string) (AuditAction, bool) {
	switch {
	case oldValue == nil && newValue == nil:
		return "", false
	case oldValue == nil:
		return AuditActionCreate, true
	case newValue == nil:
		return AuditActionDelete, true
	case *oldValue == *newValue:
		return "", false
	default:
		return AuditActionUpdate, true
	}
}
