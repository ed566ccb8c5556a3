package models

import (
	"encoding/json"
	"time"
)

// FieldSource is the provenance of a stored profile field
type FieldSource struct {
	DocumentID     string    `json:"document_id"`
	ExtractedAt    time.Time `json:"extracted_at"`
	ManuallyEdited bool      `json:"manually_edited"`
	Confidence     *float64  `json:"confidence"`
}

// ProfileFieldValue is a decrypted profile field
type ProfileFieldValue struct {
	Value  any         `json:"value"`
	Source FieldSource `json:"source"`
}

// Profile is the durable per-person record the merge transaction maintains
type Profile struct {
	PersonID  string                       `json:"person_id"`
	Fields    map[string]ProfileFieldValue `json:"fields"`
	Version   int                          `json:"version"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// StoredField is a profile field as persisted: the value is an opaque ciphertext
type StoredField struct {
	Value  string      `json:"value"`
	Source FieldSource `json:"source"`
}

// ProfileRecord is the storage row for a profile
type ProfileRecord struct {
	PersonID  string          `json:"person_id" db:"person_id"`
	Fields    json.RawMessage `json:"fields" db:"fields"`
	Version   int             `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// StoredFields decodes the fields column.
func (r *ProfileRecord) StoredFields() (map[string]StoredField, error) {
	fields := map[string]StoredField{}
	if len(r.Fields) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(r.Fields, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// SetStoredFields encodes fields into the fields column.
func (r *ProfileRecord) SetStoredFields(fields map[string]StoredField) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	r.Fields = b
	return nil
}

// MergeResult is returned by the profile merge transaction
type MergeResult struct {
	FieldsUpdated     int      `json:"fields_updated"`
	SkippedFields     []string `json:"skipped_fields"`
	NewProfileCreated bool     `json:"new_profile_created"`
}

// ProfileField is the aggregate view of one field across a person's documents
type ProfileField struct {
	Key         string    `json:"key"`
	Type        string    `json:"type"`
	Values      []string  `json:"values"`
	Sources     []string  `json:"sources"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"last_updated"`
	HasConflict bool      `json:"has_conflict"`
}
