package events

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeProfileMerged    EventType = "profile.merged"
	EventTypeDocumentsGrouped EventType = "documents.grouped"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ProfileMergedEvent is emitted after a merge changed a profile
type ProfileMergedEvent struct {
	BaseEvent
	PersonID          string   `json:"person_id"`
	DocumentID        string   `json:"document_id"`
	FieldsUpdated     int      `json:"fields_updated"`
	SkippedFields     []string `json:"skipped_fields"`
	NewProfileCreated bool     `json:"new_profile_created"`
}

// DocumentsGroupedEvent is emitted after a grouping run
type DocumentsGroupedEvent struct {
	BaseEvent
	Groups          []models.PersonGroup    `json:"groups"`
	SuggestedMerges []models.SuggestedMerge `json:"suggested_merges"`
	TotalDocuments  int                     `json:"total_documents"`
	// Partition fingerprints the document sets of the groups, ignoring group ids
	Partition string `json:"partition"`
}
