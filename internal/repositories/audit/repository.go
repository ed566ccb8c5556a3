package audit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	table = "profile_audit_log"

	DefaultLimit = 100
	MaxLimit     = 1000
)

var columns = []string{
	"id", "profile_id", "field_name", "old_value", "new_value",
	"action", "source", "source_document_id", "created_at",
}

// Repository handles the append-only profile audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AppendBatch inserts all entries in a single statement
func (r *Repository) AppendBatch(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "audit.Repository.AppendBatch")
	defer span.End()

	ib := database.NewInsertBuilder().InsertInto(table).Cols(columns...)
	for _, e := range entries {
		ib = ib.Values(e.ID, e.ProfileID, e.FieldName, e.OldValue, e.NewValue,
			string(e.Action), e.Source, e.SourceDocumentID, e.CreatedAt)
	}

	query, args := ib.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"profile_id": entries[0].ProfileID,
			"count":      len(entries),
		}).Error("Failed to append audit entries")
		return fmt.Errorf("append %d audit entries: %w", len(entries), err)
	}

	return nil
}

// ListByProfile returns a profile's history, newest first
func (r *Repository) ListByProfile(ctx context.Context, profileID string, limit, offset int) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListByProfile")
	defer span.End()

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("profile_id", profileID))
	sb.OrderBy("created_at DESC", "field_name ASC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	entries := []models.AuditEntry{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("profile_id", profileID).Error("Failed to list audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}

	return entries, nil
}
