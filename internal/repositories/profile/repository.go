package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "profiles"

var columns = []string{"person_id", "fields", "version", "created_at", "updated_at"}

// Repository handles profile persistence. Statements join the transaction
// carried by ctx when there is one.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new profile repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetForUpdate reads the profile and locks its row until the transaction
// ends. It returns nil when the profile does not exist.
func (r *Repository) GetForUpdate(ctx context.Context, personID string) (*models.ProfileRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.GetForUpdate")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("person_id", personID))
	sb.ForUpdate()

	query, args := sb.Build()
	var record models.ProfileRecord
	if err := database.Executor(ctx, r.db).GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Error("Failed to lock profile")
		return nil, fmt.Errorf("lock profile %s: %w", personID, err)
	}

	return &record, nil
}

// Get reads the committed profile
func (r *Repository) Get(ctx context.Context, personID string) (*models.ProfileRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("person_id", personID))

	query, args := sb.Build()
	var record models.ProfileRecord
	if err := database.Executor(ctx, r.db).GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", personID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get profile")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get profile")
	}

	return &record, nil
}

// Create inserts an empty profile row. It reports false when the row already
// existed, which happens when a concurrent merge created it first.
func (r *Repository) Create(ctx context.Context, record *models.ProfileRecord) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	if len(record.Fields) == 0 {
		record.Fields = []byte("{}")
	}
	record.Version = 1

	ib := database.NewInsertBuilder().
		InsertInto(table).
		Cols(columns...).
		Values(record.PersonID, string(record.Fields), record.Version, record.CreatedAt, record.UpdatedAt).
		OnConflictDoNothing()

	query, args := ib.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", record.PersonID).Error("Failed to create profile")
		return false, fmt.Errorf("create profile %s: %w", record.PersonID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		r.logger.WithContext(ctx).WithField("person_id", record.PersonID).Debug("Profile already existed")
		return false, nil
	}

	r.logger.WithContext(ctx).WithField("person_id", record.PersonID).Info("Created profile")
	return true, nil
}

// Update writes the field map and increments the version
func (r *Repository) Update(ctx context.Context, record *models.ProfileRecord) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Update")
	defer span.End()

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("fields", string(record.Fields)),
		ub.Assign("updated_at", record.UpdatedAt),
		ub.Add("version", 1),
	)
	ub.Where(ub.Equal("person_id", record.PersonID))

	query, args := ub.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", record.PersonID).Error("Failed to update profile")
		return fmt.Errorf("update profile %s: %w", record.PersonID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", record.PersonID)
	}

	record.Version++
	return nil
}
