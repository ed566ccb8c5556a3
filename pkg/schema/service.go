package schema

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ProfileGetter fetches a decrypted profile
type ProfileGetter interface {
	GetProfile(ctx context.Context, personID string) (*models.Profile, error)
}

// ValidationService validates stored profiles
type ValidationService struct {
	profiles  ProfileGetter
	validator *Validator
	logger    ectologger.Logger
}

// NewValidationService creates a new validation service
func NewValidationService(profiles ProfileGetter, logger ectologger.Logger) *ValidationService {
	return &ValidationService{
		profiles:  profiles,
		validator: NewValidator(),
		logger:    logger,
	}
}

// ValidateFields checks every value against the type inferred from its key
func (s *ValidationService) ValidateFields(ctx context.Context, fields map[string]any) ValidationResult {
	_, span := tracing.StartSpan(ctx, "schema.ValidationService.ValidateFields")
	defer span.End()

	return s.validator.Validate(fields)
}

// ValidateProfile validates the current values of a person's profile
func (s *ValidationService) ValidateProfile(ctx context.Context, personID string) (ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.ValidationService.ValidateProfile")
	defer span.End()

	profile, err := s.profiles.GetProfile(ctx, personID)
	if err != nil {
		return ValidationResult{}, err
	}

	fields := make(map[string]any, len(profile.Fields))
	for k, f := range profile.Fields {
		fields[k] = f.Value
	}

	result := s.validator.Validate(fields)
	if !result.Valid {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"person_id": personID,
			"errors":    len(result.Errors),
		}).Info("Profile has fields that fail validation")
	}

	return result, nil
}
