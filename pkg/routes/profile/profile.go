package profile

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/schema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Processor maps and merges one extraction
type Processor interface {
	Process(ctx context.Context, msg processor.ExtractionMessage) (*models.MergeResult, error)
}

// Reader reads decrypted profiles
type Reader interface {
	GetProfile(ctx context.Context, personID string) (*models.Profile, error)
}

// AuditLister reads a profile's change history
type AuditLister interface {
	ListByProfile(ctx context.Context, profileID string, limit, offset int) ([]models.AuditEntry, error)
}

// Validator checks stored profile values
type Validator interface {
	ValidateProfile(ctx context.Context, personID string) (schema.ValidationResult, error)
}

// Register registers the profile routes
func Register(g *echo.Group) {
	g.POST("/profiles/:personId/merge", Merge)
	g.GET("/profiles/:personId", Get)
	g.GET("/profiles/:personId/audit", ListAudit)
	g.GET("/profiles/:personId/validation", Validate)
}

// MergeRequest carries one document's fields. Either canonical fields or a
// raw payload with its category must be given; fields win when both are.
type MergeRequest struct {
	DocumentID       string             `json:"document_id"`
	Category         string             `json:"category,omitempty"`
	Payload          map[string]any     `json:"payload,omitempty"`
	Fields           map[string]any     `json:"fields,omitempty"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`
}

// AuditResponse is a page of audit entries
type AuditResponse struct {
	Entries []models.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Merge merges a document's fields into the person's profile
// @Summary Merge a document into a profile
// @Description Apply a document's OCR fields to the person's profile under the confidence and manual-edit rules
// @Tags Profiles
// @Accept json
// @Produce json
// @Param personId path string true "Person ID"
// @Param body body MergeRequest true "Document fields"
// @Success 200 {object} models.MergeResult
// @Failure 400 {object} httperror.HTTPError
// @Failure 500 {object} httperror.HTTPError
// @Router /api/v1/profiles/{personId}/merge [post]
func Merge(c echo.Context) error {
	ctx := c.Request().Context()

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Fields) == 0 && len(req.Payload) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "fields or payload is required")
	}

	msg := processor.ExtractionMessage{
		PersonID:         c.Param("personId"),
		DocumentID:       req.DocumentID,
		Category:         req.Category,
		Payload:          req.Payload,
		Fields:           req.Fields,
		FieldConfidences: req.FieldConfidences,
	}
	if err := validate.Struct(msg); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, proc, err := ectoinject.GetContext[Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "merge service not available")
	}

	result, err := proc.Process(ctx, msg)
	if err != nil {
		if httperror.IsHTTPError(err) {
			return err
		}
		if _, logger, lerr := ectoinject.GetContext[ectologger.Logger](ctx); lerr == nil {
			logger.WithContext(ctx).WithError(err).WithField("person_id", msg.PersonID).Error("Failed to merge document")
		}
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge document")
	}

	return c.JSON(http.StatusOK, result)
}

// Get returns the decrypted profile
// @Summary Get a profile
// @Tags Profiles
// @Produce json
// @Param personId path string true "Person ID"
// @Success 200 {object} models.Profile
// @Failure 404 {object} httperror.HTTPError
// @Router /api/v1/profiles/{personId} [get]
func Get(c echo.Context) error {
	ctx, profiles, err := ectoinject.GetContext[Reader](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "profile service not available")
	}

	profile, err := profiles.GetProfile(ctx, c.Param("personId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// ListAudit returns the profile's field history, newest first
// @Summary List profile audit entries
// @Tags Profiles
// @Produce json
// @Param personId path string true "Person ID"
// @Param limit query int false "Page size (default 100, max 1000)"
// @Param offset query int false "Offset"
// @Success 200 {object} AuditResponse
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/profiles/{personId}/audit [get]
func ListAudit(c echo.Context) error {
	var limit, offset int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).Int("offset", &offset).BindError(); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "limit and offset must be integers")
	}

	ctx, audits, err := ectoinject.GetContext[AuditLister](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "audit service not available")
	}

	entries, err := audits.ListByProfile(ctx, c.Param("personId"), limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AuditResponse{Entries: entries, Limit: limit, Offset: offset})
}

// Validate checks the stored profile values against their inferred types
// @Summary Validate a profile
// @Tags Profiles
// @Produce json
// @Param personId path string true "Person ID"
// @Success 200 {object} schema.ValidationResult
// @Failure 404 {object} httperror.HTTPError
// @Router /api/v1/profiles/{personId}/validation [get]
func Validate(c echo.Context) error {
	ctx, service, err := ectoinject.GetContext[Validator](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "validation service not available")
	}

	result, err := service.ValidateProfile(ctx, c.Param("personId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
