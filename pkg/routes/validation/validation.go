package validation

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/schema"
)

// FieldValidator checks values against the type implied by their key
type FieldValidator interface {
	ValidateFields(ctx context.Context, fields map[string]any) schema.ValidationResult
}

// ValidateRequest represents a validation request
type ValidateRequest struct {
	Fields map[string]any `json:"fields"`
}

// Register registers validation routes
func Register(g *echo.Group) {
	g.POST("/validate", ValidateFields)
}

// ValidateFields validates field values
// @Summary Validate fields
// @Description Report values that do not match the format implied by their key (email, phone, date)
// @Tags Validation
// @Accept json
// @Produce json
// @Param body body ValidateRequest true "Fields"
// @Success 200 {object} schema.ValidationResult
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/validate [post]
func ValidateFields(c echo.Context) error {
	ctx := c.Request().Context()

	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Fields == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "fields is required")
	}

	ctx, service, err := ectoinject.GetContext[FieldValidator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "validation service not available")
	}

	return c.JSON(http.StatusOK, service.ValidateFields(ctx, req.Fields))
}
