package mapping

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/fieldmapping"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Mapper produces canonical fields from a raw payload
type Mapper interface {
	Map(ctx context.Context, payload map[string]any, category models.DocumentCategory) fieldmapping.Mapping
}

// Register registers the mapping routes
func Register(g *echo.Group) {
	g.POST("/mappings", Map)
}

// MapRequest is a raw extraction payload and its document category
type MapRequest struct {
	Category string         `json:"category"`
	Payload  map[string]any `json:"payload"`
}

// Map applies the category alias table to a raw payload
// @Summary Map a raw extraction
// @Description Produce canonical profile fields from a raw extraction payload. Unknown categories use the generic table.
// @Tags Mapping
// @Accept json
// @Produce json
// @Param body body MapRequest true "Raw extraction"
// @Success 200 {object} fieldmapping.Mapping
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/mappings [post]
func Map(c echo.Context) error {
	ctx := c.Request().Context()

	var req MapRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Payload == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "payload is required")
	}

	ctx, mapper, err := ectoinject.GetContext[Mapper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "mapping service not available")
	}

	category := models.ParseDocumentCategory(req.Category)
	return c.JSON(http.StatusOK, mapper.Map(ctx, req.Payload, category))
}
