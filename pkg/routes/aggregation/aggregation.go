package aggregation

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Aggregator folds document contributions into profile fields
type Aggregator interface {
	Aggregate(ctx context.Context, contributions []models.Contribution) map[string]models.ProfileField
}

// Register registers the aggregation routes
func Register(g *echo.Group) {
	g.POST("/aggregations", Aggregate)
}

// AggregateRequest is the request body for an aggregation
type AggregateRequest struct {
	Contributions []models.Contribution `json:"contributions" validate:"dive"`
}

// Aggregate builds the multi-valued field view of a person's documents
// @Summary Aggregate document fields
// @Description Fold raw fields from several documents into one deduplicated view per field
// @Tags Aggregation
// @Accept json
// @Produce json
// @Param body body AggregateRequest true "Contributions in fold order"
// @Success 200 {object} map[string]models.ProfileField
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/aggregations [post]
func Aggregate(c echo.Context) error {
	ctx := c.Request().Context()

	var req AggregateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, aggregator, err := ectoinject.GetContext[Aggregator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "aggregation service not available")
	}

	return c.JSON(http.StatusOK, aggregator.Aggregate(ctx, req.Contributions))
}
