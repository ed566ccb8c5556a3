package grouping

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Grouper partitions documents into person groups
type Grouper interface {
	GroupDocuments(ctx context.Context, docs []models.DocumentExtraction) models.GroupingResult
	GroupBatches(ctx context.Context, batches [][]models.DocumentExtraction) ([]models.GroupingResult, error)
}

// Projector writes grouping results into the graph
type Projector interface {
	Project(ctx context.Context, result models.GroupingResult, documents []models.DocumentExtraction) error
	DocumentsOf(ctx context.Context, personID string) ([]string, error)
}

// Emitter announces grouping runs
type Emitter interface {
	EmitDocumentsGrouped(ctx context.Context, result models.GroupingResult) error
}

// Register registers the grouping routes. Projector and Emitter are optional
// services; without a Projector the projection endpoints answer 503.
func Register(g *echo.Group) {
	g.POST("/groupings", GroupDocuments)
	g.POST("/groupings/batches", GroupBatches)
	g.GET("/groupings/persons/:personId/documents", PersonDocuments)
}

// GroupRequest is the request body for a grouping run
type GroupRequest struct {
	Documents []models.DocumentExtraction `json:"documents" validate:"dive"`
}

// BatchRequest is the request body for grouping independent batches
type BatchRequest struct {
	Batches [][]models.DocumentExtraction `json:"batches" validate:"dive,dive"`
}

// PersonDocumentsResponse lists the documents projected onto a person
type PersonDocumentsResponse struct {
	PersonID    string   `json:"person_id"`
	DocumentIDs []string `json:"document_ids"`
}

// GroupDocuments groups one set of documents
// @Summary Group documents by person
// @Description Cluster document extractions into person groups and suggest merges between groups
// @Tags Grouping
// @Accept json
// @Produce json
// @Param body body GroupRequest true "Documents"
// @Param project query bool false "Write the result into the graph"
// @Success 200 {object} models.GroupingResult
// @Failure 400 {object} httperror.HTTPError
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/groupings [post]
func GroupDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	var req GroupRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, grouper, err := ectoinject.GetContext[Grouper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "grouping service not available")
	}
	ctx, logger, err := ectoinject.GetContext[ectologger.Logger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "logger not available")
	}

	project := c.QueryParam("project") == "true"
	var projector Projector
	if project {
		if ctx, projector, err = ectoinject.GetContext[Projector](ctx); err != nil || projector == nil {
			return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph projection is disabled")
		}
	}

	result := grouper.GroupDocuments(ctx, req.Documents)

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"document_ids": ectolinq.Map(req.Documents, func(d models.DocumentExtraction) string { return d.DocumentID }),
		"groups":       len(result.Groups),
	})

	if project {
		if err := projector.Project(ctx, result, req.Documents); err != nil {
			log.WithError(err).Error("Failed to project grouping result")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to project grouping result")
		}
	}

	if _, emitter, err := ectoinject.GetContext[Emitter](ctx); err == nil && emitter != nil {
		if err := emitter.EmitDocumentsGrouped(ctx, result); err != nil {
			log.WithError(err).Warn("Could not emit documents.grouped event")
		}
	}

	return c.JSON(http.StatusOK, result)
}

// GroupBatches groups independent batches concurrently
// @Summary Group document batches
// @Description Group several independent document sets; results keep batch order
// @Tags Grouping
// @Accept json
// @Produce json
// @Param body body BatchRequest true "Batches"
// @Success 200 {array} models.GroupingResult
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/groupings/batches [post]
func GroupBatches(c echo.Context) error {
	ctx := c.Request().Context()

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, grouper, err := ectoinject.GetContext[Grouper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "grouping service not available")
	}

	results, err := grouper.GroupBatches(ctx, req.Batches)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, results)
}

// PersonDocuments lists the documents linked to a projected person
// @Summary Documents of a projected person
// @Tags Grouping
// @Produce json
// @Param personId path string true "Person group ID"
// @Success 200 {object} PersonDocumentsResponse
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/groupings/persons/{personId}/documents [get]
func PersonDocuments(c echo.Context) error {
	ctx, projector, err := ectoinject.GetContext[Projector](c.Request().Context())
	if err != nil || projector == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph projection is disabled")
	}

	personID := c.Param("personId")
	ids, err := projector.DocumentsOf(ctx, personID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, PersonDocumentsResponse{PersonID: personID, DocumentIDs: ids})
}
