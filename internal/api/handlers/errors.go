package handlers

import (
	"context"
	"errors"
	"net/http"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/api/models"
	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"

	"github.com/gin-gonic/gin"
)

type errorClass struct {
	target error
	status int
	code   string
}

// errorClasses maps domain errors to HTTP responses. First match wins.
var errorClasses = []errorClass{
	{model.ErrUnknownBatch, http.StatusBadRequest, "UNKNOWN_BATCH"},
	{estimate.ErrInvalidKeyOrdering, http.StatusBadRequest, "INVALID_KEY_ORDERING"},
	{estimate.ErrUnknownParameter, http.StatusBadRequest, "UNKNOWN_PARAMETER"},
	{estimate.ErrUnorderedData, http.StatusBadRequest, "UNORDERED_DATA"},
	{estimate.ErrLengthMismatch, http.StatusBadRequest, "LENGTH_MISMATCH"},
	{estimate.ErrEmptyData, http.StatusBadRequest, "EMPTY_DATA"},
	{estimate.ErrMissingRunData, http.StatusBadRequest, "MISSING_RUN_DATA"},
	{estimate.ErrInvalidRecord, http.StatusBadRequest, "INVALID_RECORD"},
	{estimate.ErrBoundsLengthMismatch, http.StatusBadRequest, "INVALID_BOUNDS"},
	{estimate.ErrInvalidBoundShape, http.StatusBadRequest, "INVALID_BOUNDS"},
	{estimate.ErrInvalidBoundsType, http.StatusBadRequest, "INVALID_BOUNDS"},
	{estimate.ErrUnsupportedMultiRun, http.StatusBadRequest, "UNSUPPORTED_MULTI_RUN"},
	{analysis.ErrInsufficientSamples, http.StatusBadRequest, "INSUFFICIENT_SAMPLES"},
	{optimizer.ErrUnboundedSearch, http.StatusBadRequest, "UNBOUNDED_SEARCH"},
	{optimizer.ErrInvalidBound, http.StatusBadRequest, "INVALID_BOUNDS"},
	{optimizer.ErrNoDimensions, http.StatusBadRequest, "INVALID_KEYS"},
	{optimizer.ErrUnknownOptimizer, http.StatusBadRequest, "UNKNOWN_OPTIMIZER"},
	{data.ErrEmptyTrace, http.StatusBadRequest, "INVALID_TRACE"},
	{data.ErrRaggedTrace, http.StatusBadRequest, "INVALID_TRACE"},
	{data.ErrUnorderedTrace, http.StatusBadRequest, "INVALID_TRACE"},
	{context.Canceled, http.StatusRequestTimeout, "CANCELLED"},
	{context.DeadlineExceeded, http.StatusRequestTimeout, "CANCELLED"},
}

// classify returns the HTTP status and error code for err.
func classify(err error) (int, string) {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.target) {
			return ec.status, ec.code
		}
	}
	var evalErr *estimate.EvaluationError
	if errors.As(err, &evalErr) {
		return http.StatusUnprocessableEntity, "EVALUATION_FAILED"
	}
	return http.StatusInternalServerError, "ESTIMATION_ERROR"
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	detail := models.ErrorDetail{Code: code, Message: err.Error()}
	var evalErr *estimate.EvaluationError
	if errors.As(err, &evalErr) {
		detail.Details = map[string]interface{}{"stage": evalErr.Stage}
	}
	c.JSON(status, models.ErrorResponse{Error: detail})
}

func badRequest(c *gin.Context, code string, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
