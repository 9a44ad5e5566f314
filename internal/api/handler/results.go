package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/api/middleware"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/repository"
)

// ResultsHandler serves job records to polling clients.
type ResultsHandler struct {
	store repository.JobStore
}

// NewResultsHandler creates a new results handler.
// Parameters:
//   - store: job record store to read from.
// Returns:
//   - *ResultsHandler: initialized handler.
func NewResultsHandler(store repository.JobStore) *ResultsHandler {
	return &ResultsHandler{store: store}
}

// GetResult handles GET /api/v1/results.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ResultsHandler) GetResult(c *gin.Context) {
	jobID := c.Query("jobId")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'jobId' is required",
		})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to read job record")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read job",
		})
		return
	}

	// The Job JSON tags expose exactly the attribute names clients already
	// consume: status, labels, flag, imageUrl, error.
	c.JSON(http.StatusOK, job)
}
