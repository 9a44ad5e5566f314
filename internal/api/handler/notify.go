package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/api/middleware"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/events"
)

// NotifyHandler accepts object-created notifications over HTTP for
// deployments without a queue (local MinIO webhooks, manual reprocessing).
// Records are processed synchronously in the request.
type NotifyHandler struct {
	processor events.Processor
}

// NewNotifyHandler creates a new notify handler.
// Parameters:
//   - processor: pipeline entry point for each uploaded object.
// Returns:
//   - *NotifyHandler: initialized handler.
func NewNotifyHandler(processor events.Processor) *NotifyHandler {
	return &NotifyHandler{processor: processor}
}

// Notify handles POST /internal/notify.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *NotifyHandler) Notify(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	ev, err := events.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification: " + err.Error(),
		})
		return
	}
	if ev.IsTestEvent() {
		c.JSON(http.StatusOK, gin.H{"processed": 0, "skipped": 0})
		return
	}

	log := middleware.GetLogger(c)
	ctx := c.Request.Context()

	processed := 0
	skipped := 0
	for _, record := range ev.Records {
		key, err := events.DecodeKey(record.S3.Object.Key)
		if err != nil {
			log.WithError(err).Warn("Skipping record with undecodable key")
			skipped++
			continue
		}
		jobID, err := events.JobIDFromKey(key)
		if err != nil {
			log.WithField("key", key).Warn("Skipping record outside upload layout")
			skipped++
			continue
		}
		if err := h.processor.Process(ctx, jobID, key); err != nil {
			log.WithError(err).Error("Processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Processing failed: " + err.Error(),
				"processed": processed,
				"skipped":   skipped,
			})
			return
		}
		processed++
	}

	c.JSON(http.StatusOK, gin.H{
		"processed": processed,
		"skipped":   skipped,
	})
}
