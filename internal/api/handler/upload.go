package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/api/middleware"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/normalize"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/repository"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/storage"
)

// UploadHandler issues presigned upload URLs and creates the pending job
// record the pipeline later completes.
type UploadHandler struct {
	store     repository.JobStore
	objects   storage.ObjectStorage
	uploadTTL time.Duration
}

// NewUploadHandler creates a new upload handler.
// Parameters:
//   - store: job record store receiving the pending record.
//   - objects: object storage issuing the presigned URL.
//   - uploadTTL: lifetime of the issued upload URL.
// Returns:
//   - *UploadHandler: initialized handler.
func NewUploadHandler(store repository.JobStore, objects storage.ObjectStorage, uploadTTL time.Duration) *UploadHandler {
	if uploadTTL <= 0 {
		uploadTTL = time.Hour
	}
	return &UploadHandler{
		store:     store,
		objects:   objects,
		uploadTTL: uploadTTL,
	}
}

// uploadRequest is the client's declaration of what it is about to upload.
type uploadRequest struct {
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType"`
}

// uploadResponse carries the presigned URL and the id the client polls with.
type uploadResponse struct {
	JobID     string `json:"jobId"`
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

// CreateUpload handles POST /api/v1/uploads.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *UploadHandler) CreateUpload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if !validFileName(req.FileName) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid fileName: must be a bare file name without path separators",
		})
		return
	}

	fileType := resolveFileType(req.FileName, req.FileType)
	jobID := uuid.New().String()
	key := storage.UploadKey(jobID, req.FileName)
	ctx := c.Request.Context()

	job := &domain.Job{
		JobID:     jobID,
		Status:    domain.JobStatusPending,
		SourceKey: key,
		FileName:  req.FileName,
		FileType:  fileType,
	}
	if err := h.store.CreatePending(ctx, job); err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to create pending job record")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	uploadURL, err := h.objects.PresignPut(ctx, key, fileType, h.uploadTTL)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to presign upload URL")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to issue upload URL",
		})
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		JobID:     jobID,
		UploadURL: uploadURL,
		Key:       key,
	})
}

// validFileName rejects names that would escape the per-job key prefix.
func validFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}

// resolveFileType corrects the declared content type so the presigned PUT
// matches what the browser sends. Medical-imaging files are frequently
// declared with an empty or generic type.
func resolveFileType(fileName, declared string) string {
	if normalize.IsDicom(fileName) {
		return "application/dicom"
	}
	if declared == "" {
		return "application/octet-stream"
	}
	return declared
}
