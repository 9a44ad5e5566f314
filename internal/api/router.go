// Package api wires the HTTP surface: upload-URL issuance, result retrieval
// and the notification webhook.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/api/handler"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/api/middleware"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/events"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/logger"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/repository"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/storage"
)

// RouterDeps holds the dependencies the HTTP surface is wired with.
type RouterDeps struct {
	Store     repository.JobStore
	Objects   storage.ObjectStorage
	Processor events.Processor // nil disables the notification webhook
	Logger    *logger.Logger
	UploadTTL time.Duration
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - deps: handler dependencies.
//   - cfg: server configuration including mode and CORS policy.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(deps *RouterDeps, cfg *config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	uploadHandler := handler.NewUploadHandler(deps.Store, deps.Objects, deps.UploadTTL)
	resultsHandler := handler.NewResultsHandler(deps.Store)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/uploads", uploadHandler.CreateUpload)
		v1.GET("/results", resultsHandler.GetResult)
	}

	// Internal notification webhook for queue-less deployments
	if deps.Processor != nil {
		notifyHandler := handler.NewNotifyHandler(deps.Processor)
		r.POST("/internal/notify", notifyHandler.Notify)
	}

	return r
}
