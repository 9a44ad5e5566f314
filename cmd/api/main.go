package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/api"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/inference"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/logger"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/normalize"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/pipeline"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/repository"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/storage"
)

func main() {
	// Initialize logger first (with env defaults)
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize the job record store
	store, err := repository.NewJobStore(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize job store")
	}

	// Initialize object storage (S3, or MinIO locally)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	ctx := context.Background()
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// The API also carries the notification webhook for queue-less
	// deployments, so it wires the full pipeline.
	orchestrator, err := buildPipeline(cfg, store, objectStorage, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize pipeline")
	}

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Store:     store,
		Objects:   objectStorage,
		Processor: orchestrator,
		Logger:    appLogger,
		UploadTTL: cfg.Pipeline.UploadURLTTL,
	}, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

// buildPipeline wires the orchestrator with the configured inference backends.
func buildPipeline(
	cfg *config.Config,
	store repository.JobStore,
	objects storage.ObjectStorage,
	log *logger.Logger,
) (*pipeline.Orchestrator, error) {
	detector, err := inference.NewRekognitionDetector(&inference.RekognitionConfig{
		Region:        cfg.Detector.Region,
		MaxLabels:     cfg.Detector.MaxLabels,
		MinConfidence: cfg.Detector.MinConfidence,
		Timeout:       cfg.Detector.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var classifier inference.Classifier = inference.BrightnessClassifier{}
	if cfg.Classifier.Backend == "model" {
		classifier = inference.NewModelClassifier(&inference.ModelConfig{
			Endpoint: cfg.Classifier.Endpoint,
			APIKey:   cfg.Classifier.APIKey,
			Timeout:  cfg.Classifier.Timeout,
		}, inference.BrightnessClassifier{})
	}

	return pipeline.New(
		store,
		objects,
		normalize.New(cfg.Normalize.DicomEnabled),
		detector,
		classifier,
		&pipeline.Config{DisplayURLTTL: cfg.Pipeline.DisplayURLTTL},
		log,
	), nil
}
