package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/events"
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
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if cfg.Queue.URL == "" {
		appLogger.Fatal("QUEUE_URL is required for the worker")
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

	// Initialize inference backends
	detector, err := inference.NewRekognitionDetector(&inference.RekognitionConfig{
		Region:        cfg.Detector.Region,
		MaxLabels:     cfg.Detector.MaxLabels,
		MinConfidence: cfg.Detector.MinConfidence,
		Timeout:       cfg.Detector.Timeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize detector")
	}

	var classifier inference.Classifier = inference.BrightnessClassifier{}
	if cfg.Classifier.Backend == "model" {
		classifier = inference.NewModelClassifier(&inference.ModelConfig{
			Endpoint: cfg.Classifier.Endpoint,
			APIKey:   cfg.Classifier.APIKey,
			Timeout:  cfg.Classifier.Timeout,
		}, inference.BrightnessClassifier{})
	}

	orchestrator := pipeline.New(
		store,
		objectStorage,
		normalize.New(cfg.Normalize.DicomEnabled),
		detector,
		classifier,
		&pipeline.Config{DisplayURLTTL: cfg.Pipeline.DisplayURLTTL},
		appLogger,
	)

	// Run the queue consumer until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqsClient, err := events.NewSQSClient(ctx, &cfg.Queue)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize queue client")
	}

	consumer := events.NewConsumer(sqsClient, orchestrator, &cfg.Queue, appLogger)

	appLogger.WithFields(logger.Fields{
		"queue":   cfg.Queue.URL,
		"workers": cfg.Queue.Workers,
	}).Info("Starting worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.WithError(err).Fatal("Consumer stopped unexpectedly")
	}

	appLogger.Info("Worker exited")
}
