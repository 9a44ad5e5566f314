// Package pipeline implements the job orchestrator: the state machine that
// sequences normalization, preprocessing, the two inference calls and the
// terminal record write for one uploaded image.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/inference"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/logger"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/normalize"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/preprocess"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/repository"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/storage"
)

// Normalizer produces the canonical raster from raw upload bytes.
// Implemented by *normalize.Normalizer.
type Normalizer interface {
	Normalize(data []byte, fileName string) (*normalize.Raster, error)
}

// Config holds orchestrator tuning.
type Config struct {
	// DisplayURLTTL bounds the lifetime of the presigned display URL
	// generated for converted sources.
	DisplayURLTTL time.Duration
}

// Orchestrator runs the processing stages for one job strictly sequentially
// and owns every failure-to-error-state transition. One instance serves all
// jobs; it holds no per-job state.
type Orchestrator struct {
	store      repository.JobStore
	objects    storage.ObjectStorage
	normalizer Normalizer
	detector   inference.Detector
	classifier inference.Classifier
	urlTTL     time.Duration
	logger     *logger.Logger
}

// stageErr ties a failure to the pipeline stage that produced it. Its
// message is what the retrieval client ultimately sees: stage name and
// cause, no stack traces or internal identifiers.
type stageErr struct {
	stage string
	err   error
}

func (e *stageErr) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e *stageErr) Unwrap() error {
	return e.err
}

// New creates an Orchestrator.
// Parameters:
//   - store: job record store for the terminal transition.
//   - objects: object storage for the upload and the converted copy.
//   - normalizer: format normalizer.
//   - detector: label-detection backend.
//   - classifier: binary-classification backend.
//   - cfg: orchestrator tuning; nil uses defaults.
//   - log: base logger; the context logger is preferred when present.
// Returns:
//   - *Orchestrator: initialized orchestrator.
func New(
	store repository.JobStore,
	objects storage.ObjectStorage,
	normalizer Normalizer,
	detector inference.Detector,
	classifier inference.Classifier,
	cfg *Config,
	log *logger.Logger,
) *Orchestrator {
	urlTTL := time.Hour
	if cfg != nil && cfg.DisplayURLTTL > 0 {
		urlTTL = cfg.DisplayURLTTL
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Orchestrator{
		store:      store,
		objects:    objects,
		normalizer: normalizer,
		detector:   detector,
		classifier: classifier,
		urlTTL:     urlTTL,
		logger:     log,
	}
}

func (o *Orchestrator) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return o.logger
}

// Process runs the full pipeline for one uploaded object and writes exactly
// one terminal transition. A processing failure becomes an error record; a
// failure of the record write itself is returned to the caller so the
// triggering event can be redelivered, leaving the job pending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to process.
//   - sourceKey: object storage key of the uploaded bytes.
// Returns:
//   - error: non-nil only when the terminal record write failed.
func (o *Orchestrator) Process(ctx context.Context, jobID, sourceKey string) error {
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetSourceKey(ctx, sourceKey)
	start := time.Now()

	result, procErr := o.run(ctx, jobID, sourceKey)
	if procErr != nil {
		o.log(ctx).WithError(procErr).Warnf("Job failed: %s", procErr)
		if err := o.store.MarkError(ctx, jobID, procErr.Error()); err != nil {
			// Deliberately not retried and not converted into another record
			// write: the job stays pending and recovers via event redelivery.
			o.log(ctx).WithError(err).Error("Failed to write error record, job left pending")
			return fmt.Errorf("failed to record job error: %w", err)
		}
		return nil
	}

	if err := o.store.MarkComplete(ctx, jobID, result); err != nil {
		o.log(ctx).WithError(err).Error("Failed to write result record, job left pending")
		return fmt.Errorf("failed to record job result: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      len(result.Labels),
	}).Info(ctx, "Job completed: classFlag=%d, converted=%v", result.ClassFlag, result.ConvertedKey != "")
	return nil
}

// run executes the stages in dependency order and merges the inference
// outputs. The detector and the preprocessing/classifier leg are isolated
// from each other: a detector failure does not stop classification, but the
// earlier failure in dependency order is the one reported.
func (o *Orchestrator) run(ctx context.Context, jobID, sourceKey string) (*domain.JobResult, *stageErr) {
	data, err := o.fetch(ctx, sourceKey)
	if err != nil {
		return nil, &stageErr{stage: "fetch", err: err}
	}

	fileName := fileNameFromKey(sourceKey)
	raster, err := o.normalizer.Normalize(data, fileName)
	if err != nil {
		return nil, &stageErr{stage: "normalize", err: err}
	}

	result := &domain.JobResult{}

	if raster.Converted {
		key, url, err := o.storeConverted(ctx, jobID, raster.JPEG)
		if err != nil {
			return nil, &stageErr{stage: "store converted copy", err: err}
		}
		result.ConvertedKey = key
		result.DisplayURL = url
	}

	// Detector and classifier legs are attempted independently.
	labels, detectErr := o.detector.DetectLabels(logger.SetStage(ctx, "detect"), raster.JPEG)

	var classifyErr *stageErr
	pngBytes, err := preprocess.ClassifierInput(raster.Image)
	if err != nil {
		classifyErr = &stageErr{stage: "preprocess", err: err}
	} else {
		flag, err := o.classifier.Classify(logger.SetStage(ctx, "classify"), pngBytes)
		if err != nil {
			classifyErr = &stageErr{stage: "classify", err: err}
		} else {
			result.ClassFlag = flag
		}
	}

	// Both inference outputs are required for a complete record; the first
	// failure in dependency order wins.
	if detectErr != nil {
		return nil, &stageErr{stage: "detect", err: detectErr}
	}
	if classifyErr != nil {
		return nil, classifyErr
	}

	result.Labels = labels
	return result, nil
}

// fetch downloads the uploaded object.
func (o *Orchestrator) fetch(ctx context.Context, sourceKey string) ([]byte, error) {
	body, err := o.objects.Download(logger.SetStage(ctx, "fetch"), sourceKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

// storeConverted persists the display copy and presigns its retrieval URL.
func (o *Orchestrator) storeConverted(ctx context.Context, jobID string, jpegBytes []byte) (string, string, error) {
	ctx = logger.SetStage(ctx, "store converted copy")
	key := storage.ConvertedKey(jobID)

	err := o.objects.Upload(ctx, key, bytes.NewReader(jpegBytes), int64(len(jpegBytes)), "image/jpeg")
	if err != nil {
		return "", "", err
	}

	url, err := o.objects.PresignGet(ctx, key, o.urlTTL)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// fileNameFromKey extracts the declared file name from an upload key of the
// form uploads/{jobId}/{fileName}.
func fileNameFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}
