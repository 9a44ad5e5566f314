// Package inference defines the two prediction capabilities the pipeline
// invokes per job and their concrete backends. The gateway performs no
// retries: a single failed call is reported to the orchestrator immediately.
package inference

import (
	"context"
	"errors"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
)

var (
	// ErrUnavailable marks a backend call that failed on transport, capacity
	// or timeout. Non-retryable at this layer.
	ErrUnavailable = errors.New("inference backend unavailable")

	// ErrInvalidInput marks a payload the backend rejected; the message names
	// the violated constraint.
	ErrInvalidInput = errors.New("inference input rejected")
)

// Detector is the label-detection capability, invoked once per job on the
// JPEG-encoded canonical raster. Zero results is a valid outcome.
type Detector interface {
	DetectLabels(ctx context.Context, imageBytes []byte) (domain.Labels, error)
}

// Classifier is the binary-classification capability, invoked once per job
// on the fixed 512x512 PNG crop. Implementations return the class id 0 or 1.
type Classifier interface {
	Classify(ctx context.Context, pngBytes []byte) (int, error)
}
