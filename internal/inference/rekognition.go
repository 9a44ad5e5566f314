package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
)

// RekognitionConfig holds configuration for the Rekognition-backed detector.
type RekognitionConfig struct {
	Region        string
	MaxLabels     int
	MinConfidence float64
	Timeout       time.Duration
}

// RekognitionDetector implements Detector on the DetectLabels API.
type RekognitionDetector struct {
	client        *rekognition.Client
	maxLabels     int32
	minConfidence float32
	timeout       time.Duration
}

// NewRekognitionDetector creates a detector backed by AWS Rekognition.
// Parameters:
//   - cfg: region, label limits and call timeout.
// Returns:
//   - *RekognitionDetector: initialized detector.
//   - error: non-nil if the AWS configuration cannot be loaded.
func NewRekognitionDetector(cfg *RekognitionConfig) (*RekognitionDetector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	maxLabels := cfg.MaxLabels
	if maxLabels <= 0 {
		maxLabels = 20
	}
	minConfidence := cfg.MinConfidence
	if minConfidence <= 0 {
		minConfidence = 70
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RekognitionDetector{
		client:        rekognition.NewFromConfig(awsCfg),
		maxLabels:     int32(maxLabels),
		minConfidence: float32(minConfidence),
		timeout:       timeout,
	}, nil
}

// DetectLabels analyzes the image bytes and returns the service's labels in
// their returned order, with native float confidences in [0,100].
// Parameters:
//   - ctx: context for cancellation; a call-level timeout is applied on top.
//   - imageBytes: JPEG-encoded canonical raster.
// Returns:
//   - domain.Labels: ordered (name, confidence) pairs, possibly empty.
//   - error: ErrInvalidInput or ErrUnavailable, wrapped with the cause.
func (d *RekognitionDetector) DetectLabels(ctx context.Context, imageBytes []byte) (domain.Labels, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: imageBytes},
		MaxLabels:     aws.Int32(d.maxLabels),
		MinConfidence: aws.Float32(d.minConfidence),
	})
	if err != nil {
		return nil, mapRekognitionError(err)
	}

	labels := make(domain.Labels, 0, len(out.Labels))
	for _, l := range out.Labels {
		labels = append(labels, domain.Label{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		})
	}
	return labels, nil
}

// mapRekognitionError folds service failures into the gateway taxonomy:
// payload-constraint violations name the constraint, everything else is an
// availability failure.
func mapRekognitionError(err error) error {
	var tooLarge *types.ImageTooLargeException
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: image exceeds the service byte limit", ErrInvalidInput)
	}
	var badFormat *types.InvalidImageFormatException
	if errors.As(err, &badFormat) {
		return fmt.Errorf("%w: image format not accepted by the service", ErrInvalidInput)
	}
	var badParam *types.InvalidParameterException
	if errors.As(err, &badParam) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: call timed out", ErrUnavailable)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.ErrorCode())
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
