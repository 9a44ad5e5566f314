package inference

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	// brightnessThreshold splits the two classes on mean grayscale intensity.
	brightnessThreshold = 127

	// sampleDim is the downscale applied before averaging, a cheap pass over
	// a fixed number of pixels regardless of input size.
	sampleDim = 64
)

// BrightnessClassifier is the deterministic reference classifier: class 1 if
// the mean grayscale intensity of the crop exceeds the threshold, else 0.
// It establishes the call contract a trained-model backend must honor and
// serves as the fallback when that backend is unavailable.
type BrightnessClassifier struct{}

// Classify decodes the PNG crop and thresholds its mean intensity.
// Parameters:
//   - ctx: unused; present to satisfy the Classifier contract.
//   - pngBytes: 512x512 PNG from the preprocessing chain.
// Returns:
//   - int: class id, 0 or 1.
//   - error: ErrInvalidInput if the bytes are not a decodable PNG.
func (BrightnessClassifier) Classify(_ context.Context, pngBytes []byte) (int, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return 0, fmt.Errorf("%w: not a decodable PNG: %v", ErrInvalidInput, err)
	}

	small := image.NewGray(image.Rect(0, 0, sampleDim, sampleDim))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for y := 0; y < sampleDim; y++ {
		for x := 0; x < sampleDim; x++ {
			sum += int(small.GrayAt(x, y).Y)
		}
	}
	mean := float64(sum) / float64(sampleDim*sampleDim)

	if mean > brightnessThreshold {
		return 1, nil
	}
	return 0, nil
}
