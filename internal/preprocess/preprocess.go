// Package preprocess produces the fixed-shape classifier input from a
// canonical raster. The sequence is frozen: any change breaks result parity
// with classifiers trained on its output.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	// ResizeDim is the side of the intermediate stretch-resize.
	ResizeDim = 1024

	// CropDim is the side of the final crop handed to the classifier.
	CropDim = 512
)

// ClassifierInput resizes the canonical raster to 1024x1024 without
// preserving aspect ratio, crops the 512x512 region spanning the top half
// vertically and centered horizontally, and encodes the crop losslessly.
// Pure and deterministic: identical input always yields identical bytes.
// Parameters:
//   - src: canonical raster of arbitrary dimensions.
// Returns:
//   - []byte: 512x512 PNG.
//   - error: non-nil if encoding fails.
func ClassifierInput(src image.Image) ([]byte, error) {
	resized := image.NewRGBA(image.Rect(0, 0, ResizeDim, ResizeDim))
	draw.CatmullRom.Scale(resized, resized.Bounds(), src, src.Bounds(), draw.Src, nil)

	left := (ResizeDim - CropDim) / 2
	crop := resized.SubImage(image.Rect(left, 0, left+CropDim, CropDim))

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, fmt.Errorf("failed to encode classifier input: %w", err)
	}
	return buf.Bytes(), nil
}
