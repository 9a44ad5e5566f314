package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

// TestClassifierInputShape verifies the output is always a 512x512 PNG
// regardless of input dimensions.
func TestClassifierInputShape(t *testing.T) {
	testCases := []struct {
		name string
		w, h int
	}{
		{name: "large landscape", w: 3000, h: 2000},
		{name: "large portrait", w: 768, h: 2048},
		{name: "smaller than resize target", w: 100, h: 50},
		{name: "tiny", w: 3, h: 7},
		{name: "already square", w: 1024, h: 1024},
		{name: "exactly crop sized", w: 512, h: 512},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ClassifierInput(gradientImage(tc.w, tc.h))
			if err != nil {
				t.Fatalf("ClassifierInput: %v", err)
			}
			img, err := png.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not valid PNG: %v", err)
			}
			if b := img.Bounds(); b.Dx() != CropDim || b.Dy() != CropDim {
				t.Errorf("output is %dx%d, want %dx%d", b.Dx(), b.Dy(), CropDim, CropDim)
			}
		})
	}
}

// TestClassifierInputDeterministic verifies identical input yields identical
// output bytes.
func TestClassifierInputDeterministic(t *testing.T) {
	src := gradientImage(640, 480)

	first, err := ClassifierInput(src)
	if err != nil {
		t.Fatalf("ClassifierInput: %v", err)
	}
	second, err := ClassifierInput(src)
	if err != nil {
		t.Fatalf("ClassifierInput: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("output bytes differ across runs")
	}
}

// TestClassifierInputAllBlack verifies an all-black canonical raster crops to
// an all-black 512x512 region.
func TestClassifierInputAllBlack(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1024, 1024))
	for y := 0; y < 1024; y++ {
		for x := 0; x < 1024; x++ {
			src.SetRGBA(x, y, color.RGBA{A: 255})
		}
	}

	out, err := ClassifierInput(src)
	if err != nil {
		t.Fatalf("ClassifierInput: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	for y := 0; y < CropDim; y += 32 {
		for x := 0; x < CropDim; x += 32 {
			r, g, b, _ := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
			if r != 0 || g != 0 || b != 0 {
				t.Fatalf("pixel (%d,%d) not black: %d %d %d", x, y, r, g, b)
			}
		}
	}
}

// TestClassifierInputCropRegion verifies the crop covers rows [0,512) and
// the horizontally centered columns. An input painted white in that exact
// region and black elsewhere must crop to pure white.
func TestClassifierInputCropRegion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, ResizeDim, ResizeDim))
	left := (ResizeDim - CropDim) / 2
	for y := 0; y < ResizeDim; y++ {
		for x := 0; x < ResizeDim; x++ {
			if x >= left && x < left+CropDim && y < CropDim {
				src.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				src.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}

	out, err := ClassifierInput(src)
	if err != nil {
		t.Fatalf("ClassifierInput: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	// Sample away from the borders: the resampling kernel softens edges.
	for _, p := range []image.Point{{16, 16}, {256, 256}, {490, 490}} {
		r, g, b, _ := img.At(img.Bounds().Min.X+p.X, img.Bounds().Min.Y+p.Y).RGBA()
		if r != 0xffff || g != 0xffff || b != 0xffff {
			t.Errorf("pixel %v not white: %d %d %d", p, r, g, b)
		}
	}
}
