package inference

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solidPNG(t *testing.T, c color.RGBA, dim int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, dim, dim))
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestBrightnessClassifier(t *testing.T) {
	testCases := []struct {
		name  string
		color color.RGBA
		want  int
	}{
		{name: "all black", color: color.RGBA{A: 255}, want: 0},
		{name: "all white", color: color.RGBA{R: 255, G: 255, B: 255, A: 255}, want: 1},
		{name: "dark gray", color: color.RGBA{R: 60, G: 60, B: 60, A: 255}, want: 0},
		{name: "light gray", color: color.RGBA{R: 200, G: 200, B: 200, A: 255}, want: 1},
	}

	var c BrightnessClassifier
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), solidPNG(t, tc.color, 512))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tc.want {
				t.Errorf("Classify = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBrightnessClassifierInvalidPNG(t *testing.T) {
	var c BrightnessClassifier
	_, err := c.Classify(context.Background(), []byte("not a png"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
}
