package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// decodeDicom reads pixel data from the structured DICOM header and maps it
// onto the 8-bit display range. Single-frame only: series handling is out of
// scope, the first frame is used.
func decodeDicom(data []byte) (*Raster, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dicom: %v", ErrDecode, err)
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%w: dicom has no pixel data", ErrDecode)
	}

	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("%w: dicom pixel data is empty", ErrDecode)
	}

	img, err := frameImage(info.Frames[0])
	if err != nil {
		return nil, fmt.Errorf("%w: decode dicom frame: %v", ErrDecode, err)
	}

	jpegBytes, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	return &Raster{Image: img, JPEG: jpegBytes, Converted: true}, nil
}

// frameImage turns a parsed pixel-data frame into a display image. Native
// frames carry raw sensor intensities and get the min-max rescale; frames in
// a compressed transfer syntax decode through their codec directly.
func frameImage(fr *frame.Frame) (image.Image, error) {
	if fr.Encapsulated {
		return fr.GetImage()
	}
	native, err := fr.GetNativeFrame()
	if err != nil {
		return nil, err
	}
	return rescaleNative(native), nil
}

// rescaleNative maps raw intensities onto [0,255] with a min-max window and
// expands grayscale to three channels. An all-equal frame maps to black.
func rescaleNative(nf *frame.NativeFrame) *image.RGBA {
	if len(nf.Data) == 0 || len(nf.Data[0]) == 0 {
		return image.NewRGBA(image.Rect(0, 0, nf.Cols, nf.Rows))
	}

	lo, hi := nf.Data[0][0], nf.Data[0][0]
	for _, px := range nf.Data {
		for _, v := range px {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	scale := func(v int) uint8 {
		if hi == lo {
			return 0
		}
		return uint8((v - lo) * 255 / (hi - lo))
	}

	img := image.NewRGBA(image.Rect(0, 0, nf.Cols, nf.Rows))
	for i, px := range nf.Data {
		x, y := i%nf.Cols, i/nf.Cols
		var c color.RGBA
		if len(px) >= 3 {
			c = color.RGBA{R: scale(px[0]), G: scale(px[1]), B: scale(px[2]), A: 255}
		} else {
			v := scale(px[0])
			c = color.RGBA{R: v, G: v, B: v, A: 255}
		}
		img.SetRGBA(x, y, c)
	}
	return img
}
