// Package normalize turns arbitrary uploaded bytes into a canonical 8-bit
// raster suitable for label detection and further preprocessing. DICOM
// sources are decoded from their structured header; everything else is
// loaded by its embedded format signature.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode marks input bytes that are unreadable in their declared or
	// detected format. Non-retryable.
	ErrDecode = errors.New("image decode failed")

	// ErrDicomUnavailable marks a DICOM input arriving in an environment
	// where the medical-imaging decode capability is disabled. Kept distinct
	// from ErrDecode so operators can tell "bad file" from "missing capability".
	ErrDicomUnavailable = errors.New("dicom decode capability unavailable")
)

// displayJPEGQuality is the encoding quality of the durable display copy.
const displayJPEGQuality = 95

// Raster is the canonical decoded form of an upload.
type Raster struct {
	// Image is the fully decoded pixel image, independent of source format.
	Image image.Image

	// JPEG is the canonical raster JPEG-encoded for the label detector. For a
	// source that is already JPEG the original bytes pass through unchanged.
	JPEG []byte

	// Converted is true when the source required format conversion and JPEG
	// should be persisted as the durable display copy.
	Converted bool
}

// Normalizer detects the input format and produces the canonical raster.
type Normalizer struct {
	dicomEnabled bool
}

// New creates a Normalizer. The DICOM decode capability is resolved once at
// construction (one Normalizer per process); environments that run without
// it disable the flag in configuration.
// Parameters:
//   - dicomEnabled: whether medical-imaging decode is available.
// Returns:
//   - *Normalizer: initialized normalizer.
func New(dicomEnabled bool) *Normalizer {
	return &Normalizer{dicomEnabled: dicomEnabled}
}

// DicomSupported reports whether medical-imaging decode is available in
// this process.
func (n *Normalizer) DicomSupported() bool {
	return n.dicomEnabled
}

// IsDicom reports whether a file name carries a recognized medical-imaging
// suffix. Detection is by extension only; content sniffing is deliberately
// not performed, so a mislabeled file is treated as generic.
func IsDicom(fileName string) bool {
	lower := strings.ToLower(fileName)
	return strings.HasSuffix(lower, ".dcm") || strings.HasSuffix(lower, ".dicom")
}

// Normalize produces the canonical raster for raw upload bytes.
// Parameters:
//   - data: raw uploaded bytes.
//   - fileName: declared file name used for format detection.
// Returns:
//   - *Raster: canonical raster with its detector encoding.
//   - error: ErrDicomUnavailable or a wrapped ErrDecode on failure.
func (n *Normalizer) Normalize(data []byte, fileName string) (*Raster, error) {
	if IsDicom(fileName) {
		if !n.dicomEnabled {
			return nil, fmt.Errorf("%w: cannot process %s", ErrDicomUnavailable, fileName)
		}
		return decodeDicom(data)
	}
	return decodeGeneric(data)
}

// decodeGeneric loads pixel data via the embedded format signature.
func decodeGeneric(data []byte) (*Raster, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	r := &Raster{Image: img}
	if format == "jpeg" {
		// Byte-level parity: the detector sees exactly what was uploaded.
		r.JPEG = data
		return r, nil
	}

	r.JPEG, err = encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// encodeJPEG renders an image at display quality.
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: displayJPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", ErrDecode, err)
	}
	return buf.Bytes(), nil
}
