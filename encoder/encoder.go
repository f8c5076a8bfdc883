package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"imagerelay/logger"
	"imagerelay/models"
)

var ErrEmptyOutput = errors.New("encoder produced no data")

// Output is one encoded variant.
type Output struct {
	Data       []byte
	Quality    int
	Width      int
	Height     int
	Iterations int
}

// Transform resizes src per spec and encodes it as JPEG. src is not modified.
func Transform(src *SourceImage, spec models.VariantSpec) (*Output, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	img := Fit(src.Image, spec.MaxWidth)
	if spec.Sharpen > 0 {
		img = imaging.Sharpen(img, spec.Sharpen)
	}

	b := img.Bounds()
	out := &Output{Width: b.Dx(), Height: b.Dy()}

	var err error
	if spec.Quality.Adaptive() {
		out.Data, out.Quality, out.Iterations, err = SearchQuality(img, spec.Quality)
	} else {
		out.Quality = spec.Quality.Quality
		out.Iterations = 1
		out.Data, err = EncodeJPEG(img, out.Quality)
	}
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", spec.Name, err)
	}

	logger.Debugf("variant %s encoded %dx%d q=%d in %d pass(es): %d bytes",
		spec.Name, out.Width, out.Height, out.Quality, out.Iterations, len(out.Data))
	return out, nil
}

// Fit scales img down to maxWidth preserving aspect ratio. Images already
// within maxWidth are returned unchanged; nothing is ever enlarged.
func Fit(img image.Image, maxWidth int) image.Image {
	if img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

// EncodeJPEG encodes img at quality q.
func EncodeJPEG(img image.Image, q int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("jpeg encode at q=%d: %w", q, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyOutput
	}
	return buf.Bytes(), nil
}

// SearchQuality encodes img at p.Start and steps the quality down by p.Step
// until the output fits p.MaxBytes. Once the next step would fall to or below
// p.Min the last buffer is returned even if it is still oversized, so Min
// itself is never encoded.
func SearchQuality(img image.Image, p models.QualityPolicy) (data []byte, quality, iterations int, err error) {
	quality = p.Start
	for {
		data, err = EncodeJPEG(img, quality)
		iterations++
		if err != nil {
			return nil, quality, iterations, err
		}
		if len(data) <= p.MaxBytes {
			return data, quality, iterations, nil
		}
		next := quality - p.Step
		if p.Step <= 0 || next <= p.Min {
			logger.Debugf("quality floor reached at q=%d with %d bytes (budget %d)", quality, len(data), p.MaxBytes)
			return data, quality, iterations, nil
		}
		quality = next
	}
}
