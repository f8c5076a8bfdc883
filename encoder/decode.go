package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Register decoders with the standard image package.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// MaxPixels caps the decoded raster size to keep a single request's memory bounded.
const MaxPixels = 100_000_000

var (
	ErrUnreadable = errors.New("image is unreadable")
	ErrTooLarge   = errors.New("image dimensions exceed limit")
)

// SourceImage is a decoded raster shared read-only by all variants of a request.
type SourceImage struct {
	Image   image.Image
	Format  string
	ByteLen int
	Width   int
	Height  int
}

// Decode parses data into a SourceImage, applying EXIF orientation.
// Any decoder failure is reported as ErrUnreadable.
func Decode(data []byte) (*SourceImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnreadable)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrUnreadable)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	b := img.Bounds()
	return &SourceImage{
		Image:   img,
		Format:  format,
		ByteLen: len(data),
		Width:   b.Dx(),
		Height:  b.Dy(),
	}, nil
}
