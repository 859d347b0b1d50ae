// Package imaging normalizes uploaded item pictures before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/erazemk/darila/internal/model"
)

// MaxDimension is the maximum width or height for stored images.
const MaxDimension = 1024

// MaxUploadBytes bounds how much of an upload is read.
const MaxUploadBytes = 10 << 20

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

var (
	// ErrUnsupported is returned for anything that is not JPEG, PNG or WebP.
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooLarge is returned when an upload exceeds MaxUploadBytes.
	ErrTooLarge = errors.New("image too large")
)

// allowedMIME lists the accepted input types, detected from content.
var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Process reads an uploaded picture, checks its real type, shrinks it to
// fit MaxDimension and re-encodes it as JPEG.
func Process(r io.Reader) (*model.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}

	// Client headers are not trusted.
	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &model.Image{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// downscale resizes img so neither side exceeds maxDim, keeping the aspect
// ratio. Smaller images are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(1, h*maxDim/w)
	} else {
		newW = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
	image.RegisterFormat("webp", "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}
