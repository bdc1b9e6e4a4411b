// Package imaging turns raw image bytes into the input tensor an embedding model expects.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/owlfacerec/owlface/pkg/models"
)

// DefaultMaxPixels is used when a Decoder is built with a non-positive limit.
const DefaultMaxPixels = 40_000_000

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/webp": true,
}

// Decoder decodes uploaded images. The declared dimensions are read from the header
// first, and an image larger than maxPixels is refused without allocating its pixels.
type Decoder struct {
	maxPixels int64
}

func NewDecoder(maxPixels int) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Decoder{maxPixels: int64(maxPixels)}
}

// Decode sniffs and decodes an encoded image. Unsupported formats, corrupt payloads,
// oversized images and images without any pixels are reported as a DecodeError.
func (d *Decoder) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, models.NewDecodeError("empty image payload", nil)
	}

	mtype := mimetype.Detect(data)
	if !isSupported(mtype) {
		return nil, models.NewDecodeError("unsupported image type "+mtype.String(), nil)
	}

	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewDecodeError("failed to read "+mtype.String()+" header", err)
	}
	if header.Width <= 0 || header.Height <= 0 {
		return nil, models.NewDecodeError("image has no pixels", nil)
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > d.maxPixels {
		return nil, models.NewDecodeError(fmt.Sprintf(
			"image is %dx%d, %s pixels exceeds the limit of %s",
			header.Width,
			header.Height,
			humanize.Comma(pixels),
			humanize.Comma(d.maxPixels),
		), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewDecodeError("failed to decode "+mtype.String(), err)
	}
	if img.Bounds().Empty() {
		return nil, models.NewDecodeError("image has no pixels", nil)
	}

	return img, nil
}

func isSupported(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if supportedTypes[m.String()] {
			return true
		}
	}
	return false
}
