package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	_ "image/gif"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
)

// DetectFormat sniffs the content type of data, recognising AVIF which
// http.DetectContentType does not.
func DetectFormat(data []byte) string {
	if isAVIF(data) {
		return "image/avif"
	}
	return http.DetectContentType(data)
}

// isAVIF reports whether data starts with an ISO-BMFF ftyp box whose major
// brand is avif or avis.
func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}

// ValidateAndDecode reads up to maxBytes from r, checks content type, decodes
// to image.Image and validates dimensions (MaxDimension). It returns the
// decoded image, the detected content type and the number of bytes read.
func ValidateAndDecode(r io.Reader, maxBytes int64) (image.Image, string, int64, error) {
	// read up to maxBytes+1 to detect overflow
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, "", 0, err
	}
	n := int64(len(data))
	if n > maxBytes {
		return nil, "", n, ErrTooLarge
	}
	if n == 0 {
		return nil, "", 0, ErrNotAnImage
	}

	ct := DetectFormat(data)

	// check the header dimensions before allocating the full bitmap
	cfg, err := decodeConfig(ct, data)
	if err != nil {
		if errors.Is(err, ErrNotAnImage) {
			return nil, ct, n, ErrNotAnImage
		}
		return nil, ct, n, fmt.Errorf("%w: decode %s: %v", ErrInvalidInput, ct, err)
	}
	if !validDimensions(cfg.Width, cfg.Height) {
		return nil, ct, n, ErrInvalidDimensions
	}

	var img image.Image
	var decodeErr error

	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		img, decodeErr = jpeg.Decode(bytes.NewReader(data))
	case strings.HasPrefix(ct, "image/png"):
		img, decodeErr = png.Decode(bytes.NewReader(data))
	case strings.HasPrefix(ct, "image/gif"):
		img, _, decodeErr = image.Decode(bytes.NewReader(data))
	case strings.HasPrefix(ct, "image/webp"):
		img, decodeErr = webp.Decode(bytes.NewReader(data))
	case strings.HasPrefix(ct, "image/avif"):
		img, decodeErr = avif.Decode(bytes.NewReader(data))
	}
	if decodeErr != nil {
		return nil, ct, n, fmt.Errorf("%w: decode %s: %v", ErrInvalidInput, ct, decodeErr)
	}

	b := img.Bounds()
	if !validDimensions(b.Dx(), b.Dy()) {
		return nil, ct, n, ErrInvalidDimensions
	}

	return img, ct, n, nil
}

// decodeConfig reads only the image header for content type ct.
func decodeConfig(ct string, data []byte) (image.Config, error) {
	r := bytes.NewReader(data)
	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		return jpeg.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/png"):
		return png.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/gif"):
		cfg, _, err := image.DecodeConfig(r)
		return cfg, err
	case strings.HasPrefix(ct, "image/webp"):
		return webp.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/avif"):
		return avif.DecodeConfig(r)
	default:
		return image.Config{}, ErrNotAnImage
	}
}

func validDimensions(w, h int) bool {
	return w > 0 && h > 0 && w <= MaxDimension && h <= MaxDimension
}
