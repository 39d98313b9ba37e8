package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"strings"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
)

// DefaultWebPQuality is the standard quality used for lossy WebP encoding.
const DefaultWebPQuality = 80

// DefaultAVIFQuality is the standard quality used for AVIF encoding.
const DefaultAVIFQuality = 60

// DefaultAVIFSpeed is the standard speed used for AVIF encoding.
const DefaultAVIFSpeed = 6

// DefaultJPEGQuality is used when a fixed JPEG quality is requested without one.
const DefaultJPEGQuality = 90

// EncodeJPEG encodes img to JPEG written to w with given quality (1-100).
// Returns the number of bytes written.
func EncodeJPEG(img image.Image, w io.Writer, quality int) (int64, error) {
	if img == nil {
		return 0, errors.New("nil image")
	}
	if w == nil {
		return 0, errors.New("nil writer")
	}
	quality = clampInt(quality, 1, 100)

	c := &countingWriter{w: w}
	if err := jpeg.Encode(c, img, &jpeg.Options{Quality: quality}); err != nil {
		return c.n, err
	}
	return c.n, nil
}

// EncodeWebP encodes img to lossy WebP written to w with given quality (0-100).
// Returns the number of bytes written.
func EncodeWebP(img image.Image, w io.Writer, quality float32) (int64, error) {
	if img == nil {
		return 0, errors.New("nil image")
	}
	if w == nil {
		return 0, errors.New("nil writer")
	}
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}

	c := &countingWriter{w: w}
	if err := webp.Encode(c, img, &webp.Options{Quality: quality}); err != nil {
		return c.n, err
	}
	return c.n, nil
}

// EncodeAVIF encodes img to AVIF written to w with given quality (0-100) and speed (0-10).
// Returns the number of bytes written.
func EncodeAVIF(img image.Image, w io.Writer, quality, speed int) (int64, error) {
	if img == nil {
		return 0, errors.New("nil image")
	}
	if w == nil {
		return 0, errors.New("nil writer")
	}
	quality = clampInt(quality, 0, 100)
	if speed <= 0 {
		speed = DefaultAVIFSpeed
	}
	if speed > 10 {
		speed = 10
	}

	c := &countingWriter{w: w}
	if err := avif.Encode(c, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: speed}); err != nil {
		return c.n, err
	}
	return c.n, nil
}

// EncoderFactory builds an Encoder bound to one resampled bitmap.
type EncoderFactory func(img image.Image, format string) (Encoder, error)

// BitmapEncoder re-encodes a single bitmap at arbitrary qualities.
type BitmapEncoder struct {
	img       image.Image
	format    string
	avifSpeed int
}

// NewBitmapEncoder returns an Encoder for img in the given output format.
func NewBitmapEncoder(img image.Image, format string, avifSpeed int) (*BitmapEncoder, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	format = strings.ToLower(format)
	if format == "" {
		format = FormatJPEG
	}
	if !ValidFormat(format) {
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	return &BitmapEncoder{img: img, format: format, avifSpeed: avifSpeed}, nil
}

// NewEncoderFactory returns an EncoderFactory producing BitmapEncoders.
func NewEncoderFactory(avifSpeed int) EncoderFactory {
	return func(img image.Image, format string) (Encoder, error) {
		return NewBitmapEncoder(img, format, avifSpeed)
	}
}

// EncodeAt maps quality in [0,1] onto the codec's scale and encodes.
func (e *BitmapEncoder) EncodeAt(ctx context.Context, quality float64) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	quality = math.Max(0, math.Min(1, quality))

	var (
		buf bytes.Buffer
		n   int64
		err error
	)
	switch e.format {
	case FormatWebP:
		n, err = EncodeWebP(e.img, &buf, float32(quality*100))
	case FormatAVIF:
		n, err = EncodeAVIF(e.img, &buf, percent(quality), e.avifSpeed)
	default:
		n, err = EncodeJPEG(e.img, &buf, percent(quality))
	}
	if err != nil {
		return Candidate{}, fmt.Errorf("encode %s: %w", e.format, err)
	}
	return Candidate{Quality: quality, Size: n, Payload: buf.Bytes()}, nil
}

// Format returns the output format of the encoder.
func (e *BitmapEncoder) Format() string { return e.format }

func percent(q float64) int {
	return int(math.Round(q * 100))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// countingWriter wraps an io.Writer and counts bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	m, err := c.w.Write(p)
	c.n += int64(m)
	return m, err
}
