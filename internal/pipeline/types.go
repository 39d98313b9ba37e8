package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Error kinds surfaced by the pipeline. Every error returned from
// ResizeToFit or Process matches exactly one of these with errors.Is,
// except context cancellation which is returned unchanged.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrRasterizerFailure     = errors.New("rasterizer failure")
	ErrEncodeFailure         = errors.New("encode failure")
	ErrCompressionInfeasible = errors.New("compression infeasible")
)

var (
	ErrNotAnImage        = fmt.Errorf("%w: uploaded file is not an image", ErrInvalidInput)
	ErrTooLarge          = fmt.Errorf("%w: image exceeds size limit", ErrInvalidInput)
	ErrInvalidDimensions = fmt.Errorf("%w: image dimensions out of range", ErrInvalidInput)
	ErrAspectRatio       = fmt.Errorf("%w: image aspect ratio must be 16:9", ErrInvalidInput)
)

// InfeasibleError reports that no encode attempt fit the byte budget.
type InfeasibleError struct {
	Budget   int64
	BestSize int64 // smallest encoded size observed across all attempts
	Attempts int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("could not compress the image under %d bytes (smallest attempt %d bytes after %d encodes)",
		e.Budget, e.BestSize, e.Attempts)
}

func (e *InfeasibleError) Unwrap() error { return ErrCompressionInfeasible }

// Default maximum dimension (width or height) allowed by validator.
const MaxDimension = 8000

// Reference deployment values.
const (
	DefaultMinWidth        = 2880
	DefaultMinHeight       = 2304
	DefaultSizeBudget      = 5 * 1024 * 1024
	DefaultAspectRatio     = 16.0 / 9.0
	DefaultAspectTolerance = 0.01
)

// Output formats understood by NewBitmapEncoder.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
	FormatAVIF = "avif"
)

// TargetSpec is the minimum acceptable output resolution.
type TargetSpec struct {
	MinWidth  int
	MinHeight int
}

// SourceImage describes the decoded input before resampling.
type SourceImage struct {
	Width    int
	Height   int
	ByteSize int64
}

// Candidate is one encode attempt produced during the quality search.
type Candidate struct {
	Quality float64
	Size    int64
	Payload []byte
}

// ResizeResult is the terminal output handed to the caller.
type ResizeResult struct {
	Source  SourceImage
	Width   int
	Height  int
	Quality float64
	Format  string
	Size    int64
	Payload []byte
}

// MIMEType returns the content type of the encoded payload.
func (r *ResizeResult) MIMEType() string {
	return formatMIME(r.Format)
}

// DownloadName returns "resized-<name>" with the extension swapped for the
// output format.
func (r *ResizeResult) DownloadName(original string) string {
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "image"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return "resized-" + base + "." + formatExt(r.Format)
}

func formatExt(format string) string {
	switch strings.ToLower(format) {
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return "jpg"
	}
}

func formatMIME(format string) string {
	switch strings.ToLower(format) {
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

// ValidFormat reports whether format is a supported output format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatJPEG, FormatWebP, FormatAVIF:
		return true
	}
	return false
}
