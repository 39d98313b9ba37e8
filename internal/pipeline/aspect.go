package pipeline

import (
	"fmt"
	"math"
)

// ValidateAspect checks that width/height is within tolerance of ratio.
// Callers are expected to run it before handing an image to ResizeToFit,
// which checks it again.
func ValidateAspect(width, height int, ratio, tolerance float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d must be positive", ErrInvalidInput, width, height)
	}
	got := float64(width) / float64(height)
	if math.Abs(got-ratio) > tolerance {
		return fmt.Errorf("%w (got %dx%d, ratio %.4f)", ErrAspectRatio, width, height, got)
	}
	return nil
}
