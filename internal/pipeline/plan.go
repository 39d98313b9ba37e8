package pipeline

import "math"

// PlanDimensions computes the upscaled output size for an original of
// origWidth x origHeight. Both results end up strictly above the target
// minimums; each axis is rounded up independently so the aspect ratio may
// drift by up to one pixel. Inputs must be positive.
func PlanDimensions(origWidth, origHeight int, target TargetSpec) (int, int) {
	sw := float64(target.MinWidth+1) / float64(origWidth)
	sh := float64(target.MinHeight+1) / float64(origHeight)
	scale := math.Max(sw, sh)

	return int(math.Ceil(float64(origWidth) * scale)), int(math.Ceil(float64(origHeight) * scale))
}
