package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Rasterizer resamples a bitmap to exactly width x height.
type Rasterizer interface {
	Resample(ctx context.Context, img image.Image, width, height int) (image.Image, error)
}

// ImagingRasterizer resamples with a disintegration/imaging filter.
type ImagingRasterizer struct {
	Filter imaging.ResampleFilter
}

func (r ImagingRasterizer) Resample(ctx context.Context, img image.Image, width, height int) (image.Image, error) {
	if err := checkResample(ctx, img, width, height); err != nil {
		return nil, err
	}
	return imaging.Resize(img, width, height, r.Filter), nil
}

// DrawRasterizer resamples with a golang.org/x/image/draw interpolator.
type DrawRasterizer struct {
	Interpolator draw.Interpolator
}

func (r DrawRasterizer) Resample(ctx context.Context, img image.Image, width, height int) (image.Image, error) {
	if err := checkResample(ctx, img, width, height); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	r.Interpolator.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

func checkResample(ctx context.Context, img image.Image, width, height int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("nil image")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("target dimensions %dx%d must be positive", width, height)
	}
	return nil
}

// NewRasterizer returns the rasterizer registered under name. Names without
// a prefix use imaging filters; "draw-" names use x/image/draw.
func NewRasterizer(name string) (Rasterizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lanczos":
		return ImagingRasterizer{Filter: imaging.Lanczos}, nil
	case "catmullrom":
		return ImagingRasterizer{Filter: imaging.CatmullRom}, nil
	case "linear":
		return ImagingRasterizer{Filter: imaging.Linear}, nil
	case "box":
		return ImagingRasterizer{Filter: imaging.Box}, nil
	case "nearest":
		return ImagingRasterizer{Filter: imaging.NearestNeighbor}, nil
	case "draw-catmullrom":
		return DrawRasterizer{Interpolator: draw.CatmullRom}, nil
	case "draw-bilinear":
		return DrawRasterizer{Interpolator: draw.BiLinear}, nil
	case "draw-approxbilinear":
		return DrawRasterizer{Interpolator: draw.ApproxBiLinear}, nil
	default:
		return nil, fmt.Errorf("unknown resample filter %q", name)
	}
}
