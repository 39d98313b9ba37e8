package pipeline

import (
	"context"
	"image"
	"testing"
)

func newRGBA(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestNewRasterizer_Known(t *testing.T) {
	for _, name := range []string{"", "lanczos", "CatmullRom", "linear", "box", "nearest",
		"draw-catmullrom", "draw-bilinear", "draw-approxbilinear"} {
		if _, err := NewRasterizer(name); err != nil {
			t.Fatalf("NewRasterizer(%q): %v", name, err)
		}
	}
}

func TestNewRasterizer_Unknown(t *testing.T) {
	if _, err := NewRasterizer("bicubic-ish"); err == nil {
		t.Fatalf("expected error for unknown filter")
	}
}

func TestRasterizers_Upscale(t *testing.T) {
	for _, name := range []string{"lanczos", "draw-catmullrom"} {
		r, _ := NewRasterizer(name)
		out, err := r.Resample(context.Background(), newRGBA(32, 18), 66, 38)
		if err != nil {
			t.Fatalf("%s: resample: %v", name, err)
		}
		if out.Bounds().Dx() != 66 || out.Bounds().Dy() != 38 {
			t.Fatalf("%s: expected 66x38, got %dx%d", name, out.Bounds().Dx(), out.Bounds().Dy())
		}
	}
}

func TestRasterizers_RejectNonPositive(t *testing.T) {
	for _, name := range []string{"lanczos", "draw-bilinear"} {
		r, _ := NewRasterizer(name)
		if _, err := r.Resample(context.Background(), newRGBA(16, 9), 0, 10); err == nil {
			t.Fatalf("%s: expected error for zero width", name)
		}
		if _, err := r.Resample(context.Background(), newRGBA(16, 9), 10, -1); err == nil {
			t.Fatalf("%s: expected error for negative height", name)
		}
		if _, err := r.Resample(context.Background(), nil, 10, 10); err == nil {
			t.Fatalf("%s: expected error for nil image", name)
		}
	}
}
