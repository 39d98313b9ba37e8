package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/rs/zerolog"

	"propresize/internal/testutil"
)

var smallTarget = TargetSpec{MinWidth: 64, MinHeight: 36}

func gradient(w, h int) *image.RGBA { return testutil.Gradient(w, h) }

func makeJPEG(t *testing.T, w, h int) *bytes.Reader {
	return bytes.NewReader(testutil.JPEG(t, w, h))
}

// countingFactory wraps the real encoder and counts encode calls.
func countingFactory(calls *int) EncoderFactory {
	base := NewEncoderFactory(0)
	return func(img image.Image, format string) (Encoder, error) {
		enc, err := base(img, format)
		if err != nil {
			return nil, err
		}
		return EncoderFunc(func(ctx context.Context, q float64) (Candidate, error) {
			*calls++
			return enc.EncodeAt(ctx, q)
		}), nil
	}
}

func TestResizeToFit_Success(t *testing.T) {
	r := New(Config{Target: smallTarget, Budget: 1 << 20, Logger: zerolog.Nop()})
	res, err := r.ResizeToFit(context.Background(), gradient(32, 18), 32, 18)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}
	if res.Width <= smallTarget.MinWidth || res.Height <= smallTarget.MinHeight {
		t.Fatalf("expected dims above %dx%d, got %dx%d", smallTarget.MinWidth, smallTarget.MinHeight, res.Width, res.Height)
	}
	if res.Quality != MaxQuality {
		t.Fatalf("expected max quality with a generous budget, got %v", res.Quality)
	}
	if res.Size != int64(len(res.Payload)) {
		t.Fatalf("size %d does not match payload %d", res.Size, len(res.Payload))
	}
	out, err := jpeg.Decode(bytes.NewReader(res.Payload))
	if err != nil {
		t.Fatalf("payload is not jpeg: %v", err)
	}
	if out.Bounds().Dx() != res.Width || out.Bounds().Dy() != res.Height {
		t.Fatalf("decoded %v, want %dx%d", out.Bounds(), res.Width, res.Height)
	}
}

func TestResizeToFit_SearchesBelowMaxQuality(t *testing.T) {
	img := gradient(32, 18)
	top := New(Config{Target: smallTarget, Budget: 1 << 20, Logger: zerolog.Nop()})
	full, err := top.ResizeToFit(context.Background(), img, 32, 18)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}

	budget := full.Size - 1
	r := New(Config{Target: smallTarget, Budget: budget, Logger: zerolog.Nop()})
	res, err := r.ResizeToFit(context.Background(), img, 32, 18)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}
	if res.Size > budget {
		t.Fatalf("size %d exceeds budget %d", res.Size, budget)
	}
	if res.Quality >= MaxQuality {
		t.Fatalf("expected quality below max, got %v", res.Quality)
	}
}

func TestResizeToFit_Idempotent(t *testing.T) {
	img := gradient(32, 18)
	r := New(Config{Target: smallTarget, Budget: 2500, Logger: zerolog.Nop()})
	a, errA := r.ResizeToFit(context.Background(), img, 32, 18)
	b, errB := r.ResizeToFit(context.Background(), img, 32, 18)
	if (errA == nil) != (errB == nil) {
		t.Fatalf("outcomes differ: %v vs %v", errA, errB)
	}
	if errA == nil && (a.Size != b.Size || a.Quality != b.Quality) {
		t.Fatalf("expected identical results, got %d@%v and %d@%v", a.Size, a.Quality, b.Size, b.Quality)
	}
}

func TestResizeToFit_InvalidInputBeforeEncode(t *testing.T) {
	calls := 0
	r := New(Config{Target: smallTarget, Encoders: countingFactory(&calls), Logger: zerolog.Nop()})

	cases := []struct {
		name string
		img  image.Image
		w, h int
	}{
		{"zero width", gradient(16, 9), 0, 9},
		{"negative height", gradient(16, 9), 16, -9},
		{"nil bitmap", nil, 16, 9},
		{"empty bitmap", image.NewRGBA(image.Rect(0, 0, 0, 0)), 16, 9},
		{"4:3", gradient(16, 12), 16, 12},
		{"square bitmap reported as 16:9", gradient(40, 40), 16, 9},
		{"bitmap larger than reported", gradient(32, 18), 16, 9},
	}
	for _, c := range cases {
		_, err := r.ResizeToFit(context.Background(), c.img, c.w, c.h)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", c.name, err)
		}
	}
	if calls != 0 {
		t.Fatalf("expected no encode calls, got %d", calls)
	}
}

func TestNew_AspectToleranceDefaults(t *testing.T) {
	r := New(Config{Target: smallTarget, Logger: zerolog.Nop()})
	if err := r.ValidateAspect(1600, 900); err != nil {
		t.Fatalf("exact 16:9 rejected: %v", err)
	}
	// 1.7708 is within the default 0.01 of 16/9
	if err := r.ValidateAspect(1700, 960); err != nil {
		t.Fatalf("expected default tolerance to accept 1700x960: %v", err)
	}

	strict := New(Config{Target: smallTarget, AspectTolerance: 1e-9, Logger: zerolog.Nop()})
	if err := strict.ValidateAspect(1700, 960); !errors.Is(err, ErrAspectRatio) {
		t.Fatalf("expected strict tolerance to reject 1700x960, got %v", err)
	}
	if err := strict.ValidateAspect(1600, 900); err != nil {
		t.Fatalf("strict tolerance rejected exact 16:9: %v", err)
	}
}

func TestResizeToFit_Infeasible(t *testing.T) {
	calls := 0
	r := New(Config{Target: smallTarget, Budget: 10, Encoders: countingFactory(&calls), Logger: zerolog.Nop()})
	_, err := r.ResizeToFit(context.Background(), gradient(32, 18), 32, 18)
	if !errors.Is(err, ErrCompressionInfeasible) {
		t.Fatalf("expected ErrCompressionInfeasible, got %v", err)
	}
	var inf *InfeasibleError
	if !errors.As(err, &inf) || inf.Budget != 10 || inf.BestSize <= 10 {
		t.Fatalf("expected diagnostics with budget 10, got %+v", inf)
	}
	if calls != MaxEncodeCalls {
		t.Fatalf("expected %d encode calls, got %d", MaxEncodeCalls, calls)
	}
}

type brokenRasterizer struct{}

func (brokenRasterizer) Resample(context.Context, image.Image, int, int) (image.Image, error) {
	return nil, errors.New("unsupported pixel format")
}

type shortRasterizer struct{}

func (shortRasterizer) Resample(_ context.Context, _ image.Image, w, h int) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, w-1, h)), nil
}

func TestResizeToFit_RasterizerFailure(t *testing.T) {
	for _, rz := range []Rasterizer{brokenRasterizer{}, shortRasterizer{}} {
		r := New(Config{Target: smallTarget, Rasterizer: rz, Logger: zerolog.Nop()})
		_, err := r.ResizeToFit(context.Background(), gradient(16, 9), 16, 9)
		if !errors.Is(err, ErrRasterizerFailure) {
			t.Fatalf("expected ErrRasterizerFailure, got %v", err)
		}
	}
}

func TestResizeToFit_EncodeFailure(t *testing.T) {
	failing := func(image.Image, string) (Encoder, error) {
		return EncoderFunc(func(context.Context, float64) (Candidate, error) {
			return Candidate{}, errors.New("encoder crashed")
		}), nil
	}
	r := New(Config{Target: smallTarget, Encoders: failing, Logger: zerolog.Nop()})
	_, err := r.ResizeToFit(context.Background(), gradient(16, 9), 16, 9)
	if !errors.Is(err, ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
}

func TestResizeToFit_WebP(t *testing.T) {
	r := New(Config{Target: smallTarget, Format: FormatWebP, Logger: zerolog.Nop()})
	res, err := r.ResizeToFit(context.Background(), gradient(32, 18), 32, 18)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}
	if string(res.Payload[0:4]) != "RIFF" || string(res.Payload[8:12]) != "WEBP" {
		t.Fatalf("payload is not WebP")
	}
	if res.MIMEType() != "image/webp" {
		t.Fatalf("expected image/webp, got %s", res.MIMEType())
	}
}

func TestProcess_JPEG(t *testing.T) {
	r := New(Config{Target: smallTarget, Logger: zerolog.Nop()})
	upload := makeJPEG(t, 48, 27)
	size := upload.Size()
	res, err := r.Process(context.Background(), upload, 10<<20)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Source.Width != 48 || res.Source.Height != 27 || res.Source.ByteSize != size {
		t.Fatalf("unexpected source %+v", res.Source)
	}
	if res.Width <= smallTarget.MinWidth || res.Height <= smallTarget.MinHeight {
		t.Fatalf("unexpected output %dx%d", res.Width, res.Height)
	}
}

func TestProcess_RejectsWrongAspect(t *testing.T) {
	r := New(Config{Target: smallTarget, Logger: zerolog.Nop()})
	_, err := r.Process(context.Background(), makeJPEG(t, 40, 30), 10<<20)
	if !errors.Is(err, ErrAspectRatio) {
		t.Fatalf("expected ErrAspectRatio, got %v", err)
	}
}

func TestProcess_RejectsTooLarge(t *testing.T) {
	r := New(Config{Target: smallTarget, Logger: zerolog.Nop()})
	_, err := r.Process(context.Background(), makeJPEG(t, 48, 27), 16)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestDownloadName(t *testing.T) {
	cases := map[string]string{
		"holiday.png":         "resized-holiday.jpg",
		"dir/holiday.JPG":     "resized-holiday.jpg",
		"":                    "resized-image.jpg",
		"no-extension":        "resized-no-extension.jpg",
		"archive.tar.gz.jpeg": "resized-archive.tar.gz.jpg",
	}
	res := &ResizeResult{Format: FormatJPEG}
	for in, want := range cases {
		if got := res.DownloadName(in); got != want {
			t.Fatalf("DownloadName(%q) = %q, want %q", in, got, want)
		}
	}
	res.Format = FormatAVIF
	if got := res.DownloadName("a.png"); got != "resized-a.avif" {
		t.Fatalf("expected avif extension, got %s", got)
	}
}
