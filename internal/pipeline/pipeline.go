package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Config configures a Resizer. Zero values fall back to the reference
// deployment defaults.
type Config struct {
	Target      TargetSpec
	Budget      int64
	AspectRatio float64
	// AspectTolerance must be positive; zero or less selects
	// DefaultAspectTolerance. Use a tiny value such as 1e-9 for an exact match.
	AspectTolerance float64
	Format          string
	AVIFSpeed       int

	Rasterizer Rasterizer
	Encoders   EncoderFactory
	Observer   Observer
	Logger     zerolog.Logger
}

// Resizer upscales 16:9 bitmaps to the target resolution and encodes them
// under the byte budget. A Resizer holds no per-search state and may be
// shared between goroutines.
type Resizer struct {
	target     TargetSpec
	budget     int64
	ratio      float64
	tolerance  float64
	format     string
	rasterizer Rasterizer
	encoders   EncoderFactory
	observer   Observer
	log        zerolog.Logger
}

// New creates a Resizer from cfg.
func New(cfg Config) *Resizer {
	if cfg.Target.MinWidth <= 0 {
		cfg.Target.MinWidth = DefaultMinWidth
	}
	if cfg.Target.MinHeight <= 0 {
		cfg.Target.MinHeight = DefaultMinHeight
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultSizeBudget
	}
	if cfg.AspectRatio <= 0 {
		cfg.AspectRatio = DefaultAspectRatio
	}
	if cfg.AspectTolerance <= 0 {
		cfg.AspectTolerance = DefaultAspectTolerance
	}
	if cfg.Format == "" {
		cfg.Format = FormatJPEG
	}
	if cfg.Rasterizer == nil {
		cfg.Rasterizer, _ = NewRasterizer("")
	}
	if cfg.Encoders == nil {
		cfg.Encoders = NewEncoderFactory(cfg.AVIFSpeed)
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	return &Resizer{
		target:     cfg.Target,
		budget:     cfg.Budget,
		ratio:      cfg.AspectRatio,
		tolerance:  cfg.AspectTolerance,
		format:     cfg.Format,
		rasterizer: cfg.Rasterizer,
		encoders:   cfg.Encoders,
		observer:   cfg.Observer,
		log:        cfg.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Target returns the configured minimum output resolution.
func (r *Resizer) Target() TargetSpec { return r.target }

// Budget returns the configured byte ceiling.
func (r *Resizer) Budget() int64 { return r.budget }

// ValidateAspect checks width x height against the configured ratio.
func (r *Resizer) ValidateAspect(width, height int) error {
	return ValidateAspect(width, height, r.ratio, r.tolerance)
}

// ResizeToFit upscales src to at least the target resolution and returns the
// highest-quality encoding that fits the budget. origWidth and origHeight
// must be positive, within the aspect tolerance and equal to src's bounds;
// this is checked before any resampling or encoding happens.
func (r *Resizer) ResizeToFit(ctx context.Context, src image.Image, origWidth, origHeight int) (*ResizeResult, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty bitmap", ErrInvalidInput)
	}
	if err := r.ValidateAspect(origWidth, origHeight); err != nil {
		return nil, err
	}
	if b := src.Bounds(); b.Dx() != origWidth || b.Dy() != origHeight {
		return nil, fmt.Errorf("%w: bitmap is %dx%d, caller reported %dx%d",
			ErrInvalidInput, b.Dx(), b.Dy(), origWidth, origHeight)
	}

	width, height := PlanDimensions(origWidth, origHeight, r.target)
	start := time.Now()

	resampled, err := r.rasterizer.Resample(ctx, src, width, height)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrRasterizerFailure, err)
	}
	if b := resampled.Bounds(); b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrRasterizerFailure, b.Dx(), b.Dy(), width, height)
	}

	enc, err := r.encoders(resampled, r.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailure, err)
	}

	best, err := SearchQuality(ctx, enc, r.budget, r.observer)
	if err != nil {
		var inf *InfeasibleError
		if errors.As(err, &inf) {
			r.log.Warn().Int("width", width).Int("height", height).
				Int64("budget", inf.Budget).Int64("smallest", inf.BestSize).
				Msg("no encode fit the budget")
		}
		return nil, err
	}
	if best.Size > r.budget {
		return nil, fmt.Errorf("%w: winner of %d bytes exceeds budget %d", ErrEncodeFailure, best.Size, r.budget)
	}

	r.log.Debug().Int("width", width).Int("height", height).
		Float64("quality", best.Quality).Int64("size", best.Size).
		Dur("took", time.Since(start)).
		Msg("resized")

	return &ResizeResult{
		Source:  SourceImage{Width: origWidth, Height: origHeight},
		Width:   width,
		Height:  height,
		Quality: best.Quality,
		Format:  r.format,
		Size:    best.Size,
		Payload: best.Payload,
	}, nil
}

// Process runs the full pipeline on an uploaded file: validate+decode ->
// exif -> aspect check -> plan -> resample -> quality search.
func (r *Resizer) Process(ctx context.Context, upload io.ReadSeeker, maxBytes int64) (*ResizeResult, error) {
	if upload == nil {
		return nil, fmt.Errorf("%w: no upload", ErrInvalidInput)
	}
	img, ct, n, err := ValidateAndDecode(upload, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("validate decode: %w", err)
	}

	if ct == "image/jpeg" {
		img = ApplyEXIFOrientation(img, upload)
	}

	b := img.Bounds()
	res, err := r.ResizeToFit(ctx, img, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	res.Source.ByteSize = n
	return res, nil
}
