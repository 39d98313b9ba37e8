package pipeline

import (
	"context"
	"fmt"
)

const (
	// MaxQuality is tried first; nothing higher exists.
	MaxQuality = 1.0
	// FallbackQuality is tried once when no bisection step fit the budget.
	FallbackQuality = 0.5
	// BisectionSteps is the fixed number of halving rounds, giving a
	// quality resolution of 1/1024.
	BisectionSteps = 10
	// MaxEncodeCalls bounds the work of a single search.
	MaxEncodeCalls = 1 + BisectionSteps + 1
)

// Encoder produces an encoding of a fixed bitmap at the given quality in
// [0,1]. It must be deterministic in quality. Implementations may block.
type Encoder interface {
	EncodeAt(ctx context.Context, quality float64) (Candidate, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, quality float64) (Candidate, error)

func (f EncoderFunc) EncodeAt(ctx context.Context, quality float64) (Candidate, error) {
	return f(ctx, quality)
}

// SearchQuality finds the highest quality whose encoding is at most budget
// bytes. It encodes at MaxQuality first and returns that if it fits,
// otherwise bisects [0,1] for BisectionSteps rounds keeping the last
// fitting candidate, and finally tries FallbackQuality once if nothing fit.
// Encode calls are strictly sequential.
func SearchQuality(ctx context.Context, enc Encoder, budget int64, obs Observer) (Candidate, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	s := &search{enc: enc, budget: budget, obs: obs, smallest: -1}

	best, err := s.run(ctx)
	obs.SearchFinished(best, s.calls, err)
	return best, err
}

type search struct {
	enc      Encoder
	budget   int64
	obs      Observer
	calls    int
	smallest int64
}

func (s *search) run(ctx context.Context) (Candidate, error) {
	top, fits, err := s.try(ctx, MaxQuality)
	if err != nil {
		return Candidate{}, err
	}
	if fits {
		return top, nil
	}

	var (
		low, high = 0.0, MaxQuality
		best      Candidate
		found     bool
	)
	for i := 0; i < BisectionSteps; i++ {
		mid := (low + high) / 2
		c, fits, err := s.try(ctx, mid)
		if err != nil {
			return Candidate{}, err
		}
		if fits {
			best, found = c, true
			low = mid
		} else {
			high = mid
		}
	}
	if found {
		return best, nil
	}

	c, fits, err := s.try(ctx, FallbackQuality)
	if err != nil {
		return Candidate{}, err
	}
	if fits {
		return c, nil
	}
	return Candidate{}, &InfeasibleError{Budget: s.budget, BestSize: s.smallest, Attempts: s.calls}
}

// try performs one encode call, dropping the payload of candidates that do
// not fit so that only the winner stays referenced.
func (s *search) try(ctx context.Context, quality float64) (Candidate, bool, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, false, err
	}
	s.calls++
	c, err := s.enc.EncodeAt(ctx, quality)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Candidate{}, false, ctxErr
		}
		return Candidate{}, false, fmt.Errorf("%w at quality %.4f: %w", ErrEncodeFailure, quality, err)
	}
	c.Quality = quality
	if c.Size == 0 && len(c.Payload) > 0 {
		c.Size = int64(len(c.Payload))
	}
	if s.smallest < 0 || c.Size < s.smallest {
		s.smallest = c.Size
	}

	fits := c.Size <= s.budget
	s.obs.EncodeAttempt(quality, c.Size, fits)
	if !fits {
		return Candidate{Quality: quality, Size: c.Size}, false, nil
	}
	return c, true, nil
}
