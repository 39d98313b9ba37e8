package metrics

import (
	"errors"
	"sync/atomic"
	"time"

	"propresize/internal/pipeline"
)

// Recorder counts quality-search activity. It implements pipeline.Observer
// and is safe for concurrent use.
type Recorder struct {
	started time.Time

	searches       atomic.Int64
	succeeded      atomic.Int64
	infeasible     atomic.Int64
	failed         atomic.Int64
	encodeAttempts atomic.Int64
	fittingEncodes atomic.Int64
	bytesProduced  atomic.Int64
	qualityMilli   atomic.Int64 // sum of winning qualities * 1000
}

// New creates a new metrics recorder
func New() *Recorder {
	return &Recorder{started: time.Now().UTC()}
}

// EncodeAttempt records one encode call made by a search.
func (r *Recorder) EncodeAttempt(quality float64, size int64, fits bool) {
	r.encodeAttempts.Add(1)
	if fits {
		r.fittingEncodes.Add(1)
	}
}

// SearchFinished records the outcome of a whole search.
func (r *Recorder) SearchFinished(best pipeline.Candidate, attempts int, err error) {
	r.searches.Add(1)
	switch {
	case err == nil:
		r.succeeded.Add(1)
		r.bytesProduced.Add(best.Size)
		r.qualityMilli.Add(int64(best.Quality * 1000))
	case errors.Is(err, pipeline.ErrCompressionInfeasible):
		r.infeasible.Add(1)
	default:
		r.failed.Add(1)
	}
}

// Stats holds aggregated metrics
type Stats struct {
	Since          time.Time `json:"since"`
	Searches       int64     `json:"searches"`
	Succeeded      int64     `json:"succeeded"`
	Infeasible     int64     `json:"infeasible"`
	Failed         int64     `json:"failed"`
	EncodeAttempts int64     `json:"encode_attempts"`
	FittingEncodes int64     `json:"fitting_encodes"`
	BytesProduced  int64     `json:"bytes_produced"`
	AvgQuality     float64   `json:"avg_quality"`
	AvgAttempts    float64   `json:"avg_attempts"`
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	s := Stats{
		Since:          r.started,
		Searches:       r.searches.Load(),
		Succeeded:      r.succeeded.Load(),
		Infeasible:     r.infeasible.Load(),
		Failed:         r.failed.Load(),
		EncodeAttempts: r.encodeAttempts.Load(),
		FittingEncodes: r.fittingEncodes.Load(),
		BytesProduced:  r.bytesProduced.Load(),
	}
	if s.Succeeded > 0 {
		s.AvgQuality = float64(r.qualityMilli.Load()) / 1000 / float64(s.Succeeded)
	}
	if s.Searches > 0 {
		s.AvgAttempts = float64(s.EncodeAttempts) / float64(s.Searches)
	}
	return s
}

var _ pipeline.Observer = (*Recorder)(nil)
