package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"propresize/internal/pipeline"
)

// ErrPoolStopped is returned for jobs submitted to, or still queued in, a
// stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Processor runs one resize. *pipeline.Resizer implements it.
type Processor interface {
	Process(ctx context.Context, upload io.ReadSeeker, maxBytes int64) (*pipeline.ResizeResult, error)
}

// Job is a single uploaded image waiting to be resized.
type Job struct {
	Name     string
	Upload   io.ReadSeeker
	MaxBytes int64
}

// Outcome is the terminal result of a Job: exactly one of Result and Err is set.
type Outcome struct {
	Result *pipeline.ResizeResult
	Err    error
}

type task struct {
	ctx  context.Context
	job  Job
	done chan Outcome
}

// Pool runs resize jobs on a fixed number of goroutines. Each job owns its
// own search; workers share nothing but the Processor.
type Pool struct {
	proc  Processor
	size  int
	tasks chan *task
	quit  chan struct{}
	wg    sync.WaitGroup
	mu    sync.RWMutex
	stop  bool
	once  sync.Once
	log   zerolog.Logger
}

// NewPool creates a pool with size workers and a queue of the same depth.
func NewPool(proc Processor, size int, log zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		proc:  proc,
		size:  size,
		tasks: make(chan *task, size),
		quit:  make(chan struct{}),
		log:   log.With().Str("component", "worker").Logger(),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.size).Msg("Worker: started resize pool")
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case t := <-p.tasks:
					p.run(id, t)
				}
			}
		}(i)
	}
}

// Stop prevents new submissions, waits for running jobs to finish and fails
// anything still queued with ErrPoolStopped.
func (p *Pool) Stop() {
	// close quit before taking the lock so blocked submitters wake up
	p.once.Do(func() { close(p.quit) })
	p.mu.Lock()
	p.stop = true
	p.mu.Unlock()

	p.log.Info().Msg("Worker: waiting for active jobs to finish...")
	p.wg.Wait()
	for {
		select {
		case t := <-p.tasks:
			t.done <- Outcome{Err: ErrPoolStopped}
		default:
			p.log.Info().Msg("Worker: stopped")
			return
		}
	}
}

// Submit queues job and returns a channel that receives exactly one Outcome.
// It blocks while the queue is full, until ctx is done or the pool stops.
func (p *Pool) Submit(ctx context.Context, job Job) (<-chan Outcome, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stop {
		return nil, ErrPoolStopped
	}

	t := &task{ctx: ctx, job: job, done: make(chan Outcome, 1)}
	select {
	case p.tasks <- t:
		return t.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolStopped
	}
}

// Do submits job and waits for its outcome or for ctx to end. An abandoned
// job keeps running to completion and its result is discarded.
func (p *Pool) Do(ctx context.Context, job Job) (*pipeline.ResizeResult, error) {
	done, err := p.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-done:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) run(id int, t *task) {
	if err := t.ctx.Err(); err != nil {
		p.log.Debug().Str("file", t.job.Name).Msg("Worker: skipping abandoned job")
		t.done <- Outcome{Err: err}
		return
	}

	start := time.Now()
	res, err := p.proc.Process(t.ctx, t.job.Upload, t.job.MaxBytes)
	var ev *zerolog.Event
	if err != nil {
		ev = p.log.Warn().Err(err)
	} else {
		ev = p.log.Info().Int("width", res.Width).Int("height", res.Height).
			Float64("quality", res.Quality).Int64("size", res.Size)
	}
	ev.Int("worker", id).Str("file", t.job.Name).Dur("took", time.Since(start)).Msg("Worker: job finished")

	t.done <- Outcome{Result: res, Err: err}
}
