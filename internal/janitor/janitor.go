package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"propresize/internal/storage"
)

// TempFileMaxAge is how old a spooled upload must be before it is treated
// as orphaned.
const TempFileMaxAge = 15 * time.Minute

// Janitor handles periodic cleanup of expired results and orphaned uploads
type Janitor struct {
	results  *storage.Results
	tempDir  string
	interval time.Duration
	log      zerolog.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// Config holds janitor configuration
type Config struct {
	Results  *storage.Results
	TempDir  string
	Interval time.Duration
	Logger   zerolog.Logger
}

// New creates a new Janitor instance
func New(cfg Config) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}

	return &Janitor{
		results:  cfg.Results,
		tempDir:  cfg.TempDir,
		interval: cfg.Interval,
		log:      cfg.Logger.With().Str("component", "janitor").Logger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup scheduler in a goroutine
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// Stop gracefully stops the janitor
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneChan)

	// Run cleanup immediately on startup
	j.RunOnce(time.Now().UTC())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case t := <-ticker.C:
			j.RunOnce(t.UTC())
		case <-j.stopChan:
			j.log.Info().Msg("Janitor: received stop signal, shutting down...")
			return
		case <-ctx.Done():
			j.log.Info().Msg("Janitor: context cancelled, shutting down...")
			return
		}
	}
}

// RunOnce executes all cleanup tasks and returns the number of results and
// temp files removed.
func (j *Janitor) RunOnce(now time.Time) (results, tempFiles int) {
	start := time.Now()

	if j.results != nil {
		results = j.results.Sweep(now)
	}

	n, err := storage.CleanOrphanedTempFiles(j.tempDir, TempFileMaxAge)
	if err != nil {
		j.log.Warn().Err(err).Msg("Janitor: failed to cleanup temp files")
	}
	tempFiles = n

	j.log.Debug().Int("results", results).Int("temp_files", tempFiles).
		Dur("took", time.Since(start)).Msg("Janitor: cleanup cycle completed")
	return results, tempFiles
}
