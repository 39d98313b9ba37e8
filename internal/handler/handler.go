package handler

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"propresize/internal/metrics"
	"propresize/internal/pipeline"
	"propresize/internal/storage"
	"propresize/internal/worker"
)

// Handler serves the resize API. It is the thin glue between uploads and the
// pipeline; all image work runs on the worker pool.
type Handler struct {
	resizer    *pipeline.Resizer
	pool       *worker.Pool
	results    *storage.Results
	metrics    *metrics.Recorder
	log        zerolog.Logger
	maxPerFile int64
	tempDir    string
}

// Options configures a Handler.
type Options struct {
	Resizer        *pipeline.Resizer
	Pool           *worker.Pool
	Results        *storage.Results
	Metrics        *metrics.Recorder
	Logger         zerolog.Logger
	MaxUploadBytes int64
	TempDir        string
}

func New(opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Handler{
		resizer:    opts.Resizer,
		pool:       opts.Pool,
		results:    opts.Results,
		metrics:    opts.Metrics,
		log:        opts.Logger.With().Str("component", "http").Logger(),
		maxPerFile: opts.MaxUploadBytes,
		tempDir:    opts.TempDir,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
