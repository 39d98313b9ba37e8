package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"propresize/internal/storage"
	"propresize/internal/worker"
)

// multipartOverhead is slack allowed on top of the per-file limit for
// boundaries and headers.
const multipartOverhead = 1 << 20

type ImageInfo struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Size      int64   `json:"size"`
	SizeHuman string  `json:"size_human"`
	Quality   float64 `json:"quality,omitempty"`
	Format    string  `json:"format,omitempty"`
}

type ResizeResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Original    ImageInfo `json:"original"`
	Resized     ImageInfo `json:"resized"`
	Budget      int64     `json:"budget"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Resize accepts a multipart upload with a single "image" field, runs it
// through the pipeline and stores the result for download.
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPerFile+multipartOverhead)

	var cleanup storage.Cleanup
	defer func() {
		if err := cleanup.Execute(); err != nil {
			h.log.Warn().Err(err).Msg("failed to remove temp upload")
		}
	}()

	tmp, name, n, err := h.spool(r, &cleanup)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer tmp.Close()

	res, err := h.pool.Do(ctx, worker.Job{Name: name, Upload: tmp, MaxBytes: h.maxPerFile})
	if err != nil {
		h.fail(w, err)
		return
	}
	res.Source.ByteSize = n

	entry := h.results.Put(name, res)
	writeJSON(w, http.StatusCreated, ResizeResponse{
		ID:   entry.ID,
		Name: name,
		Original: ImageInfo{
			Width:     res.Source.Width,
			Height:    res.Source.Height,
			Size:      n,
			SizeHuman: humanize.IBytes(uint64(n)),
		},
		Resized: ImageInfo{
			Width:     res.Width,
			Height:    res.Height,
			Size:      res.Size,
			SizeHuman: humanize.IBytes(uint64(res.Size)),
			Quality:   res.Quality,
			Format:    res.Format,
		},
		Budget:      h.resizer.Budget(),
		DownloadURL: "/api/results/" + entry.ID,
		ExpiresAt:   entry.ExpiresAt,
	})
}

// spool streams the "image" part to a temp file so the pipeline can seek it.
func (h *Handler) spool(r *http.Request, cleanup *storage.Cleanup) (*os.File, string, int64, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", errNoImagePart, err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", 0, errNoImagePart
		}
		if err != nil {
			return nil, "", 0, readError(err)
		}
		if part.FormName() != "image" {
			part.Close()
			continue
		}
		defer part.Close()

		if !imageContentType(part.Header.Get("Content-Type")) {
			return nil, "", 0, errNotImageType
		}

		if err := storage.EnsureDir(h.tempDir); err != nil {
			return nil, "", 0, fmt.Errorf("temp dir: %w", err)
		}
		tmp, err := os.CreateTemp(h.tempDir, storage.TempPattern)
		if err != nil {
			return nil, "", 0, fmt.Errorf("temp file creation failed: %w", err)
		}
		cleanup.Add(tmp.Name())

		n, err := io.Copy(tmp, io.LimitReader(part, h.maxPerFile+1))
		if err != nil {
			tmp.Close()
			return nil, "", 0, readError(err)
		}
		if n > h.maxPerFile {
			tmp.Close()
			return nil, "", 0, errUploadTooLarge
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			tmp.Close()
			return nil, "", 0, fmt.Errorf("seek failed: %w", err)
		}
		return tmp, part.FileName(), n, nil
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status, msg := friendlyError(err, h.maxPerFile)
	ev := h.log.Info()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).Int("status", status).Msg("resize rejected")
	writeError(w, status, msg)
}

func readError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: %v", errUploadTooLarge, err)
	}
	return fmt.Errorf("%w: %v", errNoImagePart, err)
}

// imageContentType accepts image/* and the generic types clients send when
// they don't know; the decoder sniffs the real format.
func imageContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == "" || ct == "application/octet-stream" || strings.HasPrefix(ct, "image/")
}
