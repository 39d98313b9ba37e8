package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"propresize/internal/storage"
)

// DownloadResult streams a stored result as an attachment.
func (h *Handler) DownloadResult(w http.ResponseWriter, r *http.Request) {
	entry, err := h.results.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Result not found or expired.")
		return
	}
	res := entry.Result

	w.Header().Set("Content-Type", res.MIMEType())
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.DownloadName(entry.Name)))
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, "", entry.CreatedAt, bytes.NewReader(res.Payload))
}

// ReleaseResult frees a stored result before its TTL passes.
func (h *Handler) ReleaseResult(w http.ResponseWriter, r *http.Request) {
	if err := h.results.Release(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Result not found or expired.")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to release result.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
