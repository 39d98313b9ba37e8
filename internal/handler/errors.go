package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"

	"propresize/internal/pipeline"
	"propresize/internal/worker"
)

var (
	errUploadTooLarge = errors.New("upload too large")
	errNoImagePart    = errors.New("no image part")
	errNotImageType   = errors.New("not an image content type")
)

// friendlyError maps a pipeline or upload error to a status code and a
// message suitable for showing to the person who uploaded the file.
func friendlyError(err error, maxPerFile int64) (int, string) {
	var inf *pipeline.InfeasibleError
	switch {
	case errors.Is(err, errNoImagePart):
		return http.StatusBadRequest, `Missing "image" file field.`
	case errors.Is(err, errNotImageType):
		return http.StatusUnsupportedMediaType, "Please select an image file."
	case errors.Is(err, errUploadTooLarge), errors.Is(err, pipeline.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("File is too large (max %s).", humanize.IBytes(uint64(maxPerFile)))
	case errors.Is(err, pipeline.ErrNotAnImage):
		return http.StatusUnprocessableEntity, "Unsupported file type. Use a JPEG, PNG, WebP, GIF or AVIF image."
	case errors.Is(err, pipeline.ErrInvalidDimensions):
		return http.StatusUnprocessableEntity, fmt.Sprintf("Image dimensions must be between 1 and %d pixels.", pipeline.MaxDimension)
	case errors.Is(err, pipeline.ErrAspectRatio):
		return http.StatusUnprocessableEntity, "Image aspect ratio must be 16:9."
	case errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "We couldn't read this image."
	case errors.As(err, &inf):
		return http.StatusUnprocessableEntity, fmt.Sprintf("Could not compress the image under %s.", humanize.IBytes(uint64(inf.Budget)))
	case errors.Is(err, worker.ErrPoolStopped):
		return http.StatusServiceUnavailable, "The server is shutting down. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Processing took too long."
	case errors.Is(err, pipeline.ErrRasterizerFailure), errors.Is(err, pipeline.ErrEncodeFailure):
		return http.StatusInternalServerError, "Failed to process image."
	default:
		return http.StatusInternalServerError, "Failed to process image."
	}
}
