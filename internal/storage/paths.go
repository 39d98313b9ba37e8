package storage

import (
	"path/filepath"

	"propresize/internal/pipeline"
)

// OutputPath returns where the CLI writes a result for the upload called
// name: {dir}/resized-{base}.{ext}.
func OutputPath(dir, name, format string) string {
	res := pipeline.ResizeResult{Format: format}
	return filepath.Join(dir, res.DownloadName(name))
}
