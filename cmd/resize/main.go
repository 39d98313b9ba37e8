package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"propresize/internal/config"
	"propresize/internal/logging"
	"propresize/internal/pipeline"
	"propresize/internal/storage"
)

func main() {
	cfg := config.Load()

	var (
		outFlag    string
		formatFlag string
		filterFlag string
	)
	flag.StringVar(&outFlag, "out", ".", "directory to write resized images to")
	flag.StringVar(&formatFlag, "format", cfg.OutputFormat, "output format (jpeg, webp, avif)")
	flag.StringVar(&filterFlag, "filter", cfg.ResampleFilter, "resample filter")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-out dir] [-format jpeg|webp|avif] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cfg.OutputFormat = strings.ToLower(formatFlag)
	if err := cfg.Validate(); err != nil {
		exitWithError(err)
	}

	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	rasterizer, err := pipeline.NewRasterizer(filterFlag)
	if err != nil {
		exitWithError(err)
	}
	resizer := pipeline.New(pipeline.Config{
		Target:          pipeline.TargetSpec{MinWidth: cfg.MinWidth, MinHeight: cfg.MinHeight},
		Budget:          cfg.SizeBudgetBytes,
		AspectTolerance: cfg.AspectTolerance,
		Format:          cfg.OutputFormat,
		AVIFSpeed:       cfg.AVIFSpeed,
		Rasterizer:      rasterizer,
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, path := range flag.Args() {
		if err := resizeFile(ctx, resizer, path, outFlag, cfg.MaxUploadBytes); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			if errors.Is(err, context.Canceled) {
				break
			}
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func resizeFile(ctx context.Context, r *pipeline.Resizer, path, outDir string, maxBytes int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := r.Process(ctx, f, maxBytes)
	if err != nil {
		return err
	}

	dst := storage.OutputPath(outDir, path, res.Format)
	if err := storage.AtomicWrite(dst, bytes.NewReader(res.Payload), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	fmt.Printf("%s: %dx%d (%s) -> %dx%d %s at quality %.0f%% (%s of %s budget)\n",
		dst,
		res.Source.Width, res.Source.Height, humanize.IBytes(uint64(res.Source.ByteSize)),
		res.Width, res.Height, res.Format, res.Quality*100,
		humanize.IBytes(uint64(res.Size)), humanize.IBytes(uint64(r.Budget())))
	return nil
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
