package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNothingRequested rejects a download that keeps neither video nor audio.
var ErrNothingRequested = errors.New("must extract at least video or audio")

// Download is a single retrieval run outside the service.
type Download struct {
	URL       string
	OutputDir string
	// NamedSubdir places the files in a subdirectory named after the title.
	NamedSubdir  bool
	SkipVideo    bool
	ExtractAudio bool
	AudioQuality int
}

// Validate checks the flags before any work starts.
func (d Download) Validate() error {
	if d.URL == "" {
		return errors.New("url is required")
	}
	if d.SkipVideo && !d.ExtractAudio {
		return ErrNothingRequested
	}
	if d.ExtractAudio && (d.AudioQuality < 1 || d.AudioQuality > 5) {
		return fmt.Errorf("audio quality %d out of range 1-5", d.AudioQuality)
	}
	return nil
}

// Fetch retrieves d with eng into an existing OutputDir. Unlike a service
// retrieval the target may already hold other files, so the engine writes to
// a staging directory inside it and the results are moved up afterwards.
// File fields of the returned Result are full paths.
func Fetch(ctx context.Context, eng Engine, d Download, progress ProgressFunc) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, err
	}
	info, err := os.Stat(d.OutputDir)
	if err != nil {
		return Result{}, fmt.Errorf("output dir: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("output dir %s is not a directory", d.OutputDir)
	}

	staging, err := os.MkdirTemp(d.OutputDir, ".download-")
	if err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	stage := filepath.Join(staging, "out")
	res, err := eng.Retrieve(ctx, Request{
		URL:           d.URL,
		DownloadVideo: !d.SkipVideo,
		ExtractAudio:  d.ExtractAudio,
		AudioQuality:  d.AudioQuality,
		OutputDir:     stage,
	}, progress)
	if err != nil {
		return Result{}, err
	}

	final := d.OutputDir
	if d.NamedSubdir {
		final = filepath.Join(d.OutputDir, SanitizeFilename(res.Title))
		if err := os.MkdirAll(final, 0o750); err != nil {
			return Result{}, fmt.Errorf("create title dir: %w", err)
		}
	}
	for _, name := range []*string{&res.InfoFile, &res.VideoFile, &res.AudioFile} {
		if *name == "" {
			continue
		}
		dst := filepath.Join(final, *name)
		if err := os.Rename(filepath.Join(stage, *name), dst); err != nil {
			return Result{}, fmt.Errorf("move %s: %w", *name, err)
		}
		*name = dst
	}
	return res, nil
}
