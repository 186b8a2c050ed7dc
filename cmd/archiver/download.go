package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/engine"
)

type engineFactory func(engine.YTDLPConfig) (engine.Engine, error)

func newYTDLP(cfg engine.YTDLPConfig) (engine.Engine, error) {
	return engine.NewYTDLP(cfg)
}

// runDownload handles "archiver download [flags] URL": one retrieval into a
// local directory without starting the service.
func runDownload(ctx context.Context, args []string, stderr io.Writer, logger *zap.Logger, newEngine engineFactory) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working dir: %w", err)
	}
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var d engine.Download
	fs.StringVar(&d.OutputDir, "o", cwd, "Directory to save the resulting files")
	fs.StringVar(&d.OutputDir, "output-dir", cwd, "Directory to save the resulting files")
	fs.BoolVar(&d.NamedSubdir, "named-subdir", false, "Create a subdirectory named after the title")
	fs.BoolVar(&d.SkipVideo, "skip-video", false, "Do not save video files")
	fs.BoolVar(&d.ExtractAudio, "extract-audio", false, "Save audio as an MP3")
	fs.IntVar(&d.AudioQuality, "audio-vbr", 5, "MP3 VBR quality (1 best, 5 smallest)")
	ffmpegDir := fs.String("ffmpeg-dir", "", "Directory containing ffmpeg")
	install := fs.Bool("install", false, "Download yt-dlp when it is not on PATH")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one URL is required")
	}
	d.URL = fs.Arg(0)
	if err := d.Validate(); err != nil {
		return err
	}

	if *install {
		if err := engine.Install(ctx); err != nil {
			return err
		}
	}
	scratch, err := os.MkdirTemp("", "archiver-download-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	eng, err := newEngine(engine.YTDLPConfig{ScratchDir: scratch, FFmpegDir: *ffmpegDir, Logger: logger})
	if err != nil {
		return err
	}
	res, err := engine.Fetch(ctx, eng, d, func(u engine.Update) {
		if u.Finished {
			logger.Info("file downloaded", zap.String("file", u.Filename), zap.Int64("bytes", u.DownloadedBytes))
		}
	})
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("title", res.Title), zap.String("info_file", res.InfoFile)}
	if res.VideoFile != "" {
		fields = append(fields, zap.String("video_file", res.VideoFile))
	}
	if res.AudioFile != "" {
		fields = append(fields, zap.String("audio_file", res.AudioFile))
	}
	logger.Info("download complete", fields...)
	return nil
}
