package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

// YTDLPConfig configures the yt-dlp engine.
type YTDLPConfig struct {
	// ScratchDir holds per-job working directories. It should live on the same
	// filesystem as the download directory so the final move is a rename.
	ScratchDir string
	// FFmpegDir points yt-dlp at ffmpeg/ffprobe when they are not on PATH.
	FFmpegDir string
	// SubtitleLangs is passed to --sub-langs (default "en").
	SubtitleLangs string
	// ProgressInterval throttles progress callbacks (default 500ms).
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// options captures every decision derived from a request.
type options struct {
	Format         string
	MergeFormat    string
	KeepVideo      bool
	ExtractAudio   bool
	AudioQuality   string
	OutputTemplate string
	FFmpegDir      string
	SubtitleLangs  string
}

type runFunc func(ctx context.Context, opts options, interval time.Duration, onProgress func(ytdlp.ProgressUpdate), url string) error

// YTDLP retrieves media with yt-dlp through github.com/lrstanley/go-ytdlp.
type YTDLP struct {
	cfg    YTDLPConfig
	logger *zap.Logger
	run    runFunc
}

// NewYTDLP validates cfg and prepares the scratch directory.
func NewYTDLP(cfg YTDLPConfig) (*YTDLP, error) {
	if strings.TrimSpace(cfg.ScratchDir) == "" {
		return nil, fmt.Errorf("scratch dir is required")
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if cfg.SubtitleLangs == "" {
		cfg.SubtitleLangs = "en"
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &YTDLP{cfg: cfg, logger: logger}
	e.run = e.runCommand
	return e, nil
}

// Install makes sure a yt-dlp binary is available, downloading one into the
// user cache when it is not on PATH.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

func (e *YTDLP) options(req Request, scratch string) options {
	opts := options{
		Format:         "bestaudio",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		FFmpegDir:      e.cfg.FFmpegDir,
		SubtitleLangs:  e.cfg.SubtitleLangs,
	}
	if req.DownloadVideo {
		opts.Format = "bestvideo+bestaudio/best"
		opts.MergeFormat = "mkv"
		opts.KeepVideo = true
	}
	if req.ExtractAudio {
		opts.ExtractAudio = true
		opts.AudioQuality = strconv.Itoa(req.AudioQuality)
	}
	return opts
}

// Retrieve runs yt-dlp in a fresh scratch directory and organizes the output
// into req.OutputDir. The scratch directory is always removed.
func (e *YTDLP) Retrieve(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if req.URL == "" || req.OutputDir == "" {
		return Result{}, errors.New("url and output dir are required")
	}
	scratch, err := os.MkdirTemp(e.cfg.ScratchDir, "job-")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			e.logger.Warn("scratch cleanup failed", zap.String("dir", scratch), zap.Error(rmErr))
		}
	}()

	opts := e.options(req, scratch)
	e.logger.Debug("starting retrieval",
		zap.String("url", req.URL),
		zap.String("format", opts.Format),
		zap.Bool("extract_audio", opts.ExtractAudio))

	onProgress := func(u ytdlp.ProgressUpdate) {
		if progress == nil {
			return
		}
		update, ok := translate(u)
		if ok {
			progress(update)
		}
	}
	if err := e.run(ctx, opts, e.cfg.ProgressInterval, onProgress, req.URL); err != nil {
		return Result{}, err
	}
	return Organize(scratch, req.OutputDir, req.DownloadVideo, req.ExtractAudio)
}

// translate maps a yt-dlp update to an engine Update. Post-processing and
// error updates carry no byte progress and are skipped.
func translate(u ytdlp.ProgressUpdate) (Update, bool) {
	if u.Filename == "" {
		return Update{}, false
	}
	out := Update{
		Filename:        u.Filename,
		DownloadedBytes: int64(u.DownloadedBytes),
		TotalBytes:      int64(u.TotalBytes),
		TotalKnown:      u.TotalBytes > 0,
	}
	switch u.Status {
	case ytdlp.ProgressStatusStarting, ytdlp.ProgressStatusDownloading:
		return out, true
	case ytdlp.ProgressStatusFinished:
		out.Finished = true
		if out.TotalKnown {
			out.DownloadedBytes = out.TotalBytes
		}
		return out, true
	default:
		return Update{}, false
	}
}

func (e *YTDLP) runCommand(
	ctx context.Context,
	opts options,
	interval time.Duration,
	onProgress func(ytdlp.ProgressUpdate),
	url string,
) error {
	cmd := ytdlp.New().
		NoPlaylist().
		Format(opts.Format).
		Output(opts.OutputTemplate).
		WriteInfoJSON().
		WriteSubs().
		WriteAutoSubs().
		SubLangs(opts.SubtitleLangs).
		EmbedSubs().
		ProgressFunc(interval, onProgress)
	if opts.MergeFormat != "" {
		cmd = cmd.MergeOutputFormat(opts.MergeFormat)
	}
	if opts.KeepVideo {
		cmd = cmd.KeepVideo()
	}
	if opts.ExtractAudio {
		cmd = cmd.ExtractAudio().AudioFormat("mp3").AudioQuality(opts.AudioQuality)
	}
	if opts.FFmpegDir != "" {
		cmd = cmd.FFmpegLocation(opts.FFmpegDir)
	}

	result, err := cmd.Run(ctx, url)
	if result != nil && result.Stderr != "" {
		e.logger.Debug("yt-dlp output", zap.String("url", url), zap.String("stderr", result.Stderr))
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("retrieval interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("yt-dlp: %s", summarize(err, result))
	}
	return nil
}

// summarize turns a failed run into a short human-readable message, preferring
// yt-dlp's own "ERROR:" line.
func summarize(err error, result *ytdlp.Result) string {
	if result != nil {
		for _, line := range strings.Split(result.Stderr, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "ERROR:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
			}
		}
	}
	return err.Error()
}
