package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoOutput is returned when the tool finished without producing the files
// that were asked for.
var ErrNoOutput = errors.New("retrieval produced no usable output")

type infoDocument struct {
	Title            string `json:"title"`
	RequestedFormats []struct {
		Ext    string `json:"ext"`
		VCodec string `json:"vcodec"`
	} `json:"requested_formats"`
}

// Organize picks the final files out of scratch and moves them into outDir:
// the info JSON (renamed after the title), the MP3 when audio was wanted, and
// the video when video was wanted. Intermediate files stay behind.
func Organize(scratch, outDir string, wantVideo, wantAudio bool) (Result, error) {
	infoPath, err := firstMatch(scratch, "*.json")
	if err != nil {
		return Result{}, fmt.Errorf("find info file: %w", err)
	}
	// #nosec G304 -- infoPath comes from globbing the scratch directory.
	raw, err := os.ReadFile(infoPath)
	if err != nil {
		return Result{}, fmt.Errorf("read info file: %w", err)
	}
	var info infoDocument
	if err := json.Unmarshal(raw, &info); err != nil {
		return Result{}, fmt.Errorf("parse info file: %w", err)
	}
	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(infoPath), ".json"), ".info")
	}

	var audioPath, videoPath string
	// Audio first, so the MP3 is never taken as the video fallback.
	if wantAudio {
		if audioPath, err = firstMatch(scratch, "*.mp3"); err != nil {
			return Result{}, fmt.Errorf("find audio file: %w", err)
		}
	}
	if wantVideo {
		if videoPath, err = pickVideo(scratch, info); err != nil {
			return Result{}, fmt.Errorf("find video file: %w", err)
		}
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create artifact dir: %w", err)
	}
	res := Result{Title: title}
	if res.InfoFile, err = moveInto(infoPath, outDir, SanitizeFilename(title)+".json"); err != nil {
		return Result{}, err
	}
	if audioPath != "" {
		if res.AudioFile, err = moveInto(audioPath, outDir, filepath.Base(audioPath)); err != nil {
			return Result{}, err
		}
	}
	if videoPath != "" {
		if res.VideoFile, err = moveInto(videoPath, outDir, filepath.Base(videoPath)); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// pickVideo prefers the merged .mkv (the shortest name, since per-format
// downloads carry a format suffix) and otherwise the downloaded stream whose
// requested format has a video codec.
func pickVideo(dir string, info infoDocument) (string, error) {
	mkvs, err := filepath.Glob(filepath.Join(dir, "*.mkv"))
	if err != nil {
		return "", err
	}
	if len(mkvs) > 0 {
		sort.SliceStable(mkvs, func(i, j int) bool {
			return len(filepath.Base(mkvs[i])) < len(filepath.Base(mkvs[j]))
		})
		return mkvs[0], nil
	}
	for _, f := range info.RequestedFormats {
		if f.VCodec == "none" || f.Ext == "" {
			continue
		}
		return firstMatch(dir, "*."+f.Ext)
	}
	// Single-file formats ("best") have no requested_formats entry.
	for _, ext := range []string{"mp4", "webm", "mov", "flv"} {
		if path, err := firstMatch(dir, "*."+ext); err == nil {
			return path, nil
		}
	}
	return "", ErrNoOutput
}

func firstMatch(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s in output: %w", pattern, ErrNoOutput)
	}
	sort.Strings(matches)
	return matches[0], nil
}

func moveInto(src, dir, name string) (string, error) {
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}
	return name, nil
}

// SanitizeFilename makes title safe to use as a single path element.
func SanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(strings.TrimSpace(b.String()), ".")
	if out == "" {
		return "untitled"
	}
	return out
}
