// Package engine adapts the external media retrieval tool. An Engine fetches
// one URL into a directory and reports per-file progress through a callback.
package engine

import "context"

// Request describes one retrieval.
type Request struct {
	URL           string
	DownloadVideo bool
	ExtractAudio  bool
	// AudioQuality is the MP3 VBR quality, 1 (best) to 5.
	AudioQuality int
	// OutputDir receives the final files. It must not exist yet.
	OutputDir string
}

// Update is one progress callback.
type Update struct {
	// Filename is the tool's path for the file; callers reduce it to a base name.
	Filename        string
	DownloadedBytes int64
	TotalBytes      int64
	TotalKnown      bool
	// Finished is set once the file has been fully transferred.
	Finished bool
}

// ProgressFunc receives updates in the order the tool reports them.
type ProgressFunc func(Update)

// Result names the files placed in Request.OutputDir. File fields are base
// names; empty means not produced.
type Result struct {
	Title     string
	InfoFile  string
	VideoFile string
	AudioFile string
}

// Engine retrieves media.
type Engine interface {
	Retrieve(ctx context.Context, req Request, progress ProgressFunc) (Result, error)
}
