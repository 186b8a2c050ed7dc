package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// trashDir holds removed artifacts until they are purged. The leading dot
// keeps it out of Scan and the file server.
const trashDir = ".trash"

// Library owns the download directory: one subdirectory per artifact key.
type Library struct {
	root   string
	prefix string
	logger *zap.Logger

	purges sync.WaitGroup
}

// NewLibrary validates root and returns a Library that publishes links under
// prefix (for example "/downloads").
func NewLibrary(root, prefix string, logger *zap.Logger) (*Library, error) {
	if err := ensureWritableDir(root); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = "/" + strings.Trim(prefix, "/")
	l := &Library{root: abs, prefix: prefix, logger: logger}
	// Leftovers from a previous run that stopped mid-purge.
	if _, err := os.Stat(l.trash()); err == nil {
		l.purge(l.trash())
	}
	return l, nil
}

func (l *Library) trash() string {
	return filepath.Join(l.root, trashDir)
}

// Root is the absolute download directory.
func (l *Library) Root() string { return l.root }

// Dir returns the on-disk directory for key.
func (l *Library) Dir(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return within(l.root, key)
}

// Link returns the user-facing path for a file inside the artifact. An empty
// name links the artifact directory itself.
func (l *Library) Link(key, name string) string {
	if name == "" {
		return path.Join(l.prefix, key)
	}
	return path.Join(l.prefix, key, name)
}

// Remove detaches the artifact directory for key and deletes its contents in
// the background, so callers never wait on a large recursive delete. A
// missing directory is not an error; the registry is the authority on
// whether key exists.
func (l *Library) Remove(key string) error {
	dir, err := l.Dir(key)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(l.trash(), 0o750); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}
	detached := filepath.Join(l.trash(), fmt.Sprintf("%s-%d", key, time.Now().UnixNano()))
	if err := os.Rename(dir, detached); err != nil {
		l.logger.Warn("detach failed, removing in place", zap.String("key", key), zap.Error(err))
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove artifact %s: %w", key, err)
		}
		return nil
	}
	l.purge(detached)
	return nil
}

func (l *Library) purge(path string) {
	l.purges.Add(1)
	go func() {
		defer l.purges.Done()
		if err := os.RemoveAll(path); err != nil {
			l.logger.Warn("purge failed", zap.String("path", path), zap.Error(err))
		}
	}()
}

// Wait blocks until background purges finish or ctx ends.
func (l *Library) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.purges.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for purges: %w", ctx.Err())
	}
}

// Scan rebuilds artifact records from the download directory. Each visible
// subdirectory holding a .json info file is one artifact.
func (l *Library) Scan() ([]archive.ArtifactRecord, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read download dir: %w", err)
	}
	records := make([]archive.ArtifactRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rec, ok, err := l.scanOne(entry)
		if err != nil {
			l.logger.Warn("skipping unreadable artifact", zap.String("key", entry.Name()), zap.Error(err))
			continue
		}
		if ok {
			records = append(records, rec)
		}
	}
	archive.SortArtifacts(records)
	return records, nil
}

func (l *Library) scanOne(entry os.DirEntry) (archive.ArtifactRecord, bool, error) {
	key := entry.Name()
	dir := filepath.Join(l.root, key)
	files, err := os.ReadDir(dir)
	if err != nil {
		return archive.ArtifactRecord{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	rec := archive.ArtifactRecord{Key: key, RelativePath: l.Link(key, "")}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			rec.InfoFile = l.Link(key, name)
			rec.PrettyName = ReadTitle(filepath.Join(dir, name))
		case ".mp3":
			rec.AudioFile = l.Link(key, name)
		case ".mkv", ".mp4", ".webm":
			rec.VideoFile = l.Link(key, name)
		}
	}
	if rec.InfoFile == "" {
		return archive.ArtifactRecord{}, false, nil
	}
	if rec.PrettyName == "" {
		rec.PrettyName = key
	}
	if info, err := entry.Info(); err == nil {
		rec.CreatedAt = info.ModTime().UTC()
	}
	return rec, true, nil
}

// ReadTitle returns the "title" field of an info JSON file, or "".
func ReadTitle(file string) string {
	// #nosec G304 -- callers pass paths inside the download directory.
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	var info struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return ""
	}
	return strings.TrimSpace(info.Title)
}

func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid artifact key %q: %w", key, archive.ErrValidation)
	}
	return nil
}
