package sinks

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/storage"
)

// ArtifactDirs resolves an artifact key to its directory on disk.
type ArtifactDirs interface {
	Dir(key string) (string, error)
}

// MirrorConfig tunes the MirrorSink.
//   - QueueSize: pending mirror operations before new ones are shed (default 64).
//   - OpTimeout: deadline for mirroring one artifact (default 30m).
type MirrorConfig struct {
	QueueSize int
	OpTimeout time.Duration
	Logger    *zap.Logger
}

type mirrorOp struct {
	key    string
	delete bool
}

// MirrorSink copies completed artifacts into a BlobStore and prunes them when
// the artifact is deleted. Uploads can take far longer than a sink flush, so
// operations run in order on a dedicated goroutine.
type MirrorSink struct {
	blobs  storage.BlobStore
	dirs   ArtifactDirs
	cfg    MirrorConfig
	logger *zap.Logger

	ops       chan mirrorOp
	done      chan struct{}
	closeOnce sync.Once
}

// NewMirrorSink starts the mirror goroutine.
func NewMirrorSink(blobs storage.BlobStore, dirs ArtifactDirs, cfg MirrorConfig) (*MirrorSink, error) {
	if blobs == nil || dirs == nil {
		return nil, fmt.Errorf("blob store and artifact dirs are required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 30 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MirrorSink{
		blobs:  blobs,
		dirs:   dirs,
		cfg:    cfg,
		logger: logger,
		ops:    make(chan mirrorOp, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Consume queues mirror work for Completed and Deleted events.
func (s *MirrorSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		var op mirrorOp
		switch e := evt.(type) {
		case progress.Completed:
			op = mirrorOp{key: e.Artifact.Key}
		case progress.Deleted:
			op = mirrorOp{key: e.Key, delete: true}
		default:
			continue
		}
		select {
		case s.ops <- op:
		default:
			s.logger.Warn("mirror queue full, skipping artifact", zap.String("key", op.key), zap.Bool("delete", op.delete))
		}
	}
	return nil
}

func (s *MirrorSink) run() {
	defer close(s.done)
	for op := range s.ops {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
		var err error
		if op.delete {
			var n int
			n, err = s.blobs.DeletePrefix(ctx, op.key+"/")
			if err == nil {
				s.logger.Info("mirror pruned", zap.String("key", op.key), zap.Int("objects", n))
			}
		} else {
			err = s.upload(ctx, op.key)
		}
		cancel()
		if err != nil {
			s.logger.Warn("mirror operation failed", zap.String("key", op.key), zap.Bool("delete", op.delete), zap.Error(err))
		}
	}
}

func (s *MirrorSink) upload(ctx context.Context, key string) error {
	dir, err := s.dirs.Dir(key)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read artifact dir: %w", err)
	}
	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := s.uploadFile(ctx, key, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
		uploaded++
	}
	s.logger.Info("mirror uploaded", zap.String("key", key), zap.Int("objects", uploaded))
	return nil
}

func (s *MirrorSink) uploadFile(ctx context.Context, key, file string) error {
	// #nosec G304 -- file comes from listing the artifact directory.
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()
	name := filepath.Base(file)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if _, err := s.blobs.PutObject(ctx, path.Join(key, name), contentType, f); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Close stops accepting work and waits for queued operations to finish or ctx to end.
func (s *MirrorSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.ops) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mirror close wait: %w", ctx.Err())
	}
}
