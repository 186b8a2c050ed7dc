package sinks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/storage/local"
)

func TestMirrorSinkUploadsAndPrunes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	lib, err := local.NewLibrary(root, "/downloads", nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "k1"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "k1", "Talk.info.json"), []byte(`{"title":"Talk"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "k1", "Talk.mp3"), []byte("id3"), 0o600))

	mirrorDir := t.TempDir()
	blobs, err := local.New(local.Config{BaseDir: mirrorDir})
	require.NoError(t, err)

	sink, err := NewMirrorSink(blobs, lib, MirrorConfig{})
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{completed("r1", "k1", baseTime)}))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(mirrorDir, "k1", "Talk.mp3"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.FileExists(t, filepath.Join(mirrorDir, "k1", "Talk.info.json"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{progress.Deleted{Key: "k1", At: baseTime}}))
	require.NoError(t, sink.Close(context.Background()))
	require.NoDirExists(t, filepath.Join(mirrorDir, "k1"))
}

func TestMirrorSinkRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewMirrorSink(nil, nil, MirrorConfig{})
	require.Error(t, err)
}
