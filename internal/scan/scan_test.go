package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hevcbatch/internal/ffmpeg"
)

// stubProber decides codec identity from the file name
type stubProber struct{}

func (stubProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	name := filepath.Base(path)
	switch {
	case name == "broken.avi":
		return nil, errors.New("moov atom not found")
	case name == "already.mkv":
		return &ffmpeg.ProbeResult{Path: path, VideoCodec: "hevc", IsHEVC: true}, nil
	case name == "screencast.mov":
		return &ffmpeg.ProbeResult{Path: path, VideoCodec: "prores"}, nil
	default:
		return &ffmpeg.ProbeResult{Path: path, VideoCodec: "h264", IsH264: true}, nil
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestIsVideoFile(t *testing.T) {
	assert.True(t, IsVideoFile("movie.mp4"))
	assert.True(t, IsVideoFile("MOVIE.MKV"))
	assert.True(t, IsVideoFile("clip.ts"))
	assert.False(t, IsVideoFile("notes.txt"))
	assert.False(t, IsVideoFile("archive.zip"))
	assert.False(t, IsVideoFile("noextension"))
}

func TestFindFiltersByCodec(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp4"))
	touch(t, filepath.Join(root, "sub", "b.mkv"))
	touch(t, filepath.Join(root, "already.mkv"))
	touch(t, filepath.Join(root, "screencast.mov"))
	touch(t, filepath.Join(root, "broken.avi"))
	touch(t, filepath.Join(root, "notes.txt"))

	found, err := New(stubProber{}).Find(context.Background(), root)
	require.NoError(t, err)

	var paths []string
	for _, c := range found {
		paths = append(paths, c.Path)
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.mp4"),
		filepath.Join(root, "sub", "b.mkv"),
	}, paths)

	for _, c := range found {
		require.NotNil(t, c.Probe)
		assert.True(t, c.Probe.IsH264)
	}
}

func TestFindSkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "visible.mp4"))
	touch(t, filepath.Join(root, ".trashed.mp4"))
	touch(t, filepath.Join(root, ".cache", "nested.mp4"))

	found, err := New(stubProber{}).Find(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(root, "visible.mp4"), found[0].Path)
}

func TestFindCancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp4"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(stubProber{}).Find(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindMissingRoot(t *testing.T) {
	_, err := New(stubProber{}).Find(context.Background(), "/nonexistent/library")
	assert.Error(t, err)
}
