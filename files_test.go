package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLikelyVideo(t *testing.T) {
	for _, name := range []string{"clip.mp4", "CLIP.MP4", "a.mov", "b.webm", "c.m4v", "d.mkv", "e.avi"} {
		assert.True(t, isLikelyVideo(name), name)
	}
	for _, name := range []string{"notes.txt", "cover.jpg", "clip.mp3", "mp4", "clip"} {
		assert.False(t, isLikelyVideo(name), name)
	}
}

func TestTitleCase(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"my_cool_video_loop.mp4", "My Cool Video"},
		{"beach-sunset.webm", "Beach Sunset"},
		{"clip.mp4", "Clip"},
		{"already Title.mov", "Already Title"},
		{"4k_city.mp4", "4k City"},
		{".mp4", ""},
	} {
		assert.Equal(t, tc.want, titleCase(tc.in), tc.in)
	}
}

func TestScanClips(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.webm", "notes.txt", "c.MOV"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o755))

	names, err := scanClips(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.webm", "b.mp4", "c.MOV"}, names)
}

func TestScanClipsMissingDir(t *testing.T) {
	_, err := scanClips(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "512 B", humanReadableSize(512))
	assert.Equal(t, "1.0 kB", humanReadableSize(1000))
	assert.Equal(t, "1.5 MB", humanReadableSize(1500000))
}
