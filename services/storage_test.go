package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheClusterFlux/replay-hub/config"
	"github.com/TheClusterFlux/replay-hub/types"
)

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":          "video/mp4",
		"CLIP.MP4":          "video/mp4",
		"stream.m3u8":       "application/x-mpegURL",
		"segment-00001.ts":  "video/MP2T",
		"raw.mkv":           "video/x-matroska",
		"old.avi":           "video/x-msvideo",
		"capture.mov":       "video/quicktime",
		"clip.webm":         "video/webm",
		"mystery.binarydat": "application/octet-stream",
		"noextension":       "application/octet-stream",
	}

	for name, want := range cases {
		require.Equal(t, want, ContentTypeFor(name), "content type for %q", name)
	}
}

func TestStorageLocalURL(t *testing.T) {
	s := NewStorage(config.Config{})

	require.Equal(t, "/files/clip.mp4", s.LocalURL("/var/uploads/clip.mp4"))
	require.Equal(t, "/files/clip.mp4", s.LocalURL("clip.mp4"))
}

func TestStoragePlaceLocal(t *testing.T) {
	s := NewStorage(config.Config{})

	url, remote, err := s.Place(context.Background(), "/var/uploads/clip.mp4", false)
	require.NoError(t, err)
	require.False(t, remote)
	require.Equal(t, "/files/clip.mp4", url)
}

func TestStoragePlaceRemoteUnconfigured(t *testing.T) {
	s := NewStorage(config.Config{})
	require.False(t, s.RemoteEnabled())

	_, _, err := s.Place(context.Background(), "/var/uploads/clip.mp4", true)
	require.ErrorIs(t, err, types.ErrUploadFailed)
}
