package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStagingSave(t *testing.T) {
	s, err := NewStaging(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save(strings.NewReader("payload"), ".mp4")
	require.NoError(t, err)
	require.Equal(t, s.Dir(), filepath.Dir(path))
	require.Equal(t, ".mp4", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestStagingSaveHostileExtension(t *testing.T) {
	s, err := NewStaging(t.TempDir())
	require.NoError(t, err)

	// Path components in the extension never escape the staging dir.
	path, err := s.Save(strings.NewReader("x"), "../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, s.Dir(), filepath.Dir(path))

	path, err = s.Save(strings.NewReader("x"), "")
	require.NoError(t, err)
	require.Equal(t, s.Dir(), filepath.Dir(path))
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "clip.mp4", SanitizeFilename("clip.mp4"))
	require.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	require.Equal(t, "clip.mp4", SanitizeFilename(`C:\Users\me\clip.mp4`))

	// Degenerate names are replaced instead of trusted.
	require.True(t, strings.HasPrefix(SanitizeFilename(""), "upload-"))
	require.True(t, strings.HasPrefix(SanitizeFilename(".."), "upload-"))
}
