package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheClusterFlux/replay-hub/transcoder"
	"github.com/TheClusterFlux/replay-hub/types"
)

type fakeShortIDChecker struct {
	taken map[string]bool
	calls int
}

func (f *fakeShortIDChecker) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	f.calls++
	return f.taken[shortID], nil
}

type alwaysTakenChecker struct{}

func (alwaysTakenChecker) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	return true, nil
}

func TestGenerateShortID(t *testing.T) {
	checker := &fakeShortIDChecker{taken: map[string]bool{}}
	a := NewAssembler(checker)

	seen := map[string]bool{}
	for i := 0; i < 10000; i++ {
		id, err := a.GenerateShortID(context.Background())
		require.NoError(t, err)
		require.Len(t, id, shortIDLength)
		require.False(t, seen[id], "short id %q issued twice", id)

		seen[id] = true
		checker.taken[id] = true
	}
}

func TestGenerateShortIDExhaustion(t *testing.T) {
	a := NewAssembler(alwaysTakenChecker{})

	_, err := a.GenerateShortID(context.Background())
	require.ErrorIs(t, err, types.ErrIDGenerationFailed)
}

func TestAssembleIdentityPrecedence(t *testing.T) {
	a := NewAssembler(&fakeShortIDChecker{taken: map[string]bool{}})
	probe := transcoder.ProbeResult{Duration: 12.5, Width: 1920, Height: 1080, FPS: 60, Codec: "h264"}

	// Authenticated caller wins over the declared form field.
	v, err := a.Assemble(context.Background(), probe, types.UploadFields{Uploader: "form-name"},
		&types.Identity{UserID: "u-1", DisplayName: "Jess"}, "/files/a.mp4", "thumb-1", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "Jess", v.Uploader)
	require.Equal(t, "u-1", v.UploaderID)

	// No token: the declared field is used as-is.
	v, err = a.Assemble(context.Background(), probe, types.UploadFields{Uploader: "form-name"},
		nil, "/files/a.mp4", "", "")
	require.NoError(t, err)
	require.Equal(t, "form-name", v.Uploader)
	require.Empty(t, v.UploaderID)

	// Nothing at all: anonymous.
	v, err = a.Assemble(context.Background(), probe, types.UploadFields{}, nil, "/files/a.mp4", "", "")
	require.NoError(t, err)
	require.Equal(t, anonymousUploader, v.Uploader)
}

func TestAssembleRecordFields(t *testing.T) {
	a := NewAssembler(&fakeShortIDChecker{taken: map[string]bool{}})

	fields := types.UploadFields{
		Title:       "Ranked finals",
		Description: "match point",
		Players:     []string{"ana", "brigitte"},
		Extra:       map[string]string{"map": "oasis"},
	}
	probe := transcoder.ProbeResult{Duration: 301.2, Width: 1280, Height: 720, FPS: 30, Codec: "hevc"}

	v, err := a.Assemble(context.Background(), probe, fields, nil, "https://cdn.example/a.mp4", "thumb-9", "deadbeef")
	require.NoError(t, err)

	require.False(t, v.ID.IsZero())
	require.Equal(t, "Ranked finals", v.Title)
	require.Equal(t, "1280x720", v.Resolution)
	require.Equal(t, 301.2, v.Duration)
	require.Equal(t, "hevc", v.Codec)
	require.Equal(t, "https://cdn.example/a.mp4", v.AssetURL)
	require.Equal(t, "thumb-9", v.ThumbnailID)
	require.Equal(t, "deadbeef", v.FileHash)
	require.Equal(t, []string{"ana", "brigitte"}, v.Players)
	require.Equal(t, "oasis", v.Extra["map"])
	require.False(t, v.UploadedAt.IsZero())
}

func TestAssembleTitleFallback(t *testing.T) {
	a := NewAssembler(&fakeShortIDChecker{taken: map[string]bool{}})

	v, err := a.Assemble(context.Background(), transcoder.ProbeResult{Codec: transcoder.CodecUnknown},
		types.UploadFields{}, nil, "/files/a.mp4", "", "")
	require.NoError(t, err)
	require.Equal(t, "Untitled", v.Title)
	require.Empty(t, v.Resolution)
}
