package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheClusterFlux/replay-hub/types"
)

func TestNeedsConversion(t *testing.T) {
	e := NewEngine(NewProber(time.Second), time.Second)

	cases := map[string]bool{
		"h264":       false,
		"vp9":        false,
		"av1":        false,
		"hevc":       true,
		"HEVC":       true,
		"h265":       true,
		"mpeg2video": true,
		"msmpeg4v3":  true,
		"wmv3":       true,
		"vc1":        true,
		// Unknown codecs are assumed playable rather than burned through the
		// encoder on a guess.
		CodecUnknown: false,
		"":           false,
	}

	for codec, want := range cases {
		require.Equal(t, want, e.NeedsConversion(codec), "codec %q", codec)
	}
}

func TestNaturalOutputPath(t *testing.T) {
	require.Equal(t, "/up/clip_converted.mp4", naturalOutputPath("/up/clip.mkv"))

	// An mp4 input never collides with its own output.
	require.Equal(t, "/up/clip_converted.mp4", naturalOutputPath("/up/clip.mp4"))
	require.Equal(t, "/up/clip_converted.mp4", naturalOutputPath("/up/clip"))
}

func TestCollisionFreePath(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "clip_converted.mp4")
	require.Equal(t, path, collisionFreePath(path))

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.Equal(t, filepath.Join(dir, "clip_converted_1.mp4"), collisionFreePath(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip_converted_1.mp4"), nil, 0o644))
	require.Equal(t, filepath.Join(dir, "clip_converted_2.mp4"), collisionFreePath(path))
}

func TestConvertArgs(t *testing.T) {
	args := convertArgs("in.mkv", "out.mp4", Options{CRF: 23, Preset: "fast"})
	require.Equal(t, []string{
		"-i", "in.mkv",
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "fast",
		"-c:a", "copy",
		"-movflags", "+faststart",
		"-y",
		"out.mp4",
	}, args)
}

func TestConvertArgsLossless(t *testing.T) {
	args := convertArgs("in.mkv", "out.mp4", Options{Lossless: true, CRF: 23, Preset: "fast"})
	require.Contains(t, args, "-crf")
	require.Equal(t, "0", args[indexOf(t, args, "-crf")+1])
	require.Equal(t, "veryslow", args[indexOf(t, args, "-preset")+1])
}

func TestConvertArgsDefaults(t *testing.T) {
	args := convertArgs("in.mkv", "out.mp4", Options{})
	require.Equal(t, "18", args[indexOf(t, args, "-crf")+1])
	require.Equal(t, "medium", args[indexOf(t, args, "-preset")+1])
}

// fakeFfmpeg exits cleanly and writes its last argument (the output path),
// standing in for an encoder run that "succeeds".
const fakeFfmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then exit 0; fi
for last; do :; done
printf 'encoded' > "$last"
`

func fakeFfprobe(codec string) string {
	return `#!/bin/sh
if [ "$1" = "-version" ]; then exit 0; fi
printf '%s' '{"streams":[{"codec_type":"video","codec_name":"` + codec + `","width":640,"height":360,"r_frame_rate":"30/1"}],"format":{"duration":"1.0"}}'
`
}

const brokenFfprobe = `#!/bin/sh
if [ "$1" = "-version" ]; then exit 0; fi
exit 1
`

func newScriptedEngine(t *testing.T, ffprobeScript string) (*Engine, string) {
	t.Helper()

	dir := t.TempDir()

	ffmpegPath := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(ffmpegPath, []byte(fakeFfmpeg), 0o755))

	ffprobePath := filepath.Join(dir, "ffprobe")
	require.NoError(t, os.WriteFile(ffprobePath, []byte(ffprobeScript), 0o755))

	input := filepath.Join(dir, "in.mkv")
	require.NoError(t, os.WriteFile(input, []byte("source bytes"), 0o644))

	prober := NewProber(5 * time.Second)
	prober.ffprobeBin = ffprobePath

	e := NewEngine(prober, 30*time.Second)
	e.ffmpegBin = ffmpegPath

	return e, input
}

func TestConvertDiscardsStillIncompatibleOutput(t *testing.T) {
	e, input := newScriptedEngine(t, fakeFfprobe("hevc"))

	_, _, err := e.Convert(context.Background(), input, Options{})
	require.ErrorIs(t, err, types.ErrConversionFailed)

	// The rejected output must not linger on disk.
	_, statErr := os.Stat(naturalOutputPath(input))
	require.True(t, os.IsNotExist(statErr))
}

func TestConvertPromotesVerifiedOutput(t *testing.T) {
	e, input := newScriptedEngine(t, fakeFfprobe("h264"))

	out, res, err := e.Convert(context.Background(), input, Options{})
	require.NoError(t, err)
	require.Equal(t, naturalOutputPath(input), out)
	require.Equal(t, "h264", res.Codec)
	require.Equal(t, "640x360", res.Resolution())

	_, statErr := os.Stat(out)
	require.NoError(t, statErr)
}

func TestConvertPromotesWhenVerificationUnavailable(t *testing.T) {
	e, input := newScriptedEngine(t, brokenFfprobe)

	out, res, err := e.Convert(context.Background(), input, Options{})
	require.NoError(t, err)
	require.Empty(t, res.Codec)

	_, statErr := os.Stat(out)
	require.NoError(t, statErr)
}

func indexOf(t *testing.T, args []string, flag string) int {
	t.Helper()
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	t.Fatalf("flag %q not found in %v", flag, args)
	return -1
}
