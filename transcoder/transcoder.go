package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheClusterFlux/replay-hub/types"
)

// Codecs the target playback environment cannot decode natively. Anything
// else, including "unknown", is assumed playable and left alone.
var incompatibleCodecs = map[string]bool{
	"hevc":       true,
	"h265":       true,
	"mpeg2video": true,
	"msmpeg4v3":  true,
	"wmv3":       true,
	"vc1":        true,
}

// Options selects the conversion mode: lossless trades encode time for zero
// quality loss, otherwise quality is bounded by CRF and preset.
type Options struct {
	Lossless bool
	CRF      int
	Preset   string
}

// Engine re-encodes video streams to h264 in a web-streamable mp4 container.
// Audio is passed through unmodified.
type Engine struct {
	ffmpegBin string
	prober    *Prober
	timeout   time.Duration

	checkOnce sync.Once
	checkErr  error
}

func NewEngine(prober *Prober, timeout time.Duration) *Engine {
	return &Engine{
		ffmpegBin: "ffmpeg",
		prober:    prober,
		timeout:   timeout,
	}
}

// NeedsConversion reports whether a probed codec requires re-encoding before
// browsers can play it.
func (e *Engine) NeedsConversion(codec string) bool {
	return incompatibleCodecs[strings.ToLower(codec)]
}

func (e *Engine) preflight() error {
	e.checkOnce.Do(func() {
		if err := exec.Command(e.ffmpegBin, "-version").Run(); err != nil {
			e.checkErr = fmt.Errorf("%w: %v", types.ErrEncoderUnavailable, err)
		}
	})
	return e.checkErr
}

// Convert re-encodes path and returns the output path together with the
// verification probe of the output. On any failure the partial output is
// removed and the caller keeps serving the original file.
func (e *Engine) Convert(ctx context.Context, path string, opts Options) (string, ProbeResult, error) {
	if err := e.preflight(); err != nil {
		return "", ProbeResult{}, err
	}

	out := collisionFreePath(naturalOutputPath(path))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffmpegBin, convertArgs(path, out, opts)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		if ctx.Err() == context.DeadlineExceeded {
			return "", ProbeResult{}, fmt.Errorf("%w after %s", types.ErrConversionTimeout, e.timeout)
		}
		return "", ProbeResult{}, fmt.Errorf("%w: %s", types.ErrConversionFailed, firstLine(stderr.String()))
	}

	// The encoder exiting zero is not proof of a usable stream; verify the
	// output really landed in the compatible set before promoting it.
	res, err := e.prober.Probe(ctx, out)
	if err == nil && e.NeedsConversion(res.Codec) {
		_ = os.Remove(out)
		return "", ProbeResult{}, fmt.Errorf("%w: output codec %q still incompatible", types.ErrConversionFailed, res.Codec)
	}
	if err != nil {
		log.Warn().Str("path", out).Err(err).Msg("could not verify converted output, promoting anyway")
		res = ProbeResult{}
	}

	log.Info().
		Str("input", path).
		Str("output", out).
		Dur("elapsed", time.Since(start)).
		Msg("conversion finished")

	return out, res, nil
}

func convertArgs(in, out string, opts Options) []string {
	args := []string{"-i", in, "-c:v", "libx264"}

	if opts.Lossless {
		args = append(args, "-crf", "0", "-preset", "veryslow")
	} else {
		crf := opts.CRF
		if crf <= 0 {
			crf = 18
		}
		preset := opts.Preset
		if preset == "" {
			preset = "medium"
		}
		args = append(args, "-crf", strconv.Itoa(crf), "-preset", preset)
	}

	return append(args,
		"-c:a", "copy", // audio passthrough
		"-movflags", "+faststart", // moov atom up front for streaming
		"-y",
		out,
	)
}

// naturalOutputPath places the converted file next to the input. The suffix
// keeps an mp4-containered hevc input from colliding with its own output.
func naturalOutputPath(in string) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	return base + "_converted.mp4"
}

// collisionFreePath appends a numeric suffix until the path is unused.
func collisionFreePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	ext := filepath.Ext(path)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
