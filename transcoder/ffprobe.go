package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheClusterFlux/replay-hub/types"
)

// CodecUnknown is reported when a file has no recognizable video stream.
// Callers treat it as "assume compatible" and skip conversion.
const CodecUnknown = "unknown"

// ProbeResult holds the container and stream facts the pipeline cares about.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	Codec    string
}

// Resolution renders the stream dimensions as "WxH", or "" if unknown.
func (r ProbeResult) Resolution() string {
	if r.Width == 0 && r.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Prober inspects media files with ffprobe and captures thumbnail frames
// with ffmpeg.
type Prober struct {
	ffprobeBin string
	ffmpegBin  string
	timeout    time.Duration

	checkOnce sync.Once
	checkErr  error
}

func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		ffprobeBin: "ffprobe",
		ffmpegBin:  "ffmpeg",
		timeout:    timeout,
	}
}

// preflight runs a cheap version check once per process so a missing binary
// surfaces as ErrProbeUnavailable instead of a confusing exec error.
func (p *Prober) preflight() error {
	p.checkOnce.Do(func() {
		if err := exec.Command(p.ffprobeBin, "-version").Run(); err != nil {
			p.checkErr = fmt.Errorf("%w: %v", types.ErrProbeUnavailable, err)
		}
	})
	return p.checkErr
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeFormat struct {
	Duration float64 `json:"duration,string"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Probe runs ffprobe against path and parses its JSON output.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if err := p.preflight(); err != nil {
		return ProbeResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(
		ctx,
		p.ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProbeResult{}, fmt.Errorf("%w after %s", types.ErrProbeTimeout, p.timeout)
		}
		return ProbeResult{}, fmt.Errorf("%w: %s", types.ErrProbeFailed, firstLine(stderr.String()))
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(raw []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: unparsable output: %v", types.ErrProbeFailed, err)
	}

	res := ProbeResult{
		Duration: out.Format.Duration,
		Codec:    CodecUnknown,
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.CodecName != "" {
			res.Codec = strings.ToLower(s.CodecName)
		}
		res.Width = s.Width
		res.Height = s.Height
		res.FPS = parseFrameRate(s.RFrameRate)
		if res.FPS == 0 {
			res.FPS = parseFrameRate(s.AvgFrameRate)
		}
		break
	}

	return res, nil
}

// parseFrameRate turns ffprobe's "30000/1001" rational notation into a float.
func parseFrameRate(raw string) float64 {
	if raw == "" || raw == "0/0" {
		return 0
	}

	num, den, found := strings.Cut(raw, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}

	return n / d
}

// CaptureThumbnail grabs one frame at the given offset as a jpeg next to the
// source file. It is best-effort: callers log a failure and carry on without
// a thumbnail.
func (p *Prober) CaptureThumbnail(ctx context.Context, path string, atSeconds float64) (string, error) {
	if err := p.preflight(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out := path + "_thumbnail.jpg"
	cmd := exec.CommandContext(
		ctx,
		p.ffmpegBin,
		"-ss", strconv.FormatFloat(atSeconds, 'f', 2, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		out,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Warn().Str("path", path).Str("stderr", firstLine(stderr.String())).Msg("thumbnail capture failed")
		return "", fmt.Errorf("thumbnail capture: %v", err)
	}

	return out, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
