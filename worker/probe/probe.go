package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrNoDimensions means the diagnostic output had no parseable video stream.
var ErrNoDimensions = errors.New("no video dimensions in probe output")

var (
	dimensionRe = regexp.MustCompile(`\b(\d{2,5})x(\d{2,5})\b`)
	durationRe  = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d{2})`)
)

// Info holds the probed properties of a video file.
type Info struct {
	Width    int
	Height   int
	Duration float64
}

type Prober struct {
	bin    string
	logger *zap.Logger
}

func New(bin string, logger *zap.Logger) *Prober {
	return &Prober{bin: bin, logger: logger}
}

// Probe runs the tool in metadata-only mode and parses its diagnostic
// output. With no output file the tool always exits non-zero, so the exit
// status is ignored and only the parse matters.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, p.bin, "-hide_banner", "-i", path)
	out, _ := cmd.CombinedOutput()

	info, err := Parse(string(out))
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", path, err)
	}

	p.logger.Debug("probed video",
		zap.String("path", path),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("duration", info.Duration),
	)
	return info, nil
}

// Parse extracts WxH from the video stream line and the Duration marker.
// Duration is optional and defaults to 0; dimensions are not.
func Parse(out string) (Info, error) {
	var info Info

	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Video:") {
			continue
		}
		if m := dimensionRe.FindStringSubmatch(line); m != nil {
			info.Width, _ = strconv.Atoi(m[1])
			info.Height, _ = strconv.Atoi(m[2])
			break
		}
	}
	if info.Width == 0 || info.Height == 0 {
		return Info{}, ErrNoDimensions
	}

	if m := durationRe.FindStringSubmatch(out); m != nil {
		info.Duration = timestampSeconds(m[1], m[2], m[3], m[4])
	}

	return info, nil
}

func timestampSeconds(h, m, s, cs string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	centis, _ := strconv.Atoi(cs)
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(centis)/100
}
