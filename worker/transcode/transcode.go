package transcode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"regexp"
	"strconv"

	"go.uber.org/zap"
)

const errorTailBytes = 500

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d{2})`)
	timeRe     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2})\.(\d{2})`)
)

// Options selects the encode for one job. OverlayPath empty means no text
// was requested and the output is a pure stream copy.
type Options struct {
	InputPath   string
	OverlayPath string
	OutputPath  string
}

type Invoker struct {
	bin    string
	logger *zap.Logger
}

func New(bin string, logger *zap.Logger) *Invoker {
	return &Invoker{bin: bin, logger: logger}
}

// BuildArgs assembles the tool's argument list for the given options.
func BuildArgs(opts Options) []string {
	if opts.OverlayPath == "" {
		// Lossless and fast: nothing to composite, copy both streams.
		return []string{
			"-y",
			"-i", opts.InputPath,
			"-c", "copy",
			"-movflags", "+faststart",
			opts.OutputPath,
		}
	}

	// crf 18 is the visually-lossless target; audio passes through untouched
	// and faststart keeps the result progressively playable.
	return []string{
		"-y",
		"-i", opts.InputPath,
		"-i", opts.OverlayPath,
		"-filter_complex", "[0:v][1:v]overlay=0:0",
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		opts.OutputPath,
	}
}

// Run executes the encode, streaming percent-complete to onProgress as the
// tool emits time markers. It returns nil on exit code 0 and otherwise an
// error carrying the tail of the diagnostic stream.
func (i *Invoker) Run(ctx context.Context, opts Options, onProgress func(percent int)) error {
	args := BuildArgs(opts)
	cmd := exec.CommandContext(ctx, i.bin, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", i.bin, err)
	}

	i.logger.Debug("encoder started",
		zap.String("bin", i.bin),
		zap.Strings("args", args),
	)

	tail := watchProgress(stderr, onProgress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("encoder failed: %w: %s", err, tail)
	}
	return nil
}

// watchProgress consumes the diagnostic stream, reporting progress for every
// time marker and keeping the last ~500 bytes for error detail. It returns
// once the stream closes, which happens when the process exits.
func watchProgress(r io.Reader, onProgress func(percent int)) string {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLinesWithCR)

	var (
		tail     []byte
		duration float64
		last     = -1
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		tail = append(tail, line...)
		tail = append(tail, '\n')
		if len(tail) > errorTailBytes {
			tail = tail[len(tail)-errorTailBytes:]
		}

		if duration == 0 {
			if m := durationRe.FindStringSubmatch(line); m != nil {
				duration = timestampSeconds(m[1], m[2], m[3], m[4])
				continue
			}
		}
		if duration <= 0 || onProgress == nil {
			continue
		}
		if m := timeRe.FindStringSubmatch(line); m != nil {
			current := timestampSeconds(m[1], m[2], m[3], m[4])
			percent := int(math.Min(100, math.Floor(current/duration*100)))
			if percent > last {
				last = percent
				onProgress(percent)
			}
		}
	}

	return string(tail)
}

// scanLinesWithCR splits on both \r and \n since the tool rewrites its
// progress line with carriage returns.
func scanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	for i := 0; i < len(data); i++ {
		if data[i] == '\r' || data[i] == '\n' {
			advance = i + 1
			for advance < len(data) && (data[advance] == '\r' || data[advance] == '\n') {
				advance++
			}
			return advance, data[0:i], nil
		}
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func timestampSeconds(h, m, s, cs string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	centis, _ := strconv.Atoi(cs)
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(centis)/100
}
