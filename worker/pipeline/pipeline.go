package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"videoOverlay/storage"
	"videoOverlay/store"
	"videoOverlay/worker/overlay"
	"videoOverlay/worker/probe"
	"videoOverlay/worker/transcode"
)

const DownloadURLTTL = time.Hour

// Progress milestones. The encode occupies the 40-90 band, scaled by the
// encoder's own percent-complete.
const (
	progressScratch    = 10
	progressDownloaded = 20
	progressOverlay    = 30
	progressEncodeFrom = 40
	progressEncodeTo   = 90
	progressDone       = 100
)

type Prober interface {
	Probe(ctx context.Context, path string) (probe.Info, error)
}

type Rasterizer interface {
	RenderToFile(params overlay.Params, width, height int, path string) error
}

type Invoker interface {
	Run(ctx context.Context, opts transcode.Options, onProgress func(percent int)) error
}

// Pipeline turns one claimed job into an uploaded, downloadable rendering.
type Pipeline struct {
	objects    storage.ObjectStore
	prober     Prober
	rasterizer Rasterizer
	invoker    Invoker

	scratchRoot string
	logger      *zap.Logger
}

func New(objects storage.ObjectStore, prober Prober, rasterizer Rasterizer, invoker Invoker, scratchRoot string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		objects:     objects,
		prober:      prober,
		rasterizer:  rasterizer,
		invoker:     invoker,
		scratchRoot: scratchRoot,
		logger:      logger,
	}
}

// ResolveAnchor maps the logical overlay position onto absolute pixel
// coordinates for the probed frame size.
func ResolveAnchor(position, alignment string, offsetPercent float64, width, height int) (x, y int) {
	switch position {
	case "top":
		y = int(0.25 * float64(height))
	case "bottom":
		y = int(0.70 * float64(height))
	default:
		y = int(0.45 * float64(height))
	}

	switch alignment {
	case "left":
		x = int(0.08 * float64(width))
	case "right":
		x = int(0.92 * float64(width))
	default:
		x = width / 2
	}
	x += int(offsetPercent / 100 * float64(width))
	return x, y
}

// Process runs the full pipeline for a claimed job: download, probe,
// rasterize, encode, upload, presign. Scratch files are removed on every
// exit path; removal failures are logged, never returned.
func (p *Pipeline) Process(ctx context.Context, job *store.Job, report func(percent int)) (*store.JobResult, error) {
	if report == nil {
		report = func(int) {}
	}
	log := p.logger.With(zap.String("job_id", job.JobID))

	scratch := filepath.Join(p.scratchRoot, job.JobID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("Failed to remove scratch dir", zap.String("dir", scratch), zap.Error(err))
		}
	}()
	report(progressScratch)

	inputPath := filepath.Join(scratch, "input"+extensionOf(job.Spec.InputKey))
	if err := p.download(ctx, job.Spec.InputKey, inputPath); err != nil {
		return nil, fmt.Errorf("download input: %w", err)
	}
	report(progressDownloaded)

	info, err := p.prober.Probe(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	var overlayPath string
	if ts := job.Spec.Text; ts != nil {
		x, y := ResolveAnchor(ts.Position, ts.Alignment, ts.OffsetPercent, info.Width, info.Height)
		overlayPath = filepath.Join(scratch, "overlay.png")
		params := overlay.Params{
			Text:            ts.Text,
			X:               x,
			Y:               y,
			Alignment:       ts.Alignment,
			FontSizePercent: ts.FontSize,
			Color:           ts.Color,
			Bold:            ts.Bold,
			Italic:          ts.Italic,
			Underline:       ts.Underline,
			Shadow:          ts.Shadow,
		}
		if err := p.rasterizer.RenderToFile(params, info.Width, info.Height, overlayPath); err != nil {
			return nil, fmt.Errorf("render overlay: %w", err)
		}
		report(progressOverlay)
	}

	outputPath := filepath.Join(scratch, "output.mp4")
	err = p.invoker.Run(ctx, transcode.Options{
		InputPath:   inputPath,
		OverlayPath: overlayPath,
		OutputPath:  outputPath,
	}, func(percent int) {
		band := float64(progressEncodeTo - progressEncodeFrom)
		report(progressEncodeFrom + int(math.Floor(float64(percent)/100*band)))
	})
	if err != nil {
		return nil, err
	}

	duration := info.Duration
	if outInfo, err := p.prober.Probe(ctx, outputPath); err == nil {
		duration = outInfo.Duration
	} else {
		log.Warn("Failed to probe output, using input duration", zap.Error(err))
	}

	size, err := p.upload(ctx, outputPath, job.Spec.OutputKey, job.JobID)
	if err != nil {
		return nil, fmt.Errorf("upload output: %w", err)
	}

	url, err := p.objects.SignedDownloadURL(ctx, job.Spec.OutputKey, DownloadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign download url: %w", err)
	}
	report(progressDone)

	log.Info("Pipeline finished",
		zap.String("output_key", job.Spec.OutputKey),
		zap.Float64("duration", duration),
		zap.Int64("file_size", size),
	)

	return &store.JobResult{
		OutputKey:   job.Spec.OutputKey,
		DownloadURL: url,
		Duration:    duration,
		FileSize:    size,
	}, nil
}

func (p *Pipeline) download(ctx context.Context, key, dest string) error {
	body, _, err := p.objects.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return err
	}
	return f.Sync()
}

func (p *Pipeline) upload(ctx context.Context, path, key, jobID string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}

	metadata := map[string]string{"job-id": jobID}
	if err := p.objects.Put(ctx, key, f, "video/mp4", metadata); err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func extensionOf(key string) string {
	if ext := filepath.Ext(key); ext != "" {
		return ext
	}
	return ".mp4"
}
