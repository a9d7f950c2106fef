package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// Lines wrap when they would exceed this share of the frame width.
	wrapWidthRatio = 0.85

	// Base font size is this share of the frame width before the caller's
	// percentage scaling is applied.
	baseFontRatio = 0.045

	lineHeightRatio = 1.5

	shadowBlurSigma = 4.0
	shadowOffsetX   = 2
	shadowOffsetY   = 3
)

// Params describes one rendered text block. X/Y are the absolute pixel
// anchor already resolved from the logical position by the caller.
type Params struct {
	Text            string
	X               int
	Y               int
	Alignment       string // left, center, right
	FontSizePercent float64
	Color           string // #rrggbb
	Bold            bool
	Italic          bool
	Underline       bool
	Shadow          bool
}

type Rasterizer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Rasterizer {
	return &Rasterizer{logger: logger}
}

// BaseFontSize is the unscaled font size for a frame width.
func BaseFontSize(width int) float64 {
	return math.Floor(float64(width) * baseFontRatio)
}

// Render paints the overlay for a width x height frame: transparent
// background, legibility scrim, wrapped text with optional shadow and
// underline.
func (r *Rasterizer) Render(params Params, width, height int) (*image.RGBA, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, fmt.Errorf("overlay text is empty")
	}

	fontSize := BaseFontSize(width)
	if params.FontSizePercent > 0 {
		fontSize *= params.FontSizePercent / 100
	}

	face, err := loadFace(params.Bold, params.Italic, fontSize)
	if err != nil {
		return nil, fmt.Errorf("load font face: %w", err)
	}
	defer face.Close()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	paintScrim(img)

	maxWidth := fixed.I(int(float64(width) * wrapWidthRatio))
	lines := WrapText(face, params.Text, maxWidth)

	lineHeight := fontSize * lineHeightRatio
	totalHeight := float64(len(lines)) * lineHeight
	firstBaseline := float64(params.Y) - totalHeight/2

	textColor := parseHexColor(params.Color)

	if params.Shadow {
		shadow := image.NewRGBA(img.Bounds())
		drawLines(shadow, face, lines, params, firstBaseline, lineHeight, color.NRGBA{0, 0, 0, 160})
		blurred := imaging.Blur(shadow, shadowBlurSigma)
		offset := image.Rect(shadowOffsetX, shadowOffsetY, width+shadowOffsetX, height+shadowOffsetY)
		draw.Draw(img, offset, blurred, image.Point{}, draw.Over)
	}

	drawLines(img, face, lines, params, firstBaseline, lineHeight, textColor)

	if params.Underline {
		drawUnderline(img, face, params, maxWidth, firstBaseline, lineHeight, fontSize, len(lines), textColor)
	}

	r.logger.Debug("rendered overlay",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("lines", len(lines)),
		zap.Float64("font_size", fontSize),
	)
	return img, nil
}

// RenderToFile renders the overlay and writes it as a PNG.
func (r *Rasterizer) RenderToFile(params Params, width, height int, path string) error {
	img, err := r.Render(params, width, height)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save overlay: %w", err)
	}
	return nil
}

// WrapText greedily packs words into lines no wider than maxWidth. A line
// that measures exactly maxWidth is kept whole; only exceeding it wraps. A
// single word wider than the limit still gets its own line.
func WrapText(face font.Face, text string, maxWidth fixed.Int26_6) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if font.MeasureString(face, candidate) > maxWidth {
			lines = append(lines, current)
			current = word
		} else {
			current = candidate
		}
	}
	return append(lines, current)
}

func drawLines(dst *image.RGBA, face font.Face, lines []string, params Params, firstBaseline, lineHeight float64, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
	}
	for i, line := range lines {
		w := font.MeasureString(face, line)
		x := alignedX(params.X, params.Alignment, w)
		y := firstBaseline + float64(i)*lineHeight
		d.Dot = fixed.Point26_6{X: x, Y: fixed.I(int(math.Round(y)))}
		d.DrawString(line)
	}
}

func alignedX(anchor int, alignment string, lineWidth fixed.Int26_6) fixed.Int26_6 {
	x := fixed.I(anchor)
	switch alignment {
	case "left":
		return x
	case "right":
		return x - lineWidth
	default:
		return x - lineWidth/2
	}
}

// drawUnderline strokes a single bar under the whole block. Its width is the
// measured width of the unwrapped string capped at the wrap limit.
func drawUnderline(dst *image.RGBA, face font.Face, params Params, maxWidth fixed.Int26_6, firstBaseline, lineHeight, fontSize float64, lineCount int, col color.Color) {
	w := font.MeasureString(face, params.Text)
	if w > maxWidth {
		w = maxWidth
	}

	lastBaseline := firstBaseline + float64(lineCount-1)*lineHeight
	top := int(math.Round(lastBaseline + fontSize*0.2))
	thickness := int(math.Max(2, math.Round(fontSize/15)))

	startX := alignedX(params.X, params.Alignment, w).Round()
	bar := image.Rect(startX, top, startX+w.Round(), top+thickness)
	draw.Draw(dst, bar, image.NewUniform(col), image.Point{}, draw.Over)
}

// paintScrim fills a four-stop vertical gradient: dark bands at the top and
// bottom, a lighter middle, so text stays readable over any footage.
func paintScrim(img *image.RGBA) {
	type stop struct {
		pos   float64
		alpha float64
	}
	stops := []stop{
		{0.0, 0.45},
		{0.35, 0.12},
		{0.65, 0.12},
		{1.0, 0.50},
	}

	bounds := img.Bounds()
	h := bounds.Dy()
	for y := 0; y < h; y++ {
		t := 0.0
		if h > 1 {
			t = float64(y) / float64(h-1)
		}

		alpha := stops[len(stops)-1].alpha
		for i := 0; i < len(stops)-1; i++ {
			if t <= stops[i+1].pos {
				span := stops[i+1].pos - stops[i].pos
				frac := 0.0
				if span > 0 {
					frac = (t - stops[i].pos) / span
				}
				alpha = stops[i].alpha + (stops[i+1].alpha-stops[i].alpha)*frac
				break
			}
		}

		row := image.Rect(bounds.Min.X, y, bounds.Max.X, y+1)
		c := color.NRGBA{0, 0, 0, uint8(math.Round(alpha * 255))}
		draw.Draw(img, row, image.NewUniform(c), image.Point{}, draw.Over)
	}
}

func loadFace(bold, italic bool, size float64) (font.Face, error) {
	var ttf []byte
	switch {
	case bold && italic:
		ttf = gobolditalic.TTF
	case bold:
		ttf = gobold.TTF
	case italic:
		ttf = goitalic.TTF
	default:
		ttf = goregular.TTF
	}

	parsed, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func parseHexColor(s string) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.White
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.White
	}
	return color.NRGBA{r, g, b, 255}
}
