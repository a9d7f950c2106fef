package overlay

import (
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

func testFace(t *testing.T, size float64) font.Face {
	face, err := loadFace(false, false, size)
	if err != nil {
		t.Fatalf("Failed to load face: %v", err)
	}
	t.Cleanup(func() { face.Close() })
	return face
}

func TestWrapTextExactFitIsNotSplit(t *testing.T) {
	face := testFace(t, 32)

	text := "word word"
	limit := font.MeasureString(face, text)

	lines := WrapText(face, text, limit)
	if len(lines) != 1 {
		t.Fatalf("Expected a line measuring exactly the limit to stay whole, got %d lines: %v", len(lines), lines)
	}
	if lines[0] != text {
		t.Errorf("Expected %q, got %q", text, lines[0])
	}
}

func TestWrapTextGreedy(t *testing.T) {
	face := testFace(t, 32)

	// Six identical words with a limit of exactly two words per line.
	limit := font.MeasureString(face, "word word")
	lines := WrapText(face, "word word word word word word", limit)

	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %v", len(lines), lines)
	}
	for i, line := range lines {
		if line != "word word" {
			t.Errorf("Line %d: expected %q, got %q", i, "word word", line)
		}
	}
}

func TestWrapTextSingleOversizedWord(t *testing.T) {
	face := testFace(t, 32)

	lines := WrapText(face, "incomprehensibilities", fixed.I(10))
	if len(lines) != 1 {
		t.Fatalf("Expected one line for a single oversized word, got %d", len(lines))
	}
}

func TestWrapTextEmpty(t *testing.T) {
	face := testFace(t, 32)

	if lines := WrapText(face, "   ", fixed.I(100)); lines != nil {
		t.Errorf("Expected nil lines for blank text, got %v", lines)
	}
}

// textRowBands scans for rows containing pixels of the (pure red) text color
// and groups adjacent rows into bands, one per rendered line.
func textRowBands(img *image.RGBA) [][2]int {
	bounds := img.Bounds()
	var bands [][2]int
	inBand := false
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		found := false
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r > 0xc000 && g < 0x3000 && b < 0x3000 {
				found = true
				break
			}
		}
		if found && !inBand {
			bands = append(bands, [2]int{y, y})
			inBand = true
		} else if found {
			bands[len(bands)-1][1] = y
		} else {
			inBand = false
		}
	}
	return bands
}

func mergeCloseBands(bands [][2]int, gap int) [][2]int {
	var merged [][2]int
	for _, b := range bands {
		if len(merged) > 0 && b[0]-merged[len(merged)-1][1] <= gap {
			merged[len(merged)-1][1] = b[1]
		} else {
			merged = append(merged, b)
		}
	}
	return merged
}

func TestRenderThreeWrappedLines(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	const width, height = 960, 540
	face := testFace(t, BaseFontSize(width))

	// Pick a word count that the wrap limit splits into exactly 3 lines.
	text := "word"
	for len(WrapText(face, text, fixed.I(int(float64(width)*wrapWidthRatio)))) < 3 {
		text += " word"
	}

	anchorY := int(0.45 * height)
	img, err := r.Render(Params{
		Text:      text,
		X:         width / 2,
		Y:         anchorY,
		Alignment: "center",
		Color:     "#ff0000",
	}, width, height)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	bands := mergeCloseBands(textRowBands(img), 4)
	if len(bands) != 3 {
		t.Fatalf("Expected 3 text bands, got %d: %v", len(bands), bands)
	}

	// The block sits centered around the anchor: every band within
	// totalHeight of it.
	lineHeight := BaseFontSize(width) * lineHeightRatio
	total := 3 * lineHeight
	for _, b := range bands {
		if float64(b[0]) < float64(anchorY)-total || float64(b[1]) > float64(anchorY)+total {
			t.Errorf("Band %v too far from anchor Y=%d", b, anchorY)
		}
	}
}

func TestRenderUnderlineAddsBar(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	const width, height = 640, 360
	params := Params{
		Text:      "hello",
		X:         width / 2,
		Y:         height / 2,
		Alignment: "center",
		Color:     "#ff0000",
	}

	plain, err := r.Render(params, width, height)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	params.Underline = true
	underlined, err := r.Render(params, width, height)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	plainBands := mergeCloseBands(textRowBands(plain), 2)
	withBands := mergeCloseBands(textRowBands(underlined), 2)
	if len(withBands) <= len(plainBands) {
		t.Errorf("Expected underline to add a band below the text: plain=%v underlined=%v",
			plainBands, withBands)
	}
}

func TestRenderScrimGradient(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	img, err := r.Render(Params{
		Text:      "hi",
		X:         100,
		Y:         50,
		Alignment: "left",
	}, 320, 240)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	alphaAt := func(y int) uint32 {
		_, _, _, a := img.At(5, y).RGBA()
		return a
	}

	top := alphaAt(0)
	middle := alphaAt(120)
	bottom := alphaAt(239)
	if top <= middle {
		t.Errorf("Expected darker scrim at top than middle: top=%d middle=%d", top, middle)
	}
	if bottom <= middle {
		t.Errorf("Expected darker scrim at bottom than middle: bottom=%d middle=%d", bottom, middle)
	}
}

func TestRenderEmptyTextFails(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	if _, err := r.Render(Params{Text: "  "}, 320, 240); err == nil {
		t.Fatal("Expected error for empty text, got nil")
	}
}

func TestRenderToFile(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	path := t.TempDir() + "/overlay.png"
	err := r.RenderToFile(Params{
		Text:      "saved to disk",
		X:         160,
		Y:         120,
		Alignment: "center",
		Shadow:    true,
	}, 320, 240, path)
	if err != nil {
		t.Fatalf("RenderToFile failed: %v", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen overlay: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Errorf("Expected 320x240, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}
