package tesseract

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Peterrvisserr/WOOBARNEVELD/ocr"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestTesseractEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("Hello PDF")

	in, err := ocr.InputFromImage(img, 0, ocr.WithLanguages("eng"), ocr.WithDPI(300))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	engine := New()
	if err := engine.Ready(context.Background(), "eng"); err != nil {
		t.Skipf("tesseract not usable: %v", err)
	}
	res, err := engine.Recognize(context.Background(), in)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	got := strings.ToLower(res.PlainText)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "pdf") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if len(res.Words()) == 0 {
		t.Fatalf("expected word boxes")
	}
	if res.InputID != "page-0" {
		t.Fatalf("unexpected input id: %s", res.InputID)
	}
}

func TestReadyRejectsMissingLanguage(t *testing.T) {
	ensureTesseractAvailable(t)
	if err := New().Ready(context.Background(), "no-such-language"); err == nil {
		t.Fatalf("expected error for missing trained data")
	}
}

func TestGroup(t *testing.T) {
	box := func(word string, x, block, par, line int) gosseract.BoundingBox {
		return gosseract.BoundingBox{
			Box:        image.Rect(x, 10*line, x+20, 10*line+8),
			Word:       word,
			Confidence: 90,
			BlockNum:   block,
			ParNum:     par,
			LineNum:    line,
		}
	}
	blocks := group([]gosseract.BoundingBox{
		box("Jan", 0, 1, 1, 1),
		box("Jansen", 30, 1, 1, 1),
		box("Kerkstraat", 0, 1, 1, 2),
		box(" ", 40, 1, 1, 2),
		box("Barneveld", 0, 2, 1, 1),
	})
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if len(blocks[0].Lines) != 2 || len(blocks[0].Lines[0].Words) != 2 || len(blocks[1].Lines) != 1 {
		t.Fatalf("unexpected grouping %+v", blocks)
	}
	if got := blocks[0].Lines[0].Bounds; got != (ocr.Region{X: 0, Y: 10, Width: 50, Height: 8}) {
		t.Fatalf("unexpected line bounds %+v", got)
	}
	if got := blocks[0].Bounds; got != (ocr.Region{X: 0, Y: 10, Width: 50, Height: 18}) {
		t.Fatalf("unexpected block bounds %+v", got)
	}
	if w := blocks[1].Lines[0].Words[0]; w.Text != "Barneveld" || w.Confidence != 0.9 {
		t.Fatalf("unexpected word %+v", w)
	}
}
