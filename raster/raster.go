// Package raster renders PDF pages to images with Poppler's pdftoppm and
// maps pixel positions back to page space.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // pdftoppm output
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
)

// ErrUnavailable is returned when pdftoppm cannot be found.
var ErrUnavailable = errors.New("pdftoppm not available")

// maxSide bounds rendered images; Tesseract rejects larger inputs.
const maxSide = 32000

// Rasterizer renders one page of a PDF.
type Rasterizer interface {
	// Render returns page (zero-based) of pdf at dpi, in display
	// orientation.
	Render(ctx context.Context, pdf []byte, page, dpi int) (image.Image, error)
}

// Poppler runs pdftoppm.
type Poppler struct {
	// Path is a directory holding pdftoppm or the binary itself. Empty
	// searches PATH.
	Path   string
	Logger observability.Logger
}

// NewPoppler returns a Poppler rasteriser.
func NewPoppler(path string, logger observability.Logger) *Poppler {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Poppler{Path: path, Logger: logger}
}

// Binary resolves the pdftoppm executable.
func (p *Poppler) Binary() (string, error) {
	if p.Path == "" {
		bin, err := exec.LookPath("pdftoppm")
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return bin, nil
	}
	bin := p.Path
	if fi, err := os.Stat(bin); err == nil && fi.IsDir() {
		bin = filepath.Join(bin, "pdftoppm")
	}
	if _, err := os.Stat(bin); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return bin, nil
}

// Ready reports whether pdftoppm can be run.
func (p *Poppler) Ready(context.Context) error {
	_, err := p.Binary()
	return err
}

func (p *Poppler) Render(ctx context.Context, pdf []byte, page, dpi int) (image.Image, error) {
	bin, err := p.Binary()
	if err != nil {
		return nil, err
	}
	if dpi <= 0 {
		dpi = 300
	}
	dir, err := os.MkdirTemp("", "redact-raster-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}
	n := strconv.Itoa(page + 1)
	outRoot := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(dpi), "-f", n, "-l", n, "-png", "-singlefile", in, outRoot}
	p.Logger.Debug("executing pdftoppm", observability.Int("page", page+1), observability.Int("dpi", dpi))

	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pdftoppm page %d failed: %w\nOutput: %s", page+1, err, out)
	}

	f, err := os.Open(outRoot + ".png")
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return Fit(img, maxSide), nil
}

// Fit scales img down so neither side exceeds max pixels.
func Fit(img image.Image, max int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return img
	}
	scale := float64(max) / float64(w)
	if h > w {
		scale = float64(max) / float64(h)
	}
	tw, th := int(float64(w)*scale), int(float64(h)*scale)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Flatten converts img to grayscale and back to RGB, dropping colour and
// transparency.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Over)
	rgb := image.NewRGBA(gray.Bounds())
	draw.Copy(rgb, image.Point{}, gray, gray.Bounds(), draw.Src, nil)
	return rgb
}
