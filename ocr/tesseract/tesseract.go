// Package tesseract provides the Tesseract OCR engine through gosseract.
// Importing it registers the engine as ocr.DefaultEngine.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Peterrvisserr/WOOBARNEVELD/ocr"
)

func init() {
	ocr.SetDefaultEngine(New())
}

// Engine recognises rendered pages with libtesseract. Each call uses its
// own client, so one Engine serves concurrent page workers.
type Engine struct {
	newClient func() *gosseract.Client
}

// New returns a Tesseract engine.
func New() *Engine {
	return &Engine{newClient: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Ready verifies that the Tesseract library is linked and that trained
// data for every requested language is installed.
func (e *Engine) Ready(ctx context.Context, languages ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if gosseract.Version() == "" {
		return errors.New("tesseract library unavailable")
	}
	if len(languages) == 0 {
		return nil
	}
	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("list tesseract languages: %w", err)
	}
	for _, lang := range languages {
		if !slices.Contains(available, lang) {
			return fmt.Errorf("tesseract language %q not installed", lang)
		}
	}
	return nil
}

// Recognize runs OCR over one page image and returns its text with word
// boxes grouped by block and line.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.newClient()
	defer c.Close()

	if err := configure(c, in); err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("word boxes: %w", err)
	}
	return ocr.Result{
		InputID:   in.ID,
		PlainText: strings.TrimSpace(text),
		Blocks:    group(boxes),
	}, nil
}

func configure(c *gosseract.Client, in ocr.Input) error {
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", fmt.Sprint(in.DPI)); err != nil {
			return fmt.Errorf("set dpi: %w", err)
		}
	}
	if in.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(in.PageSegMode)); err != nil {
			return fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if in.Whitelist != "" {
		if err := c.SetWhitelist(in.Whitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
	}
	return nil
}

type lineKey struct{ block, par, line int }

// group turns Tesseract's word-level boxes into blocks and lines. Boxes
// arrive in reading order; a paragraph change starts a new block.
func group(boxes []gosseract.BoundingBox) []ocr.TextBlock {
	var blocks []ocr.TextBlock
	var last lineKey
	for i, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		w := ocr.TextWord{
			Text: b.Word,
			Bounds: ocr.Region{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
			Confidence: b.Confidence / 100,
		}
		key := lineKey{b.BlockNum, b.ParNum, b.LineNum}
		switch {
		case i == 0 || len(blocks) == 0 || key.block != last.block || key.par != last.par:
			blocks = append(blocks, ocr.TextBlock{Lines: []ocr.TextLine{{}}})
		case key.line != last.line:
			blk := &blocks[len(blocks)-1]
			blk.Lines = append(blk.Lines, ocr.TextLine{})
		}
		last = key
		blk := &blocks[len(blocks)-1]
		line := &blk.Lines[len(blk.Lines)-1]
		line.Words = append(line.Words, w)
		line.Bounds = line.Bounds.Union(w.Bounds)
		blk.Bounds = blk.Bounds.Union(w.Bounds)
	}
	return blocks
}
