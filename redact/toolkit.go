package redact

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/Peterrvisserr/WOOBARNEVELD/acquire"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/extractor"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/semantic"
	"github.com/Peterrvisserr/WOOBARNEVELD/raster"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

// ErrNoRasterizer is returned when rasterisation is requested without a
// renderer.
var ErrNoRasterizer = errors.New("no rasterizer configured")

// Toolkit is the set of document operations redaction is built from.
type Toolkit struct {
	rasterizer raster.Rasterizer
}

// NewToolkit returns a toolkit. r may be nil when pages are never
// rasterised.
func NewToolkit(r raster.Rasterizer) *Toolkit {
	return &Toolkit{rasterizer: r}
}

// ExtractText returns the native text of page.
func (t *Toolkit) ExtractText(ctx context.Context, page *semantic.Page) (string, error) {
	return acquire.NativeText(ctx, page.Document(), page.Index)
}

// TextLayer traces the native text layer of page.
func (t *Toolkit) TextLayer(ctx context.Context, page *semantic.Page) (*extractor.TextLayer, error) {
	doc := page.Document()
	var layer *extractor.TextLayer
	err := doc.WithRead(func(r *raw.Document) error {
		ex, err := extractor.New(r, extractor.WithFontCache(doc.Fonts()), extractor.WithLimits(doc.Limits()))
		if err != nil {
			return err
		}
		layer, err = ex.PageLayer(ctx, page.Dict())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("page %d text layer: %w", page.Index+1, err)
	}
	return layer, nil
}

// SearchText returns one rectangle per line of every occurrence of literal
// in the native text layer of page.
func (t *Toolkit) SearchText(ctx context.Context, page *semantic.Page, literal string) ([]coords.Rect, error) {
	layer, err := t.TextLayer(ctx, page)
	if err != nil {
		return nil, err
	}
	return layer.Search(literal), nil
}

// Cover is one box to redact and where its geometry came from.
type Cover struct {
	Rect   coords.Rect
	Source semantic.MarkSource
}

// CommitRedaction registers an intent for every cover and commits them in
// one pass.
func (t *Toolkit) CommitRedaction(ctx context.Context, page *semantic.Page, covers []Cover) ([]semantic.RedactionMark, error) {
	for _, c := range covers {
		page.AddIntent(c.Rect, c.Source)
	}
	return page.Commit(ctx)
}

// Rasterize renders page as the document currently stands.
func (t *Toolkit) Rasterize(ctx context.Context, page *semantic.Page, dpi int) (image.Image, error) {
	pdf, err := page.Document().Bytes(ctx, writer.Config{})
	if err != nil {
		return nil, err
	}
	return t.Render(ctx, pdf, page.Index, dpi)
}

// Render renders page index of an already serialised document.
func (t *Toolkit) Render(ctx context.Context, pdf []byte, index, dpi int) (image.Image, error) {
	if t.rasterizer == nil {
		return nil, ErrNoRasterizer
	}
	img, err := t.rasterizer.Render(ctx, pdf, index, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", index+1, err)
	}
	return img, nil
}

// ReplacePageContent flattens img to grey on white and makes it the only
// content of page.
func (t *Toolkit) ReplacePageContent(page *semantic.Page, img image.Image) error {
	return page.ReplaceContent(raster.Flatten(img))
}
