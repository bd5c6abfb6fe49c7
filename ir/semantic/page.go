package semantic

import (
	"context"
	"fmt"
	"image"

	"github.com/Peterrvisserr/WOOBARNEVELD/builder"
	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream/editor"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

// Commit applies the queued intents: glyphs under each rectangle are
// removed from the page content and the form XObjects it draws, and an
// opaque cover is painted over each rectangle. The new marks are returned.
// On failure the intents stay queued, which keeps the document from being
// serialised.
func (p *Page) Commit(ctx context.Context) ([]RedactionMark, error) {
	d := p.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, nil
	}
	rects := make([]coords.Rect, len(p.pending))
	for i, in := range p.pending {
		rects[i] = in.Rect
	}
	res, err := editor.NewEditor(d.raw, d.fonts, d.limits).RemoveRects(ctx, p.dict, rects)
	if err != nil {
		return nil, fmt.Errorf("commit page %d: %w", p.Index+1, err)
	}
	marks := make([]RedactionMark, len(p.pending))
	total := 0
	for i, in := range p.pending {
		marks[i] = RedactionMark{Rect: in.Rect, Stage: StageCommitted, Glyphs: res.Removed[i], Source: in.Source}
		total += res.Removed[i]
	}
	p.marks = append(p.marks, marks...)
	p.pending = nil
	d.logger.Debug("redactions committed",
		observability.Int("page", p.Index+1),
		observability.Int("marks", len(marks)),
		observability.Int("glyphs", total),
		observability.Int("streams", len(res.Streams)),
	)
	return marks, nil
}

// ReplaceContent replaces everything drawn on the page by img, scaled to
// the visible area. The page is normalised to an unrotated box of the size
// it was displayed at, so img must be rendered in display orientation.
// Annotations are dropped.
func (p *Page) ReplaceContent(img image.Image) error {
	d := p.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(p.pending) > 0 {
		return fmt.Errorf("page %d: %w", p.Index+1, ErrPendingIntents)
	}
	w, h := p.CropBox.Width(), p.CropBox.Height()
	if p.Rotate == 90 || p.Rotate == 270 {
		w, h = h, w
	}
	box := coords.Rect{URX: w, URY: h}

	imgRef := d.raw.Add(builder.ImageXObject(img))
	xobjects := raw.Dict()
	xobjects.Set("Im0", raw.RefObj{R: imgRef})
	res := raw.Dict()
	res.Set("XObject", xobjects)

	dict := p.dict
	dict.Set("MediaBox", raw.Rect(box.LLX, box.LLY, box.URX, box.URY))
	dict.Set("CropBox", raw.Rect(box.LLX, box.LLY, box.URX, box.URY))
	dict.Set("Rotate", raw.NumberInt(0))
	dict.Set("Resources", res)
	for _, key := range []string{"TrimBox", "BleedBox", "ArtBox", "Annots", "Thumb", "PieceInfo"} {
		dict.Delete(key)
	}
	content := fmt.Sprintf("q %s 0 0 %s 0 0 cm /Im0 Do Q\n", writer.FormatNumber(w), writer.FormatNumber(h))
	editor.ReplaceContents(d.raw, dict, []byte(content))

	p.MediaBox, p.CropBox, p.Rotate = box, box, 0
	p.rasterized = true
	d.logger.Debug("page content replaced by image",
		observability.Int("page", p.Index+1),
		observability.Int("width", img.Bounds().Dx()),
		observability.Int("height", img.Bounds().Dy()),
	)
	return nil
}
