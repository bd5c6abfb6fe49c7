// Package editor removes glyphs from page content and paints opaque
// covers over the cleared areas.
package editor

import (
	"context"

	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// Editor provides content editing for redaction.
type Editor interface {
	// RemoveRects deletes every glyph that a rectangle covers, from the page
	// content and from the form XObjects it draws, and paints a black
	// rectangle over each area. Shared forms and resource dictionaries are
	// copied before they change, so other pages keep their content.
	RemoveRects(ctx context.Context, page *raw.DictObj, rects []coords.Rect) (Result, error)
}

// Result describes a completed edit.
type Result struct {
	// Removed counts glyph occurrences taken out per rectangle.
	Removed []int
	// Streams lists the keys of the content streams that were rewritten.
	Streams []string
}

// SpatialIndex finds glyphs by area.
type SpatialIndex interface {
	// Query returns the indices of glyphs whose boxes intersect rect.
	Query(rect coords.Rect) []int
}
