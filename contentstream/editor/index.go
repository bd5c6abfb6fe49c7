package editor

import (
	"sort"

	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
)

// minCoverage is the share of a glyph's area a rectangle must cover for
// the glyph to count as hit when its center lies outside.
const minCoverage = 0.5

// GlyphIndex indexes traced glyphs by their boxes.
type GlyphIndex struct {
	tree   *QuadTree
	glyphs []contentstream.Glyph
}

func NewGlyphIndex(glyphs []contentstream.Glyph) *GlyphIndex {
	var bounds coords.Rect
	for _, g := range glyphs {
		bounds = bounds.Union(g.Rect.Inset(1))
	}
	idx := &GlyphIndex{tree: NewQuadTree(bounds, 16), glyphs: glyphs}
	for i, g := range glyphs {
		idx.tree.Insert(g.Rect, i)
	}
	return idx
}

// Query returns glyph indices whose boxes intersect rect, ascending.
func (idx *GlyphIndex) Query(rect coords.Rect) []int {
	found := idx.tree.Query(rect)
	sort.Ints(found)
	return found
}

// Hits returns the glyphs rect removes: those whose center lies in rect or
// whose area rect covers for the most part.
func (idx *GlyphIndex) Hits(rect coords.Rect) []int {
	var out []int
	for _, i := range idx.Query(rect) {
		if covers(rect, idx.glyphs[i].Rect) {
			out = append(out, i)
		}
	}
	return out
}

func covers(rect, box coords.Rect) bool {
	center := coords.Point{X: (box.LLX + box.URX) / 2, Y: (box.LLY + box.URY) / 2}
	if rect.Contains(center) {
		return true
	}
	area := box.Width() * box.Height()
	if area <= 0 {
		return false
	}
	in := rect.Intersect(box)
	return in.Width()*in.Height() >= minCoverage*area
}
