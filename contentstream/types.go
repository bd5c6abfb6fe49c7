package contentstream

import (
	"strings"

	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// Location identifies the character code that produced a glyph.
type Location struct {
	// Stream is the key of the content stream in Layout.Streams.
	Stream string
	// Op is the operation index within that stream.
	Op int
	// Elem is the element index of a TJ array, 0 for other show operators.
	Elem int
	// Code is the index of the character code within the shown string.
	Code int
}

// Glyph is one shown character code placed in default user space.
type Glyph struct {
	Text string
	// Code holds the bytes of the character code as they appear in the
	// shown string.
	Code   []byte
	Rect   coords.Rect
	Origin coords.Point
	// End is the baseline point where the next glyph would start.
	End coords.Point
	// Size is the font size after text and graphics transforms.
	Size   float64
	Space  bool
	Render TextRenderMode
	Loc    Location
	// Adjust is the TJ displacement, in thousandths of text space units,
	// that advances exactly as far as this glyph does.
	Adjust float64
}

// Center returns the middle of the glyph box.
func (g Glyph) Center() coords.Point {
	return coords.Point{X: (g.Rect.LLX + g.Rect.URX) / 2, Y: (g.Rect.LLY + g.Rect.URY) / 2}
}

// Stream is one parsed content stream: the page content or a form
// XObject drawn from it.
type Stream struct {
	Key string
	// Path lists XObject resource names from the page down to this form.
	// It is empty for the page content.
	Path      []string
	Ref       raw.ObjectRef
	Ops       []Operation
	Resources *raw.DictObj
}

// PageStream is the key of the page's own content.
const PageStream = ""

// StreamKey derives the Layout.Streams key of a form path.
func StreamKey(path []string) string { return strings.Join(path, "\x00") }

// Layout is the traced content of a page.
type Layout struct {
	Glyphs  []Glyph
	Streams map[string]*Stream
}
