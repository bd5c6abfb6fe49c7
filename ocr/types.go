package ocr

import "context"

// Region is a pixel rectangle with its origin at the top-left corner of
// the rendered page.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has no area.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest region covering r and o. Empty regions are
// ignored.
func (r Region) Union(o Region) Region {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1 := max(r.X+r.Width, o.X+o.Width)
	y1 := max(r.Y+r.Height, o.Y+o.Height)
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Input is one rendered page submitted for recognition.
type Input struct {
	// ID is echoed in the Result; InputFromImage sets it to "page-N".
	ID string
	// Image is the PNG encoded page.
	Image []byte
	// PageIndex is the zero-based page the image was rendered from.
	PageIndex int
	// DPI is the render resolution, zero when unknown.
	DPI int
	// Languages lists the trained-data names to recognise with, e.g. "nld".
	Languages []string
	// PageSegMode selects the engine's page segmentation mode; zero keeps
	// the engine default.
	PageSegMode int
	// Whitelist restricts recognition to these characters when non-empty.
	Whitelist string
}

// TextWord is a recognised word with its pixel box. Confidence is in [0,1].
type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// TextLine holds the words of one recognised line in reading order.
type TextLine struct {
	Bounds Region
	Words  []TextWord
}

// TextBlock is a paragraph-level group of lines.
type TextBlock struct {
	Bounds Region
	Lines  []TextLine
}

// Result is the recognition output for one Input.
type Result struct {
	InputID   string
	PlainText string
	Blocks    []TextBlock
}

// Words flattens the recognised words of every block and line in reading
// order.
func (r Result) Words() []TextWord {
	var out []TextWord
	for _, b := range r.Blocks {
		for _, l := range b.Lines {
			out = append(out, l.Words...)
		}
	}
	return out
}

// Engine recognises the text of a rendered page.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// ReadinessChecker is implemented by engines that can verify their native
// dependencies before any page is processed.
type ReadinessChecker interface {
	Ready(ctx context.Context, languages ...string) error
}
