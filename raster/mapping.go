package raster

import "github.com/Peterrvisserr/WOOBARNEVELD/coords"

// PixelMapping converts positions in a rendered page image (origin top
// left, y down) to default user space of the page.
type PixelMapping struct {
	crop   coords.Rect
	rotate int
	sx, sy float64
}

// NewPixelMapping describes an image of w by h pixels showing crop under
// rotate degrees of page rotation.
func NewPixelMapping(crop coords.Rect, rotate, w, h int) PixelMapping {
	pw, ph := crop.Width(), crop.Height()
	if rotate == 90 || rotate == 270 {
		pw, ph = ph, pw
	}
	m := PixelMapping{crop: crop, rotate: rotate, sx: 1, sy: 1}
	if w > 0 && pw > 0 {
		m.sx = pw / float64(w)
	}
	if h > 0 && ph > 0 {
		m.sy = ph / float64(h)
	}
	return m
}

// Point maps a pixel position.
func (m PixelMapping) Point(px, py float64) coords.Point {
	dx, dy := px*m.sx, py*m.sy
	c := m.crop
	switch m.rotate {
	case 90:
		return coords.Point{X: c.LLX + dy, Y: c.LLY + dx}
	case 180:
		return coords.Point{X: c.URX - dx, Y: c.LLY + dy}
	case 270:
		return coords.Point{X: c.URX - dy, Y: c.URY - dx}
	default:
		return coords.Point{X: c.LLX + dx, Y: c.URY - dy}
	}
}

// Rect maps a pixel rectangle given by its top-left corner and size.
func (m PixelMapping) Rect(x, y, w, h float64) coords.Rect {
	a := m.Point(x, y)
	b := m.Point(x+w, y+h)
	return coords.NewRect(a.X, a.Y, b.X, b.Y)
}
