package fonts

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Widths of the printable ASCII range (0x20-0x7E) for the base-14 faces
// documents most often use without embedding metrics.
var helveticaASCII = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 222, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	222, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var timesASCII = [95]float64{
	250, 333, 408, 500, 500, 833, 778, 333, 333, 333, 500, 564, 250, 333, 250, 278,
	500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
	921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
	556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
	333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
	500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
}

type standardFace struct {
	ascii           *[95]float64
	fixed           float64
	fallback        float64
	ascent, descent float64
}

var (
	faceHelvetica = standardFace{ascii: &helveticaASCII, fallback: 556, ascent: 718, descent: -207}
	faceTimes     = standardFace{ascii: &timesASCII, fallback: 500, ascent: 683, descent: -217}
	faceCourier   = standardFace{fixed: 600, ascent: 629, descent: -157}
)

// standardFaceFor picks metrics by base font name. Subset prefixes and
// style suffixes are ignored; unknown faces use Helvetica.
func standardFaceFor(baseFont string) standardFace {
	if i := strings.IndexByte(baseFont, '+'); i == 6 {
		baseFont = baseFont[i+1:]
	}
	lower := strings.ToLower(baseFont)
	switch {
	case strings.Contains(lower, "courier") || strings.Contains(lower, "mono"):
		return faceCourier
	case strings.Contains(lower, "times") || (strings.Contains(lower, "serif") && !strings.Contains(lower, "sans")):
		return faceTimes
	default:
		return faceHelvetica
	}
}

func (f standardFace) width(text string) float64 {
	if f.fixed > 0 {
		return f.fixed
	}
	if text == "" {
		return f.fallback
	}
	// Accented letters take the width of their base letter.
	r := []rune(norm.NFD.String(text))[0]
	if r >= 0x20 && r < 0x7F {
		return f.ascii[r-0x20]
	}
	return f.fallback
}

// StandardWidth returns the advance of text's first rune in the base-14
// face matching baseFont, in thousandths of an em.
func StandardWidth(baseFont, text string) float64 {
	return standardFaceFor(baseFont).width(text)
}
