package fonts

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// SimpleEncoding maps single-byte codes to text.
type SimpleEncoding [256]string

// standardDiffs lists where Adobe StandardEncoding departs from ASCII.
// Codes above 0x7E that are not listed are undefined.
var standardDiffs = map[byte]string{
	0x27: "quoteright", 0x60: "quoteleft",
	0xA1: "exclamdown", 0xA2: "cent", 0xA3: "sterling", 0xA4: "fraction",
	0xA5: "yen", 0xA6: "florin", 0xA7: "section", 0xA8: "currency",
	0xA9: "quotesingle", 0xAA: "quotedblleft", 0xAB: "guillemotleft",
	0xAC: "guilsinglleft", 0xAD: "guilsinglright", 0xAE: "fi", 0xAF: "fl",
	0xB1: "endash", 0xB2: "dagger", 0xB3: "daggerdbl", 0xB4: "periodcentered",
	0xB6: "paragraph", 0xB7: "bullet", 0xB8: "quotesinglbase",
	0xB9: "quotedblbase", 0xBA: "quotedblright", 0xBB: "guillemotright",
	0xBC: "ellipsis", 0xBD: "perthousand", 0xBF: "questiondown",
	0xC1: "grave", 0xC2: "acute", 0xC3: "circumflex", 0xC4: "tilde",
	0xC5: "macron", 0xC6: "breve", 0xC7: "dotaccent", 0xC8: "dieresis",
	0xCA: "ring", 0xCB: "cedilla", 0xCD: "hungarumlaut", 0xCE: "ogonek",
	0xCF: "caron", 0xD0: "emdash", 0xE1: "AE", 0xE3: "ordfeminine",
	0xE8: "Lslash", 0xE9: "Oslash", 0xEA: "OE", 0xEB: "ordmasculine",
	0xF1: "ae", 0xF5: "dotlessi", 0xF8: "lslash", 0xF9: "oslash", 0xFA: "oe",
	0xFB: "germandbls",
}

// StandardEncoding returns Adobe's StandardEncoding.
func StandardEncoding() SimpleEncoding {
	var e SimpleEncoding
	for c := 0x20; c < 0x7F; c++ {
		e[c] = string(rune(c))
	}
	for c, name := range standardDiffs {
		e[c] = glyphText(name)
	}
	return e
}

// WinAnsiEncoding returns the Windows-1252 based WinAnsiEncoding.
func WinAnsiEncoding() SimpleEncoding { return fromCharmap(charmap.Windows1252) }

// MacRomanEncoding returns MacRomanEncoding.
func MacRomanEncoding() SimpleEncoding { return fromCharmap(charmap.Macintosh) }

func fromCharmap(cm *charmap.Charmap) SimpleEncoding {
	var e SimpleEncoding
	for c := 0x20; c < 256; c++ {
		r := cm.DecodeByte(byte(c))
		if r == 0xFFFD || r == 0x7F {
			continue
		}
		e[c] = string(r)
	}
	return e
}

// NamedEncoding returns a predefined base encoding by its PDF name.
func NamedEncoding(name string) (SimpleEncoding, bool) {
	switch name {
	case "WinAnsiEncoding":
		return WinAnsiEncoding(), true
	case "MacRomanEncoding", "MacExpertEncoding":
		return MacRomanEncoding(), true
	case "StandardEncoding":
		return StandardEncoding(), true
	}
	return SimpleEncoding{}, false
}

// ApplyDifferences overlays a /Differences array: a code followed by the
// glyph names assigned to consecutive codes.
func (e *SimpleEncoding) ApplyDifferences(doc *raw.Document, diffs *raw.ArrayObj) {
	if diffs == nil {
		return
	}
	code := -1
	for _, item := range diffs.Items {
		switch v := doc.Resolve(item).(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				if text := glyphText(v.Val); text != "" {
					e[code] = text
				}
				code++
			}
		}
	}
}
