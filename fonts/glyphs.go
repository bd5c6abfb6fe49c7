package fonts

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// glyphNames covers the Adobe glyph names that appear in Differences arrays
// of Latin documents. Accented letters are composed in glyphText.
var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '\u2019',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "period": '.', "slash": '/', "zero": '0', "one": '1', "two": '2',
	"three": '3', "four": '4', "five": '5', "six": '6', "seven": '7', "eight": '8',
	"nine": '9', "colon": ':', "semicolon": ';', "less": '<', "equal": '=',
	"greater": '>', "question": '?', "at": '@', "bracketleft": '[', "backslash": '\\',
	"bracketright": ']', "asciicircum": '^', "underscore": '_', "grave": '`',
	"quoteleft": '\u2018', "braceleft": '{', "bar": '|', "braceright": '}',
	"asciitilde": '~', "exclamdown": '\u00A1', "cent": '\u00A2', "sterling": '\u00A3',
	"fraction": '\u2044', "yen": '\u00A5', "florin": '\u0192', "section": '\u00A7', "currency": '\u00A4',
	"quotedblleft": '\u201C', "quotedblright": '\u201D', "guillemotleft": '\u00AB',
	"guillemotright": '\u00BB', "guilsinglleft": '\u2039', "guilsinglright": '\u203A',
	"endash": '\u2013', "emdash": '\u2014', "dagger": '\u2020', "daggerdbl": '\u2021',
	"periodcentered": '\u00B7', "paragraph": '\u00B6', "bullet": '\u2022', "quotesinglbase": '\u201A',
	"quotedblbase": '\u201E', "ellipsis": '\u2026', "perthousand": '\u2030', "questiondown": '\u00BF',
	"acute": '\u00B4', "circumflex": '\u02C6', "tilde": '\u02DC', "macron": '\u00AF', "breve": '\u02D8',
	"dotaccent": '\u02D9', "dieresis": '\u00A8', "ring": '\u02DA', "cedilla": '\u00B8',
	"hungarumlaut": '\u02DD', "ogonek": '\u02DB', "caron": '\u02C7', "AE": '\u00C6', "ae": '\u00E6',
	"ordfeminine": '\u00AA', "ordmasculine": '\u00BA', "Lslash": '\u0141', "lslash": '\u0142',
	"Oslash": '\u00D8', "oslash": '\u00F8', "OE": '\u0152', "oe": '\u0153', "germandbls": '\u00DF',
	"dotlessi": '\u0131', "Euro": '\u20AC', "trademark": '\u2122', "copyright": '\u00A9',
	"registered": '\u00AE', "degree": '\u00B0', "plusminus": '\u00B1', "multiply": '\u00D7',
	"divide": '\u00F7', "mu": '\u00B5', "logicalnot": '\u00AC', "brokenbar": '\u00A6',
	"onehalf": '\u00BD', "onequarter": '\u00BC', "threequarters": '\u00BE', "onesuperior": '\u00B9',
	"twosuperior": '\u00B2', "threesuperior": '\u00B3', "Eth": '\u00D0', "eth": '\u00F0',
	"Thorn": '\u00DE', "thorn": '\u00FE', "minus": '\u2212', "nbspace": '\u00A0',
	"sfthyphen": '\u00AD',
}

var ligatures = map[string]string{
	"fi": "fi", "fl": "fl", "ff": "ff", "ffi": "ffi", "ffl": "ffl",
}

var accents = map[string]rune{
	"acute": '\u0301', "grave": '\u0300', "circumflex": '\u0302', "dieresis": '\u0308',
	"tilde": '\u0303', "ring": '\u030A', "cedilla": '\u0327', "caron": '\u030C',
	"macron": '\u0304', "breve": '\u0306', "ogonek": '\u0328', "dotaccent": '\u0307',
	"hungarumlaut": '\u030B',
}

// glyphText maps a glyph name to its text. Unknown names yield "".
func glyphText(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if r, ok := glyphNames[name]; ok {
		return string(r)
	}
	if s, ok := ligatures[name]; ok {
		return s
	}
	if len(name) == 1 {
		c := name[0]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return name
		}
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 && (len(name)-3)%4 == 0 {
		var b strings.Builder
		for i := 3; i < len(name); i += 4 {
			v, err := strconv.ParseUint(name[i:i+4], 16, 32)
			if err != nil {
				return ""
			}
			b.WriteRune(rune(v))
		}
		return b.String()
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return string(rune(v))
		}
	}
	// Accented Latin letters: base letter followed by an accent name.
	if len(name) > 1 {
		base := name[0]
		if (base >= 'A' && base <= 'Z') || (base >= 'a' && base <= 'z') {
			if mark, ok := accents[name[1:]]; ok {
				return norm.NFC.String(string(rune(base)) + string(mark))
			}
		}
	}
	return ""
}
