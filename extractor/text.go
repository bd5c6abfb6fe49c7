package extractor

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
)

// Thresholds relative to the font size of the glyphs involved.
const (
	lineBreakFactor = 0.5
	wordGapFactor   = 0.15
	backJumpFactor  = 0.5
)

// TextLayer is the text of a page in content order, with every rune tied
// back to the glyph that produced it.
type TextLayer struct {
	Glyphs []contentstream.Glyph

	runes []rune
	owner []int // glyph index per rune, -1 for inserted separators
	line  []int // line number per glyph
}

// NewTextLayer joins glyphs into text. Spaces are inserted where glyphs
// on one baseline are visibly apart and newlines where the baseline moves.
func NewTextLayer(glyphs []contentstream.Glyph) *TextLayer {
	l := &TextLayer{Glyphs: glyphs, line: make([]int, len(glyphs))}
	prev := -1
	lineNo := 0
	for i, g := range glyphs {
		if g.Text == "" {
			l.line[i] = lineNo
			continue
		}
		if prev >= 0 {
			switch separator(glyphs[prev], g) {
			case '\n':
				lineNo++
				l.emit('\n', -1)
			case ' ':
				if !l.endsWithSpace() && !g.Space {
					l.emit(' ', -1)
				}
			}
		}
		l.line[i] = lineNo
		for _, r := range g.Text {
			l.emit(r, i)
		}
		prev = i
	}
	return l
}

func (l *TextLayer) emit(r rune, owner int) {
	l.runes = append(l.runes, r)
	l.owner = append(l.owner, owner)
}

func (l *TextLayer) endsWithSpace() bool {
	n := len(l.runes)
	return n > 0 && unicode.IsSpace(l.runes[n-1])
}

// separator decides what goes between two consecutive glyphs: 0, ' ' or '\n'.
func separator(p, g contentstream.Glyph) rune {
	ux, uy := p.End.X-p.Origin.X, p.End.Y-p.Origin.Y
	if n := math.Hypot(ux, uy); n > 1e-9 {
		ux, uy = ux/n, uy/n
	} else {
		ux, uy = 1, 0
	}
	dx, dy := g.Origin.X-p.End.X, g.Origin.Y-p.End.Y
	along := dx*ux + dy*uy
	perp := ux*dy - uy*dx
	h := math.Max(math.Max(p.Size, g.Size), 1)
	switch {
	case math.Abs(perp) > lineBreakFactor*h:
		return '\n'
	case along > wordGapFactor*h, along < -backJumpFactor*h:
		return ' '
	}
	return 0
}

// Text returns the page text in NFC form.
func (l *TextLayer) Text() string { return norm.NFC.String(string(l.runes)) }

// Search finds every occurrence of literal and returns one rectangle per
// line the occurrence touches. Matching ignores whitespace and case and
// compares NFC forms.
func (l *TextLayer) Search(literal string) []coords.Rect {
	needle := foldKey(literal)
	if len(needle) == 0 {
		return nil
	}
	hay, owners := l.searchKey()
	var out []coords.Rect
	for i := 0; i+len(needle) <= len(hay); {
		if !runesEqual(hay[i:i+len(needle)], needle) {
			i++
			continue
		}
		out = append(out, l.matchRects(owners[i:i+len(needle)])...)
		i += len(needle)
	}
	return out
}

// Contains reports whether literal occurs in the layer under the same
// matching rules as Search.
func (l *TextLayer) Contains(literal string) bool { return len(l.Search(literal)) > 0 }

func (l *TextLayer) matchRects(owners []int) []coords.Rect {
	var out []coords.Rect
	curLine := -1
	var cur coords.Rect
	seen := make(map[int]bool)
	for _, gi := range owners {
		if gi < 0 || seen[gi] {
			continue
		}
		seen[gi] = true
		g := l.Glyphs[gi]
		if l.line[gi] != curLine {
			if curLine >= 0 && !cur.Empty() {
				out = append(out, cur)
			}
			curLine = l.line[gi]
			cur = coords.Rect{}
		}
		cur = cur.Union(g.Rect)
	}
	if !cur.Empty() {
		out = append(out, cur)
	}
	return out
}

// searchKey returns the folded, whitespace-free rune sequence of the
// layer with the glyph owning each rune.
func (l *TextLayer) searchKey() ([]rune, []int) {
	text := string(l.runes)
	byteOwner := make([]int, 0, len(text))
	for i, r := range l.runes {
		for n := len(string(r)); n > 0; n-- {
			byteOwner = append(byteOwner, l.owner[i])
		}
	}
	var keys []rune
	var owners []int
	var it norm.Iter
	it.InitString(norm.NFC, text)
	for !it.Done() {
		start := it.Pos()
		seg := it.Next()
		owner := -1
		for p := start; p < it.Pos() && p < len(byteOwner); p++ {
			if byteOwner[p] >= 0 {
				owner = byteOwner[p]
				break
			}
		}
		for _, r := range string(seg) {
			if unicode.IsSpace(r) {
				continue
			}
			keys = append(keys, unicode.ToLower(r))
			owners = append(owners, owner)
		}
	}
	return keys, owners
}

func foldKey(s string) []rune {
	var out []rune
	for _, r := range norm.NFC.String(s) {
		if unicode.IsSpace(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Normalize returns the NFC form of s with whitespace runs collapsed to
// single spaces, the form detection and search agree on.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
