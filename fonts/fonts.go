// Package fonts decodes PDF font dictionaries far enough to turn shown
// strings into text and glyph advances: ToUnicode CMaps, simple encodings
// with Differences, composite Identity-H fonts and width tables.
package fonts

import (
	"context"
	"fmt"
	"sync"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// Font is the decoding view of a font resource.
type Font struct {
	BaseFont string
	Subtype  string
	// Ascent and Descent in glyph space units (1/1000 em).
	Ascent, Descent float64

	composite    bool
	encoding     SimpleEncoding
	toUnicode    *CMap
	codes        *CMap // embedded encoding CMap of a composite font
	widths       map[int]float64
	defaultWidth float64
	face         standardFace
	hasWidths    bool
}

// Code is one character code of a shown string.
type Code struct {
	Bytes []byte
	Text  string
	// Width is the horizontal displacement in glyph space units.
	Width float64
	// WordSpace is set for the single-byte code 32, the only code word
	// spacing applies to.
	WordSpace bool
}

// Codes splits a shown string into character codes.
func (f *Font) Codes(s []byte) []Code {
	var parts [][]byte
	switch {
	case f.composite && f.codes != nil && f.codes.HasCodespace():
		parts = f.codes.Split(s)
	case f.composite:
		for i := 0; i < len(s); i += 2 {
			end := i + 2
			if end > len(s) {
				end = len(s)
			}
			parts = append(parts, s[i:end])
		}
	default:
		for i := range s {
			parts = append(parts, s[i:i+1])
		}
	}
	out := make([]Code, 0, len(parts))
	for _, p := range parts {
		text := f.text(p)
		out = append(out, Code{
			Bytes:     p,
			Text:      text,
			Width:     f.width(p, text),
			WordSpace: len(p) == 1 && p[0] == ' ',
		})
	}
	return out
}

// Text decodes a shown string to Unicode.
func (f *Font) Text(s []byte) string {
	var out []byte
	for _, c := range f.Codes(s) {
		out = append(out, c.Text...)
	}
	return string(out)
}

func (f *Font) text(code []byte) string {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.Lookup(code); ok {
			return s
		}
	}
	if f.composite {
		return "\uFFFD"
	}
	return f.encoding[code[0]]
}

func (f *Font) width(code []byte, text string) float64 {
	if f.composite {
		cid := bytesToInt(code)
		if f.codes != nil {
			if c, ok := f.codes.CID(code); ok {
				cid = c
			}
		}
		if w, ok := f.widths[cid]; ok {
			return w
		}
		return f.defaultWidth
	}
	if w, ok := f.widths[int(code[0])]; ok {
		return w
	}
	if f.hasWidths && f.defaultWidth > 0 {
		return f.defaultWidth
	}
	return f.face.width(text)
}

// Fallback returns Helvetica with StandardEncoding, used when a content
// stream shows text without a resolvable font.
func Fallback() *Font {
	f := &Font{BaseFont: "Helvetica", Subtype: "Type1", encoding: StandardEncoding(), face: faceHelvetica}
	f.Ascent, f.Descent = f.face.ascent, f.face.descent
	return f
}

// Load decodes a font dictionary.
func Load(ctx context.Context, doc *raw.Document, obj raw.Object, limits filters.Limits) (*Font, error) {
	dict, ok := doc.ResolveDict(obj)
	if !ok {
		return nil, fmt.Errorf("font is not a dictionary")
	}
	f := &Font{widths: make(map[int]float64)}
	f.Subtype, _ = dict.Name("Subtype")
	f.BaseFont, _ = dict.Name("BaseFont")
	f.face = standardFaceFor(f.BaseFont)
	f.Ascent, f.Descent = f.face.ascent, f.face.descent
	pipeline := filters.DefaultPipeline(limits)

	if tu, ok := dict.Get("ToUnicode"); ok {
		if st, ok := doc.ResolveStream(tu); ok {
			data, err := pipeline.DecodeStream(ctx, doc, st)
			if err != nil {
				return nil, fmt.Errorf("decode ToUnicode: %w", err)
			}
			f.toUnicode = ParseCMap(data)
		}
	}

	descriptorHolder := dict
	if f.Subtype == "Type0" {
		f.composite = true
		f.defaultWidth = 1000
		if enc, ok := dict.Get("Encoding"); ok {
			if st, ok := doc.ResolveStream(enc); ok {
				data, err := pipeline.DecodeStream(ctx, doc, st)
				if err != nil {
					return nil, fmt.Errorf("decode encoding CMap: %w", err)
				}
				f.codes = ParseCMap(data)
			}
		}
		if arr, ok := doc.ResolveArray(dictValue(dict, "DescendantFonts")); ok && len(arr.Items) > 0 {
			if desc, ok := doc.ResolveDict(arr.Items[0]); ok {
				descriptorHolder = desc
				if dw, ok := doc.ResolveNumber(dictValue(desc, "DW")); ok {
					f.defaultWidth = dw
				}
				if w, ok := doc.ResolveArray(dictValue(desc, "W")); ok {
					f.readCIDWidths(doc, w)
				}
			}
		}
	} else {
		f.loadSimple(doc, dict)
	}

	if fd, ok := doc.ResolveDict(dictValue(descriptorHolder, "FontDescriptor")); ok {
		if a, ok := doc.ResolveNumber(dictValue(fd, "Ascent")); ok && a > 0 {
			f.Ascent = a
		}
		if d, ok := doc.ResolveNumber(dictValue(fd, "Descent")); ok && d < 0 {
			f.Descent = d
		}
		if !f.composite {
			if mw, ok := doc.ResolveNumber(dictValue(fd, "MissingWidth")); ok && mw > 0 {
				f.defaultWidth = mw
			}
		}
	}
	return f, nil
}

func (f *Font) loadSimple(doc *raw.Document, dict *raw.DictObj) {
	f.encoding = StandardEncoding()
	if f.Subtype == "TrueType" {
		f.encoding = WinAnsiEncoding()
	}
	switch enc := doc.Resolve(dictValue(dict, "Encoding")).(type) {
	case raw.NameObj:
		if e, ok := NamedEncoding(enc.Val); ok {
			f.encoding = e
		}
	case *raw.DictObj:
		if base, ok := enc.Name("BaseEncoding"); ok {
			if e, ok := NamedEncoding(base); ok {
				f.encoding = e
			}
		}
		if diffs, ok := doc.ResolveArray(dictValue(enc, "Differences")); ok {
			f.encoding.ApplyDifferences(doc, diffs)
		}
	}
	// Type3 widths are in the font's own glyph space.
	scale := 1.0
	if f.Subtype == "Type3" {
		if fm, ok := doc.ResolveArray(dictValue(dict, "FontMatrix")); ok && len(fm.Items) == 6 {
			if a, ok := doc.ResolveNumber(fm.Items[0]); ok && a != 0 {
				scale = a * 1000
			}
		}
	}
	first, _ := doc.ResolveNumber(dictValue(dict, "FirstChar"))
	if widths, ok := doc.ResolveArray(dictValue(dict, "Widths")); ok {
		f.hasWidths = true
		for i, item := range widths.Items {
			if w, ok := doc.ResolveNumber(item); ok {
				f.widths[int(first)+i] = w * scale
			}
		}
	}
}

// readCIDWidths reads a /W array: "c [w1 w2 ...]" or "cfirst clast w".
func (f *Font) readCIDWidths(doc *raw.Document, w *raw.ArrayObj) {
	items := w.Items
	for i := 0; i < len(items); {
		first, ok := doc.ResolveNumber(items[i])
		if !ok || i+1 >= len(items) {
			return
		}
		if list, ok := doc.ResolveArray(items[i+1]); ok {
			for j, it := range list.Items {
				if v, ok := doc.ResolveNumber(it); ok {
					f.widths[int(first)+j] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		last, _ := doc.ResolveNumber(items[i+1])
		v, _ := doc.ResolveNumber(items[i+2])
		for c := int(first); c <= int(last) && c-int(first) < maxRangeSpan; c++ {
			f.widths[c] = v
		}
		i += 3
	}
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

// Cache shares decoded fonts between pages. It is safe for concurrent use.
type Cache struct {
	doc    *raw.Document
	limits filters.Limits
	mu     sync.Mutex
	fonts  map[raw.ObjectRef]*Font
}

func NewCache(doc *raw.Document, limits filters.Limits) *Cache {
	return &Cache{doc: doc, limits: limits, fonts: make(map[raw.ObjectRef]*Font)}
}

// Font returns the decoded font for a resource entry. Direct font
// dictionaries are decoded on every call.
func (c *Cache) Font(ctx context.Context, obj raw.Object) (*Font, error) {
	ref, isRef := obj.(raw.RefObj)
	if !isRef {
		return Load(ctx, c.doc, obj, c.limits)
	}
	c.mu.Lock()
	if f, ok := c.fonts[ref.R]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()
	f, err := Load(ctx, c.doc, obj, c.limits)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.fonts[ref.R] = f
	c.mu.Unlock()
	return f, nil
}
