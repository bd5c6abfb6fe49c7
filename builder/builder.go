// Package builder assembles small PDF documents from text, rectangles and
// images. Tests use it to produce fixtures with known geometry.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"

	"golang.org/x/text/encoding/charmap"

	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/fonts"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetInfo(info Info) PDFBuilder
	SetMetadata(xmp []byte) PDFBuilder
	Build() (*raw.Document, error)
	Bytes(ctx context.Context) ([]byte, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawImage(img image.Image, x, y, width, height float64) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	SetCropBox(box coords.Rect) PageBuilder
	SetRotation(degrees int) PageBuilder
	Finish() PDFBuilder
}

// Info fills the document information dictionary.
type Info struct {
	Title  string
	Author string
}

// TextOptions configures text drawing.
type TextOptions struct {
	// Font is a base-14 font name. Empty means Helvetica.
	Font        string
	FontSize    float64
	Color       Color
	RenderMode  contentstream.TextRenderMode
	CharSpacing float64
	WordSpacing float64
	// WordGap, when set, replaces spaces by TJ displacements of this many
	// thousandths of an em, the way typesetters emit justified text.
	WordGap float64
	// Composite shows the text through a Type0 Identity-H font with a
	// ToUnicode map instead of a WinAnsi simple font.
	Composite bool
	// InForm draws the text inside a form XObject.
	InForm bool
}

// RectOptions configures rectangle drawing.
type RectOptions struct {
	Fill Color
}

// Color is an RGB color with components in [0,1].
type Color struct {
	R, G, B float64
}

type fontKey struct {
	base      string
	composite bool
}

type builderImpl struct {
	pages    []*pageBuilderImpl
	info     *Info
	metadata []byte
	fonts    map[fontKey]string
	runes    map[fontKey]map[rune]bool
}

type pageBuilderImpl struct {
	parent   *builderImpl
	width    float64
	height   float64
	cropBox  *coords.Rect
	rotation int
	ops      []contentstream.Operation
	fonts    map[string]fontKey
	images   map[string]image.Image
	forms    map[string]form
}

type form struct {
	ops   []contentstream.Operation
	fonts map[string]fontKey
}

// NewBuilder returns an empty document builder.
func NewBuilder() PDFBuilder {
	return &builderImpl{fonts: make(map[fontKey]string), runes: make(map[fontKey]map[rune]bool)}
}

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &pageBuilderImpl{
		parent: b, width: w, height: h,
		fonts:  make(map[string]fontKey),
		images: make(map[string]image.Image),
		forms:  make(map[string]form),
	}
	b.pages = append(b.pages, p)
	return p
}

func (b *builderImpl) SetInfo(info Info) PDFBuilder {
	b.info = &info
	return b
}

func (b *builderImpl) SetMetadata(xmp []byte) PDFBuilder {
	b.metadata = append([]byte(nil), xmp...)
	return b
}

func (b *builderImpl) fontName(key fontKey) string {
	if name, ok := b.fonts[key]; ok {
		return name
	}
	name := fmt.Sprintf("F%d", len(b.fonts)+1)
	b.fonts[key] = name
	b.runes[key] = make(map[rune]bool)
	return name
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	key := fontKey{base: opts.Font, composite: opts.Composite}
	if key.base == "" {
		key.base = "Helvetica"
	}
	name := p.parent.fontName(key)
	for _, r := range text {
		p.parent.runes[key][r] = true
	}
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	var ops []contentstream.Operation
	ops = append(ops, op("BT"), op("Tf", raw.NameLiteral(name), num(size)))
	if opts.CharSpacing != 0 {
		ops = append(ops, op("Tc", num(opts.CharSpacing)))
	}
	if opts.WordSpacing != 0 {
		ops = append(ops, op("Tw", num(opts.WordSpacing)))
	}
	if opts.RenderMode != contentstream.TextFill {
		ops = append(ops, op("Tr", num(float64(opts.RenderMode))))
	}
	if opts.Color != (Color{}) {
		ops = append(ops, op("rg", num(opts.Color.R), num(opts.Color.G), num(opts.Color.B)))
	}
	ops = append(ops, op("Td", num(x), num(y)))
	if opts.WordGap != 0 {
		arr := raw.NewArray()
		for i, word := range splitWords(text) {
			if i > 0 {
				arr.Append(num(opts.WordGap))
			}
			arr.Append(encodeText(word, key))
		}
		ops = append(ops, op("TJ", arr))
	} else {
		ops = append(ops, op("Tj", encodeText(text, key)))
	}
	ops = append(ops, op("ET"))

	if opts.InForm {
		fname := fmt.Sprintf("Fm%d", len(p.forms)+1)
		p.forms[fname] = form{ops: ops, fonts: map[string]fontKey{name: key}}
		p.ops = append(p.ops, op("q"), op("Do", raw.NameLiteral(fname)), op("Q"))
		return p
	}
	p.fonts[name] = key
	p.ops = append(p.ops, ops...)
	return p
}

func (p *pageBuilderImpl) DrawImage(img image.Image, x, y, width, height float64) PageBuilder {
	name := fmt.Sprintf("Im%d", len(p.images)+1)
	p.images[name] = img
	p.ops = append(p.ops,
		op("q"),
		op("cm", num(width), num(0), num(0), num(height), num(x), num(y)),
		op("Do", raw.NameLiteral(name)),
		op("Q"),
	)
	return p
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	c := opts.Fill
	p.ops = append(p.ops,
		op("q"),
		op("rg", num(c.R), num(c.G), num(c.B)),
		op("re", num(x), num(y), num(width), num(height)),
		op("f"),
		op("Q"),
	)
	return p
}

func (p *pageBuilderImpl) SetCropBox(box coords.Rect) PageBuilder {
	p.cropBox = &box
	return p
}

func (p *pageBuilderImpl) SetRotation(degrees int) PageBuilder {
	p.rotation = normalizeRotation(degrees)
	return p
}

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

// Build assembles the raw object graph.
func (b *builderImpl) Build() (*raw.Document, error) {
	if len(b.pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	doc := raw.NewDocument("1.7")
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalogRef := doc.Add(catalog)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pagesRef := doc.Add(pages)
	catalog.Set("Pages", raw.RefObj{R: pagesRef})

	fontRefs := make(map[fontKey]raw.ObjectRef)
	keys := make([]fontKey, 0, len(b.fonts))
	for k := range b.fonts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return b.fonts[keys[i]] < b.fonts[keys[j]] })
	for _, k := range keys {
		fontRefs[k] = b.buildFont(doc, k)
	}

	kids := raw.NewArray()
	for _, p := range b.pages {
		ref, err := p.build(doc, pagesRef, fontRefs)
		if err != nil {
			return nil, err
		}
		kids.Append(raw.RefObj{R: ref})
	}
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(len(b.pages))))

	doc.Trailer.Set("Root", raw.RefObj{R: catalogRef})
	if b.info != nil {
		info := raw.Dict()
		if b.info.Title != "" {
			info.Set("Title", raw.Str([]byte(b.info.Title)))
		}
		if b.info.Author != "" {
			info.Set("Author", raw.Str([]byte(b.info.Author)))
		}
		doc.Trailer.Set("Info", raw.RefObj{R: doc.Add(info)})
	}
	if len(b.metadata) > 0 {
		md := raw.Dict()
		md.Set("Type", raw.NameLiteral("Metadata"))
		md.Set("Subtype", raw.NameLiteral("XML"))
		catalog.Set("Metadata", raw.RefObj{R: doc.Add(raw.NewStream(md, b.metadata))})
	}
	return doc, nil
}

// Bytes builds the document and serialises it.
func (b *builderImpl) Bytes(ctx context.Context) ([]byte, error) {
	doc, err := b.Build()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writer.New().Write(ctx, doc, &buf, writer.Config{Deterministic: true}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *pageBuilderImpl) build(doc *raw.Document, parent raw.ObjectRef, fontRefs map[fontKey]raw.ObjectRef) (raw.ObjectRef, error) {
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.RefObj{R: parent})
	page.Set("MediaBox", raw.Rect(0, 0, p.width, p.height))
	if p.cropBox != nil {
		page.Set("CropBox", raw.Rect(p.cropBox.LLX, p.cropBox.LLY, p.cropBox.URX, p.cropBox.URY))
	}
	if p.rotation != 0 {
		page.Set("Rotate", raw.NumberInt(int64(p.rotation)))
	}
	res := raw.Dict()
	if len(p.fonts) > 0 {
		res.Set("Font", fontDict(p.fonts, fontRefs))
	}
	xobjects := raw.Dict()
	for _, name := range sortedKeys(p.images) {
		xobjects.Set(name, raw.RefObj{R: doc.Add(ImageXObject(p.images[name]))})
	}
	for _, name := range sortedKeys(p.forms) {
		f := p.forms[name]
		formRes := raw.Dict()
		formRes.Set("Font", fontDict(f.fonts, fontRefs))
		fd := raw.Dict()
		fd.Set("Type", raw.NameLiteral("XObject"))
		fd.Set("Subtype", raw.NameLiteral("Form"))
		fd.Set("BBox", raw.Rect(0, 0, p.width, p.height))
		fd.Set("Resources", formRes)
		xobjects.Set(name, raw.RefObj{R: doc.Add(raw.NewStream(fd, contentstream.Serialize(f.ops)))})
	}
	if xobjects.Len() > 0 {
		res.Set("XObject", xobjects)
	}
	page.Set("Resources", res)
	page.Set("Contents", raw.RefObj{R: doc.Add(raw.NewStream(nil, contentstream.Serialize(p.ops)))})
	return doc.Add(page), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fontDict(names map[string]fontKey, refs map[fontKey]raw.ObjectRef) *raw.DictObj {
	d := raw.Dict()
	for name, key := range names {
		d.Set(name, raw.RefObj{R: refs[key]})
	}
	return d
}

func (b *builderImpl) buildFont(doc *raw.Document, key fontKey) raw.ObjectRef {
	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	if !key.composite {
		font.Set("Subtype", raw.NameLiteral("Type1"))
		font.Set("BaseFont", raw.NameLiteral(key.base))
		font.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
		return doc.Add(font)
	}
	used := make([]rune, 0, len(b.runes[key]))
	for r := range b.runes[key] {
		if r <= 0xFFFF {
			used = append(used, r)
		}
	}
	sort.Slice(used, func(i, j int) bool { return used[i] < used[j] })

	widths := raw.NewArray()
	var cmap bytes.Buffer
	cmap.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	cmap.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	cmap.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for start := 0; start < len(used); start += 100 {
		end := start + 100
		if end > len(used) {
			end = len(used)
		}
		fmt.Fprintf(&cmap, "%d beginbfchar\n", end-start)
		for _, r := range used[start:end] {
			fmt.Fprintf(&cmap, "<%04X> <%04X>\n", r, r)
		}
		cmap.WriteString("endbfchar\n")
	}
	cmap.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	for _, r := range used {
		widths.Append(raw.NumberInt(int64(r)))
		widths.Append(raw.NewArray(num(fonts.StandardWidth(key.base, string(r)))))
	}

	desc := raw.Dict()
	desc.Set("Type", raw.NameLiteral("Font"))
	desc.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	desc.Set("BaseFont", raw.NameLiteral(key.base))
	sysInfo := raw.Dict()
	sysInfo.Set("Registry", raw.Str([]byte("Adobe")))
	sysInfo.Set("Ordering", raw.Str([]byte("Identity")))
	sysInfo.Set("Supplement", raw.NumberInt(0))
	desc.Set("CIDSystemInfo", sysInfo)
	desc.Set("DW", raw.NumberInt(1000))
	desc.Set("W", widths)

	font.Set("Subtype", raw.NameLiteral("Type0"))
	font.Set("BaseFont", raw.NameLiteral(key.base))
	font.Set("Encoding", raw.NameLiteral("Identity-H"))
	font.Set("DescendantFonts", raw.NewArray(raw.RefObj{R: doc.Add(desc)}))
	font.Set("ToUnicode", raw.RefObj{R: doc.Add(raw.NewStream(nil, cmap.Bytes()))})
	return doc.Add(font)
}

func encodeText(text string, key fontKey) raw.StringObj {
	if key.composite {
		out := make([]byte, 0, 2*len(text))
		for _, r := range text {
			if r > 0xFFFF {
				r = '?'
			}
			out = append(out, byte(r>>8), byte(r))
		}
		return raw.HexStr(out)
	}
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return raw.Str(out)
}

func splitWords(text string) []string {
	var words []string
	start := -1
	for i, r := range text {
		if r == ' ' {
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}

func op(name string, operands ...raw.Object) contentstream.Operation {
	return contentstream.Operation{Operator: name, Operands: operands}
}

func num(v float64) raw.Object {
	if v == float64(int64(v)) {
		return raw.NumberInt(int64(v))
	}
	return raw.NumberFloat(v)
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg - deg%90
}
