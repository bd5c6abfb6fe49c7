package editor

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/fonts"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

type EditorImpl struct {
	doc    *raw.Document
	tracer *contentstream.Tracer
}

// NewEditor edits pages of doc. fc may be nil.
func NewEditor(doc *raw.Document, fc *fonts.Cache, limits filters.Limits) *EditorImpl {
	return &EditorImpl{doc: doc, tracer: contentstream.NewTracer(doc, fc, limits)}
}

type opKey struct {
	stream string
	op     int
}

func (e *EditorImpl) RemoveRects(ctx context.Context, page *raw.DictObj, rects []coords.Rect) (Result, error) {
	layout, err := e.tracer.TracePage(ctx, page)
	if err != nil {
		return Result{}, fmt.Errorf("trace page: %w", err)
	}
	res := Result{Removed: make([]int, len(rects))}

	idx := NewGlyphIndex(layout.Glyphs)
	removed := make(map[contentstream.Location]bool)
	touched := make(map[opKey]bool)
	for i, r := range rects {
		for _, gi := range idx.Hits(r) {
			loc := layout.Glyphs[gi].Loc
			removed[loc] = true
			touched[opKey{loc.Stream, loc.Op}] = true
			res.Removed[i]++
		}
	}

	// Glyphs of touched operators by TJ element, one entry per location
	// even when a form is drawn more than once.
	shown := make(map[opKey]map[int][]contentstream.Glyph)
	seen := make(map[contentstream.Location]bool)
	for _, g := range layout.Glyphs {
		k := opKey{g.Loc.Stream, g.Loc.Op}
		if !touched[k] || seen[g.Loc] {
			continue
		}
		seen[g.Loc] = true
		if shown[k] == nil {
			shown[k] = make(map[int][]contentstream.Glyph)
		}
		shown[k][g.Loc.Elem] = append(shown[k][g.Loc.Elem], g)
	}

	dirty := map[string]bool{contentstream.PageStream: true}
	for k := range touched {
		st := layout.Streams[k.stream]
		if st == nil {
			continue
		}
		// Ancestors change too: they must point at the rewritten copy.
		for n := len(st.Path); n >= 0; n-- {
			dirty[contentstream.StreamKey(st.Path[:n])] = true
		}
	}
	for key := range dirty {
		st := layout.Streams[key]
		out := make([]contentstream.Operation, 0, len(st.Ops))
		for i, op := range st.Ops {
			k := opKey{key, i}
			if !touched[k] {
				out = append(out, op)
				continue
			}
			out = append(out, rewriteShow(op, shown[k], removed)...)
		}
		st.Ops = out
		res.Streams = append(res.Streams, key)
	}
	sort.Strings(res.Streams)

	pageRes, err := e.writeForms(layout, dirty)
	if err != nil {
		return Result{}, err
	}
	if pageRes != nil {
		page.Set("Resources", pageRes)
	}
	ReplaceContents(e.doc, page, pageContent(layout.Streams[contentstream.PageStream].Ops, rects))
	return res, nil
}

// writeForms stores rewritten form XObjects as new objects, deepest first,
// and repoints cloned resource dictionaries at them. It returns the page's
// cloned resources, or nil when no form drawn by the page changed.
func (e *EditorImpl) writeForms(layout *contentstream.Layout, dirty map[string]bool) (*raw.DictObj, error) {
	var forms []*contentstream.Stream
	for key := range dirty {
		if key != contentstream.PageStream {
			forms = append(forms, layout.Streams[key])
		}
	}
	sort.Slice(forms, func(i, j int) bool {
		if len(forms[i].Path) != len(forms[j].Path) {
			return len(forms[i].Path) > len(forms[j].Path)
		}
		return forms[i].Key < forms[j].Key
	})

	clones := make(map[string]*raw.DictObj)
	cloneResources := func(st *contentstream.Stream) *raw.DictObj {
		if c, ok := clones[st.Key]; ok {
			return c
		}
		c := cloneDict(st.Resources)
		xobjects, _ := e.doc.ResolveDict(dictValue(c, "XObject"))
		c.Set("XObject", cloneDict(xobjects))
		clones[st.Key] = c
		return c
	}

	for _, st := range forms {
		n := len(st.Path)
		parent := layout.Streams[contentstream.StreamKey(st.Path[:n-1])]
		name := st.Path[n-1]
		xobjects, _ := e.doc.ResolveDict(dictValue(parent.Resources, "XObject"))
		orig, ok := e.doc.ResolveStream(dictValue(xobjects, name))
		if !ok {
			return nil, fmt.Errorf("form %s vanished from resources", name)
		}
		dict := cloneDict(orig.Dict)
		dict.Delete("Filter")
		dict.Delete("DecodeParms")
		dict.Delete("Length")
		if c, ok := clones[st.Key]; ok {
			dict.Set("Resources", c)
		}
		ref := e.doc.Add(raw.NewStream(dict, contentstream.Serialize(st.Ops)))
		target := cloneResources(parent)
		target.KV["XObject"].(*raw.DictObj).Set(name, raw.RefObj{R: ref})
	}
	return clones[contentstream.PageStream], nil
}

// rewriteShow turns a text-showing operator into TJ with the removed codes
// replaced by displacements of the same advance, so the remaining glyphs
// keep their positions.
func rewriteShow(op contentstream.Operation, glyphs map[int][]contentstream.Glyph, removed map[contentstream.Location]bool) []contentstream.Operation {
	var items []raw.Object
	switch op.Operator {
	case "TJ":
		arr := op.Operands[0].(*raw.ArrayObj)
		for j, item := range arr.Items {
			s, ok := item.(raw.StringObj)
			if !ok {
				items = appendItem(items, item)
				continue
			}
			items = appendString(items, s, glyphs[j], removed)
		}
	case "Tj", "'":
		items = appendString(items, op.Operands[0].(raw.StringObj), glyphs[0], removed)
	case "\"":
		items = appendString(items, op.Operands[2].(raw.StringObj), glyphs[0], removed)
	default:
		return []contentstream.Operation{op}
	}
	tj := contentstream.Operation{Operator: "TJ", Operands: []raw.Object{raw.NewArray(items...)}}
	switch op.Operator {
	case "'":
		return []contentstream.Operation{{Operator: "T*"}, tj}
	case "\"":
		return []contentstream.Operation{
			{Operator: "Tw", Operands: op.Operands[0:1]},
			{Operator: "Tc", Operands: op.Operands[1:2]},
			{Operator: "T*"},
			tj,
		}
	}
	return []contentstream.Operation{tj}
}

func appendString(items []raw.Object, s raw.StringObj, glyphs []contentstream.Glyph, removed map[contentstream.Location]bool) []raw.Object {
	if len(glyphs) == 0 {
		return append(items, s)
	}
	sort.Slice(glyphs, func(i, j int) bool { return glyphs[i].Loc.Code < glyphs[j].Loc.Code })
	var run []byte
	for _, g := range glyphs {
		if !removed[g.Loc] {
			run = append(run, g.Code...)
			continue
		}
		if len(run) > 0 {
			items = append(items, raw.StringObj{Bytes: run, Hex: s.Hex})
			run = nil
		}
		items = appendItem(items, raw.NumberFloat(g.Adjust))
	}
	if len(run) > 0 {
		items = append(items, raw.StringObj{Bytes: run, Hex: s.Hex})
	}
	return items
}

// appendItem merges consecutive displacements.
func appendItem(items []raw.Object, item raw.Object) []raw.Object {
	n, ok := item.(raw.NumberObj)
	if !ok {
		return append(items, item)
	}
	if len(items) > 0 {
		if last, ok := items[len(items)-1].(raw.NumberObj); ok {
			items[len(items)-1] = raw.NumberFloat(last.Float() + n.Float())
			return items
		}
	}
	return append(items, item)
}

// pageContent wraps the page operators in a saved state and paints the
// covers in default user space after it.
func pageContent(ops []contentstream.Operation, rects []coords.Rect) []byte {
	var b bytes.Buffer
	b.WriteString("q\n")
	b.Write(contentstream.Serialize(ops))
	for depth := openStates(ops); depth > 0; depth-- {
		b.WriteString("Q\n")
	}
	b.WriteString("Q\n")
	var covers []contentstream.Operation
	for _, r := range rects {
		covers = append(covers,
			contentstream.Operation{Operator: "q"},
			contentstream.Operation{Operator: "rg", Operands: []raw.Object{raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(0)}},
			contentstream.Operation{Operator: "re", Operands: []raw.Object{
				raw.NumberFloat(r.LLX), raw.NumberFloat(r.LLY), raw.NumberFloat(r.Width()), raw.NumberFloat(r.Height()),
			}},
			contentstream.Operation{Operator: "f"},
			contentstream.Operation{Operator: "Q"},
		)
	}
	b.Write(contentstream.Serialize(covers))
	return b.Bytes()
}

// openStates counts q operators left unbalanced at the end of ops.
func openStates(ops []contentstream.Operation) int {
	depth := 0
	for _, op := range ops {
		switch op.Operator {
		case "q":
			depth++
		case "Q":
			if depth > 0 {
				depth--
			}
		}
	}
	return depth
}

// ReplaceContents points the page at a single new unfiltered content stream.
func ReplaceContents(doc *raw.Document, page *raw.DictObj, data []byte) {
	page.Set("Contents", raw.RefObj{R: doc.Add(raw.NewStream(nil, data))})
}

func cloneDict(d *raw.DictObj) *raw.DictObj {
	c := raw.Dict()
	if d == nil {
		return c
	}
	for k, v := range d.KV {
		c.KV[k] = v
	}
	return c
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
