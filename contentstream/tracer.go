package contentstream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/fonts"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// maxFormDepth bounds nesting of form XObjects.
const maxFormDepth = 12

// GraphicsState holds the parameters saved by q and restored by Q.
type GraphicsState struct {
	CTM  coords.Matrix
	Text TextState

	stack []GraphicsState
}

// TextState holds the text parameters that belong to the graphics state.
type TextState struct {
	Font      *fonts.Font
	FontSize  float64
	CharSpace float64
	WordSpace float64
	Scale     float64
	Leading   float64
	Rise      float64
	Render    TextRenderMode
}

func newGraphicsState(ctm coords.Matrix) *GraphicsState {
	return &GraphicsState{CTM: ctm, Text: TextState{Scale: 1}}
}

func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	gs.stack = append(gs.stack, clone)
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	stack := gs.stack[:n-1]
	*gs = gs.stack[n-1]
	gs.stack = stack
	return nil
}

// Tracer runs content streams virtually and records every glyph.
type Tracer struct {
	doc    *raw.Document
	fonts  *fonts.Cache
	limits filters.Limits
}

func NewTracer(doc *raw.Document, fc *fonts.Cache, limits filters.Limits) *Tracer {
	if fc == nil {
		fc = fonts.NewCache(doc, limits)
	}
	return &Tracer{doc: doc, fonts: fc, limits: limits}
}

// TracePage parses and traces the content of a page, including the form
// XObjects it draws.
func (t *Tracer) TracePage(ctx context.Context, page *raw.DictObj) (*Layout, error) {
	data, err := PageContent(ctx, t.doc, page, t.limits)
	if err != nil {
		return nil, err
	}
	ops, err := Parse(data)
	if err != nil {
		return nil, err
	}
	layout := &Layout{Streams: make(map[string]*Stream)}
	st := &Stream{Key: PageStream, Ops: ops, Resources: PageResources(t.doc, page)}
	layout.Streams[PageStream] = st
	run := &traceRun{t: t, layout: layout, visiting: make(map[raw.ObjectRef]bool)}
	if err := run.trace(ctx, st, coords.Identity(), 0); err != nil {
		return nil, err
	}
	return layout, nil
}

type traceRun struct {
	t        *Tracer
	layout   *Layout
	visiting map[raw.ObjectRef]bool
}

type textObject struct {
	tm, tlm coords.Matrix
}

func (r *traceRun) trace(ctx context.Context, st *Stream, ctm coords.Matrix, depth int) error {
	gs := newGraphicsState(ctm)
	text := textObject{tm: coords.Identity(), tlm: coords.Identity()}
	for i, op := range st.Ops {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		args := op.Operands
		switch op.Operator {
		case "q":
			gs.Save()
		case "Q":
			// unbalanced Q is common and harmless
			_ = gs.Restore()
		case "cm":
			if m, ok := matrixOperand(args); ok {
				gs.CTM = m.Multiply(gs.CTM)
			}
		case "BT":
			text.tm, text.tlm = coords.Identity(), coords.Identity()
		case "Tc":
			gs.Text.CharSpace = number(args, 0)
		case "Tw":
			gs.Text.WordSpace = number(args, 0)
		case "Tz":
			gs.Text.Scale = number(args, 0) / 100
		case "TL":
			gs.Text.Leading = number(args, 0)
		case "Ts":
			gs.Text.Rise = number(args, 0)
		case "Tr":
			gs.Text.Render = TextRenderMode(number(args, 0))
		case "Tf":
			if len(args) == 2 {
				gs.Text.Font = r.font(ctx, st.Resources, args[0])
				gs.Text.FontSize = number(args, 1)
			}
		case "Td":
			if len(args) == 2 {
				text.moveLine(number(args, 0), number(args, 1))
			}
		case "TD":
			if len(args) == 2 {
				gs.Text.Leading = -number(args, 1)
				text.moveLine(number(args, 0), number(args, 1))
			}
		case "Tm":
			if m, ok := matrixOperand(args); ok {
				text.tm, text.tlm = m, m
			}
		case "T*":
			text.moveLine(0, -gs.Text.Leading)
		case "Tj":
			if len(args) == 1 {
				r.show(gs, &text, args[0], Location{Stream: st.Key, Op: i})
			}
		case "'":
			text.moveLine(0, -gs.Text.Leading)
			if len(args) == 1 {
				r.show(gs, &text, args[0], Location{Stream: st.Key, Op: i})
			}
		case "\"":
			if len(args) == 3 {
				gs.Text.WordSpace = number(args, 0)
				gs.Text.CharSpace = number(args, 1)
				text.moveLine(0, -gs.Text.Leading)
				r.show(gs, &text, args[2], Location{Stream: st.Key, Op: i})
			}
		case "TJ":
			if len(args) != 1 {
				continue
			}
			arr, ok := args[0].(*raw.ArrayObj)
			if !ok {
				continue
			}
			for j, item := range arr.Items {
				if n, ok := item.(raw.NumberObj); ok {
					tx := -n.Float() / 1000 * gs.Text.FontSize * gs.Text.Scale
					text.tm = coords.Translate(tx, 0).Multiply(text.tm)
					continue
				}
				r.show(gs, &text, item, Location{Stream: st.Key, Op: i, Elem: j})
			}
		case "Do":
			if len(args) == 1 && depth < maxFormDepth {
				if name, ok := args[0].(raw.NameObj); ok {
					if err := r.drawForm(ctx, st, name.Val, gs.CTM, depth); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (to *textObject) moveLine(tx, ty float64) {
	to.tlm = coords.Translate(tx, ty).Multiply(to.tlm)
	to.tm = to.tlm
}

func (r *traceRun) font(ctx context.Context, resources *raw.DictObj, nameObj raw.Object) *fonts.Font {
	name, ok := nameObj.(raw.NameObj)
	if !ok {
		return fonts.Fallback()
	}
	fontDict, ok := r.t.doc.ResolveDict(dictValue(resources, "Font"))
	if !ok {
		return fonts.Fallback()
	}
	entry, ok := fontDict.Get(name.Val)
	if !ok {
		return fonts.Fallback()
	}
	f, err := r.t.fonts.Font(ctx, entry)
	if err != nil {
		return fonts.Fallback()
	}
	return f
}

func (r *traceRun) show(gs *GraphicsState, to *textObject, obj raw.Object, loc Location) {
	s, ok := obj.(raw.StringObj)
	if !ok {
		return
	}
	ts := gs.Text
	font := ts.Font
	if font == nil {
		font = fonts.Fallback()
	}
	size, th := ts.FontSize, ts.Scale
	for ci, code := range font.Codes(s.Bytes) {
		w0 := code.Width / 1000
		tx := w0*size + ts.CharSpace
		if code.WordSpace {
			tx += ts.WordSpace
		}
		tx *= th
		trm := to.tm.Multiply(gs.CTM)
		box := coords.NewRect(0, font.Descent/1000*size+ts.Rise, w0*size*th, font.Ascent/1000*size+ts.Rise)
		g := Glyph{
			Text:   code.Text,
			Code:   code.Bytes,
			Rect:   trm.TransformRect(box),
			Origin: trm.Transform(coords.Point{X: 0, Y: ts.Rise}),
			End:    trm.Transform(coords.Point{X: tx, Y: ts.Rise}),
			Size:   math.Abs(size) * math.Hypot(trm[2], trm[3]),
			Space:  code.WordSpace || (code.Text != "" && strings.TrimSpace(code.Text) == ""),
			Render: ts.Render,
			Loc:    loc,
		}
		g.Loc.Code = ci
		if size != 0 && th != 0 {
			g.Adjust = -tx / th / size * 1000
		}
		r.layout.Glyphs = append(r.layout.Glyphs, g)
		to.tm = coords.Translate(tx, 0).Multiply(to.tm)
	}
}

func (r *traceRun) drawForm(ctx context.Context, parent *Stream, name string, ctm coords.Matrix, depth int) error {
	doc := r.t.doc
	xobjects, ok := doc.ResolveDict(dictValue(parent.Resources, "XObject"))
	if !ok {
		return nil
	}
	entry, ok := xobjects.Get(name)
	if !ok {
		return nil
	}
	form, ok := doc.ResolveStream(entry)
	if !ok {
		return nil
	}
	if sub, _ := form.Dict.Name("Subtype"); sub != "Form" {
		return nil
	}
	var ref raw.ObjectRef
	if rf, ok := entry.(raw.RefObj); ok {
		ref = rf.R
		if r.visiting[ref] {
			return nil
		}
		r.visiting[ref] = true
		defer delete(r.visiting, ref)
	}

	path := append(append([]string(nil), parent.Path...), name)
	key := StreamKey(path)
	st, seen := r.layout.Streams[key]
	if !seen {
		data, err := filters.DefaultPipeline(r.t.limits).DecodeStream(ctx, doc, form)
		if err != nil {
			return fmt.Errorf("decode form %s: %w", name, err)
		}
		ops, err := Parse(data)
		if err != nil {
			return fmt.Errorf("form %s: %w", name, err)
		}
		resources := parent.Resources
		if res, ok := doc.ResolveDict(dictValue(form.Dict, "Resources")); ok {
			resources = res
		}
		st = &Stream{Key: key, Path: path, Ref: ref, Ops: ops, Resources: resources}
		r.layout.Streams[key] = st
	}
	m := coords.Identity()
	if arr, ok := doc.ResolveArray(dictValue(form.Dict, "Matrix")); ok {
		if fm, ok := matrixOperand(arr.Items); ok {
			m = fm
		}
	}
	return r.trace(ctx, st, m.Multiply(ctm), depth+1)
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

func number(args []raw.Object, i int) float64 {
	if i >= len(args) {
		return 0
	}
	if n, ok := args[i].(raw.NumberObj); ok {
		return n.Float()
	}
	return 0
}

func matrixOperand(args []raw.Object) (coords.Matrix, bool) {
	if len(args) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := range m {
		n, ok := args[i].(raw.NumberObj)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = n.Float()
	}
	return m, true
}
