package editor

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/Peterrvisserr/WOOBARNEVELD/builder"
	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/extractor"
	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

func buildDoc(t *testing.T, b builder.PDFBuilder) *raw.Document {
	t.Helper()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return doc
}

func textLayer(t *testing.T, doc *raw.Document, page int) *extractor.TextLayer {
	t.Helper()
	ex, err := extractor.New(doc)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	l, err := ex.Layer(context.Background(), page)
	if err != nil {
		t.Fatalf("layer: %v", err)
	}
	return l
}

func sameRect(a, b coords.Rect) bool {
	return math.Abs(a.LLX-b.LLX) < 0.01 && math.Abs(a.LLY-b.LLY) < 0.01 &&
		math.Abs(a.URX-b.URX) < 0.01 && math.Abs(a.URY-b.URY) < 0.01
}

func TestRemoveRects(t *testing.T) {
	tests := []struct {
		name string
		opts builder.TextOptions
	}{
		{"simple font", builder.TextOptions{FontSize: 12}},
		{"kerned words", builder.TextOptions{FontSize: 12, WordGap: -250}},
		{"composite font", builder.TextOptions{FontSize: 12, Composite: true}},
		{"form xobject", builder.TextOptions{FontSize: 12, InForm: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := buildDoc(t, builder.NewBuilder().
				NewPage(595, 842).DrawText("Jan Jansen woont hier", 72, 720, tc.opts).Finish())
			before := textLayer(t, doc, 0)
			target := before.Search("Jansen")
			if len(target) != 1 {
				t.Fatalf("fixture search returned %d rects", len(target))
			}
			kept := before.Search("woont")[0]

			page := doc.Pages()[0].Dict
			res, err := NewEditor(doc, nil, filters.Limits{}).RemoveRects(context.Background(), page, target)
			if err != nil {
				t.Fatalf("remove: %v", err)
			}
			if res.Removed[0] != 6 {
				t.Fatalf("removed %d glyphs, want 6", res.Removed[0])
			}

			after := textLayer(t, doc, 0)
			if after.Contains("Jansen") {
				t.Fatalf("redacted text still extractable: %q", after.Text())
			}
			if !after.Contains("Jan") || !after.Contains("woont hier") {
				t.Fatalf("surrounding text lost: %q", after.Text())
			}
			if got := after.Search("woont"); len(got) != 1 || !sameRect(got[0], kept) {
				t.Fatalf("remaining glyphs moved: %+v want %+v", got, kept)
			}
		})
	}
}

func TestRemoveRectsPaintsCovers(t *testing.T) {
	doc := buildDoc(t, builder.NewBuilder().NewPage(200, 200).Finish())
	page := doc.Pages()[0].Dict
	rect := coords.Rect{LLX: 10, LLY: 20, URX: 60, URY: 35}
	if _, err := NewEditor(doc, nil, filters.Limits{}).RemoveRects(context.Background(), page, []coords.Rect{rect}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	data, err := contentstream.PageContent(context.Background(), doc, page, filters.Limits{})
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found := false
	for i, op := range ops {
		if op.Operator != "re" || i+1 >= len(ops) || ops[i+1].Operator != "f" {
			continue
		}
		var v [4]float64
		for j := range v {
			v[j] = op.Operands[j].(raw.NumberObj).Float()
		}
		if v == [4]float64{10, 20, 50, 15} {
			found = true
		}
	}
	if !found {
		t.Fatalf("cover rectangle not painted:\n%s", data)
	}
	if !bytes.HasPrefix(data, []byte("q\n")) {
		t.Fatalf("original content not isolated in a saved state")
	}
}

func TestRemoveRectsCopiesSharedForm(t *testing.T) {
	doc := buildDoc(t, builder.NewBuilder().
		NewPage(595, 842).DrawText("Jan Jansen", 72, 720, builder.TextOptions{FontSize: 12, InForm: true}).Finish())
	first := doc.Pages()[0]

	// A second page drawing the same form through the same resources.
	pagesRef := first.Dict.KV["Parent"].(raw.RefObj).R
	pages, _ := doc.ResolveDict(raw.RefObj{R: pagesRef})
	second := raw.Dict()
	for k, v := range first.Dict.KV {
		second.KV[k] = v
	}
	secondRef := doc.Add(second)
	kids := pages.KV["Kids"].(*raw.ArrayObj)
	kids.Append(raw.RefObj{R: secondRef})
	pages.Set("Count", raw.NumberInt(2))

	target := textLayer(t, doc, 0).Search("Jansen")
	res, err := NewEditor(doc, nil, filters.Limits{}).RemoveRects(context.Background(), first.Dict, target)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.Streams) != 2 {
		t.Fatalf("expected page and form rewritten, got %q", res.Streams)
	}
	if textLayer(t, doc, 0).Contains("Jansen") {
		t.Fatalf("form text survived on the redacted page")
	}
	if !textLayer(t, doc, 1).Contains("Jan Jansen") {
		t.Fatalf("shared form changed on the other page")
	}
}

func TestRewriteShowQuoteOperators(t *testing.T) {
	glyphs := map[int][]contentstream.Glyph{0: {
		{Code: []byte("A"), Loc: contentstream.Location{Code: 0}, Adjust: -667},
		{Code: []byte("B"), Loc: contentstream.Location{Code: 1}, Adjust: -667},
		{Code: []byte("C"), Loc: contentstream.Location{Code: 2}, Adjust: -722},
	}}
	removed := map[contentstream.Location]bool{{Code: 1}: true, {Code: 2}: true}

	quote := contentstream.Operation{Operator: "'", Operands: []raw.Object{raw.Str([]byte("ABC"))}}
	ops := rewriteShow(quote, glyphs, removed)
	if len(ops) != 2 || ops[0].Operator != "T*" || ops[1].Operator != "TJ" {
		t.Fatalf("unexpected rewrite %+v", ops)
	}
	items := ops[1].Operands[0].(*raw.ArrayObj).Items
	if len(items) != 2 {
		t.Fatalf("expected string and merged displacement, got %d items", len(items))
	}
	if s := items[0].(raw.StringObj); string(s.Bytes) != "A" {
		t.Fatalf("kept text %q", s.Bytes)
	}
	if n := items[1].(raw.NumberObj); math.Abs(n.Float()+1389) > 1e-9 {
		t.Fatalf("displacement %v", n.Float())
	}

	dquote := contentstream.Operation{Operator: "\"", Operands: []raw.Object{raw.NumberInt(2), raw.NumberInt(1), raw.Str([]byte("ABC"))}}
	ops = rewriteShow(dquote, glyphs, removed)
	want := []string{"Tw", "Tc", "T*", "TJ"}
	if len(ops) != len(want) {
		t.Fatalf("unexpected rewrite %+v", ops)
	}
	for i, op := range ops {
		if op.Operator != want[i] {
			t.Fatalf("op %d: %s want %s", i, op.Operator, want[i])
		}
	}
}

func TestQuadTreeStackedBoxes(t *testing.T) {
	qt := NewQuadTree(coords.Rect{LLX: 0, LLY: 0, URX: 100, URY: 100}, 2)
	box := coords.Rect{LLX: 10, LLY: 10, URX: 11, URY: 11}
	for i := 0; i < 50; i++ {
		if !qt.Insert(box, i) {
			t.Fatalf("insert %d failed", i)
		}
	}
	qt.Insert(coords.Rect{LLX: 80, LLY: 80, URX: 90, URY: 90}, 50)
	if got := qt.Query(coords.Rect{LLX: 9, LLY: 9, URX: 12, URY: 12}); len(got) != 50 {
		t.Fatalf("expected 50 hits, got %d", len(got))
	}
	if got := qt.Query(coords.Rect{LLX: 85, LLY: 85, URX: 86, URY: 86}); len(got) != 1 || got[0] != 50 {
		t.Fatalf("unexpected hits %v", got)
	}
}

func TestCoverageRule(t *testing.T) {
	glyph := coords.Rect{LLX: 0, LLY: 0, URX: 10, URY: 10}
	tests := []struct {
		name string
		rect coords.Rect
		want bool
	}{
		{"center inside", coords.Rect{LLX: 4, LLY: 4, URX: 6, URY: 6}, true},
		{"just under half", coords.Rect{LLX: -5, LLY: -5, URX: 4.9, URY: 11}, false},
		{"center on the edge", coords.Rect{LLX: -1, LLY: -1, URX: 5, URY: 11}, true},
		{"edge only", coords.Rect{LLX: 9, LLY: 0, URX: 20, URY: 10}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := covers(tc.rect, glyph); got != tc.want {
				t.Fatalf("covers = %v, want %v", got, tc.want)
			}
		})
	}
}
