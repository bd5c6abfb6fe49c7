package redact

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/Peterrvisserr/WOOBARNEVELD/acquire"
	"github.com/Peterrvisserr/WOOBARNEVELD/builder"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/semantic"
)

type whiteRasterizer struct {
	mu    sync.Mutex
	calls int
}

func (w *whiteRasterizer) Render(_ context.Context, pdf []byte, page, dpi int) (image.Image, error) {
	if !strings.HasPrefix(string(pdf), "%PDF-") {
		return nil, errors.New("not a pdf")
	}
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	img := image.NewGray(image.Rect(0, 0, 60, 80))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetGray(10, 10, color.Gray{})
	return img, nil
}

func openDoc(t *testing.T) *semantic.Document {
	t.Helper()
	data, err := builder.NewBuilder().
		NewPage(595, 842).
		DrawText("Jan Jansen woont in Barneveld", 72, 720, builder.TextOptions{FontSize: 12}).
		DrawText("BSN 123456789", 72, 700, builder.TextOptions{FontSize: 12}).
		Finish().
		NewPage(595, 842).Finish().
		Bytes(context.Background())
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	doc, err := semantic.Open(context.Background(), data, semantic.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc
}

func spanSet(texts ...string) detect.SpanSet {
	set := make(detect.SpanSet)
	for _, s := range texts {
		set.Add(detect.Span{Text: s, Origin: detect.Origin{Kind: detect.OriginPattern, Rule: detect.RuleName}})
	}
	return set
}

func TestRedactPageNative(t *testing.T) {
	doc := openDoc(t)
	tk := NewToolkit(nil)
	r := New(tk)
	page := doc.Pages[0]
	res, err := r.RedactPage(context.Background(), page, acquire.TextView{Source: acquire.Native}, spanSet("Jan Jansen", "123456789"))
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if res.Detected() != 2 || res.Located() != 2 || len(res.Unlocated) != 0 || res.Err() != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Marks) != 2 || res.Glyphs() < 18 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected marks %+v warnings %q", res.Marks, res.Warnings)
	}
	for _, m := range res.Marks {
		if m.Stage != semantic.StageCommitted || m.Source != semantic.SourceNative {
			t.Fatalf("unexpected mark %+v", m)
		}
	}
	text, err := tk.ExtractText(context.Background(), page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if strings.Contains(text, "Jansen") || strings.Contains(text, "123456789") {
		t.Fatalf("redacted text still extractable: %q", text)
	}
	if !strings.Contains(text, "woont in Barneveld") || !strings.Contains(text, "BSN") {
		t.Fatalf("surrounding text lost: %q", text)
	}
	if len(page.Pending()) != 0 {
		t.Fatalf("intents left pending")
	}
}

func TestRedactPageUnlocated(t *testing.T) {
	doc := openDoc(t)
	r := New(NewToolkit(nil))
	view := acquire.TextView{Content: "Jan Jansen", Source: acquire.Recognized}
	res, err := r.RedactPage(context.Background(), doc.Pages[1], view, spanSet("Jan Jansen"))
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if len(res.Unlocated) != 1 || res.Unlocated[0] != "Jan Jansen" || res.Located() != 0 {
		t.Fatalf("span must be reported unlocated: %+v", res)
	}
	if !errors.Is(res.Err(), ErrUnlocatedSpan) {
		t.Fatalf("expected ErrUnlocatedSpan, got %v", res.Err())
	}
	if len(res.Marks) != 0 {
		t.Fatalf("no marks expected, got %+v", res.Marks)
	}
}

func TestRedactPageOCRWords(t *testing.T) {
	view := acquire.TextView{
		Content: "Jan Jansen,",
		Source:  acquire.Recognized,
		Words: []acquire.Word{
			{Text: "Jan", Rect: coords.Rect{LLX: 72, LLY: 710, URX: 92, URY: 722}},
			{Text: "Jansen,", Rect: coords.Rect{LLX: 95, LLY: 710, URX: 135, URY: 722}},
		},
	}
	tests := []struct {
		name      string
		rasterize bool
		warnings  int
	}{
		{"covered only", false, 1},
		{"rasterised later", true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := openDoc(t)
			r := New(NewToolkit(nil), WithRasterize(tc.rasterize))
			res, err := r.RedactPage(context.Background(), doc.Pages[1], view, spanSet("Jan Jansen"))
			if err != nil {
				t.Fatalf("redact: %v", err)
			}
			if res.Located() != 1 || len(res.Marks) != 1 {
				t.Fatalf("unexpected result %+v", res)
			}
			want := coords.Rect{LLX: 72, LLY: 710, URX: 135, URY: 722}
			if m := res.Marks[0]; m.Source != semantic.SourceOCR || m.Rect != want {
				t.Fatalf("unexpected mark %+v", m)
			}
			if len(res.Warnings) != tc.warnings {
				t.Fatalf("expected %d warnings, got %q", tc.warnings, res.Warnings)
			}
		})
	}
}

func TestRasterizeRemovesTextLayer(t *testing.T) {
	doc := openDoc(t)
	rast := &whiteRasterizer{}
	tk := NewToolkit(rast)
	r := New(tk, WithRasterize(true))
	if _, err := r.RedactPage(context.Background(), doc.Pages[0], acquire.TextView{}, spanSet("Jan Jansen")); err != nil {
		t.Fatalf("redact: %v", err)
	}
	if err := r.Rasterize(context.Background(), doc, 150, 2); err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if rast.calls != 2 {
		t.Fatalf("expected 2 renders, got %d", rast.calls)
	}
	for _, p := range doc.Pages {
		if !p.Rasterized() {
			t.Fatalf("page %d not rasterised", p.Index+1)
		}
		text, err := tk.ExtractText(context.Background(), p)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if text != "" {
			t.Fatalf("page %d still has text %q", p.Index+1, text)
		}
	}
}

func TestRasterizeRefusesPendingIntents(t *testing.T) {
	doc := openDoc(t)
	doc.Pages[0].AddIntent(coords.Rect{LLX: 1, LLY: 1, URX: 5, URY: 5}, semantic.SourceNative)
	err := New(NewToolkit(&whiteRasterizer{})).Rasterize(context.Background(), doc, 150, 1)
	if !errors.Is(err, semantic.ErrPendingIntents) {
		t.Fatalf("expected ErrPendingIntents, got %v", err)
	}
}

func TestToolkitWithoutRasterizer(t *testing.T) {
	doc := openDoc(t)
	if _, err := NewToolkit(nil).Rasterize(context.Background(), doc.Pages[0], 300); !errors.Is(err, ErrNoRasterizer) {
		t.Fatalf("expected ErrNoRasterizer, got %v", err)
	}
}

func TestSearchWords(t *testing.T) {
	line := func(y float64, texts ...string) []acquire.Word {
		var out []acquire.Word
		for i, s := range texts {
			x := float64(72 + 50*i)
			out = append(out, acquire.Word{Text: s, Rect: coords.Rect{LLX: x, LLY: y, URX: x + 40, URY: y + 12}})
		}
		return out
	}
	words := append(line(700, "Geachte", "heer", "JANSEN,"), line(680, "Jan", "Jansen", "woont")...)
	tests := []struct {
		name    string
		literal string
		rects   int
	}{
		{"case and punctuation", "Jansen", 2},
		{"phrase", "Jan Jansen", 1},
		{"across lines", "Jansen, Jan", 2},
		{"salutation", "Geachte heer Jansen", 1},
		{"absent", "Pietersen", 0},
		{"blank", " ", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SearchWords(words, tc.literal); len(got) != tc.rects {
				t.Fatalf("SearchWords(%q) = %+v, want %d rects", tc.literal, got, tc.rects)
			}
		})
	}
	got := SearchWords(words, "Jan Jansen")
	if want := (coords.Rect{LLX: 72, LLY: 680, URX: 162, URY: 692}); got[0] != want {
		t.Fatalf("phrase rect %+v, want %+v", got[0], want)
	}
}

func TestToolkitSearchAndCommit(t *testing.T) {
	doc := openDoc(t)
	tk := NewToolkit(nil)
	page := doc.Pages[0]
	ctx := context.Background()

	rects, err := tk.SearchText(ctx, page, "123456789")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rects) != 1 {
		t.Fatalf("expected 1 rect, got %d", len(rects))
	}
	if r := rects[0]; r.LLX < 72 || r.LLY > 700 || r.URY < 700 {
		t.Fatalf("rect %+v does not sit on the second line", r)
	}
	if missing, err := tk.SearchText(ctx, page, "Pietersen"); err != nil || len(missing) != 0 {
		t.Fatalf("unexpected match %+v, %v", missing, err)
	}

	marks, err := tk.CommitRedaction(ctx, page, []Cover{{Rect: rects[0], Source: semantic.SourceNative}})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(marks) != 1 || marks[0].Glyphs < 9 || marks[0].Stage != semantic.StageCommitted {
		t.Fatalf("unexpected marks %+v", marks)
	}
	if again, _ := tk.SearchText(ctx, page, "123456789"); len(again) != 0 {
		t.Fatalf("committed text still found")
	}
	if none, err := tk.CommitRedaction(ctx, page, nil); err != nil || len(none) != 0 {
		t.Fatalf("empty commit returned %+v, %v", none, err)
	}
}
