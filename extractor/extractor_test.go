package extractor

import (
	"context"
	"math"
	"testing"

	"github.com/Peterrvisserr/WOOBARNEVELD/builder"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

func build(t *testing.T, b builder.PDFBuilder) *raw.Document {
	t.Helper()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return doc
}

func layer(t *testing.T, doc *raw.Document, page int) *TextLayer {
	t.Helper()
	ex, err := New(doc)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	l, err := ex.Layer(context.Background(), page)
	if err != nil {
		t.Fatalf("layer: %v", err)
	}
	return l
}

func TestExtractTextLines(t *testing.T) {
	doc := build(t, builder.NewBuilder().
		NewPage(595, 842).
		DrawText("Jan Jansen", 72, 720, builder.TextOptions{FontSize: 12}).
		DrawText("Kerkstraat 1", 72, 700, builder.TextOptions{FontSize: 12}).
		Finish().
		NewPage(595, 842).Finish())
	ex, err := New(doc)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	pages, err := ex.ExtractText(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if got := pages[0].Content; got != "Jan Jansen\nKerkstraat 1" {
		t.Fatalf("unexpected text %q", got)
	}
	if pages[1].Content != "" {
		t.Fatalf("blank page produced text %q", pages[1].Content)
	}
}

func TestExtractorRequiresCatalog(t *testing.T) {
	if _, err := New(raw.NewDocument("1.7")); err == nil {
		t.Fatalf("expected error without catalog")
	}
}

func TestKerningGapBecomesSpace(t *testing.T) {
	doc := build(t, builder.NewBuilder().
		NewPage(595, 842).
		DrawText("Jan Jansen", 72, 720, builder.TextOptions{FontSize: 12, WordGap: -250}).
		Finish())
	if got := layer(t, doc, 0).Text(); got != "Jan Jansen" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestSearch(t *testing.T) {
	doc := build(t, builder.NewBuilder().
		NewPage(595, 842).
		DrawText("Jan Jansen woont", 72, 720, builder.TextOptions{FontSize: 12}).
		DrawText("Jansen", 72, 700, builder.TextOptions{FontSize: 12}).
		Finish())
	l := layer(t, doc, 0)

	tests := []struct {
		name  string
		query string
		rects int
	}{
		{"single line", "woont", 1},
		{"case folded", "JAN JANSEN", 1},
		{"every occurrence", "jansen", 2},
		{"across lines", "woont jansen", 2},
		{"whitespace ignored", "Jan  Jan sen", 1},
		{"absent", "Pietersen", 0},
		{"empty", "   ", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := l.Search(tc.query); len(got) != tc.rects {
				t.Fatalf("Search(%q) returned %d rects, want %d", tc.query, len(got), tc.rects)
			}
		})
	}

	rects := l.Search("Jansen")
	first := rects[0]
	// "Jan " is 1890 units wide in Helvetica.
	if math.Abs(first.LLX-94.68) > 0.01 || first.LLY > 720 || first.URY < 720 {
		t.Fatalf("unexpected match rect %+v", first)
	}
}

func TestSearchNormalisesAccents(t *testing.T) {
	doc := build(t, builder.NewBuilder().
		NewPage(595, 842).
		DrawText("Caf\u00e9 No\u00ebl", 72, 720, builder.TextOptions{FontSize: 12}).
		DrawText("Zo\u00eb", 72, 700, builder.TextOptions{FontSize: 12, Composite: true}).
		Finish())
	l := layer(t, doc, 0)
	if !l.Contains("cafe\u0301") {
		t.Fatalf("decomposed query did not match %q", l.Text())
	}
	if !l.Contains("NO\u00cbL") {
		t.Fatalf("upper-case accented query did not match")
	}
	if !l.Contains("zo\u00eb") {
		t.Fatalf("composite font text not found in %q", l.Text())
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Jan\n\tJanse\u0301n "); got != "Jan Jans\u00e9n" {
		t.Fatalf("unexpected %q", got)
	}
}
