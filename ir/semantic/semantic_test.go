package semantic

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/Peterrvisserr/WOOBARNEVELD/builder"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/extractor"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/parser"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

func openFixture(t *testing.T, b builder.PDFBuilder) (*Document, []byte) {
	t.Helper()
	data, err := b.Bytes(context.Background())
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	doc, err := Open(context.Background(), data, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc, data
}

func pageText(t *testing.T, doc *Document, index int) *extractor.TextLayer {
	t.Helper()
	var layer *extractor.TextLayer
	err := doc.WithRead(func(r *raw.Document) error {
		ex, err := extractor.New(r, extractor.WithFontCache(doc.Fonts()))
		if err != nil {
			return err
		}
		layer, err = ex.Layer(context.Background(), index)
		return err
	})
	if err != nil {
		t.Fatalf("text layer: %v", err)
	}
	return layer
}

func TestOpen(t *testing.T) {
	doc, data := openFixture(t, builder.NewBuilder().
		NewPage(595, 842).Finish().
		NewPage(842, 595).SetRotation(90).SetCropBox(coords.Rect{LLX: 10, LLY: 10, URX: 900, URY: 500}).Finish())
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}
	if doc.SourceDigest != blake2b.Sum256(data) {
		t.Fatalf("source digest not recorded")
	}
	p := doc.Pages[1]
	if p.Index != 1 || p.Rotate != 90 {
		t.Fatalf("page fields %+v", p)
	}
	if p.CropBox != (coords.Rect{LLX: 10, LLY: 10, URX: 842, URY: 500}) {
		t.Fatalf("crop box not clipped to media box: %+v", p.CropBox)
	}
}

func TestFromRawInheritsAttributes(t *testing.T) {
	r := raw.NewDocument("1.7")
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("MediaBox", raw.Rect(0, 0, 300, 400))
	pages.Set("Rotate", raw.NumberInt(-90))
	pagesRef := r.Add(pages)
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.RefObj{R: pagesRef})
	pages.Set("Kids", raw.NewArray(raw.RefObj{R: r.Add(page)}))
	pages.Set("Count", raw.NumberInt(1))
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.RefObj{R: pagesRef})
	r.Trailer.Set("Root", raw.RefObj{R: r.Add(catalog)})

	doc, err := FromRaw(r, Options{})
	if err != nil {
		t.Fatalf("from raw: %v", err)
	}
	p := doc.Pages[0]
	if p.MediaBox != (coords.Rect{URX: 300, URY: 400}) || p.Rotate != 270 {
		t.Fatalf("inherited attributes not applied: %+v rotate %d", p.MediaBox, p.Rotate)
	}
}

func TestFromRawRejects(t *testing.T) {
	encrypted := raw.NewDocument("1.7")
	encrypted.Encrypted = true
	if _, err := FromRaw(encrypted, Options{}); !errors.Is(err, parser.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	if _, err := FromRaw(raw.NewDocument("1.7"), Options{}); !errors.Is(err, writer.ErrNoCatalog) {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
}

func TestTwoStageRedaction(t *testing.T) {
	doc, _ := openFixture(t, builder.NewBuilder().
		NewPage(595, 842).DrawText("Jan Jansen woont hier", 72, 720, builder.TextOptions{FontSize: 12}).Finish())
	page := doc.Pages[0]
	rects := pageText(t, doc, 0).Search("Jansen")

	if page.AddIntent(coords.Rect{}, SourceNative) {
		t.Fatalf("empty rectangle accepted")
	}
	if !page.AddIntent(rects[0], SourceNative) {
		t.Fatalf("intent rejected")
	}
	if _, err := doc.Bytes(context.Background(), writer.Config{}); !errors.Is(err, ErrPendingIntents) {
		t.Fatalf("expected ErrPendingIntents, got %v", err)
	}
	if err := page.ReplaceContent(image.NewGray(image.Rect(0, 0, 2, 2))); !errors.Is(err, ErrPendingIntents) {
		t.Fatalf("rasterising with pending intents must fail, got %v", err)
	}

	marks, err := page.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(marks) != 1 || marks[0].Stage != StageCommitted || marks[0].Glyphs != 6 {
		t.Fatalf("unexpected marks %+v", marks)
	}
	if len(page.Pending()) != 0 || len(page.Marks()) != 1 {
		t.Fatalf("intents not moved to marks")
	}
	if pageText(t, doc, 0).Contains("Jansen") {
		t.Fatalf("text still extractable after commit")
	}

	out, err := doc.Bytes(context.Background(), writer.Config{})
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	again, err := Open(context.Background(), out, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if layer := pageText(t, again, 0); layer.Contains("Jansen") || !layer.Contains("woont") {
		t.Fatalf("unexpected text after round trip: %q", layer.Text())
	}
}

func TestConcurrentCommits(t *testing.T) {
	b := builder.NewBuilder()
	for i := 0; i < 4; i++ {
		b.NewPage(595, 842).DrawText("Jan Jansen", 72, 720, builder.TextOptions{FontSize: 12}).Finish()
	}
	doc, _ := openFixture(t, b)
	rects := pageText(t, doc, 0).Search("Jansen")

	var wg sync.WaitGroup
	errs := make([]error, len(doc.Pages))
	for i, p := range doc.Pages {
		wg.Add(1)
		go func(i int, p *Page) {
			defer wg.Done()
			p.AddIntent(rects[0], SourceNative)
			_, errs[i] = p.Commit(context.Background())
		}(i, p)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if pageText(t, doc, i).Contains("Jansen") {
			t.Fatalf("page %d not redacted", i)
		}
	}
}

func TestReplaceContent(t *testing.T) {
	doc, _ := openFixture(t, builder.NewBuilder().
		NewPage(200, 100).SetRotation(90).DrawText("Geheim", 10, 50, builder.TextOptions{}).Finish())
	page := doc.Pages[0]
	if err := page.ReplaceContent(image.NewRGBA(image.Rect(0, 0, 100, 200))); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !page.Rasterized() || page.Rotate != 0 {
		t.Fatalf("page not normalised")
	}
	if page.MediaBox != (coords.Rect{URX: 100, URY: 200}) {
		t.Fatalf("display box %+v", page.MediaBox)
	}
	if text := pageText(t, doc, 0).Text(); text != "" {
		t.Fatalf("rasterised page still has text %q", text)
	}
	if _, err := doc.Bytes(context.Background(), writer.Config{Compress: true}); err != nil {
		t.Fatalf("bytes: %v", err)
	}
}
