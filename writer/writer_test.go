package writer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/parser"
)

func sampleDoc() *raw.Document {
	doc := raw.NewDocument("1.6")
	content := raw.NewStream(raw.Dict(), []byte("BT /F1 12 Tf 10 20 Td (Hello) Tj ET"))
	doc.Objects[raw.ObjectRef{Num: 4}] = content
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.Ref(2, 0))
	page.Set("MediaBox", raw.Rect(0, 0, 200, 200))
	page.Set("Contents", raw.Ref(4, 0))
	doc.Objects[raw.ObjectRef{Num: 3}] = page
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(3, 0)))
	pages.Set("Count", raw.NumberInt(1))
	doc.Objects[raw.ObjectRef{Num: 2}] = pages
	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", raw.Ref(2, 0))
	cat.Set("Metadata", raw.Ref(6, 0))
	doc.Objects[raw.ObjectRef{Num: 1}] = cat
	info := raw.Dict()
	info.Set("Author", raw.Str([]byte("Jan Jansen")))
	doc.Objects[raw.ObjectRef{Num: 5}] = info
	doc.Objects[raw.ObjectRef{Num: 6}] = raw.NewStream(raw.Dict(), []byte("<x:xmpmeta/>"))
	// unreachable: an old content stream replaced during editing
	doc.Objects[raw.ObjectRef{Num: 9}] = raw.NewStream(raw.Dict(), []byte("BT (Secret) Tj ET"))
	doc.Trailer.Set("Root", raw.Ref(1, 0))
	doc.Trailer.Set("Info", raw.Ref(5, 0))
	return doc
}

func write(t *testing.T, doc *raw.Document, cfg Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := New().Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestWriterRoundTrip(t *testing.T) {
	out := write(t, sampleDoc(), Config{})
	if !bytes.HasPrefix(out, []byte("%PDF-1.6\n")) {
		t.Fatalf("unexpected header: %q", out[:12])
	}
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(out))
	if err != nil {
		t.Fatalf("parse roundtrip: %v", err)
	}
	if len(doc.Objects) != 6 {
		t.Fatalf("expected 6 reachable objects, got %d", len(doc.Objects))
	}
	if bytes.Contains(out, []byte("Secret")) {
		t.Fatalf("unreachable object leaked into output")
	}
	if _, ok := doc.Trailer.Get("ID"); !ok {
		t.Fatalf("trailer lacks /ID")
	}
}

func TestWriterCompressesUnfilteredStreams(t *testing.T) {
	out := write(t, sampleDoc(), Config{Compress: true})
	if bytes.Contains(out, []byte("(Hello) Tj")) {
		t.Fatalf("content stream was not compressed")
	}
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(out))
	if err != nil {
		t.Fatalf("parse roundtrip: %v", err)
	}
	found := false
	for _, obj := range doc.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := filters.DefaultPipeline(filters.Limits{}).DecodeStream(context.Background(), doc, st)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if strings.Contains(string(data), "(Hello) Tj") {
			found = true
		}
	}
	if !found {
		t.Fatalf("compressed content not recoverable")
	}
}

func TestWriterStripMetadata(t *testing.T) {
	out := write(t, sampleDoc(), Config{StripMetadata: true})
	for _, leaked := range []string{"Jan Jansen", "xmpmeta", "/Info", "/Metadata"} {
		if bytes.Contains(out, []byte(leaked)) {
			t.Fatalf("metadata %q survived stripping", leaked)
		}
	}
}

func TestWriterDeterministicID(t *testing.T) {
	a := write(t, sampleDoc(), Config{Deterministic: true})
	b := write(t, sampleDoc(), Config{Deterministic: true})
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic output differs between runs")
	}
}

func TestWriterRequiresCatalog(t *testing.T) {
	doc := raw.NewDocument("1.7")
	if err := New().Write(context.Background(), doc, &bytes.Buffer{}, Config{}); err != ErrNoCatalog {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
}

func TestSerializePrimitives(t *testing.T) {
	cases := []struct {
		name string
		obj  raw.Object
		want string
	}{
		{"name escape", raw.NameLiteral("A B#"), "/A#20B#23"},
		{"real", raw.NumberFloat(1.50000), "1.5"},
		{"negative zero", raw.NumberFloat(-0.000001), "0"},
		{"literal escape", raw.Str([]byte("a(b)\\")), `(a\(b\)\\)`},
		{"hex", raw.HexStr([]byte{0x00, 0xAB}), "<00AB>"},
		{"array", raw.NewArray(raw.NumberInt(1), raw.Bool(true), raw.NullObj{}), "[1 true null]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(Serialize(tc.obj)); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
