package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
)

func parse(t *testing.T, data []byte, cfg Config) (*raw.Document, error) {
	t.Helper()
	return NewDocumentParser(cfg).Parse(context.Background(), bytes.NewReader(data))
}

func TestDocumentParserParsesClassicXRef(t *testing.T) {
	doc, err := parse(t, buildClassicPDF(), Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Trailer == nil {
		t.Fatalf("trailer not captured")
	}
	if got := doc.Version; got != "1.7" {
		t.Fatalf("expected version 1.7, got %q", got)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(doc.Objects))
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 1, Gen: 0}]; !ok {
		t.Fatalf("catalog missing")
	}
}

func TestDocumentParserFollowsPrevChain(t *testing.T) {
	doc, err := parse(t, buildIncrementalPDF(), Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 3, Gen: 0}]; !ok {
		t.Fatalf("incremental object missing")
	}
	obj2, ok := doc.Objects[raw.ObjectRef{Num: 2, Gen: 0}].(*raw.DictObj)
	if !ok {
		t.Fatalf("expected dict for object 2, got %T", doc.Objects[raw.ObjectRef{Num: 2, Gen: 0}])
	}
	countObj, ok := obj2.Get("Count")
	if !ok {
		t.Fatalf("Count missing on updated pages")
	}
	if num, ok := countObj.(raw.NumberObj); !ok || num.Int() != 2 {
		t.Fatalf("expected Count 2 after update, got %#v", countObj)
	}
	if _, ok := doc.Trailer.Get("Prev"); !ok {
		t.Fatalf("Prev not propagated on final trailer")
	}
}

func TestDocumentParserXRefStreamAndObjStm(t *testing.T) {
	doc, err := parse(t, buildXRefStreamPDF(), Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	obj4, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.DictObj)
	if !ok {
		t.Fatalf("expected object 4 from object stream, got %T", doc.Objects[raw.ObjectRef{Num: 4}])
	}
	if v, _ := obj4.Get("Val"); v != raw.NumberInt(7) {
		t.Fatalf("unexpected /Val: %#v", v)
	}
	if v := doc.Objects[raw.ObjectRef{Num: 5}]; v != raw.NumberInt(5) {
		t.Fatalf("unexpected object 5: %#v", v)
	}
	for _, ref := range []raw.ObjectRef{{Num: 3}, {Num: 6}} {
		if _, ok := doc.Objects[ref]; ok {
			t.Fatalf("structural object %v should be dropped", ref)
		}
	}
	if _, ok := doc.Trailer.Get("Root"); !ok {
		t.Fatalf("trailer from xref stream lacks Root")
	}
}

func TestDocumentParserHybridXRef(t *testing.T) {
	doc, err := parse(t, buildHybridXRefPDF(), Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, num := range []int{1, 2, 5} {
		if _, ok := doc.Objects[raw.ObjectRef{Num: num}]; !ok {
			t.Fatalf("object %d missing", num)
		}
	}
}

func TestDocumentParserCompressedXRefStream(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] >>\nendobj\n")
	xrefOff := buf.Len()
	entries := filters.EncodeFlate(buildXRefStreamEntries(4, map[int]int{1: off1, 2: off2, 3: xrefOff}, nil))
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /XRef /Size 4 /Root 1 0 R /W [1 4 1] /Filter /FlateDecode /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := parse(t, buf.Bytes(), Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(doc.Objects))
	}
}

func TestDocumentParserIndirectLength(t *testing.T) {
	body := "BT (Hi) Tj ET"
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	off2 := buf.Len()
	fmt.Fprintf(buf, "2 0 obj\n<< /Length 3 0 R >>\nstream\n%s\nendstream\nendobj\n", body)
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n%d\nendobj\n", len(body))
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 4\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off1, off2, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := parse(t, buf.Bytes(), Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	st, ok := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("expected stream, got %T", doc.Objects[raw.ObjectRef{Num: 2}])
	}
	if string(st.Data) != body {
		t.Fatalf("unexpected stream data %q", st.Data)
	}
}

func TestDocumentParserRepairsMissingXRef(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n%%EOF\n")

	if _, err := parse(t, buf.Bytes(), Config{}); err == nil {
		t.Fatal("expected error on missing startxref with strict parsing")
	}
	rec := recovery.NewLenientStrategy()
	doc, err := parse(t, buf.Bytes(), Config{Recovery: rec})
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 repaired objects, got %d", len(doc.Objects))
	}
	if len(rec.Issues()) == 0 {
		t.Fatalf("expected the repair to be recorded")
	}
}

func TestDocumentParserRepairsWrongOffsets(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n999 ")
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	xrefOff := buf.Len()
	// offsets deliberately point at the start of the file
	fmt.Fprintf(buf, "xref\n0 3\n0000000000 65535 f \n0000000001 00000 n \n0000000002 00000 n \n")
	fmt.Fprintf(buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	if _, err := parse(t, buf.Bytes(), Config{}); err == nil {
		t.Fatal("expected strict parsing to fail on bad offsets")
	}
	doc, err := parse(t, buf.Bytes(), Config{Recovery: recovery.NewLenientStrategy()})
	if err != nil {
		t.Fatalf("lenient parse failed: %v", err)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 1}]; !ok {
		t.Fatalf("catalog not recovered")
	}
}

func TestDocumentParserRejectsEncrypted(t *testing.T) {
	data := strings.Replace(string(buildClassicPDF()), "/Root 1 0 R", "/Root 1 0 R /Encrypt << /Filter /Standard >>", 1)
	_, err := parse(t, []byte(data), Config{})
	if !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestDocumentParserSyntaxErrorOnGarbage(t *testing.T) {
	_, err := parse(t, []byte("not a pdf"), Config{})
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
}

func buildClassicPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n")
	fmt.Fprintf(buf, "0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	fmt.Fprintf(buf, "%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func buildIncrementalPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 1 >>\nendobj\n")

	xref1 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	fmt.Fprintf(buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref1)

	// Incremental update: replace object 2 and add object 3.
	off2b := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 2 >>\nendobj\n")

	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	xref2 := buf.Len()
	fmt.Fprintf(buf, "xref\n2 2\n%010d 00000 n \n%010d 00000 n \n", off2b, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\n", xref1)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xref2)
	return buf.Bytes()
}

func buildXRefStreamPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	// Object stream with two objects (4 and 5)
	objStreamContent := "<< /Val 7 >> 5"
	header := "4 0 5 " + fmt.Sprintf("%d ", len("<< /Val 7 >>")+1)
	first := len(header)
	decoded := []byte(header + objStreamContent)
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n", first, len(decoded))
	buf.Write(decoded)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	entries := buildXRefStreamEntries(7, map[int]int{
		1: off1,
		2: off2,
		3: off3,
		6: xrefOffset,
	}, map[int]struct {
		objstm int
		idx    int
	}{
		4: {objstm: 3, idx: 0},
		5: {objstm: 3, idx: 1},
	})
	fmt.Fprintf(buf, "6 0 obj\n<< /Type /XRef /Size 7 /Root 1 0 R /W [1 4 1] /Index [0 7] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func buildXRefStreamEntries(size int, offsets map[int]int, objStreams map[int]struct {
	objstm int
	idx    int
}) []byte {
	entrySize := 6 // w: [1 4 1]
	total := make([]byte, entrySize*size)
	for obj, off := range offsets {
		idx := obj * entrySize
		total[idx] = 1
		total[idx+1] = byte(off >> 24)
		total[idx+2] = byte(off >> 16)
		total[idx+3] = byte(off >> 8)
		total[idx+4] = byte(off)
	}
	for obj, meta := range objStreams {
		idx := obj * entrySize
		total[idx] = 2
		total[idx+1] = byte(meta.objstm >> 24)
		total[idx+2] = byte(meta.objstm >> 16)
		total[idx+3] = byte(meta.objstm >> 8)
		total[idx+4] = byte(meta.objstm)
		total[idx+5] = byte(meta.idx)
	}
	return total
}

func buildHybridXRefPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	xrefStreamOff := buf.Len()
	entries := buildXRefStreamEntries(6, map[int]int{
		1: off1,
		2: off2,
		4: xrefStreamOff,
	}, nil)
	fmt.Fprintf(buf, "4 0 obj\n<< /Type /XRef /Size 6 /Root 1 0 R /W [1 4 1] /Index [0 6] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefStreamOff)

	// incremental update with hybrid xref table referencing the stream
	obj5Off := buf.Len()
	buf.WriteString("5 0 obj\n<< /Producer (inc) >>\nendobj\n")
	tableOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 1\n0000000000 65535 f \n5 1\n%010d 00000 n \n", obj5Off)
	fmt.Fprintf(buf, "trailer\n<< /Size 6 /Root 1 0 R /Prev %d /XRefStm %d >>\nstartxref\n%d\n%%%%EOF\n", xrefStreamOff, xrefStreamOff, tableOff)
	return buf.Bytes()
}
