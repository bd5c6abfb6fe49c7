package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func sampleReport() *Report {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewCollector("brief.pdf", "ab12", 2, start)
	c.Record(PageReport{Page: 1, TextSource: "native", Detected: 2, Located: 2, Marks: 2, Glyphs: 19})
	c.Record(PageReport{
		Page: 2, TextSource: "recognized", Detected: 1, Located: 0,
		Unlocated: []string{"Jan Jansen"},
		Warnings:  []string{"ocr timed out"},
	})
	c.Warn("entity recognition skipped")
	c.SetPatternOnly(true)
	return c.Finish(start.Add(1500 * time.Millisecond))
}

func TestCollectorOrdersPages(t *testing.T) {
	c := NewCollector("", "", 8, time.Now())
	var wg sync.WaitGroup
	for i := 8; i >= 1; i-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(PageReport{Page: i, Detected: i})
		}()
	}
	wg.Wait()
	c.Record(PageReport{Page: 9})
	r := c.Finish(time.Now())
	if len(r.Pages) != 8 {
		t.Fatalf("expected 8 pages, got %d", len(r.Pages))
	}
	for i, p := range r.Pages {
		if p.Page != i+1 || p.Detected != i+1 {
			t.Fatalf("slot %d holds %+v", i, p)
		}
	}
	if m := c.Missing(); len(m) != 0 {
		t.Fatalf("unexpected missing pages %v", m)
	}
}

func TestCollectorMissing(t *testing.T) {
	c := NewCollector("", "", 3, time.Now())
	c.Record(PageReport{Page: 2})
	m := c.Missing()
	if len(m) != 2 || m[0] != 1 || m[1] != 3 {
		t.Fatalf("unexpected missing pages %v", m)
	}
	if r := c.Finish(time.Now()); r.Pages[0].Page != 1 || r.Pages[2].Page != 3 {
		t.Fatalf("unrecorded slots lost their page number: %+v", r.Pages)
	}
}

func TestTotals(t *testing.T) {
	r := sampleReport()
	got := r.Totals()
	want := Totals{Pages: 2, Detected: 3, Located: 2, Unlocated: 1, Marks: 2, Glyphs: 19, Warnings: 2}
	if got != want {
		t.Fatalf("Totals() = %+v, want %+v", got, want)
	}
	if !r.HasUnlocated() || !r.HasWarnings() {
		t.Fatalf("expected unlocated spans and warnings")
	}
	if r.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %v", r.Duration)
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf).Write(sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.Contains(buf.String(), "\n  ") {
		t.Fatalf("compact output expected")
	}
	var decoded struct {
		SourceDigest string       `json:"source_digest"`
		PatternOnly  bool         `json:"pattern_only"`
		Pages        []PageReport `json:"pages"`
		Totals       Totals       `json:"totals"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SourceDigest != "ab12" || !decoded.PatternOnly || len(decoded.Pages) != 2 {
		t.Fatalf("unexpected document %+v", decoded)
	}
	if decoded.Totals.Unlocated != 1 || decoded.Pages[1].Unlocated[0] != "Jan Jansen" {
		t.Fatalf("unlocated spans missing: %+v", decoded)
	}

	buf.Reset()
	if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"pages\"") {
		t.Fatalf("indented output expected:\n%s", buf.String())
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewMarkdownWriter(&buf).Write(sampleReport())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if n == 0 {
		t.Fatalf("no bytes reported")
	}
	for _, want := range []string{
		"# Redaction Report",
		"brief.pdf",
		"## Pages",
		"## Unlocated spans",
		"page 2: `Jan Jansen`",
		"page 2: ocr timed out",
		"entity recognition skipped",
		"pattern rules only",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown lacks %q:\n%s", want, out)
		}
	}
}

func TestMarkdownWriterClean(t *testing.T) {
	c := NewCollector("clean.pdf", "00", 1, time.Now())
	c.Record(PageReport{Page: 1, TextSource: "native"})
	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(c.Finish(time.Now())); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Unlocated spans") || strings.Contains(out, "## Warnings") {
		t.Fatalf("clean report lists problems:\n%s", out)
	}
	if !strings.Contains(out, "No sensitive spans were detected.") {
		t.Fatalf("missing note:\n%s", out)
	}
}

func TestHTMLWriter(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewHTMLWriter(&buf).Write(sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<!DOCTYPE html>", "<h1>Redaction Report</h1>", "<code>Jan Jansen</code>", "</html>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("html lacks %q:\n%s", want, out)
		}
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		path string
		want Format
		err  bool
	}{
		{"out/report.json", FormatJSON, false},
		{"report.MD", FormatMarkdown, false},
		{"report.markdown", FormatMarkdown, false},
		{"report.html", FormatHTML, false},
		{"report.txt", "", true},
		{"report", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, err := FormatFromPath(tc.path)
			if tc.err {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Fatalf("expected ErrUnknownFormat, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("FormatFromPath(%q) = %q, %v", tc.path, got, err)
			}
			if _, err := NewWriter(got, &bytes.Buffer{}); err != nil {
				t.Fatalf("NewWriter(%q): %v", got, err)
			}
		})
	}
	if _, err := NewWriter("pdf", &bytes.Buffer{}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
