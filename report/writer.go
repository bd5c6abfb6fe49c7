package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ErrUnknownFormat is returned for report formats other than json, markdown
// and html.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names a report encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts json, markdown (or md) and html (or htm).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from the file extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Writer renders a report to its destination.
type Writer interface {
	// Write renders r and returns the number of bytes written.
	Write(r *Report) (int, error)
}

// NewWriter returns the writer for format f.
func NewWriter(f Format, out io.Writer) (Writer, error) {
	switch f {
	case FormatJSON:
		return NewJSONWriter(out, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(out), nil
	case FormatHTML:
		return NewHTMLWriter(out), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// JSONWriter renders reports as JSON, totals included.
type JSONWriter struct {
	output io.Writer
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents the output by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) { w.indent = "  " }
}

// NewJSONWriter creates a JSONWriter that writes to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{output: output}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type jsonReport struct {
	*Report
	Totals Totals `json:"totals"`
}

// Write renders r as one JSON document.
func (w *JSONWriter) Write(r *Report) (int, error) {
	var (
		data []byte
		err  error
	)
	doc := jsonReport{Report: r, Totals: r.Totals()}
	if w.indent != "" {
		data, err = json.MarshalIndent(doc, "", w.indent)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, fmt.Errorf("report: marshal: %w", err)
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// MarkdownWriter renders reports as GitHub-flavoured Markdown.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that writes to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders r as Markdown.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeHeader(md, r)
	w.writeAlert(md, r)
	w.writeSummary(md, r)
	w.writePages(md, r)
	w.writeUnlocated(md, r)
	w.writeWarnings(md, r)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *Report) {
	md.H1("Redaction Report")
	md.PlainText("")

	source := r.Source
	if source == "" {
		source = "-"
	}
	entity := "enabled"
	if r.PatternOnly {
		entity = "skipped (pattern rules only)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Source", source},
			{"Digest (BLAKE2b-256)", "`" + r.SourceDigest + "`"},
			{"Started", r.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", r.Duration.Round(time.Millisecond).String()},
			{"Pages", strconv.Itoa(len(r.Pages))},
			{"Rasterized", yesNo(r.Rasterized)},
			{"Entity recognition", entity},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *Report) {
	t := r.Totals()
	switch {
	case t.Unlocated > 0:
		md.Cautionf("%d detected spans could not be located and may still be visible. Review the pages listed below by hand.", t.Unlocated)
	case r.HasWarnings():
		md.Warningf("All %d detected spans were redacted, with %d warnings.", t.Detected, t.Warnings)
	case t.Detected == 0:
		md.Note("No sensitive spans were detected.")
	default:
		md.Tip("All detected spans were located and redacted.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, r *Report) {
	t := r.Totals()
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Detected spans", strconv.Itoa(t.Detected)},
			{"Located spans", strconv.Itoa(t.Located)},
			{"Unlocated spans", strconv.Itoa(t.Unlocated)},
			{"Redaction marks", strconv.Itoa(t.Marks)},
			{"Glyphs removed", strconv.Itoa(t.Glyphs)},
			{"Warnings", strconv.Itoa(t.Warnings)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, r *Report) {
	if len(r.Pages) == 0 {
		return
	}
	md.H2("Pages")
	md.PlainText("")
	rows := make([][]string, len(r.Pages))
	for i, p := range r.Pages {
		src := p.TextSource
		if src == "" {
			src = "-"
		}
		rows[i] = []string{
			strconv.Itoa(p.Page),
			src,
			strconv.Itoa(p.Detected),
			strconv.Itoa(p.Located),
			strconv.Itoa(len(p.Unlocated)),
			strconv.Itoa(p.Marks),
			strconv.Itoa(p.Glyphs),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Page", "Text source", "Detected", "Located", "Unlocated", "Marks", "Glyphs"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeUnlocated(md *markdown.Markdown, r *Report) {
	if !r.HasUnlocated() {
		return
	}
	md.H2("Unlocated spans")
	md.PlainText("")
	var items []string
	for _, p := range r.Pages {
		for _, s := range p.Unlocated {
			items = append(items, fmt.Sprintf("page %d: `%s`", p.Page, s))
		}
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, r *Report) {
	if !r.HasWarnings() {
		return
	}
	md.H2("Warnings")
	md.PlainText("")
	items := append([]string(nil), r.Warnings...)
	for _, p := range r.Pages {
		for _, msg := range p.Warnings {
			items = append(items, fmt.Sprintf("page %d: %s", p.Page, msg))
		}
	}
	md.BulletList(items...)
	md.PlainText("")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// HTMLWriter renders the Markdown report to a standalone HTML page.
type HTMLWriter struct {
	output io.Writer
	md     goldmark.Markdown
}

// NewHTMLWriter creates an HTMLWriter that writes to output.
func NewHTMLWriter(output io.Writer) *HTMLWriter {
	return &HTMLWriter{
		output: output,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

const htmlHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Redaction Report</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #999; padding: 0.2em 0.6em; }
</style>
</head>
<body>
`

const htmlTail = "</body>\n</html>\n"

// Write renders r as HTML.
func (w *HTMLWriter) Write(r *Report) (int, error) {
	var src bytes.Buffer
	if _, err := NewMarkdownWriter(&src).Write(r); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	buf.WriteString(htmlHead)
	if err := w.md.Convert(src.Bytes(), &buf); err != nil {
		return 0, fmt.Errorf("report: render html: %w", err)
	}
	buf.WriteString(htmlTail)
	return w.output.Write(buf.Bytes())
}
