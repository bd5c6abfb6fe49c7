// Package redact maps detected spans onto page geometry and applies
// redactions: glyph removal plus an opaque cover per located box, and
// optionally replacement of whole pages by a flattened rendering.
package redact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/Peterrvisserr/WOOBARNEVELD/acquire"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/extractor"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/semantic"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

// ErrUnlocatedSpan marks spans for which no geometry was found. It is
// reported, never returned by RedactPage itself.
var ErrUnlocatedSpan = errors.New("sensitive span could not be located")

// SpanResult is the outcome for one span on one page.
type SpanResult struct {
	Text   string
	Origin detect.Origin
	Boxes  int
	Source semantic.MarkSource
}

// PageResult summarises the redaction of one page.
type PageResult struct {
	Page      int
	Spans     []SpanResult
	Unlocated []string
	Marks     []semantic.RedactionMark
	Warnings  []string
}

// Detected returns the number of spans handed to the page.
func (r PageResult) Detected() int { return len(r.Spans) }

// Located returns the number of spans with at least one box.
func (r PageResult) Located() int { return len(r.Spans) - len(r.Unlocated) }

// Glyphs returns the number of glyphs removed from the page.
func (r PageResult) Glyphs() int {
	n := 0
	for _, m := range r.Marks {
		n += m.Glyphs
	}
	return n
}

// Err wraps ErrUnlocatedSpan when any span was left unlocated.
func (r PageResult) Err() error {
	if len(r.Unlocated) == 0 {
		return nil
	}
	return fmt.Errorf("page %d: %d spans: %w", r.Page+1, len(r.Unlocated), ErrUnlocatedSpan)
}

// Redactor applies redactions page by page.
type Redactor struct {
	toolkit   *Toolkit
	rasterize bool
	logger    observability.Logger
	tracer    observability.Tracer
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithRasterize records that pages will be rasterised after commit, which
// removes residual image data under OCR-located boxes.
func WithRasterize(on bool) Option { return func(r *Redactor) { r.rasterize = on } }

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(r *Redactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(r *Redactor) {
		if t != nil {
			r.tracer = t
		}
	}
}

// New returns a redactor over toolkit.
func New(toolkit *Toolkit, opts ...Option) *Redactor {
	r := &Redactor{
		toolkit: toolkit,
		logger:  observability.NopLogger{},
		tracer:  observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RedactPage locates every span on page and commits a redaction for each
// box found. Spans are first searched in the native text layer and then
// among the OCR words of view. Spans without boxes are listed in
// Unlocated. An error means the page could not be committed and must not
// be written.
func (r *Redactor) RedactPage(ctx context.Context, page *semantic.Page, view acquire.TextView, spans detect.SpanSet) (PageResult, error) {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanRedact)
	defer span.Finish()
	span.SetTag("page", page.Index+1)
	span.SetTag("spans", len(spans))

	res := PageResult{Page: page.Index}
	if len(spans) == 0 {
		return res, nil
	}
	layer, err := r.toolkit.TextLayer(ctx, page)
	if err != nil {
		// A page whose content cannot be traced may still carry OCR words.
		r.logger.Warn("native text layer unavailable", observability.Int("page", page.Index+1), observability.Error("error", err))
		res.Warnings = append(res.Warnings, "native text layer could not be read")
		layer = extractor.NewTextLayer(nil)
	}

	var covers []Cover
	nativeBoxes, ocrBoxes := 0, 0
	for _, s := range spans.Sorted() {
		sr := SpanResult{Text: s.Text, Origin: s.Origin, Source: semantic.SourceNative}
		rects := layer.Search(s.Text)
		if len(rects) == 0 && len(view.Words) > 0 {
			rects = SearchWords(view.Words, s.Text)
			sr.Source = semantic.SourceOCR
		}
		sr.Boxes = len(rects)
		res.Spans = append(res.Spans, sr)
		if len(rects) == 0 {
			res.Unlocated = append(res.Unlocated, s.Text)
			r.logger.Warn("span not located",
				observability.Int("page", page.Index+1),
				observability.String("span", s.Text),
				observability.String("origin", s.Origin.String()),
				observability.String("text_source", view.Source.String()),
			)
			continue
		}
		if sr.Source == semantic.SourceOCR {
			ocrBoxes += len(rects)
		} else {
			nativeBoxes += len(rects)
		}
		for _, rect := range rects {
			covers = append(covers, Cover{Rect: rect, Source: sr.Source})
		}
	}

	marks, err := r.toolkit.CommitRedaction(ctx, page, covers)
	if err != nil {
		span.SetError(err)
		return res, err
	}
	res.Marks = marks

	if ocrBoxes > 0 && !r.rasterize {
		res.Warnings = append(res.Warnings, "image content under OCR-located boxes is covered but still present; enable rasterisation to remove it")
	}
	if nativeBoxes > 0 {
		r.verify(ctx, page, &res)
	}
	r.logger.Debug("page redacted",
		observability.Int("page", page.Index+1),
		observability.Int("spans", res.Detected()),
		observability.Int("located", res.Located()),
		observability.Int("marks", len(res.Marks)),
		observability.Int("glyphs", res.Glyphs()),
	)
	return res, nil
}

// verify re-reads the page and warns about located spans whose text is
// still extractable.
func (r *Redactor) verify(ctx context.Context, page *semantic.Page, res *PageResult) {
	layer, err := r.toolkit.TextLayer(ctx, page)
	if err != nil {
		res.Warnings = append(res.Warnings, "redacted page could not be re-read for verification")
		return
	}
	residual := 0
	for _, s := range res.Spans {
		if s.Boxes > 0 && s.Source == semantic.SourceNative && layer.Contains(s.Text) {
			residual++
		}
	}
	if residual > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d redacted spans are still extractable", residual))
		r.logger.Warn("redacted text still extractable", observability.Int("page", page.Index+1), observability.Int("spans", residual))
	}
}

// Rasterize replaces every page of doc by a flattened rendering at dpi.
// The document is serialised once and pages are rendered by at most
// workers goroutines. It fails with semantic.ErrPendingIntents if any page
// still holds uncommitted intents.
func (r *Redactor) Rasterize(ctx context.Context, doc *semantic.Document, dpi, workers int) error {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanRaster)
	defer span.Finish()

	pdf, err := doc.Bytes(ctx, writer.Config{})
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, page := range doc.Pages {
		g.Go(func() error {
			img, err := r.toolkit.Render(ctx, pdf, page.Index, dpi)
			if err != nil {
				return err
			}
			return r.toolkit.ReplacePageContent(page, img)
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		return fmt.Errorf("rasterize: %w", err)
	}
	r.logger.Info("pages rasterised", observability.Int("pages", len(doc.Pages)), observability.Int("dpi", dpi))
	return nil
}

// SearchWords finds literal among OCR words and returns one rectangle per
// line of every occurrence. Words are compared case-insensitively with
// punctuation trimmed from their edges.
func SearchWords(words []acquire.Word, literal string) []coords.Rect {
	tokens := wordTokens(literal)
	if len(tokens) == 0 {
		return nil
	}
	keys := make([]string, len(words))
	for i, w := range words {
		keys[i] = wordKey(w.Text)
	}
	var out []coords.Rect
	for i := 0; i+len(tokens) <= len(words); {
		if !tokensMatch(keys[i:i+len(tokens)], tokens) {
			i++
			continue
		}
		out = append(out, lineRects(words[i:i+len(tokens)])...)
		i += len(tokens)
	}
	return out
}

func wordTokens(s string) []string {
	var out []string
	for _, f := range strings.Fields(extractor.Normalize(s)) {
		if k := wordKey(f); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func wordKey(s string) string {
	s = strings.TrimFunc(extractor.Normalize(s), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return strings.ToLower(s)
}

func tokensMatch(keys, tokens []string) bool {
	for i := range tokens {
		if keys[i] != tokens[i] {
			return false
		}
	}
	return true
}

// lineRects joins consecutive words into one rectangle per text line.
func lineRects(words []acquire.Word) []coords.Rect {
	var out []coords.Rect
	var cur coords.Rect
	for _, w := range words {
		if !cur.Empty() && !sameLine(cur, w.Rect) {
			out = append(out, cur)
			cur = coords.Rect{}
		}
		cur = cur.Union(w.Rect)
	}
	if !cur.Empty() {
		out = append(out, cur)
	}
	return out
}

func sameLine(a, b coords.Rect) bool {
	mid := (b.LLY + b.URY) / 2
	return mid >= a.LLY && mid <= a.URY
}
