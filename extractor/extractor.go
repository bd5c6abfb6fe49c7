// Package extractor turns traced page content into a searchable text layer.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/fonts"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// Extractor pulls text and glyph geometry out of a parsed document.
type Extractor struct {
	raw    *raw.Document
	pages  []raw.PageEntry
	tracer *contentstream.Tracer
}

// Option configures an Extractor.
type Option func(*options)

type options struct {
	fonts  *fonts.Cache
	limits filters.Limits
}

// WithFontCache shares decoded fonts with other users of the document.
func WithFontCache(c *fonts.Cache) Option { return func(o *options) { o.fonts = c } }

// WithLimits bounds stream decompression.
func WithLimits(l filters.Limits) Option { return func(o *options) { o.limits = l } }

// New creates an extractor over doc.
func New(doc *raw.Document, opts ...Option) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	if _, ok := doc.Catalog(); !ok {
		return nil, errors.New("pdf catalog not found in trailer")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Extractor{
		raw:    doc,
		pages:  doc.Pages(),
		tracer: contentstream.NewTracer(doc, o.fonts, o.limits),
	}, nil
}

// PageCount returns the number of pages.
func (e *Extractor) PageCount() int { return len(e.pages) }

// PageText captures extracted text of one page.
type PageText struct {
	Page    int
	Content string
}

// ExtractText returns the text of every page, including pages without text.
func (e *Extractor) ExtractText(ctx context.Context) ([]PageText, error) {
	out := make([]PageText, 0, len(e.pages))
	for i := range e.pages {
		layer, err := e.Layer(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		out = append(out, PageText{Page: i, Content: strings.TrimSpace(layer.Text())})
	}
	return out, nil
}

// Layer traces page index and returns its text layer.
func (e *Extractor) Layer(ctx context.Context, index int) (*TextLayer, error) {
	if index < 0 || index >= len(e.pages) {
		return nil, fmt.Errorf("page index %d out of range", index)
	}
	return e.PageLayer(ctx, e.pages[index].Dict)
}

// PageLayer traces a page dictionary and returns its text layer.
func (e *Extractor) PageLayer(ctx context.Context, page *raw.DictObj) (*TextLayer, error) {
	layout, err := e.tracer.TracePage(ctx, page)
	if err != nil {
		return nil, err
	}
	return NewTextLayer(layout.Glyphs), nil
}
