// Package acquire produces the linear text of a page: the native text layer
// when the page has one, otherwise an OCR transcript of the rendered page.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/extractor"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/semantic"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/ocr"
	"github.com/Peterrvisserr/WOOBARNEVELD/raster"
)

// ErrAcquisition marks a page whose text could not be obtained. Callers
// treat the page as empty and report a warning.
var ErrAcquisition = errors.New("text acquisition failed")

// MinRecognitionDPI is the lowest resolution pages are rendered at for OCR.
const MinRecognitionDPI = 300

// Source tells where the text of a view came from.
type Source int

const (
	Native Source = iota
	Recognized
)

func (s Source) String() string {
	if s == Recognized {
		return "recognized"
	}
	return "native"
}

// Word is a recognised word placed in default user space.
type Word struct {
	Text string
	Rect coords.Rect
}

// TextView is the acquired text of one page. Words is only set for
// recognised pages and holds the OCR word boxes.
type TextView struct {
	Content string
	Source  Source
	Words   []Word
}

// Acquirer extracts page text, falling back to OCR.
type Acquirer struct {
	rasterizer raster.Rasterizer
	engine     ocr.Engine
	languages  []string
	dpi        int
	timeout    time.Duration
	logger     observability.Logger
	tracer     observability.Tracer
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithRasterizer sets the renderer used before OCR.
func WithRasterizer(r raster.Rasterizer) Option { return func(a *Acquirer) { a.rasterizer = r } }

// WithEngine sets the OCR engine.
func WithEngine(e ocr.Engine) Option { return func(a *Acquirer) { a.engine = e } }

// WithLanguages sets the OCR language hints, e.g. "nld".
func WithLanguages(langs ...string) Option {
	return func(a *Acquirer) { a.languages = append([]string(nil), langs...) }
}

// WithDPI sets the OCR render resolution. Values below MinRecognitionDPI
// are raised to it.
func WithDPI(dpi int) Option { return func(a *Acquirer) { a.dpi = dpi } }

// WithTimeout bounds rendering plus recognition of one page.
func WithTimeout(d time.Duration) Option { return func(a *Acquirer) { a.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(a *Acquirer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(a *Acquirer) {
		if t != nil {
			a.tracer = t
		}
	}
}

// New returns an acquirer. Without a rasteriser and engine it only reads
// native text.
func New(opts ...Option) *Acquirer {
	a := &Acquirer{
		languages: []string{"nld"},
		logger:    observability.NopLogger{},
		tracer:    observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dpi < MinRecognitionDPI {
		a.dpi = MinRecognitionDPI
	}
	return a
}

// DPI returns the render resolution used for OCR.
func (a *Acquirer) DPI() int { return a.dpi }

// Acquire returns the text of page index. Errors wrap ErrAcquisition; the
// returned view is then empty and marked Recognized.
func (a *Acquirer) Acquire(ctx context.Context, doc *semantic.Document, index int) (TextView, error) {
	if index < 0 || index >= len(doc.Pages) {
		return TextView{}, fmt.Errorf("%w: page index %d out of range", ErrAcquisition, index)
	}
	ctx, span := a.tracer.StartSpan(ctx, observability.SpanAcquire)
	defer span.Finish()
	span.SetTag("page", index+1)

	text, err := NativeText(ctx, doc, index)
	if err != nil {
		a.logger.Warn("native text extraction failed", observability.Int("page", index+1), observability.Error("error", err))
	}
	if strings.TrimSpace(text) != "" {
		return TextView{Content: text, Source: Native}, nil
	}
	view, err := a.recognize(ctx, doc, index)
	if err != nil {
		span.SetError(err)
		return TextView{Source: Recognized}, fmt.Errorf("%w: page %d: %w", ErrAcquisition, index+1, err)
	}
	a.logger.Debug("page recognised",
		observability.Int("page", index+1),
		observability.Int("words", len(view.Words)),
		observability.Int("text_len", len(view.Content)),
	)
	return view, nil
}

// NativeText returns the native text layer of page index.
func NativeText(ctx context.Context, doc *semantic.Document, index int) (string, error) {
	var text string
	err := doc.WithRead(func(r *raw.Document) error {
		ex, err := extractor.New(r, extractor.WithFontCache(doc.Fonts()), extractor.WithLimits(doc.Limits()))
		if err != nil {
			return err
		}
		layer, err := ex.PageLayer(ctx, doc.Pages[index].Dict())
		if err != nil {
			return err
		}
		text = layer.Text()
		return nil
	})
	return text, err
}

func (a *Acquirer) recognize(ctx context.Context, doc *semantic.Document, index int) (TextView, error) {
	if a.rasterizer == nil || a.engine == nil {
		return TextView{}, errors.New("no recognition engine configured")
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	pdf, err := doc.SourceBytes(ctx)
	if err != nil {
		return TextView{}, err
	}
	img, err := a.rasterizer.Render(ctx, pdf, index, a.dpi)
	if err != nil {
		return TextView{}, fmt.Errorf("render: %w", err)
	}
	in, err := ocr.InputFromImage(img, index, ocr.WithLanguages(a.languages...), ocr.WithDPI(a.dpi))
	if err != nil {
		return TextView{}, err
	}
	res, err := recognizeWithin(ctx, a.engine, in)
	if err != nil {
		return TextView{}, fmt.Errorf("recognize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return TextView{}, err
	}

	page := doc.Pages[index]
	b := img.Bounds()
	mapping := raster.NewPixelMapping(page.CropBox, page.Rotate, b.Dx(), b.Dy())
	view := TextView{Content: strings.TrimSpace(res.PlainText), Source: Recognized}
	for _, w := range res.Words() {
		if strings.TrimSpace(w.Text) == "" || w.Bounds.IsEmpty() {
			continue
		}
		r := w.Bounds
		view.Words = append(view.Words, Word{Text: w.Text, Rect: mapping.Rect(r.X, r.Y, r.Width, r.Height)})
	}
	return view, nil
}

type recognition struct {
	res ocr.Result
	err error
}

// recognizeWithin returns when the engine answers or ctx ends, whichever
// comes first. Engines backed by a blocking native call do not observe
// ctx; their late result is discarded and the worker is released.
func recognizeWithin(ctx context.Context, engine ocr.Engine, in ocr.Input) (ocr.Result, error) {
	done := make(chan recognition, 1)
	go func() {
		res, err := engine.Recognize(ctx, in)
		done <- recognition{res, err}
	}()
	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	}
}
