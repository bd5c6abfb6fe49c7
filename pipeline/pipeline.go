// Package pipeline runs a whole document through acquisition, detection and
// redaction and serialises the result.
//
// Pages are independent: each one moves through Acquire, Detect and Redact
// on a bounded pool of workers, and a page-indexed collector builds the
// report. Conditions local to a page become report warnings. Conditions
// that affect the run (an unreadable document, a recogniser that is not
// ready) abort it before any output is produced.
package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Peterrvisserr/WOOBARNEVELD/acquire"
	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/semantic"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/ocr"
	"github.com/Peterrvisserr/WOOBARNEVELD/raster"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
	"github.com/Peterrvisserr/WOOBARNEVELD/redact"
	"github.com/Peterrvisserr/WOOBARNEVELD/report"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

var (
	// ErrMalformedDocument wraps every failure to open the input, encrypted
	// input included.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrRecognizerUnavailable is returned when the entity recogniser or
	// the OCR engine is missing or not ready and pattern-only operation was
	// not allowed.
	ErrRecognizerUnavailable = errors.New("recognizer unavailable")

	// ErrRasterizerUnavailable is returned when rasterisation is requested
	// but no renderer is ready.
	ErrRasterizerUnavailable = errors.New("rasterizer unavailable")
)

// Config wires the collaborators and settings of a pipeline.
type Config struct {
	// Rasterizer renders pages for OCR and for rasterisation. Nil disables
	// both.
	Rasterizer raster.Rasterizer
	// Engine recognises scanned pages. Nil disables OCR.
	Engine ocr.Engine
	// Recognizer runs the entity pass. Nil requires AllowPatternOnly.
	Recognizer detect.EntityRecognizer

	// Rules defaults to detect.DefaultRules.
	Rules []detect.Rule
	// Labels defaults to detect.DefaultLabels.
	Labels []detect.EntityLabel
	// YearWindow defaults to detect.DefaultYearWindow.
	YearWindow detect.YearWindow

	Languages      []string
	RecognitionDPI int
	RasterDPI      int
	OCRTimeout     time.Duration

	// Workers bounds the pages processed at once. Zero means NumCPU.
	Workers int

	Rasterize        bool
	AllowPatternOnly bool
	// Lenient repairs damaged files instead of rejecting them.
	Lenient bool

	Writer writer.Config

	Logger observability.Logger
	Tracer observability.Tracer
}

type readiness interface {
	Ready(ctx context.Context) error
}

// Pipeline redacts documents. It is safe for concurrent use; readiness of
// the collaborators is checked by the first run whose context outlives
// the check, and the outcome is kept for later runs.
type Pipeline struct {
	cfg      Config
	acquirer *acquire.Acquirer
	detector *detect.Detector
	redactor *redact.Redactor
	logger   observability.Logger
	tracer   observability.Tracer

	mu      sync.Mutex
	checked bool
	ready   prepared
}

// prepared is the outcome of the readiness check.
type prepared struct {
	detector    *detect.Detector
	patternOnly bool
	warnings    []string
	err         error
}

// New builds a pipeline from cfg.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.RasterDPI <= 0 {
		cfg.RasterDPI = acquire.MinRecognitionDPI
	}

	acqOpts := []acquire.Option{
		acquire.WithDPI(cfg.RecognitionDPI),
		acquire.WithTimeout(cfg.OCRTimeout),
		acquire.WithLogger(cfg.Logger),
		acquire.WithTracer(cfg.Tracer),
	}
	if cfg.Rasterizer != nil {
		acqOpts = append(acqOpts, acquire.WithRasterizer(cfg.Rasterizer))
	}
	if cfg.Engine != nil {
		acqOpts = append(acqOpts, acquire.WithEngine(cfg.Engine))
	}
	if len(cfg.Languages) > 0 {
		acqOpts = append(acqOpts, acquire.WithLanguages(cfg.Languages...))
	}

	detOpts := []detect.Option{detect.WithLogger(cfg.Logger)}
	if cfg.Rules != nil {
		detOpts = append(detOpts, detect.WithRules(cfg.Rules))
	}
	if len(cfg.Labels) > 0 {
		detOpts = append(detOpts, detect.WithAllowedLabels(cfg.Labels...))
	}
	if cfg.YearWindow != (detect.YearWindow{}) {
		detOpts = append(detOpts, detect.WithYearWindow(cfg.YearWindow))
	}
	if cfg.Recognizer != nil {
		detOpts = append(detOpts, detect.WithRecognizer(cfg.Recognizer))
	}

	return &Pipeline{
		cfg:      cfg,
		acquirer: acquire.New(acqOpts...),
		detector: detect.New(detOpts...),
		redactor: redact.New(redact.NewToolkit(cfg.Rasterizer),
			redact.WithRasterize(cfg.Rasterize),
			redact.WithLogger(cfg.Logger),
			redact.WithTracer(cfg.Tracer),
		),
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}
}

// Detector returns the detector the pipeline was built with.
func (p *Pipeline) Detector() *detect.Detector { return p.detector }

// Acquirer returns the acquirer the pipeline was built with.
func (p *Pipeline) Acquirer() *acquire.Acquirer { return p.acquirer }

// Ready runs the readiness check, unless an earlier one completed, and
// returns its error.
func (p *Pipeline) Ready(ctx context.Context) error {
	return p.prepare(ctx).err
}

// prepare returns the cached readiness outcome. A check cut short by ctx
// says nothing about the collaborators and is not cached.
func (p *Pipeline) prepare(ctx context.Context) prepared {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked {
		return p.ready
	}
	res := p.check(ctx)
	if ctx.Err() != nil {
		return res
	}
	p.ready, p.checked = res, true
	return res
}

func (p *Pipeline) check(ctx context.Context) prepared {
	res := prepared{detector: p.detector}

	if p.cfg.Rasterize {
		if p.cfg.Rasterizer == nil {
			res.err = fmt.Errorf("%w: rasterisation requested without a renderer", ErrRasterizerUnavailable)
			return res
		}
		if err := readyOf(ctx, p.cfg.Rasterizer); err != nil {
			res.err = fmt.Errorf("%w: %w", ErrRasterizerUnavailable, err)
			return res
		}
	}

	// degrade records a missing collaborator, or fails the run when
	// pattern-only operation is not allowed.
	degrade := func(what string, err error) bool {
		if !p.cfg.AllowPatternOnly {
			res.err = fmt.Errorf("%w: %s: %w", ErrRecognizerUnavailable, what, err)
			return false
		}
		msg := fmt.Sprintf("%s unavailable, continuing without it: %v", what, err)
		p.logger.Warn("collaborator unavailable, degrading", observability.String("component", what), observability.Error("error", err))
		res.warnings = append(res.warnings, msg)
		return true
	}

	if p.cfg.Recognizer == nil {
		if !degrade("entity recognizer", errors.New("not configured")) {
			return res
		}
		res.patternOnly = true
	} else if err := readyOf(ctx, p.cfg.Recognizer); err != nil {
		if !degrade("entity recognizer", err) {
			return res
		}
		res.detector = p.detector.PatternOnly()
		res.patternOnly = true
	}

	if p.cfg.Engine != nil {
		var err error
		if p.cfg.Rasterizer == nil {
			err = errors.New("no renderer for scanned pages")
		} else if err = readyOf(ctx, p.cfg.Rasterizer); err == nil {
			if rc, ok := p.cfg.Engine.(ocr.ReadinessChecker); ok {
				err = rc.Ready(ctx, p.languages()...)
			}
		}
		if err != nil && !degrade("ocr engine", err) {
			return res
		}
	} else if !degrade("ocr engine", errors.New("not configured")) {
		return res
	}
	return res
}

func (p *Pipeline) languages() []string {
	if len(p.cfg.Languages) > 0 {
		return p.cfg.Languages
	}
	return []string{"nld"}
}

func readyOf(ctx context.Context, v any) error {
	if r, ok := v.(readiness); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Run redacts src and returns the redacted document with its report.
// Either both are returned or neither: a run that fails produces no
// output.
func (p *Pipeline) Run(ctx context.Context, src []byte) ([]byte, *report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	started := time.Now()
	ready := p.prepare(ctx)
	if ready.err != nil {
		return nil, nil, ready.err
	}

	doc, issues, err := p.open(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	col := report.NewCollector("", hex.EncodeToString(doc.SourceDigest[:]), len(doc.Pages), started)
	col.SetPatternOnly(ready.patternOnly)
	for _, w := range ready.warnings {
		col.Warn(w)
	}
	for _, issue := range issues {
		col.Warn("repaired: " + issue)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, page := range doc.Pages {
		g.Go(func() error {
			pr, err := p.processPage(gctx, ready.detector, page)
			if err != nil {
				return err
			}
			col.Record(pr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if p.cfg.Rasterize {
		if err := p.redactor.Rasterize(ctx, doc, p.cfg.RasterDPI, p.cfg.Workers); err != nil {
			return nil, nil, err
		}
		col.SetRasterized(true)
	}

	out, err := p.serialize(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	rep := col.Finish(time.Now())
	t := rep.Totals()
	p.logger.Info("document redacted",
		observability.Int("pages", t.Pages),
		observability.Int("detected", t.Detected),
		observability.Int("located", t.Located),
		observability.Int("unlocated", t.Unlocated),
		observability.Bool("rasterized", rep.Rasterized),
		observability.Duration("duration", rep.Duration),
	)
	return out, rep, nil
}

func (p *Pipeline) open(ctx context.Context, src []byte) (*semantic.Document, []string, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanOpen)
	defer span.Finish()

	opts := semantic.Options{Logger: p.logger}
	var lenient *recovery.LenientStrategy
	if p.cfg.Lenient {
		lenient = recovery.NewLenientStrategy()
		opts.Recovery = lenient
	}
	doc, err := semantic.Open(ctx, src, opts)
	if err != nil {
		span.SetError(err)
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	span.SetTag("pages", len(doc.Pages))
	var issues []string
	if lenient != nil {
		issues = lenient.Issues()
	}
	return doc, issues, nil
}

// processPage moves one page through Acquire, Detect and Redact. Only a
// failed commit is returned as an error; everything else becomes a
// warning on the page report.
func (p *Pipeline) processPage(ctx context.Context, det *detect.Detector, page *semantic.Page) (report.PageReport, error) {
	start := time.Now()
	pr := report.PageReport{Page: page.Index + 1}
	if err := ctx.Err(); err != nil {
		return pr, err
	}
	log := p.logger.With(observability.Int("page", page.Index+1))

	view, err := p.acquirer.Acquire(ctx, page.Document(), page.Index)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pr, ctxErr
		}
		log.Warn("page treated as empty", observability.Error("error", err))
		pr.Warnings = append(pr.Warnings, "text could not be acquired; page treated as empty")
	}
	pr.TextSource = view.Source.String()

	spans, err := p.detect(ctx, det, view)
	if err != nil {
		if !errors.Is(err, detect.ErrEntityPass) {
			return pr, fmt.Errorf("page %d: detect: %w", page.Index+1, err)
		}
		log.Warn("entity pass failed, pattern spans kept", observability.Error("error", err))
		pr.Warnings = append(pr.Warnings, "entity recognition failed; only pattern rules applied")
	}

	res, err := p.redactor.RedactPage(ctx, page, view, spans)
	if err != nil {
		return pr, fmt.Errorf("page %d: redact: %w", page.Index+1, err)
	}
	pr.Detected = res.Detected()
	pr.Located = res.Located()
	pr.Unlocated = res.Unlocated
	pr.Marks = len(res.Marks)
	pr.Glyphs = res.Glyphs()
	pr.Warnings = append(pr.Warnings, res.Warnings...)
	pr.Duration = time.Since(start)
	if err := res.Err(); err != nil {
		log.Warn("spans left unlocated", observability.Int("count", len(res.Unlocated)))
	}
	return pr, nil
}

func (p *Pipeline) detect(ctx context.Context, det *detect.Detector, view acquire.TextView) (detect.SpanSet, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanDetect)
	defer span.Finish()
	spans, err := det.Detect(ctx, view)
	if err != nil {
		span.SetError(err)
	}
	span.SetTag("spans", len(spans))
	return spans, err
}

func (p *Pipeline) serialize(ctx context.Context, doc *semantic.Document) ([]byte, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanSerialize)
	defer span.Finish()
	out, err := doc.Bytes(ctx, p.cfg.Writer)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("serialize: %w", err)
	}
	span.SetTag("bytes", len(out))
	return out, nil
}
