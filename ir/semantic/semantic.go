// Package semantic is the page-level view of a PDF that redaction works
// on: pages with their boxes, pending redaction intents and committed
// marks, over a shared raw object graph.
package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/Peterrvisserr/WOOBARNEVELD/contentstream"
	"github.com/Peterrvisserr/WOOBARNEVELD/coords"
	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/fonts"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
	"github.com/Peterrvisserr/WOOBARNEVELD/parser"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

var (
	// ErrPendingIntents is returned when a document is serialised while a
	// page still holds uncommitted redaction intents.
	ErrPendingIntents = errors.New("page has pending redaction intents")
	// ErrNoPages is returned for documents without a page tree.
	ErrNoPages = errors.New("document has no pages")
)

// Options configures how a document is opened.
type Options struct {
	// Recovery repairs damaged files. Nil parses strictly.
	Recovery recovery.Strategy
	Limits   filters.Limits
	Logger   observability.Logger
}

// Document is an opened PDF. Reads of the object graph take a shared lock
// and mutations an exclusive one, so page workers can run in parallel.
type Document struct {
	Pages []*Page
	// SourceDigest is the BLAKE2b-256 digest of the bytes the document was
	// opened from. It is zero for documents built in memory.
	SourceDigest [32]byte

	mu     sync.RWMutex
	source []byte
	raw    *raw.Document
	fonts  *fonts.Cache
	limits filters.Limits
	logger observability.Logger
}

// Open parses data into a document.
func Open(ctx context.Context, data []byte, opts Options) (*Document, error) {
	p := parser.NewDocumentParser(parser.Config{Recovery: opts.Recovery, Limits: opts.Limits})
	rawDoc, err := p.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	doc, err := FromRaw(rawDoc, opts)
	if err != nil {
		return nil, err
	}
	doc.SourceDigest = blake2b.Sum256(data)
	doc.source = data
	return doc, nil
}

// FromRaw wraps an already parsed object graph.
func FromRaw(rawDoc *raw.Document, opts Options) (*Document, error) {
	if rawDoc.Encrypted {
		return nil, parser.ErrEncrypted
	}
	if _, ok := rawDoc.Catalog(); !ok {
		return nil, writer.ErrNoCatalog
	}
	entries := rawDoc.Pages()
	if len(entries) == 0 {
		return nil, ErrNoPages
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	d := &Document{
		raw:    rawDoc,
		fonts:  fonts.NewCache(rawDoc, opts.Limits),
		limits: opts.Limits,
		logger: logger,
	}
	for i, e := range entries {
		d.Pages = append(d.Pages, newPage(d, i, e))
	}
	logger.Debug("document opened", observability.Int("pages", len(d.Pages)), observability.String("version", rawDoc.Version))
	return d, nil
}

// Version returns the PDF header version.
func (d *Document) Version() string { return d.raw.Version }

// Fonts returns the font cache shared by every reader of the document.
func (d *Document) Fonts() *fonts.Cache { return d.fonts }

// Limits returns the decompression limits the document was opened with.
func (d *Document) Limits() filters.Limits { return d.limits }

// WithRead runs fn with shared access to the object graph. fn must not
// modify it.
func (d *Document) WithRead(fn func(*raw.Document) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(d.raw)
}

// WithWrite runs fn with exclusive access to the object graph.
func (d *Document) WithWrite(fn func(*raw.Document) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.raw)
}

// SourceBytes returns the bytes the document was opened from. Documents
// built in memory are serialised as they are now, pending intents aside.
func (d *Document) SourceBytes(ctx context.Context) ([]byte, error) {
	if d.source != nil {
		return d.source, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := writer.New().Write(ctx, d.raw, &buf, writer.Config{}); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return buf.Bytes(), nil
}

// Bytes serialises the document. It fails with ErrPendingIntents while any
// page holds intents that were never committed.
func (d *Document) Bytes(ctx context.Context, cfg writer.Config) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.Pages {
		if len(p.pending) > 0 {
			return nil, fmt.Errorf("page %d: %w", p.Index+1, ErrPendingIntents)
		}
	}
	var buf bytes.Buffer
	if err := writer.New().Write(ctx, d.raw, &buf, cfg); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return buf.Bytes(), nil
}

// Stage is the lifecycle state of a redaction mark.
type Stage int

const (
	StagePending Stage = iota
	StageCommitted
)

func (s Stage) String() string {
	if s == StageCommitted {
		return "committed"
	}
	return "pending"
}

// MarkSource tells which text layer located a redaction area.
type MarkSource int

const (
	SourceNative MarkSource = iota
	SourceOCR
)

func (s MarkSource) String() string {
	if s == SourceOCR {
		return "ocr"
	}
	return "native"
}

// Intent is a rectangle queued for redaction on a page.
type Intent struct {
	Rect   coords.Rect
	Source MarkSource
}

// RedactionMark is a committed redaction.
type RedactionMark struct {
	Rect   coords.Rect
	Stage  Stage
	Glyphs int
	Source MarkSource
}

// Page models a single PDF page. Boxes are in default user space.
type Page struct {
	Index    int
	Ref      raw.ObjectRef
	MediaBox coords.Rect
	CropBox  coords.Rect
	Rotate   int // degrees: 0/90/180/270

	doc        *Document
	dict       *raw.DictObj
	pending    []Intent
	marks      []RedactionMark
	rasterized bool
}

func newPage(d *Document, index int, e raw.PageEntry) *Page {
	p := &Page{Index: index, Ref: e.Ref, doc: d, dict: e.Dict}
	p.MediaBox = inheritedBox(d.raw, e.Dict, "MediaBox")
	if p.MediaBox.Empty() {
		// US Letter, the reader default for pages without a box.
		p.MediaBox = coords.Rect{URX: 612, URY: 792}
	}
	p.CropBox = p.MediaBox
	if crop := inheritedBox(d.raw, e.Dict, "CropBox"); !crop.Empty() {
		if c := crop.Intersect(p.MediaBox); !c.Empty() {
			p.CropBox = c
		}
	}
	if v, ok := contentstream.Inherited(d.raw, e.Dict, "Rotate"); ok {
		if n, ok := d.raw.ResolveNumber(v); ok {
			p.Rotate = normalizeRotation(int(n))
		}
	}
	return p
}

func inheritedBox(doc *raw.Document, page *raw.DictObj, key string) coords.Rect {
	v, ok := contentstream.Inherited(doc, page, key)
	if !ok {
		return coords.Rect{}
	}
	arr, ok := doc.ResolveArray(v)
	if !ok || len(arr.Items) != 4 {
		return coords.Rect{}
	}
	var n [4]float64
	for i, item := range arr.Items {
		f, ok := doc.ResolveNumber(item)
		if !ok {
			return coords.Rect{}
		}
		n[i] = f
	}
	return coords.NewRect(n[0], n[1], n[2], n[3])
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg - deg%90
}

// Document returns the document the page belongs to.
func (p *Page) Document() *Document { return p.doc }

// Dict returns the raw page dictionary. Callers hold the document lock.
func (p *Page) Dict() *raw.DictObj { return p.dict }

// AddIntent queues rect for redaction. Empty rectangles are ignored.
func (p *Page) AddIntent(rect coords.Rect, source MarkSource) bool {
	if rect.Empty() {
		return false
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	p.pending = append(p.pending, Intent{Rect: rect, Source: source})
	return true
}

// Pending returns a copy of the queued intents.
func (p *Page) Pending() []Intent {
	p.doc.mu.RLock()
	defer p.doc.mu.RUnlock()
	return append([]Intent(nil), p.pending...)
}

// Marks returns a copy of the committed marks in commit order.
func (p *Page) Marks() []RedactionMark {
	p.doc.mu.RLock()
	defer p.doc.mu.RUnlock()
	return append([]RedactionMark(nil), p.marks...)
}

// Rasterized reports whether the page content was replaced by an image.
func (p *Page) Rasterized() bool {
	p.doc.mu.RLock()
	defer p.doc.mu.RUnlock()
	return p.rasterized
}
