// Package parser turns PDF bytes into a raw.Document. It reads classic xref
// tables, xref streams, hybrid files and incremental updates, and falls back
// to a full-file scan when the cross-reference data is damaged and the
// configured recovery strategy allows repairs.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
	"github.com/Peterrvisserr/WOOBARNEVELD/scanner"
)

// ErrEncrypted is returned for documents carrying an /Encrypt dictionary.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// SyntaxError describes malformed input at a byte offset.
type SyntaxError struct {
	Offset int64
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("syntax error at offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Recovery decides whether damaged files are repaired. Nil is strict.
	Recovery recovery.Strategy
	Scanner  scanner.Config
	Limits   filters.Limits
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Scanner.Recovery == nil {
		cfg.Scanner.Recovery = cfg.Recovery
	}
	return &DocumentParser{cfg: cfg}
}

var headerRe = regexp.MustCompile(`%PDF-(\d\.\d)`)

func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	data := readAll(r)
	if len(data) == 0 {
		return nil, &SyntaxError{Msg: "empty input"}
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := headerRe.FindSubmatch(head)
	if m == nil {
		if err := p.recover(errors.New("missing %PDF header"), 0, "header"); err != nil {
			return nil, &SyntaxError{Offset: 0, Msg: "missing %PDF header"}
		}
	}
	version := "1.4"
	if m != nil {
		version = string(m[1])
	}

	loader := newObjectLoader(data, p.cfg)
	table, err := readXRefChain(ctx, loader, data)
	if err != nil {
		if rerr := p.recover(fmt.Errorf("resolve xref: %w", err), 0, "xref"); rerr != nil {
			return nil, rerr
		}
		table, err = repair(ctx, loader, data)
		if err != nil {
			return nil, err
		}
	}
	loader.table = table

	if _, ok := table.trailer.Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	doc := raw.NewDocument(version)
	doc.Trailer = table.trailer
	for _, num := range table.objectNumbers() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := table.entries[num]
		obj, err := loader.load(ctx, num)
		if err != nil {
			if rerr := p.recover(fmt.Errorf("load object %d: %w", num, err), e.offset, "loader"); rerr != nil {
				return nil, rerr
			}
			obj, err = loader.loadRepaired(ctx, num)
			if err != nil {
				continue
			}
		}
		if isStructural(obj) {
			continue
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: e.gen}] = obj
	}
	if _, ok := doc.Trailer.Get("Root"); !ok {
		if ref, ok := findCatalog(doc); ok {
			doc.Trailer.Set("Root", raw.RefObj{R: ref})
		} else {
			return nil, &SyntaxError{Msg: "document catalog not found"}
		}
	}
	return doc, nil
}

func (p *DocumentParser) recover(err error, offset int64, component string) error {
	if p.cfg.Recovery == nil {
		return err
	}
	if p.cfg.Recovery.OnError(err, recovery.Location{ByteOffset: offset, Component: "parser:" + component}) == recovery.ActionFix {
		return nil
	}
	return err
}

// isStructural reports objects that only describe file layout. The writer
// emits a fresh classic cross-reference table, so these are dropped.
func isStructural(obj raw.Object) bool {
	s, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	t, _ := s.Dict.Name("Type")
	return t == "XRef" || t == "ObjStm"
}

func findCatalog(doc *raw.Document) (raw.ObjectRef, bool) {
	for _, ref := range doc.SortedRefs() {
		if d, ok := doc.Objects[ref].(*raw.DictObj); ok {
			if t, _ := d.Name("Type"); t == "Catalog" {
				return ref, true
			}
		}
	}
	return raw.ObjectRef{}, false
}

func readAll(r io.ReaderAt) []byte {
	if br, ok := r.(*bytes.Reader); ok {
		out := make([]byte, br.Size())
		n, _ := br.ReadAt(out, 0)
		return out[:n]
	}
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
