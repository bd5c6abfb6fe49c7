package writer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// ErrNoCatalog is returned when the trailer has no usable /Root.
var ErrNoCatalog = errors.New("document has no catalog")

type impl struct{}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	rootObj, ok := doc.Trailer.Get("Root")
	if !ok {
		return ErrNoCatalog
	}
	catalog, ok := doc.ResolveDict(rootObj)
	if !ok {
		return ErrNoCatalog
	}

	trailer := raw.Dict()
	trailer.Set("Root", rootObj)
	if info, ok := doc.Trailer.Get("Info"); ok && !cfg.StripMetadata {
		trailer.Set("Info", info)
	}

	// Collect reachable objects in discovery order and renumber them
	// densely from 1.
	renumber := make(map[raw.ObjectRef]raw.ObjectRef)
	var order []raw.ObjectRef
	var visit func(o raw.Object)
	visit = func(o raw.Object) {
		switch v := o.(type) {
		case raw.RefObj:
			if _, seen := renumber[v.R]; seen {
				return
			}
			target, exists := doc.Objects[v.R]
			if !exists {
				return
			}
			renumber[v.R] = raw.ObjectRef{Num: len(order) + 1}
			order = append(order, v.R)
			visit(target)
		case *raw.ArrayObj:
			for _, it := range v.Items {
				visit(it)
			}
		case *raw.DictObj:
			for _, k := range v.Keys() {
				if cfg.StripMetadata && v == catalog && k == "Metadata" {
					continue
				}
				visit(v.KV[k])
			}
		case *raw.StreamObj:
			visit(v.Dict)
		}
	}
	visit(trailer)

	version := string(cfg.Version)
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = string(PDF17)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)
	offsets := make([]int64, len(order)+1)
	for i, oldRef := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := rewriteRefs(doc.Objects[oldRef], renumber)
		if cfg.StripMetadata && doc.Objects[oldRef] == raw.Object(catalog) {
			obj.(*raw.DictObj).Delete("Metadata")
		}
		if st, ok := obj.(*raw.StreamObj); ok {
			obj = prepareStream(st, cfg)
		}
		offsets[i+1] = int64(buf.Len())
		serialized, err := w.SerializeObject(renumber[oldRef], obj)
		if err != nil {
			return err
		}
		buf.Write(serialized)
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(order)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(order); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}

	finalTrailer := rewriteRefs(trailer, renumber).(*raw.DictObj)
	if cfg.StripMetadata {
		finalTrailer.Delete("Metadata")
	}
	finalTrailer.Set("Size", raw.NumberInt(int64(len(order)+1)))
	id := fileID(buf.Bytes(), cfg)
	finalTrailer.Set("ID", raw.NewArray(raw.HexStr(id), raw.HexStr(id)))
	buf.WriteString("trailer\n")
	writeObject(&buf, finalTrailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// rewriteRefs returns a copy of o with references renumbered. Dangling
// references become null.
func rewriteRefs(o raw.Object, renumber map[raw.ObjectRef]raw.ObjectRef) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		if nr, ok := renumber[v.R]; ok {
			return raw.RefObj{R: nr}
		}
		return raw.NullObj{}
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = rewriteRefs(it, renumber)
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, it := range v.KV {
			out.KV[k] = rewriteRefs(it, renumber)
		}
		return out
	case *raw.StreamObj:
		return &raw.StreamObj{Dict: rewriteRefs(v.Dict, renumber).(*raw.DictObj), Data: v.Data}
	default:
		return o
	}
}

func prepareStream(st *raw.StreamObj, cfg Config) *raw.StreamObj {
	if _, filtered := st.Dict.Get("Filter"); !filtered && cfg.Compress && len(st.Data) > 0 {
		st.Data = filters.EncodeFlate(st.Data)
		st.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
		st.Dict.Delete("DecodeParms")
	}
	st.Dict.Set("Length", raw.NumberInt(int64(len(st.Data))))
	return st
}

func fileID(body []byte, cfg Config) []byte {
	if !cfg.Deterministic {
		id := make([]byte, 16)
		if _, err := rand.Read(id); err == nil {
			return id
		}
	}
	sum := blake2b.Sum256(body)
	return sum[:16]
}
