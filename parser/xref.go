package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/scanner"
)

type entryKind int

const (
	entryOffset entryKind = iota
	entryCompressed
)

type xrefEntry struct {
	kind   entryKind
	offset int64
	gen    int
	stream int // object stream number for compressed entries
	index  int
}

// xrefTable maps object numbers to their location. Entries from newer
// sections win: set never overwrites.
type xrefTable struct {
	entries map[int]xrefEntry
	trailer *raw.DictObj
	kind    string
}

func newXRefTable(kind string) *xrefTable {
	return &xrefTable{entries: make(map[int]xrefEntry), kind: kind}
}

func (t *xrefTable) set(num int, e xrefEntry) {
	if _, ok := t.entries[num]; !ok {
		t.entries[num] = e
	}
}

// free records a free entry so older sections cannot resurrect the object.
func (t *xrefTable) free(num int) {
	if _, ok := t.entries[num]; !ok {
		t.entries[num] = xrefEntry{offset: -1}
	}
}

func (t *xrefTable) lookup(num int) (xrefEntry, bool) {
	e, ok := t.entries[num]
	if !ok || (e.kind == entryOffset && e.offset < 0) {
		return xrefEntry{}, false
	}
	return e, true
}

func (t *xrefTable) objectNumbers() []int {
	out := make([]int, 0, len(t.entries))
	for num := range t.entries {
		if _, ok := t.lookup(num); ok && num > 0 {
			out = append(out, num)
		}
	}
	sort.Ints(out)
	return out
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", off)
	}
	return off, nil
}

// readXRefChain follows startxref, Prev and XRefStm links from the newest
// section to the oldest.
func readXRefChain(ctx context.Context, o *objectLoader, data []byte) (*xrefTable, error) {
	off, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	table := newXRefTable("")
	visited := make(map[int64]bool)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited[off] = true
		trailer, kind, err := readSection(ctx, o, data, off, table)
		if err != nil {
			return nil, err
		}
		if table.trailer == nil {
			table.trailer = trailer
			table.kind = kind
		}
		if xs, ok := intValue(trailer, "XRefStm"); ok && !visited[xs] {
			visited[xs] = true
			if _, err := readXRefStream(ctx, o, xs, table); err != nil {
				return nil, err
			}
		}
		prev, ok := intValue(trailer, "Prev")
		if !ok || visited[prev] || prev <= 0 || prev >= int64(len(data)) {
			break
		}
		off = prev
	}
	return table, nil
}

func readSection(ctx context.Context, o *objectLoader, data []byte, off int64, table *xrefTable) (*raw.DictObj, string, error) {
	start := off
	for start < int64(len(data)) && isSpace(data[start]) {
		start++
	}
	if bytes.HasPrefix(data[start:], []byte("xref")) {
		trailer, err := readClassicSection(o, start, table)
		return trailer, "table", err
	}
	trailer, err := readXRefStream(ctx, o, off, table)
	return trailer, "xref-stream", err
}

func readClassicSection(o *objectLoader, off int64, table *xrefTable) (*raw.DictObj, error) {
	s := scanner.New(o.data, o.cfg.Scanner)
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	if tok, err := s.Next(); err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "xref" {
		return nil, &SyntaxError{Offset: off, Msg: "xref keyword not found at offset"}
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, &SyntaxError{Offset: s.Position(), Msg: "unexpected end of xref section", Err: err}
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := parseObject(newTokenReader(s), 0, 0)
			if err != nil {
				return nil, &SyntaxError{Offset: tok.Pos, Msg: "invalid trailer", Err: err}
			}
			trailer, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, &SyntaxError{Offset: tok.Pos, Msg: "trailer is not a dictionary"}
			}
			return trailer, nil
		}
		countTok, err := s.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, &SyntaxError{Offset: tok.Pos, Msg: "invalid xref subsection header"}
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kindTok, err3 := s.Next()
			if err1 != nil || err2 != nil || err3 != nil || offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber {
				return nil, &SyntaxError{Offset: offTok.Pos, Msg: "invalid xref entry"}
			}
			num := first + i
			switch kindTok.Str {
			case "n":
				table.set(num, xrefEntry{offset: offTok.Int, gen: int(genTok.Int)})
			case "f":
				table.free(num)
			default:
				return nil, &SyntaxError{Offset: kindTok.Pos, Msg: "invalid xref entry type " + strconv.Quote(kindTok.Str)}
			}
		}
	}
}

func readXRefStream(ctx context.Context, o *objectLoader, off int64, table *xrefTable) (*raw.DictObj, error) {
	_, _, obj, err := o.parseIndirectAt(ctx, off)
	if err != nil {
		return nil, &SyntaxError{Offset: off, Msg: "xref stream", Err: err}
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, &SyntaxError{Offset: off, Msg: "xref stream expected"}
	}
	if t, _ := st.Dict.Name("Type"); t != "XRef" {
		return nil, &SyntaxError{Offset: off, Msg: "xref stream has wrong /Type"}
	}
	data, err := o.pipeline.DecodeStream(ctx, raw.NewDocument(""), st)
	if err != nil {
		return nil, &SyntaxError{Offset: off, Msg: "decode xref stream", Err: err}
	}
	var w [3]int
	wArr, ok := mustArray(st.Dict, "W")
	if !ok || len(wArr.Items) != 3 {
		return nil, &SyntaxError{Offset: off, Msg: "xref stream /W missing"}
	}
	for i := range w {
		w[i] = int(numberOf(wArr.Items[i]))
		if w[i] < 0 || w[i] > 8 {
			return nil, &SyntaxError{Offset: off, Msg: "xref stream /W out of range"}
		}
	}
	size, _ := intValue(st.Dict, "Size")
	index := []int64{0, size}
	if idx, ok := mustArray(st.Dict, "Index"); ok {
		index = index[:0]
		for _, it := range idx.Items {
			index = append(index, int64(numberOf(it)))
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, &SyntaxError{Offset: off, Msg: "xref stream rows are empty"}
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count && pos+rowLen <= len(data); j++ {
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = beInt(row[:w[0]])
			}
			f2 := beInt(row[w[0] : w[0]+w[1]])
			f3 := beInt(row[w[0]+w[1]:])
			num := first + j
			switch typ {
			case 0:
				table.free(num)
			case 1:
				table.set(num, xrefEntry{offset: f2, gen: int(f3)})
			case 2:
				table.set(num, xrefEntry{kind: entryCompressed, stream: int(f2), index: int(f3)})
			}
		}
	}
	trailer := raw.Dict()
	for _, k := range st.Dict.Keys() {
		switch k {
		case "Type", "W", "Index", "Length", "Filter", "DecodeParms":
			continue
		}
		v, _ := st.Dict.Get(k)
		trailer.Set(k, v)
	}
	return trailer, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func intValue(d *raw.DictObj, key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func numberOf(o raw.Object) float64 {
	if n, ok := o.(raw.NumberObj); ok {
		return n.Float()
	}
	return 0
}

func mustArray(d *raw.DictObj, key string) (*raw.ArrayObj, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.(*raw.ArrayObj)
	return a, ok
}
