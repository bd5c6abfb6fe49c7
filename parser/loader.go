package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
	"github.com/Peterrvisserr/WOOBARNEVELD/scanner"
)

// objectLoader materialises objects on demand from their xref entries.
// It is used by a single Parse call and is not safe for concurrent use.
type objectLoader struct {
	data     []byte
	cfg      Config
	table    *xrefTable
	repaired *xrefTable
	pipeline *filters.Pipeline
	cache    map[int]raw.Object
	objstm   map[int]map[int]raw.Object
	loading  map[int]bool
}

func newObjectLoader(data []byte, cfg Config) *objectLoader {
	return &objectLoader{
		data:     data,
		cfg:      cfg,
		pipeline: filters.DefaultPipeline(cfg.Limits),
		cache:    make(map[int]raw.Object),
		objstm:   make(map[int]map[int]raw.Object),
		loading:  make(map[int]bool),
	}
}

func (o *objectLoader) load(ctx context.Context, num int) (raw.Object, error) {
	if obj, ok := o.cache[num]; ok {
		return obj, nil
	}
	if o.loading[num] {
		return nil, fmt.Errorf("object %d references itself while loading", num)
	}
	o.loading[num] = true
	defer delete(o.loading, num)

	e, ok := o.table.lookup(num)
	if !ok {
		return nil, errors.New("object not found in xref")
	}
	var (
		obj raw.Object
		err error
	)
	if e.kind == entryCompressed {
		obj, err = o.loadFromObjectStream(ctx, num, e.stream)
	} else {
		obj, err = o.loadAt(ctx, e.offset, num, e.gen)
	}
	if err != nil {
		return nil, err
	}
	o.cache[num] = obj
	return obj, nil
}

// loadRepaired retries num using offsets found by scanning the whole file.
func (o *objectLoader) loadRepaired(ctx context.Context, num int) (raw.Object, error) {
	if o.repaired == nil {
		t, err := repair(ctx, o, o.data)
		if err != nil {
			return nil, err
		}
		o.repaired = t
	}
	e, ok := o.repaired.lookup(num)
	if !ok {
		return nil, errors.New("object not found by repair scan")
	}
	if e.kind == entryCompressed {
		return o.loadFromObjectStream(ctx, num, e.stream)
	}
	obj, err := o.loadAt(ctx, e.offset, num, e.gen)
	if err == nil {
		o.cache[num] = obj
	}
	return obj, err
}

func (o *objectLoader) loadAt(ctx context.Context, offset int64, num, gen int) (raw.Object, error) {
	gotNum, gotGen, obj, err := o.parseIndirectAt(ctx, offset)
	if err != nil {
		return nil, err
	}
	if gotNum != num {
		return nil, &SyntaxError{Offset: offset, Msg: fmt.Sprintf("object header number mismatch: want %d, found %d", num, gotNum)}
	}
	if gotGen != gen {
		return nil, &SyntaxError{Offset: offset, Msg: "object header generation mismatch"}
	}
	return obj, nil
}

// parseIndirectAt parses "<num> <gen> obj ... endobj" at offset.
func (o *objectLoader) parseIndirectAt(ctx context.Context, offset int64) (int, int, raw.Object, error) {
	s := scanner.New(o.data, o.cfg.Scanner)
	if err := s.Seek(offset); err != nil {
		return 0, 0, nil, &SyntaxError{Offset: offset, Msg: "offset out of range", Err: err}
	}
	tr := newTokenReader(s)
	tokNum, err := tr.next()
	if err != nil || tokNum.Type != scanner.TokenNumber || !tokNum.IsInt {
		return 0, 0, nil, &SyntaxError{Offset: offset, Msg: "expected object number"}
	}
	tokGen, err := tr.next()
	if err != nil || tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
		return 0, 0, nil, &SyntaxError{Offset: offset, Msg: "expected generation number"}
	}
	tokObj, err := tr.next()
	if err != nil || tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return 0, 0, nil, &SyntaxError{Offset: offset, Msg: "expected obj keyword"}
	}
	num, gen := int(tokNum.Int), int(tokGen.Int)
	s.SetRecoveryLocation(recovery.Location{ObjectNum: num, ObjectGen: gen, Component: "parser"})
	obj, err := parseObject(tr, num, gen)
	if err != nil {
		return 0, 0, nil, &SyntaxError{Offset: offset, Msg: fmt.Sprintf("object %d %d", num, gen), Err: err}
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		s.SetNextStreamLength(o.streamLength(ctx, dict))
		if streamTok, err := tr.next(); err == nil && streamTok.Type == scanner.TokenStream {
			obj = raw.NewStream(dict, append([]byte(nil), streamTok.Bytes...))
		}
	}
	return num, gen, obj, nil
}

// streamLength returns the declared /Length, or -1 to let the scanner search
// for endstream.
func (o *objectLoader) streamLength(ctx context.Context, dict *raw.DictObj) int64 {
	val, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	switch v := val.(type) {
	case raw.NumberObj:
		return v.Int()
	case raw.RefObj:
		if o.table == nil {
			return -1
		}
		obj, err := o.load(ctx, v.R.Num)
		if err != nil {
			return -1
		}
		if n, ok := obj.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return -1
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, num, streamNum int) (raw.Object, error) {
	objs, ok := o.objstm[streamNum]
	if !ok {
		var err error
		objs, err = o.expandObjectStream(ctx, streamNum)
		if err != nil {
			return nil, err
		}
		o.objstm[streamNum] = objs
	}
	obj, ok := objs[num]
	if !ok {
		return nil, errors.New("object not found in object stream")
	}
	return obj, nil
}

func (o *objectLoader) expandObjectStream(ctx context.Context, streamNum int) (map[int]raw.Object, error) {
	streamObj, err := o.load(ctx, streamNum)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	st, ok := streamObj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream is not a stream")
	}
	n, _ := intValue(st.Dict, "N")
	first, _ := intValue(st.Dict, "First")
	data, err := o.pipeline.DecodeStream(ctx, raw.NewDocument(""), st)
	if err != nil {
		return nil, fmt.Errorf("decode object stream %d: %w", streamNum, err)
	}
	if first < 0 || first > int64(len(data)) {
		return nil, errors.New("object stream First exceeds length")
	}
	hs := scanner.New(data[:first], o.cfg.Scanner)
	var pairs []int64
	for int64(len(pairs)) < 2*n {
		tok, err := hs.Next()
		if err != nil {
			break
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, tok.Int)
		}
	}
	body := data[first:]
	objs := make(map[int]raw.Object, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		objNum, off := int(pairs[i]), pairs[i+1]
		if off < 0 || off >= int64(len(body)) {
			continue
		}
		bs := scanner.New(body, o.cfg.Scanner)
		if err := bs.Seek(off); err != nil {
			continue
		}
		obj, err := parseObject(newTokenReader(bs), objNum, 0)
		if err != nil {
			return nil, fmt.Errorf("object %d in stream %d: %w", objNum, streamNum, err)
		}
		objs[objNum] = obj
	}
	return objs, nil
}

type tokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func newTokenReader(s scanner.Scanner) *tokenReader { return &tokenReader{s: s} }

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func parseObject(tr *tokenReader, objNum, gen int) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: append([]byte(nil), tok.Bytes...), Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return parseArray(tr, objNum, gen)
	case scanner.TokenDict:
		return parseDict(tr, objNum, gen)
	case scanner.TokenRef:
		return raw.Ref(int(tok.Int), int(tok.Gen)), nil
	}
	return nil, fmt.Errorf("unexpected token %q", tok.Str)
}

func parseArray(tr *tokenReader, objNum, gen int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
			return nil, errors.New("unexpected endobj in array (missing ]?)")
		}
		tr.unread(tok)
		item, err := parseObject(tr, objNum, gen)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *tokenReader, objNum, gen int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			if tok.Type == scanner.TokenKeyword && (tok.Str == "endobj" || tok.Str == "stream") {
				return nil, errors.New("unexpected " + tok.Str + " in dict (missing >>?)")
			}
			return nil, errors.New("expected name in dict")
		}
		val, err := parseObject(tr, objNum, gen)
		if err != nil {
			return nil, err
		}
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(tok.Str, val)
	}
}
