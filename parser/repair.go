package parser

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/scanner"
)

var objHeaderRe = regexp.MustCompile(`(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// repair scans the entire file to reconstruct the xref table. Later
// definitions of an object win, matching incremental-update semantics.
func repair(ctx context.Context, o *objectLoader, data []byte) (*xrefTable, error) {
	table := newXRefTable("repaired")
	for _, m := range objHeaderRe.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := m[0]
		if start > 0 && !isSpace(data[start-1]) && !bytes.ContainsAny(data[start-1:start], "()<>[]{}/%") {
			continue
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil || num <= 0 {
			continue
		}
		table.entries[num] = xrefEntry{offset: int64(start), gen: gen}
	}
	if len(table.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	// Objects compressed into object streams are not visible to the header
	// scan; expand every object stream found.
	saved := o.table
	o.table = table
	defer func() { o.table = saved }()
	for _, num := range table.objectNumbers() {
		e := table.entries[num]
		_, _, obj, err := o.parseIndirectAt(ctx, e.offset)
		if err != nil {
			continue
		}
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		switch t, _ := st.Dict.Name("Type"); t {
		case "ObjStm":
			objs, err := o.expandObjectStream(ctx, num)
			if err != nil {
				continue
			}
			o.objstm[num] = objs
			for inner := range objs {
				table.set(inner, xrefEntry{kind: entryCompressed, stream: num})
			}
		case "XRef":
			if table.trailer == nil {
				table.trailer = raw.Dict()
			}
			for _, k := range []string{"Root", "Info", "ID", "Encrypt"} {
				if v, ok := st.Dict.Get(k); ok {
					table.trailer.Set(k, v)
				}
			}
		}
	}
	if t := lastTrailer(o, data); t != nil {
		table.trailer = t
	}
	if table.trailer == nil {
		table.trailer = raw.Dict()
	}
	table.trailer.Delete("Prev")
	table.trailer.Delete("XRefStm")
	table.trailer.Set("Size", raw.NumberInt(int64(maxKey(table.entries)+1)))
	return table, nil
}

func lastTrailer(o *objectLoader, data []byte) *raw.DictObj {
	idx := bytes.LastIndex(data, []byte("trailer"))
	if idx < 0 {
		return nil
	}
	s := scanner.New(data, o.cfg.Scanner)
	if err := s.Seek(int64(idx + len("trailer"))); err != nil {
		return nil
	}
	obj, err := parseObject(newTokenReader(s), 0, 0)
	if err != nil {
		return nil
	}
	d, _ := obj.(*raw.DictObj)
	return d
}

func maxKey(m map[int]xrefEntry) int {
	max := 0
	for k := range m {
		if k > max {
			max = k
		}
	}
	return max
}
