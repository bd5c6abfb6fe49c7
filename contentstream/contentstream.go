// Package contentstream parses page content into operations, writes them
// back, and traces them to find where every glyph lands on the page.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
	"github.com/Peterrvisserr/WOOBARNEVELD/scanner"
	"github.com/Peterrvisserr/WOOBARNEVELD/writer"
)

// Operation is one content stream operator with its operands.
type Operation struct {
	Operator string
	Operands []raw.Object
	// Data holds the sample bytes of an inline image (operator BI). The
	// image parameters are then the single dictionary operand.
	Data []byte
}

// Parse splits a decoded content stream into operations. Minor syntax
// damage is repaired; operands left dangling at the end are dropped.
func Parse(data []byte) ([]Operation, error) {
	sc := scanner.New(data, scanner.Config{Recovery: recovery.NewLenientStrategy()})
	tr := &tokenReader{s: sc}
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := tr.next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, fmt.Errorf("content stream at offset %d: %w", sc.Position(), err)
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "BI":
				op, err := parseInlineImage(tr)
				if err != nil {
					return ops, err
				}
				ops = append(ops, op)
				operands = nil
				continue
			case "]", ">>", ">", "{", "}":
				// stray delimiters carry no meaning
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		if tok.Type == scanner.TokenInlineImage {
			continue
		}
		tr.unread(tok)
		obj, err := parseOperand(tr)
		if err != nil {
			return ops, fmt.Errorf("content stream at offset %d: %w", tok.Pos, err)
		}
		operands = append(operands, obj)
	}
}

func parseInlineImage(tr *tokenReader) (Operation, error) {
	params := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		if tok.Type == scanner.TokenInlineImage {
			return Operation{Operator: "BI", Operands: []raw.Object{params}, Data: append([]byte(nil), tok.Bytes...)}, nil
		}
		if tok.Type != scanner.TokenName {
			return Operation{}, fmt.Errorf("inline image: unexpected token %q", tok.Str)
		}
		val, err := parseOperand(tr)
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		params.Set(tok.Str, val)
	}
}

// Serialize writes operations back in content stream syntax.
func Serialize(ops []Operation) []byte {
	var b bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" {
			writeInlineImage(&b, op)
			continue
		}
		for _, o := range op.Operands {
			b.Write(writer.Serialize(o))
			b.WriteByte(' ')
		}
		b.WriteString(op.Operator)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func writeInlineImage(b *bytes.Buffer, op Operation) {
	b.WriteString("BI")
	if len(op.Operands) == 1 {
		if params, ok := op.Operands[0].(*raw.DictObj); ok {
			for _, k := range params.Keys() {
				b.WriteString(" /" + writer.NameLiteral(k) + " ")
				b.Write(writer.Serialize(params.KV[k]))
			}
		}
	}
	b.WriteString(" ID ")
	b.Write(op.Data)
	if n := len(op.Data); n == 0 || !isSpace(op.Data[n-1]) {
		b.WriteByte('\n')
	}
	b.WriteString("EI\n")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

type tokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func parseOperand(tr *tokenReader) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameLiteral(tok.Str), nil
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
	case scanner.TokenRef:
		return raw.Ref(int(tok.Int), int(tok.Gen)), nil
	case scanner.TokenArray:
		arr := raw.NewArray()
		for {
			next, err := tr.next()
			if err != nil {
				return nil, err
			}
			if next.Type == scanner.TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			tr.unread(next)
			item, err := parseOperand(tr)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenDict:
		d := raw.Dict()
		for {
			next, err := tr.next()
			if err != nil {
				return nil, err
			}
			if next.Type == scanner.TokenKeyword && next.Str == ">>" {
				return d, nil
			}
			if next.Type != scanner.TokenName {
				return nil, fmt.Errorf("expected name in dictionary, got %q", next.Str)
			}
			val, err := parseOperand(tr)
			if err != nil {
				return nil, err
			}
			d.Set(next.Str, val)
		}
	}
	return nil, fmt.Errorf("unexpected token %q", tok.Str)
}
