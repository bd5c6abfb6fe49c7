package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

func writeObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteString("/" + NameLiteral(v.Val))
	case raw.NumberObj:
		if v.IsInteger() {
			b.WriteString(strconv.FormatInt(v.Int(), 10))
		} else {
			b.WriteString(FormatNumber(v.Float()))
		}
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.V))
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.Hex {
			b.WriteByte('<')
			b.WriteString(strings.ToUpper(hex.EncodeToString(v.Bytes)))
			b.WriteByte('>')
		} else {
			b.Write(EscapeLiteralString(v.Bytes))
		}
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString("/" + NameLiteral(k) + " ")
			writeObject(b, v.KV[k])
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		writeObject(b, v.Dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.R.Num, v.R.Gen)
	default:
		b.WriteString("null")
	}
}

// Serialize renders a direct object in PDF syntax.
func Serialize(o raw.Object) []byte {
	var b bytes.Buffer
	writeObject(&b, o)
	return b.Bytes()
}

// FormatNumber renders a real with at most five decimals and no exponent.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', 5, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// NameLiteral escapes bytes that are not regular characters in a name.
func NameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7F && !strings.ContainsRune("()<>[]{}/%#", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

// EscapeLiteralString renders raw bytes as a parenthesised literal string.
func EscapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}
