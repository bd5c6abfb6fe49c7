package fonts

import (
	"sort"
	"unicode/utf16"

	"github.com/Peterrvisserr/WOOBARNEVELD/scanner"
)

// CMap maps character codes to Unicode text (ToUnicode) or to CIDs
// (embedded encoding CMaps). Codes are raw byte strings so one- and
// multi-byte code spaces share one table.
type CMap struct {
	codespace []codeRange
	text      map[string]string
	cids      map[string]int
	lengths   []int
}

type codeRange struct {
	lo, hi []byte
}

func (r codeRange) matches(b []byte) bool {
	if len(b) != len(r.lo) {
		return false
	}
	for i := range b {
		if b[i] < r.lo[i] || b[i] > r.hi[i] {
			return false
		}
	}
	return true
}

// ParseCMap reads the codespace, bfchar/bfrange and cidchar/cidrange
// sections of a CMap program. Unknown operators are skipped.
func ParseCMap(data []byte) *CMap {
	m := &CMap{text: make(map[string]string), cids: make(map[string]int)}
	sc := scanner.New(data, scanner.Config{})
	lengthSet := make(map[int]struct{})
	state := ""
	var operands []scanner.Token
	var array []scanner.Token
	inArray := false
	for {
		tok, err := sc.Next()
		if err != nil {
			break
		}
		switch {
		case tok.Type == scanner.TokenArray:
			inArray = true
			array = array[:0]
			continue
		case tok.Type == scanner.TokenKeyword && tok.Str == "]":
			inArray = false
			operands = append(operands, scanner.Token{Type: scanner.TokenArray, Str: "array"})
			if state == "bfrange" && len(operands) == 3 {
				m.addRangeArray(operands[0].Bytes, operands[1].Bytes, array, lengthSet)
				operands = operands[:0]
			}
			continue
		case inArray:
			array = append(array, tok)
			continue
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "begincodespacerange":
				state = "codespace"
			case "beginbfchar":
				state = "bfchar"
			case "beginbfrange":
				state = "bfrange"
			case "begincidchar":
				state = "cidchar"
			case "begincidrange":
				state = "cidrange"
			case "endcodespacerange", "endbfchar", "endbfrange", "endcidchar", "endcidrange":
				state = ""
			}
			operands = operands[:0]
			continue
		}
		operands = append(operands, tok)
		switch state {
		case "codespace":
			if len(operands) == 2 {
				lo, hi := operands[0].Bytes, operands[1].Bytes
				if len(lo) > 0 && len(lo) == len(hi) {
					m.codespace = append(m.codespace, codeRange{lo: append([]byte(nil), lo...), hi: append([]byte(nil), hi...)})
					lengthSet[len(lo)] = struct{}{}
				}
				operands = operands[:0]
			}
		case "bfchar":
			if len(operands) == 2 {
				src := operands[0].Bytes
				if len(src) > 0 {
					m.text[string(src)] = mapTarget(operands[1])
					lengthSet[len(src)] = struct{}{}
				}
				operands = operands[:0]
			}
		case "bfrange":
			if len(operands) == 3 {
				m.addRange(operands[0].Bytes, operands[1].Bytes, operands[2].Bytes, lengthSet)
				operands = operands[:0]
			}
		case "cidchar":
			if len(operands) == 2 {
				if src := operands[0].Bytes; len(src) > 0 {
					m.cids[string(src)] = int(operands[1].Int)
					lengthSet[len(src)] = struct{}{}
				}
				operands = operands[:0]
			}
		case "cidrange":
			if len(operands) == 3 {
				lo, hi := operands[0].Bytes, operands[1].Bytes
				if len(lo) > 0 && len(lo) == len(hi) {
					start, end := bytesToInt(lo), bytesToInt(hi)
					for i := 0; i <= end-start && i < maxRangeSpan; i++ {
						m.cids[string(intToBytes(start+i, len(lo)))] = int(operands[2].Int) + i
					}
					lengthSet[len(lo)] = struct{}{}
				}
				operands = operands[:0]
			}
		default:
			if len(operands) > 8 {
				operands = operands[:0]
			}
		}
	}
	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m
}

// maxRangeSpan bounds a single range entry so a hostile CMap cannot
// allocate millions of map entries.
const maxRangeSpan = 1 << 16

func (m *CMap) addRange(lo, hi, dst []byte, lengthSet map[int]struct{}) {
	if len(lo) == 0 || len(lo) != len(hi) || len(dst) == 0 {
		return
	}
	lengthSet[len(lo)] = struct{}{}
	start, end := bytesToInt(lo), bytesToInt(hi)
	// Only the last byte of the destination increments.
	for i := 0; i <= end-start && i < maxRangeSpan; i++ {
		d := append([]byte(nil), dst...)
		d[len(d)-1] += byte(i)
		m.text[string(intToBytes(start+i, len(lo)))] = decodeUTF16BE(d)
	}
}

func (m *CMap) addRangeArray(lo, hi []byte, items []scanner.Token, lengthSet map[int]struct{}) {
	if len(lo) == 0 || len(lo) != len(hi) {
		return
	}
	lengthSet[len(lo)] = struct{}{}
	start, end := bytesToInt(lo), bytesToInt(hi)
	for i := 0; i <= end-start && i < len(items); i++ {
		m.text[string(intToBytes(start+i, len(lo)))] = mapTarget(items[i])
	}
}

// mapTarget reads a bfchar destination: UTF-16BE hex, or a glyph name.
func mapTarget(tok scanner.Token) string {
	if tok.Type == scanner.TokenName {
		return glyphText(tok.Str)
	}
	return decodeUTF16BE(tok.Bytes)
}

// Split cuts data into character codes using the codespace ranges. Bytes
// that fit no range are consumed as codes of the shortest known length.
func (m *CMap) Split(data []byte) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		n := m.codeLength(data)
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

func (m *CMap) codeLength(data []byte) int {
	for _, r := range m.codespace {
		if len(data) >= len(r.lo) && r.matches(data[:len(r.lo)]) {
			return len(r.lo)
		}
	}
	// No codespace: prefer the longest code that has a mapping.
	for _, l := range m.lengths {
		if len(data) < l {
			continue
		}
		key := string(data[:l])
		if _, ok := m.text[key]; ok {
			return l
		}
		if _, ok := m.cids[key]; ok {
			return l
		}
	}
	if len(m.lengths) > 0 {
		short := m.lengths[len(m.lengths)-1]
		if short <= len(data) {
			return short
		}
	}
	return 1
}

// Lookup returns the Unicode text mapped to code.
func (m *CMap) Lookup(code []byte) (string, bool) {
	s, ok := m.text[string(code)]
	return s, ok
}

// CID returns the CID mapped to code.
func (m *CMap) CID(code []byte) (int, bool) {
	c, ok := m.cids[string(code)]
	return c, ok
}

// Decode maps a whole string through the CMap, passing through bytes it
// does not know.
func (m *CMap) Decode(data []byte) string {
	var out []byte
	for _, code := range m.Split(data) {
		if s, ok := m.text[string(code)]; ok {
			out = append(out, s...)
			continue
		}
		out = append(out, code...)
	}
	return string(out)
}

// HasCodespace reports whether the CMap declared any codespace range.
func (m *CMap) HasCodespace() bool { return len(m.codespace) > 0 }

func decodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return ""
	}
	buf := make([]uint16, len(data)/2)
	for i := range buf {
		buf[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(buf))
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = (val << 8) | int(by)
	}
	return val
}

func intToBytes(value int, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value & 0xFF)
		value >>= 8
	}
	return buf
}
