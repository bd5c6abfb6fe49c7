// Package scanner tokenizes PDF file bodies and content streams.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword with its payload
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, >>, ], operators)
)

// Token is a single lexical element. Only the fields relevant to Type are set.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Gen   int64
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool
	Pos   int64
}

// Number returns the numeric value of a TokenNumber.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

// Config bounds resource use on hostile input. Zero means unlimited.
type Config struct {
	MaxNameLength   int
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	Recovery        recovery.Strategy
}

type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
}

// New returns a scanner over data. The slice is not copied.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	s.nextStreamLen = -1
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		if s.arrayDepth > 0 {
			if err := s.recover(errors.New("unclosed array at EOF"), "array"); err != nil {
				return Token{}, err
			}
			s.arrayDepth--
			return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
		}
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
		if s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			return Token{}, errors.New("name too long")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	n := int64(len(s.data))
	for s.pos < n {
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.pos >= n {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < n && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < n; k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		}
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("literal string too long")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isHex(c) {
			hexbuf = append(hexbuf, c)
		}
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, errors.New("hex string too long")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

var endstream = []byte("endstream")

// scanStream consumes the payload after the 'stream' keyword.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	n := int64(len(s.data))
	// PDF 7.3.8: stream keyword must be followed by EOL before data
	switch {
	case s.pos < n && s.data[s.pos] == '\r':
		s.pos++
		if s.pos < n && s.data[s.pos] == '\n' {
			s.pos++
		}
	case s.pos < n && s.data[s.pos] == '\n':
		s.pos++
	default:
		if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
			return Token{}, err
		}
		for s.pos < n && s.data[s.pos] == ' ' {
			s.pos++
		}
	}
	dataStart := s.pos
	if l := s.nextStreamLen; l >= 0 {
		s.nextStreamLen = -1
		if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		end := dataStart + l
		if end > n {
			if err := s.recover(errors.New("stream ended before declared length"), "stream"); err != nil {
				return Token{}, err
			}
			end = n
		}
		// Trust the declared length only when endstream follows it.
		after := end
		for after < n && isWhitespace(s.data[after]) {
			after++
		}
		if after == n || bytes.HasPrefix(s.data[after:], endstream) {
			payload := s.data[dataStart:end]
			s.pos = after
			if after < n {
				s.pos += int64(len(endstream))
			}
			return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
		}
		if err := s.recover(errors.New("stream length mismatch"), "stream"); err != nil {
			return Token{}, err
		}
	}
	idx := bytes.Index(s.data[dataStart:], endstream)
	if s.cfg.MaxStreamScan > 0 && (idx < 0 || int64(idx) > s.cfg.MaxStreamScan) {
		if err := s.recover(errors.New("endstream not found within scan limit"), "stream"); err != nil {
			return Token{}, err
		}
	}
	var end int64
	if idx < 0 {
		end = n
		s.pos = n
	} else {
		end = dataStart + int64(idx)
		s.pos = end + int64(len(endstream))
		// Trim EOL before marker
		if end > dataStart && s.data[end-1] == '\n' {
			end--
		}
		if end > dataStart && s.data[end-1] == '\r' {
			end--
		}
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, errors.New("stream too long")
	}
	return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start})
}

// scanInlineImage consumes bytes after the ID keyword until an EI delimiter
// preceded by a line break or whitespace.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	n := int64(len(s.data))
	if s.pos >= n || !isWhitespace(s.data[s.pos]) {
		return Token{}, errors.New("inline image missing required whitespace after ID")
	}
	s.pos++
	if s.pos < n && s.data[s.pos] == '\n' && s.data[s.pos-1] == '\r' {
		s.pos++
	}
	if s.pos < n && isEOL(s.data[s.pos]) && s.data[s.pos-1] == ' ' {
		s.pos++
	}
	dataStart := s.pos
	for i := dataStart; i+1 < n; i++ {
		if s.cfg.MaxInlineImage > 0 && i-dataStart > s.cfg.MaxInlineImage {
			return Token{}, errors.New("inline image too long")
		}
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		if i == dataStart || !isWhitespace(s.data[i-1]) {
			continue
		}
		if i+2 < n && !isDelimiter(s.data[i+2]) {
			continue
		}
		s.pos = i + 2
		return Token{Type: TokenInlineImage, Bytes: s.data[dataStart:i], Pos: start}, nil
	}
	return Token{}, s.failOrFix(errors.New("unterminated inline image"), "inline_image")
}

func (s *pdfScanner) failOrFix(err error, loc string) error {
	if rerr := s.recover(err, loc); rerr != nil {
		return rerr
	}
	s.pos = int64(len(s.data))
	return io.EOF
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// stray ')' or similar: consume it as a one-byte keyword
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		// lone sign or dot: treat as keyword so parsing can continue
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start}, nil
	}
	if isUnsignedInt(num1) {
		save := s.pos
		s.skipWSAndComments()
		num2 := s.scanNumberString()
		if num2 != "" && isUnsignedInt(num2) {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 == int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				n1, _ := strconv.ParseInt(num1, 10, 64)
				n2, _ := strconv.ParseInt(num2, 10, 64)
				return Token{Type: TokenRef, Int: n1, Gen: n2, Pos: start}, nil
			}
		}
		s.pos = save
	}
	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(normalizeFloat(num1), 64)
	if err != nil {
		// malformed numbers such as "1.2.3" or "--5" read as zero, as viewers do
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, nil
}

func normalizeFloat(s string) string {
	if len(s) > 1 && s[0] == '-' && s[1] == '-' {
		return s[1:]
	}
	return s
}

func isUnsignedInt(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '+' || c == '-' {
			if s.pos != start && s.data[s.pos-1] != '-' {
				break
			}
		} else if c >= '0' && c <= '9' {
			seenDigit = true
		} else if c != '.' {
			break
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	if s.cfg.Recovery.OnError(err, location) == recovery.ActionFix {
		return nil
	}
	return err
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, errors.New("array depth exceeded")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, errors.New("dict depth exceeded")
		}
	case TokenKeyword:
		switch tok.Str {
		case "]":
			if s.arrayDepth == 0 {
				if err := s.recover(errors.New("array depth underflow"), "array"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.arrayDepth--
		case ">>":
			if s.dictDepth == 0 {
				if err := s.recover(errors.New("dict depth underflow"), "dict"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.dictDepth--
		}
	}
	return tok, nil
}
